package store

import (
	"context"
	"testing"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	blocks map[block.BlockId]*block.Block
}

func (m *memStore) TryGet(_ context.Context, id block.BlockId) (*block.Block, error) {
	b, ok := m.blocks[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func seqGen(prefix string) IdGenerator {
	n := 0
	return func() block.BlockId {
		n++
		return block.BlockId(prefix + string(rune('0'+n)))
	}
}

func TestAtomicReadsOwnWrites(t *testing.T) {
	underlying := &memStore{blocks: map[block.BlockId]*block.Block{
		"b1": {Id: "b1", Fields: block.Fields{"n": 1}},
	}}
	a := NewAtomic(underlying, seqGen("x"), "col")

	require.NoError(t, a.Update("b1", block.BlockOperation{Field: "n", Inserted: []any{2}}))
	got, err := a.TryGet(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Fields["n"])

	// underlying untouched
	raw, _ := underlying.TryGet(context.Background(), "b1")
	assert.Equal(t, 1, raw.Fields["n"])
}

func TestAtomicInsertThenGet(t *testing.T) {
	a := NewAtomic(&memStore{blocks: map[block.BlockId]*block.Block{}}, seqGen("x"), "col")
	require.NoError(t, a.Insert(&block.Block{Id: "new1", Fields: block.Fields{"n": 0}}))
	got, err := a.TryGet(context.Background(), "new1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Fields["n"])
}

func TestAtomicDeleteHidesUnderlying(t *testing.T) {
	underlying := &memStore{blocks: map[block.BlockId]*block.Block{"b1": {Id: "b1", Fields: block.Fields{}}}}
	a := NewAtomic(underlying, seqGen("x"), "col")
	require.NoError(t, a.Delete("b1"))
	got, err := a.TryGet(context.Background(), "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAtomicCommitProducesTransforms(t *testing.T) {
	a := NewAtomic(&memStore{blocks: map[block.BlockId]*block.Block{}}, seqGen("x"), "col")
	require.NoError(t, a.Insert(&block.Block{Id: "new1", Fields: block.Fields{}}))
	require.NoError(t, a.Update("new1", block.BlockOperation{Field: "n", Inserted: []any{1}}))

	tr := a.Commit()
	ids := block.BlockIdsForTransforms(tr)
	assert.ElementsMatch(t, []block.BlockId{"new1"}, ids)
}
