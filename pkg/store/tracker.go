package store

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/google/uuid"
)

// IdGenerator mints fresh block ids, typically uuid-based but swappable in
// tests for deterministic ids.
type IdGenerator func() block.BlockId

// DefaultIdGenerator returns a generator backed by google/uuid.
func DefaultIdGenerator() IdGenerator {
	return func() block.BlockId {
		return block.BlockId(uuid.NewString())
	}
}

// Tracker is a pure in-memory staging buffer: every Insert/Update/Delete
// call accumulates into a Transforms value without ever touching a network
// or a disk. It implements BlockStore's write side directly and its read
// side only over what has been staged in this Tracker (no underlying
// lookup) — see Atomic for the read-through variant.
type Tracker struct {
	genId        IdGenerator
	collectionID block.CollectionId
	staged       block.Transforms
}

// NewTracker returns a Tracker for the given collection.
func NewTracker(genId IdGenerator, collectionID block.CollectionId) *Tracker {
	if genId == nil {
		genId = DefaultIdGenerator()
	}
	return &Tracker{genId: genId, collectionID: collectionID, staged: block.EmptyTransforms()}
}

func (t *Tracker) CreateBlockHeader(bt block.BlockType, id *block.BlockId) block.BlockId {
	if id != nil {
		return *id
	}
	return t.genId()
}

func (t *Tracker) GenerateId() block.BlockId {
	return t.genId()
}

// TryGet returns a block reconstructed purely from what has been staged:
// an inserted block with any staged updates applied, or nil if nothing has
// been staged for id yet (including if it was staged for deletion).
func (t *Tracker) TryGet(_ context.Context, id block.BlockId) (*block.Block, error) {
	if _, deleted := t.staged.Deletes[id]; deleted {
		return nil, nil
	}
	ins, ok := t.staged.Inserts[id]
	if !ok {
		return nil, nil
	}
	cur := ins.Clone()
	for _, op := range t.staged.Updates[id] {
		if err := block.ApplyOperation(cur, op); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (t *Tracker) Insert(b *block.Block) error {
	block.AddInsert(t.staged, b)
	return nil
}

func (t *Tracker) Update(id block.BlockId, op block.BlockOperation) error {
	block.AddUpdate(t.staged, id, op)
	return nil
}

func (t *Tracker) Delete(id block.BlockId) error {
	block.AddDelete(t.staged, id)
	return nil
}

// Staged returns a snapshot of the Transforms accumulated so far.
func (t *Tracker) Staged() block.Transforms {
	return block.ConcatTransforms(block.EmptyTransforms(), t.staged)
}

// Reset discards everything staged so far.
func (t *Tracker) Reset() {
	t.staged = block.EmptyTransforms()
}

// CollectionID returns the collection this Tracker stages blocks for.
func (t *Tracker) CollectionID() block.CollectionId {
	return t.collectionID
}
