// Package chain implements a bounded-batch chain of blocks: a single
// header block carrying head/tail pointers, and a doubly-linked list of
// fixed-capacity data blocks holding the actual entries. Every operation
// stages its mutation in a pkg/store Atomic and commits it through a
// TrxStore as one logical transaction, so a failed add/pop/dequeue leaves
// the chain exactly as it was.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/store"
)

// EntriesPerBlock bounds how many entries a single data block holds before
// a new one is allocated.
const EntriesPerBlock = 32

var (
	HeaderType = block.BlockType{Tag: "CHD", Name: "ChainHeader"}
	DataType   = block.BlockType{Tag: "CDB", Name: "ChainDataBlock"}
)

var (
	ErrEmpty       = errors.New("chain: empty")
	ErrCorrupt     = errors.New("chain: corrupt link structure")
	ErrOutOfBounds = errors.New("chain: index out of bounds")
)

// fields used inside a header block
const (
	fHeadID = "headId"
	fTailID = "tailId"
)

// fields used inside a data block
const (
	fPriorID = "priorId"
	fNextID  = "nextId"
	fData    = "entries"
)

// Chain is a handle to one chain of blocks, identified by its header's
// block id.
type Chain struct {
	HeaderId block.BlockId
}

// Create stages a brand-new, empty chain: a header block and a single
// empty tail data block, head and tail both pointing at it, inserted
// together as one transaction.
func Create(ctx context.Context, ts TrxStore) (*Chain, error) {
	a := store.NewAtomic(newTrxReader(ts), store.DefaultIdGenerator(), "")

	tailId := a.CreateBlockHeader(DataType, nil)
	tail := &block.Block{
		Id:   tailId,
		Type: DataType,
		Fields: block.Fields{
			fPriorID: block.BlockId(""),
			fNextID:  block.BlockId(""),
			fData:    []any{},
		},
	}
	if err := a.Insert(tail); err != nil {
		return nil, err
	}

	headerId := a.CreateBlockHeader(HeaderType, nil)
	header := &block.Block{
		Id:   headerId,
		Type: HeaderType,
		Fields: block.Fields{
			fHeadID: tailId,
			fTailID: tailId,
		},
	}
	if err := a.Insert(header); err != nil {
		return nil, err
	}

	if err := commitAtomic(ctx, ts, a, headerId, headerId); err != nil {
		return nil, err
	}
	return &Chain{HeaderId: headerId}, nil
}

// Open returns a handle to an existing chain, verifying the header
// exists. A header written before head/tail pointers existed is upgraded
// in place: a new empty tail block is allocated and the header is patched
// to reference it, as one insert-plus-two-updates transaction.
func Open(ctx context.Context, ts TrxStore, headerId block.BlockId) (*Chain, error) {
	reader := newTrxReader(ts)
	h, err := reader.TryGet(ctx, headerId)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("chain: header %s not found", headerId)
	}

	headId, _ := h.Fields[fHeadID].(block.BlockId)
	tailId, _ := h.Fields[fTailID].(block.BlockId)
	if headId != "" && tailId != "" {
		return &Chain{HeaderId: headerId}, nil
	}

	a := store.NewAtomic(reader, store.DefaultIdGenerator(), "")
	newTailId := a.CreateBlockHeader(DataType, nil)
	if err := a.Insert(&block.Block{
		Id:   newTailId,
		Type: DataType,
		Fields: block.Fields{
			fPriorID: block.BlockId(""),
			fNextID:  block.BlockId(""),
			fData:    []any{},
		},
	}); err != nil {
		return nil, err
	}
	if err := a.Update(headerId, block.BlockOperation{Field: fHeadID, Inserted: []any{newTailId}}); err != nil {
		return nil, err
	}
	if err := a.Update(headerId, block.BlockOperation{Field: fTailID, Inserted: []any{newTailId}}); err != nil {
		return nil, err
	}
	if err := commitAtomic(ctx, ts, a, headerId, newTailId); err != nil {
		return nil, err
	}
	return &Chain{HeaderId: headerId}, nil
}

func entriesOf(b *block.Block, field string) []any {
	arr, _ := b.Fields[field].([]any)
	return arr
}

func errMissingHeader(id block.BlockId) error {
	return fmt.Errorf("%w: header %s", ErrCorrupt, id)
}

func errMissingBlock(id block.BlockId) error {
	return fmt.Errorf("%w: data block %s", ErrCorrupt, id)
}

// GetHead returns the block id currently holding the oldest entries (the
// front of the deque), following priorId links past any block a stale
// header pointer might have been extended before.
func (c *Chain) GetHead(ctx context.Context, ts TrxStore) (block.BlockId, error) {
	reader := newTrxReader(ts)
	h, err := reader.TryGet(ctx, c.HeaderId)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", errMissingHeader(c.HeaderId)
	}
	id, _ := h.Fields[fHeadID].(block.BlockId)
	for {
		b, err := reader.TryGet(ctx, id)
		if err != nil {
			return "", err
		}
		if b == nil {
			return "", errMissingBlock(id)
		}
		prior, _ := b.Fields[fPriorID].(block.BlockId)
		if prior == "" {
			return id, nil
		}
		id = prior
	}
}

// GetTail returns the block id currently accepting new entries (the back
// of the deque), following nextId links past any block a stale header
// pointer might lag behind.
func (c *Chain) GetTail(ctx context.Context, ts TrxStore) (block.BlockId, error) {
	reader := newTrxReader(ts)
	h, err := reader.TryGet(ctx, c.HeaderId)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", errMissingHeader(c.HeaderId)
	}
	id, _ := h.Fields[fTailID].(block.BlockId)
	for {
		b, err := reader.TryGet(ctx, id)
		if err != nil {
			return "", err
		}
		if b == nil {
			return "", errMissingBlock(id)
		}
		next, _ := b.Fields[fNextID].(block.BlockId)
		if next == "" {
			return id, nil
		}
		id = next
	}
}
