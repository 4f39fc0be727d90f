package chain

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/store"
)

// Add appends entries to the tail, allocating a new data block once the
// current tail reaches EntriesPerBlock. Every insert and update this call
// needs, however many entries or block allocations it takes, is staged in
// one Atomic and committed as a single transaction.
func (c *Chain) Add(ctx context.Context, ts TrxStore, entries ...any) error {
	if len(entries) == 0 {
		return nil
	}
	reader := newTrxReader(ts)
	a := store.NewAtomic(reader, store.DefaultIdGenerator(), "")

	h, err := a.TryGet(ctx, c.HeaderId)
	if err != nil {
		return err
	}
	if h == nil {
		return errMissingHeader(c.HeaderId)
	}
	tailId, _ := h.Fields[fTailID].(block.BlockId)

	for _, entry := range entries {
		tail, err := a.TryGet(ctx, tailId)
		if err != nil {
			return err
		}
		if tail == nil {
			return errMissingBlock(tailId)
		}
		tailEntries := entriesOf(tail, fData)
		if len(tailEntries) < EntriesPerBlock {
			if err := a.Update(tailId, block.BlockOperation{
				Field:    fData,
				Offset:   len(tailEntries),
				Inserted: []any{entry},
			}); err != nil {
				return err
			}
			continue
		}

		newId := a.CreateBlockHeader(DataType, nil)
		nb := &block.Block{
			Id:   newId,
			Type: DataType,
			Fields: block.Fields{
				fPriorID: tailId,
				fNextID:  block.BlockId(""),
				fData:    []any{entry},
			},
		}
		if err := a.Insert(nb); err != nil {
			return err
		}
		if err := a.Update(tailId, block.BlockOperation{Field: fNextID, Inserted: []any{newId}}); err != nil {
			return err
		}
		if err := a.Update(c.HeaderId, block.BlockOperation{Field: fTailID, Inserted: []any{newId}}); err != nil {
			return err
		}
		tailId = newId
	}

	return commitAtomic(ctx, ts, a, c.HeaderId, tailId)
}

// Pop removes up to n entries from the tail (LIFO) and returns them in
// the order they were popped — most-recently-added first. Draining a
// block entirely chains a delete for it and a nextId clear on the block
// that becomes the new tail; the header's tailId is rewritten when the
// tail changes.
func (c *Chain) Pop(ctx context.Context, ts TrxStore, n int) ([]any, error) {
	if n <= 0 {
		return nil, nil
	}
	reader := newTrxReader(ts)
	a := store.NewAtomic(reader, store.DefaultIdGenerator(), "")

	h, err := a.TryGet(ctx, c.HeaderId)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errMissingHeader(c.HeaderId)
	}
	tailId, _ := h.Fields[fTailID].(block.BlockId)

	var out []any
	for {
		tail, err := a.TryGet(ctx, tailId)
		if err != nil {
			return nil, err
		}
		if tail == nil {
			return nil, errMissingBlock(tailId)
		}
		entries := entriesOf(tail, fData)
		if len(entries) > 0 {
			if len(out) >= n {
				break
			}
			out = append(out, entries[len(entries)-1])
			if err := a.Update(tailId, block.BlockOperation{
				Field:       fData,
				Offset:      len(entries) - 1,
				DeleteCount: 1,
			}); err != nil {
				return nil, err
			}
			continue
		}

		priorId, _ := tail.Fields[fPriorID].(block.BlockId)
		if priorId == "" {
			break
		}
		if err := a.Delete(tailId); err != nil {
			return nil, err
		}
		if err := a.Update(priorId, block.BlockOperation{Field: fNextID, Inserted: []any{block.BlockId("")}}); err != nil {
			return nil, err
		}
		if err := a.Update(c.HeaderId, block.BlockOperation{Field: fTailID, Inserted: []any{priorId}}); err != nil {
			return nil, err
		}
		tailId = priorId
	}

	if len(out) == 0 {
		return nil, nil
	}
	if err := commitAtomic(ctx, ts, a, c.HeaderId, tailId); err != nil {
		return nil, err
	}
	return out, nil
}

// Dequeue removes up to n entries from the head (FIFO) and returns them
// in the order they were removed — oldest first. Draining a block
// entirely chains a delete for it and a priorId clear on the block that
// becomes the new head; the header's headId is rewritten when the head
// changes.
func (c *Chain) Dequeue(ctx context.Context, ts TrxStore, n int) ([]any, error) {
	if n <= 0 {
		return nil, nil
	}
	reader := newTrxReader(ts)
	a := store.NewAtomic(reader, store.DefaultIdGenerator(), "")

	h, err := a.TryGet(ctx, c.HeaderId)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errMissingHeader(c.HeaderId)
	}
	headId, _ := h.Fields[fHeadID].(block.BlockId)

	var out []any
	for {
		head, err := a.TryGet(ctx, headId)
		if err != nil {
			return nil, err
		}
		if head == nil {
			return nil, errMissingBlock(headId)
		}
		entries := entriesOf(head, fData)
		if len(entries) > 0 {
			if len(out) >= n {
				break
			}
			out = append(out, entries[0])
			if err := a.Update(headId, block.BlockOperation{
				Field:       fData,
				Offset:      0,
				DeleteCount: 1,
			}); err != nil {
				return nil, err
			}
			continue
		}

		nextId, _ := head.Fields[fNextID].(block.BlockId)
		if nextId == "" {
			break
		}
		if err := a.Delete(headId); err != nil {
			return nil, err
		}
		if err := a.Update(nextId, block.BlockOperation{Field: fPriorID, Inserted: []any{block.BlockId("")}}); err != nil {
			return nil, err
		}
		if err := a.Update(c.HeaderId, block.BlockOperation{Field: fHeadID, Inserted: []any{nextId}}); err != nil {
			return nil, err
		}
		headId = nextId
	}

	if len(out) == 0 {
		return nil, nil
	}
	if err := commitAtomic(ctx, ts, a, c.HeaderId, headId); err != nil {
		return nil, err
	}
	return out, nil
}
