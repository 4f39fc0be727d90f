package chain

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
)

// Path is a cursor into a chain: which data block a position is in and
// the index of an entry within that block. The zero Path (BlockId=="")
// names a crack — the position before the first entry, or after the
// last — for which Valid reports false; Next/Prev starting from a crack
// step onto the first or last real entry.
type Path struct {
	HeaderId block.BlockId
	BlockId  block.BlockId
	Index    int
}

// Valid reports whether p names an actual entry rather than a crack.
func (p Path) Valid() bool { return p.BlockId != "" }

// Next steps p forward by one entry, crossing into the next data block
// via nextId once the current block is exhausted. Stepping past the last
// entry returns a crack (Valid()==false, no error).
func Next(ctx context.Context, ts TrxStore, p Path) (Path, error) {
	reader := newTrxReader(ts)
	if !p.Valid() {
		h, err := reader.TryGet(ctx, p.HeaderId)
		if err != nil {
			return Path{}, err
		}
		if h == nil {
			return Path{}, errMissingHeader(p.HeaderId)
		}
		headId, _ := h.Fields[fHeadID].(block.BlockId)
		return firstForward(ctx, reader, p.HeaderId, headId)
	}

	b, err := reader.TryGet(ctx, p.BlockId)
	if err != nil {
		return Path{}, err
	}
	if b == nil {
		return Path{}, errMissingBlock(p.BlockId)
	}
	entries := entriesOf(b, fData)
	if p.Index+1 < len(entries) {
		return Path{HeaderId: p.HeaderId, BlockId: p.BlockId, Index: p.Index + 1}, nil
	}
	nextId, _ := b.Fields[fNextID].(block.BlockId)
	if nextId == "" {
		return Path{HeaderId: p.HeaderId}, nil
	}
	return firstForward(ctx, reader, p.HeaderId, nextId)
}

// Prev steps p backward by one entry, crossing into the prior data block
// via priorId once the current block is exhausted. Stepping before the
// first entry returns a crack (Valid()==false, no error).
func Prev(ctx context.Context, ts TrxStore, p Path) (Path, error) {
	reader := newTrxReader(ts)
	if !p.Valid() {
		h, err := reader.TryGet(ctx, p.HeaderId)
		if err != nil {
			return Path{}, err
		}
		if h == nil {
			return Path{}, errMissingHeader(p.HeaderId)
		}
		tailId, _ := h.Fields[fTailID].(block.BlockId)
		return lastBackward(ctx, reader, p.HeaderId, tailId)
	}

	if p.Index > 0 {
		return Path{HeaderId: p.HeaderId, BlockId: p.BlockId, Index: p.Index - 1}, nil
	}
	b, err := reader.TryGet(ctx, p.BlockId)
	if err != nil {
		return Path{}, err
	}
	if b == nil {
		return Path{}, errMissingBlock(p.BlockId)
	}
	priorId, _ := b.Fields[fPriorID].(block.BlockId)
	if priorId == "" {
		return Path{HeaderId: p.HeaderId}, nil
	}
	return lastBackward(ctx, reader, p.HeaderId, priorId)
}

func firstForward(ctx context.Context, reader *trxReader, headerId, id block.BlockId) (Path, error) {
	for id != "" {
		b, err := reader.TryGet(ctx, id)
		if err != nil {
			return Path{}, err
		}
		if b == nil {
			return Path{}, errMissingBlock(id)
		}
		if entries := entriesOf(b, fData); len(entries) > 0 {
			return Path{HeaderId: headerId, BlockId: id, Index: 0}, nil
		}
		id, _ = b.Fields[fNextID].(block.BlockId)
	}
	return Path{HeaderId: headerId}, nil
}

func lastBackward(ctx context.Context, reader *trxReader, headerId, id block.BlockId) (Path, error) {
	for id != "" {
		b, err := reader.TryGet(ctx, id)
		if err != nil {
			return Path{}, err
		}
		if b == nil {
			return Path{}, errMissingBlock(id)
		}
		if entries := entriesOf(b, fData); len(entries) > 0 {
			return Path{HeaderId: headerId, BlockId: id, Index: len(entries) - 1}, nil
		}
		id, _ = b.Fields[fPriorID].(block.BlockId)
	}
	return Path{HeaderId: headerId}, nil
}

// Cursor is a pull-based, one-shot iterator over a chain's entries: each
// Next call does at most one store lookup, the sequence is finite, and it
// cannot be restarted once exhausted — call Chain.Select again for a
// fresh walk.
type Cursor struct {
	ts      TrxStore
	forward bool
	path    Path
	entry   any
	err     error
}

// Select returns a Cursor walking from start (or the chain's outer edge
// in the direction of travel, when start is nil) forward or backward one
// entry per Next call.
func (c *Chain) Select(ts TrxStore, start *Path, forward bool) *Cursor {
	p := Path{HeaderId: c.HeaderId}
	if start != nil {
		p = *start
	}
	return &Cursor{ts: ts, forward: forward, path: p}
}

// Next advances the cursor and reports whether it now sits on a valid
// entry; false means the walk is exhausted or Err is non-nil.
func (cur *Cursor) Next(ctx context.Context) bool {
	var p Path
	var err error
	if cur.forward {
		p, err = Next(ctx, cur.ts, cur.path)
	} else {
		p, err = Prev(ctx, cur.ts, cur.path)
	}
	if err != nil {
		cur.err = err
		return false
	}
	cur.path = p
	if !p.Valid() {
		return false
	}

	b, err := newTrxReader(cur.ts).TryGet(ctx, p.BlockId)
	if err != nil {
		cur.err = err
		return false
	}
	if b == nil {
		cur.err = errMissingBlock(p.BlockId)
		return false
	}
	entries := entriesOf(b, fData)
	if p.Index >= len(entries) {
		cur.err = errMissingBlock(p.BlockId)
		return false
	}
	cur.entry = entries[p.Index]
	return true
}

// Entry returns the entry the cursor currently sits on.
func (cur *Cursor) Entry() any { return cur.entry }

// Path returns the cursor's current position.
func (cur *Cursor) Path() Path { return cur.path }

// Err returns the error that stopped iteration, if any.
func (cur *Cursor) Err() error { return cur.err }

// IsEmpty reports whether the chain currently holds no entries.
func (c *Chain) IsEmpty(ctx context.Context, ts TrxStore) (bool, error) {
	cur := c.Select(ts, nil, true)
	ok := cur.Next(ctx)
	if cur.Err() != nil {
		return false, cur.Err()
	}
	return !ok, nil
}
