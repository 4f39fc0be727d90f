package store

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
)

// ReadStore is the read-only subset of BlockStore an Atomic superimposes
// staged writes on top of.
type ReadStore interface {
	TryGet(ctx context.Context, id block.BlockId) (*block.Block, error)
}

// Atomic pairs a Tracker with an underlying ReadStore so that reads during
// a transaction see the caller's own uncommitted writes layered over
// whatever is already materialized, without ever mutating the underlying
// store. Committing an Atomic only produces a Transforms value for the
// caller to pend/commit through a Repo or NetworkTransactor; Atomic itself
// never reaches the network.
type Atomic struct {
	underlying ReadStore
	tracker    *Tracker
}

// NewAtomic returns an Atomic reading through to underlying and staging
// writes for collectionID.
func NewAtomic(underlying ReadStore, genId IdGenerator, collectionID block.CollectionId) *Atomic {
	return &Atomic{underlying: underlying, tracker: NewTracker(genId, collectionID)}
}

func (a *Atomic) CreateBlockHeader(t block.BlockType, id *block.BlockId) block.BlockId {
	return a.tracker.CreateBlockHeader(t, id)
}

func (a *Atomic) GenerateId() block.BlockId {
	return a.tracker.GenerateId()
}

func (a *Atomic) TryGet(ctx context.Context, id block.BlockId) (*block.Block, error) {
	if _, deleted := a.tracker.staged.Deletes[id]; deleted {
		return nil, nil
	}
	if ins, ok := a.tracker.staged.Inserts[id]; ok {
		cur := ins.Clone()
		for _, op := range a.tracker.staged.Updates[id] {
			if err := block.ApplyOperation(cur, op); err != nil {
				return nil, err
			}
		}
		return cur, nil
	}

	base, err := a.underlying.TryGet(ctx, id)
	if err != nil || base == nil {
		return base, err
	}
	ops, ok := a.tracker.staged.Updates[id]
	if !ok {
		return base, nil
	}
	cur := base.Clone()
	for _, op := range ops {
		if err := block.ApplyOperation(cur, op); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (a *Atomic) Insert(b *block.Block) error {
	return a.tracker.Insert(b)
}

func (a *Atomic) Update(id block.BlockId, op block.BlockOperation) error {
	return a.tracker.Update(id, op)
}

func (a *Atomic) Delete(id block.BlockId) error {
	return a.tracker.Delete(id)
}

// Commit returns everything staged so far as a single Transforms value,
// ready to be pended and committed by the caller. It does not clear the
// staging buffer; call Reset afterward if the Atomic will be reused.
func (a *Atomic) Commit() block.Transforms {
	return a.tracker.Staged()
}

// Reset discards all staged writes.
func (a *Atomic) Reset() {
	a.tracker.Reset()
}

// CollectionID returns the collection this Atomic stages blocks for.
func (a *Atomic) CollectionID() block.CollectionId {
	return a.tracker.CollectionID()
}
