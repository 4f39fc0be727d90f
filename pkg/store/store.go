// Package store defines the BlockStore contract shared by every layer that
// reads and writes blocks, plus Tracker and Atomic: in-memory helpers that
// stage a set of block mutations into a single Transforms value before
// anything is pended or committed.
package store

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
)

// BlockStore is the minimal read/stage surface every layer above it
// (Chain, Repo callers, compaction tooling) programs against: one verb
// per concern, over block ids and Transform-shaped mutations rather than
// typed CRUD entities.
type BlockStore interface {
	// CreateBlockHeader allocates a header describing a new block of the
	// given type. If id is nil a fresh id is generated.
	CreateBlockHeader(t block.BlockType, id *block.BlockId) block.BlockId

	// GenerateId returns a fresh, collision-free block id.
	GenerateId() block.BlockId

	// TryGet returns the block if present, or (nil, nil) if absent.
	TryGet(ctx context.Context, id block.BlockId) (*block.Block, error)

	// Insert stages (or, for a fully synchronous store, performs) the
	// creation of b.
	Insert(b *block.Block) error

	// Update stages a single field operation against id.
	Update(id block.BlockId, op block.BlockOperation) error

	// Delete stages the removal of id.
	Delete(id block.BlockId) error
}
