// Package diary is a thin, no-delete ordered collection built directly on
// pkg/chain: entries can only ever be appended and read back in order,
// never removed or reordered, which is exactly pkg/chain's Add/Select
// pair with Pop/Dequeue left unused.
package diary

import (
	"context"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/chain"
)

// Diary is an append-only, order-preserving log of arbitrary entries.
type Diary struct {
	chain *chain.Chain
}

// Create stages a brand-new, empty diary.
func Create(ctx context.Context, ts chain.TrxStore) (*Diary, error) {
	c, err := chain.Create(ctx, ts)
	if err != nil {
		return nil, err
	}
	return &Diary{chain: c}, nil
}

// Open attaches to an existing diary by its chain header id.
func Open(ctx context.Context, ts chain.TrxStore, headerId block.BlockId) (*Diary, error) {
	c, err := chain.Open(ctx, ts, headerId)
	if err != nil {
		return nil, err
	}
	return &Diary{chain: c}, nil
}

// HeaderId exposes the chain's header id so callers can persist and later
// Open the same diary.
func (d *Diary) HeaderId() block.BlockId { return d.chain.HeaderId }

// Add appends entry. There is deliberately no Remove: diary semantics
// forbid deleting or editing a past entry.
func (d *Diary) Add(ctx context.Context, ts chain.TrxStore, entry any) error {
	return d.chain.Add(ctx, ts, entry)
}

// Entries returns every entry from oldest to newest.
func (d *Diary) Entries(ctx context.Context, ts chain.TrxStore) ([]any, error) {
	cur := d.chain.Select(ts, nil, true)
	var out []any
	for cur.Next(ctx) {
		out = append(out, cur.Entry())
	}
	return out, cur.Err()
}

// IsEmpty reports whether the diary holds no entries.
func (d *Diary) IsEmpty(ctx context.Context, ts chain.TrxStore) (bool, error) {
	return d.chain.IsEmpty(ctx, ts)
}
