package repo

import (
	"context"
	"testing"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTransforms(id block.BlockId, fields block.Fields) block.Transforms {
	t := block.EmptyTransforms()
	block.AddInsert(t, &block.Block{Id: id, Fields: fields})
	return t
}

func TestRepoInsertPendCommit(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	ctx := context.Background()
	trx := NewTrxId()

	pr, err := r.Pend(ctx, PendRequest{TrxId: trx, Transforms: insertTransforms("b1", block.Fields{"n": 1}), Policy: PolicyContinue})
	require.NoError(t, err)
	require.True(t, pr.Success)

	cr, err := r.Commit(ctx, CommitRequest{TrxId: trx, Rev: 1, BlockIds: []block.BlockId{"b1"}})
	require.NoError(t, err)
	require.True(t, cr.Success)

	got, err := r.Get(ctx, []block.BlockId{"b1"}, GetContext{})
	require.NoError(t, err)
	assert.Equal(t, block.Revision(1), got["b1"].Latest)
	assert.Equal(t, 1, got["b1"].Block.Fields["n"])
}

func TestRepoCommitStaleReturnsMissing(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	ctx := context.Background()

	trx1 := NewTrxId()
	_, err := r.Pend(ctx, PendRequest{TrxId: trx1, Transforms: insertTransforms("b1", block.Fields{"n": 1}), Policy: PolicyContinue})
	require.NoError(t, err)

	// A second trx pends against the rev-0 view before trx1 commits, then
	// tries to commit at rev 1 as well, colliding with trx1's already-landed
	// rev 1.
	trx2 := NewTrxId()
	upd := block.EmptyTransforms()
	block.AddUpdate(upd, "b1", block.BlockOperation{Field: "n", Inserted: []any{2}})
	rev0 := block.Revision(0)
	pr, err := r.Pend(ctx, PendRequest{TrxId: trx2, Transforms: upd, Policy: PolicyContinue, Rev: &rev0})
	require.NoError(t, err)
	assert.True(t, pr.Success) // rev0 still matches latestRev at pend time

	_, err = r.Commit(ctx, CommitRequest{TrxId: trx1, Rev: 1, BlockIds: []block.BlockId{"b1"}})
	require.NoError(t, err)

	cr, err := r.Commit(ctx, CommitRequest{TrxId: trx2, Rev: 1, BlockIds: []block.BlockId{"b1"}})
	require.NoError(t, err)
	assert.False(t, cr.Success)
	require.Len(t, cr.Missing, 1)
	assert.Equal(t, block.Revision(1), cr.Missing[0].Rev)
	assert.Equal(t, trx1, cr.Missing[0].TrxId)
}

func TestRepoPendFailOnPendingPolicy(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	ctx := context.Background()

	trx1 := NewTrxId()
	_, err := r.Pend(ctx, PendRequest{TrxId: trx1, Transforms: insertTransforms("b1", block.Fields{}), Policy: PolicyContinue})
	require.NoError(t, err)

	trx2 := NewTrxId()
	upd := block.EmptyTransforms()
	block.AddUpdate(upd, "b1", block.BlockOperation{Field: "n"})
	// b1 has no "n" field yet since it was never committed with one, but
	// we only care about the pending-conflict path here, not apply-time
	// validation (that happens at commit).
	pr, err := r.Pend(ctx, PendRequest{TrxId: trx2, Transforms: upd, Policy: PolicyFailOnPending})
	require.NoError(t, err)
	assert.False(t, pr.Success)
	require.Len(t, pr.Pending, 1)
	assert.Equal(t, trx1, pr.Pending[0].TrxId)
}

func TestRepoCancelIsIdempotent(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	ctx := context.Background()
	trx := NewTrxId()

	assert.NoError(t, r.Cancel(ctx, trx, []block.BlockId{"never-pended"}))

	_, err := r.Pend(ctx, PendRequest{TrxId: trx, Transforms: insertTransforms("b1", block.Fields{}), Policy: PolicyContinue})
	require.NoError(t, err)
	require.NoError(t, r.Cancel(ctx, trx, []block.BlockId{"b1"}))
	require.NoError(t, r.Cancel(ctx, trx, []block.BlockId{"b1"})) // second cancel is a no-op

	cr, err := r.Commit(ctx, CommitRequest{TrxId: trx, Rev: 1, BlockIds: []block.BlockId{"b1"}})
	require.NoError(t, err)
	assert.False(t, cr.Success)
	assert.NotEmpty(t, cr.Reason)
}

func TestRepoInsertOverExistingBlockIsReportedAsMissing(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	ctx := context.Background()
	trx1 := NewTrxId()
	_, err := r.Pend(ctx, PendRequest{TrxId: trx1, Transforms: insertTransforms("b1", block.Fields{}), Policy: PolicyContinue})
	require.NoError(t, err)
	_, err = r.Commit(ctx, CommitRequest{TrxId: trx1, Rev: 1, BlockIds: []block.BlockId{"b1"}})
	require.NoError(t, err)

	trx2 := NewTrxId()
	pr, err := r.Pend(ctx, PendRequest{TrxId: trx2, Transforms: insertTransforms("b1", block.Fields{}), Policy: PolicyContinue})
	require.NoError(t, err)
	assert.False(t, pr.Success)
	require.NotEmpty(t, pr.Missing)
}
