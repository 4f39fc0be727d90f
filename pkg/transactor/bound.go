package transactor

import (
	"context"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
)

// Bound pins a Transactor to a fixed per-call timeout, adapting its
// timeout-taking Get/Pend/Cancel/Commit methods to the fixed-arity shape
// pkg/chain.TrxStore expects, so a Chain commits through a
// NetworkTransactor exactly the way it commits through a bare *repo.Repo.
type Bound struct {
	tx      *Transactor
	timeout time.Duration
}

// Bind returns a Bound wrapping tx with timeout applied to every call.
func (tx *Transactor) Bind(timeout time.Duration) *Bound {
	return &Bound{tx: tx, timeout: timeout}
}

// Get delegates to the underlying Transactor with the bound timeout.
func (b *Bound) Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext) (map[block.BlockId]repo.GetResult, error) {
	return b.tx.Get(ctx, ids, gctx, b.timeout)
}

// Pend delegates to the underlying Transactor with the bound timeout.
func (b *Bound) Pend(ctx context.Context, req repo.PendRequest) (repo.PendResult, error) {
	return b.tx.Pend(ctx, PendRequest{TrxId: req.TrxId, Transforms: req.Transforms, Policy: req.Policy, Rev: req.Rev}, b.timeout)
}

// Cancel delegates to the underlying Transactor with the bound timeout.
func (b *Bound) Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId) error {
	b.tx.Cancel(ctx, trxId, ids, b.timeout)
	return nil
}

// Commit submits req as a single-group commit across req.BlockIds, every
// one of them sharing req.Rev, with req.TailId, when set, naming the
// batch's anchor for the Transactor's own tail-first peer orchestration.
//
// repo.CommitRequest carries only block ids, not transform content — a
// Repo applies whatever was already pended under TrxId, and
// Transactor.Commit only ever consults its own Transforms field to learn
// which ids it's responsible for routing (never their content), so a
// placeholder Transforms naming exactly req.BlockIds is all it needs.
func (b *Bound) Commit(ctx context.Context, req repo.CommitRequest) (repo.CommitResult, error) {
	tail := req.BlockIds[0]
	if req.TailId != nil {
		for _, id := range req.BlockIds {
			if id == *req.TailId {
				tail = id
				break
			}
		}
	}
	return b.tx.Commit(ctx, CommitRequest{
		TrxId:      req.TrxId,
		Rev:        req.Rev,
		Transforms: idsToTransforms(req.BlockIds),
		TailId:     tail,
		HeaderId:   req.HeaderId,
	}, b.timeout)
}

func idsToTransforms(ids []block.BlockId) block.Transforms {
	t := block.EmptyTransforms()
	for _, id := range ids {
		block.AddUpdate(t, id, block.BlockOperation{})
	}
	return t
}
