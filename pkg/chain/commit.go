package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/repo"
	"github.com/cuemby/blockmesh/pkg/store"
)

// TrxStore is the transactional surface a Chain operation stages its
// Atomic-buffered mutation through and commits as a single transaction.
// *repo.Repo satisfies it directly; pkg/transactor.Bound adapts a
// NetworkTransactor to the same shape for the networked case.
type TrxStore interface {
	Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext) (map[block.BlockId]repo.GetResult, error)
	Pend(ctx context.Context, req repo.PendRequest) (repo.PendResult, error)
	Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId) error
	Commit(ctx context.Context, req repo.CommitRequest) (repo.CommitResult, error)
}

// trxReader adapts a TrxStore's batch Get into the single-id TryGet shape
// store.Atomic needs to read through staged writes to committed state.
type trxReader struct {
	ts TrxStore
}

func newTrxReader(ts TrxStore) *trxReader { return &trxReader{ts: ts} }

func (r *trxReader) TryGet(ctx context.Context, id block.BlockId) (*block.Block, error) {
	res, err := r.ts.Get(ctx, []block.BlockId{id}, repo.GetContext{})
	if err != nil {
		return nil, err
	}
	return res[id].Block, nil
}

var _ store.ReadStore = (*trxReader)(nil)

// ErrCommitRejected is returned when a staged chain mutation could not be
// committed because a block it touched had moved past the revision the
// Atomic's reads were based on. The chain is left unchanged; the caller
// should re-read and retry.
var ErrCommitRejected = errors.New("chain: commit rejected")

// commitAtomic pends and commits everything staged in a as one logical
// operation. A single Commit call requires every block it names to share
// one target revision, so the touched ids are grouped by their own
// currently-observed next revision and committed one group per call.
//
// The anchor group commits first: freshly inserted blocks, or headerId
// whenever anything is being deleted, or fallbackAnchor when the
// transaction neither inserts nor deletes (a plain in-place splice). This
// ordering means a reader can never follow a pointer to a block that
// isn't durable yet, and never follow a stale pointer to a block that has
// already been deleted. Every other group commits after, best-effort; its
// failure is a recovery obligation, not a transaction failure, mirroring
// transactor.Transactor.Commit's own tail-first contract.
func commitAtomic(ctx context.Context, ts TrxStore, a *store.Atomic, headerId, fallbackAnchor block.BlockId) error {
	transforms := a.Commit()
	ids := block.BlockIdsForTransforms(transforms)
	if len(ids) == 0 {
		return nil
	}

	current, err := ts.Get(ctx, ids, repo.GetContext{})
	if err != nil {
		return err
	}

	groups := make(map[block.Revision][]block.BlockId, len(ids))
	maxRev := block.Revision(0)
	for _, id := range ids {
		rev := current[id].Latest + 1
		groups[rev] = append(groups[rev], id)
		if current[id].Latest > maxRev {
			maxRev = current[id].Latest
		}
	}

	anchors := map[block.BlockId]bool{}
	for id := range transforms.Inserts {
		anchors[id] = true
	}
	if len(transforms.Deletes) > 0 {
		anchors[headerId] = true
	}
	if len(anchors) == 0 {
		anchors[fallbackAnchor] = true
	}
	anchorRevs := map[block.Revision]bool{}
	for id := range anchors {
		anchorRevs[current[id].Latest+1] = true
	}

	trxId := repo.NewTrxId()
	pendRev := maxRev
	pendResult, err := ts.Pend(ctx, repo.PendRequest{
		TrxId:      trxId,
		Transforms: transforms,
		Policy:     repo.PolicyContinue,
		Rev:        &pendRev,
	})
	if err != nil {
		return err
	}
	if !pendResult.Success {
		return fmt.Errorf("%w: pend saw %d missing and %d pending", ErrCommitRejected, len(pendResult.Missing), len(pendResult.Pending))
	}

	var anchorId block.BlockId
	for id := range anchors {
		anchorId = id
		break
	}

	committed := make(map[block.Revision]bool, len(groups))
	for rev := range anchorRevs {
		group := groups[rev]
		if len(group) == 0 {
			continue
		}
		res, err := ts.Commit(ctx, repo.CommitRequest{TrxId: trxId, Rev: rev, BlockIds: group, TailId: &anchorId})
		committed[rev] = true
		if err != nil {
			_ = ts.Cancel(ctx, trxId, ids)
			return err
		}
		if !res.Success {
			_ = ts.Cancel(ctx, trxId, ids)
			return fmt.Errorf("%w: %s", ErrCommitRejected, res.Reason)
		}
	}

	for rev, group := range groups {
		if committed[rev] {
			continue
		}
		_, _ = ts.Commit(ctx, repo.CommitRequest{TrxId: trxId, Rev: rev, BlockIds: group, TailId: &anchorId})
	}
	return nil
}
