package transactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/metrics"
	"github.com/cuemby/blockmesh/pkg/repo"
)

// subTransforms extracts the subset of t's transforms that touch only ids,
// used when splitting one logical Transforms across several coordinators.
func subTransforms(t block.Transforms, ids []block.BlockId) block.Transforms {
	out := block.EmptyTransforms()
	for _, id := range ids {
		tr := block.TransformForBlockId(t, id)
		if tr.Insert != nil {
			block.AddInsert(out, tr.Insert)
		}
		for _, op := range tr.Updates {
			block.AddUpdate(out, id, op)
		}
		if tr.Delete {
			block.AddDelete(out, id)
		}
	}
	return out
}

// PendRequest is a transaction's Pend call across however many peers end
// up coordinating its blocks.
type PendRequest struct {
	TrxId      block.TrxId
	Transforms block.Transforms
	Policy     repo.PendPolicy
	Rev        *block.Revision
}

// Pend implements the pend batching/reconciliation rule: if any
// batch reports a stale failure, that takes precedence over everything
// else (and the whole transaction is best-effort cancelled across every
// peer it ever touched); only if there is no stale failure does an
// exhausted transport retry surface as an error; otherwise the aggregated
// pending-conflict or success result is returned.
func (tx *Transactor) Pend(ctx context.Context, req PendRequest, timeout time.Duration) (repo.PendResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PendDuration)

	ids := block.BlockIdsForTransforms(req.Transforms)
	expiration := time.Now().Add(timeout)

	var mu sync.Mutex
	missingByTrx := map[block.TrxId]repo.TrxTransform{}
	var pendingRefs []repo.PendingRef
	var staleSeen, pendingConflictSeen bool

	attempted, rerr := tx.runBatched(ctx, ids, expiration, func(ctx context.Context, peer PeerID, peerIDs []block.BlockId) error {
		r, err := tx.repoFor(peer)
		if err != nil {
			return err
		}
		sub := subTransforms(req.Transforms, peerIDs)
		res, err := r.Pend(ctx, repo.PendRequest{TrxId: req.TrxId, Transforms: sub, Policy: req.Policy, Rev: req.Rev})
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case res.Success:
		case len(res.Missing) > 0:
			staleSeen = true
			for _, mt := range res.Missing {
				missingByTrx[mt.TrxId] = mt
			}
		case len(res.Pending) > 0:
			pendingConflictSeen = true
			pendingRefs = append(pendingRefs, res.Pending...)
		default:
			return fmt.Errorf("pend rejected for an unrecognized reason on peer %s", peer)
		}
		return nil
	})

	if staleSeen {
		go tx.bestEffortCancel(attempted, req.TrxId)
		missing := make([]repo.TrxTransform, 0, len(missingByTrx))
		for _, m := range missingByTrx {
			missing = append(missing, m)
		}
		return repo.PendResult{Success: false, Missing: missing}, nil
	}
	if rerr != nil {
		return repo.PendResult{}, rerr
	}
	if pendingConflictSeen {
		return repo.PendResult{Success: false, Pending: pendingRefs}, nil
	}
	return repo.PendResult{Success: true}, nil
}

// Cancel best-effort cancels trxId across whichever peers coordinate ids.
// Individual peer failures are logged, not propagated: cancellation is
// always advisory.
func (tx *Transactor) Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId, timeout time.Duration) {
	expiration := time.Now().Add(timeout)
	_, err := tx.runBatched(ctx, ids, expiration, func(ctx context.Context, peer PeerID, peerIDs []block.BlockId) error {
		r, err := tx.repoFor(peer)
		if err != nil {
			return err
		}
		return r.Cancel(ctx, trxId, peerIDs)
	})
	if err != nil {
		tx.logger.Warn().Err(err).Str("trx", string(trxId)).Msg("cancel failed")
	}
}
