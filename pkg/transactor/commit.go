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

// CommitRequest is a transaction's Commit call. TailId names the block
// whose commit makes the whole transaction durable; on a
// first-time chain creation HeaderId additionally names a block that must
// land before the tail.
type CommitRequest struct {
	TrxId      block.TrxId
	Rev        block.Revision
	Transforms block.Transforms
	TailId     block.BlockId
	HeaderId   *block.BlockId
}

// commitGroup runs one reconciled commit call across ids, sharing the
// stale/transport precedence rule Pend uses.
func (tx *Transactor) commitGroup(ctx context.Context, req CommitRequest, ids []block.BlockId, expiration time.Time) (repo.CommitResult, map[block.BlockId][]PeerID, error) {
	var mu sync.Mutex
	missingByTrx := map[block.TrxId]repo.TrxTransform{}
	var staleSeen bool
	var reason string

	attempted, rerr := tx.runBatched(ctx, ids, expiration, func(ctx context.Context, peer PeerID, peerIDs []block.BlockId) error {
		r, err := tx.repoFor(peer)
		if err != nil {
			return err
		}
		res, err := r.Commit(ctx, repo.CommitRequest{
			TrxId:    req.TrxId,
			Rev:      req.Rev,
			BlockIds: peerIDs,
			TailId:   &req.TailId,
			HeaderId: req.HeaderId,
		})
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if res.Success {
			return nil
		}
		if len(res.Missing) > 0 {
			staleSeen = true
			for _, mt := range res.Missing {
				missingByTrx[mt.TrxId] = mt
			}
			if reason == "" {
				reason = res.Reason
			}
			return nil
		}
		return fmt.Errorf("commit rejected on peer %s: %s", peer, res.Reason)
	})

	if staleSeen {
		missing := make([]repo.TrxTransform, 0, len(missingByTrx))
		for _, m := range missingByTrx {
			missing = append(missing, m)
		}
		return repo.CommitResult{Success: false, Missing: missing, Reason: reason}, attempted, nil
	}
	if rerr != nil {
		return repo.CommitResult{}, attempted, rerr
	}
	return repo.CommitResult{Success: true}, attempted, nil
}

// Commit implements the commit ordering rule: for a first-time chain
// creation the header block commits first, then the tail block commits on
// its own; once the tail lands the transaction is durable, and any
// failure committing the remaining blocks afterward is a recovery
// obligation logged for a background sweep, not a transaction failure.
func (tx *Transactor) Commit(ctx context.Context, req CommitRequest, timeout time.Duration) (repo.CommitResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	allIDs := block.BlockIdsForTransforms(req.Transforms)
	expiration := time.Now().Add(timeout)

	first := []block.BlockId{req.TailId}
	if req.HeaderId != nil && *req.HeaderId != req.TailId {
		first = []block.BlockId{*req.HeaderId, req.TailId}
	}

	attempted := map[block.BlockId][]PeerID{}
	for _, id := range first {
		res, att, err := tx.commitGroup(ctx, req, []block.BlockId{id}, expiration)
		for k, v := range att {
			attempted[k] = v
		}
		if err != nil {
			go tx.bestEffortCancel(attempted, req.TrxId)
			return repo.CommitResult{}, err
		}
		if !res.Success {
			go tx.bestEffortCancel(attempted, req.TrxId)
			return res, nil
		}
	}

	remaining := subtractIDs(allIDs, first)
	if len(remaining) == 0 {
		return repo.CommitResult{Success: true}, nil
	}

	remResult, _, err := tx.commitGroup(ctx, req, remaining, expiration)
	if err != nil {
		metrics.RecoverySweepsNeededTotal.Inc()
		tx.logger.Warn().Err(err).Str("trx", string(req.TrxId)).Msg("commit of non-tail blocks failed after tail commit landed; recovery sweep needed")
		return repo.CommitResult{Success: true}, nil
	}
	if !remResult.Success {
		metrics.RecoverySweepsNeededTotal.Inc()
		tx.logger.Warn().Str("trx", string(req.TrxId)).Str("reason", remResult.Reason).Msg("non-tail commit reported non-success after tail commit landed; recovery sweep needed")
	}
	return repo.CommitResult{Success: true}, nil
}

func subtractIDs(all, remove []block.BlockId) []block.BlockId {
	skip := make(map[block.BlockId]struct{}, len(remove))
	for _, id := range remove {
		skip[id] = struct{}{}
	}
	out := make([]block.BlockId, 0, len(all))
	for _, id := range all {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
