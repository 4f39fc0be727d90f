// Package transactor implements NetworkTransactor: the coordinator that
// batches a caller's get/pend/cancel/commit across whichever peers
// currently own each block, retries transport failures against a fresh
// coordinator, and reconciles stale/transport outcomes according to a fixed
// precedence: stale beats transport error, transport error beats a pending
// conflict. Nothing here replicates or serializes block state itself — that is
// pkg/repo's job on whichever peer ends up coordinating a given block.
package transactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/metrics"
	"github.com/cuemby/blockmesh/pkg/repo"
	"github.com/rs/zerolog"
)

var (
	// ErrTransport is returned when a batch of blocks could not be reached
	// on any non-excluded peer before the caller's expiration.
	ErrTransport = errors.New("transactor: transport failure")
	// ErrCancelled marks a transaction the transactor itself gave up on
	// and best-effort cancelled; it is not a failure of the underlying
	// repos, just a boundary the caller should treat as "did not happen".
	ErrCancelled = errors.New("transactor: cancelled")
)

// PeerID identifies a coordinating peer. Kept as its own type (rather than
// importing keynet.PeerID) so this package has no dependency on how
// membership is discovered.
type PeerID string

// KeyNetwork is the routing oracle a Transactor consults. keynet.Router
// has the same method shape over keynet.PeerID, not this package's PeerID,
// so it does not satisfy this interface without an adapter.
type KeyNetwork interface {
	FindCoordinator(ctx context.Context, key []byte, excluded map[PeerID]struct{}) (PeerID, error)
}

// RepoRPC is the per-peer surface a Transactor calls, matching pkg/repo's
// own method shapes so a local, in-process Repo and a remote pkg/rpc
// client are interchangeable.
type RepoRPC interface {
	Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext) (map[block.BlockId]repo.GetResult, error)
	Pend(ctx context.Context, req repo.PendRequest) (repo.PendResult, error)
	Cancel(ctx context.Context, trxId block.TrxId, ids []block.BlockId) error
	Commit(ctx context.Context, req repo.CommitRequest) (repo.CommitResult, error)
}

// RepoFor resolves a peer id to a callable RepoRPC, typically backed by a
// pool of pkg/rpc clients (or, for the local peer, the in-process Repo
// directly).
type RepoFor func(peer PeerID) (RepoRPC, error)

// Transactor is a NetworkTransactor.
type Transactor struct {
	keynet  KeyNetwork
	repoFor RepoFor
	logger  zerolog.Logger
}

// New returns a Transactor routing through keynet and dialing peers via
// repoFor.
func New(keynet KeyNetwork, repoFor RepoFor, logger zerolog.Logger) *Transactor {
	return &Transactor{keynet: keynet, repoFor: repoFor, logger: logger}
}

func hashable(id block.BlockId) []byte {
	return []byte(id)
}

// idExclusion tracks, per block id, which peers have already failed a
// batch containing that id — so a retry round never re-routes a block to
// a peer that just failed it, satisfying testable property #8.
type idExclusion struct {
	mu sync.Mutex
	m  map[block.BlockId]map[PeerID]struct{}
}

func newIDExclusion() *idExclusion {
	return &idExclusion{m: make(map[block.BlockId]map[PeerID]struct{})}
}

func (e *idExclusion) excludedFor(id block.BlockId) map[PeerID]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.m[id]
	if src == nil {
		return nil
	}
	out := make(map[PeerID]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

func (e *idExclusion) add(ids []block.BlockId, peer PeerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if e.m[id] == nil {
			e.m[id] = make(map[PeerID]struct{})
		}
		e.m[id][peer] = struct{}{}
	}
}

// runBatched groups pending ids by coordinator, calls `call` once per
// group concurrently, and retries any group whose call returns a non-nil
// error (a transport failure) against freshly-excluded coordinators until
// every id succeeds or expiration passes. It returns, for every id, every
// peer ever attempted (used for best-effort cancellation).
func (tx *Transactor) runBatched(
	ctx context.Context,
	ids []block.BlockId,
	expiration time.Time,
	call func(ctx context.Context, peer PeerID, ids []block.BlockId) error,
) (map[block.BlockId][]PeerID, error) {
	excl := newIDExclusion()
	attempted := make(map[block.BlockId][]PeerID)
	pending := ids

	for {
		groups := make(map[PeerID][]block.BlockId)
		for _, id := range pending {
			timer := metrics.NewTimer()
			peer, err := tx.keynet.FindCoordinator(ctx, hashable(id), excl.excludedFor(id))
			timer.ObserveDuration(metrics.CoordinatorLookupDuration)
			if err != nil {
				return attempted, fmt.Errorf("find coordinator for %s: %w", id, err)
			}
			groups[peer] = append(groups[peer], id)
			attempted[id] = append(attempted[id], peer)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var retry []block.BlockId
		var lastErr error

		for peer, peerIDs := range groups {
			wg.Add(1)
			go func(peer PeerID, peerIDs []block.BlockId) {
				defer wg.Done()
				if err := call(ctx, peer, peerIDs); err != nil {
					mu.Lock()
					retry = append(retry, peerIDs...)
					lastErr = err
					mu.Unlock()
					excl.add(peerIDs, peer)
				}
			}(peer, peerIDs)
		}
		wg.Wait()

		if len(retry) == 0 {
			return attempted, nil
		}
		if !time.Now().Before(expiration) {
			return attempted, fmt.Errorf("%w: %d block(s) unreachable: %v", ErrTransport, len(retry), lastErr)
		}
		metrics.BatchRetriesTotal.Inc()
		pending = retry
	}
}

func (tx *Transactor) bestEffortCancel(attempted map[block.BlockId][]PeerID, trxId block.TrxId) {
	byPeer := make(map[PeerID][]block.BlockId)
	for id, peers := range attempted {
		for _, p := range peers {
			byPeer[p] = append(byPeer[p], id)
		}
	}
	for peer, ids := range byPeer {
		r, err := tx.repoFor(peer)
		if err != nil {
			continue
		}
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metrics.CancelsTotal.Inc()
		if err := r.Cancel(cctx, trxId, ids); err != nil {
			tx.logger.Warn().Err(err).Str("peer", string(peer)).Msg("best-effort cancel failed")
		}
		cancel()
	}
}

// Get fans ids out across their coordinators and merges the results.
func (tx *Transactor) Get(ctx context.Context, ids []block.BlockId, gctx repo.GetContext, timeout time.Duration) (map[block.BlockId]repo.GetResult, error) {
	expiration := time.Now().Add(timeout)
	results := make(map[block.BlockId]repo.GetResult, len(ids))
	var mu sync.Mutex

	_, err := tx.runBatched(ctx, ids, expiration, func(ctx context.Context, peer PeerID, peerIDs []block.BlockId) error {
		r, err := tx.repoFor(peer)
		if err != nil {
			return err
		}
		res, err := r.Get(ctx, peerIDs, gctx)
		if err != nil {
			return err
		}
		mu.Lock()
		for id, gr := range res {
			results[id] = gr
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
