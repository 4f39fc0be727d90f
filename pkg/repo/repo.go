// Package repo implements the per-block Repo state machine: materialized
// revisions, pending and committed transactions, and the get/pend/cancel/
// commit operations a NetworkTransactor batches across peers. Unlike the
// teacher's manager.Apply, which serializes every state change through a
// single Raft-replicated finite state machine, each block here is its own
// independent state machine guarded by its own lock — there is no global
// ordering across blocks, by design.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sentinel errors returned by Repo operations.
var (
	ErrStale     = errors.New("repo: stale")
	ErrConflict  = errors.New("repo: conflict")
	ErrCancelled = errors.New("repo: cancelled")
	ErrUnknown   = errors.New("repo: unknown trx or block")
)

// PendPolicy controls how Pend treats another pending TrxId already staged
// on a block it touches.
type PendPolicy byte

const (
	// PolicyContinue ('c'): record this pending trx alongside any other,
	// succeed regardless of other pending activity.
	PolicyContinue PendPolicy = 'c'
	// PolicyFailOnPending ('f'): fail if any other TrxId is pending on a
	// touched block.
	PolicyFailOnPending PendPolicy = 'f'
	// PolicyReturnPending ('r'): stage this trx anyway, but report the
	// other pending TrxIds back with Success false so the caller can decide
	// what to do.
	PolicyReturnPending PendPolicy = 'r'
	// PolicyWait ('w'): on a single node there is nothing to wait on, so
	// this behaves like PolicyContinue.
	PolicyWait PendPolicy = 'w'
)

// NewTrxId mints a fresh TrxId.
func NewTrxId() block.TrxId {
	return block.TrxId(uuid.NewString())
}

// TrxTransform names the Transform committed for a block at a specific
// revision under a specific TrxId — returned to a caller whose pend or
// commit was rejected as stale so it can replay forward.
type TrxTransform struct {
	Rev       block.Revision
	TrxId     block.TrxId
	Transform block.Transform
}

// PendingRef names a TrxId pending against a block.
type PendingRef struct {
	BlockId block.BlockId
	TrxId   block.TrxId
}

type blockState struct {
	mu            sync.Mutex
	exists        bool
	deleted       bool
	latestRev     block.Revision
	revisionTrxs  map[block.Revision]block.TrxId
	pendingTrxs   map[block.TrxId]block.Transform
	committedTrxs map[block.TrxId]block.Transform
	materialized  map[block.Revision]*block.Block
}

func newBlockState() *blockState {
	return &blockState{
		revisionTrxs:  make(map[block.Revision]block.TrxId),
		pendingTrxs:   make(map[block.TrxId]block.Transform),
		committedTrxs: make(map[block.TrxId]block.Transform),
		materialized:  make(map[block.Revision]*block.Block),
	}
}

// current returns the materialized block at the state's latest revision,
// or nil if the block is absent (never inserted, or deleted).
func (s *blockState) current() *block.Block {
	if s.deleted || !s.exists {
		return nil
	}
	return s.materialized[s.latestRev]
}

// Notifier receives a best-effort notification whenever a commit lands on
// a block. pkg/notify.Broker's NotifyCommitted method satisfies it, so
// repo does not need to import pkg/notify directly.
type Notifier interface {
	NotifyCommitted(id block.BlockId, rev block.Revision, trxId block.TrxId)
}

// Persister is the optional persistence hook a Repo calls after every
// commit. fsrepo.Store implements this; a purely in-memory Repo passes nil.
type Persister interface {
	PersistCommit(id block.BlockId, rev block.Revision, trxId block.TrxId, t block.Transform, mat *block.Block) error
}

// Repo is a collection of independent per-block state machines.
type Repo struct {
	mu       sync.RWMutex
	blocks   map[block.BlockId]*blockState
	persist  Persister
	notifier Notifier
	logger   zerolog.Logger
}

// New returns an empty, purely in-memory Repo. persist and notifier may be
// nil.
func New(persist Persister, notifier Notifier, logger zerolog.Logger) *Repo {
	return &Repo{
		blocks:   make(map[block.BlockId]*blockState),
		persist:  persist,
		notifier: notifier,
		logger:   logger,
	}
}

func (r *Repo) stateFor(id block.BlockId, createIfAbsent bool) *blockState {
	r.mu.RLock()
	s, ok := r.blocks[id]
	r.mu.RUnlock()
	if ok || !createIfAbsent {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.blocks[id]; ok {
		return s
	}
	s = newBlockState()
	r.blocks[id] = s
	return s
}

// GetContext selects which view of a block Get returns: the latest
// materialized state (zero value), a specific revision, or the state as of
// a specific TrxId's own pend.
type GetContext struct {
	Rev   *block.Revision
	TrxId *block.TrxId
}

// GetResult is what Get returns for a single block id.
type GetResult struct {
	Block    *block.Block
	Latest   block.Revision
	LatestTx block.TrxId
	Pendings []block.TrxId
}

// Get returns the requested view for each of ids. Unknown block ids are
// reported as an absent GetResult rather than an error, matching pend's
// treatment of never-seen blocks.
func (r *Repo) Get(_ context.Context, ids []block.BlockId, gctx GetContext) (map[block.BlockId]GetResult, error) {
	out := make(map[block.BlockId]GetResult, len(ids))
	for _, id := range ids {
		s := r.stateFor(id, false)
		if s == nil {
			out[id] = GetResult{}
			continue
		}
		s.mu.Lock()
		res := GetResult{Latest: s.latestRev, LatestTx: s.revisionTrxs[s.latestRev]}
		for trx := range s.pendingTrxs {
			res.Pendings = append(res.Pendings, trx)
		}
		switch {
		case gctx.Rev != nil:
			res.Block = s.materialized[*gctx.Rev].Clone()
		case gctx.TrxId != nil:
			if t, ok := s.pendingTrxs[*gctx.TrxId]; ok {
				applied, err := block.ApplyTransform(s.current(), t)
				if err != nil {
					s.mu.Unlock()
					return nil, err
				}
				res.Block = applied
			} else {
				res.Block = s.current().Clone()
			}
		default:
			res.Block = s.current().Clone()
		}
		s.mu.Unlock()
		out[id] = res
	}
	return out, nil
}

// PendRequest stages t under trxId against every block it touches.
type PendRequest struct {
	TrxId      block.TrxId
	Transforms block.Transforms
	Policy     PendPolicy
	Rev        *block.Revision // caller's believed-current rev; nil skips the staleness check
}

// PendResult is Pend's outcome across every block in the request.
type PendResult struct {
	Success bool
	Missing []TrxTransform
	Pending []PendingRef
}

// Pend stages req.Transforms under req.TrxId. It never holds more than one
// block's lock at a time: the per-block checks below can race harmlessly
// against a concurrent pend on a different TrxId for the same block,
// exactly as this package's concurrency model allows.
func (r *Repo) Pend(_ context.Context, req PendRequest) (PendResult, error) {
	ids := block.BlockIdsForTransforms(req.Transforms)
	result := PendResult{Success: true}

	for _, id := range ids {
		t := block.TransformForBlockId(req.Transforms, id)
		s := r.stateFor(id, true)
		s.mu.Lock()

		if req.Rev != nil && s.latestRev > *req.Rev {
			result.Missing = append(result.Missing, r.missingSinceLocked(s, *req.Rev)...)
			s.mu.Unlock()
			continue
		}

		if t.Insert != nil && s.exists && !s.deleted {
			result.Missing = append(result.Missing, r.missingSinceLocked(s, 0)...)
			s.mu.Unlock()
			continue
		}

		others := pendingOtherThan(s, req.TrxId)
		if len(others) > 0 {
			switch req.Policy {
			case PolicyFailOnPending:
				for _, trx := range others {
					result.Pending = append(result.Pending, PendingRef{BlockId: id, TrxId: trx})
				}
				s.mu.Unlock()
				continue
			case PolicyReturnPending:
				for _, trx := range others {
					result.Pending = append(result.Pending, PendingRef{BlockId: id, TrxId: trx})
				}
			}
		}

		s.pendingTrxs[req.TrxId] = t
		s.mu.Unlock()
	}

	if len(result.Missing) > 0 || len(result.Pending) > 0 {
		result.Success = false
	}
	return result, nil
}

func pendingOtherThan(s *blockState, trxId block.TrxId) []block.TrxId {
	var others []block.TrxId
	for trx := range s.pendingTrxs {
		if trx != trxId {
			others = append(others, trx)
		}
	}
	return others
}

// missingSinceLocked returns the committed transforms for every revision
// after since, in ascending order. s.mu must already be held.
func (r *Repo) missingSinceLocked(s *blockState, since block.Revision) []TrxTransform {
	var out []TrxTransform
	for rev := since + 1; rev <= s.latestRev; rev++ {
		trx, ok := s.revisionTrxs[rev]
		if !ok {
			continue
		}
		out = append(out, TrxTransform{Rev: rev, TrxId: trx, Transform: s.committedTrxs[trx]})
	}
	return out
}

// Cancel removes trxId's pending transform from every block in ids. It is
// idempotent: cancelling a TrxId that was never pended, or re-cancelling
// one already cancelled, is not an error.
func (r *Repo) Cancel(_ context.Context, trxId block.TrxId, ids []block.BlockId) error {
	for _, id := range ids {
		s := r.stateFor(id, false)
		if s == nil {
			continue
		}
		s.mu.Lock()
		delete(s.pendingTrxs, trxId)
		s.mu.Unlock()
	}
	return nil
}

// CommitRequest commits trxId's already-pended transform across blockIds.
// Rev is the single target revision every named block must land on; see
// DESIGN.md's Open Question decision for why a per-batch rev, not a
// per-block one, is required here.
type CommitRequest struct {
	TrxId    block.TrxId
	Rev      block.Revision
	BlockIds []block.BlockId
	TailId   *block.BlockId
	HeaderId *block.BlockId
}

// CommitResult is Commit's outcome.
type CommitResult struct {
	Success bool
	Missing []TrxTransform
	Reason  string
}

// Stats returns a point-in-time snapshot of the repo's local state for
// metrics polling: the count of live (non-deleted) blocks by their
// BlockType tag, and the total number of pending transactions across every
// block.
func (r *Repo) Stats() (blocksByType map[string]int, pendingTotal int) {
	r.mu.RLock()
	states := make([]*blockState, 0, len(r.blocks))
	for _, s := range r.blocks {
		states = append(states, s)
	}
	r.mu.RUnlock()

	blocksByType = make(map[string]int)
	for _, s := range states {
		s.mu.Lock()
		if cur := s.current(); cur != nil {
			blocksByType[cur.Type.Tag]++
		}
		pendingTotal += len(s.pendingTrxs)
		s.mu.Unlock()
	}
	return blocksByType, pendingTotal
}

// Commit applies trxId's pending transform to every block in req.BlockIds,
// locking them in sorted BlockId order to give concurrent commits a
// consistent global lock order and avoid deadlock.
func (r *Repo) Commit(_ context.Context, req CommitRequest) (CommitResult, error) {
	ids := append([]block.BlockId{}, req.BlockIds...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	states := make([]*blockState, len(ids))
	for i, id := range ids {
		states[i] = r.stateFor(id, true)
	}
	for _, s := range states {
		s.mu.Lock()
	}
	defer func() {
		for i := len(states) - 1; i >= 0; i-- {
			states[i].mu.Unlock()
		}
	}()

	for i, s := range states {
		if _, ok := s.pendingTrxs[req.TrxId]; !ok {
			return CommitResult{Reason: fmt.Sprintf("trx %s not pending on block %s", req.TrxId, ids[i])}, nil
		}
	}

	for i, s := range states {
		if s.latestRev+1 != req.Rev {
			return CommitResult{Missing: r.missingSinceLocked(s, 0), Reason: fmt.Sprintf("block %s expected rev %d, have %d", ids[i], req.Rev, s.latestRev)}, nil
		}
	}

	type applied struct {
		id  block.BlockId
		mat *block.Block
	}
	results := make([]applied, len(ids))
	for i, s := range states {
		t := s.pendingTrxs[req.TrxId]
		mat, err := block.ApplyTransform(s.current(), t)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit %s: %w", ids[i], err)
		}
		results[i] = applied{id: ids[i], mat: mat}
	}

	for i, s := range states {
		t := s.pendingTrxs[req.TrxId]
		s.exists = true
		s.latestRev = req.Rev
		s.revisionTrxs[req.Rev] = req.TrxId
		s.committedTrxs[req.TrxId] = t
		delete(s.pendingTrxs, req.TrxId)
		s.materialized[req.Rev] = results[i].mat
		s.deleted = t.Delete

		if r.persist != nil {
			if err := r.persist.PersistCommit(ids[i], req.Rev, req.TrxId, t, results[i].mat); err != nil {
				r.logger.Error().Err(err).Str("block", string(ids[i])).Msg("persist commit failed")
			}
		}
		if r.notifier != nil {
			r.notifier.NotifyCommitted(ids[i], req.Rev, req.TrxId)
		}
	}

	return CommitResult{Success: true}, nil
}
