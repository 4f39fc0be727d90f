package keynet

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoCoordinator is returned when no peer is available to coordinate a
// given key (empty membership, or every peer excluded).
var ErrNoCoordinator = errors.New("keynet: no coordinator available")

// MemberSource supplies the current membership snapshot a Router routes
// over. *Directory implements this; tests use a plain stub.
type MemberSource interface {
	Members() map[PeerID]PeerInfo
}

// Router provides findCoordinator / findCluster routing (an
// IKeyNetwork-style routing oracle) over a Directory's membership
// snapshot, using XOR distance between sha256(key) and sha256(peerID) as
// the routing metric — the same metric a Kademlia-style DHT uses to pick a
// key's nearest owner. Its FindCoordinator has the shape of
// transactor.KeyNetwork's but takes and returns keynet.PeerID, so Router
// does not satisfy that interface directly.
type Router struct {
	dir MemberSource

	mu       sync.Mutex
	lastSeen map[PeerID]time.Time
}

// NewRouter returns a Router over dir's membership.
func NewRouter(dir MemberSource) *Router {
	return &Router{dir: dir, lastSeen: make(map[PeerID]time.Time)}
}

// MarkReachable records a successful RPC against id, used as a tie-breaker
// in FindCoordinator: among peers at equal XOR distance (a near-impossible
// tie in practice, but also among peers whose distance differs only
// because of hash collision risk at small cluster sizes), a recently
// reachable peer is preferred over a stale one. This narrows, but never
// replaces, the transactor's own retry/exclusion loop.
func (rt *Router) MarkReachable(id PeerID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lastSeen[id] = time.Now()
}

func (rt *Router) seenAt(id PeerID) time.Time {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastSeen[id]
}

// FindCoordinator returns the non-excluded peer whose id is XOR-nearest to
// key.
func (rt *Router) FindCoordinator(_ context.Context, key []byte, excluded map[PeerID]struct{}) (PeerID, error) {
	members := rt.dir.Members()
	target := hashKey(key)

	var best PeerID
	var bestDist []byte
	var bestSeen time.Time
	for id := range members {
		if _, ex := excluded[id]; ex {
			continue
		}
		dist := xorDistance(target, hashKey([]byte(id))).Bytes()
		seen := rt.seenAt(id)
		if best == "" || less(dist, bestDist) || (equal(dist, bestDist) && seen.After(bestSeen)) {
			best, bestDist, bestSeen = id, dist, seen
		}
	}
	if best == "" {
		return "", ErrNoCoordinator
	}
	return best, nil
}

// FindCluster returns the full current membership snapshot as the set of
// peers that might plausibly hold replicas near key. A production-scale
// deployment would narrow this to the K nearest peers; at the scale this
// engine targets (a small cooperating peer set, not an open DHT) returning
// the whole membership is both simpler and sufficient.
func (rt *Router) FindCluster(_ context.Context, _ []byte) (map[PeerID]PeerInfo, error) {
	return rt.dir.Members(), nil
}

func less(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
