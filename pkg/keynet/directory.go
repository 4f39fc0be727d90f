// Package keynet implements IKeyNetwork: the key-routing oracle a
// NetworkTransactor uses to find which peer coordinates a given block id.
// Coordinator selection is a pure XOR-distance computation over the
// current cluster membership; membership itself is replicated with Raft so
// every peer's routing decisions agree, adapted directly from the
// teacher's pkg/manager Bootstrap/Join/raft wiring. This is a deliberate,
// narrow use of consensus: it replicates "who is in the cluster and where
// do I reach them", never a block commit. Block commits stay on the
// lock-based, non-consensus path implemented by pkg/repo.
package keynet

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// Config configures a Directory: peer id, raft bind address, and data
// directory.
type Config struct {
	PeerID   PeerID
	BindAddr string
	DataDir  string
	Logger   zerolog.Logger
}

// Directory is a Raft-replicated peer membership registry.
type Directory struct {
	cfg   Config
	raft  *raft.Raft
	fsm   *directoryFSM
	trans *raft.NetworkTransport
}

// New sets up (but does not bootstrap or join) a Directory's Raft node.
func New(cfg Config) (*Directory, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("keynet: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.PeerID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("keynet: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("keynet: tcp transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("keynet: snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("keynet: raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("keynet: raft stable store: %w", err)
	}

	fsm := newDirectoryFSM()
	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("keynet: new raft: %w", err)
	}

	return &Directory{cfg: cfg, raft: r, fsm: fsm, trans: transport}, nil
}

// Bootstrap starts a brand-new single-peer cluster rooted at this peer.
func (d *Directory) Bootstrap(selfAddr string) error {
	cfg := raft.Configuration{Servers: []raft.Server{{
		ID:      raft.ServerID(d.cfg.PeerID),
		Address: raft.ServerAddress(selfAddr),
	}}}
	return d.raft.BootstrapCluster(cfg).Error()
}

// AddVoter registers a new peer as a voting member. Only the leader can
// successfully apply this.
func (d *Directory) AddVoter(id PeerID, addr string) error {
	f := d.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 10*time.Second)
	return f.Error()
}

// RemoveServer removes a peer from the Raft configuration.
func (d *Directory) RemoveServer(id PeerID) error {
	f := d.raft.RemoveServer(raft.ServerID(id), 0, 10*time.Second)
	return f.Error()
}

// RegisterPeer proposes a membership record for id through Raft. Must be
// called against the leader.
func (d *Directory) RegisterPeer(id PeerID, info PeerInfo) error {
	return d.apply(command{Op: "register", ID: id, Info: info})
}

// RemovePeer proposes removing id's membership record.
func (d *Directory) RemovePeer(id PeerID) error {
	return d.apply(command{Op: "remove", ID: id})
}

func (d *Directory) apply(cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	f := d.raft.Apply(data, 5*time.Second)
	if err := f.Error(); err != nil {
		return fmt.Errorf("keynet: apply: %w", err)
	}
	if resp := f.Response(); resp != nil {
		if err, ok := resp.(error); ok {
			return err
		}
	}
	return nil
}

// Members returns the current locally-known membership snapshot, served
// directly from the FSM's materialized state rather than a fresh
// consensus round trip.
func (d *Directory) Members() map[PeerID]PeerInfo {
	return d.fsm.snapshotMembers()
}

// IsLeader reports whether this Directory's Raft node currently believes
// itself to be the leader.
func (d *Directory) IsLeader() bool {
	return d.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current leader, if known.
func (d *Directory) LeaderAddr() string {
	addr, _ := d.raft.LeaderWithID()
	return string(addr)
}

// Shutdown stops the Raft node and releases its transport.
func (d *Directory) Shutdown() error {
	if err := d.raft.Shutdown().Error(); err != nil {
		return err
	}
	return d.trans.Close()
}

// hashKey returns a peer or block id's fixed-size position in the XOR
// keyspace.
func hashKey(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func xorDistance(a, b []byte) *big.Int {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return new(big.Int).SetBytes(out)
}
