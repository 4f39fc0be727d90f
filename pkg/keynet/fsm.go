package keynet

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// PeerID identifies a peer in the membership directory.
type PeerID string

// PeerInfo is what the directory knows about a peer.
type PeerInfo struct {
	Addr string // host:port the peer's pkg/rpc server listens on
}

type command struct {
	Op   string // "register" or "remove"
	ID   PeerID
	Info PeerInfo
}

// directoryFSM is the Raft finite state machine replicating cluster
// membership: Apply decodes a JSON command and mutates a plain in-memory
// map. The entity replicated is peer membership, not cluster workload
// state, and nothing about block commits ever flows through it.
type directoryFSM struct {
	mu      sync.RWMutex
	members map[PeerID]PeerInfo
}

func newDirectoryFSM() *directoryFSM {
	return &directoryFSM{members: make(map[PeerID]PeerInfo)}
}

func (f *directoryFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch cmd.Op {
	case "register":
		f.members[cmd.ID] = cmd.Info
	case "remove":
		delete(f.members, cmd.ID)
	}
	return nil
}

type directorySnapshot struct {
	Members map[PeerID]PeerInfo
}

func (f *directoryFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make(map[PeerID]PeerInfo, len(f.members))
	for k, v := range f.members {
		cp[k] = v
	}
	return &directorySnapshot{Members: cp}, nil
}

func (f *directoryFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap directorySnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap.Members == nil {
		snap.Members = make(map[PeerID]PeerInfo)
	}
	f.members = snap.Members
	return nil
}

func (f *directoryFSM) snapshotMembers() map[PeerID]PeerInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make(map[PeerID]PeerInfo, len(f.members))
	for k, v := range f.members {
		cp[k] = v
	}
	return cp
}

func (s *directorySnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *directorySnapshot) Release() {}
