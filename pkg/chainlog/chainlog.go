// Package chainlog implements a hash-chained, tamper-evident append log on
// top of pkg/chain: each entry's hash commits to the previous entry's hash
// plus its own payload, so altering or removing any entry breaks every
// hash from that point forward. The chaining idea is adapted from an
// append-only audit log pattern (hash each record, detect tampering via
// Verify) generalized here from a flat file format into a Chain-backed
// log whose entries replicate and compact the same way any other block
// data does.
package chainlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/chain"
	"github.com/cuemby/blockmesh/pkg/notify"
)

var (
	ErrHashMismatch = errors.New("chainlog: hash mismatch")
	ErrCorrupt      = errors.New("chainlog: entry malformed")
)

// Entry is one tamper-evident log record.
type Entry struct {
	Seq       uint64
	Type      string
	Timestamp time.Time
	Payload   string
	PrevHash  string
	Hash      string
}

func computeHash(prevHash string, seq uint64, typ string, ts time.Time, payload string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(typ))
	h.Write([]byte{'|'})
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{'|'})
	h.Write([]byte(payload))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// Log is a hash-chained append log addressed by its underlying chain's
// header block id.
type Log struct {
	chain    *chain.Chain
	nextSeq  uint64
	lastHash string
}

// Create stages a brand-new, empty log.
func Create(ctx context.Context, ts chain.TrxStore) (*Log, error) {
	c, err := chain.Create(ctx, ts)
	if err != nil {
		return nil, err
	}
	return &Log{chain: c}, nil
}

// Open attaches to an existing log, replaying it to recover the next
// sequence number and the current chain tip hash.
func Open(ctx context.Context, ts chain.TrxStore, headerId block.BlockId) (*Log, error) {
	c, err := chain.Open(ctx, ts, headerId)
	if err != nil {
		return nil, err
	}
	l := &Log{chain: c}
	if err := l.replay(ctx, ts); err != nil {
		return nil, err
	}
	return l, nil
}

// HeaderId exposes the chain's header id so callers can persist and later
// Open the same log.
func (l *Log) HeaderId() block.BlockId { return l.chain.HeaderId }

func (l *Log) replay(ctx context.Context, ts chain.TrxStore) error {
	var seq uint64
	var last string
	cur := l.chain.Select(ts, nil, true)
	for cur.Next(ctx) {
		e, ok := toEntry(cur.Entry())
		if !ok {
			return ErrCorrupt
		}
		if e.PrevHash != last {
			return ErrHashMismatch
		}
		if computeHash(e.PrevHash, e.Seq, e.Type, e.Timestamp, e.Payload) != e.Hash {
			return ErrHashMismatch
		}
		seq = e.Seq + 1
		last = e.Hash
	}
	if cur.Err() != nil {
		return cur.Err()
	}
	l.nextSeq = seq
	l.lastHash = last
	return nil
}

// Append stages a new, hash-linked entry onto the log and returns it.
func (l *Log) Append(ctx context.Context, ts chain.TrxStore, typ, payload string, at time.Time) (Entry, error) {
	e := Entry{
		Seq:       l.nextSeq,
		Type:      typ,
		Timestamp: at,
		Payload:   payload,
		PrevHash:  l.lastHash,
	}
	e.Hash = computeHash(e.PrevHash, e.Seq, e.Type, e.Timestamp, e.Payload)
	if err := l.chain.Add(ctx, ts, fromEntry(e)); err != nil {
		return Entry{}, err
	}
	l.nextSeq++
	l.lastHash = e.Hash
	return e, nil
}

// List returns every entry from oldest to newest.
func (l *Log) List(ctx context.Context, ts chain.TrxStore) ([]Entry, error) {
	cur := l.chain.Select(ts, nil, true)
	var out []Entry
	for cur.Next(ctx) {
		e, ok := toEntry(cur.Entry())
		if !ok {
			return nil, ErrCorrupt
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

// Verify walks the whole log and confirms every entry's hash commits
// correctly to its predecessor, returning ErrHashMismatch at the first
// break in the chain.
func (l *Log) Verify(ctx context.Context, ts chain.TrxStore) error {
	last := ""
	cur := l.chain.Select(ts, nil, true)
	for cur.Next(ctx) {
		e, ok := toEntry(cur.Entry())
		if !ok {
			return ErrCorrupt
		}
		if e.PrevHash != last {
			return ErrHashMismatch
		}
		if computeHash(e.PrevHash, e.Seq, e.Type, e.Timestamp, e.Payload) != e.Hash {
			return ErrHashMismatch
		}
		last = e.Hash
	}
	return cur.Err()
}

// Watch blocks until a commit notification on sub could mean a new entry
// was appended to this log's chain, replays the log to pick it up, and
// returns the newest entry. It lets a long-lived reader learn of a new
// tail without polling List in a loop.
func (l *Log) Watch(ctx context.Context, ts chain.TrxStore, sub notify.Subscriber) (Entry, error) {
	if _, err := l.chain.WatchTail(ctx, ts, sub); err != nil {
		return Entry{}, err
	}
	if err := l.replay(ctx, ts); err != nil {
		return Entry{}, err
	}
	entries, err := l.List(ctx, ts)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrCorrupt
	}
	return entries[len(entries)-1], nil
}

func fromEntry(e Entry) map[string]any {
	return map[string]any{
		"seq":      e.Seq,
		"type":     e.Type,
		"ts":       e.Timestamp,
		"payload":  e.Payload,
		"prevHash": e.PrevHash,
		"hash":     e.Hash,
	}
}

func toEntry(raw any) (Entry, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Entry{}, false
	}
	e := Entry{}
	if seq, ok := m["seq"].(uint64); ok {
		e.Seq = seq
	} else if f, ok := m["seq"].(float64); ok {
		e.Seq = uint64(f)
	}
	e.Type, _ = m["type"].(string)
	e.Payload, _ = m["payload"].(string)
	e.PrevHash, _ = m["prevHash"].(string)
	e.Hash, _ = m["hash"].(string)
	switch ts := m["ts"].(type) {
	case time.Time:
		e.Timestamp = ts
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Entry{}, false
		}
		e.Timestamp = parsed
	}
	return e, true
}
