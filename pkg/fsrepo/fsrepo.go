// Package fsrepo persists Repo commits to a bbolt database: one bucket
// per concern, JSON-encoded values, and a db.Update/db.View closure per
// operation. Rather than one bucket per typed entity, fsrepo has three
// buckets that together cover every block regardless of its BlockType:
// the latest materialized snapshot, per-block metadata, and the append-only
// per-revision commit log backing stale reconciliation and compaction.
package fsrepo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta      = []byte("meta")
	bucketBlocks    = []byte("block")
	bucketRevisions = []byte("revs")
)

// MetaRecord is the small per-block header kept alongside its latest
// materialized snapshot.
type MetaRecord struct {
	LatestRev block.Revision
	LatestTrx block.TrxId
	Deleted   bool
}

// RevisionRecord is one entry in a block's append-only commit history.
type RevisionRecord struct {
	TrxId     block.TrxId
	Transform block.Transform
}

// Store is a bbolt-backed implementation of repo.Persister.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("fsrepo: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketBlocks, bucketRevisions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fsrepo: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func revisionKey(id block.BlockId, rev block.Revision) []byte {
	return []byte(fmt.Sprintf("%s|%020d", id, rev))
}

// PersistCommit implements repo.Persister: it records the new metadata,
// overwrites the latest snapshot (or removes it, for a delete), and
// appends one entry to the block's revision log.
func (s *Store) PersistCommit(id block.BlockId, rev block.Revision, trxId block.TrxId, t block.Transform, mat *block.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := MetaRecord{LatestRev: rev, LatestTrx: trxId, Deleted: mat == nil}
		mb, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Put([]byte(id), mb); err != nil {
			return err
		}

		blocks := tx.Bucket(bucketBlocks)
		if mat == nil {
			if err := blocks.Delete([]byte(id)); err != nil {
				return err
			}
		} else {
			bb, err := json.Marshal(mat)
			if err != nil {
				return err
			}
			if err := blocks.Put([]byte(id), bb); err != nil {
				return err
			}
		}

		rb, err := json.Marshal(RevisionRecord{TrxId: trxId, Transform: t})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRevisions).Put(revisionKey(id, rev), rb)
	})
}

// LoadLatest returns the latest materialized snapshot and metadata for id,
// or (nil, MetaRecord{}, nil) if id has never been committed.
func (s *Store) LoadLatest(id block.BlockId) (*block.Block, MetaRecord, error) {
	var meta MetaRecord
	var b *block.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta).Get([]byte(id))
		if mb == nil {
			return nil
		}
		if err := json.Unmarshal(mb, &meta); err != nil {
			return err
		}
		bb := tx.Bucket(bucketBlocks).Get([]byte(id))
		if bb == nil {
			return nil
		}
		b = &block.Block{}
		return json.Unmarshal(bb, b)
	})
	return b, meta, err
}

// parseRevisionKey extracts the revision suffix from a key produced by
// revisionKey, given the known prefix length (len(id)+1 for the "|").
func parseRevisionKey(k []byte, prefixLen int) (block.Revision, bool) {
	if len(k) <= prefixLen {
		return 0, false
	}
	var rev uint64
	for _, c := range k[prefixLen:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		rev = rev*10 + uint64(c-'0')
	}
	return block.Revision(rev), true
}

// RevisionsSince returns every revision record for id strictly after
// since, in ascending order.
func (s *Store) RevisionsSince(id block.BlockId, since block.Revision) ([]block.Revision, []RevisionRecord, error) {
	var revs []block.Revision
	var recs []RevisionRecord
	prefix := []byte(string(id) + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRevisions).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			rev, ok := parseRevisionKey(k, len(prefix))
			if !ok || rev <= since {
				continue
			}
			var rec RevisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			revs = append(revs, rev)
			recs = append(recs, rec)
		}
		return nil
	})
	return revs, recs, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// CompactRevisionsBefore drops revision log entries for id at or before
// keepAfter, leaving the latest snapshot and metadata untouched. This is
// the mechanism cmd/blockmesh-compact uses to bound history growth per
// materialized state MAY be only a sliding window over full history.
func (s *Store) CompactRevisionsBefore(id block.BlockId, keepAfter block.Revision) (int, error) {
	dropped := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevisions)
		c := b.Cursor()
		prefix := []byte(string(id) + "|")
		var toDelete [][]byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			rev, ok := parseRevisionKey(k, len(prefix))
			if !ok {
				continue
			}
			if rev <= keepAfter {
				kk := make([]byte, len(k))
				copy(kk, k)
				toDelete = append(toDelete, kk)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		dropped = len(toDelete)
		return nil
	})
	return dropped, err
}

// BlockIds returns every block id that has ever been committed.
func (s *Store) BlockIds() ([]block.BlockId, error) {
	var ids []block.BlockId
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, _ []byte) error {
			ids = append(ids, block.BlockId(k))
			return nil
		})
	})
	return ids, err
}
