// Package storage implements the node's durable persistence layer (§6):
// a single badger database holding three column families, realized as key
// prefixes, each update fsync'd before the caller acts externally on the
// corresponding state.
//
// Grounded on the teacher's benchmarks/map_benchmarks/key_value_db_test.go,
// which exercises badger directly (Open, View, Update, txn.Get/Set) next to
// pogreb and leveldb; badger is adopted here as the one wired engine rather
// than kept as one of three interchangeable benchmark backends.
package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/dgraph-io/badger"

	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

const (
	prefixVertex       = 'v'
	prefixVoteOutgoing = 'o'
	prefixCommitCursor = 'c'
)

// cursorKey is the one key in the commit_cursor family: there is only ever
// one current cursor.
var cursorKey = []byte{prefixCommitCursor}

// Store is the badger-backed durable state of one node. All writes go
// through a synchronous (SyncWrites) transaction, matching §6's "all
// updates fsync'd before the node acts externally on the corresponding
// state".
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func vertexKey(d types.Digest) []byte {
	key := make([]byte, 1+types.DigestSize)
	key[0] = prefixVertex
	copy(key[1:], d[:])
	return key
}

func voteKey(author types.NodeID, round types.Round) []byte {
	key := make([]byte, 1+8+2)
	key[0] = prefixVoteOutgoing
	binary.BigEndian.PutUint64(key[1:9], uint64(round))
	binary.BigEndian.PutUint16(key[9:11], uint16(author))
	return key
}

// PutVertex durably records cv under its digest in the vertices family.
func (s *Store) PutVertex(digest types.Digest, cv types.CertifiedVertex) error {
	var buf bytes.Buffer
	if err := wire.EncodeCertifiedVertex(&buf, &cv); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(vertexKey(digest), buf.Bytes())
	})
}

// GetVertex retrieves the certified vertex stored under digest, if any.
func (s *Store) GetVertex(digest types.Digest) (types.CertifiedVertex, bool, error) {
	var cv types.CertifiedVertex
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(vertexKey(digest))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := wire.DecodeCertifiedVertex(bytes.NewReader(val))
			if err != nil {
				return types.NewStoreCorruption("vertex " + digest.String() + ": " + err.Error())
			}
			cv = decoded
			found = true
			return nil
		})
	})
	return cv, found, err
}

// ForEachVertex calls fn once for every vertex in the vertices family, in
// key order (digest-sorted, not round order: callers that need round order
// re-sort, as pkg/node's recovery path does before replaying into
// dagstore.Store).
func (s *Store) ForEachVertex(fn func(types.CertifiedVertex) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixVertex}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				cv, err := wire.DecodeCertifiedVertex(bytes.NewReader(val))
				if err != nil {
					return types.NewStoreCorruption("vertex scan: " + err.Error())
				}
				return fn(cv)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordVote durably records that this node voted for digest at
// (author, round), the only vote it is ever allowed to cast there. A
// restart re-reads this via LastVote before voting again, preserving
// invariant 1 (no equivocating votes) across crashes (§3 boundary case,
// "Persistence across restart").
func (s *Store) RecordVote(author types.NodeID, round types.Round, digest types.Digest) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(voteKey(author, round), digest[:])
	})
}

// LastVote returns the digest this node already voted for at
// (author, round), if any.
func (s *Store) LastVote(author types.NodeID, round types.Round) (types.Digest, bool, error) {
	var d types.Digest
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(voteKey(author, round))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != types.DigestSize {
				return types.NewStoreCorruption("vote record has wrong length")
			}
			copy(d[:], val)
			found = true
			return nil
		})
	})
	return d, found, err
}

// CommitCursor is the durable record of the last committed wave and its
// leader's digest. pkg/node rewrites it after every emitted vertex (a
// wave's leader is emitted last); on restart it reads the cursor back only
// to log the wave, and commit evaluation does not resume from it.
type CommitCursor struct {
	Wave         uint64
	LeaderDigest types.Digest
}

// SetCommitCursor durably records the most recently committed wave.
func (s *Store) SetCommitCursor(c CommitCursor) error {
	buf := make([]byte, 8+types.DigestSize)
	binary.BigEndian.PutUint64(buf[:8], c.Wave)
	copy(buf[8:], c.LeaderDigest[:])
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cursorKey, buf)
	})
}

// CommitCursor returns the last persisted commit cursor, if one has ever
// been written.
func (s *Store) CommitCursor() (CommitCursor, bool, error) {
	var c CommitCursor
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8+types.DigestSize {
				return types.NewStoreCorruption("commit cursor has wrong length")
			}
			c.Wave = binary.BigEndian.Uint64(val[:8])
			copy(c.LeaderDigest[:], val[8:])
			found = true
			return nil
		})
	})
	return c, found, err
}
