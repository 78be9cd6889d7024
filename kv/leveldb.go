package kv

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore is a persistent Store backed by goleveldb. Records are
// content-addressed, so the same physical store can safely be shared
// across many trie roots: superseded nodes are simply never referenced
// again and unchanged subtrees are shared structurally.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a leveldb-backed store at the given path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// Get retrieves the value for the given key.
func (s *LevelDBStore) Get(key []byte) ([]byte, bool) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Put inserts a key-value pair, rejecting conflicting re-insertions.
func (s *LevelDBStore) Put(key, value []byte) error {
	prev, err := s.db.Get(key, nil)
	switch {
	case err == nil:
		if !bytes.Equal(prev, value) {
			return fmt.Errorf("%w: key %x", ErrConflict, key)
		}
		return nil
	case err == ldberrors.ErrNotFound:
		return s.db.Put(key, value, nil)
	default:
		return fmt.Errorf("kv: leveldb get: %w", err)
	}
}

// Has reports whether the key is present.
func (s *LevelDBStore) Has(key []byte) bool {
	ok, err := s.db.Has(key, nil)
	return err == nil && ok
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
