// Package kv provides the content-addressed key-value stores backing the
// sparse trie and the code database. Keys are raw bytes (typically 32-byte
// hashes); values are immutable once inserted.
package kv

import (
	"bytes"
	"errors"
	"fmt"
)

// Errors returned by store implementations.
var (
	// ErrConflict is returned when a key is re-inserted with different bytes.
	// Stores are content-addressed: a key must always map to the same value.
	ErrConflict = errors.New("kv: conflicting re-insertion")
)

// Getter wraps the read side of a store.
type Getter interface {
	// Get retrieves the value for the given key. The second return value
	// reports whether the key was present.
	Get(key []byte) ([]byte, bool)
}

// Putter wraps the write side of a store.
type Putter interface {
	// Put inserts a key-value pair. Re-inserting an existing key with
	// identical bytes is a no-op; re-inserting with different bytes
	// returns ErrConflict.
	Put(key, value []byte) error
}

// Store combines read and write access with a presence check.
type Store interface {
	Getter
	Putter

	// Has reports whether the key is present.
	Has(key []byte) bool
}

// MemoryStore is an in-memory Store backed by a map. Iteration order is
// unspecified. The zero value is not usable; use NewMemoryStore.
type MemoryStore struct {
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get retrieves the value for the given key.
func (s *MemoryStore) Get(key []byte) ([]byte, bool) {
	v, ok := s.entries[string(key)]
	return v, ok
}

// Put inserts a key-value pair, rejecting conflicting re-insertions.
func (s *MemoryStore) Put(key, value []byte) error {
	if prev, ok := s.entries[string(key)]; ok {
		if !bytes.Equal(prev, value) {
			return fmt.Errorf("%w: key %x", ErrConflict, key)
		}
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[string(key)] = cp
	return nil
}

// Has reports whether the key is present.
func (s *MemoryStore) Has(key []byte) bool {
	_, ok := s.entries[string(key)]
	return ok
}

// Len returns the number of entries in the store.
func (s *MemoryStore) Len() int {
	return len(s.entries)
}

// OrderedStore is a Store that additionally remembers insertion order,
// for callers that need deterministic iteration over the stored nodes
// (e.g. witness dumping). Reads behave exactly like MemoryStore.
type OrderedStore struct {
	mem  MemoryStore
	keys []string
}

// NewOrderedStore creates an empty insertion-ordered store.
func NewOrderedStore() *OrderedStore {
	return &OrderedStore{mem: MemoryStore{entries: make(map[string][]byte)}}
}

// Get retrieves the value for the given key.
func (s *OrderedStore) Get(key []byte) ([]byte, bool) {
	return s.mem.Get(key)
}

// Put inserts a key-value pair, preserving first-insertion order.
func (s *OrderedStore) Put(key, value []byte) error {
	existed := s.mem.Has(key)
	if err := s.mem.Put(key, value); err != nil {
		return err
	}
	if !existed {
		s.keys = append(s.keys, string(key))
	}
	return nil
}

// Has reports whether the key is present.
func (s *OrderedStore) Has(key []byte) bool {
	return s.mem.Has(key)
}

// Keys returns the stored keys in insertion order. The returned slices
// must not be modified.
func (s *OrderedStore) Keys() [][]byte {
	keys := make([][]byte, len(s.keys))
	for i, k := range s.keys {
		keys[i] = []byte(k)
	}
	return keys
}
