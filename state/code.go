// Package state presents an account-model view over the sparse trie: one
// account trie plus lazily opened per-account storage tries, with contract
// code held in a separate content-addressed store.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/stateless-verifier/kv"
)

// MissingCodeError is returned when an account's code hash refers to
// bytecode the witness did not carry.
type MissingCodeError struct {
	Hash common.Hash
}

func (e *MissingCodeError) Error() string {
	return fmt.Sprintf("missing bytecode for code hash %x", e.Hash)
}

// CodeStore holds contract bytecode keyed by its keccak hash. Code never
// lives in the trie; account leaves reference it by hash only.
type CodeStore struct {
	store kv.Store
}

// NewCodeStore creates a code store over the given backing store. Pass a
// fresh kv.MemoryStore for the usual witness-scoped lifetime.
func NewCodeStore(store kv.Store) *CodeStore {
	return &CodeStore{store: store}
}

// Add inserts bytecode and returns its content hash.
func (c *CodeStore) Add(code []byte) (common.Hash, error) {
	hash := crypto.Keccak256Hash(code)
	if err := c.store.Put(hash[:], code); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// ByHash returns the bytecode for hash. The empty code hash always
// resolves to nil code; any other unknown hash is a MissingCodeError.
func (c *CodeStore) ByHash(hash common.Hash) ([]byte, error) {
	if hash == types.EmptyCodeHash || hash == (common.Hash{}) {
		return nil, nil
	}
	code, ok := c.store.Get(hash[:])
	if !ok {
		return nil, &MissingCodeError{Hash: hash}
	}
	return code, nil
}

// Has reports whether bytecode for hash is present.
func (c *CodeStore) Has(hash common.Hash) bool {
	return c.store.Has(hash[:])
}
