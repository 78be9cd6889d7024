// Package witness defines the block witness format and the loader that
// turns a witness into the node store, code store and execution context
// one stateless verification pass runs against.
package witness

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockWitness is the self-contained input for verifying one block: the
// header, the transactions, every trie node the block's execution may
// touch, the referenced bytecodes and up to 256 ancestor hashes.
type BlockWitness struct {
	// ChainID the block belongs to.
	ChainID uint64 `json:"chainId"`
	// Header of the block being verified.
	Header *types.Header `json:"header"`
	// PrevStateRoot is the state trie root before the block.
	PrevStateRoot common.Hash `json:"prevStateRoot"`
	// Transactions in canonical binary encoding (typed envelopes).
	Transactions []hexutil.Bytes `json:"transactions"`
	// Withdrawals in the block, if the chain has them.
	Withdrawals types.Withdrawals `json:"withdrawals,omitempty"`
	// BlockHashes holds ancestor hashes, most recent first, for
	// BLOCKHASH-style reads.
	BlockHashes []common.Hash `json:"blockHashes,omitempty"`
	// States holds the RLP-encoded trie nodes proving every state path
	// the block touches.
	States []hexutil.Bytes `json:"states"`
	// Codes holds the bytecodes referenced by touched accounts.
	Codes []hexutil.Bytes `json:"codes"`
}

// Number returns the block number.
func (w *BlockWitness) Number() uint64 {
	return w.Header.Number.Uint64()
}

// PostStateRoot returns the state root the header declares after the
// block.
func (w *BlockWitness) PostStateRoot() common.Hash {
	return w.Header.Root
}

// AncestorHashes maps the witness's ancestor hash list to block numbers.
func (w *BlockWitness) AncestorHashes() map[uint64]common.Hash {
	hashes := make(map[uint64]common.Hash, len(w.BlockHashes))
	number := w.Number()
	for i, h := range w.BlockHashes {
		offset := uint64(i) + 1
		if offset > number {
			break
		}
		hashes[number-offset] = h
	}
	return hashes
}

// ReadFile parses a JSON witness from path.
func ReadFile(path string) (*BlockWitness, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w BlockWitness
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &LoadError{Field: "json", Err: err}
	}
	return &w, nil
}

// WriteFile serializes a witness to path as JSON.
func (w *BlockWitness) WriteFile(path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadError reports a malformed or structurally inconsistent witness,
// detected before any trie operation.
type LoadError struct {
	Field string // witness field the problem was found in
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("invalid witness (%s): %v", e.Field, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
