package witness

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/eth2030/stateless-verifier/kv"
	"github.com/eth2030/stateless-verifier/state"
)

// Loaded is the result of resolving one witness: the populated stores
// plus the decoded execution inputs. It holds everything a single block
// verification needs; nothing in it is shared with other verifications.
type Loaded struct {
	Witness *BlockWitness

	Nodes kv.Store         // trie nodes keyed by keccak(bytes)
	Codes *state.CodeStore // bytecodes keyed by keccak(code)

	Transactions types.Transactions
	Senders      []common.Address
	BlockHashes  map[uint64]common.Hash
}

// Load validates a witness and populates fresh stores from it. Structural
// problems (undecodable nodes or transactions, a missing pre-state root,
// bad signatures) surface here as LoadError, before any trie operation.
//
// Load checks that every state entry is a well-formed trie node and that
// the pre-state root itself is present; it does not walk the trie. Deeper
// incompleteness is only observable relative to what execution reads, and
// surfaces as missing-node errors during verification.
func Load(w *BlockWitness) (*Loaded, error) {
	if w.Header == nil {
		return nil, &LoadError{Field: "header", Err: errors.New("missing")}
	}
	if w.Header.Number == nil {
		return nil, &LoadError{Field: "header", Err: errors.New("missing number")}
	}

	nodes := kv.NewMemoryStore()
	for i, blob := range w.States {
		if err := checkNodeEncoding(blob); err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("states[%d]", i), Err: err}
		}
		hash := crypto.Keccak256(blob)
		if err := nodes.Put(hash, blob); err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("states[%d]", i), Err: err}
		}
	}
	if w.PrevStateRoot != types.EmptyRootHash && !nodes.Has(w.PrevStateRoot[:]) {
		return nil, &LoadError{
			Field: "prevStateRoot",
			Err:   fmt.Errorf("root node %x not among state nodes", w.PrevStateRoot),
		}
	}

	codes := state.NewCodeStore(kv.NewMemoryStore())
	for i, code := range w.Codes {
		if _, err := codes.Add(code); err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("codes[%d]", i), Err: err}
		}
	}

	txs := make(types.Transactions, len(w.Transactions))
	senders := make([]common.Address, len(w.Transactions))
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(w.ChainID))
	for i, raw := range w.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("transactions[%d]", i), Err: err}
		}
		sender, err := types.Sender(signer, tx)
		if err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("transactions[%d]", i), Err: err}
		}
		txs[i], senders[i] = tx, sender
	}

	return &Loaded{
		Witness:      w,
		Nodes:        nodes,
		Codes:        codes,
		Transactions: txs,
		Senders:      senders,
		BlockHashes:  w.AncestorHashes(),
	}, nil
}

// checkNodeEncoding verifies that blob parses as a trie node: an RLP
// list of 2 (short node) or 17 (branch) elements.
func checkNodeEncoding(blob []byte) error {
	if len(blob) == 0 {
		return errors.New("empty node")
	}
	elems, _, err := rlp.SplitList(blob)
	if err != nil {
		return fmt.Errorf("not an RLP list: %v", err)
	}
	switch c, _ := rlp.CountValues(elems); c {
	case 2, 17:
		return nil
	default:
		return fmt.Errorf("invalid trie node arity %d", c)
	}
}
