package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/eth2030/stateless-verifier/kv"
	"github.com/eth2030/stateless-verifier/trie"
)

// MissingBlockHashError is returned when a BLOCKHASH-style read asks for
// an ancestor the witness did not carry.
type MissingBlockHashError struct {
	Number uint64
}

func (e *MissingBlockHashError) Error() string {
	return fmt.Sprintf("missing ancestor hash for block %d", e.Number)
}

// View is the account-model state provider handed to the execution
// engine. It composes the account trie with per-account storage tries,
// all reading from one witness-populated node store.
//
// View is not safe for concurrent use; each block verification owns its
// own instance.
type View struct {
	nodes    kv.Store
	codes    *CodeStore
	accounts *trie.Trie

	// storage tries are opened lazily on first slot access and kept for
	// the lifetime of the view, so writes accumulate across transactions.
	storage map[common.Address]*trie.Trie

	// ancestor hashes for BLOCKHASH-style reads, keyed by block number.
	blockHashes map[uint64]common.Hash
}

// NewView opens a state view at the given account trie root. The root
// node must be present in the node store.
func NewView(root common.Hash, nodes kv.Store, codes *CodeStore) (*View, error) {
	accounts, err := trie.New(root, nodes)
	if err != nil {
		return nil, err
	}
	return &View{
		nodes:       nodes,
		codes:       codes,
		accounts:    accounts,
		storage:     make(map[common.Address]*trie.Trie),
		blockHashes: make(map[uint64]common.Hash),
	}, nil
}

// SetBlockHashes installs the witness's ancestor hashes.
func (v *View) SetBlockHashes(hashes map[uint64]common.Hash) {
	v.blockHashes = hashes
}

// BlockHash returns the hash of ancestor block number.
func (v *View) BlockHash(number uint64) (common.Hash, error) {
	h, ok := v.blockHashes[number]
	if !ok {
		return common.Hash{}, &MissingBlockHashError{Number: number}
	}
	return h, nil
}

// Account returns the account stored at addr, or nil if the witness
// proves the address has never been touched. A trie.MissingNodeError
// means the witness cannot answer.
func (v *View) Account(addr common.Address) (*types.StateAccount, error) {
	enc, err := v.accounts.Get(crypto.Keccak256(addr[:]))
	if err != nil || enc == nil {
		return nil, err
	}
	var acct types.StateAccount
	if err := rlp.DecodeBytes(enc, &acct); err != nil {
		return nil, fmt.Errorf("state: corrupt account leaf for %x: %v", addr, err)
	}
	return &acct, nil
}

// Code returns addr's bytecode. Absent accounts and accounts with the
// empty code hash yield nil code.
func (v *View) Code(addr common.Address) ([]byte, error) {
	acct, err := v.Account(addr)
	if err != nil || acct == nil {
		return nil, err
	}
	return v.codes.ByHash(common.BytesToHash(acct.CodeHash))
}

// CodeByHash returns the bytecode for an explicit code hash.
func (v *View) CodeByHash(hash common.Hash) ([]byte, error) {
	return v.codes.ByHash(hash)
}

// Storage returns the value of the given slot of addr. Slots of absent
// accounts, and absent slots of present accounts, read as zero.
func (v *View) Storage(addr common.Address, slot common.Hash) (*uint256.Int, error) {
	st, err := v.storageTrie(addr)
	if err != nil || st == nil {
		return new(uint256.Int), err
	}
	enc, err := st.Get(crypto.Keccak256(slot[:]))
	if err != nil || enc == nil {
		return new(uint256.Int), err
	}
	_, content, _, err := rlp.Split(enc)
	if err != nil {
		return nil, fmt.Errorf("state: corrupt storage leaf %x/%x: %v", addr, slot, err)
	}
	return new(uint256.Int).SetBytes(content), nil
}

// storageTrie opens (or returns the cached) storage trie of addr. It
// returns (nil, nil) for absent accounts: their storage reads as zero
// and a trie is only materialized when a diff writes to it.
func (v *View) storageTrie(addr common.Address) (*trie.Trie, error) {
	if st, ok := v.storage[addr]; ok {
		return st, nil
	}
	acct, err := v.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, nil
	}
	st, err := trie.New(acct.Root, v.nodes)
	if err != nil {
		return nil, err
	}
	v.storage[addr] = st
	return st, nil
}

// ApplyDiff commits one transaction's state delta. Per account, storage
// writes land first and the new storage root is folded into the account
// leaf before the leaf itself is rewritten; committing in the other
// order would leave the account pointing at a stale storage root.
func (v *View) ApplyDiff(diff *Diff) error {
	for _, addr := range diff.sortedAddresses() {
		ad := diff.Accounts[addr]
		hashedAddr := crypto.Keccak256(addr[:])

		if ad.Deleted {
			if err := v.accounts.Delete(hashedAddr); err != nil {
				return err
			}
			delete(v.storage, addr)
			continue
		}

		if ad.Balance == nil {
			return fmt.Errorf("state: account diff for %x carries no balance", addr)
		}

		acct, err := v.Account(addr)
		if err != nil {
			return err
		}
		if acct == nil {
			acct = types.NewEmptyStateAccount()
		}

		if len(ad.Storage) > 0 {
			st, err := v.storageTrie(addr)
			if err != nil {
				return err
			}
			if st == nil {
				st = trie.NewEmpty(v.nodes)
				v.storage[addr] = st
			}
			for _, slot := range ad.sortedSlots() {
				key := crypto.Keccak256(slot[:])
				value := ad.Storage[slot]
				if value == nil || value.IsZero() {
					if err := st.Delete(key); err != nil {
						return err
					}
					continue
				}
				enc, err := rlp.EncodeToBytes(value.Bytes())
				if err != nil {
					return err
				}
				if err := st.Update(key, enc); err != nil {
					return err
				}
			}
			acct.Root = st.Hash()
		}

		acct.Nonce = ad.Nonce
		acct.Balance = ad.Balance.Clone()
		if ad.Code != nil {
			codeHash, err := v.codes.Add(ad.Code)
			if err != nil {
				return err
			}
			acct.CodeHash = codeHash.Bytes()
		}

		enc, err := rlp.EncodeToBytes(acct)
		if err != nil {
			return err
		}
		if err := v.accounts.Update(hashedAddr, enc); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the current account trie root.
func (v *View) Root() common.Hash {
	return v.accounts.Hash()
}

// Commit persists the account trie and every opened storage trie into w,
// content-addressed. The view stays usable afterwards.
func (v *View) Commit(w kv.Putter) (common.Hash, error) {
	for addr, st := range v.storage {
		if _, err := st.Commit(w); err != nil {
			return common.Hash{}, fmt.Errorf("state: commit storage trie of %x: %w", addr, err)
		}
	}
	return v.accounts.Commit(w)
}
