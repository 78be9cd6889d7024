package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountDiff is the post-execution delta for one account. A nil Balance
// means "unchanged" is not supported: the execution engine reports full
// post-state values for every touched account.
type AccountDiff struct {
	Nonce   uint64
	Balance *uint256.Int

	// Code is set when the transaction deployed new bytecode for this
	// account; nil leaves the existing code hash in place.
	Code []byte

	// Deleted marks the account for removal (selfdestruct or
	// empty-account cleanup). Storage writes are ignored for deleted
	// accounts.
	Deleted bool

	// Storage maps slot keys to post-state values. A zero value removes
	// the slot from the storage trie.
	Storage map[common.Hash]*uint256.Int
}

// Diff is the state delta of one transaction: every account it touched,
// with post-state values.
type Diff struct {
	Accounts map[common.Address]*AccountDiff
}

// NewDiff creates an empty diff.
func NewDiff() *Diff {
	return &Diff{Accounts: make(map[common.Address]*AccountDiff)}
}

// Account returns the diff entry for addr, creating it if needed.
func (d *Diff) Account(addr common.Address) *AccountDiff {
	ad, ok := d.Accounts[addr]
	if !ok {
		ad = &AccountDiff{Storage: make(map[common.Hash]*uint256.Int)}
		d.Accounts[addr] = ad
	}
	return ad
}

// sortedAddresses returns the touched addresses in ascending order, so
// that diff application walks the account trie deterministically.
func (d *Diff) sortedAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(d.Accounts))
	for addr := range d.Accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}

// sortedSlots returns the touched storage slots of one account in
// ascending key order.
func (ad *AccountDiff) sortedSlots() []common.Hash {
	slots := make([]common.Hash, 0, len(ad.Storage))
	for slot := range ad.Storage {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Cmp(slots[j]) < 0
	})
	return slots
}
