// Package engine provides a reference execution engine handling plain
// value transfers: nonce check and bump, balance moves, gas debit to the
// coinbase. It exists for tests and the CLI demo path; EVM-complete
// engines plug into the verifier through the same interface.
package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/stateless-verifier/state"
	"github.com/eth2030/stateless-verifier/verifier"
)

const transferGas = 21000

// TransferEngine executes value-transfer transactions only. Any
// transaction carrying calldata or creating a contract is rejected as an
// engine fault.
type TransferEngine struct{}

// New creates a transfer engine.
func New() *TransferEngine {
	return &TransferEngine{}
}

// ExecuteTransaction applies one transfer and reports the resulting
// account deltas.
func (e *TransferEngine) ExecuteTransaction(txctx *verifier.TxContext, view *state.View) (*verifier.Receipt, *state.Diff, error) {
	tx := txctx.Tx
	if tx.To() == nil {
		return nil, nil, fmt.Errorf("contract creation not supported")
	}
	if len(tx.Data()) != 0 {
		return nil, nil, fmt.Errorf("calldata not supported")
	}

	sender, err := view.Account(txctx.Sender)
	if err != nil {
		return nil, nil, err
	}
	if sender == nil {
		return nil, nil, fmt.Errorf("sender %x does not exist", txctx.Sender)
	}
	if sender.Nonce != tx.Nonce() {
		return nil, nil, fmt.Errorf("nonce mismatch: account %d, transaction %d", sender.Nonce, tx.Nonce())
	}

	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return nil, nil, fmt.Errorf("transaction value overflows")
	}
	price, overflow := uint256.FromBig(tx.GasPrice())
	if overflow {
		return nil, nil, fmt.Errorf("gas price overflows")
	}
	gasCost := new(uint256.Int).Mul(price, uint256.NewInt(transferGas))
	total := new(uint256.Int).Add(value, gasCost)
	if sender.Balance.Lt(total) {
		return nil, nil, fmt.Errorf("insufficient balance: have %v, need %v", sender.Balance, total)
	}

	diff := state.NewDiff()

	sd := diff.Account(txctx.Sender)
	sd.Nonce = sender.Nonce + 1
	sd.Balance = new(uint256.Int).Sub(sender.Balance, total)

	// Sender may be its own recipient; deltas accumulate on the same
	// diff entry.
	credit := func(addr common.Address, amount *uint256.Int) error {
		ad := diff.Account(addr)
		if ad.Balance == nil {
			acct, err := view.Account(addr)
			if err != nil {
				return err
			}
			ad.Balance = new(uint256.Int)
			if acct != nil {
				ad.Nonce = acct.Nonce
				ad.Balance.Set(acct.Balance)
			}
		}
		ad.Balance.Add(ad.Balance, amount)
		return nil
	}
	if err := credit(*tx.To(), value); err != nil {
		return nil, nil, err
	}
	if err := credit(txctx.Header.Coinbase, gasCost); err != nil {
		return nil, nil, err
	}

	return &verifier.Receipt{GasUsed: transferGas}, diff, nil
}
