// Package verifier orchestrates stateless verification: it seeds a state
// view from a loaded witness, drives the execution engine across the
// block's transactions, commits the resulting diffs in order, and
// compares the recomputed root against the header's declared root.
package verifier

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/eth2030/stateless-verifier/chunk"
	"github.com/eth2030/stateless-verifier/state"
	"github.com/eth2030/stateless-verifier/trie"
	"github.com/eth2030/stateless-verifier/witness"
)

// TxContext carries one transaction and its block environment into the
// execution engine.
type TxContext struct {
	ChainID uint64
	Header  *types.Header
	Index   int // position within the block
	Tx      *types.Transaction
	Sender  common.Address
}

// Receipt is the engine-reported outcome of one transaction. A reverted
// transaction is still a valid outcome; its diff (gas debit, nonce bump)
// is committed like any other.
type Receipt struct {
	GasUsed  uint64
	Reverted bool
}

// ExecutionEngine executes transactions against a state view. Engines
// read through the view and report their writes as a diff; they never
// mutate the view directly. An error aborts the whole block.
type ExecutionEngine interface {
	ExecuteTransaction(txctx *TxContext, view *state.View) (*Receipt, *state.Diff, error)
}

// EngineFaultError wraps an unrecoverable engine failure with the
// transaction that triggered it.
type EngineFaultError struct {
	TxIndex int
	Err     error
}

func (e *EngineFaultError) Error() string {
	return fmt.Sprintf("execution engine fault at transaction %d: %v", e.TxIndex, e.Err)
}

func (e *EngineFaultError) Unwrap() error { return e.Err }

// RootMismatchError reports a completed execution whose root disagrees
// with the header. This is the substantive "verification failed" signal:
// unlike missing data, the answer is known and it is negative.
type RootMismatchError struct {
	Expected common.Hash // header-declared post-state root
	Computed common.Hash // root reconstructed by re-execution
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("state root mismatch: header declares %x, computed %x", e.Expected, e.Computed)
}

// Status classifies a verification outcome.
type Status int

const (
	// StatusVerified means re-execution reproduced the declared root.
	StatusVerified Status = iota
	// StatusRootMismatch means execution completed but the roots differ.
	StatusRootMismatch
	// StatusMissingData means the witness lacked a node, bytecode or
	// ancestor hash that a legitimate read needed.
	StatusMissingData
	// StatusExecutionError means the engine reported a fatal fault.
	StatusExecutionError
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusRootMismatch:
		return "root mismatch"
	case StatusMissingData:
		return "missing data"
	case StatusExecutionError:
		return "execution error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the verdict for one block.
type Outcome struct {
	Status      Status
	BlockNumber uint64
	Root        common.Hash // computed post-state root, when execution completed
	Err         error       // detail for every status but StatusVerified
}

// Verified reports whether the block passed.
func (o *Outcome) Verified() bool {
	return o.Status == StatusVerified
}

func (o *Outcome) String() string {
	if o.Verified() {
		return fmt.Sprintf("block %d verified, root %x", o.BlockNumber, o.Root)
	}
	return fmt.Sprintf("block %d failed (%s): %v", o.BlockNumber, o.Status, o.Err)
}

// Verifier drives block and chunk verification with a pluggable
// execution engine. Instances are stateless and safe for concurrent use
// as long as the engine is.
type Verifier struct {
	engine ExecutionEngine
	logger log.Logger
}

// New creates a verifier around the given engine.
func New(engine ExecutionEngine, logger log.Logger) *Verifier {
	if logger == nil {
		logger = log.Root()
	}
	return &Verifier{engine: engine, logger: logger}
}

// VerifyBlock runs one witness end to end. A malformed witness is a
// returned error; every post-load failure is reported in the Outcome.
func (v *Verifier) VerifyBlock(w *witness.BlockWitness) (*Outcome, error) {
	loaded, err := witness.Load(w)
	if err != nil {
		return nil, err
	}
	return v.verifyLoaded(loaded), nil
}

func (v *Verifier) verifyLoaded(loaded *witness.Loaded) *Outcome {
	w := loaded.Witness
	number := w.Number()
	logger := v.logger.New("block", number)

	view, err := state.NewView(w.PrevStateRoot, loaded.Nodes, loaded.Codes)
	if err != nil {
		return v.failure(number, err)
	}
	view.SetBlockHashes(loaded.BlockHashes)

	for i, tx := range loaded.Transactions {
		txctx := &TxContext{
			ChainID: w.ChainID,
			Header:  w.Header,
			Index:   i,
			Tx:      tx,
			Sender:  loaded.Senders[i],
		}
		receipt, diff, err := v.engine.ExecuteTransaction(txctx, view)
		if err != nil {
			return v.failure(number, wrapEngineErr(i, err))
		}
		if receipt.Reverted {
			logger.Debug("Transaction reverted", "index", i, "hash", tx.Hash())
		}
		// Diffs commit strictly in transaction order: later transactions
		// read state written by earlier ones.
		if err := view.ApplyDiff(diff); err != nil {
			return v.failure(number, err)
		}
	}

	if err := applyWithdrawals(view, w.Withdrawals); err != nil {
		return v.failure(number, err)
	}

	computed := view.Root()
	if declared := w.PostStateRoot(); computed != declared {
		logger.Warn("Block verification failed", "declared", declared, "computed", computed)
		return &Outcome{
			Status:      StatusRootMismatch,
			BlockNumber: number,
			Root:        computed,
			Err:         &RootMismatchError{Expected: declared, Computed: computed},
		}
	}
	logger.Debug("Block verified", "root", computed, "txs", len(loaded.Transactions))
	return &Outcome{Status: StatusVerified, BlockNumber: number, Root: computed}
}

// VerifyChunk verifies a contiguous run of blocks as one unit,
// short-circuiting on the first failure. The returned outcomes cover the
// blocks processed so far, including a failing one; load and continuity
// problems are returned as an error instead.
func (v *Verifier) VerifyChunk(ws []*witness.BlockWitness) ([]*Outcome, *chunk.Info, error) {
	if err := chunk.PreCheck(ws); err != nil {
		return nil, nil, err
	}

	tracker := chunk.NewTracker()
	outcomes := make([]*Outcome, 0, len(ws))
	for _, w := range ws {
		if err := tracker.Observe(w); err != nil {
			return outcomes, nil, err
		}
		loaded, err := witness.Load(w)
		if err != nil {
			return outcomes, nil, err
		}
		outcome := v.verifyLoaded(loaded)
		outcomes = append(outcomes, outcome)
		if !outcome.Verified() {
			return outcomes, nil, nil
		}
		tracker.Advance(outcome.Root, loaded.Transactions)
	}

	info := chunk.NewInfo(ws, tracker.EndingRoot())
	return outcomes, info, nil
}

// failure classifies an error into the outcome taxonomy: witness
// insufficiency is missing data, everything else is an execution error.
func (v *Verifier) failure(number uint64, err error) *Outcome {
	status := StatusExecutionError
	var (
		missingNode *trie.MissingNodeError
		missingCode *state.MissingCodeError
		missingHash *state.MissingBlockHashError
	)
	if errors.As(err, &missingNode) || errors.As(err, &missingCode) || errors.As(err, &missingHash) {
		status = StatusMissingData
	}
	v.logger.Warn("Block verification aborted", "block", number, "status", status, "err", err)
	return &Outcome{Status: status, BlockNumber: number, Err: err}
}

func wrapEngineErr(txIndex int, err error) error {
	var (
		missingNode *trie.MissingNodeError
		missingCode *state.MissingCodeError
		missingHash *state.MissingBlockHashError
	)
	// Witness insufficiency surfacing through the engine keeps its
	// identity; anything else is an engine fault.
	if errors.As(err, &missingNode) || errors.As(err, &missingCode) || errors.As(err, &missingHash) {
		return err
	}
	return &EngineFaultError{TxIndex: txIndex, Err: err}
}

// applyWithdrawals credits withdrawal amounts (denominated in gwei) to
// their target accounts.
func applyWithdrawals(view *state.View, withdrawals types.Withdrawals) error {
	if len(withdrawals) == 0 {
		return nil
	}
	diff := state.NewDiff()
	for _, wd := range withdrawals {
		ad := diff.Account(wd.Address)
		if ad.Balance == nil {
			acct, err := view.Account(wd.Address)
			if err != nil {
				return err
			}
			ad.Balance = new(uint256.Int)
			if acct != nil {
				ad.Balance.Set(acct.Balance)
				ad.Nonce = acct.Nonce
			}
		}
		amount := new(uint256.Int).Mul(uint256.NewInt(wd.Amount), uint256.NewInt(params.GWei))
		ad.Balance.Add(ad.Balance, amount)
	}
	return view.ApplyDiff(diff)
}
