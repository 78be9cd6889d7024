// Package chunk handles multi-block verification units: the static
// continuity pre-checks, the tracker threading state between blocks, and
// the chunk-level public input commitment.
package chunk

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/stateless-verifier/witness"
)

// ContinuityError reports a break in a chunk's block chain: wrong order,
// a gap, mismatched chain ids or unlinked state roots. It is distinct
// from a per-block root mismatch; the chunk is malformed regardless of
// what execution would produce.
type ContinuityError struct {
	Block  uint64 // block number where the chain breaks
	Reason string
}

func (e *ContinuityError) Error() string {
	return fmt.Sprintf("chunk discontinuity at block %d: %s", e.Block, e.Reason)
}

// PreCheck runs the statically checkable continuity rules over a chunk's
// witnesses: one chain id, strictly sequential block numbers, and each
// block's pre-state root equal to its predecessor's declared post-root.
func PreCheck(ws []*witness.BlockWitness) error {
	if len(ws) == 0 {
		return &ContinuityError{Reason: "empty chunk"}
	}
	for i := 1; i < len(ws); i++ {
		prev, cur := ws[i-1], ws[i]
		if cur.ChainID != prev.ChainID {
			return &ContinuityError{
				Block:  cur.Number(),
				Reason: fmt.Sprintf("chain id %d, previous block has %d", cur.ChainID, prev.ChainID),
			}
		}
		if cur.Number() != prev.Number()+1 {
			return &ContinuityError{
				Block:  cur.Number(),
				Reason: fmt.Sprintf("expected block number %d", prev.Number()+1),
			}
		}
		if cur.PrevStateRoot != prev.PostStateRoot() {
			return &ContinuityError{
				Block:  cur.Number(),
				Reason: fmt.Sprintf("pre-state root %x, previous block ends at %x", cur.PrevStateRoot, prev.PostStateRoot()),
			}
		}
	}
	return nil
}

// Tracker threads verified state from block i into block i+1's expected
// starting conditions. Observe is called before a block is verified,
// Advance after; the tracker also rolls a message-queue style hash over
// the chunk's transactions as its auxiliary continuity value.
type Tracker struct {
	started    bool
	chainID    uint64
	nextNumber uint64
	endingRoot common.Hash
	queueHash  common.Hash
}

// NewTracker creates a tracker. The first observed block initializes the
// expected chain id, number sequence and starting root.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe asserts that w is the next block of the chunk. The first call
// seeds the tracker from w instead.
func (t *Tracker) Observe(w *witness.BlockWitness) error {
	if !t.started {
		t.started = true
		t.chainID = w.ChainID
		t.nextNumber = w.Number() + 1
		t.endingRoot = w.PrevStateRoot
		return nil
	}
	if w.ChainID != t.chainID {
		return &ContinuityError{
			Block:  w.Number(),
			Reason: fmt.Sprintf("chain id %d, chunk has %d", w.ChainID, t.chainID),
		}
	}
	if w.Number() != t.nextNumber {
		return &ContinuityError{
			Block:  w.Number(),
			Reason: fmt.Sprintf("expected block number %d", t.nextNumber),
		}
	}
	if w.PrevStateRoot != t.endingRoot {
		return &ContinuityError{
			Block:  w.Number(),
			Reason: fmt.Sprintf("pre-state root %x, chunk ends at %x", w.PrevStateRoot, t.endingRoot),
		}
	}
	t.nextNumber++
	return nil
}

// Advance records a verified block's ending root and folds its
// transactions into the rolling queue hash.
func (t *Tracker) Advance(postRoot common.Hash, txs types.Transactions) {
	t.endingRoot = postRoot
	for _, tx := range txs {
		txHash := tx.Hash()
		t.queueHash = crypto.Keccak256Hash(t.queueHash[:], txHash[:])
	}
}

// EndingRoot returns the state root after the last advanced block.
func (t *Tracker) EndingRoot() common.Hash {
	return t.endingRoot
}

// QueueHash returns the rolling transaction queue hash.
func (t *Tracker) QueueHash() common.Hash {
	return t.queueHash
}
