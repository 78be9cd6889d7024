package chunk

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/stateless-verifier/witness"
)

func chunkWitness(chainID, number uint64, prevRoot, postRoot common.Hash) *witness.BlockWitness {
	return &witness.BlockWitness{
		ChainID: chainID,
		Header: &types.Header{
			Number:     new(big.Int).SetUint64(number),
			Difficulty: new(big.Int),
			Root:       postRoot,
			GasLimit:   30_000_000,
		},
		PrevStateRoot: prevRoot,
	}
}

// linkedChunk builds witnesses for blocks 10, 11, 12 with linked roots
// r9→r10→r11→r12.
func linkedChunk() []*witness.BlockWitness {
	r := func(i byte) common.Hash { return common.Hash{i} }
	return []*witness.BlockWitness{
		chunkWitness(1, 10, r(9), r(10)),
		chunkWitness(1, 11, r(10), r(11)),
		chunkWitness(1, 12, r(11), r(12)),
	}
}

func TestPreCheck(t *testing.T) {
	ws := linkedChunk()
	if err := PreCheck(ws); err != nil {
		t.Fatalf("linked chunk rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]*witness.BlockWitness) []*witness.BlockWitness
	}{
		{"empty", func(ws []*witness.BlockWitness) []*witness.BlockWitness { return nil }},
		{"reordered", func(ws []*witness.BlockWitness) []*witness.BlockWitness {
			return []*witness.BlockWitness{ws[0], ws[2], ws[1]}
		}},
		{"gap", func(ws []*witness.BlockWitness) []*witness.BlockWitness {
			return []*witness.BlockWitness{ws[0], ws[2]}
		}},
		{"chain id mismatch", func(ws []*witness.BlockWitness) []*witness.BlockWitness {
			ws[1].ChainID = 2
			return ws
		}},
		{"unlinked roots", func(ws []*witness.BlockWitness) []*witness.BlockWitness {
			ws[1].PrevStateRoot = common.HexToHash("0xff")
			return ws
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PreCheck(tt.mutate(linkedChunk()))
			var ce *ContinuityError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ContinuityError", err)
			}
		})
	}
}

func TestTracker(t *testing.T) {
	ws := linkedChunk()
	tr := NewTracker()

	for _, w := range ws {
		if err := tr.Observe(w); err != nil {
			t.Fatalf("observe block %d: %v", w.Number(), err)
		}
		tr.Advance(w.PostStateRoot(), nil)
	}
	if got := tr.EndingRoot(); got != (common.Hash{12}) {
		t.Errorf("ending root = %x, want %x", got, common.Hash{12})
	}
}

func TestTrackerRejectsOutOfOrder(t *testing.T) {
	ws := linkedChunk()
	tr := NewTracker()
	if err := tr.Observe(ws[0]); err != nil {
		t.Fatalf("observe: %v", err)
	}
	tr.Advance(ws[0].PostStateRoot(), nil)

	err := tr.Observe(ws[2])
	var ce *ContinuityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ContinuityError", err)
	}
	if ce.Block != 12 {
		t.Errorf("block = %d, want 12", ce.Block)
	}
}

// The tracker catches a block whose witness claims the right static
// linkage but whose verified ending root diverged.
func TestTrackerRootMismatch(t *testing.T) {
	ws := linkedChunk()
	tr := NewTracker()
	if err := tr.Observe(ws[0]); err != nil {
		t.Fatalf("observe: %v", err)
	}
	// Block 10 verified to a different root than its header declared.
	tr.Advance(common.HexToHash("0xaaaa"), nil)

	err := tr.Observe(ws[1])
	var ce *ContinuityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ContinuityError", err)
	}
}

func TestPublicInputHash(t *testing.T) {
	ws := linkedChunk()
	info := NewInfo(ws, ws[2].PostStateRoot())

	if info.ChainID != 1 || info.PrevStateRoot != (common.Hash{9}) || info.PostStateRoot != (common.Hash{12}) {
		t.Fatalf("info = %+v", info)
	}

	h1 := info.PublicInputHash()
	if h1 == (common.Hash{}) {
		t.Fatal("zero public input hash")
	}
	if h2 := info.PublicInputHash(); h2 != h1 {
		t.Errorf("public input hash not deterministic: %x != %x", h1, h2)
	}

	// Any field change must move the commitment.
	other := *info
	other.PostStateRoot = common.HexToHash("0x1234")
	if other.PublicInputHash() == h1 {
		t.Error("commitment ignores post state root")
	}
}

// TestDataHashTransactionCountWidth checks that the commitment keeps
// the full transaction count; counts that agree in their low 16 bits
// must still produce distinct data hashes.
func TestDataHashTransactionCountWidth(t *testing.T) {
	build := func(n int) []*witness.BlockWitness {
		w := chunkWitness(1, 10, common.Hash{9}, common.Hash{10})
		w.Transactions = make([]hexutil.Bytes, n)
		return []*witness.BlockWitness{w}
	}

	small := NewInfo(build(1), common.Hash{10})
	large := NewInfo(build(1<<16+1), common.Hash{10})
	if small.DataHash == large.DataHash {
		t.Error("data hash ignores high bits of the transaction count")
	}
	if small.TxBytesHash != large.TxBytesHash {
		t.Error("empty transactions moved the tx bytes hash")
	}
}

func TestQueueHashRollsOverTransactions(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})

	tr := NewTracker()
	tr.Advance(common.Hash{1}, types.Transactions{tx})
	withTx := tr.QueueHash()

	empty := NewTracker()
	empty.Advance(common.Hash{1}, nil)
	if withTx == empty.QueueHash() {
		t.Error("queue hash ignores transactions")
	}
	if empty.QueueHash() != (common.Hash{}) {
		t.Error("queue hash moved without transactions")
	}
}
