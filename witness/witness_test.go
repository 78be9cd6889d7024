package witness

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/eth2030/stateless-verifier/kv"
	"github.com/eth2030/stateless-verifier/trie"
)

var testKey, _ = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")

func testHeader(number uint64, root common.Hash) *types.Header {
	return &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Difficulty: new(big.Int),
		Root:       root,
		GasLimit:   30_000_000,
	}
}

// buildStateNodes commits a small account trie and returns its root and
// the flattened node encodings in deterministic order.
func buildStateNodes(t *testing.T, balances map[common.Address]uint64) (common.Hash, []hexutil.Bytes) {
	t.Helper()
	tr := trie.NewEmpty(kv.NewMemoryStore())
	for addr, balance := range balances {
		acct := types.NewEmptyStateAccount()
		acct.Balance = uint256.NewInt(balance)
		enc, err := rlp.EncodeToBytes(acct)
		if err != nil {
			t.Fatalf("encode account: %v", err)
		}
		if err := tr.Update(crypto.Keccak256(addr[:]), enc); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	store := kv.NewOrderedStore()
	root, err := tr.Commit(store)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	var states []hexutil.Bytes
	for _, key := range store.Keys() {
		blob, _ := store.Get(key)
		states = append(states, blob)
	}
	return root, states
}

func TestLoad(t *testing.T) {
	sender := crypto.PubkeyToAddress(testKey.PublicKey)
	root, states := buildStateNodes(t, map[common.Address]uint64{
		sender: 1_000_000,
	})

	const chainID = 1337
	signer := types.LatestSignerForChainID(big.NewInt(chainID))
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &common.Address{0x42},
		Value:    big.NewInt(100),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	}), signer, testKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rawTx, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}

	w := &BlockWitness{
		ChainID:       chainID,
		Header:        testHeader(100, common.HexToHash("0x01")),
		PrevStateRoot: root,
		Transactions:  []hexutil.Bytes{rawTx},
		BlockHashes:   []common.Hash{common.HexToHash("0x63"), common.HexToHash("0x62")},
		States:        states,
		Codes:         []hexutil.Bytes{{0x60, 0x00}},
	}

	loaded, err := Load(w)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Nodes.Has(root[:]) {
		t.Error("pre-state root node not in node store")
	}
	if len(loaded.Transactions) != 1 || loaded.Senders[0] != sender {
		t.Errorf("sender = %x, want %x", loaded.Senders[0], sender)
	}
	if !loaded.Codes.Has(crypto.Keccak256Hash([]byte{0x60, 0x00})) {
		t.Error("code not imported")
	}
	if got := loaded.BlockHashes[99]; got != common.HexToHash("0x63") {
		t.Errorf("ancestor 99 = %x", got)
	}
	if got := loaded.BlockHashes[98]; got != common.HexToHash("0x62") {
		t.Errorf("ancestor 98 = %x", got)
	}

	// The loaded trie must answer reads for the witnessed account.
	tr, err := trie.New(root, loaded.Nodes)
	if err != nil {
		t.Fatalf("open trie: %v", err)
	}
	enc, err := tr.Get(crypto.Keccak256(sender[:]))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if enc == nil {
		t.Fatal("witnessed account missing from loaded trie")
	}
}

func TestLoadErrors(t *testing.T) {
	root, states := buildStateNodes(t, map[common.Address]uint64{
		{0x01}: 1,
	})

	tests := []struct {
		name  string
		wit   *BlockWitness
		field string
	}{
		{
			name:  "missing header",
			wit:   &BlockWitness{PrevStateRoot: root, States: states},
			field: "header",
		},
		{
			name: "undecodable state node",
			wit: &BlockWitness{
				Header:        testHeader(1, common.Hash{}),
				PrevStateRoot: root,
				States:        []hexutil.Bytes{{0xff, 0x00}},
			},
			field: "states[0]",
		},
		{
			name: "wrong node arity",
			wit: &BlockWitness{
				Header:        testHeader(1, common.Hash{}),
				PrevStateRoot: root,
				States:        []hexutil.Bytes{{0xc3, 0x01, 0x02, 0x03}},
			},
			field: "states[0]",
		},
		{
			name: "pre-state root not witnessed",
			wit: &BlockWitness{
				Header:        testHeader(1, common.Hash{}),
				PrevStateRoot: common.HexToHash("0xbeef"),
			},
			field: "prevStateRoot",
		},
		{
			name: "undecodable transaction",
			wit: &BlockWitness{
				Header:        testHeader(1, common.Hash{}),
				PrevStateRoot: root,
				States:        states,
				Transactions:  []hexutil.Bytes{{0x01, 0x02}},
			},
			field: "transactions[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.wit)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want LoadError", err)
			}
			if le.Field != tt.field {
				t.Errorf("field = %q, want %q", le.Field, tt.field)
			}
		})
	}
}

func TestEmptyPreStateNeedsNoNodes(t *testing.T) {
	w := &BlockWitness{
		Header:        testHeader(0, common.Hash{}),
		PrevStateRoot: types.EmptyRootHash,
	}
	if _, err := Load(w); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	root, states := buildStateNodes(t, map[common.Address]uint64{
		{0xaa}: 7,
	})
	w := &BlockWitness{
		ChainID:       5,
		Header:        testHeader(42, common.HexToHash("0x02")),
		PrevStateRoot: root,
		States:        states,
	}
	path := filepath.Join(t.TempDir(), "witness.json")
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if back.ChainID != 5 || back.PrevStateRoot != root || back.Number() != 42 {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if len(back.States) != len(states) {
		t.Errorf("states length = %d, want %d", len(back.States), len(states))
	}
}
