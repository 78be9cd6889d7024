package fetcher

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2030/stateless-verifier/witness"
)

// witnessAPI serves witnesses in-process, with scripted failures.
type witnessAPI struct {
	mu        sync.Mutex
	witnesses map[uint64]*witness.BlockWitness
	failures  map[uint64]int // remaining failures per block
	jitter    time.Duration
}

func (api *witnessAPI) GetBlockWitness(number hexutil.Uint64) (*witness.BlockWitness, error) {
	api.mu.Lock()
	if api.failures[uint64(number)] > 0 {
		api.failures[uint64(number)]--
		api.mu.Unlock()
		return nil, errors.New("temporarily unavailable")
	}
	w, ok := api.witnesses[uint64(number)]
	jitter := api.jitter
	api.mu.Unlock()

	if jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(jitter))))
	}
	if !ok {
		return nil, errors.New("unknown block")
	}
	return w, nil
}

func testClient(t *testing.T, api *witnessAPI, cfg Config) *Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("stateless", api); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(server.Stop)
	client := NewClient(rpc.DialInProc(server), cfg, nil)
	t.Cleanup(client.Close)
	return client
}

func serverWitness(number uint64) *witness.BlockWitness {
	return &witness.BlockWitness{
		ChainID: 1,
		Header: &types.Header{
			Number:     new(big.Int).SetUint64(number),
			Difficulty: new(big.Int),
			GasLimit:   30_000_000,
		},
		PrevStateRoot: common.Hash{byte(number)},
	}
}

func TestBlockWitness(t *testing.T) {
	api := &witnessAPI{witnesses: map[uint64]*witness.BlockWitness{
		42: serverWitness(42),
	}}
	client := testClient(t, api, Config{})

	w, err := client.BlockWitness(context.Background(), 42)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if w.Number() != 42 || w.PrevStateRoot != (common.Hash{42}) {
		t.Errorf("witness = %+v", w)
	}
}

func TestBlockWitnessRetries(t *testing.T) {
	api := &witnessAPI{
		witnesses: map[uint64]*witness.BlockWitness{7: serverWitness(7)},
		failures:  map[uint64]int{7: 2},
	}
	client := testClient(t, api, Config{Retries: 3, Backoff: time.Millisecond})

	w, err := client.BlockWitness(context.Background(), 7)
	if err != nil {
		t.Fatalf("fetch with retries: %v", err)
	}
	if w.Number() != 7 {
		t.Errorf("witness number = %d", w.Number())
	}
}

func TestBlockWitnessRetriesExhausted(t *testing.T) {
	api := &witnessAPI{
		witnesses: map[uint64]*witness.BlockWitness{7: serverWitness(7)},
		failures:  map[uint64]int{7: 10},
	}
	client := testClient(t, api, Config{Retries: 2, Backoff: time.Millisecond})

	if _, err := client.BlockWitness(context.Background(), 7); err == nil {
		t.Fatal("fetch succeeded despite persistent failures")
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	const start, end = 10, 30
	api := &witnessAPI{
		witnesses: make(map[uint64]*witness.BlockWitness),
		jitter:    2 * time.Millisecond,
	}
	for n := uint64(start); n <= end; n++ {
		api.witnesses[n] = serverWitness(n)
	}
	client := testClient(t, api, Config{Prefetch: 8})

	want := uint64(start)
	for r := range client.Stream(context.Background(), start, end) {
		if r.Err != nil {
			t.Fatalf("block %d: %v", r.Number, r.Err)
		}
		if r.Number != want {
			t.Fatalf("got block %d, want %d", r.Number, want)
		}
		want++
	}
	if want != end+1 {
		t.Errorf("stream stopped at %d", want-1)
	}
}

func TestStreamReportsFailures(t *testing.T) {
	api := &witnessAPI{
		witnesses: map[uint64]*witness.BlockWitness{1: serverWitness(1)},
		// block 2 is unknown and always fails
	}
	client := testClient(t, api, Config{Prefetch: 2, Backoff: time.Millisecond})

	var results []Result
	for r := range client.Stream(context.Background(), 1, 2) {
		results = append(results, r)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("block 1: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("block 2 fetch succeeded unexpectedly")
	}
}

func TestStreamCancellation(t *testing.T) {
	api := &witnessAPI{witnesses: make(map[uint64]*witness.BlockWitness)}
	for n := uint64(0); n < 1000; n++ {
		api.witnesses[n] = serverWitness(n)
	}
	client := testClient(t, api, Config{Prefetch: 2})

	ctx, cancel := context.WithCancel(context.Background())
	stream := client.Stream(ctx, 0, 999)
	<-stream
	cancel()

	// The stream must terminate instead of producing all 1000 blocks.
	count := 0
	for range stream {
		count++
	}
	if count > 100 {
		t.Errorf("stream delivered %d results after cancel", count)
	}
}
