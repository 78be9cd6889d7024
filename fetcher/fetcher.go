// Package fetcher retrieves block witnesses over JSON-RPC, with bounded
// retry and an ordered prefetch pipeline feeding verification.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2030/stateless-verifier/witness"
)

// Config controls one fetcher client. The zero value is completed by
// Sanitize; construct explicitly rather than through globals.
type Config struct {
	// URL of the JSON-RPC endpoint.
	URL string
	// Method is the RPC method returning a block witness by number.
	Method string
	// Retries is the number of attempts per block beyond the first.
	Retries int
	// Backoff is the wait between attempts, doubled every retry.
	Backoff time.Duration
	// Prefetch is how many blocks are fetched ahead of the consumer.
	Prefetch int
}

// DefaultMethod is the witness-by-number RPC method queried by default.
const DefaultMethod = "stateless_getBlockWitness"

// Sanitize fills in defaults for unset fields.
func (c Config) Sanitize() Config {
	if c.Method == "" {
		c.Method = DefaultMethod
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 4
	}
	return c
}

// Client fetches witnesses from one endpoint. Safe for concurrent use.
type Client struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	cfg    Config
	logger log.Logger
}

// Dial connects to the configured endpoint.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	c, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: dial %s: %w", cfg.URL, err)
	}
	return NewClient(c, cfg, logger), nil
}

// NewClient wraps an existing RPC client. Used by tests with in-process
// servers.
func NewClient(c *rpc.Client, cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Root()
	}
	return &Client{
		rpc:    c,
		eth:    ethclient.NewClient(c),
		cfg:    cfg.Sanitize(),
		logger: logger,
	}
}

// Close tears down the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID queries the endpoint's chain id.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// Head returns the endpoint's latest block number.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BlockWitness fetches the witness for one block, retrying transient
// failures with exponential backoff.
func (c *Client) BlockWitness(ctx context.Context, number uint64) (*witness.BlockWitness, error) {
	backoff := c.cfg.Backoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying witness fetch", "block", number, "attempt", attempt, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		var w witness.BlockWitness
		if err := c.rpc.CallContext(ctx, &w, c.cfg.Method, hexutil.Uint64(number)); err != nil {
			lastErr = err
			continue
		}
		return &w, nil
	}
	return nil, fmt.Errorf("fetcher: witness for block %d: %w", number, lastErr)
}

// Result is one delivered witness, or the error that replaced it.
type Result struct {
	Number  uint64
	Witness *witness.BlockWitness
	Err     error
}

// Stream fetches witnesses for [start, end] with up to Prefetch blocks
// in flight, delivering them strictly in block order. The channel closes
// after the last block or when ctx is cancelled; per-block fetch
// failures are delivered as Results, not dropped.
func (c *Client) Stream(ctx context.Context, start, end uint64) <-chan Result {
	type slot struct {
		number uint64
		done   chan Result
	}
	pending := make(chan slot, c.cfg.Prefetch)
	out := make(chan Result)

	go func() {
		defer close(pending)
		for n := start; n <= end; n++ {
			s := slot{number: n, done: make(chan Result, 1)}
			select {
			case pending <- s:
			case <-ctx.Done():
				return
			}
			go func() {
				w, err := c.BlockWitness(ctx, s.number)
				s.done <- Result{Number: s.number, Witness: w, Err: err}
			}()
		}
	}()
	go func() {
		defer close(out)
		for s := range pending {
			r := <-s.done
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
