package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/eth2030/stateless-verifier/engine"
	"github.com/eth2030/stateless-verifier/fetcher"
	"github.com/eth2030/stateless-verifier/verifier"
)

func newRunRPCCommand() *cobra.Command {
	var (
		cfg        fetcher.Config
		startBlock uint64
		endBlock   uint64
		backoffMS  int
	)

	cmd := &cobra.Command{
		Use:   "run-rpc",
		Short: "Fetch witnesses over JSON-RPC and verify them block by block",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg.Backoff = time.Duration(backoffMS) * time.Millisecond

			client, err := fetcher.Dial(ctx, cfg, log.Root())
			if err != nil {
				return err
			}
			defer client.Close()

			if endBlock == 0 {
				head, err := client.Head(ctx)
				if err != nil {
					return fmt.Errorf("query head block: %w", err)
				}
				endBlock = head
			}
			if endBlock < startBlock {
				return fmt.Errorf("end block %d before start block %d", endBlock, startBlock)
			}

			v := verifier.New(engine.New(), log.Root())
			failed := 0
			for r := range client.Stream(ctx, startBlock, endBlock) {
				if r.Err != nil {
					return r.Err
				}
				outcome, err := v.VerifyBlock(r.Witness)
				if err != nil {
					return fmt.Errorf("block %d: %w", r.Number, err)
				}
				fmt.Println(outcome)
				if !outcome.Verified() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d blocks failed verification", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "http://localhost:8545", "JSON-RPC endpoint")
	cmd.Flags().StringVar(&cfg.Method, "method", fetcher.DefaultMethod, "witness RPC method")
	cmd.Flags().IntVar(&cfg.Retries, "retries", 3, "retries per block")
	cmd.Flags().IntVar(&cfg.Prefetch, "prefetch", 4, "blocks fetched ahead of verification")
	cmd.Flags().IntVar(&backoffMS, "backoff-ms", 500, "initial retry backoff in milliseconds")
	cmd.Flags().Uint64Var(&startBlock, "start-block", 0, "first block to verify")
	cmd.Flags().Uint64Var(&endBlock, "end-block", 0, "last block to verify (0 = chain head)")
	return cmd
}
