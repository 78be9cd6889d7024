package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/eth2030/stateless-verifier/fetcher"
)

func newDumpWitnessCommand() *cobra.Command {
	var (
		cfg       fetcher.Config
		block     uint64
		out       string
		backoffMS int
	)

	cmd := &cobra.Command{
		Use:   "dump-witness",
		Short: "Fetch one block's witness and write it to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg.Backoff = time.Duration(backoffMS) * time.Millisecond

			client, err := fetcher.Dial(ctx, cfg, log.Root())
			if err != nil {
				return err
			}
			defer client.Close()

			w, err := client.BlockWitness(ctx, block)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("witness-%d.json", block)
			}
			if err := w.WriteFile(out); err != nil {
				return err
			}
			fmt.Printf("wrote witness for block %d to %s\n", block, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "http://localhost:8545", "JSON-RPC endpoint")
	cmd.Flags().StringVar(&cfg.Method, "method", fetcher.DefaultMethod, "witness RPC method")
	cmd.Flags().IntVar(&cfg.Retries, "retries", 3, "retries per fetch")
	cmd.Flags().IntVar(&backoffMS, "backoff-ms", 500, "initial retry backoff in milliseconds")
	cmd.Flags().Uint64Var(&block, "block", 0, "block number to dump")
	cmd.Flags().StringVar(&out, "out", "", "output path (default witness-<block>.json)")
	return cmd
}
