package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/eth2030/stateless-verifier/engine"
	"github.com/eth2030/stateless-verifier/verifier"
	"github.com/eth2030/stateless-verifier/witness"
)

func newRunFileCommand() *cobra.Command {
	var asChunk bool

	cmd := &cobra.Command{
		Use:   "run-file [witness.json...]",
		Short: "Verify witnesses from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			witnesses := make([]*witness.BlockWitness, 0, len(args))
			for _, path := range args {
				w, err := witness.ReadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				witnesses = append(witnesses, w)
			}

			v := verifier.New(engine.New(), log.Root())
			if asChunk {
				return runChunk(v, witnesses)
			}
			return runBlocks(v, witnesses)
		},
	}
	cmd.Flags().BoolVar(&asChunk, "chunk", false, "verify the witnesses as one contiguous chunk")
	return cmd
}

func runBlocks(v *verifier.Verifier, witnesses []*witness.BlockWitness) error {
	failed := 0
	for _, w := range witnesses {
		outcome, err := v.VerifyBlock(w)
		if err != nil {
			return err
		}
		fmt.Println(outcome)
		if !outcome.Verified() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d blocks failed verification", failed, len(witnesses))
	}
	return nil
}

func runChunk(v *verifier.Verifier, witnesses []*witness.BlockWitness) error {
	outcomes, info, err := v.VerifyChunk(witnesses)
	for _, outcome := range outcomes {
		fmt.Println(outcome)
	}
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("chunk failed verification")
	}
	fmt.Printf("chunk verified: blocks %d-%d, public input hash %x\n",
		witnesses[0].Number(), witnesses[len(witnesses)-1].Number(), info.PublicInputHash())
	return nil
}
