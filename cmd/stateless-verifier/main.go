// Command stateless-verifier re-executes blocks from witnesses and
// checks the resulting state roots, either from witness files or
// streamed from a JSON-RPC endpoint.
package main

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

var verbosity int

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stateless-verifier",
		Short:         "Verify blocks statelessly from witnesses",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), false)
			log.SetDefault(log.NewLogger(handler))
		},
	}
	root.PersistentFlags().IntVar(&verbosity, "verbosity", 3, "log level 0-5")

	root.AddCommand(newRunFileCommand())
	root.AddCommand(newRunRPCCommand())
	root.AddCommand(newDumpWitnessCommand())
	return root
}
