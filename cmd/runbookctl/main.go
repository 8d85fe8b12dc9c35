// Command runbookctl is the engine's CLI driver. It wires the parser,
// registry, planner, artifact store, state manager, and executor
// together behind three subcommands: plan, run, and resume. Output
// formatting and export are explicitly out of scope (§1); the result
// is printed as indented JSON only.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "runbookctl",
		Short:         "Compile and execute compliance-analysis runbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("state-dir", "./runbookctl-data", "base directory for run state and artifacts")

	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newResumeCmd())
	return cmd
}
