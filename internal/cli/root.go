package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root telling command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "telling",
		Short: "Developer tooling for the telling telemetry pipeline",
		Long: `Telling ships as a library; this binary is its developer tooling.
Run a local collector to see what an instrumented app would send, or drive
the pipeline end to end against a collector with the emit command.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newCollectCmd(),
		newEmitCmd(),
	)

	return root
}
