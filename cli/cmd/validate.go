package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BDNK1/nodeflow/runtime"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow-file>...",
		Short: "Check flow documents without running them",
		Long: `Validate parses each flow and checks its graph: edges must point at known
nodes, ports must match the node family and the graph must be acyclic.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				flow, err := runtime.LoadFlow(path)
				if err == nil {
					err = flow.Validate()
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%d nodes, %d edges)\n", path, len(flow.Nodes), len(flow.Edges))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d flows invalid", failed, len(args))
			}
			return nil
		},
	}
}
