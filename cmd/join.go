package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/registry"
)

var joinCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join [flags]",
		Short: "Start nodes that join an existing network",
		Long: "Start nodes that join an existing network. Without --peer the nodes\n" +
			"join the local network recorded in the registry.",
		Args: cobra.NoArgs,
		RunE: runJoin,
	}
	addNetworkFlags(cmd)
	return cmd
}()

func runJoin(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	opts, err := networkOptionsFromFlags(cmd, true)
	if err != nil {
		return err
	}
	orch, err := initOrchestrator()
	if err != nil {
		return err
	}
	return withRegistry(ctx, false, func(reg *registry.NodeRegistry) error {
		sum, err := orch.Run(ctx, opts, reg)
		return reportRun(cmd, sum, err)
	})
}
