package cmd

import (
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/registry"
)

var killCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill [flags]",
		Short: "Stop every local node and faucet and delete the registry",
		Args:  cobra.NoArgs,
		RunE:  runKill,
	}
	cmd.Flags().Bool("keep-directories", false, "keep node data and log directories")
	return cmd
}()

func runKill(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.kill")
	keep, _ := cmd.Flags().GetBool("keep-directories")
	orch, err := initOrchestrator()
	if err != nil {
		return err
	}

	return withRegistry(ctx, true, func(reg *registry.NodeRegistry) error {
		if !reg.Active() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No local network is currently running")
			return reg.Delete()
		}
		n := len(reg.All())
		if err := orch.Kill(ctx, reg, keep); err != nil {
			return err
		}
		if err := reg.Delete(); err != nil {
			return err
		}
		logger.Infof(ctx, "killed %d services", n)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Local network stopped (%d services)\n", n)
		return nil
	})
}
