package cmd

import (
	"errors"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/localnet"
	"github.com/cocoonstack/localnet/registry"
)

var runCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Start a fresh local network",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	addNetworkFlags(cmd)
	cmd.Flags().String("faucet-path", "", "path to the faucet binary; empty starts no faucet")
	cmd.Flags().String("faucet-version", "", "version of the faucet binary, recorded only")
	cmd.Flags().Bool("clean", false, "kill any existing local network and delete its directories first")
	return cmd
}()

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.run")
	opts, err := networkOptionsFromFlags(cmd, false)
	if err != nil {
		return err
	}
	clean, _ := cmd.Flags().GetBool("clean")
	orch, err := initOrchestrator()
	if err != nil {
		return err
	}

	return withRegistry(ctx, false, func(reg *registry.NodeRegistry) error {
		if clean && reg.Active() {
			logger.Infof(ctx, "cleaning existing local network")
			if err := orch.Kill(ctx, reg, false); err != nil {
				return fmt.Errorf("clean: %w", err)
			}
		}
		if clean {
			if err := reg.Delete(); err != nil {
				return err
			}
		}
		sum, err := orch.Run(ctx, opts, reg)
		if errors.Is(err, localnet.ErrAlreadyRunning) {
			return fmt.Errorf("%w (or pass --clean)", err)
		}
		return reportRun(cmd, sum, err)
	})
}
