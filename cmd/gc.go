package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/gc"
	"github.com/cocoonstack/localnet/registry"
)

var gcCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc [flags]",
		Short: "Remove services and node directories the registry no longer records",
		Args:  cobra.NoArgs,
		RunE:  runGC,
	}
	cmd.Flags().Bool("dry-run", false, "only list what would be removed")
	return cmd
}()

func runGC(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctrl, err := initController()
	if err != nil {
		return err
	}
	return withRegistry(ctx, false, func(reg *registry.NodeRegistry) error {
		services, dirs := gc.Take(conf, reg).Orphans()
		out := cmd.OutOrStdout()
		if len(services) == 0 && len(dirs) == 0 {
			_, _ = fmt.Fprintln(out, "Nothing to collect.")
			return nil
		}
		for _, s := range services {
			_, _ = fmt.Fprintf(out, "service %s\n", s)
		}
		for _, d := range dirs {
			_, _ = fmt.Fprintf(out, "dir     %s\n", d)
		}
		if dryRun {
			return nil
		}
		return gc.Collect(ctx, ctrl, services, dirs)
	})
}
