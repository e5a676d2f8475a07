package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/registry"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect NAME",
	Short: "Show one registry record (JSON)",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	return withRegistry(commandContext(cmd), true, func(reg *registry.NodeRegistry) error {
		rec, ok := reg.Find(args[0])
		if !ok {
			return fmt.Errorf("inspect %s: %w", args[0], registry.ErrNotFound)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	})
}
