package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moby/term"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/status"
)

// watchInterval re-checks process liveness between registry changes:
// a crashed node does not touch the registry file.
const watchInterval = 5 * time.Second

var statusCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [flags]",
		Short: "Reconcile the registry with live processes and show the network",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().Bool("details", false, "show peer ids, directories and errors; refresh peer counts")
	cmd.Flags().Bool("json", false, "output as JSON")
	cmd.Flags().Bool("fail", false, "exit non-zero if any service is not running")
	cmd.Flags().Bool("watch", false, "keep reporting as the registry changes")
	return cmd
}()

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	details, _ := cmd.Flags().GetBool("details")
	asJSON, _ := cmd.Flags().GetBool("json")
	fail, _ := cmd.Flags().GetBool("fail")
	watch, _ := cmd.Flags().GetBool("watch")

	ctrl, err := initController()
	if err != nil {
		return err
	}
	reporter := status.New(ctrl, probe.NewHTTP(probeRequestTimeout))
	opts := status.Options{Details: details, Fail: fail && !watch}

	render := func() error {
		return withRegistry(ctx, true, func(reg *registry.NodeRegistry) error {
			rep, err := reporter.Report(ctx, reg, opts)
			if rep != nil {
				if watch && !asJSON && isTTY(cmd) {
					_, _ = cmd.OutOrStdout().Write([]byte("\x1b[H\x1b[2J"))
				}
				if werr := writeReport(cmd, rep, details, asJSON); werr != nil {
					return werr
				}
			}
			return err
		})
	}
	if !watch {
		return render()
	}
	return watchStatus(ctx, render)
}

// watchStatus re-renders whenever the registry file is replaced, and at
// least every watchInterval. Saves replace the file by rename, so the
// directory is watched rather than the file.
func watchStatus(ctx context.Context, render func() error) error {
	logger := log.WithFunc("cmd.watchStatus")
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck
	if err := w.Add(filepath.Dir(conf.RegistryFile())); err != nil {
		return err
	}
	base := filepath.Base(conf.RegistryFile())
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	if err := render(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf(ctx, "watch registry: %v", werr)
			continue
		case <-ticker.C:
		}
		if err := render(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
}

func writeReport(cmd *cobra.Command, rep *status.Report, details, asJSON bool) error {
	if asJSON {
		return status.WriteJSON(cmd.OutOrStdout(), rep)
	}
	return status.WriteTable(cmd.OutOrStdout(), rep, details)
}

func isTTY(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(interface{ Fd() uintptr })
	return ok && term.IsTerminal(f.Fd())
}
