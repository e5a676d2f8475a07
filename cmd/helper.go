package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cocoonstack/localnet/localnet"
	"github.com/cocoonstack/localnet/lock"
	"github.com/cocoonstack/localnet/lock/flock"
	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/service/process"
	"github.com/cocoonstack/localnet/types"
)

const probeRequestTimeout = 2 * time.Second

// initController initializes the local process controller.
func initController() (*process.Controller, error) {
	ctrl, err := process.New(conf)
	if err != nil {
		return nil, fmt.Errorf("init service controller: %w", err)
	}
	return ctrl, nil
}

// initOrchestrator initializes the controller and the orchestrator on top of it.
func initOrchestrator() (*localnet.Orchestrator, error) {
	ctrl, err := initController()
	if err != nil {
		return nil, err
	}
	return localnet.New(conf, ctrl, probe.NewHTTP(probeRequestTimeout))
}

// withRegistry runs fn with the registry loaded under the registry lock.
// wait=false refuses to run while another command holds the lock.
func withRegistry(ctx context.Context, wait bool, fn func(*registry.NodeRegistry) error) error {
	l := flock.New(conf.RegistryLock())
	run := func() error {
		reg, err := registry.Load(conf.RegistryFile())
		if err != nil {
			return err
		}
		return fn(reg)
	}
	if wait {
		return lock.WithLock(ctx, l, run)
	}
	err := lock.WithTryLock(ctx, l, run)
	if errors.Is(err, lock.ErrLocked) {
		return fmt.Errorf("another localnet command is operating on this network: %w", err)
	}
	return err
}

// networkOptionsFromFlags builds LocalNetworkOptions for run/join.
func networkOptionsFromFlags(cmd *cobra.Command, join bool) (types.LocalNetworkOptions, error) {
	count, _ := cmd.Flags().GetInt("count")
	interval, _ := cmd.Flags().GetDuration("interval")
	nodePath, _ := cmd.Flags().GetString("node-path")
	nodeVersion, _ := cmd.Flags().GetString("node-version")
	peers, _ := cmd.Flags().GetStringSlice("peer")
	owner, _ := cmd.Flags().GetString("owner")
	ownerPrefix, _ := cmd.Flags().GetString("owner-prefix")
	skip, _ := cmd.Flags().GetBool("skip-validation")
	logFormat, _ := cmd.Flags().GetString("log-format")

	format, err := types.ParseLogFormat(logFormat)
	if err != nil {
		return types.LocalNetworkOptions{}, err
	}
	opts := types.LocalNetworkOptions{
		Count:          count,
		Join:           join,
		Peers:          peers,
		Interval:       interval,
		NodeBinPath:    nodePath,
		NodeVersion:    nodeVersion,
		Owner:          owner,
		OwnerPrefix:    ownerPrefix,
		SkipValidation: skip,
		LogFormat:      format,
	}
	if cmd.Flags().Lookup("faucet-path") != nil {
		opts.FaucetBinPath, _ = cmd.Flags().GetString("faucet-path")
		opts.FaucetVersion, _ = cmd.Flags().GetString("faucet-version")
	}
	return opts, opts.Validate()
}

// addNetworkFlags registers the flags shared by run and join.
func addNetworkFlags(cmd *cobra.Command) {
	cmd.Flags().Int("count", 25, "number of nodes to start")                            //nolint:mnd
	cmd.Flags().Duration("interval", 200*time.Millisecond, "delay between node starts") //nolint:mnd
	cmd.Flags().String("node-path", "", "path to the node binary")
	cmd.Flags().String("node-version", "", "version of the node binary, recorded only")
	cmd.Flags().StringSlice("peer", nil, "bootstrap peer multiaddr (repeatable)")
	cmd.Flags().String("owner", "", "owner tag passed to every node")
	cmd.Flags().String("owner-prefix", "", "prefix namespacing service names and directories")
	cmd.Flags().Bool("skip-validation", false, "do not probe nodes after starting them")
	cmd.Flags().String("log-format", "default", "node log format: default or json")
	_ = cmd.MarkFlagRequired("node-path")
}

// reportRun prints a run summary and passes the run error through.
func reportRun(cmd *cobra.Command, sum *localnet.Summary, err error) error {
	if sum != nil {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Network %s: %d/%d nodes running", sum.NetworkID, sum.Running, sum.Requested)
		if sum.Faucet != "" {
			_, _ = fmt.Fprintf(out, ", faucet %s", sum.Faucet)
		}
		_, _ = fmt.Fprintln(out)
	}
	return err
}
