package localnet

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/projecteru2/core/log"

	"github.com/cocoonstack/localnet/metrics"
	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

// Run starts opts.Count nodes one after another, then the faucet for a
// fresh network. Each start is separated by opts.Interval. A node that
// fails to start or validate is recorded Failed and the batch continues;
// the per-node failures come back as one *PartialFailureError alongside
// the summary. Registry save failures abort the call.
func (o *Orchestrator) Run(ctx context.Context, opts types.LocalNetworkOptions, reg *registry.NodeRegistry) (*Summary, error) {
	logger := log.WithFunc("localnet.Run")
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !opts.Join && reg.Active() {
		return nil, ErrAlreadyRunning
	}
	if !opts.SkipValidation && o.prober == nil {
		return nil, fmt.Errorf("validation requested but no prober configured")
	}

	networkID, peers := o.seedPeers(opts, reg)
	if opts.Join && len(peers) == 0 && !reg.Active() {
		return nil, ErrNoNetwork
	}
	if !opts.Join {
		networkID = utils.NewNetworkID()
		reg.SetBootstrap(networkID, nil)
	}
	if err := reg.Save(); err != nil {
		return nil, err
	}

	summary := &Summary{NetworkID: networkID, Requested: opts.Count}
	var failures []NodeFailure
	total := opts.Count
	idx := nextIndex(reg, opts.OwnerPrefix)

	for i := range opts.Count {
		if i > 0 {
			if err := o.sleep(ctx, opts.Interval); err != nil {
				return summary, err
			}
		}
		genesis := !opts.Join && i == 0
		rec, failure, err := o.addNode(ctx, &opts, reg, idx+i, genesis, peers)
		if err != nil {
			return summary, err
		}
		summary.record(rec)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		// The genesis node's address seeds the rest of this call.
		if genesis && rec.ListenAddr != "" {
			peers = []string{rec.ListenAddr}
			reg.SetBootstrap("", peers)
			if err := reg.Save(); err != nil {
				return summary, err
			}
		}
	}

	if opts.FaucetBinPath != "" && !opts.Join {
		total++
		if opts.Count > 0 {
			if err := o.sleep(ctx, opts.Interval); err != nil {
				return summary, err
			}
		}
		rec, failure, err := o.addFaucet(ctx, &opts, reg, peers)
		if err != nil {
			return summary, err
		}
		summary.record(rec)
		if failure != nil {
			failures = append(failures, *failure)
		}
	}

	recordGauge(reg)
	logger.Infof(ctx, "network %s: %d/%d nodes running", networkID, summary.Running, opts.Count)
	if len(failures) > 0 {
		return summary, &PartialFailureError{Op: "run", Total: total, Failures: failures}
	}
	return summary, nil
}

// seedPeers resolves the peers every node of this call starts with. A join
// without explicit peers attaches to the network held in the registry.
func (o *Orchestrator) seedPeers(opts types.LocalNetworkOptions, reg *registry.NodeRegistry) (string, []string) {
	networkID, bootstrap := reg.Bootstrap()
	if !opts.Join {
		return networkID, nil
	}
	if len(opts.Peers) > 0 {
		return networkID, slices.Clone(opts.Peers)
	}
	if len(bootstrap) > 0 {
		return networkID, bootstrap
	}
	var peers []string
	for _, rec := range reg.All() {
		if rec.Role == types.RoleNode && rec.Status == types.NodeStatusRunning && rec.ListenAddr != "" {
			peers = append(peers, rec.ListenAddr)
		}
	}
	return networkID, peers
}

func (o *Orchestrator) addNode(ctx context.Context, opts *types.LocalNetworkOptions, reg *registry.NodeRegistry, idx int, genesis bool, peers []string) (*types.NodeRecord, *NodeFailure, error) {
	rec, err := o.newRecord(opts, reg, types.RoleNode, idx, opts.NodeBinPath, opts.NodeVersion)
	if err != nil {
		return nil, nil, err
	}
	if err := o.insert(reg, rec); err != nil {
		return nil, nil, err
	}
	spec := service.Spec{
		Name:       rec.ServiceName,
		ExePath:    rec.BinPath,
		Args:       nodeArgs(rec, opts, genesis, peers),
		WorkingDir: rec.DataDir,
		LogFile:    logFile(rec),
	}
	var validate func(context.Context, *types.NodeRecord) error
	if !opts.SkipValidation {
		validate = o.validateNode
	}
	failure, err := o.launch(ctx, reg, rec, spec, validate)
	return rec, failure, err
}

func (o *Orchestrator) addFaucet(ctx context.Context, opts *types.LocalNetworkOptions, reg *registry.NodeRegistry, peers []string) (*types.NodeRecord, *NodeFailure, error) {
	rec, err := o.newRecord(opts, reg, types.RoleFaucet, 0, opts.FaucetBinPath, opts.FaucetVersion)
	if err != nil {
		return nil, nil, err
	}
	if err := o.insert(reg, rec); err != nil {
		return nil, nil, err
	}
	spec := service.Spec{
		Name:       rec.ServiceName,
		ExePath:    rec.BinPath,
		Args:       faucetArgs(peers),
		WorkingDir: rec.DataDir,
		LogFile:    logFile(rec),
	}
	var validate func(context.Context, *types.NodeRecord) error
	if !opts.SkipValidation {
		validate = o.validateFaucet
	}
	failure, err := o.launch(ctx, reg, rec, spec, validate)
	return rec, failure, err
}

func (o *Orchestrator) newRecord(opts *types.LocalNetworkOptions, reg *registry.NodeRegistry, role types.Role, idx int, bin, version string) (*types.NodeRecord, error) {
	now := o.now()
	base := baseName(role, idx)
	rec := &types.NodeRecord{
		ServiceName: serviceName(opts.OwnerPrefix, role, idx),
		Role:        role,
		Status:      types.NodeStatusAdded,
		DataDir:     o.conf.NodeDataDir(opts.OwnerPrefix, base),
		LogDir:      o.conf.NodeLogDir(opts.OwnerPrefix, base),
		BinPath:     bin,
		BinVersion:  version,
		Owner:       opts.Owner,
		OwnerPrefix: opts.OwnerPrefix,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if role == types.RoleNode {
		ports, err := o.allocatePorts(reg, 2) //nolint:mnd
		if err != nil {
			return nil, err
		}
		rec.Port, rec.RPCPort = ports[0], ports[1]
	}
	if d, err := utils.FileDigest(bin); err == nil {
		rec.BinDigest = d.String()
	}
	return rec, nil
}

// allocatePorts returns n distinct ports not held by any live record.
// The allocator releases each port before returning, so it may hand the
// same one out twice.
func (o *Orchestrator) allocatePorts(reg *registry.NodeRegistry, n int) ([]int, error) {
	taken := map[int]struct{}{}
	for _, rec := range reg.All() {
		if rec.Status == types.NodeStatusRemoved {
			continue
		}
		taken[rec.Port] = struct{}{}
		taken[rec.RPCPort] = struct{}{}
	}
	ports := make([]int, 0, n)
	for attempt := 0; len(ports) < n; attempt++ {
		if attempt == maxPortAttempts {
			return nil, fmt.Errorf("allocate %d distinct ports: gave up after %d attempts", n, attempt)
		}
		port, err := o.freePort()
		if err != nil {
			return nil, err
		}
		if _, dup := taken[port]; dup || port == 0 {
			continue
		}
		taken[port] = struct{}{}
		ports = append(ports, port)
	}
	return ports, nil
}

func (o *Orchestrator) insert(reg *registry.NodeRegistry, rec *types.NodeRecord) error {
	if err := reg.Insert(*rec); err != nil {
		return err
	}
	return reg.Save()
}

// launch installs and starts a recorded service, validates it and persists
// each status change. The returned error is fatal; a per-service failure
// is reported as a NodeFailure with the record left Failed.
func (o *Orchestrator) launch(ctx context.Context, reg *registry.NodeRegistry, rec *types.NodeRecord, spec service.Spec, validate func(context.Context, *types.NodeRecord) error) (*NodeFailure, error) {
	logger := log.WithFunc("localnet.launch")

	if err := utils.EnsureDirs(rec.DataDir, rec.LogDir); err != nil {
		return o.fail(ctx, reg, rec, StageInstall, err)
	}
	if err := o.ctrl.Install(ctx, spec); err != nil {
		return o.fail(ctx, reg, rec, StageInstall, err)
	}
	if err := o.ctrl.Start(ctx, rec.ServiceName); err != nil {
		return o.fail(ctx, reg, rec, StageStart, err)
	}
	if st, err := o.ctrl.Status(ctx, rec.ServiceName); err == nil && st.Kind == types.ProcessRunning {
		rec.PID = st.PID
	}
	if err := o.transition(reg, rec, types.NodeStatusStarting); err != nil {
		return nil, err
	}

	if validate != nil {
		started := o.now()
		if err := validate(ctx, rec); err != nil {
			return o.fail(ctx, reg, rec, StageValidate, err)
		}
		metrics.ObserveValidation(string(rec.Role), o.now().Sub(started).Seconds())
	}
	if err := o.transition(reg, rec, types.NodeStatusRunning); err != nil {
		return nil, err
	}
	metrics.IncStart(string(rec.Role), true)
	logger.Infof(ctx, "%s %s running (pid %d)", rec.Role, rec.ServiceName, rec.PID)
	return nil, nil
}

func (o *Orchestrator) transition(reg *registry.NodeRegistry, rec *types.NodeRecord, to types.NodeStatus) error {
	if err := rec.Transition(to); err != nil {
		return err
	}
	rec.UpdatedAt = o.now()
	if err := reg.Update(*rec); err != nil {
		return err
	}
	return reg.Save()
}

func (o *Orchestrator) fail(ctx context.Context, reg *registry.NodeRegistry, rec *types.NodeRecord, stage Stage, cause error) (*NodeFailure, error) {
	log.WithFunc("localnet.fail").Warnf(ctx, "%s %s failed at %s: %v", rec.Role, rec.ServiceName, stage, cause)
	metrics.IncStart(string(rec.Role), false)
	if err := rec.Fail(cause); err != nil {
		return nil, err
	}
	rec.UpdatedAt = o.now()
	if err := reg.Update(*rec); err != nil {
		return nil, err
	}
	if err := reg.Save(); err != nil {
		return nil, err
	}
	return &NodeFailure{Name: rec.ServiceName, Stage: stage, Err: cause}, nil
}

// validateNode polls the node's RPC inside one bounded window. A process
// that exits while being probed fails at once.
func (o *Orchestrator) validateNode(ctx context.Context, rec *types.NodeRecord) error {
	var (
		info    *probe.NodeInfo
		lastErr error
	)
	err := utils.WaitFor(ctx, o.validationTimeout, o.pollInterval, func() (bool, error) {
		if err := o.checkAlive(ctx, rec); err != nil {
			return false, err
		}
		info, lastErr = o.prober.Probe(ctx, rec.RPCAddr())
		return lastErr == nil, nil
	})
	if err != nil {
		return validationError(err, lastErr)
	}
	rec.PeerID = info.PeerID
	rec.ListenAddr = info.P2PAddr()
	rec.ConnectedPeers = info.ConnectedPeers
	return nil
}

// validateFaucet only requires the controller to report the process running.
func (o *Orchestrator) validateFaucet(ctx context.Context, rec *types.NodeRecord) error {
	err := utils.WaitFor(ctx, o.validationTimeout, o.pollInterval, func() (bool, error) {
		return o.checkAlive(ctx, rec) == nil, nil
	})
	if err != nil {
		return validationError(err, o.checkAlive(ctx, rec))
	}
	return nil
}

func (o *Orchestrator) checkAlive(ctx context.Context, rec *types.NodeRecord) error {
	st, err := o.ctrl.Status(ctx, rec.ServiceName)
	if err != nil {
		return err
	}
	switch st.Kind { //nolint:exhaustive
	case types.ProcessRunning:
		rec.PID = st.PID
		return nil
	case types.ProcessUnknown:
		return fmt.Errorf("service %s vanished", rec.ServiceName)
	default:
		return fmt.Errorf("process exited (%s)", st.Kind)
	}
}

func validationError(err, lastErr error) error {
	if !errors.Is(err, utils.ErrTimeout) {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w (last error: %v)", ErrValidationTimeout, err, lastErr)
	}
	return fmt.Errorf("%w: %w", ErrValidationTimeout, err)
}

// nextIndex returns the first node index not yet used under prefix, so a
// join continues the numbering of the existing network.
func nextIndex(reg *registry.NodeRegistry, prefix string) int {
	idx := 1
	for {
		if _, ok := reg.Find(serviceName(prefix, types.RoleNode, idx)); !ok {
			return idx
		}
		idx++
	}
}

func recordGauge(reg *registry.NodeRegistry) {
	counts := map[string]int{}
	for _, rec := range reg.All() {
		counts[string(rec.Status)]++
	}
	metrics.SetRecords(counts)
}
