package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/cocoonstack/localnet/metrics"
	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

const probeTimeout = 2 * time.Second

var ErrNotAllRunning = errors.New("not all services are running")

// Options controls one report.
type Options struct {
	// Details refreshes peer information of running nodes and widens the table.
	Details bool
	// Fail makes Report return ErrNotAllRunning when anything is not running.
	Fail bool
}

// NodeReport is one registry record together with what was observed live.
type NodeReport struct {
	types.NodeRecord
	Live      types.ProcessKind `json:"live"`
	Corrected bool              `json:"corrected,omitempty"`
	// Previous is the stored status before a correction.
	Previous types.NodeStatus `json:"previous_status,omitempty"`
}

// Report is the reconciled view of a local network.
type Report struct {
	NetworkID      string       `json:"network_id,omitempty"`
	BootstrapPeers []string     `json:"bootstrap_peers,omitempty"`
	Nodes          []NodeReport `json:"nodes"`
	Running        int          `json:"running"`
	Total          int          `json:"total"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// AllRunning reports whether every listed service is Running.
func (r *Report) AllRunning() bool { return r.Running == r.Total }

// Reporter reconciles the registry against live process state.
type Reporter struct {
	ctrl   service.Controller
	prober probe.Prober
	now    func() time.Time
}

// New creates a Reporter. prober is optional; without it Details does not
// refresh peer information.
func New(ctrl service.Controller, prober probe.Prober) *Reporter {
	return &Reporter{ctrl: ctrl, prober: prober, now: time.Now}
}

// Report re-queries every record that has not been removed, corrects
// statuses that disagree with the live process and saves the registry
// before returning, so a status check heals stale records.
func (r *Reporter) Report(ctx context.Context, reg *registry.NodeRegistry, opts Options) (*Report, error) {
	logger := log.WithFunc("status.Report")
	networkID, peers := reg.Bootstrap()
	rep := &Report{NetworkID: networkID, BootstrapPeers: peers, Nodes: []NodeReport{}, GeneratedAt: r.now()}

	dirty := false
	for _, rec := range reg.All() {
		if rec.Status == types.NodeStatusRemoved {
			continue
		}
		nr, changed := r.reconcile(ctx, &rec, opts)
		if changed {
			if err := reg.Update(rec); err != nil {
				return nil, err
			}
			dirty = true
		}
		nr.NodeRecord = rec
		rep.Nodes = append(rep.Nodes, nr)
		rep.Total++
		if rec.Status == types.NodeStatusRunning {
			rep.Running++
		}
	}

	if dirty {
		if err := reg.Save(); err != nil {
			return nil, err
		}
	}
	recordGauge(rep)
	logger.Debugf(ctx, "%d/%d services running", rep.Running, rep.Total)

	if opts.Fail && !rep.AllRunning() {
		return rep, fmt.Errorf("%w: %d of %d", ErrNotAllRunning, rep.Total-rep.Running, rep.Total)
	}
	return rep, nil
}

// reconcile updates rec in place from the controller and reports whether
// the record changed.
func (r *Reporter) reconcile(ctx context.Context, rec *types.NodeRecord, opts Options) (NodeReport, bool) {
	logger := log.WithFunc("status.reconcile")
	nr := NodeReport{Live: types.ProcessUnknown}

	st, err := r.ctrl.Status(ctx, rec.ServiceName)
	if err != nil {
		// Unreadable state is reported, never used to rewrite the record.
		logger.Warnf(ctx, "query %s: %v", rec.ServiceName, err)
		return nr, false
	}
	nr.Live = st.Kind

	changed := false
	if next := observed(rec.Status, st.Kind); next != rec.Status {
		if rec.Status.CanTransition(next) {
			metrics.IncStatusCorrection(string(rec.Status), string(next))
			nr.Corrected, nr.Previous = true, rec.Status
			_ = rec.Transition(next)
			if next == types.NodeStatusFailed {
				rec.LastError = "process exited unexpectedly"
			}
			changed = true
		} else {
			logger.Warnf(ctx, "%s recorded %s but process is %s, leaving record", rec.ServiceName, rec.Status, st.Kind)
		}
	}

	pid := 0
	if st.Kind == types.ProcessRunning && rec.Status == types.NodeStatusRunning {
		pid = st.PID
	}
	if rec.PID != pid {
		rec.PID = pid
		changed = true
	}

	if opts.Details && r.prober != nil && rec.Role == types.RoleNode && rec.Status == types.NodeStatusRunning {
		if r.refreshPeers(ctx, rec) {
			changed = true
		}
	}
	if changed {
		rec.UpdatedAt = r.now()
	}
	return nr, changed
}

func (r *Reporter) refreshPeers(ctx context.Context, rec *types.NodeRecord) bool {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	addr := rec.RPCAddr()
	info, err := utils.DoWithRetry(pctx, func() (*probe.NodeInfo, error) {
		return r.prober.Probe(pctx, addr)
	})
	if err != nil {
		log.WithFunc("status.refreshPeers").Warnf(ctx, "probe %s: %v", rec.ServiceName, err)
		return false
	}
	p2p := info.P2PAddr()
	if info.PeerID == rec.PeerID && info.ConnectedPeers == rec.ConnectedPeers && (p2p == "" || p2p == rec.ListenAddr) {
		return false
	}
	rec.PeerID = info.PeerID
	rec.ConnectedPeers = info.ConnectedPeers
	if p2p != "" {
		rec.ListenAddr = p2p
	}
	return true
}

// observed maps a live process state onto the lifecycle. Records that are
// not expected to be alive keep their stored status.
func observed(stored types.NodeStatus, live types.ProcessKind) types.NodeStatus {
	expectAlive := stored == types.NodeStatusRunning || stored == types.NodeStatusStarting
	switch live {
	case types.ProcessRunning:
		return types.NodeStatusRunning
	case types.ProcessCrashed:
		if expectAlive {
			return types.NodeStatusFailed
		}
	case types.ProcessStopped, types.ProcessUnknown:
		if expectAlive {
			return types.NodeStatusStopped
		}
	}
	return stored
}

func recordGauge(rep *Report) {
	counts := map[string]int{}
	for _, n := range rep.Nodes {
		counts[string(n.Status)]++
	}
	metrics.SetRecords(counts)
}
