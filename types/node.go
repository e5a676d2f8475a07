package types

import (
	"fmt"
	"time"
)

// NodeStatus is the lifecycle state of a managed process as recorded in the registry.
type NodeStatus string

const (
	NodeStatusAdded    NodeStatus = "added"    // registry entry written, process not yet launched
	NodeStatusStarting NodeStatus = "starting" // start requested, health not confirmed
	NodeStatusRunning  NodeStatus = "running"  // confirmed alive (validated or assumed)
	NodeStatusStopped  NodeStatus = "stopped"  // intentionally halted, dirs possibly retained
	NodeStatusRemoved  NodeStatus = "removed"  // service uninstalled, dirs optionally deleted
	NodeStatusFailed   NodeStatus = "failed"   // start or validation did not complete
)

// order ranks the forward lifecycle. Failed sits outside it.
var order = map[NodeStatus]int{
	NodeStatusAdded:    0,
	NodeStatusStarting: 1,
	NodeStatusRunning:  2,
	NodeStatusStopped:  3,
	NodeStatusRemoved:  4,
}

// Terminal reports whether no further transition is expected except removal.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusRemoved || s == NodeStatusFailed
}

// CanTransition reports whether s → to is a legal lifecycle move.
// Moves are strictly forward; any non-terminal state may fail, and a
// failed record may still be torn down (Failed → Removed).
func (s NodeStatus) CanTransition(to NodeStatus) bool {
	if s == to {
		return true
	}
	if to == NodeStatusFailed {
		return !s.Terminal()
	}
	if s == NodeStatusFailed {
		return to == NodeStatusRemoved
	}
	from, ok := order[s]
	if !ok {
		return false
	}
	next, ok := order[to]
	return ok && next > from
}

// Role decides which health check a record undergoes and whether it counts
// toward the requested node count.
type Role string

const (
	RoleNode   Role = "node"
	RoleFaucet Role = "faucet"
)

// NodeRecord is one process the orchestrator manages.
type NodeRecord struct {
	ServiceName string     `json:"service_name"`
	Role        Role       `json:"role"`
	Status      NodeStatus `json:"status"`

	// Runtime identity, filled in as the process reports it.
	PID            int    `json:"pid,omitempty"`
	PeerID         string `json:"peer_id,omitempty"`
	ListenAddr     string `json:"listen_addr,omitempty"` // multiaddr other nodes dial
	ConnectedPeers int    `json:"connected_peers,omitempty"`

	// Allocated ports; RPC is what the health probe dials.
	Port    int `json:"port,omitempty"`
	RPCPort int `json:"rpc_port,omitempty"`

	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`

	BinPath    string `json:"bin_path"`
	BinVersion string `json:"bin_version,omitempty"`
	BinDigest  string `json:"bin_digest,omitempty"`

	Owner       string `json:"owner,omitempty"`
	OwnerPrefix string `json:"owner_prefix,omitempty"`

	// LastError keeps the failure reason of a Failed record for diagnostics.
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Transition moves the record to status, refusing illegal lifecycle moves.
func (r *NodeRecord) Transition(to NodeStatus) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%s: illegal transition %s -> %s", r.ServiceName, r.Status, to)
	}
	now := time.Now()
	if to == NodeStatusRunning && r.Status != NodeStatusRunning {
		r.StartedAt = &now
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Fail marks the record Failed and keeps the cause.
func (r *NodeRecord) Fail(cause error) error {
	if err := r.Transition(NodeStatusFailed); err != nil {
		return err
	}
	if cause != nil {
		r.LastError = cause.Error()
	}
	return nil
}

// RPCAddr returns the host:port the health probe dials.
func (r *NodeRecord) RPCAddr() string {
	if r.RPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("127.0.0.1:%d", r.RPCPort)
}
