package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

// SchemaVersion is written into every saved registry. Loading ignores
// unknown fields so older binaries can read newer files.
const SchemaVersion = 1

var (
	ErrDuplicateName = errors.New("service name already registered")
	ErrNotFound      = errors.New("service not found in registry")
)

// PersistenceError reports a registry file that could not be read or written.
type PersistenceError struct {
	Op   string // "load", "save" or "delete"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NodeRegistry is the durable table of every node and faucet process launched
// locally. It is the only source of truth for what exists: mutate it in
// memory, then Save to replace the file atomically.
//
// Accessors hand out detached copies; write changes back with Update.
// All methods are safe for concurrent use.
type NodeRegistry struct {
	mu   sync.Mutex
	path string

	Version        int                 `json:"version"`
	NetworkID      string              `json:"network_id,omitempty"`
	BootstrapPeers []string            `json:"bootstrap_peers,omitempty"`
	Nodes          []*types.NodeRecord `json:"nodes"`
}

// New returns an empty registry bound to path.
func New(path string) *NodeRegistry {
	return &NodeRegistry{path: path, Version: SchemaVersion}
}

// Load parses the registry at path. A missing file yields an empty registry:
// the first run on a host has no prior state.
func Load(path string) (*NodeRegistry, error) {
	reg := New(path)
	data, err := os.ReadFile(path) //nolint:gosec // internal metadata
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	reg.Nodes = slices.DeleteFunc(reg.Nodes, func(r *types.NodeRecord) bool { return r == nil })
	return reg, nil
}

// Path returns the file the registry persists to.
func (r *NodeRegistry) Path() string { return r.path }

// Save atomically replaces the registry file (temp -> fsync -> rename).
func (r *NodeRegistry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" {
		return &PersistenceError{Op: "save", Err: errors.New("registry has no path")}
	}
	r.Version = SchemaVersion
	if err := utils.AtomicWriteJSON(r.path, r); err != nil {
		return &PersistenceError{Op: "save", Path: r.path, Err: err}
	}
	return nil
}

// Delete removes the registry file. Only valid once every record is Removed.
func (r *NodeRegistry) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.Nodes {
		if rec.Status != types.NodeStatusRemoved {
			return &PersistenceError{Op: "delete", Path: r.path, Err: fmt.Errorf("%s is still %s", rec.ServiceName, rec.Status)}
		}
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "delete", Path: r.path, Err: err}
	}
	r.Nodes = nil
	r.BootstrapPeers = nil
	r.NetworkID = ""
	return nil
}

// Insert adds a new record. Fails with ErrDuplicateName if the service name is taken.
func (r *NodeRegistry) Insert(rec types.NodeRecord) error {
	if rec.ServiceName == "" {
		return errors.New("record has no service name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(rec.ServiceName) >= 0 {
		return fmt.Errorf("%s: %w", rec.ServiceName, ErrDuplicateName)
	}
	r.Nodes = append(r.Nodes, &rec)
	return nil
}

// Update replaces the record with the same service name.
func (r *NodeRegistry) Update(rec types.NodeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(rec.ServiceName)
	if i < 0 {
		return fmt.Errorf("%s: %w", rec.ServiceName, ErrNotFound)
	}
	r.Nodes[i] = &rec
	return nil
}

// Upsert updates the record if its name is present and inserts it otherwise.
func (r *NodeRegistry) Upsert(rec types.NodeRecord) error {
	if err := r.Update(rec); !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.Insert(rec)
}

// Remove drops the record with the given name.
func (r *NodeRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	r.Nodes = slices.Delete(r.Nodes, i, i+1)
	return nil
}

// Find returns a detached copy of the named record.
func (r *NodeRegistry) Find(name string) (types.NodeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(name)
	if i < 0 {
		return types.NodeRecord{}, false
	}
	return *r.Nodes[i], true
}

// All returns detached copies of every record in insertion order.
func (r *NodeRegistry) All() []types.NodeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.NodeRecord, 0, len(r.Nodes))
	for _, rec := range r.Nodes {
		out = append(out, *rec)
	}
	return out
}

// Active reports whether any record has not reached Removed.
func (r *NodeRegistry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.Nodes, func(rec *types.NodeRecord) bool {
		return rec.Status != types.NodeStatusRemoved
	})
}

// Count returns how many non-removed records have the given role.
func (r *NodeRegistry) Count(role types.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.Nodes {
		if rec.Role == role && rec.Status != types.NodeStatusRemoved {
			n++
		}
	}
	return n
}

// Prune drops Removed records and returns how many were dropped.
func (r *NodeRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.Nodes)
	r.Nodes = slices.DeleteFunc(r.Nodes, func(rec *types.NodeRecord) bool {
		return rec.Status == types.NodeStatusRemoved
	})
	return before - len(r.Nodes)
}

// SetBootstrap records network-level metadata learned while bootstrapping.
func (r *NodeRegistry) SetBootstrap(networkID string, peers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if networkID != "" {
		r.NetworkID = networkID
	}
	r.BootstrapPeers = slices.Clone(peers)
}

// Bootstrap returns the network ID and a copy of the bootstrap peers.
func (r *NodeRegistry) Bootstrap() (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.NetworkID, slices.Clone(r.BootstrapPeers)
}

func (r *NodeRegistry) indexOf(name string) int {
	return slices.IndexFunc(r.Nodes, func(rec *types.NodeRecord) bool {
		return rec.ServiceName == name
	})
}
