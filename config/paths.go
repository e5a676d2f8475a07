package config

import (
	"path/filepath"

	"github.com/cocoonstack/localnet/utils"
)

// EnsureDirs creates the static directories every command needs.
// Per-node data and log directories are created when a node is added.
func (c *Config) EnsureDirs() error {
	return utils.EnsureDirs(
		c.dbDir(),
		c.ServicesDir(),
		c.NodesLogDir(),
		c.NodesDataDir(),
	)
}

func (c *Config) dbDir() string { return filepath.Join(c.RootDir, "db") }

// NodesDataDir and NodesLogDir are the parents of every per-node directory.
func (c *Config) NodesDataDir() string { return filepath.Join(c.RootDir, "nodes") }
func (c *Config) NodesLogDir() string  { return filepath.Join(c.LogDir, "nodes") }

// RegistryFile and RegistryLock are the node registry store paths.
func (c *Config) RegistryFile() string { return filepath.Join(c.dbDir(), "local_node_registry.json") }
func (c *Config) RegistryLock() string { return filepath.Join(c.dbDir(), "local_node_registry.lock") }

// ServicesDir holds one directory per installed service (definition + PID file).
func (c *Config) ServicesDir() string { return filepath.Join(c.RunDir, "services") }

// OwnersDir is the subtree holding prefixed node groups, one directory per
// owner prefix. Unprefixed groups live directly under the node roots.
const OwnersDir = "owners"

// NodeDataDir returns the data directory of a service. The owner prefix
// namespaces directories when several node groups share one host.
func (c *Config) NodeDataDir(ownerPrefix, service string) string {
	return filepath.Join(c.NodesDataDir(), namespaced(ownerPrefix, service))
}

// NodeLogDir returns the log directory of a service.
func (c *Config) NodeLogDir(ownerPrefix, service string) string {
	return filepath.Join(c.NodesLogDir(), namespaced(ownerPrefix, service))
}

func namespaced(ownerPrefix, service string) string {
	if ownerPrefix == "" {
		return service
	}
	return filepath.Join(OwnersDir, ownerPrefix, service)
}
