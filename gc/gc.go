package gc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/projecteru2/core/log"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
)

// Snapshot is what exists on disk versus what the registry records.
// Orphans appear when a run is interrupted between installing a service
// and saving its record, or when records are deleted by hand.
type Snapshot struct {
	recorded map[string]struct{} // service names of non-removed records
	dirs     []string            // data and log dirs of non-removed records
	services []string            // service definitions present on disk
	nodeDirs []string            // per-node dirs under the node data/log roots
}

// Take reads the registry and scans the service and node directories.
func Take(conf *config.Config, reg *registry.NodeRegistry) Snapshot {
	snap := Snapshot{recorded: map[string]struct{}{}}
	for _, rec := range reg.All() {
		if rec.Status == types.NodeStatusRemoved {
			continue
		}
		snap.recorded[rec.ServiceName] = struct{}{}
		snap.dirs = append(snap.dirs, rec.DataDir, rec.LogDir)
	}
	snap.services = scanSubdirs(conf.ServicesDir())
	for _, root := range []string{conf.NodesDataDir(), conf.NodesLogDir()} {
		snap.nodeDirs = append(snap.nodeDirs, nodeDirs(root)...)
	}
	return snap
}

// nodeDirs lists the per-node directories below root: its direct children,
// and the children of every owner prefix group. An owner group without any
// node directory is listed itself.
func nodeDirs(root string) []string {
	var dirs []string
	for _, name := range scanSubdirs(root) {
		if name != config.OwnersDir {
			dirs = append(dirs, filepath.Join(root, name))
			continue
		}
		owners := filepath.Join(root, name)
		for _, prefix := range scanSubdirs(owners) {
			group := filepath.Join(owners, prefix)
			nodes := scanSubdirs(group)
			if len(nodes) == 0 {
				dirs = append(dirs, group)
			}
			for _, n := range nodes {
				dirs = append(dirs, filepath.Join(group, n))
			}
		}
	}
	return dirs
}

// Orphans returns installed services without a record, and node
// directories that no record lives in.
func (s Snapshot) Orphans() (services, dirs []string) {
	for _, name := range s.services {
		if _, ok := s.recorded[name]; !ok {
			services = append(services, name)
		}
	}
	for _, dir := range s.nodeDirs {
		if !slices.ContainsFunc(s.dirs, func(d string) bool { return within(d, dir) }) {
			dirs = append(dirs, dir)
		}
	}
	return services, dirs
}

// Collect stops and uninstalls orphaned services and deletes orphaned
// directories. Every orphan is attempted; failures are joined.
func Collect(ctx context.Context, ctrl service.Controller, services, dirs []string) error {
	logger := log.WithFunc("gc.Collect")
	var errs []error
	for _, name := range services {
		if err := ctrl.Stop(ctx, name); err != nil {
			logger.Warnf(ctx, "stop orphan %s: %v", name, err)
			errs = append(errs, err)
			continue
		}
		if err := ctrl.Remove(ctx, name); err != nil {
			logger.Warnf(ctx, "remove orphan %s: %v", name, err)
			errs = append(errs, err)
		}
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func scanSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
