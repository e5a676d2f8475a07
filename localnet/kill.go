package localnet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/cocoonstack/localnet/metrics"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/types"
)

// Kill stops and uninstalls every service in the registry that has not
// been removed yet, up to conf.PoolSize at a time. Unless keepDirectories
// is set, each service's data and log directories are deleted as well.
// Torn-down records are pruned and the registry saved; services that could
// not be torn down stay in the registry and are reported as a
// *PartialFailureError so a retry targets just them. Killing an empty
// registry is a no-op.
func (o *Orchestrator) Kill(ctx context.Context, reg *registry.NodeRegistry, keepDirectories bool) error {
	logger := log.WithFunc("localnet.Kill")

	var targets []types.NodeRecord
	for _, rec := range reg.All() {
		if rec.Status != types.NodeStatusRemoved {
			targets = append(targets, rec)
		}
	}
	if len(targets) == 0 {
		if reg.Prune() > 0 {
			return reg.Save()
		}
		return nil
	}

	var (
		mu       sync.Mutex
		failures []NodeFailure
		fatal    error
	)
	g := new(errgroup.Group)
	g.SetLimit(max(1, o.conf.PoolSize))
	for _, rec := range targets {
		g.Go(func() error {
			stage, err := o.teardown(ctx, &rec, keepDirectories)
			metrics.IncKill(err == nil)

			// Registry writes are serialized here; services tear down in parallel.
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf(ctx, "kill %s at %s: %v", rec.ServiceName, stage, err)
				failures = append(failures, NodeFailure{Name: rec.ServiceName, Stage: stage, Err: err})
				return nil
			}
			if uerr := reg.Update(rec); uerr != nil {
				fatal = errors.Join(fatal, uerr)
			}
			return nil
		})
	}
	_ = g.Wait()
	if fatal != nil {
		return fatal
	}

	removed := reg.Prune()
	if err := reg.Save(); err != nil {
		return err
	}
	recordGauge(reg)
	logger.Infof(ctx, "removed %d of %d services", removed, len(targets))

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b NodeFailure) int { return strings.Compare(a.Name, b.Name) })
		return &PartialFailureError{Op: "kill", Total: len(targets), Failures: failures}
	}
	return nil
}

// teardown stops, uninstalls and optionally cleans one service, moving
// rec to Removed on success.
func (o *Orchestrator) teardown(ctx context.Context, rec *types.NodeRecord, keepDirectories bool) (Stage, error) {
	if err := o.ctrl.Stop(ctx, rec.ServiceName); err != nil {
		return StageStop, err
	}
	if err := o.ctrl.Remove(ctx, rec.ServiceName); err != nil {
		return StageRemove, err
	}
	if !keepDirectories {
		var errs []error
		for _, dir := range []string{rec.DataDir, rec.LogDir} {
			if dir == "" {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return StageCleanup, err
		}
	}
	rec.PID = 0
	if err := rec.Transition(types.NodeStatusRemoved); err != nil {
		return StageRemove, err
	}
	rec.UpdatedAt = o.now()
	return "", nil
}
