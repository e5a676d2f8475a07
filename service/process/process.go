package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

const (
	typ = "process"

	specFile    = "service.json"
	pidFileName = "service.pid"
	// stoppedMarker distinguishes a requested stop from a crash once the PID is gone.
	stoppedMarker = "stopped"

	defaultSettle = 500 * time.Millisecond
)

// compile-time interface check.
var _ service.Controller = (*Controller)(nil)

// Controller implements service.Controller with detached local processes.
// Every service owns {ServicesDir}/{name}/ holding its definition, its PID
// file and, after a requested stop, a stopped marker. Processes are placed
// in their own process group so they outlive the command that started them.
type Controller struct {
	dir         string
	stopTimeout time.Duration
	// settle is how long Start waits before checking the process did not exit immediately.
	settle time.Duration
}

// New creates a process Controller rooted at conf.ServicesDir().
func New(conf *config.Config) (*Controller, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := utils.EnsureDirs(conf.ServicesDir()); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}
	return &Controller{
		dir:         conf.ServicesDir(),
		stopTimeout: conf.StopTimeout(),
		settle:      defaultSettle,
	}, nil
}

func (c *Controller) Type() string { return typ }

// SetSettle overrides the post-start settle window.
func (c *Controller) SetSettle(d time.Duration) { c.settle = d }

// Install writes the service definition. Reinstalling a service that is not
// running replaces its definition, so a failed start can be retried.
func (c *Controller) Install(ctx context.Context, spec service.Spec) error {
	if err := validName(spec.Name); err != nil {
		return err
	}
	if spec.ExePath == "" {
		return fmt.Errorf("install %s: empty executable path", spec.Name)
	}
	if _, err := c.loadSpec(spec.Name); err == nil {
		state, _ := c.Status(ctx, spec.Name)
		if state.Kind == types.ProcessRunning {
			return fmt.Errorf("install %s: %w", spec.Name, service.ErrAlreadyInstalled)
		}
	}
	if err := utils.EnsureDirs(c.serviceDir(spec.Name)); err != nil {
		return fmt.Errorf("install %s: %w", spec.Name, err)
	}
	if err := utils.AtomicWriteJSON(c.specPath(spec.Name), spec); err != nil {
		return fmt.Errorf("install %s: %w", spec.Name, err)
	}
	return nil
}

// Status reports the live state of a service.
func (c *Controller) Status(_ context.Context, name string) (types.ProcessState, error) {
	spec, err := c.loadSpec(name)
	if errors.Is(err, service.ErrNotInstalled) {
		return types.ProcessState{Kind: types.ProcessUnknown}, nil
	}
	if err != nil {
		return types.ProcessState{Kind: types.ProcessUnknown}, err
	}
	pid, pidErr := utils.ReadPIDFile(c.pidPath(name))
	if pidErr == nil && c.verify(spec, pid) {
		return types.ProcessState{Kind: types.ProcessRunning, PID: pid}, nil
	}
	if pidErr != nil || c.stopped(name) {
		return types.ProcessState{Kind: types.ProcessStopped}, nil
	}
	return types.ProcessState{Kind: types.ProcessCrashed}, nil
}

// Remove uninstalls a service. Removing an unknown service succeeds.
func (c *Controller) Remove(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	state, err := c.Status(ctx, name)
	if err != nil {
		return &service.StopError{Service: name, Err: err}
	}
	if state.Kind == types.ProcessRunning {
		return &service.StopError{Service: name, Err: service.ErrStillRunning}
	}
	if err := os.RemoveAll(c.serviceDir(name)); err != nil {
		return &service.StopError{Service: name, Err: fmt.Errorf("remove service dir: %w", err)}
	}
	return nil
}

func (c *Controller) serviceDir(name string) string { return filepath.Join(c.dir, name) }
func (c *Controller) specPath(name string) string   { return filepath.Join(c.serviceDir(name), specFile) }
func (c *Controller) pidPath(name string) string    { return filepath.Join(c.serviceDir(name), pidFileName) }
func (c *Controller) markerPath(name string) string { return filepath.Join(c.serviceDir(name), stoppedMarker) }

func (c *Controller) stopped(name string) bool {
	_, err := os.Stat(c.markerPath(name))
	return err == nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid service name %q", name)
	}
	return nil
}
