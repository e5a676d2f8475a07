package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cocoonstack/localnet/types"
)

var (
	ErrNotInstalled     = errors.New("service not installed")
	ErrAlreadyInstalled = errors.New("service already installed")
	ErrAlreadyRunning   = errors.New("service already running")
	ErrStillRunning     = errors.New("service still running")
)

// Spec describes how to launch one service.
type Spec struct {
	Name       string            `json:"name"`
	ExePath    string            `json:"exe_path"`
	Args       []string          `json:"args,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	// LogFile receives the process' stdout and stderr. Empty discards them.
	LogFile string `json:"log_file,omitempty"`
}

// Controller is the only component that touches OS process/service primitives.
// Services are addressed by the service name stored in a NodeRecord; the
// controller never tracks which services make up a network.
type Controller interface {
	Type() string

	Install(ctx context.Context, spec Spec) error
	Start(ctx context.Context, name string) error
	// Stop is idempotent: stopping a stopped service succeeds.
	Stop(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (types.ProcessState, error)
	// Remove uninstalls a service; it fails with ErrStillRunning while the process lives.
	Remove(ctx context.Context, name string) error
}

// StartError means the process manager rejected or failed a start.
type StartError struct {
	Service string
	Err     error
}

func (e *StartError) Error() string { return fmt.Sprintf("start %s: %v", e.Service, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// StopError means a stop or uninstall did not complete.
type StopError struct {
	Service string
	Err     error
}

func (e *StopError) Error() string { return fmt.Sprintf("stop %s: %v", e.Service, e.Err) }
func (e *StopError) Unwrap() error { return e.Err }
