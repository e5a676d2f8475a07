package localnet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyRunning    = errors.New("a local network is already running, use kill first")
	ErrValidationTimeout = errors.New("node did not become healthy in time")
	ErrNoNetwork         = errors.New("no local network to join and no peers given")
)

// Stage names the step of a service's lifecycle that failed.
type Stage string

const (
	StageInstall  Stage = "install"
	StageStart    Stage = "start"
	StageValidate Stage = "validate"
	StageStop     Stage = "stop"
	StageRemove   Stage = "remove"
	StageCleanup  Stage = "cleanup"
)

// NodeFailure is one service that did not complete an operation.
type NodeFailure struct {
	Name  string
	Stage Stage
	Err   error
}

func (f NodeFailure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Name, f.Stage, f.Err)
}

func (f NodeFailure) Unwrap() error { return f.Err }

// PartialFailureError aggregates per-service failures of a run or kill
// batch. Every other service in the batch was processed normally.
type PartialFailureError struct {
	Op       string // "run" or "kill"
	Total    int
	Failures []NodeFailure
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %d of %d services failed: %s", e.Op, len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Names returns the failed service names, in batch order.
func (e *PartialFailureError) Names() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Name)
	}
	return names
}
