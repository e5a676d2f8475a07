package types

import "fmt"

// ProcessKind classifies the live OS-side state of a service.
type ProcessKind string

const (
	ProcessUnknown ProcessKind = "unknown" // not installed or state unreadable
	ProcessRunning ProcessKind = "running"
	ProcessStopped ProcessKind = "stopped" // installed, not running, stopped on request
	ProcessCrashed ProcessKind = "crashed" // installed, should be running, process gone
)

// ProcessState is what the service controller reports for one service.
// PID is set only for ProcessRunning.
type ProcessState struct {
	Kind ProcessKind `json:"kind"`
	PID  int         `json:"pid,omitempty"`
}

func (s ProcessState) String() string {
	if s.Kind == ProcessRunning {
		return fmt.Sprintf("running(%d)", s.PID)
	}
	return string(s.Kind)
}
