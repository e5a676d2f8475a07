package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const killWaitTimeout = 5 * time.Second

// WritePIDFile writes pid to path with 0600 permissions.
func WritePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

// ReadPIDFile reads a PID integer from path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // internal runtime path
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID from %s: %w", path, err)
	}
	return pid, nil
}

// IsProcessAlive returns true if a process with the given PID currently exists
// and is not a zombie. kill(pid, 0) only checks existence; EPERM still means
// the process is there, just owned by someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}
	return !isZombie(pid)
}

func isZombie(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid)) //nolint:gosec // pid fits int32
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return false
	}
	return slices.Contains(status, gopsproc.Zombie)
}

// VerifyProcessCmdline checks that pid is alive, runs binaryName, and that
// expectArg is one of its arguments, compared whole. The arg check prevents
// misidentification when several processes of the same binary are running
// (e.g. a whole local network of nodes). Falls back to IsProcessAlive when
// the command line cannot be read.
func VerifyProcessCmdline(pid int, binaryName, expectArg string) bool {
	if !IsProcessAlive(pid) {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid)) //nolint:gosec // pid fits int32
	if err != nil {
		return false
	}
	args, err := p.CmdlineSlice()
	if err != nil || len(args) == 0 {
		return true
	}
	if binaryName != "" && !runsBinary(p, args, binaryName) {
		return false
	}
	if expectArg == "" {
		return true
	}
	return slices.Contains(args[1:], expectArg)
}

// runsBinary matches argv[0], the resolved executable, or, for interpreted
// scripts started via their shebang, argv[1].
func runsBinary(p *gopsproc.Process, args []string, binaryName string) bool {
	if filepath.Base(args[0]) == binaryName {
		return true
	}
	if exe, err := p.Exe(); err == nil && filepath.Base(exe) == binaryName {
		return true
	}
	return len(args) > 1 && filepath.Base(args[1]) == binaryName
}

// TerminateProcess verifies the PID belongs to binaryName (with optional
// cmdline arg check), then sends SIGTERM, waits up to gracePeriod, and
// falls back to SIGKILL. A PID that no longer matches is treated as gone.
func TerminateProcess(ctx context.Context, pid int, binaryName, expectArg string, gracePeriod time.Duration) error {
	if !VerifyProcessCmdline(pid, binaryName, expectArg) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if !IsProcessAlive(pid) {
			return nil
		}
		return killAndWait(ctx, proc, pid)
	}

	if err := WaitFor(ctx, gracePeriod, 100*time.Millisecond, func() (bool, error) { //nolint:mnd
		return !IsProcessAlive(pid), nil
	}); err == nil {
		return nil
	}

	return killAndWait(ctx, proc, pid)
}

func killAndWait(ctx context.Context, proc *os.Process, pid int) error {
	_ = proc.Kill()
	if err := WaitFor(ctx, killWaitTimeout, 50*time.Millisecond, func() (bool, error) { //nolint:mnd
		return !IsProcessAlive(pid), nil
	}); err != nil {
		return fmt.Errorf("process %d still alive after SIGKILL: %w", pid, err)
	}
	return nil
}
