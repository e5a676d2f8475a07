package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

// Start launches the installed service as a detached process.
func (c *Controller) Start(ctx context.Context, name string) error {
	def, err := c.loadSpec(name)
	if err != nil {
		return &service.StartError{Service: name, Err: err}
	}

	state, err := c.Status(ctx, name)
	if err != nil {
		return &service.StartError{Service: name, Err: err}
	}
	if state.Kind == types.ProcessRunning {
		return &service.StartError{Service: name, Err: fmt.Errorf("%w (pid %d)", service.ErrAlreadyRunning, state.PID)}
	}

	if _, err := os.Stat(def.ExePath); err != nil {
		return &service.StartError{Service: name, Err: fmt.Errorf("executable: %w", err)}
	}

	// Clean up runtime files from any previous run.
	_ = os.Remove(c.pidPath(name))
	_ = os.Remove(c.markerPath(name))

	pid, err := c.launchProcess(ctx, def)
	if err != nil {
		return &service.StartError{Service: name, Err: err}
	}
	log.WithFunc("process.Start").Debugf(ctx, "service %s started, pid %d", name, pid)
	return nil
}

// launchProcess starts the executable, writes the PID file and checks the
// process survives the settle window. The child gets its own process group
// so a Ctrl-C on this command does not take the network down with it.
func (c *Controller) launchProcess(ctx context.Context, def *definition) (int, error) {
	logger := log.WithFunc("process.launchProcess")

	stdout, err := openLog(def.LogFile)
	if err != nil {
		logger.Warnf(ctx, "open log for %s: %v", def.Name, err)
	}
	if stdout != nil {
		defer stdout.Close() //nolint:errcheck
	}

	cmd := exec.Command(def.ExePath, def.Args...) //nolint:gosec // caller-resolved binary
	cmd.Dir = def.WorkingDir
	cmd.Env = def.environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if stdout != nil {
		cmd.Stdout = stdout
		cmd.Stderr = stdout
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("exec %s: %w", filepath.Base(def.ExePath), err)
	}
	pid := cmd.Process.Pid
	exited := make(chan error, 1)
	// Reap in the background so a child that dies while this command is
	// still running does not linger as a zombie.
	go func() { exited <- cmd.Wait() }()

	if err := utils.WritePIDFile(c.pidPath(def.Name), pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, fmt.Errorf("write PID file: %w", err)
	}

	if c.settle > 0 {
		select {
		case werr := <-exited:
			_ = os.Remove(c.pidPath(def.Name))
			if werr == nil {
				werr = errors.New("exit status 0")
			}
			return 0, fmt.Errorf("process exited during start: %w", werr)
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			_ = os.Remove(c.pidPath(def.Name))
			return 0, ctx.Err()
		case <-time.After(c.settle):
		}
	}
	return pid, nil
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := utils.EnsureDirs(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // internal log path
}
