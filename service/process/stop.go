package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/utils"
)

// Stop terminates the service's process (SIGTERM, then SIGKILL after the
// stop timeout) and records that the stop was requested. Stopping a
// service that is not installed or not running succeeds.
func (c *Controller) Stop(ctx context.Context, name string) error {
	def, err := c.loadSpec(name)
	if errors.Is(err, service.ErrNotInstalled) {
		return nil
	}
	if err != nil {
		return &service.StopError{Service: name, Err: err}
	}

	pid, pidErr := utils.ReadPIDFile(c.pidPath(name))
	if pidErr == nil && c.verify(def, pid) {
		if err := utils.TerminateProcess(ctx, pid, filepath.Base(def.ExePath), def.marker(), c.stopTimeout); err != nil {
			return &service.StopError{Service: name, Err: err}
		}
		log.WithFunc("process.Stop").Debugf(ctx, "service %s stopped, pid %d", name, pid)
	}

	if err := utils.AtomicWriteFile(c.markerPath(name), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o600); err != nil {
		return &service.StopError{Service: name, Err: err}
	}
	_ = os.Remove(c.pidPath(name))
	return nil
}
