package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/utils"
)

// definition is the persisted form of a service.Spec plus the marker used
// to recognise the service's process among siblings of the same binary.
type definition struct {
	service.Spec
}

func (c *Controller) loadSpec(name string) (*definition, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.specPath(name)) //nolint:gosec // internal metadata
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, service.ErrNotInstalled)
		}
		return nil, fmt.Errorf("read %s: %w", c.specPath(name), err)
	}
	var def definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.specPath(name), err)
	}
	return &def, nil
}

// marker returns an argument unique to this service: the working directory
// when it appears on the command line, otherwise the service name.
func (d *definition) marker() string {
	if d.WorkingDir != "" && slices.Contains(d.Args, d.WorkingDir) {
		return d.WorkingDir
	}
	if slices.Contains(d.Args, d.Name) {
		return d.Name
	}
	return ""
}

// environ merges the spec's env over the current environment.
func (d *definition) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}
	return env
}

func (c *Controller) verify(def *definition, pid int) bool {
	return utils.VerifyProcessCmdline(pid, filepath.Base(def.ExePath), def.marker())
}
