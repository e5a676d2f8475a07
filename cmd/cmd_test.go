package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/status"
	"github.com/cocoonstack/localnet/types"
)

// execute runs the root command against a fresh root directory and returns
// its stdout. Flag values persist between executions of the package-level
// commands, so every flag is put back to its default first.
func execute(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--root-dir", root}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// seed writes a registry under root holding recs.
func seed(t *testing.T, root string, recs ...types.NodeRecord) *config.Config {
	t.Helper()
	c := &config.Config{RootDir: root}
	c.Normalize()
	if err := c.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	reg := registry.New(c.RegistryFile())
	reg.SetBootstrap("net-1", nil)
	for _, rec := range recs {
		if err := reg.Insert(rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return c
}

func record(c *config.Config, name string, st types.NodeStatus) types.NodeRecord {
	now := time.Now()
	return types.NodeRecord{
		ServiceName: name, Role: types.RoleNode, Status: st,
		DataDir: c.NodeDataDir("", name), LogDir: c.NodeLogDir("", name),
		Port: 21001, RPCPort: 21002, CreatedAt: now, UpdatedAt: now,
	}
}

// --- kill ---

func TestKill_EmptyRegistry(t *testing.T) {
	root := t.TempDir()
	c := seed(t, root)

	out, err := execute(t, root, "kill")
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !strings.Contains(out, "No local network is currently running") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(c.RegistryFile()); !os.IsNotExist(err) {
		t.Errorf("registry file should be deleted: %v", err)
	}
}

func TestKill_StaleRecords(t *testing.T) {
	root := t.TempDir()
	c := &config.Config{RootDir: root}
	c.Normalize()
	rec := record(c, "node-1", types.NodeStatusFailed)
	seed(t, root, rec)
	if err := os.MkdirAll(rec.DataDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	out, err := execute(t, root, "kill")
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !strings.Contains(out, "Local network stopped (1 services)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(rec.DataDir); !os.IsNotExist(err) {
		t.Errorf("data dir should be removed: %v", err)
	}
	if _, err := os.Stat(c.RegistryFile()); !os.IsNotExist(err) {
		t.Errorf("registry file should be deleted: %v", err)
	}
}

// --- run ---

func TestRun_ExistingNetworkNeedsClean(t *testing.T) {
	root := t.TempDir()
	c := &config.Config{RootDir: root}
	c.Normalize()
	seed(t, root, record(c, "node-1", types.NodeStatusFailed))

	_, err := execute(t, root, "run", "--count", "0", "--node-path", "/bin/true")
	if err == nil || !strings.Contains(err.Error(), "--clean") {
		t.Fatalf("err = %v, want a hint to pass --clean", err)
	}
}

func TestRun_Clean(t *testing.T) {
	root := t.TempDir()
	c := &config.Config{RootDir: root}
	c.Normalize()
	stale := record(c, "node-1", types.NodeStatusFailed)
	seed(t, root, stale)
	if err := os.MkdirAll(stale.DataDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	out, err := execute(t, root, "run", "--clean", "--count", "0", "--node-path", "/bin/true")
	if err != nil {
		t.Fatalf("run --clean: %v", err)
	}
	if !strings.Contains(out, "0/0 nodes running") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(stale.DataDir); !os.IsNotExist(err) {
		t.Errorf("stale data dir should be removed: %v", err)
	}
	reg, err := registry.Load(c.RegistryFile())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.All()) != 0 {
		t.Errorf("records after clean = %+v", reg.All())
	}
	if id, _ := reg.Bootstrap(); id == "" || id == "net-1" {
		t.Errorf("network id = %q, want a fresh one", id)
	}
}

// --- status ---

func TestStatus_Fail(t *testing.T) {
	root := t.TempDir()
	c := &config.Config{RootDir: root}
	c.Normalize()
	// No process backs this record, so status corrects it to stopped.
	seed(t, root, record(c, "node-1", types.NodeStatusRunning))

	out, err := execute(t, root, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "node-1") || !strings.Contains(out, "stopped") {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, root, "status", "--fail")
	if !errors.Is(err, status.ErrNotAllRunning) {
		t.Fatalf("err = %v, want ErrNotAllRunning", err)
	}
}

func TestStatus_EmptyRegistry(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, root, "status", "--fail")
	if err != nil {
		t.Fatalf("status --fail on an empty registry: %v", err)
	}
	if !strings.Contains(out, "No local network is currently running.") {
		t.Errorf("output = %q", out)
	}
}
