package localnet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/registry"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
)

// fakeClock advances only when the orchestrator sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

type startCall struct {
	name string
	at   time.Time
}

// stubController is an in-memory service.Controller.
type stubController struct {
	mu    sync.Mutex
	clock *fakeClock

	specs  map[string]service.Spec
	states map[string]types.ProcessKind
	starts []startCall
	stops  []string
	calls  int

	failStart    map[string]error
	failStop     map[string]error
	crashOnStart map[string]bool
	onStart      func(name string)
}

func newStubController(clock *fakeClock) *stubController {
	return &stubController{
		clock:        clock,
		specs:        map[string]service.Spec{},
		states:       map[string]types.ProcessKind{},
		failStart:    map[string]error{},
		failStop:     map[string]error{},
		crashOnStart: map[string]bool{},
	}
}

func (s *stubController) Type() string { return "stub" }

func (s *stubController) Install(_ context.Context, spec service.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.specs[spec.Name] = spec
	if _, ok := s.states[spec.Name]; !ok {
		s.states[spec.Name] = types.ProcessStopped
	}
	return nil
}

func (s *stubController) Start(_ context.Context, name string) error {
	s.mu.Lock()
	s.calls++
	hook := s.onStart
	if err := s.failStart[name]; err != nil {
		s.mu.Unlock()
		return &service.StartError{Service: name, Err: err}
	}
	if _, ok := s.specs[name]; !ok {
		s.mu.Unlock()
		return &service.StartError{Service: name, Err: service.ErrNotInstalled}
	}
	s.starts = append(s.starts, startCall{name: name, at: s.clock.Now()})
	s.states[name] = types.ProcessRunning
	if s.crashOnStart[name] {
		s.states[name] = types.ProcessCrashed
	}
	s.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	return nil
}

func (s *stubController) Stop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.failStop[name]; err != nil {
		return &service.StopError{Service: name, Err: err}
	}
	s.stops = append(s.stops, name)
	if _, ok := s.states[name]; ok {
		s.states[name] = types.ProcessStopped
	}
	return nil
}

func (s *stubController) Status(_ context.Context, name string) (types.ProcessState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, ok := s.states[name]
	if !ok {
		return types.ProcessState{Kind: types.ProcessUnknown}, nil
	}
	if kind == types.ProcessRunning {
		return types.ProcessState{Kind: kind, PID: 1000 + len(name)}, nil
	}
	return types.ProcessState{Kind: kind}, nil
}

func (s *stubController) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.states[name] == types.ProcessRunning {
		return &service.StopError{Service: name, Err: service.ErrStillRunning}
	}
	delete(s.specs, name)
	delete(s.states, name)
	return nil
}

func (s *stubController) spec(name string) service.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specs[name]
}

func (s *stubController) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubProber answers for every RPC address except those in fail.
type stubProber struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (p *stubProber) Probe(_ context.Context, rpcAddr string) (*probe.NodeInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[rpcAddr] {
		return nil, errors.New("connection refused")
	}
	port := rpcAddr[strings.LastIndex(rpcAddr, ":")+1:]
	return &probe.NodeInfo{
		PeerID:         "peer-" + port,
		ListenAddrs:    []string{"/ip4/127.0.0.1/udp/" + port + "/quic-v1"},
		ConnectedPeers: 2,
	}, nil
}

type harness struct {
	conf   *config.Config
	clock  *fakeClock
	ctrl   *stubController
	prober *stubProber
	orch   *Orchestrator
	reg    *registry.NodeRegistry
	bin    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conf := config.DefaultConfig()
	conf.RootDir = t.TempDir()
	conf.PoolSize = 4
	conf.Normalize()
	if err := conf.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	bin := filepath.Join(t.TempDir(), "safenode")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o700); err != nil { //nolint:gosec
		t.Fatalf("write bin: %v", err)
	}

	clock := newFakeClock()
	ctrl := newStubController(clock)
	prober := &stubProber{fail: map[string]bool{}}
	next := 20000
	var portMu sync.Mutex
	orch, err := New(conf, ctrl, prober,
		WithSleeper(clock.Sleep),
		WithClock(clock.Now),
		WithValidation(5*time.Millisecond, 200*time.Millisecond),
		WithPortAllocator(func() (int, error) {
			portMu.Lock()
			defer portMu.Unlock()
			next++
			return next, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{
		conf:   conf,
		clock:  clock,
		ctrl:   ctrl,
		prober: prober,
		orch:   orch,
		reg:    registry.New(conf.RegistryFile()),
		bin:    bin,
	}
}

func (h *harness) opts(count int) types.LocalNetworkOptions {
	return types.LocalNetworkOptions{
		Count:       count,
		Interval:    time.Second,
		NodeBinPath: h.bin,
		NodeVersion: "0.1.0",
		LogFormat:   types.LogFormatDefault,
	}
}

// reload reads the registry back from disk.
func (h *harness) reload(t *testing.T) *registry.NodeRegistry {
	t.Helper()
	reg, err := registry.Load(h.conf.RegistryFile())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return reg
}

func mustFind(t *testing.T, reg *registry.NodeRegistry, name string) types.NodeRecord {
	t.Helper()
	rec, ok := reg.Find(name)
	if !ok {
		t.Fatalf("record %s not found", name)
	}
	return rec
}

func nodeName(i int) string { return fmt.Sprintf("node-%d", i) }
