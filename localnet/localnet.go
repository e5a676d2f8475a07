package localnet

import (
	"context"
	"fmt"
	"time"

	"github.com/cocoonstack/localnet/config"
	"github.com/cocoonstack/localnet/probe"
	"github.com/cocoonstack/localnet/service"
	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	maxPortAttempts     = 16
)

// Orchestrator drives a Controller to bring a local network up and down,
// recording every step in the registry it is handed.
type Orchestrator struct {
	conf   *config.Config
	ctrl   service.Controller
	prober probe.Prober

	sleep             func(context.Context, time.Duration) error
	freePort          func() (int, error)
	now               func() time.Time
	pollInterval      time.Duration
	validationTimeout time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the throttle sleep between starts.
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithPortAllocator replaces the kernel free-port allocator.
func WithPortAllocator(fn func() (int, error)) Option {
	return func(o *Orchestrator) { o.freePort = fn }
}

// WithClock replaces the clock used for record timestamps and metrics.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithValidation overrides the probe poll interval and the validation window.
func WithValidation(poll, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if poll > 0 {
			o.pollInterval = poll
		}
		if timeout > 0 {
			o.validationTimeout = timeout
		}
	}
}

// New creates an Orchestrator. prober may be nil when every run skips validation.
func New(conf *config.Config, ctrl service.Controller, prober probe.Prober, opts ...Option) (*Orchestrator, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("service controller is nil")
	}
	o := &Orchestrator{
		conf:              conf,
		ctrl:              ctrl,
		prober:            prober,
		sleep:             utils.Sleep,
		freePort:          utils.FreePort,
		now:               time.Now,
		pollInterval:      defaultPollInterval,
		validationTimeout: conf.ValidationTimeout(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Summary is the outcome of one Run.
type Summary struct {
	NetworkID string   `json:"network_id"`
	Requested int      `json:"requested"`
	Running   int      `json:"running"`
	Failed    int      `json:"failed"`
	Services  []string `json:"services"`
	// Faucet is empty when no faucet was launched.
	Faucet types.NodeStatus `json:"faucet,omitempty"`
}

func (s *Summary) record(rec *types.NodeRecord) {
	s.Services = append(s.Services, rec.ServiceName)
	if rec.Role == types.RoleFaucet {
		s.Faucet = rec.Status
		return
	}
	switch rec.Status { //nolint:exhaustive
	case types.NodeStatusRunning:
		s.Running++
	case types.NodeStatusFailed:
		s.Failed++
	}
}
