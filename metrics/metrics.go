package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localnet",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Service start attempts by role and outcome.",
		}, []string{"role", "result"},
	)
	serviceKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localnet",
			Subsystem: "service",
			Name:      "kills_total",
			Help:      "Service teardown attempts by outcome.",
		}, []string{"result"},
	)
	validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "localnet",
			Subsystem: "service",
			Name:      "validation_duration_seconds",
			Help:      "Time from start until a node answered its health probe.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"},
	)
	statusCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localnet",
			Subsystem: "registry",
			Name:      "status_corrections_total",
			Help:      "Registry statuses rewritten to match live process state.",
		}, []string{"from", "to"},
	)
	records = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "localnet",
			Subsystem: "registry",
			Name:      "records",
			Help:      "Registry records per status after the last command.",
		}, []string{"status"},
	)
)

// Register registers all collectors with r.
// It is safe to call multiple times; calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceKills, validationDuration, statusCorrections, records}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// WriteTextfile writes everything g gathers to path in the node-exporter
// textfile format. An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}

// Helpers below no-op until Register has been called.

func IncStart(role string, ok bool) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(role, result(ok)).Inc()
	}
}

func IncKill(ok bool) {
	if regOK.Load() {
		serviceKills.WithLabelValues(result(ok)).Inc()
	}
}

func ObserveValidation(role string, seconds float64) {
	if regOK.Load() {
		validationDuration.WithLabelValues(role).Observe(seconds)
	}
}

func IncStatusCorrection(from, to string) {
	if regOK.Load() {
		statusCorrections.WithLabelValues(from, to).Inc()
	}
}

// SetRecords replaces the per-status record gauge.
func SetRecords(counts map[string]int) {
	if !regOK.Load() {
		return
	}
	records.Reset()
	for status, n := range counts {
		records.WithLabelValues(status).Set(float64(n))
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
