package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LifecycleMetrics holds metrics for the drop lifecycle manager.
type LifecycleMetrics struct {
	// Drops tracks registered drops by status, as of the last sweep.
	Drops *prometheus.GaugeVec

	// DropsByPhase tracks registered drops by phase, as of the last sweep.
	DropsByPhase *prometheus.GaugeVec

	// TransitionsTotal counts manager-driven transitions.
	// Labels: transition (solid, lost, expired, deleted)
	TransitionsTotal *prometheus.CounterVec

	// ReplicationsTotal counts replication attempts by outcome.
	ReplicationsTotal *prometheus.CounterVec

	// ReplicationLatency tracks the time to copy one drop.
	ReplicationLatency prometheus.Histogram

	// CheckErrorsTotal counts failed per-drop checks.
	// Labels: check (existence, cleanup, replication)
	CheckErrorsTotal *prometheus.CounterVec

	// SweepDuration tracks how long a full sweep takes.
	SweepDuration prometheus.Histogram

	// SweepDrops is the number of drops checked by the last sweep.
	SweepDrops prometheus.Gauge
}

// DefaultSweepBuckets are latency buckets for sweeps and replication.
var DefaultSweepBuckets = []float64{
	0.001, // 1ms
	0.01,  // 10ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.5,   // 500ms
	1.0,   // 1s
	5.0,   // 5s
	15.0,  // 15s
	60.0,  // 1m
	300.0, // 5m
}

// NewLifecycleMetrics creates and registers lifecycle metrics.
// Uses promauto for automatic registration with the default registry.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegistry creates lifecycle metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewLifecycleMetricsWithRegistry(reg prometheus.Registerer) *LifecycleMetrics {
	f := promauto.With(reg)
	return &LifecycleMetrics{
		Drops: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "drops",
				Help:      "Number of registered drops by status.",
			},
			[]string{"status"},
		),
		DropsByPhase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "drops_by_phase",
				Help:      "Number of registered drops by phase.",
			},
			[]string{"phase"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Total manager-driven drop transitions.",
			},
			[]string{"transition"},
		),
		ReplicationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "replications_total",
				Help:      "Total replication attempts, broken down by status.",
			},
			[]string{"status"},
		),
		ReplicationLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "replication_latency_seconds",
				Help:      "Time to copy one drop in seconds.",
				Buckets:   DefaultSweepBuckets,
			},
		),
		CheckErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "check_errors_total",
				Help:      "Total failed per-drop checks, broken down by check.",
			},
			[]string{"check"},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of a full sweep in seconds.",
				Buckets:   DefaultSweepBuckets,
			},
		),
		SweepDrops: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "sweep_drops",
				Help:      "Number of drops checked by the last sweep.",
			},
		),
	}
}

// RecordSweep records a completed sweep.
func (m *LifecycleMetrics) RecordSweep(duration time.Duration, units int) {
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepDrops.Set(float64(units))
}

// RecordTransition counts a manager-driven transition.
func (m *LifecycleMetrics) RecordTransition(transition string) {
	m.TransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordReplication records one replication attempt.
func (m *LifecycleMetrics) RecordReplication(duration time.Duration, success bool) {
	m.ReplicationsTotal.WithLabelValues(statusLabel(success)).Inc()
	if success {
		m.ReplicationLatency.Observe(duration.Seconds())
	}
}

// RecordCheckError counts a failed per-drop check.
func (m *LifecycleMetrics) RecordCheckError(check string) {
	m.CheckErrorsTotal.WithLabelValues(check).Inc()
}

// RecordDrops publishes registered drop counts.
func (m *LifecycleMetrics) RecordDrops(byStatus, byPhase map[string]int) {
	for status, n := range byStatus {
		m.Drops.WithLabelValues(status).Set(float64(n))
	}
	for phase, n := range byPhase {
		m.DropsByPhase.WithLabelValues(phase).Set(float64(n))
	}
}
