package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wareform/wareform/pkg/engine"
)

// Metrics provides Prometheus metrics for the plan and apply pipeline.
type Metrics struct {
	config MetricsConfig

	planActions      *prometheus.CounterVec
	policyViolations *prometheus.CounterVec
	applies          *prometheus.CounterVec
	managedResources *prometheus.GaugeVec
	stageDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on a private registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		planActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_actions_total",
				Help:      "Total number of planned actions",
			},
			[]string{"action", "resource_kind"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy results reported",
			},
			[]string{"policy", "severity"},
		),
		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Total number of apply runs by outcome",
			},
			[]string{"status"},
		),
		managedResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "managed_resources",
				Help:      "Number of resources recorded in state",
			},
			[]string{"resource_kind"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(
		m.planActions,
		m.policyViolations,
		m.applies,
		m.managedResources,
		m.stageDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPlan counts every action of plan by verb and resource kind.
func (m *Metrics) RecordPlan(plan []engine.PlanAction) {
	for _, a := range plan {
		m.planActions.WithLabelValues(string(a.Action), string(a.Kind)).Inc()
	}
}

// RecordViolation counts one policy result.
func (m *Metrics) RecordViolation(policyID, severity string) {
	m.policyViolations.WithLabelValues(policyID, severity).Inc()
}

// RecordApply counts an apply run with its outcome.
func (m *Metrics) RecordApply(status string) {
	m.applies.WithLabelValues(status).Inc()
}

// SetManagedResources sets the per-kind resource gauge.
func (m *Metrics) SetManagedResources(counts map[engine.ResourceKind]int) {
	for kind, n := range counts {
		m.managedResources.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the registry to the configured textfile path in the
// format read by the node exporter textfile collector. It is a no-op when no
// path is configured.
func (m *Metrics) WriteTextfile() error {
	if m.config.TextfilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.TextfilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Timer measures the elapsed time of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
