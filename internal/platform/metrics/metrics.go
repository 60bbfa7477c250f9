package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	SourceRuns       *prometheus.CounterVec
	SourceDuration   *prometheus.HistogramVec
	RecordsRedacted  *prometheus.CounterVec
	LabelsAllocated  *prometheus.CounterVec
	Packages         *prometheus.CounterVec
	ActivityEvents   *prometheus.CounterVec
	ActivityDropped  prometheus.Counter
	ActivityFailures prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on a private registry, so several
// instances (one per test) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers on reg and serves from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_source_runs_total",
			Help: "Source runs by vendor and outcome (success, failed)",
		}, []string{"vendor", "outcome"}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsar_source_run_duration_seconds",
			Help:    "Wall time of one source run from extraction to written report",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"vendor"}),
		RecordsRedacted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_records_redacted_total",
			Help: "Records passed through the redaction engine",
		}, []string{"vendor"}),
		LabelsAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_redaction_labels_total",
			Help: "Distinct redaction labels allocated, by category",
		}, []string{"category"}),
		Packages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_packages_assembled_total",
			Help: "Package assembly attempts by outcome",
		}, []string{"outcome"}),
		ActivityEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_activity_events_total",
			Help: "Activity log events persisted, by event type",
		}, []string{"event"}),
		ActivityDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dsar_activity_events_dropped_total",
			Help: "Activity events dropped because the async buffer was full",
		}),
		ActivityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dsar_activity_persist_failures_total",
			Help: "Activity events that could not be persisted",
		}),
		gatherer: gatherer,
	}
}

// ObserveRun records one finished source run.
func (m *Metrics) ObserveRun(vendor, outcome string, seconds float64, records int) {
	if m == nil {
		return
	}
	m.SourceRuns.WithLabelValues(vendor, outcome).Inc()
	m.SourceDuration.WithLabelValues(vendor).Observe(seconds)
	if records > 0 {
		m.RecordsRedacted.WithLabelValues(vendor).Add(float64(records))
	}
}

// AddLabels accumulates per-category label counts from one run.
func (m *Metrics) AddLabels(stats map[string]int) {
	if m == nil {
		return
	}
	for category, n := range stats {
		if n > 0 {
			m.LabelsAllocated.WithLabelValues(category).Add(float64(n))
		}
	}
}

// IncPackages counts one assembly attempt.
func (m *Metrics) IncPackages(outcome string) {
	if m == nil {
		return
	}
	m.Packages.WithLabelValues(outcome).Inc()
}

// IncActivityEvents counts one persisted activity event.
func (m *Metrics) IncActivityEvents(event string) {
	if m == nil {
		return
	}
	m.ActivityEvents.WithLabelValues(event).Inc()
}

// IncActivityDropped counts one event lost to a full buffer.
func (m *Metrics) IncActivityDropped() {
	if m == nil {
		return
	}
	m.ActivityDropped.Inc()
}

// IncActivityFailures counts one failed persist.
func (m *Metrics) IncActivityFailures() {
	if m == nil {
		return
	}
	m.ActivityFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
