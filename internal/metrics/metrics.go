package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for jobtrail
type Metrics struct {
	// Transition counters
	TransitionsTotal          *prometheus.CounterVec
	TransitionsDuplicateTotal prometheus.Counter

	// Application gauges
	ApplicationsTotal   prometheus.Gauge
	ApplicationsByStage *prometheus.GaugeVec

	// Import counters
	ImportsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrail_transitions_total",
				Help: "Total number of committed stage transitions",
			},
			[]string{"from_stage", "to_stage", "source"},
		),
		TransitionsDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "jobtrail_transitions_duplicate_total",
				Help: "Total number of transition requests skipped by the idempotence guard",
			},
		),
		ApplicationsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobtrail_applications_total",
				Help: "Number of tracked applications",
			},
		),
		ApplicationsByStage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jobtrail_applications_by_stage",
				Help: "Number of applications currently in each stage",
			},
			[]string{"stage"},
		),
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrail_imports_total",
				Help: "Total number of processed import emails by result",
			},
			[]string{"result"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrail_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobtrail_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrail_api_errors_total",
				Help: "Total number of API errors by type",
			},
			[]string{"error_type"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobtrail_uptime_seconds",
				Help: "Time since the server started",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobtrail_goroutines",
				Help: "Number of goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobtrail_storage_used_bytes",
				Help: "Size of the database file in bytes",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionsDuplicateTotal,
		m.ApplicationsTotal,
		m.ApplicationsByStage,
		m.ImportsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance (nil if not set)
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncTransitions increments the transition counter
func IncTransitions(fromStage, toStage, source string) {
	if m := Global(); m != nil {
		m.TransitionsTotal.WithLabelValues(fromStage, toStage, source).Inc()
	}
}

// IncTransitionsDuplicate increments the duplicate-skip counter
func IncTransitionsDuplicate() {
	if m := Global(); m != nil {
		m.TransitionsDuplicateTotal.Inc()
	}
}

// IncImports increments the import counter for a result
// (created, transitioned, skipped, failed)
func IncImports(result string) {
	if m := Global(); m != nil {
		m.ImportsTotal.WithLabelValues(result).Inc()
	}
}
