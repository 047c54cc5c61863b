// Package metrics provides custom Prometheus metrics for chordverify,
// exposed through a narrow Recorder interface so components depend on
// behavior rather than a concrete Prometheus type.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics capability every component that wants
// observability depends on, instead of a concrete Prometheus type.
type Recorder interface {
	RecordOperation(operation, status string)
	RecordDuration(operation string, seconds float64)
	RecordError(operation, errorType string)
}

// VerifierMetrics is the Prometheus-backed Recorder used in production. It
// tracks tick outcomes, inference latency, and error counts by component.
type VerifierMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec
}

// NewVerifierMetrics registers the chordverify metric families on reg and
// returns a Recorder backed by them.
func NewVerifierMetrics(reg prometheus.Registerer) *VerifierMetrics {
	factory := promauto.With(reg)
	return &VerifierMetrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordverify",
			Name:      "operations_total",
			Help:      "Count of operations by name and outcome status.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chordverify",
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"operation"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordverify",
			Name:      "errors_total",
			Help:      "Count of errors by operation and error type.",
		}, []string{"operation", "error_type"}),
	}
}

func (m *VerifierMetrics) RecordOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

func (m *VerifierMetrics) RecordDuration(operation string, seconds float64) {
	m.durations.WithLabelValues(operation).Observe(seconds)
}

func (m *VerifierMetrics) RecordError(operation, errorType string) {
	m.errors.WithLabelValues(operation, errorType).Inc()
}

// Serve starts a blocking HTTP server exposing the registry at /metrics on
// addr. Callers typically run it in its own goroutine.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

// NoOpRecorder discards everything recorded; used where a Recorder is
// required but metrics are disabled.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, string)    {}
func (NoOpRecorder) RecordDuration(string, float64)    {}
func (NoOpRecorder) RecordError(string, string)        {}
