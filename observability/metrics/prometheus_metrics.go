// Package metrics provides Prometheus-compatible metrics collection for
// the collector. Metric names follow Prometheus conventions with the
// service name as prefix.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the types.Metrics interface using the
// Prometheus client library. All metrics are registered with the default
// registry at construction time.
type PrometheusMetrics struct {
	mu          sync.RWMutex
	serviceName string

	// processedTotal tracks processed items by status and operation type
	processedTotal *prometheus.CounterVec
	// errorsTotal tracks errors by error type and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds tracks operation duration with default buckets
	durationSeconds *prometheus.HistogramVec
	// fileSizeBytes tracks payload sizes with exponential buckets
	fileSizeBytes *prometheus.HistogramVec
	// inProgress tracks operations currently in flight
	inProgress *prometheus.GaugeVec
}

// New creates a PrometheusMetrics instance with pre-configured metrics:
//
//   - {serviceName}_processed_total: counter by status and type
//   - {serviceName}_errors_total: counter by error type and operation
//   - {serviceName}_duration_seconds: histogram of operation durations
//   - {serviceName}_file_size_bytes: histogram of payload sizes
//   - {serviceName}_in_progress: gauge of concurrent operations
//
// Panics if registration fails (duplicate metric names).
func New(serviceName string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		serviceName: serviceName,
	}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_total", serviceName),
			Help: fmt.Sprintf("Total processed items by %s", serviceName),
		},
		[]string{"status", "type"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_errors_total", serviceName),
			Help: fmt.Sprintf("Total errors in %s", serviceName),
		},
		[]string{"error_type", "operation"},
	)

	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_duration_seconds", serviceName),
			Help:    fmt.Sprintf("Operation duration in %s", serviceName),
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Buckets sized for stats payloads: 1KB up to 100MB
	m.fileSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_file_size_bytes", serviceName),
			Help: fmt.Sprintf("Payload sizes fetched by %s", serviceName),
			Buckets: []float64{
				1024,
				10240,
				102400,
				1048576,
				10485760,
				104857600,
			},
		},
		[]string{"file_type"},
	)

	m.inProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_in_progress", serviceName),
			Help: fmt.Sprintf("Operations in progress in %s", serviceName),
		},
		[]string{"operation"},
	)

	prometheus.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.fileSizeBytes,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments the success counter for an operation type.
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (status="error") and
// the detailed error counter, giving high-level failure rates plus error
// breakdowns.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records an operation duration in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordFileSize records the size of a fetched payload in bytes.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.fileSizeBytes.WithLabelValues(fileType).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge for an operation.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
