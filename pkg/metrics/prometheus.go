// Package metrics provides Prometheus metrics for the fatigue scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorKind labels prediction failures.
type ErrorKind string

// Prediction failure kinds.
const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindInference  ErrorKind = "inference"
)

// fatigueBuckets spread across the [0,100] score range.
var fatigueBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the fatigue service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Core Business Metrics - what the scorer produced
	predictions        prometheus.Counter
	predictionErrors   *prometheus.CounterVec
	predictionsClamped prometheus.Counter
	inferenceLatency   prometheus.Histogram
	fatigueScore       prometheus.Histogram

	// Model Metrics - checkpoint state
	checkpointLoaded       prometheus.Gauge
	checkpointLoadErrors   prometheus.Counter
	checkpointLoadDuration prometheus.Gauge
	modelParameters        prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "tasktune",
		subsystem:      "fatigue",
		latencyBuckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		registry:       prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "predictions_total",
		Help:        "Total number of successful fatigue predictions",
		ConstLabels: m.constLabels,
	})

	m.predictionErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "prediction_errors_total",
			Help:        "Total number of failed predictions by kind (validation, inference)",
			ConstLabels: m.constLabels,
		},
		[]string{"kind"},
	)

	m.predictionsClamped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "predictions_clamped_total",
		Help:        "Predictions whose raw network output fell outside [0,100]",
		ConstLabels: m.constLabels,
	})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "inference_latency_milliseconds",
		Help:        "Latency of validate, standardize and forward pass in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	})

	m.fatigueScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "score",
		Help:        "Distribution of returned fatigue scores",
		Buckets:     fatigueBuckets,
		ConstLabels: m.constLabels,
	})

	m.checkpointLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_loaded",
		Help:        "1 when a checkpoint is loaded and the scorer is serving",
		ConstLabels: m.constLabels,
	})

	m.checkpointLoadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_load_errors_total",
		Help:        "Total number of failed checkpoint loads",
		ConstLabels: m.constLabels,
	})

	m.checkpointLoadDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_load_duration_milliseconds",
		Help:        "Time taken by the last successful checkpoint load",
		ConstLabels: m.constLabels,
	})

	m.modelParameters = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_parameters",
		Help:        "Number of trainable parameters in the loaded network",
		ConstLabels: m.constLabels,
	})

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.latencyBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint and error type",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// RecordPrediction counts a successful prediction with its score and latency.
func (m *Manager) RecordPrediction(score, latencyMs float64) {
	m.predictions.Inc()
	m.fatigueScore.Observe(score)
	m.inferenceLatency.Observe(latencyMs)
}

// RecordPredictionError counts a failed prediction.
func (m *Manager) RecordPredictionError(kind ErrorKind) {
	m.predictionErrors.WithLabelValues(string(kind)).Inc()
}

// RecordPrediction counts a successful prediction on the global manager.
func RecordPrediction(score, latencyMs float64) {
	globalManager.RecordPrediction(score, latencyMs)
}

// RecordPredictionError counts a failed prediction on the global manager.
func RecordPredictionError(kind ErrorKind) {
	globalManager.RecordPredictionError(kind)
}

// RecordPredictionClamped counts a prediction that needed clamping.
func RecordPredictionClamped() {
	globalManager.predictionsClamped.Inc()
}

// SetCheckpointLoaded flips the checkpoint_loaded gauge.
func SetCheckpointLoaded(loaded bool) {
	if loaded {
		globalManager.checkpointLoaded.Set(1)
		return
	}
	globalManager.checkpointLoaded.Set(0)
}

// RecordCheckpointLoadError increments the checkpoint load error counter.
func RecordCheckpointLoadError() {
	globalManager.checkpointLoadErrors.Inc()
}

// RecordCheckpointLoadDuration records how long the last load took.
func RecordCheckpointLoadDuration(durationMs float64) {
	globalManager.checkpointLoadDuration.Set(durationMs)
}

// UpdateModelParameters sets the trainable parameter count.
func UpdateModelParameters(count int) {
	globalManager.modelParameters.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
