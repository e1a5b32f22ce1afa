// Package metrics provides Prometheus metrics for the trendhunter service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the trendhunter service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingestion
	observationsIngested *prometheus.CounterVec
	observationsDropped  *prometheus.CounterVec
	ingestionFailures    *prometheus.CounterVec
	platformHalted       *prometheus.GaugeVec
	ingestionCycle       prometheus.Histogram

	// Verification
	verifications    *prometheus.CounterVec
	oracleLatency    prometheus.Histogram
	sourceWatermark  *prometheus.GaugeVec
	verificationPass prometheus.Histogram

	// Trust
	trustScore   *prometheus.GaugeVec
	sourcesTotal prometheus.Gauge

	// Trust board
	boardUpdateLatency    prometheus.Histogram
	boardQueryLatency     prometheus.Histogram
	boardSnapshotDuration prometheus.Histogram
	boardSnapshotLastUnix prometheus.Gauge
	boardSnapshotCount    prometheus.Counter

	// Decision
	transitions   *prometheus.CounterVec
	intents       *prometheus.CounterVec
	openPositions prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trendhunter",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	b := m.histogramBuckets

	m.observationsIngested = m.counterVec("observations_ingested_total",
		"Observations appended to a source, by platform", "platform")
	m.observationsDropped = m.counterVec("observations_dropped_total",
		"Sentiments dropped before becoming observations, by reason", "reason")
	m.ingestionFailures = m.counterVec("ingestion_failures_total",
		"Failed sentiment fetches, by platform and failure kind", "platform", "kind")
	m.platformHalted = m.gaugeVec("platform_halted",
		"1 when a platform's ingestion is halted by a permanent failure", "platform")
	m.ingestionCycle = m.histogram("ingestion_cycle_duration_milliseconds",
		"Duration of one ingestion cycle in milliseconds", b)

	m.verifications = m.counterVec("verifications_total",
		"Verification outcomes (correct, incorrect, neutral, unknowable, deferred, auto_incorrect)", "outcome")
	m.oracleLatency = m.histogram("oracle_latency_milliseconds",
		"Price oracle call latency in milliseconds", b)
	m.sourceWatermark = m.gaugeVec("source_last_verified_index",
		"Highest contiguous checked observation index per source", "source")
	m.verificationPass = m.histogram("verification_pass_duration_milliseconds",
		"Duration of a single source verification pass in milliseconds", b)

	m.trustScore = m.gaugeVec("trust_score",
		"Composite trusted score per source", "source")
	m.sourcesTotal = m.gauge("sources_total",
		"Number of known sources")

	m.boardUpdateLatency = m.histogram("board_update_latency_milliseconds",
		"Trust board upsert latency in milliseconds", b)
	m.boardQueryLatency = m.histogram("board_query_latency_milliseconds",
		"Trust board query latency in milliseconds", b)
	m.boardSnapshotDuration = m.histogram("board_snapshot_rebuild_duration_milliseconds",
		"Trust board snapshot rebuild duration in milliseconds", b)
	m.boardSnapshotLastUnix = m.gauge("board_snapshot_last_unix",
		"Unix timestamp of the last trust board snapshot publish")
	m.boardSnapshotCount = m.counter("board_snapshot_count_total",
		"Total number of trust board snapshots published")

	m.transitions = m.counterVec("position_transitions_total",
		"Position state transitions per token", "from", "to")
	m.intents = m.counterVec("intents_total",
		"Intents submitted to the execution venue, by kind and outcome", "kind", "outcome")
	m.openPositions = m.gauge("open_positions",
		"Number of tokens currently holding a position")

	m.queueSize = m.gauge("queue_size", "Current size of the verification job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum verification job queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time spent by a job between enqueue and completion in milliseconds", b)

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently running a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker job processing latency in milliseconds", b)
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker job errors")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: b,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion.

// RecordObservationIngested increments the ingested counter for platform.
func RecordObservationIngested(platform string) {
	globalManager.observationsIngested.WithLabelValues(platform).Inc()
}

// RecordObservationDropped increments the dropped counter for reason.
func RecordObservationDropped(reason string) {
	globalManager.observationsDropped.WithLabelValues(reason).Inc()
}

// RecordIngestionFailure counts a failed fetch. kind is transient or permanent.
func RecordIngestionFailure(platform, kind string) {
	globalManager.ingestionFailures.WithLabelValues(platform, kind).Inc()
}

// UpdatePlatformHalted flags platform as halted or running.
func UpdatePlatformHalted(platform string, halted bool) {
	v := 0.0
	if halted {
		v = 1
	}
	globalManager.platformHalted.WithLabelValues(platform).Set(v)
}

// RecordIngestionCycle records the duration of an ingestion cycle.
func RecordIngestionCycle(latencyMs float64) {
	globalManager.ingestionCycle.Observe(latencyMs)
}

// Verification.

// RecordVerification counts a verification outcome.
func RecordVerification(outcome string) {
	globalManager.verifications.WithLabelValues(outcome).Inc()
}

// RecordOracleLatency records a price oracle call latency.
func RecordOracleLatency(latencyMs float64) {
	globalManager.oracleLatency.Observe(latencyMs)
}

// UpdateWatermark sets the last verified index of source.
func UpdateWatermark(source string, idx int) {
	globalManager.sourceWatermark.WithLabelValues(source).Set(float64(idx))
}

// RecordVerificationPass records the duration of one source's verification.
func RecordVerificationPass(latencyMs float64) {
	globalManager.verificationPass.Observe(latencyMs)
}

// Trust.

// UpdateTrustScore sets the trusted score gauge of source.
func UpdateTrustScore(source string, score float64) {
	globalManager.trustScore.WithLabelValues(source).Set(score)
}

// UpdateSourcesTotal sets the number of known sources.
func UpdateSourcesTotal(count int) {
	globalManager.sourcesTotal.Set(float64(count))
}

// Trust board.

// RecordBoardUpdateLatency records a trust board upsert latency.
func RecordBoardUpdateLatency(latencyMs float64) {
	globalManager.boardUpdateLatency.Observe(latencyMs)
}

// RecordBoardQueryLatency records a trust board query latency.
func RecordBoardQueryLatency(latencyMs float64) {
	globalManager.boardQueryLatency.Observe(latencyMs)
}

// RecordBoardSnapshot records a published snapshot and its rebuild duration.
func RecordBoardSnapshot(durationMs float64, unix int64) {
	globalManager.boardSnapshotDuration.Observe(durationMs)
	globalManager.boardSnapshotLastUnix.Set(float64(unix))
	globalManager.boardSnapshotCount.Inc()
}

// Decision.

// RecordTransition counts a position state transition.
func RecordTransition(from, to string) {
	globalManager.transitions.WithLabelValues(from, to).Inc()
}

// RecordIntent counts an intent submission. outcome is accepted, rejected or failed.
func RecordIntent(kind, outcome string) {
	globalManager.intents.WithLabelValues(kind, outcome).Inc()
}

// UpdateOpenPositions sets the number of open positions.
func UpdateOpenPositions(count int) {
	globalManager.openPositions.Set(float64(count))
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

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
