// Package metrics provides Prometheus metrics for the meeple recommendation
// engine.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	trainingBuckets  []float64
	candidateBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	scoreRequests   *prometheus.CounterVec
	fallThroughs    *prometheus.CounterVec
	scoringLatency  prometheus.Histogram
	dataUnavailable prometheus.Counter
	recommendations prometheus.Histogram
	catalogGames    prometheus.Gauge

	// Model lifecycle
	trainingRuns      *prometheus.CounterVec
	trainingDuration  *prometheus.HistogramVec
	modelCorpusSize   *prometheus.GaugeVec
	modelVocabulary   *prometheus.GaugeVec
	modelTrainedUnix  *prometheus.GaugeVec
	artifactOps       *prometheus.CounterVec
	featureStoreQuery *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec

	// Retrain queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueCoalesced     prometheus.Counter

	// Workers
	workerActive            prometheus.Gauge
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
		namespace:        "meeple",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		trainingBuckets:  prometheus.ExponentialBuckets(0.01, 4, 10),
		candidateBuckets: prometheus.ExponentialBuckets(1, 4, 8),
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts(m.counterOpts(name, help))
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.scoreRequests = auto.NewCounterVec(m.counterOpts("score_requests_total",
		"Scoring requests by the strategy that produced the result"), []string{"strategy"})
	m.fallThroughs = auto.NewCounterVec(m.counterOpts("fall_throughs_total",
		"Tiers that could not score a request, by reason"), []string{"tier", "reason"})
	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds",
		"End to end scoring latency in milliseconds"))
	m.dataUnavailable = auto.NewCounter(m.counterOpts("data_unavailable_total",
		"Requests aborted because the feature store could not be read"))
	m.recommendations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + "recommendation_candidates",
		Help:        "Candidates scored per recommendation request",
		ConstLabels: m.customLabels,
		Buckets:     m.candidateBuckets,
	})
	m.catalogGames = auto.NewGauge(m.gaugeOpts("catalog_games",
		"Games in the catalog at the last request"))

	m.trainingRuns = auto.NewCounterVec(m.counterOpts("training_runs_total",
		"Training runs by tier and outcome"), []string{"tier", "outcome"})
	m.trainingDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + "training_duration_seconds",
		Help:        "Training duration in seconds",
		ConstLabels: m.customLabels,
		Buckets:     m.trainingBuckets,
	}, []string{"tier"})
	m.modelCorpusSize = auto.NewGaugeVec(m.gaugeOpts("model_corpus_size",
		"Corpus size of the published model"), []string{"tier"})
	m.modelVocabulary = auto.NewGaugeVec(m.gaugeOpts("model_vocabulary_size",
		"Games known to the published model"), []string{"tier"})
	m.modelTrainedUnix = auto.NewGaugeVec(m.gaugeOpts("model_trained_timestamp_seconds",
		"Unix time the published model was trained"), []string{"tier"})
	m.artifactOps = auto.NewCounterVec(m.counterOpts("artifact_operations_total",
		"Artifact store operations by tier, operation and outcome"), []string{"tier", "operation", "outcome"})
	m.featureStoreQuery = auto.NewHistogramVec(m.histogramOpts("feature_store_query_milliseconds",
		"Feature store query latency in milliseconds"), []string{"operation"})
	m.breakerState = auto.NewGaugeVec(m.gaugeOpts("breaker_state",
		"Circuit breaker state: 0 closed, 1 half-open, 2 open"), []string{"name"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("retrain_queue_size", "Pending retrain jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("retrain_queue_capacity", "Retrain queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("retrain_enqueued_total", "Retrain jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("retrain_dequeued_total", "Retrain jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("retrain_enqueue_errors_total",
		"Retrain jobs rejected because the queue was full or closed"))
	m.queueCoalesced = auto.NewCounter(m.counterOpts("retrain_coalesced_total",
		"Retrain requests merged into a job already pending for the tier"))

	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently running"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time a worker spent on one retrain job in milliseconds"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Retrain jobs that failed"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and type"), []string{"component", "type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds",
		"Most recent GC pause in milliseconds"))
}

// Scoring.

// RecordScoreRequest counts a scoring request answered by strategy.
func RecordScoreRequest(strategy string) {
	if globalManager.enabled {
		globalManager.scoreRequests.WithLabelValues(strategy).Inc()
	}
}

// RecordFallThrough counts a tier that could not score a request.
func RecordFallThrough(tier, reason string) {
	if globalManager.enabled {
		globalManager.fallThroughs.WithLabelValues(tier, reason).Inc()
	}
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.scoringLatency.Observe(latencyMs)
	}
}

// RecordDataUnavailable counts a request aborted by the feature store.
func RecordDataUnavailable() {
	if globalManager.enabled {
		globalManager.dataUnavailable.Inc()
	}
}

// RecordRecommendation records how many candidates one request scored.
func RecordRecommendation(candidates int) {
	if globalManager.enabled {
		globalManager.recommendations.Observe(float64(candidates))
	}
}

// UpdateCatalogGames sets the catalog size gauge.
func UpdateCatalogGames(count int) {
	if globalManager.enabled {
		globalManager.catalogGames.Set(float64(count))
	}
}

// Model lifecycle.

// RecordTraining records one training run.
func RecordTraining(tier string, success bool, duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	globalManager.trainingRuns.WithLabelValues(tier, outcome).Inc()
	globalManager.trainingDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// UpdateModel publishes the gauges describing the model live for tier.
func UpdateModel(tier string, corpusSize, vocabulary int, trainedAt time.Time) {
	if !globalManager.enabled {
		return
	}
	globalManager.modelCorpusSize.WithLabelValues(tier).Set(float64(corpusSize))
	globalManager.modelVocabulary.WithLabelValues(tier).Set(float64(vocabulary))
	globalManager.modelTrainedUnix.WithLabelValues(tier).Set(float64(trainedAt.Unix()))
}

// RecordArtifactOperation counts an artifact store save or load.
func RecordArtifactOperation(tier, operation string, err error) {
	if !globalManager.enabled {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	globalManager.artifactOps.WithLabelValues(tier, operation, outcome).Inc()
}

// RecordFeatureStoreQuery records a feature store query latency.
func RecordFeatureStoreQuery(operation string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.featureStoreQuery.WithLabelValues(operation).Observe(latencyMs)
	}
}

// UpdateBreakerState sets a circuit breaker's state gauge.
func UpdateBreakerState(name string, state int) {
	if globalManager.enabled {
		globalManager.breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// Retrain queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordQueueCoalesced counts a retrain request merged into a pending job.
func RecordQueueCoalesced() {
	if globalManager.enabled {
		globalManager.queueCoalesced.Inc()
	}
}

// Workers.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if globalManager.enabled {
		globalManager.workerActive.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrors.Inc()
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// CollectSystem samples runtime statistics once.
func CollectSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapInuse)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		last := ms.PauseNs[(ms.NumGC+255)%256]
		RecordSystemGCPauseTime(float64(last) / float64(time.Millisecond))
	}
}

// StartSystemCollector samples runtime statistics every refresh interval until
// ctx is done.
func StartSystemCollector(ctx context.Context) {
	interval := globalManager.refreshInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			CollectSystem()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
