// Package metrics provides Prometheus metrics for the relaywatch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the pipeline emits.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Fetch coordinator
	sourceStatus   *prometheus.GaugeVec
	fetchLatency   *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheFallbacks prometheus.Counter
	fetchErrors    *prometheus.CounterVec

	// Aggregation engine
	nodesAggregated prometheus.Gauge
	nodesExcluded   prometheus.Counter
	operatorsTotal  prometheus.Gauge
	indexSize       *prometheus.GaugeVec

	// Analytics precomputation
	operatorsComputed prometheus.Counter
	analyticsErrors   prometheus.Counter
	analyticsLatency  prometheus.Histogram
	analyticsInFlight prometheus.Gauge

	// Rendering engine
	renderJobs     *prometheus.CounterVec
	renderRetries  prometheus.Counter
	renderLatency  prometheus.Histogram
	renderInFlight prometheus.Gauge

	// Run
	stageDuration *prometheus.HistogramVec
	runDuration   prometheus.Gauge
}

// Global manager on a custom registry so the default Go collectors never mix
// with pipeline metrics.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "relaywatch",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sourceStatus = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "source_status",
			Help:      "Per-source fetch status (1 for the active status, 0 otherwise)",
		},
		[]string{"source", "status"},
	)

	m.fetchLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "fetch_latency_seconds",
			Help:      "Telemetry fetch latency per source in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"source"},
	)

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Conditional fetches answered from the snapshot cache (304s)",
	})

	m.cacheFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_fallbacks_total",
		Help:      "Fetch failures served from a still-fresh cache entry",
	})

	m.fetchErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "fetch_errors_total",
			Help:      "Fetch errors by source",
		},
		[]string{"source"},
	)

	m.nodesAggregated = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "nodes_aggregated",
		Help:      "Canonical nodes built by the aggregation pass",
	})

	m.nodesExcluded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "nodes_excluded_total",
		Help:      "Raw records excluded for missing mandatory fields",
	})

	m.operatorsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "operators_total",
		Help:      "Operator groupings built by the aggregation pass",
	})

	m.indexSize = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "index_keys",
			Help:      "Distinct keys per categorical index",
		},
		[]string{"dimension"},
	)

	m.operatorsComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "operators_computed_total",
		Help:      "Operators whose analytics completed",
	})

	m.analyticsErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analytics_errors_total",
		Help:      "Operators recorded with default analytics after a compute error",
	})

	m.analyticsLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analytics_latency_seconds",
		Help:      "Per-operator analytics compute latency in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.analyticsInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analytics_in_flight",
		Help:      "Analytics results buffered between workers and the merge loop",
	})

	m.renderJobs = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "render_jobs_total",
			Help:      "Render jobs by output kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.renderRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "render_retries_total",
		Help:      "Render jobs retried once in-worker",
	})

	m.renderLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "render_latency_seconds",
		Help:      "Per-job render latency in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.renderInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "render_in_flight",
		Help:      "Render results buffered between workers and the merge loop",
	})

	m.stageDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"stage"},
	)

	m.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last completed run in seconds",
	})
}

// Fetch coordinator metrics.

// SetSourceStatus marks the active status for a source, zeroing the others.
func SetSourceStatus(source, status string) {
	for _, s := range []string{"fresh", "stale", "unavailable"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		globalManager.sourceStatus.WithLabelValues(source, s).Set(v)
	}
}

// RecordFetchLatency records one source fetch duration.
func RecordFetchLatency(source string, seconds float64) {
	globalManager.fetchLatency.WithLabelValues(source).Observe(seconds)
}

// RecordCacheHit counts a conditional fetch answered by the cache.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheFallback counts a failed fetch served from the cache.
func RecordCacheFallback() { globalManager.cacheFallbacks.Inc() }

// RecordFetchError counts one fetch error for a source.
func RecordFetchError(source string) {
	globalManager.fetchErrors.WithLabelValues(source).Inc()
}

// Aggregation metrics.

// UpdateNodesAggregated sets the canonical node count.
func UpdateNodesAggregated(count int) { globalManager.nodesAggregated.Set(float64(count)) }

// RecordNodeExcluded counts one raw record dropped during aggregation.
func RecordNodeExcluded() { globalManager.nodesExcluded.Inc() }

// UpdateOperatorsTotal sets the operator grouping count.
func UpdateOperatorsTotal(count int) { globalManager.operatorsTotal.Set(float64(count)) }

// UpdateIndexSize sets the key count of one categorical index.
func UpdateIndexSize(dimension string, keys int) {
	globalManager.indexSize.WithLabelValues(dimension).Set(float64(keys))
}

// Analytics metrics.

// RecordOperatorComputed counts one completed operator analytics result.
func RecordOperatorComputed() { globalManager.operatorsComputed.Inc() }

// RecordAnalyticsError counts one operator recorded with default analytics.
func RecordAnalyticsError() { globalManager.analyticsErrors.Inc() }

// RecordAnalyticsLatency records one per-operator compute duration.
func RecordAnalyticsLatency(seconds float64) { globalManager.analyticsLatency.Observe(seconds) }

// UpdateAnalyticsInFlight sets the buffered analytics result count.
func UpdateAnalyticsInFlight(count int) { globalManager.analyticsInFlight.Set(float64(count)) }

// Render metrics.

// RecordRenderJob counts one render job outcome for a kind.
func RecordRenderJob(kind, outcome string) {
	globalManager.renderJobs.WithLabelValues(kind, outcome).Inc()
}

// RecordRenderRetry counts one in-worker render retry.
func RecordRenderRetry() { globalManager.renderRetries.Inc() }

// RecordRenderLatency records one per-job render duration.
func RecordRenderLatency(seconds float64) { globalManager.renderLatency.Observe(seconds) }

// UpdateRenderInFlight sets the buffered render result count.
func UpdateRenderInFlight(count int) { globalManager.renderInFlight.Set(float64(count)) }

// Run metrics.

// RecordStageDuration records one pipeline stage duration.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// UpdateRunDuration sets the last run's wall time.
func UpdateRunDuration(seconds float64) { globalManager.runDuration.Set(seconds) }

// GetRegistry exposes the custom registry for scraping or test assertions.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
