// Package metrics provides Prometheus metrics for the sideline match
// event service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the sideline service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion metrics - the heart of the service
	eventsAccepted     prometheus.Counter
	eventsDuplicate    prometheus.Counter
	eventsRejected     *prometheus.CounterVec
	ingestLatency      prometheus.Histogram
	ingestBackpressure prometheus.Counter
	tenantMismatches   prometheus.Counter

	// Broadcast metrics
	deltasBroadcast  prometheus.Counter
	sessionsOpened   prometheus.Counter
	sessionsClosed   prometheus.Counter
	sessionOverflows prometheus.Counter
	activeSessions   prometheus.Gauge
	snapshotRequests prometheus.Counter

	// Store metrics
	matchCount     prometheus.Gauge
	eventLogSize   prometheus.Gauge
	sequencerCount prometheus.Gauge

	// Client sync metrics (recorder side)
	outboxPending prometheus.Gauge
	syncCycles    prometheus.Counter
	syncAttempts  *prometheus.CounterVec

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System performance metrics
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
		namespace:        "sideline",
		subsystem:        "match",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Ingestion metrics
	m.eventsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_accepted_total",
		Help:      "Total number of events accepted and assigned a sequence",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of idempotent replays answered with the original sequence",
	})

	m.eventsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_rejected_total",
			Help:      "Total number of events rejected by validation, by reason",
		},
		[]string{"reason"},
	)

	m.ingestLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_latency_milliseconds",
		Help:      "Histogram of per-event ingestion pipeline latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.ingestBackpressure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_backpressure_total",
		Help:      "Total number of ingest attempts that timed out on a full mailbox",
	})

	m.tenantMismatches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tenant_mismatches_total",
		Help:      "Total number of requests rejected at the club isolation boundary",
	})

	// Broadcast metrics
	m.deltasBroadcast = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deltas_broadcast_total",
		Help:      "Total number of event deltas fanned out to subscribers",
	})

	m.sessionsOpened = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_opened_total",
		Help:      "Total number of subscriber sessions opened",
	})

	m.sessionsClosed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_closed_total",
		Help:      "Total number of subscriber sessions closed",
	})

	m.sessionOverflows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "session_overflows_total",
		Help:      "Total number of sessions torn down because their send buffer overflowed",
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Current number of live subscriber sessions",
	})

	m.snapshotRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_requests_total",
		Help:      "Total number of full state snapshots served",
	})

	// Store metrics
	m.matchCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "match_count",
		Help:      "Number of matches tracked by the store",
	})

	m.eventLogSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_log_size",
		Help:      "Total number of events across all match logs",
	})

	m.sequencerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sequencer_count",
		Help:      "Number of live per-match sequencer goroutines",
	})

	// Client sync metrics
	m.outboxPending = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "outbox",
		Name:      "pending_entries",
		Help:      "Number of outbox entries awaiting server confirmation",
	})

	m.syncCycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "outbox",
		Name:      "sync_cycles_total",
		Help:      "Total number of sync worker drain cycles",
	})

	m.syncAttempts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "outbox",
			Name:      "sync_attempts_total",
			Help:      "Total number of delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// HTTP performance metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System performance metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Current memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_time_milliseconds",
		Help:      "Histogram of garbage collection pause times in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// Package-level helpers that record on the global manager.

// RecordEventAccepted increments the accepted-event counter.
func RecordEventAccepted() {
	globalManager.eventsAccepted.Inc()
}

// RecordEventDuplicate increments the duplicate-replay counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected increments the rejection counter for a reason.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordIngestLatency records one ingestion pipeline duration.
func RecordIngestLatency(latencyMs float64) {
	globalManager.ingestLatency.Observe(latencyMs)
}

// RecordIngestBackpressure increments the mailbox-full counter.
func RecordIngestBackpressure() {
	globalManager.ingestBackpressure.Inc()
}

// RecordTenantMismatch increments the club isolation rejection counter.
func RecordTenantMismatch() {
	globalManager.tenantMismatches.Inc()
}

// RecordDeltaBroadcast increments the broadcast counter.
func RecordDeltaBroadcast() {
	globalManager.deltasBroadcast.Inc()
}

// RecordSessionOpened increments the opened-session counter.
func RecordSessionOpened() {
	globalManager.sessionsOpened.Inc()
}

// RecordSessionClosed increments the closed-session counter.
func RecordSessionClosed() {
	globalManager.sessionsClosed.Inc()
}

// RecordSessionOverflow increments the slow-session teardown counter.
func RecordSessionOverflow() {
	globalManager.sessionOverflows.Inc()
}

// UpdateActiveSessions sets the live session gauge.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSnapshotRequest increments the snapshot counter.
func RecordSnapshotRequest() {
	globalManager.snapshotRequests.Inc()
}

// UpdateMatchCount sets the tracked-match gauge.
func UpdateMatchCount(count int) {
	globalManager.matchCount.Set(float64(count))
}

// UpdateEventLogSize sets the total event log gauge.
func UpdateEventLogSize(count int) {
	globalManager.eventLogSize.Set(float64(count))
}

// UpdateSequencerCount sets the live sequencer gauge.
func UpdateSequencerCount(count int) {
	globalManager.sequencerCount.Set(float64(count))
}

// UpdateOutboxPending sets the pending-entry gauge.
func UpdateOutboxPending(count int) {
	globalManager.outboxPending.Set(float64(count))
}

// RecordSyncCycle increments the drain-cycle counter.
func RecordSyncCycle() {
	globalManager.syncCycles.Inc()
}

// RecordSyncAttempt increments the delivery-attempt counter for an outcome.
func RecordSyncAttempt(outcome string) {
	globalManager.syncAttempts.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records one GC pause duration.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
