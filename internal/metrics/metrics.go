package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocation metrics
	InvocationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_invocations_started_total",
			Help: "Total number of agent invocations started",
		},
		[]string{"agent_id"},
	)

	InvocationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_invocations_completed_total",
			Help: "Total number of agent invocations completed",
		},
		[]string{"agent_id", "status"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polya_invocation_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent_id"},
	)

	InvocationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_invocation_errors_total",
			Help: "Total number of invocation errors by code",
		},
		[]string{"agent_id", "code"},
	)

	// Decomposition metrics
	DecompositionNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polya_decomposition_nodes",
			Help:    "Number of sub-objectives produced per decomposition",
			Buckets: []float64{1, 2, 3, 5, 8, 12, 16, 20, 30},
		},
	)

	DecompositionDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polya_decomposition_depth",
			Help:    "Maximum depth reached per decomposition",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	DecompositionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polya_decomposition_confidence",
			Help:    "Confidence score per decomposition",
			Buckets: []float64{0.5, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)

	// Policy metrics
	PolicyDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_policy_denials_total",
			Help: "Total number of invocations denied by policy",
		},
		[]string{"agent_id"},
	)

	// Persistence metrics
	PersistenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_persistence_writes_total",
			Help: "Total number of persistence writes by outcome",
		},
		[]string{"outcome"},
	)

	PersistenceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polya_persistence_queue_depth",
			Help: "Current depth of the async persistence queue",
		},
	)

	PersistenceQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_persistence_queue_drops_total",
			Help: "Writes dropped because the persistence queue was full",
		},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_cache_evictions_total",
			Help: "Total number of local cache evictions",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polya_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_ratelimit_rejections_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"limiter"},
	)

	IdempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_idempotency_hits_total",
			Help: "Requests answered from the idempotency cache",
		},
	)

	// Streaming metrics
	StreamingClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polya_streaming_clients",
			Help: "Connected streaming clients by transport",
		},
		[]string{"transport"},
	)

	StreamingEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polya_streaming_events_dropped_total",
			Help: "Events dropped on slow streaming subscribers",
		},
	)
)

// RecordInvocation records the lifecycle metrics for one finished
// invocation.
func RecordInvocation(agentID, status string, durationSeconds float64) {
	InvocationsCompleted.WithLabelValues(agentID, status).Inc()
	InvocationDuration.WithLabelValues(agentID).Observe(durationSeconds)
}

// RecordDecomposition records the shape of one produced decomposition.
func RecordDecomposition(nodes, maxDepth int, confidence float64) {
	DecompositionNodes.Observe(float64(nodes))
	DecompositionDepth.Observe(float64(maxDepth))
	DecompositionConfidence.Observe(confidence)
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(path, method, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(path, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(path, method).Observe(durationSeconds)
}
