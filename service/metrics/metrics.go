package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec

	// Distribution Metrics
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	planRejections     *prometheus.CounterVec
	fundingTotal       *prometheus.CounterVec
	fundingDuration    prometheus.Histogram
	batchDuration      *prometheus.HistogramVec
	batchSize          *prometheus.HistogramVec
	rowTransitions     *prometheus.CounterVec
	requiredLamports   prometheus.Gauge
	plannedNewAccounts prometheus.Gauge

	// Cache Metrics
	mintCacheLookups *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),

		// Distribution Metrics
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airdrop_runs_total",
				Help: "Total number of distribution runs by final phase",
			},
			[]string{"phase"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airdrop_run_duration_seconds",
				Help:    "Duration of distribution runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"phase"},
		),
		planRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airdrop_plan_rejections_total",
				Help: "Total number of runs rejected during planning by reason",
			},
			[]string{"reason"},
		),
		fundingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airdrop_funding_total",
				Help: "Total number of temporary signer funding transactions by status",
			},
			[]string{"status"},
		),
		fundingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airdrop_funding_duration_seconds",
				Help:    "Duration of the funding transaction including confirmation",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airdrop_batch_duration_seconds",
				Help:    "Duration of one executor batch, excluding the inter-batch delay",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		batchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airdrop_batch_size",
				Help:    "Number of units of work per executor batch",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"stage"},
		),
		rowTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airdrop_row_transitions_total",
				Help: "Total number of recipient row state transitions by target state",
			},
			[]string{"state"},
		),
		requiredLamports: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "airdrop_planned_required_lamports",
				Help: "Native currency required by the most recent plan",
			},
		),
		plannedNewAccounts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "airdrop_planned_new_accounts",
				Help: "Associated token accounts the most recent plan expects to create",
			},
		),

		// Cache Metrics
		mintCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mint_cache_lookups_total",
				Help: "Total number of mint metadata cache lookups by result",
			},
			[]string{"result"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"stream", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"stream"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// Distribution metric helpers

// RecordRun records a finished run and the phase it ended in.
func (m *Metrics) RecordRun(phase string, duration float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(phase).Inc()
	m.runDuration.WithLabelValues(phase).Observe(duration)
}

// RecordPlanRejected records a run stopped during planning.
func (m *Metrics) RecordPlanRejected(reason string) {
	if m == nil {
		return
	}
	m.planRejections.WithLabelValues(reason).Inc()
}

// RecordPlan records the requirements of an accepted plan.
func (m *Metrics) RecordPlan(requiredLamports uint64, newAccounts int) {
	if m == nil {
		return
	}
	m.requiredLamports.Set(float64(requiredLamports))
	m.plannedNewAccounts.Set(float64(newAccounts))
}

// RecordFunding records the funding transaction outcome.
func (m *Metrics) RecordFunding(status string, duration float64) {
	if m == nil {
		return
	}
	m.fundingTotal.WithLabelValues(status).Inc()
	m.fundingDuration.Observe(duration)
}

// RecordBatch records one executor batch. stage is "plan" or "distribute".
func (m *Metrics) RecordBatch(stage string, size int, duration float64) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(stage).Observe(duration)
	m.batchSize.WithLabelValues(stage).Observe(float64(size))
}

// RecordRowTransition records a recipient row entering state.
func (m *Metrics) RecordRowTransition(state string) {
	if m == nil {
		return
	}
	m.rowTransitions.WithLabelValues(state).Inc()
}

// Cache metric helpers

// RecordMintCacheLookup records a mint cache hit, miss or error.
func (m *Metrics) RecordMintCacheLookup(result string) {
	if m == nil {
		return
	}
	m.mintCacheLookups.WithLabelValues(result).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(stream, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(stream, status).Inc()
	m.natsPublishDuration.WithLabelValues(stream).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
