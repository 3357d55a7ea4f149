package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. A nil
// *Metrics is valid everywhere and records nothing.
type Metrics struct {
	// Ledger RPC metrics
	rpcCallsTotal     *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec
	rpcRateLimitHits  *prometheus.CounterVec
	rpcRetries        *prometheus.CounterVec
	signaturesPerPage *prometheus.HistogramVec

	// Fetch pipeline metrics
	batchesFetchedTotal *prometheus.CounterVec
	batchRetriesTotal   *prometheus.CounterVec
	fanoutLimit         prometheus.Gauge
	candidatesDropped   *prometheus.CounterVec

	// Trade extraction metrics
	tradesExtractedTotal *prometheus.CounterVec
	tradesDroppedTotal   *prometheus.CounterVec

	// Price resolution metrics
	priceLookupsTotal   *prometheus.CounterVec
	priceLookupDuration *prometheus.HistogramVec

	// Cache metrics
	cacheOpsTotal *prometheus.CounterVec

	// HTTP / SSE metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// Event bus metrics
	eventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_calls_total",
				Help: "Total number of ledger RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_rate_limit_hits_total",
				Help: "Total number of upstream rate limit hits (429 responses)",
			},
			[]string{"method"},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_retries_total",
				Help: "Total number of ledger RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		signaturesPerPage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_signatures_per_page",
				Help:    "Number of signatures returned per pagination call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"wallet"},
		),

		batchesFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_batches_fetched_total",
				Help: "Total number of transaction batches fetched by status",
			},
			[]string{"status"},
		),
		batchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_batch_retries_total",
				Help: "Total number of full-batch retries after throttling",
			},
			[]string{"reason"},
		),
		fanoutLimit: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_fanout_limit",
				Help: "Current adaptive fan-out limit for concurrent batch fetches",
			},
		),
		candidatesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_candidates_dropped_total",
				Help: "Transactions dropped by the pre-filter before parsing",
			},
			[]string{"reason"},
		),

		tradesExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_extracted_total",
				Help: "Trades extracted by parser strategy",
			},
			[]string{"strategy"},
		),
		tradesDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_dropped_total",
				Help: "Trades dropped during extraction by reason",
			},
			[]string{"reason"},
		),

		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Price resolutions by source and confidence",
			},
			[]string{"source", "confidence"},
		),
		priceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_lookup_duration_seconds",
				Help:    "Duration of price cascade resolutions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"source"},
		),

		cacheOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_ops_total",
				Help: "Price cache operations by tier and outcome",
			},
			[]string{"tier", "op", "outcome"},
		),

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
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"wallet"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"wallet", "event_type"},
		),

		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_events_published_total",
				Help: "Total number of trade events published to the event bus",
			},
			[]string{"subject", "status"},
		),
	}
}

// Ledger RPC metric helpers

// RecordRPCCall records a ledger RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.rpcCallsTotal.WithLabelValues(method, status).Inc()
	m.rpcCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 response).
func (m *Metrics) RecordRateLimitHit(method string) {
	if m == nil {
		return
	}
	m.rpcRateLimitHits.WithLabelValues(method).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(method, reason).Inc()
}

// RecordSignaturesPerPage records the number of signatures fetched in one page.
func (m *Metrics) RecordSignaturesPerPage(wallet string, count float64) {
	if m == nil {
		return
	}
	m.signaturesPerPage.WithLabelValues(wallet).Observe(count)
}

// Fetch pipeline metric helpers

// RecordBatchFetched records a completed transaction batch fetch.
func (m *Metrics) RecordBatchFetched(status string) {
	if m == nil {
		return
	}
	m.batchesFetchedTotal.WithLabelValues(status).Inc()
}

// RecordBatchRetry records a full-batch retry.
func (m *Metrics) RecordBatchRetry(reason string) {
	if m == nil {
		return
	}
	m.batchRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordFanoutLimit records the current adaptive fan-out limit.
func (m *Metrics) RecordFanoutLimit(limit float64) {
	if m == nil {
		return
	}
	m.fanoutLimit.Set(limit)
}

// RecordCandidateDropped records a transaction dropped by the pre-filter.
func (m *Metrics) RecordCandidateDropped(reason string) {
	if m == nil {
		return
	}
	m.candidatesDropped.WithLabelValues(reason).Inc()
}

// Trade extraction metric helpers

// RecordTradeExtracted records a trade produced by a parser strategy.
func (m *Metrics) RecordTradeExtracted(strategy string) {
	if m == nil {
		return
	}
	m.tradesExtractedTotal.WithLabelValues(strategy).Inc()
}

// RecordTradeDropped records a trade dropped during extraction.
func (m *Metrics) RecordTradeDropped(reason string) {
	if m == nil {
		return
	}
	m.tradesDroppedTotal.WithLabelValues(reason).Inc()
}

// Price resolution metric helpers

// RecordPriceLookup records a price cascade resolution.
func (m *Metrics) RecordPriceLookup(source, confidence string, duration float64) {
	if m == nil {
		return
	}
	m.priceLookupsTotal.WithLabelValues(source, confidence).Inc()
	m.priceLookupDuration.WithLabelValues(source).Observe(duration)
}

// Cache metric helpers

// RecordCacheOp records a cache operation outcome for one tier.
func (m *Metrics) RecordCacheOp(tier, op, outcome string) {
	if m == nil {
		return
	}
	m.cacheOpsTotal.WithLabelValues(tier, op, outcome).Inc()
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
func (m *Metrics) RecordSSEConnectionChange(wallet string, delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.WithLabelValues(wallet).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(wallet, eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(wallet, eventType).Inc()
}

// Event bus metric helpers

// RecordEventPublished records a trade event publish attempt.
func (m *Metrics) RecordEventPublished(subject, status string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(subject, status).Inc()
}

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
