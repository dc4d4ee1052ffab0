package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for rubani.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Query pipeline metrics.
	QueriesTotal            *prometheus.CounterVec // by outcome: matched, no_match, refused, error
	SelectionDuration       prometheus.Histogram
	ContextTruncatedPercent prometheus.Histogram

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Login-token sweeper metrics.
	TokenSweepsTotal prometheus.Counter
	TokensSweptTotal prometheus.Counter

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// Query outcome label values.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
	OutcomeRefused = "refused"
	OutcomeError   = "error"
)

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total queries by outcome.",
		}, []string{"outcome"}),

		SelectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rubani",
			Subsystem: "query",
			Name:      "selection_duration_seconds",
			Help:      "Tool selection duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		ContextTruncatedPercent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rubani",
			Subsystem: "query",
			Name:      "context_truncated_percent",
			Help:      "How much of the configuration document was cut to fit the budget.",
			Buckets:   []float64{0, 10, 25, 50, 75, 90, 99, 100},
		}),

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rubani",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "direction"}),

		TokenSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "tokens",
			Name:      "sweeps_total",
			Help:      "Total login-token sweep runs.",
		}),

		TokensSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "tokens",
			Name:      "swept_total",
			Help:      "Total expired login tokens removed by the sweeper.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rubani",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rubani",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rubani",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.QueriesTotal,
		m.SelectionDuration,
		m.ContextTruncatedPercent,
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.TokenSweepsTotal,
		m.TokensSweptTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// QueryOutcomeContextKey is the request-context key query handlers store the
// classified outcome under. The gateway middleware reads it once the handler
// returns and counts the query.
const QueryOutcomeContextKey = "query_outcome"

// RecordQuery counts one completed query by outcome. Safe on a nil collector
// and a no-op for an empty outcome.
func (m *MetricsCollector) RecordQuery(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts one served request. Safe on a nil collector.
func (m *MetricsCollector) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
