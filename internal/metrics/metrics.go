// Package metrics provides Prometheus instrumentation for the wallet risk service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "walletrisk"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts completed analyses by decision and source.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "analyses_total",
			Help:      "Completed wallet analyses by decision and source.",
		},
		[]string{"decision", "source"},
	)

	// AnalysisErrorsTotal counts analyses rejected before scoring.
	AnalysisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "analysis_errors_total",
			Help:      "Analyses that failed, by reason.",
		},
		[]string{"reason"},
	)

	// AnalysisDuration observes end-to-end analysis latency.
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wallet analysis duration in seconds by source.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// RuleScore observes the rule scorer's aggregate.
	RuleScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "rule_score",
		Help:      "Distribution of rule-based aggregate scores.",
		Buckets:   []float64{10, 25, 40, 60, 70, 80, 90, 100},
	})

	// FinalScore observes the merged risk score.
	FinalScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "final_score",
		Help:      "Distribution of final risk scores.",
		Buckets:   []float64{10, 25, 40, 60, 70, 80, 90, 100},
	})

	// CriticalOverridesTotal counts results forced to ENFORCE_ACTION.
	CriticalOverridesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "critical_overrides_total",
		Help:      "Analyses escalated by a critical flag.",
	})

	// ReasoningCallsTotal counts reasoning attempts by backend and outcome
	// (ok, timeout, rejected, malformed, circuit_open, saturated, error).
	ReasoningCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reasoning_calls_total",
			Help:      "Reasoning backend calls by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	// ReasoningDuration observes reasoning call latency.
	ReasoningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reasoning_duration_seconds",
			Help:      "Reasoning backend call duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
		},
		[]string{"backend"},
	)

	// ReasoningInFlight tracks concurrent reasoning calls.
	ReasoningInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "reasoning_in_flight",
		Help:      "Reasoning backend calls currently in flight.",
	})

	// BreakerTransitionsTotal counts reasoning circuit state changes.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "circuitbreaker",
			Name:      "state_transitions_total",
			Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
		},
		[]string{"key", "from_state", "to_state"},
	)

	// BreakerOpen is 1 while a key's circuit rejects calls.
	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "circuitbreaker",
			Name:      "open",
			Help:      "1 when the circuit for a key is open, else 0.",
		},
		[]string{"key"},
	)

	// MonitoredWallets tracks the size of the monitored-wallet list.
	MonitoredWallets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "monitored_wallets",
		Help:      "Number of wallets on the monitored list.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		AnalysisErrorsTotal,
		AnalysisDuration,
		RuleScore,
		FinalScore,
		CriticalOverridesTotal,
		ReasoningCallsTotal,
		ReasoningDuration,
		ReasoningInFlight,
		BreakerTransitionsTotal,
		BreakerOpen,
		MonitoredWallets,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		DBWaitDuration,
		GoroutineCount,
	)
}

// ObserveAnalysis records one completed analysis.
func ObserveAnalysis(decision, source string, ruleScore, finalScore float64, critical bool, elapsed time.Duration) {
	AnalysesTotal.WithLabelValues(decision, source).Inc()
	AnalysisDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	RuleScore.Observe(ruleScore)
	FinalScore.Observe(finalScore)
	if critical {
		CriticalOverridesTotal.Inc()
	}
}

// ObserveReasoning records one reasoning attempt.
func ObserveReasoning(backend, outcome string, elapsed time.Duration) {
	ReasoningCallsTotal.WithLabelValues(backend, outcome).Inc()
	if elapsed > 0 {
		ReasoningDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern keeps label cardinality bounded
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
