// Package metrics provides Prometheus instrumentation for the wagering engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsPlaced counts accepted bet placements.
	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagerbook_bets_placed_total",
		Help: "Total number of bets placed",
	})

	// BetsSettled counts settled bets partitioned by outcome.
	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerbook_bets_settled_total",
		Help: "Total number of bets settled",
	}, []string{"outcome"})

	// ExposureRejections counts placements rejected by the exposure cap.
	ExposureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagerbook_exposure_rejections_total",
		Help: "Bets rejected by market exposure limits",
	})

	// SettlementRuns tracks scheduler pass duration.
	SettlementRuns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wagerbook_settlement_run_seconds",
		Help:    "Settlement batch duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MarketsSettled counts markets fully resolved.
	MarketsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagerbook_markets_settled_total",
		Help: "Markets fully settled",
	})

	// PoolDelta exports the reconciliation delta; nonzero means the
	// conservation invariant is broken and needs operator attention.
	PoolDelta = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagerbook_pool_delta_minor_units",
		Help: "Token pool reconciliation delta in minor units",
	})

	// StalePendingEntries exports the count of ledger entries stuck pending.
	StalePendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagerbook_stale_pending_entries",
		Help: "Ledger entries pending past the alert window",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerbook_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagerbook_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
