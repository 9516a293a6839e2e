// Package metrics provides Prometheus instrumentation for the wager engine.
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
	// StakesTotal counts stakes received, partitioned by game.
	StakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_stakes_total",
		Help: "Total number of stakes received",
	}, []string{"game"})

	// PayoutsTotal counts payouts credited, partitioned by game.
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_payouts_total",
		Help: "Total number of payouts credited to pending balances",
	}, []string{"game"})

	// WithdrawalsTotal counts completed pull-payment withdrawals.
	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_withdrawals_total",
		Help: "Total number of completed withdrawals",
	})

	// OracleRequestsInFlight tracks randomness requests awaiting fulfillment.
	OracleRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_oracle_requests_in_flight",
		Help: "Randomness requests awaiting fulfillment",
	})

	// OracleFulfillmentsTotal counts fulfillments, partitioned by outcome.
	OracleFulfillmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_oracle_fulfillments_total",
		Help: "Total oracle fulfillments received",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RejectionsTotal counts rejected operations by game and reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_rejections_total",
		Help: "Operations rejected without state change",
	}, []string{"game", "reason"})
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

		// Use the route pattern for path label to avoid high cardinality.
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
