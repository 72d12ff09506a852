// Package metrics provides Prometheus instrumentation for the stake engine.
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
	// OperationsTotal counts completed accounting operations by kind.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solstake_operations_total",
		Help: "Total number of completed operations",
	}, []string{"kind"})

	// OperationFailures counts rejected operations by kind and reason.
	OperationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solstake_operation_failures_total",
		Help: "Total number of rejected operations",
	}, []string{"kind", "reason"})

	// UnstakeFeeBps observes the realized liquid-unstake fee in basis points.
	UnstakeFeeBps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solstake_unstake_fee_bps",
		Help:    "Realized liquid unstake fee in basis points",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 150, 200, 250, 300},
	})

	// ReserveBalance tracks the available reserve balance in base units.
	ReserveBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstake_reserve_balance",
		Help: "Available reserve balance in base units",
	})

	// LiquidityLegBalance tracks the liquidity pool native leg in base units.
	LiquidityLegBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstake_liquidity_leg_balance",
		Help: "Liquidity pool native leg balance in base units",
	})

	// DerivativeSupply tracks the outstanding derivative token supply.
	DerivativeSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstake_derivative_supply",
		Help: "Outstanding derivative token supply in base units",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solstake_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solstake_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solstake_http_request_duration_seconds",
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
