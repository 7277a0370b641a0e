// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
)

var (
	// TradesTotal counts applied trades by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_trades_total",
		Help: "Total number of trades applied",
	}, []string{"action"})

	// TradeLatency observes trade execution latency by action.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperdrive_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// ActivePools tracks the number of pools loaded.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperdrive_active_pools",
		Help: "Number of pools",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperdrive_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperdrive_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// PositionLimitRejections counts trades refused by the position limiter.
	PositionLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_position_limit_rejections_total",
		Help: "Trades rejected by the position limiter",
	}, []string{"action"})

	// OpenLongRejections counts open_long requests above the bond reserves.
	OpenLongRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_open_long_rejections_total",
		Help: "open_long trades returned without effect because the amount exceeded bond reserves",
	}, []string{"pool_id"})

	// CloseShortClamps counts close_short requests clamped to the reserves.
	CloseShortClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_close_short_clamps_total",
		Help: "close_short trades clamped to bond reserves",
	}, []string{"pool_id"})

	// PoolSpotPrice is the bond price after the latest trade.
	PoolSpotPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hyperdrive_pool_spot_price",
		Help: "Current bond spot price in base",
	}, []string{"pool_id"})

	// PoolFixedRate is the fixed APR implied by the spot price.
	PoolFixedRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hyperdrive_pool_fixed_rate",
		Help: "Current fixed APR",
	}, []string{"pool_id"})

	// PoolVolume tracks cumulative trade amounts per pool.
	PoolVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_pool_volume_total",
		Help: "Cumulative trade amount, in the unit of each action",
	}, []string{"pool_id", "action"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTrade updates the per-trade series.
func RecordTrade(poolID, action string, amount fixedpoint.FixedPoint, elapsed time.Duration) {
	TradesTotal.WithLabelValues(action).Inc()
	TradeLatency.WithLabelValues(action).Observe(elapsed.Seconds())
	if amount.IsFinite() && amount.IsPositive() {
		PoolVolume.WithLabelValues(poolID, action).Add(amount.Float64())
	}
}

// ObservePool sets the price gauges. Undefined values leave them unchanged.
func ObservePool(poolID string, spot, rate fixedpoint.FixedPoint) {
	if spot.IsFinite() {
		PoolSpotPrice.WithLabelValues(poolID).Set(spot.Float64())
	}
	if rate.IsFinite() {
		PoolFixedRate.WithLabelValues(poolID).Set(rate.Float64())
	}
}

// PoolObserver counts the market's soft refusals for one pool.
type PoolObserver struct {
	PoolID string
}

func (o PoolObserver) OpenLongRejected(_, _ fixedpoint.FixedPoint) {
	OpenLongRejections.WithLabelValues(o.PoolID).Inc()
}

func (o PoolObserver) CloseShortClamped(_, _ fixedpoint.FixedPoint) {
	CloseShortClamps.WithLabelValues(o.PoolID).Inc()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
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
