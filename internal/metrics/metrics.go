// Package metrics provides Prometheus instrumentation for the market
// simulation and its HTTP surface.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts market tick chunks processed.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_ticks_total",
		Help: "Total number of market tick chunks processed",
	})

	// DailyTransitionsTotal counts simulated day boundaries crossed.
	DailyTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_daily_transitions_total",
		Help: "Total number of daily transitions run",
	})

	// TradesTotal counts executed trades by strategy kind and side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_trades_total",
		Help: "Total number of trades executed",
	}, []string{"strategy", "side"})

	// TradedShares counts shares traded by side.
	TradedShares = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_traded_shares_total",
		Help: "Cumulative traded volume in shares",
	}, []string{"side"})

	// OrderRejections counts rejected player orders by reason.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_order_rejections_total",
		Help: "Player orders rejected, by reason",
	}, []string{"reason"})

	// EventsTotal counts narrative events emitted by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_events_total",
		Help: "Total number of events emitted",
	}, []string{"type"})

	// CorporateActionsTotal counts splits, alliances and acquisitions.
	CorporateActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_corporate_actions_total",
		Help: "Corporate actions taken",
	}, []string{"action"})

	// NarrativeFailures counts text or image collaborator failures.
	NarrativeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_narrative_failures_total",
		Help: "Collaborator failures while enriching events",
	}, []string{"collaborator"})

	// TaxCollected accumulates capital-gains tax settled, in dollars.
	TaxCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_tax_collected_dollars_total",
		Help: "Capital-gains tax collected at year boundaries",
	})

	// AdvanceLatency observes wall-clock time spent per advance call.
	AdvanceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketsim_advance_latency_seconds",
		Help:    "Wall-clock time spent advancing the simulation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// ValveTrips counts advances cut short by the real-time budget.
	ValveTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_valve_trips_total",
		Help: "Advances that stopped early on the wall-clock budget",
	})

	// MarketIndex is the latest equal-weighted index level.
	MarketIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_market_index",
		Help: "Latest market index level",
	})

	// SimulatedDay is the current simulated day.
	SimulatedDay = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_simulated_day",
		Help: "Current simulated day",
	})

	// ListedStocks tracks stocks that are not delisted.
	ListedStocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_listed_stocks",
		Help: "Number of listed (not delisted) stocks",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// StoreErrors counts persistence failures by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_store_errors_total",
		Help: "Persistence failures",
	}, []string{"op"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketsim_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the matched chi pattern to keep label cardinality low.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
