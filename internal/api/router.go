package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/market-sim/internal/metrics"
)

// NewRouter mounts the service, runner and hub on a chi router with the
// standard middleware stack. hub may be nil.
func NewRouter(svc *Service, runner *Runner, hub *WSHub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-sim"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time updates. Upgrades must not run
		// under the request timeout.
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/state", svc.GetState)

			// Market queries.
			r.Get("/stocks", svc.ListStocks)
			r.Get("/stocks/{symbol}", svc.GetStock)
			r.Get("/stocks/{symbol}/indicators", svc.GetIndicators)
			r.Get("/stocks/{symbol}/network/{action}", svc.GetCorporateNetwork)
			r.Get("/stocks/{symbol}/trades", svc.GetStockTrades)
			r.Get("/events", svc.ListEvents)
			r.Get("/events/{eventID}", svc.GetEvent)

			// Investor queries.
			r.Get("/investors", svc.ListInvestors)
			r.Get("/investors/{investorID}", svc.GetInvestor)
			r.Get("/investors/{investorID}/portfolio", svc.GetPortfolio)
			r.Get("/investors/{investorID}/network", svc.GetNetwork)
			r.Get("/investors/{investorID}/trades", svc.GetTrades)

			// Order execution.
			r.Post("/orders", svc.PlaceOrder)

			// Simulation control.
			r.Post("/advance", svc.PostAdvance)
			r.Post("/sim/reset", svc.PostReset)
			r.Post("/sim/snapshot", svc.PostSnapshot)
			if runner != nil {
				r.Get("/sim", runner.GetStatus)
				r.Post("/sim/start", runner.PostStart)
				r.Post("/sim/pause", runner.PostPause)
				r.Put("/sim/speed", runner.PutSpeed)
			}
		})
	})

	return r
}
