// Package api provides the HTTP handlers that expose the simulation: market
// and investor queries, player orders, manual advancing and runner control.
//
// Money in responses uses shopspring/decimal; prices stay float64 as they
// are in the simulation state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/sim"
	"github.com/atmx/market-sim/internal/store"
)

// Service owns the current simulation state. States are immutable once
// published, so readers take the pointer under a short read lock while
// advances and orders serialize on a separate write lock.
type Service struct {
	engine *sim.Engine
	store  store.Store
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
	init   sim.InitOptions

	writeMu sync.Mutex // serializes every state transition and engine use
	mu      sync.RWMutex
	state   *model.State

	now func() time.Time
}

// NewService creates a service publishing st. Pass nil for hub if
// WebSocket broadcasting is not needed. init is used again on reset.
func NewService(engine *sim.Engine, st store.Store, state *model.State, init sim.InitOptions, hub *WSHub) *Service {
	return &Service{
		engine: engine,
		store:  st,
		wsHub:  hub,
		init:   init,
		state:  state,
		now:    time.Now,
	}
}

// State returns the current published state. Callers must not modify it.
func (s *Service) State() *model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) publish(next *model.State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// AdvanceResult describes one call to Advance.
type AdvanceResult struct {
	PrevDay   int           `json:"prev_day"`
	Day       int           `json:"day"`
	Time      time.Time     `json:"time"`
	Simulated float64       `json:"simulated_seconds"`
	NewEvents []model.Event `json:"new_events"`
}

// Advance moves the simulation forward by seconds, archives new events and
// broadcasts the tick.
func (s *Service) Advance(ctx context.Context, seconds float64) AdvanceResult {
	s.writeMu.Lock()
	prev := s.State()
	next, fresh := s.engine.AdvanceEvents(ctx, prev, seconds)
	s.publish(next)
	s.writeMu.Unlock()

	if len(fresh) > 0 {
		if err := s.store.InsertEvents(ctx, fresh); err != nil {
			metrics.StoreErrors.WithLabelValues("insert_events").Inc()
			slog.Warn("event archive failed", "count", len(fresh), "err", err)
		}
	}

	res := AdvanceResult{
		PrevDay:   prev.Day,
		Day:       next.Day,
		Time:      next.Time,
		Simulated: next.Time.Sub(prev.Time).Seconds(),
		NewEvents: fresh,
	}
	s.broadcastAdvance(prev, next, fresh)
	return res
}

func (s *Service) broadcastAdvance(prev, next *model.State, fresh []model.Event) {
	if s.wsHub == nil {
		return
	}
	if next.Day > prev.Day {
		s.wsHub.Broadcast(WSMessage{Type: MsgDayClosed, Day: next.Day, Time: next.Time, Data: map[string]any{
			"previous_day": prev.Day,
			"market_index": next.MarketIndexLevel(),
		}})
	}
	for _, ev := range fresh {
		s.wsHub.Broadcast(WSMessage{Type: MsgEvent, Day: ev.Day, Time: next.Time, Data: ev})
	}
	s.wsHub.Broadcast(WSMessage{Type: MsgTick, Day: next.Day, Time: next.Time, Data: tickPrices(next)})
}

func tickPrices(st *model.State) map[string]float64 {
	prices := make(map[string]float64, len(st.Stocks))
	for _, stock := range st.Stocks {
		if !stock.Delisted {
			prices[stock.Symbol] = stock.Price()
		}
	}
	return prices
}

// Reset replaces the state with a freshly initialized simulation.
func (s *Service) Reset() *model.State {
	s.writeMu.Lock()
	next := s.engine.Initialize(s.init)
	s.publish(next)
	s.writeMu.Unlock()

	slog.Info("simulation reset", "day", next.Day, "stocks", len(next.Stocks), "investors", len(next.Investors))
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgReset, Day: next.Day, Time: next.Time})
	}
	return next
}

// Snapshot persists the current state.
func (s *Service) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	st := s.State()
	snap := &model.Snapshot{
		ID:      uuid.New().String(),
		Day:     st.Day,
		Time:    st.Time,
		TakenAt: s.now().UTC(),
		State:   st,
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		metrics.StoreErrors.WithLabelValues("save_snapshot").Inc()
		return nil, err
	}
	slog.Info("snapshot saved", "id", snap.ID, "day", snap.Day)
	return snap, nil
}

// --- Request/Response types ---

// StateSummary is the JSON body of GET /state.
type StateSummary struct {
	Day          int          `json:"day"`
	Time         time.Time    `json:"time"`
	StartDate    time.Time    `json:"start_date"`
	BootstrapDay int          `json:"bootstrap_day"`
	MarketIndex  float64      `json:"market_index"`
	ActiveEvent  *model.Event `json:"active_event,omitempty"`
	Stocks       int          `json:"stocks"`
	Listed       int          `json:"listed"`
	Investors    int          `json:"investors"`
	Events       int          `json:"events"`
}

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	InvestorID string `json:"investor_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"` // "BUY" or "SELL"
	Shares     int64  `json:"shares"`
}

// OrderResponse is the JSON body returned from POST /orders.
type OrderResponse struct {
	TradeID   string            `json:"trade_id"`
	Entry     model.LedgerEntry `json:"entry"`
	Portfolio model.Portfolio   `json:"portfolio"`
}

// AdvanceRequest is the JSON body for POST /advance.
type AdvanceRequest struct {
	Seconds float64 `json:"seconds"`
}

// --- HTTP Handlers ---

// GetState handles GET /api/v1/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	st := s.State()
	listed := 0
	for _, stock := range st.Stocks {
		if !stock.Delisted {
			listed++
		}
	}
	writeJSON(w, http.StatusOK, StateSummary{
		Day:          st.Day,
		Time:         st.Time,
		StartDate:    st.StartDate,
		BootstrapDay: st.BootstrapDay,
		MarketIndex:  st.MarketIndexLevel(),
		ActiveEvent:  st.ActiveEvent,
		Stocks:       len(st.Stocks),
		Listed:       listed,
		Investors:    len(st.Investors),
		Events:       len(st.EventHistory),
	})
}

// ListStocks handles GET /api/v1/stocks
// Optional filters: ?sector=, ?region=, ?q= (symbol or name search).
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows := sim.StockSummaries(s.State(), sim.StockFilter{
		Sector: q.Get("sector"),
		Region: model.Region(q.Get("region")),
		Query:  q.Get("q"),
	})
	if rows == nil {
		rows = []model.StockSummary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetStock handles GET /api/v1/stocks/{symbol}
func (s *Service) GetStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	stock := s.State().Stock(symbol)
	if stock == nil {
		writeError(w, "stock not found: "+symbol, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": sim.Summarize(stock),
		"stock":   stock,
	})
}

// GetIndicators handles GET /api/v1/stocks/{symbol}/indicators
func (s *Service) GetIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	agent, corporate, err := sim.StockIndicators(s.State(), symbol)
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]float64{
		"agent":     finite(agent),
		"corporate": finite(corporate),
	})
}

// ListEvents handles GET /api/v1/events
// Returns the state's recent events, or the archive when ?source=archive.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if r.URL.Query().Get("source") == "archive" {
		events, err := s.store.ListEvents(r.Context(), limit)
		if err != nil {
			writeError(w, "failed to list events", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []model.Event{}
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	events := s.State().EventHistory
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}
// Looks in the state first and falls back to the archive.
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventID")

	for _, ev := range s.State().EventHistory {
		if ev.ID == id {
			writeJSON(w, http.StatusOK, ev)
			return
		}
	}
	archived, err := s.store.ListEvents(r.Context(), 0)
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	for _, ev := range archived {
		if ev.ID == id {
			writeJSON(w, http.StatusOK, ev)
			return
		}
	}
	writeError(w, "event not found", http.StatusNotFound)
}

// ListInvestors handles GET /api/v1/investors
// Returns the leaderboard ranked by net worth.
func (s *Service) ListInvestors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sim.Leaderboard(s.State()))
}

// GetInvestor handles GET /api/v1/investors/{investorID}
func (s *Service) GetInvestor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "investorID")

	inv := s.State().Investor(id)
	if inv == nil {
		writeError(w, "investor not found: "+id, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// GetPortfolio handles GET /api/v1/investors/{investorID}/portfolio
// Returns positions, P&L, and accumulated gains and taxes.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "investorID")

	p, err := sim.PortfolioOf(s.State(), id)
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetNetwork handles GET /api/v1/investors/{investorID}/network
func (s *Service) GetNetwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "investorID")

	exp, err := sim.ExplainInvestor(s.State(), id)
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// GetCorporateNetwork handles GET /api/v1/stocks/{symbol}/network/{action}
func (s *Service) GetCorporateNetwork(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	action := model.ActionKind(chi.URLParam(r, "action"))

	exp, err := sim.ExplainCorporate(s.State(), symbol, action)
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// GetTrades handles GET /api/v1/investors/{investorID}/trades
// Returns the ledger entries recorded for the investor's orders.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "investorID")

	entries, err := s.store.GetLedgerEntriesByInvestor(r.Context(), id)
	if err != nil {
		writeError(w, "failed to get trade history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetStockTrades handles GET /api/v1/stocks/{symbol}/trades
func (s *Service) GetStockTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if s.State().Stock(symbol) == nil {
		writeError(w, "stock not found: "+symbol, http.StatusNotFound)
		return
	}

	entries, err := s.store.GetLedgerEntriesBySymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, "failed to get trade history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PlaceOrder handles POST /api/v1/orders
// Executes at the current close, records a ledger entry and returns the
// updated portfolio.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.InvestorID == "" {
		writeError(w, "investor_id is required", http.StatusBadRequest)
		return
	}
	side := model.Side(req.Side)
	if side != model.SideBuy && side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.writeMu.Lock()
	prev := s.State()
	var next *model.State
	var err error
	if side == model.SideBuy {
		next, err = s.engine.PlayerBuy(prev, req.InvestorID, req.Symbol, req.Shares)
	} else {
		next, err = s.engine.PlayerSell(prev, req.InvestorID, req.Symbol, req.Shares)
	}
	if err != nil {
		s.writeMu.Unlock()
		writeSimError(w, err)
		return
	}
	s.publish(next)
	s.writeMu.Unlock()

	price := decimal.NewFromFloat(next.Stock(req.Symbol).Price())
	cost := price.Mul(decimal.NewFromInt(req.Shares))
	if side == model.SideSell {
		cost = cost.Neg()
	}

	// Create immutable ledger entry.
	entry := &model.LedgerEntry{
		ID:         uuid.New().String(),
		InvestorID: req.InvestorID,
		Symbol:     req.Symbol,
		Side:       side,
		Shares:     req.Shares,
		Price:      price,
		Cost:       cost,
		Day:        next.Day,
		SimTime:    next.Time,
		Timestamp:  s.now().UTC(),
	}
	if err := s.store.InsertLedgerEntry(ctx, entry); err != nil {
		// The order already executed in the simulation; the ledger is a record.
		metrics.StoreErrors.WithLabelValues("insert_ledger_entry").Inc()
		slog.Error("ledger write failed", "trade_id", entry.ID, "err", err)
	}

	portfolio, _ := sim.PortfolioOf(next, req.InvestorID)

	slog.Info("order executed",
		"trade_id", entry.ID,
		"investor", req.InvestorID,
		"symbol", req.Symbol,
		"side", string(side),
		"shares", req.Shares,
		"price", price.String(),
		"cost", cost.String(),
	)

	// Broadcast fill via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgTradeExecuted, Day: next.Day, Time: next.Time, Data: entry})
	}

	writeJSON(w, http.StatusOK, OrderResponse{TradeID: entry.ID, Entry: *entry, Portfolio: portfolio})
}

// PostAdvance handles POST /api/v1/advance
func (s *Service) PostAdvance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Seconds < 0 || math.IsNaN(req.Seconds) || math.IsInf(req.Seconds, 0) {
		writeError(w, "seconds must be a non-negative number", http.StatusBadRequest)
		return
	}
	if req.Seconds > sim.MaxAdvanceSeconds {
		writeError(w, fmt.Sprintf("seconds must be at most %d", sim.MaxAdvanceSeconds), http.StatusBadRequest)
		return
	}

	res := s.Advance(r.Context(), req.Seconds)
	if res.NewEvents == nil {
		res.NewEvents = []model.Event{}
	}
	writeJSON(w, http.StatusOK, res)
}

// PostReset handles POST /api/v1/sim/reset
func (s *Service) PostReset(w http.ResponseWriter, r *http.Request) {
	st := s.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"day": st.Day, "time": st.Time})
}

// PostSnapshot handles POST /api/v1/sim/snapshot
func (s *Service) PostSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, "failed to save snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": snap.ID, "day": snap.Day, "time": snap.Time})
}

// writeSimError maps simulation sentinel errors to HTTP statuses.
func writeSimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrUnknownInvestor), errors.Is(err, sim.ErrUnknownStock):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, sim.ErrInvalidShares):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sim.ErrStockDelisted),
		errors.Is(err, sim.ErrInsufficientCash),
		errors.Is(err, sim.ErrInsufficientShares):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, sim.ErrNoNetwork):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// finite drops NaN and infinite entries, which JSON cannot carry.
func finite(v map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[k] = x
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
