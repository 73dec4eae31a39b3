package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/api"
	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/sim"
	"github.com/atmx/market-sim/internal/store"
)

const human = "human-player"

const testCatalog = `
simulation:
  start: 2024-01-01T09:30:00Z
  history_length: 30
  min_initial_price: 8
  max_initial_price: 12
  human_cash: 1000000
  ai_cash: 100
  annual_inflation: 0.02
  default_jurisdiction: USA_WA
operating_tax:
  default: 0
tax_regimes:
  - {code: USA_WA, long_term_rate: 0.07, exemption: 250000, short_term_rate: 0}
neurons:
  indicator: [momentum_5d, momentum_20d, oscillator_rsi_14_contrarian]
  corporate: [self_momentum_50d, price_vs_ath]
  corporate_hidden: [2]
roster:
  human: {id: human-player, name: Human Player}
  ai_count: 4
  name_prefix: AI Trader
  strategy_names: [Momentum Bot]
  base_hidden: [3]
  risk_aversion: {min: 0.3, max: 0.8}
  trade_frequency: {min: 1, max: 5}
  learning_rate: {min: 0.01, max: 0.02}
  noise_count: 1
  noise_trade_chance: 0.05
  noise_strategy_name: Randomized Algorithm
  noise_names: [Noise Trader]
  oracle: {name: The Oracle, strategy_name: Oracle Network, hidden: [4], learning_rate: 0.05, risk_aversion: 0.5}
speeds:
  - {label: 1h/s, seconds: 3600}
  - {label: 1d/s, seconds: 86400}
stocks:
  - {symbol: NAT1, name: Northwind Systems, sector: Technology, region: North America}
  - {symbol: EUT1, name: Rhine Software, sector: Technology, region: Europe}
  - {symbol: ASF1, name: Harbor Bank, sector: Finance, region: Asia}
corporate_events:
  Technology:
    positive:
      - {name: Beats Estimates, description: Quarterly results beat expectations., type: positive, impact: 1.04}
    negative:
      - {name: Misses Estimates, description: Quarterly results fall short., type: negative, impact: 0.96}
    neutral:
      - {name: Hosts Developer Conference, description: The annual conference opens., type: neutral}
macro_events:
  - {name: Oil Price Shock, description: Crude spikes overnight., type: negative, impact: 0.97}
`

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	svc    *api.Service
	runner *api.Runner
	store  *store.MemoryStore
	router chi.Router
}

// newTestEnv creates a Service over a small seeded simulation with an
// in-memory store and the full router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithHub(t, nil)
}

func newTestEnvWithHub(t *testing.T, hub *api.WSHub) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, hub, testConfig())
}

func testConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.MaxRealTime = 0
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newTestEnvWithConfig(t *testing.T, hub *api.WSHub, cfg sim.Config) *testEnv {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	engine, err := sim.New(cat, cfg, sim.WithRand(rand.New(rand.NewPCG(7, 8))))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ms := store.NewMemoryStore()
	init := sim.InitOptions{}
	svc := api.NewService(engine, ms, engine.Initialize(init), init, hub)
	runner := api.NewRunner(svc, time.Second, api.DefaultSpeed, 1)

	return &testEnv{svc: svc, runner: runner, store: ms, router: api.NewRouter(svc, runner, hub)}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

// --- Query tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[api.StateSummary](t, w)
	if got.Day != 30 || got.BootstrapDay != 30 {
		t.Errorf("expected day 30 bootstrap 30, got %d %d", got.Day, got.BootstrapDay)
	}
	if got.Stocks != 3 || got.Listed != 3 {
		t.Errorf("expected 3 listed stocks, got %d/%d", got.Listed, got.Stocks)
	}
	if got.Investors != 5 {
		t.Errorf("expected 5 investors, got %d", got.Investors)
	}
	if got.MarketIndex <= 0 {
		t.Errorf("expected positive market index, got %f", got.MarketIndex)
	}
}

func TestListStocks_Filters(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?sector=technology", 2},
		{"?sector=Finance", 1},
		{"?region=Europe", 1},
		{"?q=harbor", 1},
		{"?q=nat", 1},
		{"?sector=Energy", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/stocks"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			rows := decode[[]model.StockSummary](t, w)
			if len(rows) != tt.want {
				t.Errorf("expected %d rows, got %d", tt.want, len(rows))
			}
		})
	}
}

func TestGetStock(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/stocks/NAT1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode[struct {
		Summary model.StockSummary `json:"summary"`
		Stock   model.Stock        `json:"stock"`
	}](t, w)
	if got.Stock.Symbol != "NAT1" || len(got.Stock.History) != 30 {
		t.Errorf("expected NAT1 with 30 bars, got %s with %d", got.Stock.Symbol, len(got.Stock.History))
	}
	if got.Summary.Price != got.Stock.History[len(got.Stock.History)-1].Close {
		t.Errorf("summary price %f does not match last close", got.Summary.Price)
	}

	if w := env.do(t, "GET", "/api/v1/stocks/NOPE", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown stock, got %d", w.Code)
	}
}

func TestGetIndicators(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/stocks/ASF1/indicators", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[map[string]map[string]float64](t, w)
	if _, ok := got["agent"]["momentum_5d"]; !ok {
		t.Errorf("expected momentum_5d in agent indicators, got %v", got["agent"])
	}
	if len(got["corporate"]) == 0 {
		t.Error("expected corporate indicators")
	}

	if w := env.do(t, "GET", "/api/v1/stocks/NOPE/indicators", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/investors", nil)
	rows := decode[[]model.LeaderboardRow](t, w)
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if rows[0].InvestorID != human || rows[0].Rank != 1 {
		t.Errorf("expected the funded human player first, got %s rank %d", rows[0].InvestorID, rows[0].Rank)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].NetWorth.GreaterThan(rows[i-1].NetWorth) {
			t.Errorf("leaderboard not sorted at %d", i)
		}
	}
}

func TestGetInvestorAndPortfolio(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/investors/"+human, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	inv := decode[model.Investor](t, w)
	if !inv.Human || !inv.Cash.Equal(d(1000000)) {
		t.Errorf("expected human with 1,000,000 cash, got human=%v cash=%s", inv.Human, inv.Cash)
	}

	w = env.do(t, "GET", "/api/v1/investors/"+human+"/portfolio", nil)
	p := decode[model.Portfolio](t, w)
	if !p.NetWorth.Equal(d(1000000)) || len(p.Positions) != 0 {
		t.Errorf("expected empty portfolio worth 1,000,000, got %s with %d positions", p.NetWorth, len(p.Positions))
	}

	if w := env.do(t, "GET", "/api/v1/investors/ghost/portfolio", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown investor, got %d", w.Code)
	}
}

func TestGetNetwork(t *testing.T) {
	env := newTestEnv(t)

	var neural, noise string
	for _, inv := range env.svc.State().Investors {
		switch inv.Strategy.Kind {
		case model.StrategyNeural:
			if neural == "" {
				neural = inv.ID
			}
		case model.StrategyNoise:
			noise = inv.ID
		}
	}

	w := env.do(t, "GET", "/api/v1/investors/"+neural+"/network", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	exp := decode[model.NetworkExplanation](t, w)
	if len(exp.Inputs) != 3 || exp.LayerSizes[0] != 3 {
		t.Errorf("expected 3 inputs, got %v (layers %v)", exp.Inputs, exp.LayerSizes)
	}

	if w := env.do(t, "GET", "/api/v1/investors/"+noise+"/network", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for noise trader, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/stocks/NAT1/network/split", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for corporate network, got %d", w.Code)
	}
}

// --- Order tests ---

func TestPlaceOrder_BuyThenSell(t *testing.T) {
	env := newTestEnv(t)
	price := d(env.svc.State().Stock("NAT1").Price())

	w := env.do(t, "POST", "/api/v1/orders", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "BUY", Shares: 10})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.OrderResponse](t, w)
	if resp.TradeID == "" {
		t.Error("expected trade id")
	}
	if !resp.Entry.Cost.Equal(price.Mul(d(10))) {
		t.Errorf("expected cost %s, got %s", price.Mul(d(10)), resp.Entry.Cost)
	}
	if len(resp.Portfolio.Positions) != 1 || resp.Portfolio.Positions[0].Shares != 10 {
		t.Errorf("expected one 10-share position, got %+v", resp.Portfolio.Positions)
	}
	if got := env.svc.State().Investor(human).SharesOwned("NAT1"); got != 10 {
		t.Errorf("expected published state to hold 10 shares, got %d", got)
	}

	w = env.do(t, "POST", "/api/v1/orders", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "SELL", Shares: 4})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = decode[api.OrderResponse](t, w)
	if !resp.Entry.Cost.IsNegative() {
		t.Errorf("expected negative cost on sell, got %s", resp.Entry.Cost)
	}

	// Both fills are in the ledger.
	w = env.do(t, "GET", "/api/v1/investors/"+human+"/trades", nil)
	entries := decode[[]model.LedgerEntry](t, w)
	if len(entries) != 2 || entries[0].Side != model.SideBuy || entries[1].Side != model.SideSell {
		t.Errorf("expected BUY then SELL in ledger, got %+v", entries)
	}
	w = env.do(t, "GET", "/api/v1/stocks/NAT1/trades", nil)
	if bySymbol := decode[[]model.LedgerEntry](t, w); len(bySymbol) != 2 {
		t.Errorf("expected 2 NAT1 entries, got %d", len(bySymbol))
	}
	w = env.do(t, "GET", "/api/v1/stocks/EUT1/trades", nil)
	if other := decode[[]model.LedgerEntry](t, w); len(other) != 0 {
		t.Errorf("expected no EUT1 entries, got %d", len(other))
	}
	if w := env.do(t, "GET", "/api/v1/stocks/NOPE/trades", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown stock, got %d", w.Code)
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		req    api.OrderRequest
		status int
	}{
		{"missing investor", api.OrderRequest{Symbol: "NAT1", Side: "BUY", Shares: 1}, http.StatusBadRequest},
		{"bad side", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "HOLD", Shares: 1}, http.StatusBadRequest},
		{"unknown investor", api.OrderRequest{InvestorID: "ghost", Symbol: "NAT1", Side: "BUY", Shares: 1}, http.StatusNotFound},
		{"unknown stock", api.OrderRequest{InvestorID: human, Symbol: "NOPE", Side: "BUY", Shares: 1}, http.StatusNotFound},
		{"zero shares", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "BUY", Shares: 0}, http.StatusBadRequest},
		{"insufficient cash", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "BUY", Shares: 1_000_000_000}, http.StatusConflict},
		{"insufficient shares", api.OrderRequest{InvestorID: human, Symbol: "NAT1", Side: "SELL", Shares: 1}, http.StatusConflict},
	}

	before := env.svc.State()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/orders", tt.req)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	if env.svc.State() != before {
		t.Error("rejected orders must not replace the state")
	}
	entries, _ := env.store.GetLedgerEntriesByInvestor(context.Background(), human)
	if len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestPlaceOrder_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Advance and control tests ---

func TestAdvance_ArchivesEvents(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/advance", api.AdvanceRequest{Seconds: 3 * 86400})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[api.AdvanceResult](t, w)
	if res.PrevDay != 30 || res.Day != 33 {
		t.Errorf("expected day 30 -> 33, got %d -> %d", res.PrevDay, res.Day)
	}
	if res.Simulated != 3*86400 {
		t.Errorf("expected 259200 simulated seconds, got %f", res.Simulated)
	}

	archived, err := env.store.ListEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(archived) != len(res.NewEvents) {
		t.Errorf("expected %d archived events, got %d", len(res.NewEvents), len(archived))
	}

	for _, ev := range res.NewEvents {
		w := env.do(t, "GET", "/api/v1/events/"+ev.ID, nil)
		if w.Code != http.StatusOK {
			t.Errorf("event %s not retrievable: %d", ev.ID, w.Code)
		}
	}
}

func TestAdvance_ArchivesEventsBeyondHistoryCap(t *testing.T) {
	cfg := testConfig()
	cfg.EventHistoryCap = 2
	env := newTestEnvWithConfig(t, nil, cfg)

	res := env.svc.Advance(context.Background(), 40*86400)
	if len(res.NewEvents) <= cfg.EventHistoryCap {
		t.Fatalf("expected more than %d new events, got %d", cfg.EventHistoryCap, len(res.NewEvents))
	}
	if got := len(env.svc.State().EventHistory); got != cfg.EventHistoryCap {
		t.Errorf("expected in-state history of %d, got %d", cfg.EventHistoryCap, got)
	}

	archived, err := env.store.ListEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(archived) != len(res.NewEvents) {
		t.Fatalf("expected %d archived events, got %d", len(res.NewEvents), len(archived))
	}
	// The oldest event fell out of the in-state history but is still served.
	evicted := res.NewEvents[0]
	for _, ev := range env.svc.State().EventHistory {
		if ev.ID == evicted.ID {
			t.Fatalf("event %s should have been evicted from the history", evicted.ID)
		}
	}
	w := env.do(t, "GET", "/api/v1/events/"+evicted.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("evicted event should be served from the archive, got %d", w.Code)
	}
}

func TestAdvance_Invalid(t *testing.T) {
	env := newTestEnv(t)
	for _, secs := range []float64{-1, sim.MaxAdvanceSeconds + 1, 1e300} {
		if w := env.do(t, "POST", "/api/v1/advance", api.AdvanceRequest{Seconds: secs}); w.Code != http.StatusBadRequest {
			t.Errorf("seconds=%g: expected 400, got %d", secs, w.Code)
		}
	}
	if env.svc.State().Day != 30 {
		t.Error("state moved on a rejected advance")
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Advance(context.Background(), 10*86400)

	w := env.do(t, "GET", "/api/v1/events?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	events := decode[[]model.Event](t, w)
	if len(events) > 2 {
		t.Errorf("expected at most 2 events, got %d", len(events))
	}

	w = env.do(t, "GET", "/api/v1/events?source=archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := env.do(t, "GET", "/api/v1/events?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/events/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown event, got %d", w.Code)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Advance(context.Background(), 5*86400)

	w := env.do(t, "POST", "/api/v1/sim/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := env.svc.State().Day; got != 30 {
		t.Errorf("expected reset to bootstrap day 30, got %d", got)
	}
}

func TestRunnerControls(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/sim/start", nil)
	if st := decode[api.RunnerStatus](t, w); !st.Running {
		t.Error("expected running after start")
	}
	w = env.do(t, "POST", "/api/v1/sim/pause", nil)
	if st := decode[api.RunnerStatus](t, w); st.Running {
		t.Error("expected paused after pause")
	}

	w = env.do(t, "PUT", "/api/v1/sim/speed", api.SpeedRequest{Preset: "1h/s"})
	if st := decode[api.RunnerStatus](t, w); st.Speed != 3600 {
		t.Errorf("expected speed 3600, got %f", st.Speed)
	}
	w = env.do(t, "PUT", "/api/v1/sim/speed", api.SpeedRequest{Speed: 120})
	if st := decode[api.RunnerStatus](t, w); st.Speed != 120 {
		t.Errorf("expected speed 120, got %f", st.Speed)
	}
	if w := env.do(t, "PUT", "/api/v1/sim/speed", api.SpeedRequest{Preset: "warp"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown preset, got %d", w.Code)
	}
	if w := env.do(t, "PUT", "/api/v1/sim/speed", api.SpeedRequest{Speed: 1e300}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unbounded speed, got %d", w.Code)
	}
	if w := env.do(t, "PUT", "/api/v1/sim/speed", api.SpeedRequest{Speed: -5}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative speed, got %d", w.Code)
	}

	w = env.do(t, "GET", "/api/v1/sim", nil)
	if st := decode[api.RunnerStatus](t, w); len(st.Presets) != 2 {
		t.Errorf("expected 2 presets, got %v", st.Presets)
	}
}

func TestRunnerStep_Snapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.runner.Step(ctx)
	if res.Day != 31 {
		t.Fatalf("expected one simulated day per step, got day %d", res.Day)
	}
	snap, err := env.store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("expected a snapshot after a day elapsed: %v", err)
	}
	if snap.Day != 31 || snap.State != env.svc.State() {
		t.Errorf("snapshot does not match the published state (day %d)", snap.Day)
	}
}

func TestRunner_RunAdvancesWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	runner := api.NewRunner(env.svc, 10*time.Millisecond, 3600, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	start := env.svc.State().Time
	time.Sleep(50 * time.Millisecond)
	if !env.svc.State().Time.Equal(start) {
		t.Error("paused runner advanced the clock")
	}

	runner.Start()
	deadline := time.Now().Add(2 * time.Second)
	for env.svc.State().Time.Equal(start) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if env.svc.State().Time.Equal(start) {
		t.Error("running runner never advanced the clock")
	}
}

// --- WebSocket tests ---

func TestWebSocket_TradeBroadcast(t *testing.T) {
	hub := api.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	env := newTestEnvWithHub(t, hub)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	body, _ := json.Marshal(api.OrderRequest{InvestorID: human, Symbol: "EUT1", Side: "BUY", Shares: 3})
	resp, err := http.Post(srv.URL+"/api/v1/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string            `json:"type"`
		Data model.LedgerEntry `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Type != api.MsgTradeExecuted || msg.Data.Symbol != "EUT1" || msg.Data.Shares != 3 {
		t.Errorf("unexpected message: %s", data)
	}
}
