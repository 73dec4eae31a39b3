package sim

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/model"
)

// testCatalog is a four-stock universe with no drift so that price changes
// come only from trading, chaos and events.
const testCatalog = `
simulation:
  start: 2024-01-01T09:30:00Z
  history_length: 60
  min_initial_price: 8
  max_initial_price: 12
  human_cash: 1000000
  ai_cash: 100
  annual_inflation: 0
  default_jurisdiction: USA_WA
operating_tax:
  default: 0
tax_regimes:
  - {code: USA_WA, long_term_rate: 0.07, exemption: 250000, short_term_rate: 0}
  - {code: NONE, long_term_rate: 0, exemption: 0, short_term_rate: 0}
neurons:
  indicator: [momentum_5d, momentum_20d, trend_price_vs_sma_10, oscillator_rsi_14_contrarian, event_sentiment_recent]
  corporate: [self_momentum_50d, price_vs_ath, opportunity_score]
  corporate_hidden: [3]
roster:
  human: {id: human-player, name: Human Player}
  ai_count: 6
  name_prefix: AI Trader
  strategy_names: [Momentum Bot, Value Seeker]
  base_hidden: [3]
  risk_aversion: {min: 0.3, max: 0.8}
  trade_frequency: {min: 1, max: 5}
  learning_rate: {min: 0.01, max: 0.02}
  noise_count: 2
  noise_trade_chance: 0.05
  noise_strategy_name: Randomized Algorithm
  noise_names: [Noise Trader, Chaos Agent]
  tiers:
    - {count: 2, name_prefix: Advanced Trader, strategy_name: Advanced Network, hidden: [4, 2], learning_rate_multiplier: 1.5, risk_aversion_multiplier: 1}
  oracle: {name: The Oracle, strategy_name: Oracle Network, hidden: [5, 5], learning_rate: 0.05, risk_aversion: 0.5}
speeds:
  - {label: 1h/s, seconds: 3600}
stocks:
  - {symbol: NAT1, name: Northwind Systems, sector: Technology, region: North America}
  - {symbol: NAT2, name: Prairie Compute, sector: Technology, region: North America}
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
  - name: Eurozone Debt Crisis
    description: Sovereign spreads widen across the eurozone.
    type: negative
    region: Europe
    impact: {Europe: 0.90}
`

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRealTime = 0
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

type testEnv struct {
	engine *Engine
	state  *model.State
}

func newTestEngine(t *testing.T, cfg Config, seed uint64, opts ...Option) *Engine {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(seed, seed+1)))}, opts...)
	e, err := New(cat, cfg, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := newTestEngine(t, testConfig(), 42)
	return &testEnv{engine: e, state: e.Initialize(InitOptions{})}
}

// setPrice pins the current bar of symbol to a flat price.
func setPrice(t *testing.T, s *model.State, symbol string, p float64) {
	t.Helper()
	st := s.Stock(symbol)
	if st == nil {
		t.Fatalf("no stock %s", symbol)
	}
	*st.LastBar() = model.Bar{Day: st.LastBar().Day, Open: p, High: p, Low: p, Close: p}
}

func closes(s *model.State) map[string]float64 {
	out := make(map[string]float64, len(s.Stocks))
	for _, st := range s.Stocks {
		out[st.Symbol] = st.Price()
	}
	return out
}
