package sim

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/indicator"
	"github.com/atmx/market-sim/internal/market"
	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
)

// signals caches indicator maps for one tick. Agents trade against prices
// frozen at the start of the tick, so every investor sees the same values.
type signals struct {
	s        *model.State
	names    []string
	universe *indicator.Universe
	values   []indicator.Values
	inputs   [][]float64
}

func newSignals(s *model.State, names []string) *signals {
	return &signals{
		s:      s,
		names:  names,
		values: make([]indicator.Values, len(s.Stocks)),
		inputs: make([][]float64, len(s.Stocks)),
	}
}

func (c *signals) at(i int) (indicator.Values, []float64) {
	if c.values[i] == nil {
		if c.universe == nil {
			c.universe = indicator.NewUniverse(c.s.Stocks)
		}
		c.values[i] = indicator.Compute(c.s.Stocks[i], c.universe, c.s.EventHistory)
		c.inputs[i] = indicator.Vector(c.values[i], c.names)
	}
	return c.values[i], c.inputs[i]
}

// runAgents lets every AI investor act on the open markets.
func (e *Engine) runAgents(s *model.State, at time.Time, hours float64, open market.Openness, f *flow) {
	if !open.AnyOpen() {
		return
	}
	session := hours / e.cfg.SessionHours
	cache := newSignals(s, e.cat.Neurons.Indicator)

	for _, inv := range s.Investors {
		if inv.Human {
			continue
		}
		switch inv.Strategy.Kind {
		case model.StrategyNeural:
			e.neuralTrades(s, inv, at, session, open, cache, f)
		case model.StrategyNoise:
			e.noiseTrades(s, inv, at, session, open, f)
		}
	}
}

// neuralTrades scores every open stock when the investor's trade chance
// fires. Scores above the risk threshold buy a slice of cash; scores below
// its negation sell a slice of the position.
func (e *Engine) neuralTrades(s *model.State, inv *model.Investor, at time.Time, session float64, open market.Openness, cache *signals, f *flow) {
	strat := inv.Strategy.Neural
	if strat == nil || strat.Network == nil {
		return
	}
	freq := max(strat.TradeFrequency, 1)
	if e.rng.Float64() > session/float64(freq) {
		return
	}

	for i, st := range s.Stocks {
		if st.Delisted || !open[st.Region] || len(st.History) == 0 {
			continue
		}
		values, inputs := cache.at(i)
		score := strat.Network.Score(inputs)
		price := st.Price()

		switch {
		case score > strat.RiskAversion:
			spend := inv.Cash.InexactFloat64() * e.cfg.NeuralBuyFraction * session
			if n := int64(math.Floor(spend / price)); n > 0 {
				if e.agentBuy(s, inv, i, n, at, values, f) {
					e.recordTrade(s, inv, st.Symbol, model.SideBuy, n, price, inputs)
				}
			}
		case score < -strat.RiskAversion:
			owned := inv.SharesOwned(st.Symbol)
			if owned == 0 {
				continue
			}
			if n := int64(math.Floor(float64(owned) * e.cfg.NeuralSellFraction * session)); n > 0 {
				if e.agentSell(s, inv, i, n, at, f) {
					e.recordTrade(s, inv, st.Symbol, model.SideSell, n, price, inputs)
				}
			}
		}
	}
}

// noiseTrades flips a coin per open stock and trades a random slice.
func (e *Engine) noiseTrades(s *model.State, inv *model.Investor, at time.Time, session float64, open market.Openness, f *flow) {
	strat := inv.Strategy.Noise
	if strat == nil {
		return
	}
	for i, st := range s.Stocks {
		if st.Delisted || !open[st.Region] || len(st.History) == 0 {
			continue
		}
		if e.rng.Float64() >= strat.TradeChance*session {
			continue
		}
		price := st.Price()
		owned := inv.SharesOwned(st.Symbol)
		if e.rng.Float64() < 0.5 {
			cash := inv.Cash.InexactFloat64()
			if cash <= e.cfg.NoiseMinCash {
				continue
			}
			spend := cash * e.rng.Float64() * e.cfg.NoiseMaxFraction
			if n := int64(math.Floor(spend / price)); n > 0 {
				e.agentBuy(s, inv, i, n, at, nil, f)
			}
		} else if owned > 0 {
			n := int64(math.Floor(float64(owned) * e.rng.Float64() * e.cfg.NoiseMaxFraction))
			n = min(owned, max(1, n))
			e.agentSell(s, inv, i, n, at, f)
		}
	}
}

func (e *Engine) agentBuy(s *model.State, inv *model.Investor, i int, n int64, at time.Time, values indicator.Values, f *flow) bool {
	st := s.Stocks[i]
	price := decimal.NewFromFloat(st.Price())
	if inv.Cash.LessThan(price.Mul(decimal.NewFromInt(n))) {
		return false
	}
	buy(inv, st.Symbol, n, price, at, values)
	f.add(i, model.SideBuy, n)
	metrics.TradesTotal.WithLabelValues(string(inv.Strategy.Kind), string(model.SideBuy)).Inc()
	metrics.TradedShares.WithLabelValues(string(model.SideBuy)).Add(float64(n))
	return true
}

func (e *Engine) agentSell(s *model.State, inv *model.Investor, i int, n int64, at time.Time, f *flow) bool {
	st := s.Stocks[i]
	if _, err := sell(inv, st.Symbol, n, decimal.NewFromFloat(st.Price()), at); err != nil {
		e.log.Debug("agent sell rejected", "investor", inv.ID, "symbol", st.Symbol, "error", err)
		return false
	}
	f.add(i, model.SideSell, n)
	metrics.TradesTotal.WithLabelValues(string(inv.Strategy.Kind), string(model.SideSell)).Inc()
	metrics.TradedShares.WithLabelValues(string(model.SideSell)).Add(float64(n))
	return true
}

// recordTrade queues a neural trade for outcome scoring.
func (e *Engine) recordTrade(s *model.State, inv *model.Investor, symbol string, side model.Side, n int64, price float64, inputs []float64) {
	inv.RecentTrades = append(inv.RecentTrades, model.PendingTrade{
		Symbol:        symbol,
		Day:           s.Day,
		Side:          side,
		Shares:        n,
		Price:         price,
		Inputs:        append([]float64(nil), inputs...),
		EvaluationDay: s.Day + e.cfg.TradeHorizon,
	})
}
