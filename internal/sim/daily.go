package sim

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/tax"
)

// dailyTransition runs the end-of-day bookkeeping at the start of s.Day.
// The order is fixed: learning reads outcomes at yesterday's closes, the
// snapshots and tax settlement see those closes before any of today's
// event impacts, and the impacts are applied last.
func (e *Engine) dailyTransition(s *model.State) {
	e.learnCorporate(s)
	e.learnArticles(s)
	e.learnTrades(s)

	e.snapshotNetWorth(s)
	e.snapshotIndex(s)
	if p := e.cfg.TaxPeriodDays; p > 0 && s.Day%p == 0 {
		e.settleTaxes(s)
	}
	e.rollHistory(s)

	if ev := s.ActiveEvent; ev != nil && (ev.IsMacro() || ev.Type == model.EventNeutral) {
		s.ActiveEvent = nil
	}

	impacts := make([]float64, len(s.Stocks))
	for i := range impacts {
		impacts[i] = 1
	}
	e.runMacro(s)
	e.runCorporate(s, impacts)
	e.applyImpacts(s, impacts)

	e.retryNarratives(s)
	metrics.DailyTransitionsTotal.Inc()
}

// NetWorth is cash plus every position marked at its stock's last close.
func NetWorth(inv *model.Investor, stocks map[string]*model.Stock) decimal.Decimal {
	total := inv.Cash
	for symbol, lots := range inv.Portfolio {
		st, ok := stocks[symbol]
		if !ok {
			continue
		}
		var shares int64
		for _, lot := range lots {
			shares += lot.Shares
		}
		total = total.Add(decimal.NewFromFloat(st.Price()).Mul(decimal.NewFromInt(shares)))
	}
	return total
}

func (e *Engine) snapshotNetWorth(s *model.State) {
	idx := s.StockIndex()
	for _, inv := range s.Investors {
		inv.NetWorthHistory = append(inv.NetWorthHistory, model.NetWorthPoint{Day: s.Day, Value: NetWorth(inv, idx)})
		if limit := e.cfg.NetWorthCap; limit > 0 && len(inv.NetWorthHistory) > limit {
			inv.NetWorthHistory = inv.NetWorthHistory[len(inv.NetWorthHistory)-limit:]
		}
	}
}

// IndexLevel is the equal-weighted average close of listed stocks.
func IndexLevel(stocks []*model.Stock) float64 {
	var sum float64
	n := 0
	for _, st := range stocks {
		if st.Delisted || len(st.History) == 0 {
			continue
		}
		sum += st.Price()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (e *Engine) snapshotIndex(s *model.State) {
	level := IndexLevel(s.Stocks)
	s.MarketIndex = append(s.MarketIndex, model.IndexPoint{Day: s.Day, Price: level})
	if limit := e.historyCap(); len(s.MarketIndex) > limit {
		s.MarketIndex = s.MarketIndex[len(s.MarketIndex)-limit:]
	}
	metrics.MarketIndex.Set(level)
}

func (e *Engine) settleTaxes(s *model.State) {
	var collected decimal.Decimal
	for _, inv := range s.Investors {
		reg, err := e.taxes.Lookup(inv.Jurisdiction)
		if err != nil {
			e.log.Warn("tax settlement skipped", "investor", inv.ID, "error", err)
			continue
		}
		collected = collected.Add(tax.Settle(inv, reg))
	}
	metrics.TaxCollected.Add(collected.InexactFloat64())
	e.log.Info("annual tax settled", "day", s.Day, "collected", collected.StringFixed(2))
}

// rollHistory opens a new bar for every listed stock at the prior close.
func (e *Engine) rollHistory(s *model.State) {
	limit := e.historyCap()
	for _, st := range s.Stocks {
		if st.Delisted || len(st.History) == 0 {
			continue
		}
		p := st.Price()
		st.History = append(st.History, model.Bar{Day: s.Day, Open: p, High: p, Low: p, Close: p})
		if len(st.History) > limit {
			st.History = st.History[len(st.History)-limit:]
		}
	}
}

// applyImpacts multiplies the active event's impact into the accumulated
// per-stock multipliers and moves each listed close.
func (e *Engine) applyImpacts(s *model.State, impacts []float64) {
	for i, st := range s.Stocks {
		if st.Delisted || len(st.History) == 0 {
			continue
		}
		m := impacts[i]
		if s.ActiveEvent != nil {
			m *= e.impactFor(s.ActiveEvent, st)
		}
		if m == 1 {
			continue
		}
		bar := st.LastBar()
		bar.Close = math.Max(e.cfg.MinPrice, bar.Close*m)
		bar.High = math.Max(bar.High, bar.Close)
		bar.Low = math.Min(bar.Low, bar.Close)
	}
}
