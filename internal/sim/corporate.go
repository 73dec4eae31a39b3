package sim

import (
	"fmt"
	"math"

	"github.com/atmx/market-sim/internal/indicator"
	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
)

// runCorporate lets each listed company consider a split, an alliance or an
// acquisition on its scheduled day, in that priority order. Companies that
// take no action may publish minor sector news. Price effects are
// multiplied into impacts, indexed like State.Stocks.
func (e *Engine) runCorporate(s *model.State, impacts []float64) {
	var u *indicator.Universe
	for i, st := range s.Stocks {
		if st.Delisted || len(st.History) == 0 {
			continue
		}
		taken := false
		if s.Day >= st.AI.NextActionDay {
			if u == nil {
				u = indicator.NewUniverse(s.Stocks)
			}
			var delisted bool
			taken, delisted = e.corporateAction(s, i, u, impacts)
			if taken {
				st.AI.NextActionDay = s.Day + e.cfg.ActionIntervalMin + e.intN(e.cfg.ActionIntervalRange)
			}
			if delisted {
				u = nil
			}
		}
		if !taken && e.rng.Float64() < e.cfg.MinorNewsProbability {
			e.minorNews(s, i, impacts)
		}
	}
}

// corporateAction evaluates the three decision networks for stock i. It
// reports whether an action was taken and whether a stock was delisted.
func (e *Engine) corporateAction(s *model.State, i int, u *indicator.Universe, impacts []float64) (taken, delisted bool) {
	st := s.Stocks[i]
	values := indicator.Corporate(st, u, s.MarketIndex, s.EventHistory)
	inputs := indicator.Vector(values, e.cat.Neurons.Corporate)
	price := st.LastBar().Open
	index := s.MarketIndexLevel()

	if st.AI.Split.Score(inputs) > e.cfg.SplitThreshold && price > e.cfg.MinSplitPrice {
		e.split(s, st, price, index, inputs)
		return true, false
	}
	if st.AI.Alliance.Score(inputs) > e.cfg.AllianceThreshold {
		if e.alliance(s, i, price, index, inputs, impacts) {
			return true, false
		}
	}
	if st.AI.Acquisition.Score(inputs) > e.cfg.AcquisitionThreshold {
		if e.acquisition(s, i, price, index, inputs, impacts) {
			return true, true
		}
	}
	return false, false
}

// SplitRatio is floor(price/100) with a minimum of 2.
func SplitRatio(price float64) int {
	return max(2, int(math.Floor(price/100)))
}

// split rescales every bar and EPS by the ratio and multiplies the share
// count.
func (e *Engine) split(s *model.State, st *model.Stock, price, index float64, inputs []float64) {
	ratio := SplitRatio(price)
	r := float64(ratio)
	for j := range st.History {
		b := &st.History[j]
		b.Open /= r
		b.High /= r
		b.Low /= r
		b.Close /= r
	}
	st.EPS /= r
	st.SharesOutstanding *= r

	e.emit(s, model.Event{
		Symbol:      st.Symbol,
		StockName:   st.Name,
		Name:        fmt.Sprintf("Announces %d-for-1 Stock Split", ratio),
		Description: fmt.Sprintf("The board has approved a %d-for-1 stock split.", ratio),
		Type:        model.EventSplit,
		Split:       &model.SplitDetails{Symbol: st.Symbol, Ratio: ratio},
	}, st.Sector, st.Name, "split")
	e.trackAction(s, st.Symbol, model.ActionSplit, e.cfg.SplitHorizon, inputs, price/r, index)

	metrics.CorporateActionsTotal.WithLabelValues(string(model.ActionSplit)).Inc()
	e.log.Info("stock split", "day", s.Day, "symbol", st.Symbol, "ratio", ratio, "price", price)
}

// alliance bumps the stock and a partner, preferring the same region and
// sector.
func (e *Engine) alliance(s *model.State, i int, price, index float64, inputs []float64, impacts []float64) bool {
	st := s.Stocks[i]
	j := e.counterpart(s, i, func(*model.Stock) bool { return true })
	if j < 0 {
		return false
	}
	partner := s.Stocks[j]
	impacts[i] *= e.cfg.AllianceBump
	impacts[j] *= e.cfg.AllianceBump

	e.emit(s, model.Event{
		Symbol:      st.Symbol,
		StockName:   st.Name,
		Name:        fmt.Sprintf("Forms Alliance with %s", partner.Name),
		Description: "A strategic alliance to collaborate on new technologies.",
		Type:        model.EventAlliance,
		Alliance:    &model.AllianceDetails{Partners: []string{st.Symbol, partner.Symbol}},
	}, st.Sector, "alliance", partner.Name)
	e.trackAction(s, st.Symbol, model.ActionAlliance, e.cfg.AllianceHorizon, inputs, price, index)

	metrics.CorporateActionsTotal.WithLabelValues(string(model.ActionAlliance)).Inc()
	e.log.Info("alliance formed", "day", s.Day, "symbol", st.Symbol, "partner", partner.Symbol)
	return true
}

// acquisition buys out a target below AcquisitionCapRatio of the acquirer's
// market cap. The target's last close takes its bump immediately and the
// target is delisted for good.
func (e *Engine) acquisition(s *model.State, i int, price, index float64, inputs []float64, impacts []float64) bool {
	st := s.Stocks[i]
	limit := price * st.SharesOutstanding * e.cfg.AcquisitionCapRatio
	j := e.counterpart(s, i, func(c *model.Stock) bool {
		return c.LastBar().Open*c.SharesOutstanding < limit
	})
	if j < 0 {
		return false
	}
	target := s.Stocks[j]

	e.emit(s, model.Event{
		Symbol:      st.Symbol,
		StockName:   st.Name,
		Name:        fmt.Sprintf("Acquires %s", target.Name),
		Description: "An acquisition to consolidate market share.",
		Type:        model.EventMerger,
		Merger:      &model.MergerDetails{Acquiring: st.Symbol, Acquired: target.Symbol},
	}, st.Sector, "acquisition", target.Name)

	impacts[i] *= e.cfg.AcquirerBump
	bar := target.LastBar()
	bar.Close = math.Max(e.cfg.MinPrice, bar.Close*e.cfg.TargetBump)
	bar.High = math.Max(bar.High, bar.Close)
	target.Delisted = true
	impacts[j] = 1

	e.trackAction(s, st.Symbol, model.ActionAcquisition, e.cfg.AcquisitionHorizon, inputs, price, index)

	metrics.CorporateActionsTotal.WithLabelValues(string(model.ActionAcquisition)).Inc()
	e.log.Info("acquisition", "day", s.Day, "symbol", st.Symbol, "target", target.Symbol)
	return true
}

// counterpart picks a random listed stock in the same sector that passes
// ok, preferring the same region. The whole sector is searched when no
// regional candidate exists or, with PartnerFallbackChance, anyway.
// It returns -1 when nothing qualifies.
func (e *Engine) counterpart(s *model.State, i int, ok func(*model.Stock) bool) int {
	self := s.Stocks[i]
	candidates := func(sameRegion bool) []int {
		var out []int
		for j, c := range s.Stocks {
			if j == i || c.Delisted || c.Sector != self.Sector || len(c.History) == 0 {
				continue
			}
			if sameRegion && c.Region != self.Region {
				continue
			}
			if ok(c) {
				out = append(out, j)
			}
		}
		return out
	}

	pool := candidates(true)
	if len(pool) == 0 || e.rng.Float64() < e.cfg.PartnerFallbackChance {
		pool = candidates(false)
	}
	if len(pool) == 0 {
		return -1
	}
	return pool[e.rng.IntN(len(pool))]
}

func (e *Engine) trackAction(s *model.State, symbol string, kind model.ActionKind, horizon int, inputs []float64, startPrice, startIndex float64) {
	s.TrackedActions = append(s.TrackedActions, model.TrackedAction{
		StartDay:      s.Day,
		EvaluationDay: s.Day + horizon,
		Symbol:        symbol,
		Action:        kind,
		Inputs:        append([]float64(nil), inputs...),
		StartPrice:    startPrice,
		StartIndex:    startIndex,
	})
}

// minorNews publishes a sector news item, mostly neutral. A scalar impact
// moves the stock the same day.
func (e *Engine) minorNews(s *model.State, i int, impacts []float64) {
	st := s.Stocks[i]
	events, ok := e.cat.CorporateEvents[st.Sector]
	if !ok {
		return
	}

	kind := model.EventNeutral
	bucket := events.Neutral
	if e.rng.Float64() >= e.cfg.MinorNewsNeutralShare {
		if e.rng.IntN(2) == 0 {
			kind, bucket = model.EventPositive, events.Positive
		} else {
			kind, bucket = model.EventNegative, events.Negative
		}
	}
	if len(bucket) == 0 {
		return
	}
	spec := bucket[e.rng.IntN(len(bucket))]
	if spec.Type != "" {
		kind = spec.Type
	}

	e.emit(s, model.Event{
		Symbol:      st.Symbol,
		StockName:   st.Name,
		Name:        spec.Name,
		Description: spec.Description,
		Type:        kind,
		Impact:      spec.Impact.Clone(),
	}, st.Sector, st.Name, string(kind))
	if spec.Impact != nil && !spec.Impact.IsMap() {
		impacts[i] *= spec.Impact.Scalar
	}
}
