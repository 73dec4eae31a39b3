// Package indicator derives the named technical and contextual signals fed
// to agent and corporate networks.
//
// Indicators that need more history than a stock has are omitted from the
// result map. Vector substitutes 0 for missing names when building a fixed
// network input.
package indicator

import (
	"fmt"
	"math"

	"github.com/atmx/market-sim/internal/model"
)

// Values maps indicator names to their current value.
type Values map[string]float64

// Vector orders values by names, using 0 for missing entries.
func Vector(v Values, names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = v[name]
	}
	return out
}

const groupMomentumLookback = 50

// Universe holds peer-group aggregates computed once over all stocks.
// Delisted stocks never contribute.
type Universe struct {
	sector map[string]float64
	region map[model.Region]float64
}

// NewUniverse computes 50-day momentum of the equal-weighted average close
// of every sector and region group.
func NewUniverse(stocks []*model.Stock) *Universe {
	sectors := make(map[string][]*model.Stock)
	regions := make(map[model.Region][]*model.Stock)
	for _, s := range stocks {
		if s.Delisted {
			continue
		}
		sectors[s.Sector] = append(sectors[s.Sector], s)
		regions[s.Region] = append(regions[s.Region], s)
	}

	u := &Universe{
		sector: make(map[string]float64, len(sectors)),
		region: make(map[model.Region]float64, len(regions)),
	}
	for name, group := range sectors {
		if m, ok := groupMomentum(group); ok {
			u.sector[name] = m
		}
	}
	for name, group := range regions {
		if m, ok := groupMomentum(group); ok {
			u.region[name] = m
		}
	}
	return u
}

// SectorMomentum returns the 50-day momentum of a sector, if known.
func (u *Universe) SectorMomentum(sector string) (float64, bool) {
	m, ok := u.sector[sector]
	return m, ok
}

// RegionMomentum returns the 50-day momentum of a region, if known.
func (u *Universe) RegionMomentum(region model.Region) (float64, bool) {
	m, ok := u.region[region]
	return m, ok
}

func groupMomentum(group []*model.Stock) (float64, bool) {
	if len(group) == 0 || len(group[0].History) <= groupMomentumLookback {
		return 0, false
	}
	var now, past float64
	n := 0
	for _, s := range group {
		if len(s.History) <= groupMomentumLookback {
			continue
		}
		now += s.History[len(s.History)-1].Close
		past += s.History[len(s.History)-1-groupMomentumLookback].Close
		n++
	}
	if n == 0 || past <= 0 {
		return 0, true
	}
	return now/past - 1, true
}

// Compute returns the agent indicator map for stock. events is the event
// history, newest first.
func Compute(stock *model.Stock, u *Universe, events []model.Event) Values {
	v := make(Values, 40)
	if len(stock.History) < 2 {
		return v
	}

	prices := make([]float64, len(stock.History))
	volumes := make([]float64, len(stock.History))
	for i, b := range stock.History {
		prices[i] = b.Close
		volumes[i] = float64(b.Volume)
	}
	current := prices[len(prices)-1]

	for _, p := range []int{5, 10, 20, 50} {
		if len(prices) > p {
			v[fmt.Sprintf("momentum_%dd", p)] = current/prices[len(prices)-1-p] - 1
		}
	}
	if len(prices) > 5 {
		var sum float64
		for _, x := range prices[len(prices)-5 : len(prices)-1] {
			sum += x
		}
		if avg := sum / 4; avg > 0 {
			v["momentum_1d_vs_avg5d"] = current/avg - 1
		}
	}

	smas := make(map[int]float64, 5)
	for _, p := range []int{10, 20, 50, 100, 200} {
		if m, ok := sma(prices, p); ok && m != 0 {
			smas[p] = m
			v[fmt.Sprintf("trend_price_vs_sma_%d", p)] = (current - m) / m
		}
	}
	crossover(v, "trend_sma_crossover", smas, 10, 20)
	crossover(v, "trend_sma_crossover", smas, 20, 50)
	crossover(v, "trend_sma_crossover", smas, 50, 200)

	emas := make(map[int]float64, 3)
	for _, p := range []int{10, 20, 50} {
		if e, ok := ema(prices, p); ok && e != 0 {
			emas[p] = e
			v[fmt.Sprintf("trend_price_vs_ema_%d", p)] = (current - e) / e
		}
	}
	crossover(v, "trend_ema_crossover", emas, 10, 20)
	crossover(v, "trend_ema_crossover", emas, 20, 50)

	for _, p := range []int{7, 14, 21} {
		if r, ok := rsiContrarian(prices, p); ok {
			v[fmt.Sprintf("oscillator_rsi_%d_contrarian", p)] = r
		}
	}
	if k, ok := stochasticContrarian(prices, 14); ok {
		v["oscillator_stochastic_k_14_contrarian"] = k
	}

	if mid, ok := smas[20]; ok {
		sd := populationStdDev(prices, 20, mid)
		upper, lower := mid+2*sd, mid-2*sd
		v["volatility_bollinger_bandwidth_20"] = (upper - lower) / mid
		if upper > lower {
			v["volatility_bollinger_percent_b_20"] = (current - lower) / (upper - lower)
		}
	}

	e12, ok12 := ema(prices, 12)
	e26, ok26 := ema(prices, 26)
	if ok12 && ok26 && e26 != 0 {
		v["macd_histogram"] = (e12 - e26) / e26
	}

	if avg, ok := sma(volumes, 20); ok && avg != 0 {
		v["volume_avg_20d_spike"] = (volumes[len(volumes)-1] - avg) / avg
	}
	if obv, ok := obvTrend(prices, volumes, 20); ok {
		v["volume_obv_trend_20d"] = obv
	}
	if cmf, ok := moneyFlow(prices, volumes, 20); ok {
		v["volume_cmf_20"] = cmf
	}
	if atr, ok := averageMove(prices, 14); ok {
		v["volatility_atr_14"] = atr
	}

	if u != nil {
		if m, ok := u.SectorMomentum(stock.Sector); ok {
			v["sector_momentum_50d"] = m
		}
		if m, ok := u.RegionMomentum(stock.Region); ok {
			v["region_momentum_50d"] = m
		}
	}

	eventSignals(v, events)
	return v
}

func crossover(v Values, prefix string, avgs map[int]float64, fast, slow int) {
	f, okF := avgs[fast]
	s, okS := avgs[slow]
	if okF && okS {
		v[fmt.Sprintf("%s_%d_%d", prefix, fast, slow)] = (f - s) / s
	}
}

// Sentiment scores an event type for the event_sentiment_recent signal.
func Sentiment(t model.EventType) float64 {
	switch t {
	case model.EventPositive:
		return 1
	case model.EventNegative:
		return -1
	case model.EventSplit, model.EventMerger, model.EventAlliance:
		return 0.5
	default:
		return 0
	}
}

func eventSignals(v Values, events []model.Event) {
	if len(events) == 0 {
		v["event_sentiment_recent"] = 0
		v["event_impact_magnitude"] = 0
		v["event_type_is_macro"] = 0
		v["event_type_is_corporate"] = 0
		return
	}
	last := events[0]
	v["event_sentiment_recent"] = Sentiment(last.Type)
	// Impact-less events have a mean of 0 and score 10.
	v["event_impact_magnitude"] = math.Abs(last.Impact.Mean()-1) * 10
	if last.IsMacro() {
		v["event_type_is_macro"] = 1
		v["event_type_is_corporate"] = 0
	} else {
		v["event_type_is_macro"] = 0
		v["event_type_is_corporate"] = 1
	}
}

// Corporate returns the corporate decision indicators for stock.
func Corporate(stock *model.Stock, u *Universe, index []model.IndexPoint, events []model.Event) Values {
	general := Compute(stock, u, events)
	v := make(Values, 12)

	v["self_momentum_50d"] = general["momentum_50d"]
	v["self_volatility_atr_14"] = general["volatility_atr_14"]

	current := stock.Price()
	var ath float64
	for _, b := range stock.History {
		if b.High > ath {
			ath = b.High
		}
	}
	if ath > 0 {
		v["price_vs_ath"] = current/ath - 1
	} else {
		v["price_vs_ath"] = 0
	}

	if len(index) > groupMomentumLookback {
		now := index[len(index)-1].Price
		past := index[len(index)-1-groupMomentumLookback].Price
		if past > 0 {
			v["market_momentum_50d"] = now/past - 1
		} else {
			v["market_momentum_50d"] = 0
		}
	}

	v["sector_momentum_50d"] = general["sector_momentum_50d"]
	v["region_momentum_50d"] = general["region_momentum_50d"]

	window := stock.History
	if len(window) > 252 {
		window = window[len(window)-252:]
	}
	valuation := 0.5
	if len(window) > 0 {
		hi, lo := window[0].High, window[0].Low
		for _, b := range window {
			if b.High > hi {
				hi = b.High
			}
			if b.Low < lo {
				lo = b.Low
			}
		}
		if hi > lo {
			valuation = (current - lo) / (hi - lo)
		}
	}
	v["opportunity_score"] = (1 - valuation) - v["self_volatility_atr_14"]*2

	for _, k := range []string{"event_sentiment_recent", "event_impact_magnitude", "event_type_is_macro", "event_type_is_corporate"} {
		v[k] = general[k]
	}
	return v
}

// Known reports whether name is an indicator this package can produce,
// either for agents or for corporate decisions.
func Known(name string) bool {
	_, ok := known[name]
	return ok
}

var known = func() map[string]struct{} {
	names := []string{
		"momentum_5d", "momentum_10d", "momentum_20d", "momentum_50d", "momentum_1d_vs_avg5d",
		"trend_price_vs_sma_10", "trend_price_vs_sma_20", "trend_price_vs_sma_50", "trend_price_vs_sma_100", "trend_price_vs_sma_200",
		"trend_sma_crossover_10_20", "trend_sma_crossover_20_50", "trend_sma_crossover_50_200",
		"trend_price_vs_ema_10", "trend_price_vs_ema_20", "trend_price_vs_ema_50",
		"trend_ema_crossover_10_20", "trend_ema_crossover_20_50",
		"oscillator_rsi_7_contrarian", "oscillator_rsi_14_contrarian", "oscillator_rsi_21_contrarian",
		"oscillator_stochastic_k_14_contrarian",
		"volatility_bollinger_bandwidth_20", "volatility_bollinger_percent_b_20",
		"macd_histogram",
		"volume_avg_20d_spike", "volume_obv_trend_20d", "volume_cmf_20",
		"volatility_atr_14",
		"sector_momentum_50d", "region_momentum_50d",
		"event_sentiment_recent", "event_impact_magnitude", "event_type_is_macro", "event_type_is_corporate",
		"self_momentum_50d", "self_volatility_atr_14", "price_vs_ath", "market_momentum_50d", "opportunity_score",
	}
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}()
