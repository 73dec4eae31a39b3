package sim

import (
	"math"
	"time"

	"github.com/atmx/market-sim/internal/market"
	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
)

// flow accumulates executed shares per stock during one tick, indexed like
// State.Stocks.
type flow struct {
	volume []int64
	net    []int64
}

func newFlow(n int) *flow {
	return &flow{volume: make([]int64, n), net: make([]int64, n)}
}

func (f *flow) add(i int, side model.Side, shares int64) {
	f.volume[i] += shares
	if side == model.SideBuy {
		f.net[i] += shares
	} else {
		f.net[i] -= shares
	}
}

// tick advances prices over [start, start+d). Agents trade first against
// the prices at the start of the tick; prices then move on drag and order
// flow. During the bootstrap day agents stay out and open markets random
// walk instead.
func (e *Engine) tick(s *model.State, start time.Time, d time.Duration) {
	if d <= 0 {
		return
	}
	hours := d.Hours()
	open := market.At(start)
	f := newFlow(len(s.Stocks))
	chaos := s.Day == s.BootstrapDay

	if !chaos {
		e.runAgents(s, start, hours, open, f)
	}
	e.movePrices(s, hours, open, chaos, f)
	metrics.TicksTotal.Inc()
}

func (e *Engine) movePrices(s *model.State, hours float64, open market.Openness, chaos bool, f *flow) {
	inflation := e.cat.Simulation.AnnualInflation / 365 * (hours / 24)
	session := hours / e.cfg.SessionHours

	for i, st := range s.Stocks {
		if st.Delisted || len(st.History) == 0 {
			continue
		}
		bar := st.LastBar()
		price := bar.Close

		drag := e.cat.OperatingTaxRate(st.Sector) / 365 * (hours / 24)
		price *= 1 - drag + inflation

		if open[st.Region] {
			if chaos {
				vol := e.cfg.ChaosVolatility * session
				price *= 1 + (e.rng.Float64()-0.5)*2*vol
			} else {
				pressure := float64(f.net[i]) / st.SharesOutstanding * e.cfg.ImpactFactor
				price *= 1 + clamp(pressure, -e.cfg.MaxTickMove, e.cfg.MaxTickMove)
			}
		}

		price = math.Max(e.cfg.MinPrice, price)
		bar.Close = price
		bar.High = math.Max(bar.High, price)
		bar.Low = math.Min(bar.Low, price)
		bar.Volume += f.volume[i]
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
