package sim

import (
	"context"
	"time"

	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
)

// MaxAdvanceSeconds bounds one call to Advance to ten simulated years,
// well inside the range of time.Duration.
const MaxAdvanceSeconds = 10 * 365 * 24 * 60 * 60

// Advance moves the simulation forward by seconds of simulated time in
// chunks of at most ChunkSize. A chunk that reaches midnight is split
// there and the daily transition runs at the boundary. When the wall-clock
// budget runs out, or ctx is done, the returned state stops short of the
// target; calling Advance again continues from there. A non-positive or
// NaN duration returns prev; durations above MaxAdvanceSeconds are clamped.
func (e *Engine) Advance(ctx context.Context, prev *model.State, seconds float64) *model.State {
	next, _ := e.AdvanceEvents(ctx, prev, seconds)
	return next
}

// AdvanceEvents is Advance that also returns every event published on the
// way, oldest first. Unlike the diff of two event histories, the list is
// complete even when more events fire than EventHistoryCap keeps.
func (e *Engine) AdvanceEvents(ctx context.Context, prev *model.State, seconds float64) (*model.State, []model.Event) {
	var emitted []model.Event
	e.emitted = &emitted
	defer func() { e.emitted = nil }()
	next := e.advance(ctx, prev, seconds)
	return next, emitted
}

func (e *Engine) advance(ctx context.Context, prev *model.State, seconds float64) *model.State {
	if !(seconds > 0) {
		return prev
	}
	seconds = min(seconds, MaxAdvanceSeconds)
	began := e.now()
	defer func() { metrics.AdvanceLatency.Observe(e.now().Sub(began).Seconds()) }()

	s := prev.Clone()
	target := s.Time.Add(time.Duration(seconds * float64(time.Second)))
	cur := s.Time

	for cur.Before(target) {
		if ctx.Err() != nil {
			break
		}
		if e.cfg.MaxRealTime > 0 && e.now().Sub(began) >= e.cfg.MaxRealTime {
			metrics.ValveTrips.Inc()
			e.log.Debug("advance stopped on wall-clock budget",
				"day", dayOf(&model.State{Time: cur, StartDate: s.StartDate}),
				"behind", target.Sub(cur).String(),
			)
			break
		}

		end := cur.Add(e.cfg.ChunkSize)
		if end.After(target) {
			end = target
		}
		midnight := cur.UTC().Truncate(day).Add(day)
		if end.Before(midnight) {
			e.tick(s, cur, end.Sub(cur))
		} else {
			e.tick(s, cur, midnight.Sub(cur))
			s.Time = midnight
			s.Day = dayOf(s)
			e.dailyTransition(s)
			e.tick(s, midnight, end.Sub(midnight))
		}
		cur = end
	}

	s.Time = cur
	s.Day = dayOf(s)
	s.TextModel = e.text.Refine(s.TextModel)

	metrics.SimulatedDay.Set(float64(s.Day))
	metrics.ListedStocks.Set(float64(listed(s.Stocks)))
	return s
}

func listed(stocks []*model.Stock) int {
	n := 0
	for _, st := range stocks {
		if !st.Delisted {
			n++
		}
	}
	return n
}
