package sim

import (
	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/model"
)

const macroMomentumLookback = 50

// runMacro fires a catalog macro event when its scheduled day arrives. The
// trailing index momentum biases the pool toward good news in a rising
// market and bad news in a falling one, each with high but not certain
// probability. The event becomes the day's active event.
func (e *Engine) runMacro(s *model.State) {
	d := s.Day
	if d < s.NextMacroEventDay || len(e.cat.MacroEvents) == 0 {
		return
	}

	var momentum float64
	if n := len(s.MarketIndex); n > macroMomentumLookback {
		if past := s.MarketIndex[n-1-macroMomentumLookback].Price; past > 0 {
			momentum = s.MarketIndex[n-1].Price/past - 1
		}
	}

	pool := e.cat.MacroEvents
	switch {
	case momentum > e.cfg.MacroBiasMomentum && e.rng.Float64() < e.cfg.MacroBiasProbability:
		pool = filterEvents(pool, model.EventPositive, model.EventPolitical)
	case momentum < -e.cfg.MacroBiasMomentum && e.rng.Float64() < e.cfg.MacroBiasProbability:
		pool = filterEvents(pool, model.EventNegative, model.EventDisaster, model.EventPolitical)
	}
	if len(pool) == 0 {
		pool = e.cat.MacroEvents
	}
	spec := pool[e.rng.IntN(len(pool))]

	region := spec.Region
	if region == "" {
		region = model.RegionGlobal
	}
	ev := e.emit(s, model.Event{
		Name:        spec.Name,
		Description: spec.Description,
		Type:        spec.Type,
		Impact:      spec.Impact.Clone(),
		Region:      spec.Region,
	}, "macro", string(spec.Type), string(region))
	active := ev.Clone()
	s.ActiveEvent = &active
	s.NextMacroEventDay = d + e.cfg.MacroIntervalMin + e.intN(e.cfg.MacroIntervalRange)

	e.log.Info("macro event",
		"day", d,
		"name", spec.Name,
		"type", spec.Type,
		"region", region,
		"momentum", momentum,
		"next_day", s.NextMacroEventDay,
	)
}

func filterEvents(events []catalog.EventSpec, types ...model.EventType) []catalog.EventSpec {
	var out []catalog.EventSpec
	for _, ev := range events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// impactFor resolves an event's multiplier for one stock. A map impact is
// looked up by sector, then region, then the default key. Failing those, a
// regional event whose map also names other keys spills a dampened share
// of its own region's impact onto the stock. Anything else has no effect.
func (e *Engine) impactFor(ev *model.Event, st *model.Stock) float64 {
	if ev == nil || ev.Impact == nil {
		return 1
	}
	if !ev.Impact.IsMap() {
		return ev.Impact.Scalar
	}
	m := ev.Impact.Map
	if v, ok := m[st.Sector]; ok {
		return v
	}
	if v, ok := m[string(st.Region)]; ok {
		return v
	}
	if v, ok := m[model.DefaultImpactKey]; ok {
		return v
	}
	if ev.Region != "" && ev.Region != model.RegionGlobal && len(m) > 1 {
		if main, ok := m[string(ev.Region)]; ok && main != 0 {
			return 1 + (main-1)*e.cfg.SpilloverFactor
		}
	}
	return 1
}
