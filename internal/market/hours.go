// Package market answers whether a regional market is trading at a given
// simulated instant. Sessions are fixed UTC bands; weekends are closed.
package market

import (
	"time"

	"github.com/atmx/market-sim/internal/model"
)

// Session is a half-open UTC time-of-day window [Open, Close).
type Session struct {
	Open  time.Duration
	Close time.Duration
}

func hm(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// sessions lists the trading windows of each region. Asia has a lunch break.
var sessions = map[model.Region][]Session{
	model.RegionNorthAmerica: {{Open: hm(13, 30), Close: hm(20, 0)}},
	model.RegionEurope:       {{Open: hm(7, 0), Close: hm(15, 30)}},
	model.RegionAsia: {
		{Open: hm(0, 0), Close: hm(2, 30)},
		{Open: hm(3, 30), Close: hm(6, 25)},
	},
}

// Sessions returns a copy of the trading windows of region, or nil for a
// region that never trades.
func Sessions(region model.Region) []Session {
	ws, ok := sessions[region]
	if !ok {
		return nil
	}
	return append([]Session(nil), ws...)
}

// IsOpen reports whether region trades at t. Unknown regions never trade.
func IsOpen(t time.Time, region model.Region) bool {
	t = t.UTC()
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	tod := hm(t.Hour(), t.Minute())
	for _, s := range sessions[region] {
		if tod >= s.Open && tod < s.Close {
			return true
		}
	}
	return false
}

// Openness caches IsOpen for every region at one instant.
type Openness map[model.Region]bool

// At evaluates every known region at t.
func At(t time.Time) Openness {
	o := make(Openness, len(sessions))
	for r := range sessions {
		o[r] = IsOpen(t, r)
	}
	return o
}

// AnyOpen reports whether at least one region trades.
func (o Openness) AnyOpen() bool {
	for _, open := range o {
		if open {
			return true
		}
	}
	return false
}
