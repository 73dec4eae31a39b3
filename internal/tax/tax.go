// Package tax implements per-lot cost basis accounting and jurisdictional
// capital-gains settlement.
//
// Lots are consumed oldest-first. A lot held for more than
// LongTermHoldingDays at the time of sale realizes a long-term gain;
// anything else is short-term. All money is shopspring/decimal.
package tax

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/model"
)

// LongTermHoldingDays is the holding period after which a gain is long-term.
const LongTermHoldingDays = 365

var (
	// ErrInsufficientShares is returned when selling more than the lots hold.
	ErrInsufficientShares = errors.New("tax: insufficient shares in lots")

	// ErrInvalidShares is returned for a non-positive share count.
	ErrInvalidShares = errors.New("tax: share count must be positive")

	// ErrUnknownRegime is returned when a jurisdiction has no regime.
	ErrUnknownRegime = errors.New("tax: unknown jurisdiction")
)

// Regime is a capital-gains tax regime. Long-term gains above Exemption are
// taxed at LongTermRate; positive short-term gains at ShortTermRate.
type Regime struct {
	Code          string          `json:"code"`
	LongTermRate  decimal.Decimal `json:"long_term_rate"`
	Exemption     decimal.Decimal `json:"exemption"`
	ShortTermRate decimal.Decimal `json:"short_term_rate"`
}

// Due returns the tax owed on a year's realized gains. Net losses owe nothing.
func (r Regime) Due(longTerm, shortTerm decimal.Decimal) decimal.Decimal {
	due := decimal.Zero
	if taxable := longTerm.Sub(r.Exemption); taxable.IsPositive() {
		due = due.Add(taxable.Mul(r.LongTermRate))
	}
	if shortTerm.IsPositive() {
		due = due.Add(shortTerm.Mul(r.ShortTermRate))
	}
	return due.Round(2)
}

// Registry resolves regimes by jurisdiction code.
type Registry struct {
	regimes  map[string]Regime
	fallback string
}

// NewRegistry indexes regimes by code. fallback names the regime used for
// investors whose jurisdiction is empty.
func NewRegistry(fallback string, regimes ...Regime) (*Registry, error) {
	r := &Registry{regimes: make(map[string]Regime, len(regimes)), fallback: fallback}
	for _, reg := range regimes {
		r.regimes[reg.Code] = reg
	}
	if _, ok := r.regimes[fallback]; !ok {
		return nil, fmt.Errorf("fallback %q: %w", fallback, ErrUnknownRegime)
	}
	return r, nil
}

// Lookup returns the regime for code, using the fallback for "".
func (r *Registry) Lookup(code string) (Regime, error) {
	if code == "" {
		code = r.fallback
	}
	reg, ok := r.regimes[code]
	if !ok {
		return Regime{}, fmt.Errorf("%q: %w", code, ErrUnknownRegime)
	}
	return reg, nil
}

// Fallback is the code used for investors without a jurisdiction.
func (r *Registry) Fallback() string { return r.fallback }

// Realized summarizes one FIFO sale.
type Realized struct {
	SharesSold int64
	Proceeds   decimal.Decimal
	CostBasis  decimal.Decimal
	LongTerm   decimal.Decimal
	ShortTerm  decimal.Decimal
}

// Gain is the total realized gain or loss.
func (r Realized) Gain() decimal.Decimal { return r.LongTerm.Add(r.ShortTerm) }

// IsLongTerm reports whether a lot bought at purchased and sold at soldAt
// qualifies for long-term treatment.
func IsLongTerm(purchased, soldAt time.Time) bool {
	return soldAt.Sub(purchased) > LongTermHoldingDays*24*time.Hour
}

// ConsumeFIFO sells shares out of lots at price, oldest purchase first. The
// input slice is not modified. A partially consumed lot keeps its purchase
// time and price; fully consumed lots are dropped.
func ConsumeFIFO(lots []model.ShareLot, shares int64, price decimal.Decimal, at time.Time) ([]model.ShareLot, Realized, error) {
	if shares <= 0 {
		return lots, Realized{}, ErrInvalidShares
	}
	var held int64
	for _, lot := range lots {
		held += lot.Shares
	}
	if held < shares {
		return lots, Realized{}, ErrInsufficientShares
	}

	ordered := make([]model.ShareLot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PurchaseTime.Before(ordered[j].PurchaseTime)
	})

	res := Realized{SharesSold: shares}
	remaining := shares
	kept := make([]model.ShareLot, 0, len(ordered))
	for _, lot := range ordered {
		if remaining == 0 {
			kept = append(kept, lot)
			continue
		}
		take := min(lot.Shares, remaining)
		qty := decimal.NewFromInt(take)
		basis := lot.PurchasePrice.Mul(qty)
		gain := price.Mul(qty).Sub(basis)
		res.CostBasis = res.CostBasis.Add(basis)
		if IsLongTerm(lot.PurchaseTime, at) {
			res.LongTerm = res.LongTerm.Add(gain)
		} else {
			res.ShortTerm = res.ShortTerm.Add(gain)
		}
		remaining -= take
		if take < lot.Shares {
			lot.Shares -= take
			kept = append(kept, lot)
		}
	}
	res.Proceeds = price.Mul(decimal.NewFromInt(shares))
	return kept, res, nil
}

// Settle charges the year's tax to inv and resets its gain accumulators.
// It returns the amount charged.
func Settle(inv *model.Investor, reg Regime) decimal.Decimal {
	due := reg.Due(inv.LongTermGains, inv.ShortTermGains)
	if due.IsPositive() {
		inv.Cash = inv.Cash.Sub(due)
		inv.TotalTaxesPaid = inv.TotalTaxesPaid.Add(due)
	}
	inv.LongTermGains = decimal.Zero
	inv.ShortTermGains = decimal.Zero
	return due
}
