package sim

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/tax"
)

// PlayerBuy buys shares of symbol at the current close for investorID.
// On rejection the prior state pointer is returned with the reason; prev is
// never modified.
func (e *Engine) PlayerBuy(prev *model.State, investorID, symbol string, shares int64) (*model.State, error) {
	inv, st, err := orderTarget(prev, investorID, symbol, shares)
	if err != nil {
		return reject(prev, err)
	}
	price := decimal.NewFromFloat(st.Price())
	if inv.Cash.LessThan(price.Mul(decimal.NewFromInt(shares))) {
		return reject(prev, ErrInsufficientCash)
	}

	next, target := prev.ShallowWithInvestor(investorID)
	buy(target, symbol, shares, price, prev.Time, nil)
	metrics.TradesTotal.WithLabelValues("human", string(model.SideBuy)).Inc()
	metrics.TradedShares.WithLabelValues(string(model.SideBuy)).Add(float64(shares))
	return next, nil
}

// PlayerSell sells shares of symbol at the current close, consuming lots
// oldest first and accruing realized gains.
func (e *Engine) PlayerSell(prev *model.State, investorID, symbol string, shares int64) (*model.State, error) {
	inv, st, err := orderTarget(prev, investorID, symbol, shares)
	if err != nil {
		return reject(prev, err)
	}
	if inv.SharesOwned(symbol) < shares {
		return reject(prev, ErrInsufficientShares)
	}

	next, target := prev.ShallowWithInvestor(investorID)
	if _, err := sell(target, symbol, shares, decimal.NewFromFloat(st.Price()), prev.Time); err != nil {
		return reject(prev, err)
	}
	metrics.TradesTotal.WithLabelValues("human", string(model.SideSell)).Inc()
	metrics.TradedShares.WithLabelValues(string(model.SideSell)).Add(float64(shares))
	return next, nil
}

func orderTarget(s *model.State, investorID, symbol string, shares int64) (*model.Investor, *model.Stock, error) {
	inv := s.Investor(investorID)
	if inv == nil {
		return nil, nil, ErrUnknownInvestor
	}
	st := s.Stock(symbol)
	switch {
	case st == nil || len(st.History) == 0:
		return nil, nil, ErrUnknownStock
	case st.Delisted:
		return nil, nil, ErrStockDelisted
	case shares <= 0:
		return nil, nil, ErrInvalidShares
	}
	return inv, st, nil
}

func reject(prev *model.State, err error) (*model.State, error) {
	metrics.OrderRejections.WithLabelValues(rejectReason(err)).Inc()
	return prev, err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownInvestor):
		return "unknown_investor"
	case errors.Is(err, ErrUnknownStock):
		return "unknown_stock"
	case errors.Is(err, ErrStockDelisted):
		return "delisted"
	case errors.Is(err, ErrInvalidShares):
		return "invalid_shares"
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	default:
		return "insufficient_shares"
	}
}

// buy debits cash and appends a lot. Callers check affordability.
func buy(inv *model.Investor, symbol string, shares int64, price decimal.Decimal, at time.Time, indicators map[string]float64) {
	inv.Cash = inv.Cash.Sub(price.Mul(decimal.NewFromInt(shares)))
	if inv.Portfolio == nil {
		inv.Portfolio = make(map[string][]model.ShareLot)
	}
	inv.Portfolio[symbol] = append(inv.Portfolio[symbol], model.ShareLot{
		PurchaseTime:  at,
		PurchasePrice: price,
		Shares:        shares,
		Indicators:    indicators,
	})
}

// sell consumes lots FIFO, credits proceeds and accrues realized gains.
func sell(inv *model.Investor, symbol string, shares int64, price decimal.Decimal, at time.Time) (tax.Realized, error) {
	kept, res, err := tax.ConsumeFIFO(inv.Portfolio[symbol], shares, price, at)
	if err != nil {
		if errors.Is(err, tax.ErrInsufficientShares) {
			return res, ErrInsufficientShares
		}
		return res, ErrInvalidShares
	}
	inv.Cash = inv.Cash.Add(res.Proceeds)
	inv.LongTermGains = inv.LongTermGains.Add(res.LongTerm)
	inv.ShortTermGains = inv.ShortTermGains.Add(res.ShortTerm)
	if len(kept) == 0 {
		delete(inv.Portfolio, symbol)
	} else {
		inv.Portfolio[symbol] = kept
	}
	return res, nil
}
