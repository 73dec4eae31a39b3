package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/indicator"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/nn"
)

const tradingYear = 252

// StockFilter narrows StockSummaries. Empty fields match everything; Query
// matches symbol or name case-insensitively.
type StockFilter struct {
	Sector string
	Region model.Region
	Query  string
}

func (f StockFilter) match(st *model.Stock) bool {
	if f.Sector != "" && !strings.EqualFold(f.Sector, st.Sector) {
		return false
	}
	if f.Region != "" && f.Region != st.Region {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(st.Symbol), q) || strings.Contains(strings.ToLower(st.Name), q)
	}
	return true
}

// Summarize builds the list-row view of one stock.
func Summarize(st *model.Stock) model.StockSummary {
	row := model.StockSummary{
		Symbol:   st.Symbol,
		Name:     st.Name,
		Sector:   st.Sector,
		Region:   st.Region,
		Delisted: st.Delisted,
	}
	n := len(st.History)
	if n == 0 {
		return row
	}
	last := st.History[n-1]
	ref := last.Open
	if n > 1 {
		ref = st.History[n-2].Close
	}
	row.Price = last.Close
	row.Volume = last.Volume
	row.Change = last.Close - ref
	if ref > 0 {
		row.ChangePercent = row.Change / ref * 100
	}
	row.MarketCap = last.Close * st.SharesOutstanding
	if st.EPS > 0 {
		row.PERatio = last.Close / st.EPS
	}

	window := st.History[max(0, n-tradingYear):]
	row.High52w, row.Low52w = window[0].High, window[0].Low
	for _, b := range window[1:] {
		row.High52w = math.Max(row.High52w, b.High)
		row.Low52w = math.Min(row.Low52w, b.Low)
	}
	row.TrendingScore = math.Abs(row.ChangePercent) * math.Log10(float64(last.Volume)+1)
	return row
}

// StockSummaries lists matching stocks in catalog order.
func StockSummaries(s *model.State, f StockFilter) []model.StockSummary {
	out := make([]model.StockSummary, 0, len(s.Stocks))
	for _, st := range s.Stocks {
		if f.match(st) {
			out = append(out, Summarize(st))
		}
	}
	return out
}

// Leaderboard ranks every investor by net worth, highest first. Ties keep
// roster order.
func Leaderboard(s *model.State) []model.LeaderboardRow {
	idx := s.StockIndex()
	rows := make([]model.LeaderboardRow, len(s.Investors))
	for i, inv := range s.Investors {
		rows[i] = model.LeaderboardRow{
			InvestorID:   inv.ID,
			Name:         inv.Name,
			Human:        inv.Human,
			StrategyName: inv.StrategyName,
			Strategy:     inv.Strategy.Kind,
			NetWorth:     NetWorth(inv, idx),
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].NetWorth.GreaterThan(rows[b].NetWorth)
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// PortfolioOf values an investor's holdings at current closes.
func PortfolioOf(s *model.State, investorID string) (model.Portfolio, error) {
	inv := s.Investor(investorID)
	if inv == nil {
		return model.Portfolio{}, ErrUnknownInvestor
	}
	idx := s.StockIndex()

	symbols := make([]string, 0, len(inv.Portfolio))
	for symbol := range inv.Portfolio {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	p := model.Portfolio{
		InvestorID:     inv.ID,
		Cash:           inv.Cash,
		Positions:      make([]model.Position, 0, len(symbols)),
		TotalTaxesPaid: inv.TotalTaxesPaid,
		LongTermGains:  inv.LongTermGains,
		ShortTermGains: inv.ShortTermGains,
		Jurisdiction:   inv.Jurisdiction,
	}
	var totalCost decimal.Decimal
	for _, symbol := range symbols {
		lots := inv.Portfolio[symbol]
		pos := model.Position{Symbol: symbol, Lots: len(lots)}
		for _, lot := range lots {
			pos.Shares += lot.Shares
			pos.CostBasis = pos.CostBasis.Add(lot.PurchasePrice.Mul(decimal.NewFromInt(lot.Shares)))
		}
		if st, ok := idx[symbol]; ok {
			pos.CurrentValue = decimal.NewFromFloat(st.Price()).Mul(decimal.NewFromInt(pos.Shares))
		}
		pos.UnrealizedPnL = pos.CurrentValue.Sub(pos.CostBasis)
		p.Positions = append(p.Positions, pos)
		p.HoldingsValue = p.HoldingsValue.Add(pos.CurrentValue)
		totalCost = totalCost.Add(pos.CostBasis)
	}
	p.NetWorth = p.Cash.Add(p.HoldingsValue)
	p.TotalPnL = p.HoldingsValue.Sub(totalCost)
	return p, nil
}

// StockIndicators returns the agent and corporate indicator maps for one
// stock as of s.
func StockIndicators(s *model.State, symbol string) (agent, corporate indicator.Values, err error) {
	st := s.Stock(symbol)
	if st == nil {
		return nil, nil, ErrUnknownStock
	}
	u := indicator.NewUniverse(s.Stocks)
	return indicator.Compute(st, u, s.EventHistory), indicator.Corporate(st, u, s.MarketIndex, s.EventHistory), nil
}

// ExplainInvestor exposes the decision network of a neural investor.
func ExplainInvestor(s *model.State, investorID string) (model.NetworkExplanation, error) {
	inv := s.Investor(investorID)
	if inv == nil {
		return model.NetworkExplanation{}, ErrUnknownInvestor
	}
	if inv.Strategy.Kind != model.StrategyNeural || inv.Strategy.Neural == nil || inv.Strategy.Neural.Network == nil {
		return model.NetworkExplanation{}, fmt.Errorf("%w: %s has no decision network", ErrNoNetwork, investorID)
	}
	return explain(inv.ID, string(inv.Strategy.Kind), inv.Strategy.Neural.Network), nil
}

// ExplainCorporate exposes one of a stock's corporate decision networks.
func ExplainCorporate(s *model.State, symbol string, action model.ActionKind) (model.NetworkExplanation, error) {
	st := s.Stock(symbol)
	if st == nil {
		return model.NetworkExplanation{}, ErrUnknownStock
	}
	var net *nn.Network
	switch action {
	case model.ActionSplit:
		net = st.AI.Split
	case model.ActionAlliance:
		net = st.AI.Alliance
	case model.ActionAcquisition:
		net = st.AI.Acquisition
	}
	if net == nil {
		return model.NetworkExplanation{}, fmt.Errorf("%w: %s/%s", ErrNoNetwork, symbol, action)
	}
	return explain(st.Symbol, string(action), net), nil
}

func explain(owner, name string, net *nn.Network) model.NetworkExplanation {
	return model.NetworkExplanation{
		Owner:      owner,
		Network:    name,
		LayerSizes: append([]int(nil), net.LayerSizes...),
		Inputs:     net.InputLayerWeights(),
		Outputs:    net.OutputLayerWeights(),
	}
}
