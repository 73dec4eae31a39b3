package model

import "github.com/shopspring/decimal"

// StockSummary is the list-row view of a stock.
type StockSummary struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	Region        Region  `json:"region"`
	Delisted      bool    `json:"delisted"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"market_cap"`
	PERatio       float64 `json:"pe_ratio"`
	High52w       float64 `json:"high_52w"`
	Low52w        float64 `json:"low_52w"`
	TrendingScore float64 `json:"trending_score"`
}

// Position aggregates an investor's lots in one stock.
type Position struct {
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"`
	Lots          int             `json:"lots"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio is the valuation of one investor.
type Portfolio struct {
	InvestorID     string          `json:"investor_id"`
	Cash           decimal.Decimal `json:"cash"`
	Positions      []Position      `json:"positions"`
	HoldingsValue  decimal.Decimal `json:"holdings_value"`
	NetWorth       decimal.Decimal `json:"net_worth"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalTaxesPaid decimal.Decimal `json:"total_taxes_paid"`
	LongTermGains  decimal.Decimal `json:"long_term_gains"`
	ShortTermGains decimal.Decimal `json:"short_term_gains"`
	Jurisdiction   string          `json:"jurisdiction"`
}

// LeaderboardRow ranks an investor by net worth.
type LeaderboardRow struct {
	Rank         int             `json:"rank"`
	InvestorID   string          `json:"investor_id"`
	Name         string          `json:"name"`
	Human        bool            `json:"human"`
	StrategyName string          `json:"strategy_name,omitempty"`
	Strategy     StrategyKind    `json:"strategy"`
	NetWorth     decimal.Decimal `json:"net_worth"`
}

// NetworkExplanation exposes a network's input and output importances.
type NetworkExplanation struct {
	Owner      string             `json:"owner"`
	Network    string             `json:"network"`
	LayerSizes []int              `json:"layer_sizes"`
	Inputs     map[string]float64 `json:"inputs"`
	Outputs    map[string]float64 `json:"outputs"`
}
