// Package model defines the core domain types shared across the simulation.
// Cash, cost basis, realized gains and taxes use shopspring/decimal; market
// prices and indicator values are float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/nn"
)

// Region is the listing region of a stock or the scope of a macro event.
type Region string

const (
	RegionNorthAmerica Region = "North America"
	RegionEurope       Region = "Europe"
	RegionAsia         Region = "Asia"
	RegionGlobal       Region = "Global"
)

// EventType tags a narrative event.
type EventType string

const (
	EventPositive  EventType = "positive"
	EventNegative  EventType = "negative"
	EventNeutral   EventType = "neutral"
	EventSplit     EventType = "split"
	EventMerger    EventType = "merger"
	EventAlliance  EventType = "alliance"
	EventPolitical EventType = "political"
	EventDisaster  EventType = "disaster"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Bar is one day of OHLC data plus traded volume in shares.
type Bar struct {
	Day    int     `json:"day"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// IndexPoint is one day of the equal-weighted market index.
type IndexPoint struct {
	Day   int     `json:"day"`
	Price float64 `json:"price"`
}

// NetWorthPoint is one day of an investor's cash plus marked-to-market holdings.
type NetWorthPoint struct {
	Day   int             `json:"day"`
	Value decimal.Decimal `json:"value"`
}

// CorporateAI holds the three decision networks owned by a single stock.
type CorporateAI struct {
	NextActionDay int         `json:"next_action_day"`
	Split         *nn.Network `json:"split"`
	Alliance      *nn.Network `json:"alliance"`
	Acquisition   *nn.Network `json:"acquisition"`
	LearningRate  float64     `json:"learning_rate"`
}

// Stock is a listed company. A delisted stock is frozen.
type Stock struct {
	Symbol            string      `json:"symbol"`
	Name              string      `json:"name"`
	Sector            string      `json:"sector"`
	Region            Region      `json:"region"`
	History           []Bar       `json:"history"`
	AI                CorporateAI `json:"corporate_ai"`
	Delisted          bool        `json:"delisted"`
	SharesOutstanding float64     `json:"shares_outstanding"`
	EPS               float64     `json:"eps"`
}

// LastBar returns the current day's bar. Callers must not use it on a stock
// without history.
func (s *Stock) LastBar() *Bar {
	return &s.History[len(s.History)-1]
}

// Price is the latest close, or 0 without history.
func (s *Stock) Price() float64 {
	if len(s.History) == 0 {
		return 0
	}
	return s.History[len(s.History)-1].Close
}

// ShareLot is one purchase of shares, consumed oldest-first on sale.
type ShareLot struct {
	PurchaseTime  time.Time          `json:"purchase_time"`
	PurchasePrice decimal.Decimal    `json:"purchase_price"`
	Shares        int64              `json:"shares"`
	Indicators    map[string]float64 `json:"indicators,omitempty"`
}

// PendingTrade is an agent trade awaiting outcome scoring.
type PendingTrade struct {
	Symbol        string    `json:"symbol"`
	Day           int       `json:"day"`
	Side          Side      `json:"side"`
	Shares        int64     `json:"shares"`
	Price         float64   `json:"price"`
	Inputs        []float64 `json:"inputs"`
	EvaluationDay int       `json:"evaluation_day"`
}

// Investor is a market participant, either an AI agent or the human player.
type Investor struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Human           bool                  `json:"human"`
	StrategyName    string                `json:"strategy_name,omitempty"`
	Strategy        Strategy              `json:"strategy"`
	Cash            decimal.Decimal       `json:"cash"`
	Portfolio       map[string][]ShareLot `json:"portfolio"`
	NetWorthHistory []NetWorthPoint       `json:"net_worth_history"`
	TotalTaxesPaid  decimal.Decimal       `json:"total_taxes_paid"`
	LongTermGains   decimal.Decimal       `json:"long_term_gains"`
	ShortTermGains  decimal.Decimal       `json:"short_term_gains"`
	Jurisdiction    string                `json:"jurisdiction"`
	RecentTrades    []PendingTrade        `json:"recent_trades,omitempty"`
}

// SharesOwned sums the lot sizes held for symbol.
func (inv *Investor) SharesOwned(symbol string) int64 {
	var n int64
	for _, lot := range inv.Portfolio[symbol] {
		n += lot.Shares
	}
	return n
}

// SplitDetails describes a stock split event.
type SplitDetails struct {
	Symbol string `json:"symbol"`
	Ratio  int    `json:"ratio"`
}

// MergerDetails describes an acquisition event.
type MergerDetails struct {
	Acquiring string `json:"acquiring"`
	Acquired  string `json:"acquired"`
}

// AllianceDetails describes a strategic alliance event.
type AllianceDetails struct {
	Partners []string `json:"partners"`
}

// Event is a macro or corporate narrative event. An empty Symbol marks a
// macro event.
type Event struct {
	ID          string           `json:"id"`
	Day         int              `json:"day"`
	Symbol      string           `json:"symbol,omitempty"`
	StockName   string           `json:"stock_name,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Type        EventType        `json:"type"`
	Impact      *Impact          `json:"impact,omitempty"`
	Region      Region           `json:"region,omitempty"`
	Split       *SplitDetails    `json:"split,omitempty"`
	Merger      *MergerDetails   `json:"merger,omitempty"`
	Alliance    *AllianceDetails `json:"alliance,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`

	ImageURL         string `json:"image_url,omitempty"`
	Headline         string `json:"headline"`
	Summary          string `json:"summary"`
	FullText         string `json:"full_text,omitempty"`
	NarrativePending bool   `json:"narrative_pending,omitempty"`
}

// IsMacro reports whether the event has no source stock.
func (e *Event) IsMacro() bool { return e.Symbol == "" }

// ActionKind names a corporate action tracked for learning.
type ActionKind string

const (
	ActionSplit       ActionKind = "split"
	ActionAlliance    ActionKind = "alliance"
	ActionAcquisition ActionKind = "acquisition"
)

// TrackedAction is a corporate action awaiting outcome scoring.
type TrackedAction struct {
	StartDay      int        `json:"start_day"`
	EvaluationDay int        `json:"evaluation_day"`
	Symbol        string     `json:"symbol"`
	Action        ActionKind `json:"action"`
	Inputs        []float64  `json:"inputs"`
	StartPrice    float64    `json:"start_price"`
	StartIndex    float64    `json:"start_index"`
}

// TrackedArticle is generated text awaiting outcome feedback.
type TrackedArticle struct {
	EventID       string  `json:"event_id"`
	EvaluationDay int     `json:"evaluation_day"`
	GeneratedText string  `json:"generated_text"`
	StartIndex    float64 `json:"start_index"`
	Symbol        string  `json:"symbol,omitempty"`
	StartPrice    float64 `json:"start_price,omitempty"`
}

// TextModel is the learned state of the text generator. The engine stores
// and round-trips it without interpreting it. Values are never mutated in
// place: updates produce a new TextModel that may share untouched rows.
type TextModel struct {
	Order       int                           `json:"order"`
	Transitions map[string]map[string]float64 `json:"transitions"`
}

// State is a complete simulation snapshot. A State returned by the engine is
// never mutated again; every operation produces a new one.
type State struct {
	Day               int              `json:"day"`
	Time              time.Time        `json:"time"`
	StartDate         time.Time        `json:"start_date"`
	BootstrapDay      int              `json:"bootstrap_day"`
	Stocks            []*Stock         `json:"stocks"`
	Investors         []*Investor      `json:"investors"`
	ActiveEvent       *Event           `json:"active_event,omitempty"`
	EventHistory      []Event          `json:"event_history"`
	MarketIndex       []IndexPoint     `json:"market_index"`
	NextMacroEventDay int              `json:"next_macro_event_day"`
	TrackedActions    []TrackedAction  `json:"tracked_actions"`
	TrackedArticles   []TrackedArticle `json:"tracked_articles"`
	TextModel         *TextModel       `json:"text_model,omitempty"`
}

// Stock returns the stock with symbol, or nil.
func (s *State) Stock(symbol string) *Stock {
	for _, st := range s.Stocks {
		if st.Symbol == symbol {
			return st
		}
	}
	return nil
}

// Investor returns the investor with id, or nil.
func (s *State) Investor(id string) *Investor {
	for _, inv := range s.Investors {
		if inv.ID == id {
			return inv
		}
	}
	return nil
}

// StockIndex builds a symbol lookup for the current stocks.
func (s *State) StockIndex() map[string]*Stock {
	idx := make(map[string]*Stock, len(s.Stocks))
	for _, st := range s.Stocks {
		idx[st.Symbol] = st
	}
	return idx
}

// MarketIndexLevel is the latest market index value, or 0.
func (s *State) MarketIndexLevel() float64 {
	if len(s.MarketIndex) == 0 {
		return 0
	}
	return s.MarketIndex[len(s.MarketIndex)-1].Price
}

// Snapshot is a persisted copy of a State.
type Snapshot struct {
	ID      string    `json:"id"`
	Day     int       `json:"day"`
	Time    time.Time `json:"time"`
	TakenAt time.Time `json:"taken_at"`
	State   *State    `json:"state"`
}

// LedgerEntry is an immutable record of a player order execution.
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	InvestorID string          `json:"investor_id" db:"investor_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Shares     int64           `json:"shares" db:"shares"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Cost       decimal.Decimal `json:"cost" db:"cost"` // signed: +buy, -sell
	Day        int             `json:"day" db:"day"`
	SimTime    time.Time       `json:"sim_time" db:"sim_time"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}
