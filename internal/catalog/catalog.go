// Package catalog holds the static tables the simulation is seeded from:
// the stock universe, event catalogs, tax regimes, operating-tax rates,
// network input vocabularies and the investor roster. The default catalog
// is embedded YAML; Load reads an alternative file so tests and operators
// can run small synthetic universes.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/market-sim/internal/indicator"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/tax"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidCatalog is returned by Validate and Load for unusable tables.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// Catalog is the full set of static tables.
type Catalog struct {
	Simulation      Simulation              `yaml:"simulation"`
	OperatingTax    map[string]float64      `yaml:"operating_tax"`
	TaxRegimes      []TaxRegime             `yaml:"tax_regimes"`
	Neurons         Neurons                 `yaml:"neurons"`
	Roster          Roster                  `yaml:"roster"`
	Speeds          []Speed                 `yaml:"speeds"`
	Stocks          []StockSpec             `yaml:"stocks"`
	CorporateEvents map[string]SectorEvents `yaml:"corporate_events"`
	MacroEvents     []EventSpec             `yaml:"macro_events"`

	bySymbol map[string]int
}

// Simulation holds initialization parameters.
type Simulation struct {
	Start               time.Time `yaml:"start"`
	HistoryLength       int       `yaml:"history_length"`
	MinInitialPrice     float64   `yaml:"min_initial_price"`
	MaxInitialPrice     float64   `yaml:"max_initial_price"`
	HumanCash           float64   `yaml:"human_cash"`
	AICash              float64   `yaml:"ai_cash"`
	AnnualInflation     float64   `yaml:"annual_inflation"`
	DefaultJurisdiction string    `yaml:"default_jurisdiction"`
}

// TaxRegime is the YAML form of tax.Regime.
type TaxRegime struct {
	Code          string  `yaml:"code"`
	LongTermRate  float64 `yaml:"long_term_rate"`
	Exemption     float64 `yaml:"exemption"`
	ShortTermRate float64 `yaml:"short_term_rate"`
}

// Neurons names the network inputs, in vector order.
type Neurons struct {
	Indicator       []string `yaml:"indicator"`
	Corporate       []string `yaml:"corporate"`
	CorporateHidden []int    `yaml:"corporate_hidden"`
}

// Range is a closed-open float interval [Min, Max).
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Roster describes how the investor population is built.
type Roster struct {
	Human             HumanSpec `yaml:"human"`
	AICount           int       `yaml:"ai_count"`
	NamePrefix        string    `yaml:"name_prefix"`
	StrategyNames     []string  `yaml:"strategy_names"`
	BaseHidden        []int     `yaml:"base_hidden"`
	RiskAversion      Range     `yaml:"risk_aversion"`
	TradeFrequency    Range     `yaml:"trade_frequency"`
	LearningRate      Range     `yaml:"learning_rate"`
	NoiseCount        int       `yaml:"noise_count"`
	NoiseTradeChance  float64   `yaml:"noise_trade_chance"`
	NoiseNames        []string  `yaml:"noise_names"`
	NoiseStrategyName string    `yaml:"noise_strategy_name"`
	Tiers             []Tier    `yaml:"tiers"`
	Oracle            *Oracle   `yaml:"oracle"`
}

// HumanSpec identifies the human player.
type HumanSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Tier upgrades the first Count shuffled neural investors.
type Tier struct {
	Count                  int     `yaml:"count"`
	NamePrefix             string  `yaml:"name_prefix"`
	StrategyName           string  `yaml:"strategy_name"`
	Hidden                 []int   `yaml:"hidden"`
	LearningRateMultiplier float64 `yaml:"learning_rate_multiplier"`
	RiskAversionMultiplier float64 `yaml:"risk_aversion_multiplier"`
}

// Oracle is the single top-tier investor.
type Oracle struct {
	Name         string  `yaml:"name"`
	StrategyName string  `yaml:"strategy_name"`
	Hidden       []int   `yaml:"hidden"`
	LearningRate float64 `yaml:"learning_rate"`
	RiskAversion float64 `yaml:"risk_aversion"`
}

// Speed is a named advance rate in simulated seconds per real second.
type Speed struct {
	Label   string `yaml:"label"`
	Seconds int    `yaml:"seconds"`
}

// StockSpec is one listed company.
type StockSpec struct {
	Symbol string       `yaml:"symbol"`
	Name   string       `yaml:"name"`
	Sector string       `yaml:"sector"`
	Region model.Region `yaml:"region"`
}

// EventSpec is a catalog event template.
type EventSpec struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Type        model.EventType `yaml:"type"`
	Impact      *model.Impact   `yaml:"impact,omitempty"`
	Region      model.Region    `yaml:"region,omitempty"`
}

// SectorEvents groups minor corporate news templates by sentiment.
type SectorEvents struct {
	Positive []EventSpec `yaml:"positive"`
	Negative []EventSpec `yaml:"negative"`
	Neutral  []EventSpec `yaml:"neutral"`
}

// Default parses the embedded catalog. It panics if the embedded file is
// invalid, which is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads and validates a catalog file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML catalog data.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal renders the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the cross-references the engine relies on.
func (c *Catalog) Validate() error {
	s := c.Simulation
	switch {
	case s.HistoryLength < 2:
		return fmt.Errorf("%w: history_length must be at least 2", ErrInvalidCatalog)
	case s.MinInitialPrice <= 0 || s.MaxInitialPrice < s.MinInitialPrice:
		return fmt.Errorf("%w: bad initial price range", ErrInvalidCatalog)
	case len(c.Stocks) == 0:
		return fmt.Errorf("%w: no stocks", ErrInvalidCatalog)
	case len(c.MacroEvents) == 0:
		return fmt.Errorf("%w: no macro events", ErrInvalidCatalog)
	case len(c.Neurons.Indicator) == 0 || len(c.Neurons.Corporate) == 0:
		return fmt.Errorf("%w: empty neuron vocabulary", ErrInvalidCatalog)
	}

	seen := make(map[string]int, len(c.Stocks))
	for i, st := range c.Stocks {
		if st.Symbol == "" {
			return fmt.Errorf("%w: stock %d has no symbol", ErrInvalidCatalog, i)
		}
		if _, dup := seen[st.Symbol]; dup {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalidCatalog, st.Symbol)
		}
		switch st.Region {
		case model.RegionNorthAmerica, model.RegionEurope, model.RegionAsia:
		default:
			return fmt.Errorf("%w: stock %s has region %q", ErrInvalidCatalog, st.Symbol, st.Region)
		}
		seen[st.Symbol] = i
	}
	c.bySymbol = seen

	for _, names := range [][]string{c.Neurons.Indicator, c.Neurons.Corporate} {
		for _, n := range names {
			if !indicator.Known(n) {
				return fmt.Errorf("%w: unknown neuron %q", ErrInvalidCatalog, n)
			}
		}
	}

	if _, err := c.TaxRegistry(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	r := c.Roster
	if r.NoiseCount > r.AICount {
		return fmt.Errorf("%w: noise_count exceeds ai_count", ErrInvalidCatalog)
	}
	for _, tier := range r.Tiers {
		if tier.Count > r.AICount-r.NoiseCount {
			return fmt.Errorf("%w: tier %q larger than neural population", ErrInvalidCatalog, tier.NamePrefix)
		}
	}
	if r.AICount > 0 && len(r.BaseHidden) == 0 {
		return fmt.Errorf("%w: base_hidden is required", ErrInvalidCatalog)
	}
	if r.AICount > r.NoiseCount && r.TradeFrequency.Min < 1 {
		return fmt.Errorf("%w: trade_frequency must be at least 1", ErrInvalidCatalog)
	}
	return nil
}

// TaxRegistry builds the jurisdiction registry.
func (c *Catalog) TaxRegistry() (*tax.Registry, error) {
	regimes := make([]tax.Regime, len(c.TaxRegimes))
	for i, r := range c.TaxRegimes {
		regimes[i] = tax.Regime{
			Code:          r.Code,
			LongTermRate:  decimal.NewFromFloat(r.LongTermRate),
			Exemption:     decimal.NewFromFloat(r.Exemption),
			ShortTermRate: decimal.NewFromFloat(r.ShortTermRate),
		}
	}
	return tax.NewRegistry(c.Simulation.DefaultJurisdiction, regimes...)
}

// OperatingTaxRate is the annual operating-tax drag for a sector, falling
// back to the "default" entry.
func (c *Catalog) OperatingTaxRate(sector string) float64 {
	if r, ok := c.OperatingTax[sector]; ok {
		return r
	}
	return c.OperatingTax["default"]
}

// StockSpec returns the catalog entry for symbol.
func (c *Catalog) StockSpec(symbol string) (StockSpec, bool) {
	i, ok := c.bySymbol[symbol]
	if !ok {
		return StockSpec{}, false
	}
	return c.Stocks[i], true
}

// Sectors lists the sectors that have minor news templates.
func (c *Catalog) Sectors() []string {
	out := make([]string, 0, len(c.CorporateEvents))
	for s := range c.CorporateEvents {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
