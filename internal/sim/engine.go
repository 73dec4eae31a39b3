// Package sim advances the market simulation: intraday ticks, agent
// trading, end-of-day bookkeeping, corporate and macro events.
//
// Every public entry point takes a prior *model.State and returns a new one.
// The prior state is never mutated, so callers may keep it for diffing or
// rollback. An Engine is not safe for concurrent use; the state has a single
// logical owner at a time.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/tax"
)

// TextGenerator writes narrative for events and adapts to their outcomes.
// Implementations must treat *model.TextModel values as immutable and
// return a new model from Learn and Refine.
type TextGenerator interface {
	NewModel() *model.TextModel
	Generate(m *model.TextModel, req model.ArticleRequest) (model.Article, error)
	Learn(m *model.TextModel, generated string, outcome float64) *model.TextModel
	Refine(m *model.TextModel) *model.TextModel
}

// ImageLookup returns an opaque illustration reference for a headline.
type ImageLookup interface {
	Lookup(headline string, keywords ...string) (string, error)
}

// Config holds the engine tunables.
type Config struct {
	// ChunkSize bounds one market tick.
	ChunkSize time.Duration
	// MaxRealTime is the wall-clock budget of one Advance call. Zero or
	// negative disables the valve.
	MaxRealTime time.Duration
	// SessionHours is the length of a trading session used to scale
	// per-tick probabilities and order sizes.
	SessionHours float64

	// Learning horizons in days.
	TradeHorizon       int
	ArticleHorizon     int
	SplitHorizon       int
	AllianceHorizon    int
	AcquisitionHorizon int

	// Corporate decision thresholds on the network output.
	SplitThreshold       float64
	AllianceThreshold    float64
	AcquisitionThreshold float64
	MinSplitPrice        float64
	// Next corporate action is scheduled ActionIntervalMin plus a random
	// number of days below ActionIntervalRange after an action is taken.
	ActionIntervalMin   int
	ActionIntervalRange int
	// PartnerFallbackChance is the probability of ignoring regional
	// partners and searching the whole sector.
	PartnerFallbackChance float64
	AllianceBump          float64
	AcquirerBump          float64
	TargetBump            float64
	// AcquisitionCapRatio caps a target's market cap relative to the acquirer.
	AcquisitionCapRatio float64

	// Macro event scheduling and selection bias.
	FirstMacroMin        int
	FirstMacroRange      int
	MacroIntervalMin     int
	MacroIntervalRange   int
	MacroBiasMomentum    float64
	MacroBiasProbability float64
	// SpilloverFactor dampens a regional impact applied to other regions.
	SpilloverFactor float64

	MinorNewsProbability  float64
	MinorNewsNeutralShare float64

	// Agent order sizing.
	NeuralBuyFraction  float64
	NeuralSellFraction float64
	NoiseMinCash       float64
	NoiseMaxFraction   float64

	// Price dynamics.
	ImpactFactor    float64
	MaxTickMove     float64
	ChaosVolatility float64
	MinPrice        float64

	// Bounded histories. HistoryMargin is added to the catalog history
	// length to get the price and index window.
	EventHistoryCap int
	NetWorthCap     int
	HistoryMargin   int

	TaxPeriodDays int

	Logger *slog.Logger
}

// DefaultConfig returns a Config with the standard simulation tuning.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    10 * time.Minute,
		MaxRealTime:  100 * time.Millisecond,
		SessionHours: 6.5,

		TradeHorizon:       5,
		ArticleHorizon:     10,
		SplitHorizon:       60,
		AllianceHorizon:    90,
		AcquisitionHorizon: 180,

		SplitThreshold:        0.80,
		AllianceThreshold:     0.85,
		AcquisitionThreshold:  0.90,
		MinSplitPrice:         250,
		ActionIntervalMin:     20,
		ActionIntervalRange:   30,
		PartnerFallbackChance: 0.1,
		AllianceBump:          1.03,
		AcquirerBump:          1.05,
		TargetBump:            1.15,
		AcquisitionCapRatio:   0.5,

		FirstMacroMin:        200,
		FirstMacroRange:      165,
		MacroIntervalMin:     15,
		MacroIntervalRange:   20,
		MacroBiasMomentum:    0.05,
		MacroBiasProbability: 0.7,
		SpilloverFactor:      0.25,

		MinorNewsProbability:  0.15,
		MinorNewsNeutralShare: 0.8,

		NeuralBuyFraction:  0.2,
		NeuralSellFraction: 0.5,
		NoiseMinCash:       10,
		NoiseMaxFraction:   0.5,

		ImpactFactor:    0.1,
		MaxTickMove:     0.1,
		ChaosVolatility: 0.15,
		MinPrice:        0.01,

		EventHistoryCap: 100,
		NetWorthCap:     200,
		HistoryMargin:   50,

		TaxPeriodDays: 365,
	}
}

// Engine runs the simulation over a static catalog.
type Engine struct {
	cfg    Config
	cat    *catalog.Catalog
	taxes  *tax.Registry
	rng    *rand.Rand
	text   TextGenerator
	images ImageLookup
	now    func() time.Time
	log    *slog.Logger

	// emitted collects every event published during one AdvanceEvents
	// call, including those later evicted from the bounded history.
	emitted *[]model.Event
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRand sets the random source. Two engines with equally seeded sources
// and the same collaborators produce identical simulations.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithTextGenerator sets the narrative collaborator.
func WithTextGenerator(g TextGenerator) Option {
	return func(e *Engine) { e.text = g }
}

// WithImageLookup sets the illustration collaborator.
func WithImageLookup(l ImageLookup) Option {
	return func(e *Engine) { e.images = l }
}

// WithClock overrides the wall clock used by the real-time valve.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over cat.
func New(cat *catalog.Catalog, cfg Config, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("sim: nil catalog")
	}
	taxes, err := cat.TaxRegistry()
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("sim: chunk size must be positive, got %s", cfg.ChunkSize)
	}
	if cfg.SessionHours <= 0 {
		return nil, fmt.Errorf("sim: session hours must be positive")
	}

	e := &Engine{
		cfg:    cfg,
		cat:    cat,
		taxes:  taxes,
		now:    time.Now,
		log:    cfg.Logger,
		text:   noopText{},
		images: noopImages{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if e.text == nil {
		e.text = noopText{}
	}
	if e.images == nil {
		e.images = noopImages{}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e, nil
}

// Catalog returns the static tables the engine runs on.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Config returns the engine tuning.
func (e *Engine) Config() Config { return e.cfg }

// historyCap is the sliding window for price and index history.
func (e *Engine) historyCap() int {
	return e.cat.Simulation.HistoryLength + e.cfg.HistoryMargin
}

// noopText echoes the event descriptor and never learns.
type noopText struct{}

func (noopText) NewModel() *model.TextModel { return &model.TextModel{} }

func (noopText) Generate(_ *model.TextModel, req model.ArticleRequest) (model.Article, error) {
	return model.Article{Headline: req.Name, Summary: req.Description, FullText: req.Description}, nil
}

func (noopText) Learn(m *model.TextModel, _ string, _ float64) *model.TextModel { return m }

func (noopText) Refine(m *model.TextModel) *model.TextModel { return m }

type noopImages struct{}

func (noopImages) Lookup(string, ...string) (string, error) { return "", nil }
