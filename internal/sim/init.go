package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/nn"
)

const day = 24 * time.Hour

// Ranges for randomized company fundamentals.
const (
	minSharesOutstanding   = 50_000_000
	sharesOutstandingRange = 150_000_000
	minEPS                 = 1.0
	epsRange               = 4.0
	minCorporateRate       = 0.01
	corporateRateRange     = 0.04

	minSeedVolume   = 200_000
	seedVolumeRange = 800_000
	seedDrift       = 0.49
	seedMove        = 0.05
	seedWick        = 0.02
)

// Realistic region weights: the first 60% of a shuffled universe lists in
// North America, the next 25% in Asia and the rest in Europe.
const (
	northAmericaShare = 0.60
	asiaShare         = 0.25
)

// InitOptions selects how a fresh simulation is seeded.
type InitOptions struct {
	// Realistic shuffles the universe and reassigns regions by position
	// (60% North America, 25% Asia, the rest Europe) instead of using the
	// catalog regions.
	Realistic bool
	// Start is the epoch of the generated history. Zero uses the catalog.
	Start time.Time
}

// Initialize builds a fresh state: a random-walk price history for every
// stock, the investor roster and the market index over the history. The
// clock is placed HistoryLength days after Start, and that first day runs
// as the bootstrap period.
func (e *Engine) Initialize(opts InitOptions) *model.State {
	cfg := e.cat.Simulation
	start := opts.Start
	if start.IsZero() {
		start = cfg.Start
	}
	start = start.UTC()
	length := cfg.HistoryLength

	specs := e.stockSpecs(opts.Realistic)
	stocks := make([]*model.Stock, len(specs))
	for i, sp := range specs {
		p0 := cfg.MinInitialPrice + e.rng.Float64()*(cfg.MaxInitialPrice-cfg.MinInitialPrice)
		stocks[i] = &model.Stock{
			Symbol:  sp.Symbol,
			Name:    sp.Name,
			Sector:  sp.Sector,
			Region:  sp.Region,
			History: e.seedHistory(length, p0),
			AI: model.CorporateAI{
				NextActionDay: length + e.cfg.ActionIntervalMin + e.intN(e.cfg.ActionIntervalRange),
				Split:         e.corporateNetwork(),
				Alliance:      e.corporateNetwork(),
				Acquisition:   e.corporateNetwork(),
				LearningRate:  minCorporateRate + e.rng.Float64()*corporateRateRange,
			},
			SharesOutstanding: minSharesOutstanding + e.rng.Float64()*sharesOutstandingRange,
			EPS:               minEPS + e.rng.Float64()*epsRange,
		}
	}

	index := make([]model.IndexPoint, length)
	for i := range index {
		var sum float64
		for _, st := range stocks {
			sum += st.History[i].Close
		}
		index[i] = model.IndexPoint{Day: i + 1, Price: sum / float64(len(stocks))}
	}

	investors := e.buildRoster(length)

	s := &model.State{
		Day:               length,
		Time:              start.Add(time.Duration(length) * day),
		StartDate:         start.Truncate(day),
		BootstrapDay:      length,
		Stocks:            stocks,
		Investors:         investors,
		EventHistory:      []model.Event{},
		MarketIndex:       index,
		NextMacroEventDay: length + e.cfg.FirstMacroMin + e.intN(e.cfg.FirstMacroRange),
		TrackedActions:    []model.TrackedAction{},
		TrackedArticles:   []model.TrackedArticle{},
		TextModel:         e.text.NewModel(),
	}
	s.Day = dayOf(s)

	e.log.Info("simulation initialized",
		"stocks", len(stocks),
		"investors", len(investors),
		"day", s.Day,
		"time", s.Time,
		"realistic", opts.Realistic,
	)
	return s
}

// stockSpecs returns the universe in catalog order. With realistic regions
// the universe is shuffled, assigned regions by position and restored to
// catalog order.
func (e *Engine) stockSpecs(realistic bool) []catalog.StockSpec {
	specs := append([]catalog.StockSpec(nil), e.cat.Stocks...)
	if !realistic {
		return specs
	}
	order := make([]int, len(specs))
	for i := range order {
		order[i] = i
	}
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	na := int(math.Floor(float64(len(specs)) * northAmericaShare))
	asia := int(math.Floor(float64(len(specs)) * asiaShare))
	for pos, idx := range order {
		switch {
		case pos < na:
			specs[idx].Region = model.RegionNorthAmerica
		case pos < na+asia:
			specs[idx].Region = model.RegionAsia
		default:
			specs[idx].Region = model.RegionEurope
		}
	}
	return specs
}

// seedHistory generates n daily bars by a slightly upward-biased random walk.
func (e *Engine) seedHistory(n int, p0 float64) []model.Bar {
	bars := make([]model.Bar, n)
	last := p0
	for i := range bars {
		open := last
		volume := minSeedVolume + e.rng.Float64()*seedVolumeRange
		change := (e.rng.Float64() - seedDrift) * seedMove
		cl := math.Max(e.cfg.MinPrice, open*(1+change))
		bars[i] = model.Bar{
			Day:    i + 1,
			Open:   open,
			High:   math.Max(open, cl) * (1 + e.rng.Float64()*seedWick),
			Low:    math.Min(open, cl) * (1 - e.rng.Float64()*seedWick),
			Close:  cl,
			Volume: int64(math.Round(volume)),
		}
		last = cl
	}
	return bars
}

func (e *Engine) corporateNetwork() *nn.Network {
	names := e.cat.Neurons.Corporate
	sizes := append([]int{len(names)}, e.cat.Neurons.CorporateHidden...)
	return nn.MustNew(append(sizes, 1), names, e.rng)
}

func (e *Engine) agentNetwork(hidden []int) *nn.Network {
	names := e.cat.Neurons.Indicator
	sizes := append([]int{len(names)}, hidden...)
	return nn.MustNew(append(sizes, 1), names, e.rng)
}

type seat struct {
	n   int
	inv *model.Investor
}

// buildRoster creates the AI population, converts the tail of a shuffled
// order into noise traders, promotes the head through the catalog tiers and
// the oracle, then restores id order behind the human player.
func (e *Engine) buildRoster(historyLength int) []*model.Investor {
	r := e.cat.Roster
	seed := e.cat.Simulation
	aiCash := decimal.NewFromFloat(seed.AICash)

	seats := make([]seat, r.AICount)
	for i := range seats {
		strategyName := ""
		if len(r.StrategyNames) > 0 {
			strategyName = r.StrategyNames[i%len(r.StrategyNames)]
		}
		seats[i] = seat{n: i + 1, inv: &model.Investor{
			ID:           fmt.Sprintf("ai-%d", i+1),
			Name:         fmt.Sprintf("%s #%d", r.NamePrefix, i+1),
			StrategyName: strategyName,
			Strategy: model.NewNeuralStrategy(model.NeuralStrategy{
				Network:        e.agentNetwork(r.BaseHidden),
				RiskAversion:   r.RiskAversion.Min + e.rng.Float64()*(r.RiskAversion.Max-r.RiskAversion.Min),
				TradeFrequency: int(math.Floor(r.TradeFrequency.Min + e.rng.Float64()*(r.TradeFrequency.Max-r.TradeFrequency.Min))),
				LearningRate:   r.LearningRate.Min + e.rng.Float64()*(r.LearningRate.Max-r.LearningRate.Min),
			}),
		}}
	}
	e.rng.Shuffle(len(seats), func(i, j int) { seats[i], seats[j] = seats[j], seats[i] })

	for i := 0; i < r.NoiseCount; i++ {
		inv := seats[len(seats)-1-i].inv
		if len(r.NoiseNames) > 0 {
			inv.Name = r.NoiseNames[i%len(r.NoiseNames)]
		}
		inv.StrategyName = r.NoiseStrategyName
		inv.Strategy = model.NewNoiseStrategy(r.NoiseTradeChance)
	}

	for _, tier := range r.Tiers {
		for i := 0; i < tier.Count && i < len(seats); i++ {
			inv := seats[i].inv
			st := inv.Strategy.Neural
			if st == nil {
				continue
			}
			inv.Name = fmt.Sprintf("%s #%d", tier.NamePrefix, i+1)
			inv.StrategyName = tier.StrategyName
			st.Network = e.agentNetwork(tier.Hidden)
			st.LearningRate *= tier.LearningRateMultiplier
			st.RiskAversion *= tier.RiskAversionMultiplier
		}
	}

	if o := r.Oracle; o != nil && len(seats) > 0 && seats[0].inv.Strategy.Neural != nil {
		inv := seats[0].inv
		inv.Name = o.Name
		inv.StrategyName = o.StrategyName
		st := inv.Strategy.Neural
		st.Network = e.agentNetwork(o.Hidden)
		st.LearningRate = o.LearningRate
		st.RiskAversion = o.RiskAversion
	}

	sort.Slice(seats, func(i, j int) bool { return seats[i].n < seats[j].n })

	humanCash := decimal.NewFromFloat(seed.HumanCash)
	investors := make([]*model.Investor, 0, len(seats)+1)
	investors = append(investors, e.newInvestor(&model.Investor{
		ID:    r.Human.ID,
		Name:  r.Human.Name,
		Human: true,
	}, humanCash, historyLength))
	for _, s := range seats {
		investors = append(investors, e.newInvestor(s.inv, aiCash, historyLength))
	}
	return investors
}

func (e *Engine) newInvestor(inv *model.Investor, cash decimal.Decimal, historyLength int) *model.Investor {
	inv.Cash = cash
	inv.Portfolio = make(map[string][]model.ShareLot)
	inv.NetWorthHistory = []model.NetWorthPoint{{Day: historyLength, Value: cash}}
	inv.Jurisdiction = e.cat.Simulation.DefaultJurisdiction
	return inv
}

// intN is rng.IntN that tolerates a non-positive range.
func (e *Engine) intN(n int) int {
	if n <= 0 {
		return 0
	}
	return e.rng.IntN(n)
}

// dayOf derives the simulated day from the clock.
func dayOf(s *model.State) int {
	return int(s.Time.Sub(s.StartDate) / day)
}
