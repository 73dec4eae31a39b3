package model

import "github.com/atmx/market-sim/internal/nn"

// StrategyKind is the discriminant of Strategy.
type StrategyKind string

const (
	StrategyNeural  StrategyKind = "hyperComplex"
	StrategyNoise   StrategyKind = "random"
	StrategySimple  StrategyKind = "simple"
	StrategyComplex StrategyKind = "complex"
)

// Strategy is a tagged union: Kind selects which variant pointer is set.
// The simple and complex variants are carried in the data model but the
// agent loop does not trade them.
type Strategy struct {
	Kind    StrategyKind     `json:"kind"`
	Neural  *NeuralStrategy  `json:"neural,omitempty"`
	Noise   *NoiseStrategy   `json:"noise,omitempty"`
	Simple  *SimpleStrategy  `json:"simple,omitempty"`
	Complex *ComplexStrategy `json:"complex,omitempty"`
}

// NeuralStrategy scores stocks with a network over the indicator vector.
type NeuralStrategy struct {
	Network        *nn.Network `json:"network"`
	RiskAversion   float64     `json:"risk_aversion"`
	TradeFrequency int         `json:"trade_frequency"`
	LearningRate   float64     `json:"learning_rate"`
}

// NoiseStrategy trades each open stock with probability TradeChance per
// session.
type NoiseStrategy struct {
	TradeChance float64 `json:"trade_chance"`
}

type SimpleStrategy struct {
	PriceMomentumWeight float64 `json:"price_momentum_weight"`
	VolatilityWeight    float64 `json:"volatility_weight"`
	RiskAversion        float64 `json:"risk_aversion"`
}

type ComplexWeights struct {
	Growth float64 `json:"growth"`
	Value  float64 `json:"value"`
	Trend  float64 `json:"trend"`
	Safety float64 `json:"safety"`
}

type ComplexStrategy struct {
	Weights        ComplexWeights `json:"weights"`
	RiskAversion   float64        `json:"risk_aversion"`
	TradeFrequency int            `json:"trade_frequency"`
}

// NewNeuralStrategy wraps s in a Strategy.
func NewNeuralStrategy(s NeuralStrategy) Strategy {
	return Strategy{Kind: StrategyNeural, Neural: &s}
}

// NewNoiseStrategy wraps a noise trader with the given per-session chance.
func NewNoiseStrategy(tradeChance float64) Strategy {
	return Strategy{Kind: StrategyNoise, Noise: &NoiseStrategy{TradeChance: tradeChance}}
}

// Clone deep-copies the active variant, including any network.
func (s Strategy) Clone() Strategy {
	c := Strategy{Kind: s.Kind}
	if s.Neural != nil {
		n := *s.Neural
		n.Network = s.Neural.Network.Clone()
		c.Neural = &n
	}
	if s.Noise != nil {
		n := *s.Noise
		c.Noise = &n
	}
	if s.Simple != nil {
		n := *s.Simple
		c.Simple = &n
	}
	if s.Complex != nil {
		n := *s.Complex
		c.Complex = &n
	}
	return c
}
