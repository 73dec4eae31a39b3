package sim

import (
	"math"
	"testing"
	"time"

	"github.com/atmx/market-sim/internal/market"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/nn"
)

// friday is 14:00 UTC on a Friday: North America and Europe trade, Asia
// is closed.
var friday = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func firstInvestor(t *testing.T, s *model.State, kind model.StrategyKind) *model.Investor {
	t.Helper()
	for _, inv := range s.Investors {
		if !inv.Human && inv.Strategy.Kind == kind {
			return inv
		}
	}
	t.Fatalf("no %s investor in roster", kind)
	return nil
}

// biasOutput pins the output neuron near tanh(bias) whatever the inputs.
func biasOutput(net *nn.Network, bias float64) {
	last := net.Biases[len(net.Biases)-1]
	for j := range last {
		last[j] = bias
	}
}

func TestNeuralTrades_BuysOnlyOpenMarkets(t *testing.T) {
	env := newTestEnv(t)
	s := env.state.Clone()
	s.Day++
	inv := firstInvestor(t, s, model.StrategyNeural)
	inv.Cash = d(100000)
	inv.Strategy.Neural.TradeFrequency = 1
	biasOutput(inv.Strategy.Neural.Network, 10)

	open := market.At(friday)
	f := newFlow(len(s.Stocks))
	cache := newSignals(s, env.engine.cat.Neurons.Indicator)
	nat1 := s.Stock("NAT1").Price()

	env.engine.neuralTrades(s, inv, friday, 1, open, cache, f)

	if want := int64(math.Floor(100000 * env.engine.cfg.NeuralBuyFraction / nat1)); inv.SharesOwned("NAT1") != want {
		t.Errorf("NAT1: expected %d shares, got %d", want, inv.SharesOwned("NAT1"))
	}
	for _, sym := range []string{"NAT2", "EUT1"} {
		if inv.SharesOwned(sym) == 0 {
			t.Errorf("%s: expected a buy on an open market", sym)
		}
	}
	if got := inv.SharesOwned("ASF1"); got != 0 {
		t.Errorf("ASF1: bought %d shares while Asia is closed", got)
	}
	if f.volume[3] != 0 {
		t.Errorf("ASF1: expected no order flow, got %d", f.volume[3])
	}

	if len(inv.RecentTrades) != 3 {
		t.Fatalf("expected 3 recorded trades, got %d", len(inv.RecentTrades))
	}
	for _, tr := range inv.RecentTrades {
		if tr.Side != model.SideBuy {
			t.Errorf("%s: expected BUY, got %s", tr.Symbol, tr.Side)
		}
		if tr.Day != s.Day || tr.EvaluationDay != s.Day+env.engine.cfg.TradeHorizon {
			t.Errorf("%s: recorded day %d, evaluation day %d", tr.Symbol, tr.Day, tr.EvaluationDay)
		}
		if len(tr.Inputs) != len(env.engine.cat.Neurons.Indicator) {
			t.Errorf("%s: expected %d inputs, got %d", tr.Symbol, len(env.engine.cat.Neurons.Indicator), len(tr.Inputs))
		}
	}
}

func TestNeuralTrades_SellsHalfOnBearishScore(t *testing.T) {
	env := newTestEnv(t)
	s := env.state.Clone()
	s.Day++
	inv := firstInvestor(t, s, model.StrategyNeural)
	inv.Strategy.Neural.TradeFrequency = 1
	biasOutput(inv.Strategy.Neural.Network, -10)
	price := s.Stock("NAT1").Price()
	inv.Cash = d(price * 100)
	buy(inv, "NAT1", 100, d(price), friday.Add(-48*time.Hour), nil)

	f := newFlow(len(s.Stocks))
	env.engine.neuralTrades(s, inv, friday, 1, market.At(friday), newSignals(s, env.engine.cat.Neurons.Indicator), f)

	if got := inv.SharesOwned("NAT1"); got != 50 {
		t.Errorf("expected 50 shares left, got %d", got)
	}
	if f.net[0] != -50 {
		t.Errorf("expected net flow -50, got %d", f.net[0])
	}
	if len(inv.RecentTrades) != 1 || inv.RecentTrades[0].Side != model.SideSell || inv.RecentTrades[0].Shares != 50 {
		t.Errorf("expected one 50-share SELL record, got %+v", inv.RecentTrades)
	}
}

func TestNeuralTrades_HoldsInsideRiskBand(t *testing.T) {
	env := newTestEnv(t)
	s := env.state.Clone()
	s.Day++
	inv := firstInvestor(t, s, model.StrategyNeural)
	inv.Cash = d(100000)
	inv.Strategy.Neural.TradeFrequency = 1
	net := inv.Strategy.Neural.Network
	for l := range net.Weights {
		for i := range net.Weights[l] {
			clear(net.Weights[l][i])
		}
		clear(net.Biases[l])
	}

	env.engine.neuralTrades(s, inv, friday, 1, market.At(friday), newSignals(s, env.engine.cat.Neurons.Indicator), newFlow(len(s.Stocks)))

	if len(inv.Portfolio) != 0 || len(inv.RecentTrades) != 0 {
		t.Errorf("a zero score should not trade, got portfolio %v", inv.Portfolio)
	}
}

func TestNoiseTrades_OpenMarketsOnlyAndUnrecorded(t *testing.T) {
	env := newTestEnv(t)
	s := env.state.Clone()
	s.Day++
	inv := firstInvestor(t, s, model.StrategyNoise)
	inv.Cash = d(100000)
	inv.Strategy.Noise.TradeChance = 1

	f := newFlow(len(s.Stocks))
	open := market.At(friday)
	for i := 0; i < 20; i++ {
		env.engine.noiseTrades(s, inv, friday, 1, open, f)
	}

	traded := f.volume[0] + f.volume[1] + f.volume[2]
	if traded == 0 {
		t.Error("expected noise trades on open markets")
	}
	if f.volume[3] != 0 || inv.SharesOwned("ASF1") != 0 {
		t.Error("noise trader touched a closed market")
	}
	if len(inv.RecentTrades) != 0 {
		t.Errorf("noise trades should not be queued for learning, got %d", len(inv.RecentTrades))
	}
	if inv.Cash.IsNegative() {
		t.Errorf("cash went negative: %s", inv.Cash)
	}
}

func TestRunAgents_ClosedMarketBlocksFiringDecision(t *testing.T) {
	env := newTestEnv(t)
	s := env.state.Clone()
	s.Day++
	for _, inv := range s.Investors {
		if inv.Human || inv.Strategy.Kind != model.StrategyNeural {
			continue
		}
		inv.Cash = d(100000)
		inv.Strategy.Neural.TradeFrequency = 1
		biasOutput(inv.Strategy.Neural.Network, 10)
	}

	env.engine.runAgents(s, friday, env.engine.cfg.SessionHours, market.At(friday), newFlow(len(s.Stocks)))

	bought := false
	for _, inv := range s.Investors {
		if inv.SharesOwned("ASF1") != 0 {
			t.Errorf("%s bought ASF1 while Asia is closed", inv.ID)
		}
		if inv.Strategy.Kind == model.StrategyNeural && inv.SharesOwned("NAT1") > 0 {
			bought = true
		}
	}
	if !bought {
		t.Error("expected bullish agents to buy on the open North American market")
	}
}
