package sim

import (
	"math"

	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/nn"
)

// learnCorporate scores matured corporate actions by the stock's return
// relative to the market and trains the network that chose the action.
func (e *Engine) learnCorporate(s *model.State) {
	index := s.MarketIndexLevel()
	kept := make([]model.TrackedAction, 0, len(s.TrackedActions))
	for _, a := range s.TrackedActions {
		if a.EvaluationDay > s.Day {
			kept = append(kept, a)
			continue
		}
		st := s.Stock(a.Symbol)
		if st == nil || st.Delisted || a.StartPrice <= 0 || a.StartIndex <= 0 || len(a.Inputs) == 0 {
			continue
		}
		stockReturn := st.Price() / a.StartPrice
		marketReturn := index / a.StartIndex
		outcome := stockReturn - 1
		if marketReturn > 0 {
			outcome = stockReturn/marketReturn - 1
		}

		var net *nn.Network
		switch a.Action {
		case model.ActionSplit:
			net = st.AI.Split
		case model.ActionAlliance:
			net = st.AI.Alliance
		case model.ActionAcquisition:
			net = st.AI.Acquisition
		}
		if net == nil {
			continue
		}
		if err := net.Backpropagate(a.Inputs, []float64{math.Tanh(outcome * 5)}, st.AI.LearningRate); err != nil {
			e.log.Warn("corporate learning skipped", "symbol", st.Symbol, "action", a.Action, "error", err)
		}
	}
	s.TrackedActions = kept
}

// learnArticles feeds each matured article's outcome back to the text
// model: relative stock performance for corporate news, the market return
// for macro news.
func (e *Engine) learnArticles(s *model.State) {
	index := s.MarketIndexLevel()
	kept := make([]model.TrackedArticle, 0, len(s.TrackedArticles))
	for _, a := range s.TrackedArticles {
		if a.EvaluationDay > s.Day {
			kept = append(kept, a)
			continue
		}
		outcome := 1.0
		marketReturn := 1.0
		if a.StartIndex > 0 {
			marketReturn = index / a.StartIndex
		}
		if a.Symbol != "" && a.StartPrice > 0 {
			if st := s.Stock(a.Symbol); st != nil && !st.Delisted {
				stockReturn := st.Price() / a.StartPrice
				outcome = stockReturn
				if marketReturn > 0 {
					outcome = stockReturn / marketReturn
				}
			}
		} else if a.Symbol == "" {
			outcome = marketReturn
		}
		s.TextModel = e.text.Learn(s.TextModel, a.GeneratedText, outcome)
	}
	s.TrackedArticles = kept
}

// learnTrades trains each neural investor on its matured trades. The
// target is tanh(10 * return), with the return negated for sells.
func (e *Engine) learnTrades(s *model.State) {
	for _, inv := range s.Investors {
		if inv.Human || inv.Strategy.Kind != model.StrategyNeural || inv.Strategy.Neural == nil {
			continue
		}
		strat := inv.Strategy.Neural
		var kept []model.PendingTrade
		for _, t := range inv.RecentTrades {
			if t.EvaluationDay > s.Day {
				kept = append(kept, t)
				continue
			}
			st := s.Stock(t.Symbol)
			if st == nil || t.Price <= 0 || len(t.Inputs) == 0 || strat.Network == nil {
				continue
			}
			ret := st.Price()/t.Price - 1
			if t.Side == model.SideSell {
				ret = -ret
			}
			if err := strat.Network.Backpropagate(t.Inputs, []float64{math.Tanh(ret * 10)}, strat.LearningRate); err != nil {
				e.log.Warn("trade learning skipped", "investor", inv.ID, "symbol", t.Symbol, "error", err)
			}
		}
		inv.RecentTrades = kept
	}
}
