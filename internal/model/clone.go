package model

// Clone returns a deep copy of the state. Networks are copied so that no
// two states share weights. The text model is shared because it is never
// mutated in place.
func (s *State) Clone() *State {
	c := *s

	c.Stocks = make([]*Stock, len(s.Stocks))
	for i, st := range s.Stocks {
		c.Stocks[i] = st.Clone()
	}
	c.Investors = make([]*Investor, len(s.Investors))
	for i, inv := range s.Investors {
		c.Investors[i] = inv.Clone()
	}
	if s.ActiveEvent != nil {
		ev := s.ActiveEvent.Clone()
		c.ActiveEvent = &ev
	}
	c.EventHistory = make([]Event, len(s.EventHistory))
	for i := range s.EventHistory {
		c.EventHistory[i] = s.EventHistory[i].Clone()
	}
	c.MarketIndex = append([]IndexPoint(nil), s.MarketIndex...)

	c.TrackedActions = make([]TrackedAction, len(s.TrackedActions))
	for i, a := range s.TrackedActions {
		a.Inputs = append([]float64(nil), a.Inputs...)
		c.TrackedActions[i] = a
	}
	c.TrackedArticles = append([]TrackedArticle(nil), s.TrackedArticles...)
	return &c
}

// ShallowWithInvestor returns a copy of s whose investor list is copied and
// whose investor id is deep-copied. Everything else is shared with s, so the
// result must only be used to change that investor.
func (s *State) ShallowWithInvestor(id string) (*State, *Investor) {
	c := *s
	c.Investors = make([]*Investor, len(s.Investors))
	var target *Investor
	for i, inv := range s.Investors {
		if inv.ID == id {
			target = inv.Clone()
			c.Investors[i] = target
			continue
		}
		c.Investors[i] = inv
	}
	return &c, target
}

// Clone returns a deep copy of the stock.
func (s *Stock) Clone() *Stock {
	c := *s
	c.History = append([]Bar(nil), s.History...)
	c.AI.Split = s.AI.Split.Clone()
	c.AI.Alliance = s.AI.Alliance.Clone()
	c.AI.Acquisition = s.AI.Acquisition.Clone()
	return &c
}

// Clone returns a deep copy of the investor.
func (inv *Investor) Clone() *Investor {
	c := *inv
	c.Strategy = inv.Strategy.Clone()
	c.Portfolio = make(map[string][]ShareLot, len(inv.Portfolio))
	for sym, lots := range inv.Portfolio {
		cp := make([]ShareLot, len(lots))
		copy(cp, lots)
		c.Portfolio[sym] = cp
	}
	c.NetWorthHistory = append([]NetWorthPoint(nil), inv.NetWorthHistory...)
	if inv.RecentTrades != nil {
		c.RecentTrades = make([]PendingTrade, len(inv.RecentTrades))
		for i, t := range inv.RecentTrades {
			t.Inputs = append([]float64(nil), t.Inputs...)
			c.RecentTrades[i] = t
		}
	}
	return &c
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	c := e
	c.Impact = e.Impact.Clone()
	c.Keywords = append([]string(nil), e.Keywords...)
	if e.Split != nil {
		sp := *e.Split
		c.Split = &sp
	}
	if e.Merger != nil {
		m := *e.Merger
		c.Merger = &m
	}
	if e.Alliance != nil {
		c.Alliance = &AllianceDetails{Partners: append([]string(nil), e.Alliance.Partners...)}
	}
	return c
}
