package sim

import (
	"errors"
	"testing"
	"time"
)

const human = "human-player"

func TestPlayerBuySell_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	setPrice(t, env.state, "NAT1", 50)

	bought, err := env.engine.PlayerBuy(env.state, human, "NAT1", 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	inv := bought.Investor(human)
	if !inv.Cash.Equal(d(995000)) {
		t.Errorf("expected cash 995000 after buy, got %s", inv.Cash)
	}
	if got := inv.SharesOwned("NAT1"); got != 100 {
		t.Errorf("expected 100 shares, got %d", got)
	}
	if lots := inv.Portfolio["NAT1"]; len(lots) != 1 || !lots[0].PurchasePrice.Equal(d(50)) {
		t.Errorf("unexpected lots %+v", lots)
	}
	if !env.state.Investor(human).Cash.Equal(d(1000000)) {
		t.Error("buy mutated the prior state")
	}

	sold, err := env.engine.PlayerSell(bought, human, "NAT1", 100)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	inv = sold.Investor(human)
	if !inv.Cash.Equal(d(1000000)) {
		t.Errorf("expected cash restored to 1000000, got %s", inv.Cash)
	}
	if len(inv.Portfolio) != 0 {
		t.Errorf("expected empty portfolio, got %+v", inv.Portfolio)
	}
	if !inv.ShortTermGains.IsZero() || !inv.LongTermGains.IsZero() {
		t.Errorf("flat round trip should realize nothing: lt=%s st=%s", inv.LongTermGains, inv.ShortTermGains)
	}
	if bought.Investor(human).SharesOwned("NAT1") != 100 {
		t.Error("sell mutated the prior state")
	}
}

func TestPlayerSell_FIFO(t *testing.T) {
	env := newTestEnv(t)
	s := env.state

	setPrice(t, s, "NAT1", 50)
	s, err := env.engine.PlayerBuy(s, human, "NAT1", 10)
	if err != nil {
		t.Fatal(err)
	}
	setPrice(t, s, "NAT1", 60)
	s, err = env.engine.PlayerBuy(s, human, "NAT1", 10)
	if err != nil {
		t.Fatal(err)
	}
	setPrice(t, s, "NAT1", 70)
	s, err = env.engine.PlayerSell(s, human, "NAT1", 15)
	if err != nil {
		t.Fatal(err)
	}

	inv := s.Investor(human)
	lots := inv.Portfolio["NAT1"]
	if len(lots) != 1 || lots[0].Shares != 5 || !lots[0].PurchasePrice.Equal(d(60)) {
		t.Fatalf("expected one 5-share lot at 60, got %+v", lots)
	}
	// 10 x (70-50) + 5 x (70-60)
	if !inv.ShortTermGains.Equal(d(250)) {
		t.Errorf("expected short-term gains 250, got %s", inv.ShortTermGains)
	}
	if !inv.Cash.Equal(d(999950)) {
		t.Errorf("expected cash 999950, got %s", inv.Cash)
	}
}

func TestPlayerOrders_Rejected(t *testing.T) {
	env := newTestEnv(t)
	s := env.state
	setPrice(t, s, "NAT1", 50)
	s.Stock("ASF1").Delisted = true

	tests := []struct {
		name     string
		sell     bool
		investor string
		symbol   string
		shares   int64
		want     error
	}{
		{"unknown investor", false, "nobody", "NAT1", 1, ErrUnknownInvestor},
		{"unknown stock", false, human, "ZZZZ", 1, ErrUnknownStock},
		{"delisted", false, human, "ASF1", 1, ErrStockDelisted},
		{"zero shares", false, human, "NAT1", 0, ErrInvalidShares},
		{"negative shares", true, human, "NAT1", -3, ErrInvalidShares},
		{"insufficient cash", false, human, "NAT1", 20001, ErrInsufficientCash},
		{"insufficient shares", true, human, "NAT1", 1, ErrInsufficientShares},
		{"delisted sell", true, human, "ASF1", 1, ErrStockDelisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := env.engine.PlayerBuy
			if tt.sell {
				order = env.engine.PlayerSell
			}
			got, err := order(s, tt.investor, tt.symbol, tt.shares)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if got != s {
				t.Error("rejected order must return the prior state")
			}
		})
	}
	if !s.Investor(human).Cash.Equal(d(1000000)) {
		t.Errorf("rejections changed cash: %s", s.Investor(human).Cash)
	}
}

func TestPlayerBuy_ExactCash(t *testing.T) {
	env := newTestEnv(t)
	setPrice(t, env.state, "NAT1", 50)

	s, err := env.engine.PlayerBuy(env.state, human, "NAT1", 20000)
	if err != nil {
		t.Fatalf("spending all cash should succeed: %v", err)
	}
	if !s.Investor(human).Cash.IsZero() {
		t.Errorf("expected zero cash, got %s", s.Investor(human).Cash)
	}
}

func TestPlayerOrders_IgnoreMarketHours(t *testing.T) {
	env := newTestEnv(t)
	s := env.state
	// Saturday, every market closed.
	s.Time = s.StartDate.AddDate(0, 0, 61)
	for s.Time.Weekday() != time.Saturday {
		s.Time = s.Time.Add(day)
	}
	setPrice(t, s, "EUT1", 20)

	next, err := env.engine.PlayerBuy(s, human, "EUT1", 5)
	if err != nil {
		t.Fatalf("buy on a closed market: %v", err)
	}
	lot := next.Investor(human).Portfolio["EUT1"][0]
	if !lot.PurchaseTime.Equal(s.Time) {
		t.Errorf("lot should be stamped with the simulated time, got %s", lot.PurchaseTime)
	}
	if lot.Indicators != nil {
		t.Errorf("player lots carry no indicators: %+v", lot.Indicators)
	}
}
