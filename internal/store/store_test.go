package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func ledgerEntry(id, investor, symbol string, side model.Side, shares int64, price float64) *model.LedgerEntry {
	cost := d(price).Mul(decimal.NewFromInt(shares))
	if side == model.SideSell {
		cost = cost.Neg()
	}
	return &model.LedgerEntry{
		ID:         id,
		InvestorID: investor,
		Symbol:     symbol,
		Side:       side,
		Shares:     shares,
		Price:      d(price),
		Cost:       cost,
		Day:        60,
		SimTime:    t0,
		Timestamp:  t0.Add(time.Second),
	}
}

// testStoreContract runs the behaviour every Store implementation shares.
func testStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("LatestSnapshot_Empty", func(t *testing.T) {
		if _, err := st.LatestSnapshot(ctx); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Snapshots", func(t *testing.T) {
		for i, day := range []int{60, 61} {
			snap := &model.Snapshot{
				ID:      fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i+1),
				Day:     day,
				Time:    t0.AddDate(0, 0, i),
				TakenAt: t0.Add(time.Duration(i) * time.Minute),
				State:   &model.State{Day: day, Time: t0.AddDate(0, 0, i), StartDate: t0.Truncate(24 * time.Hour)},
			}
			if err := st.SaveSnapshot(ctx, snap); err != nil {
				t.Fatalf("SaveSnapshot: %v", err)
			}
		}

		got, err := st.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("LatestSnapshot: %v", err)
		}
		if got.Day != 61 || got.State == nil || got.State.Day != 61 {
			t.Errorf("expected day 61 snapshot, got %+v", got)
		}
		if !got.Time.Equal(t0.AddDate(0, 0, 1)) {
			t.Errorf("expected time %v, got %v", t0.AddDate(0, 0, 1), got.Time)
		}
	})

	t.Run("Events", func(t *testing.T) {
		events := []model.Event{
			{ID: "ev-1", Day: 60, Symbol: "NAT1", Name: "Earnings beat", Type: model.EventPositive, Impact: model.ScalarImpact(1.04)},
			{ID: "ev-2", Day: 61, Name: "Eurozone Debt Crisis", Type: model.EventNegative, Region: model.RegionEurope,
				Impact: model.MapImpact(map[string]float64{"Europe": 0.9})},
			{ID: "ev-3", Day: 62, Symbol: "NAT2", Name: "Split", Type: model.EventSplit, Split: &model.SplitDetails{Symbol: "NAT2", Ratio: 3}},
		}
		if err := st.InsertEvents(ctx, events); err != nil {
			t.Fatalf("InsertEvents: %v", err)
		}
		// Re-archiving the same ids is a no-op.
		if err := st.InsertEvents(ctx, events[:2]); err != nil {
			t.Fatalf("InsertEvents (dup): %v", err)
		}

		got, err := st.ListEvents(ctx, 10)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 events, got %d", len(got))
		}
		if got[0].ID != "ev-3" || got[2].ID != "ev-1" {
			t.Errorf("expected newest first, got %s..%s", got[0].ID, got[2].ID)
		}
		if got[1].Impact == nil || !got[1].Impact.IsMap() || got[1].Impact.Map["Europe"] != 0.9 {
			t.Errorf("map impact lost: %+v", got[1].Impact)
		}
		if got[0].Split == nil || got[0].Split.Ratio != 3 {
			t.Errorf("split details lost: %+v", got[0].Split)
		}

		limited, err := st.ListEvents(ctx, 2)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(limited) != 2 || limited[0].ID != "ev-3" {
			t.Errorf("expected 2 newest events, got %d", len(limited))
		}
	})

	t.Run("Ledger", func(t *testing.T) {
		entries := []*model.LedgerEntry{
			ledgerEntry("11111111-1111-1111-1111-111111111111", "human-player", "NAT1", model.SideBuy, 10, 50.25),
			ledgerEntry("22222222-2222-2222-2222-222222222222", "human-player", "NAT2", model.SideBuy, 5, 100),
			ledgerEntry("33333333-3333-3333-3333-333333333333", "human-player", "NAT1", model.SideSell, 4, 55.5),
			ledgerEntry("44444444-4444-4444-4444-444444444444", "ai-1", "NAT1", model.SideBuy, 1, 55.5),
		}
		for _, e := range entries {
			if err := st.InsertLedgerEntry(ctx, e); err != nil {
				t.Fatalf("InsertLedgerEntry: %v", err)
			}
		}

		mine, err := st.GetLedgerEntriesByInvestor(ctx, "human-player")
		if err != nil {
			t.Fatalf("GetLedgerEntriesByInvestor: %v", err)
		}
		if len(mine) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(mine))
		}
		if !mine[0].Price.Equal(d(50.25)) || !mine[0].Cost.Equal(d(502.5)) {
			t.Errorf("expected price 50.25 cost 502.5, got %s %s", mine[0].Price, mine[0].Cost)
		}
		if mine[2].Side != model.SideSell || !mine[2].Cost.Equal(d(-222)) {
			t.Errorf("expected sell with cost -222, got %s %s", mine[2].Side, mine[2].Cost)
		}
		if !mine[0].SimTime.Equal(t0) {
			t.Errorf("expected sim time %v, got %v", t0, mine[0].SimTime)
		}

		nat1, err := st.GetLedgerEntriesBySymbol(ctx, "NAT1")
		if err != nil {
			t.Fatalf("GetLedgerEntriesBySymbol: %v", err)
		}
		if len(nat1) != 3 {
			t.Errorf("expected 3 NAT1 entries, got %d", len(nat1))
		}

		none, err := st.GetLedgerEntriesByInvestor(ctx, "nobody")
		if err != nil {
			t.Fatalf("GetLedgerEntriesByInvestor: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no entries, got %d", len(none))
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	testStoreContract(t, st)
}

func TestSQLiteStore_File(t *testing.T) {
	path := t.TempDir() + "/sim.db"
	ctx := context.Background()

	st, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.InsertLedgerEntry(ctx, ledgerEntry("a", "human-player", "NAT1", model.SideBuy, 1, 10)); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}
	st.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetLedgerEntriesBySymbol(ctx, "NAT1")
	if err != nil {
		t.Fatalf("GetLedgerEntriesBySymbol: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected entry to survive reopen, got %d", len(got))
	}
}

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCachedStore_FallsBackWithoutRedis(t *testing.T) {
	cs := NewCachedStore(NewMemoryStore(), unreachableRedis(), time.Minute)
	t.Cleanup(func() { cs.Close() })

	testStoreContract(t, cs)
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (f *fakeRows) Next() bool {
	f.i++
	return f.i <= len(f.rows)
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.i-1]
	for i, v := range row {
		switch p := dest[i].(type) {
		case *string:
			*p = v.(string)
		case *int64:
			*p = v.(int64)
		case *int:
			*p = v.(int)
		case *time.Time:
			*p = v.(time.Time)
		case *[]byte:
			*p = []byte(v.(string))
		default:
			return fmt.Errorf("unsupported dest %T", dest[i])
		}
	}
	return nil
}

func (f *fakeRows) Err() error { return nil }

func TestScanLedgerEntries(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"id-1", "human-player", "NAT1", "BUY", int64(3), "10.50", "31.50", 60, t0, t0},
	}}
	got, err := scanLedgerEntries(rows)
	if err != nil {
		t.Fatalf("scanLedgerEntries: %v", err)
	}
	if len(got) != 1 || got[0].Side != model.SideBuy || !got[0].Cost.Equal(d(31.5)) {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestScanLedgerEntries_BadNumeric(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"id-1", "human-player", "NAT1", "BUY", int64(3), "ten", "31.50", 60, t0, t0},
	}}
	if _, err := scanLedgerEntries(rows); err == nil {
		t.Fatal("expected error for unparsable price")
	}
}

func TestScanEvents(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{`{"id":"ev-1","day":3,"name":"Boom","type":"positive","impact":1.05,"headline":"","summary":""}`},
	}}
	got, err := scanEvents(rows)
	if err != nil {
		t.Fatalf("scanEvents: %v", err)
	}
	if len(got) != 1 || got[0].Impact == nil || got[0].Impact.Scalar != 1.05 {
		t.Errorf("unexpected events: %+v", got)
	}
}
