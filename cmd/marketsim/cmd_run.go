package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/market-sim/internal/api"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/sim"
)

const secondsPerDay = 24 * 60 * 60

// runSummary is the result of a headless run.
type runSummary struct {
	StartDay    int                    `json:"start_day"`
	Day         int                    `json:"day"`
	Time        time.Time              `json:"time"`
	MarketIndex float64                `json:"market_index"`
	Listed      int                    `json:"listed"`
	Delisted    int                    `json:"delisted"`
	Events      int                    `json:"events"`
	Leaders     []model.LeaderboardRow `json:"leaders"`
	TopMovers   []model.StockSummary   `json:"top_movers"`
	SnapshotID  string                 `json:"snapshot_id,omitempty"`
	Elapsed     string                 `json:"elapsed"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance the simulation headless and print a summary",
		Long: `Run advances a simulation day by day without the HTTP surface.

The wall-clock valve is disabled, so every requested day is simulated.
With --sqlite (or SQLITE_PATH / DATABASE_URL) events are archived and the
final state is saved as a snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			if cmd.Flags().Changed("sqlite") {
				cfg.SQLitePath, _ = cmd.Flags().GetString("sqlite")
			}
			restore, _ := cmd.Flags().GetBool("restore")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			engine, err := newEngine(cfg, 0)
			if err != nil {
				return err
			}
			opts := sim.InitOptions{Realistic: cfg.Realistic}
			state, err := initialState(ctx, engine, st, restore, opts)
			if err != nil {
				return err
			}

			svc := api.NewService(engine, st, state, opts, nil)
			began := time.Now()
			startDay := state.Day
			events := 0
			for i := 0; i < days && ctx.Err() == nil; i++ {
				res := svc.Advance(ctx, secondsPerDay)
				events += len(res.NewEvents)
			}

			summary := summarize(svc.State(), startDay, events, 5)
			summary.Elapsed = time.Since(began).Round(time.Millisecond).String()
			if cfg.SQLitePath != "" || cfg.DatabaseURL != "" {
				snap, err := svc.Snapshot(ctx)
				if err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}
				summary.SnapshotID = snap.ID
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printSummary(os.Stdout, summary)
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "Number of simulated days to advance")
	cmd.Flags().String("sqlite", "", "SQLite file for the event archive and final snapshot")
	cmd.Flags().Bool("restore", false, "Continue from the latest stored snapshot")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

// summarize collects the leaderboard head and the biggest daily movers.
func summarize(s *model.State, startDay, events, top int) runSummary {
	sum := runSummary{
		StartDay:    startDay,
		Day:         s.Day,
		Time:        s.Time,
		MarketIndex: s.MarketIndexLevel(),
		Events:      events,
	}
	for _, stock := range s.Stocks {
		if stock.Delisted {
			sum.Delisted++
		} else {
			sum.Listed++
		}
	}

	leaders := sim.Leaderboard(s)
	if len(leaders) > top {
		leaders = leaders[:top]
	}
	sum.Leaders = leaders

	rows := sim.StockSummaries(s, sim.StockFilter{})
	movers := make([]model.StockSummary, 0, len(rows))
	for _, r := range rows {
		if !r.Delisted {
			movers = append(movers, r)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool { return movers[i].TrendingScore > movers[j].TrendingScore })
	if len(movers) > top {
		movers = movers[:top]
	}
	sum.TopMovers = movers
	return sum
}

func printSummary(w io.Writer, s runSummary) {
	fmt.Fprintf(w, "Simulated day %d -> %d (%s) in %s\n", s.StartDay, s.Day, s.Time.Format("2006-01-02 15:04 MST"), s.Elapsed)
	fmt.Fprintf(w, "Market index: %.2f   listed: %d   delisted: %d   events: %d\n", s.MarketIndex, s.Listed, s.Delisted, s.Events)

	fmt.Fprintln(w, "\nLeaderboard:")
	for _, r := range s.Leaders {
		name := r.Name
		if r.StrategyName != "" {
			name += " (" + r.StrategyName + ")"
		}
		fmt.Fprintf(w, "  %2d. %-40s %s\n", r.Rank, name, r.NetWorth.StringFixed(2))
	}

	fmt.Fprintln(w, "\nTrending:")
	for _, m := range s.TopMovers {
		fmt.Fprintf(w, "  %-6s %10.2f %+7.2f%%  vol %d\n", m.Symbol, m.Price, m.ChangePercent, m.Volume)
	}

	if s.SnapshotID != "" {
		fmt.Fprintf(w, "\nSnapshot saved: %s\n", s.SnapshotID)
	}
}
