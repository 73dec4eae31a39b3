package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/market-sim/internal/catalog"
	"github.com/atmx/market-sim/internal/config"
	"github.com/atmx/market-sim/internal/imagery"
	"github.com/atmx/market-sim/internal/model"
	"github.com/atmx/market-sim/internal/newsgen"
	"github.com/atmx/market-sim/internal/sim"
	"github.com/atmx/market-sim/internal/store"
)

// newEngine builds the engine with the Markov news generator and keyword
// imagery sharing one seeded random source.
func newEngine(cfg *config.Config, maxRealTime time.Duration) (*sim.Engine, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	simCfg := sim.DefaultConfig()
	simCfg.MaxRealTime = maxRealTime
	simCfg.Logger = slog.Default()

	slog.Info("engine configured", "seed", seed, "stocks", len(cat.Stocks), "catalog", cfg.CatalogPath)
	return sim.New(cat, simCfg,
		sim.WithRand(rng),
		sim.WithTextGenerator(newsgen.New(rng)),
		sim.WithImageLookup(imagery.New("")),
	)
}

// openStore selects the persistence backend: Postgres when DATABASE_URL is
// set, SQLite when a path is given, memory otherwise. REDIS_URL adds a
// read-through cache in front of a durable backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	var st store.Store
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		cleanup = append(cleanup, func() { pg.Close() })
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)

	default:
		slog.Warn("no DATABASE_URL or SQLITE_PATH, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}

	return st, closeAll, nil
}

// initialState restores the latest snapshot when asked to and one exists,
// and initializes a fresh simulation otherwise.
func initialState(ctx context.Context, engine *sim.Engine, st store.Store, restore bool, opts sim.InitOptions) (*model.State, error) {
	if restore {
		snap, err := st.LatestSnapshot(ctx)
		switch {
		case err == nil:
			slog.Info("restored snapshot", "id", snap.ID, "day", snap.Day, "time", snap.Time)
			return snap.State, nil
		case errors.Is(err, store.ErrNotFound):
			slog.Info("no snapshot to restore, starting fresh")
		default:
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	return engine.Initialize(opts), nil
}
