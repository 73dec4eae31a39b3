package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/market-sim/internal/model"
)

// PostgresSchema creates the tables used by PostgresStore.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id        UUID PRIMARY KEY,
	day       INTEGER NOT NULL,
	sim_time  TIMESTAMPTZ NOT NULL,
	taken_at  TIMESTAMPTZ NOT NULL,
	state     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_taken_at_idx ON snapshots (taken_at DESC);

CREATE TABLE IF NOT EXISTS events (
	seq      BIGSERIAL PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	day      INTEGER NOT NULL,
	symbol   TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL,
	payload  JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id           UUID PRIMARY KEY,
	investor_id  TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	shares       BIGINT NOT NULL,
	price        NUMERIC NOT NULL,
	cost         NUMERIC NOT NULL,
	day          INTEGER NOT NULL,
	sim_time     TIMESTAMPTZ NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_investor_idx ON ledger_entries (investor_id, timestamp);
CREATE INDEX IF NOT EXISTS ledger_entries_symbol_idx ON ledger_entries (symbol, timestamp);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// snapshots and events are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, day, sim_time, taken_at, state)
		 VALUES ($1, $2, $3, $4, $5::JSONB)`,
		snap.ID, snap.Day, snap.Time, snap.TakenAt, string(state),
	)
	return err
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	var state []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, day, sim_time, taken_at, state::TEXT
		 FROM snapshots ORDER BY taken_at DESC LIMIT 1`).
		Scan(&snap.ID, &snap.Day, &snap.Time, &snap.TakenAt, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) InsertEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		batch.Queue(
			`INSERT INTO events (id, day, symbol, type, payload)
			 VALUES ($1, $2, $3, $4, $5::JSONB)
			 ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.Day, ev.Symbol, string(ev.Type), string(payload),
		)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload::TEXT FROM events ORDER BY day DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, investor_id, symbol, side, shares, price, cost, day, sim_time, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10)`,
		e.ID, e.InvestorID, e.Symbol, string(e.Side), e.Shares,
		e.Price.String(), e.Cost.String(),
		e.Day, e.SimTime, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetLedgerEntriesByInvestor(ctx context.Context, investorID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, investor_id, symbol, side, shares,
		        price::TEXT, cost::TEXT, day, sim_time, timestamp
		 FROM ledger_entries WHERE investor_id = $1 ORDER BY timestamp`, investorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesBySymbol(ctx context.Context, symbol string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, investor_id, symbol, side, shares,
		        price::TEXT, cost::TEXT, day, sim_time, timestamp
		 FROM ledger_entries WHERE symbol = $1 ORDER BY timestamp`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// rowScanner is the subset of pgx.Rows and *sql.Rows the scanners need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanLedgerEntries reads rows into LedgerEntry slices. NUMERIC columns
// arrive as text and are parsed with decimal.
func scanLedgerEntries(rows rowScanner) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var side, priceS, costS string

		if err := rows.Scan(&e.ID, &e.InvestorID, &e.Symbol, &side, &e.Shares,
			&priceS, &costS, &e.Day, &e.SimTime, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Side = model.Side(side)

		var err error
		if e.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("ledger entry %s price: %w", e.ID, err)
		}
		if e.Cost, err = decimal.NewFromString(costS); err != nil {
			return nil, fmt.Errorf("ledger entry %s cost: %w", e.ID, err)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEvents(rows rowScanner) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev model.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
