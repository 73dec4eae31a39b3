package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/atmx/market-sim/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	day       INTEGER NOT NULL,
	sim_time  TEXT NOT NULL,
	taken_at  TEXT NOT NULL,
	state     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	day      INTEGER NOT NULL,
	symbol   TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL,
	payload  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	investor_id  TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	shares       INTEGER NOT NULL,
	price        TEXT NOT NULL,
	cost         TEXT NOT NULL,
	day          INTEGER NOT NULL,
	sim_time     TEXT NOT NULL,
	timestamp    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_investor_idx ON ledger_entries (investor_id);
CREATE INDEX IF NOT EXISTS ledger_entries_symbol_idx ON ledger_entries (symbol);
`

// SQLiteStore implements Store in a single SQLite file. Decimals and
// timestamps are stored as text; snapshots and events as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, day, sim_time, taken_at, state) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Day, formatTime(snap.Time), formatTime(snap.TakenAt), string(state),
	)
	return err
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	var simTime, takenAt, state string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, day, sim_time, taken_at, state FROM snapshots ORDER BY seq DESC LIMIT 1`).
		Scan(&snap.ID, &snap.Day, &simTime, &takenAt, &state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap.Time, err = parseTime(simTime); err != nil {
		return nil, err
	}
	if snap.TakenAt, err = parseTime(takenAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, day, symbol, type, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Day, ev.Symbol, string(ev.Type), string(payload)); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events ORDER BY day DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *SQLiteStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, investor_id, symbol, side, shares, price, cost, day, sim_time, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InvestorID, e.Symbol, string(e.Side), e.Shares,
		e.Price.String(), e.Cost.String(),
		e.Day, formatTime(e.SimTime), formatTime(e.Timestamp),
	)
	return err
}

func (s *SQLiteStore) GetLedgerEntriesByInvestor(ctx context.Context, investorID string) ([]model.LedgerEntry, error) {
	return s.queryLedger(ctx, `investor_id = ?`, investorID)
}

func (s *SQLiteStore) GetLedgerEntriesBySymbol(ctx context.Context, symbol string) ([]model.LedgerEntry, error) {
	return s.queryLedger(ctx, `symbol = ?`, symbol)
}

func (s *SQLiteStore) queryLedger(ctx context.Context, where string, arg string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, investor_id, symbol, side, shares, price, cost, day, sim_time, timestamp
		 FROM ledger_entries WHERE `+where+` ORDER BY seq`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var side, priceS, costS, simTime, ts string
		if err := rows.Scan(&e.ID, &e.InvestorID, &e.Symbol, &side, &e.Shares,
			&priceS, &costS, &e.Day, &simTime, &ts); err != nil {
			return nil, err
		}
		e.Side = model.Side(side)
		if e.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("ledger entry %s price: %w", e.ID, err)
		}
		if e.Cost, err = decimal.NewFromString(costS); err != nil {
			return nil, fmt.Errorf("ledger entry %s cost: %w", e.ID, err)
		}
		if e.SimTime, err = parseTime(simTime); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
