// Package store defines the persistence interface for the simulation.
// Implementations include PostgreSQL (source of truth), SQLite (single-file
// local runs), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/market-sim/internal/model"
)

// ErrNotFound is returned when a lookup has no result.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Snapshots hold complete simulation
// states; the event archive and trade ledger outlive the bounded histories
// kept inside a state.
type Store interface {
	// --- Snapshots ---

	// SaveSnapshot persists a state snapshot.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error

	// LatestSnapshot returns the most recently saved snapshot, or
	// ErrNotFound.
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)

	// --- Event archive ---

	// InsertEvents archives events. Events already stored are skipped.
	InsertEvents(ctx context.Context, events []model.Event) error

	// ListEvents returns up to limit events, newest first.
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable trade record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByInvestor returns all trades for an investor, oldest first.
	GetLedgerEntriesByInvestor(ctx context.Context, investorID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesBySymbol returns all trades in a stock, oldest first.
	GetLedgerEntriesBySymbol(ctx context.Context, symbol string) ([]model.LedgerEntry, error)
}

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}
