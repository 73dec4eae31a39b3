package store

import (
	"context"
	"sync"

	"github.com/atmx/market-sim/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots []model.Snapshot
	events    []model.Event // archive order, oldest first
	eventIDs  map[string]struct{}
	ledger    []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		eventIDs: make(map[string]struct{}),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// States are never mutated after creation, so sharing the pointer is safe.
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}

func (s *MemoryStore) InsertEvents(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if _, dup := s.eventIDs[ev.ID]; dup {
			continue
		}
		s.eventIDs[ev.ID] = struct{}{}
		s.events = append(s.events, ev.Clone())
	}
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]model.Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.events[i].Clone())
	}
	return result, nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByInvestor(_ context.Context, investorID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.InvestorID == investorID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesBySymbol(_ context.Context, symbol string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.Symbol == symbol {
			result = append(result, e)
		}
	}
	return result, nil
}
