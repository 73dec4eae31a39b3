package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/market-sim/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary. Redis failures
// are never surfaced: the primary stays authoritative.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Close closes the Redis client and the primary store if it holds
// connections.
func (s *CachedStore) Close() error {
	err := s.rdb.Close()
	if c, ok := s.primary.(Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl)
	}
	return nil
}

func (s *CachedStore) InsertEvents(ctx context.Context, events []model.Event) error {
	if err := s.primary.InsertEvents(ctx, events); err != nil {
		return err
	}
	s.rdb.Del(ctx, recentEventsKey)
	return nil
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntry(ctx, entry); err != nil {
		return err
	}
	// Invalidate trade history cache for this investor.
	s.rdb.Del(ctx, investorTradesKey(entry.InvestorID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, latestSnapshotKey).Bytes()
	if err == nil {
		var snap model.Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, latestSnapshotKey, data, s.ttl)
	}
	return snap, nil
}

// ListEvents caches one list per limit in a hash so that a single delete
// invalidates every cached page.
func (s *CachedStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	field := strconv.Itoa(limit)
	data, err := s.rdb.HGet(ctx, recentEventsKey, field).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.ListEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(events); err == nil {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, recentEventsKey, field, data)
		pipe.Expire(ctx, recentEventsKey, s.ttl)
		_, _ = pipe.Exec(ctx)
	}
	return events, nil
}

func (s *CachedStore) GetLedgerEntriesByInvestor(ctx context.Context, investorID string) ([]model.LedgerEntry, error) {
	data, err := s.rdb.Get(ctx, investorTradesKey(investorID)).Bytes()
	if err == nil {
		var entries []model.LedgerEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := s.primary.GetLedgerEntriesByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, investorTradesKey(investorID), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetLedgerEntriesBySymbol(ctx context.Context, symbol string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesBySymbol(ctx, symbol)
}

// --- Cache keys ---

const (
	latestSnapshotKey = "marketsim:snapshot:latest"
	recentEventsKey   = "marketsim:events:recent"
)

func investorTradesKey(id string) string { return fmt.Sprintf("marketsim:trades:investor:%s", id) }
