package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
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

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertBalance(ctx context.Context, addr string, amount decimal.Decimal) error {
	if err := s.primary.UpsertBalance(ctx, addr, amount); err != nil {
		return err
	}
	s.rdb.Set(ctx, balanceKey(addr), amount.String(), s.ttl)
	return nil
}

func (s *CachedStore) AppendJournal(ctx context.Context, entry *model.JournalEntry) error {
	if err := s.primary.AppendJournal(ctx, entry); err != nil {
		return err
	}
	// Invalidate the journal cache for this address.
	s.rdb.Del(ctx, journalKey(entry.Address))
	return nil
}

func (s *CachedStore) SaveRoundResult(ctx context.Context, result *model.RoundResult) error {
	if err := s.primary.SaveRoundResult(ctx, result); err != nil {
		return err
	}
	s.rdb.Del(ctx, roundsKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	// Try cache.
	val, err := s.rdb.Get(ctx, balanceKey(addr)).Result()
	if err == nil {
		if b, perr := decimal.NewFromString(val); perr == nil {
			return b, nil
		}
	}

	// Cache miss: read from primary.
	b, err := s.primary.GetBalance(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, balanceKey(addr), b.String(), s.ttl)
	return b, nil
}

func (s *CachedStore) JournalByAddress(ctx context.Context, addr string) ([]model.JournalEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, journalKey(addr)).Bytes()
	if err == nil {
		var entries []model.JournalEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.JournalByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, journalKey(addr), data, s.ttl)
	}
	return entries, nil
}

func (s *CachedStore) RecentRoundResults(ctx context.Context, limit int) ([]model.RoundResult, error) {
	// The rounds cache holds the newest results regardless of limit; only
	// serve it when it covers the request.
	data, err := s.rdb.Get(ctx, roundsKey).Bytes()
	if err == nil {
		var results []model.RoundResult
		if json.Unmarshal(data, &results) == nil && len(results) >= limit {
			return results[:limit], nil
		}
	}

	results, err := s.primary.RecentRoundResults(ctx, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		s.rdb.Set(ctx, roundsKey, data, s.ttl)
	}
	return results, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.primary.ListBalances(ctx)
}

// --- Cache keys ---

const roundsKey = "rounds:recent"

func balanceKey(addr string) string { return fmt.Sprintf("balance:%s", addr) }
func journalKey(addr string) string { return fmt.Sprintf("journal:%s", addr) }
