package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	journal  []model.JournalEntry
	rounds   []model.RoundResult
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) UpsertBalance(_ context.Context, addr string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[addr] = amount
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, addr string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[addr]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.balances))
	for addr, b := range s.balances {
		if !b.IsZero() {
			out[addr] = b
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendJournal(_ context.Context, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) JournalByAddress(_ context.Context, addr string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Address == addr {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveRoundResult(_ context.Context, result *model.RoundResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds = append(s.rounds, *result)
	return nil
}

func (s *MemoryStore) RecentRoundResults(_ context.Context, limit int) ([]model.RoundResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.RoundResult
	for i := len(s.rounds) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, s.rounds[i])
	}
	return results, nil
}
