// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Engine state machines live in
// memory; the store holds what must survive a restart: pending-withdrawal
// balances, the immutable value-movement journal, and archived raffle
// outcomes.
type Store interface {
	// --- Escrow balances ---

	// UpsertBalance records the current pending-withdrawal balance for an
	// address, overwriting any previous value.
	UpsertBalance(ctx context.Context, addr string, amount decimal.Decimal) error

	// GetBalance returns the pending-withdrawal balance for an address.
	// Returns ErrNotFound if the address has never been credited.
	GetBalance(ctx context.Context, addr string) (decimal.Decimal, error)

	// ListBalances returns all non-zero pending balances keyed by address.
	ListBalances(ctx context.Context) (map[string]decimal.Decimal, error)

	// --- Immutable journal ---

	// AppendJournal appends an immutable value-movement record.
	AppendJournal(ctx context.Context, entry *model.JournalEntry) error

	// JournalByAddress returns all journal entries touching an address.
	JournalByAddress(ctx context.Context, addr string) ([]model.JournalEntry, error)

	// --- Raffle archive ---

	// SaveRoundResult archives a settled raffle round.
	SaveRoundResult(ctx context.Context, result *model.RoundResult) error

	// RecentRoundResults returns up to limit archived rounds, newest first.
	RecentRoundResults(ctx context.Context, limit int) ([]model.RoundResult, error)
}
