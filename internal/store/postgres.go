package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertBalance(ctx context.Context, addr string, amount decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_balances (address, amount)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount`,
		addr, amount.String(),
	)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM escrow_balances WHERE address = $1`, addr).
		Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", addr, err)
	}

	amount, _ := decimal.NewFromString(amountS)
	return amount, nil
}

func (s *PostgresStore) ListBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, amount::TEXT FROM escrow_balances WHERE amount <> 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var addr, amountS string
		if err := rows.Scan(&addr, &amountS); err != nil {
			return nil, err
		}
		amount, _ := decimal.NewFromString(amountS)
		balances[addr] = amount
	}
	return balances, rows.Err()
}

func (s *PostgresStore) AppendJournal(ctx context.Context, e *model.JournalEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, game, kind, address, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		e.ID, e.Game, e.Kind, e.Address, e.Amount.String(), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) JournalByAddress(ctx context.Context, addr string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, game, kind, address, amount::TEXT, timestamp
		 FROM journal_entries WHERE address = $1 ORDER BY timestamp`, addr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var amountS string
		if err := rows.Scan(&e.ID, &e.Game, &e.Kind, &e.Address, &amountS, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SaveRoundResult(ctx context.Context, r *model.RoundResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO round_results (lottery_id, winner, prize, total_tickets, started_at, ended_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)`,
		r.LotteryID, r.Winner, r.Prize.String(), r.TotalTickets, r.StartedAt, r.EndedAt,
	)
	return err
}

func (s *PostgresStore) RecentRoundResults(ctx context.Context, limit int) ([]model.RoundResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lottery_id, winner, prize::TEXT, total_tickets, started_at, ended_at
		 FROM round_results ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.RoundResult
	for rows.Next() {
		var r model.RoundResult
		var prizeS string
		if err := rows.Scan(&r.LotteryID, &r.Winner, &prizeS, &r.TotalTickets, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		r.Prize, _ = decimal.NewFromString(prizeS)
		results = append(results, r)
	}
	return results, rows.Err()
}
