// Package escrow implements the pooled-stake ledger shared by all game
// engines: per-game pool balances, per-address pending-withdrawal balances,
// house funds, and the basis-point fee split.
//
// All monetary values use shopspring/decimal — never float64 for money.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/store"
)

var (
	// ErrNothingToWithdraw is returned when withdrawing a zero pending
	// balance.
	ErrNothingToWithdraw = errors.New("escrow: nothing to withdraw")

	// ErrFeeCapExceeded is returned when a fee configuration exceeds the
	// combined 10% cap.
	ErrFeeCapExceeded = errors.New("escrow: total fees cannot exceed 10%")
)

// FeeCapBps is the hard cap on platformBps+charityBps (10%).
const FeeCapBps = 1000

var bpsDenominator = decimal.NewFromInt(10000)

// PayoutSink performs the externally observable release of funds. The ledger
// always zeroes internal balances before invoking it.
type PayoutSink interface {
	Pay(ctx context.Context, addr string, amount decimal.Decimal) error
}

// LogSink logs payouts instead of transferring. The actual value transfer is
// an external collaborator (settlement layer); the ledger's job ends at the
// release boundary.
type LogSink struct{}

func (LogSink) Pay(_ context.Context, addr string, amount decimal.Decimal) error {
	slog.Info("payout released", "addr", addr, "amount", amount.String())
	return nil
}

// Ledger is the single accounting authority. Engines may only move value
// through its methods; no engine touches another engine's pool. Pass nil for
// st to run without persistence (tests).
type Ledger struct {
	mu       sync.Mutex
	pools    map[string]decimal.Decimal
	balances map[string]decimal.Decimal

	platformBps int64
	charityBps  int64

	totalReceived  decimal.Decimal
	totalWithdrawn decimal.Decimal
	feesCredited   decimal.Decimal
	houseFunds     decimal.Decimal

	sink PayoutSink
	st   store.Store
	now  func() time.Time
}

// NewLedger creates a ledger with the default 250/250 bps fee split.
func NewLedger(sink PayoutSink, st store.Store) *Ledger {
	return &Ledger{
		pools:       make(map[string]decimal.Decimal),
		balances:    make(map[string]decimal.Decimal),
		platformBps: 250,
		charityBps:  250,
		sink:        sink,
		st:          st,
		now:         time.Now,
	}
}

// Receive accepts a stake into a game's pool.
func (l *Ledger) Receive(ctx context.Context, game, addr string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pools[game] = l.pools[game].Add(amount)
	l.totalReceived = l.totalReceived.Add(amount)
	l.journal(ctx, game, model.JournalStake, addr, amount)
}

// Credit moves amount from a game's pool to an address's pending balance.
// kind is model.JournalPayout or model.JournalFee.
func (l *Ledger) Credit(ctx context.Context, game, addr string, amount decimal.Decimal, kind string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool := l.pools[game]
	if pool.LessThan(amount) {
		return fmt.Errorf("escrow: pool %s underflow: have %s, need %s", game, pool, amount)
	}
	l.pools[game] = pool.Sub(amount)
	l.credit(ctx, game, addr, amount, kind)
	return nil
}

// HouseCredit pays amount from house funds to an address's pending balance.
// Used when a payout exceeds the player's own escrowed stake (winnings). The
// house balance may go negative; the book still balances and the imbalance is
// visible through Reconcile.
func (l *Ledger) HouseCredit(ctx context.Context, game, addr string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.houseFunds = l.houseFunds.Sub(amount)
	l.credit(ctx, game, addr, amount, model.JournalPayout)
}

// SweepToHouse moves a lost stake from a game's pool to house funds.
func (l *Ledger) SweepToHouse(_ context.Context, game string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool := l.pools[game]
	if pool.LessThan(amount) {
		return fmt.Errorf("escrow: pool %s underflow: have %s, need %s", game, pool, amount)
	}
	l.pools[game] = pool.Sub(amount)
	l.houseFunds = l.houseFunds.Add(amount)
	return nil
}

// Withdraw pays out an address's full pending balance and zeroes it. The
// balance is zeroed before the external transfer is issued; a failed transfer
// restores it.
func (l *Ledger) Withdraw(ctx context.Context, addr string) (decimal.Decimal, error) {
	l.mu.Lock()
	amount := l.balances[addr]
	if amount.IsZero() {
		l.mu.Unlock()
		return decimal.Zero, ErrNothingToWithdraw
	}

	// Zero before transfer.
	l.balances[addr] = decimal.Zero
	l.totalWithdrawn = l.totalWithdrawn.Add(amount)
	l.persistBalance(ctx, addr, decimal.Zero)
	l.journal(ctx, "", model.JournalWithdrawal, addr, amount)
	l.mu.Unlock()

	if err := l.sink.Pay(ctx, addr, amount); err != nil {
		l.mu.Lock()
		l.balances[addr] = l.balances[addr].Add(amount)
		l.totalWithdrawn = l.totalWithdrawn.Sub(amount)
		l.persistBalance(ctx, addr, l.balances[addr])
		l.mu.Unlock()
		return decimal.Zero, fmt.Errorf("escrow: payout failed: %w", err)
	}
	return amount, nil
}

// EmergencyWithdraw sweeps accumulated house funds to the operator. Callers
// must ensure every engine is idle first. Rejected when the house balance is
// not positive.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, operator string) (decimal.Decimal, error) {
	l.mu.Lock()
	amount := l.houseFunds
	if !amount.IsPositive() {
		l.mu.Unlock()
		return decimal.Zero, ErrNothingToWithdraw
	}
	l.houseFunds = decimal.Zero
	l.totalWithdrawn = l.totalWithdrawn.Add(amount)
	l.journal(ctx, "", model.JournalWithdrawal, operator, amount)
	l.mu.Unlock()

	if err := l.sink.Pay(ctx, operator, amount); err != nil {
		l.mu.Lock()
		l.houseFunds = l.houseFunds.Add(amount)
		l.totalWithdrawn = l.totalWithdrawn.Sub(amount)
		l.mu.Unlock()
		return decimal.Zero, fmt.Errorf("escrow: payout failed: %w", err)
	}
	return amount, nil
}

// SplitFee computes the basis-point fee split of a pool:
// platform = pool*platformBps/10000, charity = pool*charityBps/10000,
// remainder = pool − platform − charity. The three always sum to pool
// exactly.
func (l *Ledger) SplitFee(pool decimal.Decimal) (platform, charity, remainder decimal.Decimal) {
	l.mu.Lock()
	pBps, cBps := l.platformBps, l.charityBps
	l.mu.Unlock()

	platform = pool.Mul(decimal.NewFromInt(pBps)).DivRound(bpsDenominator, 18)
	charity = pool.Mul(decimal.NewFromInt(cBps)).DivRound(bpsDenominator, 18)
	remainder = pool.Sub(platform).Sub(charity)
	return platform, charity, remainder
}

// SetFees updates the fee configuration. Rejected with ErrFeeCapExceeded when
// the combined fees exceed the 10% cap.
func (l *Ledger) SetFees(platformBps, charityBps int64) error {
	if platformBps < 0 || charityBps < 0 || platformBps+charityBps > FeeCapBps {
		return ErrFeeCapExceeded
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.platformBps = platformBps
	l.charityBps = charityBps
	return nil
}

// Fees returns the current (platformBps, charityBps) configuration.
func (l *Ledger) Fees() (int64, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.platformBps, l.charityBps
}

// Balance returns an address's pending-withdrawal balance.
func (l *Ledger) Balance(addr string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// PoolBalance returns a game's current pool balance.
func (l *Ledger) PoolBalance(game string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pools[game]
}

// HouseBalance returns the current house funds.
func (l *Ledger) HouseBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.houseFunds
}

// Reconcile verifies the conservation invariant:
// totalReceived == Σ pools + Σ pending balances + totalWithdrawn + houseFunds.
// Returns the two sides of the equation and whether they match.
func (l *Ledger) Reconcile() (received, accounted decimal.Decimal, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounted = l.totalWithdrawn.Add(l.houseFunds)
	for _, p := range l.pools {
		accounted = accounted.Add(p)
	}
	for _, b := range l.balances {
		accounted = accounted.Add(b)
	}
	return l.totalReceived, accounted, l.totalReceived.Equal(accounted)
}

// Restore loads persisted pending balances from the store. Called once at
// startup before any engine runs.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.st == nil {
		return nil
	}
	balances, err := l.st.ListBalances(ctx)
	if err != nil {
		return fmt.Errorf("escrow: restore balances: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, b := range balances {
		l.balances[addr] = b
		// Restored balances count as already-received value.
		l.totalReceived = l.totalReceived.Add(b)
	}
	return nil
}

// credit adds to a pending balance and records the movement.
// Caller holds l.mu.
func (l *Ledger) credit(ctx context.Context, game, addr string, amount decimal.Decimal, kind string) {
	l.balances[addr] = l.balances[addr].Add(amount)
	if kind == model.JournalFee {
		l.feesCredited = l.feesCredited.Add(amount)
	}
	l.persistBalance(ctx, addr, l.balances[addr])
	l.journal(ctx, game, kind, addr, amount)
}

// persistBalance mirrors a balance to the store. Persistence failures are
// logged, not propagated: the in-memory ledger remains the authority for the
// running process. Caller holds l.mu.
func (l *Ledger) persistBalance(ctx context.Context, addr string, amount decimal.Decimal) {
	if l.st == nil {
		return
	}
	if err := l.st.UpsertBalance(ctx, addr, amount); err != nil {
		slog.Warn("balance persist failed", "addr", addr, "err", err)
	}
}

// journal appends a value-movement record. Caller holds l.mu.
func (l *Ledger) journal(ctx context.Context, game, kind, addr string, amount decimal.Decimal) {
	if l.st == nil {
		return
	}
	entry := &model.JournalEntry{
		ID:        uuid.New().String(),
		Game:      game,
		Kind:      kind,
		Address:   addr,
		Amount:    amount,
		Timestamp: l.now().UTC(),
	}
	if err := l.st.AppendJournal(ctx, entry); err != nil {
		slog.Warn("journal append failed", "kind", kind, "addr", addr, "err", err)
	}
}
