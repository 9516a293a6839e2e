// Package limits implements the per-player stake guards shared by the game
// engines: the per-address entry cap for pooled rounds and the min/max bet
// band for head-to-head play.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrLimitExceeded is returned when a purchase would push a player's
	// entry count beyond the per-address cap.
	ErrLimitExceeded = errors.New("limits: exceeds max entries per player")

	// ErrBetOutOfRange is returned when a stake falls outside the
	// configured min/max band.
	ErrBetOutOfRange = errors.New("limits: bet outside allowed range")
)

// EntryLimiter caps the number of entries any single address may hold in one
// round.
type EntryLimiter struct {
	// MaxPerPlayer is the maximum total entries per address per round.
	MaxPerPlayer int
}

// NewEntryLimiter creates an entry limiter. A cap below 1 is raised to 1.
func NewEntryLimiter(maxPerPlayer int) *EntryLimiter {
	if maxPerPlayer < 1 {
		maxPerPlayer = 1
	}
	return &EntryLimiter{MaxPerPlayer: maxPerPlayer}
}

// CheckPurchase validates buying count more entries on top of current.
func (l *EntryLimiter) CheckPurchase(current, count int) error {
	if current+count > l.MaxPerPlayer {
		return ErrLimitExceeded
	}
	return nil
}

// StakeLimiter bounds a single stake to the [Min, Max] band, inclusive.
type StakeLimiter struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// NewStakeLimiter creates a stake limiter.
func NewStakeLimiter(min, max decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{Min: min, Max: max}
}

// CheckStake validates a stake against the band.
func (l *StakeLimiter) CheckStake(stake decimal.Decimal) error {
	if stake.LessThan(l.Min) || stake.GreaterThan(l.Max) {
		return ErrBetOutOfRange
	}
	return nil
}
