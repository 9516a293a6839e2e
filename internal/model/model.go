// Package model defines the core domain types shared across the wager
// engines. All monetary values use shopspring/decimal — never float64 for
// money.
package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Game names used in journal entries, oracle correlation, and events.
const (
	GameLottery   = "lottery"
	GameBlackjack = "blackjack"
	GameBingo     = "bingo"
)

// addressRegex matches a 0x-prefixed 20-byte hex account address.
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateAddress checks that addr is a well-formed account address.
func ValidateAddress(addr string) error {
	if !addressRegex.MatchString(addr) {
		return fmt.Errorf("%w: %q (expected 0x + 40 hex chars)", ErrInvalidAddress, addr)
	}
	return nil
}

// LotteryState is the raffle round lifecycle.
type LotteryState uint8

const (
	LotteryClosed LotteryState = iota
	LotteryOpen
	LotteryCalculating
)

func (s LotteryState) String() string {
	switch s {
	case LotteryClosed:
		return "closed"
	case LotteryOpen:
		return "open"
	case LotteryCalculating:
		return "calculating"
	}
	return "unknown"
}

// DuelState is the per-player blackjack hand lifecycle.
type DuelState uint8

const (
	DuelWaiting DuelState = iota
	DuelPlayerTurn
	DuelHouseTurn
	DuelEnded
)

func (s DuelState) String() string {
	switch s {
	case DuelWaiting:
		return "waiting"
	case DuelPlayerTurn:
		return "player_turn"
	case DuelHouseTurn:
		return "house_turn"
	case DuelEnded:
		return "ended"
	}
	return "unknown"
}

// BingoState is the number-match game lifecycle.
type BingoState uint8

const (
	BingoWaiting BingoState = iota
	BingoActive
	BingoDrawing
	BingoEnded
)

func (s BingoState) String() string {
	switch s {
	case BingoWaiting:
		return "waiting"
	case BingoActive:
		return "active"
	case BingoDrawing:
		return "drawing"
	case BingoEnded:
		return "ended"
	}
	return "unknown"
}

// PlayingCard is one card of a standard 52-card deck.
// Suit 0..3, Rank 1 (ace) .. 13 (king).
type PlayingCard struct {
	Suit uint8 `json:"suit"`
	Rank uint8 `json:"rank"`
}

// Journal entry kinds. The journal is an immutable record of every value
// movement through the system; entries are never modified or deleted.
const (
	JournalStake      = "stake"
	JournalPayout     = "payout"
	JournalFee        = "fee"
	JournalWithdrawal = "withdrawal"
)

// JournalEntry records a single value movement: a stake entering a pool, a
// payout or fee credit to a pending balance, or a withdrawal leaving the
// system.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Game      string          `json:"game" db:"game"`
	Kind      string          `json:"kind" db:"kind"`
	Address   string          `json:"address" db:"address"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// RoundResult is an archived raffle outcome.
type RoundResult struct {
	LotteryID    uint64          `json:"lottery_id" db:"lottery_id"`
	Winner       string          `json:"winner" db:"winner"`
	Prize        decimal.Decimal `json:"prize" db:"prize"`
	TotalTickets int             `json:"total_tickets" db:"total_tickets"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	EndedAt      time.Time       `json:"ended_at" db:"ended_at"`
}
