// Package raffle implements the ticket-pool lottery: numbered entries sold
// into a pooled round, a winner picked from oracle randomness, and payouts
// released through the escrow ledger.
package raffle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/events"
	"github.com/wagerhouse/wager-engine/internal/limits"
	"github.com/wagerhouse/wager-engine/internal/metrics"
	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/oracle"
	"github.com/wagerhouse/wager-engine/internal/store"
)

var (
	// ErrAlreadyRunning is returned when opening a round that is not Closed.
	ErrAlreadyRunning = errors.New("raffle: lottery already running")

	// ErrRoundEnded is returned when buying tickets after the round's end
	// time.
	ErrRoundEnded = errors.New("raffle: lottery ended")

	// ErrNotYetEnded is returned when a non-operator closes the round
	// before its end time.
	ErrNotYetEnded = errors.New("raffle: lottery period not ended")

	// ErrNoPlayers is returned when closing a round with no tickets sold.
	ErrNoPlayers = errors.New("raffle: no players in lottery")

	// ErrInvalidTicketCount is returned for a non-positive ticket count.
	ErrInvalidTicketCount = errors.New("raffle: must buy at least one ticket")

	// ErrCannotChangeWhileActive is returned when admin configuration is
	// changed while the round is not Closed.
	ErrCannotChangeWhileActive = errors.New("raffle: cannot change during lottery")
)

// oraclePurpose tags this engine's randomness requests.
const oraclePurpose = "pick_winner"

// Config carries the engine's deployment-time parameters.
type Config struct {
	Operator        string
	PlatformAddress string
	CharityAddress  string
	TicketPrice     decimal.Decimal
	MaxPerPlayer    int
}

// Engine is the raffle state machine. One active round at a time; all
// mutations are serialized under a single mutex, including the asynchronous
// oracle fulfillment.
type Engine struct {
	mu sync.Mutex

	operator     string
	platformAddr string
	charityAddr  string
	ticketPrice  decimal.Decimal
	entryLimit   *limits.EntryLimiter

	ledger  *escrow.Ledger
	adapter *oracle.Adapter
	st      store.Store
	hub     *events.Hub

	lotteryID    uint64
	state        model.LotteryState
	pool         decimal.Decimal
	tickets      []string
	startTime    time.Time
	endTime      time.Time
	recentWinner string
	pendingReq   string

	now func() time.Time
}

// NewEngine creates a raffle engine in the Closed state. Pass nil for hub
// and st to run without event broadcasting or archiving (tests).
func NewEngine(cfg Config, ledger *escrow.Ledger, adapter *oracle.Adapter, st store.Store, hub *events.Hub) *Engine {
	return &Engine{
		operator:     cfg.Operator,
		platformAddr: cfg.PlatformAddress,
		charityAddr:  cfg.CharityAddress,
		ticketPrice:  cfg.TicketPrice,
		entryLimit:   limits.NewEntryLimiter(cfg.MaxPerPlayer),
		ledger:       ledger,
		adapter:      adapter,
		st:           st,
		hub:          hub,
		state:        model.LotteryClosed,
		pool:         decimal.Zero,
		now:          time.Now,
	}
}

// StartLottery opens a new round for the given duration. Operator only.
func (e *Engine) StartLottery(caller string, duration time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	if e.state != model.LotteryClosed {
		return ErrAlreadyRunning
	}

	e.lotteryID++
	e.state = model.LotteryOpen
	e.pool = decimal.Zero
	e.tickets = nil
	e.startTime = e.now()
	e.endTime = e.startTime.Add(duration)

	slog.Info("lottery started",
		"lottery_id", e.lotteryID,
		"start", e.startTime,
		"end", e.endTime,
	)
	e.emit(events.Event{
		Type:    events.TypeLotteryStarted,
		Game:    model.GameLottery,
		RoundID: e.lotteryID,
		Start:   e.startTime.Unix(),
		End:     e.endTime.Unix(),
	})
	return nil
}

// BuyTickets sells count entries to caller. payment must equal
// count * ticketPrice exactly; the purchase fully applies or has no effect.
func (e *Engine) BuyTickets(ctx context.Context, caller string, count int, payment decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.LotteryOpen {
		return model.ErrWrongState
	}
	if !e.now().Before(e.endTime) {
		return ErrRoundEnded
	}
	if count < 1 {
		return ErrInvalidTicketCount
	}
	if err := e.entryLimit.CheckPurchase(e.ticketCount(caller), count); err != nil {
		metrics.RejectionsTotal.WithLabelValues(model.GameLottery, "limit").Inc()
		return err
	}
	required := e.ticketPrice.Mul(decimal.NewFromInt(int64(count)))
	if !payment.Equal(required) {
		metrics.RejectionsTotal.WithLabelValues(model.GameLottery, "payment").Inc()
		return model.ErrWrongPayment
	}

	for i := 0; i < count; i++ {
		e.tickets = append(e.tickets, caller)
	}
	e.pool = e.pool.Add(payment)
	e.ledger.Receive(ctx, model.GameLottery, caller, payment)
	metrics.StakesTotal.WithLabelValues(model.GameLottery).Inc()

	e.emit(events.Event{
		Type:   events.TypeLotteryEntered,
		Game:   model.GameLottery,
		Player: caller,
		Count:  count,
		Total:  len(e.tickets),
	})
	return nil
}

// EndLottery closes the round and requests the winning randomness. Anyone
// may close once the end time has passed; the operator may close early.
func (e *Engine) EndLottery(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.LotteryOpen {
		return model.ErrWrongState
	}
	if e.now().Before(e.endTime) && caller != e.operator {
		return ErrNotYetEnded
	}
	if len(e.tickets) == 0 {
		return ErrNoPlayers
	}

	e.state = model.LotteryCalculating
	return e.requestWinner()
}

// RetryWinnerRequest cancels a stuck randomness request and issues a new one
// for the same round. Operator only; the recovery path when the oracle never
// delivers.
func (e *Engine) RetryWinnerRequest(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	if e.state != model.LotteryCalculating {
		return model.ErrWrongState
	}

	if err := e.adapter.Cancel(e.pendingReq); err == nil {
		metrics.OracleRequestsInFlight.Dec()
	}
	return e.requestWinner()
}

// requestWinner issues one oracle request for the current round.
// Caller holds e.mu and has set state to Calculating.
func (e *Engine) requestWinner() error {
	roundID := e.lotteryID
	reqID, err := e.adapter.Request(model.GameLottery, oraclePurpose, func(id string, word uint64) {
		e.fulfillWinner(roundID, id, word)
	})
	if err != nil {
		// Round stays in Calculating; the operator retry path re-requests.
		return err
	}
	e.pendingReq = reqID
	metrics.OracleRequestsInFlight.Inc()

	e.emit(events.Event{
		Type:    events.TypeWinnerRequested,
		Game:    model.GameLottery,
		RoundID: roundID,
	})
	return nil
}

// fulfillWinner consumes the oracle randomness: picks the winning ticket,
// splits the pool, credits payouts, and closes the round. Runs as its own
// atomic step under the engine mutex.
func (e *Engine) fulfillWinner(roundID uint64, requestID string, word uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stale delivery for a superseded request or an already-settled round.
	if e.state != model.LotteryCalculating || e.lotteryID != roundID || e.pendingReq != requestID {
		slog.Warn("stale winner fulfillment ignored", "request_id", requestID, "lottery_id", roundID)
		metrics.OracleFulfillmentsTotal.WithLabelValues("stale").Inc()
		return
	}

	ctx := context.Background()
	winner := e.tickets[word%uint64(len(e.tickets))]
	pool := e.pool

	platformAmt, charityAmt, prize := e.ledger.SplitFee(pool)
	if err := e.creditPayouts(ctx, winner, platformAmt, charityAmt, prize); err != nil {
		// Accounting failure leaves the round in Calculating for the
		// operator retry path rather than settling inconsistently.
		slog.Error("winner payout failed", "lottery_id", roundID, "err", err)
		return
	}

	e.recentWinner = winner
	e.archive(ctx, winner, prize)
	totalTickets := len(e.tickets)

	e.state = model.LotteryClosed
	e.tickets = nil
	e.pool = decimal.Zero
	e.pendingReq = ""
	metrics.OracleRequestsInFlight.Dec()
	metrics.OracleFulfillmentsTotal.WithLabelValues("consumed").Inc()
	metrics.PayoutsTotal.WithLabelValues(model.GameLottery).Inc()

	slog.Info("winner picked",
		"lottery_id", roundID,
		"winner", winner,
		"prize", prize.String(),
		"tickets", totalTickets,
	)
	e.emit(events.Event{
		Type:    events.TypeWinnerPicked,
		Game:    model.GameLottery,
		Player:  winner,
		Amount:  prize.String(),
		RoundID: roundID,
	})
}

// creditPayouts moves the round pool to the fee recipients and the winner.
// Caller holds e.mu.
func (e *Engine) creditPayouts(ctx context.Context, winner string, platformAmt, charityAmt, prize decimal.Decimal) error {
	if platformAmt.IsPositive() {
		if err := e.ledger.Credit(ctx, model.GameLottery, e.platformAddr, platformAmt, model.JournalFee); err != nil {
			return err
		}
	}
	if charityAmt.IsPositive() {
		if err := e.ledger.Credit(ctx, model.GameLottery, e.charityAddr, charityAmt, model.JournalFee); err != nil {
			return err
		}
	}
	return e.ledger.Credit(ctx, model.GameLottery, winner, prize, model.JournalPayout)
}

// archive saves the settled round. Best-effort: archiving is not part of the
// settlement invariant. Caller holds e.mu.
func (e *Engine) archive(ctx context.Context, winner string, prize decimal.Decimal) {
	if e.st == nil {
		return
	}
	result := &model.RoundResult{
		LotteryID:    e.lotteryID,
		Winner:       winner,
		Prize:        prize,
		TotalTickets: len(e.tickets),
		StartedAt:    e.startTime,
		EndedAt:      e.now().UTC(),
	}
	if err := e.st.SaveRoundResult(ctx, result); err != nil {
		slog.Warn("round archive failed", "lottery_id", e.lotteryID, "err", err)
	}
}

// WithdrawWinnings drains the caller's pending balance.
func (e *Engine) WithdrawWinnings(ctx context.Context, caller string) (decimal.Decimal, error) {
	amount, err := e.ledger.Withdraw(ctx, caller)
	if err != nil {
		return decimal.Zero, err
	}
	metrics.WithdrawalsTotal.Inc()
	return amount, nil
}

// --- Admin configuration (Closed state only) ---

// SetTicketPrice updates the entry price. Operator only, Closed only.
func (e *Engine) SetTicketPrice(caller string, price decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.adminConfigurable(caller); err != nil {
		return err
	}
	if !price.IsPositive() {
		return model.ErrWrongPayment
	}
	e.ticketPrice = price
	return nil
}

// SetAddresses updates the charity and platform fee recipients.
func (e *Engine) SetAddresses(caller, charity, platform string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.adminConfigurable(caller); err != nil {
		return err
	}
	if err := model.ValidateAddress(charity); err != nil {
		return err
	}
	if err := model.ValidateAddress(platform); err != nil {
		return err
	}
	e.charityAddr = charity
	e.platformAddr = platform
	return nil
}

// SetFees updates the basis-point fee split enforced by the ledger.
func (e *Engine) SetFees(caller string, platformBps, charityBps int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.adminConfigurable(caller); err != nil {
		return err
	}
	return e.ledger.SetFees(platformBps, charityBps)
}

// adminConfigurable guards admin setters. Caller holds e.mu.
func (e *Engine) adminConfigurable(caller string) error {
	if caller != e.operator {
		return model.ErrUnauthorized
	}
	if e.state != model.LotteryClosed {
		return ErrCannotChangeWhileActive
	}
	return nil
}

// --- Views ---

// Info is the snapshot returned by the lottery info view.
type Info struct {
	LotteryID    uint64             `json:"lottery_id"`
	State        model.LotteryState `json:"state"`
	StateName    string             `json:"state_name"`
	Pool         decimal.Decimal    `json:"pool"`
	TicketPrice  decimal.Decimal    `json:"ticket_price"`
	TotalTickets int                `json:"total_tickets"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
}

// LotteryInfo returns the current round snapshot.
func (e *Engine) LotteryInfo() Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Info{
		LotteryID:    e.lotteryID,
		State:        e.state,
		StateName:    e.state.String(),
		Pool:         e.pool,
		TicketPrice:  e.ticketPrice,
		TotalTickets: len(e.tickets),
		StartTime:    e.startTime,
		EndTime:      e.endTime,
	}
}

// PlayerTicketCount returns addr's entry count in the current round.
func (e *Engine) PlayerTicketCount(addr string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticketCount(addr)
}

// Players returns the ordered ticket slice (one slot per entry bought).
func (e *Engine) Players() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.tickets))
	copy(out, e.tickets)
	return out
}

// TimeRemaining returns the time until the round's end, floored at zero.
func (e *Engine) TimeRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.LotteryOpen {
		return 0
	}
	remaining := e.endTime.Sub(e.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecentWinner returns the last settled round's winner.
func (e *Engine) RecentWinner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recentWinner
}

// TicketPrice returns the current entry price.
func (e *Engine) TicketPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticketPrice
}

// MaxTicketsPerPlayer returns the per-address entry cap.
func (e *Engine) MaxTicketsPerPlayer() int {
	return e.entryLimit.MaxPerPlayer
}

// Expired reports whether an open round has passed its end time with at
// least one ticket sold. Used by the auto-close job.
func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == model.LotteryOpen && !e.now().Before(e.endTime) && len(e.tickets) > 0
}

// Idle reports whether the engine holds no active round.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == model.LotteryClosed
}

// ticketCount counts addr's entries. Caller holds e.mu.
func (e *Engine) ticketCount(addr string) int {
	n := 0
	for _, t := range e.tickets {
		if t == addr {
			n++
		}
	}
	return n
}

// emit broadcasts an event when a hub is attached. Caller holds e.mu.
func (e *Engine) emit(ev events.Event) {
	if e.hub != nil {
		e.hub.Broadcast(ev)
	}
}
