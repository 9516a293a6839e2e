// Package bingo implements the multiplayer number-match game: cards of 25
// distinct numbers sold into a pooled game, numbers drawn one at a time from
// oracle randomness, and win claims verified against the row/column/diagonal
// pattern rule.
package bingo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/events"
	"github.com/wagerhouse/wager-engine/internal/metrics"
	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/oracle"
)

var (
	// ErrNoWinningPattern is returned when a claim's marks complete no
	// row, column, or diagonal. Failed claims mutate nothing.
	ErrNoWinningPattern = errors.New("bingo: no winning pattern")

	// ErrUnknownGame is returned for a game id that was never opened.
	ErrUnknownGame = errors.New("bingo: unknown game")

	// ErrUnknownCard is returned for a card id not in the game.
	ErrUnknownCard = errors.New("bingo: unknown card")

	// ErrNotCardOwner is returned when acting on another player's card.
	ErrNotCardOwner = errors.New("bingo: caller does not own card")

	// ErrNumberNotOnCard is returned when marking a number absent from the
	// card.
	ErrNumberNotOnCard = errors.New("bingo: number not on card")

	// ErrNumberNotDrawn is returned when marking a number that has not
	// been drawn yet.
	ErrNumberNotDrawn = errors.New("bingo: number not drawn yet")

	// ErrSeedPending is returned when buying a card before the game's
	// randomness seed has been fulfilled.
	ErrSeedPending = errors.New("bingo: card randomness pending")

	// ErrAllNumbersDrawn is returned when drawing after all 75 numbers.
	ErrAllNumbersDrawn = errors.New("bingo: all numbers drawn")
)

// Oracle request purposes.
const (
	purposeCardSeed = "card_seed"
	purposeDraw     = "draw_number"
)

// card is one player's 5x5 grid. Numbers are immutable after purchase;
// marks accumulate until the game ends.
type card struct {
	id      uint64
	owner   string
	numbers [cardCells]uint8
	marked  [cardCells]bool
}

// game is one number-match round.
type game struct {
	id         uint64
	state      model.BingoState
	pool       decimal.Decimal
	startTime  time.Time
	drawn      []uint8
	drawnSet   [maxNumber + 1]bool
	cards      []*card
	byOwner    map[string][]uint64
	seed       uint64
	seedReady  bool
	seedReq    string
	pendingReq string
	winner     string
}

// Config carries the engine's deployment-time parameters.
type Config struct {
	Operator  string
	CardPrice decimal.Decimal
}

// Engine is the number-match state machine. One active game; settled games
// stay queryable in memory until process restart.
type Engine struct {
	mu sync.Mutex

	operator  string
	cardPrice decimal.Decimal

	ledger  *escrow.Ledger
	adapter *oracle.Adapter
	hub     *events.Hub

	games   map[uint64]*game
	current uint64

	now func() time.Time
}

// NewEngine creates a bingo engine and opens game 1 in the Waiting state,
// requesting its card seed. Pass nil for hub to run without event
// broadcasting (tests).
func NewEngine(cfg Config, ledger *escrow.Ledger, adapter *oracle.Adapter, hub *events.Hub) *Engine {
	e := &Engine{
		operator:  cfg.Operator,
		cardPrice: cfg.CardPrice,
		ledger:    ledger,
		adapter:   adapter,
		hub:       hub,
		games:     make(map[uint64]*game),
		now:       time.Now,
	}

	e.mu.Lock()
	e.openGame()
	e.mu.Unlock()
	return e
}

// openGame creates the next game in Waiting and requests its card seed.
// Caller holds e.mu.
func (e *Engine) openGame() {
	e.current++
	g := &game{
		id:      e.current,
		state:   model.BingoWaiting,
		pool:    decimal.Zero,
		byOwner: make(map[string][]uint64),
	}
	e.games[g.id] = g
	e.requestSeed(g)
}

// requestSeed issues the per-game card-seed request. Caller holds e.mu.
func (e *Engine) requestSeed(g *game) {
	gameID := g.id
	reqID, err := e.adapter.Request(model.GameBingo, purposeCardSeed, func(id string, word uint64) {
		e.fulfillSeed(gameID, id, word)
	})
	if err != nil {
		slog.Error("card seed request failed", "game_id", gameID, "err", err)
		return
	}
	g.seedReq = reqID
	metrics.OracleRequestsInFlight.Inc()
}

// fulfillSeed installs the game's card-generation seed.
func (e *Engine) fulfillSeed(gameID uint64, requestID string, word uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok || g.seedReady || g.seedReq != requestID {
		slog.Warn("stale seed fulfillment ignored", "game_id", gameID, "request_id", requestID)
		metrics.OracleFulfillmentsTotal.WithLabelValues("stale").Inc()
		return
	}
	g.seed = word
	g.seedReady = true
	g.seedReq = ""
	metrics.OracleRequestsInFlight.Dec()
	metrics.OracleFulfillmentsTotal.WithLabelValues("consumed").Inc()
	slog.Info("card seed installed", "game_id", gameID)
}

// StartNewGame archives the settled game and opens the next one in Waiting.
// Operator only; requires the current game to be Ended.
func (e *Engine) StartNewGame(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	if e.games[e.current].state != model.BingoEnded {
		return model.ErrWrongState
	}

	e.openGame()
	return nil
}

// BuyCard sells one card in the current Waiting game for exactly cardPrice.
func (e *Engine) BuyCard(ctx context.Context, caller string, payment decimal.Decimal) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.games[e.current]
	if g.state != model.BingoWaiting {
		return 0, model.ErrWrongState
	}
	if !g.seedReady {
		return 0, ErrSeedPending
	}
	if !payment.Equal(e.cardPrice) {
		metrics.RejectionsTotal.WithLabelValues(model.GameBingo, "payment").Inc()
		return 0, model.ErrWrongPayment
	}

	id := uint64(len(g.cards) + 1)
	c := &card{
		id:      id,
		owner:   caller,
		numbers: deriveCardNumbers(g.seed, id),
	}
	g.cards = append(g.cards, c)
	g.byOwner[caller] = append(g.byOwner[caller], id)
	g.pool = g.pool.Add(payment)

	e.ledger.Receive(ctx, model.GameBingo, caller, payment)
	metrics.StakesTotal.WithLabelValues(model.GameBingo).Inc()
	return id, nil
}

// StartGame activates the current game. Operator only; requires Waiting with
// at least one card sold.
func (e *Engine) StartGame(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	g := e.games[e.current]
	if g.state != model.BingoWaiting || len(g.cards) == 0 {
		return model.ErrWrongState
	}

	g.state = model.BingoActive
	g.startTime = e.now()
	e.emit(events.Event{
		Type:    events.TypeGameStarted,
		Game:    model.GameBingo,
		RoundID: g.id,
		Start:   g.startTime.Unix(),
	})
	return nil
}

// DrawNumber requests one oracle value for the next number. The game sits in
// Drawing, which gates marks and claims, until the fulfillment arrives.
// Operator only.
func (e *Engine) DrawNumber(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	g := e.games[e.current]
	if g.state != model.BingoActive {
		return model.ErrWrongState
	}
	if len(g.drawn) >= maxNumber {
		return ErrAllNumbersDrawn
	}

	g.state = model.BingoDrawing
	gameID := g.id
	reqID, err := e.adapter.Request(model.GameBingo, purposeDraw, func(id string, word uint64) {
		e.fulfillDraw(gameID, id, word)
	})
	if err != nil {
		g.state = model.BingoActive
		return err
	}
	g.pendingReq = reqID
	metrics.OracleRequestsInFlight.Inc()
	return nil
}

// RetryDrawRequest re-requests a stuck draw. Operator only.
func (e *Engine) RetryDrawRequest(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	g := e.games[e.current]
	if g.state != model.BingoDrawing {
		return model.ErrWrongState
	}

	if err := e.adapter.Cancel(g.pendingReq); err == nil {
		metrics.OracleRequestsInFlight.Dec()
	}
	gameID := g.id
	reqID, err := e.adapter.Request(model.GameBingo, purposeDraw, func(id string, word uint64) {
		e.fulfillDraw(gameID, id, word)
	})
	if err != nil {
		return err
	}
	g.pendingReq = reqID
	metrics.OracleRequestsInFlight.Inc()
	return nil
}

// fulfillDraw consumes one oracle value into the next drawn number.
func (e *Engine) fulfillDraw(gameID uint64, requestID string, word uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok || g.state != model.BingoDrawing || g.pendingReq != requestID {
		slog.Warn("stale draw fulfillment ignored", "game_id", gameID, "request_id", requestID)
		metrics.OracleFulfillmentsTotal.WithLabelValues("stale").Inc()
		return
	}
	g.pendingReq = ""
	metrics.OracleRequestsInFlight.Dec()
	metrics.OracleFulfillmentsTotal.WithLabelValues("consumed").Inc()

	n := deriveDraw(word, &g.drawnSet)
	g.drawn = append(g.drawn, n)
	g.drawnSet[n] = true
	g.state = model.BingoActive

	slog.Info("number drawn", "game_id", gameID, "number", n, "total_drawn", len(g.drawn))
	e.emit(events.Event{
		Type:    events.TypeNumberDrawn,
		Game:    model.GameBingo,
		RoundID: gameID,
		Number:  n,
	})
}

// MarkNumber marks a drawn number on the caller's card. Idempotent when the
// cell is already marked.
func (e *Engine) MarkNumber(caller string, cardID uint64, number uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.games[e.current]
	if g.state != model.BingoActive {
		return model.ErrWrongState
	}
	c, err := g.ownedCard(caller, cardID)
	if err != nil {
		return err
	}

	cell := -1
	for i, n := range c.numbers {
		if n == number {
			cell = i
			break
		}
	}
	if cell < 0 {
		return ErrNumberNotOnCard
	}
	if !g.drawnSet[number] {
		return ErrNumberNotDrawn
	}

	c.marked[cell] = true
	return nil
}

// ClaimBingo verifies the caller's card against the win pattern. A valid
// claim ends the game and credits the whole pool to the claimant; an invalid
// claim changes nothing.
func (e *Engine) ClaimBingo(ctx context.Context, caller string, cardID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.games[e.current]
	if g.state != model.BingoActive {
		return model.ErrWrongState
	}
	c, err := g.ownedCard(caller, cardID)
	if err != nil {
		return err
	}
	if !hasWinningPattern(&c.marked) {
		metrics.RejectionsTotal.WithLabelValues(model.GameBingo, "pattern").Inc()
		return ErrNoWinningPattern
	}

	prize := g.pool
	if err := e.ledger.Credit(ctx, model.GameBingo, caller, prize, model.JournalPayout); err != nil {
		return err
	}
	g.pool = decimal.Zero
	g.state = model.BingoEnded
	g.winner = caller
	metrics.PayoutsTotal.WithLabelValues(model.GameBingo).Inc()

	slog.Info("bingo claimed", "game_id", g.id, "winner", caller, "prize", prize.String())
	e.emit(events.Event{
		Type:    events.TypeBingoClaimed,
		Game:    model.GameBingo,
		Player:  caller,
		RoundID: g.id,
		Amount:  prize.String(),
	})
	return nil
}

// Withdraw drains the caller's pending balance.
func (e *Engine) Withdraw(ctx context.Context, caller string) (decimal.Decimal, error) {
	amount, err := e.ledger.Withdraw(ctx, caller)
	if err != nil {
		return decimal.Zero, err
	}
	metrics.WithdrawalsTotal.Inc()
	return amount, nil
}

// ownedCard fetches a card, enforcing existence and ownership.
// Caller holds e.mu.
func (g *game) ownedCard(caller string, cardID uint64) (*card, error) {
	if cardID < 1 || cardID > uint64(len(g.cards)) {
		return nil, ErrUnknownCard
	}
	c := g.cards[cardID-1]
	if c.owner != caller {
		return nil, ErrNotCardOwner
	}
	return c, nil
}

// --- Views ---

// GameInfo is the per-game snapshot.
type GameInfo struct {
	GameID       uint64           `json:"game_id"`
	State        model.BingoState `json:"state"`
	StateName    string           `json:"state_name"`
	StartTime    time.Time        `json:"start_time"`
	Pool         decimal.Decimal  `json:"pool"`
	TotalPlayers int              `json:"total_players"`
	NumbersDrawn int              `json:"numbers_drawn"`
	Winner       string           `json:"winner,omitempty"`
}

// Info returns the snapshot for a game id.
func (e *Engine) Info(gameID uint64) (GameInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return GameInfo{}, ErrUnknownGame
	}
	return GameInfo{
		GameID:       g.id,
		State:        g.state,
		StateName:    g.state.String(),
		StartTime:    g.startTime,
		Pool:         g.pool,
		TotalPlayers: len(g.byOwner),
		NumbersDrawn: len(g.drawn),
		Winner:       g.winner,
	}, nil
}

// PlayerCards returns addr's card ids in a game.
func (e *Engine) PlayerCards(addr string, gameID uint64) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return nil
	}
	return append([]uint64{}, g.byOwner[addr]...)
}

// CardDetails returns a card's grid, marks, and owner.
func (e *Engine) CardDetails(gameID, cardID uint64) (numbers [cardCells]uint8, marked [cardCells]bool, owner string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return numbers, marked, "", ErrUnknownGame
	}
	if cardID < 1 || cardID > uint64(len(g.cards)) {
		return numbers, marked, "", ErrUnknownCard
	}
	c := g.cards[cardID-1]
	return c.numbers, c.marked, c.owner, nil
}

// DrawnNumbers returns a game's drawn sequence in draw order.
func (e *Engine) DrawnNumbers(gameID uint64) []uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return nil
	}
	return append([]uint8{}, g.drawn...)
}

// CardPrice returns the card price.
func (e *Engine) CardPrice() decimal.Decimal { return e.cardPrice }

// CurrentGameID returns the active game id.
func (e *Engine) CurrentGameID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Idle reports whether the current game holds no staked pool.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.games[e.current]
	return g.pool.IsZero() && (g.state == model.BingoWaiting || g.state == model.BingoEnded)
}

// emit broadcasts an event when a hub is attached. Caller holds e.mu.
func (e *Engine) emit(ev events.Event) {
	if e.hub != nil {
		e.hub.Broadcast(ev)
	}
}
