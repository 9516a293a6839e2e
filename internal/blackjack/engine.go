// Package blackjack implements the player-vs-house card duel. Each game
// start consumes one oracle seed that deterministically shuffles the deck;
// all draws for that game come from the shuffled deck in order.
package blackjack

import (
	"context"
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
)

// Game results reported in the game-ended event and state view.
const (
	ResultBlackjack = "blackjack"
	ResultWin       = "win"
	ResultPush      = "push"
	ResultBust      = "bust"
	ResultLose      = "lose"
)

// houseStandsAt is the total at which the house stops drawing.
const houseStandsAt = 17

// oraclePurpose tags this engine's randomness requests.
const oraclePurpose = "deal_seed"

// duel is one player-vs-house hand. One live duel per address.
type duel struct {
	stake      decimal.Decimal
	state      model.DuelState
	deck       []model.PlayingCard
	deckPos    int
	player     []model.PlayingCard
	house      []model.PlayingCard
	result     string
	payout     decimal.Decimal
	pendingReq string
}

// Config carries the engine's deployment-time parameters.
type Config struct {
	Operator string
	MinBet   decimal.Decimal
	MaxBet   decimal.Decimal
}

// Engine is the card-duel state machine, keyed by player address.
type Engine struct {
	mu sync.Mutex

	operator string
	stakes   *limits.StakeLimiter

	ledger  *escrow.Ledger
	adapter *oracle.Adapter
	hub     *events.Hub

	duels map[string]*duel
	now   func() time.Time
}

// NewEngine creates a blackjack engine. Pass nil for hub to run without
// event broadcasting (tests).
func NewEngine(cfg Config, ledger *escrow.Ledger, adapter *oracle.Adapter, hub *events.Hub) *Engine {
	return &Engine{
		operator: cfg.Operator,
		stakes:   limits.NewStakeLimiter(cfg.MinBet, cfg.MaxBet),
		ledger:   ledger,
		adapter:  adapter,
		hub:      hub,
		duels:    make(map[string]*duel),
		now:      time.Now,
	}
}

// StartGame stakes payment on a new duel for caller. The stake is escrowed
// immediately; dealing happens when the oracle seed arrives, as a separate
// atomic step.
func (e *Engine) StartGame(ctx context.Context, caller string, payment decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.duels[caller]; ok && d.state != model.DuelEnded {
		return model.ErrWrongState
	}
	if err := e.stakes.CheckStake(payment); err != nil {
		metrics.RejectionsTotal.WithLabelValues(model.GameBlackjack, "bet_range").Inc()
		return err
	}

	e.ledger.Receive(ctx, model.GameBlackjack, caller, payment)
	metrics.StakesTotal.WithLabelValues(model.GameBlackjack).Inc()

	d := &duel{
		stake:  payment,
		state:  model.DuelWaiting,
		payout: decimal.Zero,
	}
	e.duels[caller] = d

	reqID, err := e.adapter.Request(model.GameBlackjack, oraclePurpose, func(id string, word uint64) {
		e.fulfillDeal(caller, id, word)
	})
	if err != nil {
		// Stake stays escrowed; the operator retry path re-requests.
		slog.Error("deal seed request failed", "player", caller, "err", err)
		return nil
	}
	d.pendingReq = reqID
	metrics.OracleRequestsInFlight.Inc()

	e.emit(events.Event{
		Type:   events.TypeGameStarted,
		Game:   model.GameBlackjack,
		Player: caller,
		Amount: payment.String(),
	})
	return nil
}

// RetryDealRequest re-requests the deal seed for a duel stuck waiting on the
// oracle. Operator only.
func (e *Engine) RetryDealRequest(caller, player string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.operator {
		return model.ErrUnauthorized
	}
	d, ok := e.duels[player]
	if !ok || d.state != model.DuelWaiting {
		return model.ErrWrongState
	}

	if d.pendingReq != "" {
		if err := e.adapter.Cancel(d.pendingReq); err == nil {
			metrics.OracleRequestsInFlight.Dec()
		}
	}
	reqID, err := e.adapter.Request(model.GameBlackjack, oraclePurpose, func(id string, word uint64) {
		e.fulfillDeal(player, id, word)
	})
	if err != nil {
		return err
	}
	d.pendingReq = reqID
	metrics.OracleRequestsInFlight.Inc()
	return nil
}

// fulfillDeal consumes the oracle seed: shuffles, deals the opening hands,
// and settles naturals immediately.
func (e *Engine) fulfillDeal(player, requestID string, word uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.duels[player]
	if !ok || d.state != model.DuelWaiting || d.pendingReq != requestID {
		slog.Warn("stale deal fulfillment ignored", "player", player, "request_id", requestID)
		metrics.OracleFulfillmentsTotal.WithLabelValues("stale").Inc()
		return
	}
	d.pendingReq = ""
	metrics.OracleRequestsInFlight.Dec()
	metrics.OracleFulfillmentsTotal.WithLabelValues("consumed").Inc()

	e.deal(player, d, newDeck(word))
}

// deal installs the shuffled deck, deals the opening hands, and settles any
// natural on the spot. Caller holds e.mu.
func (e *Engine) deal(player string, d *duel, deck []model.PlayingCard) {
	d.deck = deck
	d.player = append(d.player, d.draw(), d.draw())
	d.house = append(d.house, d.draw(), d.draw())

	ctx := context.Background()
	switch {
	case isNatural(d.player) && isNatural(d.house):
		e.settle(ctx, player, d, ResultPush)
	case isNatural(d.player):
		e.settle(ctx, player, d, ResultBlackjack)
	default:
		d.state = model.DuelPlayerTurn
	}
}

// Hit draws one card for the player. Busting ends the duel with a loss.
func (e *Engine) Hit(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.playerTurn(caller)
	if err != nil {
		return err
	}

	d.player = append(d.player, d.draw())
	if handTotal(d.player) > 21 {
		e.settle(ctx, caller, d, ResultBust)
	}
	return nil
}

// Stand ends the player's turn; the house draws to 17 and the duel resolves.
func (e *Engine) Stand(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.playerTurn(caller)
	if err != nil {
		return err
	}

	e.resolveHouse(ctx, caller, d)
	return nil
}

// DoubleDown doubles the wager with a matching payment, draws exactly one
// card, then resolves as Stand would. Allowed only on the opening two cards.
func (e *Engine) DoubleDown(ctx context.Context, caller string, payment decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.playerTurn(caller)
	if err != nil {
		return err
	}
	if len(d.player) != 2 {
		return model.ErrWrongState
	}
	if !payment.Equal(d.stake) {
		metrics.RejectionsTotal.WithLabelValues(model.GameBlackjack, "payment").Inc()
		return model.ErrWrongPayment
	}

	e.ledger.Receive(ctx, model.GameBlackjack, caller, payment)
	d.stake = d.stake.Add(payment)

	d.player = append(d.player, d.draw())
	if handTotal(d.player) > 21 {
		e.settle(ctx, caller, d, ResultBust)
		return nil
	}
	e.resolveHouse(ctx, caller, d)
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

// resolveHouse plays out the house hand and settles. Caller holds e.mu.
func (e *Engine) resolveHouse(ctx context.Context, player string, d *duel) {
	d.state = model.DuelHouseTurn
	for handTotal(d.house) < houseStandsAt {
		d.house = append(d.house, d.draw())
	}

	playerTotal := handTotal(d.player)
	houseTotal := handTotal(d.house)

	switch {
	case houseTotal > 21 || playerTotal > houseTotal:
		e.settle(ctx, player, d, ResultWin)
	case playerTotal == houseTotal:
		e.settle(ctx, player, d, ResultPush)
	default:
		e.settle(ctx, player, d, ResultLose)
	}
}

// settle finishes the duel, crediting any payout to escrow. The stake is
// already pooled; wins return it plus matching house winnings, pushes return
// it alone, losses sweep it to the house. Caller holds e.mu.
func (e *Engine) settle(ctx context.Context, player string, d *duel, result string) {
	d.state = model.DuelEnded
	d.result = result

	var err error
	switch result {
	case ResultWin, ResultBlackjack:
		if err = e.ledger.Credit(ctx, model.GameBlackjack, player, d.stake, model.JournalPayout); err == nil {
			e.ledger.HouseCredit(ctx, model.GameBlackjack, player, d.stake)
			d.payout = d.stake.Mul(decimal.NewFromInt(2))
		}
	case ResultPush:
		if err = e.ledger.Credit(ctx, model.GameBlackjack, player, d.stake, model.JournalPayout); err == nil {
			d.payout = d.stake
		}
	default: // bust, lose
		err = e.ledger.SweepToHouse(ctx, model.GameBlackjack, d.stake)
	}
	if err != nil {
		slog.Error("duel settlement failed", "player", player, "result", result, "err", err)
	}
	if d.payout.IsPositive() {
		metrics.PayoutsTotal.WithLabelValues(model.GameBlackjack).Inc()
	}

	slog.Info("duel ended",
		"player", player,
		"result", result,
		"payout", d.payout.String(),
		"player_total", handTotal(d.player),
		"house_total", handTotal(d.house),
	)
	e.emit(events.Event{
		Type:   events.TypeGameEnded,
		Game:   model.GameBlackjack,
		Player: player,
		Result: result,
		Amount: d.payout.String(),
	})
}

// playerTurn fetches caller's duel if it is the player's turn.
// Caller holds e.mu.
func (e *Engine) playerTurn(caller string) (*duel, error) {
	d, ok := e.duels[caller]
	if !ok || d.state != model.DuelPlayerTurn {
		return nil, model.ErrWrongState
	}
	return d, nil
}

// draw takes the next card from the duel's shuffled deck.
func (d *duel) draw() model.PlayingCard {
	c := d.deck[d.deckPos]
	d.deckPos++
	return c
}

// --- Views ---

// GameState is the per-player duel snapshot.
type GameState struct {
	Bet         decimal.Decimal     `json:"bet"`
	PlayerTotal int                 `json:"player_total"`
	DealerTotal int                 `json:"dealer_total"`
	State       model.DuelState     `json:"state"`
	StateName   string              `json:"state_name"`
	Result      string              `json:"result,omitempty"`
	PlayerCards []model.PlayingCard `json:"player_cards"`
	DealerCards []model.PlayingCard `json:"dealer_cards"`
}

// PlayerGameState returns addr's current duel snapshot. An address with no
// duel reports the Waiting state with zero values.
func (e *Engine) PlayerGameState(addr string) GameState {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.duels[addr]
	if !ok {
		return GameState{
			Bet:         decimal.Zero,
			State:       model.DuelWaiting,
			StateName:   model.DuelWaiting.String(),
			PlayerCards: []model.PlayingCard{},
			DealerCards: []model.PlayingCard{},
		}
	}

	return GameState{
		Bet:         d.stake,
		PlayerTotal: handTotal(d.player),
		DealerTotal: handTotal(d.house),
		State:       d.state,
		StateName:   d.state.String(),
		Result:      d.result,
		PlayerCards: append([]model.PlayingCard{}, d.player...),
		DealerCards: append([]model.PlayingCard{}, d.house...),
	}
}

// MinBet returns the lower stake bound.
func (e *Engine) MinBet() decimal.Decimal { return e.stakes.Min }

// MaxBet returns the upper stake bound.
func (e *Engine) MaxBet() decimal.Decimal { return e.stakes.Max }

// Idle reports whether no duel is mid-hand.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range e.duels {
		if d.state != model.DuelEnded {
			return false
		}
	}
	return true
}

// emit broadcasts an event when a hub is attached. Caller holds e.mu.
func (e *Engine) emit(ev events.Event) {
	if e.hub != nil {
		e.hub.Broadcast(ev)
	}
}
