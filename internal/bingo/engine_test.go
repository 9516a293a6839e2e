package bingo

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/oracle"
)

const (
	operator = "0x1111111111111111111111111111111111111111"
	alice    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// stubCoordinator records submitted ids without fulfilling.
type stubCoordinator struct {
	submitted []string
}

func (c *stubCoordinator) Submit(requestID string) error {
	c.submitted = append(c.submitted, requestID)
	return nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	engine *Engine
	ledger *escrow.Ledger
	coord  *stubCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger: escrow.NewLedger(escrow.LogSink{}, nil),
		coord:  &stubCoordinator{},
	}
	env.engine = NewEngine(Config{
		Operator:  operator,
		CardPrice: d("2"),
	}, env.ledger, oracle.NewAdapter(env.coord), nil)
	return env
}

// seed installs the current game's card seed from the outstanding request.
func (env *testEnv) seed(t *testing.T, word uint64) {
	t.Helper()
	g := env.engine.games[env.engine.CurrentGameID()]
	require.NotEmpty(t, g.seedReq)
	env.engine.fulfillSeed(g.id, g.seedReq, word)
	require.True(t, g.seedReady)
}

// draw draws one specific number through the request/fulfill cycle.
func (env *testEnv) draw(t *testing.T, n uint8) {
	t.Helper()
	require.NoError(t, env.engine.DrawNumber(operator))
	g := env.engine.games[env.engine.CurrentGameID()]
	env.engine.fulfillDraw(g.id, g.pendingReq, uint64(n-1))
}

func TestBuyCardBeforeSeed(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.BuyCard(context.Background(), alice, d("2"))
	assert.ErrorIs(t, err, ErrSeedPending)
}

func TestBuyCardPaymentAndSequence(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()

	_, err := env.engine.BuyCard(ctx, alice, d("1"))
	assert.ErrorIs(t, err, model.ErrWrongPayment)

	id1, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	id2, err := env.engine.BuyCard(ctx, bob, d("2"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
	assert.True(t, env.ledger.PoolBalance(model.GameBingo).Equal(d("4")))

	info, err := env.engine.Info(1)
	require.NoError(t, err)
	assert.True(t, info.Pool.Equal(d("4")))
	assert.Equal(t, 2, info.TotalPlayers)
	assert.Equal(t, []uint64{1}, env.engine.PlayerCards(alice, 1))
}

func TestCardsAreDistinctPerBuyer(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()

	id1, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	id2, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)

	n1, _, _, err := env.engine.CardDetails(1, id1)
	require.NoError(t, err)
	n2, _, _, err := env.engine.CardDetails(1, id2)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestStartGameGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)

	assert.ErrorIs(t, env.engine.StartGame(alice), model.ErrUnauthorized)
	// No cards sold yet.
	assert.ErrorIs(t, env.engine.StartGame(operator), model.ErrWrongState)

	_, err := env.engine.BuyCard(context.Background(), alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	info, err := env.engine.Info(1)
	require.NoError(t, err)
	assert.Equal(t, model.BingoActive, info.State)

	// Sales close once the game is active.
	_, err = env.engine.BuyCard(context.Background(), bob, d("2"))
	assert.ErrorIs(t, err, model.ErrWrongState)
}

func TestDrawNumberCycle(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	_, err := env.engine.BuyCard(context.Background(), alice, d("2"))
	require.NoError(t, err)

	// Drawing requires an active game and the operator.
	assert.ErrorIs(t, env.engine.DrawNumber(operator), model.ErrWrongState)
	require.NoError(t, env.engine.StartGame(operator))
	assert.ErrorIs(t, env.engine.DrawNumber(alice), model.ErrUnauthorized)

	env.draw(t, 17)
	assert.Equal(t, []uint8{17}, env.engine.DrawnNumbers(1))

	info, err := env.engine.Info(1)
	require.NoError(t, err)
	assert.Equal(t, model.BingoActive, info.State)
	assert.Equal(t, 1, info.NumbersDrawn)
}

func TestDrawGatesMarksWhilePending(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	cardID, err := env.engine.BuyCard(context.Background(), alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	require.NoError(t, env.engine.DrawNumber(operator))

	// Outstanding draw: the game sits in Drawing and rejects play.
	numbers, _, _, err := env.engine.CardDetails(1, cardID)
	require.NoError(t, err)
	assert.ErrorIs(t, env.engine.MarkNumber(alice, cardID, numbers[0]), model.ErrWrongState)
	assert.ErrorIs(t, env.engine.ClaimBingo(context.Background(), alice, cardID), model.ErrWrongState)
	assert.ErrorIs(t, env.engine.DrawNumber(operator), model.ErrWrongState)
}

func TestStaleDrawFulfillmentIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	_, err := env.engine.BuyCard(context.Background(), alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))
	require.NoError(t, env.engine.DrawNumber(operator))

	env.engine.fulfillDraw(1, "superseded-request", 10)
	assert.Empty(t, env.engine.DrawnNumbers(1))

	g := env.engine.games[1]
	assert.Equal(t, model.BingoDrawing, g.state)
}

func TestMarkNumberValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()
	cardID, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	numbers, _, _, err := env.engine.CardDetails(1, cardID)
	require.NoError(t, err)
	onCard := numbers[0]
	offCard := findAbsent(numbers)

	assert.ErrorIs(t, env.engine.MarkNumber(alice, 99, onCard), ErrUnknownCard)
	assert.ErrorIs(t, env.engine.MarkNumber(bob, cardID, onCard), ErrNotCardOwner)
	assert.ErrorIs(t, env.engine.MarkNumber(alice, cardID, offCard), ErrNumberNotOnCard)
	assert.ErrorIs(t, env.engine.MarkNumber(alice, cardID, onCard), ErrNumberNotDrawn)

	env.draw(t, onCard)
	require.NoError(t, env.engine.MarkNumber(alice, cardID, onCard))
	// Marking an already-marked cell is idempotent.
	require.NoError(t, env.engine.MarkNumber(alice, cardID, onCard))

	_, marked, _, err := env.engine.CardDetails(1, cardID)
	require.NoError(t, err)
	assert.True(t, marked[0])
}

func TestClaimRequiresPattern(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()
	cardID, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	assert.ErrorIs(t, env.engine.ClaimBingo(ctx, alice, cardID), ErrNoWinningPattern)

	// The failed claim changed nothing.
	info, err := env.engine.Info(1)
	require.NoError(t, err)
	assert.Equal(t, model.BingoActive, info.State)
	assert.True(t, info.Pool.Equal(d("2")))
}

func TestFullWinFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()

	cardID, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	_, err = env.engine.BuyCard(ctx, bob, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	// Draw and mark alice's entire top row.
	numbers, _, _, err := env.engine.CardDetails(1, cardID)
	require.NoError(t, err)
	for col := 0; col < gridSize; col++ {
		n := numbers[col]
		env.draw(t, n)
		require.NoError(t, env.engine.MarkNumber(alice, cardID, n))
	}

	require.NoError(t, env.engine.ClaimBingo(ctx, alice, cardID))

	info, err := env.engine.Info(1)
	require.NoError(t, err)
	assert.Equal(t, model.BingoEnded, info.State)
	assert.True(t, info.Pool.IsZero())
	assert.Equal(t, alice, info.Winner)

	// The whole pool goes to the claimant.
	assert.True(t, env.ledger.Balance(alice).Equal(d("4")))
	_, _, ok := env.ledger.Reconcile()
	assert.True(t, ok)

	// The settled game accepts no further claims.
	assert.ErrorIs(t, env.engine.ClaimBingo(ctx, bob, 2), model.ErrWrongState)

	amount, err := env.engine.Withdraw(ctx, alice)
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("4")))
}

func TestStartNewGameAfterEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 42)
	ctx := context.Background()

	assert.ErrorIs(t, env.engine.StartNewGame(operator), model.ErrWrongState)

	cardID, err := env.engine.BuyCard(ctx, alice, d("2"))
	require.NoError(t, err)
	require.NoError(t, env.engine.StartGame(operator))

	numbers, _, _, err := env.engine.CardDetails(1, cardID)
	require.NoError(t, err)
	for col := 0; col < gridSize; col++ {
		env.draw(t, numbers[col])
		require.NoError(t, env.engine.MarkNumber(alice, cardID, numbers[col]))
	}
	require.NoError(t, env.engine.ClaimBingo(ctx, alice, cardID))

	assert.ErrorIs(t, env.engine.StartNewGame(alice), model.ErrUnauthorized)
	require.NoError(t, env.engine.StartNewGame(operator))
	assert.Equal(t, uint64(2), env.engine.CurrentGameID())

	// The new game requested its own card seed and starts Waiting.
	info, err := env.engine.Info(2)
	require.NoError(t, err)
	assert.Equal(t, model.BingoWaiting, info.State)

	g := env.engine.games[2]
	assert.False(t, g.seedReady)
	assert.NotEmpty(t, g.seedReq)

	_, err = env.engine.BuyCard(ctx, bob, d("2"))
	assert.ErrorIs(t, err, ErrSeedPending)
}

func TestUnknownGameViews(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Info(99)
	assert.ErrorIs(t, err, ErrUnknownGame)
	assert.Nil(t, env.engine.DrawnNumbers(99))
	assert.Nil(t, env.engine.PlayerCards(alice, 99))

	_, _, _, err = env.engine.CardDetails(99, 1)
	assert.ErrorIs(t, err, ErrUnknownGame)
}

// findAbsent returns a number in 1..75 that is not on the card.
func findAbsent(numbers [cardCells]uint8) uint8 {
	on := make(map[uint8]bool, cardCells)
	for _, n := range numbers {
		on[n] = true
	}
	for n := uint8(1); n <= maxNumber; n++ {
		if !on[n] {
			return n
		}
	}
	return 0
}
