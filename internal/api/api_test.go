package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/api"
	"github.com/wagerhouse/wager-engine/internal/bingo"
	"github.com/wagerhouse/wager-engine/internal/blackjack"
	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/oracle"
	"github.com/wagerhouse/wager-engine/internal/raffle"
	"github.com/wagerhouse/wager-engine/internal/store"
)

const (
	operator = "0x1111111111111111111111111111111111111111"
	platform = "0x2222222222222222222222222222222222222222"
	charity  = "0x3333333333333333333333333333333333333333"
	alice    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// captureCoordinator records submitted request ids so tests can fulfill them
// through the HTTP endpoint, like an external randomness service would.
type captureCoordinator struct {
	submitted []string
}

func (c *captureCoordinator) Submit(requestID string) error {
	c.submitted = append(c.submitted, requestID)
	return nil
}

func (c *captureCoordinator) last() string {
	return c.submitted[len(c.submitted)-1]
}

// newTestEnv builds the full API over an in-memory store.
func newTestEnv(t *testing.T) (chi.Router, *captureCoordinator, *escrow.Ledger) {
	t.Helper()

	ms := store.NewMemoryStore()
	ledger := escrow.NewLedger(escrow.LogSink{}, ms)
	coord := &captureCoordinator{}
	adapter := oracle.NewAdapter(coord)

	lottery := raffle.NewEngine(raffle.Config{
		Operator:        operator,
		PlatformAddress: platform,
		CharityAddress:  charity,
		TicketPrice:     d("1"),
		MaxPerPlayer:    10,
	}, ledger, adapter, ms, nil)

	duels := blackjack.NewEngine(blackjack.Config{
		Operator: operator,
		MinBet:   d("1"),
		MaxBet:   d("100"),
	}, ledger, adapter, nil)

	numberMatch := bingo.NewEngine(bingo.Config{
		Operator:  operator,
		CardPrice: d("2"),
	}, ledger, adapter, nil)

	srv := &api.Server{
		Lottery:   lottery,
		Blackjack: duels,
		Bingo:     numberMatch,
		Escrow:    ledger,
		Oracle:    adapter,
		Store:     ms,
		Operator:  operator,
	}

	r := chi.NewRouter()
	r.Mount("/api/v1", srv.Routes())
	return r, coord, ledger
}

func doPost(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func fulfill(t *testing.T, router chi.Router, requestID, randomness string) {
	t.Helper()
	w := doPost(t, router, "/api/v1/oracle/fulfill", map[string]string{
		"request_id": requestID,
		"randomness": randomness,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fulfill failed: %d %s", w.Code, w.Body.String())
	}
}

// --- Lottery ---

func TestLotteryLifecycle(t *testing.T) {
	router, coord, _ := newTestEnv(t)

	// Only the operator opens a round.
	w := doPost(t, router, "/api/v1/lottery/start", map[string]any{
		"player": alice, "duration_seconds": 3600,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = doPost(t, router, "/api/v1/lottery/start", map[string]any{
		"player": operator, "duration_seconds": 3600,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Exact payment is enforced.
	w = doPost(t, router, "/api/v1/lottery/tickets", map[string]any{
		"player": alice, "count": 2, "payment": "1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short payment, got %d: %s", w.Code, w.Body.String())
	}

	w = doPost(t, router, "/api/v1/lottery/tickets", map[string]any{
		"player": alice, "count": 2, "payment": "2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doGet(t, router, "/api/v1/lottery/players/"+alice+"/tickets")
	var tickets struct {
		Tickets int `json:"tickets"`
	}
	json.Unmarshal(w.Body.Bytes(), &tickets)
	if tickets.Tickets != 2 {
		t.Errorf("expected 2 tickets, got %d", tickets.Tickets)
	}

	// Operator closes early; the round waits on randomness.
	w = doPost(t, router, "/api/v1/lottery/end", map[string]any{"player": operator})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	fulfill(t, router, coord.last(), "0")

	w = doGet(t, router, "/api/v1/lottery/winner")
	var winner struct {
		Winner string `json:"winner"`
	}
	json.Unmarshal(w.Body.Bytes(), &winner)
	if winner.Winner != alice {
		t.Errorf("expected winner %s, got %s", alice, winner.Winner)
	}

	// 2-unit pool at the default 250/250 bps split.
	w = doPost(t, router, "/api/v1/lottery/withdraw", map[string]any{"player": alice})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var amount struct {
		Amount decimal.Decimal `json:"amount"`
	}
	json.Unmarshal(w.Body.Bytes(), &amount)
	if !amount.Amount.Equal(d("1.9")) {
		t.Errorf("expected prize 1.9, got %s", amount.Amount)
	}

	// A second withdrawal finds nothing.
	w = doPost(t, router, "/api/v1/lottery/withdraw", map[string]any{"player": alice})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}

	// The settled round is archived.
	w = doGet(t, router, "/api/v1/lottery/history")
	var history []struct {
		LotteryID uint64 `json:"lottery_id"`
		Winner    string `json:"winner"`
	}
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 || history[0].Winner != alice {
		t.Errorf("unexpected history: %s", w.Body.String())
	}
}

func TestLotteryInvalidAddress(t *testing.T) {
	router, _, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/lottery/tickets", map[string]any{
		"player": "not-an-address", "count": 1, "payment": "1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestLotteryBuyWithoutOpenRound(t *testing.T) {
	router, _, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/lottery/tickets", map[string]any{
		"player": alice, "count": 1, "payment": "1",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Blackjack ---

func TestBlackjackStartAndState(t *testing.T) {
	router, coord, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/blackjack/start", map[string]any{
		"player": alice, "payment": "500",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized bet, got %d: %s", w.Code, w.Body.String())
	}

	w = doPost(t, router, "/api/v1/blackjack/start", map[string]any{
		"player": alice, "payment": "10",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var st blackjack.GameState
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.StateName != "waiting" {
		t.Errorf("expected waiting state, got %s", st.StateName)
	}

	// Seed delivery deals the opening hands.
	fulfill(t, router, coord.last(), "12345")

	w = doGet(t, router, "/api/v1/blackjack/state/"+alice)
	json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.PlayerCards) != 2 || len(st.DealerCards) != 2 {
		t.Errorf("expected opening deal, got %s", w.Body.String())
	}
}

func TestBlackjackLimits(t *testing.T) {
	router, _, _ := newTestEnv(t)

	w := doGet(t, router, "/api/v1/blackjack/limits")
	var limits struct {
		MinBet decimal.Decimal `json:"min_bet"`
		MaxBet decimal.Decimal `json:"max_bet"`
	}
	json.Unmarshal(w.Body.Bytes(), &limits)
	if !limits.MinBet.Equal(d("1")) || !limits.MaxBet.Equal(d("100")) {
		t.Errorf("unexpected limits: %s", w.Body.String())
	}
}

func TestBlackjackActionsBeforeDeal(t *testing.T) {
	router, _, _ := newTestEnv(t)

	doPost(t, router, "/api/v1/blackjack/start", map[string]any{
		"player": alice, "payment": "10",
	})

	w := doPost(t, router, "/api/v1/blackjack/hit", map[string]any{"player": alice})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 before deal, got %d", w.Code)
	}
}

// --- Bingo ---

func TestBingoCardSaleGatedOnSeed(t *testing.T) {
	router, coord, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/bingo/cards", map[string]any{
		"player": alice, "payment": "2",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before seed, got %d: %s", w.Code, w.Body.String())
	}

	// The first submitted request is game 1's card seed.
	fulfill(t, router, coord.submitted[0], "42")

	w = doPost(t, router, "/api/v1/bingo/cards", map[string]any{
		"player": alice, "payment": "2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var bought struct {
		GameID uint64 `json:"game_id"`
		CardID uint64 `json:"card_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &bought)
	if bought.GameID != 1 || bought.CardID != 1 {
		t.Errorf("unexpected purchase: %s", w.Body.String())
	}

	w = doGet(t, router, "/api/v1/bingo/games/1/cards/1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doGet(t, router, "/api/v1/bingo/games/7")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown game, got %d", w.Code)
	}
}

func TestBingoDrawFlow(t *testing.T) {
	router, coord, _ := newTestEnv(t)
	fulfill(t, router, coord.submitted[0], "42")

	doPost(t, router, "/api/v1/bingo/cards", map[string]any{"player": alice, "payment": "2"})

	w := doPost(t, router, "/api/v1/bingo/start", map[string]any{"player": operator})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doPost(t, router, "/api/v1/bingo/draw", map[string]any{"player": operator})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	fulfill(t, router, coord.last(), "16") // draws number 17

	w = doGet(t, router, "/api/v1/bingo/games/1/numbers")
	var drawn struct {
		Numbers []uint8 `json:"numbers"`
	}
	json.Unmarshal(w.Body.Bytes(), &drawn)
	if len(drawn.Numbers) != 1 || drawn.Numbers[0] != 17 {
		t.Errorf("unexpected drawn numbers: %s", w.Body.String())
	}
}

// --- Oracle and admin ---

func TestOracleFulfillValidation(t *testing.T) {
	router, _, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/oracle/fulfill", map[string]string{
		"request_id": "no-such-request", "randomness": "7",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown request, got %d", w.Code)
	}

	w = doPost(t, router, "/api/v1/oracle/fulfill", map[string]string{
		"request_id": "x", "randomness": "not-a-number",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad randomness, got %d", w.Code)
	}
}

func TestEmergencyWithdrawGuards(t *testing.T) {
	router, _, _ := newTestEnv(t)

	w := doPost(t, router, "/api/v1/admin/emergency-withdraw", map[string]any{"player": alice})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}

	// Idle but nothing accumulated.
	w = doPost(t, router, "/api/v1/admin/emergency-withdraw", map[string]any{"player": operator})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 with no house funds, got %d: %s", w.Code, w.Body.String())
	}

	// An open round blocks the sweep.
	doPost(t, router, "/api/v1/lottery/start", map[string]any{
		"player": operator, "duration_seconds": 3600,
	})
	w = doPost(t, router, "/api/v1/admin/emergency-withdraw", map[string]any{"player": operator})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 during active round, got %d", w.Code)
	}
}

func TestEscrowViews(t *testing.T) {
	router, coord, ledger := newTestEnv(t)

	doPost(t, router, "/api/v1/lottery/start", map[string]any{
		"player": operator, "duration_seconds": 3600,
	})
	doPost(t, router, "/api/v1/lottery/tickets", map[string]any{
		"player": bob, "count": 1, "payment": "1",
	})
	doPost(t, router, "/api/v1/lottery/end", map[string]any{"player": operator})
	fulfill(t, router, coord.last(), "3")

	w := doGet(t, router, "/api/v1/escrow/balance/"+bob)
	var balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	json.Unmarshal(w.Body.Bytes(), &balance)
	if !balance.Balance.Equal(ledger.Balance(bob)) || balance.Balance.IsZero() {
		t.Errorf("unexpected balance: %s", w.Body.String())
	}

	w = doGet(t, router, "/api/v1/escrow/journal/"+bob)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []struct {
		Kind string `json:"kind"`
	}
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 { // stake then payout
		t.Errorf("expected 2 journal entries, got %d: %s", len(entries), w.Body.String())
	}

	w = doGet(t, router, "/api/v1/escrow/reconcile")
	var rec struct {
		Balanced bool `json:"balanced"`
	}
	json.Unmarshal(w.Body.Bytes(), &rec)
	if !rec.Balanced {
		t.Errorf("books should balance: %s", w.Body.String())
	}
}
