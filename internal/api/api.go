// Package api exposes the game engines as a JSON HTTP API. Handlers decode
// and validate the request, call one engine operation, and map engine errors
// to stable HTTP statuses; all game rules live in the engine packages.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/bingo"
	"github.com/wagerhouse/wager-engine/internal/blackjack"
	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/events"
	"github.com/wagerhouse/wager-engine/internal/limits"
	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/oracle"
	"github.com/wagerhouse/wager-engine/internal/raffle"
	"github.com/wagerhouse/wager-engine/internal/store"
)

// Server holds the engines and shared collaborators behind the HTTP surface.
type Server struct {
	Lottery   *raffle.Engine
	Blackjack *blackjack.Engine
	Bingo     *bingo.Engine
	Escrow    *escrow.Ledger
	Oracle    *oracle.Adapter
	Hub       *events.Hub
	Store     store.Store
	Operator  string
}

// Routes returns the API subtree, mounted by the caller (usually under
// /api/v1).
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	if s.Hub != nil {
		r.Get("/ws", s.Hub.HandleWS)
	}

	r.Route("/lottery", func(r chi.Router) {
		r.Get("/", s.LotteryInfo)
		r.Get("/players", s.LotteryPlayers)
		r.Get("/players/{address}/tickets", s.LotteryPlayerTickets)
		r.Get("/winner", s.LotteryWinner)
		r.Get("/time-remaining", s.LotteryTimeRemaining)
		r.Get("/ticket-price", s.LotteryTicketPrice)
		r.Get("/history", s.LotteryHistory)

		r.Post("/start", s.LotteryStart)
		r.Post("/tickets", s.LotteryBuyTickets)
		r.Post("/end", s.LotteryEnd)
		r.Post("/retry-winner", s.LotteryRetryWinner)
		r.Post("/withdraw", s.LotteryWithdraw)

		r.Post("/admin/ticket-price", s.LotterySetTicketPrice)
		r.Post("/admin/addresses", s.LotterySetAddresses)
		r.Post("/admin/fees", s.LotterySetFees)
	})

	r.Route("/blackjack", func(r chi.Router) {
		r.Get("/state/{address}", s.BlackjackState)
		r.Get("/limits", s.BlackjackLimits)

		r.Post("/start", s.BlackjackStart)
		r.Post("/hit", s.BlackjackHit)
		r.Post("/stand", s.BlackjackStand)
		r.Post("/double-down", s.BlackjackDoubleDown)
		r.Post("/withdraw", s.BlackjackWithdraw)
		r.Post("/retry-deal", s.BlackjackRetryDeal)
	})

	r.Route("/bingo", func(r chi.Router) {
		r.Get("/", s.BingoCurrentGame)
		r.Get("/card-price", s.BingoCardPrice)
		r.Get("/games/{gameID}", s.BingoGameInfo)
		r.Get("/games/{gameID}/numbers", s.BingoDrawnNumbers)
		r.Get("/games/{gameID}/cards/{cardID}", s.BingoCardDetails)
		r.Get("/games/{gameID}/players/{address}/cards", s.BingoPlayerCards)

		r.Post("/games", s.BingoNewGame)
		r.Post("/cards", s.BingoBuyCard)
		r.Post("/start", s.BingoStartGame)
		r.Post("/draw", s.BingoDrawNumber)
		r.Post("/retry-draw", s.BingoRetryDraw)
		r.Post("/mark", s.BingoMarkNumber)
		r.Post("/claim", s.BingoClaim)
		r.Post("/withdraw", s.BingoWithdraw)
	})

	r.Route("/escrow", func(r chi.Router) {
		r.Get("/balance/{address}", s.EscrowBalance)
		r.Get("/journal/{address}", s.EscrowJournal)
		r.Get("/reconcile", s.EscrowReconcile)
	})

	r.Post("/oracle/fulfill", s.OracleFulfill)
	r.Post("/admin/emergency-withdraw", s.EmergencyWithdraw)

	return r
}

// playerRequest is the common JSON body for caller-identified operations.
// payment carries the staked amount for payable operations.
type playerRequest struct {
	Player  string          `json:"player"`
	Payment decimal.Decimal `json:"payment"`
}

// decodePlayer decodes a playerRequest and validates the caller address.
// Writes the error response itself and returns false on failure.
func decodePlayer(w http.ResponseWriter, r *http.Request, req *playerRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := model.ValidateAddress(req.Player); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps a returned engine error to its HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

// statusFor maps engine sentinel errors to HTTP statuses. Unrecognized
// errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, model.ErrWrongPayment),
		errors.Is(err, raffle.ErrInvalidTicketCount),
		errors.Is(err, bingo.ErrNumberNotOnCard),
		errors.Is(err, escrow.ErrFeeCapExceeded),
		errors.Is(err, limits.ErrBetOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, bingo.ErrNotCardOwner):
		return http.StatusForbidden
	case errors.Is(err, bingo.ErrUnknownGame),
		errors.Is(err, bingo.ErrUnknownCard),
		errors.Is(err, oracle.ErrUnknownRequest),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrWrongState),
		errors.Is(err, raffle.ErrAlreadyRunning),
		errors.Is(err, raffle.ErrRoundEnded),
		errors.Is(err, raffle.ErrNotYetEnded),
		errors.Is(err, raffle.ErrNoPlayers),
		errors.Is(err, raffle.ErrCannotChangeWhileActive),
		errors.Is(err, limits.ErrLimitExceeded),
		errors.Is(err, escrow.ErrNothingToWithdraw),
		errors.Is(err, bingo.ErrNumberNotDrawn),
		errors.Is(err, bingo.ErrNoWinningPattern),
		errors.Is(err, bingo.ErrSeedPending),
		errors.Is(err, bingo.ErrAllNumbersDrawn):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
