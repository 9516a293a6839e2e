package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// BlackjackStart handles POST /blackjack/start
func (s *Server) BlackjackStart(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Blackjack.StartGame(r.Context(), req.Player, req.Payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Blackjack.PlayerGameState(req.Player))
}

// BlackjackHit handles POST /blackjack/hit
func (s *Server) BlackjackHit(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Blackjack.Hit(r.Context(), req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Blackjack.PlayerGameState(req.Player))
}

// BlackjackStand handles POST /blackjack/stand
func (s *Server) BlackjackStand(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Blackjack.Stand(r.Context(), req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Blackjack.PlayerGameState(req.Player))
}

// BlackjackDoubleDown handles POST /blackjack/double-down
func (s *Server) BlackjackDoubleDown(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Blackjack.DoubleDown(r.Context(), req.Player, req.Payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Blackjack.PlayerGameState(req.Player))
}

// BlackjackWithdraw handles POST /blackjack/withdraw
func (s *Server) BlackjackWithdraw(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	amount, err := s.Blackjack.Withdraw(r.Context(), req.Player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount": amount})
}

// BlackjackRetryDeal handles POST /blackjack/retry-deal
// Operator recovery path for a duel stuck waiting on the oracle seed.
func (s *Server) BlackjackRetryDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string `json:"player"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateAddress(req.Target); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Blackjack.RetryDealRequest(req.Player, req.Target); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "waiting"})
}

// BlackjackState handles GET /blackjack/state/{address}
func (s *Server) BlackjackState(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if err := model.ValidateAddress(addr); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.Blackjack.PlayerGameState(addr))
}

// BlackjackLimits handles GET /blackjack/limits
func (s *Server) BlackjackLimits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"min_bet": s.Blackjack.MinBet(),
		"max_bet": s.Blackjack.MaxBet(),
	})
}
