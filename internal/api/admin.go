package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// OracleFulfill handles POST /oracle/fulfill
// Delivery endpoint for an external randomness service. randomness is a
// decimal string so the full 64-bit word survives JSON number precision.
func (s *Server) OracleFulfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID  string `json:"request_id"`
		Randomness string `json:"randomness"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	word, err := strconv.ParseUint(req.Randomness, 10, 64)
	if err != nil {
		writeError(w, "randomness must be a uint64 decimal string", http.StatusBadRequest)
		return
	}

	if err := s.Oracle.Fulfill(req.RequestID, word); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
}

// EmergencyWithdraw handles POST /admin/emergency-withdraw
// Sweeps accumulated house funds to the operator. Rejected while any engine
// holds an active round, so no player stake can be caught in the sweep.
func (s *Server) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if req.Player != s.Operator {
		writeEngineError(w, model.ErrUnauthorized)
		return
	}
	if !s.Lottery.Idle() || !s.Blackjack.Idle() || !s.Bingo.Idle() {
		writeEngineError(w, model.ErrWrongState)
		return
	}

	amount, err := s.Escrow.EmergencyWithdraw(r.Context(), req.Player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount": amount})
}

// EscrowBalance handles GET /escrow/balance/{address}
func (s *Server) EscrowBalance(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if err := model.ValidateAddress(addr); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": s.Escrow.Balance(addr)})
}

// EscrowJournal handles GET /escrow/journal/{address}
func (s *Server) EscrowJournal(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if err := model.ValidateAddress(addr); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.Store == nil {
		writeJSON(w, http.StatusOK, []model.JournalEntry{})
		return
	}
	entries, err := s.Store.JournalByAddress(r.Context(), addr)
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// EscrowReconcile handles GET /escrow/reconcile
// Exposes the conservation check: received == pools + balances + withdrawn
// + house funds.
func (s *Server) EscrowReconcile(w http.ResponseWriter, _ *http.Request) {
	received, accounted, ok := s.Escrow.Reconcile()
	writeJSON(w, http.StatusOK, map[string]any{
		"received":  received,
		"accounted": accounted,
		"balanced":  ok,
	})
}
