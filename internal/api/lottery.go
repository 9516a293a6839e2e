package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// LotteryStart handles POST /lottery/start
func (s *Server) LotteryStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player          string `json:"player"`
		DurationSeconds int64  `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateAddress(req.Player); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.DurationSeconds <= 0 {
		writeError(w, "duration_seconds must be positive", http.StatusBadRequest)
		return
	}

	if err := s.Lottery.StartLottery(req.Player, time.Duration(req.DurationSeconds)*time.Second); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Lottery.LotteryInfo())
}

// LotteryBuyTickets handles POST /lottery/tickets
func (s *Server) LotteryBuyTickets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player  string          `json:"player"`
		Count   int             `json:"count"`
		Payment decimal.Decimal `json:"payment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateAddress(req.Player); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Lottery.BuyTickets(r.Context(), req.Player, req.Count, req.Payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": s.Lottery.PlayerTicketCount(req.Player),
	})
}

// LotteryEnd handles POST /lottery/end
func (s *Server) LotteryEnd(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Lottery.EndLottery(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "calculating"})
}

// LotteryRetryWinner handles POST /lottery/retry-winner
func (s *Server) LotteryRetryWinner(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Lottery.RetryWinnerRequest(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "calculating"})
}

// LotteryWithdraw handles POST /lottery/withdraw
func (s *Server) LotteryWithdraw(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	amount, err := s.Lottery.WithdrawWinnings(r.Context(), req.Player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount": amount})
}

// LotteryInfo handles GET /lottery
func (s *Server) LotteryInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Lottery.LotteryInfo())
}

// LotteryPlayers handles GET /lottery/players
func (s *Server) LotteryPlayers(w http.ResponseWriter, _ *http.Request) {
	players := s.Lottery.Players()
	if players == nil {
		players = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

// LotteryPlayerTickets handles GET /lottery/players/{address}/tickets
func (s *Server) LotteryPlayerTickets(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if err := model.ValidateAddress(addr); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tickets": s.Lottery.PlayerTicketCount(addr)})
}

// LotteryWinner handles GET /lottery/winner
func (s *Server) LotteryWinner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"winner": s.Lottery.RecentWinner()})
}

// LotteryTimeRemaining handles GET /lottery/time-remaining
func (s *Server) LotteryTimeRemaining(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"seconds": int64(s.Lottery.TimeRemaining() / time.Second),
	})
}

// LotteryTicketPrice handles GET /lottery/ticket-price
func (s *Server) LotteryTicketPrice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_price":           s.Lottery.TicketPrice(),
		"max_tickets_per_player": s.Lottery.MaxTicketsPerPlayer(),
	})
}

// LotteryHistory handles GET /lottery/history
func (s *Server) LotteryHistory(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusOK, []model.RoundResult{})
		return
	}
	results, err := s.Store.RecentRoundResults(r.Context(), 20)
	if err != nil {
		writeError(w, "failed to load round history", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []model.RoundResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// LotterySetTicketPrice handles POST /lottery/admin/ticket-price
func (s *Server) LotterySetTicketPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string          `json:"player"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Lottery.SetTicketPrice(req.Player, req.Price); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"ticket_price": req.Price})
}

// LotterySetAddresses handles POST /lottery/admin/addresses
func (s *Server) LotterySetAddresses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player   string `json:"player"`
		Charity  string `json:"charity"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Lottery.SetAddresses(req.Player, req.Charity, req.Platform); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"charity": req.Charity, "platform": req.Platform})
}

// LotterySetFees handles POST /lottery/admin/fees
func (s *Server) LotterySetFees(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player      string `json:"player"`
		PlatformBps int64  `json:"platform_bps"`
		CharityBps  int64  `json:"charity_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Lottery.SetFees(req.Player, req.PlatformBps, req.CharityBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"platform_bps": req.PlatformBps,
		"charity_bps":  req.CharityBps,
	})
}
