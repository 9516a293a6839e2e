package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// BingoNewGame handles POST /bingo/games
// Opens the next game once the current one has ended. Operator only.
func (s *Server) BingoNewGame(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Bingo.StartNewGame(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"game_id": s.Bingo.CurrentGameID()})
}

// BingoBuyCard handles POST /bingo/cards
func (s *Server) BingoBuyCard(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	cardID, err := s.Bingo.BuyCard(r.Context(), req.Player, req.Payment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{
		"game_id": s.Bingo.CurrentGameID(),
		"card_id": cardID,
	})
}

// BingoStartGame handles POST /bingo/start
func (s *Server) BingoStartGame(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Bingo.StartGame(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// BingoDrawNumber handles POST /bingo/draw
func (s *Server) BingoDrawNumber(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Bingo.DrawNumber(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "drawing"})
}

// BingoRetryDraw handles POST /bingo/retry-draw
func (s *Server) BingoRetryDraw(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	if err := s.Bingo.RetryDrawRequest(req.Player); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "drawing"})
}

// BingoMarkNumber handles POST /bingo/mark
func (s *Server) BingoMarkNumber(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string `json:"player"`
		CardID uint64 `json:"card_id"`
		Number uint8  `json:"number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateAddress(req.Player); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Bingo.MarkNumber(req.Player, req.CardID, req.Number); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "marked"})
}

// BingoClaim handles POST /bingo/claim
func (s *Server) BingoClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string `json:"player"`
		CardID uint64 `json:"card_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateAddress(req.Player); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Bingo.ClaimBingo(r.Context(), req.Player, req.CardID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": s.Escrow.Balance(req.Player)})
}

// BingoWithdraw handles POST /bingo/withdraw
func (s *Server) BingoWithdraw(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodePlayer(w, r, &req) {
		return
	}
	amount, err := s.Bingo.Withdraw(r.Context(), req.Player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount": amount})
}

// BingoCurrentGame handles GET /bingo
func (s *Server) BingoCurrentGame(w http.ResponseWriter, _ *http.Request) {
	info, err := s.Bingo.Info(s.Bingo.CurrentGameID())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// BingoCardPrice handles GET /bingo/card-price
func (s *Server) BingoCardPrice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"card_price": s.Bingo.CardPrice()})
}

// BingoGameInfo handles GET /bingo/games/{gameID}
func (s *Server) BingoGameInfo(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseID(w, r, "gameID")
	if !ok {
		return
	}
	info, err := s.Bingo.Info(gameID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// BingoDrawnNumbers handles GET /bingo/games/{gameID}/numbers
func (s *Server) BingoDrawnNumbers(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseID(w, r, "gameID")
	if !ok {
		return
	}
	drawn := s.Bingo.DrawnNumbers(gameID)
	if drawn == nil {
		drawn = []uint8{}
	}
	writeJSON(w, http.StatusOK, map[string][]uint8{"numbers": drawn})
}

// BingoCardDetails handles GET /bingo/games/{gameID}/cards/{cardID}
func (s *Server) BingoCardDetails(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseID(w, r, "gameID")
	if !ok {
		return
	}
	cardID, ok := parseID(w, r, "cardID")
	if !ok {
		return
	}
	numbers, marked, owner, err := s.Bingo.CardDetails(gameID, cardID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"card_id": cardID,
		"owner":   owner,
		"numbers": numbers,
		"marked":  marked,
	})
}

// BingoPlayerCards handles GET /bingo/games/{gameID}/players/{address}/cards
func (s *Server) BingoPlayerCards(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseID(w, r, "gameID")
	if !ok {
		return
	}
	addr := chi.URLParam(r, "address")
	if err := model.ValidateAddress(addr); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cards := s.Bingo.PlayerCards(addr, gameID)
	if cards == nil {
		cards = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string][]uint64{"cards": cards})
}

// parseID parses a positive uint64 URL parameter. Writes the error response
// itself and returns false on failure.
func parseID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
