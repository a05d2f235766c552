package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"wagerbook/internal/middleware"
	"wagerbook/internal/models"
	"wagerbook/internal/services"

	"github.com/go-chi/chi/v5"
)

type placeBetRequest struct {
	MarketID  string `json:"market_id"`
	Selection string `json:"selection"`
	Stake     int64  `json:"stake"`
}

func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MarketID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	bet, err := h.bets.PlaceBet(r.Context(), services.PlaceBetRequest{
		UserID:    userID,
		MarketID:  req.MarketID,
		Selection: models.BetSelection(req.Selection),
		Stake:     req.Stake,
	})
	if err != nil {
		switch err {
		case services.ErrInvalidAmount, services.ErrStakeOutOfBounds:
			respondError(w, http.StatusBadRequest, "stake out of bounds")
		case services.ErrInvalidSelection:
			respondError(w, http.StatusBadRequest, "invalid selection")
		case services.ErrMarketClosed:
			respondError(w, http.StatusConflict, "market not accepting bets")
		case services.ErrInsufficientBalance:
			respondError(w, http.StatusUnprocessableEntity, "insufficient balance")
		case services.ErrWalletFrozen:
			respondError(w, http.StatusForbidden, "wallet frozen")
		case services.ErrConcurrencyConflict:
			respondError(w, http.StatusConflict, "please retry")
		default:
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "market not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to place bet")
		}
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"bet_id":           bet.ID,
		"selection":        bet.Selection,
		"stake":            bet.Stake,
		"odds":             bet.Odds,
		"potential_payout": bet.PotentialPayout,
		"status":           bet.Status,
	})
}

func (h *Handler) CancelBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	betID := chi.URLParam(r, "id")
	if err := h.bets.CancelBet(r.Context(), userID, betID); err != nil {
		switch err {
		case services.ErrNotBetOwner:
			respondError(w, http.StatusForbidden, "access denied")
		case services.ErrBetNotCancellable, services.ErrMarketClosed:
			respondError(w, http.StatusConflict, "bet can no longer be cancelled")
		case services.ErrConcurrencyConflict:
			respondError(w, http.StatusConflict, "please retry")
		default:
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "bet not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to cancel bet")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) ListBets(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paginate(r)
	bets, err := h.bets.ListBets(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load bets")
		return
	}
	respondJSON(w, http.StatusOK, bets)
}
