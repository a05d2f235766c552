package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"wagerbook/internal/middleware"
	"wagerbook/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) RequestCashout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.CashoutRequestInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	cashout, err := h.cashouts.Request(r.Context(), userID, req)
	if err != nil {
		switch err {
		case services.ErrInvalidAmount, services.ErrInvalidCashout:
			respondError(w, http.StatusBadRequest, "invalid cashout request")
		case services.ErrInsufficientBalance:
			respondError(w, http.StatusUnprocessableEntity, "insufficient balance")
		case services.ErrWalletFrozen:
			respondError(w, http.StatusForbidden, "wallet frozen")
		case services.ErrConcurrencyConflict:
			respondError(w, http.StatusConflict, "please retry")
		default:
			respondError(w, http.StatusInternalServerError, "unable to request cashout")
		}
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"cashout_id": cashout.ID,
		"amount":     cashout.Amount,
		"status":     cashout.Status,
	})
}

func (h *Handler) CancelCashout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cashoutID := chi.URLParam(r, "id")
	cashout, err := h.cashouts.Cancel(r.Context(), userID, cashoutID)
	if err != nil {
		respondCashoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cashout)
}

func (h *Handler) ListCashouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paginate(r)
	cashouts, err := h.cashouts.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load cashouts")
		return
	}
	respondJSON(w, http.StatusOK, cashouts)
}

func (h *Handler) GetCashout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cashoutID := chi.URLParam(r, "id")
	cashout, err := h.cashouts.Get(r.Context(), userID, cashoutID)
	if err != nil {
		respondCashoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cashout)
}

func respondCashoutError(w http.ResponseWriter, err error) {
	switch err {
	case sql.ErrNoRows, services.ErrCashoutNotFound:
		respondError(w, http.StatusNotFound, "cashout not found")
	case services.ErrNotCashoutOwner:
		respondError(w, http.StatusForbidden, "access denied")
	case services.ErrInvalidTransition:
		respondError(w, http.StatusConflict, "invalid state transition")
	case services.ErrMissingReference:
		respondError(w, http.StatusBadRequest, "transfer reference required")
	case services.ErrConcurrencyConflict:
		respondError(w, http.StatusConflict, "please retry")
	default:
		respondError(w, http.StatusInternalServerError, "cashout operation failed")
	}
}
