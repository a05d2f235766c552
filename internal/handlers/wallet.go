package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"wagerbook/internal/auth"
	"wagerbook/internal/middleware"
	"wagerbook/internal/money"
	"wagerbook/internal/services"
	"wagerbook/internal/websocket"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallet.GetWallet(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id": wallet.ID,
		"available": wallet.Available,
		"pending":   wallet.Pending,
		"total":     wallet.Total(),
		"frozen":    wallet.Frozen,
		"display":   money.FormatMinor(wallet.Total()),
	})
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paginate(r)
	entries, err := h.wallet.ListLedger(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load ledger")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type purchaseRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	entryID, err := h.wallet.Purchase(r.Context(), userID, req.Amount, "token purchase")
	if err != nil {
		if err == services.ErrInvalidAmount {
			respondError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		if err == services.ErrWalletFrozen {
			respondError(w, http.StatusForbidden, "wallet frozen")
			return
		}
		respondError(w, http.StatusInternalServerError, "purchase failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"entry_id": entryID})
}

// SelfCheck compares the wallet's stored balances against the replayed sum of
// its completed ledger entries.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	type row struct {
		WalletID      string `db:"wallet_id"`
		WalletBalance int64  `db:"wallet_balance"`
		LedgerSum     int64  `db:"ledger_sum"`
		Difference    int64  `db:"difference"`
	}
	query := `
		SELECT w.id AS wallet_id,
		       (w.available + w.pending) AS wallet_balance,
		       COALESCE(SUM(l.amount) FILTER (WHERE l.status = 'completed'), 0) AS ledger_sum,
		       ((w.available + w.pending) - COALESCE(SUM(l.amount) FILTER (WHERE l.status = 'completed'), 0)) AS difference
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.wallet_id = w.id
		WHERE w.user_id = $1
		GROUP BY w.id, w.available, w.pending
	`
	var rows []row
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query, userID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	response := make([]map[string]any, 0, len(rows))
	for _, item := range rows {
		response = append(response, map[string]any{
			"wallet_id":      item.WalletID,
			"wallet_balance": item.WalletBalance,
			"ledger_sum":     item.LedgerSum,
			"difference":     item.Difference,
		})
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) WSWallet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
