package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wagerbook/internal/middleware"
	"wagerbook/internal/models"
	"wagerbook/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type createMarketRequest struct {
	Kind          string                  `json:"kind"`
	Matchup       *models.MatchupDetails  `json:"matchup,omitempty"`
	External      *models.ExternalDetails `json:"external,omitempty"`
	PointSpread   *string                 `json:"point_spread,omitempty"`
	TotalLine     *string                 `json:"total_line,omitempty"`
	MoneylineHome *int                    `json:"moneyline_home,omitempty"`
	MoneylineAway *int                    `json:"moneyline_away,omitempty"`
	ExpiresAt     time.Time               `json:"expires_at"`
	MinBet        int64                   `json:"min_bet"`
	MaxBet        int64                   `json:"max_bet"`
	MaxExposure   *int64                  `json:"max_exposure,omitempty"`
}

func parseLine(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (h *Handler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	spread, err := parseLine(req.PointSpread)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid point spread")
		return
	}
	total, err := parseLine(req.TotalLine)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid total line")
		return
	}
	if req.MinBet <= 0 {
		req.MinBet = h.cfg.MinBet
	}
	if req.MaxBet <= 0 {
		req.MaxBet = h.cfg.MaxBet
	}
	market, err := h.markets.Create(r.Context(), services.CreateMarketRequest{
		ActorID:       actorID,
		Kind:          models.MarketKind(req.Kind),
		Matchup:       req.Matchup,
		External:      req.External,
		PointSpread:   spread,
		TotalLine:     total,
		MoneylineHome: req.MoneylineHome,
		MoneylineAway: req.MoneylineAway,
		ExpiresAt:     req.ExpiresAt,
		MinBet:        req.MinBet,
		MaxBet:        req.MaxBet,
		MaxExposure:   req.MaxExposure,
	})
	if err != nil {
		if err == services.ErrInvalidMarket {
			respondError(w, http.StatusBadRequest, "invalid market definition")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to create market")
		return
	}
	respondJSON(w, http.StatusCreated, marketPayload(market, nil))
}

type updateLinesRequest struct {
	PointSpread   *string `json:"point_spread,omitempty"`
	TotalLine     *string `json:"total_line,omitempty"`
	MoneylineHome *int    `json:"moneyline_home,omitempty"`
	MoneylineAway *int    `json:"moneyline_away,omitempty"`
}

func (h *Handler) UpdateLines(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	marketID := chi.URLParam(r, "id")
	var req updateLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	spread, err := parseLine(req.PointSpread)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid point spread")
		return
	}
	total, err := parseLine(req.TotalLine)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid total line")
		return
	}
	err = h.markets.UpdateLines(r.Context(), services.UpdateLinesRequest{
		ActorID:       actorID,
		MarketID:      marketID,
		PointSpread:   spread,
		TotalLine:     total,
		MoneylineHome: req.MoneylineHome,
		MoneylineAway: req.MoneylineAway,
	})
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			respondError(w, http.StatusNotFound, "market not found")
		case services.ErrInvalidMarket:
			respondError(w, http.StatusBadRequest, "invalid line update")
		case services.ErrMarketNotOpen:
			respondError(w, http.StatusConflict, "market is not open")
		default:
			respondError(w, http.StatusInternalServerError, "unable to update lines")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type postResultRequest struct {
	HomeScore int  `json:"home_score"`
	AwayScore int  `json:"away_score"`
	Completed bool `json:"completed"`
}

func (h *Handler) PostResult(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	marketID := chi.URLParam(r, "id")
	var req postResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.markets.PostResult(r.Context(), actorID, marketID, req.HomeScore, req.AwayScore, req.Completed)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			respondError(w, http.StatusNotFound, "market not found")
		case services.ErrInvalidResult:
			respondError(w, http.StatusBadRequest, "invalid result")
		case models.ErrInvalidTransition:
			respondError(w, http.StatusConflict, "market cannot accept a result")
		default:
			respondError(w, http.StatusInternalServerError, "unable to record result")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetMarketActive(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	marketID := chi.URLParam(r, "id")
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.markets.SetActive(r.Context(), actorID, marketID, req.Active); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "market not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update market")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	marketID := chi.URLParam(r, "id")
	report, err := h.settlement.SettleMarket(r.Context(), marketID, &actorID, 0)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			respondError(w, http.StatusNotFound, "market not found")
		case services.ErrAlreadySettled:
			respondError(w, http.StatusConflict, "market already settled")
		case services.ErrScoresMissing:
			respondError(w, http.StatusConflict, "market has no usable final scores")
		case services.ErrConcurrencyConflict:
			respondError(w, http.StatusConflict, "please retry")
		default:
			respondError(w, http.StatusInternalServerError, "settlement failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type runSettlementsRequest struct {
	MaxMarkets int `json:"max_markets"`
	MaxBets    int `json:"max_bets"`
}

func (h *Handler) RunSettlements(w http.ResponseWriter, r *http.Request) {
	var req runSettlementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.MaxMarkets <= 0 {
		req.MaxMarkets = h.cfg.MaxMarketsPerRun
	}
	if req.MaxBets <= 0 {
		req.MaxBets = h.cfg.MaxBetsPerRun
	}
	reports, err := h.settlement.RunBatch(r.Context(), req.MaxMarkets, req.MaxBets)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "settlement run failed")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

type adminActionRequest struct {
	TargetIdentifier string  `json:"target"`
	Type             string  `json:"type"`
	Amount           int64   `json:"amount"`
	BetID            *string `json:"bet_id,omitempty"`
	Reason           string  `json:"reason"`
}

func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetIdentifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	targetID, err := h.resolveUserID(r.Context(), req.TargetIdentifier)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	action, err := h.actions.Apply(r.Context(), actorID, services.AdminActionInput{
		TargetUserID: targetID,
		Type:         models.AdminActionType(req.Type),
		Amount:       req.Amount,
		BetID:        req.BetID,
		Reason:       req.Reason,
	})
	if err != nil {
		switch err {
		case services.ErrReasonRequired, services.ErrAmountRequired, services.ErrBetRequired, services.ErrUnknownAction:
			respondError(w, http.StatusBadRequest, err.Error())
		case services.ErrBetNotVoidable:
			respondError(w, http.StatusConflict, "bet is not voidable")
		case services.ErrNotBetOwner:
			respondError(w, http.StatusBadRequest, "bet does not belong to target user")
		case services.ErrInsufficientBalance:
			respondError(w, http.StatusUnprocessableEntity, "insufficient balance")
		case services.ErrConcurrencyConflict:
			respondError(w, http.StatusConflict, "please retry")
		default:
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "target not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "admin action failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, action)
}

func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	targetUserID := chi.URLParam(r, "userID")
	limit, offset := paginate(r)
	actions, err := h.actions.ListForTarget(r.Context(), targetUserID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load actions")
		return
	}
	respondJSON(w, http.StatusOK, actions)
}

func (h *Handler) CashoutQueue(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	status := models.CashoutStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.CashoutPending
	}
	cashouts, err := h.cashouts.ListQueue(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load cashouts")
		return
	}
	respondJSON(w, http.StatusOK, cashouts)
}

func (h *Handler) CashoutDetail(w http.ResponseWriter, r *http.Request) {
	cashoutID := chi.URLParam(r, "id")
	detail, err := h.cashouts.PaymentDetail(r.Context(), cashoutID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "cashout not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to decrypt payment detail")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"payment_detail": detail})
}

func (h *Handler) ApproveCashout(w http.ResponseWriter, r *http.Request) {
	h.reviewCashout(w, r, h.cashouts.Approve)
}

func (h *Handler) RejectCashout(w http.ResponseWriter, r *http.Request) {
	h.reviewCashout(w, r, h.cashouts.Reject)
}

func (h *Handler) ProcessCashout(w http.ResponseWriter, r *http.Request) {
	h.reviewCashout(w, r, h.cashouts.MarkProcessing)
}

func (h *Handler) FailCashout(w http.ResponseWriter, r *http.Request) {
	h.reviewCashout(w, r, h.cashouts.Fail)
}

func (h *Handler) reviewCashout(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error)) {
	reviewerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cashout, err := fn(r.Context(), reviewerID, chi.URLParam(r, "id"))
	if err != nil {
		respondCashoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cashout)
}

type completeCashoutRequest struct {
	TransferReference string `json:"transfer_reference"`
}

func (h *Handler) CompleteCashout(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req completeCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	cashout, err := h.cashouts.Complete(r.Context(), reviewerID, chi.URLParam(r, "id"), req.TransferReference)
	if err != nil {
		respondCashoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cashout)
}

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	targetUserID, err := h.resolveUserID(r.Context(), req.Identifier)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, targetUserID, false, &userID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"target_user_id": targetUserID,
		})
		return h.audit.Log(r.Context(), tx, userID, "promote_admin", "admin", targetUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminUserID == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, targetSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if targetSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, userID, "grant_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	reconciliation, err := h.pool.Reconcile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile pool")
		return
	}
	respondJSON(w, http.StatusOK, reconciliation)
}

// resolveUserID accepts a user id, username, or email.
func (h *Handler) resolveUserID(ctx context.Context, identifier string) (string, error) {
	if strings.Contains(identifier, "@") {
		user, err := h.users.GetByEmail(ctx, identifier)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	user, err := h.users.GetByUsername(ctx, identifier)
	if err == nil {
		return user.ID, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	user, err = h.users.GetByID(ctx, identifier)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
