package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"wagerbook/internal/models"
	"wagerbook/internal/odds"
	"wagerbook/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	status := r.URL.Query().Get("status")
	markets, err := h.markets.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load markets")
		return
	}
	normalized := make([]map[string]any, 0, len(markets))
	for _, market := range markets {
		normalized = append(normalized, marketPayload(market, nil))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	market, capacity, err := h.markets.Get(r.Context(), marketID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "market not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load market")
		return
	}
	respondJSON(w, http.StatusOK, marketPayload(market, &capacity))
}

func marketPayload(market models.Market, capacity *models.LineCapacity) map[string]any {
	payload := map[string]any{
		"id":         market.ID,
		"kind":       market.Kind,
		"status":     market.Status,
		"expires_at": market.ExpiresAt,
		"created_at": market.CreatedAt,
	}
	switch market.Kind {
	case models.MarketMatchup:
		payload["matchup"] = market.Matchup
	case models.MarketExternal:
		payload["external"] = market.External
	}
	if market.PointSpread != nil {
		payload["point_spread"] = market.PointSpread
	}
	if market.TotalLine != nil {
		payload["total_line"] = market.TotalLine
	}
	if market.MoneylineHome != nil && market.MoneylineAway != nil {
		payload["moneyline_home"] = *market.MoneylineHome
		payload["moneyline_away"] = *market.MoneylineAway
		if home, err := odds.Implied(*market.MoneylineHome); err == nil {
			payload["implied_home"] = home
		}
		if away, err := odds.Implied(*market.MoneylineAway); err == nil {
			payload["implied_away"] = away
		}
	}
	if market.HomeScore != nil && market.AwayScore != nil {
		payload["home_score"] = *market.HomeScore
		payload["away_score"] = *market.AwayScore
	}
	if capacity != nil {
		payload["min_bet"] = capacity.MinBet
		payload["max_bet"] = capacity.MaxBet
		payload["max_exposure"] = capacity.MaxExposure
		payload["current_exposure"] = capacity.CurrentExposure
		payload["accepting_bets"] = services.AcceptingBets(market, *capacity, time.Now())
	}
	return payload
}
