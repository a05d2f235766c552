package store

import (
	"context"
	"time"

	"wagerbook/internal/models"

	"github.com/shopspring/decimal"
)

type MarketStore struct {
	db DB
}

func NewMarketStore(db DB) *MarketStore {
	return &MarketStore{db: db}
}

type marketRow struct {
	ID              string           `db:"id"`
	Kind            string           `db:"kind"`
	HomeUserID      *string          `db:"home_user_id"`
	AwayUserID      *string          `db:"away_user_id"`
	Sport           *string          `db:"sport"`
	Week            *int             `db:"week"`
	Season          *int             `db:"season"`
	HomeTeam        *string          `db:"home_team"`
	AwayTeam        *string          `db:"away_team"`
	ExternalEventID *string          `db:"external_event_id"`
	PointSpread     *decimal.Decimal `db:"point_spread"`
	TotalLine       *decimal.Decimal `db:"total_line"`
	MoneylineHome   *int             `db:"moneyline_home"`
	MoneylineAway   *int             `db:"moneyline_away"`
	Status          string           `db:"status"`
	HomeScore       *int             `db:"home_score"`
	AwayScore       *int             `db:"away_score"`
	ExpiresAt       time.Time        `db:"expires_at"`
	CreatedBy       string           `db:"created_by"`
	CreatedAt       time.Time        `db:"created_at"`
	SettledAt       *time.Time       `db:"settled_at"`
}

const marketColumns = `
	id, kind, home_user_id, away_user_id, sport, week, season,
	home_team, away_team, external_event_id,
	point_spread, total_line, moneyline_home, moneyline_away,
	status, home_score, away_score, expires_at, created_by, created_at, settled_at
`

func (r marketRow) toModel() models.Market {
	market := models.Market{
		ID:            r.ID,
		Kind:          models.MarketKind(r.Kind),
		PointSpread:   r.PointSpread,
		TotalLine:     r.TotalLine,
		MoneylineHome: r.MoneylineHome,
		MoneylineAway: r.MoneylineAway,
		Status:        models.MarketStatus(r.Status),
		HomeScore:     r.HomeScore,
		AwayScore:     r.AwayScore,
		ExpiresAt:     r.ExpiresAt,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		SettledAt:     r.SettledAt,
	}
	switch market.Kind {
	case models.MarketMatchup:
		market.Matchup = &models.MatchupDetails{
			HomeUserID: deref(r.HomeUserID),
			AwayUserID: deref(r.AwayUserID),
			Sport:      deref(r.Sport),
			Week:       derefInt(r.Week),
			Season:     derefInt(r.Season),
		}
	case models.MarketExternal:
		market.External = &models.ExternalDetails{
			HomeTeam:        deref(r.HomeTeam),
			AwayTeam:        deref(r.AwayTeam),
			ExternalEventID: deref(r.ExternalEventID),
		}
	}
	return market
}

func (s *MarketStore) Insert(ctx context.Context, tx Execer, market models.Market) error {
	var homeUserID, awayUserID, sport *string
	var week, season *int
	var homeTeam, awayTeam, externalEventID *string
	switch market.Kind {
	case models.MarketMatchup:
		homeUserID = &market.Matchup.HomeUserID
		awayUserID = &market.Matchup.AwayUserID
		sport = &market.Matchup.Sport
		week = &market.Matchup.Week
		season = &market.Matchup.Season
	case models.MarketExternal:
		homeTeam = &market.External.HomeTeam
		awayTeam = &market.External.AwayTeam
		externalEventID = &market.External.ExternalEventID
	}
	query := `
		INSERT INTO markets
			(id, kind, home_user_id, away_user_id, sport, week, season,
			 home_team, away_team, external_event_id,
			 point_spread, total_line, moneyline_home, moneyline_away,
			 status, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		market.ID, market.Kind, homeUserID, awayUserID, sport, week, season,
		homeTeam, awayTeam, externalEventID,
		market.PointSpread, market.TotalLine, market.MoneylineHome, market.MoneylineAway,
		market.Status, market.ExpiresAt, market.CreatedBy,
	)
	return err
}

func (s *MarketStore) GetByID(ctx context.Context, marketID string) (models.Market, error) {
	var row marketRow
	err := s.db.GetContext(ctx, &row, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, marketID)
	if err != nil {
		return models.Market{}, err
	}
	return row.toModel(), nil
}

// GetForUpdate locks the market row, serializing settlement, result posting, and
// line changes for one market.
func (s *MarketStore) GetForUpdate(ctx context.Context, tx Getter, marketID string) (models.Market, error) {
	var row marketRow
	err := tx.GetContext(ctx, &row, `SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, marketID)
	if err != nil {
		return models.Market{}, err
	}
	return row.toModel(), nil
}

func (s *MarketStore) List(ctx context.Context, status string, limit, offset int) ([]models.Market, error) {
	var rows []marketRow
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	markets := make([]models.Market, 0, len(rows))
	for _, row := range rows {
		markets = append(markets, row.toModel())
	}
	return markets, nil
}

// ListSettleable returns ids of markets whose event has concluded but whose bets
// are not yet resolved.
func (s *MarketStore) ListSettleable(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM markets
		WHERE status = 'final' AND home_score IS NOT NULL AND away_score IS NOT NULL
		ORDER BY expires_at
		LIMIT $1
	`, limit)
	return ids, err
}

func (s *MarketStore) UpdateStatus(ctx context.Context, tx Execer, marketID string, status models.MarketStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, marketID)
	return err
}

func (s *MarketStore) RecordResult(ctx context.Context, tx Execer, marketID string, homeScore, awayScore int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status = 'final', home_score = $1, away_score = $2, updated_at = NOW()
		WHERE id = $3
	`, homeScore, awayScore, marketID)
	return err
}

// MarkSettled flips the settled flag; the WHERE guard makes repeated settlement
// passes no-ops. Returns the number of rows transitioned.
func (s *MarketStore) MarkSettled(ctx context.Context, tx Execer, marketID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status = 'settled', settled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'final'
	`, marketID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MarketStore) UpdateLines(ctx context.Context, tx Execer, marketID string, spread, total *decimal.Decimal, mlHome, mlAway *int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET point_spread = $1, total_line = $2, moneyline_home = $3, moneyline_away = $4, updated_at = NOW()
		WHERE id = $5 AND status = 'open'
	`, spread, total, mlHome, mlAway, marketID)
	return err
}

func (s *MarketStore) InsertCapacity(ctx context.Context, tx Execer, cap models.LineCapacity) error {
	query := `
		INSERT INTO line_capacities (market_id, min_bet, max_bet, max_exposure, current_exposure, bet_count, active)
		VALUES ($1, $2, $3, $4, 0, 0, $5)
	`
	_, err := tx.ExecContext(ctx, query, cap.MarketID, cap.MinBet, cap.MaxBet, cap.MaxExposure, cap.Active)
	return err
}

func (s *MarketStore) GetCapacity(ctx context.Context, marketID string) (models.LineCapacity, error) {
	var row models.LineCapacity
	err := s.db.GetContext(ctx, &row, `
		SELECT market_id, min_bet, max_bet, max_exposure, current_exposure, bet_count, active
		FROM line_capacities
		WHERE market_id = $1
	`, marketID)
	return row, err
}

// GetCapacityForUpdate locks the capacity row so concurrent placements cannot
// over-commit the exposure cap.
func (s *MarketStore) GetCapacityForUpdate(ctx context.Context, tx Getter, marketID string) (models.LineCapacity, error) {
	var row models.LineCapacity
	err := tx.GetContext(ctx, &row, `
		SELECT market_id, min_bet, max_bet, max_exposure, current_exposure, bet_count, active
		FROM line_capacities
		WHERE market_id = $1
		FOR UPDATE
	`, marketID)
	return row, err
}

func (s *MarketStore) AdjustExposure(ctx context.Context, tx Execer, marketID string, stakeDelta int64, countDelta int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE line_capacities
		SET current_exposure = current_exposure + $1, bet_count = bet_count + $2
		WHERE market_id = $3
	`, stakeDelta, countDelta, marketID)
	return err
}

func (s *MarketStore) SetCapacityActive(ctx context.Context, tx Execer, marketID string, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE line_capacities SET active = $1 WHERE market_id = $2
	`, active, marketID)
	return err
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefInt(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
