package store

import (
	"context"

	"wagerbook/internal/models"
)

type BetStore struct {
	db DB
}

func NewBetStore(db DB) *BetStore {
	return &BetStore{db: db}
}

func (s *BetStore) Insert(ctx context.Context, tx Execer, bet models.Bet) error {
	query := `
		INSERT INTO bets
			(id, user_id, market_id, selection, stake, potential_payout, odds, line, status, reservation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		bet.ID, bet.UserID, bet.MarketID, bet.Selection, bet.Stake,
		bet.PotentialPayout, bet.Odds, bet.Line, bet.Status, bet.ReservationID,
	)
	return err
}

const betColumns = `
	id, user_id, market_id, selection, stake, potential_payout, odds, line,
	status, reservation_id, settled_by, settle_notes, placed_at, settled_at
`

func (s *BetStore) GetByID(ctx context.Context, betID string) (models.Bet, error) {
	var row models.Bet
	err := s.db.GetContext(ctx, &row, `SELECT `+betColumns+` FROM bets WHERE id = $1`, betID)
	return row, err
}

// GetForUpdate locks the bet row. Settlement and cancellation both lock here, so
// the two terminal transitions cannot interleave.
func (s *BetStore) GetForUpdate(ctx context.Context, tx Getter, betID string) (models.Bet, error) {
	var row models.Bet
	err := tx.GetContext(ctx, &row, `SELECT `+betColumns+` FROM bets WHERE id = $1 FOR UPDATE`, betID)
	return row, err
}

func (s *BetStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Bet, error) {
	var rows []models.Bet
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+betColumns+`
		FROM bets
		WHERE user_id = $1
		ORDER BY placed_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

// ListIDsByMarket returns the ids of bets still eligible for settlement on one
// market, oldest first.
func (s *BetStore) ListIDsByMarket(ctx context.Context, marketID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM bets
		WHERE market_id = $1 AND status IN ('active', 'pending')
		ORDER BY placed_at
	`, marketID)
	return ids, err
}

// CountSettleable counts bets a settlement pass would still need to touch.
func (s *BetStore) CountSettleable(ctx context.Context, tx Getter, marketID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM bets
		WHERE market_id = $1 AND status IN ('active', 'pending')
	`, marketID)
	return count, err
}

func (s *BetStore) UpdateStatus(ctx context.Context, tx Execer, betID string, status models.BetStatus, settledBy, notes *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bets
		SET status = $1, settled_by = $2, settle_notes = $3, settled_at = NOW()
		WHERE id = $4
	`, status, settledBy, notes, betID)
	return err
}
