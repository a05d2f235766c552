package store

import (
	"context"

	"wagerbook/internal/models"
)

type CashoutStore struct {
	db DB
}

func NewCashoutStore(db DB) *CashoutStore {
	return &CashoutStore{db: db}
}

func (s *CashoutStore) Insert(ctx context.Context, tx Execer, req models.CashoutRequest) error {
	query := `
		INSERT INTO cashout_requests
			(id, user_id, amount, method, payment_detail, status, hold_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		req.ID, req.UserID, req.Amount, req.Method, req.PaymentDetail, req.Status, req.HoldEntryID,
	)
	return err
}

const cashoutColumns = `
	id, user_id, amount, method, payment_detail, status, reviewed_by,
	transfer_reference, hold_entry_id, created_at, resolved_at
`

func (s *CashoutStore) GetByID(ctx context.Context, cashoutID string) (models.CashoutRequest, error) {
	var row models.CashoutRequest
	err := s.db.GetContext(ctx, &row, `SELECT `+cashoutColumns+` FROM cashout_requests WHERE id = $1`, cashoutID)
	return row, err
}

func (s *CashoutStore) GetForUpdate(ctx context.Context, tx Getter, cashoutID string) (models.CashoutRequest, error) {
	var row models.CashoutRequest
	err := tx.GetContext(ctx, &row, `SELECT `+cashoutColumns+` FROM cashout_requests WHERE id = $1 FOR UPDATE`, cashoutID)
	return row, err
}

func (s *CashoutStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.CashoutRequest, error) {
	var rows []models.CashoutRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+cashoutColumns+`
		FROM cashout_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

func (s *CashoutStore) ListByStatus(ctx context.Context, status models.CashoutStatus, limit, offset int) ([]models.CashoutRequest, error) {
	var rows []models.CashoutRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+cashoutColumns+`
		FROM cashout_requests
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}

func (s *CashoutStore) UpdateStatus(ctx context.Context, tx Execer, cashoutID string, status models.CashoutStatus, reviewedBy *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cashout_requests
		SET status = $1, reviewed_by = COALESCE($2, reviewed_by)
		WHERE id = $3
	`, status, reviewedBy, cashoutID)
	return err
}

func (s *CashoutStore) Resolve(ctx context.Context, tx Execer, cashoutID string, status models.CashoutStatus, reviewedBy, transferRef *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cashout_requests
		SET status = $1, reviewed_by = COALESCE($2, reviewed_by), transfer_reference = $3, resolved_at = NOW()
		WHERE id = $4
	`, status, reviewedBy, transferRef, cashoutID)
	return err
}
