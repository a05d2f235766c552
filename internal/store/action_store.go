package store

import (
	"context"

	"wagerbook/internal/models"
)

type ActionStore struct {
	db DB
}

func NewActionStore(db DB) *ActionStore {
	return &ActionStore{db: db}
}

func (s *ActionStore) Insert(ctx context.Context, tx Execer, action models.AdminAction) error {
	query := `
		INSERT INTO admin_actions
			(id, actor_id, target_user_id, type, amount, bet_id, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		action.ID, action.ActorID, action.TargetUserID, action.Type,
		action.Amount, action.BetID, action.Reason, action.Status,
	)
	return err
}

// Complete finalizes the action and links its ledger entry. The amount is
// written here too because a bet refund only learns the stake during
// execution. Completed actions are never updated again.
func (s *ActionStore) Complete(ctx context.Context, tx Execer, actionID string, amount int64, ledgerEntryID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE admin_actions
		SET status = 'completed', amount = $1, ledger_entry_id = $2
		WHERE id = $3 AND status = 'pending'
	`, amount, ledgerEntryID, actionID)
	return err
}

func (s *ActionStore) ListByTarget(ctx context.Context, targetUserID string, limit, offset int) ([]models.AdminAction, error) {
	var rows []models.AdminAction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, target_user_id, type, amount, bet_id, reason, status, ledger_entry_id, created_at
		FROM admin_actions
		WHERE target_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, targetUserID, limit, offset)
	return rows, err
}
