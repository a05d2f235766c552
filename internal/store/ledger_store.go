package store

import (
	"context"
	"time"

	"wagerbook/internal/models"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID             string
	WalletID       string
	Type           models.LedgerEntryType
	Amount         int64
	AvailableDelta int64
	PendingDelta   int64
	BalanceBefore  int64
	BetID          *string
	CashoutID      *string
	ActionID       *string
	Description    string
}

// InsertPending appends a new entry in pending status with the balance-before
// snapshot. The caller completes it in the same transaction once the wallet
// mutation is applied.
func (s *LedgerStore) InsertPending(ctx context.Context, tx Execer, input LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries
			(id, wallet_id, type, amount, available_delta, pending_delta, balance_before, balance_after, status, bet_id, cashout_id, action_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 'pending', $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.WalletID, input.Type, input.Amount,
		input.AvailableDelta, input.PendingDelta, input.BalanceBefore,
		input.BetID, input.CashoutID, input.ActionID, input.Description,
	)
	return err
}

func (s *LedgerStore) Complete(ctx context.Context, tx Execer, entryID string, balanceAfter int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'completed', balance_after = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, balanceAfter, entryID)
	return err
}

func (s *LedgerStore) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, wallet_id, type, amount, available_delta, pending_delta,
		       balance_before, balance_after, status, bet_id, cashout_id, action_id,
		       description, created_at, completed_at
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	return rows, err
}

type LedgerTypeSum struct {
	Type models.LedgerEntryType `db:"type"`
	Sum  int64                  `db:"sum"`
}

// SumCompletedByType aggregates completed entry amounts per type, the raw input
// for pool reconciliation.
func (s *LedgerStore) SumCompletedByType(ctx context.Context) (map[models.LedgerEntryType]int64, error) {
	var rows []LedgerTypeSum
	err := s.db.SelectContext(ctx, &rows, `
		SELECT type, COALESCE(SUM(amount), 0) AS sum
		FROM ledger_entries
		WHERE status = 'completed'
		GROUP BY type
	`)
	if err != nil {
		return nil, err
	}
	sums := make(map[models.LedgerEntryType]int64, len(rows))
	for _, row := range rows {
		sums[row.Type] = row.Sum
	}
	return sums, nil
}

// CountStalePending counts entries stuck in pending longer than the cutoff,
// which indicates a crash mid-transaction and needs operator attention.
func (s *LedgerStore) CountStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM ledger_entries
		WHERE status = 'pending' AND created_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	return count, err
}
