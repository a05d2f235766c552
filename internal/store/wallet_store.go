package store

import (
	"context"

	"wagerbook/internal/models"
)

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, id, userID string) error {
	query := `
		INSERT INTO wallets (id, user_id, available, pending, frozen)
		VALUES ($1, $2, 0, 0, FALSE)
	`
	_, err := tx.ExecContext(ctx, query, id, userID)
	return err
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, available, pending, frozen, created_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	return row, err
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (models.Wallet, error) {
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, available, pending, frozen, created_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, walletID)
	return row, err
}

func (s *WalletStore) GetByUserForUpdate(ctx context.Context, tx Getter, userID string) (models.Wallet, error) {
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, available, pending, frozen, created_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	return row, err
}

func (s *WalletStore) UpdateBalances(ctx context.Context, tx Execer, walletID string, available, pending int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET available = $1, pending = $2, updated_at = NOW()
		WHERE id = $3
	`, available, pending, walletID)
	return err
}

func (s *WalletStore) SetFrozen(ctx context.Context, tx Execer, walletID string, frozen bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET frozen = $1, updated_at = NOW()
		WHERE id = $2
	`, frozen, walletID)
	return err
}

// SumTotals returns the circulating supply: the sum of available plus pending
// across every wallet.
func (s *WalletStore) SumTotals(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(available + pending), 0)
		FROM wallets
	`)
	return sum, err
}

type WalletLedgerDiff struct {
	WalletID   string `db:"wallet_id"`
	Stored     int64  `db:"stored"`
	LedgerSum  int64  `db:"ledger_sum"`
	Difference int64  `db:"difference"`
}

// LedgerDiffs compares each wallet's stored balance against the replayed sum of
// its completed ledger entries. A non-empty result means the conservation
// invariant is broken.
func (s *WalletStore) LedgerDiffs(ctx context.Context) ([]WalletLedgerDiff, error) {
	var rows []WalletLedgerDiff
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id AS wallet_id,
		       (w.available + w.pending) AS stored,
		       COALESCE(SUM(l.amount) FILTER (WHERE l.status = 'completed'), 0) AS ledger_sum,
		       ((w.available + w.pending) - COALESCE(SUM(l.amount) FILTER (WHERE l.status = 'completed'), 0)) AS difference
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.wallet_id = w.id
		GROUP BY w.id, w.available, w.pending
		HAVING (w.available + w.pending) <> COALESCE(SUM(l.amount) FILTER (WHERE l.status = 'completed'), 0)
	`)
	return rows, err
}
