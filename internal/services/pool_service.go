package services

import (
	"context"
	"time"

	"wagerbook/internal/metrics"
	"wagerbook/internal/models"
	"wagerbook/internal/store"

	"github.com/sirupsen/logrus"
)

type PoolWalletStore interface {
	SumTotals(ctx context.Context) (int64, error)
	LedgerDiffs(ctx context.Context) ([]store.WalletLedgerDiff, error)
}

type PoolLedgerStore interface {
	SumCompletedByType(ctx context.Context) (map[models.LedgerEntryType]int64, error)
	CountStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// PoolService derives the global token position from the ledger. The pool is
// never stored; it is recomputed on demand, and a nonzero delta means entries
// and wallet balances have diverged.
type PoolService struct {
	wallets      PoolWalletStore
	ledger       PoolLedgerStore
	logger       *logrus.Logger
	pendingAfter time.Duration
}

func NewPoolService(wallets PoolWalletStore, ledger PoolLedgerStore, logger *logrus.Logger, pendingAfter time.Duration) *PoolService {
	return &PoolService{
		wallets:      wallets,
		ledger:       ledger,
		logger:       logger,
		pendingAfter: pendingAfter,
	}
}

// Reconcile recomputes the token pool and cross-checks it against wallet rows.
//
// Sums are over completed entries' total deltas, so debit-like types carry
// negative signs already: issued tokens are purchases plus net admin
// corrections, cashed-out tokens are the magnitude of completed withdrawals,
// and the house position is lost stakes minus paid-out winnings.
func (s *PoolService) Reconcile(ctx context.Context) (models.PoolReconciliation, error) {
	sums, err := s.ledger.SumCompletedByType(ctx)
	if err != nil {
		return models.PoolReconciliation{}, err
	}
	circulating, err := s.wallets.SumTotals(ctx)
	if err != nil {
		return models.PoolReconciliation{}, err
	}
	diffs, err := s.wallets.LedgerDiffs(ctx)
	if err != nil {
		return models.PoolReconciliation{}, err
	}
	stale, err := s.ledger.CountStalePending(ctx, s.pendingAfter)
	if err != nil {
		return models.PoolReconciliation{}, err
	}

	issued := sums[models.EntryPurchase] + sums[models.EntryAdminCredit] + sums[models.EntryAdminDebit]
	cashedOut := -sums[models.EntryCashoutCompleted]
	house := -sums[models.EntryBetLost] - sums[models.EntryBetWon]

	rec := models.PoolReconciliation{
		Issued:         issued,
		Circulating:    circulating,
		CashedOut:      cashedOut,
		HouseBalance:   house,
		Delta:          issued - cashedOut - circulating - house,
		StalePending:   stale,
		WalletMismatch: len(diffs),
	}

	metrics.PoolDelta.Set(float64(rec.Delta))
	metrics.StalePendingEntries.Set(float64(stale))

	if rec.Delta != 0 || rec.WalletMismatch > 0 {
		s.logger.WithFields(logrus.Fields{
			"delta":           rec.Delta,
			"wallet_mismatch": rec.WalletMismatch,
			"issued":          rec.Issued,
			"circulating":     rec.Circulating,
			"cashed_out":      rec.CashedOut,
			"house_balance":   rec.HouseBalance,
		}).Error("pool reconciliation out of balance")
	}
	if stale > 0 {
		s.logger.WithField("stale_pending", stale).Warn("stale pending ledger entries detected")
	}
	return rec, nil
}
