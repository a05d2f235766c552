package services

import (
	"context"
	"testing"
	"time"

	"wagerbook/internal/models"
	"wagerbook/internal/store"
)

type stubPoolWallets struct {
	totals int64
	diffs  []store.WalletLedgerDiff
}

func (s stubPoolWallets) SumTotals(context.Context) (int64, error) { return s.totals, nil }

func (s stubPoolWallets) LedgerDiffs(context.Context) ([]store.WalletLedgerDiff, error) {
	return s.diffs, nil
}

type stubPoolLedger struct {
	sums  map[models.LedgerEntryType]int64
	stale int
}

func (s stubPoolLedger) SumCompletedByType(context.Context) (map[models.LedgerEntryType]int64, error) {
	return s.sums, nil
}

func (s stubPoolLedger) CountStalePending(context.Context, time.Duration) (int, error) {
	return s.stale, nil
}

func TestReconcileBalancedPool(t *testing.T) {
	// Issued 10300, completed withdrawals 1000, house holds 200, so 9100
	// tokens should sit in wallets.
	sums := map[models.LedgerEntryType]int64{
		models.EntryPurchase:         10000,
		models.EntryAdminCredit:      500,
		models.EntryAdminDebit:       -200,
		models.EntryCashoutCompleted: -1000,
		models.EntryBetLost:          -500,
		models.EntryBetWon:           300,
	}
	svc := NewPoolService(stubPoolWallets{totals: 9100}, stubPoolLedger{sums: sums}, testLogger(), time.Hour)

	rec, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if rec.Issued != 10300 || rec.CashedOut != 1000 || rec.HouseBalance != 200 {
		t.Fatalf("unexpected positions: %+v", rec)
	}
	if rec.Delta != 0 {
		t.Fatalf("balanced pool should have zero delta, got %d", rec.Delta)
	}
	if rec.WalletMismatch != 0 || rec.StalePending != 0 {
		t.Fatalf("unexpected anomalies: %+v", rec)
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	sums := map[models.LedgerEntryType]int64{
		models.EntryPurchase: 5000,
		models.EntryBetLost:  -400,
	}
	// House holds 400 of the 5000 issued, but wallet rows claim 4700.
	svc := NewPoolService(stubPoolWallets{
		totals: 4700,
		diffs:  []store.WalletLedgerDiff{{WalletID: "w1"}},
	}, stubPoolLedger{sums: sums, stale: 2}, testLogger(), time.Hour)

	rec, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if rec.Delta != -100 {
		t.Fatalf("expected delta -100, got %d", rec.Delta)
	}
	if rec.WalletMismatch != 1 {
		t.Fatalf("expected one mismatched wallet, got %d", rec.WalletMismatch)
	}
	if rec.StalePending != 2 {
		t.Fatalf("expected two stale pending entries, got %d", rec.StalePending)
	}
}
