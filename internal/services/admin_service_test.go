package services

import (
	"context"
	"testing"

	"wagerbook/internal/models"
	"wagerbook/internal/store"
)

type stubActionStore struct {
	insertFn   func(ctx context.Context, tx store.Execer, action models.AdminAction) error
	completeFn func(ctx context.Context, tx store.Execer, actionID string, amount int64, ledgerEntryID *string) error
}

func (s stubActionStore) Insert(ctx context.Context, tx store.Execer, action models.AdminAction) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, action)
}

func (s stubActionStore) Complete(ctx context.Context, tx store.Execer, actionID string, amount int64, ledgerEntryID *string) error {
	if s.completeFn == nil {
		return nil
	}
	return s.completeFn(ctx, tx, actionID, amount, ledgerEntryID)
}

func (s stubActionStore) ListByTarget(context.Context, string, int, int) ([]models.AdminAction, error) {
	return nil, nil
}

func newTestAdminService(actions stubActionStore, wallets *fakeWalletStore, ledger *recordingLedger, bets stubBetStore, markets stubMarketStore, audit stubAuditStore) *AdminService {
	walletSvc := newTestWalletService(wallets, ledger, &stubHub{})
	return NewAdminService(fakeTxRunner{}, actions, wallets, bets, markets, walletSvc, audit, &stubHub{}, testLogger())
}

func TestAdminActionValidation(t *testing.T) {
	svc := newTestAdminService(stubActionStore{}, newFakeWalletStore(), newRecordingLedger(), stubBetStore{}, stubMarketStore{}, stubAuditStore{})

	cases := []struct {
		name string
		in   AdminActionInput
		want error
	}{
		{"missing reason", AdminActionInput{TargetUserID: "u1", Type: models.ActionCredit, Amount: 100}, ErrReasonRequired},
		{"missing amount", AdminActionInput{TargetUserID: "u1", Type: models.ActionDebit, Reason: "fix"}, ErrAmountRequired},
		{"missing bet id", AdminActionInput{TargetUserID: "u1", Type: models.ActionRefundBet, Reason: "dispute"}, ErrBetRequired},
		{"unknown type", AdminActionInput{TargetUserID: "u1", Type: "promote", Reason: "x"}, ErrUnknownAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Apply(context.Background(), "admin1", tc.in); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAdminCreditWritesActionAndAudit(t *testing.T) {
	wallets := newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1", Available: 500})
	ledger := newRecordingLedger()
	var completedEntry *string
	var auditAction string
	svc := newTestAdminService(stubActionStore{
		completeFn: func(_ context.Context, _ store.Execer, _ string, _ int64, ledgerEntryID *string) error {
			completedEntry = ledgerEntryID
			return nil
		},
	}, wallets, ledger, stubBetStore{}, stubMarketStore{}, stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, action, entityType, _, _ string) error {
			auditAction = action
			if entityType != "admin_action" {
				t.Fatalf("unexpected audit entity %q", entityType)
			}
			return nil
		},
	})

	action, err := svc.Apply(context.Background(), "admin1", AdminActionInput{
		TargetUserID: "u1",
		Type:         models.ActionCredit,
		Amount:       1500,
		Reason:       "goodwill",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if action.Status != "completed" || action.LedgerEntryID == nil {
		t.Fatalf("action not completed: %+v", action)
	}
	if completedEntry == nil || *completedEntry != *action.LedgerEntryID {
		t.Fatal("action row not linked to the ledger entry")
	}
	if auditAction != "admin.credit" {
		t.Fatalf("unexpected audit action %q", auditAction)
	}

	wallet, _ := wallets.GetByUser(context.Background(), "u1")
	if wallet.Available != 2000 {
		t.Fatalf("credit not applied: %+v", wallet)
	}
	if len(ledger.inserted) != 1 || ledger.inserted[0].Type != models.EntryAdminCredit {
		t.Fatalf("expected one admin_credit entry, got %+v", ledger.inserted)
	}
}

func TestAdminDebitInsufficientBalance(t *testing.T) {
	wallets := newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1", Available: 300})
	svc := newTestAdminService(stubActionStore{}, wallets, newRecordingLedger(), stubBetStore{}, stubMarketStore{}, stubAuditStore{})

	_, err := svc.Apply(context.Background(), "admin1", AdminActionInput{
		TargetUserID: "u1",
		Type:         models.ActionDebit,
		Amount:       1000,
		Reason:       "clawback",
	})
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestAdminFreezeAndUnfreeze(t *testing.T) {
	wallets := newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1", Available: 100})
	svc := newTestAdminService(stubActionStore{}, wallets, newRecordingLedger(), stubBetStore{}, stubMarketStore{}, stubAuditStore{})

	if _, err := svc.Apply(context.Background(), "admin1", AdminActionInput{TargetUserID: "u1", Type: models.ActionFreeze, Reason: "fraud review"}); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	wallet, _ := wallets.GetByUser(context.Background(), "u1")
	if !wallet.Frozen {
		t.Fatal("wallet should be frozen")
	}

	if _, err := svc.Apply(context.Background(), "admin1", AdminActionInput{TargetUserID: "u1", Type: models.ActionUnfreeze, Reason: "cleared"}); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}
	wallet, _ = wallets.GetByUser(context.Background(), "u1")
	if wallet.Frozen {
		t.Fatal("wallet should be unfrozen")
	}
}

func TestAdminManualCashoutDebitsAsCashout(t *testing.T) {
	wallets := newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1", Available: 4000})
	ledger := newRecordingLedger()
	svc := newTestAdminService(stubActionStore{}, wallets, ledger, stubBetStore{}, stubMarketStore{}, stubAuditStore{})

	if _, err := svc.Apply(context.Background(), "admin1", AdminActionInput{
		TargetUserID: "u1",
		Type:         models.ActionManualCashout,
		Amount:       4000,
		Reason:       "account closure payout",
	}); err != nil {
		t.Fatalf("manual cashout failed: %v", err)
	}
	if len(ledger.inserted) != 1 || ledger.inserted[0].Type != models.EntryCashoutCompleted {
		t.Fatalf("manual cashout must book as cashout_completed, got %+v", ledger.inserted)
	}
	wallet, _ := wallets.GetByUser(context.Background(), "u1")
	if wallet.Available != 0 {
		t.Fatalf("balance not removed: %+v", wallet)
	}
}

func TestAdminRefundBetVoidsAndReleases(t *testing.T) {
	wallets := newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1", Available: 100, Pending: 900})
	ledger := newRecordingLedger()
	bet := models.Bet{ID: "b1", UserID: "u1", MarketID: "m1", Stake: 900, Status: models.BetActive}
	var status models.BetStatus
	var exposureStake int64
	var persistedAmount int64
	betID := "b1"
	svc := newTestAdminService(stubActionStore{
		completeFn: func(_ context.Context, _ store.Execer, _ string, amount int64, _ *string) error {
			persistedAmount = amount
			return nil
		},
	}, wallets, ledger, stubBetStore{
		getByIDFn: func(_ context.Context, _ string) (models.Bet, error) { return bet, nil },
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Bet, error) {
			return bet, nil
		},
		updateStatusFn: func(_ context.Context, _ store.Execer, _ string, next models.BetStatus, _, notes *string) error {
			status = next
			if notes == nil || *notes == "" {
				t.Fatal("void must carry the reason")
			}
			return nil
		},
	}, stubMarketStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Market, error) {
			return models.Market{ID: "m1", Status: models.MarketOpen}, nil
		},
		getCapacityForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.LineCapacity, error) {
			return models.LineCapacity{MarketID: "m1", Active: true}, nil
		},
		adjustExposureFn: func(_ context.Context, _ store.Execer, _ string, stakeDelta int64, _ int) error {
			exposureStake += stakeDelta
			return nil
		},
	}, stubAuditStore{})

	action, err := svc.Apply(context.Background(), "admin1", AdminActionInput{
		TargetUserID: "u1",
		Type:         models.ActionRefundBet,
		BetID:        &betID,
		Reason:       "line posted wrong",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if status != models.BetVoided {
		t.Fatalf("expected voided status, got %s", status)
	}
	if action.Amount != 900 {
		t.Fatalf("action should record the released stake, got %d", action.Amount)
	}
	if persistedAmount != 900 {
		t.Fatalf("released stake must be written to the action row, got %d", persistedAmount)
	}
	if exposureStake != -900 {
		t.Fatalf("exposure should unwind, got %d", exposureStake)
	}
	wallet, _ := wallets.GetByUser(context.Background(), "u1")
	if wallet.Available != 1000 || wallet.Pending != 0 {
		t.Fatalf("stake not returned: %+v", wallet)
	}
}

func TestAdminRefundBetTerminalStatus(t *testing.T) {
	bet := models.Bet{ID: "b1", UserID: "u1", MarketID: "m1", Stake: 900, Status: models.BetLost}
	betID := "b1"
	svc := newTestAdminService(stubActionStore{}, newFakeWalletStore(models.Wallet{ID: "w1", UserID: "u1"}), newRecordingLedger(), stubBetStore{
		getByIDFn: func(_ context.Context, _ string) (models.Bet, error) { return bet, nil },
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Bet, error) {
			return bet, nil
		},
	}, stubMarketStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Market, error) {
			return models.Market{ID: "m1"}, nil
		},
		getCapacityForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.LineCapacity, error) {
			return models.LineCapacity{MarketID: "m1"}, nil
		},
	}, stubAuditStore{})

	_, err := svc.Apply(context.Background(), "admin1", AdminActionInput{
		TargetUserID: "u1",
		Type:         models.ActionRefundBet,
		BetID:        &betID,
		Reason:       "dispute",
	})
	if err != ErrBetNotVoidable {
		t.Fatalf("expected ErrBetNotVoidable, got %v", err)
	}
}
