package services

import (
	"context"
	"errors"

	"wagerbook/internal/db"
	"wagerbook/internal/models"
	"wagerbook/internal/store"
	"wagerbook/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletFrozen        = errors.New("wallet frozen")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrLedgerUnderflow     = errors.New("ledger underflow")

	// ErrConcurrencyConflict surfaces bounded lock waits and serialization
	// losses; the caller retries after reload.
	ErrConcurrencyConflict = db.ErrConcurrencyConflict
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
	GetByUser(ctx context.Context, userID string) (models.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, walletID string) (models.Wallet, error)
	GetByUserForUpdate(ctx context.Context, tx store.Getter, userID string) (models.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, walletID string, available, pending int64) error
	SetFrozen(ctx context.Context, tx store.Execer, walletID string, frozen bool) error
}

type LedgerStore interface {
	InsertPending(ctx context.Context, tx store.Execer, input store.LedgerEntryInput) error
	Complete(ctx context.Context, tx store.Execer, entryID string, balanceAfter int64) error
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error)
}

type BalanceHub interface {
	BroadcastWallet(userID string, update websocket.WalletUpdate)
}

// EntryRef links a ledger entry to the bet, cashout, or admin action that
// caused it.
type EntryRef struct {
	BetID       *string
	CashoutID   *string
	ActionID    *string
	Description string
}

// WalletService is the wagering ledger. Every balance movement runs through one
// of its operations; each operation locks the wallet row, appends a pending
// ledger entry with the balance-before snapshot, applies the mutation, and
// completes the entry with the balance-after, all in the caller's transaction.
// No operation ever touches two wallets.
type WalletService struct {
	txRunner db.TxRunner
	wallets  WalletStore
	ledger   LedgerStore
	hub      BalanceHub
	logger   *logrus.Logger
}

func NewWalletService(txRunner db.TxRunner, wallets WalletStore, ledger LedgerStore, hub BalanceHub, logger *logrus.Logger) *WalletService {
	return &WalletService{
		txRunner: txRunner,
		wallets:  wallets,
		ledger:   ledger,
		hub:      hub,
		logger:   logger,
	}
}

type ledgerOp struct {
	entryType      models.LedgerEntryType
	availableDelta int64
	pendingDelta   int64
	ref            EntryRef
	allowFrozen    bool
}

func (s *WalletService) apply(ctx context.Context, tx store.Tx, walletID string, op ledgerOp) (string, models.Wallet, error) {
	wallet, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return "", models.Wallet{}, err
	}
	if wallet.Frozen && !op.allowFrozen {
		return "", models.Wallet{}, ErrWalletFrozen
	}
	newAvailable := wallet.Available + op.availableDelta
	newPending := wallet.Pending + op.pendingDelta
	if newAvailable < 0 {
		return "", models.Wallet{}, ErrInsufficientBalance
	}
	if newPending < 0 {
		// Pending never goes negative through the public operations; seeing it
		// means a reservation was consumed twice.
		return "", models.Wallet{}, ErrLedgerUnderflow
	}

	entryID := uuid.NewString()
	if err := s.ledger.InsertPending(ctx, tx, store.LedgerEntryInput{
		ID:             entryID,
		WalletID:       walletID,
		Type:           op.entryType,
		Amount:         op.availableDelta + op.pendingDelta,
		AvailableDelta: op.availableDelta,
		PendingDelta:   op.pendingDelta,
		BalanceBefore:  wallet.Total(),
		BetID:          op.ref.BetID,
		CashoutID:      op.ref.CashoutID,
		ActionID:       op.ref.ActionID,
		Description:    op.ref.Description,
	}); err != nil {
		return "", models.Wallet{}, err
	}
	if err := s.wallets.UpdateBalances(ctx, tx, walletID, newAvailable, newPending); err != nil {
		return "", models.Wallet{}, err
	}
	if err := s.ledger.Complete(ctx, tx, entryID, newAvailable+newPending); err != nil {
		return "", models.Wallet{}, err
	}
	wallet.Available = newAvailable
	wallet.Pending = newPending
	return entryID, wallet, nil
}

// Reserve moves amount from available into pending, backing a bet or cashout
// hold. The wallet total is unchanged.
func (s *WalletService) Reserve(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error) {
	if amount <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:      entryType,
		availableDelta: -amount,
		pendingDelta:   amount,
		ref:            ref,
	})
}

// Release reverses a reservation on the cancel, void, expire, and push paths.
func (s *WalletService) Release(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error) {
	if amount <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:      entryType,
		availableDelta: amount,
		pendingDelta:   -amount,
		ref:            ref,
		allowFrozen:    true,
	})
}

// SettleWin consumes the pending stake and credits available with the returned
// stake plus the profit payout.
func (s *WalletService) SettleWin(ctx context.Context, tx store.Tx, walletID string, stake, payout int64, ref EntryRef) (string, models.Wallet, error) {
	if stake <= 0 || payout < 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:      models.EntryBetWon,
		availableDelta: stake + payout,
		pendingDelta:   -stake,
		ref:            ref,
		allowFrozen:    true,
	})
}

// SettleLoss removes the pending stake permanently.
func (s *WalletService) SettleLoss(ctx context.Context, tx store.Tx, walletID string, stake int64, ref EntryRef) (string, models.Wallet, error) {
	if stake <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:    models.EntryBetLost,
		pendingDelta: -stake,
		ref:          ref,
		allowFrozen:  true,
	})
}

// Credit adds tokens to available for purchase and admin flows.
func (s *WalletService) Credit(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error) {
	if amount <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:      entryType,
		availableDelta: amount,
		ref:            ref,
		allowFrozen:    true,
	})
}

// Debit removes tokens from available for admin and cashout-completion flows.
func (s *WalletService) Debit(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error) {
	if amount <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:      entryType,
		availableDelta: -amount,
		ref:            ref,
	})
}

// FinalizeHold consumes a pending reservation without returning it, completing
// a cashout's held debit.
func (s *WalletService) FinalizeHold(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error) {
	if amount <= 0 {
		return "", models.Wallet{}, ErrInvalidAmount
	}
	return s.apply(ctx, tx, walletID, ledgerOp{
		entryType:    entryType,
		pendingDelta: -amount,
		ref:          ref,
		allowFrozen:  true,
	})
}

// Open creates a wallet inside the caller's transaction and seeds it with an
// opening purchase when openingBalance is positive.
func (s *WalletService) Open(ctx context.Context, tx store.Tx, userID string, openingBalance int64) (models.Wallet, error) {
	walletID := uuid.NewString()
	if err := s.wallets.Create(ctx, tx, walletID, userID); err != nil {
		return models.Wallet{}, err
	}
	wallet := models.Wallet{ID: walletID, UserID: userID}
	if openingBalance > 0 {
		var err error
		if _, wallet, err = s.Credit(ctx, tx, walletID, openingBalance, models.EntryPurchase, EntryRef{Description: "opening balance"}); err != nil {
			return models.Wallet{}, err
		}
	}
	return wallet, nil
}

// Purchase credits freshly issued tokens to the user's wallet.
func (s *WalletService) Purchase(ctx context.Context, userID string, amount int64, description string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	var entryID string
	var after models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		entryID, after, err = s.Credit(ctx, tx, wallet.ID, amount, models.EntryPurchase, EntryRef{Description: description})
		return err
	})
	if err != nil {
		return "", err
	}
	s.broadcast(after)
	return entryID, nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return s.wallets.GetByUser(ctx, userID)
}

func (s *WalletService) ListLedger(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByWallet(ctx, wallet.ID, limit, offset)
}

func (s *WalletService) broadcast(wallet models.Wallet) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastWallet(wallet.UserID, walletUpdate(wallet))
}

func walletUpdate(wallet models.Wallet) websocket.WalletUpdate {
	return websocket.WalletUpdate{
		WalletID:  wallet.ID,
		Available: wallet.Available,
		Pending:   wallet.Pending,
	}
}
