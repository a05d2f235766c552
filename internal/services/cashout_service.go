package services

import (
	"context"
	"errors"
	"time"

	"wagerbook/internal/db"
	"wagerbook/internal/models"
	"wagerbook/internal/secure"
	"wagerbook/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var (
	ErrCashoutNotFound   = errors.New("cashout request not found")
	ErrNotCashoutOwner   = errors.New("cashout request belongs to another user")
	ErrMissingReference  = errors.New("transfer reference is required")
	ErrInvalidCashout    = errors.New("invalid cashout request")
	ErrInvalidTransition = models.ErrInvalidTransition
)

type CashoutStore interface {
	Insert(ctx context.Context, tx store.Execer, req models.CashoutRequest) error
	GetByID(ctx context.Context, cashoutID string) (models.CashoutRequest, error)
	GetForUpdate(ctx context.Context, tx store.Getter, cashoutID string) (models.CashoutRequest, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.CashoutRequest, error)
	ListByStatus(ctx context.Context, status models.CashoutStatus, limit, offset int) ([]models.CashoutRequest, error)
	UpdateStatus(ctx context.Context, tx store.Execer, cashoutID string, status models.CashoutStatus, reviewedBy *string) error
	Resolve(ctx context.Context, tx store.Execer, cashoutID string, status models.CashoutStatus, reviewedBy, transferRef *string) error
}

type CashoutLedger interface {
	Reserve(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	Release(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	FinalizeHold(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
}

// CashoutService runs the withdrawal state machine. The requested amount is
// held against the wallet up front and only leaves the pool when the transfer
// is confirmed, so a rejected or failed request always returns the tokens.
type CashoutService struct {
	txRunner  db.TxRunner
	cashouts  CashoutStore
	wallets   WalletStore
	ledger    CashoutLedger
	box       *secure.Box
	hub       BalanceHub
	logger    *logrus.Logger
	threshold int64
}

func NewCashoutService(txRunner db.TxRunner, cashouts CashoutStore, wallets WalletStore, ledger CashoutLedger, box *secure.Box, hub BalanceHub, logger *logrus.Logger, reviewThreshold int64) *CashoutService {
	return &CashoutService{
		txRunner:  txRunner,
		cashouts:  cashouts,
		wallets:   wallets,
		ledger:    ledger,
		box:       box,
		hub:       hub,
		logger:    logger,
		threshold: reviewThreshold,
	}
}

type CashoutRequestInput struct {
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	PaymentDetail string `json:"payment_detail"`
}

func (in CashoutRequestInput) validate() error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if in.Method == "" || in.PaymentDetail == "" {
		return ErrInvalidCashout
	}
	return nil
}

// Request places a hold for the amount and files the cashout. Requests at or
// above the review threshold start under_review instead of pending.
func (s *CashoutService) Request(ctx context.Context, userID string, in CashoutRequestInput) (models.CashoutRequest, error) {
	if err := in.validate(); err != nil {
		return models.CashoutRequest{}, err
	}
	detail, err := s.box.Encrypt(in.PaymentDetail)
	if err != nil {
		return models.CashoutRequest{}, err
	}

	status := models.CashoutPending
	if s.threshold > 0 && in.Amount >= s.threshold {
		status = models.CashoutUnderReview
	}
	req := models.CashoutRequest{
		ID:            uuid.New().String(),
		UserID:        userID,
		Amount:        in.Amount,
		Method:        in.Method,
		PaymentDetail: detail,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}

	var after models.Wallet
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		entryID, updated, err := s.ledger.Reserve(ctx, tx, wallet.ID, req.Amount, models.EntryCashoutRequested, EntryRef{
			CashoutID:   &req.ID,
			Description: "cashout hold",
		})
		if err != nil {
			return err
		}
		req.HoldEntryID = entryID
		after = updated
		return s.cashouts.Insert(ctx, tx, req)
	})
	if err != nil {
		return models.CashoutRequest{}, err
	}
	s.broadcast(after)
	s.logger.WithFields(logrus.Fields{
		"cashout_id": req.ID,
		"user_id":    userID,
		"amount":     req.Amount,
		"status":     req.Status,
	}).Info("cashout requested")
	return req, nil
}

// Approve moves a pending or under_review request to approved.
func (s *CashoutService) Approve(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error) {
	return s.transition(ctx, cashoutID, models.CashoutApproved, &reviewerID, nil)
}

// MarkProcessing records that the transfer has been handed to the operator.
func (s *CashoutService) MarkProcessing(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error) {
	return s.transition(ctx, cashoutID, models.CashoutProcessing, &reviewerID, nil)
}

// Complete confirms the transfer: the hold is consumed and the tokens leave
// circulation. The operator's transfer reference is mandatory.
func (s *CashoutService) Complete(ctx context.Context, reviewerID, cashoutID, transferRef string) (models.CashoutRequest, error) {
	if transferRef == "" {
		return models.CashoutRequest{}, ErrMissingReference
	}
	return s.transition(ctx, cashoutID, models.CashoutCompleted, &reviewerID, &transferRef)
}

// Reject declines the request and returns the held tokens.
func (s *CashoutService) Reject(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error) {
	return s.transition(ctx, cashoutID, models.CashoutRejected, &reviewerID, nil)
}

// Fail records a transfer that bounced after processing began; the hold is
// released back to the wallet.
func (s *CashoutService) Fail(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error) {
	return s.transition(ctx, cashoutID, models.CashoutFailed, &reviewerID, nil)
}

// Cancel lets the requesting user withdraw their own request before approval.
func (s *CashoutService) Cancel(ctx context.Context, userID, cashoutID string) (models.CashoutRequest, error) {
	existing, err := s.cashouts.GetByID(ctx, cashoutID)
	if err != nil {
		return models.CashoutRequest{}, err
	}
	if existing.UserID != userID {
		return models.CashoutRequest{}, ErrNotCashoutOwner
	}
	return s.transition(ctx, cashoutID, models.CashoutCancelled, nil, nil)
}

// transition applies one state-machine move under the cashout row lock and
// settles the hold when the move lands in a terminal state.
func (s *CashoutService) transition(ctx context.Context, cashoutID string, to models.CashoutStatus, reviewedBy, transferRef *string) (models.CashoutRequest, error) {
	var (
		result models.CashoutRequest
		after  models.Wallet
	)
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		after = models.Wallet{}
		req, err := s.cashouts.GetForUpdate(ctx, tx, cashoutID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransition(to) {
			return ErrInvalidTransition
		}
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		ref := EntryRef{CashoutID: &req.ID}
		switch to {
		case models.CashoutCompleted:
			ref.Description = "cashout transfer confirmed"
			if _, after, err = s.ledger.FinalizeHold(ctx, tx, wallet.ID, req.Amount, models.EntryCashoutCompleted, ref); err != nil {
				return err
			}
			if err := s.cashouts.Resolve(ctx, tx, req.ID, to, reviewedBy, transferRef); err != nil {
				return err
			}
		case models.CashoutRejected, models.CashoutCancelled, models.CashoutFailed:
			ref.Description = "cashout hold released"
			if _, after, err = s.ledger.Release(ctx, tx, wallet.ID, req.Amount, models.EntryCashoutCancelled, ref); err != nil {
				return err
			}
			if err := s.cashouts.Resolve(ctx, tx, req.ID, to, reviewedBy, nil); err != nil {
				return err
			}
		default:
			if err := s.cashouts.UpdateStatus(ctx, tx, req.ID, to, reviewedBy); err != nil {
				return err
			}
		}
		req.Status = to
		if reviewedBy != nil {
			req.ReviewedBy = reviewedBy
		}
		if transferRef != nil {
			req.TransferReference = transferRef
		}
		result = req
		return nil
	})
	if err != nil {
		return models.CashoutRequest{}, err
	}
	s.broadcast(after)
	s.logger.WithFields(logrus.Fields{
		"cashout_id": cashoutID,
		"status":     to,
	}).Info("cashout transition")
	return result, nil
}

func (s *CashoutService) Get(ctx context.Context, userID, cashoutID string) (models.CashoutRequest, error) {
	req, err := s.cashouts.GetByID(ctx, cashoutID)
	if err != nil {
		return models.CashoutRequest{}, err
	}
	if req.UserID != userID {
		return models.CashoutRequest{}, ErrNotCashoutOwner
	}
	return req, nil
}

func (s *CashoutService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.CashoutRequest, error) {
	return s.cashouts.ListByUser(ctx, userID, limit, offset)
}

func (s *CashoutService) ListQueue(ctx context.Context, status models.CashoutStatus, limit, offset int) ([]models.CashoutRequest, error) {
	return s.cashouts.ListByStatus(ctx, status, limit, offset)
}

// PaymentDetail decrypts the stored payout destination for an operator
// preparing the transfer.
func (s *CashoutService) PaymentDetail(ctx context.Context, cashoutID string) (string, error) {
	req, err := s.cashouts.GetByID(ctx, cashoutID)
	if err != nil {
		return "", err
	}
	return s.box.Decrypt(req.PaymentDetail)
}

func (s *CashoutService) broadcast(wallet models.Wallet) {
	if s.hub != nil && wallet.ID != "" {
		s.hub.BroadcastWallet(wallet.UserID, walletUpdate(wallet))
	}
}
