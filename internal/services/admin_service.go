package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wagerbook/internal/db"
	"wagerbook/internal/models"
	"wagerbook/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var (
	ErrReasonRequired = errors.New("admin action requires a reason")
	ErrAmountRequired = errors.New("admin action requires a positive amount")
	ErrBetRequired    = errors.New("admin action requires a bet id")
	ErrBetNotVoidable = errors.New("bet is not in a voidable status")
	ErrUnknownAction  = errors.New("unknown admin action type")
)

type ActionStore interface {
	Insert(ctx context.Context, tx store.Execer, action models.AdminAction) error
	Complete(ctx context.Context, tx store.Execer, actionID string, amount int64, ledgerEntryID *string) error
	ListByTarget(ctx context.Context, targetUserID string, limit, offset int) ([]models.AdminAction, error)
}

// AdminLedger is the slice of the wallet service that privileged corrections
// drive. Frozen wallets still accept releases so a voided bet's stake can go
// back even while the owner is locked out.
type AdminLedger interface {
	Credit(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	Debit(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	Release(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
}

// AdminService executes audited overrides. Every action writes an admin_actions
// row and an audit_logs row in the same transaction as the balance movement, so
// there is never a token that moved without a recorded actor and reason.
type AdminService struct {
	txRunner db.TxRunner
	actions  ActionStore
	wallets  WalletStore
	bets     BetStore
	markets  MarketStore
	ledger   AdminLedger
	audit    AuditStore
	hub      BalanceHub
	logger   *logrus.Logger
}

func NewAdminService(txRunner db.TxRunner, actions ActionStore, wallets WalletStore, bets BetStore, markets MarketStore, ledger AdminLedger, audit AuditStore, hub BalanceHub, logger *logrus.Logger) *AdminService {
	return &AdminService{
		txRunner: txRunner,
		actions:  actions,
		wallets:  wallets,
		bets:     bets,
		markets:  markets,
		ledger:   ledger,
		audit:    audit,
		hub:      hub,
		logger:   logger,
	}
}

type AdminActionInput struct {
	TargetUserID string                 `json:"target_user_id"`
	Type         models.AdminActionType `json:"type"`
	Amount       int64                  `json:"amount"`
	BetID        *string                `json:"bet_id,omitempty"`
	Reason       string                 `json:"reason"`
}

func (in AdminActionInput) validate() error {
	if in.Reason == "" {
		return ErrReasonRequired
	}
	if in.Type.RequiresAmount() && in.Amount <= 0 {
		return ErrAmountRequired
	}
	if in.Type == models.ActionRefundBet && in.BetID == nil {
		return ErrBetRequired
	}
	switch in.Type {
	case models.ActionCredit, models.ActionDebit, models.ActionFreeze,
		models.ActionUnfreeze, models.ActionRefundBet, models.ActionManualCashout:
		return nil
	}
	return ErrUnknownAction
}

// Apply executes one privileged action against the target user's wallet.
func (s *AdminService) Apply(ctx context.Context, actorID string, in AdminActionInput) (models.AdminAction, error) {
	if err := in.validate(); err != nil {
		return models.AdminAction{}, err
	}

	action := models.AdminAction{
		ID:           uuid.New().String(),
		ActorID:      actorID,
		TargetUserID: in.TargetUserID,
		Type:         in.Type,
		Amount:       in.Amount,
		BetID:        in.BetID,
		Reason:       in.Reason,
		Status:       "pending",
		CreatedAt:    time.Now().UTC(),
	}

	var after models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		after = models.Wallet{}
		if err := s.actions.Insert(ctx, tx, action); err != nil {
			return err
		}
		entryID, updated, err := s.execute(ctx, tx, &action)
		if err != nil {
			return err
		}
		after = updated
		if err := s.actions.Complete(ctx, tx, action.ID, action.Amount, entryID); err != nil {
			return err
		}
		action.Status = "completed"
		action.LedgerEntryID = entryID
		return s.audit.Log(ctx, tx, actorID, "admin."+string(action.Type), "admin_action", action.ID, s.auditData(action))
	})
	if err != nil {
		return models.AdminAction{}, err
	}
	if after.ID != "" && s.hub != nil {
		s.hub.BroadcastWallet(after.UserID, walletUpdate(after))
	}
	s.logger.WithFields(logrus.Fields{
		"action_id": action.ID,
		"actor_id":  actorID,
		"target_id": in.TargetUserID,
		"type":      action.Type,
		"amount":    action.Amount,
	}).Info("admin action applied")
	return action, nil
}

// execute performs the concrete balance or status mutation for one action and
// returns the ledger entry it produced, if any.
func (s *AdminService) execute(ctx context.Context, tx *sqlx.Tx, action *models.AdminAction) (*string, models.Wallet, error) {
	ref := EntryRef{ActionID: &action.ID, Description: action.Reason}

	switch action.Type {
	case models.ActionCredit:
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, action.TargetUserID)
		if err != nil {
			return nil, models.Wallet{}, err
		}
		entryID, after, err := s.ledger.Credit(ctx, tx, wallet.ID, action.Amount, models.EntryAdminCredit, ref)
		return &entryID, after, err

	case models.ActionDebit:
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, action.TargetUserID)
		if err != nil {
			return nil, models.Wallet{}, err
		}
		entryID, after, err := s.ledger.Debit(ctx, tx, wallet.ID, action.Amount, models.EntryAdminDebit, ref)
		return &entryID, after, err

	case models.ActionManualCashout:
		// Direct removal from circulation when the normal cashout flow is
		// unavailable, for example paying out a closed account.
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, action.TargetUserID)
		if err != nil {
			return nil, models.Wallet{}, err
		}
		entryID, after, err := s.ledger.Debit(ctx, tx, wallet.ID, action.Amount, models.EntryCashoutCompleted, ref)
		return &entryID, after, err

	case models.ActionFreeze, models.ActionUnfreeze:
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, action.TargetUserID)
		if err != nil {
			return nil, models.Wallet{}, err
		}
		frozen := action.Type == models.ActionFreeze
		if err := s.wallets.SetFrozen(ctx, tx, wallet.ID, frozen); err != nil {
			return nil, models.Wallet{}, err
		}
		wallet.Frozen = frozen
		return nil, wallet, nil

	case models.ActionRefundBet:
		return s.voidBet(ctx, tx, action, ref)
	}
	return nil, models.Wallet{}, ErrUnknownAction
}

// voidBet cancels an active bet by administrative decision and returns the
// stake. Lock order matches placement: market, capacity, bet, wallet.
func (s *AdminService) voidBet(ctx context.Context, tx *sqlx.Tx, action *models.AdminAction, ref EntryRef) (*string, models.Wallet, error) {
	peek, err := s.bets.GetByID(ctx, *action.BetID)
	if err != nil {
		return nil, models.Wallet{}, err
	}
	if _, err := s.markets.GetForUpdate(ctx, tx, peek.MarketID); err != nil {
		return nil, models.Wallet{}, err
	}
	if _, err := s.markets.GetCapacityForUpdate(ctx, tx, peek.MarketID); err != nil {
		return nil, models.Wallet{}, err
	}
	bet, err := s.bets.GetForUpdate(ctx, tx, *action.BetID)
	if err != nil {
		return nil, models.Wallet{}, err
	}
	if !bet.Status.Settleable() {
		return nil, models.Wallet{}, ErrBetNotVoidable
	}
	if bet.UserID != action.TargetUserID {
		return nil, models.Wallet{}, ErrNotBetOwner
	}
	wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, bet.UserID)
	if err != nil {
		return nil, models.Wallet{}, err
	}
	ref.BetID = &bet.ID
	entryID, after, err := s.ledger.Release(ctx, tx, wallet.ID, bet.Stake, models.EntryBetRefunded, ref)
	if err != nil {
		return nil, models.Wallet{}, err
	}
	if err := s.bets.UpdateStatus(ctx, tx, bet.ID, models.BetVoided, &action.ActorID, &action.Reason); err != nil {
		return nil, models.Wallet{}, err
	}
	if err := s.markets.AdjustExposure(ctx, tx, bet.MarketID, -bet.Stake, -1); err != nil {
		return nil, models.Wallet{}, err
	}
	action.Amount = bet.Stake
	return &entryID, after, nil
}

func (s *AdminService) auditData(action models.AdminAction) string {
	data, err := json.Marshal(map[string]any{
		"target_user_id": action.TargetUserID,
		"amount":         action.Amount,
		"bet_id":         action.BetID,
		"reason":         action.Reason,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (s *AdminService) ListForTarget(ctx context.Context, targetUserID string, limit, offset int) ([]models.AdminAction, error) {
	return s.actions.ListByTarget(ctx, targetUserID, limit, offset)
}
