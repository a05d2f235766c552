package handlers

import (
	"context"

	"wagerbook/internal/models"
	"wagerbook/internal/services"
	"wagerbook/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type WalletService interface {
	Open(ctx context.Context, tx store.Tx, userID string, openingBalance int64) (models.Wallet, error)
	Purchase(ctx context.Context, userID string, amount int64, description string) (string, error)
	GetWallet(ctx context.Context, userID string) (models.Wallet, error)
	ListLedger(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

type BetService interface {
	PlaceBet(ctx context.Context, req services.PlaceBetRequest) (models.Bet, error)
	CancelBet(ctx context.Context, userID, betID string) error
	ListBets(ctx context.Context, userID string, limit, offset int) ([]models.Bet, error)
}

type MarketService interface {
	Create(ctx context.Context, req services.CreateMarketRequest) (models.Market, error)
	UpdateLines(ctx context.Context, req services.UpdateLinesRequest) error
	PostResult(ctx context.Context, actorID, marketID string, homeScore, awayScore int, completed bool) error
	SetActive(ctx context.Context, actorID, marketID string, active bool) error
	Get(ctx context.Context, marketID string) (models.Market, models.LineCapacity, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Market, error)
}

type CashoutService interface {
	Request(ctx context.Context, userID string, in services.CashoutRequestInput) (models.CashoutRequest, error)
	Cancel(ctx context.Context, userID, cashoutID string) (models.CashoutRequest, error)
	Approve(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error)
	MarkProcessing(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error)
	Complete(ctx context.Context, reviewerID, cashoutID, transferRef string) (models.CashoutRequest, error)
	Reject(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error)
	Fail(ctx context.Context, reviewerID, cashoutID string) (models.CashoutRequest, error)
	Get(ctx context.Context, userID, cashoutID string) (models.CashoutRequest, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.CashoutRequest, error)
	ListQueue(ctx context.Context, status models.CashoutStatus, limit, offset int) ([]models.CashoutRequest, error)
	PaymentDetail(ctx context.Context, cashoutID string) (string, error)
}

type AdminService interface {
	Apply(ctx context.Context, actorID string, in services.AdminActionInput) (models.AdminAction, error)
	ListForTarget(ctx context.Context, targetUserID string, limit, offset int) ([]models.AdminAction, error)
}

type SettlementService interface {
	SettleMarket(ctx context.Context, marketID string, actorID *string, maxBets int) (models.SettlementReport, error)
	RunBatch(ctx context.Context, maxMarkets, maxBets int) ([]models.SettlementReport, error)
}

type PoolService interface {
	Reconcile(ctx context.Context) (models.PoolReconciliation, error)
}
