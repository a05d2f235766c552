package services

import (
	"context"
	"errors"
	"time"

	"wagerbook/internal/db"
	"wagerbook/internal/metrics"
	"wagerbook/internal/models"
	"wagerbook/internal/odds"
	"wagerbook/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrMarketClosed      = errors.New("market not accepting bets")
	ErrInvalidSelection  = errors.New("selection not valid for market")
	ErrStakeOutOfBounds  = errors.New("stake outside market limits")
	ErrBetNotCancellable = errors.New("bet can no longer be cancelled")
	ErrNotBetOwner       = errors.New("bet does not belong to user")
)

// Spread and total wagers price at the standard -110 juice; moneyline wagers
// use the per-side market odds.
const sidePrice = -110

type MarketStore interface {
	GetByID(ctx context.Context, marketID string) (models.Market, error)
	GetForUpdate(ctx context.Context, tx store.Getter, marketID string) (models.Market, error)
	GetCapacity(ctx context.Context, marketID string) (models.LineCapacity, error)
	GetCapacityForUpdate(ctx context.Context, tx store.Getter, marketID string) (models.LineCapacity, error)
	AdjustExposure(ctx context.Context, tx store.Execer, marketID string, stakeDelta int64, countDelta int) error
}

type BetStore interface {
	Insert(ctx context.Context, tx store.Execer, bet models.Bet) error
	GetByID(ctx context.Context, betID string) (models.Bet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, betID string) (models.Bet, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Bet, error)
	UpdateStatus(ctx context.Context, tx store.Execer, betID string, status models.BetStatus, settledBy, notes *string) error
}

// WalletLedger is the slice of the wallet service the bet engine drives.
type WalletLedger interface {
	Reserve(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	Release(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
}

type BetService struct {
	txRunner db.TxRunner
	markets  MarketStore
	bets     BetStore
	wallets  WalletStore
	ledger   WalletLedger
	hub      BalanceHub
	logger   *logrus.Logger
}

func NewBetService(txRunner db.TxRunner, markets MarketStore, bets BetStore, wallets WalletStore, ledger WalletLedger, hub BalanceHub, logger *logrus.Logger) *BetService {
	return &BetService{
		txRunner: txRunner,
		markets:  markets,
		bets:     bets,
		wallets:  wallets,
		ledger:   ledger,
		hub:      hub,
		logger:   logger,
	}
}

type PlaceBetRequest struct {
	UserID    string
	MarketID  string
	Selection models.BetSelection
	Stake     int64
}

// PlaceBet validates the market and selection, reserves the stake, books the
// exposure, and creates the bet with an odds snapshot, all in one transaction.
// Lock order is market, capacity, wallet; every placement and cancellation
// follows it.
func (s *BetService) PlaceBet(ctx context.Context, req PlaceBetRequest) (models.Bet, error) {
	if req.Stake <= 0 {
		return models.Bet{}, ErrInvalidAmount
	}
	var bet models.Bet
	var after models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		market, err := s.markets.GetForUpdate(ctx, tx, req.MarketID)
		if err != nil {
			return err
		}
		if market.Status != models.MarketOpen || !time.Now().Before(market.ExpiresAt) {
			return ErrMarketClosed
		}
		capacity, err := s.markets.GetCapacityForUpdate(ctx, tx, req.MarketID)
		if err != nil {
			return err
		}
		if !capacity.Active {
			return ErrMarketClosed
		}
		if req.Stake < capacity.MinBet || req.Stake > capacity.MaxBet {
			return ErrStakeOutOfBounds
		}
		if !capacity.HasRoom(req.Stake) {
			metrics.ExposureRejections.Inc()
			return ErrMarketClosed
		}
		price, err := selectionPrice(market, req.Selection)
		if err != nil {
			return err
		}
		line := selectionLine(market, req.Selection)
		payout, err := odds.Payout(req.Stake, price)
		if err != nil {
			return err
		}

		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		betID := uuid.NewString()
		reservationID, updated, err := s.ledger.Reserve(ctx, tx, wallet.ID, req.Stake, models.EntryBetPlaced, EntryRef{
			BetID:       &betID,
			Description: "bet stake reservation",
		})
		if err != nil {
			return err
		}
		after = updated

		bet = models.Bet{
			ID:              betID,
			UserID:          req.UserID,
			MarketID:        req.MarketID,
			Selection:       req.Selection,
			Stake:           req.Stake,
			PotentialPayout: payout,
			Odds:            price,
			Line:            line,
			Status:          models.BetActive,
			ReservationID:   reservationID,
		}
		if err := s.bets.Insert(ctx, tx, bet); err != nil {
			return err
		}
		return s.markets.AdjustExposure(ctx, tx, req.MarketID, req.Stake, 1)
	})
	if err != nil {
		return models.Bet{}, err
	}
	metrics.BetsPlaced.Inc()
	s.broadcast(after)
	return bet, nil
}

// CancelBet releases an active bet's reservation while the market is still
// open. Cancellation and settlement both lock the bet row, so whichever
// transaction commits first wins the terminal transition.
func (s *BetService) CancelBet(ctx context.Context, userID, betID string) error {
	var after models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.bets.GetByID(ctx, betID)
		if err != nil {
			return err
		}
		market, err := s.markets.GetForUpdate(ctx, tx, current.MarketID)
		if err != nil {
			return err
		}
		bet, err := s.bets.GetForUpdate(ctx, tx, betID)
		if err != nil {
			return err
		}
		if bet.UserID != userID {
			return ErrNotBetOwner
		}
		if bet.Status != models.BetActive {
			return ErrBetNotCancellable
		}
		if market.Status != models.MarketOpen || !time.Now().Before(market.ExpiresAt) {
			return ErrBetNotCancellable
		}
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, bet.UserID)
		if err != nil {
			return err
		}
		if _, updated, err := s.ledger.Release(ctx, tx, wallet.ID, bet.Stake, models.EntryBetRefunded, EntryRef{
			BetID:       &bet.ID,
			Description: "bet cancelled",
		}); err != nil {
			return err
		} else {
			after = updated
		}
		if err := s.bets.UpdateStatus(ctx, tx, bet.ID, models.BetCancelled, nil, nil); err != nil {
			return err
		}
		return s.markets.AdjustExposure(ctx, tx, bet.MarketID, -bet.Stake, -1)
	})
	if err != nil {
		return err
	}
	s.broadcast(after)
	return nil
}

func (s *BetService) ListBets(ctx context.Context, userID string, limit, offset int) ([]models.Bet, error) {
	return s.bets.ListByUser(ctx, userID, limit, offset)
}

func (s *BetService) broadcast(wallet models.Wallet) {
	if s.hub == nil || wallet.ID == "" {
		return
	}
	s.hub.BroadcastWallet(wallet.UserID, walletUpdate(wallet))
}

// selectionPrice returns the American odds snapshot for a selection, rejecting
// selections the market does not price.
func selectionPrice(market models.Market, selection models.BetSelection) (int, error) {
	switch selection {
	case models.SelectHomeMoneyline:
		if market.MoneylineHome == nil {
			return 0, ErrInvalidSelection
		}
		return *market.MoneylineHome, nil
	case models.SelectAwayMoneyline:
		if market.MoneylineAway == nil {
			return 0, ErrInvalidSelection
		}
		return *market.MoneylineAway, nil
	case models.SelectHomeSpread, models.SelectAwaySpread:
		if market.PointSpread == nil {
			return 0, ErrInvalidSelection
		}
		return sidePrice, nil
	case models.SelectOver, models.SelectUnder:
		if market.TotalLine == nil {
			return 0, ErrInvalidSelection
		}
		return sidePrice, nil
	}
	return 0, ErrInvalidSelection
}

// selectionLine is the spread or total the bet locks in at placement. Moneyline
// selections carry no line.
func selectionLine(market models.Market, selection models.BetSelection) *decimal.Decimal {
	var src *decimal.Decimal
	switch selection {
	case models.SelectHomeSpread, models.SelectAwaySpread:
		src = market.PointSpread
	case models.SelectOver, models.SelectUnder:
		src = market.TotalLine
	}
	if src == nil {
		return nil
	}
	snapshot := *src
	return &snapshot
}
