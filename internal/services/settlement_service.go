package services

import (
	"context"
	"errors"

	"wagerbook/internal/db"
	"wagerbook/internal/metrics"
	"wagerbook/internal/models"
	"wagerbook/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadySettled = errors.New("market already settled")
	ErrScoresMissing  = errors.New("market scores missing or inconsistent")
)

type SettlementMarketStore interface {
	GetByID(ctx context.Context, marketID string) (models.Market, error)
	GetForUpdate(ctx context.Context, tx store.Getter, marketID string) (models.Market, error)
	ListSettleable(ctx context.Context, limit int) ([]string, error)
	MarkSettled(ctx context.Context, tx store.Execer, marketID string) (int64, error)
}

type SettlementBetStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, betID string) (models.Bet, error)
	ListIDsByMarket(ctx context.Context, marketID string) ([]string, error)
	CountSettleable(ctx context.Context, tx store.Getter, marketID string) (int, error)
	UpdateStatus(ctx context.Context, tx store.Execer, betID string, status models.BetStatus, settledBy, notes *string) error
}

type SettlementLedger interface {
	Release(ctx context.Context, tx store.Tx, walletID string, amount int64, entryType models.LedgerEntryType, ref EntryRef) (string, models.Wallet, error)
	SettleWin(ctx context.Context, tx store.Tx, walletID string, stake, payout int64, ref EntryRef) (string, models.Wallet, error)
	SettleLoss(ctx context.Context, tx store.Tx, walletID string, stake int64, ref EntryRef) (string, models.Wallet, error)
}

// SettlementService resolves final markets. Each bet settles in its own
// transaction and is idempotent through its status check; the transaction that
// settles the last open bet also flips the market's settled flag, so a crash
// mid-market is recovered by simply re-running settlement for that market.
type SettlementService struct {
	txRunner db.TxRunner
	markets  SettlementMarketStore
	bets     SettlementBetStore
	wallets  WalletStore
	ledger   SettlementLedger
	hub      BalanceHub
	logger   *logrus.Logger
}

func NewSettlementService(txRunner db.TxRunner, markets SettlementMarketStore, bets SettlementBetStore, wallets WalletStore, ledger SettlementLedger, hub BalanceHub, logger *logrus.Logger) *SettlementService {
	return &SettlementService{
		txRunner: txRunner,
		markets:  markets,
		bets:     bets,
		wallets:  wallets,
		ledger:   ledger,
		hub:      hub,
		logger:   logger,
	}
}

// SettleMarket resolves every open bet on one final market. maxBets bounds the
// work done in this pass; zero means unbounded. A pass that stops early leaves
// the market final, and the next pass picks up the remainder.
func (s *SettlementService) SettleMarket(ctx context.Context, marketID string, actorID *string, maxBets int) (models.SettlementReport, error) {
	report := models.SettlementReport{MarketID: marketID}
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return report, err
	}
	if market.Status == models.MarketSettled {
		return report, ErrAlreadySettled
	}
	if !market.CanSettle() {
		return report, ErrScoresMissing
	}

	betIDs, err := s.bets.ListIDsByMarket(ctx, marketID)
	if err != nil {
		return report, err
	}
	for _, betID := range betIDs {
		if maxBets > 0 && report.BetsSettled >= maxBets {
			return report, nil
		}
		if err := s.settleBet(ctx, market, betID, actorID, &report); err != nil {
			return report, err
		}
	}
	if len(betIDs) == 0 {
		if err := s.finalizeEmpty(ctx, marketID, &report); err != nil {
			return report, err
		}
	}
	if report.Settled {
		metrics.MarketsSettled.Inc()
		s.logger.WithFields(logrus.Fields{
			"market_id":    marketID,
			"won":          report.Won,
			"lost":         report.Lost,
			"pushed":       report.Pushed,
			"total_payout": report.TotalPayout,
		}).Info("market settled")
	}
	return report, nil
}

// settleBet applies one bet's outcome inside its own transaction. Bets already
// in a terminal status are skipped, which is what makes re-settlement a no-op.
func (s *SettlementService) settleBet(ctx context.Context, market models.Market, betID string, actorID *string, report *models.SettlementReport) error {
	var after models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		after = models.Wallet{}
		bet, err := s.bets.GetForUpdate(ctx, tx, betID)
		if err != nil {
			return err
		}
		if !bet.Status.Settleable() {
			return nil
		}
		outcome, err := DetermineOutcome(market, bet)
		if err != nil {
			return err
		}
		wallet, err := s.wallets.GetByUserForUpdate(ctx, tx, bet.UserID)
		if err != nil {
			return err
		}
		ref := EntryRef{BetID: &bet.ID, Description: "bet settlement"}
		var status models.BetStatus
		switch outcome {
		case models.OutcomeWin:
			if _, after, err = s.ledger.SettleWin(ctx, tx, wallet.ID, bet.Stake, bet.PotentialPayout, ref); err != nil {
				return err
			}
			status = models.BetWon
			report.Won++
			report.TotalPayout += bet.Stake + bet.PotentialPayout
		case models.OutcomeLoss:
			if _, after, err = s.ledger.SettleLoss(ctx, tx, wallet.ID, bet.Stake, ref); err != nil {
				return err
			}
			status = models.BetLost
			report.Lost++
		case models.OutcomePush:
			if _, after, err = s.ledger.Release(ctx, tx, wallet.ID, bet.Stake, models.EntryBetRefunded, ref); err != nil {
				return err
			}
			status = models.BetPush
			report.Pushed++
		}
		if err := s.bets.UpdateStatus(ctx, tx, bet.ID, status, actorID, nil); err != nil {
			return err
		}
		report.BetsSettled++
		metrics.BetsSettled.WithLabelValues(string(status)).Inc()

		remaining, err := s.bets.CountSettleable(ctx, tx, market.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			settled, err := s.markets.MarkSettled(ctx, tx, market.ID)
			if err != nil {
				return err
			}
			report.Settled = settled > 0
		}
		return nil
	})
	if err != nil {
		return err
	}
	if after.ID != "" && s.hub != nil {
		s.hub.BroadcastWallet(after.UserID, walletUpdate(after))
	}
	return nil
}

// finalizeEmpty settles a final market that has no open bets left.
func (s *SettlementService) finalizeEmpty(ctx context.Context, marketID string, report *models.SettlementReport) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.markets.GetForUpdate(ctx, tx, marketID); err != nil {
			return err
		}
		settled, err := s.markets.MarkSettled(ctx, tx, marketID)
		if err != nil {
			return err
		}
		report.Settled = settled > 0
		return nil
	})
}

// RunBatch is one scheduler pass: it scans settleable markets and resolves them
// under the market and bet budgets. Markets whose scores are unusable are
// logged and left for the next pass.
func (s *SettlementService) RunBatch(ctx context.Context, maxMarkets, maxBets int) ([]models.SettlementReport, error) {
	if maxMarkets <= 0 {
		maxMarkets = 1
	}
	marketIDs, err := s.markets.ListSettleable(ctx, maxMarkets)
	if err != nil {
		return nil, err
	}
	reports := make([]models.SettlementReport, 0, len(marketIDs))
	budget := maxBets
	for _, marketID := range marketIDs {
		if maxBets > 0 && budget <= 0 {
			break
		}
		report, err := s.SettleMarket(ctx, marketID, nil, budget)
		if err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				continue
			}
			// Bad feed data or a lost lock race leaves the market for the
			// next interval.
			s.logger.WithError(err).WithField("market_id", marketID).Warn("settlement incomplete")
			continue
		}
		budget -= report.BetsSettled
		reports = append(reports, report)
	}
	return reports, nil
}

// DetermineOutcome computes a bet's result from final scores. Spread and total
// bets resolve against the line snapshotted on the bet at placement, never the
// market's current line. The point spread is quoted for the home side; an
// away-side wager takes the negated spread. Equality against any line is a push.
func DetermineOutcome(market models.Market, bet models.Bet) (models.BetOutcome, error) {
	if market.HomeScore == nil || market.AwayScore == nil {
		return "", ErrScoresMissing
	}
	home := *market.HomeScore
	away := *market.AwayScore

	switch bet.Selection {
	case models.SelectHomeMoneyline:
		return signOutcome(int64(home - away)), nil
	case models.SelectAwayMoneyline:
		return signOutcome(int64(away - home)), nil
	case models.SelectHomeSpread:
		if bet.Line == nil {
			return "", ErrScoresMissing
		}
		margin := decimal.NewFromInt(int64(home - away)).Add(*bet.Line)
		return decimalOutcome(margin), nil
	case models.SelectAwaySpread:
		if bet.Line == nil {
			return "", ErrScoresMissing
		}
		margin := decimal.NewFromInt(int64(away - home)).Sub(*bet.Line)
		return decimalOutcome(margin), nil
	case models.SelectOver:
		if bet.Line == nil {
			return "", ErrScoresMissing
		}
		diff := decimal.NewFromInt(int64(home + away)).Sub(*bet.Line)
		return decimalOutcome(diff), nil
	case models.SelectUnder:
		if bet.Line == nil {
			return "", ErrScoresMissing
		}
		diff := bet.Line.Sub(decimal.NewFromInt(int64(home + away)))
		return decimalOutcome(diff), nil
	}
	return "", ErrInvalidSelection
}

func signOutcome(diff int64) models.BetOutcome {
	switch {
	case diff > 0:
		return models.OutcomeWin
	case diff < 0:
		return models.OutcomeLoss
	}
	return models.OutcomePush
}

func decimalOutcome(diff decimal.Decimal) models.BetOutcome {
	switch diff.Sign() {
	case 1:
		return models.OutcomeWin
	case -1:
		return models.OutcomeLoss
	}
	return models.OutcomePush
}
