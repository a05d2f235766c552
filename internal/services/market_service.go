package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wagerbook/internal/db"
	"wagerbook/internal/models"
	"wagerbook/internal/odds"
	"wagerbook/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidMarket   = errors.New("invalid market definition")
	ErrMarketNotOpen   = errors.New("market is not open")
	ErrInvalidResult   = errors.New("invalid result")
	ErrEventUnfinished = errors.New("event not yet concluded")
)

type MarketAdminStore interface {
	MarketStore
	Insert(ctx context.Context, tx store.Execer, market models.Market) error
	List(ctx context.Context, status string, limit, offset int) ([]models.Market, error)
	UpdateStatus(ctx context.Context, tx store.Execer, marketID string, status models.MarketStatus) error
	RecordResult(ctx context.Context, tx store.Execer, marketID string, homeScore, awayScore int) error
	UpdateLines(ctx context.Context, tx store.Execer, marketID string, spread, total *decimal.Decimal, mlHome, mlAway *int) error
	InsertCapacity(ctx context.Context, tx store.Execer, cap models.LineCapacity) error
	SetCapacityActive(ctx context.Context, tx store.Execer, marketID string, active bool) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// MarketService is the line book: admin CRUD over markets and their capacity.
// Odds changes never rewrite placed bets; every bet keeps its placement
// snapshot.
type MarketService struct {
	txRunner db.TxRunner
	markets  MarketAdminStore
	audit    AuditStore
	logger   *logrus.Logger
}

func NewMarketService(txRunner db.TxRunner, markets MarketAdminStore, audit AuditStore, logger *logrus.Logger) *MarketService {
	return &MarketService{
		txRunner: txRunner,
		markets:  markets,
		audit:    audit,
		logger:   logger,
	}
}

type CreateMarketRequest struct {
	ActorID       string
	Kind          models.MarketKind
	Matchup       *models.MatchupDetails
	External      *models.ExternalDetails
	PointSpread   *decimal.Decimal
	TotalLine     *decimal.Decimal
	MoneylineHome *int
	MoneylineAway *int
	ExpiresAt     time.Time
	MinBet        int64
	MaxBet        int64
	MaxExposure   *int64
}

func (r CreateMarketRequest) validate() error {
	switch r.Kind {
	case models.MarketMatchup:
		if r.Matchup == nil || r.External != nil {
			return ErrInvalidMarket
		}
		if r.Matchup.HomeUserID == "" || r.Matchup.AwayUserID == "" || r.Matchup.HomeUserID == r.Matchup.AwayUserID {
			return ErrInvalidMarket
		}
	case models.MarketExternal:
		if r.External == nil || r.Matchup != nil {
			return ErrInvalidMarket
		}
		if r.External.HomeTeam == "" || r.External.AwayTeam == "" {
			return ErrInvalidMarket
		}
	default:
		return ErrInvalidMarket
	}
	if r.PointSpread == nil && r.TotalLine == nil && (r.MoneylineHome == nil || r.MoneylineAway == nil) {
		return ErrInvalidMarket
	}
	if r.MoneylineHome != nil {
		if r.MoneylineAway == nil {
			return ErrInvalidMarket
		}
		if err := odds.Validate(*r.MoneylineHome); err != nil {
			return err
		}
		if err := odds.Validate(*r.MoneylineAway); err != nil {
			return err
		}
	}
	if !time.Now().Before(r.ExpiresAt) {
		return ErrInvalidMarket
	}
	if r.MinBet <= 0 || r.MaxBet < r.MinBet {
		return ErrInvalidMarket
	}
	if r.MaxExposure != nil && *r.MaxExposure < r.MaxBet {
		return ErrInvalidMarket
	}
	return nil
}

func (s *MarketService) Create(ctx context.Context, req CreateMarketRequest) (models.Market, error) {
	if err := req.validate(); err != nil {
		return models.Market{}, err
	}
	market := models.Market{
		ID:            uuid.NewString(),
		Kind:          req.Kind,
		Matchup:       req.Matchup,
		External:      req.External,
		PointSpread:   req.PointSpread,
		TotalLine:     req.TotalLine,
		MoneylineHome: req.MoneylineHome,
		MoneylineAway: req.MoneylineAway,
		Status:        models.MarketOpen,
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     req.ActorID,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.markets.Insert(ctx, tx, market); err != nil {
			return err
		}
		if err := s.markets.InsertCapacity(ctx, tx, models.LineCapacity{
			MarketID:    market.ID,
			MinBet:      req.MinBet,
			MaxBet:      req.MaxBet,
			MaxExposure: req.MaxExposure,
			Active:      true,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"kind": string(req.Kind)})
		return s.audit.Log(ctx, tx, req.ActorID, "create_market", "market", market.ID, string(data))
	})
	if err != nil {
		return models.Market{}, err
	}
	return market, nil
}

type UpdateLinesRequest struct {
	ActorID       string
	MarketID      string
	PointSpread   *decimal.Decimal
	TotalLine     *decimal.Decimal
	MoneylineHome *int
	MoneylineAway *int
}

// UpdateLines replaces the live prices on an open market. Bets already placed
// keep the odds and line they were priced at, so a move only affects new bets.
func (s *MarketService) UpdateLines(ctx context.Context, req UpdateLinesRequest) error {
	if req.MoneylineHome != nil {
		if req.MoneylineAway == nil {
			return ErrInvalidMarket
		}
		if err := odds.Validate(*req.MoneylineHome); err != nil {
			return err
		}
		if err := odds.Validate(*req.MoneylineAway); err != nil {
			return err
		}
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		market, err := s.markets.GetForUpdate(ctx, tx, req.MarketID)
		if err != nil {
			return err
		}
		if market.Status != models.MarketOpen {
			return ErrMarketNotOpen
		}
		if err := s.markets.UpdateLines(ctx, tx, req.MarketID, req.PointSpread, req.TotalLine, req.MoneylineHome, req.MoneylineAway); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"market_id": req.MarketID})
		return s.audit.Log(ctx, tx, req.ActorID, "update_lines", "market", req.MarketID, string(data))
	})
}

// PostResult consumes the score feed. A non-final status locks the market; a
// final status records scores and arms settlement.
func (s *MarketService) PostResult(ctx context.Context, actorID, marketID string, homeScore, awayScore int, completed bool) error {
	if homeScore < 0 || awayScore < 0 {
		return ErrInvalidResult
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		market, err := s.markets.GetForUpdate(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if !completed {
			if err := market.Lock(); err != nil {
				return err
			}
			return s.markets.UpdateStatus(ctx, tx, marketID, models.MarketLocked)
		}
		if err := market.RecordResult(homeScore, awayScore); err != nil {
			return err
		}
		if err := s.markets.RecordResult(ctx, tx, marketID, homeScore, awayScore); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]int{"home_score": homeScore, "away_score": awayScore})
		return s.audit.Log(ctx, tx, actorID, "post_result", "market", marketID, string(data))
	})
}

// SetActive flips whether the line accepts new bets without touching existing
// exposure.
func (s *MarketService) SetActive(ctx context.Context, actorID, marketID string, active bool) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.markets.GetForUpdate(ctx, tx, marketID); err != nil {
			return err
		}
		if err := s.markets.SetCapacityActive(ctx, tx, marketID, active); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]bool{"active": active})
		return s.audit.Log(ctx, tx, actorID, "set_market_active", "market", marketID, string(data))
	})
}

func (s *MarketService) Get(ctx context.Context, marketID string) (models.Market, models.LineCapacity, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return models.Market{}, models.LineCapacity{}, err
	}
	capacity, err := s.markets.GetCapacity(ctx, marketID)
	if err != nil {
		return models.Market{}, models.LineCapacity{}, err
	}
	return market, capacity, nil
}

func (s *MarketService) List(ctx context.Context, status string, limit, offset int) ([]models.Market, error) {
	return s.markets.List(ctx, status, limit, offset)
}

// AcceptingBets mirrors the placement gate for read paths: the line is active,
// the market open and unexpired, and exposure headroom remains.
func AcceptingBets(market models.Market, capacity models.LineCapacity, now time.Time) bool {
	if market.Status != models.MarketOpen || !now.Before(market.ExpiresAt) {
		return false
	}
	if !capacity.Active {
		return false
	}
	if capacity.MaxExposure == nil {
		return true
	}
	return capacity.CurrentExposure < *capacity.MaxExposure
}
