package services

import (
	"context"
	"testing"
	"time"

	"wagerbook/internal/models"
	"wagerbook/internal/store"

	"github.com/shopspring/decimal"
)

type stubMarketAdminStore struct {
	stubMarketStore
	insertFn            func(ctx context.Context, tx store.Execer, market models.Market) error
	updateStatusFn      func(ctx context.Context, tx store.Execer, marketID string, status models.MarketStatus) error
	recordResultFn      func(ctx context.Context, tx store.Execer, marketID string, homeScore, awayScore int) error
	updateLinesFn       func(ctx context.Context, tx store.Execer, marketID string, spread, total *decimal.Decimal, mlHome, mlAway *int) error
	insertCapacityFn    func(ctx context.Context, tx store.Execer, cap models.LineCapacity) error
	setCapacityActiveFn func(ctx context.Context, tx store.Execer, marketID string, active bool) error
}

func (s stubMarketAdminStore) Insert(ctx context.Context, tx store.Execer, market models.Market) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, market)
}

func (s stubMarketAdminStore) List(context.Context, string, int, int) ([]models.Market, error) {
	return nil, nil
}

func (s stubMarketAdminStore) UpdateStatus(ctx context.Context, tx store.Execer, marketID string, status models.MarketStatus) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, tx, marketID, status)
}

func (s stubMarketAdminStore) RecordResult(ctx context.Context, tx store.Execer, marketID string, homeScore, awayScore int) error {
	if s.recordResultFn == nil {
		return nil
	}
	return s.recordResultFn(ctx, tx, marketID, homeScore, awayScore)
}

func (s stubMarketAdminStore) UpdateLines(ctx context.Context, tx store.Execer, marketID string, spread, total *decimal.Decimal, mlHome, mlAway *int) error {
	if s.updateLinesFn == nil {
		return nil
	}
	return s.updateLinesFn(ctx, tx, marketID, spread, total, mlHome, mlAway)
}

func (s stubMarketAdminStore) InsertCapacity(ctx context.Context, tx store.Execer, cap models.LineCapacity) error {
	if s.insertCapacityFn == nil {
		return nil
	}
	return s.insertCapacityFn(ctx, tx, cap)
}

func (s stubMarketAdminStore) SetCapacityActive(ctx context.Context, tx store.Execer, marketID string, active bool) error {
	if s.setCapacityActiveFn == nil {
		return nil
	}
	return s.setCapacityActiveFn(ctx, tx, marketID, active)
}

func validExternalRequest() CreateMarketRequest {
	spread := decimal.RequireFromString("-6.5")
	return CreateMarketRequest{
		ActorID:     "admin1",
		Kind:        models.MarketExternal,
		External:    &models.ExternalDetails{HomeTeam: "PHI", AwayTeam: "DAL"},
		PointSpread: &spread,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
		MinBet:      100,
		MaxBet:      50000,
	}
}

func TestCreateMarketValidation(t *testing.T) {
	svc := NewMarketService(fakeTxRunner{}, stubMarketAdminStore{}, stubAuditStore{}, testLogger())

	noLines := validExternalRequest()
	noLines.PointSpread = nil

	matchupSelf := validExternalRequest()
	matchupSelf.Kind = models.MarketMatchup
	matchupSelf.External = nil
	matchupSelf.Matchup = &models.MatchupDetails{HomeUserID: "u1", AwayUserID: "u1"}

	expired := validExternalRequest()
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	badBounds := validExternalRequest()
	badBounds.MinBet = 500
	badBounds.MaxBet = 100

	halfOdds := validExternalRequest()
	home := -150
	halfOdds.MoneylineHome = &home

	tinyCap := validExternalRequest()
	capValue := int64(100)
	tinyCap.MaxExposure = &capValue

	cases := []struct {
		name string
		req  CreateMarketRequest
	}{
		{"no priced line", noLines},
		{"matchup against self", matchupSelf},
		{"already expired", expired},
		{"min above max", badBounds},
		{"moneyline missing away side", halfOdds},
		{"exposure cap below max bet", tinyCap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.req); err != ErrInvalidMarket {
				t.Fatalf("expected ErrInvalidMarket, got %v", err)
			}
		})
	}
}

func TestCreateMarketSeedsCapacity(t *testing.T) {
	var capacity models.LineCapacity
	var audited string
	svc := NewMarketService(fakeTxRunner{}, stubMarketAdminStore{
		insertCapacityFn: func(_ context.Context, _ store.Execer, cap models.LineCapacity) error {
			capacity = cap
			return nil
		},
	}, stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
			audited = action
			return nil
		},
	}, testLogger())

	market, err := svc.Create(context.Background(), validExternalRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if market.Status != models.MarketOpen {
		t.Fatalf("new market should open, got %s", market.Status)
	}
	if capacity.MarketID != market.ID || !capacity.Active || capacity.MinBet != 100 || capacity.MaxBet != 50000 {
		t.Fatalf("capacity not seeded: %+v", capacity)
	}
	if audited != "create_market" {
		t.Fatalf("expected audit entry, got %q", audited)
	}
}

func TestUpdateLinesRequiresOpenMarket(t *testing.T) {
	svc := NewMarketService(fakeTxRunner{}, stubMarketAdminStore{
		stubMarketStore: stubMarketStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Market, error) {
				return models.Market{ID: "m1", Status: models.MarketLocked}, nil
			},
		},
	}, stubAuditStore{}, testLogger())

	total := decimal.RequireFromString("48.5")
	err := svc.UpdateLines(context.Background(), UpdateLinesRequest{ActorID: "admin1", MarketID: "m1", TotalLine: &total})
	if err != ErrMarketNotOpen {
		t.Fatalf("expected ErrMarketNotOpen, got %v", err)
	}
}

func TestPostResultLocksOrFinalizes(t *testing.T) {
	var status models.MarketStatus
	var recorded bool
	markets := stubMarketAdminStore{
		stubMarketStore: stubMarketStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Market, error) {
				return models.Market{ID: "m1", Status: models.MarketOpen}, nil
			},
		},
		updateStatusFn: func(_ context.Context, _ store.Execer, _ string, next models.MarketStatus) error {
			status = next
			return nil
		},
		recordResultFn: func(_ context.Context, _ store.Execer, _ string, _, _ int) error {
			recorded = true
			return nil
		},
	}
	svc := NewMarketService(fakeTxRunner{}, markets, stubAuditStore{}, testLogger())

	if err := svc.PostResult(context.Background(), "admin1", "m1", 7, 3, false); err != nil {
		t.Fatalf("in-progress update failed: %v", err)
	}
	if status != models.MarketLocked || recorded {
		t.Fatalf("in-progress score should only lock: status=%s recorded=%v", status, recorded)
	}

	if err := svc.PostResult(context.Background(), "admin1", "m1", 28, 24, true); err != nil {
		t.Fatalf("final posting failed: %v", err)
	}
	if !recorded {
		t.Fatal("final score should be recorded")
	}
}

func TestPostResultRejectsSettledMarket(t *testing.T) {
	svc := NewMarketService(fakeTxRunner{}, stubMarketAdminStore{
		stubMarketStore: stubMarketStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Market, error) {
				return models.Market{ID: "m1", Status: models.MarketSettled}, nil
			},
		},
	}, stubAuditStore{}, testLogger())

	if err := svc.PostResult(context.Background(), "admin1", "m1", 10, 7, true); err != models.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPostResultNegativeScores(t *testing.T) {
	svc := NewMarketService(fakeTxRunner{}, stubMarketAdminStore{}, stubAuditStore{}, testLogger())
	if err := svc.PostResult(context.Background(), "admin1", "m1", -1, 3, true); err != ErrInvalidResult {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
}

func TestAcceptingBetsGate(t *testing.T) {
	now := time.Now()
	open := models.Market{Status: models.MarketOpen, ExpiresAt: now.Add(time.Hour)}
	active := models.LineCapacity{Active: true}

	if !AcceptingBets(open, active, now) {
		t.Fatal("open market with active line should accept bets")
	}

	expired := open
	expired.ExpiresAt = now.Add(-time.Second)
	if AcceptingBets(expired, active, now) {
		t.Fatal("expired market should not accept bets")
	}

	full := active
	limit := int64(1000)
	full.MaxExposure = &limit
	full.CurrentExposure = 1000
	if AcceptingBets(open, full, now) {
		t.Fatal("line at its exposure cap should not accept bets")
	}
}
