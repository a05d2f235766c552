package models

import (
	"testing"
	"time"
)

func TestMarketLifecycle(t *testing.T) {
	m := Market{Status: MarketOpen}
	if err := m.Lock(); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if err := m.Lock(); err != ErrInvalidTransition {
		t.Fatalf("double lock should fail, got %v", err)
	}
	if err := m.RecordResult(21, 17); err != nil {
		t.Fatalf("record result failed: %v", err)
	}
	if !m.CanSettle() {
		t.Fatal("final market with scores should be settleable")
	}
	if err := m.MarkSettled(time.Now()); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if err := m.MarkSettled(time.Now()); err != ErrInvalidTransition {
		t.Fatalf("double settle should fail, got %v", err)
	}
	if err := m.RecordResult(28, 17); err != ErrInvalidTransition {
		t.Fatalf("settled market must not accept new scores, got %v", err)
	}
}

func TestMarketRecordResultFromOpen(t *testing.T) {
	// A forfeit can post scores without the market ever locking.
	m := Market{Status: MarketOpen}
	if err := m.RecordResult(0, 2); err != nil {
		t.Fatalf("record result failed: %v", err)
	}
	if m.Status != MarketFinal {
		t.Fatalf("expected final, got %s", m.Status)
	}
}

func TestCanSettleRequiresScores(t *testing.T) {
	m := Market{Status: MarketFinal}
	if m.CanSettle() {
		t.Fatal("final market without scores must not settle")
	}
}

func TestCashoutTransitions(t *testing.T) {
	allowed := []struct {
		from, to CashoutStatus
	}{
		{CashoutPending, CashoutUnderReview},
		{CashoutPending, CashoutApproved},
		{CashoutPending, CashoutCancelled},
		{CashoutUnderReview, CashoutRejected},
		{CashoutApproved, CashoutProcessing},
		{CashoutProcessing, CashoutCompleted},
		{CashoutProcessing, CashoutFailed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to CashoutStatus
	}{
		{CashoutPending, CashoutCompleted},
		{CashoutApproved, CashoutCancelled},
		{CashoutProcessing, CashoutRejected},
		{CashoutCompleted, CashoutFailed},
		{CashoutRejected, CashoutPending},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}

	for _, status := range []CashoutStatus{CashoutCompleted, CashoutRejected, CashoutFailed, CashoutCancelled} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
}

func TestBetStatusSettleable(t *testing.T) {
	for _, status := range []BetStatus{BetPending, BetActive} {
		if !status.Settleable() {
			t.Errorf("%s should be settleable", status)
		}
	}
	for _, status := range []BetStatus{BetWon, BetLost, BetPush, BetCancelled, BetVoided} {
		if status.Settleable() {
			t.Errorf("%s should not be settleable", status)
		}
	}
}

func TestLineCapacityHasRoom(t *testing.T) {
	unlimited := LineCapacity{Active: true}
	if !unlimited.HasRoom(1 << 40) {
		t.Fatal("capacity without a cap should always have room")
	}

	limit := int64(5000)
	capped := LineCapacity{Active: true, MaxExposure: &limit, CurrentExposure: 4000}
	if !capped.HasRoom(1000) {
		t.Fatal("stake landing exactly on the cap should fit")
	}
	if capped.HasRoom(1001) {
		t.Fatal("stake over the cap should not fit")
	}

	inactive := LineCapacity{MaxExposure: &limit}
	if inactive.HasRoom(1) {
		t.Fatal("inactive line should never have room")
	}
}
