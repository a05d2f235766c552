package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Wallet struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Available int64     `db:"available" json:"available"`
	Pending   int64     `db:"pending" json:"pending"`
	Frozen    bool      `db:"frozen" json:"frozen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Total is the wallet's full token balance, reserved funds included.
func (w Wallet) Total() int64 {
	return w.Available + w.Pending
}

type LedgerEntryType string

const (
	EntryPurchase         LedgerEntryType = "purchase"
	EntryAdminCredit      LedgerEntryType = "admin_credit"
	EntryAdminDebit       LedgerEntryType = "admin_debit"
	EntryBetPlaced        LedgerEntryType = "bet_placed"
	EntryBetWon           LedgerEntryType = "bet_won"
	EntryBetLost          LedgerEntryType = "bet_lost"
	EntryBetRefunded      LedgerEntryType = "bet_refunded"
	EntryCashoutRequested LedgerEntryType = "cashout_requested"
	EntryCashoutCompleted LedgerEntryType = "cashout_completed"
	EntryCashoutCancelled LedgerEntryType = "cashout_cancelled"
)

type LedgerEntryStatus string

const (
	EntryPending   LedgerEntryStatus = "pending"
	EntryCompleted LedgerEntryStatus = "completed"
	EntryFailed    LedgerEntryStatus = "failed"
)

// LedgerEntry is the sole mechanism by which a wallet balance changes. Amount is
// the signed delta to the wallet total; AvailableDelta and PendingDelta record how
// the movement split across the two buckets, so replaying completed entries in
// creation order reproduces the wallet exactly.
type LedgerEntry struct {
	ID             string            `db:"id" json:"id"`
	WalletID       string            `db:"wallet_id" json:"wallet_id"`
	Type           LedgerEntryType   `db:"type" json:"type"`
	Amount         int64             `db:"amount" json:"amount"`
	AvailableDelta int64             `db:"available_delta" json:"available_delta"`
	PendingDelta   int64             `db:"pending_delta" json:"pending_delta"`
	BalanceBefore  int64             `db:"balance_before" json:"balance_before"`
	BalanceAfter   int64             `db:"balance_after" json:"balance_after"`
	Status         LedgerEntryStatus `db:"status" json:"status"`
	BetID          *string           `db:"bet_id" json:"bet_id,omitempty"`
	CashoutID      *string           `db:"cashout_id" json:"cashout_id,omitempty"`
	ActionID       *string           `db:"action_id" json:"action_id,omitempty"`
	Description    string            `db:"description" json:"description"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

type MarketKind string

const (
	MarketMatchup  MarketKind = "matchup"
	MarketExternal MarketKind = "external"
)

type MarketStatus string

const (
	MarketOpen    MarketStatus = "open"
	MarketLocked  MarketStatus = "locked"
	MarketFinal   MarketStatus = "final"
	MarketSettled MarketStatus = "settled"
)

// MatchupDetails describes an internal league matchup market.
type MatchupDetails struct {
	HomeUserID string `json:"home_user_id"`
	AwayUserID string `json:"away_user_id"`
	Sport      string `json:"sport"`
	Week       int    `json:"week"`
	Season     int    `json:"season"`
}

// ExternalDetails describes a market on an outside sporting event.
type ExternalDetails struct {
	HomeTeam        string `json:"home_team"`
	AwayTeam        string `json:"away_team"`
	ExternalEventID string `json:"external_event_id"`
}

// Market is a priced wagering market. Exactly one of Matchup or External is set,
// selected by Kind. The point spread and moneyline odds are quoted for the home
// side; the away side always takes the mirrored values.
type Market struct {
	ID            string           `json:"id"`
	Kind          MarketKind       `json:"kind"`
	Matchup       *MatchupDetails  `json:"matchup,omitempty"`
	External      *ExternalDetails `json:"external,omitempty"`
	PointSpread   *decimal.Decimal `json:"point_spread,omitempty"`
	TotalLine     *decimal.Decimal `json:"total_line,omitempty"`
	MoneylineHome *int             `json:"moneyline_home,omitempty"`
	MoneylineAway *int             `json:"moneyline_away,omitempty"`
	Status        MarketStatus     `json:"status"`
	HomeScore     *int             `json:"home_score,omitempty"`
	AwayScore     *int             `json:"away_score,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	SettledAt     *time.Time       `json:"settled_at,omitempty"`
}

// Lock transitions an open market to locked once the underlying event starts.
func (m *Market) Lock() error {
	if m.Status != MarketOpen {
		return ErrInvalidTransition
	}
	m.Status = MarketLocked
	return nil
}

// RecordResult posts final scores. Allowed from open or locked; a settled market
// never accepts new scores.
func (m *Market) RecordResult(homeScore, awayScore int) error {
	if m.Status != MarketOpen && m.Status != MarketLocked {
		return ErrInvalidTransition
	}
	m.HomeScore = &homeScore
	m.AwayScore = &awayScore
	m.Status = MarketFinal
	return nil
}

// CanSettle reports whether settlement is permitted: the event must be final and
// both scores recorded.
func (m *Market) CanSettle() bool {
	return m.Status == MarketFinal && m.HomeScore != nil && m.AwayScore != nil
}

// MarkSettled transitions final to settled. Settling twice is rejected.
func (m *Market) MarkSettled(at time.Time) error {
	if !m.CanSettle() {
		return ErrInvalidTransition
	}
	m.Status = MarketSettled
	m.SettledAt = &at
	return nil
}

type LineCapacity struct {
	MarketID        string `db:"market_id" json:"market_id"`
	MinBet          int64  `db:"min_bet" json:"min_bet"`
	MaxBet          int64  `db:"max_bet" json:"max_bet"`
	MaxExposure     *int64 `db:"max_exposure" json:"max_exposure,omitempty"`
	CurrentExposure int64  `db:"current_exposure" json:"current_exposure"`
	BetCount        int    `db:"bet_count" json:"bet_count"`
	Active          bool   `db:"active" json:"active"`
}

// HasRoom reports whether the capacity can absorb one more stake.
func (c LineCapacity) HasRoom(stake int64) bool {
	if !c.Active {
		return false
	}
	if c.MaxExposure == nil {
		return true
	}
	return c.CurrentExposure+stake <= *c.MaxExposure
}

type BetSelection string

const (
	SelectHomeSpread    BetSelection = "home_spread"
	SelectAwaySpread    BetSelection = "away_spread"
	SelectHomeMoneyline BetSelection = "home_moneyline"
	SelectAwayMoneyline BetSelection = "away_moneyline"
	SelectOver          BetSelection = "over"
	SelectUnder         BetSelection = "under"
)

type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetActive    BetStatus = "active"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetPush      BetStatus = "push"
	BetCancelled BetStatus = "cancelled"
	BetVoided    BetStatus = "voided"
	BetExpired   BetStatus = "expired"
)

// Settleable reports whether settlement may still touch the bet. Every other
// status is terminal and immutable.
func (s BetStatus) Settleable() bool {
	return s == BetActive || s == BetPending
}

type Bet struct {
	ID              string       `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"user_id"`
	MarketID        string       `db:"market_id" json:"market_id"`
	Selection       BetSelection `db:"selection" json:"selection"`
	Stake           int64        `db:"stake" json:"stake"`
	PotentialPayout int64        `db:"potential_payout" json:"potential_payout"`
	Odds            int          `db:"odds" json:"odds"`
	// Line is the spread or total captured at placement. Settlement reads it
	// instead of the market, so later line moves never touch existing bets.
	Line          *decimal.Decimal `db:"line" json:"line,omitempty"`
	Status        BetStatus        `db:"status" json:"status"`
	ReservationID string           `db:"reservation_id" json:"reservation_id"`
	SettledBy     *string          `db:"settled_by" json:"settled_by,omitempty"`
	SettleNotes   *string          `db:"settle_notes" json:"settle_notes,omitempty"`
	PlacedAt      time.Time        `db:"placed_at" json:"placed_at"`
	SettledAt     *time.Time       `db:"settled_at" json:"settled_at,omitempty"`
}

type BetOutcome string

const (
	OutcomeWin  BetOutcome = "win"
	OutcomeLoss BetOutcome = "loss"
	OutcomePush BetOutcome = "push"
)

type CashoutStatus string

const (
	CashoutPending     CashoutStatus = "pending"
	CashoutUnderReview CashoutStatus = "under_review"
	CashoutApproved    CashoutStatus = "approved"
	CashoutProcessing  CashoutStatus = "processing"
	CashoutCompleted   CashoutStatus = "completed"
	CashoutRejected    CashoutStatus = "rejected"
	CashoutFailed      CashoutStatus = "failed"
	CashoutCancelled   CashoutStatus = "cancelled"
)

var cashoutTransitions = map[CashoutStatus][]CashoutStatus{
	CashoutPending:     {CashoutUnderReview, CashoutApproved, CashoutRejected, CashoutCancelled},
	CashoutUnderReview: {CashoutApproved, CashoutRejected, CashoutCancelled},
	CashoutApproved:    {CashoutProcessing},
	CashoutProcessing:  {CashoutCompleted, CashoutFailed},
}

// CanTransition validates a cashout state-machine move.
func (s CashoutStatus) CanTransition(to CashoutStatus) bool {
	for _, next := range cashoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the cashout can no longer change state.
func (s CashoutStatus) Terminal() bool {
	return len(cashoutTransitions[s]) == 0
}

type CashoutRequest struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	Amount            int64         `db:"amount" json:"amount"`
	Method            string        `db:"method" json:"method"`
	PaymentDetail     string        `db:"payment_detail" json:"-"`
	Status            CashoutStatus `db:"status" json:"status"`
	ReviewedBy        *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	TransferReference *string       `db:"transfer_reference" json:"transfer_reference,omitempty"`
	HoldEntryID       string        `db:"hold_entry_id" json:"hold_entry_id"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt        *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

type AdminActionType string

const (
	ActionCredit        AdminActionType = "credit"
	ActionDebit         AdminActionType = "debit"
	ActionFreeze        AdminActionType = "freeze"
	ActionUnfreeze      AdminActionType = "unfreeze"
	ActionRefundBet     AdminActionType = "refund_bet"
	ActionManualCashout AdminActionType = "manual_cashout"
)

// RequiresAmount reports whether the action type moves tokens.
func (t AdminActionType) RequiresAmount() bool {
	switch t {
	case ActionCredit, ActionDebit, ActionManualCashout:
		return true
	}
	return false
}

// AdminAction is an audited privileged correction. Completed actions are
// immutable; a mistake is undone by a new opposite action.
type AdminAction struct {
	ID            string          `db:"id" json:"id"`
	ActorID       string          `db:"actor_id" json:"actor_id"`
	TargetUserID  string          `db:"target_user_id" json:"target_user_id"`
	Type          AdminActionType `db:"type" json:"type"`
	Amount        int64           `db:"amount" json:"amount"`
	BetID         *string         `db:"bet_id" json:"bet_id,omitempty"`
	Reason        string          `db:"reason" json:"reason"`
	Status        string          `db:"status" json:"status"`
	LedgerEntryID *string         `db:"ledger_entry_id" json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// SettlementReport summarizes one market's resolution.
type SettlementReport struct {
	MarketID    string `json:"market_id"`
	BetsSettled int    `json:"bets_settled"`
	Won         int    `json:"won"`
	Lost        int    `json:"lost"`
	Pushed      int    `json:"pushed"`
	TotalPayout int64  `json:"total_payout"`
	Settled     bool   `json:"settled"`
}

// PoolReconciliation is the derived global token aggregate. Delta must be zero:
// issued minus cashed out always equals circulating wallet totals plus the house
// balance.
type PoolReconciliation struct {
	Issued         int64 `json:"issued"`
	Circulating    int64 `json:"circulating"`
	CashedOut      int64 `json:"cashed_out"`
	HouseBalance   int64 `json:"house_balance"`
	Delta          int64 `json:"delta"`
	StalePending   int   `json:"stale_pending_entries"`
	WalletMismatch int   `json:"wallet_mismatches"`
}
