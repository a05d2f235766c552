package services

import (
	"context"
	"database/sql"
	"io"
	"sync"

	"wagerbook/internal/models"
	"wagerbook/internal/store"
	"wagerbook/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// fakeWalletStore keeps wallets in memory so wallet operations can be observed
// end to end without a database.
type fakeWalletStore struct {
	mu      sync.Mutex
	wallets map[string]*models.Wallet
}

func newFakeWalletStore(wallets ...models.Wallet) *fakeWalletStore {
	s := &fakeWalletStore{wallets: make(map[string]*models.Wallet)}
	for i := range wallets {
		w := wallets[i]
		s.wallets[w.ID] = &w
	}
	return s
}

func (s *fakeWalletStore) Create(_ context.Context, _ store.Execer, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[id] = &models.Wallet{ID: id, UserID: userID}
	return nil
}

func (s *fakeWalletStore) get(walletID string) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	return *w, nil
}

func (s *fakeWalletStore) GetByUser(_ context.Context, userID string) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.UserID == userID {
			return *w, nil
		}
	}
	return models.Wallet{}, sql.ErrNoRows
}

func (s *fakeWalletStore) GetForUpdate(_ context.Context, _ store.Getter, walletID string) (models.Wallet, error) {
	return s.get(walletID)
}

func (s *fakeWalletStore) GetByUserForUpdate(ctx context.Context, _ store.Getter, userID string) (models.Wallet, error) {
	return s.GetByUser(ctx, userID)
}

func (s *fakeWalletStore) UpdateBalances(_ context.Context, _ store.Execer, walletID string, available, pending int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return sql.ErrNoRows
	}
	w.Available = available
	w.Pending = pending
	return nil
}

func (s *fakeWalletStore) SetFrozen(_ context.Context, _ store.Execer, walletID string, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return sql.ErrNoRows
	}
	w.Frozen = frozen
	return nil
}

// recordingLedger captures every entry the wallet service writes.
type recordingLedger struct {
	inserted  []store.LedgerEntryInput
	completed map[string]int64
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{completed: make(map[string]int64)}
}

func (l *recordingLedger) InsertPending(_ context.Context, _ store.Execer, input store.LedgerEntryInput) error {
	l.inserted = append(l.inserted, input)
	return nil
}

func (l *recordingLedger) Complete(_ context.Context, _ store.Execer, entryID string, balanceAfter int64) error {
	l.completed[entryID] = balanceAfter
	return nil
}

func (l *recordingLedger) ListByWallet(context.Context, string, int, int) ([]models.LedgerEntry, error) {
	return nil, nil
}

type stubHub struct {
	calls []websocket.WalletUpdate
}

func (s *stubHub) BroadcastWallet(_ string, update websocket.WalletUpdate) {
	s.calls = append(s.calls, update)
}

type stubMarketStore struct {
	getByIDFn              func(ctx context.Context, marketID string) (models.Market, error)
	getForUpdateFn         func(ctx context.Context, tx store.Getter, marketID string) (models.Market, error)
	getCapacityFn          func(ctx context.Context, marketID string) (models.LineCapacity, error)
	getCapacityForUpdateFn func(ctx context.Context, tx store.Getter, marketID string) (models.LineCapacity, error)
	adjustExposureFn       func(ctx context.Context, tx store.Execer, marketID string, stakeDelta int64, countDelta int) error
}

func (s stubMarketStore) GetByID(ctx context.Context, marketID string) (models.Market, error) {
	return s.getByIDFn(ctx, marketID)
}

func (s stubMarketStore) GetForUpdate(ctx context.Context, tx store.Getter, marketID string) (models.Market, error) {
	return s.getForUpdateFn(ctx, tx, marketID)
}

func (s stubMarketStore) GetCapacity(ctx context.Context, marketID string) (models.LineCapacity, error) {
	return s.getCapacityFn(ctx, marketID)
}

func (s stubMarketStore) GetCapacityForUpdate(ctx context.Context, tx store.Getter, marketID string) (models.LineCapacity, error) {
	return s.getCapacityForUpdateFn(ctx, tx, marketID)
}

func (s stubMarketStore) AdjustExposure(ctx context.Context, tx store.Execer, marketID string, stakeDelta int64, countDelta int) error {
	if s.adjustExposureFn == nil {
		return nil
	}
	return s.adjustExposureFn(ctx, tx, marketID, stakeDelta, countDelta)
}

type stubBetStore struct {
	insertFn       func(ctx context.Context, tx store.Execer, bet models.Bet) error
	getByIDFn      func(ctx context.Context, betID string) (models.Bet, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, betID string) (models.Bet, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, betID string, status models.BetStatus, settledBy, notes *string) error
}

func (s stubBetStore) Insert(ctx context.Context, tx store.Execer, bet models.Bet) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, bet)
}

func (s stubBetStore) GetByID(ctx context.Context, betID string) (models.Bet, error) {
	return s.getByIDFn(ctx, betID)
}

func (s stubBetStore) GetForUpdate(ctx context.Context, tx store.Getter, betID string) (models.Bet, error) {
	return s.getForUpdateFn(ctx, tx, betID)
}

func (s stubBetStore) ListByUser(context.Context, string, int, int) ([]models.Bet, error) {
	return nil, nil
}

func (s stubBetStore) UpdateStatus(ctx context.Context, tx store.Execer, betID string, status models.BetStatus, settledBy, notes *string) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, tx, betID, status, settledBy, notes)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func newTestWalletService(wallets *fakeWalletStore, ledger *recordingLedger, hub *stubHub) *WalletService {
	return NewWalletService(fakeTxRunner{}, wallets, ledger, hub, testLogger())
}
