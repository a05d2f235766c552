package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"wagerbook/internal/models"

	"github.com/sirupsen/logrus"
)

type stubSettler struct {
	calls atomic.Int32
	err   error
}

func (s *stubSettler) RunBatch(context.Context, int, int) ([]models.SettlementReport, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []models.SettlementReport{{MarketID: "m1", BetsSettled: 1, Settled: true}}, nil
}

type stubReconciler struct {
	calls atomic.Int32
}

func (s *stubReconciler) Reconcile(context.Context) (models.PoolReconciliation, error) {
	s.calls.Add(1)
	return models.PoolReconciliation{}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunPassesImmediatelyAndStopsOnCancel(t *testing.T) {
	settler := &stubSettler{}
	reconciler := &stubReconciler{}
	s := New(settler, reconciler, quietLogger(), time.Hour, 10, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for settler.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup pass never ran")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	if reconciler.calls.Load() == 0 {
		t.Fatal("reconciliation should follow the settlement pass")
	}
}

func TestPassSkipsReconcileAfterSettlementError(t *testing.T) {
	settler := &stubSettler{err: errors.New("db down")}
	reconciler := &stubReconciler{}
	s := New(settler, reconciler, quietLogger(), time.Hour, 10, 100)

	s.pass(context.Background())
	if reconciler.calls.Load() != 0 {
		t.Fatal("a failed settlement pass skips reconciliation")
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(&stubSettler{}, &stubReconciler{}, quietLogger(), 0, 1, 1)
	if s.interval != 5*time.Minute {
		t.Fatalf("expected default interval, got %s", s.interval)
	}
}
