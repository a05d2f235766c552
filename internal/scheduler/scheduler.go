package scheduler

import (
	"context"
	"time"

	"wagerbook/internal/metrics"
	"wagerbook/internal/models"

	"github.com/sirupsen/logrus"
)

type Settler interface {
	RunBatch(ctx context.Context, maxMarkets, maxBets int) ([]models.SettlementReport, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (models.PoolReconciliation, error)
}

// Scheduler drives periodic settlement passes followed by a pool
// reconciliation. Passes are bounded, so a backlog drains over several
// intervals instead of holding locks for one long transaction.
type Scheduler struct {
	settler    Settler
	reconciler Reconciler
	logger     *logrus.Logger
	interval   time.Duration
	maxMarkets int
	maxBets    int
}

func New(settler Settler, reconciler Reconciler, logger *logrus.Logger, interval time.Duration, maxMarkets, maxBets int) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		settler:    settler,
		reconciler: reconciler,
		logger:     logger,
		interval:   interval,
		maxMarkets: maxMarkets,
		maxBets:    maxBets,
	}
}

// Run blocks until ctx is cancelled. An immediate pass runs on startup so a
// restart picks up markets that went final while the process was down.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval).Info("settlement scheduler started")
	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement scheduler stopped")
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	start := time.Now()
	reports, err := s.settler.RunBatch(ctx, s.maxMarkets, s.maxBets)
	metrics.SettlementRuns.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.WithError(err).Error("settlement pass failed")
		return
	}
	settledBets := 0
	settledMarkets := 0
	for _, r := range reports {
		settledBets += r.BetsSettled
		if r.Settled {
			settledMarkets++
		}
	}
	if settledBets > 0 || settledMarkets > 0 {
		s.logger.WithFields(logrus.Fields{
			"markets":  settledMarkets,
			"bets":     settledBets,
			"duration": time.Since(start),
		}).Info("settlement pass complete")
	}

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		s.logger.WithError(err).Error("pool reconciliation failed")
	}
}
