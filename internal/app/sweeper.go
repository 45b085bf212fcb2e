package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"quizhub-service/internal/metrics"
)

// DefaultSweepSchedule runs the expiry sweep once a minute.
const DefaultSweepSchedule = "@every 60s"

// Expirer ends overdue quizzes.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Sweeper periodically force-ends quizzes whose end time has passed.
type Sweeper struct {
	cron    *cron.Cron
	target  Expirer
	log     *zap.Logger
	timeout time.Duration
}

// NewSweeper schedules target on a cron schedule. Overlapping runs are skipped.
func NewSweeper(target Expirer, schedule string, log *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		log:     log,
		timeout: 50 * time.Second,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep and returns how many quizzes it ended.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metrics.SweepRuns.Inc()
	ended, err := s.target.ExpireOverdue(ctx)
	if err != nil {
		s.log.Error("expiry sweep", zap.Int("ended", ended), zap.Error(err))
		return ended
	}
	if ended > 0 {
		s.log.Info("expiry sweep", zap.Int("ended", ended))
	}
	return ended
}
