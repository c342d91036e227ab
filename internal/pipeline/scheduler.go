package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fhv-driver-etl/internal/observability"
)

// SyncRunner executes one ingestion pass.
type SyncRunner interface {
	RunSync(ctx context.Context) error
}

// SnapshotStorer records the daily trend snapshot.
type SnapshotStorer interface {
	StoreDailySnapshot(ctx context.Context) error
}

// Scheduler invokes the syncer on a fixed cadence. A failed tick is logged
// and swallowed; the next tick fires regardless.
type Scheduler struct {
	syncer   SyncRunner
	trends   SnapshotStorer
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewScheduler creates a Scheduler. trends may be nil to skip snapshotting
// after sync passes.
func NewScheduler(syncer SyncRunner, trends SnapshotStorer, clock clockwork.Clock, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		trends:   trends,
		clock:    clock,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run ticks until the context is cancelled. The first sync happens one full
// interval after start; callers wanting an immediate pass run it themselves
// before starting the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.logger.Info("scheduled sync starting")
	if err := s.syncer.RunSync(ctx); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}

	if s.trends == nil {
		return
	}
	if err := s.trends.StoreDailySnapshot(ctx); err != nil {
		s.logger.Warn("daily trend snapshot failed", "error", err)
	}
}
