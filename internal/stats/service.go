// Package stats serves aggregate driver counts and the daily trend history.
// It reads the tables the sync pipeline writes; the two paths share nothing
// but the store, so aggregation is never blocked by an in-flight sync.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
	"github.com/couchcryptid/fhv-driver-etl/internal/observability"
)

// trendWindowDays bounds the history returned by Trends: today plus the 29
// preceding days, at most 30 rows.
const trendWindowDays = 30

// Store is the persistence surface the service needs.
type Store interface {
	CurrentStats(ctx context.Context) (domain.Stats, error)
	InsertDailySnapshot(ctx context.Context, snap domain.TrendSnapshot) (bool, error)
	UpsertSnapshot(ctx context.Context, snap domain.TrendSnapshot) error
	RecentTrends(ctx context.Context, since time.Time, limit int) ([]domain.TrendSnapshot, error)
}

// Service computes current aggregates and records daily trend snapshots.
type Service struct {
	store   Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs a Service.
func NewService(store Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, clock: clock, logger: logger, metrics: metrics}
}

// CurrentStats returns the live aggregate over all active drivers.
func (s *Service) CurrentStats(ctx context.Context) (domain.Stats, error) {
	return s.store.CurrentStats(ctx)
}

// StoreDailySnapshot records today's aggregate as a trend snapshot. The write
// is insert-if-absent: the first snapshot for a date wins and later calls on
// the same day change nothing.
func (s *Service) StoreDailySnapshot(ctx context.Context) error {
	stats, err := s.store.CurrentStats(ctx)
	if err != nil {
		s.metrics.TrendSnapshotErrors.Inc()
		return fmt.Errorf("compute snapshot stats: %w", err)
	}

	snap := snapshotFromStats(s.today(), stats)
	written, err := s.store.InsertDailySnapshot(ctx, snap)
	if err != nil {
		s.metrics.TrendSnapshotErrors.Inc()
		return fmt.Errorf("store daily snapshot: %w", err)
	}
	if written {
		s.metrics.TrendSnapshots.Inc()
		s.logger.Info("daily trend snapshot stored",
			"date", snap.Date.Format("2006-01-02"),
			"total_drivers", snap.TotalDrivers,
		)
	}
	return nil
}

// Trends returns the snapshot history for the last 30 calendar days,
// ascending by date. It first makes a best-effort attempt to record today's
// snapshot so a freshly deployed service converges without waiting for the
// scheduler; a failure there degrades to a log line, never an error for the
// read. When no snapshot exists at all, a single point synthesized from
// current stats is returned so callers always get at least one data point.
func (s *Service) Trends(ctx context.Context) ([]domain.TrendSnapshot, error) {
	if err := s.StoreDailySnapshot(ctx); err != nil {
		s.logger.Warn("snapshot attempt during trends read failed", "error", err)
	}

	since := s.today().AddDate(0, 0, -(trendWindowDays - 1))
	snaps, err := s.store.RecentTrends(ctx, since, trendWindowDays)
	if err != nil {
		return nil, fmt.Errorf("read trends: %w", err)
	}

	if len(snaps) == 0 {
		stats, err := s.store.CurrentStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("synthesize trend point: %w", err)
		}
		snaps = []domain.TrendSnapshot{snapshotFromStats(s.today(), stats)}
	}

	return snaps, nil
}

// Backfill overwrites the last `days` snapshots (today inclusive) with the
// current aggregate. This is the explicit repair path; unlike the daily store
// it does replace existing rows.
func (s *Service) Backfill(ctx context.Context, days int) error {
	if days < 1 {
		return fmt.Errorf("backfill days must be positive, got %d", days)
	}

	stats, err := s.store.CurrentStats(ctx)
	if err != nil {
		return fmt.Errorf("compute backfill stats: %w", err)
	}

	today := s.today()
	for i := days - 1; i >= 0; i-- {
		snap := snapshotFromStats(today.AddDate(0, 0, -i), stats)
		if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("backfill %s: %w", snap.Date.Format("2006-01-02"), err)
		}
	}

	s.logger.Info("trend backfill completed", "days", days, "total_drivers", stats.TotalActiveDrivers)
	return nil
}

// today is the clock's current UTC calendar date at midnight.
func (s *Service) today() time.Time {
	now := s.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func snapshotFromStats(date time.Time, stats domain.Stats) domain.TrendSnapshot {
	byBorough := make(map[string]int, len(stats.ByBorough))
	for _, bc := range stats.ByBorough {
		byBorough[bc.Borough] = bc.Count
	}
	return domain.TrendSnapshot{
		Date:         date,
		TotalDrivers: stats.TotalActiveDrivers,
		ByBorough:    byBorough,
	}
}
