package stats_test

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
	"github.com/couchcryptid/fhv-driver-etl/internal/observability"
	"github.com/couchcryptid/fhv-driver-etl/internal/stats"
)

// fakeStore is an in-memory stats.Store keyed by calendar date.
type fakeStore struct {
	stats     domain.Stats
	statsErr  error
	insertErr error
	upsertErr error
	trendsErr error
	snaps     map[string]domain.TrendSnapshot
	upserts   int
}

func newFakeStore(s domain.Stats) *fakeStore {
	return &fakeStore{stats: s, snaps: map[string]domain.TrendSnapshot{}}
}

func (f *fakeStore) CurrentStats(_ context.Context) (domain.Stats, error) {
	if f.statsErr != nil {
		return domain.Stats{}, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeStore) InsertDailySnapshot(_ context.Context, snap domain.TrendSnapshot) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	key := snap.Date.Format("2006-01-02")
	if _, exists := f.snaps[key]; exists {
		return false, nil
	}
	f.snaps[key] = snap
	return true, nil
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, snap domain.TrendSnapshot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.snaps[snap.Date.Format("2006-01-02")] = snap
	return nil
}

func (f *fakeStore) RecentTrends(_ context.Context, since time.Time, limit int) ([]domain.TrendSnapshot, error) {
	if f.trendsErr != nil {
		return nil, f.trendsErr
	}
	var out []domain.TrendSnapshot
	for _, snap := range f.snaps {
		if !snap.Date.Before(since) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var testStats = domain.Stats{
	TotalActiveDrivers: 120,
	ByBorough: []domain.BoroughCount{
		{Borough: domain.BoroughBronx, Count: 20},
		{Borough: domain.BoroughQueens, Count: 100},
	},
}

func newService(store stats.Store, now time.Time) *stats.Service {
	clock := clockwork.NewFakeClockAt(now)
	return stats.NewService(store, clock, slog.Default(), observability.NewMetricsForTesting())
}

func TestService_StoreDailySnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)
	store := newFakeStore(testStats)
	svc := newService(store, now)

	require.NoError(t, svc.StoreDailySnapshot(context.Background()))

	require.Len(t, store.snaps, 1)
	snap := store.snaps["2026-03-01"]
	assert.Equal(t, 120, snap.TotalDrivers)
	assert.Equal(t, map[string]int{domain.BoroughBronx: 20, domain.BoroughQueens: 100}, snap.ByBorough)
}

func TestService_StoreDailySnapshot_IdempotentPerDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testStats)
	svc := newService(store, now)

	require.NoError(t, svc.StoreDailySnapshot(context.Background()))

	// The aggregate moves during the day; the stored row does not.
	store.stats.TotalActiveDrivers = 999
	require.NoError(t, svc.StoreDailySnapshot(context.Background()))

	require.Len(t, store.snaps, 1)
	assert.Equal(t, 120, store.snaps["2026-03-01"].TotalDrivers)
}

func TestService_StoreDailySnapshot_StatsError(t *testing.T) {
	store := newFakeStore(testStats)
	store.statsErr = errors.New("connection reset")
	svc := newService(store, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	err := svc.StoreDailySnapshot(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.snaps)
}

func TestService_Trends_WindowBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store := newFakeStore(testStats)
	for i := 1; i <= 45; i++ {
		date := today.AddDate(0, 0, -i)
		store.snaps[date.Format("2006-01-02")] = domain.TrendSnapshot{
			Date:         date,
			TotalDrivers: 1000 - i,
			ByBorough:    map[string]int{domain.BoroughQueens: 500},
		}
	}

	svc := newService(store, now)
	snaps, err := svc.Trends(context.Background())
	require.NoError(t, err)

	// 29 seeded days inside the window plus the snapshot stored for today.
	assert.Len(t, snaps, 30)
	cutoff := today.AddDate(0, 0, -29)
	for i, snap := range snaps {
		assert.False(t, snap.Date.Before(cutoff), "snapshot %d older than window", i)
		if i > 0 {
			assert.True(t, snaps[i-1].Date.Before(snap.Date), "snapshots not ascending at %d", i)
		}
	}
	assert.True(t, snaps[len(snaps)-1].Date.Equal(today))
}

func TestService_Trends_EmptyStoreSynthesizesPoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(testStats)
	// Snapshot writes fail, so the read path sees an empty history.
	store.insertErr = errors.New("table locked")

	svc := newService(store, now)
	snaps, err := svc.Trends(context.Background())
	require.NoError(t, err)

	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Date.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 120, snaps[0].TotalDrivers)
	assert.Equal(t, map[string]int{domain.BoroughBronx: 20, domain.BoroughQueens: 100}, snaps[0].ByBorough)
}

func TestService_Trends_SnapshotFailureDoesNotFailRead(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(testStats)
	yesterday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.snaps["2026-03-01"] = domain.TrendSnapshot{Date: yesterday, TotalDrivers: 80}
	store.insertErr = errors.New("conflict")

	svc := newService(store, now)
	snaps, err := svc.Trends(context.Background())
	require.NoError(t, err)

	require.Len(t, snaps, 1)
	assert.Equal(t, 80, snaps[0].TotalDrivers)
}

func TestService_Backfill(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(testStats)
	// An existing row gets overwritten by the repair path.
	store.snaps["2026-03-09"] = domain.TrendSnapshot{
		Date:         time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		TotalDrivers: 1,
	}

	svc := newService(store, now)
	require.NoError(t, svc.Backfill(context.Background(), 7))

	assert.Equal(t, 7, store.upserts)
	assert.Len(t, store.snaps, 7)
	assert.Equal(t, 120, store.snaps["2026-03-09"].TotalDrivers)
	assert.Equal(t, 120, store.snaps["2026-03-04"].TotalDrivers)
}

func TestService_Backfill_RejectsNonPositiveDays(t *testing.T) {
	svc := newService(newFakeStore(testStats), time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	require.Error(t, svc.Backfill(context.Background(), 0))
}
