//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
)

func setupStore(t *testing.T, clock clockwork.Clock) *Store {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fhv"),
		postgrescontainer.WithUsername("fhv"),
		postgrescontainer.WithPassword("fhv"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	store := NewStore(pool, clock, slog.Default())
	require.NoError(t, store.EnsureSchema(ctx))
	// Schema creation is idempotent.
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestStore_UpsertDrivers(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := setupStore(t, clock)

	batch := []domain.RawRecord{
		{"license_number": "ABC123", "driver_name": "Jane Doe", "borough": "Queens", "active": "true"},
		{"license_number": "DEF456", "base_number": "B0123"},
		{"driver_name": "No License"},
	}

	result, err := store.UpsertDrivers(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 1, result.Skipped)

	rec, err := store.GetDriver(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jane Doe", *rec.Name)
	assert.Equal(t, domain.BoroughQueens, *rec.Borough)
	assert.True(t, rec.Active)

	// Borough inferred from the base number prefix.
	rec, err = store.GetDriver(ctx, "DEF456")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.BoroughBronx, *rec.Borough)

	missing, err := store.GetDriver(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_UpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := setupStore(t, clock)

	batch := []domain.RawRecord{
		{"license_number": "ABC123", "driver_name": "Jane Doe", "borough": "Queens"},
		{"license_number": "DEF456", "driver_name": "John Roe", "borough": "bx"},
	}

	_, err := store.UpsertDrivers(ctx, batch)
	require.NoError(t, err)
	statsBefore, err := store.CurrentStats(ctx)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	result, err := store.UpsertDrivers(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)

	statsAfter, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, statsBefore.TotalActiveDrivers, statsAfter.TotalActiveDrivers)
	assert.Equal(t, statsBefore.ByBorough, statsAfter.ByBorough)

	rec, err := store.GetDriver(ctx, "DEF456")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "John Roe", *rec.Name)
	assert.Equal(t, domain.BoroughBronx, *rec.Borough)
}

func TestStore_CurrentStats(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := setupStore(t, clock)

	batch := []domain.RawRecord{
		{"license_number": "A1", "borough": "Queens"},
		{"license_number": "A2", "borough": "Queens"},
		{"license_number": "A3", "borough": "Bronx"},
		// No direct borough; resolved from the base number on the stats path.
		{"license_number": "A4", "base_name": "UPTOWN DISPATCH", "affiliated_base_number": "M5511"},
		// Nothing resolvable at all.
		{"license_number": "A5", "base_name": "SUNRISE DISPATCH", "affiliated_base_number": "X9999"},
	}

	_, err := store.UpsertDrivers(ctx, batch)
	require.NoError(t, err)

	stats, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalActiveDrivers)
	assert.Equal(t, []domain.BoroughCount{
		{Borough: domain.BoroughBronx, Count: 1},
		{Borough: domain.BoroughManhattan, Count: 1},
		{Borough: domain.BoroughQueens, Count: 2},
		{Borough: domain.BoroughUnknown, Count: 1},
	}, stats.ByBorough)
	require.NotNil(t, stats.LastUpdated)
}

func TestStore_TrendSnapshots(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := setupStore(t, clock)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := domain.TrendSnapshot{
		Date:         day,
		TotalDrivers: 100,
		ByBorough:    map[string]int{domain.BoroughQueens: 60, domain.BoroughBronx: 40},
	}

	written, err := store.InsertDailySnapshot(ctx, snap)
	require.NoError(t, err)
	assert.True(t, written)

	// Second write for the same date is a no-op; the first writer wins.
	snap.TotalDrivers = 999
	written, err = store.InsertDailySnapshot(ctx, snap)
	require.NoError(t, err)
	assert.False(t, written)

	snaps, err := store.RecentTrends(ctx, day.AddDate(0, 0, -30), 30)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 100, snaps[0].TotalDrivers)
	assert.Equal(t, map[string]int{domain.BoroughQueens: 60, domain.BoroughBronx: 40}, snaps[0].ByBorough)

	// The backfill path does overwrite.
	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	snaps, err = store.RecentTrends(ctx, day.AddDate(0, 0, -30), 30)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 999, snaps[0].TotalDrivers)
}

func TestStore_RecentTrendsWindow(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := setupStore(t, clock)

	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		snap := domain.TrendSnapshot{
			Date:         today.AddDate(0, 0, -i),
			TotalDrivers: 1000 - i,
			ByBorough:    map[string]int{domain.BoroughQueens: 500},
		}
		require.NoError(t, store.UpsertSnapshot(ctx, snap))
	}

	since := today.AddDate(0, 0, -30)
	snaps, err := store.RecentTrends(ctx, since, 31)
	require.NoError(t, err)
	assert.Len(t, snaps, 31)
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i-1].Date.Before(snaps[i].Date))
	}
	assert.False(t, snaps[0].Date.Before(since))

	// With more qualifying dates than the cap, the newest rows win and the
	// result still reads ascending.
	capped, err := store.RecentTrends(ctx, since, 10)
	require.NoError(t, err)
	require.Len(t, capped, 10)
	assert.True(t, capped[len(capped)-1].Date.Equal(today))
	assert.True(t, capped[0].Date.Equal(today.AddDate(0, 0, -9)))
}
