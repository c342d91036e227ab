package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS drivers (
    license_number       TEXT PRIMARY KEY,
    driver_name          TEXT,
    borough              TEXT,
    active               BOOLEAN NOT NULL DEFAULT TRUE,
    base_name            TEXT,
    base_number          TEXT,
    dataset_last_updated TIMESTAMPTZ,
    updated_at           TIMESTAMPTZ NOT NULL,
    raw                  JSONB
);

CREATE INDEX IF NOT EXISTS idx_drivers_borough ON drivers (borough);
CREATE INDEX IF NOT EXISTS idx_drivers_active  ON drivers (active);

CREATE TABLE IF NOT EXISTS driver_trends (
    date          DATE PRIMARY KEY,
    total_drivers INTEGER NOT NULL,
    by_borough    JSONB NOT NULL
);
`

const upsertDriver = `
INSERT INTO drivers (license_number, driver_name, borough, active, base_name, base_number, dataset_last_updated, updated_at, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (license_number) DO UPDATE SET
    driver_name          = EXCLUDED.driver_name,
    borough              = EXCLUDED.borough,
    active               = EXCLUDED.active,
    base_name            = EXCLUDED.base_name,
    base_number          = EXCLUDED.base_number,
    dataset_last_updated = EXCLUDED.dataset_last_updated,
    updated_at           = EXCLUDED.updated_at,
    raw                  = EXCLUDED.raw`

// Store provides Postgres-backed persistence for driver records and trend
// snapshots. It is safe for concurrent use; every batch write runs in its own
// transaction.
type Store struct {
	pool   *pgxpool.Pool
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewStore constructs a Store over an existing connection pool.
func NewStore(pool *pgxpool.Pool, clock clockwork.Clock, logger *slog.Logger) *Store {
	return &Store{pool: pool, clock: clock, logger: logger}
}

// Ping verifies the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the drivers and driver_trends tables if they do not
// exist. Safe to call on every sync pass.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertDrivers normalizes and writes a batch of raw records in a single
// transaction. Records without a license number are skipped, not errored.
// Any write failure rolls back the whole batch.
func (s *Store) UpsertDrivers(ctx context.Context, raws []domain.RawRecord) (domain.UpsertResult, error) {
	var result domain.UpsertResult

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	now := s.clock.Now().UTC()
	for _, raw := range raws {
		rec := domain.MapRecord(raw)
		if rec.License == nil {
			result.Skipped++
			continue
		}

		var rawJSON []byte
		rawJSON, err = json.Marshal(raw)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("marshal raw record %s: %w", *rec.License, err)
		}

		if _, err = tx.Exec(ctx, upsertDriver,
			*rec.License,
			rec.Name,
			rec.Borough,
			rec.Active,
			rec.BaseName,
			rec.BaseNumber,
			rec.DatasetLastUpdated,
			now,
			rawJSON,
		); err != nil {
			return domain.UpsertResult{}, fmt.Errorf("upsert driver %s: %w", *rec.License, err)
		}
		result.Upserted++
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("commit upsert batch: %w", err)
	}
	return result, nil
}

// GetDriver fetches one canonical driver row by license number. Returns
// (nil, nil) when no row exists.
func (s *Store) GetDriver(ctx context.Context, license string) (*domain.DriverRecord, error) {
	const query = `SELECT license_number, driver_name, borough, active, base_name, base_number, dataset_last_updated
        FROM drivers WHERE license_number = $1`

	row := s.pool.QueryRow(ctx, query, license)
	var rec domain.DriverRecord
	if err := row.Scan(&rec.License, &rec.Name, &rec.Borough, &rec.Active, &rec.BaseName, &rec.BaseNumber, &rec.DatasetLastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get driver %s: %w", license, err)
	}
	return &rec, nil
}

// CurrentStats aggregates all active drivers: total count, per-borough
// buckets in ascending borough order, and the most recent provenance
// timestamp (dataset_last_updated when present, else updated_at).
func (s *Store) CurrentStats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ByBorough: []domain.BoroughCount{}}

	const totalQuery = `SELECT COUNT(*) FROM drivers WHERE active = TRUE`
	if err := s.pool.QueryRow(ctx, totalQuery).Scan(&stats.TotalActiveDrivers); err != nil {
		return domain.Stats{}, fmt.Errorf("count active drivers: %w", err)
	}

	// Group on the stored borough and base number; borough fallback for rows
	// with no stored value happens in domain.ResolveBorough so the heuristic
	// lives in one place.
	const groupQuery = `
        SELECT COALESCE(borough, ''), COALESCE(base_number, ''), COUNT(*)
        FROM drivers WHERE active = TRUE
        GROUP BY 1, 2`

	rows, err := s.pool.Query(ctx, groupQuery)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("group drivers by borough: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var borough, baseNumber string
		var count int
		if err := rows.Scan(&borough, &baseNumber, &count); err != nil {
			return domain.Stats{}, fmt.Errorf("scan borough group: %w", err)
		}
		counts[domain.ResolveBorough(borough, baseNumber)] += count
	}
	if err := rows.Err(); err != nil {
		return domain.Stats{}, fmt.Errorf("group drivers by borough: %w", err)
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats.ByBorough = append(stats.ByBorough, domain.BoroughCount{Borough: name, Count: counts[name]})
	}

	const updatedQuery = `SELECT MAX(dataset_last_updated), MAX(updated_at) FROM drivers`
	var datasetUpdated, rowUpdated *time.Time
	if err := s.pool.QueryRow(ctx, updatedQuery).Scan(&datasetUpdated, &rowUpdated); err != nil {
		return domain.Stats{}, fmt.Errorf("last updated: %w", err)
	}
	if datasetUpdated != nil {
		stats.LastUpdated = datasetUpdated
	} else {
		stats.LastUpdated = rowUpdated
	}

	return stats, nil
}

// InsertDailySnapshot writes a trend snapshot unless one already exists for
// that date. Returns true when a row was written; false means the date was
// already recorded and the snapshot was discarded.
func (s *Store) InsertDailySnapshot(ctx context.Context, snap domain.TrendSnapshot) (bool, error) {
	byBorough, err := json.Marshal(snap.ByBorough)
	if err != nil {
		return false, fmt.Errorf("marshal borough counts: %w", err)
	}

	const stmt = `INSERT INTO driver_trends (date, total_drivers, by_borough)
        VALUES ($1, $2, $3) ON CONFLICT (date) DO NOTHING`

	tag, err := s.pool.Exec(ctx, stmt, snap.Date, snap.TotalDrivers, byBorough)
	if err != nil {
		return false, fmt.Errorf("insert trend snapshot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertSnapshot overwrites the snapshot for a date. This is the explicit
// backfill/repair path; the daily store path goes through InsertDailySnapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, snap domain.TrendSnapshot) error {
	byBorough, err := json.Marshal(snap.ByBorough)
	if err != nil {
		return fmt.Errorf("marshal borough counts: %w", err)
	}

	const stmt = `INSERT INTO driver_trends (date, total_drivers, by_borough)
        VALUES ($1, $2, $3)
        ON CONFLICT (date) DO UPDATE SET
            total_drivers = EXCLUDED.total_drivers,
            by_borough    = EXCLUDED.by_borough`

	if _, err := s.pool.Exec(ctx, stmt, snap.Date, snap.TotalDrivers, byBorough); err != nil {
		return fmt.Errorf("upsert trend snapshot: %w", err)
	}
	return nil
}

// RecentTrends returns the limit most recent snapshots dated on or after
// since, ascending by date. The cap holds in SQL, so a table with more
// qualifying rows than expected never overruns the caller's window.
func (s *Store) RecentTrends(ctx context.Context, since time.Time, limit int) ([]domain.TrendSnapshot, error) {
	const query = `SELECT date, total_drivers, by_borough FROM driver_trends
        WHERE date >= $1 ORDER BY date DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}
	defer rows.Close()

	var snaps []domain.TrendSnapshot
	for rows.Next() {
		var snap domain.TrendSnapshot
		var byBorough []byte
		if err := rows.Scan(&snap.Date, &snap.TotalDrivers, &byBorough); err != nil {
			return nil, fmt.Errorf("scan trend snapshot: %w", err)
		}
		if err := json.Unmarshal(byBorough, &snap.ByBorough); err != nil {
			return nil, fmt.Errorf("decode borough counts for %s: %w", snap.Date.Format("2006-01-02"), err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}

	// Newest-first in SQL keeps today inside the cap; callers read ascending.
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}
