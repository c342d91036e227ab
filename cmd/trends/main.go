// Command trends records today's trend snapshot, or with -backfill N
// overwrites the last N days of snapshots with the current aggregate.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fhv-driver-etl/internal/adapter/postgres"
	"github.com/couchcryptid/fhv-driver-etl/internal/config"
	"github.com/couchcryptid/fhv-driver-etl/internal/observability"
	"github.com/couchcryptid/fhv-driver-etl/internal/stats"
)

func main() {
	backfill := flag.Int("backfill", 0, "overwrite the last N days of snapshots instead of recording today's")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, clock, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	svc := stats.NewService(store, clock, logger, metrics)

	if *backfill > 0 {
		if err := svc.Backfill(ctx, *backfill); err != nil {
			logger.Error("backfill failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := svc.StoreDailySnapshot(ctx); err != nil {
		logger.Error("trend snapshot failed", "error", err)
		os.Exit(1)
	}
}
