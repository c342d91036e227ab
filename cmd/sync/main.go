// Command sync runs a single ingestion pass and records the daily trend
// snapshot, then exits. Intended for cron-style operation and manual repairs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fhv-driver-etl/internal/adapter/postgres"
	"github.com/couchcryptid/fhv-driver-etl/internal/adapter/socrata"
	"github.com/couchcryptid/fhv-driver-etl/internal/config"
	"github.com/couchcryptid/fhv-driver-etl/internal/observability"
	"github.com/couchcryptid/fhv-driver-etl/internal/pipeline"
	"github.com/couchcryptid/fhv-driver-etl/internal/stats"
)

func main() {
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
	fetcher := socrata.NewClient(cfg.SocrataBaseURL, cfg.SocrataAppToken, cfg.FetchTimeout, logger)
	syncer := pipeline.NewSyncer(fetcher, store, nil, clock, logger, metrics, cfg.SyncLimit)
	trends := stats.NewService(store, clock, logger, metrics)

	if err := syncer.RunSync(ctx); err != nil {
		logger.Error("sync failed", "error", err)
		os.Exit(1)
	}
	if err := trends.StoreDailySnapshot(ctx); err != nil {
		logger.Error("trend snapshot failed", "error", err)
		os.Exit(1)
	}

	logger.Info("sync complete")
}
