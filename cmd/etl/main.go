package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/fhv-driver-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/fhv-driver-etl/internal/adapter/kafka"
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

	// Sync-event publishing is feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED.
	var events pipeline.EventPublisher
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		events = publisher
		logger.Info("sync event publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("sync event publishing disabled")
	}

	syncer := pipeline.NewSyncer(fetcher, store, events, clock, logger, metrics, cfg.SyncLimit)
	trends := stats.NewService(store, clock, logger, metrics)
	scheduler := pipeline.NewScheduler(syncer, trends, clock, cfg.SyncInterval, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, syncer, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run one pass immediately so readiness does not wait a full interval,
	// then hand off to the scheduler.
	go func() {
		if err := syncer.RunSync(ctx); err != nil {
			logger.Error("initial sync failed", "error", err)
		} else if err := trends.StoreDailySnapshot(ctx); err != nil {
			logger.Warn("initial trend snapshot failed", "error", err)
		}

		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
