package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxSyncLimit caps a single bulk pull. The FHV dataset fits in one page
// today; anything beyond this requires real pagination, which the sync path
// does not implement.
const maxSyncLimit = 50000

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	SocrataBaseURL  string
	SocrataAppToken string

	SyncInterval time.Duration
	SyncLimit    int
	FetchTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional sync-event publishing. Enabled when brokers are configured,
	// unless KAFKA_ENABLED overrides.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	syncInterval, err := parseDuration("SYNC_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	syncLimit, err := parseSyncLimit()
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SocrataBaseURL:  envOrDefault("SOCRATA_BASE_URL", "https://data.cityofnewyork.us/resource/xjfq-wh2d.json"),
		SocrataAppToken: os.Getenv("SOCRATA_APP_TOKEN"),
		SyncInterval:    syncInterval,
		SyncLimit:       syncLimit,
		FetchTimeout:    fetchTimeout,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaBrokers:    kafkaBrokers,
		KafkaTopic:      envOrDefault("KAFKA_TOPIC", "driver-sync-events"),
		KafkaEnabled:    kafkaEnabled,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.SocrataBaseURL == "" {
		return nil, errors.New("SOCRATA_BASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseSyncLimit() (int, error) {
	s := os.Getenv("SYNC_LIMIT")
	if s == "" {
		return maxSyncLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxSyncLimit {
		return 0, fmt.Errorf("invalid SYNC_LIMIT: must be between 1 and %d", maxSyncLimit)
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
