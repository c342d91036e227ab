package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the sync
// pipeline and the trend recorder.
type Metrics struct {
	SyncRuns        *prometheus.CounterVec // label: outcome={success,failure}
	RecordsFetched  prometheus.Counter
	RecordsUpserted prometheus.Counter
	RecordsSkipped  prometheus.Counter
	SyncDuration    prometheus.Histogram
	LastSyncSuccess prometheus.Gauge

	TrendSnapshots      prometheus.Counter
	TrendSnapshotErrors prometheus.Counter

	EventPublishErrors prometheus.Counter
	SchedulerRunning   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "sync_runs_total",
			Help:      "Completed sync passes by outcome.",
		}, []string{"outcome"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "records_fetched_total",
			Help:      "Raw records pulled from the source dataset.",
		}),
		RecordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "records_upserted_total",
			Help:      "Canonical driver rows written or updated.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "records_skipped_total",
			Help:      "Raw records dropped for lacking a license number.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fhv_etl",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-upsert pass.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastSyncSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fhv_etl",
			Name:      "last_sync_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync pass.",
		}),
		TrendSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "trend_snapshots_total",
			Help:      "Daily trend snapshots written.",
		}),
		TrendSnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "trend_snapshot_errors_total",
			Help:      "Failed attempts to store a daily trend snapshot.",
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fhv_etl",
			Name:      "event_publish_errors_total",
			Help:      "Failed sync-completed event publishes.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fhv_etl",
			Name:      "scheduler_running",
			Help:      "1 when the sync scheduler loop is active, 0 when shut down.",
		}),
	}

	prometheus.MustRegister(
		m.SyncRuns,
		m.RecordsFetched,
		m.RecordsUpserted,
		m.RecordsSkipped,
		m.SyncDuration,
		m.LastSyncSuccess,
		m.TrendSnapshots,
		m.TrendSnapshotErrors,
		m.EventPublishErrors,
		m.SchedulerRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		SyncRuns:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "sync_runs_total"}, []string{"outcome"}),
		RecordsFetched:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "records_fetched_total"}),
		RecordsUpserted:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "records_upserted_total"}),
		RecordsSkipped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "records_skipped_total"}),
		SyncDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "fhv_etl", Name: "sync_duration_seconds"}),
		LastSyncSuccess:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "fhv_etl", Name: "last_sync_success_timestamp_seconds"}),
		TrendSnapshots:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "trend_snapshots_total"}),
		TrendSnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "trend_snapshot_errors_total"}),
		EventPublishErrors:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fhv_etl", Name: "event_publish_errors_total"}),
		SchedulerRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "fhv_etl", Name: "scheduler_running"}),
	}
}
