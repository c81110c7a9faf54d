// Package metrics holds ingestord's Prometheus collectors. Exposing them
// over HTTP is a handler-layer concern out of scope for this core (see
// DESIGN.md); callers that do run an HTTP server register prometheus's
// default registry and serve it themselves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WAL (component E)
	IngestWALUsedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_wal_used_bytes",
			Help: "Current bytes held in open WAL files, by stream",
		},
		[]string{"org", "stream_type", "stream"},
	)

	IngestWALWriteBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_wal_write_bytes_total",
			Help: "Total bytes appended to WAL files, by stream",
		},
		[]string{"org", "stream_type", "stream"},
	)

	WALFilesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_wal_files_open",
			Help: "Number of WAL files currently held open by the manager",
		},
	)

	WALRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_wal_rotations_total",
			Help: "Total number of WAL files rotated to object storage",
		},
	)

	// Byte cache (component C)
	FileCacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_file_cache_bytes",
			Help: "Current bytes held in the file-data byte cache",
		},
	)

	FileCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_file_cache_hits_total",
			Help: "Total file-data cache hits",
		},
	)

	FileCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_file_cache_misses_total",
			Help: "Total file-data cache misses",
		},
	)

	FileCacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_file_cache_evictions_total",
			Help: "Total file-data cache evictions, by stream",
		},
		[]string{"org", "stream_type", "stream"},
	)

	// File-list index (component D)
	FileListFilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_file_list_files_total",
			Help: "Total files tracked by the file-list index",
		},
	)

	// Schema evolver (component F)
	SchemaVersionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_schema_versions_total",
			Help: "Number of schema versions recorded, by stream",
		},
		[]string{"org", "stream_type", "stream"},
	)

	SchemaMergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_schema_merges_total",
			Help: "Total schema merge operations, by outcome",
		},
		[]string{"outcome"},
	)

	SchemaMergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_schema_merge_duration_seconds",
			Help:    "Time taken to merge a schema delta, including lock wait",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ingestion core (component H)
	RecordsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_total",
			Help: "Total records processed, by stream and status",
		},
		[]string{"org", "stream_type", "stream", "status"},
	)

	RecordErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_record_errors_total",
			Help: "Total record-level errors, by error kind",
		},
		[]string{"kind"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_request_duration_seconds",
			Help:    "Time taken to process one ingest() call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream_type"},
	)

	// Distributed lock (component G)
	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a named lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	LockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_lock_timeouts_total",
			Help: "Total lock acquisitions that timed out",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IngestWALUsedBytes,
		IngestWALWriteBytesTotal,
		WALFilesOpen,
		WALRotationsTotal,
		FileCacheBytes,
		FileCacheHitsTotal,
		FileCacheMissesTotal,
		FileCacheEvictionsTotal,
		FileListFilesTotal,
		SchemaVersionsTotal,
		SchemaMergesTotal,
		SchemaMergeDuration,
		RecordsIngestedTotal,
		RecordErrorsTotal,
		IngestDuration,
		LockWaitDuration,
		LockTimeoutsTotal,
	)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
