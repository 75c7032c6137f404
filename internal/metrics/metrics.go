// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package metrics holds the Prometheus instrumentation for the sink pipeline:
// queue pressure, batch throughput, retention sweeps and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sink metrics

	SinkEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logpond_sink_enqueued_total",
			Help: "Total number of log entries accepted into the write buffer",
		},
	)

	SinkDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logpond_sink_dropped_total",
			Help: "Total number of log entries discarded because the write buffer was full",
		},
	)

	SinkQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logpond_sink_queue_depth",
			Help: "Current number of entries waiting in the write buffer",
		},
	)

	SinkBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logpond_sink_batch_size",
			Help:    "Number of entries per committed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	SinkBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logpond_sink_batch_duration_seconds",
			Help:    "Duration of batch insert transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkBatchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logpond_sink_batch_retries_total",
			Help: "Total number of batch insert retry attempts",
		},
	)

	SinkBatchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logpond_sink_batch_failures_total",
			Help: "Total number of batches abandoned after exhausting retries",
		},
	)

	SinkEntriesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logpond_sink_entries_written_total",
			Help: "Total number of log entries committed to storage",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logpond_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpond_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Housekeeping metrics

	HousekeepingDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpond_housekeeping_deleted_rows_total",
			Help: "Total number of rows deleted by retention",
		},
		[]string{"reason"}, // "age", "count", "explicit", "all"
	)

	HousekeepingRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logpond_housekeeping_run_duration_seconds",
			Help:    "Duration of retention sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HousekeepingLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logpond_housekeeping_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed retention sweep",
		},
	)

	// Storage metrics

	StorageFileSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logpond_storage_file_size_bytes",
			Help: "Size of the storage file in bytes (0 for in-memory stores)",
		},
	)

	StorageRowCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logpond_storage_row_count",
			Help: "Number of rows in the log entries table at last census",
		},
	)

	// HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logpond_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpond_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordBatchCommit records a successful batch insert.
func RecordBatchCommit(size int, duration time.Duration) {
	SinkBatchSize.Observe(float64(size))
	SinkBatchDuration.Observe(duration.Seconds())
	SinkEntriesWrittenTotal.Add(float64(size))
}

// RecordHousekeepingRun records a completed retention sweep.
func RecordHousekeepingRun(duration time.Duration) {
	HousekeepingRunDuration.Observe(duration.Seconds())
	HousekeepingLastRun.SetToCurrentTime()
}

// RecordStorageCensus records the storage gauges measured by a stats query or
// retention sweep.
func RecordStorageCensus(rowCount, fileSizeBytes int64) {
	StorageRowCount.Set(float64(rowCount))
	StorageFileSizeBytes.Set(float64(fileSizeBytes))
}
