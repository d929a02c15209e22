// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package metrics holds the Prometheus collectors for Lmsync:
// remote fetches, resource sync outcomes, harmonizer row counts,
// run bookkeeping, circuit breakers, admin API requests and DuckDB queries.
package metrics

import (
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetch Metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_fetch_requests_total",
			Help: "Total number of remote API page requests",
		},
		[]string{"source", "status"}, // status: "ok", "http_4xx", "http_5xx", "rate_limited", "network", "circuit_open"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lmsync_fetch_duration_seconds",
			Help:    "Duration of remote API page requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_fetch_retries_total",
			Help: "Total number of retried remote calls",
		},
		[]string{"source"},
	)

	// Sync Metrics
	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_sync_records_total",
			Help: "Records written by the sync writer, by outcome",
		},
		[]string{"resource", "outcome"}, // outcome: "inserted", "updated", "unchanged", "soft_deleted"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lmsync_sync_duration_seconds",
			Help:    "Duration of a single resource sync in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"resource"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_sync_errors_total",
			Help: "Total number of failed resource syncs",
		},
		[]string{"resource"},
	)

	// Harmonizer Metrics
	HarmonizeRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_harmonize_rows_total",
			Help: "Rows changed by harmonizer steps",
		},
		[]string{"step", "action"}, // action: "linked", "unlinked", "inserted", "updated", "deleted"
	)

	HarmonizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lmsync_harmonize_duration_seconds",
			Help:    "Duration of a harmonization pass in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	// Run Metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lmsync_run_duration_seconds",
			Help:    "Duration of complete sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_runs_total",
			Help: "Total number of sync runs by result",
		},
		[]string{"result"}, // "success", "partial", "failed"
	)

	RunLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lmsync_run_last_success_timestamp",
			Help: "Unix timestamp of the last run that completed without errors",
		},
	)

	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lmsync_run_in_progress",
			Help: "1 while a sync run is executing",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lmsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_circuit_breaker_requests_total",
			Help: "Requests passing through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Admin API Metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lmsync_api_request_duration_seconds",
			Help:    "Duration of admin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lmsync_db_query_duration_seconds",
			Help:    "Duration of DuckDB statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsync_db_query_errors_total",
			Help: "Total number of failed DuckDB statements",
		},
		[]string{"operation"},
	)
)

// RecordAPIRequest records an admin API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBQuery records a database statement metric
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordFetch records one remote page request. status is derived from the
// HTTP status code, or from err when no response was received.
func RecordFetch(source string, statusCode int, duration time.Duration, err error) {
	FetchRequests.WithLabelValues(source, fetchStatus(statusCode, err)).Inc()
	FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func fetchStatus(statusCode int, err error) string {
	switch {
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "http_5xx"
	case statusCode >= 400:
		return "http_4xx"
	case statusCode >= 200 && err == nil:
		return "ok"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}
	return "error"
}

// RecordResourceSync records the outcome of one resource sync.
func RecordResourceSync(resource string, duration time.Duration, inserted, updated, unchanged, softDeleted int, err error) {
	SyncDuration.WithLabelValues(resource).Observe(duration.Seconds())
	if err != nil {
		SyncErrors.WithLabelValues(resource).Inc()
		return
	}
	SyncRecords.WithLabelValues(resource, "inserted").Add(float64(inserted))
	SyncRecords.WithLabelValues(resource, "updated").Add(float64(updated))
	SyncRecords.WithLabelValues(resource, "unchanged").Add(float64(unchanged))
	SyncRecords.WithLabelValues(resource, "soft_deleted").Add(float64(softDeleted))
}

// RecordHarmonizeStep adds the rows a harmonizer step changed.
func RecordHarmonizeStep(step, action string, rows int64) {
	if rows > 0 {
		HarmonizeRows.WithLabelValues(step, action).Add(float64(rows))
	}
}

// RecordRun records a finished run. result is "success", "partial" or "failed".
func RecordRun(duration time.Duration, result string) {
	RunDuration.Observe(duration.Seconds())
	RunsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		RunLastSuccess.Set(float64(time.Now().Unix()))
	}
}
