// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package metrics registers the Prometheus instrumentation for the update
// pipeline, the store, the WebSocket hub, the janitor, and the HTTP API.
// All collectors register through promauto on the default registry and are
// exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Update Pipeline Metrics
	UpdatesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "location_updates_accepted_total",
			Help: "Total number of location updates accepted by the pipeline",
		},
	)

	UpdatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_updates_rejected_total",
			Help: "Total number of location updates rejected by the pipeline",
		},
		[]string{"reason"}, // "invalid_input", "out_of_range", "store_error"
	)

	UpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "location_update_duration_seconds",
			Help:    "Duration of the full update pipeline (validate, persist, publish)",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of store operation errors",
		},
		[]string{"operation"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_subscriptions",
			Help: "Current number of active topic subscriptions",
		},
	)

	WSEventsBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_events_broadcast_total",
			Help: "Total number of location events fanned out to clients",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of messages dropped because a client send buffer was full",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound WebSocket messages by type",
		},
		[]string{"type"}, // "subscribe", "unsubscribe", "locationUpdate", "ping", "invalid"
	)

	// Janitor Metrics
	JanitorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_runs_total",
			Help: "Total number of cleanup sweeps by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	JanitorDeletedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_deleted_records_total",
			Help: "Total number of stale records removed by cleanup sweeps",
		},
		[]string{"kind"}, // "position", "trail"
	)

	JanitorLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "janitor_last_success_timestamp",
			Help: "Unix timestamp of the last successful cleanup sweep",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordUpdate records a pipeline submission. A non-empty rejectReason marks
// the update rejected.
func RecordUpdate(duration time.Duration, rejectReason string) {
	UpdateDuration.Observe(duration.Seconds())
	if rejectReason == "" {
		UpdatesAccepted.Inc()
		return
	}
	UpdatesRejected.WithLabelValues(rejectReason).Inc()
}

// RecordStoreOperation records a store operation's duration and failure.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordJanitorRun records a cleanup sweep and its deletions.
func RecordJanitorRun(deletedPositions, deletedTrails int, err error) {
	if err != nil {
		JanitorRuns.WithLabelValues("error").Inc()
		return
	}
	JanitorRuns.WithLabelValues("success").Inc()
	JanitorLastSuccess.Set(float64(time.Now().Unix()))
	if deletedPositions > 0 {
		JanitorDeletedRecords.WithLabelValues("position").Add(float64(deletedPositions))
	}
	if deletedTrails > 0 {
		JanitorDeletedRecords.WithLabelValues("trail").Add(float64(deletedTrails))
	}
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
