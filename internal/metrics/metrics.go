// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package metrics registers Vigil's Prometheus collectors with the default
// registry. Collectors are package globals created through promauto; callers
// use the Record* helpers so label values stay consistent.
//
// Exposed at /metrics:
//
//	curl http://localhost:3870/metrics
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hub Metrics
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_hub_connections",
			Help: "Current number of live websocket connections",
		},
	)

	HubHQObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_hub_hq_observers",
			Help: "Current number of connections bound as HQ observers",
		},
	)

	HubOnlinePatrols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_hub_online_patrols",
			Help: "Current number of routable patrol ids",
		},
	)

	HubFramesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_hub_frames_in_total",
			Help: "Inbound frames by event name",
		},
		[]string{"event"},
	)

	HubFramesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_hub_frames_out_total",
			Help: "Outbound frames enqueued by event name",
		},
		[]string{"event"},
	)

	HubFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_hub_frames_dropped_total",
			Help: "Frames dropped by the hub",
		},
		[]string{"reason"}, // "send_buffer_full", "decode", "unknown_event"
	)

	HubRoutingMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_hub_routing_misses_total",
			Help: "Frames addressed to a patrol that is not routable",
		},
		[]string{"event"},
	)

	HubSOSAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_hub_sos_alerts_total",
			Help: "SOS alerts raised through the hub",
		},
	)

	// Outbox Metrics
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_outbox_published_total",
			Help: "Domain events published to the event bus",
		},
		[]string{"topic"},
	)

	OutboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_outbox_dropped_total",
			Help: "Domain events dropped because the outbox was full or closed",
		},
		[]string{"topic"},
	)

	OutboxFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_outbox_failed_total",
			Help: "Domain events that failed to publish",
		},
		[]string{"topic"},
	)

	OutboxQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_outbox_queue_depth",
			Help: "Current number of events waiting in the outbox",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Recorder Metrics
	RecorderProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_recorder_processed_total",
			Help: "Domain events recorded by the recorder",
		},
		[]string{"topic"},
	)

	RecorderRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_recorder_rejected_total",
			Help: "Domain events or points rejected by the recorder",
		},
		[]string{"topic", "reason"}, // reason: "parse", "validation", "store"
	)

	RecorderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_recorder_duration_seconds",
			Help:    "Time spent recording one domain event",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_http_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordFrameIn counts one inbound frame.
func RecordFrameIn(event string) {
	HubFramesIn.WithLabelValues(event).Inc()
}

// RecordFrameOut counts one frame enqueued to a connection.
func RecordFrameOut(event string) {
	HubFramesOut.WithLabelValues(event).Inc()
}

// RecordFrameDropped counts a dropped frame.
func RecordFrameDropped(reason string) {
	HubFramesDropped.WithLabelValues(reason).Inc()
}

// RecordRoutingMiss counts a frame addressed to an unbound patrol.
func RecordRoutingMiss(event string) {
	HubRoutingMisses.WithLabelValues(event).Inc()
}

// SetHubGauges updates the registry gauges in one call.
func SetHubGauges(connections, hqObservers, onlinePatrols int) {
	HubConnections.Set(float64(connections))
	HubHQObservers.Set(float64(hqObservers))
	HubOnlinePatrols.Set(float64(onlinePatrols))
}

// RecordOutbox records the outcome of one outbox event. result is one of
// "published", "dropped" or "failed".
func RecordOutbox(topic, result string) {
	switch result {
	case "published":
		OutboxPublished.WithLabelValues(topic).Inc()
	case "dropped":
		OutboxDropped.WithLabelValues(topic).Inc()
	default:
		OutboxFailed.WithLabelValues(topic).Inc()
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(name, from, to string, toValue float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
}

// RecordRecorderEvent records one recorder outcome. An empty reason means
// the event was stored.
func RecordRecorderEvent(topic, reason string, duration time.Duration) {
	RecorderDuration.Observe(duration.Seconds())
	if reason == "" {
		RecorderProcessed.WithLabelValues(topic).Inc()
		return
	}
	RecorderRejected.WithLabelValues(topic, reason).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
