// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEConnectionsActive tracks relayed SSE streams currently open.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active relayed SSE streams",
		},
	)

	// RelayedBytesTotal tracks bytes forwarded from upstream streams.
	RelayedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_relayed_bytes_total",
			Help: "Bytes relayed from upstream chat streams",
		},
	)

	// RelayOutcomes tracks how relayed streams ended.
	RelayOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_relay_outcomes_total",
			Help: "Relayed stream outcomes",
		},
		[]string{"outcome"},
	)

	// UpstreamResponses tracks upstream responses by endpoint and status.
	UpstreamResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_responses_total",
			Help: "Upstream responses by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	// FeedSnapshotsTotal tracks live feed snapshots applied.
	FeedSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_feed_snapshots_total",
			Help: "Live feed snapshots applied to conversation stores",
		},
	)

	// FeedSnapshotSize tracks the number of records per snapshot.
	FeedSnapshotSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "live_feed_snapshot_records",
			Help:    "Records per live feed snapshot",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordUpstream records an upstream response status for an endpoint.
func RecordUpstream(endpoint string, status int) {
	UpstreamResponses.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordRelayOutcome records how a relayed stream ended.
func RecordRelayOutcome(outcome string, bytes int64) {
	RelayOutcomes.WithLabelValues(outcome).Inc()
	RelayedBytesTotal.Add(float64(bytes))
}

// RecordFeedSnapshot records a live feed snapshot.
func RecordFeedSnapshot(records int) {
	FeedSnapshotsTotal.Inc()
	FeedSnapshotSize.Observe(float64(records))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
