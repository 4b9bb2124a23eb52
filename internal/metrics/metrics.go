// Package metrics holds the ambient Prometheus counters/gauges this harness
// exposes alongside (not instead of) the in-process LiveMetrics sliding
// windows (internal/metricscollector already mirrors request counts and
// TTFT/e2e-latency histograms there). This package covers the observability
// surface that belongs to the process as a whole rather than to one
// component: event-bus backpressure drops and connected-WebSocket-client
// count.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDroppedTotal counts events a slow WebSocket subscriber's bounded
	// queue evicted (drop-oldest). Never surfaced as a StreamEvent itself —
	// only logged and counted here.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadbench_events_dropped_total",
			Help: "Total number of events dropped from a subscriber's queue due to backpressure",
		},
		[]string{"event_type"},
	)

	// ConnectedClients tracks the current number of subscribed WebSocket
	// dashboard clients (eventbus.Bus.SubscriberCount).
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loadbench_connected_clients",
			Help: "Current number of connected WebSocket dashboard clients",
		},
	)

	// RunsCompletedTotal counts completed scheduler cells, labeled by the
	// run controller's terminal state (done/failed/cancelled).
	RunsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadbench_runs_completed_total",
			Help: "Total number of scenario x concurrency runs completed, by terminal state",
		},
		[]string{"state"},
	)
)

// RecordEventDropped increments the drop counter for one evicted event type.
func RecordEventDropped(eventType string) {
	EventsDroppedTotal.WithLabelValues(eventType).Inc()
}

// SetConnectedClients mirrors the Bus's live subscriber count into the
// gauge; called after every Subscribe/unsubscribe.
func SetConnectedClients(n int) {
	ConnectedClients.Set(float64(n))
}

// RecordRunCompleted increments the per-state run counter.
func RecordRunCompleted(state string) {
	RunsCompletedTotal.WithLabelValues(state).Inc()
}
