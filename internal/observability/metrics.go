// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Upstream stream metrics
	UpdatesReceived  prometheus.Counter
	EventsPublished  prometheus.Counter
	Reconnects       *prometheus.CounterVec
	SupervisorState  prometheus.Gauge
	HighestSlotSeen  prometheus.Gauge
	OffCurveCreators prometheus.Counter

	// Fan-out metrics
	ActiveSubscribers    prometheus.Gauge
	SubscriberLagSignals prometheus.Counter
	EventsDropped        prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpfeed"
	}

	return &Metrics{
		UpdatesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "updates_received_total",
			Help:      "Total number of raw transaction updates received from upstream",
		}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "create_events_published_total",
			Help:      "Total number of classified create events published to the bus",
		}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of upstream reconnect cycles by cause",
		}, []string{"cause"}),
		SupervisorState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "supervisor_state",
			Help:      "Current supervisor state (0=disconnected 1=connecting 2=subscribed 3=streaming)",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen in published events",
		}),
		OffCurveCreators: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "off_curve_creators_total",
			Help:      "Create events whose creator address is not an ed25519 curve point (likely a PDA fee payer)",
		}),

		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_subscribers",
			Help:      "Current number of connected event-stream subscribers",
		}),
		SubscriberLagSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "subscriber_lag_signals_total",
			Help:      "Total number of lag signals delivered to slow subscribers",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped for lagging subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUpdateReceived increments the raw updates counter.
func RecordUpdateReceived() {
	DefaultMetrics.UpdatesReceived.Inc()
}

// RecordEventPublished increments the published events counter and updates
// the highest slot gauge.
func RecordEventPublished(slot uint64) {
	DefaultMetrics.EventsPublished.Inc()
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordReconnect increments the reconnect counter for the given cause.
func RecordReconnect(cause string) {
	DefaultMetrics.Reconnects.WithLabelValues(cause).Inc()
}

// SetSupervisorState updates the supervisor state gauge.
func SetSupervisorState(state int) {
	DefaultMetrics.SupervisorState.Set(float64(state))
}

// RecordOffCurveCreator increments the off-curve creator counter.
func RecordOffCurveCreator() {
	DefaultMetrics.OffCurveCreators.Inc()
}

// SubscriberConnected increments the active subscriber gauge.
func SubscriberConnected() {
	DefaultMetrics.ActiveSubscribers.Inc()
}

// SubscriberDisconnected decrements the active subscriber gauge.
func SubscriberDisconnected() {
	DefaultMetrics.ActiveSubscribers.Dec()
}

// RecordSubscriberLag records one lag signal covering missed events.
func RecordSubscriberLag(missed uint64) {
	DefaultMetrics.SubscriberLagSignals.Inc()
	DefaultMetrics.EventsDropped.Add(float64(missed))
}
