// Package metrics provides Prometheus instrumentation for the chat relay.
// It exposes gauges for connection and presence counts, counters for event
// throughput, and histograms for fan-out size and delivery latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket
	// connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineIdentities tracks the current number of identities bound to a
	// live connection.
	OnlineIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_identities",
		Help: "Current number of identities with a live connection",
	})

	// EventsTotal counts inbound events processed, labeled by event type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Total number of inbound events processed",
	}, []string{"type"})

	// MessagesTotal counts message outcomes, labeled by result: "persisted",
	// "rejected", or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total number of message sends by outcome",
	}, []string{"result"})

	// FanoutTargets records how many connections each fan-out reached.
	FanoutTargets = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_fanout_targets",
		Help:    "Number of target connections per fan-out",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// DeliveryLatency records send handling latency (receipt to ack) in
	// seconds.
	DeliveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_delivery_latency_seconds",
		Help:    "Send handling latency from receipt to acknowledgement",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineIdentities,
		EventsTotal,
		MessagesTotal,
		FanoutTargets,
		DeliveryLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
