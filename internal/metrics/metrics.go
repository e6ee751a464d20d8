// Package metrics provides Prometheus instrumentation for the chat delivery
// subsystem: connection and ingest counters, consumer retry/dead-letter
// counters, and latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of authenticated WebSocket
	// connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesIngested counts ingest outcomes, labeled by result:
	// "accepted", "rejected" (validation) or "store_error".
	MessagesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_ingested_total",
		Help: "Total number of ingest attempts by result",
	}, []string{"result"})

	// FanoutDelivered counts projections pushed to per-user destinations.
	FanoutDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_fanout_delivered_total",
		Help: "Total number of message projections fanned out",
	})

	// ConsumerRetries counts retry attempts made by the broker pipeline.
	ConsumerRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_consumer_retries_total",
		Help: "Total number of consumer handler retries",
	})

	// DeadLettered counts messages routed to the dead-letter topic.
	DeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dead_lettered_total",
		Help: "Total number of messages routed to the dead-letter topic",
	})

	// StatusTransitions counts status tracker mutations, labeled by the
	// target status ("DELIVERED" or "READ").
	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_status_transitions_total",
		Help: "Total number of message status transitions",
	}, []string{"status"})

	// IngestLatency records the persist+publish latency of message ingest.
	IngestLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_ingest_latency_seconds",
		Help:    "Message ingest latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesIngested,
		FanoutDelivered,
		ConsumerRetries,
		DeadLettered,
		StatusTransitions,
		IngestLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
