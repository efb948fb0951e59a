package connector

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_received_total",
		Help: "Datagrams received from either endpoint.",
	})
	metricForwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_forwarded_total",
		Help: "Datagrams forwarded to their destination.",
	})
	metricDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_dropped_total",
		Help: "Datagrams dropped by the loss impairment.",
	})
	metricCorrupted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_corrupted_total",
		Help: "Datagrams altered by the corruption impairment.",
	})
	metricDelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_delayed_total",
		Help: "Datagrams given a nonzero random delay (reorder-only holds are not counted).",
	})
	metricReordered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connector_packets_reordered_total",
		Help: "Datagrams given extra delay to force reordering.",
	})
)

// RegisterMetrics exposes the connector counters on a Prometheus
// registry. Call at most once per registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		metricReceived,
		metricForwarded,
		metricDropped,
		metricCorrupted,
		metricDelayed,
		metricReordered,
	)
}
