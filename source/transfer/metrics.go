package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricTransfers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transfer_files_received_total",
		Help: "Completed inbound transfers written to disk.",
	})
	metricBytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transfer_bytes_received_total",
		Help: "Payload bytes written to disk.",
	})
)

// RegisterMetrics exposes the transfer counters on a Prometheus
// registry. Call at most once per registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metricTransfers, metricBytesReceived)
}
