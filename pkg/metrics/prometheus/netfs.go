package prometheus

import (
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// netfsMetrics is the Prometheus implementation of netfs.Metrics.
type netfsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewNetFSMetrics creates network filesystem metrics on the active
// registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewNetFSMetrics() *netfsMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &netfsMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_netfs_operations_total",
				Help: "Total number of network filesystem operations by scheme, operation and status",
			},
			[]string{"scheme", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittonet_netfs_operation_duration_milliseconds",
				Help: "Duration of network filesystem operations in milliseconds",
				Buckets: []float64{
					1,    // local SD
					10,   // LAN
					50,   // nearby servers
					250,  // one read attempt
					1000, // slow opens
					5000, // dial timeout
				},
			},
			[]string{"scheme", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_netfs_bytes_transferred_total",
				Help: "Total bytes moved through network filesystem sessions",
			},
			[]string{"scheme", "direction"},
		),
	}
}

func (m *netfsMetrics) ObserveOperation(scheme, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(scheme, op, status).Inc()
	m.operationDuration.WithLabelValues(scheme, op).Observe(d.Seconds() * 1000)
}

func (m *netfsMetrics) RecordBytes(scheme, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(scheme, direction).Add(float64(n))
}
