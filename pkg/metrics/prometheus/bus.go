// Package prometheus implements the metrics interfaces of the bus, netfs,
// scheduler and control plane packages. Importing it registers the
// constructors with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterBusMetricsConstructor(func() bus.Metrics { return NewBusMetrics() })
	metrics.RegisterNetFSMetricsConstructor(func() netfs.Metrics { return NewNetFSMetrics() })
	metrics.RegisterSchedulerMetricsConstructor(func() scheduler.Metrics { return NewSchedulerMetrics() })
	metrics.RegisterHTTPMetricsConstructor(func() api.Metrics { return NewHTTPMetrics() })
}

// busMetrics is the Prometheus implementation of bus.Metrics.
type busMetrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	frameErrors      *prometheus.CounterVec
}

// NewBusMetrics creates bus engine metrics on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBusMetrics() *busMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &busMetrics{
		dispatchTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_bus_dispatch_total",
				Help: "Total number of dispatched bus commands by device, operation and result",
			},
			[]string{"device", "op", "result"},
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittonet_bus_dispatch_duration_milliseconds",
				Help: "Duration of bus command dispatch in milliseconds",
				Buckets: []float64{
					0.1, // in-memory devices
					1,
					5,
					20,
					100, // network filesystem reads
					250,
					1000,
				},
			},
			[]string{"device", "op"},
		),
		frameErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_bus_frame_errors_total",
				Help: "Total number of rejected or unreadable frames by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *busMetrics) ObserveDispatch(device, op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(device, op, result).Inc()
	m.dispatchDuration.WithLabelValues(device, op).Observe(duration.Seconds() * 1000)
}

func (m *busMetrics) RecordFrameError(reason string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(reason).Inc()
}
