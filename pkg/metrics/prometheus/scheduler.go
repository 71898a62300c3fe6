package prometheus

import (
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type schedulerMetrics struct {
	tickDuration  prometheus.Histogram
	serviceErrors *prometheus.CounterVec
}

// NewSchedulerMetrics creates scheduler metrics on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSchedulerMetrics() *schedulerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &schedulerMetrics{
		tickDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittonet_scheduler_tick_duration_milliseconds",
				Help:    "Duration of one scheduler tick in milliseconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 25, 100, 250, 1000},
			},
		),
		serviceErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_scheduler_service_errors_total",
				Help: "Total number of service turns that returned an error",
			},
			[]string{"service"},
		),
	}
}

func (m *schedulerMetrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds() * 1000)
}

func (m *schedulerMetrics) RecordServiceError(service string) {
	if m == nil {
		return
	}
	m.serviceErrors.WithLabelValues(service).Inc()
}
