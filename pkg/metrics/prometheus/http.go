package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates control plane metrics on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() *httpMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittonet_http_requests_total",
				Help: "Total number of control plane requests by route and status code",
			},
			[]string{"route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittonet_http_request_duration_milliseconds",
				Help:    "Time from queueing a control plane request to its completion in milliseconds",
				Buckets: []float64{1, 5, 25, 100, 500, 2000, 10000},
			},
			[]string{"route"},
		),
	}
}

func (m *httpMetrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds() * 1000)
}
