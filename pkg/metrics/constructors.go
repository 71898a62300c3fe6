package metrics

import (
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/marmos91/dittonet/pkg/scheduler"
)

// The constructors below are filled in by pkg/metrics/prometheus during
// package initialization. This indirection avoids import cycles.
var (
	newPrometheusBusMetrics       func() bus.Metrics
	newPrometheusNetFSMetrics     func() netfs.Metrics
	newPrometheusSchedulerMetrics func() scheduler.Metrics
	newPrometheusHTTPMetrics      func() api.Metrics
)

// RegisterBusMetricsConstructor registers the Prometheus bus metrics.
func RegisterBusMetricsConstructor(c func() bus.Metrics) { newPrometheusBusMetrics = c }

// RegisterNetFSMetricsConstructor registers the Prometheus netfs metrics.
func RegisterNetFSMetricsConstructor(c func() netfs.Metrics) { newPrometheusNetFSMetrics = c }

// RegisterSchedulerMetricsConstructor registers the Prometheus scheduler
// metrics.
func RegisterSchedulerMetricsConstructor(c func() scheduler.Metrics) {
	newPrometheusSchedulerMetrics = c
}

// RegisterHTTPMetricsConstructor registers the Prometheus control plane
// metrics.
func RegisterHTTPMetricsConstructor(c func() api.Metrics) { newPrometheusHTTPMetrics = c }

// NewBusMetrics returns bus engine metrics, or nil when disabled.
//
// Example usage:
//
//	metrics.InitRegistry()
//	engine := bus.NewEngine(codec, port, metrics.NewBusMetrics())
func NewBusMetrics() bus.Metrics {
	if !IsEnabled() || newPrometheusBusMetrics == nil {
		return nil
	}
	return newPrometheusBusMetrics()
}

// NewNetFSMetrics returns network filesystem metrics, or nil when disabled.
func NewNetFSMetrics() netfs.Metrics {
	if !IsEnabled() || newPrometheusNetFSMetrics == nil {
		return nil
	}
	return newPrometheusNetFSMetrics()
}

// NewSchedulerMetrics returns scheduler metrics, or nil when disabled.
func NewSchedulerMetrics() scheduler.Metrics {
	if !IsEnabled() || newPrometheusSchedulerMetrics == nil {
		return nil
	}
	return newPrometheusSchedulerMetrics()
}

// NewHTTPMetrics returns control plane metrics, or nil when disabled.
func NewHTTPMetrics() api.Metrics {
	if !IsEnabled() || newPrometheusHTTPMetrics == nil {
		return nil
	}
	return newPrometheusHTTPMetrics()
}
