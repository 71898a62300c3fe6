package telemetry

import sdktrace "go.opentelemetry.io/otel/sdk/trace"

// Config configures tracing.
type Config struct {
	Enabled bool

	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector, e.g. "localhost:4317"
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of traces kept, 0.0 to 1.0
	SampleRate float64

	// Attributes are added to the trace resource (hostname, bus type).
	Attributes map[string]string
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRate >= 1:
		return sdktrace.AlwaysSample()
	case c.SampleRate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
	}
}
