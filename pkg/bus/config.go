package bus

import "time"

// Config selects the bus engine and the port the host (or an emulator
// bridge) connects through.
type Config struct {
	// Type selects the frame codec.
	// Valid values: sio, rs232
	// Default: sio
	Type string `mapstructure:"type" validate:"required,oneof=sio rs232" yaml:"type"`

	// Listen is the TCP address an emulator bridge connects to.
	// Default: 127.0.0.1:9997
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`

	// ReadTimeout bounds the wait for the data frame that follows a
	// command frame.
	// Default: 100ms
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// TickInterval is the idle sleep between scheduler ticks. Zero spins.
	// Default: 1ms
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = "sio"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:9997"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Millisecond
	}
}
