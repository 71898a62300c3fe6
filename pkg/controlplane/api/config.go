package api

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/marmos91/dittonet/internal/bytesize"
)

// APIConfig configures the admin web server.
type APIConfig struct {
	// InterfaceURL is the address the admin page is served on, e.g.
	// "http://0.0.0.0:8000". Overridden by the -u flag.
	// Default: http://0.0.0.0:8000
	InterfaceURL string `mapstructure:"interface_url" validate:"required" yaml:"interface_url"`

	// WWWRoot is the static document root on the flash filesystem.
	// Default: www
	WWWRoot string `mapstructure:"www_root" yaml:"www_root"`

	// SendBufferSize is the chunk size used when streaming files.
	// Default: 512
	SendBufferSize bytesize.ByteSize `mapstructure:"send_buffer_size" yaml:"send_buffer_size"`

	// MaxParseSize bounds files that are loaded whole for placeholder
	// substitution. Larger files fail with an out-of-memory error.
	// Default: 256Ki
	MaxParseSize bytesize.ByteSize `mapstructure:"max_parse_size" yaml:"max_parse_size"`

	// RestartDelay is how long a scheduled restart waits so the reply can
	// finish transferring.
	// Default: 500ms
	RestartDelay time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// HandlerTimeout bounds how long a request waits for the service loop
	// to run its handler.
	// Default: 20s
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" yaml:"handler_timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) ApplyDefaults() {
	if c.InterfaceURL == "" {
		c.InterfaceURL = "http://0.0.0.0:8000"
	}
	if c.WWWRoot == "" {
		c.WWWRoot = "www"
	}
	if c.SendBufferSize == 0 {
		c.SendBufferSize = 512
	}
	if c.MaxParseSize == 0 {
		c.MaxParseSize = 256 * bytesize.KiB
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = 500 * time.Millisecond
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.HandlerTimeout == 0 {
		c.HandlerTimeout = 20 * time.Second
	}
}

// ListenAddr derives the host:port to listen on from InterfaceURL. A URL
// without a port listens on 80 (http) or 443 (https).
func (c *APIConfig) ListenAddr() (string, error) {
	u, err := url.Parse(c.InterfaceURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", c.InterfaceURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http", "":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
