package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/dittonet/internal/bytesize"
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MaxSlots is the number of host slots and disk slots.
const MaxSlots = 8

// Config represents the DittoNet configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTONET_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// General holds device identity and storage locations
	General GeneralConfig `mapstructure:"general" yaml:"general"`

	// ControlPlane configures the admin web server
	ControlPlane api.APIConfig `mapstructure:"controlplane" yaml:"controlplane"`

	// Bus selects and configures the legacy bus engine
	Bus bus.Config `mapstructure:"bus" yaml:"bus"`

	// NetFS configures the network filesystem device and its protocols
	NetFS netfs.Config `mapstructure:"netfs" yaml:"netfs"`

	// Printer configures the emulated printer
	Printer PrinterConfig `mapstructure:"printer" yaml:"printer"`

	// Hosts are the eight host slots, each a URL prefix such as
	// "tnfs://fujinet.online" or "SD".
	Hosts []string `mapstructure:"hosts" validate:"max=8" yaml:"hosts"`

	// Disks are the disk slots mounted at startup.
	Disks []DiskConfig `mapstructure:"disks" validate:"max=8,dive" yaml:"disks"`

	// Store configures slot persistence
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Discovery configures mDNS advertisement of the admin page
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`

	// ShutdownTimeout bounds the graceful shutdown of the control plane
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect (cpu, alloc_space, goroutines, ...)
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the /metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// GeneralConfig holds device identity and storage roots.
type GeneralConfig struct {
	// Hostname is advertised over mDNS and shown on the admin page
	Hostname string `mapstructure:"hostname" yaml:"hostname"`

	// DataPath is the read-mostly "flash" root holding the admin web
	// assets (www/) and printer output when no SD path is available.
	DataPath string `mapstructure:"data_path" validate:"required" yaml:"data_path"`

	// SDPath is the secondary storage root, exposed to hosts as "SD".
	SDPath string `mapstructure:"sd_path" yaml:"sd_path"`

	// SkipNetworkCheck starts the control plane even when no network
	// interface reports a usable address.
	SkipNetworkCheck bool `mapstructure:"skip_network_check" yaml:"skip_network_check"`
}

// PrinterConfig configures the emulated printer on the bus.
type PrinterConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Type selects the output format: RAW, TRIM, ASCII, SVG, HTML, HTML_ATASCII.
	// Unsupported types fall back to TRIM.
	Type string `mapstructure:"type" yaml:"type"`
}

// DiskConfig mounts an image from a host slot onto a disk slot.
type DiskConfig struct {
	// Host is the host slot index (0-7)
	Host int `mapstructure:"host" validate:"min=0,max=7" yaml:"host"`

	// Path is the image path relative to the host
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// Mode is "r" (read-only) or "w" (read/write)
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=r w" yaml:"mode"`
}

// StoreConfig configures where host/disk slot assignments persist.
type StoreConfig struct {
	// Path is the badger database directory
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps slots in memory only (lost on restart)
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// DiscoveryConfig configures mDNS advertisement of the admin page.
type DiscoveryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Instance is the advertised instance name (default: hostname)
	Instance string `mapstructure:"instance" yaml:"instance"`

	// Interface restricts advertisement to one network interface
	Interface string `mapstructure:"interface" yaml:"interface,omitempty"`

	// TTL of the advertised records
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing configuration file is not an error: defaults are used, still
// overridden by DITTONET_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold S3 and SMB credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// DITTONET_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix("DITTONET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindEnvKeys registers every leaf key so AutomaticEnv also applies to keys
// absent from the config file.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook accepts "64Ki", "1Mi" or plain numbers for ByteSize fields.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook accepts "500ms", "30s" or nanosecond integers.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittonet, ~/.config/dittonet, or "."
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dittonet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittonet")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
