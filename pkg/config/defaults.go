package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults fills zero-valued fields. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyGeneralDefaults(&cfg.General)
	cfg.ControlPlane.ApplyDefaults()
	cfg.Bus.ApplyDefaults()
	cfg.NetFS.ApplyDefaults()
	applyPrinterDefaults(&cfg.Printer)
	applyDiskDefaults(cfg.Disks)
	applyStoreDefaults(&cfg.Store)
	applyDiscoveryDefaults(&cfg.Discovery, cfg.General.Hostname)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyGeneralDefaults(cfg *GeneralConfig) {
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		} else {
			cfg.Hostname = "dittonet"
		}
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "data"
	}
	if cfg.SDPath == "" {
		cfg.SDPath = "SD"
	}
}

func applyPrinterDefaults(cfg *PrinterConfig) {
	if cfg.Type == "" {
		cfg.Type = "TRIM"
	}
	cfg.Type = strings.ToUpper(cfg.Type)
}

func applyDiskDefaults(disks []DiskConfig) {
	for i := range disks {
		if disks[i].Mode == "" {
			disks[i].Mode = "r"
		}
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Path == "" && !cfg.InMemory {
		cfg.Path = filepath.Join(getConfigDir(), "slots")
	}
}

func applyDiscoveryDefaults(cfg *DiscoveryConfig, hostname string) {
	if cfg.Instance == "" {
		cfg.Instance = hostname
	}
	if cfg.TTL == 0 {
		cfg.TTL = 120 * time.Second
	}
}

// GetDefaultConfig returns a Config with every default applied. Used by
// "config init" and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Printer: PrinterConfig{Enabled: true},
		Hosts:   []string{"SD", "tnfs://fujinet.online"},
	}
	ApplyDefaults(cfg)
	return cfg
}
