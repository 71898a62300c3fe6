package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittonet/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "sio", cfg.Bus.Type)
	assert.Equal(t, "tnfs", cfg.NetFS.DefaultScheme)
	assert.Equal(t, "http://0.0.0.0:8000", cfg.ControlPlane.InterfaceURL)
	assert.Equal(t, 500*time.Millisecond, cfg.ControlPlane.RestartDelay)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
controlplane:
  interface_url: http://127.0.0.1:8123
  send_buffer_size: 1Ki
  max_parse_size: 64Ki
  restart_delay: 250ms
bus:
  type: rs232
netfs:
  default_scheme: http
hosts:
  - SD
  - tnfs://apps.irata.online
disks:
  - host: 1
    path: /Games/zork.atr
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "http://127.0.0.1:8123", cfg.ControlPlane.InterfaceURL)
	assert.Equal(t, bytesize.KiB, cfg.ControlPlane.SendBufferSize)
	assert.Equal(t, 64*bytesize.KiB, cfg.ControlPlane.MaxParseSize)
	assert.Equal(t, 250*time.Millisecond, cfg.ControlPlane.RestartDelay)
	assert.Equal(t, "rs232", cfg.Bus.Type)
	assert.Equal(t, "http", cfg.NetFS.DefaultScheme)
	require.Len(t, cfg.Disks, 1)
	assert.Equal(t, "r", cfg.Disks[0].Mode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "bus:\n  type: sio\n")
	t.Setenv("DITTONET_BUS_TYPE", "rs232")
	t.Setenv("DITTONET_NETFS_DEFAULT_SCHEME", "ftp")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rs232", cfg.Bus.Type)
	assert.Equal(t, "ftp", cfg.NetFS.DefaultScheme)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }, "oneof"},
		{"bad bus", func(c *Config) { c.Bus.Type = "iec" }, "oneof"},
		{"too many hosts", func(c *Config) { c.Hosts = make([]string, 9) }, "max"},
		{"disk on empty host", func(c *Config) {
			c.Disks = []DiskConfig{{Host: 5, Path: "/a.atr", Mode: "r"}}
		}, "host slot 6"},
		{"bad disk mode", func(c *Config) {
			c.Disks = []DiskConfig{{Host: 0, Path: "/a.atr", Mode: "x"}}
		}, "oneof"},
		{"bad url", func(c *Config) { c.ControlPlane.InterfaceURL = "ftp://[::1" }, "interface_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:         LoggingConfig{Level: "warn", Format: "json"},
		Printer:         PrinterConfig{Type: "html"},
		ShutdownTimeout: time.Minute,
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "HTML", cfg.Printer.Type)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
	assert.Equal(t, 0, cfg.Metrics.Port)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Hosts = []string{"SD", "tnfs://example.org"}

	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Hosts, loaded.Hosts)
	assert.Equal(t, cfg.ControlPlane.SendBufferSize, loaded.ControlPlane.SendBufferSize)
}

func TestWatcherReloadsValidChanges(t *testing.T) {
	path := writeConfig(t, "bus:\n  type: sio\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("bus:\n  type: bogus\n"), 0600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("bus:\n  type: rs232\n"), 0600))

	select {
	case cfg := <-got:
		assert.Equal(t, "rs232", cfg.Bus.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
