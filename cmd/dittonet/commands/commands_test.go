package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionShort(t *testing.T) {
	Version = "9.9.9"
	out := execute(t, "version", "--short")
	assert.Equal(t, "9.9.9\n", out)
}

func TestConfigInitShowValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out := execute(t, "config", "init", "--config", path)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sio", cfg.Bus.Type)

	out = execute(t, "config", "show", "--config", path, "-o", "json")
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "Hosts")

	out = execute(t, "config", "validate", "--config", path)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "Bus type:        sio")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	execute(t, "config", "init", "--config", path)

	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	rootCmd.SetOut(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestHostsShowsDefaultsWhenNothingSaved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := config.GetDefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "slots")
	require.NoError(t, config.SaveConfig(cfg, path))

	out := execute(t, "hosts", "--config", path, "-o", "table")
	assert.Contains(t, out, "tnfs://fujinet.online")
	assert.Contains(t, out, "D1:")
}

func TestNewSlotView(t *testing.T) {
	st := slots.NewState()
	st.Hosts[0] = "SD"
	st.Disks[2] = slots.Disk{Host: 0, Mode: slots.ModeWrite, Path: "/games/pong.atr"}

	v := newSlotView(st)
	require.Len(t, v.Hosts, slots.Count)
	require.Len(t, v.Disks, slots.Count)
	assert.Equal(t, hostView{Slot: 1, URL: "SD"}, v.Hosts[0])
	assert.Equal(t, diskView{Slot: 3, Host: 1, Path: "/games/pong.atr", Mode: "w"}, v.Disks[2])
	assert.Equal(t, diskView{Slot: 1}, v.Disks[0])
}

func TestApplyFlags(t *testing.T) {
	t.Cleanup(func() {
		verbose = false
		interfaceURL = ""
		sdPath = ""
	})
	verbose = true
	interfaceURL = "http://127.0.0.1:9000"
	sdPath = t.TempDir()

	cfg := config.GetDefaultConfig()
	require.NoError(t, applyFlags(cfg))
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.ControlPlane.InterfaceURL)
	assert.Equal(t, sdPath, cfg.General.SDPath)
}
