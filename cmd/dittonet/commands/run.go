package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/controlplane/runtime"
	"github.com/marmos91/dittonet/pkg/lifecycle"
	"github.com/marmos91/dittonet/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittonet/pkg/metrics/prometheus"
)

// runDevice starts the device and blocks until the service loop ends. The
// loop's exit code is recorded for main.
func runDevice(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := applyFlags(cfg); err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittonet",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		Attributes: map[string]string{
			"hostname": cfg.General.Hostname,
			"bus":      cfg.Bus.Type,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittonet",
		ServiceVersion: Version,
		Tags: map[string]string{
			"hostname": cfg.General.Hostname,
			"bus":      cfg.Bus.Type,
		},
		Endpoint:     cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes: cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), banner(cfg.Bus.Type))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		if err := metricsServer.Start(ctx); err != nil {
			return err
		}
		defer stopMetrics(metricsServer)
	}

	coordinator := lifecycle.New()
	coordinator.Watch(ctx)

	rt, err := runtime.New(ctx, cfg,
		runtime.WithCoordinator(coordinator),
		runtime.WithConfigPath(configPath()),
		runtime.WithInfo(runtime.Info{Version: Version, Commit: Commit, Date: Date}),
	)
	if err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	defer rt.Close()

	watcher, err := rt.WatchSettings()
	if err != nil {
		logger.Warn("Config file watching disabled", logger.Err(err))
	} else if watcher != nil {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	if err := rt.Start(ctx); err != nil {
		if errors.Is(err, api.ErrNetworkDown) {
			return fmt.Errorf("cannot start admin interface: %w", err)
		}
		return err
	}
	logger.Info("Admin interface listening", "url", cfg.ControlPlane.InterfaceURL)

	exitCode = rt.Scheduler().Run(ctx)
	logger.Info("Service loop stopped", "exit_code", exitCode)
	return nil
}

func stopMetrics(s *metrics.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("Metrics server shutdown error", logger.Err(err))
	}
}
