package commands

import (
	"fmt"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// configPath is where the running device saves admin changes: the -c
// flag, else the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// applyFlags lets command line flags override the loaded configuration.
func applyFlags(cfg *config.Config) error {
	if verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if interfaceURL != "" {
		cfg.ControlPlane.InterfaceURL = interfaceURL
	}
	if sdPath != "" {
		cfg.General.SDPath = sdPath
	}
	return config.Validate(cfg)
}
