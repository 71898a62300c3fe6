package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/internal/cli/prompt"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/device/printer"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a DittoNet configuration file populated with defaults.

By default the file is created at $XDG_CONFIG_HOME/dittonet/config.yaml.
Use --config to choose another path.

Examples:
  # Write defaults
  dittonet config init

  # Answer a few questions first
  dittonet config init --interactive

  # Overwrite an existing file
  dittonet config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := targetPath(cmd)

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	if initInteractive {
		if err := askSettings(cfg); err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(w, "\nNext steps:")
	_, _ = fmt.Fprintln(w, "  1. Edit the configuration file to set host and disk slots")
	_, _ = fmt.Fprintf(w, "  2. Start the device with: dittonet --config %s\n", path)
	return nil
}

func askSettings(cfg *config.Config) error {
	busType, err := prompt.Select("Bus type", []string{"sio", "rs232"}, cfg.Bus.Type)
	if err != nil {
		return err
	}
	cfg.Bus.Type = busType

	hostname, err := prompt.Input("Hostname", cfg.General.Hostname, func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("hostname is required")
		}
		return nil
	})
	if err != nil {
		return err
	}
	cfg.General.Hostname = strings.TrimSpace(hostname)

	sd, err := prompt.Input("SD directory (empty for none)", cfg.General.SDPath, nil)
	if err != nil {
		return err
	}
	cfg.General.SDPath = strings.TrimSpace(sd)

	enabled, err := prompt.Confirm("Enable printer", cfg.Printer.Enabled)
	if err != nil {
		return err
	}
	cfg.Printer.Enabled = enabled
	if !enabled {
		return nil
	}

	var models []string
	for _, p := range printer.Supported() {
		models = append(models, p.String())
	}
	model, err := prompt.Select("Printer output", models, cfg.Printer.Type)
	if err != nil {
		return err
	}
	cfg.Printer.Type = model
	return nil
}
