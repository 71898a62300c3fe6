package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/device/printer"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoNet configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittonet config validate

  # Validate specific config file
  dittonet config validate --config /etc/dittonet/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Printer.Enabled {
		if _, ok := printer.ParsePaperType(cfg.Printer.Type); !ok {
			warnings = append(warnings, fmt.Sprintf("printer type %q is unknown, TRIM will be used", cfg.Printer.Type))
		}
	}
	if cfg.General.SDPath == "" {
		warnings = append(warnings, "no SD path configured, \"SD\" host slots will not resolve")
	}
	if cfg.Store.InMemory {
		warnings = append(warnings, "slot store is in memory, slot changes are lost on restart")
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file: %s\n", targetPath(cmd))
	_, _ = fmt.Fprintln(w, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	_, _ = fmt.Fprintf(w, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(w, "  Bus type:        %s\n", cfg.Bus.Type)
	_, _ = fmt.Fprintf(w, "  Admin interface: %s\n", cfg.ControlPlane.InterfaceURL)
	_, _ = fmt.Fprintf(w, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
