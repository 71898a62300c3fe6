// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/pkg/config"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage DittoNet configuration files.

Subcommands:
  init      Create a configuration file
  validate  Validate configuration file
  show      Display current configuration
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}

// targetPath is the --config flag, else the default config location.
func targetPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.GetDefaultConfigPath()
	}
	return path
}
