// Package commands implements the dittonet command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/cmd/dittonet/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	verbose      bool
	interfaceURL string
	sdPath       string

	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "dittonet",
	Short: "DittoNet - network peripherals for 8-bit computers",
	Long: `DittoNet emulates disk drives, a printer and network devices on a
legacy serial bus and resolves them against network hosts (TNFS, HTTP, FTP,
SMB, S3) or local SD storage. An admin web page manages host and disk slots.

Running dittonet without a subcommand starts the device.

Exit codes:
  0   normal shutdown
  1   forced exit or startup failure
  75  restart requested (run again under a supervisor)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDevice,
}

// Execute runs the command line. The process exit code of a device run is
// available from ExitCode afterwards.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode is the code the process should exit with.
func ExitCode() int {
	return exitCode
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/dittonet/config.yaml)")

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "V", false, "Debug logging")
	rootCmd.Flags().StringVarP(&interfaceURL, "url", "u", "", "Admin interface URL (e.g. http://0.0.0.0:8000)")
	rootCmd.Flags().StringVarP(&sdPath, "sd", "s", "", "Directory served as SD storage")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
