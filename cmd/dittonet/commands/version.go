package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/internal/cli/output"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dittonet %s\n", Version)
		return output.PrintPairs(cmd.OutOrStdout(), [][2]string{
			{"Commit", Commit},
			{"Built", Date},
			{"Go version", runtime.Version()},
			{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		})
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}

// banner is printed when the device starts.
func banner(busType string) string {
	return fmt.Sprintf("DittoNet %s (%s) %s/%s, %s bus", Version, Date, runtime.GOOS, runtime.GOARCH, busType)
}
