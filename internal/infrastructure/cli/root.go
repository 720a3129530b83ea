package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	homeDir   string
	projectID string
	logLevel  string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "boardsync",
	Version: Version,
	Short:   "Keep a local task board in sync with a project server",
	Long: `boardsync mirrors a project's task board from the server, applies
edits optimistically and merges live updates pushed by other users.

Configuration lives in $BOARDSYNC_HOME/config.yaml (default ~/.boardsync).`,
	SilenceUsage: true,
}

// Execute runs the root command and prints the hint of a CLIError.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	err := RootCmd.Execute()
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Hint != "" {
		fmt.Fprintf(RootCmd.ErrOrStderr(), "Hint: %s\n", cliErr.Hint)
	}
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "workspace directory (default $BOARDSYNC_HOME or ~/.boardsync)")
	RootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
