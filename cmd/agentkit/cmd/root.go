package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/errs"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "agentkit",
	Short: "Create and register Claude agents safely across concurrent runs",
	Long: `agentkit renders agent definitions from the project template and registers
them in the bash launcher.

Creations are serialized by a host-wide lock so that any number of parallel
runs leave the agents directory and the launcher consistent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentkit %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("dir", "", "Project directory (defaults to the current directory)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errs.User("%v", err).WithHint(fmt.Sprintf("see '%s --help'", cmd.CommandPath()))
	})
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Main runs the root command, reports a failure on stderr and returns the
// process exit code for it.
func Main() int {
	err := Execute()
	if err == nil {
		return errs.ExitOK
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	if hint := errs.HintOf(err); hint != "" {
		fmt.Fprintln(os.Stderr, hintStyle.Render("Hint: "+hint))
	}
	return errs.ExitCode(err)
}
