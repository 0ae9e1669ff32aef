package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/errs"
)

// resolveTargetDir resolves the --dir flag or falls back to cwd.
func resolveTargetDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// exactArgs is cobra.ExactArgs reporting a user error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errs.User("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args)).
				WithHint(fmt.Sprintf("usage: %s", cmd.UseLine()))
		}
		return nil
	}
}

// maxArgs is cobra.MaximumNArgs reporting a user error.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return errs.User("%s accepts at most %d argument(s), got %d", cmd.CommandPath(), n, len(args)).
				WithHint(fmt.Sprintf("quote the description: %s", cmd.UseLine()))
		}
		return nil
	}
}

// displayPath shows path relative to base when it lies inside it.
func displayPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// joinStrings concatenates string slices with ", " separator.
func joinStrings(ss []string) string {
	return strings.Join(ss, ", ")
}
