package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/core/launcher"
	"github.com/barysiuk/agentkit/internal/errs"
)

var launcherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Inspect the agent launcher",
}

var launcherCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the launcher script",
	Long: `Parse the launcher as bash and check its managed regions: agent_order,
serena_agents and the case statement in get_agent_icon. Missing regions and
duplicate entries are reported as problems.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}

		path := d.settings.LauncherPath
		l, err := launcher.Load(path)
		if err != nil {
			return errs.WrapSystem(err, "launcher %s is invalid", displayPath(d.settings.ProjectDir, path))
		}
		r, err := l.Inspect()
		if err != nil {
			return errs.WrapSystem(err, "launcher %s is invalid", displayPath(d.settings.ProjectDir, path))
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(r); err != nil {
				return err
			}
		} else {
			printReport(out, displayPath(d.settings.ProjectDir, path), r)
		}
		if !r.OK() {
			return errs.System("launcher %s has %d problem(s)", displayPath(d.settings.ProjectDir, path), len(r.Problems))
		}
		return nil
	},
}

func printReport(w io.Writer, path string, r *launcher.Report) {
	fmt.Fprintln(w, headingStyle.Render("Launcher "+path))
	fmt.Fprintln(w, field(launcher.OrderArray, fmt.Sprintf("%d agent(s)", len(r.Order))))
	fmt.Fprintln(w, field(launcher.SerenaArray, fmt.Sprintf("%d agent(s)", len(r.Serena))))
	fmt.Fprintln(w, field(launcher.IconFunc, fmt.Sprintf("%d icon(s)", len(r.Icons))))

	var unmapped []string
	for _, name := range r.Order {
		if _, ok := r.Icons[name]; !ok {
			unmapped = append(unmapped, name)
		}
	}
	sort.Strings(unmapped)
	if len(unmapped) > 0 {
		fmt.Fprintln(w, mutedStyle.Render("  using default icon: "+joinStrings(unmapped)))
	}

	if r.OK() {
		fmt.Fprintln(w, successStyle.Render("✓ OK"))
		return
	}
	for _, p := range r.Problems {
		fmt.Fprintln(w, warningStyle.Render("  ✗ "+p))
	}
}

func init() {
	launcherCheckCmd.Flags().Bool("json", false, "Output the region report as JSON")

	launcherCmd.AddCommand(launcherCheckCmd)
	rootCmd.AddCommand(launcherCmd)
}
