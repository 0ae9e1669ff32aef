package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/errs"
)

// descriptionWidth bounds the description column of agent list.
const descriptionWidth = 60

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
	Long:  `Create, list and show the agents defined in the project.`,
}

// ---------------------------------------------------------------------------
// agent create
// ---------------------------------------------------------------------------

var agentCreateCmd = newCreateCommand("create <agent-name> <description>")

// ---------------------------------------------------------------------------
// agent list
// ---------------------------------------------------------------------------

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	Long: `List the agents in the agents directory with their model, launcher icon
and registration state. The template itself is not listed.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}

		agents, err := d.scanner.ScanAgents()
		if err != nil {
			return errs.WrapSystem(err, "listing agents")
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if agents == nil {
				return enc.Encode([]any{})
			}
			return enc.Encode(agents)
		}

		if len(agents) == 0 {
			fmt.Fprintf(out, "No agents in %s. Use 'agentkit create-agent' to add one.\n",
				displayPath(d.settings.ProjectDir, d.settings.AgentsDir))
			return nil
		}

		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Agents (%d):", len(agents))))
		for _, a := range agents {
			icon := a.Icon
			if icon == "" {
				icon = " "
			}
			flags := ""
			if !a.InLauncher {
				flags += " " + warningStyle.Render("[not in launcher]")
			}
			if a.Serena {
				flags += " " + mutedStyle.Render("[serena]")
			}
			fmt.Fprintf(out, "  %s %-24s %s%s\n", icon, a.Name, mutedStyle.Render(a.Model), flags)
			if a.Description != "" {
				fmt.Fprintf(out, "      %s\n", ansi.Truncate(a.Description, descriptionWidth, "…"))
			}
		}
		return nil
	},
}

// ---------------------------------------------------------------------------
// agent show
// ---------------------------------------------------------------------------

var agentShowCmd = &cobra.Command{
	Use:   "show <agent-name>",
	Short: "Show an agent definition",
	Long:  `Print an agent definition rendered as terminal markdown, or verbatim with --raw.`,
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}

		info, err := d.scanner.FindAgent(args[0])
		if err != nil {
			return errs.User("%v", err).WithHint("run 'agentkit agent list' to see the available agents")
		}
		data, err := os.ReadFile(info.Path)
		if err != nil {
			return errs.WrapSystem(err, "reading agent %s", info.Name)
		}

		out := cmd.OutOrStdout()
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			_, err := out.Write(data)
			return err
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return errs.WrapSystem(err, "creating markdown renderer")
		}
		rendered, err := r.Render(string(data))
		if err != nil {
			return errs.WrapSystem(err, "rendering agent %s", info.Name)
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	agentListCmd.Flags().Bool("json", false, "Output as JSON")
	agentShowCmd.Flags().Bool("raw", false, "Print the file without rendering")

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	rootCmd.AddCommand(agentCmd)
}
