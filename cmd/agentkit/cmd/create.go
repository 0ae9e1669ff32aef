package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/core"
	"github.com/barysiuk/agentkit/internal/core/agent"
)

const createLong = `Create a new agent from the project template and register it in the launcher.

Arguments:
  <agent-name>   kebab-case name, 2 to 50 characters (e.g. my-new-agent)
  <description>  one sentence describing what the agent does

The agent file is written to .claude/agents/<agent-name>.md and the launcher
agents/launch gets the agent in agent_order, its icon in get_agent_icon and,
with --serena, an entry in serena_agents.

Concurrent runs are serialized by a host-wide lock. A run waits up to
LOCK_WAIT_SECONDS for a live owner to release it before failing with exit
code 3. Locks left behind by dead processes are recovered automatically.

Exit codes: 0 success, 1 invalid input, 2 system error, 3 lock held.`

const createExample = `  agentkit create-agent code-reviewer "Reviews pull requests for style issues"
  agentkit create-agent db-helper "Answers schema questions" --serena --emoji 🗄️
  agentkit create-agent code-reviewer "Sharper reviews" --force --dry-run`

var createAgentCmd = newCreateCommand("create-agent <agent-name> <description>")

func init() {
	rootCmd.AddCommand(createAgentCmd)
}

// newCreateCommand builds a create command. It is registered both at the
// top level and under the agent group.
func newCreateCommand(use string) *cobra.Command {
	c := &cobra.Command{
		Use:     use,
		Short:   "Create an agent and register it in the launcher",
		Long:    createLong,
		Example: createExample,
		Args:    maxArgs(2),
		RunE:    runCreate,
	}
	c.Flags().String("model", "", "Model for the agent (default "+agent.DefaultModel+")")
	c.Flags().String("emoji", "", "Launcher icon for the agent (default "+agent.DefaultEmoji+")")
	c.Flags().Bool("serena", false, "Add the agent to serena_agents")
	c.Flags().Bool("force", false, "Overwrite an existing agent")
	c.Flags().Bool("dry-run", false, "Show what would be written without writing anything")
	return c
}

func runCreate(cmd *cobra.Command, args []string) error {
	desc := agent.Descriptor{}
	if len(args) > 0 {
		desc.Name = args[0]
	}
	if len(args) > 1 {
		desc.Description = args[1]
	}
	desc.Model, _ = cmd.Flags().GetString("model")
	desc.Emoji, _ = cmd.Flags().GetString("emoji")
	desc.Serena, _ = cmd.Flags().GetBool("serena")
	desc.Force, _ = cmd.Flags().GetBool("force")
	desc.DryRun, _ = cmd.Flags().GetBool("dry-run")

	// Input errors are reported before any configuration or lock is touched.
	if err := desc.Validate(); err != nil {
		return err
	}

	d, err := newDeps(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	if desc.DryRun {
		plan, err := d.creator.Plan(ctx, desc)
		if err != nil {
			return err
		}
		printPlan(out, d.settings, plan)
		return nil
	}

	d.openLog()
	defer d.close()

	res, err := d.creator.Create(ctx, desc)
	if err != nil {
		return err
	}
	printResult(out, d.settings, res)
	return nil
}

func printResult(w io.Writer, s *core.Settings, res *core.Result) {
	verb := "Created"
	if res.Overwritten {
		verb = "Overwrote"
	}
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✓ %s agent %s", verb, res.Agent.Name)))
	fmt.Fprintln(w, field("file", displayPath(s.ProjectDir, res.AgentPath)))
	launcherState := "registered"
	if !res.LauncherChanged {
		launcherState = "already up to date"
	}
	fmt.Fprintln(w, field("launcher", displayPath(s.ProjectDir, s.LauncherPath)+" ("+launcherState+")"))
	fmt.Fprintln(w, field("model", res.Agent.Model))
	fmt.Fprintln(w, field("icon", res.Agent.Emoji))
	if res.Agent.Serena {
		fmt.Fprintln(w, field("serena", "enabled"))
	}
}

func printPlan(w io.Writer, s *core.Settings, p *core.Plan) {
	fmt.Fprintln(w, headingStyle.Render("Dry run: nothing was written"))
	action := "create"
	if p.Exists {
		action = "overwrite"
	}
	fmt.Fprintln(w, field("would "+action, displayPath(s.ProjectDir, p.AgentPath)))
	regions := "no changes"
	if len(p.LauncherRegions) > 0 {
		regions = joinStrings(p.LauncherRegions)
	}
	fmt.Fprintln(w, field("launcher", displayPath(s.ProjectDir, p.LauncherPath)+" ("+regions+")"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", 40)))
	fmt.Fprint(w, p.Content)
	if !strings.HasSuffix(p.Content, "\n") {
		fmt.Fprintln(w)
	}
}
