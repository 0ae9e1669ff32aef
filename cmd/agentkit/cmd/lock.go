package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/core/lock"
	"github.com/barysiuk/agentkit/internal/errs"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and clear the agent creation lock",
	Long: `Inspect and clear the host-wide lock that serializes agent creation.

The lock is a directory holding an owner record (pid, token, acquisition
time). It is stale when its owner process is gone or has held it for longer
than the stale-after age, and corrupted when the record cannot be read.`,
}

// ---------------------------------------------------------------------------
// lock status
// ---------------------------------------------------------------------------

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the lock owner and state",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}

		st, err := d.creator.Locks.Inspect()
		if err != nil {
			return errs.WrapSystem(err, "inspecting lock")
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printLockStatus(out, st)
		return nil
	},
}

// ---------------------------------------------------------------------------
// lock clear
// ---------------------------------------------------------------------------

var lockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a stale or corrupted lock",
	Long: `Remove the lock when its owner is gone or its record is unreadable.
A lock held by a live process is only removed with --force.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		st, err := d.creator.Locks.Clear(force)
		if err != nil {
			var contended *lock.ContendedError
			if errors.As(err, &contended) {
				return errs.WrapLock(err, "refusing to clear a lock held by a live process").
					WithHint("pass --force if the owner is known to be stuck")
			}
			return errs.WrapSystem(err, "clearing lock")
		}

		out := cmd.OutOrStdout()
		if st.State == lock.StateFree {
			fmt.Fprintf(out, "No lock at %s.\n", st.Path)
			return nil
		}
		d.logger.Info().Str("lock", st.Path).Str("state", string(st.State)).Msg("lock cleared")
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Removed %s lock %s", st.State, st.Path)))
		return nil
	},
}

func printLockStatus(w io.Writer, st lock.Status) {
	state := string(st.State)
	switch st.State {
	case lock.StateFree:
		state = successStyle.Render(state)
	case lock.StateHeld:
		state = headingStyle.Render(state)
	default:
		state = warningStyle.Render(state)
	}
	fmt.Fprintln(w, field("lock", st.Path))
	fmt.Fprintln(w, field("state", state))
	if st.Owner != nil {
		fmt.Fprintln(w, field("pid", fmt.Sprint(st.Owner.PID)))
		fmt.Fprintln(w, field("token", st.Owner.Token))
		fmt.Fprintln(w, field("acquired", st.Owner.AcquiredAt.Format(time.RFC3339)))
	}
	if st.State != lock.StateFree {
		fmt.Fprintln(w, field("age", st.Age.Round(time.Second).String()))
	}
	if st.Reason != "" {
		fmt.Fprintln(w, field("reason", st.Reason))
	}
}

func init() {
	lockStatusCmd.Flags().Bool("json", false, "Output as JSON")
	lockClearCmd.Flags().Bool("force", false, "Remove the lock even if its owner is alive")

	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockClearCmd)
	rootCmd.AddCommand(lockCmd)
}
