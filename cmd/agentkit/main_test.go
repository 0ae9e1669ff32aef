package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/barysiuk/agentkit/cmd/agentkit/cmd"
	"github.com/barysiuk/agentkit/internal/core/launcher"
	"github.com/barysiuk/agentkit/internal/core/lock"
)

const projectTemplate = `---
name: [agent-name]
description: [One sentence description of what this agent does]
model: claude-sonnet-4-20250514
tools: [Read, Write, Bash]
---

# [Agent Name]

[emoji] [Agent Name] is a specialist agent. See [the guide](docs/agents.md).

## Responsibilities

- Describe what the agent owns.
`

const projectLauncher = `#!/usr/bin/env bash
set -euo pipefail

agent_order=(
    "planner"
    "coder"
)

serena_agents=(
    "coder"
)

get_agent_icon() {
    case "$1" in
        planner) echo "📋" ;;
        coder) echo "💻" ;;
        *) echo "🤖" ;;
    esac
}

for a in "${agent_order[@]}"; do
    echo "$(get_agent_icon "$a") $a"
done
`

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"agentkit": cmd.Main,
	}))
}

func TestScript(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir:                 filepath.Join("testdata", "script"),
		RequireExplicitExec: true,
		Setup: func(e *testscript.Env) error {
			// Keep HOME and the host-wide lock inside WORK so scripts can run
			// in parallel.
			e.Vars = append(e.Vars,
				"HOME="+e.WorkDir,
				"AGENT_LOCK_DIR="+filepath.Join(e.WorkDir, "tmp", lock.DefaultDirName),
				"LOCK_WAIT_SECONDS=0",
			)
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			// setup-project writes the agent template and the launcher.
			// Usage: setup-project
			"setup-project": cmdSetupProject,

			// file-contains asserts that a file contains (or doesn't contain) a substring.
			// Usage: [!] file-contains <path> <substring>
			"file-contains": cmdFileContains,

			// count-in-file asserts how many times a substring occurs in a file.
			// Usage: count-in-file <path> <substring> <n>
			"count-in-file": cmdCountInFile,

			// launcher-valid asserts that a launcher parses and has its
			// regions without duplicates.
			// Usage: [!] launcher-valid <path>
			"launcher-valid": cmdLauncherValid,

			// seed-lock creates the lock directory as another process would.
			// Usage: seed-lock <pid|self|corrupt> [age-seconds]
			// "self" uses the pid of the test process, which stays alive for
			// the whole script.
			"seed-lock": cmdSeedLock,

			// expect-exit runs a command and asserts its exit code.
			// Usage: expect-exit <code> <command> [args...]
			"expect-exit": cmdExpectExit,
		},
	})
}

// cmdSetupProject writes the canonical project layout into the work dir.
func cmdSetupProject(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("setup-project does not support negation")
	}
	if len(args) != 0 {
		ts.Fatalf("usage: setup-project")
	}
	files := map[string]struct {
		content string
		mode    os.FileMode
	}{
		".claude/agents/AGENT-TEMPLATE.md": {projectTemplate, 0o644},
		"agents/launch":                    {projectLauncher, 0o755},
	}
	for rel, f := range files {
		path := ts.MkAbs(rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			ts.Fatalf("creating dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(f.content), f.mode); err != nil {
			ts.Fatalf("writing %s: %v", rel, err)
		}
	}
}

// cmdFileContains checks if a file contains a substring.
func cmdFileContains(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) < 2 {
		ts.Fatalf("usage: file-contains <path> <substring>")
	}
	data, err := os.ReadFile(ts.MkAbs(args[0]))
	if err != nil {
		ts.Fatalf("reading %s: %v", args[0], err)
	}

	contains := strings.Contains(string(data), args[1])
	if neg {
		if contains {
			ts.Fatalf("file %s contains %q (expected not to)", args[0], args[1])
		}
	} else {
		if !contains {
			ts.Fatalf("file %s does not contain %q\nContent:\n%s", args[0], args[1], string(data))
		}
	}
}

// cmdCountInFile checks the number of occurrences of a substring.
func cmdCountInFile(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("count-in-file does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: count-in-file <path> <substring> <n>")
	}
	want, err := strconv.Atoi(args[2])
	if err != nil {
		ts.Fatalf("invalid count %q", args[2])
	}
	data, err := os.ReadFile(ts.MkAbs(args[0]))
	if err != nil {
		ts.Fatalf("reading %s: %v", args[0], err)
	}
	if got := strings.Count(string(data), args[1]); got != want {
		ts.Fatalf("file %s contains %q %d times, want %d\nContent:\n%s", args[0], args[1], got, want, string(data))
	}
}

// cmdLauncherValid parses a launcher and checks its managed regions.
func cmdLauncherValid(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: launcher-valid <path>")
	}
	var problem string
	l, err := launcher.Load(ts.MkAbs(args[0]))
	if err != nil {
		problem = err.Error()
	} else {
		r, err := l.Inspect()
		switch {
		case err != nil:
			problem = err.Error()
		case !r.OK():
			problem = strings.Join(r.Problems, "; ")
		}
	}

	if neg {
		if problem == "" {
			ts.Fatalf("launcher %s is valid (expected not to be)", args[0])
		}
	} else {
		if problem != "" {
			ts.Fatalf("launcher %s is invalid: %s", args[0], problem)
		}
	}
}

// cmdSeedLock creates the lock directory with an owner record.
func cmdSeedLock(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("seed-lock does not support negation")
	}
	if len(args) < 1 || len(args) > 2 {
		ts.Fatalf("usage: seed-lock <pid|self|corrupt> [age-seconds]")
	}
	age := 0
	if len(args) == 2 {
		var err error
		if age, err = strconv.Atoi(args[1]); err != nil {
			ts.Fatalf("invalid age %q", args[1])
		}
	}
	at := time.Now().Add(-time.Duration(age) * time.Second)

	dir := ts.Getenv("AGENT_LOCK_DIR")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		ts.Fatalf("creating lock dir: %v", err)
	}
	owner := filepath.Join(dir, lock.OwnerFileName)

	if args[0] == "corrupt" {
		if err := os.WriteFile(owner, []byte("not an owner record\n"), 0o644); err != nil {
			ts.Fatalf("writing owner: %v", err)
		}
		// Backdate past the publishing grace period.
		old := time.Now().Add(-time.Minute)
		if err := os.Chtimes(dir, old, old); err != nil {
			ts.Fatalf("backdating lock: %v", err)
		}
		return
	}

	pid := os.Getpid()
	if args[0] != "self" {
		var err error
		if pid, err = strconv.Atoi(args[0]); err != nil {
			ts.Fatalf("invalid pid %q", args[0])
		}
	}
	rec := lock.OwnerRecord{PID: pid, Token: "seeded", AcquiredAt: at}
	if err := os.WriteFile(owner, rec.Marshal(), 0o644); err != nil {
		ts.Fatalf("writing owner: %v", err)
	}
}

// cmdExpectExit runs a command and checks its exit code. Its output is
// available to the following stdout and stderr assertions.
func cmdExpectExit(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("expect-exit does not support negation")
	}
	if len(args) < 2 {
		ts.Fatalf("usage: expect-exit <code> <command> [args...]")
	}
	want, err := strconv.Atoi(args[0])
	if err != nil {
		ts.Fatalf("invalid exit code %q", args[0])
	}

	got := 0
	if err := ts.Exec(args[1], args[2:]...); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			ts.Fatalf("running %s: %v", args[1], err)
		}
		got = exitErr.ExitCode()
	}
	if got != want {
		ts.Fatalf("%s exited with %d, want %d", args[1], got, want)
	}
}
