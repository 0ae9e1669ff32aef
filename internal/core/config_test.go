package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/barysiuk/agentkit/internal/core/agent"
	"github.com/barysiuk/agentkit/internal/errs"
)

func TestConfigManager_Defaults(t *testing.T) {
	dir := t.TempDir()
	s, err := NewConfigManagerWithEnv(dir, nil).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if s.AgentsDir != filepath.Join(dir, ".claude", "agents") {
		t.Errorf("AgentsDir = %q", s.AgentsDir)
	}
	if s.TemplatePath != filepath.Join(dir, ".claude", "agents", "AGENT-TEMPLATE.md") {
		t.Errorf("TemplatePath = %q", s.TemplatePath)
	}
	if s.LauncherPath != filepath.Join(dir, "agents", "launch") {
		t.Errorf("LauncherPath = %q", s.LauncherPath)
	}
	if s.LogsDir != filepath.Join(dir, "logs") {
		t.Errorf("LogsDir = %q", s.LogsDir)
	}
	if filepath.Base(s.LockDir) != "agent-creation.lock" {
		t.Errorf("LockDir = %q", s.LockDir)
	}
	if s.DefaultModel != agent.DefaultModel || s.DefaultEmoji != agent.DefaultEmoji {
		t.Errorf("defaults = %q %q", s.DefaultModel, s.DefaultEmoji)
	}
	if s.LockWait != 30*time.Second || s.LockPoll != 500*time.Millisecond {
		t.Errorf("LockWait=%v LockPoll=%v", s.LockWait, s.LockPoll)
	}
	if s.StaleAfter != 10*time.Minute || s.WorkDelay != 0 {
		t.Errorf("StaleAfter=%v WorkDelay=%v", s.StaleAfter, s.WorkDelay)
	}
}

func TestConfigManager_ProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".agentkit.json"), `{
  // JSONC: comments and trailing commas are fine
  "agentsDir": "agents/defs",
  "launcher": "bin/launch",
  "lockDir": "/var/tmp/agents.lock",
  "defaultModel": "claude-opus-4",
  "lockWait": 5,
  "lockPoll": "250ms",
  "workDelay": 0.5,
}`)

	s, err := NewConfigManagerWithEnv(dir, nil).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.AgentsDir != filepath.Join(dir, "agents", "defs") {
		t.Errorf("AgentsDir = %q", s.AgentsDir)
	}
	if s.TemplatePath != filepath.Join(dir, "agents", "defs", "AGENT-TEMPLATE.md") {
		t.Errorf("TemplatePath should follow agentsDir, got %q", s.TemplatePath)
	}
	if s.LauncherPath != filepath.Join(dir, "bin", "launch") {
		t.Errorf("LauncherPath = %q", s.LauncherPath)
	}
	if s.LockDir != "/var/tmp/agents.lock" {
		t.Errorf("LockDir = %q", s.LockDir)
	}
	if s.DefaultModel != "claude-opus-4" {
		t.Errorf("DefaultModel = %q", s.DefaultModel)
	}
	if s.LockWait != 5*time.Second || s.LockPoll != 250*time.Millisecond || s.WorkDelay != 500*time.Millisecond {
		t.Errorf("LockWait=%v LockPoll=%v WorkDelay=%v", s.LockWait, s.LockPoll, s.WorkDelay)
	}
}

func TestConfigManager_ZeroWaitFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".agentkit.json"), `{"lockWait": 0}`)
	s, err := NewConfigManagerWithEnv(dir, nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.LockWait != 0 {
		t.Errorf("LockWait = %v, want 0", s.LockWait)
	}
}

func TestConfigManager_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".agentkit.json"), `{"lockWait": 5, "workDelay": 1}`)
	writeFile(t, filepath.Join(dir, ".env"), "LOCK_WAIT_SECONDS=7\nCREATE_AGENT_WORK_DELAY=2\n")

	s, err := NewConfigManagerWithEnv(dir, map[string]string{"LOCK_WAIT_SECONDS": "2"}).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.LockWait != 2*time.Second {
		t.Errorf("process env should win: LockWait = %v", s.LockWait)
	}
	if s.WorkDelay != 2*time.Second {
		t.Errorf(".env alias should beat the project file: WorkDelay = %v", s.WorkDelay)
	}
}

func TestConfigManager_EnvAliases(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{
		"CREATE_AGENT_LOCK_WAIT_SECS": "3",
		"CREATE_AGENT_LOCK_DIR":       "locks/agent.lock",
		"LOCK_POLL_INTERVAL":          "100ms",
	}
	s, err := NewConfigManagerWithEnv(dir, env).Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.LockWait != 3*time.Second {
		t.Errorf("LockWait = %v", s.LockWait)
	}
	if s.LockDir != filepath.Join(dir, "locks", "agent.lock") {
		t.Errorf("LockDir = %q", s.LockDir)
	}
	if s.LockPoll != 100*time.Millisecond {
		t.Errorf("LockPoll = %v", s.LockPoll)
	}

	env["LOCK_WAIT_SECONDS"] = "1"
	s, err = NewConfigManagerWithEnv(dir, env).Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.LockWait != time.Second {
		t.Errorf("canonical name should beat alias: LockWait = %v", s.LockWait)
	}
}

func TestConfigManager_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
		want string
	}{
		{name: "non-numeric wait", env: map[string]string{"LOCK_WAIT_SECONDS": "soon"}, want: "LOCK_WAIT_SECONDS"},
		{name: "negative delay", env: map[string]string{"WORK_DELAY": "-1"}, want: "WORK_DELAY"},
		{name: "zero poll", env: map[string]string{"LOCK_POLL_INTERVAL": "0"}, want: "poll"},
		{name: "broken JSONC", file: `{"lockWait": }`, want: ".agentkit.json"},
		{name: "unknown key", file: `{"lockwiat": 3}`, want: "lockwiat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, ".agentkit.json"), tt.file)
			}
			_, err := NewConfigManagerWithEnv(dir, tt.env).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.ClassOf(err) != errs.ClassUser {
				t.Errorf("class = %v, want user error", errs.ClassOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"3", 3 * time.Second, true},
		{"0.5", 500 * time.Millisecond, true},
		{" 2 ", 2 * time.Second, true},
		{"250ms", 250 * time.Millisecond, true},
		{"1m", time.Minute, true},
		{"0", 0, true},
		{"", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseDuration(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
