// Package core composes agent creation: settings resolution, the creation
// state machine, and the read-only views used by the operator commands.
// It has zero UI dependencies and is independently testable.
package core

import (
	"time"

	"github.com/barysiuk/agentkit/internal/core/agent"
)

// FileConfig is the optional project file .agentkit.json. All fields are
// optional; relative paths are resolved against the project directory.
type FileConfig struct {
	AgentsDir    string    `json:"agentsDir,omitempty"`
	Template     string    `json:"template,omitempty"`
	Launcher     string    `json:"launcher,omitempty"`
	LogsDir      string    `json:"logsDir,omitempty"`
	LockDir      string    `json:"lockDir,omitempty"`
	DefaultModel string    `json:"defaultModel,omitempty"`
	DefaultEmoji string    `json:"defaultEmoji,omitempty"`
	LockWait     *Duration `json:"lockWait,omitempty"`
	LockPoll     *Duration `json:"lockPoll,omitempty"`
	StaleAfter   *Duration `json:"staleAfter,omitempty"`
	WorkDelay    *Duration `json:"workDelay,omitempty"`
}

// Settings is the fully resolved configuration of one invocation. Paths are
// absolute.
type Settings struct {
	ProjectDir   string        `json:"projectDir"`
	AgentsDir    string        `json:"agentsDir"`
	TemplatePath string        `json:"template"`
	LauncherPath string        `json:"launcher"`
	LogsDir      string        `json:"logsDir"`
	LockDir      string        `json:"lockDir"`
	DefaultModel string        `json:"defaultModel"`
	DefaultEmoji string        `json:"defaultEmoji"`
	LockWait     time.Duration `json:"lockWait"`
	LockPoll     time.Duration `json:"lockPoll"`
	StaleAfter   time.Duration `json:"staleAfter"`
	CorruptGrace time.Duration `json:"corruptGrace"`
	WorkDelay    time.Duration `json:"workDelay"`
}

// Result describes a completed creation.
type Result struct {
	Agent           agent.Descriptor `json:"agent"`
	AgentPath       string           `json:"agentPath"`
	Overwritten     bool             `json:"overwritten"`
	LauncherChanged bool             `json:"launcherChanged"`
	Duration        time.Duration    `json:"duration"`
}

// Plan is what a dry run would do.
type Plan struct {
	Agent           agent.Descriptor `json:"agent"`
	AgentPath       string           `json:"agentPath"`
	Exists          bool             `json:"exists"`
	Content         string           `json:"content"`
	LauncherPath    string           `json:"launcherPath"`
	LauncherRegions []string         `json:"launcherRegions"`
}

// AgentInfo is a rendered agent found in the agents directory.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model,omitempty"`
	Path        string `json:"path"`
	Icon        string `json:"icon,omitempty"`
	InLauncher  bool   `json:"inLauncher"`
	Serena      bool   `json:"serena"`
}
