package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/barysiuk/agentkit/internal/core/agent"
	"github.com/barysiuk/agentkit/internal/core/lock"
	"github.com/barysiuk/agentkit/internal/errs"
)

const (
	configFileName = ".agentkit.json"
	envFileName    = ".env"
)

// Default project layout.
const (
	DefaultAgentsDir = ".claude/agents"
	TemplateFileName = "AGENT-TEMPLATE.md"
	DefaultLauncher  = "agents/launch"
	DefaultLogsDir   = "logs"
)

// Environment keys. The CREATE_AGENT_* names are accepted as aliases.
const (
	EnvLockWait  = "LOCK_WAIT_SECONDS"
	EnvWorkDelay = "WORK_DELAY"
	EnvLockPoll  = "LOCK_POLL_INTERVAL"
	EnvLockDir   = "AGENT_LOCK_DIR"
)

var envAliases = map[string][]string{
	EnvLockWait:  {"CREATE_AGENT_LOCK_WAIT_SECS"},
	EnvWorkDelay: {"CREATE_AGENT_WORK_DELAY"},
	EnvLockDir:   {"CREATE_AGENT_LOCK_DIR"},
}

// Duration is a time.Duration that decodes from a number of seconds or a
// Go duration string.
type Duration time.Duration

// UnmarshalJSON accepts 3, 0.5, "3", "250ms".
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		s = v
	default:
		return fmt.Errorf("duration must be a number or string, got %s", data)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses plain seconds ("3", "0.5") or Go duration syntax
// ("250ms", "1m"). Negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	var d time.Duration
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(f * float64(time.Second))
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("expected seconds (e.g. 3, 0.5) or a duration (e.g. 250ms), got %q", s)
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %q", s)
	}
	return d, nil
}

// ConfigManager resolves Settings for a project directory. Sources, from
// lowest to highest precedence: built-in defaults, .agentkit.json, .env,
// process environment.
type ConfigManager struct {
	projectDir string
	lookupEnv  func(string) (string, bool)
}

// NewConfigManager creates a ConfigManager for projectDir reading the
// process environment.
func NewConfigManager(projectDir string) *ConfigManager {
	return &ConfigManager{projectDir: projectDir, lookupEnv: os.LookupEnv}
}

// NewConfigManagerWithEnv creates a ConfigManager with a custom environment.
// Useful for testing.
func NewConfigManagerWithEnv(projectDir string, env map[string]string) *ConfigManager {
	return &ConfigManager{
		projectDir: projectDir,
		lookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	}
}

// ConfigPath returns the full path to the project config file.
func (cm *ConfigManager) ConfigPath() string {
	return filepath.Join(cm.projectDir, configFileName)
}

// EnvPath returns the full path to the project .env file.
func (cm *ConfigManager) EnvPath() string {
	return filepath.Join(cm.projectDir, envFileName)
}

// Load resolves the settings. Malformed files and invalid values are user
// errors naming the offending source.
func (cm *ConfigManager) Load() (*Settings, error) {
	projectDir, err := filepath.Abs(cm.projectDir)
	if err != nil {
		return nil, errs.WrapSystem(err, "resolving project directory")
	}
	s := defaultSettings(projectDir)

	fc, err := cm.loadFile()
	if err != nil {
		return nil, err
	}
	s.applyFile(fc)

	dotenv, err := readEnvFile(cm.EnvPath())
	if err != nil {
		return nil, errs.User("parsing %s: %v", cm.EnvPath(), err)
	}
	env := &EnvResolver{lookup: cm.lookupEnv, file: dotenv}
	if err := s.applyEnv(env); err != nil {
		return nil, err
	}
	if s.LockPoll <= 0 {
		return nil, errs.User("lock poll interval must be positive")
	}
	return s, nil
}

func (cm *ConfigManager) loadFile() (*FileConfig, error) {
	path := cm.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, errs.WrapSystem(err, "reading %s", path)
	}

	root, err := hujson.Parse(data)
	if err != nil {
		return nil, errs.User("parsing %s: %v", path, err)
	}
	root.Standardize()

	var fc FileConfig
	dec := json.NewDecoder(strings.NewReader(string(root.Pack())))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return nil, errs.User("parsing %s: %v", path, err)
	}
	return &fc, nil
}

func defaultSettings(projectDir string) *Settings {
	agentsDir := filepath.Join(projectDir, DefaultAgentsDir)
	return &Settings{
		ProjectDir:   projectDir,
		AgentsDir:    agentsDir,
		TemplatePath: filepath.Join(agentsDir, TemplateFileName),
		LauncherPath: filepath.Join(projectDir, DefaultLauncher),
		LogsDir:      filepath.Join(projectDir, DefaultLogsDir),
		LockDir:      lock.DefaultDir(),
		DefaultModel: agent.DefaultModel,
		DefaultEmoji: agent.DefaultEmoji,
		LockWait:     30 * time.Second,
		LockPoll:     500 * time.Millisecond,
		StaleAfter:   10 * time.Minute,
		CorruptGrace: 2 * time.Second,
	}
}

func (s *Settings) applyFile(fc *FileConfig) {
	if fc.AgentsDir != "" {
		s.AgentsDir = s.abs(fc.AgentsDir)
		s.TemplatePath = filepath.Join(s.AgentsDir, TemplateFileName)
	}
	if fc.Template != "" {
		s.TemplatePath = s.abs(fc.Template)
	}
	if fc.Launcher != "" {
		s.LauncherPath = s.abs(fc.Launcher)
	}
	if fc.LogsDir != "" {
		s.LogsDir = s.abs(fc.LogsDir)
	}
	if fc.LockDir != "" {
		s.LockDir = s.abs(fc.LockDir)
	}
	if fc.DefaultModel != "" {
		s.DefaultModel = fc.DefaultModel
	}
	if fc.DefaultEmoji != "" {
		s.DefaultEmoji = fc.DefaultEmoji
	}
	if fc.LockWait != nil {
		s.LockWait = time.Duration(*fc.LockWait)
	}
	if fc.LockPoll != nil {
		s.LockPoll = time.Duration(*fc.LockPoll)
	}
	if fc.StaleAfter != nil {
		s.StaleAfter = time.Duration(*fc.StaleAfter)
	}
	if fc.WorkDelay != nil {
		s.WorkDelay = time.Duration(*fc.WorkDelay)
	}
}

func (s *Settings) applyEnv(env *EnvResolver) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvLockWait, &s.LockWait},
		{EnvWorkDelay, &s.WorkDelay},
		{EnvLockPoll, &s.LockPoll},
	}
	for _, d := range durations {
		v, ok := env.Lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := ParseDuration(v.Value)
		if err != nil {
			return errs.User("invalid %s (from %s): %v", v.Name, v.Source, err)
		}
		*d.dst = parsed
	}
	if v, ok := env.Lookup(EnvLockDir); ok && strings.TrimSpace(v.Value) != "" {
		s.LockDir = s.abs(v.Value)
	}
	return nil
}

func (s *Settings) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.ProjectDir, p)
}
