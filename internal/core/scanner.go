package core

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/barysiuk/agentkit/internal/core/agent"
	"github.com/barysiuk/agentkit/internal/core/launcher"
)

// agentGlob matches agent definitions directly under the agents directory.
const agentGlob = "*.md"

// Scanner lists the agents of a project.
type Scanner struct {
	settings *Settings
}

// NewScanner creates a Scanner for the given settings.
func NewScanner(s *Settings) *Scanner {
	return &Scanner{settings: s}
}

// ScanAgents reads every agent definition in the agents directory, skipping
// the template and files whose frontmatter does not parse. When the launcher
// is readable each agent is annotated with its launcher registration.
func (s *Scanner) ScanAgents() ([]AgentInfo, error) {
	dir := s.settings.AgentsDir
	matches, err := doublestar.Glob(os.DirFS(dir), agentGlob)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	report := s.launcherReport()
	template := filepath.Base(s.settings.TemplatePath)

	var out []AgentInfo
	for _, rel := range matches {
		if rel == template {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		doc, err := agent.ParseFile(path)
		if err != nil {
			continue
		}
		name := doc.Name()
		if name == "" {
			name = strings.TrimSuffix(rel, ".md")
		}
		info := AgentInfo{
			Name:        name,
			Description: doc.Description(),
			Model:       doc.Model(),
			Path:        path,
		}
		if report != nil {
			info.Icon = report.Icons[name]
			info.InLauncher = slices.Contains(report.Order, name)
			info.Serena = slices.Contains(report.Serena, name)
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindAgent returns the agent named name.
func (s *Scanner) FindAgent(name string) (*AgentInfo, error) {
	agents, err := s.ScanAgents()
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].Name == name {
			return &agents[i], nil
		}
	}
	return nil, fmt.Errorf("agent %q not found in %s", name, s.settings.AgentsDir)
}

func (s *Scanner) launcherReport() *launcher.Report {
	l, err := launcher.Load(s.settings.LauncherPath)
	if err != nil {
		return nil
	}
	r, err := l.Inspect()
	if err != nil {
		return nil
	}
	return r
}
