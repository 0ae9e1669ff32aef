// Package agent validates agent descriptors and renders agent definition
// files (YAML frontmatter + Markdown body) from the project template.
package agent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/barysiuk/agentkit/internal/errs"
)

// Name length bounds.
const (
	MinNameLen = 2
	MaxNameLen = 50
)

// Defaults applied when the caller leaves Model or Emoji empty.
const (
	DefaultModel = "claude-sonnet-4-5-20250929"
	DefaultEmoji = "🤖"
)

var (
	namePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)
	modelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/@-]*$`)
)

// Descriptor is the input of one agent creation.
type Descriptor struct {
	Name        string
	Description string
	Model       string
	Emoji       string
	Serena      bool
	DryRun      bool
	Force       bool
}

// WithDefaults returns d with empty Model and Emoji filled in.
func (d Descriptor) WithDefaults(model, emoji string) Descriptor {
	if model == "" {
		model = DefaultModel
	}
	if emoji == "" {
		emoji = DefaultEmoji
	}
	if d.Model == "" {
		d.Model = model
	}
	if d.Emoji == "" {
		d.Emoji = emoji
	}
	return d
}

// Validate checks the descriptor in a fixed order: name, description, model,
// emoji. The returned error is a user error naming the violated rule.
func (d Descriptor) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if strings.TrimSpace(d.Description) == "" {
		return errs.User("description is required").
			WithHint("pass a one-sentence description as the second argument")
	}
	if d.Model != "" && !modelPattern.MatchString(d.Model) {
		return errs.User("invalid model %q: must be a single identifier without spaces", d.Model)
	}
	if err := validateEmoji(d.Emoji); err != nil {
		return err
	}
	return nil
}

// ValidateName checks the agent name rules: lowercase letters, digits and
// hyphens, 2 to 50 characters, no leading or trailing hyphen.
func ValidateName(name string) error {
	if name == "" {
		return errs.User("agent name is required")
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return errs.User("invalid agent name %q: spaces are not allowed", name).
			WithHint("use kebab-case, e.g. my-agent")
	}
	if n := len(name); n > MaxNameLen {
		return errs.User("agent name is too long: %d characters (maximum %d characters)", n, MaxNameLen)
	}
	if len(name) < MinNameLen {
		return errs.User("invalid agent name %q: must be at least %d characters", name, MinNameLen)
	}
	if !namePattern.MatchString(name) {
		return errs.User("invalid agent name %q: use lowercase letters, digits and hyphens", name).
			WithHint("use kebab-case, e.g. my-agent")
	}
	return nil
}

// validateEmoji rejects icons that cannot be embedded in a double-quoted
// shell word.
func validateEmoji(emoji string) error {
	if emoji == "" {
		return nil
	}
	if strings.ContainsAny(emoji, "\"\\$`\n\r") {
		return errs.User("invalid emoji %q: quotes, backslashes, $ and backticks are not allowed", emoji)
	}
	if strings.ContainsFunc(emoji, unicode.IsSpace) {
		return errs.User("invalid emoji %q: whitespace is not allowed", emoji)
	}
	return nil
}

// DisplayName converts a kebab-case name into title case:
// "my-new-agent" becomes "My New Agent".
func DisplayName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
