package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barysiuk/agentkit/internal/errs"
)

// legacyDefaultModel is the model literal older templates hardcode instead of
// a [model] placeholder.
const legacyDefaultModel = "claude-sonnet-4-20250514"

type values struct {
	name, display, description, model, emoji string
}

// placeholderPattern matches every token the renderer fills in. All tokens
// are replaced in one pass so inserted values are never scanned again.
var placeholderPattern = regexp.MustCompile(`\[agent-name\]|\[Agent Name\]|\[One sentence description[^\]\n]*\]|\[model\]|\[emoji\]|` +
	regexp.QuoteMeta(legacyDefaultModel))

// lookup returns the value that replaces the matched token.
func (v values) lookup(token string) string {
	switch {
	case token == "[agent-name]":
		return v.name
	case token == "[Agent Name]":
		return v.display
	case token == "[model]", token == legacyDefaultModel:
		return v.model
	case token == "[emoji]":
		return v.emoji
	default:
		return v.description
	}
}

// unresolvedPattern matches leftover placeholders: a bracketed kebab-case
// token ("[agent-name]") or a bracketed title-case phrase with spaces
// ("[One sentence description]"). YAML flow lists such as "[Read, Write]"
// do not match.
var unresolvedPattern = regexp.MustCompile(`\[(?:[a-z0-9]+(?:-[a-z0-9]+)+|[A-Z][a-z]*(?: [A-Za-z0-9][A-Za-z0-9'.,/()-]*)+)\]`)

// frontmatterLine matches a top-level or nested "key: value" line.
var frontmatterLine = regexp.MustCompile(`^(\s*)([A-Za-z0-9_-]+)(:[ \t]*)(.*?)\s*$`)

// Template is a loaded agent template.
type Template struct {
	Path    string
	content string
}

// LoadTemplate reads the template at path. A missing or unreadable template
// is a system error: the project is broken regardless of the input.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.System("agent template not found at %s", path).
				WithHint("restore the template file before creating agents")
		}
		return nil, errs.WrapSystem(err, "reading agent template %s", path)
	}
	return &Template{Path: path, content: string(data)}, nil
}

// NewTemplate wraps template content that did not come from disk.
func NewTemplate(content string) *Template {
	return &Template{Path: "<inline>", content: content}
}

// Render substitutes the descriptor into the template. Substitution is
// literal: path separators, ampersands and backslashes in the description
// come out verbatim. Values placed in the frontmatter are YAML-encoded so
// they cannot break the mapping. Any placeholder left in the frontmatter or
// the first heading is a system error.
func (t *Template) Render(d Descriptor) ([]byte, error) {
	sp, err := splitFrontmatter(t.content)
	if err != nil {
		return nil, errs.System("agent template %s is broken: %v", t.Path, err)
	}

	// Scan a rendering with neutral values first so user text can never be
	// mistaken for a leftover placeholder.
	neutral := values{name: "x", display: "x", description: "x", model: "x", emoji: "x"}
	neutralFM, _, err := renderFrontmatter(sp.frontmatter, neutral)
	if err != nil {
		return nil, errs.System("agent template %s is broken: %v", t.Path, err)
	}
	neutralBody := substitute(sp.rest, neutral)
	if left := unresolved(neutralFM + "\n" + header(neutralBody)); len(left) > 0 {
		return nil, errs.System("agent template %s has unresolved placeholders: %s",
			t.Path, strings.Join(left, ", "))
	}

	v := values{
		name:        d.Name,
		display:     DisplayName(d.Name),
		description: d.Description,
		model:       d.Model,
		emoji:       d.Emoji,
	}
	fm, expected, err := renderFrontmatter(sp.frontmatter, v)
	if err != nil {
		return nil, errs.WrapSystem(err, "rendering frontmatter")
	}
	if err := verifyFrontmatter(fm, expected); err != nil {
		return nil, errs.WrapSystem(err, "rendered frontmatter of %s", t.Path)
	}

	var b strings.Builder
	b.WriteString(sp.head)
	b.WriteString(fm)
	b.WriteString(sp.tail)
	b.WriteString(substitute(sp.rest, v))
	return []byte(b.String()), nil
}

// substitute replaces every placeholder in s literally, in a single pass.
func substitute(s string, v values) string {
	return placeholderPattern.ReplaceAllStringFunc(s, v.lookup)
}

func hasPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// renderFrontmatter substitutes placeholders line by line. For "key: value"
// lines whose value contains a placeholder, the whole substituted value is
// re-encoded as a YAML scalar. It returns the rendered block and, for
// top-level keys it re-encoded, the string each must decode to. A value that
// is a single placeholder must decode to the descriptor field itself.
func renderFrontmatter(fm string, v values) (string, map[string]string, error) {
	expected := make(map[string]string)
	lines := strings.SplitAfter(fm, "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		eol := line[len(body):]

		m := frontmatterLine.FindStringSubmatch(body)
		if m == nil || !hasPlaceholder(m[4]) {
			lines[i] = substitute(line, v)
			continue
		}
		indent, key, sep, raw := m[1], m[2], m[3], m[4]

		if strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, `'`) {
			var unquoted string
			if err := yaml.Unmarshal([]byte(raw), &unquoted); err != nil {
				return "", nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			raw = unquoted
		}
		value := substitute(raw, v)
		scalar, err := yamlScalar(value)
		if err != nil {
			return "", nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		if sep == ":" {
			sep = ": "
		}
		lines[i] = indent + key + sep + scalar + eol
		if indent == "" {
			expected[key] = value
			if placeholderPattern.FindString(raw) == raw {
				expected[key] = v.lookup(raw)
			}
		}
	}
	return strings.Join(lines, ""), expected, nil
}

// yamlScalar encodes s as a YAML string scalar: plain when that reads back
// as the same string, quoted otherwise. Values that would not fit on one line
// fall back to a JSON string, which is a valid YAML double-quoted scalar.
func yamlScalar(s string) (string, error) {
	if !strings.ContainsAny(s, "\n\r") {
		out, err := yaml.Marshal(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s})
		if err != nil {
			return "", err
		}
		if enc := strings.TrimSuffix(string(out), "\n"); !strings.Contains(enc, "\n") {
			return enc, nil
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// verifyFrontmatter checks the rendered block is valid YAML and that each
// substituted top-level value decodes to exactly what was substituted.
func verifyFrontmatter(fm string, expected map[string]string) error {
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	for key, want := range expected {
		got, ok := parsed[key].(string)
		if !ok || got != want {
			return fmt.Errorf("field %q decodes to %v, want %q", key, parsed[key], want)
		}
	}
	return nil
}

// header returns the first Markdown heading line of body, or "".
func header(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return line
		}
	}
	return ""
}

// unresolved returns the placeholder-like tokens left in s, ignoring
// Markdown links ("[text](url)").
func unresolved(s string) []string {
	var found []string
	for _, loc := range unresolvedPattern.FindAllStringIndex(s, -1) {
		if loc[1] < len(s) && s[loc[1]] == '(' {
			continue
		}
		found = append(found, s[loc[0]:loc[1]])
	}
	return found
}
