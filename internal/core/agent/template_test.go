package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/barysiuk/agentkit/internal/errs"
)

const sampleTemplate = `---
name: [agent-name]
description: [One sentence description of what this agent does]
model: claude-sonnet-4-20250514
tools: [Read, Write, Bash]
---

# [Agent Name]

[emoji] You are [Agent Name]. Read [the guide](docs/guide.md) first.

## Responsibilities

- [Add responsibilities here]
`

func renderSample(t *testing.T, d Descriptor) (string, *Document) {
	t.Helper()
	out, err := NewTemplate(sampleTemplate).Render(d)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc, err := Parse(out, "rendered.md")
	if err != nil {
		t.Fatalf("rendered output does not parse: %v\n%s", err, out)
	}
	return string(out), doc
}

// ---------------------------------------------------------------------------
// Substitution
// ---------------------------------------------------------------------------

func TestRender_ReplacesPlaceholders(t *testing.T) {
	out, doc := renderSample(t, Descriptor{
		Name:        "my-new-agent",
		Description: "Plans the work",
		Model:       "claude-opus-4",
		Emoji:       "📋",
	})

	if doc.Name() != "my-new-agent" {
		t.Errorf("name = %q", doc.Name())
	}
	if doc.Description() != "Plans the work" {
		t.Errorf("description = %q", doc.Description())
	}
	if doc.Model() != "claude-opus-4" {
		t.Errorf("model = %q (legacy literal not replaced)", doc.Model())
	}
	if !strings.Contains(out, "# My New Agent\n") {
		t.Errorf("heading not rendered:\n%s", out)
	}
	if !strings.Contains(out, "📋 You are My New Agent.") {
		t.Errorf("emoji not rendered:\n%s", out)
	}
	if strings.Contains(out, "claude-sonnet-4-20250514") {
		t.Error("legacy model literal left in output")
	}

	tools, ok := doc.Frontmatter["tools"].([]any)
	if !ok || len(tools) != 3 {
		t.Errorf("tools flow list changed: %#v", doc.Frontmatter["tools"])
	}
	// Body text that only looks like a placeholder is left alone.
	if !strings.Contains(out, "- [Add responsibilities here]") {
		t.Error("body content outside the header was modified")
	}
}

func TestRender_SpecialCharactersVerbatim(t *testing.T) {
	descs := []string{
		`Handles paths like src/a/b & c\d`,
		`Uses: colons # and hashes`,
		`Quote "this" and 'that'`,
		`$HOME and \1 and ${x}`,
		`- starts like a list item`,
		`123`,
	}
	for _, desc := range descs {
		t.Run(desc, func(t *testing.T) {
			out, doc := renderSample(t, Descriptor{
				Name:        "special-agent",
				Description: desc,
				Model:       DefaultModel,
				Emoji:       DefaultEmoji,
			})
			if doc.Description() != desc {
				t.Errorf("description decoded as %q, want %q", doc.Description(), desc)
			}
			sp, err := splitFrontmatter(out)
			if err != nil {
				t.Fatal(err)
			}
			if left := unresolved(sp.frontmatter + "\n" + header(sp.rest)); len(left) > 0 {
				t.Errorf("placeholder-like tokens left: %v", left)
			}
		})
	}
}

func TestRender_SlashAmpersandBackslashAppearUnescaped(t *testing.T) {
	desc := `a/b & c\d`
	out, _ := renderSample(t, Descriptor{Name: "plain-agent", Description: desc, Model: DefaultModel, Emoji: DefaultEmoji})
	if !strings.Contains(out, "description: "+desc+"\n") {
		t.Errorf("description not written verbatim:\n%s", out)
	}
}

func TestRender_DescriptionThatLooksLikePlaceholder(t *testing.T) {
	desc := "[Agent Name] helper for [agent-name] tokens"
	_, doc := renderSample(t, Descriptor{Name: "meta-agent", Description: desc, Model: DefaultModel, Emoji: DefaultEmoji})
	if doc.Description() != desc {
		t.Errorf("description = %q, want %q", doc.Description(), desc)
	}
}

func TestRender_InsertedTextIsNotSubstitutedAgain(t *testing.T) {
	descs := []string{
		"Picks the [model] and [emoji] per task",
		"Migrates prompts off claude-sonnet-4-20250514",
		"Renames [agent-name] and [Agent Name] references",
		"Fills [One sentence description] fields",
	}
	for _, desc := range descs {
		t.Run(desc, func(t *testing.T) {
			out, doc := renderSample(t, Descriptor{
				Name:        "token-agent",
				Description: desc,
				Model:       "claude-opus-4",
				Emoji:       "📋",
			})
			if doc.Description() != desc {
				t.Errorf("description = %q, want %q", doc.Description(), desc)
			}
			if doc.Model() != "claude-opus-4" {
				t.Errorf("model = %q", doc.Model())
			}
			if !strings.Contains(out, "📋 You are Token Agent.") {
				t.Errorf("body not rendered:\n%s", out)
			}
		})
	}
}

func TestSubstitute_SinglePass(t *testing.T) {
	v := values{name: "[emoji]", display: "[model]", description: "d", model: "m", emoji: "e"}
	got := substitute("[agent-name] / [Agent Name] / [emoji]", v)
	if want := "[emoji] / [model] / e"; got != want {
		t.Errorf("substitute = %q, want %q", got, want)
	}
}

func TestRender_QuotedPlaceholderValue(t *testing.T) {
	tpl := "---\nname: \"[agent-name]\"\ndescription: '[One sentence description]'\n---\n# [Agent Name]\n"
	out, err := NewTemplate(tpl).Render(Descriptor{Name: "quoted", Description: "it's fine", Model: "m", Emoji: "x"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc, err := Parse(out, "quoted.md")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name() != "quoted" || doc.Description() != "it's fine" {
		t.Errorf("got name=%q description=%q", doc.Name(), doc.Description())
	}
}

// ---------------------------------------------------------------------------
// Broken templates
// ---------------------------------------------------------------------------

func TestRender_UnresolvedPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{
			name: "frontmatter kebab token",
			tpl:  "---\nname: [agent-name]\nrole: [agent-role]\n---\n# [Agent Name]\n",
			want: "[agent-role]",
		},
		{
			name: "frontmatter title phrase",
			tpl:  "---\nname: [agent-name]\nowner: [Team Owner]\n---\n# [Agent Name]\n",
			want: "[Team Owner]",
		},
		{
			name: "heading",
			tpl:  "---\nname: [agent-name]\n---\n# [Agent Title Here]\n",
			want: "[Agent Title Here]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate(tt.tpl).Render(Descriptor{Name: "x1", Description: "d", Model: "m", Emoji: "e"})
			if err == nil {
				t.Fatal("expected error for unresolved placeholder")
			}
			if errs.ClassOf(err) != errs.ClassSystem {
				t.Errorf("class = %v, want system error", errs.ClassOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %s", err, tt.want)
			}
		})
	}
}

func TestRender_MarkdownLinkInHeadingIsNotPlaceholder(t *testing.T) {
	tpl := "---\nname: [agent-name]\n---\n# [Agent Name] see [Style Guide](docs/style.md)\n"
	if _, err := NewTemplate(tpl).Render(Descriptor{Name: "linker", Description: "d", Model: "m", Emoji: "e"}); err != nil {
		t.Errorf("markdown link flagged: %v", err)
	}
}

func TestRender_NoFrontmatter(t *testing.T) {
	_, err := NewTemplate("# [Agent Name]\n").Render(Descriptor{Name: "x1", Description: "d"})
	if errs.ClassOf(err) != errs.ClassSystem {
		t.Errorf("expected system error, got %v", err)
	}
}

func TestLoadTemplate_Missing(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "AGENT-TEMPLATE.md"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.ExitCode(err) != errs.ExitSystem {
		t.Errorf("exit code = %d, want %d", errs.ExitCode(err), errs.ExitSystem)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "template") {
		t.Errorf("error does not mention the template: %v", err)
	}
}

func TestLoadTemplate_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AGENT-TEMPLATE.md")
	if err := os.WriteFile(path, []byte(sampleTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	tpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if tpl.Path != path {
		t.Errorf("Path = %q", tpl.Path)
	}
	if _, err := tpl.Render(Descriptor{Name: "disk-agent", Description: "From disk", Model: "m", Emoji: "e"}); err != nil {
		t.Errorf("Render: %v", err)
	}
}

func TestYAMLScalar(t *testing.T) {
	tests := map[string]string{
		"plain text":  "plain text",
		"a/b & c":     "a/b & c",
		"key: value":  "'key: value'",
		"true":        `"true"`,
		"line1\nline2": `"line1\nline2"`,
	}
	for in, want := range tests {
		got, err := yamlScalar(in)
		if err != nil {
			t.Fatalf("yamlScalar(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("yamlScalar(%q) = %s, want %s", in, got, want)
		}
	}
}
