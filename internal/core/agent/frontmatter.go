package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed agent file: frontmatter map + Markdown body.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// Name returns the frontmatter name, if any.
func (d *Document) Name() string {
	s, _ := d.Frontmatter["name"].(string)
	return s
}

// Description returns the frontmatter description, if any.
func (d *Document) Description() string {
	s, _ := d.Frontmatter["description"].(string)
	return s
}

// Model returns the frontmatter model, if any.
func (d *Document) Model() string {
	s, _ := d.Frontmatter["model"].(string)
	return s
}

// ParseFile reads a Markdown file with YAML frontmatter.
func ParseFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse parses agent content. The source parameter is used only for error
// messages.
func Parse(raw []byte, source string) (*Document, error) {
	sp, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(sp.frontmatter), &fm); err != nil {
		return nil, fmt.Errorf("parsing frontmatter in %s: %w", source, err)
	}
	if fm == nil {
		fm = make(map[string]any)
	}

	body := sp.rest
	if strings.HasPrefix(body, "\r\n") {
		body = body[2:]
	} else if strings.HasPrefix(body, "\n") {
		body = body[1:]
	}
	return &Document{Frontmatter: fm, Body: body}, nil
}

// split holds the three raw pieces of a frontmatter document so that
// head + frontmatter + tail + rest reproduces the input byte for byte.
type split struct {
	head        string // everything up to and including the opening "---" line
	frontmatter string // YAML between the delimiters, newline-terminated
	tail        string // the closing "---"
	rest        string // everything after the closing delimiter
}

// splitFrontmatter locates the YAML frontmatter block. The document must
// start (after optional blank lines) with a "---" line.
func splitFrontmatter(content string) (split, error) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return split{}, fmt.Errorf("no frontmatter")
	}

	start := strings.Index(content, "---")
	headEnd := start + 3
	if strings.HasPrefix(content[headEnd:], "\r\n") {
		headEnd += 2
	} else if strings.HasPrefix(content[headEnd:], "\n") {
		headEnd++
	}
	rest := content[headEnd:]

	var end int
	if strings.HasPrefix(rest, "---") {
		end = 0
	} else {
		idx := strings.Index(rest, "\n---")
		if idx < 0 {
			return split{}, fmt.Errorf("no closing frontmatter delimiter")
		}
		end = idx + 1
	}

	return split{
		head:        content[:headEnd],
		frontmatter: rest[:end],
		tail:        "---",
		rest:        rest[end+3:],
	}, nil
}
