// Package launcher edits the bash launcher script that lists the project's
// agents. Three regions are managed:
//
//	agent_order=( ... )        every agent, in launch order
//	serena_agents=( ... )      agents started with Serena tooling
//	get_agent_icon() { case }  one "name) echo "emoji" ;;" item per agent
//
// The script is parsed with mvdan.cc/sh to locate the regions, and changes
// are spliced into the original bytes so that everything outside the edited
// lines is preserved exactly.
package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/barysiuk/agentkit/internal/core/fileutil"
)

// Region names.
const (
	OrderArray  = "agent_order"
	SerenaArray = "serena_agents"
	IconFunc    = "get_agent_icon"
)

// Indentation used when a region has no sibling entries to copy from.
const (
	arrayIndent = "    "
	caseIndent  = "        "
)

// ErrRegionNotFound is returned when the launcher lacks a managed region.
var ErrRegionNotFound = errors.New("launcher region not found")

// Launcher is a launcher script held in memory while it is being patched.
type Launcher struct {
	Path    string
	src     []byte
	orig    []byte
	changed map[string]bool
}

// Load reads and parses the launcher at path.
func Load(path string) (*Launcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading launcher: %w", err)
	}
	l := New(path, data)
	if _, err := l.parse(); err != nil {
		return nil, err
	}
	return l, nil
}

// New wraps launcher content that is already in memory.
func New(path string, src []byte) *Launcher {
	return &Launcher{
		Path:    path,
		src:     bytes.Clone(src),
		orig:    bytes.Clone(src),
		changed: make(map[string]bool),
	}
}

// Bytes returns the current, possibly patched, content.
func (l *Launcher) Bytes() []byte {
	return l.src
}

// Changed reports whether the content differs from what was loaded.
func (l *Launcher) Changed() bool {
	return !bytes.Equal(l.src, l.orig)
}

// ChangedRegions lists the regions touched by the patch so far.
func (l *Launcher) ChangedRegions() []string {
	var out []string
	for r := range l.changed {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Apply registers an agent in all three regions: it is listed once in the
// order, listed in the Serena subset iff serena is set, and mapped to emoji.
func (l *Launcher) Apply(name, emoji string, serena bool) error {
	if err := l.UpsertOrderEntry(name); err != nil {
		return err
	}
	if err := l.UpsertSubsetEntry(name, serena); err != nil {
		return err
	}
	return l.UpsertIconMapping(name, emoji)
}

// UpsertOrderEntry makes name appear exactly once in agent_order. A new
// entry goes last.
func (l *Launcher) UpsertOrderEntry(name string) error {
	return l.upsertArray(OrderArray, name, true)
}

// UpsertSubsetEntry makes name appear exactly once in serena_agents when
// enabled, and not at all otherwise.
func (l *Launcher) UpsertSubsetEntry(name string, enabled bool) error {
	return l.upsertArray(SerenaArray, name, enabled)
}

func (l *Launcher) upsertArray(array, name string, want bool) error {
	f, err := l.parse()
	if err != nil {
		return err
	}
	arr := findArray(f, array)
	if arr == nil {
		if !want {
			return nil
		}
		return fmt.Errorf("%w: %s=( ... ) in %s", ErrRegionNotFound, array, l.Path)
	}

	entries := arrayEntries(arr)
	var edits []edit
	found := false
	for _, e := range entries {
		if e.value != name {
			continue
		}
		if want && !found {
			found = true
			continue
		}
		edits = append(edits, l.removal(e.start, e.end))
	}
	if want && !found {
		edits = append(edits, l.arrayInsertion(arr, entries, name))
	}
	return l.apply(array, edits)
}

// UpsertIconMapping makes get_agent_icon map name to emoji through exactly
// one case item. A new item goes right before the "*)" default.
func (l *Launcher) UpsertIconMapping(name, emoji string) error {
	if strings.ContainsAny(emoji, "\"\\$`\n") {
		return fmt.Errorf("emoji %q cannot be embedded in a double-quoted shell word", emoji)
	}
	f, err := l.parse()
	if err != nil {
		return err
	}
	cc := findIconCase(f)
	if cc == nil {
		return fmt.Errorf("%w: case statement in %s() in %s", ErrRegionNotFound, IconFunc, l.Path)
	}

	line := iconLine(name, emoji)
	var (
		edits   []edit
		kept    bool
		defItem *syntax.CaseItem
	)
	for _, it := range cc.Items {
		pats := patterns(it)
		if len(pats) == 1 && pats[0] == "*" {
			defItem = it
			continue
		}
		idx := slices.Index(pats, name)
		if idx < 0 {
			continue
		}
		if len(it.Patterns) > 1 {
			// Shared item: detach name and give it its own item.
			edits = append(edits, patternRemoval(it, idx))
			continue
		}
		start, end := itemRange(l.src, it)
		if !kept {
			kept = true
			if cur, ok := itemEmoji(it); ok && cur == emoji {
				continue
			}
			edits = append(edits, edit{start: start, end: end, text: line})
			continue
		}
		edits = append(edits, l.removal(start, end))
	}
	if !kept {
		edits = append(edits, l.caseInsertion(cc, defItem, line))
	}
	return l.apply(IconFunc, edits)
}

// Save writes the patched launcher back atomically. A launcher without the
// owner write bit is refused even when nothing changed.
func (l *Launcher) Save() error {
	if err := fileutil.CheckWritable(l.Path); err != nil {
		return err
	}
	if !l.Changed() {
		return nil
	}
	if _, err := l.parse(); err != nil {
		return fmt.Errorf("patched launcher is invalid: %w", err)
	}
	return fileutil.WriteAtomic(l.Path, l.src, 0o755)
}

func (l *Launcher) parse() (*syntax.File, error) {
	p := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	f, err := p.Parse(bytes.NewReader(l.src), l.Path)
	if err != nil {
		return nil, fmt.Errorf("parsing launcher: %w", err)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Byte edits
// ---------------------------------------------------------------------------

type edit struct {
	start, end int
	text       string
}

func (l *Launcher) apply(region string, edits []edit) error {
	if len(edits) == 0 {
		return nil
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	src := l.src
	for _, e := range edits {
		var b bytes.Buffer
		b.Grow(len(src) - (e.end - e.start) + len(e.text))
		b.Write(src[:e.start])
		b.WriteString(e.text)
		b.Write(src[e.end:])
		src = b.Bytes()
	}
	prev := l.src
	l.src = src
	if _, err := l.parse(); err != nil {
		l.src = prev
		return fmt.Errorf("patching %s: %w", region, err)
	}
	l.changed[region] = true
	return nil
}

// removal deletes [start, end). When the span is the only thing on its
// line the whole line goes, otherwise the span and the blanks before it.
func (l *Launcher) removal(start, end int) edit {
	if _, ok := indentAt(l.src, start); ok && blankUntilEOL(l.src, end) {
		return edit{start: lineStart(l.src, start), end: lineEnd(l.src, end)}
	}
	s := start
	for s > 0 && (l.src[s-1] == ' ' || l.src[s-1] == '\t') {
		s--
	}
	return edit{start: s, end: end}
}

func (l *Launcher) arrayInsertion(arr *syntax.ArrayExpr, entries []arrayEntry, name string) edit {
	word := `"` + name + `"`
	indent := arrayIndent
	lastOnOwnLine := false
	if n := len(entries); n > 0 {
		if ind, ok := indentAt(l.src, entries[n-1].start); ok {
			indent = ind
			lastOnOwnLine = true
		}
	}

	rp := int(arr.Rparen.Offset())
	switch {
	case isLineStart(l.src, rp):
		ls := lineStart(l.src, rp)
		return edit{start: ls, end: ls, text: indent + word + "\n"}
	case len(entries) == 0:
		return edit{start: rp, end: rp, text: "\n" + indent + word + "\n"}
	case lastOnOwnLine:
		end := entries[len(entries)-1].end
		return edit{start: end, end: end, text: "\n" + indent + word}
	default:
		end := entries[len(entries)-1].end
		return edit{start: end, end: end, text: " " + word}
	}
}

func (l *Launcher) caseInsertion(cc *syntax.CaseClause, defItem *syntax.CaseItem, line string) edit {
	indent := caseIndent
	for _, it := range cc.Items {
		start, _ := itemRange(l.src, it)
		if ind, ok := indentAt(l.src, start); ok {
			indent = ind
			break
		}
	}

	anchor := int(cc.Esac.Offset())
	if defItem != nil {
		anchor, _ = itemRange(l.src, defItem)
	}
	if isLineStart(l.src, anchor) {
		ls := lineStart(l.src, anchor)
		return edit{start: ls, end: ls, text: indent + line + "\n"}
	}
	return edit{start: anchor, end: anchor, text: line + " "}
}

func iconLine(name, emoji string) string {
	return fmt.Sprintf(`%s) echo "%s" ;;`, name, emoji)
}

// ---------------------------------------------------------------------------
// Line helpers
// ---------------------------------------------------------------------------

func lineStart(src []byte, off int) int {
	return bytes.LastIndexByte(src[:off], '\n') + 1
}

func lineEnd(src []byte, off int) int {
	if i := bytes.IndexByte(src[off:], '\n'); i >= 0 {
		return off + i + 1
	}
	return len(src)
}

// indentAt returns the whitespace before off when off is the first
// non-blank byte on its line.
func indentAt(src []byte, off int) (string, bool) {
	prefix := src[lineStart(src, off):off]
	if len(bytes.Trim(prefix, " \t")) != 0 {
		return "", false
	}
	return string(prefix), true
}

func isLineStart(src []byte, off int) bool {
	_, ok := indentAt(src, off)
	return ok
}

func blankUntilEOL(src []byte, off int) bool {
	return len(bytes.TrimSpace(src[off:lineEnd(src, off)])) == 0
}
