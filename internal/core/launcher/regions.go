package launcher

import (
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type arrayEntry struct {
	value      string
	start, end int
}

// findArray returns the first "name=( ... )" assignment, including ones
// made through declare/local.
func findArray(f *syntax.File, name string) *syntax.ArrayExpr {
	var found *syntax.ArrayExpr
	syntax.Walk(f, func(n syntax.Node) bool {
		if found != nil {
			return false
		}
		if a, ok := n.(*syntax.Assign); ok && !a.Append && a.Name != nil && a.Name.Value == name && a.Array != nil {
			found = a.Array
			return false
		}
		return true
	})
	return found
}

func arrayEntries(arr *syntax.ArrayExpr) []arrayEntry {
	var out []arrayEntry
	for _, el := range arr.Elems {
		if el.Value == nil {
			continue
		}
		v, ok := wordLiteral(el.Value)
		if !ok {
			continue
		}
		out = append(out, arrayEntry{
			value: v,
			start: int(el.Value.Pos().Offset()),
			end:   int(el.Value.End().Offset()),
		})
	}
	return out
}

// findIconCase returns the first case statement inside get_agent_icon().
func findIconCase(f *syntax.File) *syntax.CaseClause {
	var fn *syntax.FuncDecl
	syntax.Walk(f, func(n syntax.Node) bool {
		if fn != nil {
			return false
		}
		if d, ok := n.(*syntax.FuncDecl); ok && d.Name != nil && d.Name.Value == IconFunc {
			fn = d
			return false
		}
		return true
	})
	if fn == nil {
		return nil
	}

	var cc *syntax.CaseClause
	syntax.Walk(fn.Body, func(n syntax.Node) bool {
		if cc != nil {
			return false
		}
		if c, ok := n.(*syntax.CaseClause); ok {
			cc = c
			return false
		}
		return true
	})
	return cc
}

// patterns returns the literal patterns of a case item. Dynamic patterns
// come back as "".
func patterns(it *syntax.CaseItem) []string {
	out := make([]string, len(it.Patterns))
	for i, p := range it.Patterns {
		out[i], _ = wordLiteral(p)
	}
	return out
}

// itemRange returns the byte span of a case item, from its first pattern
// (or the optional opening paren) through its ";;".
func itemRange(src []byte, it *syntax.CaseItem) (int, int) {
	start := int(it.Pos().Offset())
	if start > 0 && src[start-1] == '(' {
		start--
	}
	return start, int(it.End().Offset())
}

// patternRemoval drops pattern idx together with one adjacent "|".
func patternRemoval(it *syntax.CaseItem, idx int) edit {
	p := it.Patterns[idx]
	if idx < len(it.Patterns)-1 {
		return edit{start: int(p.Pos().Offset()), end: int(it.Patterns[idx+1].Pos().Offset())}
	}
	return edit{start: int(it.Patterns[idx-1].End().Offset()), end: int(p.End().Offset())}
}

// itemEmoji extracts X from an item whose body is exactly `echo "X"`.
func itemEmoji(it *syntax.CaseItem) (string, bool) {
	if len(it.Stmts) != 1 {
		return "", false
	}
	call, ok := it.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) != 2 {
		return "", false
	}
	if cmd, _ := wordLiteral(call.Args[0]); cmd != "echo" {
		return "", false
	}
	return wordLiteral(call.Args[1])
}

// wordLiteral returns the value of a word made only of literal and quoted
// literal parts.
func wordLiteral(w *syntax.Word) (string, bool) {
	if w == nil {
		return "", false
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				lit, ok := qp.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Report describes the managed regions of a launcher.
type Report struct {
	Order       []string          `json:"agent_order"`
	Serena      []string          `json:"serena_agents"`
	Icons       map[string]string `json:"icons"`
	DefaultIcon string            `json:"default_icon,omitempty"`
	Problems    []string          `json:"problems,omitempty"`
}

// OK reports whether no problems were found.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Inspect parses the launcher and reports its regions. Structural issues
// (missing regions, duplicate entries) are collected as problems; only a
// parse failure is returned as an error.
func (l *Launcher) Inspect() (*Report, error) {
	f, err := l.parse()
	if err != nil {
		return nil, err
	}
	r := &Report{Icons: make(map[string]string)}

	if arr := findArray(f, OrderArray); arr != nil {
		r.Order = values(arrayEntries(arr))
		r.duplicates(OrderArray, r.Order)
	} else {
		r.Problems = append(r.Problems, fmt.Sprintf("%s=( ... ) not found", OrderArray))
	}

	if arr := findArray(f, SerenaArray); arr != nil {
		r.Serena = values(arrayEntries(arr))
		r.duplicates(SerenaArray, r.Serena)
	} else {
		r.Problems = append(r.Problems, fmt.Sprintf("%s=( ... ) not found", SerenaArray))
	}

	cc := findIconCase(f)
	if cc == nil {
		r.Problems = append(r.Problems, fmt.Sprintf("case statement in %s() not found", IconFunc))
		return r, nil
	}
	var mapped []string
	for _, it := range cc.Items {
		emoji, _ := itemEmoji(it)
		for _, p := range patterns(it) {
			if p == "*" {
				r.DefaultIcon = emoji
				continue
			}
			if p == "" {
				continue
			}
			mapped = append(mapped, p)
			if _, seen := r.Icons[p]; !seen {
				r.Icons[p] = emoji
			}
		}
	}
	r.duplicates(IconFunc, mapped)
	return r, nil
}

func (r *Report) duplicates(region string, names []string) {
	counts := make(map[string]int)
	for _, n := range names {
		counts[n]++
	}
	var dups []string
	for n, c := range counts {
		if c > 1 {
			dups = append(dups, fmt.Sprintf("%s lists %q %d times", region, n, c))
		}
	}
	sort.Strings(dups)
	r.Problems = append(r.Problems, dups...)
}

// Verify checks that name is registered exactly as Apply(name, emoji,
// serena) leaves it.
func (l *Launcher) Verify(name, emoji string, serena bool) error {
	r, err := l.Inspect()
	if err != nil {
		return err
	}
	if n := count(r.Order, name); n != 1 {
		return fmt.Errorf("%s lists %q %d times, want 1", OrderArray, name, n)
	}
	want := 0
	if serena {
		want = 1
	}
	if n := count(r.Serena, name); n != want {
		return fmt.Errorf("%s lists %q %d times, want %d", SerenaArray, name, n, want)
	}
	if got, ok := r.Icons[name]; !ok || got != emoji {
		return fmt.Errorf("%s maps %q to %q, want %q", IconFunc, name, got, emoji)
	}
	for _, p := range r.Problems {
		if strings.Contains(p, fmt.Sprintf("%q", name)) {
			return fmt.Errorf("launcher: %s", p)
		}
	}
	return nil
}

func values(entries []arrayEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func count(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}
