package query

import (
	"strings"

	"github.com/jcdickinson/ferrisindex/internal/searchindex"
	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// Query is a parsed search query. A query is either a name query (Name set)
// or type-shaped (Typed set, matching function inputs and output).
type Query struct {
	Raw     string
	Kind    searchindex.Kind
	HasKind bool

	Name      string
	Qualifier string

	Typed  bool
	Inputs []typeref.TypeRef
	Output typeref.TypeRef
}

// Empty reports whether the query can match nothing.
func (q Query) Empty() bool {
	return q.Name == "" && !q.Typed
}

// Parse parses a query string. Accepted forms:
//
//	Token              name
//	wabbit::Token      qualified name
//	kind:fn parse      name restricted to a kind (also "fn:parse")
//	char -> WabbitType inputs and output
//	char, i32          inputs only
//	-> WabbitType      output only
//
// Anything that does not parse as one of the typed forms falls back to a
// name query.
func Parse(s string) Query {
	q := Query{Raw: s}
	s = strings.TrimSpace(s)

	if kind, rest, ok := splitKind(s); ok {
		q.Kind, q.HasKind = kind, true
		s = rest
	}
	if s == "" {
		return q
	}

	if typed, ok := parseTyped(s); ok {
		typed.Raw, typed.Kind, typed.HasKind = q.Raw, q.Kind, q.HasKind
		return typed
	}

	name := cleanName(s)
	if i := strings.LastIndex(name, "::"); i >= 0 {
		q.Qualifier = strings.Trim(name[:i], ":")
		name = name[i+2:]
	}
	q.Name = name
	return q
}

// splitKind strips a leading "kind:fn " or "fn:" filter.
func splitKind(s string) (searchindex.Kind, string, bool) {
	if rest, ok := strings.CutPrefix(s, "kind:"); ok {
		name, tail, _ := strings.Cut(rest, " ")
		if k, ok := searchindex.ParseKind(strings.ToLower(name)); ok {
			return k, strings.TrimSpace(tail), true
		}
		return 0, s, false
	}

	i := strings.IndexByte(s, ':')
	if i <= 0 || (i+1 < len(s) && s[i+1] == ':') {
		return 0, s, false
	}
	if k, ok := searchindex.ParseKind(strings.ToLower(s[:i])); ok {
		return k, strings.TrimSpace(s[i+1:]), true
	}
	return 0, s, false
}

func parseTyped(s string) (Query, bool) {
	in, out, arrow := strings.Cut(s, "->")
	inputs := splitTopLevel(in)
	if !arrow && len(inputs) < 2 {
		return Query{}, false
	}

	q := Query{Typed: true}
	for _, part := range inputs {
		t, err := typeref.ParseExpr(part)
		if err != nil {
			return Query{}, false
		}
		q.Inputs = append(q.Inputs, t)
	}
	if out = strings.TrimSpace(out); out != "" {
		t, err := typeref.ParseExpr(out)
		if err != nil {
			return Query{}, false
		}
		q.Output = t
	}
	if len(q.Inputs) == 0 && q.Output == nil {
		return Query{}, false
	}
	return q, true
}

// splitTopLevel splits on commas outside <>, () and [].
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cleanName keeps identifier characters and "::" separators.
func cleanName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			if (i+1 < len(s) && s[i+1] == ':') || (i > 0 && s[i-1] == ':') {
				b.WriteByte(c)
			}
		case c == '_',
			c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9':
			b.WriteByte(c)
		}
	}
	return strings.Trim(b.String(), ":")
}
