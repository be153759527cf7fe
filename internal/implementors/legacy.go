package implementors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// ParseLegacyShardJS parses a rustdoc implementors/**/trait.*.js file into
// one Shard per crate, in file order. Each entry is [headerHTML] or
// [headerHTML, synthetic, [typePath...]]. fallbackTrait is used for headers
// whose trait is not linked.
func ParseLegacyShardJS(data []byte, fallbackTrait string) ([]Shard, error) {
	start := bytes.Index(data, []byte("implementors"))
	if start < 0 {
		return nil, fmt.Errorf("implementor shard: no implementors object found")
	}
	brace := bytes.IndexByte(data[start:], '{')
	if brace < 0 {
		return nil, fmt.Errorf("implementor shard: no implementors object found")
	}

	var body json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(data[start+brace:])).Decode(&body); err != nil {
		return nil, fmt.Errorf("implementor shard: %w", err)
	}
	crates := orderedmap.New[string, [][]json.RawMessage]()
	if err := crates.UnmarshalJSON(body); err != nil {
		return nil, fmt.Errorf("implementor shard: %w", err)
	}

	var shards []Shard
	for pair := crates.Oldest(); pair != nil; pair = pair.Next() {
		shard := Shard{Crate: pair.Key}
		for i, raw := range pair.Value {
			e, err := parseLegacyEntry(raw, fallbackTrait)
			if err != nil {
				return nil, &RegistryMisuseError{Crate: pair.Key, Index: i, Reason: err.Error()}
			}
			shard.Entries = append(shard.Entries, e)
		}
		shards = append(shards, shard)
	}
	return shards, nil
}

// TraitPathFromFile derives "core::clone::Clone" from a shard file path
// such as "implementors/core/clone/trait.Clone.js".
func TraitPathFromFile(path string) string {
	path = filepath.ToSlash(path)
	if i := strings.LastIndex(path, "implementors/"); i >= 0 {
		path = path[i+len("implementors/"):]
	}
	dir, file := filepath.Split(path)
	file = strings.TrimSuffix(strings.TrimSuffix(file, ".js"), ".json")
	name := file
	if i := strings.IndexByte(file, '.'); i >= 0 {
		name = file[i+1:]
	}
	segments := strings.FieldsFunc(dir, func(r rune) bool { return r == '/' })
	return strings.Join(append(segments, name), "::")
}

func parseLegacyEntry(fields []json.RawMessage, fallbackTrait string) (Entry, error) {
	if len(fields) == 0 {
		return Entry{}, fmt.Errorf("empty implementor entry")
	}
	var header string
	if err := json.Unmarshal(fields[0], &header); err != nil {
		return Entry{}, fmt.Errorf("implementor header: %w", err)
	}

	e, err := ParseImplHeader(header)
	if err != nil {
		return Entry{}, err
	}
	if e.TraitPath == "" {
		e.TraitPath = fallbackTrait
	}

	if len(fields) > 1 {
		var synthetic any
		if err := json.Unmarshal(fields[1], &synthetic); err != nil {
			return Entry{}, fmt.Errorf("implementor synthetic flag: %w", err)
		}
		switch v := synthetic.(type) {
		case bool:
			e.Synthetic = v
		case float64:
			e.Synthetic = v != 0
		}
	}
	if len(fields) > 2 {
		if err := json.Unmarshal(fields[2], &e.AutoTraitDependencies); err != nil {
			return Entry{}, fmt.Errorf("implementor types: %w", err)
		}
	}
	return e, nil
}

type anchor struct {
	offset int
	class  string
	title  string
	text   string
}

// ParseImplHeader parses a rustdoc impl header such as
// `impl&lt;T: <a title="trait core::clone::Clone">Clone</a>&gt; ...`.
// Paths come from the link titles; types and bounds from the text.
func ParseImplHeader(src string) (Entry, error) {
	nodes, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("parsing impl header: %w", err)
	}

	var (
		header, where strings.Builder
		anchors       []anchor
	)
	var walk func(n *html.Node, inWhere bool)
	walk = func(n *html.Node, inWhere bool) {
		switch {
		case n.Type == html.TextNode:
			if inWhere {
				where.WriteString(n.Data)
			} else {
				header.WriteString(n.Data)
			}
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Span && hasClass(n, "where"):
			inWhere = true
		case n.Type == html.ElementNode && n.DataAtom == atom.A && !inWhere:
			anchors = append(anchors, anchor{
				offset: header.Len(),
				class:  attr(n, "class"),
				title:  attr(n, "title"),
				text:   textOf(n),
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inWhere)
		}
	}
	for _, n := range nodes {
		walk(n, false)
	}

	e, err := parseHeaderText(header.String(), where.String(), anchors)
	if err != nil {
		return Entry{}, err
	}
	e.Text = strings.Join(strings.Fields(header.String()+" "+where.String()), " ")
	return e, nil
}

func parseHeaderText(header, where string, anchors []anchor) (Entry, error) {
	rest, ok := strings.CutPrefix(strings.TrimLeft(header, " \n\t"), "impl")
	if !ok {
		return Entry{}, fmt.Errorf("impl header %q does not start with impl", header)
	}
	offset := len(header) - len(rest)

	var genericsText string
	if trimmed := strings.TrimLeft(rest, " "); strings.HasPrefix(trimmed, "<") {
		end := matchingClose(trimmed)
		if end < 0 {
			return Entry{}, fmt.Errorf("impl header %q: unbalanced generics", header)
		}
		genericsText = trimmed[1:end]
		offset += len(rest) - len(trimmed) + end + 1
		rest = trimmed[end+1:]
	}

	forIdx := topLevelIndex(rest, " for ")
	if forIdx < 0 {
		return Entry{}, fmt.Errorf("impl header %q has no for clause", header)
	}
	traitText := strings.TrimSpace(rest[:forIdx])
	typeText := strings.TrimSpace(rest[forIdx+len(" for "):])
	traitOffset, forOffset := offset, offset+forIdx

	var e Entry
	if t, ok := strings.CutPrefix(traitText, "!"); ok {
		e.Negative = true
		traitText = t
	}

	params, err := parseGenericParams(genericsText)
	if err != nil {
		return Entry{}, err
	}
	e.GenericParams = params
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}

	if e.Trait, err = typeref.ParseExpr(traitText, names...); err != nil {
		return Entry{}, err
	}
	if e.ForType, err = typeref.ParseExpr(typeText, names...); err != nil {
		return Entry{}, err
	}

	for _, a := range anchors {
		switch {
		case a.offset >= traitOffset && a.offset < forOffset && e.TraitPath == "" && a.class == "trait":
			e.TraitPath = titlePath(a.title)
		case a.offset > forOffset && e.ForTypePath == "":
			e.ForTypePath = titlePath(a.title)
			if e.ForTypePath == "" {
				e.ForTypePath = a.text
			}
		}
	}
	if e.ForTypePath == "" {
		e.ForTypePath = nameOf(e.ForType)
	}
	e.Trait = withPath(e.Trait, e.TraitPath)
	e.ForType = withPath(e.ForType, e.ForTypePath)

	if e.WhereClauses, err = parseWhere(where, names); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func parseGenericParams(s string) ([]GenericParam, error) {
	type rawParam struct {
		name, bounds string
		isConst      bool
	}
	var raw []rawParam
	var names []string
	for _, part := range splitTopLevel(s, ',') {
		if strings.HasPrefix(part, "'") {
			continue
		}
		rest, isConst := strings.CutPrefix(part, "const ")
		name, bounds, _ := cutBound(rest)
		raw = append(raw, rawParam{name: name, bounds: bounds, isConst: isConst})
		names = append(names, name)
	}

	out := make([]GenericParam, len(raw))
	for i, r := range raw {
		out[i].Name = r.name
		if r.isConst {
			continue
		}
		bounds, err := parseBounds(r.bounds, names)
		if err != nil {
			return nil, err
		}
		out[i].Bounds = bounds
	}
	return out, nil
}

func parseWhere(s string, generics []string) ([]WhereClause, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "where")
	var out []WhereClause
	for _, part := range splitTopLevel(s, ',') {
		lhs, rhs, ok := cutBound(part)
		if !ok || strings.HasPrefix(lhs, "'") {
			continue
		}
		ty, err := typeref.ParseExpr(lhs, generics...)
		if err != nil {
			return nil, fmt.Errorf("where clause %q: %w", part, err)
		}
		bounds, err := parseBounds(rhs, generics)
		if err != nil {
			return nil, err
		}
		for _, b := range bounds {
			out = append(out, WhereClause{Type: ty, Bound: b})
		}
	}
	return out, nil
}

func parseBounds(s string, generics []string) ([]typeref.TypeRef, error) {
	var out []typeref.TypeRef
	for _, b := range splitTopLevel(s, '+') {
		if strings.HasPrefix(b, "'") || strings.HasPrefix(b, "?") {
			continue
		}
		t, err := typeref.ParseExpr(b, generics...)
		if err != nil {
			return nil, fmt.Errorf("bound %q: %w", b, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// cutBound splits "T: Clone" at the first single colon.
func cutBound(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if i+1 < len(s) && s[i+1] == ':' {
			i++
			continue
		}
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
	}
	return strings.TrimSpace(s), "", false
}

// splitTopLevel splits s on sep outside <>, () and [], dropping empty parts.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		if part := strings.TrimSpace(s[start:end]); part != "" {
			out = append(out, part)
		}
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case sep:
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	return out
}

func topLevelIndex(s, needle string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], needle) {
			return i
		}
	}
	return -1
}

func matchingClose(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// titlePath turns a link title such as "enum wabbit::ops::LoopControl" into
// the path.
func titlePath(title string) string {
	if _, path, ok := strings.Cut(title, " "); ok {
		return path
	}
	return title
}

func withPath(t typeref.TypeRef, path string) typeref.TypeRef {
	if n, ok := t.(typeref.Named); ok && path != "" {
		n.Name = path
		return n
	}
	return t
}

func nameOf(t typeref.TypeRef) string {
	switch v := t.(type) {
	case typeref.Named:
		return v.Name
	case typeref.Primitive:
		return v.Name
	}
	return typeref.Render(t)
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
