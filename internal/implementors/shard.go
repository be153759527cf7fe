package implementors

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// RawShard is the JSON form of a Shard.
type RawShard struct {
	Crate        string     `json:"crate"`
	Implementors []RawEntry `json:"implementors"`
}

// RawEntry is the JSON form of an Entry. Types and bounds are type
// expressions such as "Vec<T>".
type RawEntry struct {
	Trait       string            `json:"trait"`
	TraitArgs   string            `json:"trait_type,omitempty"`
	For         string            `json:"for"`
	ForType     string            `json:"for_type,omitempty"`
	Generics    []RawGenericParam `json:"generics,omitempty"`
	Where       []RawWhereClause  `json:"where,omitempty"`
	AutoTraitOn []string          `json:"auto_trait_deps,omitempty"`
	Synthetic   bool              `json:"synthetic,omitempty"`
	Negative    bool              `json:"negative,omitempty"`
	Text        string            `json:"text,omitempty"`
}

type RawGenericParam struct {
	Name   string   `json:"name"`
	Bounds []string `json:"bounds,omitempty"`
}

type RawWhereClause struct {
	Type  string `json:"type"`
	Bound string `json:"bound"`
}

// DecodeShard decodes one JSON shard. When the document names no crate,
// crate is used. Unparseable type expressions are reported as a
// RegistryMisuseError for the whole shard.
func DecodeShard(crate string, data []byte) (Shard, error) {
	var raw RawShard
	if err := json.Unmarshal(data, &raw); err != nil {
		return Shard{}, &RegistryMisuseError{Crate: crate, Index: -1, Reason: fmt.Sprintf("decoding shard: %v", err)}
	}
	if raw.Crate == "" {
		raw.Crate = crate
	}

	shard := Shard{Crate: raw.Crate, Entries: make([]Entry, 0, len(raw.Implementors))}
	for i, re := range raw.Implementors {
		e, err := re.toEntry()
		if err != nil {
			return Shard{}, &RegistryMisuseError{Crate: raw.Crate, Index: i, Reason: err.Error()}
		}
		shard.Entries = append(shard.Entries, e)
	}
	return shard, nil
}

func (re RawEntry) toEntry() (Entry, error) {
	switch {
	case re.Trait == "":
		return Entry{}, fmt.Errorf("missing trait path")
	case re.For == "":
		return Entry{}, fmt.Errorf("missing for-type path")
	}

	e := Entry{
		TraitPath:             re.Trait,
		ForTypePath:           re.For,
		AutoTraitDependencies: re.AutoTraitOn,
		Synthetic:             re.Synthetic,
		Negative:              re.Negative,
		Text:                  re.Text,
	}

	var generics []string
	for _, g := range re.Generics {
		generics = append(generics, g.Name)
	}
	parse := func(what, expr string) (typeref.TypeRef, error) {
		t, err := typeref.ParseExpr(expr, generics...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		return t, nil
	}

	var err error
	if e.Trait, err = parse("trait", orDefault(re.TraitArgs, re.Trait)); err != nil {
		return Entry{}, err
	}
	if e.ForType, err = parse("for type", orDefault(re.ForType, re.For)); err != nil {
		return Entry{}, err
	}
	e.Trait = withPath(e.Trait, e.TraitPath)
	e.ForType = withPath(e.ForType, e.ForTypePath)
	for _, g := range re.Generics {
		p := GenericParam{Name: g.Name}
		for _, b := range g.Bounds {
			t, err := parse("bound of "+g.Name, b)
			if err != nil {
				return Entry{}, err
			}
			p.Bounds = append(p.Bounds, t)
		}
		e.GenericParams = append(e.GenericParams, p)
	}
	for _, w := range re.Where {
		ty, err := parse("where type", w.Type)
		if err != nil {
			return Entry{}, err
		}
		bound, err := parse("where bound", w.Bound)
		if err != nil {
			return Entry{}, err
		}
		e.WhereClauses = append(e.WhereClauses, WhereClause{Type: ty, Bound: bound})
	}
	if e.Text == "" {
		e.Text = render(e)
	}
	return e, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// render builds an impl header such as "impl<T: Clone> Clone for Vec<T>".
func render(e Entry) string {
	var b strings.Builder
	b.WriteString("impl")
	if len(e.GenericParams) > 0 {
		parts := make([]string, len(e.GenericParams))
		for i, p := range e.GenericParams {
			parts[i] = p.Name
			if len(p.Bounds) > 0 {
				parts[i] += ": " + joinTypes(p.Bounds, " + ")
			}
		}
		b.WriteString("<" + strings.Join(parts, ", ") + ">")
	}
	b.WriteString(" ")
	if e.Negative {
		b.WriteString("!")
	}
	b.WriteString(typeref.Render(e.Trait))
	b.WriteString(" for ")
	b.WriteString(typeref.Render(e.ForType))
	if len(e.WhereClauses) > 0 {
		parts := make([]string, len(e.WhereClauses))
		for i, w := range e.WhereClauses {
			parts[i] = typeref.Render(w.Type) + ": " + typeref.Render(w.Bound)
		}
		b.WriteString(" where " + strings.Join(parts, ", "))
	}
	return b.String()
}

func joinTypes(ts []typeref.TypeRef, sep string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = typeref.Render(t)
	}
	return strings.Join(parts, sep)
}
