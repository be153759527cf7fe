package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LegacyRecord is one crate of a rustdoc search-index.js file. Module paths
// in q are dense and an empty entry repeats the previous one; parents in i
// are 1-based indexes into the type table p, 0 meaning none.
type LegacyRecord struct {
	Doc        string            `json:"doc"`
	Kinds      string            `json:"t"`
	Names      []string          `json:"n"`
	Modules    []string          `json:"q"`
	Docs       []string          `json:"d"`
	Parents    []int             `json:"i"`
	Signatures []json.RawMessage `json:"f"`
	Types      []RawTypeEntry    `json:"p"`
}

// DecodeLegacy decodes a rustdoc search-index.js file.
func DecodeLegacy(data []byte) ([]*CrateIndex, error) {
	body, err := ParseLegacyJS(data)
	if err != nil {
		return nil, err
	}
	return decodeCrates(body, func(name string, body json.RawMessage) (*CrateIndex, error) {
		var legacy LegacyRecord
		if err := json.Unmarshal(body, &legacy); err != nil {
			return nil, &MalformedIndexError{Crate: name, Reason: err.Error()}
		}
		raw, err := FromLegacy(&legacy)
		if err != nil {
			return nil, &MalformedIndexError{Crate: name, Reason: err.Error()}
		}
		return Decode(name, raw)
	})
}

// ParseLegacyJS extracts the JSON text from the
// `var searchIndex = JSON.parse('...')` wrapper rustdoc emits.
func ParseLegacyJS(data []byte) ([]byte, error) {
	const marker = "JSON.parse('"
	start := bytes.Index(data, []byte(marker))
	if start < 0 {
		return nil, fmt.Errorf("search index: no JSON.parse('...') wrapper found")
	}
	s, err := unquoteJS(data[start+len(marker):], '\'')
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return []byte(s), nil
}

// unquoteJS decodes a JavaScript string literal body up to the closing
// quote character.
func unquoteJS(data []byte, quote byte) (string, error) {
	var b strings.Builder
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == quote:
			return b.String(), nil
		case c != '\\':
			b.WriteByte(c)
			continue
		}

		i++
		if i >= len(data) {
			break
		}
		switch esc := data[i]; esc {
		case '\n':
			// line continuation
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case 'x', 'u':
			width := 2
			if esc == 'u' {
				width = 4
			}
			if i+width >= len(data) {
				return "", fmt.Errorf("truncated \\%c escape", esc)
			}
			n, err := strconv.ParseUint(string(data[i+1:i+1+width]), 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\%c escape: %w", esc, err)
			}
			var buf [utf8.UTFMax]byte
			b.Write(buf[:utf8.EncodeRune(buf[:], rune(n))])
			i += width
		default:
			b.WriteByte(esc)
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

// FromLegacy converts a rustdoc record into a RawRecord. A parent from the
// type table is linked to an earlier item of the same kind and name in the
// same module when one exists; otherwise the parent name is folded into the
// item's literal qualifier.
func FromLegacy(l *LegacyRecord) (*RawRecord, error) {
	n := len(l.Kinds)
	if len(l.Modules) != 0 && len(l.Modules) != n {
		return nil, fmt.Errorf("%d kinds but %d module paths", n, len(l.Modules))
	}
	if len(l.Parents) != 0 && len(l.Parents) != n {
		return nil, fmt.Errorf("%d kinds but %d parents", n, len(l.Parents))
	}

	raw := &RawRecord{
		Doc:        l.Doc,
		Kinds:      l.Kinds,
		Names:      l.Names,
		Docs:       l.Docs,
		Signatures: l.Signatures,
		Types:      l.Types,
		Parents:    make([]*int, n),
	}

	type itemKey struct {
		kind   byte
		module string
		name   string
	}
	seen := make(map[itemKey]int)

	module := ""
	for i := 0; i < n; i++ {
		if len(l.Modules) > 0 && l.Modules[i] != "" {
			module = l.Modules[i]
		}

		qualifier := module
		linked := false
		if len(l.Parents) > 0 && l.Parents[i] > 0 {
			p := l.Parents[i]
			if p > len(l.Types) {
				return nil, fmt.Errorf("item %d: parent %d outside type table of %d entries", i, p, len(l.Types))
			}
			parent := l.Types[p-1]
			kind, err := KindFromOrdinal(parent.Kind)
			if err != nil {
				return nil, fmt.Errorf("item %d parent: %w", i, err)
			}
			if id, ok := seen[itemKey{kind.Code(), module, parent.Name}]; ok {
				raw.Parents[i] = &id
				linked = true
			} else {
				qualifier = joinPath(module, parent.Name)
			}
		}
		if !linked {
			raw.Qualifiers = append(raw.Qualifiers, RawQualifier{Item: i, Qualifier: Qualifier{Literal: true, Suffix: qualifier}})
		}
		if i < len(l.Names) {
			seen[itemKey{l.Kinds[i], module, l.Names[i]}] = i
		}
	}
	return raw, nil
}
