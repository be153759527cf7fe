package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawRecord is the compact wire form of one crate's index.
type RawRecord struct {
	Doc        string            `json:"doc,omitempty"`
	Kinds      string            `json:"t"`
	Names      []string          `json:"n"`
	Parents    []*int            `json:"i,omitempty"`
	Qualifiers []RawQualifier    `json:"q,omitempty"`
	Docs       []string          `json:"d,omitempty"`
	Signatures []json.RawMessage `json:"f,omitempty"`
	Types      []RawTypeEntry    `json:"p,omitempty"`
}

// Qualifier is the path prefix of one item: a literal path, or the resolved
// path of an earlier item Ref with an optional Suffix joined by "::".
type Qualifier struct {
	Literal bool
	Ref     int
	Suffix  string
}

// RawQualifier attaches a Qualifier to an item id. On the wire it is
// [item, "literal"], [item, ref] or [item, [ref, "suffix"]].
type RawQualifier struct {
	Item int
	Qualifier
}

func (q *RawQualifier) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding qualifier: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decoding qualifier: expected [item, qualifier], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &q.Item); err != nil {
		return fmt.Errorf("decoding qualifier item: %w", err)
	}

	q.Qualifier = Qualifier{}
	body := bytes.TrimSpace(pair[1])
	switch {
	case len(body) > 0 && body[0] == '"':
		q.Literal = true
		return json.Unmarshal(body, &q.Suffix)
	case len(body) > 0 && body[0] == '[':
		var ref []json.RawMessage
		if err := json.Unmarshal(body, &ref); err != nil || len(ref) != 2 {
			return fmt.Errorf("decoding qualifier for item %d: expected [ref, suffix]", q.Item)
		}
		if err := json.Unmarshal(ref[0], &q.Ref); err != nil {
			return fmt.Errorf("decoding qualifier ref for item %d: %w", q.Item, err)
		}
		return json.Unmarshal(ref[1], &q.Suffix)
	default:
		return json.Unmarshal(body, &q.Ref)
	}
}

func (q RawQualifier) MarshalJSON() ([]byte, error) {
	switch {
	case q.Literal:
		return json.Marshal([]any{q.Item, q.Suffix})
	case q.Suffix == "":
		return json.Marshal([]any{q.Item, q.Ref})
	default:
		return json.Marshal([]any{q.Item, []any{q.Ref, q.Suffix}})
	}
}

// RawTypeEntry is one [kindOrdinal, name] descriptor of the type table.
type RawTypeEntry struct {
	Kind int
	Name string
}

func (e *RawTypeEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding type entry: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("decoding type entry: expected [kind, name], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Kind); err != nil {
		return fmt.Errorf("decoding type entry kind: %w", err)
	}
	return json.Unmarshal(pair[1], &e.Name)
}

func (e RawTypeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Kind, e.Name})
}
