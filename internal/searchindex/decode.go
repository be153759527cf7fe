package searchindex

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// ErrMalformedIndex is matched by every MalformedIndexError via errors.Is.
var ErrMalformedIndex = errors.New("malformed index")

// MalformedIndexError reports a structural inconsistency in one crate's
// record. It is fatal to that crate only.
type MalformedIndexError struct {
	Crate  string
	Reason string
}

func (e *MalformedIndexError) Error() string {
	return fmt.Sprintf("malformed index for crate %s: %s", e.Crate, e.Reason)
}

func (e *MalformedIndexError) Is(target error) bool {
	return target == ErrMalformedIndex
}

// CrateIndex is the decoded, immutable symbol table of one crate.
type CrateIndex struct {
	name       string
	doc        string
	kinds      []Kind
	names      []string
	parents    []int
	qualifiers map[int]Qualifier
	docs       []string
	paths      []string
	depths     []int
	signatures []*typeref.Signature
	sigErrs    map[int]error
	types      []typeref.Entry
	byPath     map[string][]int
}

// SymbolEntry is the resolved view of one item.
type SymbolEntry struct {
	Crate     string             `json:"crate"`
	ID        int                `json:"id"`
	Kind      Kind               `json:"kind"`
	Name      string             `json:"name"`
	Path      string             `json:"path"`
	Signature *typeref.Signature `json:"-"`
	Doc       string             `json:"doc,omitempty"`
}

// Decode validates raw and builds the crate's symbol table in a single
// forward pass. Parents and qualifier back-references must point at a
// strictly smaller item id, which makes the reference graph acyclic.
func Decode(crate string, raw *RawRecord) (*CrateIndex, error) {
	malformed := func(format string, args ...any) error {
		return &MalformedIndexError{Crate: crate, Reason: fmt.Sprintf(format, args...)}
	}
	if raw == nil {
		return nil, malformed("empty record")
	}

	n := len(raw.Kinds)
	if len(raw.Names) != n {
		return nil, malformed("%d kinds but %d names", n, len(raw.Names))
	}
	if len(raw.Parents) != 0 && len(raw.Parents) != n {
		return nil, malformed("%d kinds but %d parents", n, len(raw.Parents))
	}
	if len(raw.Docs) != 0 && len(raw.Docs) != n {
		return nil, malformed("%d kinds but %d doc summaries", n, len(raw.Docs))
	}
	if len(raw.Signatures) > n {
		return nil, malformed("%d kinds but %d signatures", n, len(raw.Signatures))
	}

	idx := &CrateIndex{
		name:       crate,
		doc:        raw.Doc,
		kinds:      make([]Kind, n),
		names:      raw.Names,
		parents:    make([]int, n),
		qualifiers: make(map[int]Qualifier, len(raw.Qualifiers)),
		docs:       make([]string, n),
		paths:      make([]string, n),
		depths:     make([]int, n),
		signatures: make([]*typeref.Signature, n),
		sigErrs:    make(map[int]error),
		byPath:     make(map[string][]int, n),
	}
	copy(idx.docs, raw.Docs)

	for i := 0; i < n; i++ {
		k, err := KindFromCode(raw.Kinds[i])
		if err != nil {
			return nil, malformed("item %d: %v", i, err)
		}
		idx.kinds[i] = k
	}

	idx.types = make([]typeref.Entry, len(raw.Types))
	for i, e := range raw.Types {
		k, err := KindFromOrdinal(e.Kind)
		if err != nil {
			return nil, malformed("type table entry %d: %v", i, err)
		}
		idx.types[i] = typeref.Entry{Name: e.Name, Primitive: k == KindPrimitive}
	}

	for _, q := range raw.Qualifiers {
		if q.Item < 0 || q.Item >= n {
			return nil, malformed("qualifier for item %d outside 0..%d", q.Item, n)
		}
		if _, dup := idx.qualifiers[q.Item]; dup {
			return nil, malformed("duplicate qualifier for item %d", q.Item)
		}
		if !q.Literal && (q.Ref < 0 || q.Ref >= q.Item) {
			return nil, malformed("qualifier of item %d back-references item %d, which is not yet decoded", q.Item, q.Ref)
		}
		idx.qualifiers[q.Item] = q.Qualifier
	}

	for i := 0; i < n; i++ {
		idx.parents[i] = -1
		if len(raw.Parents) == 0 || raw.Parents[i] == nil {
			continue
		}
		p := *raw.Parents[i]
		if p < 0 || p >= i {
			return nil, malformed("item %d has parent %d; parents must precede their children", i, p)
		}
		idx.parents[i] = p
	}

	for i := 0; i < n; i++ {
		name := idx.names[i]
		switch q, ok := idx.qualifiers[i]; {
		case ok:
			idx.paths[i] = joinPath(idx.qualifierPrefix(q), name)
		case idx.parents[i] >= 0:
			idx.paths[i] = joinPath(idx.paths[idx.parents[i]], name)
		default:
			idx.paths[i] = name
		}
		if p := idx.parents[i]; p >= 0 {
			idx.depths[i] = idx.depths[p] + 1
		}
		idx.byPath[idx.paths[i]] = append(idx.byPath[idx.paths[i]], i)
	}

	for i, rawSig := range raw.Signatures {
		var sig typeref.RawSignature
		if err := json.Unmarshal(rawSig, &sig); err != nil {
			return nil, malformed("item %d signature: %v", i, err)
		}
		resolved, err := typeref.DecodeSignature(sig, idx.types)
		if err != nil {
			idx.sigErrs[i] = fmt.Errorf("item %d (%s): %w", i, idx.paths[i], err)
			continue
		}
		idx.signatures[i] = resolved
	}

	return idx, nil
}

func (idx *CrateIndex) qualifierPrefix(q Qualifier) string {
	if q.Literal {
		return q.Suffix
	}
	return joinPath(idx.paths[q.Ref], q.Suffix)
}

func joinPath(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "::" + name
}

// Name returns the crate name.
func (idx *CrateIndex) Name() string { return idx.name }

// Doc returns the crate-level documentation summary.
func (idx *CrateIndex) Doc() string { return idx.doc }

// Len returns the number of items; ids are 0..Len()-1.
func (idx *CrateIndex) Len() int { return len(idx.kinds) }

func (idx *CrateIndex) Kind(id int) Kind       { return idx.kinds[id] }
func (idx *CrateIndex) ItemName(id int) string { return idx.names[id] }
func (idx *CrateIndex) ItemDoc(id int) string  { return idx.docs[id] }

// Path returns the fully qualified path of an item.
func (idx *CrateIndex) Path(id int) string { return idx.paths[id] }

// Depth returns the length of the item's parent chain.
func (idx *CrateIndex) Depth(id int) int { return idx.depths[id] }

// Parent returns the parent item id, if any.
func (idx *CrateIndex) Parent(id int) (int, bool) {
	p := idx.parents[id]
	return p, p >= 0
}

// Signature returns the resolved signature of an item. Items whose
// signature referenced an unknown type code return that error instead.
func (idx *CrateIndex) Signature(id int) (*typeref.Signature, error) {
	if err, ok := idx.sigErrs[id]; ok {
		return nil, err
	}
	return idx.signatures[id], nil
}

// SignatureErrors returns the number of items excluded from type matching.
func (idx *CrateIndex) SignatureErrors() int { return len(idx.sigErrs) }

// TypeTable returns a copy of the shared type table.
func (idx *CrateIndex) TypeTable() []typeref.Entry {
	out := make([]typeref.Entry, len(idx.types))
	copy(out, idx.types)
	return out
}

// Lookup returns the ids of every item whose path equals path.
func (idx *CrateIndex) Lookup(path string) []int {
	ids := idx.byPath[path]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// Entry builds the SymbolEntry for one item.
func (idx *CrateIndex) Entry(id int) SymbolEntry {
	return SymbolEntry{
		Crate:     idx.name,
		ID:        id,
		Kind:      idx.kinds[id],
		Name:      idx.names[id],
		Path:      idx.paths[id],
		Signature: idx.signatures[id],
		Doc:       idx.docs[id],
	}
}
