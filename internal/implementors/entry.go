package implementors

import (
	"errors"
	"fmt"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// ErrRegistryMisuse is matched by every RegistryMisuseError via errors.Is.
var ErrRegistryMisuse = errors.New("registry misuse")

// RegistryMisuseError reports a shard that cannot be merged. The whole
// shard is dropped; other shards are unaffected.
type RegistryMisuseError struct {
	Crate  string
	Index  int
	Reason string
}

func (e *RegistryMisuseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("shard for crate %q: %s", e.Crate, e.Reason)
	}
	return fmt.Sprintf("shard for crate %q, entry %d: %s", e.Crate, e.Index, e.Reason)
}

func (e *RegistryMisuseError) Is(target error) bool {
	return target == ErrRegistryMisuse
}

// GenericParam is one generic parameter of an impl with its trait bounds.
type GenericParam struct {
	Name   string
	Bounds []typeref.TypeRef
}

// WhereClause is one "Type: Bound" constraint.
type WhereClause struct {
	Type  typeref.TypeRef
	Bound typeref.TypeRef
}

// Entry is one "impl Trait for Type" fact. Entries are treated as
// immutable once submitted.
type Entry struct {
	Crate       string
	TraitPath   string
	Trait       typeref.TypeRef
	ForTypePath string
	ForType     typeref.TypeRef

	GenericParams []GenericParam
	WhereClauses  []WhereClause

	// AutoTraitDependencies lists type paths whose auto-trait status decides
	// whether a synthetic impl holds.
	AutoTraitDependencies []string
	Synthetic             bool
	Negative              bool

	// Text is the rendered impl header.
	Text string
}

// Shard is the implementor data of one crate for one or more traits.
type Shard struct {
	Crate   string
	Entries []Entry
}

func (s Shard) validate() error {
	if s.Crate == "" {
		return &RegistryMisuseError{Index: -1, Reason: "empty crate name"}
	}
	for i, e := range s.Entries {
		switch {
		case e.TraitPath == "":
			return &RegistryMisuseError{Crate: s.Crate, Index: i, Reason: "missing trait path"}
		case e.ForTypePath == "":
			return &RegistryMisuseError{Crate: s.Crate, Index: i, Reason: "missing for-type path"}
		case e.Crate != "" && e.Crate != s.Crate:
			return &RegistryMisuseError{Crate: s.Crate, Index: i, Reason: fmt.Sprintf("entry belongs to crate %q", e.Crate)}
		}
	}
	return nil
}
