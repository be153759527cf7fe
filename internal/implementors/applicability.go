package implementors

import "github.com/jcdickinson/ferrisindex/internal/typeref"

// Applicability says whether an impl can be shown as holding outright.
type Applicability int

const (
	Unconditional Applicability = iota
	Conditional
	Unsatisfied
)

func (a Applicability) String() string {
	switch a {
	case Unconditional:
		return "unconditional"
	case Conditional:
		return "conditional"
	}
	return "unsatisfied"
}

func (a Applicability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Evaluate decides the applicability of e. known maps type paths to whether
// they satisfy e's trait; paths absent from known are undecided.
//
// A negative impl, or a dependency known not to satisfy the trait, makes
// the impl Unsatisfied. An undecided dependency, a bounded generic
// parameter or a where clause makes it Conditional. The impl's own
// for-type is never treated as a dependency of itself.
func Evaluate(e Entry, known map[string]bool) Applicability {
	if e.Negative {
		return Unsatisfied
	}

	result := Unconditional
	for _, dep := range e.AutoTraitDependencies {
		if dep == e.ForTypePath {
			continue
		}
		satisfied, ok := known[dep]
		switch {
		case !ok:
			result = Conditional
		case !satisfied:
			return Unsatisfied
		}
	}

	if len(e.WhereClauses) > 0 {
		return Conditional
	}
	for _, p := range e.GenericParams {
		if len(p.Bounds) > 0 {
			return Conditional
		}
	}
	return result
}

// LookupApplicable is Lookup without Unsatisfied synthetic impls.
func (r *Registry) LookupApplicable(typePath string, known map[string]bool) []Entry {
	var out []Entry
	for _, e := range r.Lookup(typePath) {
		if e.Synthetic && Evaluate(e, known) == Unsatisfied {
			continue
		}
		out = append(out, e)
	}
	return out
}

// RequiresBound reports whether e constrains any type by bound, either on a
// generic parameter or in a where clause.
func RequiresBound(e Entry, bound typeref.TypeRef) bool {
	for _, p := range e.GenericParams {
		for _, b := range p.Bounds {
			if typeref.SameBound(b, bound) {
				return true
			}
		}
	}
	for _, w := range e.WhereClauses {
		if typeref.SameBound(w.Bound, bound) {
			return true
		}
	}
	return false
}
