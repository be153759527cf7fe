package typeref

import "strings"

// Bindings records generic assignments made while matching one candidate.
// Query generics are keyed by name, candidate generics by position.
type Bindings struct {
	query     map[string]TypeRef
	candidate map[int]TypeRef
}

// NewBindings returns an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{
		query:     make(map[string]TypeRef),
		candidate: make(map[int]TypeRef),
	}
}

// Clone copies b so a failed alignment attempt can be discarded.
func (b *Bindings) Clone() *Bindings {
	c := NewBindings()
	for k, v := range b.query {
		c.query[k] = v
	}
	for k, v := range b.candidate {
		c.candidate[k] = v
	}
	return c
}

// Candidate returns what the candidate's generic parameter at pos is bound to.
func (b *Bindings) Candidate(pos int) (TypeRef, bool) {
	t, ok := b.candidate[pos]
	return t, ok
}

// BoundGenerics returns how many candidate generic parameters are bound.
func (b *Bindings) BoundGenerics() int { return len(b.candidate) }

// Unify matches a query type against a candidate type, extending b. A query
// type without arguments matches a candidate of the same name with any
// arguments, so "Vec" matches Vec<T>. On failure b may be partially
// extended; callers that retry must work on a Clone.
func Unify(query, candidate TypeRef, b *Bindings) bool {
	if g, ok := query.(Generic); ok {
		if g.Name == "" {
			return true
		}
		if bound, ok := b.query[g.Name]; ok {
			return Equal(bound, candidate)
		}
		b.query[g.Name] = candidate
		return true
	}

	if g, ok := candidate.(Generic); ok {
		if g.Position < 0 {
			return true
		}
		if bound, ok := b.candidate[g.Position]; ok {
			return Equal(bound, query)
		}
		b.candidate[g.Position] = query
		return true
	}

	switch q := query.(type) {
	case Primitive:
		c, ok := candidate.(Primitive)
		if !ok || !strings.EqualFold(q.Name, c.Name) {
			return false
		}
		return unifyArgs(q.Args, c.Args, b)
	case Named:
		c, ok := candidate.(Named)
		if !ok || !strings.EqualFold(LastSegment(q.Name), LastSegment(c.Name)) {
			return false
		}
		return unifyArgs(q.Args, c.Args, b)
	}
	return false
}

func unifyArgs(q, c []TypeRef, b *Bindings) bool {
	if len(q) == 0 {
		return true
	}
	if len(q) != len(c) {
		return false
	}
	for i := range q {
		if !Unify(q[i], c[i], b) {
			return false
		}
	}
	return true
}

// AlignInputs reports whether every query type can be matched to a distinct
// candidate input, in any order, under one consistent set of bindings.
// Candidates may have extra inputs the query does not mention.
func AlignInputs(query, inputs []TypeRef, b *Bindings) (*Bindings, bool) {
	if len(query) > len(inputs) {
		return nil, false
	}
	used := make([]bool, len(inputs))
	return align(query, inputs, used, b)
}

func align(query, inputs []TypeRef, used []bool, b *Bindings) (*Bindings, bool) {
	if len(query) == 0 {
		return b, true
	}
	for i, in := range inputs {
		if used[i] {
			continue
		}
		attempt := b.Clone()
		if !Unify(query[0], in, attempt) {
			continue
		}
		used[i] = true
		if out, ok := align(query[1:], inputs, used, attempt); ok {
			return out, true
		}
		used[i] = false
	}
	return nil, false
}
