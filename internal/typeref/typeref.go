package typeref

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTypeCode is matched by every UnknownTypeCodeError via errors.Is.
var ErrUnknownTypeCode = errors.New("unknown type code")

// UnknownTypeCodeError reports a type-reference code that indexes outside
// the crate's type table.
type UnknownTypeCodeError struct {
	Code     int
	TableLen int
}

func (e *UnknownTypeCodeError) Error() string {
	return fmt.Sprintf("type code %d outside type table of %d entries", e.Code, e.TableLen)
}

func (e *UnknownTypeCodeError) Is(target error) bool {
	return target == ErrUnknownTypeCode
}

// Entry is one descriptor of a crate's shared type table.
type Entry struct {
	Name      string
	Primitive bool
}

// TypeRef is a resolved type: Primitive, Named or Generic.
type TypeRef interface {
	isTypeRef()
	String() string
}

// Primitive is a language primitive such as char, i32 or str.
type Primitive struct {
	Name string
	Args []TypeRef
}

// Named is a nominal type (struct, enum, trait, alias) with generic arguments.
type Named struct {
	Name string
	Args []TypeRef
}

// Generic is a generic parameter known only by position. Position -1 marks
// an anonymous placeholder that matches anything without binding.
type Generic struct {
	Position int
	Name     string
}

func (Primitive) isTypeRef() {}
func (Named) isTypeRef()     {}
func (Generic) isTypeRef()   {}

func (p Primitive) String() string { return withArgs(p.Name, p.Args) }
func (n Named) String() string     { return withArgs(n.Name, n.Args) }

func (g Generic) String() string {
	if g.Name != "" {
		return g.Name
	}
	if g.Position < 0 {
		return "_"
	}
	return fmt.Sprintf("T%d", g.Position)
}

func withArgs(name string, args []TypeRef) string {
	if len(args) == 0 {
		return name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "<" + strings.Join(parts, ", ") + ">"
}

// Code is a compact type-reference code: k > 0 indexes the type table
// (1-based), k < 0 is generic parameter -k-1 and 0 is an anonymous generic.
type Code struct {
	ID   int
	Args []Code
}

// Resolve expands a code against the crate's type table. It fails only with
// an UnknownTypeCodeError, for this code or any nested argument.
func Resolve(c Code, table []Entry) (TypeRef, error) {
	switch {
	case c.ID == 0:
		return Generic{Position: -1}, nil
	case c.ID < 0:
		return Generic{Position: -c.ID - 1}, nil
	case c.ID > len(table):
		return nil, &UnknownTypeCodeError{Code: c.ID, TableLen: len(table)}
	}

	var args []TypeRef
	for _, a := range c.Args {
		t, err := Resolve(a, table)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}

	e := table[c.ID-1]
	if e.Primitive {
		return Primitive{Name: e.Name, Args: args}, nil
	}
	return Named{Name: e.Name, Args: args}, nil
}

// LastSegment returns the final "::"-separated segment of a path.
func LastSegment(path string) string {
	if i := strings.LastIndex(path, "::"); i >= 0 {
		return path[i+2:]
	}
	return path
}

// Equal reports structural equality. Names compare case-insensitively on
// their last path segment, so "core::clone::Clone" equals "Clone".
func Equal(a, b TypeRef) bool {
	switch x := a.(type) {
	case Primitive:
		y, ok := b.(Primitive)
		return ok && strings.EqualFold(x.Name, y.Name) && equalArgs(x.Args, y.Args)
	case Named:
		y, ok := b.(Named)
		return ok && strings.EqualFold(LastSegment(x.Name), LastSegment(y.Name)) && equalArgs(x.Args, y.Args)
	case Generic:
		y, ok := b.(Generic)
		if !ok {
			return false
		}
		if x.Name != "" || y.Name != "" {
			return x.Name == y.Name
		}
		return x.Position == y.Position
	}
	return false
}

func equalArgs(a, b []TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// SameBound reports whether two trait bounds name the same trait with the
// same arguments.
func SameBound(a, b TypeRef) bool {
	return Equal(a, b)
}

// Render formats t for display; a nil TypeRef renders empty.
func Render(t TypeRef) string {
	if t == nil {
		return ""
	}
	return t.String()
}
