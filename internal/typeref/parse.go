package typeref

import (
	"fmt"
	"strings"
	"unicode"
)

var primitives = map[string]bool{
	"bool": true, "char": true, "str": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
	"f32": true, "f64": true,
	"slice": true, "array": true, "tuple": true, "unit": true, "never": true,
	"reference": true, "pointer": true, "fn": true,
}

// IsPrimitiveName reports whether name is a language primitive.
func IsPrimitiveName(name string) bool {
	return primitives[strings.ToLower(name)]
}

// ParseExpr parses a type expression such as "Result<T, Error>", "&mut [u8]"
// or "(i32, char)". References are stripped; slices and tuples become the
// "slice" and "tuple" primitives. Single upper-case letters (optionally
// followed by digits), names listed in generics and "_" parse as Generic.
func ParseExpr(s string, generics ...string) (TypeRef, error) {
	p := &exprParser{src: s, generics: make(map[string]bool, len(generics))}
	for _, g := range generics {
		p.generics[g] = true
	}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("parsing type %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return t, nil
}

type exprParser struct {
	src      string
	pos      int
	generics map[string]bool
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("parsing type %q: expected %q at offset %d", p.src, c, p.pos)
	}
	p.pos++
	return nil
}

func (p *exprParser) parseType() (TypeRef, error) {
	switch p.peek() {
	case '&', '*':
		p.pos++
		p.skipLifetime()
		p.skipKeyword("mut")
		p.skipKeyword("const")
		return p.parseType()
	case '[':
		p.pos++
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if p.peek() == ';' {
			// Array length is not part of the type identity for search.
			for p.pos < len(p.src) && p.src[p.pos] != ']' {
				p.pos++
			}
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return Primitive{Name: "slice", Args: []TypeRef{inner}}, nil
	case '(':
		p.pos++
		args, err := p.parseList(')')
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return Primitive{Name: "unit"}, nil
		}
		return Primitive{Name: "tuple", Args: args}, nil
	case 0:
		return nil, fmt.Errorf("parsing type %q: unexpected end of input", p.src)
	}

	name := p.parseIdent()
	if name == "" {
		return nil, fmt.Errorf("parsing type %q: expected a type name at offset %d", p.src, p.pos)
	}

	var args []TypeRef
	if p.peek() == '<' {
		p.pos++
		var err error
		args, err = p.parseList('>')
		if err != nil {
			return nil, err
		}
	}

	switch {
	case name == "_":
		return Generic{Position: -1}, nil
	case p.generics[name] || (len(args) == 0 && looksGeneric(name)):
		return Generic{Position: -1, Name: name}, nil
	case primitives[name]:
		return Primitive{Name: name, Args: args}, nil
	}
	return Named{Name: name, Args: args}, nil
}

func (p *exprParser) parseList(end byte) ([]TypeRef, error) {
	var out []TypeRef
	if p.peek() == end {
		p.pos++
		return out, nil
	}
	for {
		p.skipLifetimeArg()
		if p.peek() == end {
			p.pos++
			return out, nil
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		switch p.peek() {
		case ',':
			p.pos++
		case end:
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("parsing type %q: expected ',' or %q at offset %d", p.src, end, p.pos)
		}
	}
}

func (p *exprParser) parseIdent() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			p.pos++
			continue
		}
		if c == ':' && strings.HasPrefix(p.src[p.pos:], "::") {
			p.pos += 2
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *exprParser) skipLifetime() {
	if p.peek() != '\'' {
		return
	}
	p.pos++
	p.parseIdent()
}

// skipLifetimeArg drops "'a," entries from generic argument lists.
func (p *exprParser) skipLifetimeArg() {
	if p.peek() != '\'' {
		return
	}
	p.skipLifetime()
	if p.peek() == ',' {
		p.pos++
	}
}

func (p *exprParser) skipKeyword(kw string) {
	p.skipSpace()
	rest := p.src[p.pos:]
	if strings.HasPrefix(rest, kw) && (len(rest) == len(kw) || rest[len(kw)] == ' ') {
		p.pos += len(kw)
	}
}

func looksGeneric(name string) bool {
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return false
	}
	for _, c := range name[1:] {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}
