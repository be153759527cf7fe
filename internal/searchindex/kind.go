package searchindex

import "fmt"

// Kind is the item type of a documented symbol. The ordinal matches the
// rustdoc item-type table, so the single-letter code is 'A' + ordinal.
type Kind uint8

const (
	KindModule Kind = iota
	KindExternCrate
	KindImport
	KindStruct
	KindEnum
	KindFunction
	KindTypeAlias
	KindStatic
	KindTrait
	KindImpl
	KindTyMethod
	KindMethod
	KindStructField
	KindVariant
	KindMacro
	KindPrimitive
	KindAssocType
	KindConstant
	KindAssocConst
	KindUnion
	KindForeignType
	KindKeyword
	KindOpaqueTy
	KindProcAttribute
	KindProcDerive
	KindTraitAlias

	kindCount
)

var kindNames = [kindCount]string{
	"mod", "externcrate", "import", "struct", "enum", "fn", "type", "static",
	"trait", "impl", "tymethod", "method", "structfield", "variant", "macro",
	"primitive", "associatedtype", "constant", "associatedconstant", "union",
	"foreigntype", "keyword", "opaque", "attr", "derive", "traitalias",
}

// KindFromCode decodes a single-letter kind code.
func KindFromCode(c byte) (Kind, error) {
	if c < 'A' || c >= 'A'+byte(kindCount) {
		return 0, fmt.Errorf("unknown kind code %q", c)
	}
	return Kind(c - 'A'), nil
}

// KindFromOrdinal decodes the numeric kind used by type-table entries.
func KindFromOrdinal(n int) (Kind, error) {
	if n < 0 || n >= int(kindCount) {
		return 0, fmt.Errorf("unknown kind ordinal %d", n)
	}
	return Kind(n), nil
}

// ParseKind maps a kind name ("fn", "struct", ...) back to its Kind.
// "function" and "field" are accepted as aliases.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "function":
		return KindFunction, true
	case "field":
		return KindStructField, true
	case "module":
		return KindModule, true
	}
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Code returns the single-letter wire code.
func (k Kind) Code() byte {
	return 'A' + byte(k)
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// IsFunction reports whether items of this kind carry callable signatures.
func (k Kind) IsFunction() bool {
	return k == KindFunction || k == KindMethod || k == KindTyMethod
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
