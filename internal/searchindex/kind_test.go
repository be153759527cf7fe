package searchindex

import "testing"

func TestKindCodes(t *testing.T) {
	t.Parallel()

	for k := Kind(0); k < kindCount; k++ {
		got, err := KindFromCode(k.Code())
		if err != nil || got != k {
			t.Errorf("KindFromCode(%q) = %v, %v; want %v", k.Code(), got, err, k)
		}
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, ok)
		}
	}

	for _, c := range []byte{'@', '[', 'a', '0'} {
		if _, err := KindFromCode(c); err == nil {
			t.Errorf("KindFromCode(%q): expected error", c)
		}
	}
	if _, err := KindFromOrdinal(-1); err == nil {
		t.Error("KindFromOrdinal(-1): expected error")
	}
}

func TestParseKind_Aliases(t *testing.T) {
	t.Parallel()

	tests := map[string]Kind{
		"fn":       KindFunction,
		"function": KindFunction,
		"field":    KindStructField,
		"module":   KindModule,
		"trait":    KindTrait,
	}
	for name, want := range tests {
		if got, ok := ParseKind(name); !ok || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", name, got, ok, want)
		}
	}
	if _, ok := ParseKind("gadget"); ok {
		t.Error("ParseKind(gadget) should fail")
	}
	if !KindMethod.IsFunction() || KindStruct.IsFunction() {
		t.Error("IsFunction misclassifies")
	}
}
