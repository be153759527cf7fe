package typeref

import "testing"

func mustParse(t *testing.T, s string) TypeRef {
	t.Helper()
	ref, err := ParseExpr(s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ref
}

func TestUnify(t *testing.T) {
	t.Parallel()

	vecT := Named{Name: "Vec", Args: []TypeRef{Generic{Position: 0}}}

	tests := []struct {
		name      string
		query     string
		candidate TypeRef
		want      bool
	}{
		{"exact_primitive", "char", Primitive{Name: "char"}, true},
		{"mismatch", "char", Primitive{Name: "i32"}, false},
		{"bare_name_ignores_args", "Vec", vecT, true},
		{"arg_binds_candidate_generic", "Vec<u8>", vecT, true},
		{"query_generic_matches_anything", "T", Named{Name: "Token"}, true},
		{"qualified_candidate", "Token", Named{Name: "wabbit::tokens::Token"}, true},
		{"arity_mismatch", "Result<u8>", Named{Name: "Result", Args: []TypeRef{Primitive{Name: "u8"}, Named{Name: "Error"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unify(mustParse(t, tt.query), tt.candidate, NewBindings()); got != tt.want {
				t.Errorf("Unify(%s, %s) = %v, want %v", tt.query, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestUnify_CandidateGenericConsistency(t *testing.T) {
	t.Parallel()

	// fn(T, T): both positions must bind to the same query type.
	inputs := []TypeRef{Generic{Position: 0}, Generic{Position: 0}}

	b, ok := AlignInputs([]TypeRef{mustParse(t, "char"), mustParse(t, "char")}, inputs, NewBindings())
	if !ok {
		t.Fatal("expected char, char to align with T, T")
	}
	if bound, _ := b.Candidate(0); !Equal(bound, Primitive{Name: "char"}) {
		t.Errorf("expected T bound to char, got %v", bound)
	}

	if _, ok := AlignInputs([]TypeRef{mustParse(t, "char"), mustParse(t, "i32")}, inputs, NewBindings()); ok {
		t.Error("char, i32 must not align with T, T")
	}
}

func TestUnify_QueryGenericConsistency(t *testing.T) {
	t.Parallel()

	inputs := []TypeRef{Primitive{Name: "char"}, Primitive{Name: "i32"}}
	if _, ok := AlignInputs([]TypeRef{mustParse(t, "T"), mustParse(t, "T")}, inputs, NewBindings()); ok {
		t.Error("query T, T must not bind to two different types")
	}
	if _, ok := AlignInputs([]TypeRef{mustParse(t, "T"), mustParse(t, "U")}, inputs, NewBindings()); !ok {
		t.Error("query T, U should align with char, i32")
	}
}

func TestAlignInputs_OrderInsensitive(t *testing.T) {
	t.Parallel()

	inputs := []TypeRef{Named{Name: "Parser"}, Primitive{Name: "char"}}
	if _, ok := AlignInputs([]TypeRef{mustParse(t, "char"), mustParse(t, "Parser")}, inputs, NewBindings()); !ok {
		t.Error("expected order-insensitive alignment")
	}
	if _, ok := AlignInputs([]TypeRef{mustParse(t, "char"), mustParse(t, "char")}, inputs, NewBindings()); ok {
		t.Error("a candidate input must not be used twice")
	}
	if _, ok := AlignInputs([]TypeRef{mustParse(t, "char"), mustParse(t, "Parser"), mustParse(t, "u8")}, inputs, NewBindings()); ok {
		t.Error("more query types than inputs must not align")
	}
}
