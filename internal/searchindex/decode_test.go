package searchindex

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

func decodeJSON(t *testing.T, crate, record string) (*CrateIndex, error) {
	t.Helper()
	var raw RawRecord
	if err := json.Unmarshal([]byte(record), &raw); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	return Decode(crate, &raw)
}

func mustDecode(t *testing.T, crate, record string) *CrateIndex {
	t.Helper()
	idx, err := decodeJSON(t, crate, record)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestDecode_TokenLine(t *testing.T) {
	t.Parallel()

	idx := mustDecode(t, "wabbit", `{"t":"DM","n":["Token","line"],"i":[null,0]}`)

	want := []string{"Token", "Token::line"}
	if idx.Len() != len(want) {
		t.Fatalf("got %d items, want %d", idx.Len(), len(want))
	}
	for id, w := range want {
		if got := idx.Path(id); got != w {
			t.Errorf("Path(%d) = %q, want %q", id, got, w)
		}
	}
	if idx.Kind(0) != KindStruct || idx.Kind(1) != KindStructField {
		t.Errorf("kinds = %v, %v", idx.Kind(0), idx.Kind(1))
	}
	if p, ok := idx.Parent(1); !ok || p != 0 {
		t.Errorf("Parent(1) = %d, %v", p, ok)
	}
}

func TestDecode_SegmentsMatchDepth(t *testing.T) {
	t.Parallel()

	idx := mustDecode(t, "wabbit", `{
		"t":"ADMFLDN",
		"n":["tokens","Token","line","lex","new","Other","Variant"],
		"i":[null,0,1,0,1,null,5]
	}`)

	for id := 0; id < idx.Len(); id++ {
		segments := len(strings.Split(idx.Path(id), "::"))
		if segments != idx.Depth(id)+1 {
			t.Errorf("item %d %q: %d segments, depth %d", id, idx.Path(id), segments, idx.Depth(id))
		}
	}
	if got := idx.Path(4); got != "tokens::Token::new" {
		t.Errorf("Path(4) = %q", got)
	}
}

func TestDecode_PathIdempotent(t *testing.T) {
	t.Parallel()

	const record = `{"t":"ADM","n":["ast","Expr","kind"],"i":[null,0,1],"q":[[0,"wabbit"]]}`
	a := mustDecode(t, "wabbit", record)
	b := mustDecode(t, "wabbit", record)

	for id := 0; id < a.Len(); id++ {
		first, second := a.Path(id), a.Path(id)
		if first != second {
			t.Errorf("Path(%d) not stable: %q then %q", id, first, second)
		}
		if first != b.Path(id) {
			t.Errorf("Path(%d) differs across decodes: %q vs %q", id, first, b.Path(id))
		}
	}
	if got := a.Path(2); got != "wabbit::ast::Expr::kind" {
		t.Errorf("Path(2) = %q", got)
	}
}

func TestDecode_QualifierBackRefs(t *testing.T) {
	t.Parallel()

	idx := mustDecode(t, "wabbit", `{
		"t":"AAD",
		"n":["ast","expr","Node"],
		"q":[[0,"wabbit"],[1,0],[2,[0,"inner"]]]
	}`)

	want := []string{"wabbit::ast", "wabbit::ast::expr", "wabbit::ast::inner::Node"}
	for id, w := range want {
		if got := idx.Path(id); got != w {
			t.Errorf("Path(%d) = %q, want %q", id, got, w)
		}
	}
	if ids := idx.Lookup("wabbit::ast::expr"); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Lookup = %v", ids)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record string
	}{
		{"names_length", `{"t":"DD","n":["A"]}`},
		{"parents_length", `{"t":"DD","n":["A","B"],"i":[null]}`},
		{"docs_length", `{"t":"DD","n":["A","B"],"d":["only one"]}`},
		{"signatures_length", `{"t":"F","n":["f"],"f":[0,0]}`},
		{"unknown_kind", `{"t":"D[","n":["A","B"]}`},
		{"forward_parent", `{"t":"MD","n":["line","Token"],"i":[1,null]}`},
		{"self_parent", `{"t":"D","n":["Token"],"i":[0]}`},
		{"forward_qualifier", `{"t":"AA","n":["a","b"],"q":[[0,1]]}`},
		{"self_qualifier", `{"t":"A","n":["a"],"q":[[0,[0,"x"]]]}`},
		{"negative_qualifier", `{"t":"DD","n":["A","B"],"q":[[1,-7]]}`},
		{"negative_qualifier_with_suffix", `{"t":"DD","n":["A","B"],"q":[[1,[-7,"x"]]]}`},
		{"qualifier_out_of_range", `{"t":"A","n":["a"],"q":[[3,"x"]]}`},
		{"duplicate_qualifier", `{"t":"AA","n":["a","b"],"q":[[1,"x"],[1,"y"]]}`},
		{"bad_type_kind", `{"t":"F","n":["f"],"p":[[99,"Nope"]]}`},
		{"bad_signature", `{"t":"F","n":["f"],"f":[[1,2,3]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeJSON(t, "broken", tt.record)
			if !errors.Is(err, ErrMalformedIndex) {
				t.Fatalf("expected ErrMalformedIndex, got %v", err)
			}
			var mie *MalformedIndexError
			if !errors.As(err, &mie) || mie.Crate != "broken" {
				t.Errorf("expected MalformedIndexError for crate broken, got %#v", err)
			}
		})
	}
}

func TestDecode_Signatures(t *testing.T) {
	t.Parallel()

	idx := mustDecode(t, "wabbit", `{
		"t":"EFF",
		"n":["WabbitType","from","broken"],
		"f":[0,[[1],2],[[7],2]],
		"p":[[15,"char"],[4,"WabbitType"]]
	}`)

	sig, err := idx.Signature(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.String(); got != "fn(char) -> WabbitType" {
		t.Errorf("signature = %q", got)
	}
	if _, ok := sig.Inputs[0].(typeref.Primitive); !ok {
		t.Errorf("char should resolve as primitive, got %T", sig.Inputs[0])
	}

	if sig, err := idx.Signature(0); err != nil || sig != nil {
		t.Errorf("Signature(0) = %v, %v; want nil, nil", sig, err)
	}

	_, err = idx.Signature(2)
	if !errors.Is(err, typeref.ErrUnknownTypeCode) {
		t.Errorf("expected ErrUnknownTypeCode, got %v", err)
	}
	if idx.SignatureErrors() != 1 {
		t.Errorf("SignatureErrors() = %d, want 1", idx.SignatureErrors())
	}
	if e := idx.Entry(2); e.Path != "broken" || e.Signature != nil {
		t.Errorf("item with bad signature should stay searchable by name, got %+v", e)
	}
}

func TestEntry(t *testing.T) {
	t.Parallel()

	idx := mustDecode(t, "wabbit", `{"doc":"crate docs","t":"DM","n":["Token","line"],"i":[null,0],"d":["A token.","Line number."]}`)

	e := idx.Entry(1)
	want := SymbolEntry{Crate: "wabbit", ID: 1, Kind: KindStructField, Name: "line", Path: "Token::line", Doc: "Line number."}
	if e != want {
		t.Errorf("got %+v, want %+v", e, want)
	}
	if idx.Doc() != "crate docs" || idx.Name() != "wabbit" {
		t.Errorf("crate metadata = %q, %q", idx.Name(), idx.Doc())
	}
}
