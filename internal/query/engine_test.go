package query

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jcdickinson/ferrisindex/internal/searchindex"
)

func decode(t *testing.T, crate, record string) *searchindex.CrateIndex {
	t.Helper()
	var raw searchindex.RawRecord
	if err := json.Unmarshal([]byte(record), &raw); err != nil {
		t.Fatal(err)
	}
	idx, err := searchindex.Decode(crate, &raw)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func paths(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{"t":"DDD","n":["a","b","c"]}`)
	e := newEngine(t)
	for _, q := range []string{"", "  ", "->"} {
		if got := e.SearchString(q, []*searchindex.CrateIndex{idx}, 10); len(got) != 0 {
			t.Errorf("%q: expected no results, got %v", q, paths(got))
		}
	}
}

func TestSearch_NameRanking(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{
		"t":"DDDDD",
		"n":["Tokem","MyToken","TokenKind","Token","Parser"]
	}`)
	results := newEngine(t).SearchString("token", []*searchindex.CrateIndex{idx}, 10)

	want := []struct {
		path  string
		match Match
	}{
		{"Token", MatchExact},
		{"TokenKind", MatchPrefix},
		{"MyToken", MatchSubstring},
		{"Tokem", MatchFuzzy},
	}
	if len(results) != len(want) {
		t.Fatalf("got %v, want %d results", paths(results), len(want))
	}
	for i, w := range want {
		if results[i].Path != w.path || results[i].Match != w.match {
			t.Errorf("result %d = %s (%v), want %s (%v)", i, results[i].Path, results[i].Match, w.path, w.match)
		}
	}
}

func TestSearch_ExactNeverBelowOthers(t *testing.T) {
	t.Parallel()

	sets := []string{
		`{"t":"DDDD","n":["parse","parser","parse_expr","parsa"]}`,
		`{"t":"DMDM","n":["Expr","expression","expr","exp"],"i":[null,0,null,2]}`,
		`{"t":"FFFF","n":["run_stmt","run","rum","runner"]}`,
	}
	queries := []string{"parse", "expr", "run"}

	e := newEngine(t)
	for _, set := range sets {
		idx := decode(t, "c", set)
		for _, q := range queries {
			results := e.SearchString(q, []*searchindex.CrateIndex{idx}, 0)
			seenOther := false
			for _, r := range results {
				if r.Match != MatchExact {
					seenOther = true
					continue
				}
				if seenOther {
					t.Errorf("query %q: exact match %s ranked below a weaker match in %v", q, r.Path, paths(results))
				}
			}
		}
	}
}

func TestSearch_TieBreakDrainsAllCrates(t *testing.T) {
	t.Parallel()

	first := decode(t, "alpha", `{"t":"AF","n":["long_module","run"],"i":[null,0],"q":[[0,"alpha"]]}`)
	second := decode(t, "b", `{"t":"F","n":["run"],"q":[[0,"b"]]}`)

	results := newEngine(t).SearchString("run", []*searchindex.CrateIndex{first, second}, 1)
	if len(results) != 1 || results[0].Path != "b::run" {
		t.Errorf("got %v, want [b::run]", paths(results))
	}

	// Equal length paths fall back to lexicographic order.
	x := decode(t, "x", `{"t":"F","n":["run"],"q":[[0,"zz"]]}`)
	y := decode(t, "y", `{"t":"F","n":["run"],"q":[[0,"aa"]]}`)
	results = newEngine(t).SearchString("run", []*searchindex.CrateIndex{x, y}, 0)
	if got := paths(results); len(got) != 2 || got[0] != "aa::run" || got[1] != "zz::run" {
		t.Errorf("got %v, want [aa::run zz::run]", got)
	}
}

func TestSearch_KindFilterAndQualifier(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{
		"t":"ADFDF",
		"n":["tokens","Token","token","Token","token"],
		"i":[null,0,0,null,null],
		"q":[[0,"wabbit"],[3,"wabbit::ast"],[4,"wabbit::ast"]]
	}`)
	e := newEngine(t)
	indices := []*searchindex.CrateIndex{idx}

	got := paths(e.SearchString("kind:fn token", indices, 0))
	if len(got) != 2 || got[0] != "wabbit::ast::token" || got[1] != "wabbit::tokens::token" {
		t.Errorf("kind:fn token = %v", got)
	}

	got = paths(e.SearchString("tokens::Token", indices, 0))
	if len(got) != 2 || got[0] != "wabbit::tokens::Token" {
		t.Errorf("tokens::Token = %v", got)
	}
	for _, p := range got {
		if p == "wabbit::ast::Token" {
			t.Errorf("qualified query matched outside its qualifier: %v", got)
		}
	}
}

func TestSearch_QualifierMatchesWholeSegments(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{
		"t":"DDDD",
		"n":["Token","Token","Token","Token"],
		"q":[[0,"wabbit::past"],[1,"wabbit::ast"],[2,"ast"],[3,"wabbit::ast::inner"]]
	}`)
	got := paths(newEngine(t).SearchString("ast::Token", []*searchindex.CrateIndex{idx}, 0))

	want := []string{"ast::Token", "wabbit::ast::Token", "wabbit::ast::inner::Token"}
	if !slices.Equal(got, want) {
		t.Errorf("ast::Token = %v, want %v", got, want)
	}
}

func TestSearch_FuzzyUsesConfiguredDistance(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{"t":"DF","n":["Token","scan"]}`)
	indices := []*searchindex.CrateIndex{idx}

	tests := []struct {
		name    string
		divisor int
		query   string
		want    []string
	}{
		{name: "two edits", query: "tokne", want: []string{"Token"}},
		{name: "transposition", query: "toekn", want: []string{"Token"}},
		{name: "beyond limit", query: "tqxyzn", want: []string{}},
		{name: "length scaled", divisor: 3, query: "tokne", want: []string{}},
		{name: "length scaled one edit", divisor: 3, query: "tokem", want: []string{"Token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.EditLengthDivisor = tt.divisor
			e, err := NewEngine(opts)
			if err != nil {
				t.Fatal(err)
			}
			got := paths(e.SearchString(tt.query, indices, 0))
			if !slices.Equal(got, tt.want) {
				t.Errorf("%q = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSearch_TypeShaped(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{
		"t":"EFFFFDF",
		"n":["WabbitType","from","clone","convert","lex","Scanner","cast"],
		"i":[null,0,0,null,null,null,null],
		"f":[0,[[1],2],[[2],2],[[-1],[-1]],[[3,1],4],0,[[-1],[-2]]],
		"p":[[15,"char"],[4,"WabbitType"],[3,"Scanner"],[3,"Token"]]
	}`)
	e := newEngine(t)
	indices := []*searchindex.CrateIndex{idx}

	results := e.SearchString("char -> WabbitType", indices, 0)
	if len(results) == 0 || results[0].Path != "WabbitType::from" {
		t.Fatalf("got %v, want WabbitType::from first", paths(results))
	}
	if results[0].Match != MatchType {
		t.Errorf("match = %v", results[0].Match)
	}
	// cast<T, U>(T) -> U matches too, but only through generics, and
	// convert<T>(T) -> T cannot bind T to both char and WabbitType.
	if len(results) != 2 || results[1].Path != "cast" || results[1].Score >= results[0].Score {
		t.Errorf("got %v with scores", paths(results))
	}

	// Inputs are matched regardless of order.
	results = e.SearchString("char, Scanner -> Token", indices, 0)
	if len(results) != 1 || results[0].Path != "lex" {
		t.Errorf("got %v, want [lex]", paths(results))
	}

	// A query generic binds consistently within one candidate.
	results = e.SearchString("T -> T", indices, 0)
	got := map[string]bool{}
	for _, r := range results {
		got[r.Path] = true
	}
	if !got["WabbitType::clone"] || !got["convert"] || got["WabbitType::from"] {
		t.Errorf("T -> T = %v", paths(results))
	}
}

func TestSearch_SkipsUnresolvedSignaturesForTypesOnly(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{"t":"F","n":["broken"],"f":[[[9],1]],"p":[[15,"char"]]}`)
	e := newEngine(t)
	indices := []*searchindex.CrateIndex{idx}

	if got := e.SearchString("char -> char", indices, 0); len(got) != 0 {
		t.Errorf("type query should skip unresolved item, got %v", paths(got))
	}
	if got := e.SearchString("broken", indices, 0); len(got) != 1 {
		t.Errorf("name query should still find unresolved item, got %v", paths(got))
	}
}

func TestSearch_DoesNotMutateIndices(t *testing.T) {
	t.Parallel()

	idx := decode(t, "wabbit", `{"t":"DMF","n":["Token","line","lex"],"i":[null,0,null],"f":[0,0,[[1],2]],"p":[[15,"char"],[3,"Token"]]}`)
	before := make([]searchindex.SymbolEntry, idx.Len())
	for id := range before {
		before[id] = idx.Entry(id)
	}

	e := newEngine(t)
	for _, q := range []string{"token", "line", "char -> Token", "kind:fn lex", "tkoen"} {
		results := e.SearchString(q, []*searchindex.CrateIndex{idx}, 0)
		for i := range results {
			results[i].Name = "mutated"
		}
	}

	for id, want := range before {
		if got := idx.Entry(id); got != want {
			t.Errorf("entry %d changed: %+v -> %+v", id, want, got)
		}
	}
}

func TestSearch_WabbitIndex(t *testing.T) {
	t.Parallel()

	crates, err := searchindex.ReadFile(filepath.Join("..", "searchindex", "testdata", "search-index.js"))
	if err != nil {
		t.Fatal(err)
	}
	e := newEngine(t)

	results := e.SearchString("char -> WabbitType", crates, 5)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Path != "wabbit::types::WabbitType::from" || results[0].ID != 680 {
		t.Errorf("first result = %s (#%d)", results[0].Path, results[0].ID)
	}

	results = e.SearchString("WabbitType", crates, 3)
	if len(results) == 0 || results[0].Match != MatchExact {
		t.Errorf("WabbitType results = %v", paths(results))
	}
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.FuzzyWeight = opts.ExactWeight + 1
	if _, err := NewEngine(opts); err == nil {
		t.Error("expected error for out-of-order weights")
	}

	opts = DefaultOptions()
	opts.MaxEditDistance = -1
	if err := opts.Validate(); err == nil {
		t.Error("expected error for negative edit distance")
	}

	opts = DefaultOptions()
	opts.EditLengthDivisor = -1
	if err := opts.Validate(); err == nil {
		t.Error("expected error for negative edit length divisor")
	}
}

func TestOptions_ValidateRejectsTiedWeights(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tie  func(o *Options)
	}{
		{name: "exact and prefix", tie: func(o *Options) { o.PrefixWeight = o.ExactWeight }},
		{name: "prefix and substring", tie: func(o *Options) { o.SubstringWeight = o.PrefixWeight }},
		{name: "substring and fuzzy", tie: func(o *Options) { o.FuzzyWeight = o.SubstringWeight }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.tie(&opts)
			if _, err := NewEngine(opts); err == nil {
				t.Errorf("expected tied weights to be rejected: %+v", opts)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"token", "", 5},
		{"token", "token", 0},
		{"token", "tokem", 1},
		{"token", "tokne", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
