package query

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jcdickinson/ferrisindex/internal/searchindex"
	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

// Match is the kind of match that produced a result.
type Match int

const (
	MatchFuzzy Match = iota
	MatchSubstring
	MatchPrefix
	MatchExact
	MatchType
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchSubstring:
		return "substring"
	case MatchFuzzy:
		return "fuzzy"
	case MatchType:
		return "type"
	}
	return fmt.Sprintf("Match(%d)", int(m))
}

func (m Match) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Options tunes matching and ranking.
type Options struct {
	MaxEditDistance int
	// EditLengthDivisor, when positive, caps the edit distance at
	// len(query)/EditLengthDivisor so short queries stay strict. Zero
	// applies MaxEditDistance to every query.
	EditLengthDivisor int
	DefaultLimit      int

	ExactWeight     float64
	PrefixWeight    float64
	SubstringWeight float64
	FuzzyWeight     float64

	TypeWeight float64
	// GenericPenalty is subtracted once per candidate generic a type query
	// had to bind, so concrete matches outrank generic ones.
	GenericPenalty float64
	// ExtraInputPenalty is subtracted per candidate input the query left
	// unmatched.
	ExtraInputPenalty float64
}

// DefaultOptions returns the stock ranking parameters.
func DefaultOptions() Options {
	return Options{
		MaxEditDistance:   2,
		DefaultLimit:      50,
		ExactWeight:       100,
		PrefixWeight:      80,
		SubstringWeight:   60,
		FuzzyWeight:       40,
		TypeWeight:        100,
		GenericPenalty:    10,
		ExtraInputPenalty: 5,
	}
}

// Validate checks that name weights are strictly ordered exact > prefix >
// substring > fuzzy.
func (o Options) Validate() error {
	if o.MaxEditDistance < 0 {
		return fmt.Errorf("max edit distance must not be negative, got %d", o.MaxEditDistance)
	}
	if o.EditLengthDivisor < 0 {
		return fmt.Errorf("edit length divisor must not be negative, got %d", o.EditLengthDivisor)
	}
	if o.ExactWeight <= o.PrefixWeight || o.PrefixWeight <= o.SubstringWeight || o.SubstringWeight <= o.FuzzyWeight {
		return fmt.Errorf("weights must satisfy exact > prefix > substring > fuzzy, got %v > %v > %v > %v",
			o.ExactWeight, o.PrefixWeight, o.SubstringWeight, o.FuzzyWeight)
	}
	return nil
}

// Result is one ranked search hit.
type Result struct {
	searchindex.SymbolEntry
	Score float64 `json:"score"`
	Match Match   `json:"match"`
}

// Engine answers queries over decoded crate indexes. It holds no per-query
// state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine returns an engine using opts.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions().DefaultLimit
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine's parameters.
func (e *Engine) Options() Options { return e.opts }

// SearchString parses s and runs Search.
func (e *Engine) SearchString(s string, indices []*searchindex.CrateIndex, limit int) []Result {
	return e.Search(Parse(s), indices, limit)
}

// Search ranks every item of every index against q. Crates are visited in
// the given order and items in id order; all matches are collected before
// sorting by score, then shorter path, then path, and truncating to limit.
// A limit <= 0 uses the default limit.
func (e *Engine) Search(q Query, indices []*searchindex.CrateIndex, limit int) []Result {
	if q.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	var results []Result
	skipped := 0
	for _, idx := range indices {
		if idx == nil {
			continue
		}
		for id := 0; id < idx.Len(); id++ {
			if q.HasKind && idx.Kind(id) != q.Kind {
				continue
			}
			var (
				score float64
				match Match
				ok    bool
			)
			if q.Typed {
				score, ok = e.matchType(q, idx, id, &skipped)
				match = MatchType
			} else {
				score, match, ok = e.matchName(q, idx, id)
			}
			if ok {
				results = append(results, Result{SymbolEntry: idx.Entry(id), Score: score, Match: match})
			}
		}
	}
	if skipped > 0 {
		slog.Debug("items excluded from type matching", "count", skipped)
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score != b.Score:
			if a.Score > b.Score {
				return -1
			}
			return 1
		case len(a.Path) != len(b.Path):
			return len(a.Path) - len(b.Path)
		}
		return strings.Compare(a.Path, b.Path)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (e *Engine) matchName(q Query, idx *searchindex.CrateIndex, id int) (float64, Match, bool) {
	if q.Qualifier != "" {
		if !hasQualifier(strings.ToLower(idx.Path(id)), strings.ToLower(q.Qualifier)) {
			return 0, 0, false
		}
	}

	name := strings.ToLower(idx.ItemName(id))
	want := strings.ToLower(q.Name)
	switch {
	case name == want:
		return e.opts.ExactWeight, MatchExact, true
	case strings.HasPrefix(name, want):
		return e.opts.PrefixWeight, MatchPrefix, true
	case strings.Contains(name, want):
		return e.opts.SubstringWeight, MatchSubstring, true
	}

	limit := e.editLimit(want)
	if limit == 0 || abs(len(name)-len(want)) > limit {
		return 0, 0, false
	}
	if d := levenshteinDistance(name, want); d <= limit {
		return e.opts.FuzzyWeight - float64(d), MatchFuzzy, true
	}
	return 0, 0, false
}

// hasQualifier reports whether qualifier appears in path as whole segments
// followed by at least one more segment.
func hasQualifier(path, qualifier string) bool {
	q := qualifier + "::"
	return strings.HasPrefix(path, q) || strings.Contains(path, "::"+q)
}

func (e *Engine) editLimit(query string) int {
	if e.opts.EditLengthDivisor > 0 {
		return min(e.opts.MaxEditDistance, len(query)/e.opts.EditLengthDivisor)
	}
	return e.opts.MaxEditDistance
}

func (e *Engine) matchType(q Query, idx *searchindex.CrateIndex, id int, skipped *int) (float64, bool) {
	if !idx.Kind(id).IsFunction() {
		return 0, false
	}
	sig, err := idx.Signature(id)
	if err != nil {
		*skipped++
		return 0, false
	}
	if sig == nil {
		return 0, false
	}

	b := typeref.NewBindings()
	if q.Output != nil && !typeref.Unify(q.Output, outputType(sig), b) {
		return 0, false
	}
	b, ok := typeref.AlignInputs(q.Inputs, sig.Inputs, b)
	if !ok {
		return 0, false
	}

	score := e.opts.TypeWeight
	score -= e.opts.GenericPenalty * float64(b.BoundGenerics())
	score -= e.opts.ExtraInputPenalty * float64(len(sig.Inputs)-len(q.Inputs))
	return score, true
}

// outputType folds a signature's outputs into one type: unit for none,
// the type itself for one, and a tuple otherwise.
func outputType(sig *typeref.Signature) typeref.TypeRef {
	switch len(sig.Output) {
	case 0:
		return typeref.Primitive{Name: "unit"}
	case 1:
		return sig.Output[0]
	}
	return typeref.Primitive{Name: "tuple", Args: sig.Output}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
