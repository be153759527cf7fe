// Package docset holds the decoded crate indexes and implementor registry
// that the query engine and daemon serve from.
package docset

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jcdickinson/ferrisindex/internal/implementors"
	"github.com/jcdickinson/ferrisindex/internal/searchindex"
)

// Set owns crate indexes in load order and one implementor registry.
// Reloading a crate replaces its index in place without changing its
// position.
type Set struct {
	mu       sync.RWMutex
	crates   *orderedmap.OrderedMap[string, *searchindex.CrateIndex]
	registry *implementors.Registry
}

// New returns an empty set with an Uninitialized registry.
func New() *Set {
	return &Set{
		crates:   orderedmap.New[string, *searchindex.CrateIndex](),
		registry: implementors.New(),
	}
}

// Registry returns the set's implementor registry.
func (s *Set) Registry() *implementors.Registry { return s.registry }

// Add stores indexes, replacing any earlier index with the same crate name.
func (s *Set) Add(indexes ...*searchindex.CrateIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range indexes {
		s.crates.Set(idx.Name(), idx)
	}
}

// Indexes returns the indexes in load order. The slice is a copy; the
// indexes themselves are shared and read-only.
func (s *Set) Indexes() []*searchindex.CrateIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*searchindex.CrateIndex, 0, s.crates.Len())
	for pair := s.crates.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Select returns the indexes named in crates, in load order. An empty
// filter selects every index.
func (s *Set) Select(crates []string) []*searchindex.CrateIndex {
	if len(crates) == 0 {
		return s.Indexes()
	}
	want := make(map[string]bool, len(crates))
	for _, c := range crates {
		want[c] = true
	}
	var out []*searchindex.CrateIndex
	for _, idx := range s.Indexes() {
		if want[idx.Name()] {
			out = append(out, idx)
		}
	}
	return out
}

// Crate returns the index for name.
func (s *Set) Crate(name string) (*searchindex.CrateIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crates.Get(name)
}

// Crates returns crate names in load order.
func (s *Set) Crates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.crates.Len())
	for pair := s.crates.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Remove drops a crate's index. It reports whether the crate was loaded.
func (s *Set) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.crates.Delete(name)
	return ok
}

// Resolve finds the item at path in any loaded crate, searching in load
// order.
func (s *Set) Resolve(path string) (searchindex.SymbolEntry, bool) {
	for _, idx := range s.Indexes() {
		if ids := idx.Lookup(path); len(ids) > 0 {
			return idx.Entry(ids[0]), true
		}
	}
	return searchindex.SymbolEntry{}, false
}
