package implementors

import (
	"log/slog"
	"sync"
)

// State is the lifecycle state of a Registry.
type State int

const (
	// Uninitialized buffers submitted shards until MarkReady.
	Uninitialized State = iota
	// Ready merges shards as they arrive. It is terminal.
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Listener is called after a shard is merged, outside the registry lock.
// Listeners see shards in merge order, one call at a time. A listener may
// read the registry but must not submit shards.
type Listener func(crate string, entries []Entry)

// Registry merges implementor shards that arrive in any order relative to
// MarkReady. Shards submitted before MarkReady are buffered and merged, in
// arrival order, when the registry becomes ready.
type Registry struct {
	mu         sync.Mutex
	state      State
	registered map[string][]Entry
	order      []string
	pending    []Shard
	listeners  []Listener

	// notifyMu is taken before mu is released so notifications keep
	// merge order.
	notifyMu sync.Mutex
}

// New returns an Uninitialized registry.
func New() *Registry {
	return &Registry{registered: make(map[string][]Entry)}
}

// SubmitShard merges s, or buffers it while the registry is Uninitialized.
// A shard with an invalid entry is dropped and reported as a
// RegistryMisuseError. Repeated shards for a crate are all retained.
func (r *Registry) SubmitShard(s Shard) error {
	if err := s.validate(); err != nil {
		slog.Warn("dropping implementor shard", "crate", s.Crate, "error", err)
		return err
	}
	s = s.own()

	r.mu.Lock()
	if r.state != Ready {
		r.pending = append(r.pending, s)
		r.mu.Unlock()
		slog.Debug("buffered implementor shard", "crate", s.Crate, "entries", len(s.Entries))
		return nil
	}
	r.merge(s)
	listeners := r.listeners
	r.notifyMu.Lock()
	r.mu.Unlock()

	notify(listeners, []Shard{s})
	r.notifyMu.Unlock()
	return nil
}

// MarkReady makes the registry Ready and merges all buffered shards in the
// order they were submitted. Calling it again is a no-op.
func (r *Registry) MarkReady() {
	r.mu.Lock()
	if r.state == Ready {
		r.mu.Unlock()
		return
	}
	r.state = Ready
	drained := r.pending
	r.pending = nil
	for _, s := range drained {
		r.merge(s)
	}
	listeners := r.listeners
	r.notifyMu.Lock()
	r.mu.Unlock()

	slog.Debug("implementor registry ready", "drained", len(drained))
	notify(listeners, drained)
	r.notifyMu.Unlock()
}

// OnMerge registers l to be called for every shard merged from now on.
func (r *Registry) OnMerge(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners[:len(r.listeners):len(r.listeners)], l)
}

func (r *Registry) merge(s Shard) {
	if _, ok := r.registered[s.Crate]; !ok {
		r.order = append(r.order, s.Crate)
	}
	r.registered[s.Crate] = append(r.registered[s.Crate], s.Entries...)
}

func notify(listeners []Listener, shards []Shard) {
	for _, s := range shards {
		for _, l := range listeners {
			l(s.Crate, s.Entries)
		}
	}
}

// own copies the entry slice and stamps each entry with the shard's crate.
func (s Shard) own() Shard {
	entries := make([]Entry, len(s.Entries))
	for i, e := range s.Entries {
		e.Crate = s.Crate
		entries[i] = e
	}
	return Shard{Crate: s.Crate, Entries: entries}
}

// State returns the registry's lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending returns the number of buffered shards.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Crates returns crate names in registration order.
func (r *Registry) Crates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns every merged entry whose for-type path equals typePath, in
// crate registration order then arrival order.
func (r *Registry) Lookup(typePath string) []Entry {
	return r.filter(func(e Entry) bool { return e.ForTypePath == typePath })
}

// ImplementorsOf returns every merged entry for traitPath.
func (r *Registry) ImplementorsOf(traitPath string) []Entry {
	return r.filter(func(e Entry) bool { return e.TraitPath == traitPath })
}

func (r *Registry) filter(keep func(Entry) bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, crate := range r.order {
		for _, e := range r.registered[crate] {
			if keep(e) {
				out = append(out, e)
			}
		}
	}
	return out
}

// Snapshot returns a copy of the merged entries keyed by crate.
func (r *Registry) Snapshot() map[string][]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]Entry, len(r.registered))
	for crate, entries := range r.registered {
		out[crate] = append([]Entry(nil), entries...)
	}
	return out
}

// Len returns the number of merged entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entries := range r.registered {
		n += len(entries)
	}
	return n
}
