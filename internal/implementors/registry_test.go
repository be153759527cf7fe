package implementors

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
)

func entry(trait, forType string) Entry {
	return Entry{TraitPath: trait, ForTypePath: forType}
}

func TestRegistry_LoopControlBeforeReady(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.SubmitShard(Shard{Crate: "wabbit", Entries: []Entry{entry("Clone", "LoopControl")}}); err != nil {
		t.Fatal(err)
	}
	if r.State() != Uninitialized || r.Pending() != 1 {
		t.Fatalf("state=%v pending=%d", r.State(), r.Pending())
	}
	if got := r.Lookup("LoopControl"); len(got) != 0 {
		t.Fatalf("buffered shard visible before MarkReady: %v", got)
	}

	r.MarkReady()

	got := r.Lookup("LoopControl")
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].TraitPath != "Clone" || got[0].Crate != "wabbit" {
		t.Errorf("got %+v", got[0])
	}
	if r.State() != Ready || r.Pending() != 0 {
		t.Errorf("state=%v pending=%d", r.State(), r.Pending())
	}
}

func TestRegistry_MarkReadyIdempotent(t *testing.T) {
	t.Parallel()

	once, twice := New(), New()
	calls := 0
	twice.OnMerge(func(string, []Entry) { calls++ })

	for _, r := range []*Registry{once, twice} {
		r.SubmitShard(Shard{Crate: "wabbit", Entries: []Entry{entry("Clone", "Token")}})
	}
	once.MarkReady()
	twice.MarkReady()
	twice.MarkReady()

	if !reflect.DeepEqual(once.Snapshot(), twice.Snapshot()) {
		t.Errorf("snapshots differ: %v vs %v", once.Snapshot(), twice.Snapshot())
	}
	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func testShards() []Shard {
	return []Shard{
		{Crate: "wabbit", Entries: []Entry{entry("Clone", "LoopControl"), entry("Clone", "Token")}},
		{Crate: "core_ext", Entries: []Entry{entry("From", "WabbitType")}},
		{Crate: "wabbit", Entries: []Entry{entry("Freeze", "LoopControl")}},
		{Crate: "wabbit_rs", Entries: []Entry{entry("Debug", "Cli")}},
		{Crate: "core_ext", Entries: []Entry{entry("Into", "WabbitType"), entry("Clone", "LoopControl")}},
	}
}

func TestRegistry_ArrivalOrderIndependence(t *testing.T) {
	t.Parallel()

	shards := testShards()

	baseline := New()
	baseline.MarkReady()
	for _, s := range shards {
		if err := baseline.SubmitShard(s); err != nil {
			t.Fatal(err)
		}
	}

	for split := 0; split <= len(shards); split++ {
		t.Run(fmt.Sprintf("ready_after_%d", split), func(t *testing.T) {
			r := New()
			for _, s := range shards[:split] {
				r.SubmitShard(s)
			}
			r.MarkReady()
			for _, s := range shards[split:] {
				r.SubmitShard(s)
			}

			if !reflect.DeepEqual(r.Snapshot(), baseline.Snapshot()) {
				t.Errorf("snapshot differs from baseline")
			}
			if !slices.Equal(r.Crates(), baseline.Crates()) {
				t.Errorf("crates = %v, want %v", r.Crates(), baseline.Crates())
			}
			if !reflect.DeepEqual(r.Lookup("LoopControl"), baseline.Lookup("LoopControl")) {
				t.Errorf("lookup differs: %v", r.Lookup("LoopControl"))
			}
		})
	}
}

func TestRegistry_ConcurrentSubmit(t *testing.T) {
	t.Parallel()

	shards := testShards()
	r := New()

	var wg sync.WaitGroup
	for i, s := range shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.SubmitShard(s)
		}()
		if i == len(shards)/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.MarkReady()
			}()
		}
	}
	wg.Wait()
	r.MarkReady()

	want := map[string]int{}
	for _, s := range shards {
		want[s.Crate] += len(s.Entries)
	}
	got := r.Snapshot()
	for crate, n := range want {
		if len(got[crate]) != n {
			t.Errorf("crate %s has %d entries, want %d", crate, len(got[crate]), n)
		}
	}
	if r.Len() != 7 {
		t.Errorf("Len() = %d, want 7", r.Len())
	}
}

func TestRegistry_MisuseDropsShard(t *testing.T) {
	t.Parallel()

	r := New()
	r.MarkReady()

	bad := []Shard{
		{Crate: "", Entries: []Entry{entry("Clone", "Token")}},
		{Crate: "wabbit", Entries: []Entry{entry("Clone", "Token"), entry("", "Expr")}},
		{Crate: "wabbit", Entries: []Entry{entry("Clone", "")}},
		{Crate: "wabbit", Entries: []Entry{{Crate: "other", TraitPath: "Clone", ForTypePath: "Token"}}},
	}
	for i, s := range bad {
		err := r.SubmitShard(s)
		if !errors.Is(err, ErrRegistryMisuse) {
			t.Errorf("shard %d: expected ErrRegistryMisuse, got %v", i, err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("misused shards must be dropped entirely, got %v", r.Snapshot())
	}

	if err := r.SubmitShard(Shard{Crate: "wabbit", Entries: []Entry{entry("Clone", "Token")}}); err != nil {
		t.Fatal(err)
	}
	if got := r.Lookup("Token"); len(got) != 1 {
		t.Errorf("valid shard after misuse: got %v", got)
	}
}

func TestRegistry_RepeatedShardsRetained(t *testing.T) {
	t.Parallel()

	r := New()
	s := Shard{Crate: "wabbit", Entries: []Entry{entry("Clone", "Token")}}
	r.SubmitShard(s)
	r.MarkReady()
	r.SubmitShard(s)

	if got := r.Lookup("Token"); len(got) != 2 {
		t.Errorf("got %d entries, want both submissions retained", len(got))
	}
}

func TestRegistry_ListenersSeeBufferOrder(t *testing.T) {
	t.Parallel()

	r := New()
	var seen []string
	r.OnMerge(func(crate string, entries []Entry) {
		seen = append(seen, fmt.Sprintf("%s:%d", crate, len(entries)))
	})

	r.SubmitShard(Shard{Crate: "b", Entries: []Entry{entry("Clone", "X")}})
	r.SubmitShard(Shard{Crate: "a", Entries: []Entry{entry("Clone", "Y"), entry("Clone", "Z")}})
	if len(seen) != 0 {
		t.Fatalf("listener called before MarkReady: %v", seen)
	}
	r.MarkReady()
	r.SubmitShard(Shard{Crate: "c", Entries: []Entry{entry("Clone", "W")}})

	want := []string{"b:1", "a:2", "c:1"}
	if !slices.Equal(seen, want) {
		t.Errorf("seen %v, want %v", seen, want)
	}
	if got := r.Crates(); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("Crates() = %v", got)
	}
}

func TestRegistry_ListenersSeeMergeOrderUnderContention(t *testing.T) {
	t.Parallel()

	r := New()
	var notified []string
	r.OnMerge(func(crate string, _ []Entry) {
		notified = append(notified, crate)
	})
	for i := 0; i < 10; i++ {
		r.SubmitShard(Shard{Crate: fmt.Sprintf("early%d", i), Entries: []Entry{entry("Clone", "T")}})
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.SubmitShard(Shard{Crate: fmt.Sprintf("late%d", i), Entries: []Entry{entry("Send", "T")}})
		}()
	}
	r.MarkReady()
	wg.Wait()

	if want := r.Crates(); !slices.Equal(notified, want) {
		t.Errorf("notified %v, merged %v", notified, want)
	}
}

func TestRegistry_LookupOrderAndImplementorsOf(t *testing.T) {
	t.Parallel()

	r := New()
	r.MarkReady()
	r.SubmitShard(Shard{Crate: "second", Entries: []Entry{entry("Debug", "Token")}})
	r.SubmitShard(Shard{Crate: "first", Entries: []Entry{entry("Clone", "Token"), entry("Clone", "Expr")}})
	r.SubmitShard(Shard{Crate: "second", Entries: []Entry{entry("Clone", "Token")}})

	got := r.Lookup("Token")
	var order []string
	for _, e := range got {
		order = append(order, e.Crate+"/"+e.TraitPath)
	}
	if want := []string{"second/Debug", "second/Clone", "first/Clone"}; !slices.Equal(order, want) {
		t.Errorf("Lookup order = %v, want %v", order, want)
	}

	if got := r.ImplementorsOf("Clone"); len(got) != 3 {
		t.Errorf("ImplementorsOf(Clone) = %d entries", len(got))
	}
	if got := r.Lookup("wabbit::Token"); len(got) != 0 {
		t.Errorf("lookup must match the exact path, got %v", got)
	}
}

func TestRegistry_SubmittedEntriesAreCopied(t *testing.T) {
	t.Parallel()

	r := New()
	r.MarkReady()
	entries := []Entry{entry("Clone", "Token")}
	r.SubmitShard(Shard{Crate: "wabbit", Entries: entries})
	entries[0].ForTypePath = "Mutated"

	if got := r.Lookup("Token"); len(got) != 1 {
		t.Errorf("caller mutation leaked into the registry")
	}
}
