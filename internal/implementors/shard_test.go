package implementors

import (
	"errors"
	"testing"

	"github.com/jcdickinson/ferrisindex/internal/typeref"
)

func TestDecodeShard(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"crate": "wabbit",
		"implementors": [
			{"trait": "core::clone::Clone", "for": "wabbit::operators::LoopControl"},
			{
				"trait": "core::clone::Clone",
				"for": "wabbit::environment::VarStore",
				"for_type": "VarStore<T>",
				"generics": [{"name": "T", "bounds": ["Clone"]}]
			},
			{
				"trait": "core::marker::Send",
				"for": "wabbit::analyzer::Analyzer",
				"synthetic": true,
				"auto_trait_deps": ["wabbit::environment::Environment"]
			},
			{
				"trait": "core::convert::From",
				"trait_type": "From<char>",
				"for": "wabbit::types::WabbitType",
				"text": "impl From<char> for WabbitType"
			}
		]
	}`)

	s, err := DecodeShard("ignored", data)
	if err != nil {
		t.Fatal(err)
	}
	if s.Crate != "wabbit" || len(s.Entries) != 4 {
		t.Fatalf("got crate %q with %d entries", s.Crate, len(s.Entries))
	}

	loop := s.Entries[0]
	if loop.Text != "impl core::clone::Clone for wabbit::operators::LoopControl" {
		t.Errorf("rendered text = %q", loop.Text)
	}

	store := s.Entries[1]
	if got := store.Text; got != "impl<T: Clone> core::clone::Clone for wabbit::environment::VarStore<T>" {
		t.Errorf("rendered text = %q", got)
	}
	if len(store.GenericParams) != 1 || !RequiresBound(store, typeref.Named{Name: "Clone"}) {
		t.Errorf("generic params = %+v", store.GenericParams)
	}
	if Evaluate(store, nil) != Conditional {
		t.Errorf("bounded impl should be conditional")
	}

	send := s.Entries[2]
	if !send.Synthetic || len(send.AutoTraitDependencies) != 1 {
		t.Errorf("synthetic entry = %+v", send)
	}

	from := s.Entries[3]
	if got := typeref.Render(from.Trait); got != "core::convert::From<char>" {
		t.Errorf("trait = %q", got)
	}
	if from.Text != "impl From<char> for WabbitType" {
		t.Errorf("explicit text replaced: %q", from.Text)
	}
}

func TestDecodeShard_DefaultsCrate(t *testing.T) {
	t.Parallel()

	s, err := DecodeShard("wabbit", []byte(`{"implementors": [{"trait": "Clone", "for": "Token"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Crate != "wabbit" {
		t.Errorf("crate = %q", s.Crate)
	}
}

func TestDecodeShard_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		wantIndex int
	}{
		{name: "not json", data: `{"crate":`, wantIndex: -1},
		{name: "missing trait", data: `{"crate": "w", "implementors": [{"for": "Token"}]}`, wantIndex: 0},
		{name: "missing for", data: `{"crate": "w", "implementors": [{"trait": "Clone", "for": "A"}, {"trait": "Clone"}]}`, wantIndex: 1},
		{name: "bad for type", data: `{"crate": "w", "implementors": [{"trait": "Clone", "for": "A", "for_type": "Vec<"}]}`, wantIndex: 0},
		{name: "bad bound", data: `{"crate": "w", "implementors": [{"trait": "Clone", "for": "A", "generics": [{"name": "T", "bounds": ["("]}]}]}`, wantIndex: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeShard("w", []byte(tt.data))
			if !errors.Is(err, ErrRegistryMisuse) {
				t.Fatalf("expected ErrRegistryMisuse, got %v", err)
			}
			var misuse *RegistryMisuseError
			if !errors.As(err, &misuse) {
				t.Fatalf("expected *RegistryMisuseError, got %T", err)
			}
			if misuse.Index != tt.wantIndex {
				t.Errorf("index = %d, want %d", misuse.Index, tt.wantIndex)
			}
		})
	}
}
