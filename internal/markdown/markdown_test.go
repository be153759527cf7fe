package markdown

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "empty", src: "  ", want: ""},
		{name: "plain", src: "scan Wabbit source code", want: "scan Wabbit source code"},
		{name: "rustdoc code tag", src: "a <code>WebAssembly</code> interpreter", want: "a `WebAssembly` interpreter"},
		{name: "markdown code span", src: "Calls `U::from(self)`.", want: "Calls `U::from(self)`."},
		{name: "emphasis and link", src: "the *current* [depth](https://example.org) of calls", want: "the current depth of calls"},
		{name: "entity", src: "borrowed &amp; owned", want: "borrowed & owned"},
		{name: "paragraphs", src: "first line\n\nsecond line", want: "first line second line"},
		{name: "other tags dropped", src: "an <em>emphasised</em> word", want: "an emphasised word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PlainText(tt.src); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	src := "check if a name is already used by a variable name in the current scope"
	got := Summary(src, 40)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if n := len([]rune(got)); n > 40 {
		t.Errorf("summary has %d runes", n)
	}
	if !strings.HasPrefix(src, strings.TrimSuffix(got, "…")) {
		t.Errorf("summary %q is not a prefix of the source", got)
	}

	if got := Summary("short", 40); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Summary(src, 0); got != src {
		t.Errorf("width 0 should not cut, got %q", got)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	got := Render(Document{
		Title:     "wabbit::types::WabbitType::from",
		Kind:      "method",
		Signature: "fn(char) -> WabbitType",
		Doc:       "Returns the argument <code>unchanged</code>.",
		Meta:      map[string]string{"crate": "wabbit"},
		Sections: []Section{
			{Heading: "Implementations", Items: []string{"impl Clone for WabbitType"}},
			{Heading: "Empty"},
		},
	})

	for _, want := range []string{
		"---\ncrate: wabbit\n---\n\n",
		"# wabbit::types::WabbitType::from\n",
		"**Kind:** method",
		"```rust\nfn(char) -> WabbitType\n```",
		"Returns the argument `unchanged`.",
		"## Implementations\n\n- `impl Clone for WabbitType`",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered document missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "## Empty") {
		t.Error("empty section rendered")
	}
}

func TestAddFrontMatter(t *testing.T) {
	t.Parallel()

	t.Run("sorted_keys", func(t *testing.T) {
		got := AddFrontMatter("body", map[string]string{
			"z-key": "last",
			"a-key": "first",
		})
		if !strings.HasPrefix(got, "---\n") || !strings.HasSuffix(got, "body") {
			t.Errorf("malformed front matter: %q", got)
		}
		if strings.Index(got, "a-key") > strings.Index(got, "z-key") {
			t.Error("keys not sorted alphabetically")
		}
	})

	t.Run("empty_map", func(t *testing.T) {
		if got := AddFrontMatter("body", nil); got != "body" {
			t.Errorf("expected unchanged for empty map, got %q", got)
		}
	})
}
