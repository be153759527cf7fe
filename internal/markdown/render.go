package markdown

import (
	"fmt"
	"sort"
	"strings"
)

// Section is a titled bullet list, such as the traits a type implements.
type Section struct {
	Heading string
	Items   []string
}

// Document is the markdown page shown for one symbol.
type Document struct {
	Title     string
	Kind      string
	Signature string
	Doc       string
	Meta      map[string]string
	Sections  []Section
}

// Render formats d as markdown with its metadata as front matter.
func Render(d Document) string {
	var content strings.Builder
	content.WriteString(fmt.Sprintf("# %s\n\n", d.Title))
	if d.Kind != "" {
		content.WriteString(fmt.Sprintf("**Kind:** %s\n\n", d.Kind))
	}
	if d.Signature != "" {
		content.WriteString(fmt.Sprintf("```rust\n%s\n```\n\n", d.Signature))
	}
	if doc := PlainText(d.Doc); doc != "" {
		content.WriteString(doc)
		content.WriteString("\n\n")
	}
	for _, s := range d.Sections {
		if len(s.Items) == 0 {
			continue
		}
		content.WriteString(fmt.Sprintf("## %s\n\n", s.Heading))
		for _, item := range s.Items {
			content.WriteString(fmt.Sprintf("- `%s`\n", item))
		}
		content.WriteString("\n")
	}
	return AddFrontMatter(strings.TrimRight(content.String(), "\n")+"\n", d.Meta)
}

// AddFrontMatter prepends a YAML front-matter block of sorted key/value
// pairs.
func AddFrontMatter(src string, fields map[string]string) string {
	if len(fields) == 0 {
		return src
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s: %s\n", k, fields[k]))
	}
	b.WriteString("---\n\n")
	b.WriteString(src)
	return b.String()
}
