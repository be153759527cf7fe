package markdown

import (
	"html"
	"strings"
	"unicode/utf8"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// PlainText flattens a doc summary to one line of text. Summaries may be
// markdown or the inline HTML rustdoc emits; code spans in either form
// are kept in backticks and every other tag is dropped.
func PlainText(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}

	doc := gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))

	var b strings.Builder
	ast.WalkFunc(doc, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.BlockQuote:
				b.WriteByte(' ')
			}
			return ast.GoToNext
		}
		switch n := n.(type) {
		case *ast.Code:
			b.WriteString("`" + string(n.Literal) + "`")
		case *ast.HTMLSpan:
			tag := strings.ToLower(string(n.Literal))
			if tag == "<code>" || tag == "</code>" {
				b.WriteByte('`')
			}
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte(' ')
		case *ast.CodeBlock:
			b.WriteString(" " + string(n.Literal) + " ")
		default:
			if leaf := n.AsLeaf(); leaf != nil && leaf.Literal != nil {
				b.Write(leaf.Literal)
			}
		}
		return ast.GoToNext
	})
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

// Summary is PlainText cut to at most width runes, ending in an ellipsis
// when cut. A width <= 0 disables the cut.
func Summary(src string, width int) string {
	text := PlainText(src)
	if width <= 0 || utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	cut := strings.TrimRight(string(runes[:width-1]), " ")
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
