// Package markdown flattens student notes written in markdown into plain text
// suitable for a prompt.
package markdown

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalizer converts markdown to plain text using the goldmark parser.
type Normalizer struct {
	parser goldmark.Markdown
}

// NewNormalizer creates a Normalizer with the default CommonMark parser.
func NewNormalizer() *Normalizer {
	return &Normalizer{parser: goldmark.New()}
}

// PlainText drops markup and raw HTML, keeps text, code and link labels, and
// puts each block on its own line. List items are prefixed with "- ".
func (n *Normalizer) PlainText(source []byte) string {
	doc := n.parser.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := node.(type) {
		case *ast.Text:
			if entering {
				b.Write(v.Segment.Value(source))
				if v.SoftLineBreak() || v.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(v.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(v.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(source))
				}
				endLine(&b)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if entering {
				b.WriteString("- ")
			}
		case *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}

		if !entering && node.Type() == ast.TypeBlock {
			endLine(&b)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankRuns.ReplaceAllString(b.String(), "\n\n"))
}

func endLine(b *strings.Builder) {
	s := b.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}
