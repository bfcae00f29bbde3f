package synthesis

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var transcriptParser = goldmark.New().Parser()

// Transcript flattens a markdown narration script into plain spoken text.
// Headings and paragraphs become sentences separated by blank lines; code
// blocks are dropped because they are never read aloud.
func Transcript(markdown string) string {
	source := []byte(markdown)
	doc := transcriptParser.Parse(text.NewReader(source))

	var out strings.Builder
	var block strings.Builder
	flush := func() {
		trimmed := strings.TrimSpace(block.String())
		block.Reset()
		if trimmed == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(trimmed)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if !entering {
				flush()
			}
		case *ast.Paragraph:
			if !entering {
				flush()
			}
		case *ast.ListItem:
			if !entering {
				flush()
			}
		case *ast.Text:
			if entering {
				block.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					block.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	flush()
	return out.String()
}
