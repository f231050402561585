package chunk

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	astext "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	gmtext "github.com/yuin/goldmark/text"
)

// mdParser is shared across calls; goldmark parsers are safe for
// concurrent Parse calls once configured.
var mdParser = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// walkFrame is a single frame of the non-recursive AST traversal stack,
// the same shape the markdown chunker uses to avoid recursion depth
// limits on deeply nested documents.
type walkFrame struct {
	node     ast.Node
	entering bool
}

// goldmarkHints reports the structural node kinds goldmark's parser
// recognizes in a single paragraph's raw text. It corroborates (never
// overrides) the regex-based heading/table/list rules: a paragraph that
// is itself valid Markdown table/list/heading syntax is additional
// evidence, but the regex rules in heading.go/tablelist.go remain
// authoritative for non-Markdown signals (ALL-CAPS lines, BÖLÜM/KISIM/
// MADDE keywords, tab-delimited tables).
type goldmarkHints struct {
	heading bool
	table   bool
	list    bool
}

// detectMarkdownStructure parses paragraphText as a standalone Markdown
// fragment and walks its AST with an explicit stack, collecting the node
// kinds present. The parser is never asked to render HTML here: only its
// AST traversal is used, because the table/list/heading rules here are
// regex-defined, not Markdown-defined.
func detectMarkdownStructure(paragraphText string) goldmarkHints {
	var hints goldmarkHints
	if paragraphText == "" {
		return hints
	}

	source := []byte(paragraphText)
	doc := mdParser.Parser().Parse(gmtext.NewReader(source))

	stack := []walkFrame{{node: doc, entering: true}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !frame.entering {
			continue
		}

		switch frame.node.(type) {
		case *ast.Heading:
			hints.heading = true
		case *ast.List:
			hints.list = true
		case *astext.Table:
			hints.table = true
		}

		if frame.node.HasChildren() {
			child := frame.node.LastChild()
			for child != nil {
				stack = append(stack, walkFrame{node: child, entering: true})
				child = child.PreviousSibling()
			}
		}
	}

	return hints
}
