package txt

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

// Writer implements ir.Writer for plain text output: the ContentNode tree
// is walked in reading order and flattened to lines, per spec.md §4.4.2.
type Writer struct{}

var _ ir.Writer = Writer{}

func (Writer) Write(ctx context.Context, doc *ir.Document, dst io.Writer, opts ir.WriteOptions) error {
	var b strings.Builder
	if doc.FormatOrigin.HadBOM {
		b.Write(encoding.BOM)
	}

	first := true
	blank := func() {
		if !first {
			b.WriteString("\n\n")
		}
		first = false
	}

	for _, ch := range doc.Chapters {
		if ch.Title != "" {
			blank()
			b.WriteString(ch.Title)
		}
		for _, node := range ch.Content {
			select {
			case <-ctx.Done():
				return &ir.CancelledError{}
			default:
			}
			blank()
			writeContentNode(&b, doc, &node)
		}
	}
	b.WriteString("\n")

	_, err := dst.Write([]byte(b.String()))
	return err
}

func writeContentNode(b *strings.Builder, doc *ir.Document, n *ir.ContentNode) {
	switch n.Kind {
	case ir.NodeParagraph:
		b.WriteString(inlinesToText(n.Paragraph.Inlines))
	case ir.NodeHeading:
		b.WriteString(inlinesToText(n.Heading.Inlines))
	case ir.NodeList:
		for i, item := range n.List.Items {
			prefix := "- "
			if n.List.Ordered {
				prefix = strconv.Itoa(i+1) + ". "
			}
			var parts []string
			for _, block := range item {
				var inner strings.Builder
				writeContentNode(&inner, doc, &block)
				parts = append(parts, inner.String())
			}
			b.WriteString(prefix + strings.Join(parts, " "))
			if i != len(n.List.Items)-1 {
				b.WriteString("\n")
			}
		}
	case ir.NodeTable:
		rows := n.Table.Rows
		if len(n.Table.Header) > 0 {
			rows = append([][][]ir.InlineNode{n.Table.Header}, rows...)
		}
		for i, row := range rows {
			cells := make([]string, len(row))
			for j, cell := range row {
				cells[j] = inlinesToText(cell)
			}
			b.WriteString(strings.Join(cells, "\t"))
			if i != len(rows)-1 {
				b.WriteString("\n")
			}
		}
	case ir.NodeBlockQuote:
		for i, child := range n.BlockQuote.Children {
			if i > 0 {
				b.WriteString("\n")
			}
			writeContentNode(b, doc, &child)
		}
	case ir.NodeCodeBlock:
		b.WriteString(n.CodeBlock.Code)
	case ir.NodeImage:
		b.WriteString(fmt.Sprintf("[image: %s]", n.Image.Alt))
	case ir.NodeHorizontalRule:
		b.WriteString("----------")
	case ir.NodeRawPassthrough:
		// No markup model in plain text; the literal is dropped silently,
		// matching RawPassthroughNode's opaque-to-incompatible-writers contract.
	}
}

func inlinesToText(inlines []ir.InlineNode) string {
	var b strings.Builder
	for _, in := range inlines {
		switch in.Kind {
		case ir.InlineText, ir.InlineCode:
			b.WriteString(in.Text)
		case ir.InlineLineBreak:
			b.WriteString("  \n")
		case ir.InlineEmphasis, ir.InlineStrong, ir.InlineSuperscript, ir.InlineSubscript, ir.InlineLink:
			b.WriteString(inlinesToText(in.Children))
		case ir.InlineRuby:
			if in.Ruby != nil {
				b.WriteString(in.Ruby.Base)
			}
		}
	}
	return b.String()
}
