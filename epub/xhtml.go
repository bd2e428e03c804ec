package epub

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/security"
)

// xhtmlImporter converts a spine item's XHTML body into []ir.ContentNode.
// resolveImage turns a (possibly relative) image href into an ir resource
// ID, or "" if the target was not imported as a resource.
type xhtmlImporter struct {
	resolveImage func(href string) string
	depth        *security.DepthCounter
	enc          ir.EncodingPolicy
}

// parseXHTMLBody parses data as XHTML/HTML5, locates <body>, and converts its
// children to block-level ContentNode values. Unknown block elements are
// preserved as NodeRawPassthrough; <script> and <style> are dropped,
// unknown inline elements are flattened to their text, and stray inline
// content at block level is wrapped in a paragraph.
func (x *xhtmlImporter) parseXHTMLBody(data []byte) ([]ir.ContentNode, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, ir.NewMalformedFile("epub", "parse XHTML: "+err.Error())
	}
	body := findFirstChildElement(doc, atom.Body)
	if body == nil {
		return nil, nil
	}
	return x.blocksFromChildren(body)
}

func (x *xhtmlImporter) blocksFromChildren(n *html.Node) ([]ir.ContentNode, error) {
	if err := x.depth.Enter(); err != nil {
		return nil, err
	}
	defer x.depth.Leave()

	var out []ir.ContentNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			nodes, err := x.blockFromElement(c)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				out = append(out, ir.ContentNode{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{
					Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: x.normalize(c.Data)}},
				}})
			}
		}
	}
	return out, nil
}

func (x *xhtmlImporter) blockFromElement(n *html.Node) ([]ir.ContentNode, error) {
	switch n.DataAtom {
	case atom.P:
		return []ir.ContentNode{{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: x.inlinesFromChildren(n)}}}, nil
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return []ir.ContentNode{{Kind: ir.NodeHeading, Heading: &ir.HeadingNode{
			Level:   int(n.DataAtom - atom.H1 + 1),
			Inlines: x.inlinesFromChildren(n),
		}}}, nil
	case atom.Ul, atom.Ol:
		items, err := x.listItems(n)
		if err != nil {
			return nil, err
		}
		return []ir.ContentNode{{Kind: ir.NodeList, List: &ir.ListNode{Ordered: n.DataAtom == atom.Ol, Items: items}}}, nil
	case atom.Table:
		t, err := x.tableFromElement(n)
		if err != nil {
			return nil, err
		}
		return []ir.ContentNode{{Kind: ir.NodeTable, Table: t}}, nil
	case atom.Blockquote:
		children, err := x.blocksFromChildren(n)
		if err != nil {
			return nil, err
		}
		return []ir.ContentNode{{Kind: ir.NodeBlockQuote, BlockQuote: &ir.BlockQuoteNode{Children: children}}}, nil
	case atom.Pre:
		lang, code := codeFromPre(n)
		return []ir.ContentNode{{Kind: ir.NodeCodeBlock, CodeBlock: &ir.CodeBlockNode{Language: lang, Code: code}}}, nil
	case atom.Hr:
		return []ir.ContentNode{{Kind: ir.NodeHorizontalRule}}, nil
	case atom.Img:
		return []ir.ContentNode{x.imageNode(n)}, nil
	case atom.Figure:
		return x.figureNode(n)
	case atom.Div, atom.Section, atom.Article, atom.Body:
		return x.blocksFromChildren(n)
	case atom.Script, atom.Style:
		return nil, nil
	default:
		if isInlineContainerOnly(n) {
			return []ir.ContentNode{{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: x.inlinesFromChildren(n)}}}, nil
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err == nil {
			return []ir.ContentNode{{Kind: ir.NodeRawPassthrough, RawPassthru: &ir.RawPassthroughNode{
				FormatTag: "xhtml",
				Literal:   buf.String(),
			}}}, nil
		}
		return nil, nil
	}
}

func (x *xhtmlImporter) figureNode(n *html.Node) ([]ir.ContentNode, error) {
	var img *html.Node
	var caption string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Img:
			img = c
		case atom.Figcaption:
			caption = strings.TrimSpace(nodeTextContent(c))
		}
	}
	if img == nil {
		return x.blocksFromChildren(n)
	}
	node := x.imageNode(img)
	node.Image.Caption = caption
	return []ir.ContentNode{node}, nil
}

func (x *xhtmlImporter) imageNode(n *html.Node) ir.ContentNode {
	src := navGetAttr(n, "src")
	return ir.ContentNode{Kind: ir.NodeImage, Image: &ir.ImageNode{
		ResourceID: x.resolveImage(src),
		Alt:        navGetAttr(n, "alt"),
	}}
}

func (x *xhtmlImporter) listItems(n *html.Node) ([][]ir.ContentNode, error) {
	var items [][]ir.ContentNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		blocks, err := x.blocksFromChildren(c)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			blocks = []ir.ContentNode{{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{}}}
		}
		items = append(items, blocks)
	}
	return items, nil
}

func (x *xhtmlImporter) tableFromElement(n *html.Node) (*ir.TableNode, error) {
	t := &ir.TableNode{}
	var body *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Thead:
			if row := findFirstChildElement(c, atom.Tr); row != nil {
				t.Header = x.cellsFromRow(row)
			}
		case atom.Tbody, atom.Tfoot:
			body = c
		case atom.Tr:
			if t.Header == nil {
				t.Header = x.cellsFromRow(c)
			} else {
				t.Rows = append(t.Rows, x.cellsFromRow(c))
			}
		}
	}
	if body != nil {
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
				t.Rows = append(t.Rows, x.cellsFromRow(c))
			}
		}
	}
	return t, nil
}

func (x *xhtmlImporter) cellsFromRow(row *html.Node) [][]ir.InlineNode {
	var cells [][]ir.InlineNode
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, x.inlinesFromChildren(c))
		}
	}
	return cells
}

func (x *xhtmlImporter) inlinesFromChildren(n *html.Node) []ir.InlineNode {
	var out []ir.InlineNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if c.Data != "" {
				out = append(out, ir.InlineNode{Kind: ir.InlineText, Text: x.normalize(c.Data)})
			}
		case html.ElementNode:
			if in, ok := x.inlineFromElement(c); ok {
				out = append(out, in)
			}
		}
	}
	return out
}

func (x *xhtmlImporter) inlineFromElement(n *html.Node) (ir.InlineNode, bool) {
	switch n.DataAtom {
	case atom.Em, atom.I:
		return ir.InlineNode{Kind: ir.InlineEmphasis, Children: x.inlinesFromChildren(n)}, true
	case atom.Strong, atom.B:
		return ir.InlineNode{Kind: ir.InlineStrong, Children: x.inlinesFromChildren(n)}, true
	case atom.Code:
		return ir.InlineNode{Kind: ir.InlineCode, Text: x.normalize(nodeTextContent(n))}, true
	case atom.A:
		return ir.InlineNode{Kind: ir.InlineLink, Link: &ir.LinkInline{Href: navGetAttr(n, "href")}, Children: x.inlinesFromChildren(n)}, true
	case atom.Sup:
		return ir.InlineNode{Kind: ir.InlineSuperscript, Children: x.inlinesFromChildren(n)}, true
	case atom.Sub:
		return ir.InlineNode{Kind: ir.InlineSubscript, Children: x.inlinesFromChildren(n)}, true
	case atom.Ruby:
		return ir.InlineNode{Kind: ir.InlineRuby, Ruby: rubyFromElement(n)}, true
	case atom.Br:
		return ir.InlineNode{Kind: ir.InlineLineBreak}, true
	case atom.Span:
		return ir.InlineNode{Kind: ir.InlineText, Text: x.normalize(nodeTextContent(n))}, true
	default:
		if text := strings.TrimSpace(nodeTextContent(n)); text != "" {
			return ir.InlineNode{Kind: ir.InlineText, Text: x.normalize(text)}, true
		}
		return ir.InlineNode{}, false
	}
}

func rubyFromElement(n *html.Node) *ir.RubyInline {
	r := &ir.RubyInline{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			if c.Type == html.TextNode && r.Base == "" {
				r.Base += c.Data
			}
			continue
		}
		switch c.DataAtom {
		case atom.Rt:
			r.Annotation += nodeTextContent(c)
		case atom.Rb:
			r.Base += nodeTextContent(c)
		}
	}
	return r
}

func (x *xhtmlImporter) normalize(s string) string {
	if x.enc == nil {
		return s
	}
	return x.enc.NormalizeText(s)
}

func codeFromPre(n *html.Node) (lang, code string) {
	if codeEl := findFirstChildElement(n, atom.Code); codeEl != nil {
		class := navGetAttr(codeEl, "class")
		lang = languageFromClass(class)
		return lang, nodeTextContent(codeEl)
	}
	return "", nodeTextContent(n)
}

func languageFromClass(class string) string {
	for _, f := range strings.Fields(class) {
		if strings.HasPrefix(f, "language-") {
			return strings.TrimPrefix(f, "language-")
		}
	}
	return ""
}

// isInlineContainerOnly reports whether n has no block-level descendants,
// so it is safe to collapse to a single paragraph rather than a raw
// passthrough (covers e.g. bare <font>/<center>/<u> wrapper elements some
// legacy EPUB2 content uses).
func isInlineContainerOnly(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.P, atom.Div, atom.Ul, atom.Ol, atom.Table, atom.Blockquote, atom.Pre, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				return false
			}
			if !isInlineContainerOnly(c) {
				return false
			}
		}
	}
	return true
}
