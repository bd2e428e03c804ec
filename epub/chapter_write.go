package epub

import (
	"github.com/beevik/etree"

	"github.com/rupor-github/ebk/ir"
)

// buildChapterXHTML renders a Chapter's content tree as an XHTML document,
// following the teacher's createXHTMLDocument head/body skeleton.
func buildChapterXHTML(doc *ir.Document, ch *ir.Chapter, isEPUB3 bool) *etree.Document {
	xdoc := etree.NewDocument()
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	if !isEPUB3 {
		xdoc.CreateDirective(`DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"`)
	} else {
		xdoc.CreateDirective("DOCTYPE html")
	}

	html := xdoc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	if isEPUB3 {
		html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	}
	if ch.Direction == ir.DirectionRTL {
		html.CreateAttr("dir", "rtl")
	}

	head := html.CreateElement("head")
	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")
	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "stylesheet.css")
	title := ch.Title
	if title == "" {
		title = doc.Metadata.Title
	}
	head.CreateElement("title").SetText(title)

	body := html.CreateElement("body")
	for _, node := range ch.Content {
		appendContentNode(body, doc, &node, isEPUB3)
	}
	return xdoc
}

func appendContentNode(parent *etree.Element, doc *ir.Document, n *ir.ContentNode, isEPUB3 bool) {
	switch n.Kind {
	case ir.NodeParagraph:
		p := parent.CreateElement("p")
		appendInlines(p, n.Paragraph.Inlines, isEPUB3)
	case ir.NodeHeading:
		level := n.Heading.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		h := parent.CreateElement(headingTag(level))
		appendInlines(h, n.Heading.Inlines, isEPUB3)
	case ir.NodeList:
		tag := "ul"
		if n.List.Ordered {
			tag = "ol"
		}
		list := parent.CreateElement(tag)
		for _, item := range n.List.Items {
			li := list.CreateElement("li")
			for _, block := range item {
				appendContentNode(li, doc, &block, isEPUB3)
			}
		}
	case ir.NodeTable:
		table := parent.CreateElement("table")
		if len(n.Table.Header) > 0 {
			thead := table.CreateElement("thead")
			row := thead.CreateElement("tr")
			for _, cell := range n.Table.Header {
				th := row.CreateElement("th")
				appendInlines(th, cell, isEPUB3)
			}
		}
		tbody := table.CreateElement("tbody")
		for _, row := range n.Table.Rows {
			tr := tbody.CreateElement("tr")
			for _, cell := range row {
				td := tr.CreateElement("td")
				appendInlines(td, cell, isEPUB3)
			}
		}
	case ir.NodeBlockQuote:
		bq := parent.CreateElement("blockquote")
		for _, child := range n.BlockQuote.Children {
			appendContentNode(bq, doc, &child, isEPUB3)
		}
	case ir.NodeCodeBlock:
		pre := parent.CreateElement("pre")
		code := pre.CreateElement("code")
		if n.CodeBlock.Language != "" {
			code.CreateAttr("class", "language-"+n.CodeBlock.Language)
		}
		code.SetText(n.CodeBlock.Code)
	case ir.NodeImage:
		appendImage(parent, doc, n.Image)
	case ir.NodeHorizontalRule:
		parent.CreateElement("hr")
	case ir.NodeRawPassthrough:
		if n.RawPassthru.FormatTag == "xhtml" || n.RawPassthru.FormatTag == "html" {
			frag := etree.NewDocument()
			if err := frag.ReadFromString(n.RawPassthru.Literal); err == nil && frag.Root() != nil {
				parent.AddChild(frag.Root().Copy())
				return
			}
		}
		// Formats we don't recognise are dropped, per RawPassthroughNode's
		// contract: writers that can't interpret the tag must not fail.
	}
}

func headingTag(level int) string {
	switch level {
	case 1:
		return "h1"
	case 2:
		return "h2"
	case 3:
		return "h3"
	case 4:
		return "h4"
	case 5:
		return "h5"
	default:
		return "h6"
	}
}

func appendImage(parent *etree.Element, doc *ir.Document, img *ir.ImageNode) {
	wrapper := parent
	if img.Caption != "" {
		wrapper = parent.CreateElement("figure")
	}
	el := wrapper.CreateElement("img")
	if res := doc.Res.Get(img.ResourceID); res != nil {
		el.CreateAttr("src", resourceFilename(res))
	}
	el.CreateAttr("alt", img.Alt)
	if img.Caption != "" {
		wrapper.CreateElement("figcaption").SetText(img.Caption)
	}
}

func appendInlines(parent *etree.Element, inlines []ir.InlineNode, isEPUB3 bool) {
	for _, in := range inlines {
		appendInline(parent, &in, isEPUB3)
	}
}

func appendInline(parent *etree.Element, in *ir.InlineNode, isEPUB3 bool) {
	switch in.Kind {
	case ir.InlineText:
		appendText(parent, in.Text)
	case ir.InlineEmphasis:
		appendInlines(parent.CreateElement("em"), in.Children, isEPUB3)
	case ir.InlineStrong:
		appendInlines(parent.CreateElement("strong"), in.Children, isEPUB3)
	case ir.InlineCode:
		parent.CreateElement("code").SetText(in.Text)
	case ir.InlineLink:
		a := parent.CreateElement("a")
		if in.Link != nil {
			a.CreateAttr("href", in.Link.Href)
		}
		appendInlines(a, in.Children, isEPUB3)
	case ir.InlineSuperscript:
		appendInlines(parent.CreateElement("sup"), in.Children, isEPUB3)
	case ir.InlineSubscript:
		appendInlines(parent.CreateElement("sub"), in.Children, isEPUB3)
	case ir.InlineRuby:
		if !isEPUB3 {
			// EPUB2 readers have no <ruby> support; fall back to base text
			// plus a superscript annotation.
			if in.Ruby != nil {
				appendText(parent, in.Ruby.Base)
				parent.CreateElement("sup").SetText(in.Ruby.Annotation)
			}
			return
		}
		ruby := parent.CreateElement("ruby")
		if in.Ruby != nil {
			ruby.CreateElement("rb").SetText(in.Ruby.Base)
			ruby.CreateElement("rt").SetText(in.Ruby.Annotation)
		}
	case ir.InlineLineBreak:
		parent.CreateElement("br")
	}
}

// appendText appends text to parent as a character-data node after any
// existing children, so mixed content keeps its document order.
func appendText(parent *etree.Element, text string) {
	parent.CreateText(text)
}
