package transform

import (
	"context"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

// StripImages removes every top-level Image content node of each chapter
// (images nested inside other nodes are not removed) and the cover reference,
// leaving behind only the resources a later pass might still want to keep
// (e.g. fonts); image resources themselves are dropped from the map too.
type StripImages struct{}

func (StripImages) Name() string { return "strip_images" }

func (StripImages) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	imageIDs := make(map[string]bool)
	out.Chapters = mapChapters(out.Chapters, func(nodes []ir.ContentNode) []ir.ContentNode {
		kept := make([]ir.ContentNode, 0, len(nodes))
		for _, n := range nodes {
			if n.Kind == ir.NodeImage {
				if n.Image != nil {
					imageIDs[n.Image.ResourceID] = true
				}
				continue
			}
			kept = append(kept, n)
		}
		return kept
	})
	for id := range imageIDs {
		delete(out.Res, id)
	}
	if out.Metadata.CoverID != "" {
		delete(out.Res, out.Metadata.CoverID)
		out.Metadata.CoverID = ""
	}
	return out, nil
}

// StripStyles removes non-content presentational resources: anything whose
// media type is CSS. Content and structure are untouched.
type StripStyles struct{}

func (StripStyles) Name() string { return "strip_styles" }

func (StripStyles) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	for id, res := range out.Res {
		if res.MediaType == "text/css" {
			delete(out.Res, id)
		}
	}
	return out, nil
}

// InjectWatermark appends a paragraph carrying text to the end of the last
// chapter. An empty doc (no chapters) is left untouched.
type InjectWatermark struct {
	Text string
}

func (InjectWatermark) Name() string { return "inject_watermark" }

func (t InjectWatermark) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Text == "" {
		return nil, &ir.TransformError{TransformName: t.Name(), Reason: "empty watermark text"}
	}
	out := doc.Clone()
	if len(out.Chapters) == 0 {
		return out, nil
	}
	last := len(out.Chapters) - 1
	out.Chapters[last].Content = append(out.Chapters[last].Content, ir.ContentNode{
		Kind:      ir.NodeParagraph,
		Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: t.Text}}},
	})
	return out, nil
}

// ReplaceFont sets OriginalFilename to NewFilename on every font Resource
// whose media type matches MediaType, without touching the bytes. The IR
// has no font family field on Resource, and no glyph swap or font
// subsetting is done.
type ReplaceFont struct {
	MediaType   string // e.g. "font/ttf"; empty matches any font/* resource
	NewFilename string
}

func (ReplaceFont) Name() string { return "replace_font" }

func (t ReplaceFont) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	for id, res := range out.Res {
		if !isFontMediaType(res.MediaType) {
			continue
		}
		if t.MediaType != "" && res.MediaType != t.MediaType {
			continue
		}
		replaced := *res
		replaced.OriginalFilename = t.NewFilename
		out.Res[id] = &replaced
	}
	return out, nil
}

func isFontMediaType(mt string) bool {
	switch mt {
	case "font/ttf", "font/otf", "font/woff", "font/woff2", "application/font-woff", "application/x-font-ttf":
		return true
	default:
		return false
	}
}

// NormalizeUnicode re-normalises every text leaf to Form, the Document-level
// counterpart of encoding.Normalize's per-read pass, usable any time later
// in a transform pipeline (e.g. after InjectWatermark introduced new text).
type NormalizeUnicode struct {
	Form encoding.Form
}

func (NormalizeUnicode) Name() string { return "normalize_unicode" }

func (t NormalizeUnicode) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	opts := encoding.Options{Form: t.Form}
	walkText(out, func(s string) string { return encoding.Normalize(s, opts) })
	return out, nil
}

// SmartQuotes toggles curly-quote conversion across every text leaf.
type SmartQuotes struct {
	On bool
}

func (SmartQuotes) Name() string { return "smart_quotes" }

func (t SmartQuotes) Apply(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := doc.Clone()
	opts := encoding.Options{SmartQuotes: t.On}
	walkText(out, func(s string) string { return encoding.Normalize(s, opts) })
	return out, nil
}

func mapChapters(chapters []ir.Chapter, fn func([]ir.ContentNode) []ir.ContentNode) []ir.Chapter {
	for i := range chapters {
		chapters[i].Content = fn(chapters[i].Content)
	}
	return chapters
}

// walkText rewrites every InlineText leaf (including nested inlines such as
// Ruby base/annotation) in place using fn; it covers more tree shapes than
// repair.fixEncoding walks (tables, image alt text and captions, titles).
func walkText(doc *ir.Document, fn func(string) string) {
	var walkInlines func([]ir.InlineNode)
	walkInlines = func(inlines []ir.InlineNode) {
		for i := range inlines {
			if inlines[i].Text != "" {
				inlines[i].Text = fn(inlines[i].Text)
			}
			if inlines[i].Ruby != nil {
				inlines[i].Ruby.Base = fn(inlines[i].Ruby.Base)
				inlines[i].Ruby.Annotation = fn(inlines[i].Ruby.Annotation)
			}
			walkInlines(inlines[i].Children)
		}
	}
	var walkNodes func([]ir.ContentNode)
	walkNodes = func(nodes []ir.ContentNode) {
		for i := range nodes {
			switch nodes[i].Kind {
			case ir.NodeParagraph:
				walkInlines(nodes[i].Paragraph.Inlines)
			case ir.NodeHeading:
				walkInlines(nodes[i].Heading.Inlines)
			case ir.NodeList:
				for _, item := range nodes[i].List.Items {
					walkNodes(item)
				}
			case ir.NodeTable:
				for r := range nodes[i].Table.Header {
					walkInlines(nodes[i].Table.Header[r])
				}
				for r := range nodes[i].Table.Rows {
					for c := range nodes[i].Table.Rows[r] {
						walkInlines(nodes[i].Table.Rows[r][c])
					}
				}
			case ir.NodeBlockQuote:
				walkNodes(nodes[i].BlockQuote.Children)
			case ir.NodeImage:
				if nodes[i].Image != nil {
					nodes[i].Image.Alt = fn(nodes[i].Image.Alt)
					nodes[i].Image.Caption = fn(nodes[i].Image.Caption)
				}
			}
		}
	}
	for i := range doc.Chapters {
		walkNodes(doc.Chapters[i].Content)
	}
	doc.Metadata.Title = fn(doc.Metadata.Title)
}
