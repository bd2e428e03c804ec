package validate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

// Validate runs every applicable phase against doc and returns the
// accumulated issue report. Validate never returns an error: content
// problems are always issues, never Go errors, per spec.md §4.5.
func Validate(doc *ir.Document, opts Options) *Report {
	r := &Report{}
	if doc == nil {
		r.add(SeverityError, "IR-NIL-DOCUMENT", "document is nil", "", false)
		return r
	}

	checkChapterIDs(doc, r)
	checkTOCResolution(doc, r)
	checkResourceReferences(doc, r)
	checkHeadingLevels(doc, r)
	checkTableShape(doc, r)
	checkCoverResolvable(doc, r)
	checkEmptyTitle(doc, r)
	checkDanglingLinks(doc, r)
	checkMalformedXMLFragments(doc, r)

	checkEncodingForm(doc, opts, r)
	checkEncodingFallback(doc, r)

	if opts.Accessibility {
		level := opts.WCAGLevel
		if level == "" {
			level = WCAGLevelAA
		}
		checkAccessibility(doc, level, r)
	}

	return r
}

func checkChapterIDs(doc *ir.Document, r *Report) {
	seen := make(map[string]bool, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		if ch.ID == "" {
			r.add(SeverityError, "IR-EMPTY-CHAPTER-ID", "chapter has an empty ID", "", false)
			continue
		}
		if seen[ch.ID] {
			r.add(SeverityError, "IR-DUPLICATE-CHAPTER-ID", "duplicate chapter id "+ch.ID, ch.ID, false)
		}
		seen[ch.ID] = true
	}
}

func checkTOCResolution(doc *ir.Document, r *Report) {
	chapterIDs := make(map[string]bool, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		chapterIDs[ch.ID] = true
	}
	var walk func(entries []ir.TocEntry)
	walk = func(entries []ir.TocEntry) {
		for _, e := range entries {
			id := e.Href
			if idx := strings.IndexByte(id, '#'); idx >= 0 {
				id = id[:idx]
			}
			if id != "" && !chapterIDs[id] {
				r.add(SeverityError, "IR-DANGLING-TOC-HREF", "TOC entry references unknown chapter "+id, e.Href, true)
			}
			walk(e.Children)
		}
	}
	walk(doc.TOC)

	if len(doc.Chapters) > 0 && len(doc.TOC) == 0 {
		r.add(SeverityWarning, "EPUB-MISSING-TOC", "document has chapters but no table of contents", "", true)
	}
}

func checkResourceReferences(doc *ir.Document, r *Report) {
	referenced := make(map[string]bool)
	var walkInlines func([]ir.InlineNode)
	walkInlines = func(inlines []ir.InlineNode) {
		for _, in := range inlines {
			walkInlines(in.Children)
		}
	}
	var walkNodes func([]ir.ContentNode)
	walkNodes = func(nodes []ir.ContentNode) {
		for _, n := range nodes {
			switch n.Kind {
			case ir.NodeImage:
				if n.Image != nil && n.Image.ResourceID != "" {
					referenced[n.Image.ResourceID] = true
					if _, ok := doc.Res[n.Image.ResourceID]; !ok {
						r.add(SeverityError, "IR-DANGLING-RESOURCE", "image references missing resource "+n.Image.ResourceID, "", false)
					}
				}
			case ir.NodeList:
				for _, item := range n.List.Items {
					walkNodes(item)
				}
			case ir.NodeBlockQuote:
				walkNodes(n.BlockQuote.Children)
			case ir.NodeParagraph:
				walkInlines(n.Paragraph.Inlines)
			case ir.NodeHeading:
				walkInlines(n.Heading.Inlines)
			}
		}
	}
	for _, ch := range doc.Chapters {
		walkNodes(ch.Content)
	}

	unreferenced := make([]string, 0)
	for id := range doc.Res {
		if id == doc.Metadata.CoverID {
			continue
		}
		if !referenced[id] {
			unreferenced = append(unreferenced, id)
		}
	}
	sort.Strings(unreferenced)
	for _, id := range unreferenced {
		r.add(SeverityWarning, "IR-UNREFERENCED-RESOURCE", "resource "+id+" is never referenced from content", id, false)
	}
}

func checkHeadingLevels(doc *ir.Document, r *Report) {
	for _, ch := range doc.Chapters {
		prev := 0
		for _, n := range ch.Content {
			if n.Kind != ir.NodeHeading || n.Heading == nil {
				continue
			}
			level := n.Heading.Level
			if prev > 0 && level > prev+1 {
				r.add(SeverityWarning, "IR-SKIPPED-HEADING-LEVEL",
					"heading level jumps from h"+strconv.Itoa(prev)+" to h"+strconv.Itoa(level), ch.ID, false)
			}
			prev = level
		}
	}
}

func checkTableShape(doc *ir.Document, r *Report) {
	for _, ch := range doc.Chapters {
		for _, n := range ch.Content {
			if n.Kind != ir.NodeTable || n.Table == nil {
				continue
			}
			width := len(n.Table.Header)
			for _, row := range n.Table.Rows {
				if width == 0 {
					width = len(row)
					continue
				}
				if len(row) != width {
					r.add(SeverityWarning, "IR-RAGGED-TABLE", "table row has a different cell count than the header/first row", ch.ID, false)
					break
				}
			}
		}
	}
}

func checkCoverResolvable(doc *ir.Document, r *Report) {
	if doc.Metadata.CoverID == "" {
		return
	}
	if _, ok := doc.Res[doc.Metadata.CoverID]; !ok {
		r.add(SeverityError, "IR-DANGLING-COVER", "metadata cover id "+doc.Metadata.CoverID+" has no matching resource", "", true)
	}
}

func checkEmptyTitle(doc *ir.Document, r *Report) {
	if doc.Metadata.Title == "" {
		r.add(SeverityError, "IR-EMPTY-TITLE", "document metadata has no title", "", true)
	}
}

// checkDanglingLinks flags an internal link (href "#chapter-id" or a bare
// chapter id) that does not resolve to any chapter, the content-link
// counterpart of checkTOCResolution.
func checkDanglingLinks(doc *ir.Document, r *Report) {
	chapterIDs := make(map[string]bool, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		chapterIDs[ch.ID] = true
	}
	var walkInlines func(chapterID string, inlines []ir.InlineNode)
	walkInlines = func(chapterID string, inlines []ir.InlineNode) {
		for _, in := range inlines {
			if in.Kind == ir.InlineLink && in.Link != nil {
				id := strings.TrimPrefix(in.Link.Href, "#")
				if id != "" && !strings.Contains(id, "://") && !chapterIDs[id] {
					r.add(SeverityWarning, "IR-DANGLING-LINK", "link references unknown chapter "+id, chapterID, true)
				}
			}
			walkInlines(chapterID, in.Children)
		}
	}
	var walkNodes func(chapterID string, nodes []ir.ContentNode)
	walkNodes = func(chapterID string, nodes []ir.ContentNode) {
		for _, n := range nodes {
			switch n.Kind {
			case ir.NodeParagraph:
				walkInlines(chapterID, n.Paragraph.Inlines)
			case ir.NodeHeading:
				walkInlines(chapterID, n.Heading.Inlines)
			case ir.NodeList:
				for _, item := range n.List.Items {
					walkNodes(chapterID, item)
				}
			case ir.NodeBlockQuote:
				walkNodes(chapterID, n.BlockQuote.Children)
			}
		}
	}
	for _, ch := range doc.Chapters {
		walkNodes(ch.ID, ch.Content)
	}
}

// checkMalformedXMLFragments flags a RawPassthrough xhtml/html fragment that
// does not parse as well-formed XML, the condition fixMalformedXMLFragment
// (fix_xml, spec.md §4.6) repairs by re-parsing it in HTML5's lenient mode.
// epub.Writer would otherwise silently drop the fragment at serialisation.
func checkMalformedXMLFragments(doc *ir.Document, r *Report) {
	var walkNodes func(chapterID string, nodes []ir.ContentNode)
	walkNodes = func(chapterID string, nodes []ir.ContentNode) {
		for _, n := range nodes {
			switch n.Kind {
			case ir.NodeRawPassthrough:
				rp := n.RawPassthru
				if rp == nil || (rp.FormatTag != "xhtml" && rp.FormatTag != "html") {
					continue
				}
				frag := etree.NewDocument()
				if err := frag.ReadFromString(rp.Literal); err != nil || frag.Root() == nil {
					r.add(SeverityWarning, "IR-MALFORMED-XML-FRAGMENT", "raw passthrough fragment is not well-formed XML", chapterID, true)
				}
			case ir.NodeList:
				for _, item := range n.List.Items {
					walkNodes(chapterID, item)
				}
			case ir.NodeBlockQuote:
				walkNodes(chapterID, n.BlockQuote.Children)
			}
		}
	}
	for _, ch := range doc.Chapters {
		walkNodes(ch.ID, ch.Content)
	}
}

func checkEncodingForm(doc *ir.Document, opts Options, r *Report) {
	want := opts.EncodingForm
	var badForm bool
	var walkInlines func([]ir.InlineNode)
	walkInlines = func(inlines []ir.InlineNode) {
		for _, in := range inlines {
			if in.Text != "" && !isNormalForm(in.Text, want) {
				badForm = true
			}
			walkInlines(in.Children)
		}
	}
	var walkNodes func([]ir.ContentNode)
	walkNodes = func(nodes []ir.ContentNode) {
		for _, n := range nodes {
			switch n.Kind {
			case ir.NodeParagraph:
				walkInlines(n.Paragraph.Inlines)
			case ir.NodeHeading:
				walkInlines(n.Heading.Inlines)
			case ir.NodeList:
				for _, item := range n.List.Items {
					walkNodes(item)
				}
			case ir.NodeBlockQuote:
				walkNodes(n.BlockQuote.Children)
			}
		}
	}
	for _, ch := range doc.Chapters {
		walkNodes(ch.Content)
		if badForm {
			break
		}
	}
	if badForm {
		r.add(SeverityWarning, "ENCODING-NOT-NORMALIZED", "some text content is not in the configured Unicode normalisation form", "", true)
	}
}

func checkEncodingFallback(doc *ir.Document, r *Report) {
	if doc.FormatOrigin.EncodingFallback {
		r.add(SeverityWarning, "ENCODING-FALLBACK-APPLIED", "source was not valid UTF-8; decoded with a Latin-1 fallback", "", false)
	}
}

func isNormalForm(s string, form encoding.Form) bool {
	return formToNormForm(form).IsNormalString(s)
}

func formToNormForm(f encoding.Form) norm.Form {
	switch f {
	case encoding.FormNFD:
		return norm.NFD
	case encoding.FormNFKC:
		return norm.NFKC
	case encoding.FormNFKD:
		return norm.NFKD
	default:
		return norm.NFC
	}
}
