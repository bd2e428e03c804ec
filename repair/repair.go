package repair

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/validate"
)

// Options configures a Repair run.
type Options struct {
	// EncodingForm is the target form for fix_encoding re-normalisation;
	// zero value is encoding.FormNFC.
	EncodingForm encoding.Form

	// DefaultLanguage is used by fix_metadata when ACC-MISSING-LANGUAGE
	// fires and the caller has no better value to supply.
	DefaultLanguage string

	// AltTextPlaceholder is used by fix_accessibility when
	// ACC-MISSING-ALT-TEXT fires; empty defaults to "image".
	AltTextPlaceholder string
}

type fixFunc func(doc *ir.Document, issue validate.ValidationIssue, opts Options) (applied bool, err error)

// fixTable maps a ValidationIssue.Code to the fix that addresses it,
// mirroring the teacher's per-check-ID fix dispatch in doctor.Repair
// (fixMimetype/fixDCTermsModified/fixMediaTypes/... each keyed to specific
// epubcheck codes).
var fixTable = map[string]fixFunc{
	"ACC-MISSING-LANGUAGE":        fixMissingLanguage,
	"IR-EMPTY-TITLE":              fixMissingTitle,
	"IR-DANGLING-TOC-HREF":        fixDanglingTOCHref,
	"IR-DANGLING-LINK":            fixBrokenLinks,
	"IR-MALFORMED-XML-FRAGMENT":   fixMalformedXMLFragment,
	"EPUB-MISSING-TOC":            fixGenerateTOC,
	"ENCODING-NOT-NORMALIZED":     fixEncoding,
	"IR-DANGLING-COVER":           fixDanglingCover,
	"ACC-MISSING-ALT-TEXT":        fixMissingAltText,
	"OCF-004-MIMETYPE-COMPRESSED": fixNoop, // fixed by construction in epub.Writer
	"OCF-005-MIMETYPE-CONTENT":    fixNoop, // fixed by construction in epub.Writer
}

// Repair clones doc, applies a fix for every auto-fixable issue in report
// that has a registered fix, and returns the repaired clone together with
// a summary of what was applied or could not be applied. doc itself is
// never mutated: a failure partway through still returns the clone with
// whatever fixes succeeded, since each fix either fully applies or is
// recorded as failed — there is no notion of a half-applied single fix.
func Repair(doc *ir.Document, report *validate.Report, opts Options) (*ir.Document, *Report, error) {
	out := doc.Clone()
	result := &Report{}
	var errs error

	for _, issue := range report.Issues {
		if !issue.AutoFixable {
			continue
		}
		fix, ok := fixTable[issue.Code]
		if !ok {
			result.FixesFailed = append(result.FixesFailed, FixOutcome{Code: issue.Code, Location: issue.Location, Detail: "no registered fix"})
			continue
		}
		applied, err := fix(out, issue, opts)
		if err != nil {
			errs = multierr.Append(errs, err)
			result.FixesFailed = append(result.FixesFailed, FixOutcome{Code: issue.Code, Location: issue.Location, Detail: err.Error()})
			continue
		}
		if applied {
			result.FixesApplied = append(result.FixesApplied, FixOutcome{Code: issue.Code, Location: issue.Location})
		}
	}

	return out, result, errs
}

func fixNoop(*ir.Document, validate.ValidationIssue, Options) (bool, error) { return false, nil }

func fixMissingLanguage(doc *ir.Document, _ validate.ValidationIssue, opts Options) (bool, error) {
	if doc.Metadata.Language != "" {
		return false, nil
	}
	lang := opts.DefaultLanguage
	if lang == "" {
		lang = "und"
	}
	doc.Metadata.Language = lang
	return true, nil
}

// fixMissingTitle sets doc.Metadata.Title from the first heading found,
// taking chapters in order, addressing the title half of fix_metadata (spec.md §4.6).
func fixMissingTitle(doc *ir.Document, _ validate.ValidationIssue, _ Options) (bool, error) {
	if doc.Metadata.Title != "" {
		return false, nil
	}
	for _, ch := range doc.Chapters {
		if title := firstHeadingText(ch.Content); title != "" {
			doc.Metadata.Title = title
			return true, nil
		}
	}
	return false, nil
}

// fixDanglingTOCHref drops any TocEntry (and its subtree) whose Href does
// not resolve to an existing chapter id, the same repair validate.Report
// already flagged as IR-DANGLING-TOC-HREF.
func fixDanglingTOCHref(doc *ir.Document, _ validate.ValidationIssue, _ Options) (bool, error) {
	chapterIDs := make(map[string]bool, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		chapterIDs[ch.ID] = true
	}
	var changed bool
	var prune func(entries []ir.TocEntry) []ir.TocEntry
	prune = func(entries []ir.TocEntry) []ir.TocEntry {
		var out []ir.TocEntry
		for _, e := range entries {
			id := e.Href
			if idx := strings.IndexByte(id, '#'); idx >= 0 {
				id = id[:idx]
			}
			if id != "" && !chapterIDs[id] {
				changed = true
				continue
			}
			e.Children = prune(e.Children)
			out = append(out, e)
		}
		return out
	}
	doc.TOC = prune(doc.TOC)
	return changed, nil
}

// fixGenerateTOC synthesises a flat table of contents from each chapter's
// Title (else its first heading, else its ID), addressing EPUB-MISSING-TOC.
func fixGenerateTOC(doc *ir.Document, _ validate.ValidationIssue, _ Options) (bool, error) {
	if len(doc.TOC) > 0 || len(doc.Chapters) == 0 {
		return false, nil
	}
	toc := make([]ir.TocEntry, 0, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		title := ch.Title
		if title == "" {
			title = firstHeadingText(ch.Content)
		}
		if title == "" {
			title = ch.ID
		}
		toc = append(toc, ir.TocEntry{Title: title, Href: ch.ID})
	}
	doc.TOC = toc
	return true, nil
}

func firstHeadingText(nodes []ir.ContentNode) string {
	for _, n := range nodes {
		if n.Kind == ir.NodeHeading && n.Heading != nil {
			var b strings.Builder
			for _, in := range n.Heading.Inlines {
				b.WriteString(in.Text)
			}
			return b.String()
		}
	}
	return ""
}

// fixEncoding re-normalises to opts.EncodingForm the text leaves of
// paragraphs, headings, list items and block quotes; other text (tables,
// image alt text and captions, titles) is not visited.
func fixEncoding(doc *ir.Document, _ validate.ValidationIssue, opts Options) (bool, error) {
	encOpts := encoding.Options{Form: opts.EncodingForm}
	var changed bool

	var walkInlines func([]ir.InlineNode)
	walkInlines = func(inlines []ir.InlineNode) {
		for i := range inlines {
			if inlines[i].Text != "" {
				norm := encoding.Normalize(inlines[i].Text, encOpts)
				if norm != inlines[i].Text {
					inlines[i].Text = norm
					changed = true
				}
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
			case ir.NodeBlockQuote:
				walkNodes(nodes[i].BlockQuote.Children)
			}
		}
	}
	for i := range doc.Chapters {
		walkNodes(doc.Chapters[i].Content)
	}
	return changed, nil
}

func fixDanglingCover(doc *ir.Document, _ validate.ValidationIssue, _ Options) (bool, error) {
	if doc.Metadata.CoverID == "" {
		return false, nil
	}
	if _, ok := doc.Res[doc.Metadata.CoverID]; ok {
		return false, nil
	}
	doc.Metadata.CoverID = ""
	return true, nil
}

// fixMissingAltText assigns a generic, non-empty alt text to every Image
// node that has none, addressing ACC-MISSING-ALT-TEXT mechanically. This
// is a minimum-viable fix: it satisfies the accessibility invariant without
// fabricating a description of the image's actual content.
func fixMissingAltText(doc *ir.Document, issue validate.ValidationIssue, opts Options) (bool, error) {
	placeholder := opts.AltTextPlaceholder
	if placeholder == "" {
		placeholder = "image"
	}
	var changed bool
	var walkNodes func(chapterID string, nodes []ir.ContentNode)
	walkNodes = func(chapterID string, nodes []ir.ContentNode) {
		for i := range nodes {
			switch nodes[i].Kind {
			case ir.NodeImage:
				if nodes[i].Image != nil && nodes[i].Image.Alt == "" && chapterID == issue.Location {
					nodes[i].Image.Alt = placeholder
					changed = true
				}
			case ir.NodeList:
				for _, item := range nodes[i].List.Items {
					walkNodes(chapterID, item)
				}
			case ir.NodeBlockQuote:
				walkNodes(chapterID, nodes[i].BlockQuote.Children)
			}
		}
	}
	for i := range doc.Chapters {
		walkNodes(doc.Chapters[i].ID, doc.Chapters[i].Content)
	}
	return changed, nil
}

// fixBrokenLinks addresses IR-DANGLING-LINK: an internal link whose href
// does not resolve to any chapter. It remaps to the chapter whose slug
// (via gosimple/slug, the same transliterating slugifier the teacher uses
// for output filenames) matches most closely, or unwraps the link — keeping
// its text, dropping the <a> — when nothing resolves closely enough.
func fixBrokenLinks(doc *ir.Document, issue validate.ValidationIssue, _ Options) (bool, error) {
	chapterIDs := make(map[string]bool, len(doc.Chapters))
	chapters := make([]slugged, 0, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		chapterIDs[ch.ID] = true
		chapters = append(chapters, slugged{id: ch.ID, slug: slug.Make(ch.ID)})
	}

	var changed bool
	var rewrite func(inlines []ir.InlineNode) []ir.InlineNode
	rewrite = func(inlines []ir.InlineNode) []ir.InlineNode {
		out := make([]ir.InlineNode, 0, len(inlines))
		for _, in := range inlines {
			in.Children = rewrite(in.Children)
			if in.Kind == ir.InlineLink && in.Link != nil {
				id := strings.TrimPrefix(in.Link.Href, "#")
				if id != "" && !strings.Contains(id, "://") && !chapterIDs[id] {
					changed = true
					if nearest, ok := nearestChapterSlug(id, chapters); ok {
						in.Link = &ir.LinkInline{Href: "#" + nearest}
					} else {
						out = append(out, in.Children...)
						continue
					}
				}
			}
			out = append(out, in)
		}
		return out
	}
	var walkNodes func(chapterID string, nodes []ir.ContentNode)
	walkNodes = func(chapterID string, nodes []ir.ContentNode) {
		for i := range nodes {
			switch nodes[i].Kind {
			case ir.NodeParagraph:
				if chapterID == issue.Location {
					nodes[i].Paragraph.Inlines = rewrite(nodes[i].Paragraph.Inlines)
				}
			case ir.NodeHeading:
				if chapterID == issue.Location {
					nodes[i].Heading.Inlines = rewrite(nodes[i].Heading.Inlines)
				}
			case ir.NodeList:
				for _, item := range nodes[i].List.Items {
					walkNodes(chapterID, item)
				}
			case ir.NodeBlockQuote:
				walkNodes(chapterID, nodes[i].BlockQuote.Children)
			}
		}
	}
	for i := range doc.Chapters {
		walkNodes(doc.Chapters[i].ID, doc.Chapters[i].Content)
	}
	return changed, nil
}

// slugged pairs a chapter id with its slug.Make(id) value.
type slugged struct {
	id   string
	slug string
}

func nearestChapterSlug(brokenID string, chapters []slugged) (string, bool) {
	want := slug.Make(brokenID)
	best := ""
	bestScore := 0
	for _, ch := range chapters {
		n := commonPrefixLen(want, ch.slug)
		if n > bestScore {
			bestScore = n
			best = ch.id
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return best, true
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// fixMalformedXMLFragment addresses IR-MALFORMED-XML-FRAGMENT: a
// RawPassthrough fragment that does not parse as well-formed XML (etree
// rejects it, so epub.Writer would silently drop it at serialisation time).
// Re-parses the fragment in HTML5's lenient mode and re-serialises it,
// matching spec.md §4.6's fix_xml action.
func fixMalformedXMLFragment(doc *ir.Document, issue validate.ValidationIssue, _ Options) (bool, error) {
	var changed bool
	for i := range doc.Chapters {
		if doc.Chapters[i].ID != issue.Location {
			continue
		}
		if rewriteMalformedFragments(doc.Chapters[i].Content) {
			changed = true
		}
	}
	return changed, nil
}

func rewriteMalformedFragments(nodes []ir.ContentNode) bool {
	var changed bool
	for i := range nodes {
		switch nodes[i].Kind {
		case ir.NodeRawPassthrough:
			if reserialized, ok := reparseLenient(nodes[i].RawPassthru); ok {
				nodes[i].RawPassthru.Literal = reserialized
				changed = true
			}
		case ir.NodeList:
			for _, item := range nodes[i].List.Items {
				if rewriteMalformedFragments(item) {
					changed = true
				}
			}
		case ir.NodeBlockQuote:
			if rewriteMalformedFragments(nodes[i].BlockQuote.Children) {
				changed = true
			}
		}
	}
	return changed
}

// reparseLenient re-parses n.Literal with the HTML5 parser (tolerant of
// malformed markup, unlike etree's strict XML reader) and re-serialises it.
// Returns ok=false when n is not an xhtml/html fragment, when it already
// parses as well-formed XML (nothing to fix), or when even the lenient
// parse fails.
func reparseLenient(n *ir.RawPassthroughNode) (string, bool) {
	if n == nil || (n.FormatTag != "xhtml" && n.FormatTag != "html") {
		return "", false
	}
	frag := etree.NewDocument()
	if err := frag.ReadFromString(n.Literal); err == nil && frag.Root() != nil {
		return "", false
	}
	nodes, err := html.ParseFragment(strings.NewReader(n.Literal), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
	if err != nil || len(nodes) == 0 {
		return "", false
	}
	var buf strings.Builder
	for _, node := range nodes {
		if err := html.Render(&buf, node); err != nil {
			return "", false
		}
	}
	return buf.String(), true
}
