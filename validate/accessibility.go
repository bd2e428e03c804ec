package validate

import "github.com/rupor-github/ebk/ir"

// checkAccessibility implements the WCAG-oriented checks from spec.md
// §4.5: every Image has non-empty alt text, the document carries a
// language tag, heading hierarchy has no skipped levels (already checked
// at Warning level by checkHeadingLevels; escalated to Error under
// accessibility), and TOC ordering matches heading order.
func checkAccessibility(doc *ir.Document, level WCAGLevel, r *Report) {
	for i := range r.Issues {
		if r.Issues[i].Code == "IR-SKIPPED-HEADING-LEVEL" {
			r.Issues[i].Severity = SeverityError
		}
	}

	if doc.Metadata.Language == "" {
		r.add(SeverityError, "ACC-MISSING-LANGUAGE", "document has no language tag", "", true)
	}

	var walkNodes func(chapterID string, nodes []ir.ContentNode)
	walkNodes = func(chapterID string, nodes []ir.ContentNode) {
		for _, n := range nodes {
			switch n.Kind {
			case ir.NodeImage:
				if n.Image != nil && n.Image.Alt == "" {
					r.add(SeverityError, "ACC-MISSING-ALT-TEXT", "image has no alt text", chapterID, true)
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

	if level == WCAGLevelAAA {
		checkTOCMatchesHeadingOrder(doc, r)
	}
}

// checkTOCMatchesHeadingOrder compares the flattened TOC title sequence
// against the sequence of top-level (h1) heading texts across chapters,
// the strictest AAA-only check from spec.md §4.5.
func checkTOCMatchesHeadingOrder(doc *ir.Document, r *Report) {
	var tocTitles []string
	var flatten func([]ir.TocEntry)
	flatten = func(entries []ir.TocEntry) {
		for _, e := range entries {
			tocTitles = append(tocTitles, e.Title)
			flatten(e.Children)
		}
	}
	flatten(doc.TOC)

	var headingTitles []string
	for _, ch := range doc.Chapters {
		for _, n := range ch.Content {
			if n.Kind == ir.NodeHeading && n.Heading != nil && n.Heading.Level == 1 {
				headingTitles = append(headingTitles, inlinesPlainText(n.Heading.Inlines))
			}
		}
	}

	if len(tocTitles) == 0 || len(headingTitles) == 0 {
		return
	}
	if len(tocTitles) != len(headingTitles) {
		r.add(SeverityWarning, "ACC-TOC-HEADING-MISMATCH", "TOC entry count does not match top-level heading count", "", false)
		return
	}
	for i := range tocTitles {
		if tocTitles[i] != headingTitles[i] {
			r.add(SeverityWarning, "ACC-TOC-HEADING-MISMATCH", "TOC ordering does not match heading order", "", false)
			return
		}
	}
}

func inlinesPlainText(inlines []ir.InlineNode) string {
	var out string
	for _, in := range inlines {
		if in.Text != "" {
			out += in.Text
		}
		out += inlinesPlainText(in.Children)
	}
	return out
}
