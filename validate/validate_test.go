package validate

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/security"
)

func baseDoc() *ir.Document {
	return &ir.Document{
		Metadata: ir.Metadata{Title: "T", Language: "en"},
		Chapters: []ir.Chapter{{ID: "ch-1", Content: []ir.ContentNode{
			{Kind: ir.NodeHeading, Heading: &ir.HeadingNode{Level: 1, Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "Intro"}}}},
			{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "hello"}}}},
		}}},
		TOC: []ir.TocEntry{{Title: "Intro", Href: "ch-1"}},
		Res: ir.ResourceMap{},
	}
}

func TestValidate_CleanDocument(t *testing.T) {
	r := Validate(baseDoc(), Options{})
	if !r.IsValid() {
		t.Fatalf("expected valid document, got issues: %v", r.Issues)
	}
}

func TestValidate_DuplicateChapterID(t *testing.T) {
	doc := baseDoc()
	doc.Chapters = append(doc.Chapters, ir.Chapter{ID: "ch-1"})
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-DUPLICATE-CHAPTER-ID") {
		t.Errorf("expected IR-DUPLICATE-CHAPTER-ID, got %v", r.Issues)
	}
}

func TestValidate_DanglingTOCHref(t *testing.T) {
	doc := baseDoc()
	doc.TOC = []ir.TocEntry{{Title: "Ghost", Href: "no-such-chapter"}}
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-DANGLING-TOC-HREF") {
		t.Errorf("expected IR-DANGLING-TOC-HREF, got %v", r.Issues)
	}
}

func TestValidate_MissingTOC(t *testing.T) {
	doc := baseDoc()
	doc.TOC = nil
	r := Validate(doc, Options{})
	if !hasCode(r, "EPUB-MISSING-TOC") {
		t.Errorf("expected EPUB-MISSING-TOC, got %v", r.Issues)
	}
}

func TestValidate_DanglingResource(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind: ir.NodeImage, Image: &ir.ImageNode{ResourceID: "missing", Alt: "x"},
	})
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-DANGLING-RESOURCE") {
		t.Errorf("expected IR-DANGLING-RESOURCE, got %v", r.Issues)
	}
}

func TestValidate_UnreferencedResource(t *testing.T) {
	doc := baseDoc()
	doc.Res["unused"] = &ir.Resource{ID: "unused", MediaType: "image/png"}
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-UNREFERENCED-RESOURCE") {
		t.Errorf("expected IR-UNREFERENCED-RESOURCE, got %v", r.Issues)
	}
}

func TestValidate_SkippedHeadingLevel(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind: ir.NodeHeading, Heading: &ir.HeadingNode{Level: 3, Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "Sub"}}},
	})
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-SKIPPED-HEADING-LEVEL") {
		t.Errorf("expected IR-SKIPPED-HEADING-LEVEL, got %v", r.Issues)
	}
}

func TestValidate_AccessibilityMissingAlt(t *testing.T) {
	doc := baseDoc()
	doc.Res["img1"] = &ir.Resource{ID: "img1", MediaType: "image/png"}
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind: ir.NodeImage, Image: &ir.ImageNode{ResourceID: "img1"},
	})
	r := Validate(doc, Options{Accessibility: true})
	if !hasCode(r, "ACC-MISSING-ALT-TEXT") {
		t.Errorf("expected ACC-MISSING-ALT-TEXT, got %v", r.Issues)
	}
}

func TestValidate_AccessibilityMissingLanguage(t *testing.T) {
	doc := baseDoc()
	doc.Metadata.Language = ""
	r := Validate(doc, Options{Accessibility: true})
	if !hasCode(r, "ACC-MISSING-LANGUAGE") {
		t.Errorf("expected ACC-MISSING-LANGUAGE, got %v", r.Issues)
	}
}

func TestValidate_EmptyTitle(t *testing.T) {
	doc := baseDoc()
	doc.Metadata.Title = ""
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-EMPTY-TITLE") {
		t.Errorf("expected IR-EMPTY-TITLE, got %v", r.Issues)
	}
}

func TestValidate_DanglingLink(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind: ir.NodeParagraph,
		Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{
			{Kind: ir.InlineLink, Link: &ir.LinkInline{Href: "#no-such-chapter"}, Children: []ir.InlineNode{{Kind: ir.InlineText, Text: "see"}}},
		}},
	})
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-DANGLING-LINK") {
		t.Errorf("expected IR-DANGLING-LINK, got %v", r.Issues)
	}
}

func TestValidate_DanglingLinkIgnoresExternalHref(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind: ir.NodeParagraph,
		Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{
			{Kind: ir.InlineLink, Link: &ir.LinkInline{Href: "https://example.com"}, Children: []ir.InlineNode{{Kind: ir.InlineText, Text: "ext"}}},
		}},
	})
	r := Validate(doc, Options{})
	if hasCode(r, "IR-DANGLING-LINK") {
		t.Errorf("did not expect IR-DANGLING-LINK for external href, got %v", r.Issues)
	}
}

func TestValidate_EncodingFallback(t *testing.T) {
	doc := baseDoc()
	doc.FormatOrigin.EncodingFallback = true
	r := Validate(doc, Options{})
	if !hasCode(r, "ENCODING-FALLBACK-APPLIED") {
		t.Errorf("expected ENCODING-FALLBACK-APPLIED, got %v", r.Issues)
	}
}

func TestValidate_MalformedXMLFragment(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind:        ir.NodeRawPassthrough,
		RawPassthru: &ir.RawPassthroughNode{FormatTag: "xhtml", Literal: "<div><p>unterminated"},
	})
	r := Validate(doc, Options{})
	if !hasCode(r, "IR-MALFORMED-XML-FRAGMENT") {
		t.Errorf("expected IR-MALFORMED-XML-FRAGMENT, got %v", r.Issues)
	}
}

func TestValidate_WellFormedFragmentNotFlagged(t *testing.T) {
	doc := baseDoc()
	doc.Chapters[0].Content = append(doc.Chapters[0].Content, ir.ContentNode{
		Kind:        ir.NodeRawPassthrough,
		RawPassthru: &ir.RawPassthroughNode{FormatTag: "xhtml", Literal: "<div><p>fine</p></div>"},
	})
	r := Validate(doc, Options{})
	if hasCode(r, "IR-MALFORMED-XML-FRAGMENT") {
		t.Errorf("did not expect IR-MALFORMED-XML-FRAGMENT for well-formed fragment, got %v", r.Issues)
	}
}

func TestReport_Promote(t *testing.T) {
	r := &Report{}
	r.add(SeverityWarning, "X", "msg", "", false)
	r.Promote()
	if r.Issues[0].Severity != SeverityError {
		t.Errorf("Promote did not upgrade warning, got %v", r.Issues[0].Severity)
	}
}

func hasCode(r *Report, code string) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidateEPUBContainer_Valid(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w.Write([]byte(epubMimetype))
	w2, _ := zw.Create("META-INF/container.xml")
	_, _ = w2.Write([]byte("<container/>"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	r := ValidateEPUBContainer(buf.Bytes(), security.DefaultLimits())
	if !r.IsValid() {
		t.Fatalf("expected valid container, got %v", r.Issues)
	}
}

func TestValidateEPUBContainer_MimetypeNotFirst(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("META-INF/container.xml")
	_, _ = w.Write([]byte("<container/>"))
	w2, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w2.Write([]byte(epubMimetype))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	r := ValidateEPUBContainer(buf.Bytes(), security.DefaultLimits())
	if !hasCode(r, "OCF-003-MIMETYPE-NOT-FIRST") {
		t.Errorf("expected OCF-003-MIMETYPE-NOT-FIRST, got %v", r.Issues)
	}
}

func TestValidateEPUBContainer_MimetypeCompressed(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Deflate})
	_, _ = w.Write([]byte(epubMimetype))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	r := ValidateEPUBContainer(buf.Bytes(), security.DefaultLimits())
	if !hasCode(r, "OCF-004-MIMETYPE-COMPRESSED") {
		t.Errorf("expected OCF-004-MIMETYPE-COMPRESSED, got %v", r.Issues)
	}
}
