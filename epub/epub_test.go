package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

func buildMinimalEPUB(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(mimetypeContent)); err != nil {
		t.Fatal(err)
	}

	writeEntry(t, zw, containerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)

	writeEntry(t, zw, "OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="BookId" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Jane Author</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="BookId">urn:isbn:9780000000002</dc:identifier>
  </metadata>
  <manifest>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="cover-image" href="cover.jpg" media-type="image/jpeg" properties="cover-image"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`)

	writeEntry(t, zw, "OEBPS/chapter1.xhtml", `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body>
<h1>Chapter One</h1>
<p>Hello <em>world</em>.</p>
<ul><li>first</li><li>second</li></ul>
</body></html>`)

	writeEntry(t, zw, "OEBPS/nav.xhtml", `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"><body>
<nav epub:type="toc"><ol><li><a href="chapter1.xhtml">Chapter One</a></li></ol></nav>
</body></html>`)

	writeBinaryEntry(t, zw, "OEBPS/cover.jpg", []byte{0xFF, 0xD8, 0xFF, 0xDB})

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeEntry(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
}

func writeBinaryEntry(t *testing.T, zw *zip.Writer, name string, content []byte) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
}

func TestReader_ReadMinimalEPUB(t *testing.T) {
	data := buildMinimalEPUB(t)
	r := Reader{}
	doc, err := r.Read(context.Background(), bytes.NewReader(data), "test.epub", ir.ReadOptions{ParseTOC: true})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Metadata.Title != "Test Book" {
		t.Errorf("Title = %q, want Test Book", doc.Metadata.Title)
	}
	if len(doc.Metadata.Authors) != 1 || doc.Metadata.Authors[0] != "Jane Author" {
		t.Errorf("Authors = %v", doc.Metadata.Authors)
	}
	if doc.Metadata.ISBN13 != "9780000000002" {
		t.Errorf("ISBN13 = %q", doc.Metadata.ISBN13)
	}
	if doc.Metadata.CoverID == "" {
		t.Error("expected cover to be resolved")
	}
	if len(doc.Chapters) != 1 {
		t.Fatalf("Chapters = %d, want 1", len(doc.Chapters))
	}
	ch := doc.Chapters[0]
	if len(ch.Content) != 3 {
		t.Fatalf("chapter content nodes = %d, want 3 (heading, paragraph, list)", len(ch.Content))
	}
	if ch.Content[0].Kind != ir.NodeHeading {
		t.Errorf("first node kind = %v, want heading", ch.Content[0].Kind)
	}
	if ch.Content[1].Kind != ir.NodeParagraph {
		t.Errorf("second node kind = %v, want paragraph", ch.Content[1].Kind)
	}
	if len(doc.TOC) != 1 || doc.TOC[0].Title != "Chapter One" {
		t.Fatalf("TOC = %+v", doc.TOC)
	}
	if doc.TOC[0].Href != ch.ID {
		t.Errorf("TOC href = %q, want chapter id %q", doc.TOC[0].Href, ch.ID)
	}
}

func TestReader_HonorsCallerEncodingPolicy(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w.Write([]byte(mimetypeContent))
	writeEntry(t, zw, containerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)
	writeEntry(t, zw, "OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="BookId" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Quote Book</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="BookId">urn:uuid:1</dc:identifier>
  </metadata>
  <manifest><item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`)
	writeEntry(t, zw, "OEBPS/chapter1.xhtml", `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><p>She said "hi".</p></body></html>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	policy := &encoding.Options{Form: encoding.FormNFC, SmartQuotes: true}
	r := Reader{}
	doc, err := r.Read(context.Background(), bytes.NewReader(buf.Bytes()), "quotes.epub", ir.ReadOptions{Encoding: policy})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	text := doc.Chapters[0].Content[0].Paragraph.Inlines[0].Text
	if !strings.Contains(text, "“hi”") {
		t.Errorf("expected caller's SmartQuotes policy to curl quotes, got %q", text)
	}
}

func TestReader_Detect(t *testing.T) {
	r := Reader{}
	if conf, ok := r.Detect([]byte("PK\x03\x04")); !ok || conf <= 0 {
		t.Errorf("Detect(zip magic) = %v, %v", conf, ok)
	}
	if _, ok := r.Detect([]byte("not a zip")); ok {
		t.Error("Detect should reject non-zip header")
	}
}

func TestReader_RejectsDRM(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w.Write([]byte(mimetypeContent))
	writeEntry(t, zw, "META-INF/encryption.xml", `<?xml version="1.0"?>
<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <EncryptedData xmlns="http://www.w3.org/2001/04/xmlenc#">
    <EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding"/>
  </EncryptedData>
</encryption>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r := Reader{}
	_, err := r.Read(context.Background(), bytes.NewReader(buf.Bytes()), "drm.epub", ir.ReadOptions{})
	if err == nil {
		t.Fatal("expected DRM detection to fail the read")
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	doc := &ir.Document{
		Metadata: ir.Metadata{
			Title:    "Round Trip",
			Authors:  []string{"Author One"},
			Language: "en",
		},
		Chapters: []ir.Chapter{
			{
				ID:    "ch-1",
				Title: "Intro",
				Content: []ir.ContentNode{
					{Kind: ir.NodeHeading, Heading: &ir.HeadingNode{Level: 1, Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "Intro"}}}},
					{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{
						{Kind: ir.InlineText, Text: "Hello "},
						{Kind: ir.InlineStrong, Children: []ir.InlineNode{{Kind: ir.InlineText, Text: "world"}}},
					}}},
				},
			},
		},
	}

	var out bytes.Buffer
	w := Writer{}
	if err := w.Write(context.Background(), doc, &out, ir.WriteOptions{EPUBVersion: "3.0"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatalf("output is not a valid zip: %v", err)
	}
	names := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = f
	}
	if _, ok := names["mimetype"]; !ok {
		t.Error("missing mimetype entry")
	} else if names["mimetype"].Method != zip.Store {
		t.Error("mimetype entry must be stored uncompressed")
	}
	if _, ok := names[containerPath]; !ok {
		t.Error("missing container.xml")
	}
	if _, ok := names["OEBPS/content.opf"]; !ok {
		t.Error("missing content.opf")
	}
	if _, ok := names["OEBPS/nav.xhtml"]; !ok {
		t.Error("missing nav.xhtml for EPUB3 output")
	}
}

func TestWriter_ReadBack(t *testing.T) {
	doc := &ir.Document{
		Metadata: ir.Metadata{Title: "Loopback", Language: "en"},
		Chapters: []ir.Chapter{
			{ID: "ch-1", Content: []ir.ContentNode{
				{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "content"}}}},
			}},
		},
	}
	var out bytes.Buffer
	if err := (Writer{}).Write(context.Background(), doc, &out, ir.WriteOptions{EPUBVersion: "3.0"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := (Reader{}).Read(context.Background(), bytes.NewReader(out.Bytes()), "loop.epub", ir.ReadOptions{ParseTOC: true})
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if got.Metadata.Title != "Loopback" {
		t.Errorf("Title = %q", got.Metadata.Title)
	}
	if len(got.Chapters) != 1 {
		t.Fatalf("Chapters = %d, want 1", len(got.Chapters))
	}
}

func TestParseContainerXML(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/book.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)
	path, err := parseContainerXML(data)
	if err != nil {
		t.Fatal(err)
	}
	if path != "OEBPS/book.opf" {
		t.Errorf("opfPath = %q", path)
	}
}

func TestParseContainerXML_Missing(t *testing.T) {
	if _, err := parseContainerXML([]byte(`<container/>`)); err == nil {
		t.Fatal("expected error for container.xml with no rootfile")
	}
}

func TestParseNCX(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/">
  <navMap>
    <navPoint id="n1">
      <navLabel><text>Part One</text></navLabel>
      <content src="chapter1.xhtml"/>
      <navPoint id="n1a">
        <navLabel><text>Section A</text></navLabel>
        <content src="chapter1.xhtml#sec-a"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`)
	toc, err := parseNCX(data, "OEBPS/toc.ncx")
	if err != nil {
		t.Fatal(err)
	}
	if len(toc) != 1 || toc[0].Title != "Part One" {
		t.Fatalf("toc = %+v", toc)
	}
	if toc[0].Href != "OEBPS/chapter1.xhtml" {
		t.Errorf("href = %q", toc[0].Href)
	}
	if len(toc[0].Children) != 1 || toc[0].Children[0].Href != "OEBPS/chapter1.xhtml#sec-a" {
		t.Errorf("children = %+v", toc[0].Children)
	}
}

func TestHasManifestProperty(t *testing.T) {
	mi := &manifestItem{Properties: "nav cover-image"}
	if !hasManifestProperty(mi, "nav") {
		t.Error("expected nav property")
	}
	if hasManifestProperty(mi, "mathml") {
		t.Error("unexpected mathml property")
	}
}

func TestBuildChapterXHTML_RubyEPUB3UsesRubyElement(t *testing.T) {
	doc := &ir.Document{Metadata: ir.Metadata{Title: "T"}}
	ch := &ir.Chapter{ID: "ch-1", Content: []ir.ContentNode{
		{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{
			{Kind: ir.InlineRuby, Ruby: &ir.RubyInline{Base: "漢", Annotation: "kan"}},
		}}},
	}}
	xdoc := buildChapterXHTML(doc, ch, true)
	p := xdoc.FindElement("//p")
	if p == nil || p.FindElement("ruby") == nil {
		t.Fatalf("expected <ruby> element in EPUB3 output, got %s", mustXHTMLString(t, xdoc))
	}
	if p.FindElement("sup") != nil {
		t.Errorf("did not expect <sup> fallback in EPUB3 output")
	}
}

func TestBuildChapterXHTML_RubyEPUB2FallsBackToSuperscript(t *testing.T) {
	doc := &ir.Document{Metadata: ir.Metadata{Title: "T"}}
	ch := &ir.Chapter{ID: "ch-1", Content: []ir.ContentNode{
		{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{
			{Kind: ir.InlineRuby, Ruby: &ir.RubyInline{Base: "漢", Annotation: "kan"}},
		}}},
	}}
	xdoc := buildChapterXHTML(doc, ch, false)
	p := xdoc.FindElement("//p")
	if p == nil {
		t.Fatal("missing <p>")
	}
	if p.FindElement("ruby") != nil {
		t.Error("did not expect <ruby> element in EPUB2 output")
	}
	sup := p.FindElement("sup")
	if sup == nil || sup.Text() != "kan" {
		t.Fatalf("expected <sup>kan</sup> fallback, got %s", mustXHTMLString(t, xdoc))
	}
	if p.Text() != "漢" {
		t.Errorf("expected base text %q in <p>, got %q", "漢", p.Text())
	}
}

func mustXHTMLString(t *testing.T, xdoc *etree.Document) string {
	t.Helper()
	s, err := xdoc.WriteToString()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReader_MissingMimetypeFails(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeEntry(t, zw, containerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	r := Reader{}
	_, err := r.Read(context.Background(), bytes.NewReader(buf.Bytes()), "nomime.epub", ir.ReadOptions{})
	if err == nil {
		t.Fatal("expected read to fail when mimetype entry is absent")
	}
}

func TestReader_WrongMimetypeContentFails(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w.Write([]byte("application/zip"))
	writeEntry(t, zw, containerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	r := Reader{}
	_, err := r.Read(context.Background(), bytes.NewReader(buf.Bytes()), "badmime.epub", ir.ReadOptions{})
	if err == nil {
		t.Fatal("expected read to fail when mimetype content is wrong")
	}
}

func TestNormalizeISBN(t *testing.T) {
	cases := map[string]string{
		"urn:isbn:978-0-00-000000-2": "9780000000002",
		"isbn:1-234-56789-0":         "1234567890",
		"9780000000002":              "9780000000002",
	}
	for in, want := range cases {
		if got := normalizeISBN(in); got != want {
			t.Errorf("normalizeISBN(%q) = %q, want %q", in, got, want)
		}
	}
}
