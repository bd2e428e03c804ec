package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	fixzip "github.com/hidez8891/zip"

	"github.com/rupor-github/ebk/ir"
)

// Writer implements ir.Writer for EPUB 2 and EPUB 3 output, following the
// teacher's archive-assembly order from convert/epub/generate.go: mimetype
// (stored, uncompressed, written first), META-INF/container.xml, chapter
// XHTML files, images, stylesheet, cover page, then the package document and
// its navigation (NAV for EPUB3, NCX for EPUB2).
type Writer struct{}

var _ ir.Writer = Writer{}

// Write serialises doc as an EPUB archive to dst. When opts.Minify is set,
// the archive is rewritten through hidez8891/zip to drop data-descriptor
// records, matching the teacher's optional FixZip pass for stricter
// e-reader compatibility.
func (Writer) Write(ctx context.Context, doc *ir.Document, dst io.Writer, opts ir.WriteOptions) error {
	version := opts.EPUBVersion
	if version == "" {
		version = "3.0"
	}
	isEPUB3 := strings.HasPrefix(version, "3")

	var raw bytes.Buffer
	zw := zip.NewWriter(&raw)

	if err := writeMimetype(zw); err != nil {
		return &ir.WriteError{Op: "epub", Detail: "mimetype", Err: err}
	}
	if err := writeContainerXML(zw); err != nil {
		return &ir.WriteError{Op: "epub", Detail: "container.xml", Err: err}
	}

	chapterFiles := make([]string, len(doc.Chapters))
	chapterIDs := make(map[string]string, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		filename := chapterFilename(i, ch.ID)
		chapterFiles[i] = filename
		chapterIDs[ch.ID] = filename

		xdoc := buildChapterXHTML(doc, &ch, isEPUB3)
		if err := writeXMLToZip(zw, path.Join(oebpsDir, filename), xdoc); err != nil {
			return &ir.WriteError{Op: "epub", Detail: "chapter " + ch.ID, Err: err}
		}
		if err := checkCtx(ctx); err != nil {
			return err
		}
		ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "epub.write", Current: i + 1, Total: len(doc.Chapters), Message: "writing " + filename})
	}

	for id, res := range doc.Res {
		if id == doc.Metadata.CoverID {
			continue // cover gets a dedicated wrapper page below
		}
		filename := resourceFilename(res)
		if err := writeDataToZip(zw, path.Join(oebpsDir, filename), res.Bytes); err != nil {
			return &ir.WriteError{Op: "epub", Detail: "resource " + id, Err: err}
		}
	}

	if doc.Metadata.CoverID != "" {
		if cover := doc.Res.Get(doc.Metadata.CoverID); cover != nil {
			coverFilename := resourceFilename(cover)
			if err := writeDataToZip(zw, path.Join(oebpsDir, coverFilename), cover.Bytes); err != nil {
				return &ir.WriteError{Op: "epub", Detail: "cover image", Err: err}
			}
			if err := writeCoverPage(zw, doc, coverFilename, isEPUB3); err != nil {
				return &ir.WriteError{Op: "epub", Detail: "cover page", Err: err}
			}
		}
	}

	if err := writeOPF(zw, doc, chapterFiles, isEPUB3, opts); err != nil {
		return &ir.WriteError{Op: "epub", Detail: "content.opf", Err: err}
	}

	if isEPUB3 {
		if err := writeNav(zw, doc, chapterIDs); err != nil {
			return &ir.WriteError{Op: "epub", Detail: "nav.xhtml", Err: err}
		}
	} else {
		if err := writeNCX(zw, doc, chapterIDs); err != nil {
			return &ir.WriteError{Op: "epub", Detail: "toc.ncx", Err: err}
		}
	}

	if err := zw.Close(); err != nil {
		return &ir.WriteError{Op: "epub", Detail: "close archive", Err: err}
	}

	if opts.Minify {
		return copyZipWithoutDataDescriptors(raw.Bytes(), dst)
	}
	_, err := dst.Write(raw.Bytes())
	return err
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &ir.CancelledError{}
	default:
		return nil
	}
}

func chapterFilename(index int, id string) string {
	if id == "" {
		return fmt.Sprintf("chapter%04d.xhtml", index)
	}
	return fmt.Sprintf("chapter%04d_%s.xhtml", index, sanitizeFilename(id))
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func resourceFilename(res *ir.Resource) string {
	if res.OriginalFilename != "" {
		return path.Join("resources", sanitizeFilename(path.Base(res.OriginalFilename)))
	}
	ext := extensionForMediaType(res.MediaType)
	return path.Join("resources", sanitizeFilename(res.ID)+ext)
}

func extensionForMediaType(mt string) string {
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "font/ttf", "application/x-font-ttf":
		return ".ttf"
	case "font/otf":
		return ".otf"
	case "font/woff":
		return ".woff"
	case "font/woff2":
		return ".woff2"
	case "text/css":
		return ".css"
	default:
		return ".bin"
	}
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainerXML(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")
	rootfiles := container.CreateElement("rootfiles")
	rootfile := rootfiles.CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(oebpsDir, "content.opf"))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")
	return writeXMLToZip(zw, containerPath, doc)
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeCoverPage(zw *zip.Writer, doc *ir.Document, coverFilename string, isEPUB3 bool) error {
	xdoc := etree.NewDocument()
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	if isEPUB3 {
		xdoc.CreateDirective("DOCTYPE html")
	} else {
		xdoc.CreateDirective(`DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"`)
	}
	html := xdoc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	head := html.CreateElement("head")
	head.CreateElement("title").SetText(doc.Metadata.Title)
	body := html.CreateElement("body")
	img := body.CreateElement("img")
	img.CreateAttr("src", coverFilename)
	img.CreateAttr("alt", "cover")
	return writeXMLToZip(zw, path.Join(oebpsDir, "cover.xhtml"), xdoc)
}

func writeOPF(zw *zip.Writer, doc *ir.Document, chapterFiles []string, isEPUB3 bool, opts ir.WriteOptions) error {
	xdoc := etree.NewDocument()
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	pkg := xdoc.CreateElement("package")
	pkg.CreateAttr("xmlns", nsOPF)
	pkg.CreateAttr("unique-identifier", "BookId")
	if isEPUB3 {
		pkg.CreateAttr("version", "3.0")
	} else {
		pkg.CreateAttr("version", "2.0")
	}

	md := pkg.CreateElement("metadata")
	md.CreateAttr("xmlns:dc", nsDC)
	md.CreateAttr("xmlns:opf", nsOPF)

	title := md.CreateElement("dc:title")
	title.SetText(doc.Metadata.Title)
	for _, a := range doc.Metadata.Authors {
		creator := md.CreateElement("dc:creator")
		creator.SetText(a)
	}
	if doc.Metadata.Language != "" {
		md.CreateElement("dc:language").SetText(doc.Metadata.Language)
	} else {
		md.CreateElement("dc:language").SetText("en")
	}
	ident := md.CreateElement("dc:identifier")
	ident.CreateAttr("id", "BookId")
	ident.SetText(bookIdentifier(doc))
	if doc.Metadata.Publisher != "" {
		md.CreateElement("dc:publisher").SetText(doc.Metadata.Publisher)
	}
	if doc.Metadata.PublishDate != "" {
		md.CreateElement("dc:date").SetText(doc.Metadata.PublishDate)
	}
	if doc.Metadata.Description != "" {
		md.CreateElement("dc:description").SetText(doc.Metadata.Description)
	}
	if doc.Metadata.Rights != "" {
		md.CreateElement("dc:rights").SetText(doc.Metadata.Rights)
	}
	for _, s := range doc.Metadata.Subjects {
		md.CreateElement("dc:subject").SetText(s)
	}
	if doc.Metadata.Series != nil {
		seriesMeta := md.CreateElement("meta")
		seriesMeta.CreateAttr("name", "calibre:series")
		seriesMeta.CreateAttr("content", doc.Metadata.Series.Name)
		posMeta := md.CreateElement("meta")
		posMeta.CreateAttr("name", "calibre:series_index")
		posMeta.CreateAttr("content", strconv.FormatFloat(doc.Metadata.Series.Position, 'f', -1, 64))
	}
	if doc.Metadata.CoverID != "" && !isEPUB3 {
		coverMeta := md.CreateElement("meta")
		coverMeta.CreateAttr("name", "cover")
		coverMeta.CreateAttr("content", "cover-image")
	}

	manifest := pkg.CreateElement("manifest")
	for i, ch := range doc.Chapters {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", chapterManifestID(i, ch.ID))
		item.CreateAttr("href", chapterFiles[i])
		item.CreateAttr("media-type", "application/xhtml+xml")
	}
	for id, res := range doc.Res {
		if id == doc.Metadata.CoverID {
			continue
		}
		item := manifest.CreateElement("item")
		item.CreateAttr("id", id)
		item.CreateAttr("href", resourceFilename(res))
		item.CreateAttr("media-type", res.MediaType)
	}
	if doc.Metadata.CoverID != "" {
		if cover := doc.Res.Get(doc.Metadata.CoverID); cover != nil {
			coverItem := manifest.CreateElement("item")
			coverItem.CreateAttr("id", "cover-image")
			coverItem.CreateAttr("href", resourceFilename(cover))
			coverItem.CreateAttr("media-type", cover.MediaType)
			if isEPUB3 {
				coverItem.CreateAttr("properties", "cover-image")
			}
			coverPage := manifest.CreateElement("item")
			coverPage.CreateAttr("id", "cover")
			coverPage.CreateAttr("href", "cover.xhtml")
			coverPage.CreateAttr("media-type", "application/xhtml+xml")
		}
	}
	if isEPUB3 {
		navItem := manifest.CreateElement("item")
		navItem.CreateAttr("id", "nav")
		navItem.CreateAttr("href", "nav.xhtml")
		navItem.CreateAttr("media-type", "application/xhtml+xml")
		navItem.CreateAttr("properties", "nav")
	} else {
		ncxItem := manifest.CreateElement("item")
		ncxItem.CreateAttr("id", "ncx")
		ncxItem.CreateAttr("href", "toc.ncx")
		ncxItem.CreateAttr("media-type", "application/x-dtbncx+xml")
	}

	spine := pkg.CreateElement("spine")
	if !isEPUB3 {
		spine.CreateAttr("toc", "ncx")
	}
	if doc.Metadata.CoverID != "" {
		coverRef := spine.CreateElement("itemref")
		coverRef.CreateAttr("idref", "cover")
		coverRef.CreateAttr("linear", "no")
	}
	for i, ch := range doc.Chapters {
		ref := spine.CreateElement("itemref")
		ref.CreateAttr("idref", chapterManifestID(i, ch.ID))
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "content.opf"), xdoc)
}

func chapterManifestID(index int, id string) string {
	if id == "" {
		return fmt.Sprintf("chapter%04d", index)
	}
	return "ch-" + sanitizeFilename(id)
}

func bookIdentifier(doc *ir.Document) string {
	if doc.Metadata.ISBN13 != "" {
		return "urn:isbn:" + doc.Metadata.ISBN13
	}
	if doc.Metadata.ISBN10 != "" {
		return "urn:isbn:" + doc.Metadata.ISBN10
	}
	return "urn:uuid:" + uuid.NewString()
}

func writeNav(zw *zip.Writer, doc *ir.Document, chapterIDs map[string]string) error {
	xdoc := etree.NewDocument()
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	xdoc.CreateDirective("DOCTYPE html")
	html := xdoc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	head := html.CreateElement("head")
	head.CreateElement("title").SetText("Table of Contents")
	body := html.CreateElement("body")
	nav := body.CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	ol := nav.CreateElement("ol")

	entries := doc.TOC
	if len(entries) == 0 {
		entries = tocFromChapters(doc.Chapters)
	}
	buildNavOL(ol, entries, chapterIDs)
	return writeXMLToZip(zw, path.Join(oebpsDir, "nav.xhtml"), xdoc)
}

func buildNavOL(ol *etree.Element, entries []ir.TocEntry, chapterIDs map[string]string) {
	for _, e := range entries {
		li := ol.CreateElement("li")
		a := li.CreateElement("a")
		a.CreateAttr("href", resolveTOCHref(e.Href, chapterIDs))
		a.SetText(e.Title)
		if len(e.Children) > 0 {
			childOl := li.CreateElement("ol")
			buildNavOL(childOl, e.Children, chapterIDs)
		}
	}
}

func writeNCX(zw *zip.Writer, doc *ir.Document, chapterIDs map[string]string) error {
	xdoc := etree.NewDocument()
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	xdoc.CreateDirective(`DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd"`)
	ncx := xdoc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	uidMeta := head.CreateElement("meta")
	uidMeta.CreateAttr("name", "dtb:uid")
	uidMeta.CreateAttr("content", bookIdentifier(doc))

	docTitle := ncx.CreateElement("docTitle")
	docTitle.CreateElement("text").SetText(doc.Metadata.Title)

	navMap := ncx.CreateElement("navMap")
	entries := doc.TOC
	if len(entries) == 0 {
		entries = tocFromChapters(doc.Chapters)
	}
	playOrder := 0
	buildNavPoints(navMap, entries, chapterIDs, &playOrder)
	return writeXMLToZip(zw, path.Join(oebpsDir, "toc.ncx"), xdoc)
}

func buildNavPoints(parent *etree.Element, entries []ir.TocEntry, chapterIDs map[string]string, playOrder *int) {
	for _, e := range entries {
		*playOrder++
		np := parent.CreateElement("navPoint")
		np.CreateAttr("id", fmt.Sprintf("navpoint-%d", *playOrder))
		np.CreateAttr("playOrder", strconv.Itoa(*playOrder))
		label := np.CreateElement("navLabel")
		label.CreateElement("text").SetText(e.Title)
		content := np.CreateElement("content")
		content.CreateAttr("src", resolveTOCHref(e.Href, chapterIDs))
		if len(e.Children) > 0 {
			buildNavPoints(np, e.Children, chapterIDs, playOrder)
		}
	}
}

// tocFromChapters synthesises a flat TOC from chapter titles when a Document
// carries no TOC of its own (e.g. produced by a writer-only pipeline stage).
func tocFromChapters(chapters []ir.Chapter) []ir.TocEntry {
	out := make([]ir.TocEntry, 0, len(chapters))
	for _, ch := range chapters {
		title := ch.Title
		if title == "" {
			title = ch.ID
		}
		out = append(out, ir.TocEntry{Title: title, Href: ch.ID})
	}
	return out
}

func resolveTOCHref(href string, chapterIDs map[string]string) string {
	id := href
	frag := ""
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		id, frag = href[:idx], href[idx:]
	}
	if filename, ok := chapterIDs[id]; ok {
		return filename + frag
	}
	return href
}

// copyZipWithoutDataDescriptors rewrites a fully-built zip (held in memory as
// raw) through hidez8891/zip, clearing the data-descriptor flag on every
// entry, matching the teacher's FixZip post-pass for picky e-readers.
func copyZipWithoutDataDescriptors(raw []byte, dst io.Writer) error {
	r, err := fixzip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("fixzip: open: %w", err)
	}
	w := fixzip.NewWriter(dst)
	for _, file := range r.File {
		file.Flags &= ^fixzip.FlagDataDescriptor
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("fixzip: copy %s: %w", file.Name, err)
		}
	}
	return w.Close()
}
