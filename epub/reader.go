package epub

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rupor-github/ebk/archive"
	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/security"
)

// limitsFromIR converts the ir-side mirror struct to security.Limits. This
// conversion lives here (rather than as a method on either type) so neither
// ir nor security needs to import the other.
func limitsFromIR(l ir.SecurityLimits) security.Limits {
	out := security.DefaultLimits()
	if l.MaxDecompressRatio > 0 {
		out.MaxDecompressRatio = l.MaxDecompressRatio
	}
	if l.MaxDecompressedSizeBytes > 0 {
		out.MaxDecompressedSizeBytes = l.MaxDecompressedSizeBytes
	}
	if l.MaxFileCount > 0 {
		out.MaxFileCount = l.MaxFileCount
	}
	if l.MaxResourceSizeBytes > 0 {
		out.MaxResourceSizeBytes = l.MaxResourceSizeBytes
	}
	if l.MaxParseDepth > 0 {
		out.MaxParseDepth = l.MaxParseDepth
	}
	if l.ParseTimeoutSeconds > 0 {
		out.ParseTimeout = time.Duration(l.ParseTimeoutSeconds) * time.Second
	}
	return out
}

// Reader implements ir.Reader for EPUB 2 and EPUB 3 containers.
type Reader struct{}

var _ ir.Reader = Reader{}

// Detect performs a cheap, non-authoritative check: package detect owns the
// real classification cascade; this exists so Reader satisfies ir.Reader on
// its own for callers that bypass the top-level pipeline.
func (Reader) Detect(header []byte) (float64, bool) {
	if len(header) < 4 || string(header[:2]) != "PK" {
		return 0, false
	}
	return 0.5, true
}

// Read parses an EPUB archive into a Document. It runs DRM detection before
// any XML/XHTML parsing, bounds every archive read through a
// *security.Guard built from opts.Limits, and resolves the cover, spine,
// manifest and TOC into the format-agnostic IR.
func (Reader) Read(ctx context.Context, src io.ReadSeeker, name string, opts ir.ReadOptions) (*ir.Document, error) {
	if err := security.CheckContext(ctx); err != nil {
		return nil, err
	}

	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadIO, Detail: "seek", Err: err}
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadIO, Detail: "seek", Err: err}
	}
	ra, ok := src.(io.ReaderAt)
	if !ok {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadIO, Detail: "source does not support random access"}
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, ir.NewMalformedFile("epub", "not a valid ZIP container: "+err.Error())
	}

	limits := limitsFromIR(opts.Limits)
	guard := security.NewGuard(limits)
	guard.Start()

	mtFile, ok, err := findRaw(zr, guard, "mimetype")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewMissingContent("epub", "mimetype")
	}
	mtData, err := readSmallEntry(guard, mtFile)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(mtData)) != mimetypeContent {
		return nil, ir.NewMalformedFile("epub", "mimetype entry does not read "+mimetypeContent)
	}

	if err := checkEPUBDRM(zr, guard); err != nil {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadSecurity, Detail: "DRM-protected EPUB", Err: err}
	}

	containerFile, ok, err := findRaw(zr, guard, containerPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewMissingContent("epub", containerPath)
	}
	containerData, err := readSmallEntry(guard, containerFile)
	if err != nil {
		return nil, err
	}
	opfPath, err := parseContainerXML(containerData)
	if err != nil {
		return nil, err
	}

	opfFile, ok, err := findRaw(zr, guard, opfPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewMissingContent("epub", opfPath)
	}
	opfData, err := readSmallEntry(guard, opfFile)
	if err != nil {
		return nil, err
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}

	byID, _ := buildManifestMaps(pkg.Manifest)
	spine := buildSpine(pkg.SpineRefs, byID)
	opfDir := path.Dir(opfPath)
	resolve := func(href string) string {
		if href == "" {
			return ""
		}
		if opfDir == "." {
			return path.Clean(href)
		}
		return path.Clean(path.Join(opfDir, href))
	}

	doc := &ir.Document{
		Metadata: metadataToIR(pkg.Metadata),
		Res:      ir.ResourceMap{},
		FormatOrigin: ir.FormatHint{
			SourceFormat: "epub",
			EPUBVersion:  pkg.Version,
		},
	}
	isEPUB3 := strings.HasPrefix(pkg.Version, "3")

	// Import every manifest resource as an ir.Resource up front (except
	// spine XHTML items, which become Chapters instead); this also resolves
	// the cover image.
	resourceIDByPath := make(map[string]string, len(pkg.Manifest))
	for i := range pkg.Manifest {
		mi := &pkg.Manifest[i]
		if isSpineDocument(mi, spine) {
			continue
		}
		if isNavOrNCX(mi, pkg) {
			continue
		}
		archivePath := resolve(mi.Href)
		f, ok, err := findRaw(zr, guard, archivePath)
		if err != nil || !ok {
			continue
		}
		data, err := readGuardedEntry(guard, f)
		if err != nil {
			return nil, err
		}
		res := &ir.Resource{ID: mi.ID, MediaType: mi.MediaType, Bytes: data, OriginalFilename: path.Base(mi.Href)}
		doc.Res[mi.ID] = res
		resourceIDByPath[archivePath] = mi.ID
		if hasManifestProperty(mi, "cover-image") {
			doc.Metadata.CoverID = mi.ID
		}
	}
	if doc.Metadata.CoverID == "" {
		doc.Metadata.CoverID = findEPUB2Cover(pkg, byID, resolve)
	}

	depth := security.NewDepthCounter(limits)
	encPolicy := opts.Encoding
	if encPolicy == nil {
		def := encoding.DefaultOptions()
		encPolicy = &def
	}
	importer := &xhtmlImporter{
		resolveImage: func(href string) string {
			return resourceIDByPath[resolve(href)]
		},
		depth: depth,
		enc:   encPolicy,
	}

	pathToChapterID := make(map[string]string, len(spine))
	var chapters []ir.Chapter
	for _, si := range spine {
		if si.Href == "" {
			continue
		}
		archivePath := resolve(si.Href)
		f, ok, err := findRaw(zr, guard, archivePath)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := readGuardedEntry(guard, f)
		if err != nil {
			return nil, err
		}
		content, err := importer.parseXHTMLBody(data)
		if err != nil {
			return nil, err
		}
		id := si.ID
		if id == "" {
			id = fmt.Sprintf("chapter-%d", len(chapters))
		}
		chapters = append(chapters, ir.Chapter{ID: id, Content: content})
		pathToChapterID[archivePath] = id

		if err := guard.CheckDeadline(); err != nil {
			return nil, err
		}
		ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "epub.read", Current: len(chapters), Total: len(spine), Message: "reading chapter " + id})
	}
	doc.Chapters = chapters

	if opts.ParseTOC {
		toc, err := readTOC(zr, guard, pkg, byID, isEPUB3, opfDir)
		if err == nil {
			tocHrefToChapterID(toc, pathToChapterID)
			doc.TOC = toc
		}
	}

	return doc, nil
}

func isSpineDocument(mi *manifestItem, spine []spineItem) bool {
	for _, si := range spine {
		if si.ID == mi.ID {
			return true
		}
	}
	return false
}

func isNavOrNCX(mi *manifestItem, pkg *opfDoc) bool {
	if hasManifestProperty(mi, "nav") {
		return true
	}
	return mi.ID == pkg.SpineTocID
}

func findEPUB2Cover(pkg *opfDoc, byID map[string]*manifestItem, resolve func(string) string) string {
	for _, m := range pkg.Metadata.Metas {
		if strings.EqualFold(m.Name, "cover") {
			if mi, ok := byID[m.Content]; ok {
				return mi.ID
			}
		}
	}
	return ""
}

func readTOC(zr *zip.Reader, guard *security.Guard, pkg *opfDoc, byID map[string]*manifestItem, isEPUB3 bool, opfDir string) ([]ir.TocEntry, error) {
	resolveOPF := func(href string) string {
		if href == "" {
			return ""
		}
		if opfDir == "." {
			return path.Clean(href)
		}
		return path.Clean(path.Join(opfDir, href))
	}

	if isEPUB3 {
		for _, mi := range pkg.Manifest {
			if !hasManifestProperty(&mi, "nav") {
				continue
			}
			navPath := resolveOPF(mi.Href)
			f, ok, err := findRaw(zr, guard, navPath)
			if err != nil || !ok {
				break
			}
			data, err := readGuardedEntry(guard, f)
			if err != nil {
				return nil, err
			}
			toc, _, err := parseNavDocument(data, navPath)
			if err == nil && len(toc) > 0 {
				return toc, nil
			}
			break
		}
	}

	if pkg.SpineTocID != "" {
		if mi, ok := byID[pkg.SpineTocID]; ok {
			ncxPath := resolveOPF(mi.Href)
			f, ok, err := findRaw(zr, guard, ncxPath)
			if err == nil && ok {
				data, err := readGuardedEntry(guard, f)
				if err == nil {
					if toc, err := parseNCX(data, ncxPath); err == nil {
						return toc, nil
					}
				}
			}
		}
	}
	return nil, nil
}

// findRaw looks up name in zr, going through the Security Gate's guarded
// directory listing (entry-count and path-traversal validation) rather than
// scanning zr.File directly.
func findRaw(zr *zip.Reader, guard *security.Guard, name string) (*zip.File, bool, error) {
	if f, ok, err := archive.Find(zr, name, guard); err != nil || ok {
		return f, ok, err
	}
	entries, err := guard.OpenZipDirectory(zr)
	if err != nil {
		return nil, false, err
	}
	// Case-insensitive fallback: real-world EPUBs occasionally disagree with
	// their own OPF casing.
	for _, entry := range entries {
		if strings.EqualFold(entry.Name, name) {
			return entry.File, true, nil
		}
	}
	return nil, false, nil
}

func readSmallEntry(guard *security.Guard, f *zip.File) ([]byte, error) {
	gr, err := guard.GuardEntry(f)
	if err != nil {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadSecurity, Detail: f.Name, Err: err}
	}
	data, err := security.ReadAllGuarded(gr)
	if err != nil {
		return nil, &ir.ReadError{Op: "epub", Kind: ir.ReadSecurity, Detail: f.Name, Err: err}
	}
	return data, nil
}

func readGuardedEntry(guard *security.Guard, f *zip.File) ([]byte, error) {
	return readSmallEntry(guard, f)
}

func checkEPUBDRM(zr *zip.Reader, guard *security.Guard) error {
	f, ok, err := findRaw(zr, guard, "META-INF/encryption.xml")
	if err != nil || !ok {
		return nil
	}
	data, err := readSmallEntry(guard, f)
	if err != nil {
		return err
	}
	return security.CheckEPUBEncryption(data)
}
