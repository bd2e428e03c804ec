// Package epub implements the EPUB {2, 3} Reader and Writer: container.xml
// and OPF parsing/generation, NCX/NAV table-of-contents handling, per-spine
// XHTML <-> ir.ContentNode conversion, and cover resolution.
//
// The zip-level plumbing (bounded walking, path canonicalisation,
// decompression limits) lives in package archive/security and is never
// duplicated here; every archive entry this package touches goes through a
// *security.Guard first.
package epub

const (
	mimetypeContent = "application/epub+zip"
	oebpsDir        = "OEBPS"
	containerPath   = "META-INF/container.xml"
)
