// Package detect classifies an untrusted byte source into one of the
// formats the toolkit knows how to read, without ever parsing its content:
// detection is a pure, bounded prefix read (<=4KiB; no suffix probe is
// read, also not for PDB-framed formats) that never mutates its input and never
// consumes security budget beyond that prefix.
package detect

// Format names a container/markup format the detector recognises.
type Format int

const (
	FormatUnknown Format = iota
	FormatEPUB
	FormatMOBI
	FormatKF8
	FormatPDF
	FormatFB2
	FormatHTML
	FormatMarkdown
	FormatPlainText
	FormatDOCX
	FormatCBZ
	FormatZIP
)

func (f Format) String() string {
	switch f {
	case FormatEPUB:
		return "epub"
	case FormatMOBI:
		return "mobi"
	case FormatKF8:
		return "kf8"
	case FormatPDF:
		return "pdf"
	case FormatFB2:
		return "fb2"
	case FormatHTML:
		return "html"
	case FormatMarkdown:
		return "markdown"
	case FormatPlainText:
		return "text"
	case FormatDOCX:
		return "docx"
	case FormatCBZ:
		return "cbz"
	case FormatZIP:
		return "zip"
	default:
		return "unknown"
	}
}

// Result is what Detect returns: a routing decision with a confidence score
// and the MIME type a caller would report alongside it.
type Result struct {
	Format     Format
	Confidence float64 // in [0,1]
	MIMEType   string
}

var mimeTypes = map[Format]string{
	FormatEPUB:      "application/epub+zip",
	FormatMOBI:      "application/x-mobipocket-ebook",
	FormatKF8:       "application/x-mobi8-ebook",
	FormatPDF:       "application/pdf",
	FormatFB2:       "application/x-fictionbook+xml",
	FormatHTML:      "text/html",
	FormatMarkdown:  "text/markdown",
	FormatPlainText: "text/plain",
	FormatDOCX:      "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatCBZ:       "application/vnd.comicbook+zip",
	FormatZIP:       "application/zip",
}
