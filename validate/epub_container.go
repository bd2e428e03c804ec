package validate

import (
	"archive/zip"
	"bytes"

	"github.com/rupor-github/ebk/security"
)

const epubMimetype = "application/epub+zip"

// ValidateEPUBContainer runs the OCF-level structural checks from spec.md
// §4.5 ("ZIP well-formedness, mimetype position and content") directly
// against the raw archive, before any OPF/IR-level parsing — these
// properties are only observable on the container itself, since a
// successful ir.Document read has already discarded them.
func ValidateEPUBContainer(data []byte, limits security.Limits) *Report {
	r := &Report{}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		r.add(SeverityError, "OCF-001-NOT-A-ZIP", "container is not a well-formed ZIP archive: "+err.Error(), "", false)
		return r
	}
	if limits.MaxFileCount > 0 && len(zr.File) > limits.MaxFileCount {
		r.add(SeverityError, "OCF-EXCESSIVE-FILE-COUNT", "archive exceeds the configured file-count limit", "", false)
		return r
	}

	if len(zr.File) == 0 {
		r.add(SeverityError, "OCF-002-EMPTY-ARCHIVE", "archive contains no entries", "", false)
		return r
	}

	first := zr.File[0]
	switch {
	case first.Name != "mimetype":
		r.add(SeverityError, "OCF-003-MIMETYPE-NOT-FIRST", "mimetype must be the first entry in the archive", first.Name, false)
	case first.Method != zip.Store:
		r.add(SeverityError, "OCF-004-MIMETYPE-COMPRESSED", "mimetype entry must be stored uncompressed", "mimetype", true)
	default:
		rc, err := first.Open()
		if err == nil {
			defer rc.Close()
			buf := make([]byte, len(epubMimetype)+1)
			n, _ := rc.Read(buf)
			if string(buf[:n]) != epubMimetype {
				r.add(SeverityError, "OCF-005-MIMETYPE-CONTENT", "mimetype entry content is not "+epubMimetype, "mimetype", true)
			}
		}
	}

	hasContainerXML := false
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" {
			hasContainerXML = true
			break
		}
	}
	if !hasContainerXML {
		r.add(SeverityError, "OCF-006-MISSING-CONTAINER-XML", "archive has no META-INF/container.xml", "", false)
	}

	return r
}
