package epub

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rupor-github/ebk/ir"
)

// parseContainerXML locates the OPF rootfile path from META-INF/container.xml
// content, preferring the OEBPS-package rootfile and falling back to the
// first non-empty full-path if the media-type is missing or unrecognised.
func parseContainerXML(data []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return "", ir.NewMalformedFile("epub", fmt.Sprintf("parse container.xml: %v", err))
	}
	container := doc.SelectElement("container")
	if container == nil {
		return "", ir.NewMalformedFile("epub", "container.xml has no <container> root element")
	}
	rootfiles := container.SelectElement("rootfiles")
	if rootfiles == nil {
		return "", ir.NewMissingContent("epub", "container.xml rootfiles")
	}

	var fallback string
	for _, rf := range rootfiles.SelectElements("rootfile") {
		full := strings.TrimSpace(rf.SelectAttrValue("full-path", ""))
		if full == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.SelectAttrValue("media-type", "")), "application/oebps-package+xml") {
			return full, nil
		}
		if fallback == "" {
			fallback = full
		}
	}
	if fallback == "" {
		return "", ir.NewMissingContent("epub", "container.xml rootfile full-path")
	}
	return fallback, nil
}
