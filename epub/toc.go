package epub

import (
	"bytes"
	"path"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rupor-github/ebk/ir"
)

// resolveRelativePath joins href against the directory of basePath, both
// ZIP-internal paths, and cleans the result. Used to turn NCX/NAV-relative
// hrefs into archive-root-relative paths the manifest can match against.
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.Contains(href, "://") {
		return ""
	}
	dir := path.Dir(basePath)
	if dir == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(dir, href))
}

func hrefWithoutFragment(href string) string {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx]
	}
	return href
}

// parseNCX converts a <ncx><navMap> tree into []ir.TocEntry. ncxPath is the
// archive path of the NCX file, used to resolve relative <content src=".."/>.
func parseNCX(data []byte, ncxPath string) ([]ir.TocEntry, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ir.NewMalformedFile("epub", "parse NCX: "+err.Error())
	}
	ncx := doc.SelectElement("ncx")
	if ncx == nil {
		return nil, ir.NewMalformedFile("epub", "NCX has no <ncx> root element")
	}
	navMap := ncx.SelectElement("navMap")
	if navMap == nil {
		return nil, nil
	}
	return convertNavPoints(navMap.SelectElements("navPoint"), ncxPath), nil
}

func convertNavPoints(points []*etree.Element, ncxPath string) []ir.TocEntry {
	if len(points) == 0 {
		return nil
	}
	out := make([]ir.TocEntry, 0, len(points))
	for _, np := range points {
		entry := ir.TocEntry{}
		if label := np.SelectElement("navLabel"); label != nil {
			if text := label.SelectElement("text"); text != nil {
				entry.Title = strings.TrimSpace(text.Text())
			}
		}
		if content := np.SelectElement("content"); content != nil {
			if src := strings.TrimSpace(content.SelectAttrValue("src", "")); src != "" {
				entry.Href = resolveRelativePath(ncxPath, src)
			}
		}
		entry.Children = convertNavPoints(np.SelectElements("navPoint"), ncxPath)
		out = append(out, entry)
	}
	return out
}

// parseNavDocument extracts the toc and landmarks <nav> elements from an
// EPUB3 XHTML navigation document, grounded on the same x/net/html
// tokenizer-tree traversal the pack's epub reader uses for its nav document.
func parseNavDocument(data []byte, navPath string) (toc, landmarks []ir.TocEntry, err error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, ir.NewMalformedFile("epub", "parse nav document: "+err.Error())
	}

	var navNodes []*html.Node
	var findNavs func(*html.Node)
	findNavs = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navNodes = append(navNodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findNavs(c)
		}
	}
	findNavs(doc)

	for _, nav := range navNodes {
		switch {
		case hasEpubType(nav, "toc"):
			if ol := findFirstChildElement(nav, atom.Ol); ol != nil {
				toc = parseNavOL(ol, navPath)
			}
		case hasEpubType(nav, "landmarks"):
			if ol := findFirstChildElement(nav, atom.Ol); ol != nil {
				landmarks = parseNavOL(ol, navPath)
			}
		}
	}
	return toc, landmarks, nil
}

func parseNavOL(ol *html.Node, basePath string) []ir.TocEntry {
	var items []ir.TocEntry
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			items = append(items, parseNavLI(c, basePath))
		}
	}
	return items
}

func parseNavLI(li *html.Node, basePath string) ir.TocEntry {
	var entry ir.TocEntry
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.A:
			if entry.Href == "" {
				if href := navGetAttr(c, "href"); href != "" {
					entry.Href = resolveRelativePath(basePath, href)
				}
				entry.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case atom.Span:
			if entry.Title == "" {
				entry.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case atom.Ol:
			entry.Children = parseNavOL(c, basePath)
		}
	}
	return entry
}

func hasEpubType(n *html.Node, typeName string) bool {
	for _, t := range strings.Fields(navGetAttr(n, "epub:type")) {
		if t == typeName {
			return true
		}
	}
	return false
}

func navGetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirstChildElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findFirstChildElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeTextContent(c))
	}
	return b.String()
}

// tocHrefToChapterID rewrites every TocEntry.Href in place from an
// archive-relative path (possibly with a #fragment) to "chapterID[#fragment]"
// using the archive-path -> chapter-ID map built while importing the spine.
func tocHrefToChapterID(entries []ir.TocEntry, pathToChapterID map[string]string) {
	for i := range entries {
		if entries[i].Href != "" {
			p := hrefWithoutFragment(entries[i].Href)
			frag := strings.TrimPrefix(entries[i].Href[len(p):], "#")
			if id, ok := pathToChapterID[p]; ok {
				if frag != "" {
					entries[i].Href = id + "#" + frag
				} else {
					entries[i].Href = id
				}
			}
		}
		tocHrefToChapterID(entries[i].Children, pathToChapterID)
	}
}
