package epub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/rupor-github/ebk/ir"
)

const (
	nsOPF = "http://www.idpf.org/2007/opf"
	nsDC  = "http://purl.org/dc/elements/1.1/"
)

// opfItemRef is a raw <spine><itemref> before manifest resolution.
type opfItemRef struct {
	IDRef  string
	Linear string
}

type opfDoc struct {
	Version          string
	UniqueIdentifier string
	Manifest         []manifestItem
	SpineRefs        []opfItemRef
	SpineTocID       string
	Guide            []guideReference
	Metadata         opfMetadataRaw
}

// opfMetadataRaw holds every <metadata> child needed to populate ir.Metadata,
// keeping OPF2 attribute-based and OPF3 refines-based variants side by side.
type opfMetadataRaw struct {
	Titles       []dcElement
	Creators     []dcElement
	Languages    []dcElement
	Identifiers  []dcElement
	Publishers   []dcElement
	Dates        []dcElement
	Descriptions []dcElement
	Subjects     []dcElement
	Rights       []dcElement
	Metas        []metaElement
}

type dcElement struct {
	Value  string
	ID     string
	FileAs string
	Role   string
	Scheme string
}

type metaElement struct {
	Name     string
	Content  string
	Property string
	Refines  string
	Scheme   string
	Value    string
}

// parseOPF parses package.opf content using etree, matching the teacher's
// XML-handling idiom (etree.Document) rather than encoding/xml.
func parseOPF(data []byte) (*opfDoc, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ir.NewMalformedFile("epub", fmt.Sprintf("parse OPF: %v", err))
	}
	pkg := doc.SelectElement("package")
	if pkg == nil {
		return nil, ir.NewMalformedFile("epub", "OPF has no <package> root element")
	}

	out := &opfDoc{
		Version:          attrOr(pkg, "version", "2.0"),
		UniqueIdentifier: pkg.SelectAttrValue("unique-identifier", ""),
	}

	if md := pkg.SelectElement("metadata"); md != nil {
		out.Metadata = parseOPFMetadata(md)
	}
	if mf := pkg.SelectElement("manifest"); mf != nil {
		for _, item := range mf.SelectElements("item") {
			out.Manifest = append(out.Manifest, manifestItem{
				ID:         item.SelectAttrValue("id", ""),
				Href:       item.SelectAttrValue("href", ""),
				MediaType:  item.SelectAttrValue("media-type", ""),
				Properties: item.SelectAttrValue("properties", ""),
			})
		}
	}
	if sp := pkg.SelectElement("spine"); sp != nil {
		out.SpineTocID = sp.SelectAttrValue("toc", "")
		for _, ref := range sp.SelectElements("itemref") {
			out.SpineRefs = append(out.SpineRefs, opfItemRef{
				IDRef:  ref.SelectAttrValue("idref", ""),
				Linear: ref.SelectAttrValue("linear", ""),
			})
		}
	}
	if gd := pkg.SelectElement("guide"); gd != nil {
		for _, ref := range gd.SelectElements("reference") {
			out.Guide = append(out.Guide, guideReference{
				Type:  ref.SelectAttrValue("type", ""),
				Title: ref.SelectAttrValue("title", ""),
				Href:  ref.SelectAttrValue("href", ""),
			})
		}
	}
	return out, nil
}

func parseOPFMetadata(md *etree.Element) opfMetadataRaw {
	var out opfMetadataRaw
	for _, el := range md.ChildElements() {
		switch {
		case el.Tag == "title":
			out.Titles = append(out.Titles, dcElementFrom(el))
		case el.Tag == "creator":
			out.Creators = append(out.Creators, dcElementFrom(el))
		case el.Tag == "language":
			out.Languages = append(out.Languages, dcElementFrom(el))
		case el.Tag == "identifier":
			out.Identifiers = append(out.Identifiers, dcElementFrom(el))
		case el.Tag == "publisher":
			out.Publishers = append(out.Publishers, dcElementFrom(el))
		case el.Tag == "date":
			out.Dates = append(out.Dates, dcElementFrom(el))
		case el.Tag == "description":
			out.Descriptions = append(out.Descriptions, dcElementFrom(el))
		case el.Tag == "subject":
			out.Subjects = append(out.Subjects, dcElementFrom(el))
		case el.Tag == "rights":
			out.Rights = append(out.Rights, dcElementFrom(el))
		case el.Tag == "meta":
			out.Metas = append(out.Metas, metaElement{
				Name:     el.SelectAttrValue("name", ""),
				Content:  el.SelectAttrValue("content", ""),
				Property: el.SelectAttrValue("property", ""),
				Refines:  el.SelectAttrValue("refines", ""),
				Scheme:   el.SelectAttrValue("scheme", ""),
				Value:    strings.TrimSpace(el.Text()),
			})
		}
	}
	return out
}

func dcElementFrom(el *etree.Element) dcElement {
	return dcElement{
		Value:  strings.TrimSpace(el.Text()),
		ID:     el.SelectAttrValue("id", ""),
		FileAs: el.SelectAttrValue("file-as", ""),
		Role:   el.SelectAttrValue("role", ""),
		Scheme: el.SelectAttrValue("scheme", ""),
	}
}

func attrOr(el *etree.Element, name, def string) string {
	if v := el.SelectAttrValue(name, ""); v != "" {
		return v
	}
	return def
}

// metadataToIR converts the raw OPF metadata into ir.Metadata, resolving
// OPF3 <meta refines="#id"> indirection the same way a reader generalising
// simp-lee-epub's metadata.go would.
func metadataToIR(raw opfMetadataRaw) ir.Metadata {
	refines := make(map[string][]metaElement)
	for _, m := range raw.Metas {
		if strings.HasPrefix(m.Refines, "#") {
			id := m.Refines[1:]
			refines[id] = append(refines[id], m)
		}
	}
	findRefine := func(id, property string) (string, bool) {
		for _, m := range refines[id] {
			if m.Property == property && m.Value != "" {
				return m.Value, true
			}
		}
		return "", false
	}

	md := ir.Metadata{Overflow: map[string]string{}}

	if len(raw.Titles) > 0 {
		md.Title = raw.Titles[0].Value
		if len(raw.Titles) > 1 {
			md.Subtitle = raw.Titles[1].Value
		}
	}
	for _, c := range raw.Creators {
		if c.Value != "" {
			md.Authors = append(md.Authors, c.Value)
		}
	}
	if len(raw.Languages) > 0 {
		md.Language = raw.Languages[0].Value
	}
	for _, id := range raw.Identifiers {
		scheme := strings.ToLower(id.Scheme)
		if scheme == "" && id.ID != "" {
			if s, ok := findRefine(id.ID, "identifier-type"); ok {
				scheme = strings.ToLower(s)
			}
		}
		v := normalizeISBN(id.Value)
		switch {
		case strings.Contains(scheme, "isbn") && len(v) == 10:
			md.ISBN10 = v
		case strings.Contains(scheme, "isbn") && len(v) == 13:
			md.ISBN13 = v
		case len(v) == 13 && md.ISBN13 == "":
			md.ISBN13 = v
		case len(v) == 10 && md.ISBN10 == "":
			md.ISBN10 = v
		}
	}
	if len(raw.Publishers) > 0 {
		md.Publisher = raw.Publishers[0].Value
	}
	if len(raw.Dates) > 0 {
		md.PublishDate = raw.Dates[0].Value
	}
	if len(raw.Descriptions) > 0 {
		md.Description = raw.Descriptions[0].Value
	}
	for _, s := range raw.Subjects {
		if s.Value != "" {
			md.Subjects = append(md.Subjects, s.Value)
		}
	}
	if len(raw.Rights) > 0 {
		md.Rights = raw.Rights[0].Value
	}

	for _, m := range raw.Metas {
		switch {
		case strings.EqualFold(m.Name, "calibre:series"):
			if md.Series == nil {
				md.Series = &ir.SeriesInfo{}
			}
			md.Series.Name = m.Content
		case strings.EqualFold(m.Name, "calibre:series_index"):
			if md.Series == nil {
				md.Series = &ir.SeriesInfo{}
			}
			if f, err := strconv.ParseFloat(m.Content, 64); err == nil {
				md.Series.Position = f
			}
		}
	}

	return md
}

func normalizeISBN(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "urn:isbn:")
	s = strings.TrimPrefix(s, "isbn:")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
