package epub

import "strings"

// manifestItem is a processed <manifest><item> entry; buildManifestMaps
// indexes the entries by ID and by Href.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// spineItem is a processed <spine><itemref> entry with its manifest
// reference already resolved.
type spineItem struct {
	IDRef     string
	ID        string
	Href      string
	MediaType string
	Linear    bool
}

// guideReference is a processed OPF2 <guide><reference> entry.
type guideReference struct {
	Type  string
	Title string
	Href  string
}

func buildManifestMaps(items []manifestItem) (byID, byHref map[string]*manifestItem) {
	byID = make(map[string]*manifestItem, len(items))
	byHref = make(map[string]*manifestItem, len(items))
	for i := range items {
		mi := &items[i]
		byID[mi.ID] = mi
		byHref[mi.Href] = mi
	}
	return byID, byHref
}

func buildSpine(refs []opfItemRef, byID map[string]*manifestItem) []spineItem {
	out := make([]spineItem, 0, len(refs))
	for _, ref := range refs {
		si := spineItem{IDRef: ref.IDRef, Linear: ref.Linear != "no"}
		if mi, ok := byID[ref.IDRef]; ok {
			si.ID = mi.ID
			si.Href = mi.Href
			si.MediaType = mi.MediaType
		}
		out = append(out, si)
	}
	return out
}

func hasManifestProperty(mi *manifestItem, prop string) bool {
	for _, p := range strings.Fields(mi.Properties) {
		if p == prop {
			return true
		}
	}
	return false
}
