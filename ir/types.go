// Package ir defines the format-agnostic Intermediate Representation that
// every reader emits into and every writer consumes from. The Document tree
// is the contract the rest of the toolkit is built around: readers,
// validators, repair, transforms and optimizers only ever see this shape,
// never a format-specific one.
package ir

import "fmt"

// Document is the root entity of the IR. It owns its metadata, table of
// contents, chapter sequence, and every embedded resource. A Document is
// value-semantic: callers that need transactional mutation (Repair,
// Transform pipelines) clone it first via Clone and replace the original
// only on success.
type Document struct {
	Metadata Metadata
	TOC      []TocEntry
	Chapters []Chapter
	Res      ResourceMap

	// FormatOrigin records where this Document came from, so writers and
	// repair can make format-aware decisions (e.g. EPUB2 vs EPUB3 NAV/NCX
	// choice) without re-detecting the source bytes.
	FormatOrigin FormatHint
}

// FormatHint carries format-specific provenance that downstream writers may
// honour but never require.
type FormatHint struct {
	SourceFormat string // e.g. "epub2", "epub3", "txt"
	EPUBVersion  string // "2.0", "3.0", ... empty if unknown/not EPUB
	HadBOM       bool   // plain-text reader: whether the source began with a BOM

	// EncodingFallback records that the reader could not decode the source
	// as UTF-8 and fell back to a Latin-1 byte-widening decode.
	EncodingFallback bool
}

// Metadata holds bibliographic information about the Document.
type Metadata struct {
	Title       string
	Subtitle    string
	Authors     []string // ordered; first is primary
	Language    string   // BCP-47 tag
	Publisher   string
	PublishDate string // ISO-8601 or bare year
	ISBN10      string
	ISBN13      string
	Description string
	Subjects    []string
	Series      *SeriesInfo
	CoverID     string
	PageCount   int
	Rights      string

	// Overflow carries format-specific fields with no IR-native slot.
	Overflow map[string]string
}

// SeriesInfo describes a book's position within a series.
type SeriesInfo struct {
	Name     string
	Position float64 // fractional position allowed (e.g. 2.5)
}

// TocEntry is one node of the table-of-contents tree.
type TocEntry struct {
	Title    string
	Href     string // "chapter_id[#fragment]"
	Children []TocEntry
}

// Chapter is a unit of the reading order.
type Chapter struct {
	ID        string // unique within the Document, stable across its lifetime
	Title     string
	Content   []ContentNode
	Direction TextDirection
}

// TextDirection overrides a chapter's reading direction.
type TextDirection int

const (
	DirectionInherit TextDirection = iota
	DirectionLTR
	DirectionRTL
)

// NodeKind tags the concrete type stored in a ContentNode.
type NodeKind int

const (
	NodeParagraph NodeKind = iota
	NodeHeading
	NodeList
	NodeTable
	NodeBlockQuote
	NodeCodeBlock
	NodeImage
	NodeHorizontalRule
	NodeRawPassthrough
)

// ContentNode is a block-level element of a Chapter's content sequence.
// Exactly one of the Kind-selected fields is meaningful; this mirrors a
// tagged union using a discriminant plus per-kind payload structs, which
// keeps the tree flat and allocation-cheap relative to an interface-per-node
// design while still being exhaustively switchable.
type ContentNode struct {
	Kind NodeKind

	Paragraph   *ParagraphNode
	Heading     *HeadingNode
	List        *ListNode
	Table       *TableNode
	BlockQuote  *BlockQuoteNode
	CodeBlock   *CodeBlockNode
	Image       *ImageNode
	RawPassthru *RawPassthroughNode
}

type ParagraphNode struct {
	Inlines []InlineNode
}

type HeadingNode struct {
	Level   int // 1..6
	Inlines []InlineNode
}

type ListNode struct {
	Ordered bool
	Items   [][]ContentNode // each item is block-level content; never empty
}

type TableNode struct {
	Header [][]InlineNode // header cells
	Rows   [][][]InlineNode
}

type BlockQuoteNode struct {
	Children []ContentNode
}

type CodeBlockNode struct {
	Language string
	Code     string
}

type ImageNode struct {
	ResourceID string
	Alt        string
	Caption    string
}

// RawPassthroughNode carries a literal fragment the IR cannot model natively.
// FormatTag names the format it was captured from ("xhtml", "html", ...).
// Writers that do not understand the tag drop the node rather than fail;
// no warning is emitted for the dropped node.
type RawPassthroughNode struct {
	FormatTag string
	Literal   string
}

// InlineKind tags the concrete type stored in an InlineNode.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineEmphasis
	InlineStrong
	InlineCode
	InlineLink
	InlineSuperscript
	InlineSubscript
	InlineRuby
	InlineLineBreak
)

// InlineNode is an inline-level element within a block's text flow.
type InlineNode struct {
	Kind InlineKind

	Text  string       // InlineText
	Children []InlineNode // InlineEmphasis, InlineStrong, InlineSuperscript, InlineSubscript, InlineLink

	Link *LinkInline // InlineLink
	Ruby *RubyInline // InlineRuby
}

type LinkInline struct {
	Href string
}

type RubyInline struct {
	Base       string
	Annotation string
}

// Resource is an embedded binary asset (image, font, stylesheet, ...).
type Resource struct {
	ID               string
	MediaType        string
	Bytes            []byte
	OriginalFilename string
}

// ResourceMap owns every embedded resource referenced from a Document's
// content or metadata. Resources are immutable once loaded: transforms that
// need to change bytes replace the map entry rather than mutate in place, so
// unrelated clones can keep sharing the backing slice.
type ResourceMap map[string]*Resource

// Get returns the resource for id, or nil if it does not exist.
func (m ResourceMap) Get(id string) *Resource {
	if m == nil {
		return nil
	}
	return m[id]
}

func (n NodeKind) String() string {
	switch n {
	case NodeParagraph:
		return "paragraph"
	case NodeHeading:
		return "heading"
	case NodeList:
		return "list"
	case NodeTable:
		return "table"
	case NodeBlockQuote:
		return "blockquote"
	case NodeCodeBlock:
		return "codeblock"
	case NodeImage:
		return "image"
	case NodeHorizontalRule:
		return "hr"
	case NodeRawPassthrough:
		return "raw"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(n))
	}
}
