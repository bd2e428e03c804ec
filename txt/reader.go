package txt

import (
	"context"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/security"
)

// Reader implements ir.Reader for plain text files: one Chapter whose
// content is a sequence of Paragraph nodes split on blank-line boundaries.
type Reader struct{}

var _ ir.Reader = Reader{}

// Detect reports low confidence for anything that looks like text and
// doesn't look like a ZIP or other known container; detect.Detector owns
// the real cascade, this exists so Reader is self-sufficient.
func (Reader) Detect(header []byte) (float64, bool) {
	if len(header) == 0 {
		return 0, false
	}
	if utf8.Valid(header) || looksLikeLatin1Text(header) {
		return 0.2, true
	}
	return 0, false
}

var blankLineRun = regexp.MustCompile(`\r?\n[ \t]*\r?\n[ \t\r\n]*`)

func (Reader) Read(ctx context.Context, src io.ReadSeeker, name string, opts ir.ReadOptions) (*ir.Document, error) {
	if err := security.CheckContext(ctx); err != nil {
		return nil, err
	}

	limits := opts.Limits
	maxBytes := limits.MaxDecompressedSizeBytes
	if maxBytes <= 0 {
		maxBytes = security.DefaultLimits().MaxDecompressedSizeBytes
	}
	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, &ir.ReadError{Op: "txt", Kind: ir.ReadIO, Detail: "read", Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, security.ErrOversizedResource(name, int64(len(data)), maxBytes)
	}

	text, hadBOM, usedFallback, ok := encoding.DecodeTextBytes(data)
	if !ok {
		return nil, ir.NewMalformedFile("txt", "not valid UTF-8 and Latin-1 fallback failed")
	}
	text = normalizeLineEndings(text)

	encPolicy := opts.Encoding
	if encPolicy == nil {
		def := encoding.DefaultOptions()
		encPolicy = &def
	}

	var paragraphs []string
	if strings.TrimSpace(text) != "" {
		paragraphs = blankLineRun.Split(strings.Trim(text, "\n"), -1)
	}

	var content []ir.ContentNode
	for _, p := range paragraphs {
		p = strings.Trim(p, "\n")
		if strings.TrimSpace(p) == "" {
			continue
		}
		inlines := paragraphInlines(p, encPolicy)
		if len(inlines) == 0 {
			continue
		}
		content = append(content, ir.ContentNode{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: inlines}})
	}

	doc := &ir.Document{
		Chapters: []ir.Chapter{{ID: "chapter-0", Content: content}},
		Res:      ir.ResourceMap{},
		FormatOrigin: ir.FormatHint{
			SourceFormat:     "txt",
			HadBOM:           hadBOM,
			EncodingFallback: usedFallback,
		},
	}
	ir.Report(opts.Progress, ir.ProgressEvent{OperationTag: "txt.read", Current: 1, Total: 1, Message: "read " + name})
	return doc, nil
}

// paragraphInlines joins a paragraph's lines with a single space, except
// where a line ends with two trailing spaces (a soft line break), which
// becomes an explicit InlineLineBreak instead.
func paragraphInlines(p string, enc ir.EncodingPolicy) []ir.InlineNode {
	lines := strings.Split(p, "\n")
	var out []ir.InlineNode
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, ir.InlineNode{Kind: ir.InlineText, Text: enc.NormalizeText(buf.String())})
		buf.Reset()
	}
	for i, line := range lines {
		soft := strings.HasSuffix(line, "  ")
		trimmed := strings.TrimRight(line, " \t")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(trimmed)
		if soft && i != len(lines)-1 {
			flush()
			out = append(out, ir.InlineNode{Kind: ir.InlineLineBreak})
		}
	}
	flush()
	return out
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

func looksLikeLatin1Text(header []byte) bool {
	printable := 0
	for _, b := range header {
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7f) || b >= 0xa0 {
			printable++
		}
	}
	return len(header) > 0 && printable*10 >= len(header)*9
}
