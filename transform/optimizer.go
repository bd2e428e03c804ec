package transform

import (
	"bytes"
	"context"
	"crypto/sha256"

	parse "github.com/tdewolff/parse/v2"
	csstok "github.com/tdewolff/parse/v2/css"

	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/transform/imageopt"
)

// OptimizerOptions configures Optimize, mirroring ir.WriteOptions.ImageQuality
// and spec.md §4.7's Optimizer batch.
type OptimizerOptions struct {
	ImageQuality int // 1-100, passed to JPEG recompression; 0 uses 80
	MinifyCSS    bool
	Dedupe       bool
}

// Optimize runs the Optimizer batch over doc's resources: JPEG/PNG
// recompression at ImageQuality, CSS minification, and (if Dedupe)
// collapsing byte-identical resources to a single id with references
// rewritten. Only JPEG, PNG and CSS media types are touched; everything
// else passes through untouched, per spec.md §4.7. Unsupported media types
// never fail the batch - only I/O or budget failures do.
func Optimize(ctx context.Context, doc *ir.Document, opts OptimizerOptions) (*ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	quality := opts.ImageQuality
	if quality <= 0 {
		quality = 80
	}

	out := doc.Clone()

	for id, res := range out.Res {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch res.MediaType {
		case "image/jpeg":
			result, err := imageopt.RecompressJPEG(res.Bytes, quality)
			if err != nil {
				return nil, &ir.OptimizeError{Detail: "recompress jpeg resource " + id, Err: err}
			}
			if result.Changed {
				replaced := *res
				replaced.Bytes = result.Data
				out.Res[id] = &replaced
			}
		case "image/png":
			result, err := imageopt.RecompressPNG(res.Bytes)
			if err != nil {
				return nil, &ir.OptimizeError{Detail: "recompress png resource " + id, Err: err}
			}
			if result.Changed {
				replaced := *res
				replaced.Bytes = result.Data
				out.Res[id] = &replaced
			}
		case "text/css":
			if opts.MinifyCSS {
				minified, err := MinifyCSS(res.Bytes)
				if err != nil {
					return nil, &ir.OptimizeError{Detail: "minify css resource " + id, Err: err}
				}
				replaced := *res
				replaced.Bytes = minified
				out.Res[id] = &replaced
			}
		}
	}

	if opts.Dedupe {
		dedupeResources(out)
	}

	return out, nil
}

// dedupeResources collapses byte-identical resources to a single id,
// keeping the lexicographically-first id as the survivor and rewriting
// every Image/cover reference to point at it.
func dedupeResources(doc *ir.Document) {
	byHash := make(map[[32]byte]string)
	remap := make(map[string]string)

	ids := make([]string, 0, len(doc.Res))
	for id := range doc.Res {
		ids = append(ids, id)
	}
	// deterministic survivor selection: sort so the same input always
	// dedupes to the same surviving id regardless of map iteration order.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	for _, id := range ids {
		res := doc.Res[id]
		hash := sha256.Sum256(res.Bytes)
		if survivor, ok := byHash[hash]; ok {
			remap[id] = survivor
			delete(doc.Res, id)
			continue
		}
		byHash[hash] = id
	}

	if len(remap) == 0 {
		return
	}

	if doc.Metadata.CoverID != "" {
		if to, ok := remap[doc.Metadata.CoverID]; ok {
			doc.Metadata.CoverID = to
		}
	}

	var walkNodes func([]ir.ContentNode)
	walkNodes = func(nodes []ir.ContentNode) {
		for i := range nodes {
			switch nodes[i].Kind {
			case ir.NodeImage:
				if nodes[i].Image != nil {
					if to, ok := remap[nodes[i].Image.ResourceID]; ok {
						nodes[i].Image.ResourceID = to
					}
				}
			case ir.NodeList:
				for _, item := range nodes[i].List.Items {
					walkNodes(item)
				}
			case ir.NodeBlockQuote:
				walkNodes(nodes[i].BlockQuote.Children)
			}
		}
	}
	for i := range doc.Chapters {
		walkNodes(doc.Chapters[i].Content)
	}
}

// MinifyCSS re-serialises data dropping whitespace and comments, using the
// same tokenizing css.Parser the teacher's css.Parser builds a structured
// Stylesheet from; here the token stream is re-emitted directly instead of
// into an AST, since minification only needs the token boundaries.
func MinifyCSS(data []byte) ([]byte, error) {
	input := parse.NewInput(bytes.NewReader(data))
	parser := csstok.NewParser(input, false)

	var buf bytes.Buffer

	for {
		gt, _, tt := parser.Next()
		switch gt {
		case csstok.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				return nil, err
			}
			return buf.Bytes(), nil

		case csstok.BeginAtRuleGrammar:
			buf.Write(tt)
			writeValues(&buf, parser.Values())
			buf.WriteByte('{')

		case csstok.AtRuleGrammar:
			buf.Write(tt)
			writeValues(&buf, parser.Values())
			buf.WriteByte(';')

		case csstok.BeginRulesetGrammar, csstok.QualifiedRuleGrammar:
			buf.Write(tt)
			writeValues(&buf, parser.Values())
			if gt == csstok.BeginRulesetGrammar {
				buf.WriteByte('{')
			}

		case csstok.DeclarationGrammar, csstok.CustomPropertyGrammar:
			buf.Write(tt)
			buf.WriteByte(':')
			writeValues(&buf, parser.Values())
			buf.WriteByte(';')

		case csstok.EndAtRuleGrammar, csstok.EndRulesetGrammar:
			buf.WriteByte('}')

		default:
			buf.Write(tt)
		}
	}
}

func writeValues(buf *bytes.Buffer, values []csstok.Token) {
	for _, v := range values {
		if v.TokenType == csstok.WhitespaceToken {
			continue
		}
		buf.Write(v.Data)
	}
}
