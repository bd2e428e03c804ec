// Package transform implements spec.md's built-in Transforms
// (StripImages, StripStyles, InjectWatermark, ReplaceFont,
// NormalizeUnicode, SmartQuotes) and the Optimizer batch: JPEG/PNG
// recompression, CSS minification, and byte-identical resource
// deduplication. Every Transform is a pure ir.Document -> ir.Document
// function, grounded on the teacher's single-purpose FictionBook
// mutators (fb2/normalize.go, fb2/transform-shaped helpers): clone
// first, mutate the clone, never touch the caller's Document.
package transform
