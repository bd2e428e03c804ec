// Package encoding implements the single normalisation component shared by
// every reader, writer, and the fix_encoding repair action: enforce UTF-8,
// apply a configured Unicode normalisation form, and optionally apply a set
// of typographic cleanups. Driven entirely by the Options value — there is
// no global state.
package encoding

// Form names a Unicode normalisation form.
type Form int

const (
	FormNFC Form = iota
	FormNFD
	FormNFKC
	FormNFKD
)

// Options is the single value that drives normalisation across readers,
// writers, and repair's fix_encoding action.
type Options struct {
	Form                Form
	SmartQuotes         bool
	NormalizeLigatures  bool
	NormalizeDashes     bool
	NormalizeWhitespace bool
	StripBOM            bool
	FixMacOSNFDNames    bool
}

// DefaultOptions enforces UTF-8 + NFC with no additional typographic
// cleanups, matching spec.md's stated default.
func DefaultOptions() Options {
	return Options{Form: FormNFC, StripBOM: true}
}

// NormalizeText implements ir.EncodingPolicy so an *Options can be passed
// directly as ir.ReadOptions.Encoding without an adapter type.
func (o *Options) NormalizeText(s string) string {
	if o == nil {
		return s
	}
	return Normalize(s, *o)
}
