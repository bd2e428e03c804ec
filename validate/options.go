package validate

import "github.com/rupor-github/ebk/encoding"

// WCAGLevel names the accessibility conformance target.
type WCAGLevel string

const (
	WCAGLevelA   WCAGLevel = "A"
	WCAGLevelAA  WCAGLevel = "AA"
	WCAGLevelAAA WCAGLevel = "AAA"
)

// Options configures a Validate call.
type Options struct {
	// Strict is carried through to the caller; Validate itself never
	// promotes severities (see Report.Promote).
	Strict bool

	Accessibility bool
	WCAGLevel     WCAGLevel // default WCAGLevelAA when Accessibility is set

	// EncodingForm is the normalisation form text leaves are checked
	// against. Zero value (encoding.FormNFC) matches encoding.DefaultOptions.
	EncodingForm encoding.Form
}
