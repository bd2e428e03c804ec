package encoding

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// BOM is the UTF-8 byte order mark.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// SplitBOM reports whether data begins with a UTF-8 BOM and returns the
// remainder with it stripped.
func SplitBOM(data []byte) (hadBOM bool, rest []byte) {
	if bytes.HasPrefix(data, BOM) {
		return true, data[len(BOM):]
	}
	return false, data
}

// DecodeTextBytes implements the Plain Text Reader's encoding policy from
// spec.md §4.3.2: data must be valid UTF-8; failing that, a single Latin-1
// (ISO-8859-1) fallback is attempted and a warning flagged; anything else
// is a MalformedFile.
func DecodeTextBytes(data []byte) (text string, hadBOM bool, usedFallback bool, ok bool) {
	hadBOM, data = SplitBOM(data)
	if utf8.Valid(data) {
		return string(data), hadBOM, false, true
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", hadBOM, false, false
	}
	return string(decoded), hadBOM, true, true
}

// FixMacOSNFDName repairs a macOS-style NFD-decomposed archive entry name
// (HFS+ stores filenames decomposed) back to NFC, the form every other
// platform and ZIP reader expects.
func FixMacOSNFDName(name string) string {
	return norm.NFC.String(name)
}
