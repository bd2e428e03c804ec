package encoding

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies the configured Unicode form and optional typographic
// cleanups to a single text leaf. It is called by every reader on every
// text leaf it produces and by repair's fix_encoding action; writers
// serialise text as they find it and do not call it.
func Normalize(s string, opts Options) string {
	if opts.StripBOM {
		s = stripBOM(s)
	}
	s = applyForm(s, opts.Form)
	if opts.NormalizeWhitespace {
		s = normalizeWhitespace(s)
	}
	if opts.NormalizeDashes {
		s = normalizeDashes(s)
	}
	if opts.NormalizeLigatures {
		s = normalizeLigatures(s)
	}
	if opts.SmartQuotes {
		s = smartQuotes(s)
	}
	return s
}

func applyForm(s string, f Form) string {
	switch f {
	case FormNFD:
		return norm.NFD.String(s)
	case FormNFKC:
		return norm.NFKC.String(s)
	case FormNFKD:
		return norm.NFKD.String(s)
	default:
		return norm.NFC.String(s)
	}
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "﻿")
}

// normalizeWhitespace collapses runs of whitespace to a single space,
// leaving existing explicit line breaks alone (callers that want line
// breaks collapsed too should do so before calling Normalize).
func normalizeWhitespace(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if lastSpace {
				continue
			}
			lastSpace = true
			b.WriteRune(' ')
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var dashReplacer = strings.NewReplacer(
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
)

func normalizeDashes(s string) string {
	return dashReplacer.Replace(s)
}

var ligatureReplacer = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"Æ", "AE",
	"æ", "ae",
	"Œ", "OE",
	"œ", "oe",
)

func normalizeLigatures(s string) string {
	return ligatureReplacer.Replace(s)
}

// smartQuotes converts straight ASCII quotes to typographic quotes. A
// quote is treated as opening when it follows whitespace, an opening
// bracket, or the start of the string, or when no quote of its kind is
// currently open; otherwise it is treated as closing.
func smartQuotes(s string) string {
	var b strings.Builder
	runes := []rune(s)
	openSingle, openDouble := true, true
	for i, r := range runes {
		prevIsSpace := i == 0
		if i > 0 {
			prevIsSpace = unicode.IsSpace(runes[i-1]) || isOpeningBracket(runes[i-1])
		}
		switch r {
		case '"':
			if prevIsSpace || openDouble {
				b.WriteRune('“')
				openDouble = false
			} else {
				b.WriteRune('”')
				openDouble = true
			}
		case '\'':
			if prevIsSpace || openSingle {
				b.WriteRune('‘')
				openSingle = false
			} else {
				b.WriteRune('’')
				openSingle = true
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isOpeningBracket(r rune) bool {
	switch r {
	case '(', '[', '{':
		return true
	default:
		return false
	}
}
