package ir

import (
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
)

// DocumentStats is a computed view over a Document. It is never part of the
// on-disk shape — callers ask for it on demand.
type DocumentStats struct {
	WordCount           int
	CharacterCount      int
	SentenceCount       int
	ChapterCount        int
	ImageCount          int
	TotalResourceBytes  int64
	EstimatedReadingMin float64
	FleschKincaidGrade  float64 // 0 if it could not be computed
}

// DefaultWPM is the words-per-minute assumption for EstimatedReadingMin when
// the caller does not supply one.
const DefaultWPM = 200

// Stats computes a DocumentStats snapshot at the given reading speed. wpm<=0
// falls back to DefaultWPM.
func (d *Document) Stats(wpm int) DocumentStats {
	if wpm <= 0 {
		wpm = DefaultWPM
	}

	var s DocumentStats
	s.ChapterCount = len(d.Chapters)
	for _, r := range d.Res {
		s.TotalResourceBytes += int64(len(r.Bytes))
	}

	var textBuf strings.Builder
	for _, ch := range d.Chapters {
		walkContentText(ch.Content, &textBuf)
		textBuf.WriteByte('\n')
		countImages(ch.Content, &s.ImageCount)
	}
	text := textBuf.String()

	s.CharacterCount = len([]rune(text))
	s.WordCount = countWords(text)
	s.SentenceCount = countSentences(text)
	if s.WordCount > 0 {
		s.EstimatedReadingMin = float64(s.WordCount) / float64(wpm)
	}
	if s.SentenceCount > 0 && s.WordCount > 0 {
		syllables := estimateSyllables(text)
		s.FleschKincaidGrade = 0.39*(float64(s.WordCount)/float64(s.SentenceCount)) +
			11.8*(float64(syllables)/float64(s.WordCount)) - 15.59
		if s.FleschKincaidGrade < 0 {
			s.FleschKincaidGrade = 0
		}
	}
	return s
}

func countImages(nodes []ContentNode, n *int) {
	for _, c := range nodes {
		switch c.Kind {
		case NodeImage:
			*n++
		case NodeList:
			for _, item := range c.List.Items {
				countImages(item, n)
			}
		case NodeBlockQuote:
			countImages(c.BlockQuote.Children, n)
		}
	}
}

func walkContentText(nodes []ContentNode, buf *strings.Builder) {
	for _, c := range nodes {
		switch c.Kind {
		case NodeParagraph:
			walkInlineText(c.Paragraph.Inlines, buf)
			buf.WriteByte('\n')
		case NodeHeading:
			walkInlineText(c.Heading.Inlines, buf)
			buf.WriteByte('\n')
		case NodeList:
			for _, item := range c.List.Items {
				walkContentText(item, buf)
			}
		case NodeTable:
			for _, row := range c.Table.Rows {
				for _, cell := range row {
					walkInlineText(cell, buf)
					buf.WriteByte(' ')
				}
			}
		case NodeBlockQuote:
			walkContentText(c.BlockQuote.Children, buf)
		case NodeCodeBlock:
			buf.WriteString(c.CodeBlock.Code)
			buf.WriteByte('\n')
		case NodeImage:
			buf.WriteString(c.Image.Alt)
			buf.WriteByte(' ')
		}
	}
}

func walkInlineText(inlines []InlineNode, buf *strings.Builder) {
	for _, in := range inlines {
		switch in.Kind {
		case InlineText:
			buf.WriteString(in.Text)
		case InlineRuby:
			buf.WriteString(in.Ruby.Base)
		case InlineLineBreak:
			buf.WriteByte('\n')
		default:
			walkInlineText(in.Children, buf)
		}
		buf.WriteByte(' ')
	}
}

func countWords(text string) int {
	return len(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
}

// sentenceTokenizer is package-level and safe for concurrent Tokenize calls,
// so Stats builds it once rather than per call. This module does not ship a
// language-specific abbreviation corpus (see DESIGN.md), so the tokenizer
// runs against a zero-value Storage: it still splits on sentence-final
// punctuation, it just has no learned abbreviation list to suppress false
// splits on things like "Mr." — acceptable for an estimated-grade-level
// statistic.
var sentenceTokenizer = sentences.NewSentenceTokenizer(&sentences.Storage{})

func countSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(sentenceTokenizer.Tokenize(text))
}

// estimateSyllables approximates syllable count using a vowel-group
// heuristic, which is the standard cheap stand-in for a full dictionary
// lookup when computing Flesch-Kincaid grade level.
func estimateSyllables(text string) int {
	total := 0
	for _, word := range strings.Fields(text) {
		total += syllablesInWord(word)
	}
	return total
}

func syllablesInWord(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
