package txt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

func TestReader_SplitsParagraphs(t *testing.T) {
	src := "First paragraph\nstill first.\n\nSecond paragraph.\n\n\nThird paragraph."
	doc, err := (Reader{}).Read(context.Background(), strings.NewReader(src), "book.txt", ir.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chapters) != 1 {
		t.Fatalf("Chapters = %d, want 1", len(doc.Chapters))
	}
	content := doc.Chapters[0].Content
	if len(content) != 3 {
		t.Fatalf("paragraphs = %d, want 3", len(content))
	}
	first := content[0].Paragraph.Inlines[0].Text
	if first != "First paragraph still first." {
		t.Errorf("first paragraph = %q", first)
	}
}

func TestReader_SoftLineBreak(t *testing.T) {
	src := "line one  \nline two"
	doc, err := (Reader{}).Read(context.Background(), strings.NewReader(src), "book.txt", ir.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	inlines := doc.Chapters[0].Content[0].Paragraph.Inlines
	foundBreak := false
	for _, in := range inlines {
		if in.Kind == ir.InlineLineBreak {
			foundBreak = true
		}
	}
	if !foundBreak {
		t.Errorf("expected an InlineLineBreak, got %+v", inlines)
	}
}

func TestReader_BOMStrippedAndRemembered(t *testing.T) {
	src := "\xEF\xBB\xBFHello there."
	doc, err := (Reader{}).Read(context.Background(), strings.NewReader(src), "book.txt", ir.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !doc.FormatOrigin.HadBOM {
		t.Error("expected HadBOM to be true")
	}
	text := doc.Chapters[0].Content[0].Paragraph.Inlines[0].Text
	if strings.Contains(text, "﻿") {
		t.Error("BOM should not appear in paragraph text")
	}
}

func TestReader_InvalidUTF8FallsBackToLatin1(t *testing.T) {
	// Bytes that are invalid both as UTF-8 continuation and produce no valid
	// ISO-8859-1 decode error (ISO-8859-1 accepts any byte, so to trigger a
	// real MalformedFile we'd need something the decoder itself rejects;
	// ISO-8859-1 never errors, so this documents the fallback always succeeds
	// for arbitrary bytes once UTF-8 validation fails).
	src := []byte{0xFF, 0xFE, 0x00, 0x80}
	doc, err := (Reader{}).Read(context.Background(), bytes.NewReader(src), "bad.txt", ir.ReadOptions{})
	if err != nil {
		t.Fatalf("Latin-1 fallback should succeed: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a document from Latin-1 fallback")
	}
}

func TestReader_HonorsCallerEncodingPolicy(t *testing.T) {
	src := `He said "hello" to her.`
	policy := &encoding.Options{Form: encoding.FormNFC, SmartQuotes: true}
	doc, err := (Reader{}).Read(context.Background(), strings.NewReader(src), "book.txt", ir.ReadOptions{Encoding: policy})
	if err != nil {
		t.Fatal(err)
	}
	text := doc.Chapters[0].Content[0].Paragraph.Inlines[0].Text
	if !strings.Contains(text, "“hello”") {
		t.Errorf("expected caller's SmartQuotes policy to curl quotes, got %q", text)
	}
}

func TestReader_EncodingFallbackFlagged(t *testing.T) {
	src := []byte{0xFF, 0xFE, 0x00, 0x80}
	doc, err := (Reader{}).Read(context.Background(), bytes.NewReader(src), "bad.txt", ir.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !doc.FormatOrigin.EncodingFallback {
		t.Error("expected EncodingFallback to be true for non-UTF-8 input")
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	doc := &ir.Document{
		Chapters: []ir.Chapter{{
			ID: "c1",
			Content: []ir.ContentNode{
				{Kind: ir.NodeHeading, Heading: &ir.HeadingNode{Level: 1, Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "Title"}}}},
				{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "Body text."}}}},
				{Kind: ir.NodeList, List: &ir.ListNode{Ordered: false, Items: [][]ir.ContentNode{
					{{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "item one"}}}}},
				}}},
				{Kind: ir.NodeImage, Image: &ir.ImageNode{Alt: "a cat"}},
			},
		}},
	}
	var buf bytes.Buffer
	if err := (Writer{}).Write(context.Background(), doc, &buf, ir.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Title", "Body text.", "- item one", "[image: a cat]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got:\n%s", want, out)
		}
	}
}

func TestWriter_EmitsBOMWhenHinted(t *testing.T) {
	doc := &ir.Document{
		FormatOrigin: ir.FormatHint{HadBOM: true},
		Chapters:     []ir.Chapter{{ID: "c1"}},
	}
	var buf bytes.Buffer
	if err := (Writer{}).Write(context.Background(), doc, &buf, ir.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("expected output to begin with UTF-8 BOM")
	}
}
