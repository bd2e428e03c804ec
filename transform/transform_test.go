package transform

import (
	"context"
	"testing"

	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
)

func sampleDoc() *ir.Document {
	return &ir.Document{
		Metadata: ir.Metadata{Title: "T", CoverID: "img1"},
		Chapters: []ir.Chapter{{ID: "ch-1", Content: []ir.ContentNode{
			{Kind: ir.NodeParagraph, Paragraph: &ir.ParagraphNode{Inlines: []ir.InlineNode{{Kind: ir.InlineText, Text: "hello"}}}},
			{Kind: ir.NodeImage, Image: &ir.ImageNode{ResourceID: "img1", Alt: "cover"}},
		}}},
		Res: ir.ResourceMap{
			"img1":  {ID: "img1", MediaType: "image/jpeg"},
			"style": {ID: "style", MediaType: "text/css"},
		},
	}
}

func TestStripImages(t *testing.T) {
	doc := sampleDoc()
	out, err := (StripImages{}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range out.Chapters[0].Content {
		if n.Kind == ir.NodeImage {
			t.Errorf("expected no image nodes, found one")
		}
	}
	if _, ok := out.Res["img1"]; ok {
		t.Errorf("expected img1 resource removed")
	}
	if out.Metadata.CoverID != "" {
		t.Errorf("expected CoverID cleared")
	}
	if doc.Metadata.CoverID == "" {
		t.Errorf("original document was mutated")
	}
}

func TestStripStyles(t *testing.T) {
	doc := sampleDoc()
	out, err := (StripStyles{}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Res["style"]; ok {
		t.Errorf("expected css resource removed")
	}
	if _, ok := out.Res["img1"]; !ok {
		t.Errorf("expected image resource kept")
	}
}

func TestInjectWatermark(t *testing.T) {
	doc := sampleDoc()
	out, err := (InjectWatermark{Text: "made with ebk"}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	last := out.Chapters[len(out.Chapters)-1].Content
	final := last[len(last)-1]
	if final.Kind != ir.NodeParagraph || final.Paragraph.Inlines[0].Text != "made with ebk" {
		t.Errorf("expected watermark paragraph appended, got %+v", final)
	}
}

func TestInjectWatermark_EmptyTextErrors(t *testing.T) {
	doc := sampleDoc()
	_, err := (InjectWatermark{}).Apply(context.Background(), doc)
	if err == nil {
		t.Errorf("expected error for empty watermark text")
	}
}

func TestNormalizeUnicode(t *testing.T) {
	doc := sampleDoc()
	doc.Chapters[0].Content[0].Paragraph.Inlines[0].Text = "Café"
	out, err := (NormalizeUnicode{Form: encoding.FormNFC}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	got := out.Chapters[0].Content[0].Paragraph.Inlines[0].Text
	if got != "Café" {
		t.Errorf("expected NFC text, got %q", got)
	}
}

func TestSmartQuotes(t *testing.T) {
	doc := sampleDoc()
	doc.Chapters[0].Content[0].Paragraph.Inlines[0].Text = `"hello"`
	out, err := (SmartQuotes{On: true}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	got := out.Chapters[0].Content[0].Paragraph.Inlines[0].Text
	if got == `"hello"` {
		t.Errorf("expected quotes to be curled, got %q", got)
	}
}

func TestReplaceFont(t *testing.T) {
	doc := sampleDoc()
	doc.Res["font1"] = &ir.Resource{ID: "font1", MediaType: "font/ttf", OriginalFilename: "old.ttf"}
	out, err := (ReplaceFont{NewFilename: "new.ttf"}).Apply(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if out.Res["font1"].OriginalFilename != "new.ttf" {
		t.Errorf("expected font filename replaced, got %q", out.Res["font1"].OriginalFilename)
	}
}
