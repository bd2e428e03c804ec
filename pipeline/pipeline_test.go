package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/rupor-github/ebk/detect"
	"github.com/rupor-github/ebk/encoding"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/transform"
	"github.com/rupor-github/ebk/validate"
)

func TestConvert_PlainTextRoundTrip(t *testing.T) {
	p := New(nil)
	src := bytes.NewReader([]byte("Hello there.\n\nThis is a second paragraph with plain prose and no markup at all, long enough to read as text."))
	var dst bytes.Buffer

	result, err := p.Convert(context.Background(), src, "sample.txt", &dst, ConvertOptions{
		TargetFormat: detect.FormatPlainText,
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if result.Detected.Format != detect.FormatPlainText {
		t.Errorf("expected plain text detection, got %v", result.Detected.Format)
	}
	if dst.Len() == 0 {
		t.Errorf("expected non-empty output")
	}
}

func TestConvert_ValidateAndRepair(t *testing.T) {
	p := New(nil)
	src := bytes.NewReader([]byte("Just one paragraph, nothing fancy."))
	var dst bytes.Buffer

	result, err := p.Convert(context.Background(), src, "sample.txt", &dst, ConvertOptions{
		TargetFormat: detect.FormatPlainText,
		RunValidate:  true,
		ValidateOpts: validate.Options{},
		RunRepair:    true,
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if result.ValidateReport == nil {
		t.Fatalf("expected a validation report")
	}
	if result.RepairReport == nil {
		t.Fatalf("expected a repair report")
	}
}

func TestConvert_AppliesTransformsInOrder(t *testing.T) {
	p := New(nil)
	src := bytes.NewReader([]byte("A short paragraph."))
	var dst bytes.Buffer

	_, err := p.Convert(context.Background(), src, "sample.txt", &dst, ConvertOptions{
		TargetFormat: detect.FormatPlainText,
		Transforms: []ir.Transform{
			transform.NormalizeUnicode{Form: encoding.FormNFC},
			transform.InjectWatermark{Text: "generated"},
		},
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.Contains(dst.Bytes(), []byte("generated")) {
		t.Errorf("expected watermark text in output, got %q", dst.String())
	}
}

func TestConvert_UnsupportedTargetFormat(t *testing.T) {
	p := New(nil)
	src := bytes.NewReader([]byte("Some text."))
	var dst bytes.Buffer

	_, err := p.Convert(context.Background(), src, "sample.txt", &dst, ConvertOptions{
		TargetFormat: detect.FormatMOBI,
	})
	if err == nil {
		t.Fatalf("expected an error for an unregistered target format")
	}
}
