package imageopt

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testJPEG(t *testing.T, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEnsureJFIFAPP0_InsertsWhenMissing(t *testing.T) {
	data := testJPEG(t, 85)
	out, added, err := EnsureJFIFAPP0(data, DpiPxPerInch, 300, 300)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Errorf("expected APP0 to be inserted")
	}
	if out[2] != 0xFF || out[3] != 0xE0 {
		t.Errorf("expected APP0 marker right after SOI, got % x", out[:4])
	}
}

func TestEnsureJFIFAPP0_NoopWhenPresent(t *testing.T) {
	data := testJPEG(t, 85)
	first, _, err := EnsureJFIFAPP0(data, DpiPxPerInch, 300, 300)
	if err != nil {
		t.Fatal(err)
	}
	_, added, err := EnsureJFIFAPP0(first, DpiPxPerInch, 300, 300)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Errorf("expected no second insertion")
	}
}

func TestRecompressJPEG_SkipsWhenAlreadyLowQuality(t *testing.T) {
	data := testJPEG(t, 40)
	res, err := RecompressJPEG(data, 80)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Errorf("expected recompression to be skipped for a low-quality source, got Changed=true")
	}
}

func TestRecompressPNG_Roundtrip(t *testing.T) {
	data := testPNG(t)
	res, err := RecompressPNG(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(res.Data)); err != nil {
		t.Errorf("recompressed PNG does not decode: %v", err)
	}
}

func TestIsGrayscale(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	if !IsGrayscale(gray) {
		t.Errorf("expected *image.Gray to be grayscale")
	}
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	rgba.Set(0, 0, color.RGBA{255, 0, 0, 255})
	if IsGrayscale(rgba) {
		t.Errorf("expected RGBA with a red pixel to not be grayscale")
	}
}
