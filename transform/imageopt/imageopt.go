package imageopt

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/rupor-github/ebk/jpegquality"
)

// DpiType selects the unit EnsureJFIFAPP0 stamps into a JPEG's APP0 segment.
type DpiType uint8

const (
	DpiNoUnits DpiType = iota
	DpiPxPerInch
	DpiPxPerSm
)

// EnsureJFIFAPP0 inserts a JFIF APP0 marker segment if one is missing,
// required by some e-reader firmwares that reject JPEGs without it.
func EnsureJFIFAPP0(jpegData []byte, dpit DpiType, xdensity, ydensity int16) ([]byte, bool, error) {
	if len(jpegData) < 4 {
		return nil, false, fmt.Errorf("jpeg too small")
	}
	if jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		return nil, false, fmt.Errorf("not a jpeg")
	}

	marker := []byte{0xFF, 0xE0}
	jfif := []byte{0x4A, 0x46, 0x49, 0x46, 0x00, 0x01, 0x02}

	if jpegData[2] == marker[0] && jpegData[3] == marker[1] {
		return jpegData, false, nil
	}

	buf := new(bytes.Buffer)
	buf.Write(jpegData[:2])
	buf.Write(marker)
	writeBE16(buf, 0x10)
	buf.Write(jfif)
	buf.WriteByte(byte(dpit))
	writeBE16(buf, uint16(xdensity))
	writeBE16(buf, uint16(ydensity))
	writeBE16(buf, 0)
	buf.Write(jpegData[2:])
	return buf.Bytes(), true, nil
}

func writeBE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

// IsGrayscale reports whether img's pixels all have R==G==B.
func IsGrayscale(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R != c.G || c.G != c.B {
				return false
			}
		}
	}
	return true
}

// Result reports what RecompressJPEG/RecompressPNG did.
type Result struct {
	Data    []byte
	Changed bool
	Reason  string // set when Changed is false (e.g. "already below target quality")
}

// RecompressJPEG decodes data and re-encodes it at targetQuality (1-100),
// skipping the pass (Changed=false) when jpegquality estimates the source
// is already at or below the target, since re-encoding a low-quality
// source at a higher nominal quality only grows the file. Grayscale images
// are flattened to a single channel before encode, same as the teacher's
// Optimize flag.
func RecompressJPEG(data []byte, targetQuality int) (Result, error) {
	if qr, err := jpegquality.NewWithBytes(data); err == nil {
		if qr.Quality() <= targetQuality {
			return Result{Data: data, Changed: false, Reason: "source already at or below target quality"}, nil
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode jpeg: %w", err)
	}

	if IsGrayscale(img) {
		if _, ok := img.(*image.Gray); !ok {
			gray := image.NewGray(img.Bounds())
			draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
			img = gray
		}
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(targetQuality)); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}

	out, _, err := EnsureJFIFAPP0(buf.Bytes(), DpiPxPerInch, 300, 300)
	if err != nil {
		return Result{}, fmt.Errorf("insert jfif app0: %w", err)
	}

	if len(out) >= len(data) {
		return Result{Data: data, Changed: false, Reason: "recompression did not shrink the resource"}, nil
	}
	return Result{Data: out, Changed: true}, nil
}

// RecompressPNG re-encodes data at the best compression level. PNG is
// lossless, so this only ever changes the encoder's compression effort,
// never visual content.
func RecompressPNG(data []byte) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode png: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return Result{}, fmt.Errorf("encode png: %w", err)
	}
	if buf.Len() >= len(data) {
		return Result{Data: data, Changed: false, Reason: "recompression did not shrink the resource"}, nil
	}
	return Result{Data: buf.Bytes(), Changed: true}, nil
}
