// Package jpegquality estimates the IJG "quality" factor a JPEG was
// encoded at by reading its luminance quantization table (DQT) and
// comparing it against the standard Annex K tables, inverting the scaling
// formula libjpeg/image-jpeg apply when building a table from a quality
// level. Used by the Optimizer to skip a recompression pass that would not
// actually shrink the file (source quality already <= target quality).
package jpegquality

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidJPEG   = errors.New("invalid JPEG header")
	ErrWrongTable    = errors.New("wrong size for quantization table")
	ErrShortSegment  = errors.New("short segment length")
	ErrShortDQT      = errors.New("section DQT is too short")
	ErrNoQuantTables = errors.New("no quantization tables found")
)

const (
	markerSOI = 0xffd8
	markerEOI = 0xffd9
	markerDQT = 0xffdb
	markerSOS = 0xffda
)

// standardLuminanceQuantTable is the IJG Annex K quality-50 luminance table
// in zig-zag-independent (natural) order.
var standardLuminanceQuantTable = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

// QualityReader holds the first luminance quantization table found in a
// JPEG stream, from which Quality estimates the encode quality.
type QualityReader struct {
	table [64]int
}

type jpegReader struct {
	rs io.ReadSeeker
}

func (jr *jpegReader) readMarker() uint16 {
	var buf [2]byte
	if _, err := io.ReadFull(jr.rs, buf[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(buf[:])
}

func (jr *jpegReader) readUint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(jr.rs, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// New scans rs for the first DQT segment and returns a QualityReader over
// its luminance table. rs must support Seek for skipping segments.
func New(rs io.ReadSeeker) (*QualityReader, error) {
	jr := &jpegReader{rs: rs}

	soi := jr.readMarker()
	if soi != markerSOI {
		return nil, ErrInvalidJPEG
	}

	for {
		marker := jr.readMarker()
		if marker == 0 {
			return nil, ErrNoQuantTables
		}
		if marker == markerEOI || marker == markerSOS {
			return nil, ErrNoQuantTables
		}
		length, err := jr.readUint16()
		if err != nil {
			return nil, ErrShortSegment
		}
		if length < 2 {
			return nil, ErrShortSegment
		}
		payloadLen := int(length) - 2

		if marker == markerDQT {
			if payloadLen < 65 {
				return nil, ErrShortDQT
			}
			payload := make([]byte, payloadLen)
			if _, err := io.ReadFull(rs, payload); err != nil {
				return nil, ErrShortDQT
			}
			precision := payload[0] >> 4
			tableBytes := payload[1:]
			var table [64]int
			if precision == 0 {
				if len(tableBytes) < 64 {
					return nil, ErrWrongTable
				}
				for i := 0; i < 64; i++ {
					table[i] = int(tableBytes[i])
				}
			} else {
				if len(tableBytes) < 128 {
					return nil, ErrWrongTable
				}
				for i := 0; i < 64; i++ {
					table[i] = int(binary.BigEndian.Uint16(tableBytes[i*2 : i*2+2]))
				}
			}
			return &QualityReader{table: table}, nil
		}

		if _, err := rs.Seek(int64(payloadLen), io.SeekCurrent); err != nil {
			return nil, ErrShortSegment
		}
	}
}

// NewFromBytes is an alias of NewWithBytes kept for call-site parity with
// the rest of the image pipeline (fb2/images.go calls it NewFromBytes).
func NewFromBytes(data []byte) (*QualityReader, error) {
	return NewWithBytes(data)
}

// NewWithBytes wraps data in a bytes.Reader and calls New.
func NewWithBytes(data []byte) (*QualityReader, error) {
	return New(bytes.NewReader(data))
}

// Quality inverts the IJG quality-to-quantization-table scaling formula
// against the standard luminance table, returning an estimate in [1,100].
func (qr *QualityReader) Quality() int {
	var sumRatio float64
	var n int
	for i, std := range standardLuminanceQuantTable {
		if std == 0 {
			continue
		}
		v := qr.table[i]
		if v == 0 {
			v = 1
		}
		sumRatio += float64(v) / float64(std)
		n++
	}
	if n == 0 {
		return 50
	}
	avgScale := sumRatio / float64(n) * 100.0

	var quality float64
	switch {
	case avgScale <= 100:
		quality = (200 - avgScale) / 2
	default:
		quality = 5000.0 / avgScale
	}
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return int(quality + 0.5)
}
