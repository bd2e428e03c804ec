package main

import (
	"testing"

	"github.com/rupor-github/ebk/detect"
)

func TestTargetFormat(t *testing.T) {
	cases := []struct {
		in          string
		wantFormat  detect.Format
		wantVersion string
		wantErr     bool
	}{
		{"epub2", detect.FormatEPUB, "2.0", false},
		{"epub3", detect.FormatEPUB, "3.0", false},
		{"txt", detect.FormatPlainText, "", false},
		{"pdf", detect.FormatUnknown, "", true},
		{"", detect.FormatUnknown, "", true},
	}
	for _, c := range cases {
		format, version, err := targetFormat(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("targetFormat(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("targetFormat(%q): unexpected error: %v", c.in, err)
			continue
		}
		if format != c.wantFormat || version != c.wantVersion {
			t.Errorf("targetFormat(%q) = (%v, %q), want (%v, %q)", c.in, format, version, c.wantFormat, c.wantVersion)
		}
	}
}
