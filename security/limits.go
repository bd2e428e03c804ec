// Package security implements the uniform guardrails every reader applies
// around untrusted framed/compressed input: decompression-ratio and size
// budgets, file-count caps, path-traversal rejection, XML/HTML nesting
// depth limits, wall-clock deadlines, and up-front DRM detection.
//
// Security is a value, never global state: every limit is threaded through
// explicitly as a Limits struct, mirroring the teacher's config-as-value
// discipline (see config.Config in the teacher package this module is
// adapted from).
package security

import "time"

// Limits bounds the resources any single untrusted decode may consume.
type Limits struct {
	MaxDecompressRatio       int           `yaml:"max_decompress_ratio" validate:"min=1"`
	MaxDecompressedSizeBytes int64         `yaml:"max_decompressed_size_bytes" validate:"min=1"`
	MaxFileCount             int           `yaml:"max_file_count" validate:"min=1"`
	MaxResourceSizeBytes     int64         `yaml:"max_resource_size_bytes" validate:"min=1"`
	MaxParseDepth            int           `yaml:"max_parse_depth" validate:"min=1"`
	ParseTimeout             time.Duration `yaml:"parse_timeout" validate:"min=0"`
}

// DefaultLimits returns the spec-mandated defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressRatio:       100,
		MaxDecompressedSizeBytes: 1 << 30, // 1 GiB
		MaxFileCount:             10_000,
		MaxResourceSizeBytes:     100 << 20, // 100 MiB
		MaxParseDepth:            256,
		ParseTimeout:             60 * time.Second,
	}
}
