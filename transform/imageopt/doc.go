// Package imageopt recompresses JPEG/PNG resources for the Optimizer
// (spec.md §4.7); the EPUB writer does not use it.
// Adapted from the teacher's utils/images (EnsureJFIFAPP0, IsGrayscale) and
// jpegquality (quality estimation, used to skip a recompression that would
// not shrink the file) plus github.com/disintegration/imaging for
// decode/encode.
package imageopt
