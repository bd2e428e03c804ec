// Command cabi is a thin C-ABI shim over the core pipeline, meant to be
// built with `go build -buildmode=c-shared` so a host application in
// another language can drive conversion without a Go toolchain of its
// own. It carries no conversion logic of its own: every exported function
// is a thin marshal-then-call wrapper around pipeline.Pipeline.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"github.com/rupor-github/ebk/detect"
	"github.com/rupor-github/ebk/ir"
	"github.com/rupor-github/ebk/pipeline"
)

var (
	mu      sync.Mutex
	lastErr string
	pipe    = pipeline.New(nil)
)

func setLastErr(err error) {
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		lastErr = err.Error()
	} else {
		lastErr = ""
	}
}

// ebk_last_error returns the error message set by the most recent failing
// call on this process, or an empty string if the last call succeeded. The
// returned pointer is owned by the caller and must be freed with
// ebk_free_string.
//
//export ebk_last_error
func ebk_last_error() *C.char {
	mu.Lock()
	defer mu.Unlock()
	return C.CString(lastErr)
}

// ebk_free_string releases a string previously returned by this shim.
//
//export ebk_free_string
func ebk_free_string(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// ebk_convert_file converts srcPath to dstPath, targeting toFormat ("epub2",
// "epub3", "txt"). Returns 0 on success, -1 on failure (call
// ebk_last_error for the reason).
//
//export ebk_convert_file
func ebk_convert_file(srcPath, dstPath, toFormat *C.char) C.int {
	src := C.GoString(srcPath)
	dst := C.GoString(dstPath)
	to := C.GoString(toFormat)

	format, version, err := formatFor(to)
	if err != nil {
		setLastErr(err)
		return -1
	}

	in, err := os.Open(src)
	if err != nil {
		setLastErr(err)
		return -1
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		setLastErr(err)
		return -1
	}
	defer out.Close()

	_, err = pipe.Convert(context.Background(), in, src, out, pipeline.ConvertOptions{
		ReadOptions:  ir.ReadOptions{ExtractCover: true, ParseTOC: true},
		WriteOptions: ir.WriteOptions{EPUBVersion: version, ImageQuality: 85},
		TargetFormat: format,
	})
	setLastErr(err)
	if err != nil {
		return -1
	}
	return 0
}

func formatFor(to string) (detect.Format, string, error) {
	switch to {
	case "epub2":
		return detect.FormatEPUB, "2.0", nil
	case "epub3":
		return detect.FormatEPUB, "3.0", nil
	case "txt":
		return detect.FormatPlainText, "", nil
	default:
		return detect.FormatUnknown, "", &unsupportedFormatError{to}
	}
}

type unsupportedFormatError struct{ requested string }

func (e *unsupportedFormatError) Error() string {
	return "cabi: unsupported output format " + e.requested
}

func main() {}
