package security

import (
	"archive/zip"
	"context"
	"io"
	"time"
)

// Guard is the bounded-resource monitor every archive reader wraps its
// decompression in. A Guard is single-use: create one per file being
// parsed with NewGuard, call Start once, then route every archive.File
// open and every XML/HTML token through it.
type Guard struct {
	limits    Limits
	deadline  time.Time
	fileCount int
	totalOut  int64
}

// NewGuard returns a Guard configured from limits. The wall-clock deadline
// is not armed until Start is called, so constructing a Guard has no
// side effects.
func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// Start installs the deadline. Call this immediately before the first
// decode call for the file being guarded.
func (g *Guard) Start() {
	if g.limits.ParseTimeout > 0 {
		g.deadline = time.Now().Add(g.limits.ParseTimeout)
	}
}

// CheckDeadline polls the installed deadline. Call this at every loop
// boundary: archive entry iteration, content-document parse steps,
// resource recompression, repair passes.
func (g *Guard) CheckDeadline() error {
	if g.deadline.IsZero() {
		return nil
	}
	if time.Now().After(g.deadline) {
		return ErrTimeout(g.limits.ParseTimeout.Seconds())
	}
	return nil
}

// CheckContext returns ctx.Err() unchanged if ctx is done (it is not wrapped
// in a CancelledError), distinct from a Guard-issued Timeout.
func CheckContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// OpenZipDirectory validates a zip.Reader's central directory against the
// file-count limit and path-traversal rules before any entry is read. It
// returns the list of entries with canonicalized names in the same order as
// r.File.
func (g *Guard) OpenZipDirectory(r *zip.Reader) ([]Entry, error) {
	if len(r.File) > g.limits.MaxFileCount {
		return nil, ErrTooManyFiles(len(r.File), int64(g.limits.MaxFileCount))
	}
	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		clean, err := CanonicalizeEntryPath(f.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: clean, File: f})
	}
	g.fileCount = len(entries)
	return entries, nil
}

// Entry pairs a zip.File with its canonicalized, traversal-safe name.
type Entry struct {
	Name string
	File *zip.File
}

// GuardedReader wraps an archive entry's decompressing reader, enforcing
// the per-resource size cap, the per-entry decompression-ratio cap, the
// cumulative decompressed-size cap, and the deadline, failing fast as soon as any bound is crossed rather than
// after the fact.
type GuardedReader struct {
	g          *Guard
	r          io.Reader
	name       string
	compressed int64
	read       int64
}

// GuardEntry opens f for reading and wraps it in a GuardedReader. f.Method
// and f.CompressedSize64 are used as the baseline for the ratio check.
func (g *Guard) GuardEntry(f *zip.File) (*GuardedReader, error) {
	if err := g.CheckDeadline(); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	compressed := int64(f.CompressedSize64)
	if compressed == 0 {
		compressed = 1 // avoid division by zero for stored/empty entries
	}
	return &GuardedReader{g: g, r: rc, name: f.Name, compressed: compressed}, nil
}

func (gr *GuardedReader) Read(p []byte) (int, error) {
	if err := gr.g.CheckDeadline(); err != nil {
		return 0, err
	}
	n, err := gr.r.Read(p)
	if n > 0 {
		gr.read += int64(n)
		gr.g.totalOut += int64(n)

		if limit := gr.g.limits.MaxResourceSizeBytes; limit > 0 && gr.read > limit {
			return n, ErrOversizedResource(gr.name, gr.read, limit)
		}
		if limit := gr.g.limits.MaxDecompressedSizeBytes; limit > 0 && gr.g.totalOut > limit {
			return n, ErrOversizedResource("<archive total>", gr.g.totalOut, limit)
		}
		if maxRatio := gr.g.limits.MaxDecompressRatio; maxRatio > 0 {
			if ratio := int(gr.read / gr.compressed); ratio > maxRatio {
				return n, ErrZipBomb(ratio, int64(maxRatio))
			}
		}
	}
	return n, err
}

func (gr *GuardedReader) Close() error {
	if rc, ok := gr.r.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}

// ReadAllGuarded fully drains a GuardedReader, enforcing every bound along
// the way; it is the common path for readers that need a whole entry's
// bytes in memory (manifest resources, content documents).
func ReadAllGuarded(gr *GuardedReader) ([]byte, error) {
	defer gr.Close()
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := gr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
