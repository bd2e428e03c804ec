// Package archive builds a Security-Gate-aware Walk abstraction on top of
// "archive/zip", generalizing the teacher's single-pattern Walk (originally
// built to find FB2 cover images inside reference EPUBs) into the bounded
// archive iteration every container reader in this module needs.
package archive

import (
	"archive/zip"
	"fmt"
	"strings"

	"github.com/rupor-github/ebk/security"
)

// WalkFunc is called for each matching entry. name is the canonicalized,
// traversal-safe path; rc is guarded by the same Guard passed to Walk and
// must be fully read or closed by walkFn.
type WalkFunc func(name string, file *zip.File, rc *security.GuardedReader) error

// Walk validates r's central directory against guard's limits (file count,
// path traversal) then calls walkFn for every non-directory entry whose
// canonicalized name has the given prefix. If an error is returned from
// walkFn, or from the Security Gate itself, processing stops immediately.
func Walk(r *zip.Reader, pattern string, guard *security.Guard, walkFn WalkFunc) error {
	entries, err := guard.OpenZipDirectory(r)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.File.FileInfo().IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name, pattern) {
			continue
		}
		if err := guard.CheckDeadline(); err != nil {
			return err
		}
		gr, err := guard.GuardEntry(entry.File)
		if err != nil {
			return fmt.Errorf("archive: opening %q: %w", entry.Name, err)
		}
		if err := walkFn(entry.Name, entry.File, gr); err != nil {
			gr.Close()
			return err
		}
	}
	return nil
}

// ReadAll walks every entry matching pattern and returns their fully
// drained, guarded contents keyed by canonicalized name. Useful for readers
// that need a small fixed set of files (container.xml, the OPF) rather than
// streaming.
func ReadAll(r *zip.Reader, pattern string, guard *security.Guard) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := Walk(r, pattern, guard, func(name string, _ *zip.File, rc *security.GuardedReader) error {
		data, err := security.ReadAllGuarded(rc)
		if err != nil {
			return err
		}
		out[name] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Find returns the single entry named exactly name, or (nil, false) if it
// is not present. Entry lookup still goes through the Security Gate so a
// malicious archive cannot use a huge central directory to stall targeted
// lookups either.
func Find(r *zip.Reader, name string, guard *security.Guard) (*zip.File, bool, error) {
	entries, err := guard.OpenZipDirectory(r)
	if err != nil {
		return nil, false, err
	}
	for _, entry := range entries {
		if entry.Name == name {
			return entry.File, true, nil
		}
	}
	return nil, false, nil
}
