package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rupor-github/ebk/security"
)

func buildZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	return r
}

func newGuard() *security.Guard {
	g := security.NewGuard(security.DefaultLimits())
	g.Start()
	return g
}

func TestWalk(t *testing.T) {
	r := buildZip(t, map[string]string{
		"docs/readme.txt": "readme content",
		"docs/guide.txt":  "guide content",
		"src/main.go":      "main content",
		"src/test.go":      "test content",
		"config.yml":       "config content",
	})

	t.Run("walk with docs prefix", func(t *testing.T) {
		var visited []string
		err := Walk(r, "docs/", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
			visited = append(visited, name)
			rc.Close()
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		if len(visited) != 2 {
			t.Errorf("visited %d files, want 2", len(visited))
		}
	})

	t.Run("walk with no matching prefix", func(t *testing.T) {
		var visited []string
		err := Walk(r, "nonexistent/", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
			visited = append(visited, name)
			rc.Close()
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		if len(visited) != 0 {
			t.Errorf("visited %d files, want 0", len(visited))
		}
	})

	t.Run("walk with empty prefix visits everything but dirs", func(t *testing.T) {
		var visited []string
		err := Walk(r, "", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
			visited = append(visited, name)
			rc.Close()
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		if len(visited) != 5 {
			t.Errorf("visited %d files, want 5", len(visited))
		}
	})

	t.Run("walkFn returns error stops iteration", func(t *testing.T) {
		expectedErr := errors.New("test error")
		err := Walk(r, "docs/", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
			rc.Close()
			return expectedErr
		})
		if err != expectedErr {
			t.Errorf("Walk() error = %v, want %v", err, expectedErr)
		}
	})
}

func TestWalk_PathTraversalRejected(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("../evil.txt")
	fw.Write([]byte("x"))
	w.Close()
	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	err = Walk(r, "", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
		rc.Close()
		return nil
	})
	if err == nil {
		t.Fatal("expected path traversal error")
	}
}

func TestWalk_FileContent(t *testing.T) {
	content := "test content"
	r := buildZip(t, map[string]string{"test.txt": content})

	err := Walk(r, "", newGuard(), func(name string, file *zip.File, rc *security.GuardedReader) error {
		data, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		if string(data) != content {
			t.Errorf("content = %s, want %s", data, content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
}

func TestReadAll(t *testing.T) {
	r := buildZip(t, map[string]string{
		"a.txt": "A",
		"b.txt": "B",
	})
	out, err := ReadAll(r, "", newGuard())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(out["a.txt"]) != "A" || string(out["b.txt"]) != "B" {
		t.Errorf("unexpected contents: %v", out)
	}
}

func TestFind(t *testing.T) {
	r := buildZip(t, map[string]string{"mimetype": "application/epub+zip"})
	f, ok, err := Find(r, "mimetype", newGuard())
	if err != nil || !ok || f == nil {
		t.Fatalf("Find() = %v, %v, %v", f, ok, err)
	}
	_, ok, err = Find(r, "missing", newGuard())
	if err != nil || ok {
		t.Fatalf("Find() for missing entry = %v, %v", ok, err)
	}
}
