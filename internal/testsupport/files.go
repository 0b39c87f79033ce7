package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and any missing parents, holding exactly size bytes
// of filler. Sizes below one write a single byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	filler := io.LimitReader(infiniteReader{}, size)
	if _, err := io.Copy(f, filler); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type infiniteReader struct{}

var fillerBlock = bytes.Repeat([]byte{'w'}, 32*1024)

func (infiniteReader) Read(p []byte) (int, error) {
	return copy(p, fillerBlock), nil
}
