package testutil

import (
	"maps"
	"os"
	"testing"

	"github.com/meigma/localvcs/tree"
)

// Entries returns every entry of t keyed by path, for comparing trees.
func Entries(t *tree.Tree) map[string]tree.Entry {
	return maps.Collect(t.All())
}

// FlipByte inverts the byte at off in the file at path. A negative offset
// counts from the end of the file.
func FlipByte(tb testing.TB, path string, off int64) {
	tb.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		tb.Fatalf("flip byte: %v", err)
	}
	if off < 0 {
		off += int64(len(data))
	}
	if off < 0 || off >= int64(len(data)) {
		tb.Fatalf("flip byte: offset %d outside %d byte file", off, len(data))
	}
	data[off] ^= 0xff
	if err := os.Chmod(path, 0o600); err != nil {
		tb.Fatalf("flip byte: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("flip byte: %v", err)
	}
}

// Truncate cuts n bytes off the end of the file at path.
func Truncate(tb testing.TB, path string, n int64) {
	tb.Helper()

	info, err := os.Stat(path)
	if err != nil {
		tb.Fatalf("truncate: %v", err)
	}
	if err := os.Truncate(path, info.Size()-n); err != nil {
		tb.Fatalf("truncate: %v", err)
	}
}
