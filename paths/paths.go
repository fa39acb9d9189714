// Package paths provides path manipulation for slash-separated tree paths.
//
// Paths are relative to the tree root and use "/" as the separator on every
// platform. A path without a separator names a top-level entry.
//
// Functions that compare names take an explicit [CaseMode]; there is no
// process-wide setting.
package paths

import (
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separator is the path element separator.
const Separator = "/"

// CaseMode selects how names are compared.
type CaseMode uint8

const (
	// CaseSensitive compares names byte for byte.
	CaseSensitive CaseMode = iota
	// CaseInsensitive compares names with Unicode case folding.
	CaseInsensitive
)

func (m CaseMode) String() string {
	switch m {
	case CaseSensitive:
		return "sensitive"
	case CaseInsensitive:
		return "insensitive"
	default:
		return "unknown"
	}
}

// ParseCaseMode parses the string form produced by CaseMode.String.
func ParseCaseMode(s string) (CaseMode, bool) {
	switch strings.ToLower(s) {
	case "sensitive", "":
		return CaseSensitive, true
	case "insensitive":
		return CaseInsensitive, true
	default:
		return CaseSensitive, false
	}
}

// CaseModeForOS returns the conventional mode for the given GOOS value.
// An empty goos means the running platform.
func CaseModeForOS(goos string) CaseMode {
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "windows", "darwin", "ios":
		return CaseInsensitive
	default:
		return CaseSensitive
	}
}

// Equal reports whether two names are equal under m.
func (m CaseMode) Equal(a, b string) bool {
	if m == CaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// HasPrefix reports whether s begins with prefix under m.
func (m CaseMode) HasPrefix(s, prefix string) bool {
	_, ok := m.prefixLen(s, prefix)
	return ok
}

// prefixLen returns the number of bytes of s matched by prefix under m.
// Case-folded runes may differ in width, so the count can differ from
// len(prefix).
func (m CaseMode) prefixLen(s, prefix string) (int, bool) {
	if m != CaseInsensitive {
		return len(prefix), strings.HasPrefix(s, prefix)
	}
	i := 0
	for _, want := range prefix {
		if i >= len(s) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(s[i:])
		if !foldEqual(got, want) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// ParentOf returns the path of the directory containing path.
// It returns false for a top-level path.
func ParentOf(path string) (string, bool) {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return "", false
	}
	return path[:i], true
}

// NameOf returns the last element of path.
func NameOf(path string) string {
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Appended joins base and child with a separator. Base is kept verbatim,
// including drive-letter prefixes such as "c:".
func Appended(base, child string) string {
	return base + Separator + child
}

// Renamed returns path with its last element replaced by name.
func Renamed(path, name string) string {
	parent, ok := ParentOf(path)
	if !ok {
		return name
	}
	return Appended(parent, name)
}

// WithoutRootIfUnder strips root and the following separator from path.
// It returns false when path is not inside root under m. A root that
// only matches part of a path element ("di" for "dir/file") does not match.
func WithoutRootIfUnder(path, root string, m CaseMode) (string, bool) {
	n, ok := m.prefixLen(path, root+Separator)
	if !ok {
		return "", false
	}
	return path[n:], true
}

// Split returns the elements of path. The empty path has no elements.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}
