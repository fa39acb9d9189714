package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentOf(t *testing.T) {
	t.Parallel()

	parent, ok := ParentOf("dir1/dir2/file")
	assert.True(t, ok)
	assert.Equal(t, "dir1/dir2", parent)

	_, ok = ParentOf("file")
	assert.False(t, ok)
}

func TestNameOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file", NameOf("file"))
	assert.Equal(t, "file", NameOf("dir/file"))
	assert.Equal(t, "", NameOf("dir/"))
}

func TestAppended(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		base  string
		child string
		want  string
	}{
		{"simple", "file1", "file2", "file1/file2"},
		{"drive letter", "c:/root", "file", "c:/root/file"},
		{"nested", "a/b", "c", "a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Appended(tt.base, tt.child))
		})
	}
}

func TestRenamed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dir/file2", Renamed("dir/file1", "file2"))
	assert.Equal(t, "file2", Renamed("file1", "file2"))
}

func TestWithoutRootIfUnder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		root   string
		mode   CaseMode
		want   string
		wantOK bool
	}{
		{"under root", "dir/file", "dir", CaseSensitive, "file", true},
		{"other root", "dir/file", "abc", CaseSensitive, "", false},
		{"partial element", "dir/file", "di", CaseSensitive, "", false},
		{"root itself", "dir", "dir", CaseSensitive, "", false},
		{"deep", "a/b/c", "a/b", CaseSensitive, "c", true},
		{"case differs sensitive", "dir/file", "DiR", CaseSensitive, "", false},
		{"case differs insensitive", "dir/file", "DiR", CaseInsensitive, "file", true},
		{"partial element insensitive", "dir/file", "DI", CaseInsensitive, "", false},
		{"long s in path", "ſub/f", "sub", CaseInsensitive, "f", true},
		{"long s in root", "sub/f", "ſub", CaseInsensitive, "f", true},
		{"kelvin sign", "\u212aey/f", "KEY", CaseInsensitive, "f", true},
		{"long s sensitive", "ſub/f", "sub", CaseSensitive, "", false},
		{"path shorter than root", "ſ", "ss/", CaseInsensitive, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := WithoutRootIfUnder(tt.path, tt.root, tt.mode)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaseModeEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, CaseSensitive.Equal("file", "file"))
	assert.False(t, CaseSensitive.Equal("file", "FILE"))
	assert.True(t, CaseInsensitive.Equal("file", "FILE"))
	assert.False(t, CaseInsensitive.Equal("file", "files"))
}

func TestCaseModeHasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, CaseSensitive.HasPrefix("dir/file", "dir/"))
	assert.False(t, CaseSensitive.HasPrefix("DIR/file", "dir/"))
	assert.True(t, CaseInsensitive.HasPrefix("DIR/file", "dir/"))
	assert.True(t, CaseInsensitive.HasPrefix("ſtate", "ST"))
	assert.True(t, CaseInsensitive.HasPrefix("\u212a", "k"))
	assert.False(t, CaseInsensitive.HasPrefix("dir", "dir/"))
	assert.False(t, CaseInsensitive.HasPrefix("ſ", "ss"))
}

func TestSplit(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Split(""))
	assert.Equal(t, []string{"file"}, Split("file"))
	assert.Equal(t, []string{"a", "b", "c"}, Split("a/b/c"))
}

func TestParseCaseMode(t *testing.T) {
	t.Parallel()

	for _, m := range []CaseMode{CaseSensitive, CaseInsensitive} {
		got, ok := ParseCaseMode(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseCaseMode("sideways")
	assert.False(t, ok)
}

func TestCaseModeForOS(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CaseInsensitive, CaseModeForOS("windows"))
	assert.Equal(t, CaseInsensitive, CaseModeForOS("darwin"))
	assert.Equal(t, CaseSensitive, CaseModeForOS("linux"))
}
