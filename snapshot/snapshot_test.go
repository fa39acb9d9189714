package snapshot

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/internal/fb"
	"github.com/meigma/localvcs/internal/testutil"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/store/memory"
	"github.com/meigma/localvcs/tree"
)

func sampleTree(t *testing.T, opts ...tree.Option) *tree.Tree {
	t.Helper()
	tr := tree.New(opts...)
	_, err := tr.CreateDirectory(tree.NoID, "src", 5)
	require.NoError(t, err)
	_, err = tr.CreateFile(tree.NoID, "src/main.go", content.FromString("package main"), 6)
	require.NoError(t, err)
	_, err = tr.CreateFile(tree.NoID, "src/empty", content.FromString(""), tree.NoTimestamp)
	require.NoError(t, err)
	_, err = tr.CreateFile(tree.NoID, "src/absent", content.None, 7)
	require.NoError(t, err)
	_, err = tr.CreateDirectory(tree.NoID, "src/nested", 8)
	require.NoError(t, err)
	_, err = tr.CreateFile(tree.NoID, "README", content.FromString("read me"), -3)
	require.NoError(t, err)

	// Reorder and leave holes in the id space.
	require.NoError(t, tr.Move("src/main.go", ""))
	require.NoError(t, tr.Delete("src/nested"))
	tr.ReserveIDs(40)
	return tr
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts func() []Option
		mode paths.CaseMode
	}{
		{name: "inline", opts: func() []Option { return nil }},
		{name: "store", opts: func() []Option { return []Option{WithStore(memory.New())} }},
		{name: "case insensitive", opts: func() []Option { return nil }, mode: paths.CaseInsensitive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			orig := sampleTree(t, tree.WithCaseMode(tt.mode))
			opts := tt.opts()

			data, err := Encode(orig, opts...)
			require.NoError(t, err)

			got, err := Decode(data, opts...)
			require.NoError(t, err)
			assert.Equal(t, maps.Collect(orig.All()), maps.Collect(got.All()))
			assert.Equal(t, orig.NextID(), got.NextID())
			assert.Equal(t, tt.mode, got.CaseMode())

			root, err := got.Entry("")
			require.NoError(t, err)
			assert.Equal(t, []tree.ID{1, 6, 2}, root.Children)
		})
	}
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	data, err := Encode(tree.New())
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Zero(t, got.Len())
	assert.Equal(t, tree.ID(1), got.NextID())
}

func TestStoreReferences(t *testing.T) {
	t.Parallel()

	s := memory.New()
	data, err := Encode(sampleTree(t), WithStore(s))
	require.NoError(t, err)

	refs, err := References(data)
	require.NoError(t, err)
	assert.Equal(t, []string{
		content.FromString("").Digest().String(),
		content.FromString("read me").Digest().String(),
		content.FromString("package main").Digest().String(),
	}, digestStrings(refs))
	for _, d := range refs {
		assert.True(t, s.Has(d))
	}

	inline, err := Encode(sampleTree(t))
	require.NoError(t, err)
	refs, err = References(inline)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDecodeNeedsStoreForReferences(t *testing.T) {
	t.Parallel()

	s := memory.New()
	data, err := Encode(sampleTree(t), WithStore(s))
	require.NoError(t, err)

	_, err = Decode(data)
	require.ErrorIs(t, err, ErrInvalid)

	// A store missing the payload.
	_, err = Decode(data, WithStore(memory.New()))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecodeDetectsCorruptPayload(t *testing.T) {
	t.Parallel()

	s := memory.New()
	data, err := Encode(sampleTree(t), WithStore(s))
	require.NoError(t, err)

	s.Corrupt(content.FromString("read me").Digest(), []byte("tampered"))
	_, err = Decode(data, WithStore(s))
	require.ErrorIs(t, err, store.ErrDigestMismatch)
}

func TestDecodeRejectsInvalidSnapshots(t *testing.T) {
	t.Parallel()

	dir := fb.NodeKindDirectory
	file := fb.NodeKindFile

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 2}},
		{"garbage", []byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0}},
		{"wrong version", testutil.BuildTestSnapshot(t, 9, nil)},
		{"unknown kind", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, fb.NodeKindUnknown, "a"}})},
		{"duplicate id", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, dir, "a"}, {1, 0, dir, "b"}})},
		{"root id", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{0, 0, dir, "a"}})},
		{"orphan", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, dir, "a"}, {2, 7, dir, "b"}})},
		{"duplicate name", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, dir, "a"}, {2, 0, file, "a"}})},
		{"child of file", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, file, "a"}, {2, 1, file, "b"}})},
		{"bad name", testutil.BuildTestSnapshot(t, Version, []testutil.TestNode{{1, 0, dir, "a/b"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func digestStrings[T interface{ String() string }](ds []T) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
