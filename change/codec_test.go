package change

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/store/memory"
	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

func sampleChanges() []Change {
	return []Change{
		NewCreateFile(tree.NoID, "dir/new", content.FromString("fresh"), 20),
		NewCreateDirectory(tree.NoID, "other/d", 21),
		NewChangeFileContent("dir/a", content.FromString("changed"), 22),
		NewRename("dir/sub", "renamed"),
		NewMove("dir/b", "other/d"),
		NewDelete("dir/renamed"),
	}
}

func TestDecodedChangesReplayToSameTree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []stream.Option
	}{
		{name: "inline bodies"},
		{name: "store references", opts: []stream.Option{stream.WithStore(memory.New())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			live := fixture(t)
			changes := sampleChanges()
			for _, c := range changes {
				require.NoError(t, c.ApplyTo(live))
			}

			buf := encodeAll(t, changes, tt.opts...)
			decoded := decodeAll(t, buf, tt.opts...)
			require.Len(t, decoded, len(changes))

			replica := fixture(t)
			for _, c := range decoded {
				assert.Equal(t, Unapplied, c.State())
				require.NoError(t, c.ApplyTo(replica))
			}
			assert.Equal(t, snapshot(live), snapshot(replica))
			assert.Equal(t, live.NextID(), replica.NextID())

			for i := len(decoded) - 1; i >= 0; i-- {
				require.NoError(t, decoded[i].RevertOn(replica))
			}
			assert.Equal(t, snapshot(fixture(t)), snapshot(replica))
		})
	}
}

func TestDecodeKeepsCapturedState(t *testing.T) {
	t.Parallel()

	tr := fixture(t)
	changes := sampleChanges()
	for _, c := range changes {
		require.NoError(t, c.ApplyTo(tr))
	}
	decoded := decodeAll(t, encodeAll(t, changes))

	for i, c := range decoded {
		assert.Equal(t, changes[i].Kind(), c.Kind())
		assert.Equal(t, changes[i].Path(), c.Path())
		assert.Equal(t, changes[i].AffectedIDPath(), c.AffectedIDPath())
	}

	create := decoded[0].(*CreateFile)
	assert.Equal(t, tree.ID(7), create.ID())
	assert.Equal(t, "fresh", create.Content().String())
	assert.Equal(t, int64(20), create.Timestamp())

	dir := decoded[1].(*CreateDirectory)
	assert.Equal(t, tree.ID(8), dir.ID())

	edit := decoded[2].(*ChangeFileContent)
	assert.Equal(t, "changed", edit.NewContent().String())
	assert.Equal(t, "alpha", edit.OldContent().String())
	assert.Equal(t, int64(22), edit.NewTimestamp())
	assert.Equal(t, int64(11), edit.OldTimestamp())

	rename := decoded[3].(*Rename)
	assert.Equal(t, "renamed", rename.NewName())
	assert.Equal(t, "sub", rename.OldName())

	move := decoded[4].(*Move)
	assert.Equal(t, "other/d", move.NewParentPath())
	assert.Equal(t, tree.IDPath{tree.RootID, 1}, move.OldParent())
	assert.Equal(t, 1, move.OldIndex())

	del := decoded[5].(*Delete)
	removed, ok := del.Removed()
	require.True(t, ok)
	assert.Equal(t, "renamed", removed.Name)
	assert.Equal(t, 2, removed.Count())
	assert.True(t, removed.Children[0].Content.IsAbsent())
	assert.Equal(t, 1, del.Index())
}

func TestUnappliedChangesEncode(t *testing.T) {
	t.Parallel()

	decoded := decodeAll(t, encodeAll(t, []Change{NewMove("a", "b"), NewDelete("c")}))

	move := decoded[0].(*Move)
	assert.Nil(t, move.AffectedIDPath())
	assert.Nil(t, move.OldParent())
	assert.Equal(t, -1, move.OldIndex())

	del := decoded[1].(*Delete)
	_, ok := del.Removed()
	assert.False(t, ok)
	assert.Equal(t, -1, del.Index())
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	t.Parallel()

	valid := encodeAll(t, []Change{NewRename("dir/a", "z")}).Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"unknown tag", []byte{42, 0, 0}},
		{"zero tag", []byte{0, 0, 0}},
		{"truncated", valid[:len(valid)-1]},
		{"bad utf8 path", []byte{byte(KindDelete), 1, 0xff, 0}},
		{"bad presence flag", []byte{byte(KindDelete), 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 7}},
		{"bad entry kind", []byte{byte(KindDelete), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(stream.NewReader(bytes.NewReader(tt.data)))
			require.ErrorIs(t, err, stream.ErrSerialization)
		})
	}
}

func TestDecodeRejectsDeepSubtree(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	w.WriteUint8(byte(KindDelete))
	w.WriteString("d")
	w.WriteUvarint(0)
	w.WriteUvarint(0)
	w.WriteLong(-1)
	w.WriteBool(true)
	for i := range maxSubtreeDepth + 2 {
		w.WriteUint8(byte(tree.KindDirectory))
		w.WriteLong(int64(i + 1))
		w.WriteString("d")
		w.WriteLong(0)
		w.WriteUvarint(1)
	}
	require.NoError(t, w.Err())

	_, err := Decode(stream.NewReader(&buf))
	require.ErrorIs(t, err, stream.ErrSerialization)
}

func TestDecodeChecksDeleteParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected tree.IDPath
		parent   tree.IDPath
		wantErr  bool
	}{
		{"unapplied", nil, nil, false},
		{"nested", tree.IDPath{0, 1, 2}, tree.IDPath{0, 1}, false},
		{"top level", tree.IDPath{0, 1}, tree.IDPath{0}, false},
		{"other parent", tree.IDPath{0, 1, 2}, tree.IDPath{0, 5}, true},
		{"missing parent", tree.IDPath{0, 1}, nil, true},
		{"parent without affected path", nil, tree.IDPath{0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			w := stream.NewWriter(&buf)
			w.WriteUint8(byte(KindDelete))
			w.WriteString("a/b")
			writeIDPath(w, tt.affected)
			writeIDPath(w, tt.parent)
			w.WriteLong(0)
			w.WriteBool(false)
			require.NoError(t, w.Err())

			c, err := Decode(stream.NewReader(&buf))
			if tt.wantErr {
				require.ErrorIs(t, err, stream.ErrSerialization)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindDelete, c.Kind())
		})
	}
}
