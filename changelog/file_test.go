package changelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/store/memory"
	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

func openFile(t *testing.T, path string, opts ...FileOption) *File {
	t.Helper()
	f, err := OpenFile(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func writeHistory(t *testing.T, f *File) *tree.Tree {
	t.Helper()
	tr := tree.New()
	for _, c := range history() {
		require.NoError(t, c.ApplyTo(tr))
		require.NoError(t, f.Append(c))
	}
	require.NoError(t, f.Sync())
	return tr
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []FileOption
	}{
		{name: "inline"},
		{name: "with store", opts: []FileOption{WithStore(memory.New())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "changes.log")
			f, err := OpenFile(path, tt.opts...)
			require.NoError(t, err)
			live := writeHistory(t, f)
			assert.Equal(t, len(history()), f.Len())
			require.NoError(t, f.Close())

			f = openFile(t, path, tt.opts...)
			assert.Equal(t, len(history()), f.Len())

			changes, err := f.Changes()
			require.NoError(t, err)

			replica := tree.New()
			_, err = Replay(replica, changes)
			require.NoError(t, err)
			assert.Equal(t, snapshot(live), snapshot(replica))
		})
	}
}

func TestFileTruncate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "changes.log")
	f := openFile(t, path)
	writeHistory(t, f)
	full := f.Size()

	require.NoError(t, f.Truncate(2))
	assert.Equal(t, 2, f.Len())
	assert.Less(t, f.Size(), full)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, f.Size(), info.Size())

	changes, err := f.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, change.KindCreateFile, changes[1].Kind())

	// Appends continue after the truncation point.
	tr := tree.New()
	_, err = Replay(tr, changes)
	require.NoError(t, err)
	next := change.NewCreateDirectory(tree.NoID, "after", 9)
	require.NoError(t, next.ApplyTo(tr))
	require.NoError(t, f.Append(next))
	assert.Equal(t, 3, f.Len())

	changes, err = f.Changes()
	require.NoError(t, err)
	assert.Equal(t, "after", changes[2].Path())

	require.NoError(t, f.Truncate(0))
	assert.Zero(t, f.Len())
	assert.Zero(t, f.Size())

	require.Error(t, f.Truncate(1))
	require.Error(t, f.Truncate(-1))
}

func TestFileDropsTornTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "changes.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	writeHistory(t, f)
	size := f.Size()
	require.NoError(t, f.Close())

	// Simulate a crash midway through appending one more record.
	require.NoError(t, os.Truncate(path, size-3))

	f = openFile(t, path)
	assert.Equal(t, len(history())-1, f.Len())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, f.Size(), info.Size())

	changes, err := f.Changes()
	require.NoError(t, err)
	assert.Len(t, changes, len(history())-1)
}

func TestFileDetectsCorruption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		corrupt func(data []byte, last int64)
	}{
		{
			name:    "payload byte",
			corrupt: func(data []byte, _ int64) { data[frameHeaderSize+1] ^= 0xff },
		},
		{
			name:    "first length past end of file",
			corrupt: func(data []byte, _ int64) { data[0] = 0x7f },
		},
		{
			name:    "first length low byte",
			corrupt: func(data []byte, _ int64) { data[3] ^= 0xff },
		},
		{
			name:    "first header checksum",
			corrupt: func(data []byte, _ int64) { data[6] ^= 0x01 },
		},
		{
			name:    "last length past end of file",
			corrupt: func(data []byte, last int64) { data[last+2] ^= 0x10 },
		},
		{
			name:    "payload checksum",
			corrupt: func(data []byte, _ int64) { data[len(data)-1] ^= 0xff },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "changes.log")
			f, err := OpenFile(path)
			require.NoError(t, err)
			writeHistory(t, f)
			last := f.offsets[len(f.offsets)-1]
			require.NoError(t, f.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.corrupt(data, last)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = OpenFile(path)
			require.ErrorIs(t, err, stream.ErrSerialization)

			// Nothing is dropped from a damaged log.
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), info.Size())
		})
	}
}

func TestFileDropsTornHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "changes.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	writeHistory(t, f)
	last := f.offsets[len(f.offsets)-1]
	require.NoError(t, f.Close())

	require.NoError(t, os.Truncate(path, last+frameHeaderSize-1))

	f = openFile(t, path)
	assert.Equal(t, len(history())-1, f.Len())
	assert.Equal(t, last, f.Size())
}

func TestFileRejectsUndecodableRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "changes.log")

	// A well-framed record whose body is not a change.
	frame := appendFrame(nil, []byte{77, 0, 0})
	require.NoError(t, os.WriteFile(path, frame, 0o600))

	f := openFile(t, path)
	assert.Equal(t, 1, f.Len())

	_, err := f.Changes()
	require.ErrorIs(t, err, stream.ErrSerialization)
}

func TestFileWithStoreKeepsBodiesOutOfLog(t *testing.T) {
	t.Parallel()

	s := memory.New()
	path := filepath.Join(t.TempDir(), "changes.log")
	f := openFile(t, path, WithStore(s))

	body := content.FromString(string(make([]byte, 4096)))
	c := change.NewCreateFile(tree.NoID, "big", body, 0)
	require.NoError(t, c.ApplyTo(tree.New()))
	require.NoError(t, f.Append(c))

	assert.Less(t, f.Size(), int64(1024))
	assert.True(t, s.Has(body.Digest()))
}
