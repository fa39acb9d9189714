package changelog

import (
	"bytes"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

func history() []change.Change {
	return []change.Change{
		change.NewCreateDirectory(tree.NoID, "dir", 1),
		change.NewCreateFile(tree.NoID, "dir/file", content.FromString("one"), 2),
		change.NewChangeFileContent("dir/file", content.FromString("two"), 3),
		change.NewRename("dir", "renamed"),
		change.NewCreateDirectory(tree.NoID, "target", 4),
		change.NewMove("renamed/file", "target"),
		change.NewDelete("renamed"),
	}
}

func applyAll(t *testing.T, tr *tree.Tree, l *Log, changes []change.Change) {
	t.Helper()
	for _, c := range changes {
		require.NoError(t, c.ApplyTo(tr))
		require.NoError(t, l.Append(c))
	}
}

func snapshot(tr *tree.Tree) map[string]tree.Entry {
	return maps.Collect(tr.All())
}

func TestLogKeepsOrder(t *testing.T) {
	t.Parallel()

	tr := tree.New()
	l := New()
	changes := history()
	applyAll(t, tr, l, changes)

	assert.Equal(t, len(changes), l.Len())
	assert.Equal(t, changes, slices.Collect(l.All()))

	last, ok := l.Last()
	require.True(t, ok)
	assert.Same(t, changes[len(changes)-1], last)
	assert.Same(t, changes[2], l.At(2))
}

func TestAppendRequiresAppliedChange(t *testing.T) {
	t.Parallel()

	l := New()
	err := l.Append(change.NewCreateDirectory(tree.NoID, "dir", 0))
	require.ErrorIs(t, err, change.ErrInvalidState)
	assert.Zero(t, l.Len())
}

func TestRevertLastWalksBackThroughHistory(t *testing.T) {
	t.Parallel()

	tr := tree.New()
	l := New()

	states := []map[string]tree.Entry{snapshot(tr)}
	for _, c := range history() {
		applyAll(t, tr, l, []change.Change{c})
		states = append(states, snapshot(tr))
	}

	for i := len(states) - 2; i >= 0; i-- {
		c, err := l.RevertLast(tr)
		require.NoError(t, err)
		assert.Equal(t, change.Reverted, c.State())
		assert.Equal(t, states[i], snapshot(tr))
		assert.Equal(t, i, l.Len())
	}

	_, err := l.RevertLast(tr)
	require.ErrorIs(t, err, ErrEmpty)
	_, ok := l.Last()
	assert.False(t, ok)
}

func TestRevertLastFailureKeepsChange(t *testing.T) {
	t.Parallel()

	tr := tree.New()
	l := New()
	applyAll(t, tr, l, []change.Change{change.NewCreateDirectory(tree.NoID, "dir", 0)})

	// Deleting behind the log's back leaves nothing to revert.
	require.NoError(t, tr.Delete("dir"))

	_, err := l.RevertLast(tr)
	require.ErrorIs(t, err, tree.ErrEntryNotFound)
	assert.Equal(t, 1, l.Len())
}

func TestResetDropsHistory(t *testing.T) {
	t.Parallel()

	tr := tree.New()
	l := New()
	applyAll(t, tr, l, history())

	l.Reset()
	assert.Zero(t, l.Len())
	assert.True(t, tr.HasEntry("target/file"))
}

func TestEncodeDecodeReplay(t *testing.T) {
	t.Parallel()

	live := tree.New()
	l := New()
	applyAll(t, live, l, history())

	var buf bytes.Buffer
	require.NoError(t, l.Encode(stream.NewWriter(&buf)))

	decoded, err := Decode(stream.NewReader(&buf))
	require.NoError(t, err)
	require.Len(t, decoded, l.Len())

	replica := tree.New()
	replayed, err := Replay(replica, decoded)
	require.NoError(t, err)
	assert.Equal(t, l.Len(), replayed.Len())
	assert.Equal(t, snapshot(live), snapshot(replica))

	for replayed.Len() > 0 {
		_, err := replayed.RevertLast(replica)
		require.NoError(t, err)
	}
	assert.Zero(t, replica.Len())
}

func TestReplayStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	tr := tree.New()
	changes := []change.Change{
		change.NewCreateDirectory(tree.NoID, "dir", 0),
		change.NewRename("missing", "x"),
		change.NewCreateDirectory(tree.NoID, "later", 0),
	}

	l, err := Replay(tr, changes)
	require.ErrorIs(t, err, tree.ErrEntryNotFound)
	assert.Equal(t, 1, l.Len())
	assert.False(t, tr.HasEntry("later"))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode(stream.NewReader(bytes.NewReader([]byte{99, 0, 0})))
	require.ErrorIs(t, err, stream.ErrSerialization)
}
