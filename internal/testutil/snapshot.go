package testutil

import (
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/localvcs/internal/fb"
)

// TestNode holds data for building raw snapshot records.
type TestNode struct {
	ID     int64
	Parent int64
	Kind   fb.NodeKind
	Name   string
}

// BuildTestSnapshot creates a FlatBuffers-encoded snapshot from raw records.
// No validation is done, so tests can build snapshots a decoder must reject.
func BuildTestSnapshot(tb testing.TB, version uint32, nodes []TestNode) []byte {
	tb.Helper()

	builder := flatbuffers.NewBuilder(256)

	// Build nodes in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		name := builder.CreateString(n.Name)

		fb.NodeStart(builder)
		fb.NodeAddId(builder, n.ID)
		fb.NodeAddParent(builder, n.Parent)
		fb.NodeAddKind(builder, n.Kind)
		fb.NodeAddName(builder, name)
		offsets[i] = fb.NodeEnd(builder)
	}

	fb.SnapshotStartNodesVector(builder, len(nodes))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	nodesOffset := builder.EndVector(len(nodes))

	fb.SnapshotStart(builder)
	fb.SnapshotAddVersion(builder, version)
	fb.SnapshotAddNodes(builder, nodesOffset)
	fb.FinishSnapshotBuffer(builder, fb.SnapshotEnd(builder))

	return builder.FinishedBytes()
}
