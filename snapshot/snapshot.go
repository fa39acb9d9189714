//go:generate flatc --go --go-namespace fb -o ../internal ../schema/snapshot.fbs

// Package snapshot encodes whole trees as FlatBuffers checkpoints.
//
// A checkpoint captures every entry with its id, name, timestamp, content
// and sibling position, plus the tree's case mode and id watermark, so the
// decoded tree is indistinguishable from the encoded one.
package snapshot

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/internal/fb"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/tree"
)

// Version is the checkpoint format version.
const Version = 1

// ErrInvalid is returned for data that is not a well-formed checkpoint.
var ErrInvalid = errors.New("localvcs: invalid snapshot")

// Option configures Encode and Decode.
type Option func(*config)

type config struct {
	store store.Store
}

// WithStore keeps file bodies in s and records digest references in the
// checkpoint. Without a store, bodies are written inline.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Encode serializes t.
func Encode(t *tree.Tree, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	builder := flatbuffers.NewBuilder(1024)

	var entries []tree.Entry
	for _, e := range t.All() {
		entries = append(entries, e)
	}

	// Build nodes in reverse order (FlatBuffers requirement)
	nodeOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		nameOffset := builder.CreateString(e.Name)

		var digestOffset, bodyOffset flatbuffers.UOffsetT
		hasContent := e.Kind == tree.KindFile && !e.Content.IsAbsent()
		if hasContent {
			if cfg.store != nil {
				d, err := store.PutContent(cfg.store, e.Content)
				if err != nil {
					return nil, fmt.Errorf("snapshot entry %d: %w", e.ID, err)
				}
				digestOffset = builder.CreateString(d.String())
			} else {
				bodyOffset = builder.CreateByteVector(e.Content.Bytes())
			}
		}

		fb.NodeStart(builder)
		fb.NodeAddId(builder, int64(e.ID))
		fb.NodeAddParent(builder, int64(e.Parent))
		fb.NodeAddKind(builder, fb.NodeKind(e.Kind))
		fb.NodeAddName(builder, nameOffset)
		fb.NodeAddTimestamp(builder, e.Timestamp)
		fb.NodeAddHasContent(builder, hasContent)
		if digestOffset != 0 {
			fb.NodeAddContentDigest(builder, digestOffset)
		}
		if bodyOffset != 0 {
			fb.NodeAddContent(builder, bodyOffset)
		}
		nodeOffsets[i] = fb.NodeEnd(builder)
	}

	fb.SnapshotStartNodesVector(builder, len(entries))
	for i := len(nodeOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(nodeOffsets[i])
	}
	nodesOffset := builder.EndVector(len(entries))

	fb.SnapshotStart(builder)
	fb.SnapshotAddVersion(builder, Version)
	fb.SnapshotAddCaseInsensitive(builder, t.CaseMode() == paths.CaseInsensitive)
	fb.SnapshotAddNextId(builder, int64(t.NextID()))
	fb.SnapshotAddNodes(builder, nodesOffset)
	fb.FinishSnapshotBuffer(builder, fb.SnapshotEnd(builder))
	return builder.FinishedBytes(), nil
}

// record is a decoded node before it is attached to a tree.
type record struct {
	id, parent tree.ID
	subtree    tree.Subtree
}

// Decode rebuilds the tree encoded in data. Entries whose bodies are digest
// references need the same store that was passed to Encode.
func Decode(data []byte, opts ...Option) (*tree.Tree, error) {
	cfg := newConfig(opts)

	h, records, err := parse(data, cfg)
	if err != nil {
		return nil, err
	}

	mode := paths.CaseSensitive
	if h.caseInsensitive {
		mode = paths.CaseInsensitive
	}
	t := tree.New(tree.WithCaseMode(mode))

	children := make(map[tree.ID][]int, len(records))
	seen := make(map[tree.ID]struct{}, len(records))
	for i, r := range records {
		if r.id <= tree.RootID {
			return nil, fmt.Errorf("%w: invalid id %d", ErrInvalid, r.id)
		}
		if _, dup := seen[r.id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalid, r.id)
		}
		seen[r.id] = struct{}{}
		children[r.parent] = append(children[r.parent], i)
	}

	attached := 0
	var build func(i int) tree.Subtree
	build = func(i int) tree.Subtree {
		attached++
		s := records[i].subtree
		for _, c := range children[s.ID] {
			s.Children = append(s.Children, build(c))
		}
		return s
	}
	for _, i := range children[tree.RootID] {
		if err := t.Insert(tree.IDPath{tree.RootID}, -1, build(i)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if attached != len(records) {
		return nil, fmt.Errorf("%w: %d entries not reachable from the root", ErrInvalid, len(records)-attached)
	}

	t.ReserveIDs(tree.ID(h.nextID))
	return t, nil
}

type header struct {
	caseInsensitive bool
	nextID          int64
}

// parse reads the buffer into records. FlatBuffers accessors panic on
// out-of-range offsets; parse turns that into ErrInvalid.
func parse(data []byte, cfg config) (h header, records []record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: %v", ErrInvalid, r)
		}
	}()
	if len(data) < flatbuffers.SizeUOffsetT {
		return header{}, nil, fmt.Errorf("%w: %d bytes", ErrInvalid, len(data))
	}

	root := fb.GetRootAsSnapshot(data, 0)
	if v := root.Version(); v != Version {
		return header{}, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, v)
	}
	h = header{caseInsensitive: root.CaseInsensitive(), nextID: root.NextId()}

	var n fb.Node
	records = make([]record, 0, root.NodesLength())
	for i := range root.NodesLength() {
		root.Nodes(&n, i)
		r, err := decodeNode(&n, cfg)
		if err != nil {
			return header{}, nil, err
		}
		records = append(records, r)
	}
	return h, records, nil
}

func decodeNode(n *fb.Node, cfg config) (record, error) {
	r := record{
		id:     tree.ID(n.Id()),
		parent: tree.ID(n.Parent()),
		subtree: tree.Subtree{
			ID:        tree.ID(n.Id()),
			Name:      string(n.Name()),
			Timestamp: n.Timestamp(),
		},
	}
	switch n.Kind() {
	case fb.NodeKindFile:
		r.subtree.Kind = tree.KindFile
	case fb.NodeKindDirectory:
		r.subtree.Kind = tree.KindDirectory
	default:
		return record{}, fmt.Errorf("%w: entry %d has kind %s", ErrInvalid, r.id, n.Kind())
	}
	if r.subtree.Kind != tree.KindFile || !n.HasContent() {
		return r, nil
	}

	ref := n.ContentDigest()
	if len(ref) == 0 {
		r.subtree.Content = content.New(n.ContentBytes())
		return r, nil
	}
	d, err := digest.Parse(string(ref))
	if err != nil {
		return record{}, fmt.Errorf("%w: entry %d: %w", ErrInvalid, r.id, err)
	}
	if cfg.store == nil {
		return record{}, fmt.Errorf("%w: entry %d references %s without a store", ErrInvalid, r.id, d)
	}
	c, err := store.GetContent(cfg.store, d)
	if err != nil {
		return record{}, fmt.Errorf("entry %d: %w", r.id, err)
	}
	r.subtree.Content = c
	return r, nil
}

// References returns the payload digests referenced by the checkpoint in
// data, in entry order.
func References(data []byte) (refs []digest.Digest, err error) {
	defer func() {
		if r := recover(); r != nil {
			refs = nil
			err = fmt.Errorf("%w: %v", ErrInvalid, r)
		}
	}()
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalid, len(data))
	}

	root := fb.GetRootAsSnapshot(data, 0)
	var n fb.Node
	for i := range root.NodesLength() {
		root.Nodes(&n, i)
		ref := n.ContentDigest()
		if len(ref) == 0 {
			continue
		}
		d, err := digest.Parse(string(ref))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalid, n.Id(), err)
		}
		refs = append(refs, d)
	}
	return refs, nil
}
