package tree

import (
	"math"
	"slices"

	"github.com/meigma/localvcs/content"
)

// ID is the stable identity of an entry. It is assigned once at creation and
// survives renames and moves.
type ID int64

const (
	// RootID identifies the root directory.
	RootID ID = 0

	// NoID asks a create operation to assign the next free id.
	NoID ID = -1
)

// NoTimestamp marks an entry without a timestamp.
const NoTimestamp int64 = math.MinInt64

// Kind distinguishes files from directories.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Entry is a read-only view of a tree node.
//
// Entries are copies; mutating the tree does not change an Entry obtained
// earlier.
type Entry struct {
	ID        ID
	Kind      Kind
	Name      string
	Timestamp int64
	// Content is the file body. Directories always have absent content.
	Content content.Content
	// Parent is the containing directory. The root's parent is NoID.
	Parent ID
	// Children lists child ids in insertion order. Nil for files.
	Children []ID
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IDPath is the sequence of ids from the root to an entry, root first.
type IDPath []ID

// ID returns the id of the entry the path addresses.
func (p IDPath) ID() ID {
	if len(p) == 0 {
		return NoID
	}
	return p[len(p)-1]
}

// Parent returns the path of the containing directory.
func (p IDPath) Parent() IDPath {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Clone returns a copy that does not share storage with p.
func (p IDPath) Clone() IDPath {
	return slices.Clone(p)
}

// Contains reports whether id appears anywhere on the path.
func (p IDPath) Contains(id ID) bool {
	return slices.Contains(p, id)
}

// node is the arena record behind an Entry.
type node struct {
	id        ID
	kind      Kind
	name      string
	timestamp int64
	content   content.Content
	parent    ID
	children  []ID
}

func (n *node) view() Entry {
	e := Entry{
		ID:        n.id,
		Kind:      n.kind,
		Name:      n.name,
		Timestamp: n.timestamp,
		Content:   n.content,
		Parent:    n.parent,
	}
	if n.kind == KindDirectory {
		e.Children = slices.Clone(n.children)
		if e.Children == nil {
			e.Children = []ID{}
		}
	}
	return e
}

func (n *node) clone() *node {
	c := *n
	c.children = slices.Clone(n.children)
	return &c
}
