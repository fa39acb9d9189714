// Package tree implements the versioned snapshot tree of files and
// directories.
//
// The tree is an arena of nodes keyed by stable [ID]. Directories hold the
// ids of their children in insertion order and every node holds the id of
// its parent, so there are no pointers between nodes. All mutating
// operations validate their input first and either apply completely or
// leave the tree untouched.
//
// A Tree is not safe for concurrent use. Reads may run concurrently with
// each other, but a mutation must not overlap any other call; callers
// serialize writers themselves or read from a [Tree.Clone].
package tree

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/meigma/localvcs/paths"
)

// Sentinel errors.
var (
	// ErrEntryNotFound is returned when a path or id path does not resolve.
	ErrEntryNotFound = errors.New("localvcs: entry not found")

	// ErrDuplicateName is returned when an operation would give two
	// siblings the same name.
	ErrDuplicateName = errors.New("localvcs: duplicate name")

	// ErrNotADirectory is returned when a move targets something other
	// than a directory.
	ErrNotADirectory = errors.New("localvcs: not a directory")

	// ErrNotAFile is returned when file content is changed on a directory.
	ErrNotAFile = errors.New("localvcs: not a file")

	// ErrCyclicMove is returned when a directory would be moved into its
	// own subtree.
	ErrCyclicMove = errors.New("localvcs: cyclic move")

	// ErrDuplicateID is returned when a caller-supplied id is already live.
	ErrDuplicateID = errors.New("localvcs: duplicate entry id")

	// ErrInvalidID is returned for ids that cannot identify an entry.
	ErrInvalidID = errors.New("localvcs: invalid entry id")

	// ErrInvalidName is returned for empty names, names containing a
	// separator and names that are not valid UTF-8.
	ErrInvalidName = errors.New("localvcs: invalid entry name")

	// ErrRootEntry is returned when an operation tries to rename, move or
	// delete the root.
	ErrRootEntry = errors.New("localvcs: operation not permitted on the root")
)

// errDescendIntoFile marks a walk that tried to look up a child of a file.
var errDescendIntoFile = errors.New("path descends into a file")

// Tree is the root of a snapshot tree and the entry point for every
// path-addressed query and mutation.
type Tree struct {
	mode   paths.CaseMode
	nodes  map[ID]*node
	nextID ID
}

// Option configures a Tree.
type Option func(*Tree)

// WithCaseMode sets how child names are compared. Defaults to
// paths.CaseSensitive.
func WithCaseMode(m paths.CaseMode) Option {
	return func(t *Tree) {
		t.mode = m
	}
}

// New returns a tree holding only the root directory.
func New(opts ...Option) *Tree {
	t := &Tree{
		mode:   paths.CaseSensitive,
		nodes:  make(map[ID]*node),
		nextID: RootID + 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.nodes[RootID] = &node{
		id:        RootID,
		kind:      KindDirectory,
		timestamp: NoTimestamp,
		parent:    NoID,
	}
	return t
}

// CaseMode returns the name comparison mode.
func (t *Tree) CaseMode() paths.CaseMode {
	return t.mode
}

// Len returns the number of entries, not counting the root.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// NextID returns the id the next auto-assigned create will receive.
func (t *Tree) NextID() ID {
	return t.nextID
}

// ReserveIDs makes sure auto-assigned ids start at next or later.
func (t *Tree) ReserveIDs(next ID) {
	t.nextID = max(t.nextID, next)
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		mode:   t.mode,
		nodes:  make(map[ID]*node, len(t.nodes)),
		nextID: t.nextID,
	}
	for id, n := range t.nodes {
		c.nodes[id] = n.clone()
	}
	return c
}

// HasEntry reports whether path resolves. The empty path is the root.
func (t *Tree) HasEntry(path string) bool {
	_, err := t.lookup(path)
	return err == nil
}

// Entry returns the entry at path.
func (t *Tree) Entry(path string) (Entry, error) {
	n, err := t.lookup(path)
	if err != nil {
		return Entry{}, err
	}
	return n.view(), nil
}

// EntryByID returns the live entry with the given id.
func (t *Tree) EntryByID(id ID) (Entry, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Entry{}, false
	}
	return n.view(), true
}

// EntryAt returns the entry addressed by p.
func (t *Tree) EntryAt(p IDPath) (Entry, error) {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return Entry{}, err
	}
	return n.view(), nil
}

// IDPathOf resolves path and returns its id path.
func (t *Tree) IDPathOf(path string) (IDPath, error) {
	n, err := t.lookup(path)
	if err != nil {
		return nil, err
	}
	return t.idPath(n), nil
}

// IDPathByID returns the id path of the live entry with the given id.
func (t *Tree) IDPathByID(id ID) (IDPath, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return t.idPath(n), true
}

// PathOf returns the current textual path of the entry addressed by p.
func (t *Tree) PathOf(p IDPath) (string, error) {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return "", err
	}
	return t.path(n), nil
}

// IndexOf returns the position of the entry addressed by p among its
// siblings.
func (t *Tree) IndexOf(p IDPath) (int, error) {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return 0, err
	}
	if n.id == RootID {
		return 0, nil
	}
	return indexOf(t.nodes[n.parent].children, n.id), nil
}

// All iterates over every entry except the root, depth first in sibling
// order, yielding each entry with its path.
func (t *Tree) All() iter.Seq2[string, Entry] {
	return func(yield func(string, Entry) bool) {
		t.walk(t.nodes[RootID], "", yield)
	}
}

func (t *Tree) walk(dir *node, prefix string, yield func(string, Entry) bool) bool {
	for _, id := range dir.children {
		n := t.nodes[id]
		p := n.name
		if prefix != "" {
			p = paths.Appended(prefix, n.name)
		}
		if !yield(p, n.view()) {
			return false
		}
		if n.kind == KindDirectory && !t.walk(n, p, yield) {
			return false
		}
	}
	return true
}

// lookup resolves path, reporting any failure as ErrEntryNotFound.
func (t *Tree) lookup(path string) (*node, error) {
	n, _, err := t.find(path)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, ErrEntryNotFound)
	}
	return n, nil
}

// find walks path one element at a time from the root. On failure it
// returns the deepest node reached and errDescendIntoFile or
// ErrEntryNotFound.
func (t *Tree) find(path string) (*node, *node, error) {
	cur := t.nodes[RootID]
	for _, name := range paths.Split(path) {
		if cur.kind != KindDirectory {
			return nil, cur, errDescendIntoFile
		}
		next := t.child(cur, name)
		if next == nil {
			return nil, cur, ErrEntryNotFound
		}
		cur = next
	}
	return cur, nil, nil
}

// child returns the child of dir named name under the tree's case mode.
func (t *Tree) child(dir *node, name string) *node {
	for _, id := range dir.children {
		if c := t.nodes[id]; t.mode.Equal(c.name, name) {
			return c
		}
	}
	return nil
}

func (t *Tree) resolveIDPath(p IDPath) (*node, error) {
	if len(p) == 0 || p[0] != RootID {
		return nil, fmt.Errorf("id path %v: %w", p, ErrEntryNotFound)
	}
	cur := t.nodes[RootID]
	for _, id := range p[1:] {
		n, ok := t.nodes[id]
		if !ok || n.parent != cur.id {
			return nil, fmt.Errorf("id path %v: %w", p, ErrEntryNotFound)
		}
		cur = n
	}
	return cur, nil
}

func (t *Tree) idPath(n *node) IDPath {
	var rev IDPath
	for cur := n; ; cur = t.nodes[cur.parent] {
		rev = append(rev, cur.id)
		if cur.id == RootID {
			break
		}
	}
	out := make(IDPath, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

func (t *Tree) path(n *node) string {
	var names []string
	for cur := n; cur.id != RootID; cur = t.nodes[cur.parent] {
		names = append(names, cur.name)
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString(names[i])
		if i > 0 {
			b.WriteString(paths.Separator)
		}
	}
	return b.String()
}

// isAncestorOrSelf reports whether anc is n or one of its ancestors.
func (t *Tree) isAncestorOrSelf(anc ID, n *node) bool {
	for cur := n; ; cur = t.nodes[cur.parent] {
		if cur.id == anc {
			return true
		}
		if cur.id == RootID {
			return false
		}
	}
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, paths.Separator) && utf8.ValidString(name)
}

// validPath reports whether every element of path is a valid name.
func validPath(path string) bool {
	if path == "" {
		return false
	}
	for _, name := range paths.Split(path) {
		if !validName(name) {
			return false
		}
	}
	return true
}

func indexOf(ids []ID, id ID) int {
	for i, c := range ids {
		if c == id {
			return i
		}
	}
	return -1
}
