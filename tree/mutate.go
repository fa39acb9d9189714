package tree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/paths"
)

// CreateFile inserts a file at path and returns its id. Pass NoID to have
// the tree assign one. The parent directory must already exist.
func (t *Tree) CreateFile(id ID, path string, c content.Content, timestamp int64) (ID, error) {
	return t.create(KindFile, id, path, c, timestamp)
}

// CreateDirectory inserts an empty directory at path and returns its id.
// Pass NoID to have the tree assign one. The parent directory must already
// exist.
func (t *Tree) CreateDirectory(id ID, path string, timestamp int64) (ID, error) {
	return t.create(KindDirectory, id, path, content.None, timestamp)
}

func (t *Tree) create(kind Kind, id ID, path string, c content.Content, timestamp int64) (ID, error) {
	if !validPath(path) {
		return NoID, fmt.Errorf("create %q: %w", path, ErrInvalidName)
	}
	name := paths.NameOf(path)

	parent := t.nodes[RootID]
	if parentPath, ok := paths.ParentOf(path); ok {
		p, _, err := t.find(parentPath)
		if err != nil || p.kind != KindDirectory {
			return NoID, fmt.Errorf("create %q: parent %q: %w", path, parentPath, ErrEntryNotFound)
		}
		parent = p
	}
	if t.child(parent, name) != nil {
		return NoID, fmt.Errorf("create %q: %w", path, ErrDuplicateName)
	}

	id, err := t.claimID(id)
	if err != nil {
		return NoID, fmt.Errorf("create %q: %w", path, err)
	}

	n := &node{
		id:        id,
		kind:      kind,
		name:      name,
		timestamp: timestamp,
		parent:    parent.id,
	}
	if kind == KindFile {
		n.content = c
	}
	t.nodes[id] = n
	parent.children = append(parent.children, id)
	return id, nil
}

// claimID validates or assigns an id for a new entry.
func (t *Tree) claimID(id ID) (ID, error) {
	if id == NoID {
		id = t.nextID
	}
	if err := t.checkID(id); err != nil {
		return NoID, err
	}
	t.nextID = max(t.nextID, id+1)
	return id, nil
}

func (t *Tree) checkID(id ID) error {
	if id <= RootID {
		return fmt.Errorf("id %d: %w", id, ErrInvalidID)
	}
	if _, live := t.nodes[id]; live {
		return fmt.Errorf("id %d: %w", id, ErrDuplicateID)
	}
	return nil
}

// ChangeFileContent replaces the content and timestamp of the file
// addressed by p. The entry keeps its id and position.
func (t *Tree) ChangeFileContent(p IDPath, c content.Content, timestamp int64) error {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return fmt.Errorf("change content: %w", err)
	}
	if n.kind != KindFile {
		return fmt.Errorf("change content of %q: %w", t.path(n), ErrNotAFile)
	}
	n.content = c
	n.timestamp = timestamp
	return nil
}

// Rename gives the entry at path a new name within the same directory.
func (t *Tree) Rename(path, newName string) error {
	n, err := t.lookup(path)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return t.rename(n, newName)
}

// RenameAt renames the entry addressed by p.
func (t *Tree) RenameAt(p IDPath, newName string) error {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return t.rename(n, newName)
}

func (t *Tree) rename(n *node, newName string) error {
	if n.id == RootID {
		return fmt.Errorf("rename: %w", ErrRootEntry)
	}
	if !validName(newName) {
		return fmt.Errorf("rename %q to %q: %w", t.path(n), newName, ErrInvalidName)
	}
	if s := t.child(t.nodes[n.parent], newName); s != nil && s != n {
		return fmt.Errorf("rename %q to %q: %w", t.path(n), newName, ErrDuplicateName)
	}
	n.name = newName
	return nil
}

// Move detaches the entry at path and attaches it, with its whole subtree,
// to the directory at newParentPath. The empty path is the root. Moving an
// entry into its current parent does nothing.
func (t *Tree) Move(path, newParentPath string) error {
	n, err := t.lookup(path)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	dst, last, err := t.find(newParentPath)
	switch {
	case errors.Is(err, errDescendIntoFile):
		return fmt.Errorf("move %q to %q: %q: %w", path, newParentPath, t.path(last), ErrNotADirectory)
	case err != nil:
		return fmt.Errorf("move %q to %q: %w", path, newParentPath, ErrEntryNotFound)
	case dst.kind != KindDirectory:
		return fmt.Errorf("move %q to %q: %w", path, newParentPath, ErrNotADirectory)
	}
	return t.move(n, dst, -1)
}

// MoveAt moves the entry addressed by p into the directory addressed by
// parent at position index among its new siblings. A negative index
// appends.
func (t *Tree) MoveAt(p, parent IDPath, index int) error {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	dst, err := t.resolveIDPath(parent)
	if err != nil {
		return fmt.Errorf("move %q: destination: %w", t.path(n), err)
	}
	if dst.kind != KindDirectory {
		return fmt.Errorf("move %q to %q: %w", t.path(n), t.path(dst), ErrNotADirectory)
	}
	return t.move(n, dst, index)
}

func (t *Tree) move(n, dst *node, index int) error {
	if n.id == RootID {
		return fmt.Errorf("move: %w", ErrRootEntry)
	}
	if t.isAncestorOrSelf(n.id, dst) {
		return fmt.Errorf("move %q to %q: %w", t.path(n), t.path(dst), ErrCyclicMove)
	}
	if dst.id == n.parent {
		if index >= 0 {
			i := indexOf(dst.children, n.id)
			dst.children = insertAt(slices.Delete(dst.children, i, i+1), index, n.id)
		}
		return nil
	}
	if t.child(dst, n.name) != nil {
		return fmt.Errorf("move %q to %q: %w", t.path(n), t.path(dst), ErrDuplicateName)
	}

	old := t.nodes[n.parent]
	i := indexOf(old.children, n.id)
	old.children = slices.Delete(old.children, i, i+1)
	dst.children = insertAt(dst.children, index, n.id)
	n.parent = dst.id
	return nil
}

// Delete removes the entry at path and, for a directory, everything below it.
func (t *Tree) Delete(path string) error {
	n, err := t.lookup(path)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return t.delete(n)
}

// DeleteAt removes the entry addressed by p and its subtree.
func (t *Tree) DeleteAt(p IDPath) error {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return t.delete(n)
}

func (t *Tree) delete(n *node) error {
	if n.id == RootID {
		return fmt.Errorf("delete: %w", ErrRootEntry)
	}
	parent := t.nodes[n.parent]
	i := indexOf(parent.children, n.id)
	parent.children = slices.Delete(parent.children, i, i+1)
	t.forget(n)
	return nil
}

// forget drops n and its descendants from the arena.
func (t *Tree) forget(n *node) {
	for _, id := range n.children {
		t.forget(t.nodes[id])
	}
	delete(t.nodes, n.id)
}

// insertAt inserts id at index, appending when index is negative or past
// the end.
func insertAt(ids []ID, index int, id ID) []ID {
	if index < 0 || index > len(ids) {
		return append(ids, id)
	}
	return slices.Insert(ids, index, id)
}
