package tree

import (
	"fmt"

	"github.com/meigma/localvcs/content"
)

// Subtree is a detached deep copy of an entry and its descendants.
type Subtree struct {
	ID        ID
	Kind      Kind
	Name      string
	Timestamp int64
	Content   content.Content
	Children  []Subtree
}

// Count returns the number of entries in s, including s itself.
func (s Subtree) Count() int {
	n := 1
	for _, c := range s.Children {
		n += c.Count()
	}
	return n
}

// Subtree returns a deep copy of the entry addressed by p.
func (t *Tree) Subtree(p IDPath) (Subtree, error) {
	n, err := t.resolveIDPath(p)
	if err != nil {
		return Subtree{}, fmt.Errorf("subtree: %w", err)
	}
	if n.id == RootID {
		return Subtree{}, fmt.Errorf("subtree: %w", ErrRootEntry)
	}
	return t.subtree(n), nil
}

func (t *Tree) subtree(n *node) Subtree {
	s := Subtree{
		ID:        n.id,
		Kind:      n.kind,
		Name:      n.name,
		Timestamp: n.timestamp,
		Content:   n.content,
	}
	for _, id := range n.children {
		s.Children = append(s.Children, t.subtree(t.nodes[id]))
	}
	return s
}

// Insert attaches a copy of s, keeping all of its ids, under the directory
// addressed by parent at position index. A negative index appends.
//
// Every id in s must be free and every name valid and unique among its
// siblings; Insert checks the whole subtree before changing anything.
func (t *Tree) Insert(parent IDPath, index int, s Subtree) error {
	dst, err := t.resolveIDPath(parent)
	if err != nil {
		return fmt.Errorf("insert %q: %w", s.Name, err)
	}
	if dst.kind != KindDirectory {
		return fmt.Errorf("insert %q into %q: %w", s.Name, t.path(dst), ErrNotADirectory)
	}
	if t.child(dst, s.Name) != nil {
		return fmt.Errorf("insert %q into %q: %w", s.Name, t.path(dst), ErrDuplicateName)
	}
	if err := t.checkSubtree(s, make(map[ID]struct{})); err != nil {
		return fmt.Errorf("insert %q: %w", s.Name, err)
	}

	t.attach(s, dst.id)
	dst.children = insertAt(dst.children, index, s.ID)
	return nil
}

func (t *Tree) checkSubtree(s Subtree, seen map[ID]struct{}) error {
	if !validName(s.Name) {
		return fmt.Errorf("name %q: %w", s.Name, ErrInvalidName)
	}
	if s.Kind != KindFile && s.Kind != KindDirectory {
		return fmt.Errorf("entry %d has unknown kind %d", s.ID, s.Kind)
	}
	if s.Kind == KindFile && len(s.Children) > 0 {
		return fmt.Errorf("file %q has children: %w", s.Name, ErrNotADirectory)
	}
	if err := t.checkID(s.ID); err != nil {
		return err
	}
	if _, dup := seen[s.ID]; dup {
		return fmt.Errorf("id %d: %w", s.ID, ErrDuplicateID)
	}
	seen[s.ID] = struct{}{}

	for i, c := range s.Children {
		for _, prev := range s.Children[:i] {
			if t.mode.Equal(prev.Name, c.Name) {
				return fmt.Errorf("name %q in %q: %w", c.Name, s.Name, ErrDuplicateName)
			}
		}
		if err := t.checkSubtree(c, seen); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) attach(s Subtree, parent ID) {
	n := &node{
		id:        s.ID,
		kind:      s.Kind,
		name:      s.Name,
		timestamp: s.Timestamp,
		parent:    parent,
	}
	if s.Kind == KindFile {
		n.content = s.Content
	}
	t.nodes[s.ID] = n
	t.nextID = max(t.nextID, s.ID+1)
	for _, c := range s.Children {
		t.attach(c, s.ID)
		n.children = append(n.children, c.ID)
	}
}
