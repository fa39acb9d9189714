package change

import (
	"fmt"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/tree"
)

// CreateFile creates a file.
type CreateFile struct {
	base
	id        tree.ID
	content   content.Content
	timestamp int64
}

// NewCreateFile returns a change creating a file at path. Pass tree.NoID to
// let the tree assign the id; ApplyTo records the assigned value.
func NewCreateFile(id tree.ID, path string, c content.Content, timestamp int64) *CreateFile {
	return &CreateFile{base: base{path: path}, id: id, content: c, timestamp: timestamp}
}

func (c *CreateFile) Kind() Kind { return KindCreateFile }

// ID returns the id of the created file, or tree.NoID if it is not known yet.
func (c *CreateFile) ID() tree.ID { return c.id }

// Content returns the initial file body.
func (c *CreateFile) Content() content.Content { return c.content }

// Timestamp returns the initial file timestamp.
func (c *CreateFile) Timestamp() int64 { return c.timestamp }

func (c *CreateFile) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	id, err := t.CreateFile(c.id, c.path, c.content, c.timestamp)
	if err != nil {
		return err
	}
	p, _ := t.IDPathByID(id)
	c.id = id
	c.applied(p)
	return nil
}

func (c *CreateFile) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.DeleteAt(c.affected); err != nil {
		return fmt.Errorf("revert create %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *CreateFile) String() string {
	return fmt.Sprintf("create file %s (%d bytes)", c.path, c.content.Len())
}

// CreateDirectory creates an empty directory.
type CreateDirectory struct {
	base
	id        tree.ID
	timestamp int64
}

// NewCreateDirectory returns a change creating a directory at path.
func NewCreateDirectory(id tree.ID, path string, timestamp int64) *CreateDirectory {
	return &CreateDirectory{base: base{path: path}, id: id, timestamp: timestamp}
}

func (c *CreateDirectory) Kind() Kind { return KindCreateDirectory }

// ID returns the id of the created directory, or tree.NoID if it is not
// known yet.
func (c *CreateDirectory) ID() tree.ID { return c.id }

// Timestamp returns the directory timestamp.
func (c *CreateDirectory) Timestamp() int64 { return c.timestamp }

func (c *CreateDirectory) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	id, err := t.CreateDirectory(c.id, c.path, c.timestamp)
	if err != nil {
		return err
	}
	p, _ := t.IDPathByID(id)
	c.id = id
	c.applied(p)
	return nil
}

func (c *CreateDirectory) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.DeleteAt(c.affected); err != nil {
		return fmt.Errorf("revert create %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *CreateDirectory) String() string {
	return "create directory " + c.path
}

// ChangeFileContent replaces a file body and timestamp.
type ChangeFileContent struct {
	base
	newContent   content.Content
	oldContent   content.Content
	newTimestamp int64
	oldTimestamp int64
}

// NewChangeFileContent returns a change replacing the body of the file at
// path.
func NewChangeFileContent(path string, c content.Content, timestamp int64) *ChangeFileContent {
	return &ChangeFileContent{
		base:         base{path: path},
		newContent:   c,
		newTimestamp: timestamp,
		oldTimestamp: tree.NoTimestamp,
	}
}

func (c *ChangeFileContent) Kind() Kind { return KindChangeFileContent }

// NewContent returns the body written by the change.
func (c *ChangeFileContent) NewContent() content.Content { return c.newContent }

// OldContent returns the body the change replaced. Absent until applied.
func (c *ChangeFileContent) OldContent() content.Content { return c.oldContent }

// NewTimestamp returns the timestamp written by the change.
func (c *ChangeFileContent) NewTimestamp() int64 { return c.newTimestamp }

// OldTimestamp returns the timestamp the change replaced.
func (c *ChangeFileContent) OldTimestamp() int64 { return c.oldTimestamp }

func (c *ChangeFileContent) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	p, err := t.IDPathOf(c.path)
	if err != nil {
		return fmt.Errorf("change content: %w", err)
	}
	e, err := t.EntryAt(p)
	if err != nil {
		return err
	}
	if err := t.ChangeFileContent(p, c.newContent, c.newTimestamp); err != nil {
		return err
	}
	c.oldContent = e.Content
	c.oldTimestamp = e.Timestamp
	c.applied(p)
	return nil
}

func (c *ChangeFileContent) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.ChangeFileContent(c.affected, c.oldContent, c.oldTimestamp); err != nil {
		return fmt.Errorf("revert change content %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *ChangeFileContent) String() string {
	return fmt.Sprintf("change content %s (%d bytes)", c.path, c.newContent.Len())
}

// Rename gives an entry a new name in the same directory.
type Rename struct {
	base
	newName string
	oldName string
}

// NewRename returns a change renaming the entry at path to newName.
func NewRename(path, newName string) *Rename {
	return &Rename{base: base{path: path}, newName: newName}
}

func (c *Rename) Kind() Kind { return KindRename }

// NewName returns the name given by the change.
func (c *Rename) NewName() string { return c.newName }

// OldName returns the name the entry had before. Empty until applied.
func (c *Rename) OldName() string { return c.oldName }

func (c *Rename) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	p, err := t.IDPathOf(c.path)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	e, err := t.EntryAt(p)
	if err != nil {
		return err
	}
	if err := t.RenameAt(p, c.newName); err != nil {
		return err
	}
	c.oldName = e.Name
	c.applied(p)
	return nil
}

func (c *Rename) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.RenameAt(c.affected, c.oldName); err != nil {
		return fmt.Errorf("revert rename %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *Rename) String() string {
	return fmt.Sprintf("rename %s to %s", c.path, c.newName)
}

// Move moves an entry and its subtree to another directory.
type Move struct {
	base
	newParentPath string
	oldParent     tree.IDPath
	oldIndex      int
}

// NewMove returns a change moving the entry at path into the directory at
// newParentPath. The empty path is the root.
func NewMove(path, newParentPath string) *Move {
	return &Move{base: base{path: path}, newParentPath: newParentPath, oldIndex: -1}
}

func (c *Move) Kind() Kind { return KindMove }

// NewParentPath returns the destination directory path.
func (c *Move) NewParentPath() string { return c.newParentPath }

// OldParent returns the identity path of the former parent directory.
func (c *Move) OldParent() tree.IDPath { return c.oldParent.Clone() }

// OldIndex returns the former position among siblings, or -1.
func (c *Move) OldIndex() int { return c.oldIndex }

// ApplyTo moves the entry. The recorded affected id path is the entry's
// location after the move.
func (c *Move) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	p, err := t.IDPathOf(c.path)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	index, err := t.IndexOf(p)
	if err != nil {
		return err
	}
	if err := t.Move(c.path, c.newParentPath); err != nil {
		return err
	}
	dst, err := t.IDPathOf(c.newParentPath)
	if err != nil {
		return err
	}
	c.oldParent = p.Parent()
	c.oldIndex = index
	c.applied(append(dst.Clone(), p.ID()))
	return nil
}

func (c *Move) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.MoveAt(c.affected, c.oldParent, c.oldIndex); err != nil {
		return fmt.Errorf("revert move %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *Move) String() string {
	dst := c.newParentPath
	if dst == "" {
		dst = paths.Separator
	}
	return fmt.Sprintf("move %s to %s", c.path, dst)
}

// Delete removes an entry and its subtree.
type Delete struct {
	base
	removed    tree.Subtree
	hasRemoved bool
	index      int
}

// NewDelete returns a change deleting the entry at path.
func NewDelete(path string) *Delete {
	return &Delete{base: base{path: path}, index: -1}
}

func (c *Delete) Kind() Kind { return KindDelete }

// Removed returns the deleted subtree as recorded by ApplyTo.
func (c *Delete) Removed() (tree.Subtree, bool) { return c.removed, c.hasRemoved }

// Index returns the former position among siblings, or -1.
func (c *Delete) Index() int { return c.index }

func (c *Delete) ApplyTo(t *tree.Tree) error {
	if err := c.checkApply(c.Kind()); err != nil {
		return err
	}
	p, err := t.IDPathOf(c.path)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	removed, err := t.Subtree(p)
	if err != nil {
		return err
	}
	index, err := t.IndexOf(p)
	if err != nil {
		return err
	}
	if err := t.DeleteAt(p); err != nil {
		return err
	}
	c.removed = removed
	c.hasRemoved = true
	c.index = index
	c.applied(p)
	return nil
}

func (c *Delete) RevertOn(t *tree.Tree) error {
	if err := c.checkRevert(c.Kind()); err != nil {
		return err
	}
	if err := t.Insert(c.affected.Parent(), c.index, c.removed); err != nil {
		return fmt.Errorf("revert delete %q: %w", c.path, err)
	}
	c.state = Reverted
	return nil
}

func (c *Delete) String() string {
	return "delete " + c.path
}
