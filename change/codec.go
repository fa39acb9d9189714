package change

import (
	"fmt"
	"slices"

	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

// maxSubtreeDepth bounds the nesting accepted when decoding a deleted
// subtree.
const maxSubtreeDepth = 4096

// Encode writes c as one record. Captured revert state is written as well,
// so an applied change round-trips with its history intact.
func Encode(w *stream.Writer, c Change) error {
	w.WriteUint8(byte(c.Kind()))
	w.WriteString(c.Path())
	writeIDPath(w, c.AffectedIDPath())

	switch c := c.(type) {
	case *CreateFile:
		w.WriteLong(int64(c.id))
		w.WriteContent(c.content)
		w.WriteLong(c.timestamp)
	case *CreateDirectory:
		w.WriteLong(int64(c.id))
		w.WriteLong(c.timestamp)
	case *ChangeFileContent:
		w.WriteContent(c.newContent)
		w.WriteContent(c.oldContent)
		w.WriteLong(c.newTimestamp)
		w.WriteLong(c.oldTimestamp)
	case *Rename:
		w.WriteString(c.newName)
		w.WriteString(c.oldName)
	case *Move:
		w.WriteString(c.newParentPath)
		writeIDPath(w, c.oldParent)
		w.WriteLong(int64(c.oldIndex))
	case *Delete:
		writeIDPath(w, c.affected.Parent())
		w.WriteLong(int64(c.index))
		w.WriteBool(c.hasRemoved)
		if c.hasRemoved {
			writeSubtree(w, c.removed)
		}
	default:
		return fmt.Errorf("encode change: unsupported type %T", c)
	}
	return w.Err()
}

// Decode reads one record. The returned change is unapplied; any captured
// revert state in the record is exposed through its accessors but is
// recomputed when the change is applied.
func Decode(r *stream.Reader) (Change, error) {
	kind := Kind(r.ReadUint8())
	path := r.ReadString()
	affected := readIDPath(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	b := base{path: path, affected: affected}

	var c Change
	switch kind {
	case KindCreateFile:
		v := &CreateFile{base: b}
		v.id = tree.ID(r.ReadLong())
		v.content = r.ReadContent()
		v.timestamp = r.ReadLong()
		c = v
	case KindCreateDirectory:
		v := &CreateDirectory{base: b}
		v.id = tree.ID(r.ReadLong())
		v.timestamp = r.ReadLong()
		c = v
	case KindChangeFileContent:
		v := &ChangeFileContent{base: b}
		v.newContent = r.ReadContent()
		v.oldContent = r.ReadContent()
		v.newTimestamp = r.ReadLong()
		v.oldTimestamp = r.ReadLong()
		c = v
	case KindRename:
		v := &Rename{base: b}
		v.newName = r.ReadString()
		v.oldName = r.ReadString()
		c = v
	case KindMove:
		v := &Move{base: b}
		v.newParentPath = r.ReadString()
		v.oldParent = readIDPath(r)
		v.oldIndex = readIndex(r)
		c = v
	case KindDelete:
		v := &Delete{base: b}
		if parent := readIDPath(r); r.Err() == nil && !slices.Equal(parent, affected.Parent()) {
			r.Fail("delete parent %v does not match affected path %v", parent, affected)
		}
		v.index = readIndex(r)
		if v.hasRemoved = r.ReadBool(); v.hasRemoved {
			v.removed = readSubtree(r, 0)
		}
		c = v
	default:
		r.Fail("unknown change tag %d", uint8(kind))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func writeIDPath(w *stream.Writer, p tree.IDPath) {
	w.WriteUvarint(uint64(len(p)))
	for _, id := range p {
		w.WriteLong(int64(id))
	}
}

func readIDPath(r *stream.Reader) tree.IDPath {
	n := r.ReadCount()
	if n == 0 || r.Err() != nil {
		return nil
	}
	p := make(tree.IDPath, 0, min(n, 64))
	for range n {
		id := r.ReadLong()
		if r.Err() != nil {
			return nil
		}
		p = append(p, tree.ID(id))
	}
	return p
}

func readIndex(r *stream.Reader) int {
	v := r.ReadLong()
	if v < -1 || v > int64(stream.DefaultMaxLength) {
		r.Fail("index %d out of range", v)
		return -1
	}
	return int(v)
}

func writeSubtree(w *stream.Writer, s tree.Subtree) {
	w.WriteUint8(byte(s.Kind))
	w.WriteLong(int64(s.ID))
	w.WriteString(s.Name)
	w.WriteLong(s.Timestamp)
	if s.Kind == tree.KindFile {
		w.WriteContent(s.Content)
		return
	}
	w.WriteUvarint(uint64(len(s.Children)))
	for _, c := range s.Children {
		writeSubtree(w, c)
	}
}

func readSubtree(r *stream.Reader, depth int) tree.Subtree {
	if depth > maxSubtreeDepth {
		r.Fail("subtree nested deeper than %d", maxSubtreeDepth)
		return tree.Subtree{}
	}
	s := tree.Subtree{Kind: tree.Kind(r.ReadUint8())}
	s.ID = tree.ID(r.ReadLong())
	s.Name = r.ReadString()
	s.Timestamp = r.ReadLong()
	if r.Err() != nil {
		return tree.Subtree{}
	}
	switch s.Kind {
	case tree.KindFile:
		s.Content = r.ReadContent()
	case tree.KindDirectory:
		n := r.ReadCount()
		for range n {
			c := readSubtree(r, depth+1)
			if r.Err() != nil {
				return tree.Subtree{}
			}
			s.Children = append(s.Children, c)
		}
	default:
		r.Fail("unknown entry kind %d", uint8(s.Kind))
	}
	return s
}
