// Package changelog keeps the ordered history of applied changes.
//
// [Log] is the in-memory history used to undo changes in strict reverse
// order. [File] is its durable form: an append-only file of checksummed
// records that is replayed to rebuild a tree.
package changelog

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

// ErrEmpty is returned when reverting from an empty log.
var ErrEmpty = errors.New("localvcs: change log is empty")

// Log is an ordered sequence of applied changes. It is not safe for
// concurrent use.
type Log struct {
	changes []change.Change
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Append records c, which must already be applied.
func (l *Log) Append(c change.Change) error {
	if c.State() != change.Applied {
		return fmt.Errorf("append %s %q: %s: %w", c.Kind(), c.Path(), c.State(), change.ErrInvalidState)
	}
	l.changes = append(l.changes, c)
	return nil
}

// All iterates over the changes in the order they were applied.
func (l *Log) All() iter.Seq[change.Change] {
	return slices.Values(l.changes)
}

// Len returns the number of changes in the log.
func (l *Log) Len() int {
	return len(l.changes)
}

// At returns the i-th change, oldest first.
func (l *Log) At(i int) change.Change {
	return l.changes[i]
}

// Last returns the most recent change.
func (l *Log) Last() (change.Change, bool) {
	if len(l.changes) == 0 {
		return nil, false
	}
	return l.changes[len(l.changes)-1], true
}

// RevertLast reverts the most recent change on t and removes it from the
// log. If the revert fails the change stays in the log.
func (l *Log) RevertLast(t *tree.Tree) (change.Change, error) {
	c, ok := l.Last()
	if !ok {
		return nil, ErrEmpty
	}
	if err := c.RevertOn(t); err != nil {
		return nil, err
	}
	l.changes[len(l.changes)-1] = nil
	l.changes = l.changes[:len(l.changes)-1]
	return c, nil
}

// Reset drops every change without reverting it.
func (l *Log) Reset() {
	clear(l.changes)
	l.changes = l.changes[:0]
}

// Encode writes every change in order.
func (l *Log) Encode(w *stream.Writer) error {
	for _, c := range l.changes {
		if err := change.Encode(w, c); err != nil {
			return err
		}
	}
	return w.Err()
}

// Decode reads changes until r is exhausted. The returned changes are
// unapplied; pass them to Replay.
func Decode(r *stream.Reader) ([]change.Change, error) {
	var out []change.Change
	for r.More() {
		c, err := change.Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Replay applies changes to t in order and returns the resulting log. It
// stops at the first change that fails to apply, returning the log of the
// changes applied so far together with the error.
func Replay(t *tree.Tree, changes []change.Change) (*Log, error) {
	l := New()
	for i, c := range changes {
		if err := c.ApplyTo(t); err != nil {
			return l, fmt.Errorf("replay change %d: %w", i, err)
		}
		l.changes = append(l.changes, c)
	}
	return l, nil
}
