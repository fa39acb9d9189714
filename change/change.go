// Package change implements the invertible commands that mutate a tree.
//
// Every change is applied at most once and reverted at most once, in that
// order. Applying resolves the change's path against the live tree and
// records the identity path of the affected entry together with whatever
// state the revert will need; reverting locates the entry by that identity
// path rather than by text, so intervening renames of ancestors do not
// matter.
//
// The set of changes is closed: the concrete types in this package are the
// only implementations of [Change].
package change

import (
	"errors"
	"fmt"

	"github.com/meigma/localvcs/tree"
)

// ErrInvalidState is returned when a change is applied twice, reverted
// before it was applied, or reverted twice.
var ErrInvalidState = errors.New("localvcs: change applied or reverted out of order")

// Kind identifies a change variant. The values are the record tags of the
// binary log format; changing them breaks existing logs.
type Kind uint8

const (
	KindCreateFile        Kind = 1
	KindCreateDirectory   Kind = 2
	KindChangeFileContent Kind = 3
	KindRename            Kind = 4
	KindMove              Kind = 5
	KindDelete            Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindCreateFile:
		return "create-file"
	case KindCreateDirectory:
		return "create-directory"
	case KindChangeFileContent:
		return "change-content"
	case KindRename:
		return "rename"
	case KindMove:
		return "move"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// State tracks where a change is in its apply/revert lifecycle.
type State uint8

const (
	Unapplied State = iota
	Applied
	Reverted
)

func (s State) String() string {
	switch s {
	case Unapplied:
		return "unapplied"
	case Applied:
		return "applied"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Change is an invertible tree mutation.
type Change interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Path returns the path the change was constructed with.
	Path() string

	// AffectedIDPath returns the identity path of the affected entry as
	// recorded by ApplyTo or read from a log record. It is nil for a fresh
	// change.
	AffectedIDPath() tree.IDPath

	// State returns the lifecycle state.
	State() State

	// ApplyTo performs the mutation on t and records what RevertOn needs.
	// On error t is unchanged and the change stays unapplied.
	ApplyTo(t *tree.Tree) error

	// RevertOn undoes a previous ApplyTo on the same tree. Later changes
	// must have been reverted first.
	RevertOn(t *tree.Tree) error

	sealed()
}

// base holds the state shared by every variant.
type base struct {
	path     string
	affected tree.IDPath
	state    State
}

func (b *base) Path() string {
	return b.path
}

func (b *base) AffectedIDPath() tree.IDPath {
	return b.affected.Clone()
}

func (b *base) State() State {
	return b.state
}

func (b *base) sealed() {}

func (b *base) checkApply(k Kind) error {
	if b.state != Unapplied {
		return fmt.Errorf("apply %s %q: already %s: %w", k, b.path, b.state, ErrInvalidState)
	}
	return nil
}

func (b *base) checkRevert(k Kind) error {
	if b.state != Applied {
		return fmt.Errorf("revert %s %q: %s: %w", k, b.path, b.state, ErrInvalidState)
	}
	return nil
}

// applied records the affected entry and marks the change applied.
func (b *base) applied(p tree.IDPath) {
	b.affected = p
	b.state = Applied
}
