package localvcs

import (
	"errors"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/changelog"
	"github.com/meigma/localvcs/snapshot"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/stream"
	"github.com/meigma/localvcs/tree"
)

// Repository errors.
var (
	// ErrClosed is returned by operations on a closed repository.
	ErrClosed = errors.New("localvcs: repository closed")

	// ErrCorrupt is returned when the repository's manifest, checkpoint or
	// change log cannot be read back into a consistent tree.
	ErrCorrupt = errors.New("localvcs: repository corrupt")

	// ErrCaseModeMismatch is returned when a repository is opened with a
	// case mode other than the one it was created with.
	ErrCaseModeMismatch = errors.New("localvcs: case mode mismatch")
)

// Errors re-exported from tree.
var (
	// ErrEntryNotFound is returned when a path or id path does not resolve.
	ErrEntryNotFound = tree.ErrEntryNotFound

	// ErrDuplicateName is returned when a directory would hold two entries
	// with the same name.
	ErrDuplicateName = tree.ErrDuplicateName

	// ErrNotADirectory is returned when a directory is required.
	ErrNotADirectory = tree.ErrNotADirectory

	// ErrNotAFile is returned when a file is required.
	ErrNotAFile = tree.ErrNotAFile

	// ErrCyclicMove is returned when a directory would move into itself.
	ErrCyclicMove = tree.ErrCyclicMove

	// ErrInvalidName is returned for empty names, names holding a separator
	// and names that are not valid UTF-8.
	ErrInvalidName = tree.ErrInvalidName

	// ErrRootEntry is returned when an operation cannot target the root.
	ErrRootEntry = tree.ErrRootEntry
)

// Errors re-exported from the change, log and storage packages.
var (
	// ErrInvalidState is returned when a change is applied or reverted out
	// of order.
	ErrInvalidState = change.ErrInvalidState

	// ErrNothingToRevert is returned by Revert when no change is left.
	ErrNothingToRevert = changelog.ErrEmpty

	// ErrSerialization is returned for malformed change log data.
	ErrSerialization = stream.ErrSerialization

	// ErrInvalidSnapshot is returned for malformed checkpoints.
	ErrInvalidSnapshot = snapshot.ErrInvalid

	// ErrNotFound is returned when a payload is missing from the store.
	ErrNotFound = store.ErrNotFound

	// ErrDigestMismatch is returned when a payload does not match its digest.
	ErrDigestMismatch = store.ErrDigestMismatch
)
