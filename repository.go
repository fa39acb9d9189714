package localvcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/changelog"
	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/snapshot"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/store/disk"
	"github.com/meigma/localvcs/store/memory"
	"github.com/meigma/localvcs/tree"
)

// Repository is a versioned tree with undo history.
//
// Every mutation goes through a change that is applied to the tree and
// appended to the history. Changes can be reverted, most recent first.
// Durability is explicit: changes reach disk on Flush, Checkpoint or Close.
//
// A Repository is safe for concurrent use. Mutations are serialized;
// readers run concurrently with each other.
type Repository struct {
	mu sync.RWMutex

	dir      string
	tree     *tree.Tree
	changes  *changelog.Log
	file     *changelog.File
	store    store.Store
	disk     *disk.Store
	manifest manifest
	flushed  int
	closed   bool

	// overhang is set when the log file may hold records past flushed
	// that a failed Revert could not drop.
	overhang bool

	logger            *slog.Logger
	caseMode          paths.CaseMode
	caseModeSet       bool
	compression       disk.Compression
	externalStore     bool
	verifyConcurrency int
}

func newRepository(opts []Option) *Repository {
	r := &Repository{
		compression:       disk.CompressionZstd,
		verifyConcurrency: DefaultVerifyConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewInMemory returns a repository that is never persisted. File bodies
// are kept in an in-memory store unless WithStore is given.
func NewInMemory(opts ...Option) *Repository {
	r := newRepository(opts)
	if r.store == nil {
		r.store = memory.New()
	}
	r.tree = tree.New(tree.WithCaseMode(r.caseMode))
	r.changes = changelog.New()
	return r
}

// Open opens the repository in dir, creating it if needed. The tree is
// rebuilt from the last checkpoint and the changes logged since.
func Open(dir string, opts ...Option) (*Repository, error) {
	r := newRepository(opts)
	r.dir = dir

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	if r.store == nil {
		s, err := disk.New(filepath.Join(dir, objectsDirName),
			disk.WithCompression(r.compression),
			disk.WithLogger(r.log()))
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		r.store = s
		r.disk = s
	}

	if err := r.load(); err != nil {
		if r.disk != nil {
			_ = r.disk.Close()
		}
		return nil, err
	}

	r.log().Info("opened repository",
		"dir", dir,
		"case_mode", r.caseMode,
		"entries", r.tree.Len(),
		"changes", r.changes.Len(),
		"generation", r.manifest.Generation)
	return r, nil
}

func (r *Repository) load() error {
	m, ok, err := readManifest(r.dir)
	if err != nil {
		return err
	}
	if !ok {
		m = manifest{
			Version:  manifestVersion,
			CaseMode: r.caseMode.String(),
			NextID:   int64(tree.RootID + 1),
		}
		if err := writeManifest(r.dir, m); err != nil {
			return err
		}
		r.log().Debug("created repository", "dir", r.dir)
	}

	mode, valid := paths.ParseCaseMode(m.CaseMode)
	if !valid {
		return fmt.Errorf("%w: unknown case mode %q", ErrCorrupt, m.CaseMode)
	}
	if r.caseModeSet && mode != r.caseMode {
		return fmt.Errorf("%w: repository is case %s, requested %s", ErrCaseModeMismatch, mode, r.caseMode)
	}
	r.caseMode = mode

	t, err := r.loadCheckpoint(m, mode)
	if err != nil {
		return err
	}
	t.ReserveIDs(tree.ID(m.NextID))

	f, err := changelog.OpenFile(filepath.Join(r.dir, m.logName()),
		changelog.WithStore(r.store),
		changelog.WithLogger(r.log()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	changes, err := f.Changes()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	history, err := changelog.Replay(t, changes)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	r.tree = t
	r.changes = history
	r.file = f
	r.flushed = f.Len()
	r.manifest = m
	return nil
}

func (r *Repository) loadCheckpoint(m manifest, mode paths.CaseMode) (*tree.Tree, error) {
	if m.Checkpoint == "" {
		return tree.New(tree.WithCaseMode(mode)), nil
	}
	d, err := digest.Parse(m.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint reference: %w", ErrCorrupt, err)
	}
	data, err := store.GetContent(r.store, d)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrCorrupt, err)
	}
	t, err := snapshot.Decode(data.Bytes(), snapshot.WithStore(r.store))
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrCorrupt, err)
	}
	if t.CaseMode() != mode {
		return nil, fmt.Errorf("%w: checkpoint is case %s, manifest says %s", ErrCorrupt, t.CaseMode(), mode)
	}
	return t, nil
}

func (r *Repository) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Dir returns the repository directory, or "" for an in-memory repository.
func (r *Repository) Dir() string {
	return r.dir
}

// CaseMode returns how entry names are compared.
func (r *Repository) CaseMode() paths.CaseMode {
	return r.caseMode
}

// Apply applies c to the tree and records it in the history. On error the
// tree is unchanged.
func (r *Repository) Apply(c change.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := c.ApplyTo(r.tree); err != nil {
		return err
	}
	if err := r.changes.Append(c); err != nil {
		return err
	}
	r.log().Debug("applied change", "kind", c.Kind(), "path", c.Path())
	return nil
}

// CreateFile creates a file and returns its id.
func (r *Repository) CreateFile(path string, c content.Content, timestamp int64) (tree.ID, error) {
	ch := change.NewCreateFile(tree.NoID, path, c, timestamp)
	if err := r.Apply(ch); err != nil {
		return tree.NoID, err
	}
	return ch.ID(), nil
}

// CreateDirectory creates a directory and returns its id.
func (r *Repository) CreateDirectory(path string, timestamp int64) (tree.ID, error) {
	ch := change.NewCreateDirectory(tree.NoID, path, timestamp)
	if err := r.Apply(ch); err != nil {
		return tree.NoID, err
	}
	return ch.ID(), nil
}

// ChangeFileContent replaces a file body.
func (r *Repository) ChangeFileContent(path string, c content.Content, timestamp int64) error {
	return r.Apply(change.NewChangeFileContent(path, c, timestamp))
}

// Rename renames an entry within its directory.
func (r *Repository) Rename(path, newName string) error {
	return r.Apply(change.NewRename(path, newName))
}

// Move moves an entry into another directory. The empty path is the root.
func (r *Repository) Move(path, newParentPath string) error {
	return r.Apply(change.NewMove(path, newParentPath))
}

// Delete removes an entry and everything below it.
func (r *Repository) Delete(path string) error {
	return r.Apply(change.NewDelete(path))
}

// Revert undoes the most recent change and returns it. Reverting a change
// that was already flushed also removes it from the log file. It returns
// ErrNothingToRevert when the history since the last checkpoint is empty.
func (r *Repository) Revert() (change.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	c, err := r.changes.RevertLast(r.tree)
	if err != nil {
		return nil, err
	}
	if n := r.changes.Len(); r.file != nil && n < r.flushed {
		// The next flush retries the truncation.
		r.flushed = n
		if err := r.file.Truncate(n); err != nil {
			r.overhang = true
			return c, err
		}
		if err := r.file.Sync(); err != nil {
			r.overhang = true
			return c, err
		}
	}
	r.log().Debug("reverted change", "kind", c.Kind(), "path", c.Path())
	return c, nil
}

// Flush writes pending changes to the log file and syncs it. It is a
// no-op for an in-memory repository.
func (r *Repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	return r.flush()
}

func (r *Repository) flush() error {
	if r.file == nil {
		return nil
	}
	n := r.changes.Len()
	if r.flushed == n && !r.overhang {
		return nil
	}
	if r.overhang {
		if err := r.file.Truncate(r.flushed); err != nil {
			return err
		}
		r.overhang = false
	}
	for i := r.flushed; i < n; i++ {
		if err := r.file.Append(r.changes.At(i)); err != nil {
			return err
		}
		r.flushed = i + 1
	}
	if err := r.file.Sync(); err != nil {
		return err
	}
	r.log().Debug("flushed changes", "records", r.file.Len(), "bytes", r.file.Size())
	return nil
}

// Pending returns the number of changes not yet written to disk.
func (r *Repository) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.file == nil {
		return 0
	}
	return r.changes.Len() - r.flushed
}

// Checkpoint saves the whole tree and starts a new, empty history. Changes
// made before a checkpoint can no longer be reverted.
//
// The new checkpoint and log file are written before the manifest switches
// to them, so a crash leaves either the old or the new state.
func (r *Repository) Checkpoint() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.file == nil {
		r.changes.Reset()
		return nil
	}

	data, err := snapshot.Encode(r.tree, snapshot.WithStore(r.store))
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	d, err := r.store.Put(data)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	next := r.manifest
	next.Checkpoint = d.String()
	next.NextID = int64(r.tree.NextID())
	next.Generation++

	// A leftover file from an interrupted checkpoint is stale.
	logPath := filepath.Join(r.dir, next.logName())
	if err := os.Remove(logPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checkpoint: %w", err)
	}
	f, err := changelog.OpenFile(logPath,
		changelog.WithStore(r.store),
		changelog.WithLogger(r.log()))
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := writeManifest(r.dir, next); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Path())
		return fmt.Errorf("checkpoint: %w", err)
	}

	old, prev := r.file, r.manifest
	r.file = f
	r.manifest = next
	r.flushed = 0
	r.overhang = false
	r.changes.Reset()

	if err := old.Close(); err != nil {
		r.log().Warn("failed to close old change log", "path", old.Path(), "error", err)
	}
	if err := os.Remove(old.Path()); err != nil {
		r.log().Warn("failed to remove old change log", "path", old.Path(), "error", err)
	}
	if prev.Checkpoint != "" && prev.Checkpoint != next.Checkpoint {
		if err := r.store.Delete(digest.Digest(prev.Checkpoint)); err != nil {
			r.log().Warn("failed to remove old checkpoint", "digest", prev.Checkpoint, "error", err)
		}
	}

	r.log().Info("checkpoint written",
		"digest", d,
		"bytes", len(data),
		"entries", r.tree.Len(),
		"generation", next.Generation)
	return nil
}

// Tree returns a copy of the current tree.
func (r *Repository) Tree() *tree.Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Clone()
}

// HasEntry reports whether path exists.
func (r *Repository) HasEntry(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.HasEntry(path)
}

// Entry returns the entry at path.
func (r *Repository) Entry(path string) (tree.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Entry(path)
}

// ReadFile returns the body of the file at path.
func (r *Repository) ReadFile(path string) (content.Content, error) {
	e, err := r.Entry(path)
	if err != nil {
		return content.None, err
	}
	if e.Kind != tree.KindFile {
		return content.None, fmt.Errorf("read %q: %w", path, ErrNotAFile)
	}
	return e.Content, nil
}

// History returns the changes applied since the last checkpoint, oldest
// first.
func (r *Repository) History() []change.Change {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(r.changes.All())
}

// Verify reads every stored payload and checks it against its digest. It
// also checks that the current checkpoint and everything it references are
// present.
func (r *Repository) Verify(ctx context.Context) error {
	r.mu.RLock()
	checkpoint := r.manifest.Checkpoint
	r.mu.RUnlock()

	ds, err := r.store.Digests()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if checkpoint != "" {
		d := digest.Digest(checkpoint)
		data, err := store.GetContent(r.store, d)
		if err != nil {
			return fmt.Errorf("verify checkpoint: %w", err)
		}
		refs, err := snapshot.References(data.Bytes())
		if err != nil {
			return fmt.Errorf("verify checkpoint: %w", err)
		}
		for _, ref := range refs {
			if !r.store.Has(ref) {
				return fmt.Errorf("verify checkpoint: payload %s: %w", ref, ErrNotFound)
			}
		}
	}
	if err := store.Verify(ctx, r.store, ds, r.verifyConcurrency); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	r.log().Debug("verified payloads", "count", len(ds))
	return nil
}

// Prune deletes stored payloads that neither the checkpoint nor the
// current history refers to, and returns how many were removed. It refuses
// to run against a store supplied with WithStore, which may be shared.
func (r *Repository) Prune() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	if r.externalStore {
		return 0, errors.New("localvcs: prune: repository does not own its store")
	}

	live := make(map[digest.Digest]struct{})
	if r.manifest.Checkpoint != "" {
		d := digest.Digest(r.manifest.Checkpoint)
		live[d] = struct{}{}
		data, err := store.GetContent(r.store, d)
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		refs, err := snapshot.References(data.Bytes())
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		for _, ref := range refs {
			live[ref] = struct{}{}
		}
	}
	for c := range r.changes.All() {
		for _, body := range bodies(c) {
			live[body.Digest()] = struct{}{}
		}
	}

	ds, err := r.store.Digests()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	removed := 0
	for _, d := range ds {
		if _, ok := live[d]; ok {
			continue
		}
		if err := r.store.Delete(d); err != nil {
			return removed, fmt.Errorf("prune: %w", err)
		}
		removed++
	}
	r.log().Info("pruned payloads", "removed", removed, "kept", len(ds)-removed)
	return removed, nil
}

// bodies returns the present file bodies a change carries.
func bodies(c change.Change) []content.Content {
	var out []content.Content
	add := func(b content.Content) {
		if !b.IsAbsent() {
			out = append(out, b)
		}
	}
	var walk func(s tree.Subtree)
	walk = func(s tree.Subtree) {
		add(s.Content)
		for _, child := range s.Children {
			walk(child)
		}
	}

	switch c := c.(type) {
	case *change.CreateFile:
		add(c.Content())
	case *change.ChangeFileContent:
		add(c.NewContent())
		add(c.OldContent())
	case *change.Delete:
		if s, ok := c.Removed(); ok {
			walk(s)
		}
	}
	return out
}

// Close flushes pending changes and releases the repository's files.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := r.flush()
	if r.file != nil {
		err = errors.Join(err, r.file.Close())
	}
	if r.disk != nil {
		err = errors.Join(err, r.disk.Close())
	}
	r.log().Debug("closed repository", "dir", r.dir)
	return err
}
