// Package disk provides a payload store on the local filesystem.
package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/localvcs/store"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600
)

// ErrDecompression is returned when a stored object cannot be decoded.
var ErrDecompression = errors.New("localvcs: decompression failed")

// Store implements store.Store using the local filesystem.
// Objects are stored in a directory hierarchy sharded by digest prefix,
// one file per payload. The store is safe for concurrent use.
type Store struct {
	dir            string       // root directory for objects
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	compression    Compression  // algorithm for new objects
	bytes          atomic.Int64 // current total size of object files
	puts           singleflight.Group
	codec          *codec
	logger         *slog.Logger
}

// Option configures a disk store.
type Option func(*Store)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(s *Store) {
		s.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for object directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithCompression sets the algorithm used for newly written objects.
// Existing objects keep the algorithm they were written with.
// Defaults to CompressionZstd.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithLogger sets the logger for store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a disk-backed store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store dir is empty")
	}
	s := &Store{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		compression:    CompressionZstd,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if s.compression > CompressionLZ4 {
		return nil, fmt.Errorf("unsupported compression %s", s.compression)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	s.bytes.Store(size)

	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	s.codec = c
	s.log().Debug("opened payload store", "dir", dir, "compression", s.compression.String(), "size", size)
	return s, nil
}

// Close releases the compression codecs.
func (s *Store) Close() error {
	s.codec.close()
	return nil
}

// Put stores data and returns its canonical digest.
// Concurrent puts of the same payload write it once.
func (s *Store) Put(data []byte) (digest.Digest, error) {
	d := digest.FromBytes(data)
	path, err := s.path(d)
	if err != nil {
		return "", err
	}
	_, err, _ = s.puts.Do(d.String(), func() (any, error) {
		return nil, s.write(path, data)
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", d, err)
	}
	return d, nil
}

func (s *Store) write(path string, data []byte) error {
	if _, statErr := os.Stat(path); statErr == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, s.dirPerm); mkdirErr != nil {
		return mkdirErr
	}

	obj, err := s.codec.encode(s.compression, data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "object-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(obj); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.Remove(tmpPath)
			return nil
		}
		_ = os.Remove(tmpPath)
		return err
	}
	s.bytes.Add(int64(len(obj)))
	s.log().Debug("stored payload", "path", path, "size", len(data), "stored_size", len(obj))
	return nil
}

// Get returns the payload stored under d, verified against d.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	path, err := s.path(d)
	if err != nil {
		return nil, err
	}
	obj, err := os.ReadFile(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("payload %s: %w", d, store.ErrNotFound)
		}
		return nil, err
	}
	data, err := s.codec.decode(obj)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", d, err)
	}
	if d.Algorithm().FromBytes(data) != d {
		return nil, fmt.Errorf("payload %s: %w", d, store.ErrDigestMismatch)
	}
	return data, nil
}

// Has reports whether an object file exists for d.
func (s *Store) Has(d digest.Digest) bool {
	path, err := s.path(d)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the object stored under d.
func (s *Store) Delete(d digest.Digest) error {
	path, err := s.path(d)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return statErr
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.bytes.Add(-info.Size())
	return nil
}

// Digests walks the store directory and returns every object digest in
// sorted order. Files whose names are not hex digests are ignored.
func (s *Store) Digests() ([]digest.Digest, error) {
	var out []digest.Digest
	err := filepath.WalkDir(s.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		dg := digest.NewDigestFromEncoded(digest.Canonical, d.Name())
		if dg.Validate() != nil {
			return nil
		}
		out = append(out, dg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// SizeBytes returns the current size of all object files.
func (s *Store) SizeBytes() int64 {
	return s.bytes.Load()
}

// Dir returns the store root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", d, err)
	}
	if d.Algorithm() != digest.Canonical {
		return "", fmt.Errorf("unsupported digest algorithm %s", d.Algorithm())
	}
	hexHash := d.Encoded()
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, hexHash), nil
	}
	prefixLen := min(s.shardPrefixLen, len(hexHash))
	return filepath.Join(s.dir, hexHash[:prefixLen], hexHash), nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

var _ store.Store = (*Store)(nil)
