// Package store defines the content-addressed payload store that backs file
// bodies referenced from the change log and snapshots.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/localvcs/content"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no payload is stored under a digest.
	ErrNotFound = errors.New("localvcs: payload not found")

	// ErrDigestMismatch is returned when stored bytes do not hash to their key.
	ErrDigestMismatch = errors.New("localvcs: payload digest mismatch")
)

// Store provides content-addressed payload storage.
//
// Keys are canonical digests of the uncompressed payload. Storing the same
// bytes twice yields the same digest and keeps a single copy.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data and returns its digest.
	Put(data []byte) (digest.Digest, error)

	// Get returns the payload stored under d.
	// Returns an error wrapping ErrNotFound if nothing is stored.
	Get(d digest.Digest) ([]byte, error)

	// Has reports whether a payload is stored under d.
	Has(d digest.Digest) bool

	// Delete removes the payload stored under d.
	// Implementations should treat missing payloads as a no-op.
	Delete(d digest.Digest) error

	// Digests returns the digests of every stored payload.
	Digests() ([]digest.Digest, error)

	// SizeBytes returns the number of bytes the store occupies.
	SizeBytes() int64
}

// PutContent stores c and returns its digest. Absent content is not stored
// and yields an empty digest.
func PutContent(s Store, c content.Content) (digest.Digest, error) {
	if c.IsAbsent() {
		return "", nil
	}
	return s.Put(c.Bytes())
}

// GetContent loads the payload stored under d as content and checks it
// against d.
func GetContent(s Store, d digest.Digest) (content.Content, error) {
	if err := d.Validate(); err != nil {
		return content.None, fmt.Errorf("payload %q: %w", d, err)
	}
	data, err := s.Get(d)
	if err != nil {
		return content.None, err
	}
	if err := check(d, data); err != nil {
		return content.None, err
	}
	return content.New(data), nil
}

func check(d digest.Digest, data []byte) error {
	if d.Algorithm().FromBytes(data) != d {
		return fmt.Errorf("payload %s: %w", d, ErrDigestMismatch)
	}
	return nil
}

// Verify reads every payload in ds and checks it against its digest,
// running up to concurrency reads at once. Zero concurrency means no limit.
func Verify(ctx context.Context, s Store, ds []digest.Digest, concurrency int) error {
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, d := range ds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := s.Get(d)
			if err != nil {
				return err
			}
			return check(d, data)
		})
	}
	return g.Wait()
}
