// Package memory provides an in-memory payload store.
package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/localvcs/store"
)

// Store implements store.Store in memory. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	data  map[digest.Digest][]byte
	bytes int64
}

// New constructs an empty store.
func New() *Store {
	return &Store{data: make(map[digest.Digest][]byte)}
}

// Put stores a copy of data and returns its digest.
func (s *Store) Put(data []byte) (digest.Digest, error) {
	d := digest.FromBytes(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[d]; ok {
		return d, nil
	}
	s.data[d] = append([]byte(nil), data...)
	s.bytes += int64(len(data))
	return d, nil
}

// Get returns a copy of the payload stored under d.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[d]
	if !ok {
		return nil, fmt.Errorf("payload %s: %w", d, store.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Has reports whether a payload is stored under d.
func (s *Store) Has(d digest.Digest) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[d]
	return ok
}

// Delete removes the payload stored under d.
func (s *Store) Delete(d digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.data[d]; ok {
		s.bytes -= int64(len(data))
		delete(s.data, d)
	}
	return nil
}

// Digests returns the stored digests in sorted order.
func (s *Store) Digests() ([]digest.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]digest.Digest, 0, len(s.data))
	for d := range s.data {
		out = append(out, d)
	}
	slices.Sort(out)
	return out, nil
}

// SizeBytes returns the total payload size.
func (s *Store) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// Corrupt replaces the bytes stored under d without updating the key.
// It exists for tests that exercise digest verification.
func (s *Store) Corrupt(d digest.Digest, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[d] = append([]byte(nil), data...)
}

var _ store.Store = (*Store)(nil)
