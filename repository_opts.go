package localvcs

import (
	"log/slog"

	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/store/disk"
)

// DefaultVerifyConcurrency bounds parallel payload reads in Verify.
const DefaultVerifyConcurrency = 8

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger for repository events.
// By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithCaseMode sets how entry names are compared.
//
// For a new repository the mode is recorded in its manifest. Opening an
// existing repository with a different mode fails with
// ErrCaseModeMismatch; without this option the recorded mode is used.
func WithCaseMode(m paths.CaseMode) Option {
	return func(r *Repository) {
		r.caseMode = m
		r.caseModeSet = true
	}
}

// WithCompression sets how the on-disk payload store compresses objects.
// Defaults to zstd. Ignored when WithStore is used.
func WithCompression(c disk.Compression) Option {
	return func(r *Repository) {
		r.compression = c
	}
}

// WithStore uses s for file bodies and checkpoints instead of the
// repository's own objects directory.
func WithStore(s store.Store) Option {
	return func(r *Repository) {
		r.store = s
		r.externalStore = true
	}
}

// WithVerifyConcurrency sets how many payloads Verify reads in parallel.
func WithVerifyConcurrency(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.verifyConcurrency = n
		}
	}
}
