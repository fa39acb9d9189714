// Package content provides the immutable byte payload that backs file bodies.
package content

import (
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Content is an immutable file body.
//
// The zero value is the absent content, which is distinct from an empty
// body. Content values compare by value: two values holding the same bytes
// are equal with == and [Content.Equal].
type Content struct {
	data    string
	present bool
}

// None is the absent content.
var None = Content{}

// New returns content holding a copy of b.
func New(b []byte) Content {
	return Content{data: string(b), present: true}
}

// FromString returns content holding s.
func FromString(s string) Content {
	return Content{data: s, present: true}
}

// IsAbsent reports whether c carries no body at all.
func (c Content) IsAbsent() bool {
	return !c.present
}

// Len returns the body size in bytes.
func (c Content) Len() int {
	return len(c.data)
}

// Bytes returns a copy of the body. Absent content returns nil.
func (c Content) Bytes() []byte {
	if !c.present {
		return nil
	}
	return []byte(c.data)
}

// String returns the body as a string.
func (c Content) String() string {
	return c.data
}

// Reader returns a reader over the body.
func (c Content) Reader() io.Reader {
	return strings.NewReader(c.data)
}

// Equal reports whether c and other hold the same bytes.
func (c Content) Equal(other Content) bool {
	return c == other
}

// Digest returns the canonical digest of the body, or "" for absent content.
func (c Content) Digest() digest.Digest {
	if !c.present {
		return ""
	}
	return digest.Canonical.FromString(c.data)
}
