// Package stream provides the binary primitives used to encode changes and
// entry trees.
//
// All fixed-width integers are big-endian. Lengths and counts are unsigned
// varints. File bodies are written either inline or, when a payload store
// is configured, as a digest reference into that store.
//
// Writer and Reader keep the first error they hit and turn every later call
// into a no-op; check Err once after a sequence of calls.
package stream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/store"
)

// ErrSerialization is returned for malformed or truncated encoded data.
var ErrSerialization = errors.New("localvcs: malformed stream data")

// NoLong is the sentinel written for an absent optional integer.
const NoLong int64 = math.MinInt64

// DefaultMaxLength bounds any single length-prefixed field.
const DefaultMaxLength = 1 << 30

// readChunk is the largest field allocated up front when reading.
const readChunk = 64 << 10

// Content block modes.
const (
	contentAbsent    byte = 0
	contentInline    byte = 1
	contentReference byte = 2
)

// Option configures a Writer or Reader.
type Option func(*config)

type config struct {
	store     store.Store
	maxLength uint64
}

// WithStore routes file bodies through s: the writer stores bodies and
// writes their digests, the reader resolves digests back into bodies.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithMaxLength bounds length-prefixed fields accepted by a Reader.
func WithMaxLength(n uint64) Option {
	return func(c *config) {
		c.maxLength = n
	}
}

func newConfig(opts []Option) config {
	c := config{maxLength: DefaultMaxLength}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Writer encodes primitives to an io.Writer.
type Writer struct {
	w   io.Writer
	cfg config
	err error
	buf [binary.MaxVarintLen64]byte
}

// NewWriter returns a writer encoding to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{w: w, cfg: newConfig(opts)}
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = err
	}
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(b byte) {
	w.buf[0] = b
	w.write(w.buf[:1])
}

// WriteBool writes a presence or flag byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
		return
	}
	w.WriteUint8(0)
}

// WriteLong writes an 8-byte signed integer.
func (w *Writer) WriteLong(v int64) {
	binary.BigEndian.PutUint64(w.buf[:8], uint64(v)) //nolint:gosec // two's complement round trip
	w.write(w.buf[:8])
}

// WriteUvarint writes an unsigned varint.
func (w *Writer) WriteUvarint(v uint64) {
	n := binary.PutUvarint(w.buf[:], v)
	w.write(w.buf[:n])
}

// WriteBytes writes a length-prefixed byte sequence.
func (w *Writer) WriteBytes(p []byte) {
	w.WriteUvarint(uint64(len(p)))
	w.write(p)
}

// WriteString writes a length-prefixed UTF-8 string. A string that is not
// valid UTF-8 fails the writer with ErrSerialization, since no Reader would
// accept it back.
func (w *Writer) WriteString(s string) {
	if w.err == nil && !utf8.ValidString(s) {
		w.err = fmt.Errorf("%w: invalid UTF-8 string %q", ErrSerialization, s)
		return
	}
	w.writeRaw(s)
}

// writeRaw writes s with a length prefix and no encoding check.
func (w *Writer) writeRaw(s string) {
	w.WriteUvarint(uint64(len(s)))
	if w.err != nil {
		return
	}
	if _, err := io.WriteString(w.w, s); err != nil {
		w.err = err
	}
}

// WriteContent writes a content block. With a store configured the body is
// stored and only its digest is written.
func (w *Writer) WriteContent(c content.Content) {
	if c.IsAbsent() {
		w.WriteUint8(contentAbsent)
		return
	}
	if w.cfg.store == nil {
		w.WriteUint8(contentInline)
		w.writeRaw(c.String())
		return
	}
	if w.err != nil {
		return
	}
	d, err := store.PutContent(w.cfg.store, c)
	if err != nil {
		w.err = err
		return
	}
	w.WriteUint8(contentReference)
	w.WriteString(d.String())
}

// Reader decodes primitives from an io.Reader.
type Reader struct {
	r   *bufio.Reader
	cfg config
	err error
	buf [8]byte
}

// NewReader returns a reader decoding from r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, cfg: newConfig(opts)}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// More reports whether unread data remains and no error has occurred.
func (r *Reader) More() bool {
	if r.err != nil {
		return false
	}
	_, err := r.r.Peek(1)
	return err == nil
}

// Fail records a decoding error found by a caller, such as an unknown tag.
// The error wraps ErrSerialization.
func (r *Reader) Fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
	}
}

func (r *Reader) fill(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("%w: %w", ErrSerialization, err)
		return false
	}
	return true
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() byte {
	if !r.fill(r.buf[:1]) {
		return 0
	}
	return r.buf[0]
}

// ReadBool reads a flag byte. Values other than 0 and 1 are malformed.
func (r *Reader) ReadBool() bool {
	switch b := r.ReadUint8(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Fail("invalid flag byte %d", b)
		return false
	}
}

// ReadLong reads an 8-byte signed integer.
func (r *Reader) ReadLong() int64 {
	if !r.fill(r.buf[:8]) {
		return 0
	}
	return int64(binary.BigEndian.Uint64(r.buf[:8])) //nolint:gosec // two's complement round trip
}

// ReadUvarint reads an unsigned varint.
func (r *Reader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("%w: %w", ErrSerialization, err)
		return 0
	}
	return v
}

// ReadCount reads a varint count bounded by the configured maximum length.
func (r *Reader) ReadCount() int {
	n := r.ReadUvarint()
	if n > r.cfg.maxLength {
		r.Fail("length %d exceeds limit %d", n, r.cfg.maxLength)
		return 0
	}
	return int(n) //nolint:gosec // bounded above
}

// ReadBytes reads a length-prefixed byte sequence.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadCount()
	if r.err != nil {
		return nil
	}
	if n <= readChunk {
		p := make([]byte, n)
		if !r.fill(p) {
			return nil
		}
		return p
	}

	// Grow with the data actually present rather than the declared length.
	var buf bytes.Buffer
	buf.Grow(readChunk)
	if _, err := io.CopyN(&buf, r.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("%w: %w", ErrSerialization, err)
		return nil
	}
	return buf.Bytes()
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() string {
	p := r.ReadBytes()
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(p) {
		r.Fail("invalid UTF-8 string")
		return ""
	}
	return string(p)
}

// ReadContent reads a content block written by Writer.WriteContent.
func (r *Reader) ReadContent() content.Content {
	switch mode := r.ReadUint8(); {
	case r.err != nil:
		return content.None
	case mode == contentAbsent:
		return content.None
	case mode == contentInline:
		p := r.ReadBytes()
		if r.err != nil {
			return content.None
		}
		return content.New(p)
	case mode == contentReference:
		ref := r.ReadString()
		if r.err != nil {
			return content.None
		}
		d, err := digest.Parse(ref)
		if err != nil {
			r.Fail("invalid payload reference %q", ref)
			return content.None
		}
		if r.cfg.store == nil {
			r.Fail("payload reference %s without a store", d)
			return content.None
		}
		c, err := store.GetContent(r.cfg.store, d)
		if err != nil {
			r.err = err
			return content.None
		}
		return c
	default:
		r.Fail("unknown content mode %d", mode)
		return content.None
	}
}
