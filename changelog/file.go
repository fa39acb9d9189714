package changelog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"

	"github.com/meigma/localvcs/change"
	"github.com/meigma/localvcs/store"
	"github.com/meigma/localvcs/stream"
)

// crc32cTable is the CRC-32C (Castagnoli) table for frame checksums.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// maxFrameSize bounds a single encoded record.
const maxFrameSize = stream.DefaultMaxLength

// FileOption configures a File.
type FileOption func(*File)

// WithStore stores file bodies in s and writes digest references into the
// log instead of inline bytes.
func WithStore(s store.Store) FileOption {
	return func(f *File) {
		f.store = s
	}
}

// WithLogger sets the logger for log file events.
func WithLogger(logger *slog.Logger) FileOption {
	return func(f *File) {
		f.logger = logger
	}
}

// File is an append-only file of change records.
//
// Each record is framed as a big-endian uint32 payload length, a CRC-32C of
// that length, the payload, and a big-endian CRC-32C of the payload. Appends are not durable until Sync.
// A final frame cut short by a crash is dropped when the file is opened;
// any other damage is reported as stream.ErrSerialization.
//
// File is not safe for concurrent use.
type File struct {
	path   string
	file   *os.File
	store  store.Store
	logger *slog.Logger

	// offsets[i] is the byte offset of record i; size is the end of the
	// last complete record.
	offsets []int64
	size    int64
}

// OpenFile opens or creates the log file at path.
func OpenFile(path string, opts ...FileOption) (*File, error) {
	f := &File{path: path}
	for _, opt := range opts {
		opt(f)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open change log: %w", err)
	}
	f.file = file

	if err := f.scan(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.New(slog.DiscardHandler)
}

// scan indexes every complete frame and drops a torn final frame.
func (f *File) scan() error {
	info, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("stat change log: %w", err)
	}
	end := info.Size()

	var off int64
	err = f.frames(end, func(start int64, payload []byte) error {
		f.offsets = append(f.offsets, start)
		off = start + frameSize(len(payload))
		return nil
	})
	switch {
	case errors.Is(err, errTornFrame):
		f.log().Warn("dropping incomplete change log record",
			"path", f.path,
			"offset", off,
			"bytes", end-off)
		if err := f.file.Truncate(off); err != nil {
			return fmt.Errorf("truncate change log: %w", err)
		}
	case err != nil:
		return err
	}
	f.size = off
	return nil
}

// errTornFrame marks a final frame that ends before its declared length.
var errTornFrame = errors.New("torn frame")

// frameHeaderSize is the big-endian payload length followed by the CRC-32C
// of those four bytes.
const frameHeaderSize = 8

// frames calls fn for every frame in the first end bytes of the file.
//
// Only a short header or a payload running past end is torn. A header whose
// checksum fails is corruption even at the tail, so a damaged length can
// never make valid records look incomplete.
func (f *File) frames(end int64, fn func(start int64, payload []byte) error) error {
	br := bufio.NewReader(io.NewSectionReader(f.file, 0, end))
	var (
		off    int64
		header [frameHeaderSize]byte
	)
	for off < end {
		if end-off < frameHeaderSize {
			return errTornFrame
		}
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return fmt.Errorf("read change log: %w", err)
		}
		if crc32.Checksum(header[:4], crc32cTable) != binary.BigEndian.Uint32(header[4:]) {
			return fmt.Errorf("%w: record at offset %d: header checksum mismatch", stream.ErrSerialization, off)
		}
		n := binary.BigEndian.Uint32(header[:4])
		if n > maxFrameSize {
			return fmt.Errorf("%w: record at offset %d: length %d exceeds limit", stream.ErrSerialization, off, n)
		}
		if off+frameSize(int(n)) > end {
			return errTornFrame
		}
		payload := make([]byte, n+4)
		if _, err := io.ReadFull(br, payload); err != nil {
			return fmt.Errorf("read change log: %w", err)
		}
		sum := binary.BigEndian.Uint32(payload[n:])
		payload = payload[:n]
		if crc32.Checksum(payload, crc32cTable) != sum {
			return fmt.Errorf("%w: record at offset %d: checksum mismatch", stream.ErrSerialization, off)
		}
		if err := fn(off, payload); err != nil {
			return err
		}
		off += frameSize(int(n))
	}
	return nil
}

func frameSize(n int) int64 {
	return int64(frameHeaderSize + n + 4)
}

// appendFrame appends payload to dst as one framed record.
func appendFrame(dst, payload []byte) []byte {
	start := len(dst)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.BigEndian.AppendUint32(dst, crc32.Checksum(dst[start:], crc32cTable))
	dst = append(dst, payload...)
	return binary.BigEndian.AppendUint32(dst, crc32.Checksum(payload, crc32cTable))
}

func (f *File) streamOptions() []stream.Option {
	if f.store == nil {
		return nil
	}
	return []stream.Option{stream.WithStore(f.store)}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Len returns the number of records.
func (f *File) Len() int {
	return len(f.offsets)
}

// Size returns the number of bytes of complete records.
func (f *File) Size() int64 {
	return f.size
}

// Append encodes c and writes it as the next record.
func (f *File) Append(c change.Change) error {
	var payload bytes.Buffer
	if err := change.Encode(stream.NewWriter(&payload, f.streamOptions()...), c); err != nil {
		return fmt.Errorf("append %s %q: %w", c.Kind(), c.Path(), err)
	}

	if payload.Len() > maxFrameSize {
		return fmt.Errorf("append %s %q: %w: record of %d bytes exceeds limit", c.Kind(), c.Path(), stream.ErrSerialization, payload.Len())
	}
	frame := appendFrame(make([]byte, 0, frameSize(payload.Len())), payload.Bytes())

	if _, err := f.file.WriteAt(frame, f.size); err != nil {
		// Drop whatever part of the frame made it to disk.
		if terr := f.file.Truncate(f.size); terr != nil {
			f.log().Error("failed to roll back partial record", "path", f.path, "error", terr)
		}
		return fmt.Errorf("append %s %q: %w", c.Kind(), c.Path(), err)
	}
	f.offsets = append(f.offsets, f.size)
	f.size += int64(len(frame))
	return nil
}

// Sync commits appended records to stable storage.
func (f *File) Sync() error {
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync change log: %w", err)
	}
	return nil
}

// Truncate keeps the first n records and drops the rest.
func (f *File) Truncate(n int) error {
	if n < 0 || n > len(f.offsets) {
		return fmt.Errorf("truncate change log to %d of %d records: out of range", n, len(f.offsets))
	}
	if n == len(f.offsets) {
		return nil
	}
	size := f.offsets[n]
	if err := f.file.Truncate(size); err != nil {
		return fmt.Errorf("truncate change log: %w", err)
	}
	f.offsets = f.offsets[:n]
	f.size = size
	f.log().Debug("truncated change log", "path", f.path, "records", n)
	return nil
}

// Changes decodes every record in order. The returned changes are
// unapplied.
func (f *File) Changes() ([]change.Change, error) {
	var out []change.Change
	err := f.frames(f.size, func(start int64, payload []byte) error {
		r := stream.NewReader(bytes.NewReader(payload), f.streamOptions()...)
		c, err := change.Decode(r)
		if err != nil {
			return fmt.Errorf("record at offset %d: %w", start, err)
		}
		if r.More() {
			return fmt.Errorf("%w: record at offset %d: trailing bytes", stream.ErrSerialization, start)
		}
		out = append(out, c)
		return nil
	})
	if errors.Is(err, errTornFrame) {
		return nil, fmt.Errorf("%w: change log changed underneath", stream.ErrSerialization)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the file without syncing.
func (f *File) Close() error {
	return f.file.Close()
}
