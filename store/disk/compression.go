package disk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm used for a stored object. The tag is
// written as the first byte of every object file; changing the values
// breaks existing stores.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionLZ4  Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the string form produced by Compression.String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd", "":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// codec holds the encoder and decoder shared by a store. zstd encoders and
// decoders are safe for concurrent EncodeAll/DecodeAll calls.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	_ = c.enc.Close() //nolint:errcheck // encoder has no pending output with EncodeAll
	c.dec.Close()
}

// encode returns the object bytes for data: tag byte followed by the
// compressed payload.
func (c *codec) encode(comp Compression, data []byte) ([]byte, error) {
	out := make([]byte, 1, len(data)/2+16)
	out[0] = byte(comp)
	switch comp {
	case CompressionNone:
		return append(out, data...), nil
	case CompressionZstd:
		return c.enc.EncodeAll(data, out), nil
	case CompressionLZ4:
		buf := bytes.NewBuffer(out)
		w := lz4.NewWriter(buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", comp)
	}
}

// decode reverses encode.
func (c *codec) decode(obj []byte) ([]byte, error) {
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrDecompression)
	}
	comp, payload := Compression(obj[0]), obj[1:]
	switch comp {
	case CompressionNone:
		return append([]byte(nil), payload...), nil
	case CompressionZstd:
		out, err := c.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrDecompression, obj[0])
	}
}
