package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how committed content is compressed in an object store.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
	CodecLz4    Codec = "lz4"
)

// ParseCodec converts a configuration value to a Codec.
// The empty string selects CodecNone.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecNone:
		return CodecNone, nil
	case CodecSnappy, CodecZstd, CodecLz4:
		return Codec(s), nil
	default:
		return "", fmt.Errorf("storage: unsupported codec %q", s)
	}
}

// Encode compresses data.
func (c Codec) Encode(data []byte) ([]byte, error) {
	switch c {
	case "", CodecNone:
		return data, nil

	case CodecSnappy:
		return snappy.Encode(nil, data), nil

	case CodecZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	case CodecLz4:
		var buf bytes.Buffer
		writer := lz4.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("storage: unsupported codec %q", string(c))
	}
}

// Decode decompresses data produced by Encode.
func (c Codec) Decode(data []byte) ([]byte, error) {
	switch c {
	case "", CodecNone:
		return data, nil

	case CodecSnappy:
		return snappy.Decode(nil, data)

	case CodecZstd:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer decoder.Close()
		return io.ReadAll(decoder)

	case CodecLz4:
		reader := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(reader)

	default:
		return nil, fmt.Errorf("storage: unsupported codec %q", string(c))
	}
}
