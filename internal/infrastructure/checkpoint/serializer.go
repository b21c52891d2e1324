// Package checkpoint persists completed node outputs so runs can be inspected
// and resumed. Records are msgpack encoded, optionally zstd compressed, and
// kept in a badger key-value store.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Compression selects how serialized records are compressed.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Every payload starts with one of these bytes so it can be decoded whatever
// the current setting is.
const (
	headerNone byte = 'n'
	headerZstd byte = 'z'
)

// Serializer turns records into bytes and back.
type Serializer struct {
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// NewSerializer returns a serializer. An empty compression means zstd.
func NewSerializer(compression Compression) (*Serializer, error) {
	if compression == "" {
		compression = CompressionZstd
	}
	if compression != CompressionNone && compression != CompressionZstd {
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Serializer{compression: compression, encoder: encoder, decoder: decoder}, nil
}

// Marshal encodes v with msgpack and compresses it.
func (s *Serializer) Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	if s.compression == CompressionNone {
		return append([]byte{headerNone}, data...), nil
	}
	out := make([]byte, 1, len(data)/2+1)
	out[0] = headerZstd
	return s.encoder.EncodeAll(data, out), nil
}

// Unmarshal reverses Marshal.
func (s *Serializer) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	body := data[1:]
	switch data[0] {
	case headerNone:
	case headerZstd:
		decoded, err := s.decoder.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		body = decoded
	default:
		return fmt.Errorf("unknown payload header %q", data[0])
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	return nil
}

// Close releases the zstd encoder and decoder.
func (s *Serializer) Close() {
	if s == nil {
		return
	}
	s.encoder.Close()
	s.decoder.Close()
}
