package compressed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/DataDog/zstd"
	lz4 "github.com/bkaradzic/go-lz4"
)

const (
	// DefaultCompressionLevel is the default zstd level for encoding.
	DefaultCompressionLevel = zstd.BestSpeed
)

// Reader decompresses the payload of an envelope.
type Reader struct {
	header    *Header
	body      io.ReadCloser
	headerBuf [HeaderSize]byte
}

// NewReader reads and validates the envelope header from r, then returns a
// reader for the decompressed content.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{
		header: &Header{},
	}

	if _, err := io.ReadFull(r, reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if err := reader.header.UnmarshalBinary(reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	switch reader.header.Codec {
	case CodecZstd:
		reader.body = zstd.NewReader(io.LimitReader(r, int64(reader.header.CompressedLength)))
	case CodecLZ4:
		data, err := decodeLZ4(r, reader.header)
		if err != nil {
			return nil, err
		}
		reader.body = io.NopCloser(bytes.NewReader(data))
	}
	return reader, nil
}

// decodeLZ4 reads a raw lz4 block. The block is stored without the length
// prefix go-lz4 expects, since the header already carries it.
func decodeLZ4(r io.Reader, h *Header) ([]byte, error) {
	if h.Length > math.MaxUint32 {
		return nil, fmt.Errorf("%w: lz4 payload of %d bytes exceeds 4GiB", ErrCorrupt, h.Length)
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(h.Length))
	var buf bytes.Buffer
	buf.Write(prefix[:])
	n, err := buf.ReadFrom(io.LimitReader(r, int64(h.CompressedLength)))
	if err != nil {
		return nil, fmt.Errorf("read lz4 block: %w", err)
	}
	if uint64(n) != h.CompressedLength {
		return nil, fmt.Errorf("%w: lz4 block truncated: expected %d bytes, got %d", ErrCorrupt, h.CompressedLength, n)
	}
	block := buf.Bytes()
	data := make([]byte, h.Length)
	if _, err := lz4.Decode(data, block); err != nil {
		return nil, fmt.Errorf("decode lz4 block: %w", err)
	}
	return data, nil
}

// Header returns the envelope header.
func (r *Reader) Header() *Header {
	return r.header
}

// Read reads decompressed data into p.
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.body.Read(p)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.body.Close()
}

// Length returns the uncompressed data length.
func (r *Reader) Length() int {
	return int(r.header.Length)
}

// CompressedLength returns the compressed data length.
func (r *Reader) CompressedLength() int {
	return int(r.header.CompressedLength)
}

// ReadAll reads the entire decompressed content of an envelope.
func ReadAll(r io.Reader) ([]byte, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	// The header length is checked against what the codec produces rather
	// than trusted for one up-front allocation.
	var buf bytes.Buffer
	buf.Grow(min(reader.Length(), 1<<20))
	n, err := buf.ReadFrom(io.LimitReader(reader, int64(reader.header.Length)+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if uint64(n) != reader.header.Length {
		return nil, fmt.Errorf("%w: expected %d bytes of content, got %d", ErrCorrupt, reader.header.Length, n)
	}

	return buf.Bytes(), nil
}

// Decompress unwraps an in-memory envelope. The compressed size must fit in
// the bytes after the header.
func Decompress(data []byte) ([]byte, error) {
	h := &Header{}
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if h.CompressedLength > uint64(len(data)-HeaderSize) {
		return nil, fmt.Errorf("%w: compressed size %d exceeds the %d bytes present", ErrCorrupt, h.CompressedLength, len(data)-HeaderSize)
	}
	return ReadAll(bytes.NewReader(data))
}
