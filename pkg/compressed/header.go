// Package compressed wraps a payload in a small envelope that records the
// codec and both sizes, so compressed archive snapshots open transparently.
package compressed

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic bytes identifying a compressed envelope.
var Magic = [4]byte{'K', 'Z', 'I', 'P'}

// HeaderSize is the fixed binary size of an envelope header.
const HeaderSize = 24 // 4 + 4 + 8 + 8 bytes

// MaxLength bounds both sizes in a header. Archives address their content
// with 32-bit offsets, so nothing larger is ever written.
const MaxLength = 1 << 32

// lz4MaxRatio is the largest expansion an LZ4 block can encode.
const lz4MaxRatio = 255

// ErrCorrupt is returned for an envelope whose sizes cannot be right.
var ErrCorrupt = errors.New("corrupt compressed envelope")

// Codec selects the compression algorithm.
type Codec uint32

const (
	CodecZstd Codec = 1
	CodecLZ4  Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	}
	return fmt.Sprintf("Codec(%d)", uint32(c))
}

// ParseCodec maps a codec name ("zstd", "lz4") to its id.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

// Header is the envelope header.
type Header struct {
	Magic            [4]byte
	Codec            Codec
	Length           uint64 // Uncompressed size
	CompressedLength uint64 // Compressed size
}

// Size returns the binary size of the header.
func (h *Header) Size() int {
	return HeaderSize
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("invalid magic: expected %x, got %x", Magic, h.Magic)
	}
	if h.Codec != CodecZstd && h.Codec != CodecLZ4 {
		return fmt.Errorf("unsupported codec %d", uint32(h.Codec))
	}
	if h.Length == 0 {
		return fmt.Errorf("uncompressed size is zero")
	}
	if h.CompressedLength == 0 {
		return fmt.Errorf("compressed size is zero")
	}
	if h.Length > MaxLength || h.CompressedLength > MaxLength {
		return fmt.Errorf("%w: sizes %d/%d exceed %d", ErrCorrupt, h.Length, h.CompressedLength, uint64(MaxLength))
	}
	if h.Codec == CodecLZ4 && h.Length/lz4MaxRatio > h.CompressedLength {
		return fmt.Errorf("%w: lz4 block of %d bytes cannot expand to %d", ErrCorrupt, h.CompressedLength, h.Length)
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Codec))
	binary.LittleEndian.PutUint64(buf[8:16], h.Length)
	binary.LittleEndian.PutUint64(buf[16:24], h.CompressedLength)
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header data too short: need %d, got %d", HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer.
// Does not validate - use UnmarshalBinary for validation.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Codec = Codec(binary.LittleEndian.Uint32(data[4:8]))
	h.Length = binary.LittleEndian.Uint64(data[8:16])
	h.CompressedLength = binary.LittleEndian.Uint64(data[16:24])
}

// NewHeader creates an envelope header for codec with the given sizes.
func NewHeader(codec Codec, uncompressedSize, compressedSize uint64) *Header {
	return &Header{
		Magic:            Magic,
		Codec:            codec,
		Length:           uncompressedSize,
		CompressedLength: compressedSize,
	}
}

// IsCompressed reports whether data starts with an envelope header.
func IsCompressed(data []byte) bool {
	return len(data) >= HeaderSize && bytes.Equal(data[:4], Magic[:])
}
