// Package binio provides a random-access cursor over byte slices with typed
// primitive accessors. Byte order is chosen per call because the formats built
// on top of it mix conventions (NCS operands are big-endian, everything else
// little-endian).
package binio

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrTruncatedData is returned when a read runs past the end of the buffer.
var ErrTruncatedData = errors.New("truncated data")

var (
	LE = binary.LittleEndian
	BE = binary.BigEndian
)

// Reader reads primitives from an in-memory buffer.
// Sequential reads advance the position; the *At variants do not.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader positioned at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total buffer size.
func (r *Reader) Len() int { return len(r.data) }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of bytes after the current position.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Seek moves the cursor to an absolute offset. Seeking to Len() is allowed.
func (r *Reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.data) {
		return errors.Wrapf(ErrTruncatedData, "seek to %d (size %d)", offset, len(r.data))
	}
	r.pos = offset
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	return r.Seek(r.pos + n)
}

func (r *Reader) span(offset, n int) ([]byte, error) {
	if n < 0 || offset < 0 || offset > len(r.data)-n {
		return nil, errors.Wrapf(ErrTruncatedData, "read %d bytes at offset %d (size %d)", n, offset, len(r.data))
	}
	return r.data[offset : offset+n], nil
}

func (r *Reader) next(n int) ([]byte, error) {
	b, err := r.span(r.pos, n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// Bytes reads n bytes and returns a copy.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// BytesAt returns a copy of n bytes at offset without moving the cursor.
func (r *Reader) BytesAt(offset, n int) ([]byte, error) {
	b, err := r.span(offset, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Uint16(order binary.ByteOrder) (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (r *Reader) Int16(order binary.ByteOrder) (int16, error) {
	v, err := r.Uint16(order)
	return int16(v), err
}

func (r *Reader) Uint32(order binary.ByteOrder) (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (r *Reader) Int32(order binary.ByteOrder) (int32, error) {
	v, err := r.Uint32(order)
	return int32(v), err
}

func (r *Reader) Uint64(order binary.ByteOrder) (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (r *Reader) Int64(order binary.ByteOrder) (int64, error) {
	v, err := r.Uint64(order)
	return int64(v), err
}

func (r *Reader) Float32(order binary.ByteOrder) (float32, error) {
	v, err := r.Uint32(order)
	return math.Float32frombits(v), err
}

func (r *Reader) Float64(order binary.ByteOrder) (float64, error) {
	v, err := r.Uint64(order)
	return math.Float64frombits(v), err
}

// Uint32At reads a uint32 at an absolute offset without moving the cursor.
func (r *Reader) Uint32At(offset int, order binary.ByteOrder) (uint32, error) {
	b, err := r.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// Uint16At reads a uint16 at an absolute offset without moving the cursor.
func (r *Reader) Uint16At(offset int, order binary.ByteOrder) (uint16, error) {
	b, err := r.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// FixedString reads an n byte field and trims everything from the first NUL.
func (r *Reader) FixedString(n int) (string, error) {
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// CString reads bytes up to and including the next NUL terminator.
func (r *Reader) CString() (string, error) {
	i := bytes.IndexByte(r.data[r.pos:], 0)
	if i < 0 {
		return "", errors.Wrapf(ErrTruncatedData, "unterminated string at offset %d", r.pos)
	}
	s := string(r.data[r.pos : r.pos+i])
	r.pos += i + 1
	return s, nil
}

// PrefixedString reads a string preceded by its byte length. width is the
// size of the length prefix in bytes (1, 2 or 4).
func (r *Reader) PrefixedString(width int, order binary.ByteOrder) (string, error) {
	var n int
	switch width {
	case 1:
		v, err := r.Uint8()
		if err != nil {
			return "", err
		}
		n = int(v)
	case 2:
		v, err := r.Uint16(order)
		if err != nil {
			return "", err
		}
		n = int(v)
	case 4:
		v, err := r.Uint32(order)
		if err != nil {
			return "", err
		}
		n = int(v)
	default:
		return "", errors.Errorf("unsupported length prefix width %d", width)
	}
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
