package binio

import (
	"encoding/binary"
	"math"
)

// Writer builds a byte buffer. Writing past the end grows it; seeking past
// the end and writing zero-fills the gap.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter returns an empty Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the written buffer. The slice aliases the writer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the buffer size.
func (w *Writer) Len() int { return len(w.buf) }

// Pos returns the current write offset.
func (w *Writer) Pos() int { return w.pos }

// Seek moves the write position. Negative offsets are clamped to zero.
func (w *Writer) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	w.pos = offset
}

// SeekEnd moves the write position to the end of the buffer.
func (w *Writer) SeekEnd() { w.pos = len(w.buf) }

func (w *Writer) reserve(n int) []byte {
	end := w.pos + n
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, len(w.buf), max(end, 2*cap(w.buf)))
			copy(grown, w.buf)
			w.buf = grown
		}
		clear(w.buf[len(w.buf):end])
		w.buf = w.buf[:end]
	}
	b := w.buf[w.pos:end]
	w.pos = end
	return b
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.reserve(len(p)), p)
	return len(p), nil
}

func (w *Writer) WriteUint8(v uint8) { w.reserve(1)[0] = v }

func (w *Writer) WriteInt8(v int8) { w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16, order binary.ByteOrder) { order.PutUint16(w.reserve(2), v) }

func (w *Writer) WriteInt16(v int16, order binary.ByteOrder) { w.WriteUint16(uint16(v), order) }

func (w *Writer) WriteUint32(v uint32, order binary.ByteOrder) { order.PutUint32(w.reserve(4), v) }

func (w *Writer) WriteInt32(v int32, order binary.ByteOrder) { w.WriteUint32(uint32(v), order) }

func (w *Writer) WriteUint64(v uint64, order binary.ByteOrder) { order.PutUint64(w.reserve(8), v) }

func (w *Writer) WriteInt64(v int64, order binary.ByteOrder) { w.WriteUint64(uint64(v), order) }

func (w *Writer) WriteFloat32(v float32, order binary.ByteOrder) {
	w.WriteUint32(math.Float32bits(v), order)
}

func (w *Writer) WriteFloat64(v float64, order binary.ByteOrder) {
	w.WriteUint64(math.Float64bits(v), order)
}

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(p []byte) { copy(w.reserve(len(p)), p) }

// WriteString writes s without a terminator.
func (w *Writer) WriteString(s string) { copy(w.reserve(len(s)), s) }

// WriteFixedString writes s into an n byte field, truncating or NUL padding.
func (w *Writer) WriteFixedString(s string, n int) {
	b := w.reserve(n)
	m := copy(b, s)
	clear(b[m:])
}

// WriteCString writes s followed by a NUL terminator.
func (w *Writer) WriteCString(s string) {
	w.WriteString(s)
	w.WriteUint8(0)
}

// PutUint32At overwrites a uint32 at offset without moving the write position.
func (w *Writer) PutUint32At(offset int, v uint32, order binary.ByteOrder) {
	pos := w.pos
	w.pos = offset
	w.WriteUint32(v, order)
	w.pos = pos
}

// PutInt32At overwrites an int32 at offset without moving the write position.
func (w *Writer) PutInt32At(offset int, v int32, order binary.ByteOrder) {
	w.PutUint32At(offset, uint32(v), order)
}

// Align pads with zeros until the position is a multiple of n.
func (w *Writer) Align(n int) {
	if rem := w.pos % n; rem != 0 {
		w.reserve(n - rem)
	}
}
