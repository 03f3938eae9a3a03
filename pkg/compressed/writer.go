package compressed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	lz4 "github.com/bkaradzic/go-lz4"
)

// Writer compresses data into an envelope on an io.WriteSeeker. The header
// is written as a placeholder and rewritten with the final sizes on Close.
type Writer struct {
	dst     io.WriteSeeker
	zWriter *zstd.Writer
	lz4Buf  *bytes.Buffer
	header  *Header
	level   int
	start   int64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompressionLevel sets the zstd compression level.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// WithCodec selects the compression codec. The default is zstd.
func WithCodec(c Codec) WriterOption {
	return func(w *Writer) {
		w.header.Codec = c
	}
}

// NewWriter creates an envelope writer on dst for uncompressedSize bytes.
func NewWriter(dst io.WriteSeeker, uncompressedSize uint64, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dst:    dst,
		level:  DefaultCompressionLevel,
		header: NewHeader(CodecZstd, uncompressedSize, 0),
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.header.Codec != CodecZstd && w.header.Codec != CodecLZ4 {
		return nil, fmt.Errorf("unsupported codec %d", uint32(w.header.Codec))
	}

	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	w.start = start

	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := dst.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	if w.header.Codec == CodecLZ4 {
		w.lz4Buf = bytes.NewBuffer(make([]byte, 0, uncompressedSize))
	} else {
		w.zWriter = zstd.NewWriterLevel(dst, w.level)
	}
	return w, nil
}

// Write writes data to be compressed.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.lz4Buf != nil {
		return w.lz4Buf.Write(p)
	}
	return w.zWriter.Write(p)
}

// Close flushes the compressor and rewrites the header with the sizes.
func (w *Writer) Close() error {
	if w.lz4Buf != nil {
		block, err := lz4.Encode(nil, w.lz4Buf.Bytes())
		if err != nil {
			return fmt.Errorf("encode lz4 block: %w", err)
		}
		// Drop the length prefix; the header records it.
		if _, err := w.dst.Write(block[4:]); err != nil {
			return fmt.Errorf("write lz4 block: %w", err)
		}
	} else if err := w.zWriter.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	pos, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	w.header.CompressedLength = uint64(pos - w.start - int64(w.header.Size()))

	if _, err := w.dst.Seek(w.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}

	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	if _, err := w.dst.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := w.dst.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}

	return nil
}

// Encode compresses data and writes it as an envelope to dst.
func Encode(dst io.WriteSeeker, data []byte, opts ...WriterOption) error {
	if len(data) == 0 {
		return fmt.Errorf("encode: empty payload")
	}
	w, err := NewWriter(dst, uint64(len(data)), opts...)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return w.Close()
}

// Compress wraps data in an in-memory envelope.
func Compress(data []byte, opts ...WriterOption) ([]byte, error) {
	var buf seekBuffer
	if err := Encode(&buf, data, opts...); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = int64(len(s.data)) + offset
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek to negative position %d", pos)
	}
	s.pos = pos
	return pos, nil
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.data)) {
		s.data = append(s.data, make([]byte, end-int64(len(s.data)))...)
	}
	copy(s.data[s.pos:], p)
	s.pos = end
	return len(p), nil
}
