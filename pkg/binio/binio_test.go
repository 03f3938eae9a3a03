package binio

import (
	"errors"
	"testing"
)

func TestReader(t *testing.T) {
	data := []byte{
		0x01,
		0x02, 0x01,
		0x00, 0x00, 0x01, 0x00,
		'a', 'b', 0, 0,
		'x', 'y', 0,
	}

	t.Run("Sequential", func(t *testing.T) {
		r := NewReader(data)
		if v, _ := r.Uint8(); v != 1 {
			t.Errorf("Uint8: got %d, want 1", v)
		}
		if v, _ := r.Uint16(LE); v != 0x0102 {
			t.Errorf("Uint16: got %#x, want 0x102", v)
		}
		if v, _ := r.Uint32(BE); v != 0x100 {
			t.Errorf("Uint32: got %#x, want 0x100", v)
		}
		if s, _ := r.FixedString(4); s != "ab" {
			t.Errorf("FixedString: got %q, want %q", s, "ab")
		}
		if s, _ := r.CString(); s != "xy" {
			t.Errorf("CString: got %q, want %q", s, "xy")
		}
		if r.Remaining() != 0 {
			t.Errorf("Remaining: got %d, want 0", r.Remaining())
		}
	})

	t.Run("AbsoluteDoesNotMove", func(t *testing.T) {
		r := NewReader(data)
		v, err := r.Uint32At(3, BE)
		if err != nil {
			t.Fatalf("Uint32At: %v", err)
		}
		if v != 0x100 {
			t.Errorf("Uint32At: got %#x", v)
		}
		if r.Pos() != 0 {
			t.Errorf("Pos moved to %d", r.Pos())
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		r := NewReader(data[:3])
		if _, err := r.Uint32(LE); !errors.Is(err, ErrTruncatedData) {
			t.Errorf("expected ErrTruncatedData, got %v", err)
		}
		if err := r.Seek(4); !errors.Is(err, ErrTruncatedData) {
			t.Errorf("expected ErrTruncatedData for seek, got %v", err)
		}
		if _, err := NewReader([]byte("abc")).CString(); !errors.Is(err, ErrTruncatedData) {
			t.Errorf("expected ErrTruncatedData for unterminated string, got %v", err)
		}
	})

	t.Run("PrefixedString", func(t *testing.T) {
		r := NewReader([]byte{0x00, 0x03, 'f', 'o', 'o'})
		s, err := r.PrefixedString(2, BE)
		if err != nil {
			t.Fatalf("PrefixedString: %v", err)
		}
		if s != "foo" {
			t.Errorf("got %q, want foo", s)
		}
	})
}

func TestWriter(t *testing.T) {
	t.Run("GrowsOnWrite", func(t *testing.T) {
		w := NewWriter(0)
		w.WriteUint32(0xdeadbeef, BE)
		w.WriteFixedString("hello", 8)
		w.WriteCString("x")
		if w.Len() != 4+8+2 {
			t.Fatalf("Len: got %d", w.Len())
		}

		r := NewReader(w.Bytes())
		if v, _ := r.Uint32(BE); v != 0xdeadbeef {
			t.Errorf("Uint32: got %#x", v)
		}
		if s, _ := r.FixedString(8); s != "hello" {
			t.Errorf("FixedString: got %q", s)
		}
	})

	t.Run("SeekPastEndZeroFills", func(t *testing.T) {
		w := NewWriter(0)
		w.Seek(6)
		w.WriteUint16(0xffff, LE)
		got := w.Bytes()
		if len(got) != 8 {
			t.Fatalf("Len: got %d, want 8", len(got))
		}
		for i := 0; i < 6; i++ {
			if got[i] != 0 {
				t.Errorf("byte %d: got %#x, want 0", i, got[i])
			}
		}
	})

	t.Run("PutAtKeepsPosition", func(t *testing.T) {
		w := NewWriter(16)
		w.WriteUint32(0, LE)
		w.WriteUint32(0, LE)
		w.PutUint32At(0, 7, LE)
		if w.Pos() != 8 {
			t.Errorf("Pos: got %d, want 8", w.Pos())
		}
		if v, _ := NewReader(w.Bytes()).Uint32(LE); v != 7 {
			t.Errorf("patched value: got %d, want 7", v)
		}
	})

	t.Run("Align", func(t *testing.T) {
		w := NewWriter(0)
		w.WriteUint8(1)
		w.Align(4)
		if w.Len() != 4 {
			t.Errorf("Len after align: got %d, want 4", w.Len())
		}
	})
}
