package compressed

import (
	"testing"

	"github.com/DataDog/zstd"
)

func benchPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// BenchmarkCompression compares the codecs on an archive-sized payload.
func BenchmarkCompression(b *testing.B) {
	data := benchPayload(256 * 1024)

	b.Run("Zstd_BestSpeed", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := Compress(data, WithCompressionLevel(zstd.BestSpeed)); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Zstd_Default", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := Compress(data, WithCompressionLevel(zstd.DefaultCompression)); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("LZ4", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := Compress(data, WithCodec(CodecLZ4)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkDecompression benchmarks envelope decoding per codec.
func BenchmarkDecompression(b *testing.B) {
	data := benchPayload(1024 * 1024)

	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		packed, err := Compress(data, WithCodec(codec))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(codec.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := Decompress(packed); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkHeader benchmarks header operations.
func BenchmarkHeader(b *testing.B) {
	header := NewHeader(CodecZstd, 1024*1024, 512*1024)

	b.Run("EncodeTo", func(b *testing.B) {
		buf := make([]byte, HeaderSize)
		for i := 0; i < b.N; i++ {
			header.EncodeTo(buf)
		}
	})

	data, _ := header.MarshalBinary()

	b.Run("Unmarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			h := &Header{}
			if err := h.UnmarshalBinary(data); err != nil {
				b.Fatal(err)
			}
		}
	})
}
