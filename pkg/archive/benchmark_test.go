package archive

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
)

func benchArchive(kind Kind, n, size int) *Archive {
	a := New(kind)
	for i := 0; i < n; i++ {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i + j)
		}
		a.Set(rid(fmt.Sprintf("res%04d", i), resource.TypeUTC), data)
	}
	return a
}

// BenchmarkEncode benchmarks building the container image per variant.
func BenchmarkEncode(b *testing.B) {
	for _, kind := range []Kind{KindERF, KindRIM} {
		a := benchArchive(kind, 1000, 512)
		b.Run(kind.String(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := a.Encode(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkDecode benchmarks index parsing and resource copy-out.
func BenchmarkDecode(b *testing.B) {
	data, err := benchArchive(KindERF, 1000, 512).Encode()
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if _, err := Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSave compares a full rewrite with the append path for a one
// resource change.
func BenchmarkSave(b *testing.B) {
	a := benchArchive(KindMOD, 500, 2048)
	path := filepath.Join(b.TempDir(), "bench.mod")
	if err := WriteFile(path, a); err != nil {
		b.Fatal(err)
	}
	changed := rid("res0000", resource.TypeUTC)

	b.Run("WriteFile", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			a.Set(changed, []byte(fmt.Sprintf("rewrite %d", i)))
			if err := WriteFile(path, a); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("PatchFile", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			a.Set(changed, []byte("x"))
			if err := WriteFile(path, a); err != nil {
				b.Fatal(err)
			}
			a.Set(changed, []byte(fmt.Sprintf("patched %d", i)))
			b.StartTimer()
			if _, err := PatchFile(path, a); err != nil {
				b.Fatal(err)
			}
		}
	})
}
