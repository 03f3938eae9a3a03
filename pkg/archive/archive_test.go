package archive

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

func rid(name string, t resource.Type) resource.Identifier {
	return resource.Identifier{ResRef: resource.MustResRef(name), Type: t}
}

func sample(kind Kind) *Archive {
	a := New(kind)
	a.Set(rid("k_hen_spawn", resource.TypeNCS), []byte("NCS V1.0 bytes"))
	a.Set(rid("p_bastila", resource.TypeUTC), bytes.Repeat([]byte{0xAB}, 300))
	a.Set(rid("appearance", resource.TypeTwoDA), []byte("2DA V2.b\n"))
	return a
}

func TestArchiveInvariant(t *testing.T) {
	for _, kind := range []Kind{KindERF, KindMOD, KindHAK, KindRIM} {
		t.Run(kind.String(), func(t *testing.T) {
			a := sample(kind)
			a.Set(rid("tmp", resource.TypeTXT), []byte("scratch"))
			require.NoError(t, a.Remove(rid("TMP", resource.TypeTXT)))
			a.Set(rid("P_BASTILA", resource.TypeUTC), []byte("replaced"))
			a.Set(rid("empty", resource.TypeTXT), nil)

			data, err := a.Encode()
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, kind, decoded.Kind)

			want := []ResourceInfo{
				{ID: rid("k_hen_spawn", resource.TypeNCS), Size: 14},
				{ID: rid("P_BASTILA", resource.TypeUTC), Size: 8},
				{ID: rid("appearance", resource.TypeTwoDA), Size: 9},
				{ID: rid("empty", resource.TypeTXT), Size: 0},
			}
			assert.Equal(t, want, decoded.List())

			got, err := decoded.Get(rid("p_bastila", resource.TypeUTC))
			require.NoError(t, err)
			assert.Equal(t, []byte("replaced"), got)

			again, err := decoded.Encode()
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	a := New(KindERF)
	a.Set(rid("a", resource.TypeTXT), []byte("one"))
	a.Set(rid("b", resource.TypeTXT), []byte("two"))
	a.Set(rid("A", resource.TypeTXT), []byte("three"))

	require.Equal(t, 2, a.Len())
	got, err := a.Get(rid("a", resource.TypeTXT))
	require.NoError(t, err)
	assert.Equal(t, "three", string(got))
	assert.Equal(t, "A", a.List()[0].ID.ResRef.String())
}

func TestResourceIsolation(t *testing.T) {
	a := New(KindERF)
	src := []byte("abc")
	a.Set(rid("a", resource.TypeTXT), src)
	src[0] = 'X'

	got, err := a.Get(rid("a", resource.TypeTXT))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'Y'

	again, _ := a.Get(rid("a", resource.TypeTXT))
	assert.Equal(t, "abc", string(again))
}

func TestResourceNotFound(t *testing.T) {
	a := sample(KindERF)

	_, err := a.Get(rid("nope", resource.TypeNCS))
	assert.ErrorIs(t, err, ErrResourceNotFound)

	// Same name, other type.
	_, err = a.Get(rid("p_bastila", resource.TypeUTI))
	assert.ErrorIs(t, err, ErrResourceNotFound)

	assert.ErrorIs(t, a.Remove(rid("nope", resource.TypeNCS)), ErrResourceNotFound)
}

func TestDescription(t *testing.T) {
	a := sample(KindMOD)
	a.DescriptionStrRef = 42
	a.Description = []LocalizedString{
		{Language: textenc.English, Text: "Taris Upper City"},
		{Language: textenc.German, Text: "Obere Stadt Straße"},
	}

	data, err := a.Encode()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, a.Description, decoded.Description)
	assert.Equal(t, int32(42), decoded.DescriptionStrRef)
	assert.Equal(t, a.BuildYear, decoded.BuildYear)
	assert.Equal(t, a.BuildDay, decoded.BuildDay)
}

func TestCorruptArchive(t *testing.T) {
	data, err := sample(KindERF).Encode()
	require.NoError(t, err)

	t.Run("Truncated", func(t *testing.T) {
		_, err := Decode(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := Decode(data[:40])
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("UnknownSignature", func(t *testing.T) {
		bad := bytes.Clone(data)
		copy(bad, "XYZ ")
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("CountExceedsFile", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint32(bad[16:], 1_000_000)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("OverlappingResources", func(t *testing.T) {
		bad := bytes.Clone(data)
		resOffset := binary.LittleEndian.Uint32(bad[28:])
		first := binary.LittleEndian.Uint32(bad[resOffset:])
		binary.LittleEndian.PutUint32(bad[resOffset+8:], first)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("LocalizedCountExceedsTable", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint32(bad[8:], 0x40000000)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("CompressedSizeOverflow", func(t *testing.T) {
		h := compressed.NewHeader(compressed.CodecZstd, 1<<64-1, 8)
		env, err := h.MarshalBinary()
		require.NoError(t, err)
		env = append(env, make([]byte, 8)...)
		_, err = Decode(env)
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})

	t.Run("RIMTruncated", func(t *testing.T) {
		rim, err := sample(KindRIM).Encode()
		require.NoError(t, err)
		_, err = Decode(rim[:len(rim)-5])
		assert.ErrorIs(t, err, ErrCorruptArchive)
	})
}

func TestDescriptionUnencodable(t *testing.T) {
	a := sample(KindMOD)
	a.Description = []LocalizedString{{Language: textenc.English, Text: "日本"}}
	_, err := a.Encode()
	assert.ErrorIs(t, err, textenc.ErrUnencodable)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("WriteReadFile", func(t *testing.T) {
		path := filepath.Join(dir, "savegame.sav")
		a := sample(KindSAV)
		require.NoError(t, WriteFile(path, a))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "MOD V1.0", string(raw[:8]))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, KindSAV, got.Kind)
		assert.Equal(t, a.List(), got.List())

		leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp*"))
		assert.Empty(t, leftovers)
	})

	t.Run("Compressed", func(t *testing.T) {
		for _, codec := range []compressed.Codec{compressed.CodecZstd, compressed.CodecLZ4} {
			path := filepath.Join(dir, "snapshot_"+codec.String()+".erf")
			a := sample(KindERF)
			require.NoError(t, WriteCompressed(path, a, compressed.WithCodec(codec)))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, a.List(), got.List())
		}
	})

	t.Run("Extract", func(t *testing.T) {
		out := filepath.Join(dir, "out")
		require.NoError(t, sample(KindERF).Extract(out, WithTypeFilter(resource.TypeNCS, resource.TypeTwoDA)))

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.ElementsMatch(t, []string{"k_hen_spawn.ncs", "appearance.2da"}, names)

		b := New(KindERF)
		require.NoError(t, b.AddFiles(filepath.Join(out, "k_hen_spawn.ncs")))
		got, err := b.Get(rid("k_hen_spawn", resource.TypeNCS))
		require.NoError(t, err)
		assert.Equal(t, "NCS V1.0 bytes", string(got))
	})
}

func TestPatchFile(t *testing.T) {
	for _, kind := range []Kind{KindERF, KindRIM} {
		t.Run(kind.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "module."+kind.String())
			a := sample(kind)
			require.NoError(t, WriteFile(path, a))

			reopen := func() *Archive {
				got, err := ReadFile(path)
				require.NoError(t, err)
				return got
			}

			// Growth only: append path.
			a.Set(rid("new_script", resource.TypeNCS), []byte("appended"))
			a.Set(rid("appearance", resource.TypeTwoDA), []byte("2DA V2.b\n plus more"))
			patched, err := PatchFile(path, a)
			require.NoError(t, err)
			assert.True(t, patched)
			assert.Equal(t, a.List(), reopen().List())

			got, err := reopen().Get(rid("appearance", resource.TypeTwoDA))
			require.NoError(t, err)
			assert.Equal(t, "2DA V2.b\n plus more", string(got))

			// A shrink falls back to a full rewrite.
			a.Set(rid("p_bastila", resource.TypeUTC), []byte("tiny"))
			patched, err = PatchFile(path, a)
			require.NoError(t, err)
			assert.False(t, patched)
			assert.Equal(t, a.List(), reopen().List())

			// So does a removal.
			require.NoError(t, a.Remove(rid("new_script", resource.TypeNCS)))
			patched, err = PatchFile(path, a)
			require.NoError(t, err)
			assert.False(t, patched)
			assert.Equal(t, a.List(), reopen().List())
		})
	}
}

func TestPatchFileKeepsUnchangedOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.erf")
	a := sample(KindERF)
	require.NoError(t, WriteFile(path, a))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	a.Set(rid("extra", resource.TypeTXT), []byte("x"))
	patched, err := PatchFile(path, a)
	require.NoError(t, err)
	require.True(t, patched)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before[160:], after[160:len(before)])

	_, oldIdx, err := decodeIndex(before)
	require.NoError(t, err)
	_, newIdx, err := decodeIndex(after)
	require.NoError(t, err)
	for i := range oldIdx {
		assert.Equal(t, oldIdx[i].offset, newIdx[i].offset)
	}
}
