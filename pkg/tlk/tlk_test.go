package tlk

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

func sampleTalk() *Talk {
	t := New(textenc.English)
	t.Append(Entry{Text: "Bad Robot"})
	t.Append(Entry{Text: "Hello there.", Sound: resource.MustResRef("n_gendroid_1"), SoundLength: 1.25})
	t.Append(Entry{})
	return t
}

func TestMissingID(t *testing.T) {
	talk := sampleTalk()
	require.Equal(t, 3, talk.Len())

	assert.Equal(t, Missing, talk.Get(7))
	assert.Equal(t, "", talk.String(7))
	assert.Equal(t, Missing, talk.Get(NoString))
	assert.Equal(t, "Bad Robot", talk.String(0))
}

func TestFlagsDerived(t *testing.T) {
	talk := sampleTalk()
	e := talk.Get(1)
	assert.Equal(t, TextPresent|SoundPresent|SoundLengthPresent, e.Flags)
	assert.Equal(t, Flags(0), talk.Get(2).Flags)
}

func TestRoundTrip(t *testing.T) {
	talk := sampleTalk()
	require.NoError(t, talk.Set(5, Entry{Text: "Café"}))

	data, err := Encode(talk)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, talk.Language, decoded.Language)
	assert.Equal(t, talk.Entries(), decoded.Entries())
	assert.Equal(t, "Café", decoded.String(5))
	assert.Equal(t, "", decoded.String(4))
}

func TestEncodeSkipsEntriesWithoutText(t *testing.T) {
	talk := New(textenc.English)
	talk.Append(Entry{Text: "abc"})
	talk.Append(Entry{Sound: resource.MustResRef("snd")})

	data, err := Encode(talk)
	require.NoError(t, err)
	assert.Equal(t, headerSize+2*entrySize+3, len(data))

	second := headerSize + entrySize
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[second+28:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[second+32:]))
}

func TestEncodeUnencodableText(t *testing.T) {
	for _, lang := range []textenc.Language{textenc.English, textenc.Polish} {
		t.Run(lang.String(), func(t *testing.T) {
			talk := New(lang)
			talk.Append(Entry{Text: "fine"})
			talk.Append(Entry{Text: "日本"})
			_, err := Encode(talk)
			assert.ErrorIs(t, err, textenc.ErrUnencodable)
		})
	}
}

func TestLanguageCodePage(t *testing.T) {
	talk := New(textenc.Polish)
	talk.Append(Entry{Text: "Zażółć gęślą jaźń"})

	data, err := Encode(talk)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, textenc.Polish, decoded.Language)
	assert.Equal(t, "Zażółć gęślą jaźń", decoded.String(0))
}

func TestCorrupt(t *testing.T) {
	data, err := Encode(sampleTalk())
	require.NoError(t, err)

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		copy(bad, "XXXX")
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("EntryTableTruncated", func(t *testing.T) {
		_, err := Decode(data[:headerSize+entrySize])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("TextOutOfRange", func(t *testing.T) {
		_, err := Decode(data[:len(data)-2])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}
