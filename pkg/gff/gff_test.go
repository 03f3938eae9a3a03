package gff

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

func sampleCreature() *GFF {
	g := New("UTC ")
	root := g.Root
	root.SetResRef("TemplateResRef", resource.MustResRef("p_bastila"))
	root.SetString("Tag", "Bastila")
	root.SetUint8("Race", 6)
	root.SetInt8("Morale", -3)
	root.SetUint16("Appearance_Type", 4)
	root.SetInt16("CurrentHitPoints", -12)
	root.SetUint32("ObjectId", 0x7f000001)
	root.SetInt32("FactionID", 2)
	root.SetUint64("Experience", 1<<40)
	root.SetInt64("Gold", -5000000000)
	root.SetFloat32("ChallengeRating", 1.5)
	root.SetFloat64("Precise", 3.25)
	root.SetVector3("Position", Vector3{1, 2, 3})
	root.SetVector4("Orientation", Vector4{0, 0, 0.7071, 0.7071})
	root.SetBinary("Blob", []byte{1, 2, 3})
	root.SetStrRef("Description", 4242)

	name := NewLocString(31337)
	name.Substrings = map[SubstringID]string{
		NewSubstringID(0, false): "Bastila",
		NewSubstringID(2, true):  "Bastila Shan",
	}
	root.SetLocString("FirstName", name)

	stats := NewStruct(7)
	stats.SetUint8("Str", 12)
	stats.SetUint8("Dex", 16)
	root.SetStruct("Stats", stats)

	var items List
	for i := 0; i < 3; i++ {
		it := NewStruct(uint32(i))
		it.SetResRef("InventoryRes", resource.MustResRef("g_w_lghtsbr01"))
		it.SetUint16("Repos_PosX", uint16(i))
		items = append(items, it)
	}
	root.SetList("ItemList", items)
	root.SetList("EmptyList", List{})
	root.SetStruct("Empty", NewStruct(3))
	return g
}

func TestRoundTrip(t *testing.T) {
	g := sampleCreature()

	data, err := Encode(g)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "UTC ", decoded.FileType)
	assert.True(t, g.Equal(decoded), "decoded tree differs from original")

	items, ok := decoded.Root.GetList("ItemList")
	require.True(t, ok)
	require.Len(t, items, 3)
	assert.Equal(t, uint16(2), Value(items[2], "Repos_PosX", uint16(0)))

	loc := Value(decoded.Root, "FirstName", LocString{})
	assert.Equal(t, StrRef(31337), loc.StrRef)
	assert.Equal(t, "Bastila Shan", loc.Substrings[NewSubstringID(2, true)])

	t.Run("ReencodeIsStable", func(t *testing.T) {
		again, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})
}

func TestFieldOrderPreserved(t *testing.T) {
	s := NewStruct(0)
	s.SetInt32("B", 1)
	s.SetInt32("A", 2)
	s.SetInt32("C", 3)
	s.SetInt32("A", 4)

	fields := s.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{fields[0].Label, fields[1].Label, fields[2].Label})
	assert.Equal(t, int32(4), Value(s, "A", int32(0)))

	assert.True(t, s.Remove("A"))
	assert.False(t, s.Has("A"))
	assert.Equal(t, int32(3), Value(s, "C", int32(0)))
}

func TestSetValidatesType(t *testing.T) {
	s := NewStruct(0)
	assert.ErrorIs(t, s.Set("X", FieldInt32, "nope"), ErrInvalidValue)
	assert.ErrorIs(t, s.Set("X", FieldType(99), int32(1)), ErrUnsupportedFieldType)
	assert.NoError(t, s.Set("X", FieldInt32, int32(1)))
}

func nested(depth int) *GFF {
	g := New("GFF ")
	cur := g.Root
	for i := 0; i < depth; i++ {
		cur = cur.SetStruct("Child", NewStruct(uint32(i)))
	}
	return g
}

func TestNestingCeiling(t *testing.T) {
	const limit = 10

	t.Run("AtLimit", func(t *testing.T) {
		data, err := Encode(nested(limit))
		require.NoError(t, err)
		_, err = Decode(data, WithMaxDepth(limit))
		assert.NoError(t, err)
	})

	t.Run("OneAboveLimit", func(t *testing.T) {
		data, err := Encode(nested(limit + 1))
		require.NoError(t, err)
		_, err = Decode(data, WithMaxDepth(limit))
		assert.ErrorIs(t, err, ErrNestingTooDeep)
	})

	t.Run("ListsCountAsNesting", func(t *testing.T) {
		g := New("GFF ")
		g.Root.SetList("L", List{NewStruct(1)})
		data, err := Encode(g)
		require.NoError(t, err)
		_, err = Decode(data, WithMaxDepth(0))
		assert.ErrorIs(t, err, ErrNestingTooDeep)
	})

	t.Run("DeepTreeWithoutRecursion", func(t *testing.T) {
		data, err := Encode(nested(50000))
		require.NoError(t, err)
		_, err = Decode(data, WithMaxDepth(100))
		assert.ErrorIs(t, err, ErrNestingTooDeep)
	})
}

func fieldOffset(data []byte) int {
	return int(binary.LittleEndian.Uint32(data[16:20]))
}

func TestCorruptInput(t *testing.T) {
	g := New("GFF ")
	g.Root.SetStruct("Child", NewStruct(1))
	good, err := Encode(g)
	require.NoError(t, err)

	t.Run("CycleToRoot", func(t *testing.T) {
		data := append([]byte(nil), good...)
		binary.LittleEndian.PutUint32(data[fieldOffset(data)+8:], 0)
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("UnknownFieldType", func(t *testing.T) {
		data := append([]byte(nil), good...)
		binary.LittleEndian.PutUint32(data[fieldOffset(data):], 99)
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrUnsupportedFieldType)
	})

	t.Run("StructIndexOutOfRange", func(t *testing.T) {
		data := append([]byte(nil), good...)
		binary.LittleEndian.PutUint32(data[fieldOffset(data)+8:], 50)
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("TruncatedSections", func(t *testing.T) {
		_, err := Decode(good[:len(good)-4])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := Decode(good[:10])
		assert.Error(t, err)
	})
}

func TestEncodeRejectsSharedStruct(t *testing.T) {
	g := New("GFF ")
	shared := NewStruct(1)
	g.Root.SetStruct("A", shared)
	g.Root.SetStruct("B", shared)
	_, err := Encode(g)
	assert.ErrorIs(t, err, ErrInvalidValue)

	loop := New("GFF ")
	loop.Root.SetStruct("Self", loop.Root)
	_, err = Encode(loop)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestEncodeRejectsLongLabel(t *testing.T) {
	g := New("GFF ")
	g.Root.SetInt32("ThisLabelIsFarTooLong", 1)
	_, err := Encode(g)
	assert.ErrorIs(t, err, ErrLabelTooLong)
}

func TestClone(t *testing.T) {
	g := sampleCreature()
	c := g.Root.Clone()
	require.True(t, g.Root.Equal(c))

	stats, _ := c.GetStruct("Stats")
	stats.SetUint8("Str", 18)
	orig, _ := g.Root.GetStruct("Stats")
	assert.Equal(t, uint8(12), Value(orig, "Str", uint8(0)))
	assert.False(t, g.Root.Equal(c))
}

func TestEqualFloats(t *testing.T) {
	nan32 := float32(math.NaN())
	tests := []struct {
		name string
		set  func(s *Struct)
	}{
		{"Float32", func(s *Struct) { s.SetFloat32("F", nan32) }},
		{"Float64", func(s *Struct) { s.SetFloat64("D", math.NaN()) }},
		{"Vector3", func(s *Struct) { s.SetVector3("V", Vector3{1, nan32, 3}) }},
		{"Vector4", func(s *Struct) { s.SetVector4("Q", Vector4{0, 0, 0, nan32}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New("GFF ")
			tt.set(g.Root)
			require.True(t, g.Equal(g))

			data, err := Encode(g)
			require.NoError(t, err)
			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.True(t, g.Equal(decoded))
		})
	}

	a, b := NewStruct(0), NewStruct(0)
	a.SetFloat32("F", 0)
	b.SetFloat32("F", float32(math.Copysign(0, -1)))
	assert.False(t, a.Equal(b), "signed zeros differ on disk")
}

func TestCloneNilElements(t *testing.T) {
	s := NewStruct(0)
	s.SetList("Items", List{NewStruct(1), nil, NewStruct(3)})
	s.SetStruct("Empty", nil)

	c := s.Clone()
	require.True(t, s.Equal(c))
	items, ok := c.GetList("Items")
	require.True(t, ok)
	require.Len(t, items, 3)
	assert.Nil(t, items[1])
	assert.Equal(t, uint32(3), items[2].TypeID)

	g := New("GFF ")
	g.Root = c
	_, err := Encode(g)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestEncodeUnencodableString(t *testing.T) {
	tests := []struct {
		name string
		set  func(s *Struct)
	}{
		{"String", func(s *Struct) { s.SetString("Tag", "日本 €") }},
		{"LocString", func(s *Struct) {
			ls := NewLocString(-1)
			ls.Substrings = map[SubstringID]string{NewSubstringID(0, false): "日本"}
			s.SetLocString("Name", ls)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New("GFF ")
			tt.set(g.Root)
			_, err := Encode(g)
			assert.ErrorIs(t, err, textenc.ErrUnencodable)
		})
	}
}
