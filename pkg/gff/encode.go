package gff

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

// ErrLabelTooLong is returned by Encode for labels wider than 16 bytes.
var ErrLabelTooLong = errors.New("label too long")

type flatStruct struct {
	typeID     uint32
	firstField uint32
	fieldCount uint32
}

type flatField struct {
	typ   FieldType
	label uint32
	data  uint32 // inline value, or offset into field data / list indices, or struct index
}

// layout is the result of the sizing pass: every section's content and size
// is known before a single header byte is written.
type layout struct {
	structs     []flatStruct
	fields      []flatField
	labels      []string
	labelIndex  map[string]uint32
	fieldData   *binio.Writer
	listIndices *binio.Writer
}

// Encode serializes g. The first pass flattens the tree breadth-first,
// assigning struct indices and building every section; the second pass
// writes the header with the now final offsets followed by the sections.
func Encode(g *GFF) ([]byte, error) {
	if g.Root == nil {
		return nil, errors.Wrap(ErrInvalidValue, "nil root struct")
	}
	l, err := flatten(g.Root)
	if err != nil {
		return nil, err
	}
	return l.write(g.FileType), nil
}

func flatten(root *Struct) (*layout, error) {
	l := &layout{
		labelIndex:  make(map[string]uint32),
		fieldData:   binio.NewWriter(256),
		listIndices: binio.NewWriter(64),
	}

	queue := []*Struct{root}
	seen := map[*Struct]bool{root: true}
	l.structs = append(l.structs, flatStruct{})
	enqueue := func(s *Struct) (uint32, error) {
		if s == nil {
			return 0, errors.Wrap(ErrInvalidValue, "nil struct")
		}
		if seen[s] {
			return 0, errors.Wrap(ErrInvalidValue, "struct is owned by more than one field")
		}
		seen[s] = true
		idx := uint32(len(l.structs))
		l.structs = append(l.structs, flatStruct{})
		queue = append(queue, s)
		return idx, nil
	}

	for i := 0; i < len(queue); i++ {
		s := queue[i]
		l.structs[i] = flatStruct{
			typeID:     s.TypeID,
			firstField: uint32(len(l.fields)),
			fieldCount: uint32(len(s.fields)),
		}
		for _, f := range s.fields {
			label, err := l.label(f.Label)
			if err != nil {
				return nil, err
			}
			ff := flatField{typ: f.Type, label: label}
			switch v := f.Value.(type) {
			case *Struct:
				if ff.data, err = enqueue(v); err != nil {
					return nil, errors.WithMessagef(err, "field %q", f.Label)
				}
			case List:
				ff.data = uint32(l.listIndices.Len())
				l.listIndices.WriteUint32(uint32(len(v)), binio.LE)
				for _, e := range v {
					idx, err := enqueue(e)
					if err != nil {
						return nil, errors.WithMessagef(err, "list %q", f.Label)
					}
					l.listIndices.WriteUint32(idx, binio.LE)
				}
			default:
				data, err := l.scalar(f)
				if err != nil {
					return nil, errors.WithMessagef(err, "field %q", f.Label)
				}
				ff.data = data
			}
			l.fields = append(l.fields, ff)
		}
	}
	return l, nil
}

func (l *layout) label(s string) (uint32, error) {
	if len(s) > MaxLabelLength {
		return 0, errors.Wrapf(ErrLabelTooLong, "%q", s)
	}
	if idx, ok := l.labelIndex[s]; ok {
		return idx, nil
	}
	idx := uint32(len(l.labels))
	l.labels = append(l.labels, s)
	l.labelIndex[s] = idx
	return idx, nil
}

// scalar returns the inline value of a simple field, or appends a complex
// value to the field data block and returns its offset.
func (l *layout) scalar(f Field) (uint32, error) {
	if err := checkValue(f.Type, f.Value); err != nil {
		return 0, err
	}
	switch v := f.Value.(type) {
	case uint8:
		return uint32(v), nil
	case int8:
		return uint32(uint8(v)), nil
	case uint16:
		return uint32(v), nil
	case int16:
		return uint32(uint16(v)), nil
	case uint32:
		return v, nil
	case int32:
		return uint32(v), nil
	case float32:
		return math.Float32bits(v), nil
	}

	w := l.fieldData
	off := uint32(w.Len())
	switch v := f.Value.(type) {
	case uint64:
		w.WriteUint64(v, binio.LE)
	case int64:
		w.WriteInt64(v, binio.LE)
	case float64:
		w.WriteFloat64(v, binio.LE)
	case string:
		raw, err := textenc.EncodeDefault(v)
		if err != nil {
			return 0, errors.WithMessagef(err, "field %s", f.Label)
		}
		w.WriteUint32(uint32(len(raw)), binio.LE)
		w.WriteBytes(raw)
	case resource.ResRef:
		w.WriteUint8(uint8(len(v.String())))
		w.WriteString(v.String())
	case LocString:
		if err := writeLocString(w, v); err != nil {
			return 0, err
		}
	case []byte:
		w.WriteUint32(uint32(len(v)), binio.LE)
		w.WriteBytes(v)
	case Vector4:
		for _, c := range []float32{v.X, v.Y, v.Z, v.W} {
			w.WriteFloat32(c, binio.LE)
		}
	case Vector3:
		for _, c := range []float32{v.X, v.Y, v.Z} {
			w.WriteFloat32(c, binio.LE)
		}
	case StrRef:
		w.WriteUint32(4, binio.LE)
		w.WriteInt32(int32(v), binio.LE)
	default:
		return 0, errors.Wrapf(ErrUnsupportedFieldType, "%s", f.Type)
	}
	return off, nil
}

func writeLocString(w *binio.Writer, v LocString) error {
	ids := make([]SubstringID, 0, len(v.Substrings))
	for id := range v.Substrings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	sizePos := w.Pos()
	w.WriteUint32(0, binio.LE)
	w.WriteInt32(int32(v.StrRef), binio.LE)
	w.WriteUint32(uint32(len(ids)), binio.LE)
	for _, id := range ids {
		raw, err := textenc.Encode(textenc.Language(id.Language()), v.Substrings[id])
		if err != nil {
			return err
		}
		w.WriteUint32(uint32(id), binio.LE)
		w.WriteUint32(uint32(len(raw)), binio.LE)
		w.WriteBytes(raw)
	}
	w.PutUint32At(sizePos, uint32(w.Pos()-sizePos-4), binio.LE)
	return nil
}

func (l *layout) write(fileType string) []byte {
	// Multi-field structs reference a run of field indices. Fields of a struct
	// are contiguous, so the run is just the sequence firstField..+count.
	fieldIndices := binio.NewWriter(len(l.fields) * 4)
	structData := make([]uint32, len(l.structs))
	for i, s := range l.structs {
		switch s.fieldCount {
		case 0:
			structData[i] = math.MaxUint32
		case 1:
			structData[i] = s.firstField
		default:
			structData[i] = uint32(fieldIndices.Len())
			for j := uint32(0); j < s.fieldCount; j++ {
				fieldIndices.WriteUint32(s.firstField+j, binio.LE)
			}
		}
	}

	h := Header{
		FileType:    fileType,
		Version:     Version,
		StructCount: uint32(len(l.structs)),
		FieldCount:  uint32(len(l.fields)),
		LabelCount:  uint32(len(l.labels)),
	}
	h.StructOffset = HeaderSize
	h.FieldOffset = h.StructOffset + h.StructCount*structEntrySize
	h.LabelOffset = h.FieldOffset + h.FieldCount*fieldEntrySize
	h.FieldDataOffset = h.LabelOffset + h.LabelCount*MaxLabelLength
	h.FieldDataSize = uint32(l.fieldData.Len())
	h.FieldIndicesOffset = h.FieldDataOffset + h.FieldDataSize
	h.FieldIndicesSize = uint32(fieldIndices.Len())
	h.ListIndicesOffset = h.FieldIndicesOffset + h.FieldIndicesSize
	h.ListIndicesSize = uint32(l.listIndices.Len())

	w := binio.NewWriter(int(h.ListIndicesOffset + h.ListIndicesSize))
	w.WriteFixedString(h.FileType, 4)
	w.WriteFixedString(h.Version, 4)
	for _, v := range []uint32{
		h.StructOffset, h.StructCount,
		h.FieldOffset, h.FieldCount,
		h.LabelOffset, h.LabelCount,
		h.FieldDataOffset, h.FieldDataSize,
		h.FieldIndicesOffset, h.FieldIndicesSize,
		h.ListIndicesOffset, h.ListIndicesSize,
	} {
		w.WriteUint32(v, binio.LE)
	}
	for i, s := range l.structs {
		w.WriteUint32(s.typeID, binio.LE)
		w.WriteUint32(structData[i], binio.LE)
		w.WriteUint32(s.fieldCount, binio.LE)
	}
	for _, f := range l.fields {
		w.WriteUint32(uint32(f.typ), binio.LE)
		w.WriteUint32(f.label, binio.LE)
		w.WriteUint32(f.data, binio.LE)
	}
	for _, s := range l.labels {
		w.WriteFixedString(s, MaxLabelLength)
	}
	w.WriteBytes(l.fieldData.Bytes())
	w.WriteBytes(fieldIndices.Bytes())
	w.WriteBytes(l.listIndices.Bytes())
	return w.Bytes()
}
