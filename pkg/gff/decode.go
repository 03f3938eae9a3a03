package gff

import (
	"math"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

// DefaultMaxDepth bounds struct nesting when no option overrides it.
const DefaultMaxDepth = 64

// HeaderSize is the fixed size of the GFF header.
const HeaderSize = 56

const (
	structEntrySize = 12
	fieldEntrySize  = 12
)

type decodeConfig struct {
	maxDepth int
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

// WithMaxDepth sets the deepest struct nesting Decode accepts. The root is
// depth 0.
func WithMaxDepth(depth int) DecodeOption {
	return func(c *decodeConfig) {
		c.maxDepth = depth
	}
}

// Header holds the section table of a GFF file.
type Header struct {
	FileType           string
	Version            string
	StructOffset       uint32
	StructCount        uint32
	FieldOffset        uint32
	FieldCount         uint32
	LabelOffset        uint32
	LabelCount         uint32
	FieldDataOffset    uint32
	FieldDataSize      uint32
	FieldIndicesOffset uint32
	FieldIndicesSize   uint32
	ListIndicesOffset  uint32
	ListIndicesSize    uint32
}

// Validate checks that every section lies within a file of size n.
func (h *Header) Validate(n int) error {
	if h.Version != Version && h.Version != "V3.3" {
		return errors.Wrapf(ErrCorrupt, "unsupported version %q", h.Version)
	}
	sections := []struct {
		name          string
		offset, bytes uint64
	}{
		{"structs", uint64(h.StructOffset), uint64(h.StructCount) * structEntrySize},
		{"fields", uint64(h.FieldOffset), uint64(h.FieldCount) * fieldEntrySize},
		{"labels", uint64(h.LabelOffset), uint64(h.LabelCount) * MaxLabelLength},
		{"field data", uint64(h.FieldDataOffset), uint64(h.FieldDataSize)},
		{"field indices", uint64(h.FieldIndicesOffset), uint64(h.FieldIndicesSize)},
		{"list indices", uint64(h.ListIndicesOffset), uint64(h.ListIndicesSize)},
	}
	for _, s := range sections {
		if s.offset+s.bytes > uint64(n) {
			return errors.Wrapf(ErrCorrupt, "%s section [%d,+%d) exceeds file size %d", s.name, s.offset, s.bytes, n)
		}
	}
	if h.StructCount == 0 {
		return errors.Wrap(ErrCorrupt, "no root struct")
	}
	return nil
}

func readHeader(r *binio.Reader) (*Header, error) {
	h := &Header{}
	var err error
	if h.FileType, err = r.FixedString(4); err != nil {
		return nil, err
	}
	if h.Version, err = r.FixedString(4); err != nil {
		return nil, err
	}
	for _, p := range []*uint32{
		&h.StructOffset, &h.StructCount,
		&h.FieldOffset, &h.FieldCount,
		&h.LabelOffset, &h.LabelCount,
		&h.FieldDataOffset, &h.FieldDataSize,
		&h.FieldIndicesOffset, &h.FieldIndicesSize,
		&h.ListIndicesOffset, &h.ListIndicesSize,
	} {
		if *p, err = r.Uint32(binio.LE); err != nil {
			return nil, err
		}
	}
	return h, nil
}

type decodeJob struct {
	index  uint32
	depth  int
	target *Struct
}

type decoder struct {
	r       *binio.Reader
	h       *Header
	labels  []string
	visited []bool
	work    []decodeJob
	cfg     decodeConfig
}

// Decode parses a GFF file. Structs are materialized from an explicit
// worklist, so adversarial nesting is bounded by the configured depth rather
// than by the goroutine stack. A struct referenced from more than one place
// (including a cycle) is rejected as corrupt.
func Decode(data []byte, opts ...DecodeOption) (*GFF, error) {
	cfg := decodeConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := binio.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if err := h.Validate(len(data)); err != nil {
		return nil, err
	}

	d := &decoder{
		r:       r,
		h:       h,
		visited: make([]bool, h.StructCount),
		cfg:     cfg,
	}
	if err := d.readLabels(); err != nil {
		return nil, err
	}

	root := NewStruct(0)
	d.work = append(d.work, decodeJob{index: 0, depth: 0, target: root})
	for len(d.work) > 0 {
		job := d.work[len(d.work)-1]
		d.work = d.work[:len(d.work)-1]
		if err := d.decodeStruct(job); err != nil {
			return nil, err
		}
	}

	return &GFF{FileType: h.FileType, Root: root}, nil
}

func (d *decoder) readLabels() error {
	d.labels = make([]string, d.h.LabelCount)
	if err := d.r.Seek(int(d.h.LabelOffset)); err != nil {
		return err
	}
	for i := range d.labels {
		s, err := d.r.FixedString(MaxLabelLength)
		if err != nil {
			return errors.Wrapf(err, "label %d", i)
		}
		d.labels[i] = s
	}
	return nil
}

// claim marks a struct as owned, failing on a second reference.
func (d *decoder) claim(index uint32, depth int) error {
	if index >= d.h.StructCount {
		return errors.Wrapf(ErrCorrupt, "struct index %d out of range (%d structs)", index, d.h.StructCount)
	}
	if d.visited[index] {
		return errors.Wrapf(ErrCorrupt, "struct %d referenced more than once", index)
	}
	if depth > d.cfg.maxDepth {
		return errors.Wrapf(ErrNestingTooDeep, "struct %d at depth %d (max %d)", index, depth, d.cfg.maxDepth)
	}
	d.visited[index] = true
	return nil
}

func (d *decoder) decodeStruct(job decodeJob) error {
	if job.index == 0 {
		if err := d.claim(0, 0); err != nil {
			return err
		}
	}

	base := int(d.h.StructOffset) + int(job.index)*structEntrySize
	if err := d.r.Seek(base); err != nil {
		return err
	}
	typeID, _ := d.r.Uint32(binio.LE)
	dataOrOffset, _ := d.r.Uint32(binio.LE)
	count, err := d.r.Uint32(binio.LE)
	if err != nil {
		return errors.Wrapf(err, "struct %d", job.index)
	}
	job.target.TypeID = typeID

	var fieldIndices []uint32
	switch {
	case count == 0:
	case count == 1:
		fieldIndices = []uint32{dataOrOffset}
	default:
		if uint64(dataOrOffset)+uint64(count)*4 > uint64(d.h.FieldIndicesSize) {
			return errors.Wrapf(ErrCorrupt, "struct %d field indices [%d,+%d) out of range", job.index, dataOrOffset, count*4)
		}
		fieldIndices = make([]uint32, count)
		off := int(d.h.FieldIndicesOffset + dataOrOffset)
		for i := range fieldIndices {
			fieldIndices[i], _ = d.r.Uint32At(off+i*4, binio.LE)
		}
	}

	for _, fi := range fieldIndices {
		f, err := d.decodeField(fi, job.depth)
		if err != nil {
			return errors.WithMessagef(err, "struct %d", job.index)
		}
		if job.target.Has(f.Label) {
			return errors.Wrapf(ErrCorrupt, "struct %d has duplicate label %q", job.index, f.Label)
		}
		job.target.set(f)
	}
	return nil
}

func (d *decoder) decodeField(index uint32, depth int) (Field, error) {
	if index >= d.h.FieldCount {
		return Field{}, errors.Wrapf(ErrCorrupt, "field index %d out of range (%d fields)", index, d.h.FieldCount)
	}
	if err := d.r.Seek(int(d.h.FieldOffset) + int(index)*fieldEntrySize); err != nil {
		return Field{}, err
	}
	typ, _ := d.r.Uint32(binio.LE)
	labelIndex, _ := d.r.Uint32(binio.LE)
	dataOrOffset, err := d.r.Uint32(binio.LE)
	if err != nil {
		return Field{}, err
	}

	t := FieldType(typ)
	if !t.Valid() {
		return Field{}, errors.Wrapf(ErrUnsupportedFieldType, "field %d has type id %d", index, typ)
	}
	if labelIndex >= d.h.LabelCount {
		return Field{}, errors.Wrapf(ErrCorrupt, "field %d label index %d out of range", index, labelIndex)
	}
	f := Field{Label: d.labels[labelIndex], Type: t}

	if fieldTypes[t].complex {
		if dataOrOffset >= d.h.FieldDataSize {
			return Field{}, errors.Wrapf(ErrCorrupt, "field %q data offset %d out of range", f.Label, dataOrOffset)
		}
		end := int(d.h.FieldDataOffset + d.h.FieldDataSize)
		blob, err := d.r.BytesAt(int(d.h.FieldDataOffset+dataOrOffset), end-int(d.h.FieldDataOffset+dataOrOffset))
		if err != nil {
			return Field{}, err
		}
		v, err := decodeComplex(t, blob)
		if err != nil {
			return Field{}, errors.WithMessagef(err, "field %q", f.Label)
		}
		f.Value = v
		return f, nil
	}

	switch t {
	case FieldUint8:
		f.Value = uint8(dataOrOffset)
	case FieldInt8:
		f.Value = int8(dataOrOffset)
	case FieldUint16:
		f.Value = uint16(dataOrOffset)
	case FieldInt16:
		f.Value = int16(dataOrOffset)
	case FieldUint32:
		f.Value = dataOrOffset
	case FieldInt32:
		f.Value = int32(dataOrOffset)
	case FieldFloat32:
		f.Value = math.Float32frombits(dataOrOffset)
	case FieldStruct:
		if err := d.claim(dataOrOffset, depth+1); err != nil {
			return Field{}, errors.WithMessagef(err, "field %q", f.Label)
		}
		child := NewStruct(0)
		d.work = append(d.work, decodeJob{index: dataOrOffset, depth: depth + 1, target: child})
		f.Value = child
	case FieldList:
		list, err := d.decodeList(dataOrOffset, depth+1)
		if err != nil {
			return Field{}, errors.WithMessagef(err, "field %q", f.Label)
		}
		f.Value = list
	}
	return f, nil
}

func (d *decoder) decodeList(offset uint32, depth int) (List, error) {
	if uint64(offset)+4 > uint64(d.h.ListIndicesSize) {
		return nil, errors.Wrapf(ErrCorrupt, "list offset %d out of range", offset)
	}
	base := int(d.h.ListIndicesOffset + offset)
	count, err := d.r.Uint32At(base, binio.LE)
	if err != nil {
		return nil, err
	}
	if uint64(offset)+4+uint64(count)*4 > uint64(d.h.ListIndicesSize) {
		return nil, errors.Wrapf(ErrCorrupt, "list at %d with %d entries overruns list indices", offset, count)
	}
	list := make(List, count)
	for i := range list {
		idx, _ := d.r.Uint32At(base+4+i*4, binio.LE)
		if err := d.claim(idx, depth); err != nil {
			return nil, err
		}
		list[i] = NewStruct(0)
		d.work = append(d.work, decodeJob{index: idx, depth: depth, target: list[i]})
	}
	return list, nil
}

func decodeComplex(t FieldType, blob []byte) (any, error) {
	r := binio.NewReader(blob)
	switch t {
	case FieldUint64:
		return r.Uint64(binio.LE)
	case FieldInt64:
		return r.Int64(binio.LE)
	case FieldFloat64:
		return r.Float64(binio.LE)
	case FieldString:
		n, err := r.Uint32(binio.LE)
		if err != nil {
			return nil, err
		}
		raw, err := r.Bytes(int(n))
		if err != nil {
			return nil, err
		}
		return textenc.DecodeDefault(raw), nil
	case FieldResRef:
		s, err := r.PrefixedString(1, binio.LE)
		if err != nil {
			return nil, err
		}
		ref, err := resource.NewResRef(s)
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, err.Error())
		}
		return ref, nil
	case FieldLocString:
		return decodeLocString(r)
	case FieldBinary:
		n, err := r.Uint32(binio.LE)
		if err != nil {
			return nil, err
		}
		return r.Bytes(int(n))
	case FieldVector4:
		var v Vector4
		for _, p := range []*float32{&v.X, &v.Y, &v.Z, &v.W} {
			f, err := r.Float32(binio.LE)
			if err != nil {
				return nil, err
			}
			*p = f
		}
		return v, nil
	case FieldVector3:
		var v Vector3
		for _, p := range []*float32{&v.X, &v.Y, &v.Z} {
			f, err := r.Float32(binio.LE)
			if err != nil {
				return nil, err
			}
			*p = f
		}
		return v, nil
	case FieldStrRef:
		if err := r.Skip(4); err != nil {
			return nil, err
		}
		v, err := r.Int32(binio.LE)
		return StrRef(v), err
	}
	return nil, errors.Wrapf(ErrUnsupportedFieldType, "%s", t)
}

func decodeLocString(r *binio.Reader) (LocString, error) {
	if err := r.Skip(4); err != nil { // total size
		return LocString{}, err
	}
	ref, err := r.Int32(binio.LE)
	if err != nil {
		return LocString{}, err
	}
	count, err := r.Uint32(binio.LE)
	if err != nil {
		return LocString{}, err
	}
	ls := LocString{StrRef: StrRef(ref)}
	for i := uint32(0); i < count; i++ {
		id, err := r.Uint32(binio.LE)
		if err != nil {
			return LocString{}, err
		}
		n, err := r.Uint32(binio.LE)
		if err != nil {
			return LocString{}, err
		}
		raw, err := r.Bytes(int(n))
		if err != nil {
			return LocString{}, err
		}
		if ls.Substrings == nil {
			ls.Substrings = make(map[SubstringID]string, min(count, 16))
		}
		sid := SubstringID(id)
		ls.Substrings[sid] = textenc.Decode(textenc.Language(sid.Language()), raw)
	}
	return ls, nil
}
