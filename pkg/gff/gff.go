// Package gff reads and writes the Generic File Format: a typed tree of
// structs, lists and scalar fields used by most individual game resources
// (creatures, items, dialogs, areas, ...).
package gff

import (
	"bytes"
	"fmt"
	"maps"
	"math"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
)

var (
	// ErrUnsupportedFieldType is returned for field type ids outside the table.
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	// ErrNestingTooDeep is returned when structs nest beyond the configured depth.
	ErrNestingTooDeep = errors.New("nesting too deep")
	// ErrCorrupt is returned for inconsistent headers, offsets or index cycles.
	ErrCorrupt = errors.New("corrupt gff")
	// ErrInvalidValue is returned when a value does not match its field type.
	ErrInvalidValue = errors.New("invalid field value")
)

// Version is the only on-disk version this package writes.
const Version = "V3.2"

// MaxLabelLength is the width of an on-disk label.
const MaxLabelLength = 16

// FieldType is the on-disk field type id.
type FieldType uint32

const (
	FieldUint8 FieldType = iota
	FieldInt8
	FieldUint16
	FieldInt16
	FieldUint32
	FieldInt32
	FieldUint64
	FieldInt64
	FieldFloat32
	FieldFloat64
	FieldString
	FieldResRef
	FieldLocString
	FieldBinary
	FieldStruct
	FieldList
	FieldVector4
	FieldVector3
	FieldStrRef
)

type fieldTypeInfo struct {
	name    string
	complex bool // value lives in the field data block
}

var fieldTypes = [...]fieldTypeInfo{
	FieldUint8:     {"Byte", false},
	FieldInt8:      {"Char", false},
	FieldUint16:    {"Word", false},
	FieldInt16:     {"Short", false},
	FieldUint32:    {"DWord", false},
	FieldInt32:     {"Int", false},
	FieldUint64:    {"DWord64", true},
	FieldInt64:     {"Int64", true},
	FieldFloat32:   {"Float", false},
	FieldFloat64:   {"Double", true},
	FieldString:    {"CExoString", true},
	FieldResRef:    {"ResRef", true},
	FieldLocString: {"CExoLocString", true},
	FieldBinary:    {"Void", true},
	FieldStruct:    {"Struct", false},
	FieldList:      {"List", false},
	FieldVector4:   {"Orientation", true},
	FieldVector3:   {"Vector", true},
	FieldStrRef:    {"StrRef", true},
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool { return int(t) < len(fieldTypes) }

func (t FieldType) String() string {
	if t.Valid() {
		return fieldTypes[t].name
	}
	return fmt.Sprintf("FieldType(%d)", uint32(t))
}

// Vector3 is a position or direction.
type Vector3 struct{ X, Y, Z float32 }

// Vector4 is an orientation quaternion.
type Vector4 struct{ X, Y, Z, W float32 }

// StrRef is an index into the talk table. -1 means none.
type StrRef int32

// SubstringID combines a language and gender: language*2 + gender.
type SubstringID uint32

// NewSubstringID builds the id for language lang, feminine form if feminine.
func NewSubstringID(lang uint32, feminine bool) SubstringID {
	id := SubstringID(lang * 2)
	if feminine {
		id++
	}
	return id
}

// Language returns the language half of the id.
func (id SubstringID) Language() uint32 { return uint32(id) / 2 }

// Feminine reports whether the id is the feminine variant.
func (id SubstringID) Feminine() bool { return id%2 == 1 }

// LocString is a localized string: a talk table reference plus optional
// per-language overrides.
type LocString struct {
	StrRef     StrRef
	Substrings map[SubstringID]string
}

// NewLocString returns a LocString with no substrings.
func NewLocString(ref StrRef) LocString {
	return LocString{StrRef: ref}
}

// Equal compares two localized strings.
func (l LocString) Equal(o LocString) bool {
	return l.StrRef == o.StrRef && maps.Equal(l.Substrings, o.Substrings)
}

// List is an ordered list of structs.
type List []*Struct

// Field is one labelled value in a struct.
type Field struct {
	Label string
	Type  FieldType
	Value any
}

// GFF is a decoded resource: a four character content type and the root struct.
type GFF struct {
	FileType string // e.g. "UTC ", "DLG "
	Root     *Struct
}

// New returns a GFF with an empty root struct. RootStructType is used for the
// root as the engine expects.
func New(fileType string) *GFF {
	return &GFF{FileType: fileType, Root: NewStruct(RootStructType)}
}

// RootStructType is the struct type id of every root struct.
const RootStructType = 0xFFFFFFFF

// Struct is an ordered mapping from unique labels to fields plus an opaque
// type id.
type Struct struct {
	TypeID uint32
	fields []Field
	index  map[string]int
}

// NewStruct returns an empty struct with the given type id.
func NewStruct(typeID uint32) *Struct {
	return &Struct{TypeID: typeID, index: make(map[string]int)}
}

// Len returns the number of fields.
func (s *Struct) Len() int { return len(s.fields) }

// Fields returns the fields in insertion order. The slice is a copy; nested
// structs are shared.
func (s *Struct) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Get returns the field with the given label.
func (s *Struct) Get(label string) (Field, bool) {
	i, ok := s.index[label]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether label is present.
func (s *Struct) Has(label string) bool {
	_, ok := s.index[label]
	return ok
}

// Remove deletes the field with the given label, preserving the order of the
// remaining fields.
func (s *Struct) Remove(label string) bool {
	i, ok := s.index[label]
	if !ok {
		return false
	}
	s.fields = append(s.fields[:i], s.fields[i+1:]...)
	delete(s.index, label)
	for j := i; j < len(s.fields); j++ {
		s.index[s.fields[j].Label] = j
	}
	return true
}

// Set stores value under label, replacing any existing field with the same
// label in place. The dynamic type of value must match t.
func (s *Struct) Set(label string, t FieldType, value any) error {
	if !t.Valid() {
		return errors.Wrapf(ErrUnsupportedFieldType, "field %q type %d", label, uint32(t))
	}
	if err := checkValue(t, value); err != nil {
		return errors.Wrapf(err, "field %q", label)
	}
	s.set(Field{Label: label, Type: t, Value: value})
	return nil
}

func (s *Struct) set(f Field) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[f.Label]; ok {
		s.fields[i] = f
		return
	}
	s.index[f.Label] = len(s.fields)
	s.fields = append(s.fields, f)
}

func checkValue(t FieldType, v any) error {
	var ok bool
	switch t {
	case FieldUint8:
		_, ok = v.(uint8)
	case FieldInt8:
		_, ok = v.(int8)
	case FieldUint16:
		_, ok = v.(uint16)
	case FieldInt16:
		_, ok = v.(int16)
	case FieldUint32:
		_, ok = v.(uint32)
	case FieldInt32:
		_, ok = v.(int32)
	case FieldUint64:
		_, ok = v.(uint64)
	case FieldInt64:
		_, ok = v.(int64)
	case FieldFloat32:
		_, ok = v.(float32)
	case FieldFloat64:
		_, ok = v.(float64)
	case FieldString:
		_, ok = v.(string)
	case FieldResRef:
		_, ok = v.(resource.ResRef)
	case FieldLocString:
		_, ok = v.(LocString)
	case FieldBinary:
		_, ok = v.([]byte)
	case FieldStruct:
		var st *Struct
		st, ok = v.(*Struct)
		ok = ok && st != nil
	case FieldList:
		_, ok = v.(List)
	case FieldVector4:
		_, ok = v.(Vector4)
	case FieldVector3:
		_, ok = v.(Vector3)
	case FieldStrRef:
		_, ok = v.(StrRef)
	}
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "%T is not a %s", v, t)
	}
	return nil
}

func (s *Struct) SetUint8(label string, v uint8)     { s.set(Field{label, FieldUint8, v}) }
func (s *Struct) SetInt8(label string, v int8)       { s.set(Field{label, FieldInt8, v}) }
func (s *Struct) SetUint16(label string, v uint16)   { s.set(Field{label, FieldUint16, v}) }
func (s *Struct) SetInt16(label string, v int16)     { s.set(Field{label, FieldInt16, v}) }
func (s *Struct) SetUint32(label string, v uint32)   { s.set(Field{label, FieldUint32, v}) }
func (s *Struct) SetInt32(label string, v int32)     { s.set(Field{label, FieldInt32, v}) }
func (s *Struct) SetUint64(label string, v uint64)   { s.set(Field{label, FieldUint64, v}) }
func (s *Struct) SetInt64(label string, v int64)     { s.set(Field{label, FieldInt64, v}) }
func (s *Struct) SetFloat32(label string, v float32) { s.set(Field{label, FieldFloat32, v}) }
func (s *Struct) SetFloat64(label string, v float64) { s.set(Field{label, FieldFloat64, v}) }
func (s *Struct) SetString(label string, v string)   { s.set(Field{label, FieldString, v}) }
func (s *Struct) SetVector3(label string, v Vector3) { s.set(Field{label, FieldVector3, v}) }
func (s *Struct) SetVector4(label string, v Vector4) { s.set(Field{label, FieldVector4, v}) }
func (s *Struct) SetStrRef(label string, v StrRef)   { s.set(Field{label, FieldStrRef, v}) }

func (s *Struct) SetResRef(label string, v resource.ResRef) {
	s.set(Field{label, FieldResRef, v})
}

func (s *Struct) SetLocString(label string, v LocString) {
	s.set(Field{label, FieldLocString, v})
}

func (s *Struct) SetBinary(label string, v []byte) {
	s.set(Field{label, FieldBinary, bytes.Clone(v)})
}

// SetStruct stores a nested struct and returns it.
func (s *Struct) SetStruct(label string, v *Struct) *Struct {
	s.set(Field{label, FieldStruct, v})
	return v
}

// SetList stores a list of structs.
func (s *Struct) SetList(label string, v List) {
	s.set(Field{label, FieldList, v})
}

// Value returns the value stored under label when it has type T, or def.
func Value[T any](s *Struct, label string, def T) T {
	f, ok := s.Get(label)
	if !ok {
		return def
	}
	v, ok := f.Value.(T)
	if !ok {
		return def
	}
	return v
}

// GetStruct returns the nested struct under label.
func (s *Struct) GetStruct(label string) (*Struct, bool) {
	v := Value[*Struct](s, label, nil)
	return v, v != nil
}

// GetList returns the list under label.
func (s *Struct) GetList(label string) (List, bool) {
	f, ok := s.Get(label)
	if !ok {
		return nil, false
	}
	l, ok := f.Value.(List)
	return l, ok
}

type structPair struct{ a, b *Struct }

// Clone returns a deep copy of s. The copy shares nothing with s.
func (s *Struct) Clone() *Struct {
	root := NewStruct(s.TypeID)
	work := []structPair{{s, root}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		p.b.TypeID = p.a.TypeID
		for _, f := range p.a.fields {
			switch v := f.Value.(type) {
			case *Struct:
				if v != nil {
					c := NewStruct(v.TypeID)
					work = append(work, structPair{v, c})
					f.Value = c
				}
			case List:
				// Nil elements stay nil; Encode rejects them.
				l := make(List, len(v))
				for i, e := range v {
					if e == nil {
						continue
					}
					l[i] = NewStruct(e.TypeID)
					work = append(work, structPair{e, l[i]})
				}
				f.Value = l
			case []byte:
				f.Value = bytes.Clone(v)
			case LocString:
				f.Value = LocString{StrRef: v.StrRef, Substrings: maps.Clone(v.Substrings)}
			}
			p.b.set(f)
		}
	}
	return root
}

// Equal reports whether two trees have the same type ids, labels, field
// order and values.
func (s *Struct) Equal(other *Struct) bool {
	work := []structPair{{s, other}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.TypeID != p.b.TypeID || len(p.a.fields) != len(p.b.fields) {
			return false
		}
		for i, fa := range p.a.fields {
			fb := p.b.fields[i]
			if fa.Label != fb.Label || fa.Type != fb.Type {
				return false
			}
			switch va := fa.Value.(type) {
			case *Struct:
				work = append(work, structPair{va, fb.Value.(*Struct)})
			case List:
				vb := fb.Value.(List)
				if len(va) != len(vb) {
					return false
				}
				for j := range va {
					work = append(work, structPair{va[j], vb[j]})
				}
			case []byte:
				if !bytes.Equal(va, fb.Value.([]byte)) {
					return false
				}
			case LocString:
				if !va.Equal(fb.Value.(LocString)) {
					return false
				}
			case resource.ResRef:
				if va.String() != fb.Value.(resource.ResRef).String() {
					return false
				}
			case float32, float64, Vector3, Vector4:
				if !sameBits(va, fb.Value) {
					return false
				}
			default:
				if fa.Value != fb.Value {
					return false
				}
			}
		}
	}
	return true
}

// sameBits compares floating point values by representation, so a NaN
// read back from a file equals the NaN written.
func sameBits(a, b any) bool {
	f32 := math.Float32bits
	switch a := a.(type) {
	case float32:
		b, ok := b.(float32)
		return ok && f32(a) == f32(b)
	case float64:
		b, ok := b.(float64)
		return ok && math.Float64bits(a) == math.Float64bits(b)
	case Vector3:
		b, ok := b.(Vector3)
		return ok && f32(a.X) == f32(b.X) && f32(a.Y) == f32(b.Y) && f32(a.Z) == f32(b.Z)
	case Vector4:
		b, ok := b.(Vector4)
		return ok && f32(a.X) == f32(b.X) && f32(a.Y) == f32(b.Y) && f32(a.Z) == f32(b.Z) && f32(a.W) == f32(b.W)
	}
	return false
}

// Equal compares two resources structurally.
func (g *GFF) Equal(other *GFF) bool {
	return g.FileType == other.FileType && g.Root.Equal(other.Root)
}
