package resource

import (
	"fmt"
	"strings"
)

// MaxResRefLength is the width of the on-disk resref field.
const MaxResRefLength = 16

// ResRef is a case-insensitive resource name of at most 16 ASCII characters.
// The zero value is the blank resref.
type ResRef struct {
	name string
}

// NewResRef validates name and returns it as a ResRef.
func NewResRef(name string) (ResRef, error) {
	if len(name) > MaxResRefLength {
		return ResRef{}, fmt.Errorf("resref %q exceeds %d characters", name, MaxResRefLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c > 0x7e {
			return ResRef{}, fmt.Errorf("resref %q contains invalid byte %#x", name, c)
		}
	}
	return ResRef{name: name}, nil
}

// MustResRef is NewResRef for constants; it panics on invalid input.
func MustResRef(name string) ResRef {
	r, err := NewResRef(name)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the resref with its original case.
func (r ResRef) String() string { return r.name }

// Key returns the lowercase form used for comparisons and map keys.
func (r ResRef) Key() string { return strings.ToLower(r.name) }

// IsBlank reports whether the resref is empty.
func (r ResRef) IsBlank() bool { return r.name == "" }

// Equal compares two resrefs case-insensitively.
func (r ResRef) Equal(other ResRef) bool {
	return strings.EqualFold(r.name, other.name)
}

// Key is the case-folded map key of an Identifier.
type Key struct {
	Name string
	Type Type
}

// Key returns the case-folded map key for id.
func (id Identifier) Key() Key {
	return Key{Name: id.ResRef.Key(), Type: id.Type}
}
