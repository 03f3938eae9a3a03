// Package archive reads and writes the ERF family (ERF, MOD, SAV, HAK) and RIM
// containers, and reads the KEY/BIF pair the base game ships its resources in.
//
// An Archive is an ordered in-memory index of resources, each owning its own
// byte chunk. Encode rebuilds every offset from the current index order.
package archive

import (
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

var (
	// ErrCorruptArchive is returned when a container is truncated or its
	// tables are inconsistent with its size.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrResourceNotFound is returned when a resource is not in the index.
	ErrResourceNotFound = errors.New("resource not found")
)

// Kind identifies a container variant.
type Kind int

const (
	KindERF Kind = iota
	KindMOD
	KindSAV
	KindHAK
	KindRIM
)

func (k Kind) String() string {
	if v, ok := variants[k]; ok {
		return v.name
	}
	return "unknown"
}

// KindFromExtension maps a file extension (with or without the dot) to a Kind.
func KindFromExtension(ext string) (Kind, bool) {
	ext = strings.TrimPrefix(ext, ".")
	for k, v := range variants {
		if v.name == strings.ToLower(ext) {
			return k, true
		}
	}
	return 0, false
}

// LocalizedString is one entry of an ERF description.
type LocalizedString struct {
	Language textenc.Language
	Text     string
}

// ResourceInfo describes one indexed resource.
type ResourceInfo struct {
	ID   resource.Identifier
	Size int
}

type chunk struct {
	id   resource.Identifier
	data []byte
}

// Archive is an editable container. It is not safe for concurrent mutation.
type Archive struct {
	Kind Kind

	// ERF header fields. RIM ignores them.
	Description       []LocalizedString
	DescriptionStrRef int32
	BuildYear         uint32 // years since 1900
	BuildDay          uint32 // days since January 1

	chunks []chunk
	index  map[resource.Key]int
}

// New returns an empty archive of the given kind stamped with today's date.
func New(kind Kind) *Archive {
	now := time.Now().UTC()
	return &Archive{
		Kind:              kind,
		DescriptionStrRef: -1,
		BuildYear:         uint32(now.Year() - 1900),
		BuildDay:          uint32(now.YearDay() - 1),
		index:             make(map[resource.Key]int),
	}
}

// Len returns the number of resources.
func (a *Archive) Len() int { return len(a.chunks) }

// Set stores a copy of data under id. An existing resource with the same
// name and type is replaced in place.
func (a *Archive) Set(id resource.Identifier, data []byte) {
	c := chunk{id: id, data: slices.Clone(data)}
	if c.data == nil {
		c.data = []byte{}
	}
	if i, ok := a.index[id.Key()]; ok {
		a.chunks[i] = c
		return
	}
	a.index[id.Key()] = len(a.chunks)
	a.chunks = append(a.chunks, c)
}

// Remove deletes the resource with id.
func (a *Archive) Remove(id resource.Identifier) error {
	i, ok := a.index[id.Key()]
	if !ok {
		return errors.Wrapf(ErrResourceNotFound, "%s", id)
	}
	a.chunks = slices.Delete(a.chunks, i, i+1)
	a.reindex()
	return nil
}

func (a *Archive) reindex() {
	a.index = make(map[resource.Key]int, len(a.chunks))
	for i, c := range a.chunks {
		a.index[c.id.Key()] = i
	}
}

// Get returns a copy of the resource data.
func (a *Archive) Get(id resource.Identifier) ([]byte, error) {
	i, ok := a.index[id.Key()]
	if !ok {
		return nil, errors.Wrapf(ErrResourceNotFound, "%s", id)
	}
	return slices.Clone(a.chunks[i].data), nil
}

// Has reports whether id is in the archive.
func (a *Archive) Has(id resource.Identifier) bool {
	_, ok := a.index[id.Key()]
	return ok
}

// List returns the index in order.
func (a *Archive) List() []ResourceInfo {
	out := make([]ResourceInfo, len(a.chunks))
	for i, c := range a.chunks {
		out[i] = ResourceInfo{ID: c.id, Size: len(c.data)}
	}
	return out
}
