package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
)

const (
	keyHeaderSize   = 64
	keyFileSize     = 12
	keyEntrySize    = 22
	bifEntrySize    = 16
	bifIndexBits    = 20
	bifIndexMask    = 1<<bifIndexBits - 1
	keyBIFVersion   = "V1  "
	keyBIFVersion11 = "V1.1"
)

// BIFRef names a BIF listed in a KEY file.
type BIFRef struct {
	Path   string // relative to the KEY file, with forward slashes
	Size   uint32
	Drives uint16
}

// KeyEntry locates one resource: which BIF and which slot inside it.
type KeyEntry struct {
	ID    resource.Identifier
	BIF   int
	Index uint32
}

// KeyTable is a decoded KEY file: the index over a set of BIFs.
type KeyTable struct {
	BIFs    []BIFRef
	Entries []KeyEntry
	index   map[resource.Key]int
}

// DecodeKey parses a KEY file.
func DecodeKey(data []byte) (*KeyTable, error) {
	r := binio.NewReader(data)
	magic, _ := r.FixedString(4)
	ver, _ := r.FixedString(4)
	if magic != "KEY " || (ver != keyBIFVersion && ver != keyBIFVersion11) {
		return nil, corrupt("unknown key signature %q %q", magic, ver)
	}
	if len(data) < keyHeaderSize {
		return nil, corrupt("key file of %d bytes is shorter than its header", len(data))
	}
	bifCount, _ := r.Uint32(binio.LE)
	keyCount, _ := r.Uint32(binio.LE)
	fileOffset, _ := r.Uint32(binio.LE)
	keyOffset, _ := r.Uint32(binio.LE)

	if err := checkSpan(len(data), "bif table", fileOffset, uint64(bifCount)*keyFileSize); err != nil {
		return nil, err
	}
	if err := checkSpan(len(data), "key table", keyOffset, uint64(keyCount)*keyEntrySize); err != nil {
		return nil, err
	}

	k := &KeyTable{
		BIFs:    make([]BIFRef, bifCount),
		Entries: make([]KeyEntry, keyCount),
		index:   make(map[resource.Key]int, keyCount),
	}
	for i := range k.BIFs {
		r.Seek(int(fileOffset) + i*keyFileSize)
		size, _ := r.Uint32(binio.LE)
		nameOff, _ := r.Uint32(binio.LE)
		nameLen, _ := r.Uint16(binio.LE)
		drives, _ := r.Uint16(binio.LE)
		raw, err := r.BytesAt(int(nameOff), int(nameLen))
		if err != nil {
			return nil, corrupt("bif %d name: %v", i, err)
		}
		name := strings.TrimRight(string(raw), "\x00")
		k.BIFs[i] = BIFRef{Path: strings.ReplaceAll(name, `\`, "/"), Size: size, Drives: drives}
	}

	for i := range k.Entries {
		r.Seek(int(keyOffset) + i*keyEntrySize)
		name, _ := r.FixedString(resource.MaxResRefLength)
		typ, _ := r.Uint16(binio.LE)
		resID, err := r.Uint32(binio.LE)
		if err != nil {
			return nil, corrupt("key %d: %v", i, err)
		}
		ref, err := resource.NewResRef(name)
		if err != nil {
			return nil, corrupt("key %d: %v", i, err)
		}
		bif := int(resID >> bifIndexBits)
		if bif >= len(k.BIFs) {
			return nil, corrupt("key %d references bif %d of %d", i, bif, len(k.BIFs))
		}
		e := KeyEntry{
			ID:    resource.Identifier{ResRef: ref, Type: resource.Type(typ)},
			BIF:   bif,
			Index: resID & bifIndexMask,
		}
		k.Entries[i] = e
		k.index[e.ID.Key()] = i
	}
	return k, nil
}

// Lookup finds the location of id.
func (k *KeyTable) Lookup(id resource.Identifier) (KeyEntry, bool) {
	i, ok := k.index[id.Key()]
	if !ok {
		return KeyEntry{}, false
	}
	return k.Entries[i], true
}

type bifEntry struct {
	offset uint32
	size   uint32
	typ    resource.Type
}

// BIF is a read-only decoded BIF file. Variable resources are addressed by
// their index inside the file.
type BIF struct {
	data    []byte
	entries map[uint32]bifEntry
}

// DecodeBIF parses a BIF file, validating every entry against the file size.
func DecodeBIF(data []byte) (*BIF, error) {
	r := binio.NewReader(data)
	magic, _ := r.FixedString(4)
	ver, _ := r.FixedString(4)
	if magic != "BIFF" || (ver != keyBIFVersion && ver != keyBIFVersion11) {
		return nil, corrupt("unknown bif signature %q %q", magic, ver)
	}
	varCount, _ := r.Uint32(binio.LE)
	r.Skip(4) // fixed resources are unused
	tableOffset, err := r.Uint32(binio.LE)
	if err != nil {
		return nil, corrupt("bif header: %v", err)
	}
	if err := checkSpan(len(data), "variable table", tableOffset, uint64(varCount)*bifEntrySize); err != nil {
		return nil, err
	}

	b := &BIF{data: data, entries: make(map[uint32]bifEntry, varCount)}
	r.Seek(int(tableOffset))
	for i := uint32(0); i < varCount; i++ {
		id, _ := r.Uint32(binio.LE)
		off, _ := r.Uint32(binio.LE)
		size, _ := r.Uint32(binio.LE)
		typ, _ := r.Uint32(binio.LE)
		if err := checkSpan(len(data), fmt.Sprintf("bif resource %d", i), off, uint64(size)); err != nil {
			return nil, err
		}
		b.entries[id&bifIndexMask] = bifEntry{offset: off, size: size, typ: resource.Type(typ)}
	}
	return b, nil
}

// Len returns the number of variable resources.
func (b *BIF) Len() int { return len(b.entries) }

// Get returns a copy of the resource stored at index.
func (b *BIF) Get(index uint32) ([]byte, resource.Type, error) {
	e, ok := b.entries[index]
	if !ok {
		return nil, 0, errors.Wrapf(ErrResourceNotFound, "bif index %d", index)
	}
	out := make([]byte, e.size)
	copy(out, b.data[e.offset:e.offset+e.size])
	return out, e.typ, nil
}

// Chitin resolves resources through a KEY file and the BIFs it lists. BIFs
// are loaded on first use. It is safe for concurrent use.
type Chitin struct {
	Key *KeyTable
	dir string

	mu   sync.Mutex
	bifs map[int]*BIF
}

// OpenChitin reads the KEY file at path. BIF paths resolve relative to its
// directory.
func OpenChitin(path string) (*Chitin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	k, err := DecodeKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", filepath.Base(path), err)
	}
	return &Chitin{Key: k, dir: filepath.Dir(path), bifs: make(map[int]*BIF)}, nil
}

func (c *Chitin) bif(i int) (*BIF, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bifs[i]; ok {
		return b, nil
	}
	path := filepath.Join(c.dir, filepath.FromSlash(c.Key.BIFs[i].Path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bif: %w", err)
	}
	b, err := DecodeBIF(data)
	if err != nil {
		return nil, fmt.Errorf("parse bif %s: %w", filepath.Base(path), err)
	}
	c.bifs[i] = b
	return b, nil
}

// Get returns a copy of the resource named by id.
func (c *Chitin) Get(id resource.Identifier) ([]byte, error) {
	e, ok := c.Key.Lookup(id)
	if !ok {
		return nil, errors.Wrapf(ErrResourceNotFound, "%s", id)
	}
	b, err := c.bif(e.BIF)
	if err != nil {
		return nil, err
	}
	data, _, err := b.Get(e.Index)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", id)
	}
	return data, nil
}

// List returns every resource the KEY file indexes.
func (c *Chitin) List() []resource.Identifier {
	out := make([]resource.Identifier, len(c.Key.Entries))
	for i, e := range c.Key.Entries {
		out[i] = e.ID
	}
	return out
}
