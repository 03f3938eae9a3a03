package archive

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

const version = "V1.0"

// variant describes how one container kind lays out its header and index.
// All kinds share the header, tables, blob shape.
type variant struct {
	name       string
	magic      string
	headerSize int
	keySize    int
	resSize    int // 0 when offset and size live in the key record
	erfHeader  bool
}

var variants = map[Kind]*variant{
	KindERF: {name: "erf", magic: "ERF ", headerSize: 160, keySize: 24, resSize: 8, erfHeader: true},
	KindMOD: {name: "mod", magic: "MOD ", headerSize: 160, keySize: 24, resSize: 8, erfHeader: true},
	// Save games carry the MOD signature.
	KindSAV: {name: "sav", magic: "MOD ", headerSize: 160, keySize: 24, resSize: 8, erfHeader: true},
	KindHAK: {name: "hak", magic: "HAK ", headerSize: 160, keySize: 24, resSize: 8, erfHeader: true},
	KindRIM: {name: "rim", magic: "RIM ", headerSize: 120, keySize: 32},
}

func kindFromMagic(magic string) (Kind, bool) {
	switch magic {
	case "ERF ":
		return KindERF, true
	case "MOD ":
		return KindMOD, true
	case "HAK ":
		return KindHAK, true
	case "RIM ":
		return KindRIM, true
	}
	return 0, false
}

// header holds the decoded fields every variant maps onto.
type header struct {
	kind       Kind
	langCount  uint32
	locSize    uint32
	count      uint32
	locOffset  uint32
	keyOffset  uint32
	resOffset  uint32
	buildYear  uint32
	buildDay   uint32
	descStrRef int32
}

type indexEntry struct {
	id     resource.Identifier
	offset uint32
	size   uint32
}

func corrupt(format string, args ...any) error {
	return errors.Wrapf(ErrCorruptArchive, format, args...)
}

func readHeader(r *binio.Reader) (*header, *variant, error) {
	magic, _ := r.FixedString(4)
	ver, err := r.FixedString(4)
	if err != nil {
		return nil, nil, corrupt("header: %v", err)
	}
	kind, ok := kindFromMagic(magic)
	if !ok || ver != version {
		return nil, nil, corrupt("unknown signature %q %q", magic, ver)
	}
	v := variants[kind]
	if r.Len() < v.headerSize {
		return nil, nil, corrupt("file of %d bytes is shorter than the %d byte header", r.Len(), v.headerSize)
	}

	h := &header{kind: kind}
	if v.erfHeader {
		fields := []*uint32{&h.langCount, &h.locSize, &h.count, &h.locOffset, &h.keyOffset, &h.resOffset, &h.buildYear, &h.buildDay}
		for _, f := range fields {
			*f, _ = r.Uint32(binio.LE)
		}
		h.descStrRef, _ = r.Int32(binio.LE)
	} else {
		r.Skip(4)
		h.count, _ = r.Uint32(binio.LE)
		h.keyOffset, _ = r.Uint32(binio.LE)
	}
	return h, v, nil
}

func checkSpan(n int, what string, offset uint32, size uint64) error {
	if uint64(offset)+size > uint64(n) {
		return corrupt("%s [%d,+%d) exceeds file size %d", what, offset, size, n)
	}
	return nil
}

// decodeIndex reads the header and index without touching resource data.
// Every table and resource range is validated against the file size.
func decodeIndex(data []byte) (*header, []indexEntry, error) {
	r := binio.NewReader(data)
	h, v, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	n := len(data)
	if err := checkSpan(n, "key table", h.keyOffset, uint64(h.count)*uint64(v.keySize)); err != nil {
		return nil, nil, err
	}
	if v.resSize > 0 {
		if err := checkSpan(n, "resource table", h.resOffset, uint64(h.count)*uint64(v.resSize)); err != nil {
			return nil, nil, err
		}
	}
	if v.erfHeader {
		if err := checkSpan(n, "localized strings", h.locOffset, uint64(h.locSize)); err != nil {
			return nil, nil, err
		}
	}

	entries := make([]indexEntry, h.count)
	for i := range entries {
		r.Seek(int(h.keyOffset) + i*v.keySize)
		name, _ := r.FixedString(resource.MaxResRefLength)
		var typ uint32
		if v.resSize > 0 {
			r.Skip(4) // resource id
			t, _ := r.Uint16(binio.LE)
			typ = uint32(t)
			r.Seek(int(h.resOffset) + i*v.resSize)
		} else {
			typ, _ = r.Uint32(binio.LE)
			r.Skip(4)
		}
		entries[i].offset, _ = r.Uint32(binio.LE)
		entries[i].size, err = r.Uint32(binio.LE)
		if err != nil {
			return nil, nil, corrupt("entry %d: %v", i, err)
		}

		ref, err := resource.NewResRef(name)
		if err != nil {
			return nil, nil, corrupt("entry %d: %v", i, err)
		}
		entries[i].id = resource.Identifier{ResRef: ref, Type: resource.Type(typ)}
		if err := checkSpan(n, entries[i].id.String(), entries[i].offset, uint64(entries[i].size)); err != nil {
			return nil, nil, err
		}
	}

	if err := checkOverlap(entries); err != nil {
		return nil, nil, err
	}
	return h, entries, nil
}

func checkOverlap(entries []indexEntry) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b indexEntry) int { return int(a.offset) - int(b.offset) })
	var end uint64
	var prev resource.Identifier
	for _, e := range sorted {
		if e.size == 0 {
			continue
		}
		if uint64(e.offset) < end {
			return corrupt("%s overlaps %s", e.id, prev)
		}
		end = uint64(e.offset) + uint64(e.size)
		prev = e.id
	}
	return nil
}

func decodeDescription(data []byte, h *header) ([]LocalizedString, error) {
	if h.langCount == 0 {
		return nil, nil
	}
	// Each entry is at least a language id and a length.
	if uint64(h.langCount)*8 > uint64(h.locSize) {
		return nil, corrupt("%d localized strings in %d bytes", h.langCount, h.locSize)
	}
	r := binio.NewReader(data[h.locOffset : h.locOffset+h.locSize])
	out := make([]LocalizedString, 0, min(h.langCount, 64))
	for i := uint32(0); i < h.langCount; i++ {
		lang, err := r.Uint32(binio.LE)
		if err != nil {
			return nil, corrupt("localized string %d language: %v", i, err)
		}
		size, err := r.Uint32(binio.LE)
		if err != nil {
			return nil, corrupt("localized string %d size: %v", i, err)
		}
		if uint64(size) > uint64(r.Remaining()) {
			return nil, corrupt("localized string %d of %d bytes exceeds section", i, size)
		}
		raw, err := r.Bytes(int(size))
		if err != nil {
			return nil, corrupt("localized string %d: %v", i, err)
		}
		l := textenc.Language(lang)
		out = append(out, LocalizedString{Language: l, Text: textenc.Decode(l, raw)})
	}
	return out, nil
}

// Decode parses a container. A compressed envelope is unwrapped first. The
// whole index is validated before any resource is copied out.
func Decode(data []byte) (*Archive, error) {
	if compressed.IsCompressed(data) {
		raw, err := compressed.Decompress(data)
		if err != nil {
			return nil, corrupt("unwrap compressed archive: %v", err)
		}
		data = raw
	}

	h, entries, err := decodeIndex(data)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Kind:              h.kind,
		DescriptionStrRef: -1,
		index:             make(map[resource.Key]int, len(entries)),
	}
	if variants[h.kind].erfHeader {
		a.BuildYear, a.BuildDay, a.DescriptionStrRef = h.buildYear, h.buildDay, h.descStrRef
		if a.Description, err = decodeDescription(data, h); err != nil {
			return nil, err
		}
	}
	for _, e := range entries {
		a.Set(e.id, data[e.offset:e.offset+e.size])
	}
	return a, nil
}

func (a *Archive) variant() (*variant, error) {
	v, ok := variants[a.Kind]
	if !ok {
		return nil, errors.Errorf("unknown archive kind %d", a.Kind)
	}
	return v, nil
}

func (a *Archive) encodeDescription() ([]byte, error) {
	w := binio.NewWriter(64)
	for _, ls := range a.Description {
		raw, err := textenc.Encode(ls.Language, ls.Text)
		if err != nil {
			return nil, errors.WithMessagef(err, "description (%s)", ls.Language)
		}
		w.WriteUint32(uint32(ls.Language), binio.LE)
		w.WriteUint32(uint32(len(raw)), binio.LE)
		w.WriteBytes(raw)
	}
	return w.Bytes(), nil
}

// tables serializes the localized strings and index tables as they will sit
// at file offset base, and returns them with the header that points at them.
func (a *Archive) tables(v *variant, entries []indexEntry, base int) ([]byte, *header, error) {
	h := &header{kind: a.Kind, count: uint32(len(entries))}
	w := binio.NewWriter(len(entries) * (v.keySize + v.resSize))

	if v.erfHeader {
		loc, err := a.encodeDescription()
		if err != nil {
			return nil, nil, err
		}
		h.langCount = uint32(len(a.Description))
		h.locOffset = uint32(base)
		h.locSize = uint32(len(loc))
		h.buildYear, h.buildDay, h.descStrRef = a.BuildYear, a.BuildDay, a.DescriptionStrRef
		w.WriteBytes(loc)
	}

	h.keyOffset = uint32(base + w.Len())
	for i, e := range entries {
		w.WriteFixedString(e.id.ResRef.String(), resource.MaxResRefLength)
		if v.resSize > 0 {
			w.WriteUint32(uint32(i), binio.LE)
			w.WriteUint16(uint16(e.id.Type), binio.LE)
			w.WriteUint16(0, binio.LE)
		} else {
			w.WriteUint32(uint32(e.id.Type), binio.LE)
			w.WriteUint32(uint32(i), binio.LE)
			w.WriteUint32(e.offset, binio.LE)
			w.WriteUint32(e.size, binio.LE)
		}
	}
	if v.resSize > 0 {
		h.resOffset = uint32(base + w.Len())
		for _, e := range entries {
			w.WriteUint32(e.offset, binio.LE)
			w.WriteUint32(e.size, binio.LE)
		}
	}
	return w.Bytes(), h, nil
}

func (v *variant) encodeHeader(h *header) []byte {
	w := binio.NewWriter(v.headerSize)
	w.WriteString(v.magic)
	w.WriteString(version)
	if v.erfHeader {
		for _, f := range []uint32{h.langCount, h.locSize, h.count, h.locOffset, h.keyOffset, h.resOffset, h.buildYear, h.buildDay} {
			w.WriteUint32(f, binio.LE)
		}
		w.WriteInt32(h.descStrRef, binio.LE)
	} else {
		w.WriteUint32(0, binio.LE)
		w.WriteUint32(h.count, binio.LE)
		w.WriteUint32(h.keyOffset, binio.LE)
	}
	w.Seek(v.headerSize - 1)
	w.WriteUint8(0)
	return w.Bytes()
}

// tableSize returns the size of the localized strings and index tables.
func (a *Archive) tableSize(v *variant) (int, error) {
	n := len(a.chunks) * (v.keySize + v.resSize)
	if v.erfHeader {
		loc, err := a.encodeDescription()
		if err != nil {
			return 0, err
		}
		n += len(loc)
	}
	return n, nil
}

// Encode serializes the archive in one pass: header, tables, then every
// resource in index order.
func (a *Archive) Encode() ([]byte, error) {
	v, err := a.variant()
	if err != nil {
		return nil, err
	}
	size, err := a.tableSize(v)
	if err != nil {
		return nil, err
	}

	entries := make([]indexEntry, len(a.chunks))
	off := uint64(v.headerSize + size)
	for i, c := range a.chunks {
		if off+uint64(len(c.data)) > math.MaxUint32 {
			return nil, errors.Errorf("archive exceeds 4GiB at %s", c.id)
		}
		entries[i] = indexEntry{id: c.id, offset: uint32(off), size: uint32(len(c.data))}
		off += uint64(len(c.data))
	}

	tables, h, err := a.tables(v, entries, v.headerSize)
	if err != nil {
		return nil, err
	}
	w := binio.NewWriter(int(off))
	w.WriteBytes(v.encodeHeader(h))
	w.WriteBytes(tables)
	for _, c := range a.chunks {
		w.WriteBytes(c.data)
	}
	return w.Bytes(), nil
}
