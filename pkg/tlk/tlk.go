// Package tlk reads and writes talk tables: the localized string tables that
// every other resource references by integer string id.
package tlk

import (
	"math"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

// ErrCorrupt is returned for malformed talk table data.
var ErrCorrupt = errors.New("corrupt tlk")

const (
	magic      = "TLK "
	version    = "V3.0"
	headerSize = 20
	entrySize  = 40
)

// Flags mark which parts of an entry are meaningful.
type Flags uint32

const (
	TextPresent        Flags = 0x1
	SoundPresent       Flags = 0x2
	SoundLengthPresent Flags = 0x4
)

// StrRef is a string id. Negative ids never resolve.
type StrRef int32

// NoString is the conventional "no string" reference.
const NoString StrRef = -1

// Entry is one talk table record.
type Entry struct {
	Text           string
	Sound          resource.ResRef
	VolumeVariance uint32
	PitchVariance  uint32
	SoundLength    float32
	Flags          Flags
}

// Missing is returned for ids the table does not contain.
var Missing = Entry{}

func (e Entry) normalized() Entry {
	if e.Text != "" {
		e.Flags |= TextPresent
	}
	if !e.Sound.IsBlank() {
		e.Flags |= SoundPresent
	}
	if e.SoundLength != 0 {
		e.Flags |= SoundLengthPresent
	}
	return e
}

// Talk is a decoded talk table.
type Talk struct {
	Language textenc.Language
	entries  []Entry
}

// New returns an empty table for the given language.
func New(lang textenc.Language) *Talk {
	return &Talk{Language: lang}
}

// Len returns the number of entries; valid ids are 0..Len()-1.
func (t *Talk) Len() int { return len(t.entries) }

// Get returns the entry for id, or Missing when id is out of range. It never
// fails: dialog referencing an unpopulated localization must keep working.
func (t *Talk) Get(id StrRef) Entry {
	if id < 0 || int(id) >= len(t.entries) {
		return Missing
	}
	return t.entries[id]
}

// String returns the text for id, or "" when id is out of range.
func (t *Talk) String(id StrRef) string {
	return t.Get(id).Text
}

// Append adds an entry and returns its id. Presence flags are derived from
// the entry contents.
func (t *Talk) Append(e Entry) StrRef {
	t.entries = append(t.entries, e.normalized())
	return StrRef(len(t.entries) - 1)
}

// Set replaces an entry, growing the table with empty entries when id is
// past the end.
func (t *Talk) Set(id StrRef, e Entry) error {
	if id < 0 {
		return errors.Errorf("invalid string id %d", id)
	}
	for int(id) >= len(t.entries) {
		t.entries = append(t.entries, Entry{})
	}
	t.entries[id] = e.normalized()
	return nil
}

// Entries returns a copy of all entries in id order.
func (t *Talk) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

type decodeConfig struct {
	lang    textenc.Language
	hasLang bool
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

// WithLanguage decodes text with lang's code page regardless of the header.
func WithLanguage(lang textenc.Language) DecodeOption {
	return func(c *decodeConfig) {
		c.lang = lang
		c.hasLang = true
	}
}

// Decode parses a talk table. The whole entry table is validated up front.
func Decode(data []byte, opts ...DecodeOption) (*Talk, error) {
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := binio.NewReader(data)
	m, _ := r.FixedString(4)
	v, err := r.FixedString(4)
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if m != magic || v != version {
		return nil, errors.Wrapf(ErrCorrupt, "bad signature %q %q", m, v)
	}
	lang, _ := r.Uint32(binio.LE)
	count, _ := r.Uint32(binio.LE)
	stringsOffset, err := r.Uint32(binio.LE)
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if uint64(headerSize)+uint64(count)*entrySize > uint64(len(data)) {
		return nil, errors.Wrapf(ErrCorrupt, "%d entries exceed file size %d", count, len(data))
	}
	if int(stringsOffset) > len(data) {
		return nil, errors.Wrapf(ErrCorrupt, "string data offset %d beyond file size %d", stringsOffset, len(data))
	}

	t := &Talk{Language: textenc.Language(lang), entries: make([]Entry, count)}
	codepage := t.Language
	if cfg.hasLang {
		codepage = cfg.lang
	}

	for i := range t.entries {
		flags, _ := r.Uint32(binio.LE)
		sound, _ := r.FixedString(resource.MaxResRefLength)
		vol, _ := r.Uint32(binio.LE)
		pitch, _ := r.Uint32(binio.LE)
		off, _ := r.Uint32(binio.LE)
		size, _ := r.Uint32(binio.LE)
		length, err := r.Float32(binio.LE)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}

		e := Entry{
			VolumeVariance: vol,
			PitchVariance:  pitch,
			SoundLength:    length,
			Flags:          Flags(flags),
		}
		if e.Sound, err = resource.NewResRef(sound); err != nil {
			return nil, errors.Wrapf(ErrCorrupt, "entry %d sound: %v", i, err)
		}
		if e.Flags&TextPresent != 0 && size > 0 {
			raw, err := r.BytesAt(int(stringsOffset)+int(off), int(size))
			if err != nil {
				return nil, errors.Wrapf(ErrCorrupt, "entry %d text [%d,+%d): %v", i, off, size, err)
			}
			e.Text = textenc.Decode(codepage, raw)
		}
		t.entries[i] = e
	}
	return t, nil
}

// Encode serializes t. Only entries flagged as carrying text contribute to
// the shared string block; the rest get a zero offset and size.
func Encode(t *Talk) ([]byte, error) {
	stringsOffset := headerSize + len(t.entries)*entrySize
	w := binio.NewWriter(stringsOffset + len(t.entries)*32)
	w.WriteString(magic)
	w.WriteString(version)
	w.WriteUint32(uint32(t.Language), binio.LE)
	w.WriteUint32(uint32(len(t.entries)), binio.LE)
	w.WriteUint32(uint32(stringsOffset), binio.LE)

	blob := binio.NewWriter(len(t.entries) * 32)
	for i, e := range t.entries {
		var off, size uint32
		if e.Flags&TextPresent != 0 {
			raw, err := textenc.Encode(t.Language, e.Text)
			if err != nil {
				return nil, errors.WithMessagef(err, "entry %d", i)
			}
			if uint64(blob.Len())+uint64(len(raw)) > math.MaxUint32 {
				return nil, errors.Errorf("string data exceeds 4GiB at entry %d", i)
			}
			off, size = uint32(blob.Len()), uint32(len(raw))
			blob.WriteBytes(raw)
		}
		w.WriteUint32(uint32(e.Flags), binio.LE)
		w.WriteFixedString(e.Sound.String(), resource.MaxResRefLength)
		w.WriteUint32(e.VolumeVariance, binio.LE)
		w.WriteUint32(e.PitchVariance, binio.LE)
		w.WriteUint32(off, binio.LE)
		w.WriteUint32(size, binio.LE)
		w.WriteFloat32(e.SoundLength, binio.LE)
	}
	w.WriteBytes(blob.Bytes())
	return w.Bytes(), nil
}
