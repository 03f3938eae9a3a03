package twoda

import (
	"bufio"
	"bytes"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/NickHugi/PyKotor-sub008/pkg/textenc"
)

const (
	binarySignature = "2DA V2.b"
	textSignature   = "2DA V2.0"
)

// ErrTooLarge is returned when the cell data block exceeds the 16-bit offsets
// of the binary format.
var ErrTooLarge = errors.New("2da cell data exceeds 65535 bytes")

// Decode parses either the binary (V2.b) or text (V2.0) form.
func Decode(data []byte) (*Table, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	switch {
	case bytes.HasPrefix(trimmed, []byte(binarySignature)):
		return DecodeBinary(trimmed)
	case bytes.HasPrefix(trimmed, []byte(textSignature)):
		return DecodeText(trimmed)
	}
	return nil, errors.Wrap(ErrCorrupt, "unrecognized signature")
}

// DecodeBinary parses the binary V2.b form.
func DecodeBinary(data []byte) (*Table, error) {
	r := binio.NewReader(data)
	sig, err := r.FixedString(len(binarySignature))
	if err != nil || sig != binarySignature {
		return nil, errors.Wrapf(ErrCorrupt, "bad signature %q", sig)
	}
	if nl, err := r.Uint8(); err != nil || nl != '\n' {
		return nil, errors.Wrap(ErrCorrupt, "missing newline after signature")
	}

	headerBlock, err := r.CString()
	if err != nil {
		return nil, errors.Wrap(err, "read column headers")
	}
	t := New()
	for _, h := range strings.Split(strings.TrimSuffix(headerBlock, "\t"), "\t") {
		if h != "" {
			t.AddColumn(textenc.DecodeDefault([]byte(h)), "")
		}
	}

	rowCount, err := r.Uint32(binio.LE)
	if err != nil {
		return nil, errors.Wrap(err, "read row count")
	}
	cols := t.Width()
	// Each row needs a tab-terminated label and two bytes per cell.
	if int64(rowCount)*int64(2*cols+1) > int64(r.Remaining()) {
		return nil, errors.Wrapf(ErrCorrupt, "%d rows x %d columns exceeds file size", rowCount, cols)
	}

	t.labels = make([]string, rowCount)
	for i := range t.labels {
		label, err := readTabTerminated(r)
		if err != nil {
			return nil, errors.Wrapf(err, "row label %d", i)
		}
		t.labels[i] = label
	}

	offsets := make([]uint16, int(rowCount)*cols)
	for i := range offsets {
		if offsets[i], err = r.Uint16(binio.LE); err != nil {
			return nil, errors.Wrap(err, "read cell offsets")
		}
	}
	dataSize, err := r.Uint16(binio.LE)
	if err != nil {
		return nil, errors.Wrap(err, "read cell data size")
	}
	dataStart := r.Pos()
	if r.Remaining() < int(dataSize) {
		return nil, errors.Wrapf(ErrCorrupt, "cell data size %d exceeds remaining %d bytes", dataSize, r.Remaining())
	}

	cache := make(map[uint16]string)
	t.rows = make([][]string, rowCount)
	for row := range t.rows {
		t.rows[row] = make([]string, cols)
		for col := 0; col < cols; col++ {
			off := offsets[row*cols+col]
			if off >= dataSize {
				return nil, errors.Wrapf(ErrCorrupt, "cell (%d,%d) offset %d outside data block of %d bytes", row, col, off, dataSize)
			}
			v, ok := cache[off]
			if !ok {
				if err := r.Seek(dataStart + int(off)); err != nil {
					return nil, err
				}
				s, err := r.CString()
				if err != nil {
					return nil, errors.Wrapf(err, "cell (%d,%d)", row, col)
				}
				v = textenc.DecodeDefault([]byte(s))
				cache[off] = v
			}
			t.rows[row][col] = v
		}
	}
	return t, nil
}

func readTabTerminated(r *binio.Reader) (string, error) {
	var sb strings.Builder
	for {
		c, err := r.Uint8()
		if err != nil {
			return "", err
		}
		if c == '\t' {
			return textenc.DecodeDefault([]byte(sb.String())), nil
		}
		sb.WriteByte(c)
	}
}

// Encode writes the binary V2.b form. Identical cell strings share one copy
// in the data block.
func Encode(t *Table) ([]byte, error) {
	w := binio.NewWriter(1024)
	w.WriteString(binarySignature + "\n")
	for _, h := range t.headers {
		if err := checkHeader(h); err != nil {
			return nil, err
		}
		raw, err := textenc.EncodeDefault(h)
		if err != nil {
			return nil, errors.WithMessage(err, "column header")
		}
		w.WriteBytes(raw)
		w.WriteUint8('\t')
	}
	w.WriteUint8(0)
	w.WriteUint32(uint32(len(t.rows)), binio.LE)
	for _, l := range t.labels {
		if err := checkToken(l); err != nil {
			return nil, errors.WithMessage(err, "row label")
		}
		raw, err := textenc.EncodeDefault(l)
		if err != nil {
			return nil, errors.WithMessage(err, "row label")
		}
		w.WriteBytes(raw)
		w.WriteUint8('\t')
	}

	cells := binio.NewWriter(1024)
	seen := make(map[string]uint16)
	for i, row := range t.rows {
		for j, v := range row {
			off, ok := seen[v]
			if !ok {
				if cells.Len() > math.MaxUint16 {
					return nil, ErrTooLarge
				}
				if strings.ContainsRune(v, 0) {
					return nil, errors.Wrapf(ErrCorrupt, "cell (%d,%d) contains NUL", i, j)
				}
				raw, err := textenc.EncodeDefault(v)
				if err != nil {
					return nil, errors.WithMessagef(err, "cell (%d,%d)", i, j)
				}
				off = uint16(cells.Len())
				seen[v] = off
				cells.WriteBytes(raw)
				cells.WriteUint8(0)
			}
			w.WriteUint16(off, binio.LE)
		}
	}
	if cells.Len() > math.MaxUint16 {
		return nil, ErrTooLarge
	}
	w.WriteUint16(uint16(cells.Len()), binio.LE)
	w.WriteBytes(cells.Bytes())
	return w.Bytes(), nil
}

// checkHeader rejects column names neither form can store: an empty name
// disappears between tabs or spaces.
func checkHeader(h string) error {
	if h == "" {
		return errors.Wrap(ErrCorrupt, "empty column header")
	}
	return errors.WithMessage(checkToken(h), "column header")
}

func checkToken(s string) error {
	if strings.ContainsAny(s, "\t\x00") {
		return errors.Wrapf(ErrCorrupt, "%q contains a tab or NUL", s)
	}
	return nil
}

// DecodeText parses the text V2.0 form. A "DEFAULT:" value on the second line
// becomes the default of every column.
func DecodeText(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, textenc.DecodeDefault(bytes.TrimRight(sc.Bytes(), "\r")))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan 2da text")
	}
	if len(lines) < 3 {
		return nil, errors.Wrapf(ErrCorrupt, "text 2da has %d lines, need at least 3", len(lines))
	}
	if strings.TrimSpace(lines[0]) != textSignature {
		return nil, errors.Wrapf(ErrCorrupt, "bad signature %q", lines[0])
	}

	def := ""
	if rest, ok := strings.CutPrefix(strings.TrimSpace(lines[1]), "DEFAULT:"); ok {
		def = unquote(strings.TrimSpace(rest))
	}

	t := New()
	for _, h := range splitFields(lines[2]) {
		t.AddColumn(h, def)
	}
	for n, line := range lines[3:] {
		fields := splitFields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields)-1 > t.Width() {
			return nil, errors.Wrapf(ErrCorrupt, "line %d has %d cells for %d columns", n+4, len(fields)-1, t.Width())
		}
		row := make([]string, t.Width())
		for i, v := range fields[1:] {
			if v != Blank {
				row[i] = v
			}
		}
		t.labels = append(t.labels, fields[0])
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// splitFields splits on whitespace, honoring double-quoted cells.
func splitFields(line string) []string {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
			inTok = true
		case !quoted && (c == ' ' || c == '\t'):
			if inTok {
				out = append(out, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteRune(c)
			inTok = true
		}
	}
	if inTok {
		out = append(out, cur.String())
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func quote(s string) string {
	if s == "" {
		return Blank
	}
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// EncodeText writes the aligned text V2.0 form. A DEFAULT line is written
// when every column shares the same non-empty default.
func EncodeText(t *Table) ([]byte, error) {
	for _, h := range t.headers {
		if h == "" {
			return nil, errors.Wrap(ErrCorrupt, "empty column header")
		}
	}
	var buf bytes.Buffer
	buf.WriteString(textSignature + "\n")
	if def := t.uniformDefault(); def != "" {
		buf.WriteString("DEFAULT: " + quote(def))
	}
	buf.WriteString("\n")

	tw := tabwriter.NewWriter(&buf, 0, 4, 1, ' ', 0)
	for _, h := range t.headers {
		tw.Write([]byte("\t" + quote(h)))
	}
	tw.Write([]byte("\n"))
	for i, row := range t.rows {
		tw.Write([]byte(quote(t.labels[i])))
		for _, v := range row {
			tw.Write([]byte("\t" + quote(v)))
		}
		tw.Write([]byte("\n"))
	}
	if err := tw.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush 2da text")
	}

	out, err := textenc.Encode(textenc.English, buf.String())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table) uniformDefault() string {
	if len(t.defaults) == 0 {
		return ""
	}
	for _, d := range t.defaults[1:] {
		if d != t.defaults[0] {
			return ""
		}
	}
	return t.defaults[0]
}
