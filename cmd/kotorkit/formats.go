package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/NickHugi/PyKotor-sub008/pkg/gff"
	"github.com/NickHugi/PyKotor-sub008/pkg/tlk"
	"github.com/NickHugi/PyKotor-sub008/pkg/twoda"
)

func (t *tool) dumpTLK(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read talk table: %w", err)
	}
	talk, err := tlk.Decode(data)
	if err != nil {
		return fmt.Errorf("parse talk table: %w", err)
	}
	t.log.Debug("talk table", "language", talk.Language, "entries", talk.Len())
	for i, e := range talk.Entries() {
		if e.Sound.IsBlank() {
			fmt.Fprintf(t.out, "%d\t%s\n", i, e.Text)
			continue
		}
		fmt.Fprintf(t.out, "%d\t%s\t[%s]\n", i, e.Text, e.Sound)
	}
	return nil
}

// convert2DA reads either 2DA form and writes the text form, or the binary
// one with -binary.
func (t *tool) convert2DA(path, output string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read 2da: %w", err)
	}
	table, err := twoda.Decode(data)
	if err != nil {
		return fmt.Errorf("parse 2da: %w", err)
	}
	var out []byte
	if binary2DA {
		out, err = twoda.Encode(table)
	} else {
		out, err = twoda.EncodeText(table)
	}
	if err != nil {
		return fmt.Errorf("encode 2da: %w", err)
	}

	w, err := t.create(output)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		w.Close()
		return fmt.Errorf("write 2da: %w", err)
	}
	return w.Close()
}

func (t *tool) dumpGFF(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read gff: %w", err)
	}
	g, err := gff.Decode(data, gff.WithMaxDepth(t.cfg.MaxDepth))
	if err != nil {
		return fmt.Errorf("parse gff: %w", err)
	}
	fmt.Fprintf(t.out, "%s\n", strings.TrimSpace(g.FileType))
	writeStruct(t.out, g.Root, 1)
	return nil
}

// writeStruct prints one field per line, nested structs and lists indented.
func writeStruct(w io.Writer, s *gff.Struct, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range s.Fields() {
		switch v := f.Value.(type) {
		case *gff.Struct:
			fmt.Fprintf(w, "%s%s: Struct(%d)\n", indent, f.Label, v.TypeID)
			writeStruct(w, v, depth+1)
		case gff.List:
			fmt.Fprintf(w, "%s%s: List[%d]\n", indent, f.Label, len(v))
			for i, e := range v {
				fmt.Fprintf(w, "%s  [%d] Struct(%d)\n", indent, i, e.TypeID)
				writeStruct(w, e, depth+2)
			}
		case gff.LocString:
			fmt.Fprintf(w, "%s%s: %s = %d\n", indent, f.Label, f.Type, v.StrRef)
			ids := make([]gff.SubstringID, 0, len(v.Substrings))
			for id := range v.Substrings {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				fmt.Fprintf(w, "%s  lang %d%s: %q\n", indent, id.Language(), gender(id), v.Substrings[id])
			}
		case []byte:
			fmt.Fprintf(w, "%s%s: %s (%d bytes)\n", indent, f.Label, f.Type, len(v))
		case string:
			fmt.Fprintf(w, "%s%s: %s = %q\n", indent, f.Label, f.Type, v)
		default:
			fmt.Fprintf(w, "%s%s: %s = %v\n", indent, f.Label, f.Type, v)
		}
	}
}

func gender(id gff.SubstringID) string {
	if id.Feminine() {
		return "f"
	}
	return ""
}
