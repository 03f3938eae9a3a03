// Package textenc maps game language ids to the legacy code pages used for
// on-disk strings and converts between them and UTF-8.
package textenc

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Language is the numeric language id stored in TLK headers and localized
// GFF substrings.
type Language uint32

const (
	English            Language = 0
	French             Language = 1
	German             Language = 2
	Italian            Language = 3
	Spanish            Language = 4
	Polish             Language = 5
	Korean             Language = 128
	ChineseTraditional Language = 129
	ChineseSimplified  Language = 130
	Japanese           Language = 131
)

func (l Language) String() string {
	switch l {
	case English:
		return "English"
	case French:
		return "French"
	case German:
		return "German"
	case Italian:
		return "Italian"
	case Spanish:
		return "Spanish"
	case Polish:
		return "Polish"
	case Korean:
		return "Korean"
	case ChineseTraditional:
		return "ChineseTraditional"
	case ChineseSimplified:
		return "ChineseSimplified"
	case Japanese:
		return "Japanese"
	}
	return fmt.Sprintf("Language(%d)", uint32(l))
}

// Encoding returns the code page for l. Unknown languages use Windows-1252.
func (l Language) Encoding() encoding.Encoding {
	switch l {
	case Polish:
		return charmap.Windows1250
	case Korean:
		return korean.EUCKR
	case ChineseTraditional:
		return traditionalchinese.Big5
	case ChineseSimplified:
		return simplifiedchinese.GBK
	case Japanese:
		return japanese.ShiftJIS
	}
	return charmap.Windows1252
}

// Decode converts raw on-disk bytes in l's code page to UTF-8. Bytes the code
// page cannot map are replaced rather than failing the decode.
func Decode(l Language, raw []byte) string {
	out, err := l.Encoding().NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// ErrUnencodable is returned for text the target code page cannot represent.
var ErrUnencodable = errors.New("text not representable in code page")

// Encode converts a UTF-8 string into l's code page. Characters the code page
// lacks fail with ErrUnencodable.
func Encode(l Language, s string) ([]byte, error) {
	out, err := l.Encoding().NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s text %q: %w", l, s, ErrUnencodable)
	}
	return out, nil
}

// DecodeDefault decodes Windows-1252 text, the default for GFF and 2DA data.
func DecodeDefault(raw []byte) string {
	return Decode(English, raw)
}

// EncodeDefault encodes s as Windows-1252.
func EncodeDefault(s string) ([]byte, error) {
	return Encode(English, s)
}
