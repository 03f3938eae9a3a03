package textenc

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		lang Language
		text string
	}{
		{English, "Café naïve"},
		{Polish, "Zażółć"},
		{German, "Straße"},
	}

	for _, tt := range tests {
		raw, err := Encode(tt.lang, tt.text)
		if err != nil {
			t.Fatalf("%s: encode: %v", tt.lang, err)
		}
		if got := Decode(tt.lang, raw); got != tt.text {
			t.Errorf("%s: got %q, want %q", tt.lang, got, tt.text)
		}
	}
}

func TestWindows1252SingleByte(t *testing.T) {
	raw, err := EncodeDefault("é")
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 || raw[0] != 0xe9 {
		t.Errorf("expected single byte 0xe9, got % x", raw)
	}
	if DecodeDefault([]byte{0x93, 'x', 0x94}) != "“x”" {
		t.Errorf("smart quotes not decoded: %q", DecodeDefault([]byte{0x93, 'x', 0x94}))
	}
}

func TestLanguageString(t *testing.T) {
	if Japanese.String() != "Japanese" {
		t.Errorf("got %q", Japanese.String())
	}
	if Language(77).String() != "Language(77)" {
		t.Errorf("got %q", Language(77).String())
	}
}

func TestEncodeUnsupported(t *testing.T) {
	tests := []struct {
		lang Language
		text string
	}{
		{English, "日本 €"},
		{Polish, "Ñandú ß €日"},
		{Korean, "ꙮ"},
	}

	for _, tt := range tests {
		t.Run(tt.lang.String(), func(t *testing.T) {
			_, err := Encode(tt.lang, tt.text)
			if !errors.Is(err, ErrUnencodable) {
				t.Errorf("got %v, want ErrUnencodable", err)
			}
		})
	}

	if _, err := EncodeDefault("€ café"); err != nil {
		t.Errorf("representable text failed: %v", err)
	}
}
