package resource

import "testing"

func TestResRef(t *testing.T) {
	t.Run("TooLong", func(t *testing.T) {
		if _, err := NewResRef("abcdefghijklmnopq"); err == nil {
			t.Error("expected error for 17 character resref")
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		a := MustResRef("P_Bastila")
		b := MustResRef("p_bastila")
		if !a.Equal(b) {
			t.Error("expected resrefs to compare equal")
		}
		if a.String() != "P_Bastila" {
			t.Errorf("String: got %q", a.String())
		}
	})

	t.Run("InvalidByte", func(t *testing.T) {
		if _, err := NewResRef("bad\x00name"); err == nil {
			t.Error("expected error for NUL byte")
		}
	})
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		name string
		typ  Type
	}{
		{"p_bastila.utc", "p_bastila", TypeUTC},
		{"dir/appearance.2DA", "appearance", TypeTwoDA},
		{"k_ai_master.nss", "k_ai_master", TypeNSS},
	}

	for _, tt := range tests {
		id, err := ParseIdentifier(tt.in)
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if id.ResRef.String() != tt.name || id.Type != tt.typ {
			t.Errorf("%s: got %v", tt.in, id)
		}
	}

	if _, err := ParseIdentifier("readme.unknownext"); err == nil {
		t.Error("expected error for unknown extension")
	}
}

func TestTypeTable(t *testing.T) {
	if !TypeDLG.IsGFF() {
		t.Error("dlg should be a GFF type")
	}
	if TypeTwoDA.IsGFF() {
		t.Error("2da should not be a GFF type")
	}
	if Type(4242).Extension() != "4242" {
		t.Errorf("unknown extension: got %q", Type(4242).Extension())
	}
	id := Identifier{ResRef: MustResRef("module"), Type: TypeIFO}
	if id.String() != "module.ifo" {
		t.Errorf("String: got %q", id.String())
	}
}
