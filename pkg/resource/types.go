// Package resource defines how resources are identified: a resource reference
// (ResRef) plus a numeric resource type.
package resource

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Type is the numeric resource type stored in archive key tables.
type Type uint16

const (
	TypeRES   Type = 0
	TypeBMP   Type = 1
	TypeTGA   Type = 3
	TypeWAV   Type = 4
	TypeINI   Type = 7
	TypeTXT   Type = 10
	TypeMDL   Type = 2002
	TypeNSS   Type = 2009
	TypeNCS   Type = 2010
	TypeMOD   Type = 2011
	TypeARE   Type = 2012
	TypeSET   Type = 2013
	TypeIFO   Type = 2014
	TypeBIC   Type = 2015
	TypeWOK   Type = 2016
	TypeTwoDA Type = 2017
	TypeTLK   Type = 2018
	TypeTXI   Type = 2022
	TypeGIT   Type = 2023
	TypeBTI   Type = 2024
	TypeUTI   Type = 2025
	TypeBTC   Type = 2026
	TypeUTC   Type = 2027
	TypeDLG   Type = 2029
	TypeITP   Type = 2030
	TypeUTT   Type = 2032
	TypeDDS   Type = 2033
	TypeUTS   Type = 2035
	TypeLTR   Type = 2036
	TypeGFF   Type = 2037
	TypeFAC   Type = 2038
	TypeUTE   Type = 2040
	TypeUTD   Type = 2042
	TypeUTP   Type = 2044
	TypeDFT   Type = 2045
	TypeGIC   Type = 2046
	TypeGUI   Type = 2047
	TypeUTM   Type = 2051
	TypeDWK   Type = 2052
	TypePWK   Type = 2053
	TypeJRL   Type = 2056
	TypeUTW   Type = 2058
	TypeSSF   Type = 2060
	TypeNDB   Type = 2064
	TypePTM   Type = 2065
	TypePTT   Type = 2066
	TypeLYT   Type = 3000
	TypeVIS   Type = 3001
	TypeRIM   Type = 3002
	TypePTH   Type = 3003
	TypeLIP   Type = 3004
	TypeTPC   Type = 3007
	TypeMDX   Type = 3008
	TypeERF   Type = 9997
	TypeBIF   Type = 9998
	TypeKEY   Type = 9999

	TypeInvalid Type = 0xFFFF
)

type typeInfo struct {
	ext string
	gff bool
}

// Static table; never mutated after init.
var typeTable = map[Type]typeInfo{
	TypeRES: {"res", true}, TypeBMP: {"bmp", false}, TypeTGA: {"tga", false},
	TypeWAV: {"wav", false}, TypeINI: {"ini", false}, TypeTXT: {"txt", false},
	TypeMDL: {"mdl", false}, TypeNSS: {"nss", false}, TypeNCS: {"ncs", false},
	TypeMOD: {"mod", false}, TypeARE: {"are", true}, TypeSET: {"set", false},
	TypeIFO: {"ifo", true}, TypeBIC: {"bic", true}, TypeWOK: {"wok", false},
	TypeTwoDA: {"2da", false}, TypeTLK: {"tlk", false}, TypeTXI: {"txi", false},
	TypeGIT: {"git", true}, TypeBTI: {"bti", true}, TypeUTI: {"uti", true},
	TypeBTC: {"btc", true}, TypeUTC: {"utc", true}, TypeDLG: {"dlg", true},
	TypeITP: {"itp", true}, TypeUTT: {"utt", true}, TypeDDS: {"dds", false},
	TypeUTS: {"uts", true}, TypeLTR: {"ltr", false}, TypeGFF: {"gff", true},
	TypeFAC: {"fac", true}, TypeUTE: {"ute", true}, TypeUTD: {"utd", true},
	TypeUTP: {"utp", true}, TypeDFT: {"dft", false}, TypeGIC: {"gic", true},
	TypeGUI: {"gui", true}, TypeUTM: {"utm", true}, TypeDWK: {"dwk", false},
	TypePWK: {"pwk", false}, TypeJRL: {"jrl", true}, TypeUTW: {"utw", true},
	TypeSSF: {"ssf", false}, TypeNDB: {"ndb", false}, TypePTM: {"ptm", true},
	TypePTT: {"ptt", true}, TypeLYT: {"lyt", false}, TypeVIS: {"vis", false},
	TypeRIM: {"rim", false}, TypePTH: {"pth", true}, TypeLIP: {"lip", false},
	TypeTPC: {"tpc", false}, TypeMDX: {"mdx", false}, TypeERF: {"erf", false},
	TypeBIF: {"bif", false}, TypeKEY: {"key", false},
}

var extTable = func() map[string]Type {
	m := make(map[string]Type, len(typeTable))
	for t, info := range typeTable {
		m[info.ext] = t
	}
	return m
}()

// Extension returns the lowercase file extension for t, or the decimal id
// for types not in the table.
func (t Type) Extension() string {
	if info, ok := typeTable[t]; ok {
		return info.ext
	}
	return fmt.Sprintf("%d", uint16(t))
}

// IsGFF reports whether resources of this type are encoded as GFF trees.
func (t Type) IsGFF() bool {
	return typeTable[t].gff
}

func (t Type) String() string {
	if info, ok := typeTable[t]; ok {
		return fmt.Sprintf("Type(%s)", info.ext)
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// TypeFromExtension looks up a type by file extension (with or without the
// leading dot, any case).
func TypeFromExtension(ext string) (Type, bool) {
	t, ok := extTable[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return TypeInvalid, false
	}
	return t, true
}

// Identifier is the (resref, type) pair that uniquely names a resource
// within an archive.
type Identifier struct {
	ResRef ResRef
	Type   Type
}

// String returns the conventional "name.ext" file name.
func (id Identifier) String() string {
	return id.ResRef.String() + "." + id.Type.Extension()
}

// ParseIdentifier splits a file name such as "p_bastila.utc" into an Identifier.
func ParseIdentifier(filename string) (Identifier, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	t, ok := TypeFromExtension(ext)
	if !ok {
		return Identifier{}, fmt.Errorf("unknown resource extension %q", ext)
	}
	ref, err := NewResRef(strings.TrimSuffix(base, ext))
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{ResRef: ref, Type: t}, nil
}
