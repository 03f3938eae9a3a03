package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/NickHugi/PyKotor-sub008/pkg/archive"
	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/gff"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTool(t *testing.T, cfg *config) (*tool, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &tool{
		cfg:  cfg,
		log:  newLogger(io.Discard, false),
		out:  &out,
		diag: &diagPrinter{w: &out},
	}, &out
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(dir, "none.ini"), false)
		require.NoError(t, err)
		assert.Equal(t, gff.DefaultMaxDepth, cfg.MaxDepth)
		assert.Equal(t, nss.DefaultMaxErrors, cfg.MaxErrors)

		_, err = loadConfig(filepath.Join(dir, "none.ini"), true)
		assert.Error(t, err)
	})

	t.Run("Sections", func(t *testing.T) {
		path := filepath.Join(dir, "kotorkit.ini")
		require.NoError(t, os.WriteFile(path, []byte(`
[gff]
max_depth = 12

[script]
max_errors = 3
actions = table.toml

[archive]
compress = lz4
`), 0644))

		cfg, err := loadConfig(path, true)
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.MaxDepth)
		assert.Equal(t, 3, cfg.MaxErrors)
		assert.Equal(t, "table.toml", cfg.Actions)
		codec, err := cfg.codec()
		require.NoError(t, err)
		assert.Equal(t, compressed.CodecLZ4, codec)

		cfg.override(map[string]string{"max-depth": "20", "compress": "none"})
		assert.Equal(t, 20, cfg.MaxDepth)
		assert.Equal(t, 3, cfg.MaxErrors)
		codec, err = cfg.codec()
		require.NoError(t, err)
		assert.Zero(t, codec)
	})

	t.Run("InvalidCodec", func(t *testing.T) {
		path := filepath.Join(dir, "bad.ini")
		require.NoError(t, os.WriteFile(path, []byte("[archive]\ncompress = rar\n"), 0644))
		_, err := loadConfig(path, true)
		assert.Error(t, err)
	})
}

func TestScriptModes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.nss")
	require.NoError(t, os.WriteFile(src, []byte(`
void main()
{
    PrintString("hello");
}
`), 0644))

	tl, out := newTestTool(t, defaultConfig())
	require.NoError(t, tl.compile(src, ""))
	_, err := os.Stat(filepath.Join(dir, "hello.ncs"))
	require.NoError(t, err)

	require.NoError(t, tl.decompile(filepath.Join(dir, "hello.ncs"), ""))
	assert.Contains(t, out.String(), `PrintString("hello");`)

	out.Reset()
	require.NoError(t, tl.disasm(filepath.Join(dir, "hello.ncs"), ""))
	assert.Contains(t, out.String(), "ACTION")
	assert.Contains(t, out.String(), "PrintString")

	t.Run("Diagnostics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.nss")
		require.NoError(t, os.WriteFile(bad, []byte("void main() { x = 1; }\n"), 0644))
		out.Reset()
		err := tl.compile(bad, "")
		require.Error(t, err)
		assert.Contains(t, out.String(), "bad.nss:1:")
		assert.Contains(t, out.String(), "error:")
	})
}

func TestArchiveModes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.ncs"), []byte("aaaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "b.utc"), []byte("bb"), 0644))

	tl, out := newTestTool(t, defaultConfig())
	path := filepath.Join(dir, "test.mod")
	require.NoError(t, tl.pack(in, path))

	require.NoError(t, tl.list(path))
	assert.Contains(t, out.String(), "NAME")
	assert.Contains(t, out.String(), "a")
	assert.Contains(t, out.String(), "utc")

	extra := filepath.Join(dir, "c.2da")
	require.NoError(t, os.WriteFile(extra, []byte("cc"), 0644))
	require.NoError(t, tl.add(path, []string{extra}))
	require.NoError(t, tl.remove(path, []string{"a.ncs"}))

	a, err := archive.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, archive.KindMOD, a.Kind)
	assert.False(t, a.Has(resource.Identifier{ResRef: resource.MustResRef("a"), Type: resource.TypeNCS}))
	data, err := a.Get(resource.Identifier{ResRef: resource.MustResRef("c"), Type: resource.TypeTwoDA})
	require.NoError(t, err)
	assert.Equal(t, []byte("cc"), data)

	outDir := filepath.Join(dir, "out")
	typeFilter = "utc"
	defer func() { typeFilter = "" }()
	require.NoError(t, tl.extract(path, outDir))
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.utc", entries[0].Name())

	assert.Error(t, tl.extract(path, outDir), "non-empty output directory")
}

func TestDumpGFF(t *testing.T) {
	g := gff.New("UTC ")
	g.Root.SetString("Tag", "bastila")
	g.Root.SetUint8("Race", 6)
	ls := gff.NewLocString(123)
	ls.Substrings = map[gff.SubstringID]string{gff.NewSubstringID(0, true): "Bastila"}
	g.Root.SetLocString("FirstName", ls)
	inner := gff.NewStruct(7)
	inner.SetInt32("Level", 3)
	g.Root.SetList("Classes", gff.List{inner})

	var out bytes.Buffer
	writeStruct(&out, g.Root, 0)
	assert.Equal(t, `Tag: CExoString = "bastila"
Race: Byte = 6
FirstName: CExoLocString = 123
  lang 0f: "Bastila"
Classes: List[1]
  [0] Struct(7)
    Level: Int = 3
`, out.String())
}
