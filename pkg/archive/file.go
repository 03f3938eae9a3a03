package archive

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
)

// ReadFile reads and decodes a container from disk. Save games, which share
// the MOD signature, are recognized by their .sav extension.
func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	a, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", filepath.Base(path), err)
	}
	if k, ok := KindFromExtension(filepath.Ext(path)); ok && k == KindSAV && a.Kind == KindMOD {
		a.Kind = KindSAV
	}
	return a, nil
}

// WriteFile encodes a and replaces path atomically. A failure leaves the
// previous file untouched.
func WriteFile(path string, a *Archive) error {
	data, err := a.Encode()
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// WriteCompressed encodes a inside a compressed envelope. ReadFile and Decode
// open the result transparently.
func WriteCompressed(path string, a *Archive, opts ...compressed.WriterOption) error {
	data, err := a.Encode()
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return writeAtomic(path, func(f *os.File) error {
		return compressed.Encode(f, data, opts...)
	})
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// PatchFile saves a over the container at path by appending changed and new
// resources plus a fresh index, then rewriting the header last. Resources
// whose bytes are unchanged keep their offsets. If any resource on disk was
// removed or shrank, or the file is of another kind, it falls back to
// WriteFile. The result reports whether the append path was taken.
func PatchFile(path string, a *Archive) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read archive: %w", err)
	}
	if compressed.IsCompressed(data) {
		return false, WriteFile(path, a)
	}
	h, old, err := decodeIndex(data)
	if err != nil {
		return false, fmt.Errorf("parse archive %s: %w", filepath.Base(path), err)
	}
	v, err := a.variant()
	if err != nil {
		return false, err
	}
	if variants[h.kind].magic != v.magic {
		return false, WriteFile(path, a)
	}

	onDisk := make(map[resource.Key]indexEntry, len(old))
	for _, e := range old {
		onDisk[e.id.Key()] = e
	}
	for _, e := range old {
		i, ok := a.index[e.id.Key()]
		if !ok || len(a.chunks[i].data) < int(e.size) {
			return false, WriteFile(path, a)
		}
	}

	end := uint64(len(data))
	var appended bytes.Buffer
	entries := make([]indexEntry, len(a.chunks))
	for i, c := range a.chunks {
		if e, ok := onDisk[c.id.Key()]; ok && bytes.Equal(data[e.offset:e.offset+e.size], c.data) {
			entries[i] = indexEntry{id: c.id, offset: e.offset, size: e.size}
			continue
		}
		off := end + uint64(appended.Len())
		entries[i] = indexEntry{id: c.id, offset: uint32(off), size: uint32(len(c.data))}
		appended.Write(c.data)
		if off+uint64(len(c.data)) > math.MaxUint32 {
			return false, WriteFile(path, a)
		}
	}

	tables, nh, err := a.tables(v, entries, int(end)+appended.Len())
	if err != nil {
		return false, fmt.Errorf("encode index: %w", err)
	}
	if end+uint64(appended.Len())+uint64(len(tables)) > math.MaxUint32 {
		return false, WriteFile(path, a)
	}
	appended.Write(tables)

	if err := commitAppend(path, int64(end), appended.Bytes(), v.encodeHeader(nh)); err != nil {
		return false, err
	}
	return true, nil
}

// commitAppend writes tail at offset size, then the header at zero. Until
// the header lands the old index is still the live one; on failure the file
// is truncated back to its original size.
func commitAppend(path string, size int64, tail, head []byte) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		if err != nil {
			f.Truncate(size)
		}
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	if _, err = f.WriteAt(tail, size); err != nil {
		return fmt.Errorf("append resources: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	if _, err = f.WriteAt(head, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	return nil
}

// extractConfig holds extraction options.
type extractConfig struct {
	allowedTypes map[resource.Type]bool
}

// ExtractOption configures extraction behavior.
type ExtractOption func(*extractConfig)

// WithTypeFilter limits extraction to the given resource types.
func WithTypeFilter(types ...resource.Type) ExtractOption {
	return func(c *extractConfig) {
		if len(types) > 0 {
			c.allowedTypes = make(map[resource.Type]bool, len(types))
			for _, t := range types {
				c.allowedTypes[t] = true
			}
		}
	}
}

// Extract writes every resource to outputDir as name.ext.
func (a *Archive) Extract(outputDir string, opts ...ExtractOption) error {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", outputDir, err)
	}
	for _, c := range a.chunks {
		if cfg.allowedTypes != nil && !cfg.allowedTypes[c.id.Type] {
			continue
		}
		filePath := filepath.Join(outputDir, c.id.String())
		if err := os.WriteFile(filePath, c.data, 0644); err != nil {
			return fmt.Errorf("write file %s: %w", filePath, err)
		}
	}
	return nil
}

// AddFiles reads each path and stores it under the identifier parsed from its
// file name.
func (a *Archive) AddFiles(paths ...string) error {
	for _, p := range paths {
		id, err := resource.ParseIdentifier(filepath.Base(p))
		if err != nil {
			return fmt.Errorf("add %s: %w", p, err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		a.Set(id, data)
	}
	return nil
}
