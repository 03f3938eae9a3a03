package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/NickHugi/PyKotor-sub008/pkg/archive"
	"github.com/NickHugi/PyKotor-sub008/pkg/compressed"
	"github.com/NickHugi/PyKotor-sub008/pkg/resource"
)

func isKeyFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".key")
}

func (t *tool) list(path string) error {
	w := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSIZE")

	if isKeyFile(path) {
		c, err := archive.OpenChitin(path)
		if err != nil {
			return fmt.Errorf("open key: %w", err)
		}
		for _, id := range c.List() {
			fmt.Fprintf(w, "%s\t%s\t-\n", id.ResRef, id.Type.Extension())
		}
		return w.Flush()
	}

	a, err := archive.ReadFile(path)
	if err != nil {
		return err
	}
	for _, info := range a.List() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", info.ID.ResRef, info.ID.Type.Extension(), info.Size)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	t.log.Debug("listed archive", "kind", a.Kind, "resources", a.Len())
	return nil
}

func (t *tool) extract(path, outputDir string) error {
	if err := prepareOutputDir(outputDir, forceWrite); err != nil {
		return err
	}
	var opts []archive.ExtractOption
	if typeFilter != "" {
		types, err := parseTypes(typeFilter)
		if err != nil {
			return err
		}
		opts = append(opts, archive.WithTypeFilter(types...))
	}

	if isKeyFile(path) {
		return t.extractChitin(path, outputDir, opts)
	}

	a, err := archive.ReadFile(path)
	if err != nil {
		return err
	}
	t.log.Info("extracting", "archive", path, "resources", a.Len())
	if err := a.Extract(outputDir, opts...); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	t.log.Info("extraction complete", "output", outputDir)
	return nil
}

// extractChitin copies every resource the key indexes into a scratch
// archive and extracts that, so the type filter applies the same way.
func (t *tool) extractChitin(path, outputDir string, opts []archive.ExtractOption) error {
	c, err := archive.OpenChitin(path)
	if err != nil {
		return fmt.Errorf("open key: %w", err)
	}
	a := archive.New(archive.KindERF)
	for _, id := range c.List() {
		data, err := c.Get(id)
		if err != nil {
			t.log.Warn("skipping resource", "resource", id, "err", err)
			continue
		}
		a.Set(id, data)
	}
	t.log.Info("extracting", "key", path, "resources", a.Len())
	if err := a.Extract(outputDir, opts...); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	return nil
}

func (t *tool) pack(inputDir, path string) error {
	kind, ok := archive.KindFromExtension(filepath.Ext(path))
	if !ok {
		return fmt.Errorf("cannot tell archive kind from %s", filepath.Base(path))
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(inputDir, e.Name()))
	}

	a := archive.New(kind)
	if err := a.AddFiles(files...); err != nil {
		return err
	}
	t.log.Info("packing", "kind", kind, "resources", a.Len(), "output", path)
	return t.save(path, a, false)
}

func (t *tool) add(path string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("add mode requires files to add")
	}
	a, err := archive.ReadFile(path)
	if err != nil {
		return err
	}
	if err := a.AddFiles(files...); err != nil {
		return err
	}
	return t.save(path, a, true)
}

func (t *tool) remove(path string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("remove mode requires resource names")
	}
	a, err := archive.ReadFile(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		id, err := resource.ParseIdentifier(name)
		if err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		if err := a.Remove(id); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return t.save(path, a, false)
}

// save writes a to path: compressed when configured, otherwise in place
// through the append path when patch is set.
func (t *tool) save(path string, a *archive.Archive, patch bool) error {
	codec, err := t.cfg.codec()
	if err != nil {
		return err
	}
	if codec != 0 {
		return archive.WriteCompressed(path, a, compressed.WithCodec(codec))
	}
	if !patch {
		return archive.WriteFile(path, a)
	}
	appended, err := archive.PatchFile(path, a)
	if err != nil {
		return err
	}
	t.log.Debug("saved archive", "path", path, "appended", appended)
	return nil
}

func parseTypes(list string) ([]resource.Type, error) {
	var types []resource.Type
	for _, ext := range strings.Split(list, ",") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		rt, ok := resource.TypeFromExtension(ext)
		if !ok {
			return nil, fmt.Errorf("unknown resource type %q", ext)
		}
		types = append(types, rt)
	}
	return types, nil
}

func prepareOutputDir(dir string, force bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if !force {
		empty, err := isDirEmpty(dir)
		if err != nil {
			return fmt.Errorf("check output directory: %w", err)
		}
		if !empty {
			return fmt.Errorf("output directory is not empty (use -force to override)")
		}
	}

	return nil
}

func isDirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdir(1)
	return err == io.EOF, nil
}
