package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/NickHugi/PyKotor-sub008/pkg/compiler"
	"github.com/NickHugi/PyKotor-sub008/pkg/decompiler"
	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/pkg/errors"
)

func (t *tool) compile(path, output string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	actions, err := t.cfg.actions()
	if err != nil {
		return err
	}
	opts := []compiler.Option{compiler.WithActions(actions), compiler.WithMaxErrors(t.cfg.MaxErrors)}
	if entryPoint != "" {
		opts = append(opts, compiler.WithEntryPoint(entryPoint))
	}

	res, err := compiler.Compile(string(src), opts...)
	if err != nil {
		var diags nss.Diagnostics
		if errors.As(err, &diags) {
			t.diag.print(filepath.Base(path), diags)
			return fmt.Errorf("compile %s: %d errors", filepath.Base(path), len(diags))
		}
		return fmt.Errorf("compile %s: %w", filepath.Base(path), err)
	}
	data, err := res.Bytes()
	if err != nil {
		return fmt.Errorf("encode bytecode: %w", err)
	}

	if output == "" {
		output = withExt(path, ".ncs")
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	t.log.Info("compiled", "input", path, "output", output, "entry", res.Entry, "bytes", len(data))
	return nil
}

func (t *tool) decompile(path, output string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bytecode: %w", err)
	}
	actions, err := t.cfg.actions()
	if err != nil {
		return err
	}
	res, err := decompiler.Decompile(data, decompiler.WithActions(actions))
	if err != nil {
		return err
	}
	for _, n := range res.Notes {
		t.log.Warn("decompiler", "note", n)
	}

	w, err := t.create(output)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, res.Source); err != nil {
		w.Close()
		return fmt.Errorf("write source: %w", err)
	}
	t.log.Debug("decompiled", "input", path, "fidelity", res.Fidelity, "functions", len(res.File.Funcs()))
	return w.Close()
}

func (t *tool) disasm(path, output string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bytecode: %w", err)
	}
	actions, err := t.cfg.actions()
	if err != nil {
		return err
	}
	prog, err := ncs.Decode(data)
	if prog == nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if err != nil {
		t.log.Warn("bytecode truncated", "err", err)
	}

	w, err := t.create(output)
	if err != nil {
		return err
	}
	if err := prog.WriteListing(w, ncs.WithRoutineNames(actions)); err != nil {
		w.Close()
		return fmt.Errorf("write listing: %w", err)
	}
	return w.Close()
}
