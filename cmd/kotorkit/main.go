// Package main provides a command-line tool for KotOR resource files and
// NWScript.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	mode        string
	archivePath string
	inputPath   string
	outputPath  string
	configPath  string
	typeFilter  string
	compress    string
	actionsPath string
	entryPoint  string
	maxDepth    int
	maxErrors   int
	binary2DA   bool
	forceWrite  bool
	verbose     bool
)

func init() {
	flag.StringVar(&mode, "mode", "", "Operation mode: list, extract, pack, add, remove, compile, decompile, disasm, tlk, 2da, gff")
	flag.StringVar(&archivePath, "archive", "", "Path to an ERF/MOD/SAV/HAK/RIM archive, or chitin.key for list and extract")
	flag.StringVar(&inputPath, "input", "", "Input file or directory")
	flag.StringVar(&outputPath, "output", "", "Output file or directory (default: stdout or next to the input)")
	flag.StringVar(&configPath, "config", "kotorkit.ini", "Path to the configuration file")
	flag.StringVar(&typeFilter, "types", "", "Comma separated resource extensions to extract (e.g. ncs,utc)")
	flag.StringVar(&compress, "compress", "", "Write archives inside a compressed envelope: zstd or lz4")
	flag.StringVar(&actionsPath, "actions", "", "Engine routine table (TOML) replacing the built-in one")
	flag.StringVar(&entryPoint, "entry", "", "Entry point function name for compile")
	flag.IntVar(&maxDepth, "max-depth", 0, "Maximum GFF struct nesting depth")
	flag.IntVar(&maxErrors, "max-errors", 0, "Stop compiling after this many diagnostics")
	flag.BoolVar(&binary2DA, "binary", false, "Write 2DA in binary V2.b form instead of text")
	flag.BoolVar(&forceWrite, "force", false, "Allow a non-empty output directory when extracting")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := newLogger(os.Stderr, verbose)

	if err := validateFlags(); err != nil {
		flag.Usage()
		return err
	}

	cfg, err := loadConfig(configPath, isFlagSet("config"))
	if err != nil {
		return err
	}
	cfg.override(setFlags())
	logger.Debug("configuration", "max_depth", cfg.MaxDepth, "max_errors", cfg.MaxErrors,
		"actions", cfg.Actions, "compress", cfg.Compress)

	t := &tool{cfg: cfg, log: logger, out: os.Stdout, diag: newDiagPrinter(os.Stderr)}

	switch mode {
	case "list":
		return t.list(archivePath)
	case "extract":
		return t.extract(archivePath, outputPath)
	case "pack":
		return t.pack(inputPath, outputPath)
	case "add":
		return t.add(archivePath, flag.Args())
	case "remove":
		return t.remove(archivePath, flag.Args())
	case "compile":
		return t.compile(inputPath, outputPath)
	case "decompile":
		return t.decompile(inputPath, outputPath)
	case "disasm":
		return t.disasm(inputPath, outputPath)
	case "tlk":
		return t.dumpTLK(inputPath)
	case "2da":
		return t.convert2DA(inputPath, outputPath)
	case "gff":
		return t.dumpGFF(inputPath)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func validateFlags() error {
	if mode == "" {
		return fmt.Errorf("mode is required")
	}

	switch mode {
	case "list", "add", "remove":
		if archivePath == "" {
			return fmt.Errorf("%s mode requires -archive", mode)
		}
	case "extract":
		if archivePath == "" || outputPath == "" {
			return fmt.Errorf("extract mode requires -archive and -output")
		}
	case "pack":
		if inputPath == "" || outputPath == "" {
			return fmt.Errorf("pack mode requires -input and -output")
		}
	case "compile", "decompile", "disasm", "tlk", "2da", "gff":
		if inputPath == "" {
			return fmt.Errorf("%s mode requires -input", mode)
		}
	default:
		return fmt.Errorf("mode must be one of list, extract, pack, add, remove, compile, decompile, disasm, tlk, 2da, gff")
	}

	return nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]string {
	set := map[string]string{}
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})
	return set
}

func isFlagSet(name string) bool {
	_, ok := setFlags()[name]
	return ok
}

// tool carries what every mode needs.
type tool struct {
	cfg  *config
	log  *slog.Logger
	out  io.Writer
	diag *diagPrinter
}

// create opens path for writing, or returns stdout when path is empty.
func (t *tool) create(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{t.out}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// withExt replaces the extension of path.
func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
