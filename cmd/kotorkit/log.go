package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"golang.org/x/term"
)

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

const (
	colorRed   = "\x1b[31m"
	colorBold  = "\x1b[1m"
	colorReset = "\x1b[0m"
)

// diagPrinter writes script diagnostics as file:line:col lines, colored
// when the destination is a terminal.
type diagPrinter struct {
	w     io.Writer
	color bool
}

func newDiagPrinter(f *os.File) *diagPrinter {
	return &diagPrinter{w: f, color: term.IsTerminal(int(f.Fd()))}
}

func (p *diagPrinter) print(file string, diags nss.Diagnostics) {
	for _, d := range diags {
		if p.color {
			fmt.Fprintf(p.w, "%s%s:%s:%s %serror:%s %s\n", colorBold, file, d.Pos, colorReset, colorRed, colorReset, d.Msg)
			continue
		}
		fmt.Fprintf(p.w, "%s:%s: error: %s\n", file, d.Pos, d.Msg)
	}
}
