package nss

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrParse is the kind of every lexical and syntax diagnostic.
var ErrParse = errors.New("parse error")

// Diagnostic is one positioned problem in a script. Err identifies its kind
// (ErrParse, or a compiler error) and is matched by errors.Is. End is the
// end of the offending span when one is known, otherwise equal to Pos.
type Diagnostic struct {
	Pos Pos
	End Pos
	Msg string
	Err error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Pos, d.Msg)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Diagnostics accumulates problems in source order of discovery.
type Diagnostics []Diagnostic

func (d *Diagnostics) add(p Pos, kind error, format string, args ...any) {
	*d = append(*d, Diagnostic{Pos: p, End: p, Msg: fmt.Sprintf(format, args...), Err: kind})
}

// Add records a diagnostic covering span.
func (d *Diagnostics) Add(span Span, kind error, format string, args ...any) {
	*d = append(*d, Diagnostic{Pos: span.Start, End: span.End, Msg: fmt.Sprintf(format, args...), Err: kind})
}

func (d Diagnostics) Error() string {
	lines := make([]string, len(d))
	for i, diag := range d {
		lines[i] = diag.Error()
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes every diagnostic to errors.Is and errors.As.
func (d Diagnostics) Unwrap() []error {
	errs := make([]error, len(d))
	for i := range d {
		errs[i] = d[i]
	}
	return errs
}

// Err returns d as an error, or nil when it is empty.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	return d
}
