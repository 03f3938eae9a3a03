// Package compiler translates parsed scripts into NCS bytecode.
//
// Code generation is a single depth-first walk emitting into an
// ncs.Assembler. Every value occupies one 4 byte stack slot and the walk
// tracks the stack depth of the current function, so variables are
// addressed by their distance from the top of the stack. Jumps are emitted
// against symbolic labels and resolved when the assembler lays out the
// program.
package compiler

import (
	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/pkg/errors"
)

var (
	ErrUndefinedSymbol = errors.New("undefined symbol")
	ErrTypeMismatch    = errors.New("type mismatch")
	// ErrInvalid covers structural problems: misplaced break, wrong
	// argument count, redeclaration, missing entry point.
	ErrInvalid = errors.New("invalid program")
)

// Entry points recognized when WithEntryPoint is not given, in order.
const (
	EntryMain        = "main"
	EntryConditional = "StartingConditional"
)

// Option configures a compilation.
type Option func(*compiler)

// WithActions replaces the engine routine table.
func WithActions(t *nss.Actions) Option {
	return func(c *compiler) {
		if t != nil {
			c.actions = t
		}
	}
}

// WithEntryPoint names the function the program starts in.
func WithEntryPoint(name string) Option {
	return func(c *compiler) { c.entry = name }
}

// WithMaxErrors bounds the diagnostics collected before giving up. It also
// applies to parsing in Compile.
func WithMaxErrors(n int) Option {
	return func(c *compiler) {
		if n > 0 {
			c.maxErrors = n
		}
	}
}

// Function is one entry of the compiled function table.
type Function struct {
	Name   string
	Offset int
	Params int
	Result nss.Type
}

// Result is a compiled program with its function table.
type Result struct {
	Program   *ncs.Program
	Functions []Function
	Entry     string
}

// Bytes encodes the program as an NCS file.
func (r *Result) Bytes() ([]byte, error) {
	return r.Program.Encode()
}

// Function looks up a compiled function by name.
func (r *Result) Function(name string) (Function, bool) {
	for _, f := range r.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Compile parses and compiles source text. The error is an nss.Diagnostics
// listing every problem found, parse or semantic.
func Compile(src string, opts ...Option) (*Result, error) {
	c := newCompiler(opts)
	file, err := nss.Parse(src, nss.WithMaxErrors(c.maxErrors))
	if err != nil {
		return nil, err
	}
	return c.run(file)
}

// CompileFile compiles an already parsed file.
func CompileFile(file *nss.File, opts ...Option) (*Result, error) {
	return newCompiler(opts).run(file)
}

func newCompiler(opts []Option) *compiler {
	c := &compiler{
		actions:   nss.DefaultActions(),
		maxErrors: nss.DefaultMaxErrors,
		funcs:     make(map[string]*function),
		globals:   make(map[string]*variable),
		asm:       ncs.NewAssembler(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bailout struct{}

func (c *compiler) run(file *nss.File) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			res, err = nil, c.diags.Err()
		}
	}()

	c.compile(file)
	if len(c.diags) > 0 {
		return nil, c.diags.Err()
	}
	prog, err := c.asm.Assemble()
	if err != nil {
		return nil, errors.Wrap(err, "assemble")
	}

	res = &Result{Program: prog, Entry: c.entry}
	for _, fn := range c.order {
		off, _ := c.asm.Offset(fn.label)
		res.Functions = append(res.Functions, Function{
			Name: fn.name, Offset: off, Params: len(fn.params), Result: fn.result,
		})
	}
	return res, nil
}

func (c *compiler) errorf(span nss.Span, kind error, format string, args ...any) {
	c.diags.Add(span, kind, format, args...)
	if len(c.diags) >= c.maxErrors {
		panic(bailout{})
	}
}
