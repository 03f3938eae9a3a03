// Package decompiler reconstructs NWScript source from NCS bytecode.
//
// Decompilation runs in three steps. The program is split into subroutines
// at JSR targets and each subroutine's argument count is inferred from its
// epilogue by a stack depth walk. Each subroutine is then simulated on a
// symbolic stack whose slots hold expressions instead of values, turning
// stores, calls and pops back into statements. Branches are matched
// against the loop and conditional shapes the compiler emits; anything
// else falls back to labels and gotos and lowers the result's Fidelity.
package decompiler

import (
	"fmt"

	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/pkg/errors"
)

// Fidelity grades how faithfully the output reflects the bytecode.
type Fidelity int

const (
	// Full output recompiles to equivalent bytecode.
	Full Fidelity = iota
	// Partial output contains gotos, placeholders or missing code.
	Partial
)

func (f Fidelity) String() string {
	if f == Full {
		return "full"
	}
	return "partial"
}

const typeUnknown nss.Type = -1

// Option configures a decompilation.
type Option func(*decompiler)

// WithActions sets the engine routine table used to name ACTION calls and
// to know their result types.
func WithActions(t *nss.Actions) Option {
	return func(d *decompiler) {
		if t != nil {
			d.actions = t
		}
	}
}

// Result is decompiled source with its fidelity. Notes explain every
// reason the fidelity is Partial.
type Result struct {
	File     *nss.File
	Source   string
	Fidelity Fidelity
	Notes    []string
}

// Decompile decodes and decompiles an NCS file. It only fails when the
// header is unusable; undecodable code yields a Partial result covering the
// instructions before it.
func Decompile(data []byte, opts ...Option) (*Result, error) {
	prog, err := ncs.Decode(data)
	if prog == nil {
		return nil, errors.Wrap(err, "decompile")
	}
	d := newDecompiler(prog, opts)
	if err != nil {
		d.note("bytecode truncated: %v", err)
	}
	return d.run(), nil
}

// DecompileProgram decompiles an already decoded program.
func DecompileProgram(prog *ncs.Program, opts ...Option) *Result {
	return newDecompiler(prog, opts).run()
}

type decompiler struct {
	analysis
	notes   []string
	globals []*slot
}

func newDecompiler(prog *ncs.Program, opts []Option) *decompiler {
	d := &decompiler{analysis: analysis{prog: prog, code: prog.Code, actions: nss.DefaultActions()}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *decompiler) note(format string, args ...any) {
	d.notes = append(d.notes, fmt.Sprintf(format, args...))
}

func (d *decompiler) run() *Result {
	file := &nss.File{}
	subs := d.splitSubs()
	d.analyze(subs)

	entry, globals := d.entry()
	if entry == nil {
		d.note("no entry stub at offset %08X", ncs.HeaderSize)
		if len(subs) == 0 {
			// No calls at all: treat the whole stream as one function.
			s := &sub{start: 0, end: len(d.code), epilogue: len(d.code), result: nss.TypeVoid}
			if n := len(d.code); n > 0 && d.code[n-1].Op == ncs.OpRetn {
				s.complete, s.epilogue = true, n-1
			}
			subs = []*sub{s}
		}
		entry = subs[0]
	}
	if globals != nil {
		for _, decl := range d.globalFrame(globals) {
			file.Decls = append(file.Decls, decl)
		}
	}

	var funcs []*sub
	for _, s := range subs {
		if s != globals {
			funcs = append(funcs, s)
		}
	}
	d.name(entry, funcs)

	decls := map[*sub]*nss.FuncDecl{}
	for _, s := range d.order(entry, funcs) {
		decls[s] = d.function(s)
	}
	for _, s := range funcs {
		file.Decls = append(file.Decls, d.signature(s, decls[s]))
	}

	res := &Result{File: file, Source: nss.Print(file), Notes: d.notes}
	if len(d.notes) > 0 {
		res.Fidelity = Partial
	}
	return res
}

// entry matches the stub the compiler places at the start of every
// program: an optional result slot, a JSR and a RETN. When the JSR target
// saves BP, it is the global frame and the entry is the JSR inside it.
func (d *decompiler) entry() (entry, globals *sub) {
	code := d.code
	i, result := 0, nss.TypeVoid
	if len(code) > 0 && code[0].Op == ncs.OpRSAdd {
		result = typeOf(code[0].Type)
		i++
	}
	if i+1 >= len(code) || code[i].Op != ncs.OpJSR || code[i+1].Op != ncs.OpRetn {
		return nil, nil
	}
	first := d.subs[code[i].Target()]
	if first == nil {
		return nil, nil
	}
	entry = first
	for j := first.start; j < first.end; j++ {
		if code[j].Op != ncs.OpSaveBP {
			continue
		}
		for k := j + 1; k < first.end; k++ {
			if code[k].Op == ncs.OpJSR {
				if s := d.subs[code[k].Target()]; s != nil {
					globals, entry = first, s
				}
				break
			}
		}
		break
	}
	if result != nss.TypeVoid && result != typeUnknown {
		entry.setResult(result)
	}
	return entry, globals
}

func (d *decompiler) name(entry *sub, funcs []*sub) {
	n := 0
	for _, s := range funcs {
		if s == entry {
			continue
		}
		n++
		s.name = fmt.Sprintf("sub%d", n)
	}
	entry.name = "main"
	if entry.returns {
		entry.name = "StartingConditional"
	}
}

// order lists subroutines callers first, starting at the entry, so
// argument types seen at call sites are known when a callee is simulated.
func (d *decompiler) order(entry *sub, funcs []*sub) []*sub {
	seen := map[*sub]bool{entry: true}
	queue := []*sub{entry}
	for n := 0; n < len(queue); n++ {
		s := queue[n]
		for i := s.start; i < s.end; i++ {
			if d.code[i].Op != ncs.OpJSR {
				continue
			}
			if c := d.subs[d.code[i].Target()]; c != nil && !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	for _, s := range funcs {
		if !seen[s] {
			seen[s] = true
			queue = append(queue, s)
		}
	}
	return queue
}

// globalFrame simulates the global initializers up to SAVEBP and keeps the
// resulting slots for BP relative access.
func (d *decompiler) globalFrame(g *sub) []*nss.VarDecl {
	end := g.start
	for end < g.end && d.code[end].Op != ncs.OpSaveBP {
		end++
	}
	f := d.newFrame(nil, nil)
	f.kind = "Global"
	f.run(g.start, end)

	var decls []*nss.VarDecl
	for _, s := range f.root {
		if v, ok := s.(*nss.VarDecl); ok {
			decls = append(decls, v)
			continue
		}
		d.note("statement in global initializers at %08X", d.code[g.start].Offset)
	}
	for _, s := range f.stack {
		s.decl = nil
	}
	d.globals = f.stack
	d.merge(f)
	return decls
}

// function simulates s, rerunning once more for every round of goto
// targets discovered so their labels can be placed.
func (d *decompiler) function(s *sub) *nss.FuncDecl {
	labels := map[int]bool{}
	var f *frame
	for try := 0; try < 4; try++ {
		f = d.newFrame(s, labels)
		f.body()
		grew := false
		for t := range f.gotos {
			if !labels[t] {
				labels[t], grew = true, true
			}
		}
		if !grew {
			break
		}
	}
	d.merge(f)

	fn := &nss.FuncDecl{Name: ident(s.name), Body: &nss.BlockStmt{List: f.root}}
	return fn
}

// signature fills in the result and parameter types, which are only final
// once every caller has been simulated.
func (d *decompiler) signature(s *sub, fn *nss.FuncDecl) *nss.FuncDecl {
	fn.Result = nss.TypeVoid
	if s.returns {
		fn.Result = nss.TypeInt
		if s.resultSet {
			fn.Result = s.result
		}
	}
	for i := 0; i < s.params; i++ {
		t := s.paramType(i)
		fn.Params = append(fn.Params, nss.Param{Type: t, Name: ident(varName(t, "Param", i+1))})
	}
	return fn
}

func (d *decompiler) merge(f *frame) {
	d.notes = append(d.notes, f.notes...)
}

func ident(name string) *nss.Ident { return &nss.Ident{Name: name} }

func typeOf(q ncs.Qualifier) nss.Type {
	switch q {
	case ncs.QualInt:
		return nss.TypeInt
	case ncs.QualFloat:
		return nss.TypeFloat
	case ncs.QualString:
		return nss.TypeString
	case ncs.QualObject:
		return nss.TypeObject
	case ncs.QualEffect:
		return nss.TypeEffect
	case ncs.QualEvent:
		return nss.TypeEvent
	case ncs.QualLocation:
		return nss.TypeLocation
	case ncs.QualTalent:
		return nss.TypeTalent
	}
	return typeUnknown
}

var typePrefix = map[nss.Type]string{
	nss.TypeInt: "n", nss.TypeFloat: "f", nss.TypeString: "s", nss.TypeObject: "o",
	nss.TypeEffect: "e", nss.TypeEvent: "ev", nss.TypeLocation: "l", nss.TypeTalent: "t",
}

func varName(t nss.Type, kind string, n int) string {
	p, ok := typePrefix[t]
	if !ok {
		p = "v"
	}
	return fmt.Sprintf("%s%s%d", p, kind, n)
}
