package compiler

import (
	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
)

// typeInvalid marks an expression that already produced a diagnostic, so
// it does not cascade into further type errors.
const typeInvalid nss.Type = -1

const slotSize = 4

type compiler struct {
	actions   *nss.Actions
	entry     string
	maxErrors int
	diags     nss.Diagnostics
	asm       *ncs.Assembler

	funcs    map[string]*function
	order    []*function // definitions in source order
	globals  map[string]*variable
	nGlobals int

	fn *frame
}

type function struct {
	name   string
	label  string
	result nss.Type
	params []nss.Param
	decl   *nss.FuncDecl // the definition, nil while only prototyped
}

type variable struct {
	name   string
	typ    nss.Type
	slot   int // stack position from the frame base, or global index
	global bool
	konst  bool
}

type loop struct {
	brk, cont string
	depth     int
}

// frame is the code generation state of one function body, or of the
// global initializer block.
type frame struct {
	fn       *function
	depth    int // slots on the stack above the frame base
	base     int // return slot plus parameters
	scopes   []map[string]*variable
	loops    []loop
	epilogue string
}

func qualifier(t nss.Type) ncs.Qualifier {
	switch t {
	case nss.TypeInt:
		return ncs.QualInt
	case nss.TypeFloat:
		return ncs.QualFloat
	case nss.TypeString:
		return ncs.QualString
	case nss.TypeObject:
		return ncs.QualObject
	case nss.TypeEffect:
		return ncs.QualEffect
	case nss.TypeEvent:
		return ncs.QualEvent
	case nss.TypeLocation:
		return ncs.QualLocation
	case nss.TypeTalent:
		return ncs.QualTalent
	}
	return ncs.QualNone
}

func (c *compiler) emit(ins ncs.Instruction) { c.asm.Emit(ins) }

func (c *compiler) bind(label string) {
	if err := c.asm.Bind(label); err != nil {
		panic(err)
	}
}

func (c *compiler) jump(op ncs.Opcode, label string) {
	c.asm.Jump(op, label)
	if op == ncs.OpJZ || op == ncs.OpJNZ {
		c.fn.depth--
	}
}

// drop pops n slots.
func (c *compiler) drop(n int) {
	if n > 0 {
		c.emit(ncs.Instruction{Op: ncs.OpMovSP, Int: int32(-n * slotSize)})
		c.fn.depth -= n
	}
}

// unwind pops down to depth without changing the tracked depth, for code
// that jumps away (break, continue, return).
func (c *compiler) unwind(depth int) {
	if n := c.fn.depth - depth; n > 0 {
		c.emit(ncs.Instruction{Op: ncs.OpMovSP, Int: int32(-n * slotSize)})
	}
}

func (c *compiler) pushScope() { c.fn.scopes = append(c.fn.scopes, make(map[string]*variable)) }

func (c *compiler) popScope() { c.fn.scopes = c.fn.scopes[:len(c.fn.scopes)-1] }

func (c *compiler) declare(id *nss.Ident, v *variable) {
	scope := c.fn.scopes[len(c.fn.scopes)-1]
	if _, dup := scope[id.Name]; dup {
		c.errorf(id.Span, ErrInvalid, "%s redeclared in this scope", id.Name)
	}
	scope[id.Name] = v
}

func (c *compiler) lookup(name string) (*variable, bool) {
	if c.fn != nil {
		for i := len(c.fn.scopes) - 1; i >= 0; i-- {
			if v, ok := c.fn.scopes[i][name]; ok {
				return v, true
			}
		}
	}
	v, ok := c.globals[name]
	return v, ok
}

// offset is the copy offset of v relative to the current stack top.
func (c *compiler) offset(v *variable) int32 {
	if v.global {
		return int32(-(c.nGlobals - v.slot) * slotSize)
	}
	return int32(-(c.fn.depth - v.slot) * slotSize)
}

func (c *compiler) load(v *variable) {
	op := ncs.OpCPTopSP
	if v.global {
		op = ncs.OpCPTopBP
	}
	c.emit(ncs.Instruction{Op: op, Type: ncs.QualStack, Int: c.offset(v), Size: slotSize})
	c.fn.depth++
}

// store copies the top of the stack into v, leaving it on the stack.
func (c *compiler) store(v *variable) {
	op := ncs.OpCPDownSP
	if v.global {
		op = ncs.OpCPDownBP
	}
	c.emit(ncs.Instruction{Op: op, Type: ncs.QualStack, Int: c.offset(v), Size: slotSize})
}

func (c *compiler) compile(file *nss.File) {
	var globals []*nss.VarDecl
	for _, d := range file.Decls {
		switch d := d.(type) {
		case *nss.VarDecl:
			globals = append(globals, d)
		case *nss.FuncDecl:
			c.declareFunc(d)
		}
	}

	entry := c.entryPoint()
	if entry == nil {
		return
	}

	if entry.result == nss.TypeInt {
		c.emit(ncs.Instruction{Op: ncs.OpRSAdd, Type: ncs.QualInt})
	}
	if len(globals) == 0 {
		c.asm.Jump(ncs.OpJSR, entry.label)
		c.emit(ncs.Instruction{Op: ncs.OpRetn})
	} else {
		c.globalBlock(globals, entry)
	}

	for _, fn := range c.order {
		c.function(fn)
	}
}

func (c *compiler) declareFunc(d *nss.FuncDecl) {
	fn, seen := c.funcs[d.Name.Name]
	if !seen {
		fn = &function{name: d.Name.Name, label: "@" + d.Name.Name, result: d.Result, params: append([]nss.Param(nil), d.Params...)}
		c.funcs[fn.name] = fn
	} else if !sameSignature(fn, d) {
		c.errorf(d.Name.Span, ErrTypeMismatch, "conflicting declaration of %s", fn.name)
	}
	if d.Body == nil {
		return
	}
	if fn.decl != nil {
		c.errorf(d.Name.Span, ErrInvalid, "%s defined twice", fn.name)
		return
	}
	fn.decl = d
	for i, p := range d.Params {
		if p.Default != nil && i < len(fn.params) && fn.params[i].Default == nil {
			fn.params[i].Default = p.Default
		}
	}
	c.order = append(c.order, fn)
}

func sameSignature(fn *function, d *nss.FuncDecl) bool {
	if fn.result != d.Result || len(fn.params) != len(d.Params) {
		return false
	}
	for i, p := range d.Params {
		if fn.params[i].Type != p.Type {
			return false
		}
	}
	return true
}

func (c *compiler) entryPoint() *function {
	names := []string{EntryMain, EntryConditional}
	if c.entry != "" {
		names = []string{c.entry}
	}
	for _, name := range names {
		fn, ok := c.funcs[name]
		if !ok || fn.decl == nil {
			continue
		}
		c.entry = name
		if len(fn.params) > 0 || (fn.result != nss.TypeVoid && fn.result != nss.TypeInt) {
			c.errorf(fn.decl.Name.Span, ErrInvalid, "entry point %s must take no parameters and return void or int", name)
			return nil
		}
		return fn
	}
	c.errorf(nss.Span{}, ErrInvalid, "no entry point: define %s", names[0])
	return nil
}

// globalBlock emits the global initializer frame. It runs before the entry
// point, then SAVEBP fixes BP so functions reach globals through it.
//
//	JSR @globals; RETN
//	@globals: <globals>; SAVEBP; [RSADDI]; JSR entry; [copy result down]
//	RESTOREBP; MOVSP -globals; RETN
func (c *compiler) globalBlock(decls []*nss.VarDecl, entry *function) {
	label := "@globals"
	c.asm.Jump(ncs.OpJSR, label)
	c.emit(ncs.Instruction{Op: ncs.OpRetn})
	c.bind(label)

	c.fn = &frame{}
	c.pushScope()
	for _, d := range decls {
		c.varDecl(d)
	}
	scope := c.fn.scopes[0]
	c.nGlobals = c.fn.depth
	for name, v := range scope {
		g := *v
		g.global = true
		c.globals[name] = &g
	}

	c.emit(ncs.Instruction{Op: ncs.OpSaveBP})
	c.fn.depth++
	if entry.result == nss.TypeInt {
		c.emit(ncs.Instruction{Op: ncs.OpRSAdd, Type: ncs.QualInt})
		c.fn.depth++
	}
	c.asm.Jump(ncs.OpJSR, entry.label)
	if entry.result == nss.TypeInt {
		// the caller's result slot sits just below the globals
		c.emit(ncs.Instruction{Op: ncs.OpCPDownSP, Type: ncs.QualStack, Int: int32(-(c.fn.depth + 1) * slotSize), Size: slotSize})
		c.drop(1)
	}
	c.emit(ncs.Instruction{Op: ncs.OpRestoreBP})
	c.fn.depth--
	c.drop(c.fn.depth)
	c.emit(ncs.Instruction{Op: ncs.OpRetn})
	c.fn = nil
}

// function emits a body. On entry the stack holds the result slot (for
// non-void functions) then the arguments, last argument deepest.
func (c *compiler) function(fn *function) {
	c.bind(fn.label)
	c.fn = &frame{fn: fn, epilogue: c.asm.NewLabel("ret")}
	if fn.result != nss.TypeVoid {
		c.fn.depth = 1
	}
	c.pushScope()
	n := len(fn.params)
	for i, p := range fn.decl.Params {
		c.declare(p.Name, &variable{name: p.Name.Name, typ: p.Type, slot: c.fn.depth + n - 1 - i})
	}
	c.fn.depth += n
	c.fn.base = c.fn.depth

	c.block(fn.decl.Body.List)

	c.bind(c.fn.epilogue)
	c.drop(n)
	c.emit(ncs.Instruction{Op: ncs.OpRetn})
	c.popScope()
	c.fn = nil
}

func (c *compiler) block(list []nss.Stmt) {
	c.pushScope()
	depth := c.fn.depth
	for _, s := range list {
		c.stmt(s)
	}
	c.drop(c.fn.depth - depth)
	c.popScope()
}

// body compiles a loop or branch body in its own scope.
func (c *compiler) body(s nss.Stmt) {
	if b, ok := s.(*nss.BlockStmt); ok {
		c.block(b.List)
		return
	}
	c.block([]nss.Stmt{s})
}

func (c *compiler) varDecl(d *nss.VarDecl) {
	for _, spec := range d.Vars {
		c.emit(ncs.Instruction{Op: ncs.OpRSAdd, Type: qualifier(d.Type)})
		c.fn.depth++
		v := &variable{name: spec.Name.Name, typ: d.Type, slot: c.fn.depth - 1, konst: d.Const}
		if spec.Init != nil {
			t := c.expr(spec.Init)
			c.expect(spec.Init, t, d.Type)
			c.store(v)
			c.drop(1)
		}
		c.declare(spec.Name, v)
	}
}

func (c *compiler) expect(x nss.Node, got, want nss.Type) {
	if got != want && got != typeInvalid && want != typeInvalid {
		c.errorf(x.Extent(), ErrTypeMismatch, "expected %s, found %s", want, got)
	}
}

func (c *compiler) cond(x nss.Expr) {
	c.expect(x, c.expr(x), nss.TypeInt)
}

func (c *compiler) stmt(s nss.Stmt) {
	switch s := s.(type) {
	case *nss.VarDecl:
		c.varDecl(s)

	case *nss.ExprStmt:
		if x, ok := s.X.(*nss.IncDecExpr); ok {
			c.incDec(x, false)
			return
		}
		if t := c.expr(s.X); t != nss.TypeVoid {
			c.drop(1)
		}

	case *nss.BlockStmt:
		c.block(s.List)

	case *nss.IfStmt:
		c.cond(s.Cond)
		elseLabel := c.asm.NewLabel("else")
		c.jump(ncs.OpJZ, elseLabel)
		c.body(s.Then)
		if s.Else == nil {
			c.bind(elseLabel)
			return
		}
		end := c.asm.NewLabel("endif")
		c.jump(ncs.OpJmp, end)
		c.bind(elseLabel)
		c.body(s.Else)
		c.bind(end)

	case *nss.WhileStmt:
		top, end := c.asm.NewLabel("while"), c.asm.NewLabel("endwhile")
		c.bind(top)
		c.cond(s.Cond)
		c.jump(ncs.OpJZ, end)
		c.loopBody(s.Body, end, top)
		c.jump(ncs.OpJmp, top)
		c.bind(end)

	case *nss.DoWhileStmt:
		top, cont, end := c.asm.NewLabel("do"), c.asm.NewLabel("docond"), c.asm.NewLabel("enddo")
		c.bind(top)
		c.loopBody(s.Body, end, cont)
		c.bind(cont)
		c.cond(s.Cond)
		c.jump(ncs.OpJNZ, top)
		c.bind(end)

	case *nss.ForStmt:
		if s.Init != nil {
			c.discard(s.Init)
		}
		top, cont, end := c.asm.NewLabel("for"), c.asm.NewLabel("forpost"), c.asm.NewLabel("endfor")
		c.bind(top)
		if s.Cond != nil {
			c.cond(s.Cond)
			c.jump(ncs.OpJZ, end)
		}
		c.loopBody(s.Body, end, cont)
		c.bind(cont)
		if s.Post != nil {
			c.discard(s.Post)
		}
		c.jump(ncs.OpJmp, top)
		c.bind(end)

	case *nss.ReturnStmt:
		c.ret(s)

	case *nss.BreakStmt:
		if l, ok := c.innerLoop(s.Span, "break"); ok {
			c.unwind(l.depth)
			c.jump(ncs.OpJmp, l.brk)
		}

	case *nss.ContinueStmt:
		if l, ok := c.innerLoop(s.Span, "continue"); ok {
			c.unwind(l.depth)
			c.jump(ncs.OpJmp, l.cont)
		}

	case *nss.EmptyStmt:

	default:
		c.errorf(s.Extent(), ErrInvalid, "unsupported statement %T", s)
	}
}

// discard evaluates x for its side effects.
func (c *compiler) discard(x nss.Expr) {
	if id, ok := x.(*nss.IncDecExpr); ok {
		c.incDec(id, false)
		return
	}
	if t := c.expr(x); t != nss.TypeVoid {
		c.drop(1)
	}
}

func (c *compiler) loopBody(body nss.Stmt, brk, cont string) {
	c.fn.loops = append(c.fn.loops, loop{brk: brk, cont: cont, depth: c.fn.depth})
	c.body(body)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]
}

func (c *compiler) innerLoop(span nss.Span, what string) (loop, bool) {
	if len(c.fn.loops) == 0 {
		c.errorf(span, ErrInvalid, "%s outside a loop", what)
		return loop{}, false
	}
	return c.fn.loops[len(c.fn.loops)-1], true
}

// ret stores the result in the result slot at the frame base, pops locals
// and jumps to the epilogue, which pops the arguments.
func (c *compiler) ret(s *nss.ReturnStmt) {
	want := c.fn.fn.result
	depth := c.fn.depth
	switch {
	case s.Result == nil && want != nss.TypeVoid:
		c.errorf(s.Span, ErrTypeMismatch, "missing return value, %s returns %s", c.fn.fn.name, want)
	case s.Result != nil && want == nss.TypeVoid:
		c.errorf(s.Result.Extent(), ErrTypeMismatch, "%s returns no value", c.fn.fn.name)
	case s.Result != nil:
		c.expect(s.Result, c.expr(s.Result), want)
		c.emit(ncs.Instruction{Op: ncs.OpCPDownSP, Type: ncs.QualStack, Int: int32(-c.fn.depth * slotSize), Size: slotSize})
	}
	c.unwind(c.fn.base)
	c.fn.depth = depth
	c.asm.Jump(ncs.OpJmp, c.fn.epilogue)
}
