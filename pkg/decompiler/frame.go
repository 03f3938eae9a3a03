package decompiler

import (
	"fmt"

	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
)

type variable struct {
	name       string
	typ        nss.Type
	kind       string
	seq        int
	referenced bool
}

// slot is one symbolic stack entry: a named variable or a pending value.
type slot struct {
	typ  nss.Type
	v    *variable // nil for values
	expr nss.Expr  // value expression
	ret  bool      // result slot of the current subroutine
	used bool      // value consumed by a store or return
	// decl is the declaration an RSADD produced while it can still take an
	// initializer or be withdrawn as a call result slot.
	decl   *nss.VarDecl
	declIn *[]nss.Stmt
	at     int   // index of the pushing instruction
	src    *slot // variable a value was copied from
}

type loopKind int

const (
	loopWhile loopKind = iota
	loopDo
	loopForever
)

type loop struct {
	kind      loopKind
	end, back int // exit index, back edge index
	cont      int // continue target, -1 until seen
	post      int // start of a for post statement, -1 if none
}

type frame struct {
	*decompiler
	s      *sub
	stack  []*slot
	root   []nss.Stmt
	out    *[]nss.Stmt
	mark   map[int]int // statements in the current list on arrival at an index
	loops  []*loop
	labels map[int]bool
	gotos  map[int]bool
	heads  map[int]bool
	kind   string
	seq    map[string]int
	notes  []string
	// returned is set between a value return and the jump to the epilogue.
	returned bool
	// underflow is set once a pop found the stack empty.
	underflow bool
}

func (d *decompiler) newFrame(s *sub, labels map[int]bool) *frame {
	f := &frame{
		decompiler: d,
		s:          s,
		mark:       map[int]int{},
		labels:     labels,
		gotos:      map[int]bool{},
		heads:      map[int]bool{},
		kind:       "Var",
		seq:        map[string]int{},
	}
	f.out = &f.root
	if s == nil {
		return f
	}
	if s.returns {
		f.push(&slot{ret: true, typ: s.result, at: -1})
	}
	for i := s.params - 1; i >= 0; i-- {
		t := s.paramType(i)
		s.setParamType(i, t)
		v := &variable{name: varName(t, "Param", i+1), typ: t, kind: "Param", referenced: true}
		f.push(&slot{v: v, typ: t, at: -1})
	}
	return f
}

func (f *frame) note(format string, args ...any) {
	f.notes = append(f.notes, fmt.Sprintf(format, args...))
}

func (f *frame) label(i int) string {
	off := f.prog.End()
	if i < len(f.code) {
		off = f.code[i].Offset
	}
	return fmt.Sprintf("loc_%08X", off)
}

func (f *frame) base() int {
	if f.s == nil {
		return 0
	}
	n := f.s.params
	if f.s.returns {
		n++
	}
	return n
}

// body simulates the subroutine up to its epilogue.
func (f *frame) body() {
	s := f.s
	end := s.epilogue
	f.run(s.start, end)
	switch {
	case !s.complete:
		f.note("%s: code ends before its return", s.name)
	case len(f.stack) != f.base():
		f.note("%s: stack depth %d at return, want %d", s.name, len(f.stack), f.base())
	}
}

func (f *frame) emit(s nss.Stmt) { *f.out = append(*f.out, s) }

// nested collects the statements fn emits into a fresh list.
func (f *frame) nested(fn func()) []nss.Stmt {
	saved := f.out
	var list []nss.Stmt
	f.out = &list
	fn()
	f.out = saved
	return list
}

func (f *frame) snapshot() []*slot { return append([]*slot(nil), f.stack...) }

func (f *frame) push(s *slot) { f.stack = append(f.stack, s) }

func (f *frame) peek() *slot {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) pop() *slot {
	if len(f.stack) == 0 {
		if !f.underflow {
			f.note("stack underflow")
			f.underflow = true
		}
		return &slot{typ: nss.TypeInt, expr: ident("undefined")}
	}
	s := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return s
}

// at resolves a stack pointer relative byte offset.
func (f *frame) at(off int32) *slot {
	i := len(f.stack) + int(off)/4
	if off%4 != 0 || i < 0 || i >= len(f.stack) {
		f.note("stack offset %d out of range", off)
		return nil
	}
	return f.stack[i]
}

func (f *frame) global(off int32) *slot {
	i := len(f.globals) + int(off)/4
	if off%4 != 0 || i < 0 || i >= len(f.globals) {
		f.note("global offset %d out of range", off)
		return nil
	}
	return f.globals[i]
}

// value is the expression reading s. Reading a variable fixes its
// declaration in place.
func (f *frame) value(s *slot) nss.Expr {
	if s.v != nil {
		s.v.referenced = true
		s.decl = nil
		return ident(s.v.name)
	}
	if s.expr == nil {
		return ident("undefined")
	}
	return s.expr
}

func (f *frame) newVar(t nss.Type) *variable {
	f.seq[f.kind]++
	n := f.seq[f.kind]
	return &variable{name: varName(t, f.kind, n), typ: t, kind: f.kind, seq: n}
}

// run structures and simulates the instructions in [start, end).
func (f *frame) run(start, end int) {
	for i := start; i < end; {
		f.mark[i] = len(*f.out)
		if f.labels[i] {
			f.emit(&nss.LabelStmt{Label: f.label(i)})
		}
		if !f.heads[i] {
			if j, op := f.loopAt(i, end); j >= 0 {
				i = f.loop(i, j, op)
				continue
			}
		}
		ins := f.code[i]
		switch ins.Op {
		case ncs.OpCPTopSP:
			if n := f.shortCircuit(i, end); n > i {
				i = n
				continue
			}
		case ncs.OpJZ:
			i = f.branch(start, i, end)
			continue
		case ncs.OpJNZ:
			f.condGoto(i)
			i++
			continue
		case ncs.OpJmp:
			f.jump(i)
			i++
			continue
		}
		if ins.Op != ncs.OpMovSP {
			f.returned = false
		}
		i = f.exec(i)
	}
}

// loopAt finds the farthest back edge to i inside [i, end). A JMP back edge
// guarded by a JZ leaving just past it is a while loop, which branch
// handles from the JZ instead.
func (f *frame) loopAt(i, end int) (int, ncs.Opcode) {
	j, op := -1, ncs.OpNop
	for k := i + 1; k < end; k++ {
		ins := f.code[k]
		if (ins.Op == ncs.OpJmp || ins.Op == ncs.OpJNZ) && ins.Target() == f.code[i].Offset {
			j, op = k, ins.Op
		}
	}
	if j < 0 || op == ncs.OpJNZ {
		return j, op
	}
	for k := i; k < j; k++ {
		ins := f.code[k]
		if ins.Op != ncs.OpJZ {
			continue
		}
		if t, ok := f.index(ins.Target()); ok && t == j+1 {
			return -1, op
		}
	}
	return j, op
}

// loop structures a do-while (JNZ back edge) or an unconditional loop
// (JMP back edge) whose body is [i, j).
func (f *frame) loop(i, j int, op ncs.Opcode) int {
	f.heads[i] = true
	l := &loop{kind: loopDo, end: j + 1, back: j, cont: -1, post: -1}
	if op == ncs.OpJmp {
		l.kind, l.cont = loopForever, i
	}
	snap := f.snapshot()
	body := f.nested(func() {
		f.loops = append(f.loops, l)
		f.run(i, j)
		f.loops = f.loops[:len(f.loops)-1]
	})
	if op == ncs.OpJNZ {
		cond := f.value(f.pop())
		f.stack = snap
		f.emit(&nss.DoWhileStmt{Body: block(body), Cond: cond})
	} else {
		f.stack = snap
		f.emit(&nss.ForStmt{Body: block(body)})
	}
	return j + 1
}

// branch structures the JZ at i as a while loop, an if or an if-else.
func (f *frame) branch(start, i, end int) int {
	ins := f.code[i]
	t, ok := f.index(ins.Target())
	if !ok || t <= i || t > end {
		f.condGoto(i)
		return i + 1
	}
	cond := f.value(f.pop())

	var jmp *ncs.Instruction
	if t-1 > i && f.code[t-1].Op == ncs.OpJmp {
		jmp = &f.code[t-1]
	}
	if jmp != nil {
		if b, ok := f.index(jmp.Target()); ok && b <= i && b >= start && f.mark[b] == len(*f.out) {
			return f.while(i, t, b, cond)
		}
	}

	snap := f.snapshot()
	if jmp != nil {
		if e, ok := f.index(jmp.Target()); ok && e >= t && e <= end {
			var exit bool
			then := f.nested(func() {
				f.run(i+1, t-1)
				// A shorter stack means the jump unwinds locals on its way
				// out of an enclosing construct. A jump to the epilogue after
				// nothing or after a value return is a return.
				toEpilogue := f.s != nil && e == f.s.epilogue
				exit = len(f.stack) < len(snap) || toEpilogue && (len(*f.out) == 0 || f.returned)
				if exit {
					f.jump(t - 1)
				}
			})
			f.stack = append(f.stack[:0:0], snap...)
			if exit {
				f.emit(&nss.IfStmt{Cond: cond, Then: block(then)})
				return t
			}
			els := f.nested(func() { f.run(t, e) })
			f.stack = snap
			f.emit(&nss.IfStmt{Cond: cond, Then: block(then), Else: elseBranch(els)})
			return e
		}
	}
	then := f.nested(func() { f.run(i+1, t) })
	f.stack = snap
	f.emit(&nss.IfStmt{Cond: cond, Then: block(then)})
	return t
}

// while structures cond at [b, i) with body [i+1, t-1) and the back edge at
// t-1. A continue landing after the body start marks a for loop's post
// statement.
func (f *frame) while(i, t, b int, cond nss.Expr) int {
	l := &loop{kind: loopWhile, end: t, back: t - 1, cont: b, post: -1}
	snap := f.snapshot()
	body := f.nested(func() {
		f.loops = append(f.loops, l)
		f.run(i+1, t-1)
		f.loops = f.loops[:len(f.loops)-1]
	})
	f.stack = snap

	if l.post >= 0 {
		k := f.mark[l.post]
		if k < len(body) && len(body)-k == 1 {
			if post, ok := body[k].(*nss.ExprStmt); ok {
				f.emit(&nss.ForStmt{Init: f.forInit(post.X), Cond: cond, Post: post.X, Body: block(body[:k])})
				return t
			}
		}
		f.note("loop at %08X continues into more than one statement", f.code[b].Offset)
	} else if n := len(body); n > 0 {
		if post, ok := body[n-1].(*nss.ExprStmt); ok {
			if init := f.forInit(post.X); init != nil {
				f.emit(&nss.ForStmt{Init: init, Cond: cond, Post: post.X, Body: block(body[:n-1])})
				return t
			}
		}
	}
	f.emit(&nss.WhileStmt{Cond: cond, Body: block(body)})
	return t
}

// forInit takes the statement before a loop as its initializer when it
// assigns the variable post updates.
func (f *frame) forInit(post nss.Expr) nss.Expr {
	target := updated(post)
	n := len(*f.out)
	if target == "" || n == 0 {
		return nil
	}
	s, ok := (*f.out)[n-1].(*nss.ExprStmt)
	if !ok {
		return nil
	}
	a, ok := s.X.(*nss.AssignExpr)
	if !ok || a.Target.Name != target {
		return nil
	}
	*f.out = (*f.out)[:n-1]
	return a
}

func updated(x nss.Expr) string {
	switch x := x.(type) {
	case *nss.AssignExpr:
		return x.Target.Name
	case *nss.IncDecExpr:
		return x.Target.Name
	}
	return ""
}

// jump turns an unconditional jump into return, break, continue or goto.
func (f *frame) jump(i int) {
	t, ok := f.index(f.code[i].Target())
	if f.s != nil && ok && t == f.s.epilogue {
		switch {
		case f.returned:
			f.returned = false
		case i == f.s.epilogue-1 && f.out == &f.root:
		default:
			f.emit(&nss.ReturnStmt{})
		}
		return
	}
	if n := len(f.loops); n > 0 && ok {
		l := f.loops[n-1]
		switch {
		case t == l.end:
			f.emit(&nss.BreakStmt{})
			return
		case t == l.cont, t == l.post && l.post >= 0:
			f.emit(&nss.ContinueStmt{})
			return
		case l.kind == loopDo && l.cont < 0 && t > i && t <= l.back:
			l.cont = t
			f.emit(&nss.ContinueStmt{})
			return
		case l.kind == loopWhile && l.post < 0 && t > i && t < l.back:
			l.post = t
			f.emit(&nss.ContinueStmt{})
			return
		}
	}
	f.gotoLabel(t, ok, i)
}

func (f *frame) gotoLabel(t int, ok bool, i int) {
	if !ok {
		f.note("jump at %08X to %08X is not an instruction", f.code[i].Offset, f.code[i].Target())
		f.emit(&nss.GotoStmt{Label: fmt.Sprintf("loc_%08X", f.code[i].Target())})
		return
	}
	f.note("unstructured jump at %08X", f.code[i].Offset)
	f.gotos[t] = true
	f.emit(&nss.GotoStmt{Label: f.label(t)})
}

// condGoto emits a conditional jump that matched no shape as
// "if (cond) goto L".
func (f *frame) condGoto(i int) {
	ins := f.code[i]
	cond := f.value(f.pop())
	if ins.Op == ncs.OpJZ {
		cond = &nss.UnaryExpr{Op: nss.Not, X: cond}
	}
	t, ok := f.index(ins.Target())
	then := f.nested(func() { f.gotoLabel(t, ok, i) })
	f.emit(&nss.IfStmt{Cond: cond, Then: block(then)})
}

// shortCircuit matches "CPTOPSP -4,4; JZ end; y; LOGANDII; end:" and its
// JNZ/LOGORII twin with the left operand already on the stack.
func (f *frame) shortCircuit(i, end int) int {
	ins := f.code[i]
	if ins.Int != -4 || ins.Size != 4 || i+1 >= end {
		return i
	}
	br := f.code[i+1]
	op, logic := nss.AndAnd, ncs.OpLogAnd
	switch br.Op {
	case ncs.OpJZ:
	case ncs.OpJNZ:
		op, logic = nss.OrOr, ncs.OpLogOr
	default:
		return i
	}
	t, ok := f.index(br.Target())
	if !ok || t-1 <= i+1 || t > end || f.code[t-1].Op != logic {
		return i
	}
	left := f.peek()
	if left == nil || left.v != nil || left.ret {
		return i
	}
	stmts := f.nested(func() { f.run(i+2, t-1) })
	if len(stmts) > 0 {
		f.note("statements inside a condition at %08X", ins.Offset)
		*f.out = append(*f.out, stmts...)
	}
	right := f.pop()
	left.expr = &nss.BinaryExpr{Op: op, X: left.expr, Y: f.value(right)}
	left.typ, left.at, left.src = nss.TypeInt, t-1, nil
	return t
}

func block(list []nss.Stmt) *nss.BlockStmt { return &nss.BlockStmt{List: list} }

// elseBranch keeps "else if" chains flat.
func elseBranch(list []nss.Stmt) nss.Stmt {
	if len(list) == 1 {
		if s, ok := list[0].(*nss.IfStmt); ok {
			return s
		}
	}
	return block(list)
}
