package decompiler

import (
	"fmt"

	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
)

var binaryOps = map[ncs.Opcode]nss.TokenKind{
	ncs.OpLogAnd: nss.AndAnd, ncs.OpLogOr: nss.OrOr,
	ncs.OpIncOr: nss.Or, ncs.OpExcOr: nss.Xor, ncs.OpBoolAnd: nss.And,
	ncs.OpEqual: nss.Eq, ncs.OpNEqual: nss.Neq,
	ncs.OpGEq: nss.Ge, ncs.OpGT: nss.Gt, ncs.OpLT: nss.Lt, ncs.OpLEq: nss.Le,
	ncs.OpShLeft: nss.Shl, ncs.OpShRight: nss.Shr, ncs.OpUShRight: nss.UShr,
	ncs.OpAdd: nss.Add, ncs.OpSub: nss.Sub, ncs.OpMul: nss.Mul, ncs.OpDiv: nss.Div, ncs.OpMod: nss.Mod,
}

var unaryOps = map[ncs.Opcode]nss.TokenKind{
	ncs.OpNeg: nss.Sub, ncs.OpNot: nss.Not, ncs.OpComp: nss.Tilde,
}

var compoundOps = map[nss.TokenKind]nss.TokenKind{
	nss.Add: nss.AddAssign, nss.Sub: nss.SubAssign, nss.Mul: nss.MulAssign,
	nss.Div: nss.DivAssign, nss.Mod: nss.ModAssign,
}

// binaryType is the result type of an arithmetic instruction.
func binaryType(ins ncs.Instruction) nss.Type {
	switch ins.Op {
	case ncs.OpAdd, ncs.OpSub, ncs.OpMul, ncs.OpDiv:
		switch ins.Type {
		case ncs.QualFloatFloat, ncs.QualIntFloat, ncs.QualFloatInt:
			return nss.TypeFloat
		case ncs.QualStringString:
			return nss.TypeString
		}
	}
	return nss.TypeInt
}

// exec simulates the plain instruction at i and returns the next index.
func (f *frame) exec(i int) int {
	ins := f.code[i]
	if op, ok := binaryOps[ins.Op]; ok {
		if ins.Type == ncs.QualStructStruct || ins.Type >= ncs.QualVectorVector {
			f.note("%s at %08X: structure and vector operands are not supported", ins.Mnemonic(), ins.Offset)
		}
		y := f.value(f.pop())
		x := f.value(f.pop())
		f.push(&slot{typ: binaryType(ins), expr: &nss.BinaryExpr{Op: op, X: x, Y: y}, at: i})
		return i + 1
	}
	if op, ok := unaryOps[ins.Op]; ok {
		x := f.pop()
		t := typeOf(ins.Type)
		if t == typeUnknown {
			t = x.typ
		}
		f.push(&slot{typ: t, expr: &nss.UnaryExpr{Op: op, X: f.value(x)}, at: i})
		return i + 1
	}

	switch ins.Op {
	case ncs.OpRSAdd:
		t := typeOf(ins.Type)
		if t == typeUnknown {
			f.note("RSADD at %08X reserves %s", ins.Offset, ins.Type)
			t = nss.TypeInt
		}
		v := f.newVar(t)
		decl := &nss.VarDecl{Type: t, Vars: []nss.VarSpec{{Name: ident(v.name)}}}
		f.emit(decl)
		f.push(&slot{v: v, typ: t, decl: decl, declIn: f.out, at: i})

	case ncs.OpConst:
		f.push(&slot{typ: typeOf(ins.Type), expr: literal(ins), at: i})

	case ncs.OpCPTopSP:
		f.copyTop(i, f.at(ins.Int), ins.Size)

	case ncs.OpCPTopBP:
		f.copyTop(i, f.global(ins.Int), ins.Size)

	case ncs.OpCPDownSP:
		f.store(f.at(ins.Int), ins)

	case ncs.OpCPDownBP:
		f.store(f.global(ins.Int), ins)

	case ncs.OpMovSP:
		if ins.Int > 0 {
			f.note("MOVSP at %08X grows the stack", ins.Offset)
		}
		n := -int(ins.Int) / 4
		if n > len(f.stack) {
			f.note("MOVSP at %08X pops %d slots from a stack of %d", ins.Offset, n, len(f.stack))
			n = len(f.stack)
		}
		for ; n > 0; n-- {
			if s := f.pop(); s.v == nil && !s.used && !s.ret {
				f.emit(&nss.ExprStmt{X: f.value(s)})
			}
		}

	case ncs.OpIncISP, ncs.OpDecISP:
		return f.incDec(i, f.at(ins.Int))

	case ncs.OpIncIBP, ncs.OpDecIBP:
		return f.incDec(i, f.global(ins.Int))

	case ncs.OpAction:
		f.action(ins)

	case ncs.OpJSR:
		f.call(ins)

	case ncs.OpRetn:
		f.note("RETN before the end of a subroutine at %08X", ins.Offset)
		f.emit(&nss.ReturnStmt{})

	case ncs.OpNop:

	default:
		f.note("%s at %08X has no source form", ins.Mnemonic(), ins.Offset)
	}
	return i + 1
}

func literal(ins ncs.Instruction) nss.Expr {
	switch ins.Type {
	case ncs.QualFloat:
		return &nss.FloatLit{Value: ins.Float}
	case ncs.QualString:
		return &nss.StringLit{Value: ins.Str}
	case ncs.QualObject:
		return &nss.ObjectLit{Value: ins.Int}
	}
	return &nss.IntLit{Value: ins.Int}
}

func (f *frame) copyTop(i int, s *slot, size int32) {
	if size != 4 {
		f.note("copy of %d bytes at %08X", size, f.code[i].Offset)
	}
	if s == nil || s.ret {
		f.push(&slot{typ: nss.TypeInt, expr: ident("undefined"), at: i})
		return
	}
	f.push(&slot{typ: s.typ, expr: f.value(s), at: i, src: s})
}

// store handles CPDOWNSP and CPDOWNBP. The value stays on the stack: a
// store into the result slot is a return, a store into a fresh declaration
// is its initializer, and anything else wraps the value in an assignment.
func (f *frame) store(dst *slot, ins ncs.Instruction) {
	top := f.peek()
	if dst == nil || top == nil {
		return
	}
	if dst.ret {
		f.emit(&nss.ReturnStmt{Result: f.value(top)})
		f.s.setResult(top.typ)
		top.used, f.returned = true, true
		return
	}
	if dst.v == nil {
		f.note("store into a temporary at %08X", ins.Offset)
		dst.expr = top.expr
		return
	}
	val := f.value(top)
	if d := dst.decl; d != nil && !dst.v.referenced && d.Vars[0].Init == nil && last(*dst.declIn) == d {
		d.Vars[0].Init = val
		dst.decl = nil
		top.used = true
		return
	}
	dst.decl = nil
	dst.v.referenced = true
	top.expr = assignment(dst.v.name, val)
	top.v, top.src = nil, nil
}

func last(list []nss.Stmt) nss.Stmt {
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// assignment folds "x = x op y" into "x op= y"; both compile the same.
func assignment(name string, val nss.Expr) *nss.AssignExpr {
	if b, ok := val.(*nss.BinaryExpr); ok {
		if x, ok := b.X.(*nss.Ident); ok && x.Name == name {
			if op, ok := compoundOps[b.Op]; ok {
				return &nss.AssignExpr{Op: op, Target: ident(name), Value: b.Y}
			}
		}
	}
	return &nss.AssignExpr{Op: nss.Assign, Target: ident(name), Value: val}
}

// incDec rebuilds ++ and --. A copy of the variable pushed just before is
// the postfix form; a copy pushed just after, while a value or a fresh
// declaration is waiting on the stack, is the prefix form. Otherwise it is
// a statement.
func (f *frame) incDec(i int, s *slot) int {
	ins := f.code[i]
	if s == nil || s.v == nil {
		f.note("%s at %08X does not address a variable", ins.Mnemonic(), ins.Offset)
		return i + 1
	}
	op := nss.Inc
	if ins.Op == ncs.OpDecISP || ins.Op == ncs.OpDecIBP {
		op = nss.Dec
	}
	f.value(s)
	x := &nss.IncDecExpr{Op: op, Target: ident(s.v.name)}

	if top := f.peek(); top != nil && top.src == s && top.at == i-1 && top.v == nil {
		top.expr, top.src = x, nil
		return i + 1
	}
	if top := f.peek(); top != nil && (top.v == nil || top.decl != nil) && !top.ret && i+1 < len(f.code) {
		next := f.code[i+1]
		sp := ins.Op == ncs.OpIncISP || ins.Op == ncs.OpDecISP
		var src *slot
		switch {
		case next.Size != 4:
		case sp && next.Op == ncs.OpCPTopSP:
			src = f.at(next.Int)
		case !sp && next.Op == ncs.OpCPTopBP:
			src = f.global(next.Int)
		}
		if src == s {
			x.Prefix = true
			f.push(&slot{typ: s.typ, expr: x, at: i + 1})
			return i + 2
		}
	}
	f.emit(&nss.ExprStmt{X: x})
	return i + 1
}

// action rebuilds an engine routine call. Trailing arguments equal to the
// routine's defaults are left out.
func (f *frame) action(ins ncs.Instruction) {
	args := make([]nss.Expr, ins.Size)
	for k := range args {
		args[k] = f.value(f.pop())
	}
	a, ok := f.actions.ByID(int(ins.Int))
	if !ok {
		f.note("unknown engine routine %d at %08X", ins.Int, ins.Offset)
		f.emit(&nss.ExprStmt{X: &nss.CallExpr{Fun: ident(fmt.Sprintf("Action%d", ins.Int)), Args: args}})
		return
	}
	for n := len(args); n > 0 && n <= len(a.Params); n-- {
		def := a.Params[n-1].Default
		if def == nil || nss.PrintExpr(def) != nss.PrintExpr(args[n-1]) {
			break
		}
		args = args[:n-1]
	}
	call := &nss.CallExpr{Fun: ident(a.Name), Args: args}
	if a.Return == nss.TypeVoid {
		f.emit(&nss.ExprStmt{X: call})
		return
	}
	f.push(&slot{typ: a.Return, expr: call, at: f.indexOf(ins)})
}

func (f *frame) indexOf(ins ncs.Instruction) int {
	i, _ := f.prog.Index(ins.Offset)
	return i
}

// call rebuilds a subroutine call. A subroutine with a result was preceded
// by an RSADD for it, which so far was taken for a declaration.
func (f *frame) call(ins ncs.Instruction) {
	callee := f.subs[ins.Target()]
	if callee == nil {
		f.note("JSR at %08X to %08X is not a subroutine", ins.Offset, ins.Target())
		return
	}
	args := make([]nss.Expr, callee.params)
	for k := range args {
		s := f.pop()
		callee.setParamType(k, s.typ)
		args[k] = f.value(s)
	}
	x := &nss.CallExpr{Fun: ident(callee.name), Args: args}
	if !callee.returns {
		f.emit(&nss.ExprStmt{X: x})
		return
	}

	r := f.peek()
	if r == nil || r.v == nil || r.decl == nil {
		f.note("call to %s at %08X has no result slot", callee.name, ins.Offset)
		f.push(&slot{typ: callee.result, expr: x, at: f.indexOf(ins)})
		return
	}
	f.withdraw(r)
	callee.setResult(r.typ)
	*r = slot{typ: r.typ, expr: x, at: f.indexOf(ins)}
}

// withdraw removes the declaration an RSADD produced.
func (f *frame) withdraw(r *slot) {
	list := *r.declIn
	for k := len(list) - 1; k >= 0; k-- {
		if list[k] == r.decl {
			*r.declIn = append(list[:k], list[k+1:]...)
			break
		}
	}
	if f.seq[r.v.kind] == r.v.seq {
		f.seq[r.v.kind]--
	}
}
