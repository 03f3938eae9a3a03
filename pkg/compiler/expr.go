package compiler

import (
	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
)

var (
	arithOps = map[nss.TokenKind]ncs.Opcode{
		nss.Add: ncs.OpAdd, nss.Sub: ncs.OpSub, nss.Mul: ncs.OpMul, nss.Div: ncs.OpDiv,
	}
	intOps = map[nss.TokenKind]ncs.Opcode{
		nss.Mod: ncs.OpMod, nss.Shl: ncs.OpShLeft, nss.Shr: ncs.OpShRight, nss.UShr: ncs.OpUShRight,
		nss.And: ncs.OpBoolAnd, nss.Or: ncs.OpIncOr, nss.Xor: ncs.OpExcOr,
	}
	relOps = map[nss.TokenKind]ncs.Opcode{
		nss.Lt: ncs.OpLT, nss.Le: ncs.OpLEq, nss.Gt: ncs.OpGT, nss.Ge: ncs.OpGEq,
	}
	compoundOps = map[nss.TokenKind]nss.TokenKind{
		nss.AddAssign: nss.Add, nss.SubAssign: nss.Sub, nss.MulAssign: nss.Mul,
		nss.DivAssign: nss.Div, nss.ModAssign: nss.Mod,
	}
)

// binaryOp selects the instruction for x op y and the result type.
func binaryOp(op nss.TokenKind, x, y nss.Type) (ncs.Instruction, nss.Type, bool) {
	mixed := func(o ncs.Opcode) (ncs.Instruction, nss.Type, bool) {
		switch {
		case x == nss.TypeInt && y == nss.TypeInt:
			return ncs.Instruction{Op: o, Type: ncs.QualIntInt}, nss.TypeInt, true
		case x == nss.TypeFloat && y == nss.TypeFloat:
			return ncs.Instruction{Op: o, Type: ncs.QualFloatFloat}, nss.TypeFloat, true
		case x == nss.TypeInt && y == nss.TypeFloat:
			return ncs.Instruction{Op: o, Type: ncs.QualIntFloat}, nss.TypeFloat, true
		case x == nss.TypeFloat && y == nss.TypeInt:
			return ncs.Instruction{Op: o, Type: ncs.QualFloatInt}, nss.TypeFloat, true
		}
		return ncs.Instruction{}, typeInvalid, false
	}

	if o, ok := arithOps[op]; ok {
		if op == nss.Add && x == nss.TypeString && y == nss.TypeString {
			return ncs.Instruction{Op: o, Type: ncs.QualStringString}, nss.TypeString, true
		}
		return mixed(o)
	}
	if o, ok := intOps[op]; ok {
		if x == nss.TypeInt && y == nss.TypeInt {
			return ncs.Instruction{Op: o, Type: ncs.QualIntInt}, nss.TypeInt, true
		}
		return ncs.Instruction{}, typeInvalid, false
	}
	if o, ok := relOps[op]; ok {
		if x == y && (x == nss.TypeInt || x == nss.TypeFloat) {
			ins, _, _ := mixed(o)
			return ins, nss.TypeInt, true
		}
		return ncs.Instruction{}, typeInvalid, false
	}
	if op == nss.Eq || op == nss.Neq {
		o := ncs.OpEqual
		if op == nss.Neq {
			o = ncs.OpNEqual
		}
		if q, ok := qualifier(x).Pair(); ok && x == y {
			return ncs.Instruction{Op: o, Type: q}, nss.TypeInt, true
		}
	}
	return ncs.Instruction{}, typeInvalid, false
}

// expr emits code leaving the value of x on the stack and returns its type.
// A void call leaves nothing.
func (c *compiler) expr(x nss.Expr) nss.Type {
	switch x := x.(type) {
	case *nss.IntLit:
		c.constant(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualInt, Int: x.Value})
		return nss.TypeInt
	case *nss.FloatLit:
		c.constant(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualFloat, Float: x.Value})
		return nss.TypeFloat
	case *nss.StringLit:
		c.constant(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualString, Str: x.Value})
		return nss.TypeString
	case *nss.ObjectLit:
		c.constant(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualObject, Int: x.Value})
		return nss.TypeObject
	case *nss.ParenExpr:
		return c.expr(x.X)
	case *nss.Ident:
		v, ok := c.lookup(x.Name)
		if !ok {
			c.errorf(x.Span, ErrUndefinedSymbol, "undefined identifier %s", x.Name)
			c.fn.depth++
			return typeInvalid
		}
		c.load(v)
		return v.typ
	case *nss.UnaryExpr:
		return c.unary(x)
	case *nss.BinaryExpr:
		if x.Op == nss.AndAnd || x.Op == nss.OrOr {
			return c.logical(x)
		}
		xt, yt := c.expr(x.X), c.expr(x.Y)
		ins, t, ok := binaryOp(x.Op, xt, yt)
		if ok {
			c.emit(ins)
		} else if xt != typeInvalid && yt != typeInvalid {
			c.errorf(x.Span, ErrTypeMismatch, "operator %s not defined on %s and %s", x.Op, xt, yt)
		}
		c.fn.depth--
		return t
	case *nss.AssignExpr:
		return c.assign(x)
	case *nss.IncDecExpr:
		return c.incDec(x, true)
	case *nss.CallExpr:
		return c.call(x)
	}
	c.errorf(x.Extent(), ErrInvalid, "unsupported expression %T", x)
	c.fn.depth++
	return typeInvalid
}

func (c *compiler) constant(ins ncs.Instruction) {
	c.emit(ins)
	c.fn.depth++
}

func (c *compiler) unary(x *nss.UnaryExpr) nss.Type {
	t := c.expr(x.X)
	var ins ncs.Instruction
	switch {
	case t == typeInvalid:
		return t
	case x.Op == nss.Sub && (t == nss.TypeInt || t == nss.TypeFloat):
		ins = ncs.Instruction{Op: ncs.OpNeg, Type: qualifier(t)}
	case x.Op == nss.Not && t == nss.TypeInt:
		ins = ncs.Instruction{Op: ncs.OpNot, Type: ncs.QualInt}
	case x.Op == nss.Tilde && t == nss.TypeInt:
		ins = ncs.Instruction{Op: ncs.OpComp, Type: ncs.QualInt}
	default:
		c.errorf(x.Span, ErrTypeMismatch, "operator %s not defined on %s", x.Op, t)
		return typeInvalid
	}
	c.emit(ins)
	return t
}

// logical emits a short circuit. The left value is duplicated for the
// branch so the jump path leaves it as the result.
//
//	x; CPTOPSP -4,4; JZ end; y; LOGANDII; end:
func (c *compiler) logical(x *nss.BinaryExpr) nss.Type {
	branch, op := ncs.OpJZ, ncs.OpLogAnd
	if x.Op == nss.OrOr {
		branch, op = ncs.OpJNZ, ncs.OpLogOr
	}
	c.expect(x.X, c.expr(x.X), nss.TypeInt)
	c.emit(ncs.Instruction{Op: ncs.OpCPTopSP, Type: ncs.QualStack, Int: -slotSize, Size: slotSize})
	c.fn.depth++
	end := c.asm.NewLabel("sc")
	c.jump(branch, end)
	c.expect(x.Y, c.expr(x.Y), nss.TypeInt)
	c.emit(ncs.Instruction{Op: op, Type: ncs.QualIntInt})
	c.fn.depth--
	c.bind(end)
	return nss.TypeInt
}

func (c *compiler) target(id *nss.Ident) (*variable, bool) {
	v, ok := c.lookup(id.Name)
	if !ok {
		c.errorf(id.Span, ErrUndefinedSymbol, "undefined identifier %s", id.Name)
		return nil, false
	}
	if v.konst {
		c.errorf(id.Span, ErrInvalid, "cannot assign to constant %s", id.Name)
		return nil, false
	}
	return v, true
}

func (c *compiler) assign(x *nss.AssignExpr) nss.Type {
	v, ok := c.target(x.Target)
	if x.Op == nss.Assign {
		t := c.expr(x.Value)
		if !ok {
			return typeInvalid
		}
		c.expect(x.Value, t, v.typ)
		c.store(v)
		return v.typ
	}

	if !ok {
		c.expr(x.Value)
		return typeInvalid
	}
	c.load(v)
	t := c.expr(x.Value)
	ins, res, valid := binaryOp(compoundOps[x.Op], v.typ, t)
	if valid && res == v.typ {
		c.emit(ins)
	} else if t != typeInvalid {
		c.errorf(x.Span, ErrTypeMismatch, "operator %s not defined on %s and %s", x.Op, v.typ, t)
	}
	c.fn.depth--
	c.store(v)
	return v.typ
}

// incDec adjusts an int variable in place. With push set the expression
// value is left on the stack: the old value for postfix, the new for prefix.
func (c *compiler) incDec(x *nss.IncDecExpr, push bool) nss.Type {
	v, ok := c.target(x.Target)
	if !ok {
		if push {
			c.fn.depth++
		}
		return typeInvalid
	}
	if v.typ != nss.TypeInt {
		c.errorf(x.Span, ErrTypeMismatch, "operator %s not defined on %s", x.Op, v.typ)
	}
	if push && !x.Prefix {
		c.load(v)
	}

	var op ncs.Opcode
	switch {
	case v.global && x.Op == nss.Inc:
		op = ncs.OpIncIBP
	case v.global:
		op = ncs.OpDecIBP
	case x.Op == nss.Inc:
		op = ncs.OpIncISP
	default:
		op = ncs.OpDecISP
	}
	c.emit(ncs.Instruction{Op: op, Type: ncs.QualInt, Int: c.offset(v)})

	if push && x.Prefix {
		c.load(v)
	}
	return nss.TypeInt
}

// call emits a user function call or an engine routine. Arguments are
// pushed last first so the first argument ends on top.
func (c *compiler) call(x *nss.CallExpr) nss.Type {
	name := x.Fun.Name
	if fn, ok := c.funcs[name]; ok {
		return c.callFunc(fn, x)
	}
	if a, ok := c.actions.Lookup(name); ok {
		return c.callAction(a, x)
	}
	c.errorf(x.Fun.Span, ErrUndefinedSymbol, "undefined function %s", name)
	for _, arg := range x.Args {
		c.discard(arg)
	}
	c.fn.depth++
	return typeInvalid
}

type param struct {
	name string
	typ  nss.Type
	def  nss.Expr
}

func (c *compiler) args(x *nss.CallExpr, params []param) bool {
	required := 0
	for _, p := range params {
		if p.def == nil {
			required++
		}
	}
	if len(x.Args) < required || len(x.Args) > len(params) {
		c.errorf(x.Span, ErrInvalid, "%s takes %d to %d arguments, got %d", x.Fun.Name, required, len(params), len(x.Args))
		return false
	}
	for i := len(params) - 1; i >= 0; i-- {
		arg := params[i].def
		if i < len(x.Args) {
			arg = x.Args[i]
		}
		c.expect(arg, c.expr(arg), params[i].typ)
	}
	return true
}

func (c *compiler) callFunc(fn *function, x *nss.CallExpr) nss.Type {
	if fn.decl == nil {
		c.errorf(x.Fun.Span, ErrUndefinedSymbol, "function %s is declared but never defined", fn.name)
	}
	if fn.result != nss.TypeVoid {
		c.emit(ncs.Instruction{Op: ncs.OpRSAdd, Type: qualifier(fn.result)})
		c.fn.depth++
	}
	params := make([]param, len(fn.params))
	for i, p := range fn.params {
		params[i] = param{name: p.Name.Name, typ: p.Type, def: p.Default}
	}
	depth := c.fn.depth
	c.args(x, params)
	c.asm.Jump(ncs.OpJSR, fn.label)
	c.fn.depth = depth
	return fn.result
}

func (c *compiler) callAction(a *nss.Action, x *nss.CallExpr) nss.Type {
	params := make([]param, len(a.Params))
	for i, p := range a.Params {
		params[i] = param{name: p.Name, typ: p.Type, def: p.Default}
	}
	depth := c.fn.depth
	if c.args(x, params) {
		c.emit(ncs.Instruction{Op: ncs.OpAction, Int: int32(a.ID), Size: int32(len(params))})
	}
	c.fn.depth = depth
	if a.Return != nss.TypeVoid {
		c.fn.depth++
	}
	return a.Return
}
