// Package nss lexes, parses and prints NWScript source.
//
// Parsing never stops at the first problem: diagnostics are accumulated up
// to a limit and the parser resynchronizes at statement boundaries, so the
// returned File is usable for as much of the input as could be understood.
package nss

import (
	"math"
	"strconv"
)

// DefaultMaxErrors is the diagnostic limit when WithMaxErrors is not given.
const DefaultMaxErrors = 10

// Option configures Parse.
type Option func(*parser)

// WithMaxErrors stops parsing once n diagnostics have been reported.
func WithMaxErrors(n int) Option {
	return func(p *parser) {
		if n > 0 {
			p.maxErrors = n
		}
	}
}

// binaryPrec is consulted by the precedence climbing loop in parseBinary.
// Higher binds tighter; all binary operators are left associative.
var binaryPrec = map[TokenKind]int{
	OrOr: 1, AndAnd: 2,
	Or: 3, Xor: 4, And: 5,
	Eq: 6, Neq: 6,
	Lt: 7, Le: 7, Gt: 7, Ge: 7,
	Shl: 8, Shr: 8, UShr: 8,
	Add: 9, Sub: 9,
	Mul: 10, Div: 10, Mod: 10,
}

// maxNesting bounds how deeply statements and expressions may nest.
const maxNesting = 500

// unaryPrec is the binding power of prefix operators, above every binary one.
const unaryPrec = 11

// Precedence returns the binding power of a binary operator, or 0.
func Precedence(op TokenKind) int { return binaryPrec[op] }

var assignOps = map[TokenKind]bool{
	Assign: true, AddAssign: true, SubAssign: true, MulAssign: true, DivAssign: true, ModAssign: true,
}

type bailout struct{}

type parser struct {
	toks      []Token
	pos       int
	tok       Token
	diags     Diagnostics
	maxErrors int
	depth     int
}

func newParser(src string, opts []Option) *parser {
	p := &parser{maxErrors: DefaultMaxErrors}
	for _, opt := range opts {
		opt(p)
	}
	p.toks = lex(src, &p.diags)
	p.tok = p.toks[0]
	return p
}

// run calls fn, stopping early when the diagnostic limit is reached.
func (p *parser) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
		}
		if len(p.diags) > p.maxErrors {
			p.diags = p.diags[:p.maxErrors]
		}
	}()
	if len(p.diags) >= p.maxErrors {
		panic(bailout{})
	}
	fn()
}

// Parse parses a translation unit. On failure the error is a Diagnostics
// value and the partial File is still returned.
func Parse(src string, opts ...Option) (*File, error) {
	p := newParser(src, opts)
	file := &File{}
	p.run(func() {
		for p.tok.Kind != EOF {
			if d := p.parseDecl(); d != nil {
				file.Decls = append(file.Decls, d)
			}
		}
	})
	return file, p.diags.Err()
}

// ParseExpr parses a single expression, such as a parameter default.
func ParseExpr(src string, opts ...Option) (Expr, error) {
	p := newParser(src, opts)
	var x Expr
	p.run(func() {
		x = p.parseExpr()
		if p.tok.Kind != EOF {
			p.errorf(p.tok.Span.Start, "unexpected %s after expression", p.tok.Kind)
		}
	})
	return x, p.diags.Err()
}

func (p *parser) next() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.tok = p.toks[p.pos]
}

func (p *parser) peek() Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) errorf(pos Pos, format string, args ...any) {
	p.diags.add(pos, ErrParse, format, args...)
	if len(p.diags) >= p.maxErrors {
		panic(bailout{})
	}
}

// enter descends one nesting level. Past maxNesting it reports the error
// and abandons the parse, keeping the declarations already complete.
func (p *parser) enter() {
	p.depth++
	if p.depth > maxNesting {
		p.diags.add(p.tok.Span.Start, ErrParse, "nesting exceeds %d levels", maxNesting)
		panic(bailout{})
	}
}

func (p *parser) leave() { p.depth-- }

func (p *parser) got(k TokenKind) bool {
	if p.tok.Kind == k {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k TokenKind) (Token, bool) {
	t := p.tok
	if t.Kind != k {
		p.errorf(t.Span.Start, "expected %s, found %s", k, describe(t))
		return t, false
	}
	p.next()
	return t, true
}

func describe(t Token) string {
	switch t.Kind {
	case TokIdent, TokInt, TokFloat:
		return strconv.Quote(t.Text)
	case TokString:
		return "string literal"
	}
	return t.Kind.String()
}

// sync skips to the end of the current statement: past the next semicolon,
// or up to a closing brace.
func (p *parser) sync() {
	for {
		switch p.tok.Kind {
		case EOF, RBrace:
			return
		case Semicolon:
			p.next()
			return
		}
		p.next()
	}
}

// guard runs a parse step and resynchronizes when it fails. A step that
// fails on its first token is forced past it so recovery always progresses.
func (p *parser) guard(step func() bool) {
	start := p.pos
	if step() {
		return
	}
	if p.pos == start && p.tok.Kind != EOF && p.tok.Kind != RBrace {
		p.next()
	}
	p.sync()
}

func (p *parser) parseDecl() Decl {
	var d Decl
	if p.tok.Kind == RBrace {
		// usually the tail of a function whose header failed to parse
		if len(p.diags) == 0 {
			p.errorf(p.tok.Span.Start, "unexpected }")
		}
		p.next()
		return nil
	}
	p.guard(func() bool {
		start := p.tok.Span
		isConst := p.got(KwConst)
		typ, ok := typeKeyword(p.tok.Kind)
		if !ok {
			p.errorf(p.tok.Span.Start, "expected declaration, found %s", describe(p.tok))
			return false
		}
		p.next()
		if !isConst && p.tok.Kind == TokIdent && p.peek().Kind == LParen {
			if fn := p.parseFunc(start, typ); fn != nil {
				d = fn
			}
		} else if vd := p.parseVarSpecs(start, isConst, typ); vd != nil {
			d = vd
		}
		return d != nil
	})
	return d
}

func (p *parser) parseFunc(start Span, result Type) *FuncDecl {
	name := p.parseIdent()
	if name == nil {
		return nil
	}
	fn := &FuncDecl{Result: result, Name: name}
	if _, ok := p.expect(LParen); !ok {
		return nil
	}
	for p.tok.Kind != RParen {
		if len(fn.Params) > 0 {
			if _, ok := p.expect(Comma); !ok {
				return nil
			}
		}
		typ, ok := typeKeyword(p.tok.Kind)
		if !ok || typ == TypeVoid {
			p.errorf(p.tok.Span.Start, "expected parameter type, found %s", describe(p.tok))
			return nil
		}
		p.next()
		prm := Param{Type: typ, Name: p.parseIdent()}
		if prm.Name == nil {
			return nil
		}
		if p.got(Assign) {
			if prm.Default = p.parseExpr(); prm.Default == nil {
				return nil
			}
		}
		fn.Params = append(fn.Params, prm)
	}
	p.next() // )
	if p.tok.Kind == Semicolon {
		fn.Span = spanOf(start, p.tok.Span)
		p.next()
		return fn
	}
	if fn.Body = p.parseBlock(); fn.Body == nil {
		return nil
	}
	fn.Span = spanOf(start, fn.Body.Span)
	return fn
}

// parseVarSpecs parses "a = 1, b;" after the type keyword.
func (p *parser) parseVarSpecs(start Span, isConst bool, typ Type) *VarDecl {
	if typ == TypeVoid {
		p.errorf(start.Start, "variables cannot be void")
		return nil
	}
	vd := &VarDecl{Const: isConst, Type: typ}
	for {
		spec := VarSpec{Name: p.parseIdent()}
		if spec.Name == nil {
			return nil
		}
		if p.got(Assign) {
			if spec.Init = p.parseExpr(); spec.Init == nil {
				return nil
			}
		} else if isConst {
			p.errorf(spec.Name.Span.Start, "constant %s needs a value", spec.Name.Name)
			return nil
		}
		vd.Vars = append(vd.Vars, spec)
		if !p.got(Comma) {
			break
		}
	}
	end, ok := p.expect(Semicolon)
	if !ok {
		return nil
	}
	vd.Span = spanOf(start, end.Span)
	return vd
}

func (p *parser) parseIdent() *Ident {
	t, ok := p.expect(TokIdent)
	if !ok {
		return nil
	}
	return &Ident{Span: t.Span, Name: t.Text}
}

// parseBlock keeps whatever statements parsed; a failed statement inside
// does not fail the block.
func (p *parser) parseBlock() *BlockStmt {
	open, ok := p.expect(LBrace)
	if !ok {
		return nil
	}
	b := &BlockStmt{}
	for p.tok.Kind != RBrace && p.tok.Kind != EOF {
		if s := p.parseStmt(); s != nil {
			b.List = append(b.List, s)
		}
	}
	end, ok := p.expect(RBrace)
	if !ok {
		return nil
	}
	b.Span = spanOf(open.Span, end.Span)
	return b
}

func (p *parser) parseStmt() Stmt {
	var s Stmt
	p.guard(func() bool {
		s = p.stmt()
		return s != nil
	})
	return s
}

// stmt returns a nil Stmt (not a typed nil) on failure, without consuming
// anything past the offending token.
func (p *parser) stmt() Stmt {
	p.enter()
	defer p.leave()
	start := p.tok.Span
	switch p.tok.Kind {
	case LBrace:
		if b := p.parseBlock(); b != nil {
			return b
		}
		return nil

	case Semicolon:
		p.next()
		return &EmptyStmt{Span: start}

	case KwConst, KwInt, KwFloat, KwString, KwObject, KwVoid, KwEffect, KwEvent, KwLocation, KwTalent:
		isConst := p.got(KwConst)
		typ, ok := typeKeyword(p.tok.Kind)
		if !ok {
			p.errorf(p.tok.Span.Start, "expected type after const")
			return nil
		}
		p.next()
		if vd := p.parseVarSpecs(start, isConst, typ); vd != nil {
			return vd
		}
		return nil

	case KwIf:
		p.next()
		cond := p.parseCond()
		if cond == nil {
			return nil
		}
		then := p.parseStmt()
		if then == nil {
			return nil
		}
		s := &IfStmt{Cond: cond, Then: then}
		if p.got(KwElse) {
			if s.Else = p.parseStmt(); s.Else == nil {
				return nil
			}
		}
		s.Span = spanOf(start, p.prevSpan())
		return s

	case KwWhile:
		p.next()
		cond := p.parseCond()
		if cond == nil {
			return nil
		}
		body := p.parseStmt()
		if body == nil {
			return nil
		}
		return &WhileStmt{Span: spanOf(start, body.Extent()), Cond: cond, Body: body}

	case KwDo:
		p.next()
		body := p.parseStmt()
		if body == nil {
			return nil
		}
		if _, ok := p.expect(KwWhile); !ok {
			return nil
		}
		cond := p.parseCond()
		if cond == nil {
			return nil
		}
		end, ok := p.expect(Semicolon)
		if !ok {
			return nil
		}
		return &DoWhileStmt{Span: spanOf(start, end.Span), Body: body, Cond: cond}

	case KwFor:
		p.next()
		if _, ok := p.expect(LParen); !ok {
			return nil
		}
		s := &ForStmt{}
		clause := func(x *Expr, end TokenKind) bool {
			if p.tok.Kind != end {
				if *x = p.parseExpr(); *x == nil {
					return false
				}
			}
			_, ok := p.expect(end)
			return ok
		}
		if !clause(&s.Init, Semicolon) || !clause(&s.Cond, Semicolon) || !clause(&s.Post, RParen) {
			return nil
		}
		if s.Body = p.parseStmt(); s.Body == nil {
			return nil
		}
		s.Span = spanOf(start, s.Body.Extent())
		return s

	case KwReturn:
		p.next()
		s := &ReturnStmt{}
		if p.tok.Kind != Semicolon {
			if s.Result = p.parseExpr(); s.Result == nil {
				return nil
			}
		}
		end, ok := p.expect(Semicolon)
		if !ok {
			return nil
		}
		s.Span = spanOf(start, end.Span)
		return s

	case KwBreak, KwContinue:
		kind := p.tok.Kind
		p.next()
		end, ok := p.expect(Semicolon)
		if !ok {
			return nil
		}
		if kind == KwBreak {
			return &BreakStmt{Span: spanOf(start, end.Span)}
		}
		return &ContinueStmt{Span: spanOf(start, end.Span)}

	case KwElse:
		p.errorf(start.Start, "else without if")
		return nil
	}

	x := p.parseExpr()
	if x == nil {
		return nil
	}
	end, ok := p.expect(Semicolon)
	if !ok {
		return nil
	}
	return &ExprStmt{Span: spanOf(x.Extent(), end.Span), X: x}
}

func (p *parser) prevSpan() Span {
	if p.pos == 0 {
		return p.tok.Span
	}
	return p.toks[p.pos-1].Span
}

func (p *parser) parseCond() Expr {
	if _, ok := p.expect(LParen); !ok {
		return nil
	}
	x := p.parseExpr()
	if _, ok := p.expect(RParen); !ok {
		return nil
	}
	return x
}

func (p *parser) parseExpr() Expr {
	lhs := p.parseBinary(1)
	if lhs == nil || !assignOps[p.tok.Kind] {
		return lhs
	}
	op := p.tok
	p.next()
	rhs := p.parseExpr()
	if rhs == nil {
		return nil
	}
	target, ok := lhs.(*Ident)
	if !ok {
		p.errorf(op.Span.Start, "cannot assign to this expression")
		return nil
	}
	return &AssignExpr{Span: spanOf(target.Span, rhs.Extent()), Op: op.Kind, Target: target, Value: rhs}
}

// parseBinary is the precedence climbing loop: it folds operators whose
// precedence is at least minPrec, recursing one level tighter for the right
// operand.
func (p *parser) parseBinary(minPrec int) Expr {
	x := p.parseUnary()
	for x != nil {
		prec, ok := binaryPrec[p.tok.Kind]
		if !ok || prec < minPrec {
			return x
		}
		op := p.tok.Kind
		p.next()
		y := p.parseBinary(prec + 1)
		if y == nil {
			return nil
		}
		x = &BinaryExpr{Span: spanOf(x.Extent(), y.Extent()), Op: op, X: x, Y: y}
	}
	return nil
}

func (p *parser) parseUnary() Expr {
	p.enter()
	defer p.leave()
	start := p.tok
	switch start.Kind {
	case Sub, Not, Tilde:
		p.next()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &UnaryExpr{Span: spanOf(start.Span, x.Extent()), Op: start.Kind, X: x}
	case Add:
		p.next()
		return p.parseUnary()
	case Inc, Dec:
		p.next()
		id := p.parseIdent()
		if id == nil {
			return nil
		}
		return &IncDecExpr{Span: spanOf(start.Span, id.Span), Op: start.Kind, Target: id, Prefix: true}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Expr {
	x := p.parsePrimary()
	if x != nil && (p.tok.Kind == Inc || p.tok.Kind == Dec) {
		op := p.tok
		p.next()
		id, ok := x.(*Ident)
		if !ok {
			p.errorf(op.Span.Start, "%s needs a variable", op.Kind)
			return nil
		}
		return &IncDecExpr{Span: spanOf(id.Span, op.Span), Op: op.Kind, Target: id}
	}
	return x
}

func (p *parser) parsePrimary() Expr {
	t := p.tok
	switch t.Kind {
	case TokInt:
		p.next()
		v, err := strconv.ParseInt(t.Text, 0, 64)
		hex := len(t.Text) > 1 && (t.Text[1] == 'x' || t.Text[1] == 'X')
		if err != nil || v > math.MaxUint32 || (!hex && v > math.MaxInt32) {
			p.errorf(t.Span.Start, "integer literal %s out of range", t.Text)
			return nil
		}
		return &IntLit{Span: t.Span, Value: int32(uint32(v))}

	case TokFloat:
		p.next()
		v, err := strconv.ParseFloat(t.Text, 32)
		if err != nil {
			p.errorf(t.Span.Start, "invalid float literal %s", t.Text)
			return nil
		}
		return &FloatLit{Span: t.Span, Value: float32(v)}

	case TokString:
		p.next()
		return &StringLit{Span: t.Span, Value: t.Text}

	case TokIdent:
		p.next()
		switch t.Text {
		case "TRUE":
			return &IntLit{Span: t.Span, Value: 1}
		case "FALSE":
			return &IntLit{Span: t.Span, Value: 0}
		case "OBJECT_SELF":
			return &ObjectLit{Span: t.Span, Value: ObjectSelf}
		case "OBJECT_INVALID":
			return &ObjectLit{Span: t.Span, Value: ObjectInvalid}
		}
		id := &Ident{Span: t.Span, Name: t.Text}
		if p.tok.Kind != LParen {
			return id
		}
		return p.parseCall(id)

	case LParen:
		p.next()
		x := p.parseExpr()
		end, ok := p.expect(RParen)
		if x == nil || !ok {
			return nil
		}
		return &ParenExpr{Span: spanOf(t.Span, end.Span), X: x}
	}

	p.errorf(t.Span.Start, "expected expression, found %s", describe(t))
	return nil
}

func (p *parser) parseCall(fun *Ident) Expr {
	p.next() // (
	call := &CallExpr{Fun: fun}
	for p.tok.Kind != RParen && p.tok.Kind != EOF {
		if len(call.Args) > 0 {
			if _, ok := p.expect(Comma); !ok {
				return nil
			}
		}
		arg := p.parseExpr()
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
	}
	end, ok := p.expect(RParen)
	if !ok {
		return nil
	}
	call.Span = spanOf(fun.Span, end.Span)
	return call
}
