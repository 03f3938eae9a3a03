package nss

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const indentUnit = "    "

// primaryPrec is the binding power of literals, names, calls and postfix
// forms; they never need parentheses.
const primaryPrec = unaryPrec + 1

type printer struct {
	sb     strings.Builder
	indent int
}

// Print formats f in canonical style: braces on their own lines, four space
// indentation, every body braced and only the parentheses precedence needs.
func Print(f *File) string {
	var p printer
	for i, d := range f.Decls {
		if i > 0 {
			if _, ok := d.(*FuncDecl); ok {
				p.sb.WriteByte('\n')
			} else if _, prev := f.Decls[i-1].(*FuncDecl); prev {
				p.sb.WriteByte('\n')
			}
		}
		switch d := d.(type) {
		case *VarDecl:
			p.varDecl(d)
			p.sb.WriteByte('\n')
		case *FuncDecl:
			p.funcDecl(d)
		}
	}
	return p.sb.String()
}

// Fprint writes Print(f) to w.
func Fprint(w io.Writer, f *File) error {
	_, err := io.WriteString(w, Print(f))
	return errors.Wrap(err, "write script")
}

// PrintExpr formats a single expression.
func PrintExpr(x Expr) string {
	var p printer
	p.expr(x, 0)
	return p.sb.String()
}

func (p *printer) line(s string) {
	p.sb.WriteString(strings.Repeat(indentUnit, p.indent))
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
}

func (p *printer) funcDecl(fn *FuncDecl) {
	var sig printer
	sig.sb.WriteString(fn.Result.String())
	sig.sb.WriteByte(' ')
	sig.sb.WriteString(fn.Name.Name)
	sig.sb.WriteByte('(')
	for i, prm := range fn.Params {
		if i > 0 {
			sig.sb.WriteString(", ")
		}
		sig.sb.WriteString(prm.Type.String())
		sig.sb.WriteByte(' ')
		sig.sb.WriteString(prm.Name.Name)
		if prm.Default != nil {
			sig.sb.WriteString(" = ")
			sig.expr(prm.Default, 0)
		}
	}
	sig.sb.WriteByte(')')
	if fn.Body == nil {
		p.line(sig.sb.String() + ";")
		return
	}
	p.line(sig.sb.String())
	p.block(fn.Body.List)
}

func (p *printer) block(list []Stmt) {
	p.line("{")
	p.indent++
	for _, s := range list {
		p.stmt(s)
	}
	p.indent--
	p.line("}")
}

// body prints s as a braced block.
func (p *printer) body(s Stmt) {
	if b, ok := s.(*BlockStmt); ok {
		p.block(b.List)
		return
	}
	p.block([]Stmt{s})
}

func (p *printer) varDecl(d *VarDecl) {
	p.sb.WriteString(strings.Repeat(indentUnit, p.indent))
	if d.Const {
		p.sb.WriteString("const ")
	}
	p.sb.WriteString(d.Type.String())
	p.sb.WriteByte(' ')
	for i, v := range d.Vars {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.sb.WriteString(v.Name.Name)
		if v.Init != nil {
			p.sb.WriteString(" = ")
			p.expr(v.Init, 0)
		}
	}
	p.sb.WriteByte(';')
}

func (p *printer) exprString(x Expr) string { return p.exprStringPrec(x, 0) }

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *VarDecl:
		p.varDecl(s)
		p.sb.WriteByte('\n')
	case *ExprStmt:
		p.line(p.exprString(s.X) + ";")
	case *BlockStmt:
		p.block(s.List)
	case *IfStmt:
		p.ifStmt(s, "if")
	case *WhileStmt:
		p.line("while (" + p.exprString(s.Cond) + ")")
		p.body(s.Body)
	case *DoWhileStmt:
		p.line("do")
		p.body(s.Body)
		p.line("while (" + p.exprString(s.Cond) + ");")
	case *ForStmt:
		var parts [3]string
		for i, x := range []Expr{s.Init, s.Cond, s.Post} {
			if x != nil {
				parts[i] = p.exprString(x)
			}
		}
		head := "for (" + parts[0] + ";"
		if parts[1] != "" {
			head += " " + parts[1]
		}
		head += ";"
		if parts[2] != "" {
			head += " " + parts[2]
		}
		p.line(head + ")")
		p.body(s.Body)
	case *ReturnStmt:
		if s.Result == nil {
			p.line("return;")
		} else {
			p.line("return " + p.exprString(s.Result) + ";")
		}
	case *BreakStmt:
		p.line("break;")
	case *ContinueStmt:
		p.line("continue;")
	case *EmptyStmt:
		p.line(";")
	case *LabelStmt:
		p.line(s.Label + ":")
	case *GotoStmt:
		p.line("goto " + s.Label + ";")
	}
}

// ifStmt prints an if chain; an else branch holding only another if is
// printed as "else if".
func (p *printer) ifStmt(s *IfStmt, keyword string) {
	p.line(keyword + " (" + p.exprString(s.Cond) + ")")
	p.body(s.Then)
	switch e := s.Else.(type) {
	case nil:
	case *IfStmt:
		p.ifStmt(e, "else if")
	default:
		p.line("else")
		p.body(e)
	}
}

func exprPrec(x Expr) int {
	switch x := x.(type) {
	case *BinaryExpr:
		return binaryPrec[x.Op]
	case *AssignExpr:
		return 0
	case *UnaryExpr:
		return unaryPrec
	case *IncDecExpr:
		if x.Prefix {
			return unaryPrec
		}
	case *IntLit:
		if x.Value < 0 {
			return unaryPrec
		}
	case *FloatLit:
		if math.Signbit(float64(x.Value)) {
			return unaryPrec
		}
	case *ParenExpr:
		return exprPrec(x.X)
	}
	return primaryPrec
}

// expr prints x, parenthesized when it binds looser than prec.
func (p *printer) expr(x Expr, prec int) {
	if pe, ok := x.(*ParenExpr); ok {
		p.expr(pe.X, prec)
		return
	}
	if exprPrec(x) < prec {
		p.sb.WriteByte('(')
		defer p.sb.WriteByte(')')
	}

	switch x := x.(type) {
	case *IntLit:
		if x.Value == math.MinInt32 {
			p.sb.WriteString("0x80000000")
		} else {
			p.sb.WriteString(strconv.FormatInt(int64(x.Value), 10))
		}
	case *FloatLit:
		p.sb.WriteString(formatFloat(x.Value))
	case *StringLit:
		p.sb.WriteString(quote(x.Value))
	case *ObjectLit:
		if x.Value == ObjectSelf {
			p.sb.WriteString("OBJECT_SELF")
		} else {
			p.sb.WriteString("OBJECT_INVALID")
		}
	case *Ident:
		p.sb.WriteString(x.Name)
	case *UnaryExpr:
		p.sb.WriteString(x.Op.String())
		operand := p.exprStringPrec(x.X, unaryPrec)
		// "- -1" must not lex as "--"
		if x.Op == Sub && strings.HasPrefix(operand, "-") {
			operand = "(" + operand + ")"
		}
		p.sb.WriteString(operand)
	case *BinaryExpr:
		prec := binaryPrec[x.Op]
		p.expr(x.X, prec)
		p.sb.WriteString(" " + x.Op.String() + " ")
		p.expr(x.Y, prec+1)
	case *AssignExpr:
		p.sb.WriteString(x.Target.Name + " " + x.Op.String() + " ")
		p.expr(x.Value, 0)
	case *IncDecExpr:
		if x.Prefix {
			p.sb.WriteString(x.Op.String() + x.Target.Name)
		} else {
			p.sb.WriteString(x.Target.Name + x.Op.String())
		}
	case *CallExpr:
		p.sb.WriteString(x.Fun.Name)
		p.sb.WriteByte('(')
		for i, a := range x.Args {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.expr(a, 0)
		}
		p.sb.WriteByte(')')
	}
}

func (p *printer) exprStringPrec(x Expr, prec int) string {
	var q printer
	q.expr(x, prec)
	return q.sb.String()
}

func formatFloat(v float32) string {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
