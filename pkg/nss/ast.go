package nss

import "fmt"

// Type is a script value type.
type Type int

const (
	TypeVoid Type = iota
	TypeInt
	TypeFloat
	TypeString
	TypeObject
	TypeEffect
	TypeEvent
	TypeLocation
	TypeTalent
)

var typeNames = [...]string{"void", "int", "float", "string", "object", "effect", "event", "location", "talent"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a type keyword to its Type.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}

// IsEngine reports whether t is an opaque engine structure.
func (t Type) IsEngine() bool { return t >= TypeEffect && t <= TypeTalent }

func typeKeyword(k TokenKind) (Type, bool) {
	switch k {
	case KwVoid:
		return TypeVoid, true
	case KwInt:
		return TypeInt, true
	case KwFloat:
		return TypeFloat, true
	case KwString:
		return TypeString, true
	case KwObject:
		return TypeObject, true
	case KwEffect:
		return TypeEffect, true
	case KwEvent:
		return TypeEvent, true
	case KwLocation:
		return TypeLocation, true
	case KwTalent:
		return TypeTalent, true
	}
	return 0, false
}

// Object constants.
const (
	ObjectSelf    int32 = 0
	ObjectInvalid int32 = 1
)

// Node is any syntax tree node.
type Node interface {
	Extent() Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Decl is a top-level declaration.
type Decl interface {
	Node
	declNode()
}

type (
	IntLit struct {
		Span
		Value int32
	}

	FloatLit struct {
		Span
		Value float32
	}

	StringLit struct {
		Span
		Value string
	}

	// ObjectLit is OBJECT_SELF or OBJECT_INVALID.
	ObjectLit struct {
		Span
		Value int32
	}

	Ident struct {
		Span
		Name string
	}

	UnaryExpr struct {
		Span
		Op TokenKind // Sub, Not, Tilde
		X  Expr
	}

	BinaryExpr struct {
		Span
		Op TokenKind
		X  Expr
		Y  Expr
	}

	CallExpr struct {
		Span
		Fun  *Ident
		Args []Expr
	}

	// AssignExpr is "x = v" or a compound form such as "x += v".
	AssignExpr struct {
		Span
		Op     TokenKind // Assign, AddAssign, ...
		Target *Ident
		Value  Expr
	}

	// IncDecExpr is x++, x--, ++x or --x.
	IncDecExpr struct {
		Span
		Op     TokenKind // Inc or Dec
		Target *Ident
		Prefix bool
	}

	ParenExpr struct {
		Span
		X Expr
	}
)

func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*StringLit) exprNode()  {}
func (*ObjectLit) exprNode()  {}
func (*Ident) exprNode()      {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
func (*CallExpr) exprNode()   {}
func (*AssignExpr) exprNode() {}
func (*IncDecExpr) exprNode() {}
func (*ParenExpr) exprNode()  {}

// VarSpec is one declarator of a VarDecl.
type VarSpec struct {
	Name *Ident
	Init Expr // may be nil
}

type (
	// VarDecl declares one or more variables of a type. At file level it
	// declares globals.
	VarDecl struct {
		Span
		Const bool
		Type  Type
		Vars  []VarSpec
	}

	ExprStmt struct {
		Span
		X Expr
	}

	BlockStmt struct {
		Span
		List []Stmt
	}

	IfStmt struct {
		Span
		Cond Expr
		Then Stmt
		Else Stmt // may be nil
	}

	WhileStmt struct {
		Span
		Cond Expr
		Body Stmt
	}

	DoWhileStmt struct {
		Span
		Body Stmt
		Cond Expr
	}

	ForStmt struct {
		Span
		Init Expr // may be nil
		Cond Expr // may be nil
		Post Expr // may be nil
		Body Stmt
	}

	ReturnStmt struct {
		Span
		Result Expr // may be nil
	}

	BreakStmt struct {
		Span
	}

	ContinueStmt struct {
		Span
	}

	EmptyStmt struct {
		Span
	}

	// LabelStmt and GotoStmt only appear in decompiled output, where control
	// flow did not match a structured shape.
	LabelStmt struct {
		Span
		Label string
	}

	GotoStmt struct {
		Span
		Label string
	}
)

func (*VarDecl) stmtNode()      {}
func (*ExprStmt) stmtNode()     {}
func (*BlockStmt) stmtNode()    {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*DoWhileStmt) stmtNode()  {}
func (*ForStmt) stmtNode()      {}
func (*ReturnStmt) stmtNode()   {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*EmptyStmt) stmtNode()    {}
func (*LabelStmt) stmtNode()    {}
func (*GotoStmt) stmtNode()     {}

func (*VarDecl) declNode() {}

// Param is a function parameter. Default is nil when the argument is required.
type Param struct {
	Type    Type
	Name    *Ident
	Default Expr
}

// FuncDecl is a function definition, or a prototype when Body is nil.
type FuncDecl struct {
	Span
	Result Type
	Name   *Ident
	Params []Param
	Body   *BlockStmt
}

func (*FuncDecl) declNode() {}

// File is a parsed translation unit.
type File struct {
	Decls []Decl
}

// Funcs returns the function definitions and prototypes in order.
func (f *File) Funcs() []*FuncDecl {
	var out []*FuncDecl
	for _, d := range f.Decls {
		if fn, ok := d.(*FuncDecl); ok {
			out = append(out, fn)
		}
	}
	return out
}
