package nss

import "fmt"

// TokenKind classifies a token.
type TokenKind int

const (
	EOF TokenKind = iota
	TokIdent
	TokInt
	TokFloat
	TokString

	// keywords
	KwInt
	KwFloat
	KwString
	KwObject
	KwVoid
	KwEffect
	KwEvent
	KwLocation
	KwTalent
	KwConst
	KwIf
	KwElse
	KwWhile
	KwDo
	KwFor
	KwReturn
	KwBreak
	KwContinue

	// operators and punctuation
	Add
	Sub
	Mul
	Div
	Mod
	Assign
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	ModAssign
	Eq
	Neq
	Lt
	Le
	Gt
	Ge
	Shl
	Shr
	UShr
	AndAnd
	OrOr
	Not
	And
	Or
	Xor
	Tilde
	Inc
	Dec
	LParen
	RParen
	LBrace
	RBrace
	Comma
	Semicolon
)

var tokenNames = map[TokenKind]string{
	EOF: "end of file", TokIdent: "identifier", TokInt: "integer", TokFloat: "float", TokString: "string",
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	Assign: "=", AddAssign: "+=", SubAssign: "-=", MulAssign: "*=", DivAssign: "/=", ModAssign: "%=",
	Eq: "==", Neq: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	Shl: "<<", Shr: ">>", UShr: ">>>", AndAnd: "&&", OrOr: "||",
	Not: "!", And: "&", Or: "|", Xor: "^", Tilde: "~", Inc: "++", Dec: "--",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", Comma: ",", Semicolon: ";",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	for word, kw := range keywords {
		if kw == k {
			return word
		}
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

var keywords = map[string]TokenKind{
	"int":      KwInt,
	"float":    KwFloat,
	"string":   KwString,
	"object":   KwObject,
	"void":     KwVoid,
	"effect":   KwEffect,
	"event":    KwEvent,
	"location": KwLocation,
	"talent":   KwTalent,
	"const":    KwConst,
	"if":       KwIf,
	"else":     KwElse,
	"while":    KwWhile,
	"do":       KwDo,
	"for":      KwFor,
	"return":   KwReturn,
	"break":    KwBreak,
	"continue": KwContinue,
}

// operators is ordered longest first so the lexer takes the maximal munch.
var operators = []struct {
	text string
	kind TokenKind
}{
	{">>>", UShr},
	{"+=", AddAssign}, {"-=", SubAssign}, {"*=", MulAssign}, {"/=", DivAssign}, {"%=", ModAssign},
	{"==", Eq}, {"!=", Neq}, {"<=", Le}, {">=", Ge}, {"<<", Shl}, {">>", Shr},
	{"&&", AndAnd}, {"||", OrOr}, {"++", Inc}, {"--", Dec},
	{"+", Add}, {"-", Sub}, {"*", Mul}, {"/", Div}, {"%", Mod}, {"=", Assign},
	{"<", Lt}, {">", Gt}, {"!", Not}, {"&", And}, {"|", Or}, {"^", Xor}, {"~", Tilde},
	{"(", LParen}, {")", RParen}, {"{", LBrace}, {"}", RBrace}, {",", Comma}, {";", Semicolon},
}

// Token is one lexical token. Text holds the source text; for string
// literals it is the unescaped value.
type Token struct {
	Kind TokenKind
	Text string
	Span Span
}

// Pos is a position in source text. Line and Col are 1-based.
type Pos struct {
	Offset int
	Line   int
	Col    int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Span is the source range of a token or node.
type Span struct {
	Start Pos
	End   Pos
}

// Extent returns the span itself; nodes embed Span to satisfy Node.
func (s Span) Extent() Span { return s }

func spanOf(a, b Span) Span { return Span{Start: a.Start, End: b.End} }
