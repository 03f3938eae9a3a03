package nss

import (
	"strings"
	"unicode/utf8"
)

type lexer struct {
	src   string
	off   int
	line  int
	col   int
	diags *Diagnostics
}

// Lex tokenizes src. The token slice always ends with EOF; malformed input
// produces diagnostics and the lexer carries on after the bad character.
func Lex(src string) ([]Token, Diagnostics) {
	var diags Diagnostics
	toks := lex(src, &diags)
	return toks, diags
}

func lex(src string, diags *Diagnostics) []Token {
	l := &lexer{src: src, line: 1, col: 1, diags: diags}
	var toks []Token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks
		}
	}
}

func (l *lexer) pos() Pos { return Pos{Offset: l.off, Line: l.line, Col: l.col} }

func (l *lexer) peek(n int) byte {
	if l.off+n < len(l.src) {
		return l.src[l.off+n]
	}
	return 0
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		if l.src[l.off] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.off++
	}
}

func (l *lexer) errorf(p Pos, format string, args ...any) {
	l.diags.add(p, ErrParse, format, args...)
}

func (l *lexer) skipSpaceAndComments() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
			l.advance(1)
		case c == '/' && l.peek(1) == '/':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.advance(1)
			}
		case c == '/' && l.peek(1) == '*':
			start := l.pos()
			end := strings.Index(l.src[l.off+2:], "*/")
			if end < 0 {
				l.errorf(start, "unterminated block comment")
				l.advance(len(l.src) - l.off)
				return
			}
			l.advance(end + 4)
		default:
			return
		}
	}
}

func isLetter(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func (l *lexer) next() Token {
	for {
		l.skipSpaceAndComments()
		start := l.pos()
		if l.off >= len(l.src) {
			return Token{Kind: EOF, Span: Span{start, start}}
		}

		c := l.src[l.off]
		switch {
		case isLetter(c):
			n := 1
			for isLetter(l.peek(n)) || isDigit(l.peek(n)) {
				n++
			}
			word := l.src[l.off : l.off+n]
			l.advance(n)
			kind := TokIdent
			if kw, ok := keywords[word]; ok {
				kind = kw
			}
			return Token{Kind: kind, Text: word, Span: Span{start, l.pos()}}

		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			return l.number(start)

		case c == '"':
			return l.stringLit(start)
		}

		for _, op := range operators {
			if strings.HasPrefix(l.src[l.off:], op.text) {
				l.advance(len(op.text))
				return Token{Kind: op.kind, Text: op.text, Span: Span{start, l.pos()}}
			}
		}

		r, size := utf8.DecodeRuneInString(l.src[l.off:])
		l.errorf(start, "unexpected character %q", r)
		l.advance(size)
	}
}

func (l *lexer) number(start Pos) Token {
	n := 0
	if l.peek(0) == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') {
		n = 2
		for isHex(l.peek(n)) {
			n++
		}
		text := l.src[l.off : l.off+n]
		l.advance(n)
		if n == 2 {
			l.errorf(start, "hex literal has no digits")
		}
		return Token{Kind: TokInt, Text: text, Span: Span{start, l.pos()}}
	}

	kind := TokInt
	for isDigit(l.peek(n)) {
		n++
	}
	if l.peek(n) == '.' {
		kind = TokFloat
		n++
		for isDigit(l.peek(n)) {
			n++
		}
	}
	text := l.src[l.off : l.off+n]
	if l.peek(n) == 'f' || l.peek(n) == 'F' {
		kind = TokFloat
		n++
	}
	l.advance(n)
	return Token{Kind: kind, Text: text, Span: Span{start, l.pos()}}
}

func (l *lexer) stringLit(start Pos) Token {
	l.advance(1)
	var sb strings.Builder
	for {
		if l.off >= len(l.src) || l.src[l.off] == '\n' {
			l.errorf(start, "unterminated string literal")
			return Token{Kind: TokString, Text: sb.String(), Span: Span{start, l.pos()}}
		}
		c := l.src[l.off]
		switch c {
		case '"':
			l.advance(1)
			return Token{Kind: TokString, Text: sb.String(), Span: Span{start, l.pos()}}
		case '\\':
			esc := l.peek(1)
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"', '\\':
				sb.WriteByte(esc)
			default:
				l.errorf(l.pos(), "unknown escape sequence \\%c", esc)
			}
			l.advance(2)
		default:
			sb.WriteByte(c)
			l.advance(1)
		}
	}
}
