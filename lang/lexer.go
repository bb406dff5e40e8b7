package lang

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent    // lowercase-leading identifier: predicate/relation/type/field names, keywords
	tokVar      // uppercase-leading identifier, or starting with '_' but not bare '_'
	tokWildcard // bare '_'
	tokInt
	tokFloat
	tokString
	tokPunct // any of the fixed punctuation/operator lexemes below
)

type token struct {
	kind tokenKind
	text string
	pos  Pos
}

// ParseError carries a 1-based line/column pointing at the first
// offending character.
type ParseError struct {
	Pos     Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// LegacyOperatorError is returned in place of a ParseError when the
// input uses the retired `:=` rule operator instead of `<-`.
type LegacyOperatorError struct {
	Pos Pos
}

func (e *LegacyOperatorError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: ':=' is no longer supported, use '<-' instead", e.Pos.Line, e.Pos.Column)
}

type lexer struct {
	src        string
	offset     int
	line, col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peekByte() byte {
	if l.offset >= len(l.src) {
		return 0
	}
	return l.src[l.offset]
}

func (l *lexer) advance() byte {
	c := l.src[l.offset]
	l.offset++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) here() Pos { return Pos{Line: l.line, Column: l.col} }

func (l *lexer) skipSpaceAndComments() error {
	for l.offset < len(l.src) {
		c := l.peekByte()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.offset+1 < len(l.src) && l.src[l.offset+1] == '/':
			for l.offset < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		case c == '/' && l.offset+1 < len(l.src) && l.src[l.offset+1] == '*':
			start := l.here()
			depth := 0
			for {
				if l.offset >= len(l.src) {
					return &ParseError{Pos: start, Message: "unterminated block comment"}
				}
				if l.peekByte() == '/' && l.offset+1 < len(l.src) && l.src[l.offset+1] == '*' {
					l.advance()
					l.advance()
					depth++
					continue
				}
				if l.peekByte() == '*' && l.offset+1 < len(l.src) && l.src[l.offset+1] == '/' {
					l.advance()
					l.advance()
					depth--
					if depth == 0 {
						break
					}
					continue
				}
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

var punctuation = []string{
	"<-", "<=", ">=", "!=", ":=", // multi-char first
	"+", "-", "*", "/", "=", "<", ">", "!",
	"(", ")", "[", "]", "{", "}", ",", ":", "?", ".",
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if l.offset >= len(l.src) {
		return token{kind: tokEOF, pos: l.here()}, nil
	}

	start := l.here()
	c := l.peekByte()

	switch {
	case c == '"':
		return l.lexString(start)
	case c >= '0' && c <= '9':
		return l.lexNumber(start)
	case isIdentStart(c):
		return l.lexIdent(start)
	default:
		for _, p := range punctuation {
			if strings.HasPrefix(l.src[l.offset:], p) {
				for range p {
					l.advance()
				}
				return token{kind: tokPunct, text: p, pos: start}, nil
			}
		}
		return token{}, &ParseError{Pos: start, Message: fmt.Sprintf("unexpected character %q", c)}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) lexIdent(start Pos) (token, error) {
	begin := l.offset
	for l.offset < len(l.src) && isIdentCont(l.peekByte()) {
		l.advance()
	}
	text := l.src[begin:l.offset]
	if text == "_" {
		return token{kind: tokWildcard, text: text, pos: start}, nil
	}
	r, _ := utf8.DecodeRuneInString(text)
	if r == '_' || unicode.IsUpper(r) {
		return token{kind: tokVar, text: text, pos: start}, nil
	}
	return token{kind: tokIdent, text: text, pos: start}, nil
}

func (l *lexer) lexNumber(start Pos) (token, error) {
	begin := l.offset
	isFloat := false
	for l.offset < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
		l.advance()
	}
	if l.peekByte() == '.' && l.offset+1 < len(l.src) && l.src[l.offset+1] >= '0' && l.src[l.offset+1] <= '9' {
		isFloat = true
		l.advance()
		for l.offset < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
			l.advance()
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		isFloat = true
		l.advance()
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}
		for l.offset < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
			l.advance()
		}
	}
	text := l.src[begin:l.offset]
	if isFloat {
		return token{kind: tokFloat, text: text, pos: start}, nil
	}
	return token{kind: tokInt, text: text, pos: start}, nil
}

func (l *lexer) lexString(start Pos) (token, error) {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.offset >= len(l.src) {
			return token{}, &ParseError{Pos: start, Message: "unterminated string literal"}
		}
		c := l.peekByte()
		if c == '"' {
			l.advance()
			break
		}
		if c == '\\' {
			l.advance()
			if l.offset >= len(l.src) {
				return token{}, &ParseError{Pos: start, Message: "unterminated string literal"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(esc)
			}
			continue
		}
		sb.WriteByte(l.advance())
	}
	return token{kind: tokString, text: sb.String(), pos: start}, nil
}

func parseIntLiteral(text string) (int64, error) {
	return strconv.ParseInt(text, 10, 64)
}

func parseFloatLiteral(text string) (float64, error) {
	return strconv.ParseFloat(text, 64)
}
