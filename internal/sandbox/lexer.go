package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNewline
	tokIdent
	tokInt
	tokFloat
	tokString
	tokFString

	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokPeriod

	tokAssign
	tokEq
	tokNeq
	tokLess
	tokLessEq
	tokGreater
	tokGreaterEq
	tokPlus
	tokMinus
	tokMult
	tokDiv
)

var tokenNames = map[tokenType]string{
	tokEOF:       "end of input",
	tokNewline:   "end of line",
	tokIdent:     "identifier",
	tokInt:       "integer",
	tokFloat:     "number",
	tokString:    "string",
	tokFString:   "format string",
	tokLParen:    "'('",
	tokRParen:    "')'",
	tokLBracket:  "'['",
	tokRBracket:  "']'",
	tokComma:     "','",
	tokPeriod:    "'.'",
	tokAssign:    "'='",
	tokEq:        "'=='",
	tokNeq:       "'!='",
	tokLess:      "'<'",
	tokLessEq:    "'<='",
	tokGreater:   "'>'",
	tokGreaterEq: "'>='",
	tokPlus:      "'+'",
	tokMinus:     "'-'",
	tokMult:      "'*'",
	tokDiv:       "'/'",
}

func (t tokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

type token struct {
	typ     tokenType
	lexeme  string
	literal any
	line    int
	col     int
}

// SyntaxError locates a lexing or parsing fault in the snippet.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

type lexer struct {
	src   []rune
	pos   int
	line  int
	col   int
	depth int
}

// tokenize splits src into tokens. Newlines inside brackets do not end a
// statement, so calls may span several lines.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: []rune(src), line: 1, col: 1}
	tokens := make([]token, 0, len(src)/3)
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokNewline && (len(tokens) == 0 || tokens[len(tokens)-1].typ == tokNewline) {
			continue
		}
		tokens = append(tokens, tok)
		if tok.typ == tokEOF {
			return tokens, nil
		}
	}
}

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) advance() rune {
	r := lx.src[lx.pos]
	lx.pos++
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) fail(line, col int, format string, args ...any) error {
	return &SyntaxError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) {
		r := lx.peek()
		switch {
		case r == '\n':
			line, col := lx.line, lx.col
			lx.advance()
			if lx.depth == 0 {
				return token{typ: tokNewline, line: line, col: col}, nil
			}
		case r == ' ' || r == '\t' || r == '\r':
			lx.advance()
		case r == '\\' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\n':
			lx.advance()
			lx.advance()
		case r == '#':
			for lx.pos < len(lx.src) && lx.peek() != '\n' {
				lx.advance()
			}
		default:
			return lx.scan()
		}
	}
	return token{typ: tokEOF, line: lx.line, col: lx.col}, nil
}

func (lx *lexer) scan() (token, error) {
	line, col := lx.line, lx.col
	r := lx.advance()
	simple := func(typ tokenType) (token, error) {
		return token{typ: typ, lexeme: string(r), line: line, col: col}, nil
	}
	pair := func(single, double tokenType) (token, error) {
		if lx.peek() == '=' {
			lx.advance()
			return token{typ: double, lexeme: string(r) + "=", line: line, col: col}, nil
		}
		return simple(single)
	}

	switch {
	case r == '(':
		lx.depth++
		return simple(tokLParen)
	case r == '[':
		lx.depth++
		return simple(tokLBracket)
	case r == ')' || r == ']':
		if lx.depth > 0 {
			lx.depth--
		}
		if r == ')' {
			return simple(tokRParen)
		}
		return simple(tokRBracket)
	case r == ',':
		return simple(tokComma)
	case r == '+':
		return simple(tokPlus)
	case r == '-':
		return simple(tokMinus)
	case r == '*':
		return simple(tokMult)
	case r == '/':
		return simple(tokDiv)
	case r == '=':
		return pair(tokAssign, tokEq)
	case r == '<':
		return pair(tokLess, tokLessEq)
	case r == '>':
		return pair(tokGreater, tokGreaterEq)
	case r == '!':
		if lx.peek() == '=' {
			lx.advance()
			return token{typ: tokNeq, lexeme: "!=", line: line, col: col}, nil
		}
		return token{}, lx.fail(line, col, "unexpected '!'")
	case r == '.':
		if isDigit(lx.peek()) {
			return lx.number(line, col, r)
		}
		return simple(tokPeriod)
	case r == '"' || r == '\'':
		return lx.str(line, col, r)
	case isDigit(r):
		return lx.number(line, col, r)
	case isIdentStart(r):
		var b strings.Builder
		b.WriteRune(r)
		for isIdentPart(lx.peek()) {
			b.WriteRune(lx.advance())
		}
		if quote := lx.peek(); (quote == '"' || quote == '\'') && (b.String() == "f" || b.String() == "F") {
			lx.advance()
			tok, err := lx.str(line, col, quote)
			tok.typ = tokFString
			return tok, err
		}
		return token{typ: tokIdent, lexeme: b.String(), line: line, col: col}, nil
	default:
		return token{}, lx.fail(line, col, "unexpected character %q", r)
	}
}

func (lx *lexer) number(line, col int, first rune) (token, error) {
	var b strings.Builder
	b.WriteRune(first)
	isFloat := first == '.'
	for {
		r := lx.peek()
		switch {
		case isDigit(r) || r == '_':
			lx.advance()
			if r != '_' {
				b.WriteRune(r)
			}
		case r == '.' && !isFloat:
			isFloat = true
			b.WriteRune(lx.advance())
		case (r == 'e' || r == 'E') && lx.pos+1 < len(lx.src):
			isFloat = true
			b.WriteRune(lx.advance())
			if sign := lx.peek(); sign == '+' || sign == '-' {
				b.WriteRune(lx.advance())
			}
		default:
			text := b.String()
			if isFloat {
				value, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return token{}, lx.fail(line, col, "invalid number %q", text)
				}
				return token{typ: tokFloat, lexeme: text, literal: value, line: line, col: col}, nil
			}
			value, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return token{}, lx.fail(line, col, "invalid integer %q", text)
			}
			return token{typ: tokInt, lexeme: text, literal: value, line: line, col: col}, nil
		}
	}
}

func (lx *lexer) str(line, col int, quote rune) (token, error) {
	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) || lx.peek() == '\n' {
			return token{}, lx.fail(line, col, "unterminated string")
		}
		r := lx.advance()
		if r == quote {
			value := b.String()
			return token{typ: tokString, lexeme: value, literal: value, line: line, col: col}, nil
		}
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if lx.pos >= len(lx.src) {
			return token{}, lx.fail(line, col, "unterminated string")
		}
		switch esc := lx.advance(); esc {
		case 'n':
			b.WriteRune('\n')
		case 't':
			b.WriteRune('\t')
		case '\\', '\'', '"':
			b.WriteRune(esc)
		default:
			b.WriteRune('\\')
			b.WriteRune(esc)
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
