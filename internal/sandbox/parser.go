package sandbox

import (
	"fmt"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

// parseProgram parses a snippet into statements. Every statement is parsed
// before any is executed.
func parseProgram(src string) ([]stmt, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmts := make([]stmt, 0)
	for p.peek().typ != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			stmts = append(stmts, s)
		}
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
	}
	return stmts, nil
}

// parseExpression parses src as exactly one expression.
func parseExpression(src string) (expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().typ == tokEOF {
		return nil, &SyntaxError{Line: 1, Col: 1, Msg: "empty expression"}
	}
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.peek().typ == tokNewline {
		p.pos++
	}
	if tok := p.peek(); tok.typ != tokEOF {
		return nil, p.unexpected(tok)
	}
	return e, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.peek()
	if tok.typ != typ {
		return token{}, &SyntaxError{Line: tok.line, Col: tok.col, Msg: fmt.Sprintf("expected %s, found %s", typ, describe(tok))}
	}
	return p.next(), nil
}

func (p *parser) unexpected(tok token) error {
	return &SyntaxError{Line: tok.line, Col: tok.col, Msg: "unexpected " + describe(tok)}
}

func describe(tok token) string {
	if tok.lexeme != "" && tok.typ != tokString {
		return fmt.Sprintf("%q", tok.lexeme)
	}
	return tok.typ.String()
}

func (p *parser) endOfStatement() error {
	switch tok := p.peek(); tok.typ {
	case tokNewline:
		p.pos++
		return nil
	case tokEOF:
		return nil
	default:
		return p.unexpected(tok)
	}
}

func (p *parser) statement() (stmt, error) {
	first := p.peek()
	if first.typ == tokIdent && (first.lexeme == "import" || first.lexeme == "from") {
		for p.peek().typ != tokNewline && p.peek().typ != tokEOF {
			p.next()
		}
		return &importStmt{line: first.line}, nil
	}
	if first.typ == tokIdent && p.peekAt(1).typ == tokAssign {
		p.next()
		p.next()
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &assignStmt{line: first.line, name: first.lexeme, expr: value}, nil
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &exprStmt{line: first.line, expr: value}, nil
}

func (p *parser) expression() (expr, error) {
	return p.comparison()
}

func (p *parser) comparison() (expr, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.typ {
		case tokEq, tokNeq, tokLess, tokLessEq, tokGreater, tokGreaterEq:
			p.next()
			right, err := p.additive()
			if err != nil {
				return nil, err
			}
			left = &binaryExpr{pos: pos{tok.line, tok.col}, op: tok.typ, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) additive() (expr, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokPlus && tok.typ != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: pos{tok.line, tok.col}, op: tok.typ, left: left, right: right}
	}
}

func (p *parser) multiplicative() (expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokMult && tok.typ != tokDiv {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: pos{tok.line, tok.col}, op: tok.typ, left: left, right: right}
	}
}

func (p *parser) unary() (expr, error) {
	tok := p.peek()
	if tok.typ == tokMinus || tok.typ == tokPlus {
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: pos{tok.line, tok.col}, op: tok.typ, operand: operand}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (expr, error) {
	target, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.typ {
		case tokPeriod:
			p.next()
			name, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			target = &attrExpr{pos: pos{name.line, name.col}, target: target, name: name.lexeme}
		case tokLParen:
			p.next()
			call, err := p.callArgs(target, tok)
			if err != nil {
				return nil, err
			}
			target = call
		case tokLBracket:
			p.next()
			key, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			target = &indexExpr{pos: pos{tok.line, tok.col}, target: target, key: key}
		default:
			return target, nil
		}
	}
}

func (p *parser) callArgs(fn expr, open token) (expr, error) {
	call := &callExpr{pos: pos{open.line, open.col}, fn: fn}
	seen := map[string]struct{}{}
	for p.peek().typ != tokRParen {
		if p.peek().typ == tokIdent && p.peekAt(1).typ == tokAssign {
			name := p.next()
			p.next()
			if _, ok := seen[name.lexeme]; ok {
				return nil, &SyntaxError{Line: name.line, Col: name.col, Msg: fmt.Sprintf("keyword argument %q repeated", name.lexeme)}
			}
			seen[name.lexeme] = struct{}{}
			value, err := p.expression()
			if err != nil {
				return nil, err
			}
			call.keywords = append(call.keywords, keywordArg{name: name.lexeme, value: value})
		} else {
			if len(call.keywords) > 0 {
				tok := p.peek()
				return nil, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "positional argument follows keyword argument"}
			}
			value, err := p.expression()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, value)
		}
		if p.peek().typ != tokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) primary() (expr, error) {
	tok := p.next()
	at := pos{tok.line, tok.col}
	switch tok.typ {
	case tokInt, tokFloat:
		return &literalExpr{pos: at, value: tok.literal}, nil
	case tokString:
		value := tok.literal.(string)
		// adjacent string literals concatenate
		for p.peek().typ == tokString {
			value += p.next().literal.(string)
		}
		return &literalExpr{pos: at, value: value}, nil
	case tokFString:
		return parseFString(tok)
	case tokIdent:
		switch tok.lexeme {
		case "True":
			return &literalExpr{pos: at, value: true}, nil
		case "False":
			return &literalExpr{pos: at, value: false}, nil
		case "None":
			return &literalExpr{pos: at, value: nil}, nil
		}
		return &nameExpr{pos: at, name: tok.lexeme}, nil
	case tokLParen:
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		list := &listExpr{pos: at}
		for p.peek().typ != tokRBracket {
			item, err := p.expression()
			if err != nil {
				return nil, err
			}
			list.items = append(list.items, item)
			if p.peek().typ != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, p.unexpected(tok)
	}
}

// parseFString splits f"..." text into literal runs and {expr[:format]} fields.
func parseFString(tok token) (expr, error) {
	text := tok.literal.(string)
	out := &fstringExpr{pos: pos{tok.line, tok.col}}
	var literal strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			literal.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			literal.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "unterminated format field"}
			}
			field := text[i+1 : i+end]
			format := ""
			if colon := strings.LastIndexByte(field, ':'); colon >= 0 {
				field, format = field[:colon], field[colon+1:]
			}
			value, err := parseExpression(field)
			if err != nil {
				return nil, &SyntaxError{Line: tok.line, Col: tok.col, Msg: fmt.Sprintf("format field %q: %v", field, err)}
			}
			if literal.Len() > 0 {
				out.parts = append(out.parts, fstringPart{text: literal.String()})
				literal.Reset()
			}
			out.parts = append(out.parts, fstringPart{value: value, format: format})
			i += end
		case c == '}':
			return nil, &SyntaxError{Line: tok.line, Col: tok.col, Msg: "single '}' in format string"}
		default:
			literal.WriteByte(c)
		}
	}
	if literal.Len() > 0 {
		out.parts = append(out.parts, fstringPart{text: literal.String()})
	}
	return out, nil
}
