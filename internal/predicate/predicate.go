package predicate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSyntax is wrapped by every compile error.
var ErrSyntax = errors.New("predicate syntax error")

// Expr is a compiled predicate. It is safe for concurrent use.
type Expr struct {
	source string
	eval   func(*Values) bool
}

// Eval evaluates the predicate against one record's fields.
func (e *Expr) Eval(v Values) bool {
	return e.eval(&v)
}

// String returns the source the predicate was compiled from.
func (e *Expr) String() string {
	return e.source
}

// Compile parses src into an Expr.
//
//	expr := or
//	or   := and {("or" | "||") and}
//	and  := not {("and" | "&&") not}
//	not  := ("not" | "!") not | "(" expr ")" | cmp
//	cmp  := field ("==" | "!=" | "contains" | "startswith" | "endswith" | "matches") string
//	      | field "in" "[" string {"," string} "]"
func Compile(src string) (*Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	p := &parser{tokens: tokens}
	fn, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, tok.text, tok.pos)
	}

	return &Expr{source: src, eval: fn}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

type evalFunc func(*Values) bool

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		if tok.kind == tokEOF {
			return tok, fmt.Errorf("expected %s at end of input", what)
		}
		return tok, fmt.Errorf("expected %s at %d, got %q", what, tok.pos, tok.text)
	}
	return tok, nil
}

func (p *parser) parseOr() (evalFunc, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(v *Values) bool { return l(v) || r(v) }
	}
	return left, nil
}

func (p *parser) parseAnd() (evalFunc, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(v *Values) bool { return l(v) && r(v) }
	}
	return left, nil
}

func (p *parser) parseNot() (evalFunc, error) {
	switch p.peek().kind {
	case tokNot:
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func(v *Values) bool { return !inner(v) }, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (evalFunc, error) {
	fieldTok, err := p.expect(tokIdent, "field name")
	if err != nil {
		return nil, err
	}
	field, ok := LookupField(fieldTok.text)
	if !ok {
		return nil, fmt.Errorf("unknown field %q at %d", fieldTok.text, fieldTok.pos)
	}

	opTok := p.next()
	switch opTok.kind {
	case tokEq, tokNeq:
		lit, err := p.expect(tokString, "string literal")
		if err != nil {
			return nil, err
		}
		want := lit.text
		if opTok.kind == tokEq {
			return func(v *Values) bool { return fieldValue(v, field) == want }, nil
		}
		return func(v *Values) bool { return fieldValue(v, field) != want }, nil
	case tokIdent:
		return p.parseNamedOperator(field, opTok)
	case tokEOF:
		return nil, fmt.Errorf("expected operator after %q at end of input", fieldTok.text)
	default:
		return nil, fmt.Errorf("expected operator at %d, got %q", opTok.pos, opTok.text)
	}
}

func (p *parser) parseNamedOperator(field Field, opTok token) (evalFunc, error) {
	op := strings.ToLower(opTok.text)

	if op == "in" {
		set, err := p.parseStringList()
		if err != nil {
			return nil, err
		}
		return func(v *Values) bool {
			_, ok := set[fieldValue(v, field)]
			return ok
		}, nil
	}

	lit, err := p.expect(tokString, "string literal")
	if err != nil {
		return nil, err
	}

	switch op {
	case "contains":
		needle := strings.ToLower(lit.text)
		return func(v *Values) bool {
			return strings.Contains(strings.ToLower(fieldValue(v, field)), needle)
		}, nil
	case "startswith":
		prefix := strings.ToLower(lit.text)
		return func(v *Values) bool {
			return strings.HasPrefix(strings.ToLower(fieldValue(v, field)), prefix)
		}, nil
	case "endswith":
		suffix := strings.ToLower(lit.text)
		return func(v *Values) bool {
			return strings.HasSuffix(strings.ToLower(fieldValue(v, field)), suffix)
		}, nil
	case "matches":
		re, err := regexp.Compile(lit.text)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern at %d: %v", lit.pos, err)
		}
		return func(v *Values) bool { return re.MatchString(fieldValue(v, field)) }, nil
	default:
		return nil, fmt.Errorf("unknown operator %q at %d", opTok.text, opTok.pos)
	}
}

func (p *parser) parseStringList() (map[string]struct{}, error) {
	if _, err := p.expect(tokLBracket, "'['"); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for {
		lit, err := p.expect(tokString, "string literal")
		if err != nil {
			return nil, err
		}
		set[lit.text] = struct{}{}

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRBracket:
			return set, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' at %d, got %q", tok.pos, tok.text)
		}
	}
}

func fieldValue(v *Values, f Field) string {
	return strings.TrimSpace(v[f])
}
