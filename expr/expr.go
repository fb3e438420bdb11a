// Package expr evaluates scalar arithmetic expressions against a variable
// binding, the Go-native replacement for the exprtk service the original
// Hamiltonian string parser called out to. It is deliberately hand-rolled:
// nothing in the retrieved corpus provides an expression-evaluation
// library, so this is the one component carried on the standard library
// alone.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Vars binds identifiers to values for Eval, e.g. the loop variable `i`
// inside a _SUM[i,lo,hi,body] expansion.
type Vars map[string]float64

// Eval parses and evaluates s, a side-effect-free infix arithmetic
// expression over +, -, *, /, ^, unary -, parentheses, numeric literals,
// bound variables, and the function calls sin/cos/tan/exp/sqrt/pow/abs/log.
func Eval(s string, vars Vars) (float64, error) {
	p := &parser{toks: tokenize(s), vars: vars}
	v, err := p.expr()
	if err != nil {
		return 0, errors.Wrapf(err, "expr: evaluating %q", s)
	}
	if p.pos != len(p.toks) {
		return 0, errors.Errorf("expr: unexpected trailing input in %q at token %d", s, p.pos)
	}
	return v, nil
}

// IsNumberString reports whether s parses cleanly as a plain (non-signed,
// non-expression) integer, mirroring the original parser's isNumberString
// guard used to validate qubit indices and loop bounds.
func IsNumberString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) []token {
	var toks []token
	r := []rune(s)
	for i := 0; i < len(r); i++ {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			continue
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
		case c == ',':
			toks = append(toks, token{tokComma, ","})
		case strings.ContainsRune("+-*/^", c):
			toks = append(toks, token{tokOp, string(c)})
		case unicode.IsDigit(c) || c == '.':
			j := i
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.' || r[j] == 'e' || r[j] == 'E' ||
				((r[j] == '+' || r[j] == '-') && j > i && (r[j-1] == 'e' || r[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNum, string(r[i:j])})
			i = j - 1
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, string(r[i:j])})
			i = j - 1
		default:
			toks = append(toks, token{tokOp, string(c)})
		}
	}
	return toks
}

type parser struct {
	toks []token
	pos  int
	vars Vars
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			break
		}
		p.pos++
		rhs, err := p.term()
		if err != nil {
			return 0, err
		}
		if tok.text == "+" {
			v += rhs
		} else {
			v -= rhs
		}
	}
	return v, nil
}

// term := power (('*' | '/') power)*
func (p *parser) term() (float64, error) {
	v, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			break
		}
		p.pos++
		rhs, err := p.power()
		if err != nil {
			return 0, err
		}
		if tok.text == "*" {
			v *= rhs
		} else {
			if rhs == 0 {
				return 0, errors.Errorf("expr: division by zero")
			}
			v /= rhs
		}
	}
	return v, nil
}

// power := unary ('^' power)?  (right-associative)
func (p *parser) power() (float64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	tok, ok := p.peek()
	if ok && tok.kind == tokOp && tok.text == "^" {
		p.pos++
		rhs, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(v, rhs), nil
	}
	return v, nil
}

// unary := ('-' | '+')? atom
func (p *parser) unary() (float64, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokOp && tok.text == "-" {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	if ok && tok.kind == tokOp && tok.text == "+" {
		p.pos++
		return p.unary()
	}
	return p.atom()
}

// atom := number | ident | ident '(' expr ')' | '(' expr ')'
func (p *parser) atom() (float64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, errors.Errorf("expr: unexpected end of expression")
	}
	switch tok.kind {
	case tokNum:
		p.pos++
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "expr: invalid number %q", tok.text)
		}
		return v, nil
	case tokLParen:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if err := p.expect(tokRParen); err != nil {
			return 0, err
		}
		return v, nil
	case tokIdent:
		p.pos++
		if next, ok := p.peek(); ok && next.kind == tokLParen {
			return p.call(tok.text)
		}
		v, ok := p.vars[tok.text]
		if !ok {
			return 0, errors.Errorf("expr: unbound variable %q", tok.text)
		}
		return v, nil
	default:
		return 0, errors.Errorf("expr: unexpected token %q", tok.text)
	}
}

func (p *parser) call(name string) (float64, error) {
	if err := p.expect(tokLParen); err != nil {
		return 0, err
	}
	var args []float64
	for {
		if tok, ok := p.peek(); ok && tok.kind == tokRParen {
			break
		}
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		if tok, ok := p.peek(); ok && tok.kind == tokComma {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(tokRParen); err != nil {
		return 0, err
	}
	return callFunc(name, args)
}

func callFunc(name string, args []float64) (float64, error) {
	arity1 := func(f func(float64) float64) (float64, error) {
		if len(args) != 1 {
			return 0, errors.Errorf("expr: %s takes exactly one argument", name)
		}
		return f(args[0]), nil
	}
	switch strings.ToLower(name) {
	case "sin":
		return arity1(math.Sin)
	case "cos":
		return arity1(math.Cos)
	case "tan":
		return arity1(math.Tan)
	case "exp":
		return arity1(math.Exp)
	case "sqrt":
		return arity1(math.Sqrt)
	case "abs":
		return arity1(math.Abs)
	case "log":
		return arity1(math.Log)
	case "pow":
		if len(args) != 2 {
			return 0, errors.Errorf("expr: pow takes exactly two arguments")
		}
		return math.Pow(args[0], args[1]), nil
	case "pi":
		if len(args) != 0 {
			return 0, errors.Errorf("expr: pi takes no arguments")
		}
		return math.Pi, nil
	default:
		return 0, errors.Errorf("expr: unknown function %q", name)
	}
}

func (p *parser) expect(k tokKind) error {
	tok, ok := p.peek()
	if !ok {
		return errors.Errorf("expr: expected token, got end of expression")
	}
	if tok.kind != k {
		return errors.Errorf("expr: unexpected token %q", tok.text)
	}
	p.pos++
	return nil
}

// FormatVar stringifies a float the way Hamiltonian term substitution needs
// when building a {i} placeholder's replacement text.
func FormatVar(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
