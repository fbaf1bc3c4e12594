package tools

import (
	"math"
	"strconv"

	"github.com/evcomx/ragcore/internal/validation"
)

const maxCalcDepth = 64

// Eval evaluates an arithmetic expression made only of digits, + - * /,
// parentheses and whitespace. Anything else, including a division by
// zero, is a validation error on field "expression".
func Eval(expr string) (float64, error) {
	p := &calcParser{src: expr}
	for i := 0; i < len(expr); i++ {
		if !calcChar(expr[i]) {
			return 0, validation.Newf("expression", "invalid character %q at position %d", expr[i], i)
		}
	}
	p.skipSpace()
	if p.pos == len(p.src) {
		return 0, validation.New("expression", "is empty")
	}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, validation.Newf("expression", "unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, validation.New("expression", "result is not a finite number")
	}
	return v, nil
}

func calcChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c == '+', c == '-', c == '*', c == '/', c == '(', c == ')':
		return true
	case c == ' ', c == '\t', c == '\n', c == '\r':
		return true
	}
	return false
}

// calcParser is a recursive-descent parser over
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = ("+" | "-") factor | number | "(" expr ")"
type calcParser struct {
	src string
	pos int
}

func (p *calcParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *calcParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *calcParser) expr(depth int) (float64, error) {
	v, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return v, nil
		}
		p.pos++
		rhs, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if op == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *calcParser) term(depth int) (float64, error) {
	v, err := p.factor(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return v, nil
		}
		p.pos++
		rhs, err := p.factor(depth)
		if err != nil {
			return 0, err
		}
		if op == '*' {
			v *= rhs
			continue
		}
		if rhs == 0 {
			return 0, validation.New("expression", "division by zero")
		}
		v /= rhs
	}
}

func (p *calcParser) factor(depth int) (float64, error) {
	if depth > maxCalcDepth {
		return 0, validation.New("expression", "nested too deeply")
	}
	switch c := p.peek(); {
	case c == '+' || c == '-':
		p.pos++
		v, err := p.factor(depth + 1)
		if c == '-' {
			v = -v
		}
		return v, err
	case c == '(':
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, validation.New("expression", "missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return 0, validation.Newf("expression", "invalid number %q", p.src[start:p.pos])
		}
		return v, nil
	case c == 0:
		return 0, validation.New("expression", "unexpected end of expression")
	default:
		return 0, validation.Newf("expression", "unexpected %q at position %d", c, p.pos)
	}
}
