// Package formula evaluates the configured required-experience expressions.
//
// An expression is plain arithmetic over decimal numerals with + - * / ^,
// parentheses and unary minus, e.g. "25 * {level}" or "100 + 5^({level}-1)".
// Placeholders are substituted before evaluation; all arithmetic runs through
// the deployment's numeric Operator so the result keeps the active policy's
// precision.
package formula

import (
	"strings"
	"unicode"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

// divScale is the fractional precision kept by in-expression division.
const divScale = 12

// Formula is a raw expression bound to a numeric policy. The zero value is
// not usable; construct with New.
type Formula[N any] struct {
	raw string
	op  numeric.Operator[N]
}

// New binds expr to the given operator. The expression is validated lazily,
// at evaluation time, because placeholder substitution can change its shape.
func New[N any](op numeric.Operator[N], expr string) Formula[N] {
	return Formula[N]{raw: strings.TrimSpace(expr), op: op}
}

// String returns the raw configured expression.
func (f Formula[N]) String() string { return f.raw }

// Evaluate substitutes vars into the expression and computes its value.
// An unresolved {placeholder}, unbalanced syntax, or unparsable numeral
// yields a core.EvaluationError; a wrong numeric value is never returned
// silently.
func (f Formula[N]) Evaluate(vars map[string]string) (N, error) {
	var zero N
	expr := f.raw
	for k, v := range vars {
		expr = strings.ReplaceAll(expr, "{"+k+"}", v)
	}
	if i := strings.IndexAny(expr, "{}"); i >= 0 {
		return zero, core.NewEvaluationError(f.raw, "unresolved placeholder near "+expr[i:])
	}

	toks, err := tokenize(expr)
	if err != nil {
		return zero, core.NewEvaluationError(f.raw, err.Error())
	}
	rpn, err := toPostfix(toks)
	if err != nil {
		return zero, core.NewEvaluationError(f.raw, err.Error())
	}
	return f.evalPostfix(rpn)
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	op   byte // for tokOperator: one of + - * / ^ u (unary minus)
}

type syntaxError string

func (e syntaxError) Error() string { return string(e) }

func tokenize(expr string) ([]token, error) {
	var toks []token
	prev := byte(0) // 'n' number/rparen, 'o' operator/lparen/start
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: expr[i:j]})
			prev = 'n'
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			prev = 'o'
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			prev = 'n'
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '^':
			op := c
			if c == '-' && prev != 'n' {
				op = 'u'
			}
			toks = append(toks, token{kind: tokOperator, op: op})
			prev = 'o'
			i++
		case unicode.IsLetter(rune(c)):
			return nil, syntaxError("unexpected identifier near " + expr[i:])
		default:
			return nil, syntaxError("unexpected character " + string(c))
		}
	}
	if len(toks) == 0 {
		return nil, syntaxError("empty expression")
	}
	return toks, nil
}

func precedence(op byte) int {
	switch op {
	case 'u':
		return 4
	case '^':
		return 3
	case '*', '/':
		return 2
	default:
		return 1
	}
}

func rightAssoc(op byte) bool { return op == '^' || op == 'u' }

// toPostfix is a standard shunting-yard pass.
func toPostfix(toks []token) ([]token, error) {
	var out, stack []token
	for _, t := range toks {
		switch t.kind {
		case tokNumber:
			out = append(out, t)
		case tokOperator:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.kind != tokOperator {
					break
				}
				if precedence(top.op) > precedence(t.op) ||
					(precedence(top.op) == precedence(t.op) && !rightAssoc(t.op)) {
					out = append(out, top)
					stack = stack[:len(stack)-1]
					continue
				}
				break
			}
			stack = append(stack, t)
		case tokLParen:
			stack = append(stack, t)
		case tokRParen:
			for {
				if len(stack) == 0 {
					return nil, syntaxError("unbalanced parentheses")
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == tokLParen {
					break
				}
				out = append(out, top)
			}
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.kind == tokLParen {
			return nil, syntaxError("unbalanced parentheses")
		}
		out = append(out, top)
	}
	return out, nil
}

func (f Formula[N]) evalPostfix(rpn []token) (N, error) {
	var zero N
	op := f.op
	var stack []N
	pop := func() (N, bool) {
		if len(stack) == 0 {
			return zero, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}
	for _, t := range rpn {
		if t.kind == tokNumber {
			v, err := op.Parse(t.text)
			if err != nil {
				return zero, core.NewEvaluationError(f.raw, "bad numeral "+t.text)
			}
			stack = append(stack, v)
			continue
		}
		if t.op == 'u' {
			v, ok := pop()
			if !ok {
				return zero, core.NewEvaluationError(f.raw, "dangling operator")
			}
			stack = append(stack, op.Neg(v))
			continue
		}
		b, okB := pop()
		a, okA := pop()
		if !okA || !okB {
			return zero, core.NewEvaluationError(f.raw, "dangling operator")
		}
		switch t.op {
		case '+':
			stack = append(stack, op.Add(a, b))
		case '-':
			stack = append(stack, op.Sub(a, b))
		case '*':
			stack = append(stack, op.Mul(a, b))
		case '/':
			if op.Cmp(b, op.Zero()) == 0 {
				return zero, core.NewEvaluationError(f.raw, "division by zero")
			}
			stack = append(stack, op.Div(a, b, divScale, numeric.RoundHalfUp))
		case '^':
			stack = append(stack, op.Pow(a, b))
		}
	}
	if len(stack) != 1 {
		return zero, core.NewEvaluationError(f.raw, "malformed expression")
	}
	return stack[0], nil
}
