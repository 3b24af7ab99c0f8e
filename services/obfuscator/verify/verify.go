// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify checks that an expression tree's renderings evaluate back
// to the number it was generated for.
//
// Evaluation uses math/big so that values of any size are exact up to the
// square roots, which are computed at a precision scaled to the largest
// literal in the input.
package verify

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
)

// Tolerance is the largest absolute difference accepted between a rendering's
// value and the target number.
const Tolerance = 1e-5

var (
	// ErrSyntax is returned for input the evaluator cannot parse.
	ErrSyntax = errors.New("expression syntax error")

	// ErrDomain is returned for division by zero or the square root of a
	// negative number.
	ErrDomain = errors.New("expression outside arithmetic domain")
)

const minPrec = 256

// Evaluate computes the value of a text rendering.
//
// The accepted grammar is the one Node.Text produces, with whitespace and
// unary minus allowed:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = number | "(" expr ")" | ("sqrt" | "Math.sqrt") "(" expr ")"
func Evaluate(text string) (*big.Float, error) {
	return EvaluatePrec(text, precisionFor(text))
}

// EvaluatePrec is Evaluate with an explicit mantissa precision in bits.
func EvaluatePrec(text string, prec uint) (*big.Float, error) {
	p := &parser{src: text, prec: prec}
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return v, nil
}

var (
	cdotPattern = regexp.MustCompile(`\\cdot`)
	sqrtPattern = regexp.MustCompile(`\\sqrt\{([^{}]*)\}`)
	fracPattern = regexp.MustCompile(`\\frac\{([^{}]*)\}\{([^{}]*)\}`)
)

// FromTeX rewrites a TeX fragment produced by Node.TeX into the text
// grammar accepted by Evaluate.
//
// \cdot becomes *, and innermost \sqrt{X} and \frac{X}{Y} groups are
// replaced by sqrt(X) and (X)/(Y) until none remain.
func FromTeX(tex string) (string, error) {
	s := cdotPattern.ReplaceAllString(tex, "*")
	for {
		next := sqrtPattern.ReplaceAllString(s, "sqrt($1)")
		next = fracPattern.ReplaceAllString(next, "($1)/($2)")
		if next == s {
			break
		}
		s = next
	}
	if i := strings.IndexAny(s, `\{}`); i >= 0 {
		return "", fmt.Errorf("%w: untranslatable TeX near %q", ErrSyntax, excerpt(s, i))
	}
	return s, nil
}

// EvaluateTeX back-translates and evaluates a TeX fragment.
func EvaluateTeX(tex string) (*big.Float, error) {
	text, err := FromTeX(tex)
	if err != nil {
		return nil, err
	}
	return Evaluate(text)
}

// Within reports whether |v - n| <= Tolerance.
func Within(v *big.Float, n *big.Int) bool {
	diff := new(big.Float).SetPrec(v.Prec()).SetInt(n)
	diff.Sub(v, diff).Abs(diff)
	return diff.Cmp(big.NewFloat(Tolerance)) <= 0
}

// Check evaluates both renderings of node and returns an error wrapping
// expression.ErrInvariantViolation if either misses n by more than
// Tolerance.
func Check(node *expression.Node, n *big.Int) error {
	text := node.Text()
	v, err := Evaluate(text)
	if err != nil {
		return fmt.Errorf("%w: text rendering: %v", expression.ErrInvariantViolation, err)
	}
	if !Within(v, n) {
		return fmt.Errorf("%w: text %s evaluates to %s, want %s",
			expression.ErrInvariantViolation, text, v.Text('g', 20), n)
	}

	tex := node.TeX()
	vt, err := EvaluateTeX(tex)
	if err != nil {
		return fmt.Errorf("%w: TeX rendering: %v", expression.ErrInvariantViolation, err)
	}
	if !Within(vt, n) {
		return fmt.Errorf("%w: TeX %s evaluates to %s, want %s",
			expression.ErrInvariantViolation, tex, vt.Text('g', 20), n)
	}
	return nil
}

// precisionFor picks a mantissa size twice as wide as the longest digit run
// in text, plus headroom, so intermediate products stay exact.
func precisionFor(text string) uint {
	longest, run := 0, 0
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	bits := uint(math.Ceil(float64(longest)*math.Log2(10)))*2 + 128
	return max(bits, minPrec)
}

func excerpt(s string, i int) string {
	end := min(i+16, len(s))
	return s[i:end]
}

type parser struct {
	src  string
	pos  int
	prec uint
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

// peek returns the next non-space byte, or 0 at end of input.
func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) newFloat() *big.Float {
	return new(big.Float).SetPrec(p.prec)
}

func (p *parser) expr() (*big.Float, error) {
	acc, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return acc, nil
		}
		p.pos++
		rhs, err := p.term()
		if err != nil {
			return nil, err
		}
		if op == '+' {
			acc = p.newFloat().Add(acc, rhs)
		} else {
			acc = p.newFloat().Sub(acc, rhs)
		}
	}
}

func (p *parser) term() (*big.Float, error) {
	acc, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return acc, nil
		}
		p.pos++
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == '*' {
			acc = p.newFloat().Mul(acc, rhs)
			continue
		}
		if rhs.Sign() == 0 {
			return nil, fmt.Errorf("%w: division by zero at offset %d", ErrDomain, p.pos)
		}
		acc = p.newFloat().Quo(acc, rhs)
	}
}

func (p *parser) unary() (*big.Float, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		return p.newFloat().Neg(v), nil
	}
	return p.primary()
}

func (p *parser) primary() (*big.Float, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, p.errorf("missing )")
		}
		p.pos++
		return v, nil

	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		v, ok := p.newFloat().SetString(p.src[start:p.pos])
		if !ok {
			return nil, p.errorf("bad number %q", p.src[start:p.pos])
		}
		return v, nil

	case strings.HasPrefix(p.src[p.pos:], "Math.sqrt"), strings.HasPrefix(p.src[p.pos:], "sqrt"):
		if p.src[p.pos] == 'M' {
			p.pos += len("Math.")
		}
		p.pos += len("sqrt")
		if p.peek() != '(' {
			return nil, p.errorf("sqrt needs (")
		}
		arg, err := p.primary()
		if err != nil {
			return nil, err
		}
		if arg.Sign() < 0 {
			return nil, fmt.Errorf("%w: square root of negative value at offset %d", ErrDomain, p.pos)
		}
		return p.newFloat().Sqrt(arg), nil

	case c == 0:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %q", c)
}
