// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"fmt"
	"math/big"

	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
)

const (
	// divisorBase and divisorSpan bound the denominator of a Division:
	// it is drawn from [divisorBase, divisorBase+divisorSpan).
	divisorBase = 70
	divisorSpan = 300

	// subtrahendBase is the smallest offset a Subtraction adds to n.
	subtrahendBase = 3

	// minProduct is the smallest value a Multiplication is built for.
	minProduct = 10
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

// Descriptor binds a poolable kind to its eligibility test and builder.
//
// Build is only called after CanDo returned true for the same n; it
// recurses into Generator.MakeExpression for every child with depth-1.
type Descriptor struct {
	Kind  expression.Kind
	CanDo func(g *Generator, n *big.Int) bool
	Build func(g *Generator, n *big.Int, depth int) *expression.Node
}

// descriptors is the fixed variant table. Number is absent: it is the
// fallback, never drawn.
var descriptors map[expression.Kind]Descriptor

func init() {
	descriptors = map[expression.Kind]Descriptor{
		expression.KindSummation: {
			Kind:  expression.KindSummation,
			CanDo: func(_ *Generator, n *big.Int) bool { return n.Cmp(bigTwo) > 0 },
			Build: buildBinary(expression.KindSummation, summationPair),
		},
		expression.KindSubtraction: {
			Kind:  expression.KindSubtraction,
			CanDo: func(_ *Generator, n *big.Int) bool { return n.Sign() > 0 },
			Build: buildBinary(expression.KindSubtraction, subtractionPair),
		},
		expression.KindMultiplication: {
			Kind:  expression.KindMultiplication,
			CanDo: multiplicationCanDo,
			Build: buildBinary(expression.KindMultiplication, multiplicationPair),
		},
		expression.KindDivision: {
			Kind:  expression.KindDivision,
			CanDo: func(_ *Generator, n *big.Int) bool { return n.Cmp(bigOne) > 0 },
			Build: buildBinary(expression.KindDivision, divisionPair),
		},
		expression.KindSquareRoot: {
			Kind:  expression.KindSquareRoot,
			CanDo: func(_ *Generator, n *big.Int) bool { return n.Cmp(bigOne) > 0 },
			Build: buildSquareRoot,
		},
	}
}

// pairFunc splits n into the two operand values of a binary variant.
type pairFunc func(g *Generator, n *big.Int) (l, r *big.Int)

func buildBinary(kind expression.Kind, pair pairFunc) func(*Generator, *big.Int, int) *expression.Node {
	return func(g *Generator, n *big.Int, depth int) *expression.Node {
		g.mustBeEligible(kind, n)
		l, r := pair(g, n)
		return expression.NewBinary(kind,
			g.MakeExpression(l, depth-1),
			g.MakeExpression(r, depth-1),
		)
	}
}

// summationPair picks l uniformly in [1, n-1] and returns (l, n-l).
func summationPair(g *Generator, n *big.Int) (*big.Int, *big.Int) {
	l := g.src.Int(new(big.Int).Sub(n, bigOne))
	l.Add(l, bigOne)
	r := new(big.Int).Sub(n, l)

	check(new(big.Int).Add(l, r).Cmp(n) == 0 && l.Sign() > 0 && r.Sign() > 0,
		"summation %s+%s != %s", l, r, n)
	return l, r
}

// subtractionPair returns (n+k, k) with k drawn from [3, 2n+3).
func subtractionPair(g *Generator, n *big.Int) (*big.Int, *big.Int) {
	k := g.src.Int(new(big.Int).Mul(n, bigTwo))
	k.Add(k, bigInt(subtrahendBase))
	l := new(big.Int).Add(n, k)
	r := new(big.Int).Sub(l, n)

	check(new(big.Int).Sub(l, r).Cmp(n) == 0 && r.Sign() > 0,
		"subtraction %s-%s != %s", l, r, n)
	return l, r
}

func multiplicationCanDo(g *Generator, n *big.Int) bool {
	return n.Cmp(bigInt(minProduct)) > 0 && !g.table.IsPrime(n)
}

// multiplicationPair picks a random distinct prime factor f of n and
// returns (f, n/f). When n cannot be factored (digit ceiling) it returns
// (1, n).
func multiplicationPair(g *Generator, n *big.Int) (*big.Int, *big.Int) {
	fs := g.table.Factors(n, true)
	if len(fs) == 0 {
		return big.NewInt(1), new(big.Int).Set(n)
	}
	l := new(big.Int).Set(fs[drawIndex(g.src, len(fs))])
	r, rem := new(big.Int).QuoRem(n, l, new(big.Int))

	check(rem.Sign() == 0 && new(big.Int).Mul(l, r).Cmp(n) == 0,
		"multiplication %s*%s != %s", l, r, n)
	return l, r
}

// divisionPair returns (r*n, r) with r drawn from [70, 370).
func divisionPair(g *Generator, n *big.Int) (*big.Int, *big.Int) {
	r := g.src.Int(bigInt(divisorSpan))
	r.Add(r, bigInt(divisorBase))
	l := new(big.Int).Mul(r, n)

	q, rem := new(big.Int).QuoRem(l, r, new(big.Int))
	check(r.Sign() > 0 && rem.Sign() == 0 && q.Cmp(n) == 0,
		"division %s/%s != %s", l, r, n)
	return l, r
}

// buildSquareRoot obfuscates n*n and wraps it in a square root.
func buildSquareRoot(g *Generator, n *big.Int, depth int) *expression.Node {
	g.mustBeEligible(expression.KindSquareRoot, n)
	sq := new(big.Int).Mul(n, n)
	return expression.NewSquareRoot(g.MakeExpression(sq, depth-1))
}

// mustBeEligible panics when a builder runs for a value its variant cannot
// represent.
func (g *Generator) mustBeEligible(kind expression.Kind, n *big.Int) {
	check(g.CanDo(kind, n), "%s built for ineligible value %s", kind, n)
}

// check panics with ErrInvariantViolation when ok is false.
func check(ok bool, format string, args ...any) {
	if ok {
		return
	}
	panic(fmt.Errorf("%w: "+format, append([]any{expression.ErrInvariantViolation}, args...)...))
}
