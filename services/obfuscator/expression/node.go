// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expression defines the expression tree produced by the obfuscator
// and its two renderings.
//
// A Node is a closed tagged variant: a Number leaf, one of four binary
// operators, or a square root. Trees are immutable once built, a node owns
// its children exclusively, and there is no sharing between trees. Every
// rendering of a well-formed tree evaluates back to the value the tree was
// built for (within floating point tolerance once a square root is involved).
package expression

import (
	"errors"
	"fmt"
	"math/big"
)

// Kind identifies the variant of a Node.
type Kind string

const (
	KindNumber         Kind = "number"
	KindSummation      Kind = "summation"
	KindSubtraction    Kind = "subtraction"
	KindMultiplication Kind = "multiplication"
	KindDivision       Kind = "division"
	KindSquareRoot     Kind = "square_root"
)

// Kinds lists every variant in a stable order.
var Kinds = []Kind{
	KindNumber,
	KindSummation,
	KindSubtraction,
	KindMultiplication,
	KindDivision,
	KindSquareRoot,
}

var (
	// ErrInvalidKind is returned (or panicked with) when a Kind is unknown or
	// used where its shape does not fit, such as NewBinary(KindSquareRoot, ...).
	ErrInvalidKind = errors.New("invalid expression kind")

	// ErrMalformedTree is returned when decoding a tree whose shape does not
	// match its kinds.
	ErrMalformedTree = errors.New("malformed expression tree")

	// ErrInvariantViolation reports a tree whose renderings do not evaluate
	// to the value it was built for, or a variant built for a value it
	// cannot represent. It always indicates a programming error.
	ErrInvariantViolation = errors.New("expression invariant violated")
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsBinary returns true for the four two-operand kinds.
func (k Kind) IsBinary() bool {
	switch k {
	case KindSummation, KindSubtraction, KindMultiplication, KindDivision:
		return true
	}
	return false
}

// IsValid returns true if k is one of Kinds.
func (k Kind) IsValid() bool {
	return k == KindNumber || k == KindSquareRoot || k.IsBinary()
}

// ParseKind converts a kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Node is one node of an expression tree.
//
// Fields by kind:
//   - KindNumber: value
//   - binary kinds: left, right
//   - KindSquareRoot: left holds the radicand, whose value is the square of
//     this node's value
//
// Thread Safety: Nodes are never mutated after construction and are safe for
// concurrent reads.
type Node struct {
	kind  Kind
	value *big.Int
	left  *Node
	right *Node
}

// NewNumber returns a leaf holding a copy of n.
//
// Panics if n is nil.
func NewNumber(n *big.Int) *Node {
	if n == nil {
		panic("expression: NewNumber called with nil value")
	}
	return &Node{kind: KindNumber, value: new(big.Int).Set(n)}
}

// NewBinary returns an operator node over two children.
//
// Inputs:
//   - kind: one of KindSummation, KindSubtraction, KindMultiplication,
//     KindDivision
//   - left, right: the operands, both non-nil
//
// Outputs:
//   - *Node: the operator node, never nil
//
// Panics wrapping ErrInvalidKind for a non-binary kind and on nil operands;
// both are programming errors in the caller.
func NewBinary(kind Kind, left, right *Node) *Node {
	if !kind.IsBinary() {
		panic(fmt.Errorf("%w: %q is not a binary kind", ErrInvalidKind, kind))
	}
	if left == nil || right == nil {
		panic("expression: NewBinary called with nil operand")
	}
	return &Node{kind: kind, left: left, right: right}
}

// NewSquareRoot returns a square root over radicand.
//
// Panics if radicand is nil.
func NewSquareRoot(radicand *Node) *Node {
	if radicand == nil {
		panic("expression: NewSquareRoot called with nil radicand")
	}
	return &Node{kind: KindSquareRoot, left: radicand}
}

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Value returns a copy of the leaf value, or nil for non-Number nodes.
func (n *Node) Value() *big.Int {
	if n.kind != KindNumber {
		return nil
	}
	return new(big.Int).Set(n.value)
}

// Left returns the left operand of a binary node, or nil.
func (n *Node) Left() *Node {
	if !n.kind.IsBinary() {
		return nil
	}
	return n.left
}

// Right returns the right operand of a binary node, or nil.
func (n *Node) Right() *Node { return n.right }

// Child returns the radicand of a square root, or nil.
func (n *Node) Child() *Node {
	if n.kind != KindSquareRoot {
		return nil
	}
	return n.left
}

// IsAdditive reports whether the node is a Summation or Subtraction. Such
// nodes need parentheses when they appear as a factor or as the right-hand
// side of a subtraction.
func (n *Node) IsAdditive() bool {
	return n.kind == KindSummation || n.kind == KindSubtraction
}

// Depth returns the height of the tree; a leaf has depth 0.
func (n *Node) Depth() int {
	switch {
	case n.kind == KindNumber:
		return 0
	case n.kind == KindSquareRoot:
		return n.left.Depth() + 1
	default:
		return max(n.left.Depth(), n.right.Depth()) + 1
	}
}

// Count returns the number of nodes in the tree.
func (n *Node) Count() int {
	switch {
	case n.kind == KindNumber:
		return 1
	case n.kind == KindSquareRoot:
		return n.left.Count() + 1
	default:
		return n.left.Count() + n.right.Count() + 1
	}
}

// Walk visits the tree in pre-order until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	if n.left != nil && !n.left.Walk(fn) {
		return false
	}
	if n.right != nil && !n.right.Walk(fn) {
		return false
	}
	return true
}

// KindCounts returns how many nodes of each kind the tree contains.
func (n *Node) KindCounts() map[Kind]int {
	out := make(map[Kind]int, len(Kinds))
	n.Walk(func(c *Node) bool {
		out[c.kind]++
		return true
	})
	return out
}
