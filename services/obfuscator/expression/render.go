// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expression

import (
	"strings"
)

// renderer holds the two rendering rules for one Kind.
type renderer struct {
	text func(b *strings.Builder, n *Node)
	tex  func(b *strings.Builder, n *Node)
}

// renderers dispatches rendering by kind. It is populated in init because
// the entries recurse back into the table.
var renderers map[Kind]renderer

func init() {
	renderers = map[Kind]renderer{
		KindNumber: {
			text: writeNumber,
			tex:  writeNumber,
		},
		KindSummation: {
			text: func(b *strings.Builder, n *Node) {
				n.left.writeText(b)
				b.WriteByte('+')
				n.right.writeText(b)
			},
			tex: func(b *strings.Builder, n *Node) {
				n.left.writeTeX(b)
				b.WriteByte('+')
				n.right.writeTeX(b)
			},
		},
		KindSubtraction: {
			text: func(b *strings.Builder, n *Node) {
				n.left.writeText(b)
				b.WriteString("-(")
				n.right.writeText(b)
				b.WriteByte(')')
			},
			tex: func(b *strings.Builder, n *Node) {
				n.left.writeTeX(b)
				b.WriteByte('-')
				writeTeXGrouped(b, n.right)
			},
		},
		KindMultiplication: {
			text: func(b *strings.Builder, n *Node) {
				b.WriteByte('(')
				n.left.writeText(b)
				b.WriteString(")*(")
				n.right.writeText(b)
				b.WriteByte(')')
			},
			tex: func(b *strings.Builder, n *Node) {
				writeTeXGrouped(b, n.left)
				b.WriteString(`\cdot`)
				writeTeXGrouped(b, n.right)
			},
		},
		KindDivision: {
			text: func(b *strings.Builder, n *Node) {
				b.WriteByte('(')
				n.left.writeText(b)
				b.WriteString(")/(")
				n.right.writeText(b)
				b.WriteByte(')')
			},
			tex: func(b *strings.Builder, n *Node) {
				b.WriteString(`\frac{`)
				n.left.writeTeX(b)
				b.WriteString("}{")
				n.right.writeTeX(b)
				b.WriteByte('}')
			},
		},
		KindSquareRoot: {
			text: func(b *strings.Builder, n *Node) {
				b.WriteString("sqrt(")
				n.left.writeText(b)
				b.WriteByte(')')
			},
			tex: func(b *strings.Builder, n *Node) {
				b.WriteString(`\sqrt{`)
				n.left.writeTeX(b)
				b.WriteByte('}')
			},
		},
	}
}

// Text renders the tree as a plain arithmetic expression using + - * / and
// sqrt(). The result evaluates to the tree's value under conventional
// operator precedence.
//
// Example: sqrt((15876)/(21)+589-(189))
func (n *Node) Text() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

// TeX renders the tree as a TeX math fragment (no surrounding $ or
// document). Sums and differences are parenthesized only where dropping the
// parentheses would change the value: as a factor of a product and as the
// right-hand side of a subtraction.
//
// Example: \sqrt{\frac{15876}{21}+589-189}
func (n *Node) TeX() string {
	var b strings.Builder
	n.writeTeX(&b)
	return b.String()
}

// String implements fmt.Stringer and returns Text.
func (n *Node) String() string {
	return n.Text()
}

func (n *Node) writeText(b *strings.Builder) {
	renderers[n.kind].text(b, n)
}

func (n *Node) writeTeX(b *strings.Builder) {
	renderers[n.kind].tex(b, n)
}

func writeNumber(b *strings.Builder, n *Node) {
	b.WriteString(n.value.String())
}

func writeTeXGrouped(b *strings.Builder, n *Node) {
	if !n.IsAdditive() {
		n.writeTeX(b)
		return
	}
	b.WriteByte('(')
	n.writeTeX(b)
	b.WriteByte(')')
}
