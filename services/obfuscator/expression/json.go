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
	"encoding/json"
	"fmt"
	"math/big"
)

// nodeJSON is the wire form of a Node. Numbers are carried as decimal
// strings so arbitrarily large values survive JavaScript clients.
type nodeJSON struct {
	Kind     Kind   `json:"kind"`
	Value    string `json:"value,omitempty"`
	Left     *Node  `json:"left,omitempty"`
	Right    *Node  `json:"right,omitempty"`
	Radicand *Node  `json:"radicand,omitempty"`
}

// MarshalJSON implements json.Marshaler.
//
// Output shapes:
//
//	{"kind":"number","value":"42"}
//	{"kind":"division","left":{...},"right":{...}}
//	{"kind":"square_root","radicand":{...}}
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{Kind: n.kind}
	switch {
	case n.kind == KindNumber:
		out.Value = n.value.String()
	case n.kind == KindSquareRoot:
		out.Radicand = n.left
	default:
		out.Left = n.left
		out.Right = n.right
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler. The decoded tree is checked
// for shape only; it is not required to evaluate to anything in particular.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch {
	case in.Kind == KindNumber:
		v, ok := new(big.Int).SetString(in.Value, 10)
		if !ok || v.Sign() < 0 {
			return fmt.Errorf("%w: bad number value %q", ErrMalformedTree, in.Value)
		}
		if in.Left != nil || in.Right != nil || in.Radicand != nil {
			return fmt.Errorf("%w: number with children", ErrMalformedTree)
		}
		*n = Node{kind: KindNumber, value: v}
	case in.Kind == KindSquareRoot:
		if in.Radicand == nil || in.Left != nil || in.Right != nil {
			return fmt.Errorf("%w: square_root needs exactly a radicand", ErrMalformedTree)
		}
		*n = Node{kind: KindSquareRoot, left: in.Radicand}
	case in.Kind.IsBinary():
		if in.Left == nil || in.Right == nil || in.Radicand != nil {
			return fmt.Errorf("%w: %s needs left and right", ErrMalformedTree, in.Kind)
		}
		*n = Node{kind: in.Kind, left: in.Left, right: in.Right}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	return nil
}
