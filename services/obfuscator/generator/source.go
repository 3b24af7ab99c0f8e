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
	"math/big"
	"math/rand/v2"
	"sync"
)

// Source supplies the randomness used while building a tree.
//
// Int returns a uniformly distributed integer in [0, max). Implementations
// may panic when max <= 0; the generator never asks for such a draw.
type Source interface {
	Int(max *big.Int) *big.Int
}

// intNer is the subset of *rand.Rand and the rand package functions that
// uniformInt needs.
type intNer interface {
	Int64N(n int64) int64
	Uint64() uint64
}

// uniformInt draws from [0, max) using r. Values that fit in an int64 use
// Int64N directly; larger ranges use rejection sampling over max.BitLen()
// random bits.
func uniformInt(r intNer, max *big.Int) *big.Int {
	if max.Sign() <= 0 {
		panic("generator: random bound must be positive")
	}
	if max.IsInt64() {
		return big.NewInt(r.Int64N(max.Int64()))
	}

	bits := max.BitLen()
	buf := make([]byte, (bits+7)/8)
	// Mask the surplus high bits so each attempt succeeds with p > 1/2.
	top := byte(0xFF >> (len(buf)*8 - bits))
	for {
		for i := 0; i < len(buf); i += 8 {
			v := r.Uint64()
			for j := 0; j < 8 && i+j < len(buf); j++ {
				buf[i+j] = byte(v >> (8 * j))
			}
		}
		buf[0] &= top
		out := new(big.Int).SetBytes(buf)
		if out.Cmp(max) < 0 {
			return out
		}
	}
}

// seededSource wraps a private PCG generator.
//
// Thread Safety: guarded by a mutex so a seeded source can be shared by the
// goroutines of a batch, although the draw order is then unspecified.
type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource returns a Source seeded with seed. Two sources with the same
// seed produce the same draws when used from a single goroutine.
func NewSource(seed uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Int(max *big.Int) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uniformInt(s.r, max)
}

// globalRand adapts the math/rand/v2 top-level functions, which are safe for
// concurrent use and randomly seeded per process.
type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }
func (globalRand) Uint64() uint64       { return rand.Uint64() }

type sharedSource struct{}

func (sharedSource) Int(max *big.Int) *big.Int { return uniformInt(globalRand{}, max) }

// SharedSource returns the process-wide, randomly seeded Source. It is safe
// for concurrent use and is what production callers should pass.
func SharedSource() Source {
	return sharedSource{}
}

// ScriptedSource replays a fixed list of values, cycling when exhausted.
// Each draw returns value mod max. It exists for tests that need an exact
// tree shape.
//
// Thread Safety: Safe for concurrent use.
type ScriptedSource struct {
	mu     sync.Mutex
	values []*big.Int
	next   int
	calls  int
}

// NewScriptedSource returns a ScriptedSource over values. With no values
// every draw returns 0.
func NewScriptedSource(values ...int64) *ScriptedSource {
	s := &ScriptedSource{values: make([]*big.Int, len(values))}
	for i, v := range values {
		s.values[i] = big.NewInt(v)
	}
	return s
}

// Int implements Source.
func (s *ScriptedSource) Int(max *big.Int) *big.Int {
	if max.Sign() <= 0 {
		panic("generator: random bound must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.values) == 0 {
		return new(big.Int)
	}
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	// Mod (not Rem) keeps negative script values inside [0, max).
	return new(big.Int).Mod(v, max)
}

// Calls returns how many draws have been made.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
