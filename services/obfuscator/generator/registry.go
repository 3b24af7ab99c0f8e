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
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
)

//go:embed variants.yaml
var defaultWeightsYAML []byte

var (
	// ErrInvalidWeight is returned for a weight below 1.
	ErrInvalidWeight = errors.New("variant weight must be at least 1")

	// ErrNotPoolable is returned when registering the Number fallback or a
	// kind that has no builder.
	ErrNotPoolable = errors.New("kind cannot be placed in the selection pool")
)

// WeightsFile is the YAML form of a weight table.
type WeightsFile struct {
	Variants []VariantWeight `yaml:"variants"`
}

// VariantWeight is one entry of a WeightsFile.
type VariantWeight struct {
	Kind   string `yaml:"kind"`
	Weight int    `yaml:"weight"`
}

// Registry is the weighted selection pool of expression variants.
//
// A kind registered with weight w occupies w slots in the pool, so a uniform
// draw over the pool picks it with probability proportional to w.
//
// Thread Safety: AddType is not safe for concurrent use. Once built, a
// Registry is only read and may be shared freely.
type Registry struct {
	pool    []expression.Kind
	weights map[expression.Kind]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{weights: make(map[expression.Kind]int)}
}

// AddType appends weight copies of kind to the pool. Registering the same
// kind twice adds to its weight.
//
// Outputs:
//   - error: ErrInvalidWeight for weight < 1, ErrNotPoolable for
//     KindNumber and kinds without a builder
func (r *Registry) AddType(kind expression.Kind, weight int) error {
	if weight < 1 {
		return fmt.Errorf("%w: %s has weight %d", ErrInvalidWeight, kind, weight)
	}
	if _, ok := descriptors[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrNotPoolable, kind)
	}
	for i := 0; i < weight; i++ {
		r.pool = append(r.pool, kind)
	}
	r.weights[kind] += weight
	return nil
}

// Pool returns a copy of the selection pool.
func (r *Registry) Pool() []expression.Kind {
	out := make([]expression.Kind, len(r.pool))
	copy(out, r.pool)
	return out
}

// Weight returns the total weight registered for kind, 0 if absent.
func (r *Registry) Weight(kind expression.Kind) int {
	return r.weights[kind]
}

// Size returns the number of pool slots.
func (r *Registry) Size() int {
	return len(r.pool)
}

// Weights returns a copy of the weight table keyed by kind name.
func (r *Registry) Weights() map[string]int {
	out := make(map[string]int, len(r.weights))
	for k, w := range r.weights {
		out[k.String()] = w
	}
	return out
}

// PickCandidate draws one pool slot uniformly. The caller decides whether
// the drawn kind is usable and redraws if not.
//
// Returns KindNumber when the pool is empty.
func (r *Registry) PickCandidate(src Source) expression.Kind {
	if len(r.pool) == 0 {
		return expression.KindNumber
	}
	return r.pool[drawIndex(src, len(r.pool))]
}

// PickEligible first narrows the pool to the slots whose kind satisfies
// eligible and then draws uniformly among them, so relative weights among
// eligible kinds are preserved.
//
// Outputs:
//   - expression.Kind: the drawn kind, KindNumber when ok is false
//   - bool: false when no slot is eligible
func (r *Registry) PickEligible(src Source, eligible func(expression.Kind) bool) (expression.Kind, bool) {
	verdict := make(map[expression.Kind]bool, len(r.weights))
	for k := range r.weights {
		verdict[k] = eligible(k)
	}

	slots := make([]expression.Kind, 0, len(r.pool))
	for _, k := range r.pool {
		if verdict[k] {
			slots = append(slots, k)
		}
	}
	if len(slots) == 0 {
		return expression.KindNumber, false
	}
	return slots[drawIndex(src, len(slots))], true
}

// RegistryFromWeights builds a registry from a name to weight table. Kinds
// are registered in the canonical expression.Kinds order so that a seeded
// Source yields the same pool layout on every run.
func RegistryFromWeights(weights map[string]int) (*Registry, error) {
	known := make(map[string]bool, len(expression.Kinds))
	for _, k := range expression.Kinds {
		known[k.String()] = true
	}
	for name := range weights {
		if !known[name] {
			return nil, fmt.Errorf("%w: %q", expression.ErrInvalidKind, name)
		}
	}

	r := NewRegistry()
	for _, k := range expression.Kinds {
		w, ok := weights[k.String()]
		if !ok {
			continue
		}
		if err := r.AddType(k, w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ParseWeights decodes a YAML weight table.
func ParseWeights(data []byte) (map[string]int, error) {
	var f WeightsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling variant weights: %w", err)
	}
	out := make(map[string]int, len(f.Variants))
	for _, v := range f.Variants {
		if _, dup := out[v.Kind]; dup {
			return nil, fmt.Errorf("variant %q listed twice", v.Kind)
		}
		out[v.Kind] = v.Weight
	}
	return out, nil
}

// DefaultWeights returns the embedded weight table.
func DefaultWeights() map[string]int {
	w, err := ParseWeights(defaultWeightsYAML)
	if err != nil {
		panic(fmt.Sprintf("generator: embedded variants.yaml is invalid: %v", err))
	}
	return w
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the registry built from the embedded weights.
// It is built once and shared.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := RegistryFromWeights(DefaultWeights())
		if err != nil {
			panic(fmt.Sprintf("generator: embedded variants.yaml is invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func drawIndex(src Source, n int) int {
	return int(src.Int(bigInt(int64(n))).Int64())
}
