// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator builds randomized expression trees for natural numbers.
//
// A Generator picks variants from a weighted Registry, asks each variant
// whether it can represent the current value, and recurses into the
// variant's builder with the depth budget reduced by one. Depth 0 (or a
// value no variant can represent) yields a plain number, so generation
// always terminates with a tree no taller than the requested depth.
//
// Randomness comes from an injected Source; pass NewScriptedSource in tests
// to pin down an exact tree.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
)

// DefaultMaxAttempts is the number of draws made at each node before
// falling back to a plain number.
const DefaultMaxAttempts = 10

// Selection is the candidate selection discipline.
type Selection string

const (
	// SelectRejection draws a kind from the whole pool and redraws when it
	// cannot represent the value, up to the attempt limit.
	SelectRejection Selection = "rejection"

	// SelectFilter draws once from the pool slots whose kind can represent
	// the value.
	SelectFilter Selection = "filter"
)

// ParseSelection converts a configuration string into a Selection.
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectRejection, SelectFilter:
		return Selection(s), nil
	case "":
		return SelectRejection, nil
	}
	return "", fmt.Errorf("unknown selection discipline %q", s)
}

// Generator builds expression trees.
//
// Thread Safety: A Generator holds no mutable state of its own; it is safe
// for concurrent use when its Source is.
type Generator struct {
	registry    *Registry
	table       *primes.Table
	src         Source
	maxAttempts int
	selection   Selection
	logger      *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts sets the per-node draw limit. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n >= 1 {
			g.maxAttempts = n
		}
	}
}

// WithSelection sets the selection discipline.
func WithSelection(s Selection) Option {
	return func(g *Generator) {
		if s != "" {
			g.selection = s
		}
	}
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator.
//
// Inputs:
//   - registry: selection pool; nil uses DefaultRegistry()
//   - table: prime table used by Multiplication; nil uses primes.Default()
//   - src: randomness; nil uses SharedSource()
//   - opts: optional settings
//
// Outputs:
//   - *Generator: never nil
func New(registry *Registry, table *primes.Table, src Source, opts ...Option) *Generator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if table == nil {
		table = primes.Default()
	}
	if src == nil {
		src = SharedSource()
	}
	g := &Generator{
		registry:    registry,
		table:       table,
		src:         src,
		maxAttempts: DefaultMaxAttempts,
		selection:   SelectRejection,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the generator's selection pool.
func (g *Generator) Registry() *Registry { return g.registry }

// Selection returns the active selection discipline.
func (g *Generator) Selection() Selection { return g.selection }

// CanDo reports whether kind can represent n. KindNumber always can;
// unknown kinds never can.
func (g *Generator) CanDo(kind expression.Kind, n *big.Int) bool {
	if kind == expression.KindNumber {
		return true
	}
	d, ok := descriptors[kind]
	if !ok {
		return false
	}
	return d.CanDo(g, n)
}

// Eligible returns the registered kinds that can represent n, in canonical
// order.
func (g *Generator) Eligible(n *big.Int) []expression.Kind {
	var out []expression.Kind
	for _, k := range expression.Kinds {
		if g.registry.Weight(k) > 0 && g.CanDo(k, n) {
			out = append(out, k)
		}
	}
	return out
}

// Generate returns an expression tree that evaluates to n, at most depth
// levels tall. Depth 0 returns a Number leaf.
//
// Description:
//
//	Generate is MakeExpression plus telemetry: it opens one span and
//	records duration and node count for the whole tree. The context is
//	used only for tracing; generation itself cannot block.
//
// Inputs:
//   - ctx: context for tracing
//   - n: the value to obfuscate, non-nil and non-negative
//   - depth: the depth budget; negative values behave like 0
//
// Outputs:
//   - *expression.Node: never nil
func (g *Generator) Generate(ctx context.Context, n *big.Int, depth int) *expression.Node {
	_, span := tracer.Start(ctx, "generator.Generate",
		trace.WithAttributes(
			attribute.Int("depth", depth),
			attribute.Int("digits", primes.DecimalDigits(n)),
			attribute.String("selection", string(g.selection)),
		),
	)
	defer span.End()

	start := time.Now()
	node := g.MakeExpression(n, depth)
	elapsed := time.Since(start)

	count := node.Count()
	generationDuration.Observe(elapsed.Seconds())
	generationNodes.Observe(float64(count))
	span.SetAttributes(
		attribute.Int("nodes", count),
		attribute.Int("height", node.Depth()),
	)

	g.logger.Debug("expression generated",
		slog.Int("depth", depth),
		slog.Int("nodes", count),
		slog.Duration("duration", elapsed),
	)
	return node
}

// MakeExpression is the recursive step of Generate, without telemetry.
func (g *Generator) MakeExpression(n *big.Int, depth int) *expression.Node {
	if depth <= 0 {
		return expression.NewNumber(n)
	}

	kind, ok := g.choose(n)
	if !ok {
		generationFallbacks.Inc()
		return expression.NewNumber(n)
	}
	return descriptors[kind].Build(g, n, depth)
}

// choose selects a kind for n under the configured discipline.
func (g *Generator) choose(n *big.Int) (expression.Kind, bool) {
	if g.selection == SelectFilter {
		kind, ok := g.registry.PickEligible(g.src, func(k expression.Kind) bool {
			return g.CanDo(k, n)
		})
		if ok {
			variantDraws.WithLabelValues(kind.String(), drawAccepted).Inc()
		}
		return kind, ok
	}

	if g.registry.Size() == 0 {
		return expression.KindNumber, false
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		kind := g.registry.PickCandidate(g.src)
		if g.CanDo(kind, n) {
			variantDraws.WithLabelValues(kind.String(), drawAccepted).Inc()
			return kind, true
		}
		variantDraws.WithLabelValues(kind.String(), drawRejected).Inc()
	}
	return expression.KindNumber, false
}

// Generate builds a tree for n with the default registry and prime table.
func Generate(n *big.Int, depth int, src Source) *expression.Node {
	return New(nil, nil, src).MakeExpression(n, depth)
}
