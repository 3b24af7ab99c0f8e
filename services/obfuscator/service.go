// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package obfuscator is the service layer of the number obfuscator: it
// validates requests, generates and verifies expression trees, archives
// them, and answers prime-table queries. Handlers in this package expose
// the service over HTTP under /v1/obfuscator.
package obfuscator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/obfuscator/services/obfuscator/archive"
	"github.com/AleutianAI/obfuscator/services/obfuscator/config"
	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
	"github.com/AleutianAI/obfuscator/services/obfuscator/generator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
	"github.com/AleutianAI/obfuscator/services/obfuscator/render"
	"github.com/AleutianAI/obfuscator/services/obfuscator/telemetry"
	"github.com/AleutianAI/obfuscator/services/obfuscator/verify"
)

// ServiceVersion is the obfuscator service version.
const ServiceVersion = "0.3.0"

const tracerName = "obfuscator.service"

// Legacy PNG endpoint bounds. Anything outside is rendered as the number 0.
const (
	legacyMaxNumber = 1_000_000_000
	legacyMaxDepth  = 8
)

// ServiceConfig configures the obfuscator service.
type ServiceConfig struct {
	// MaxDepth is the largest accepted depth.
	// Default: 8
	MaxDepth int

	// MaxDigits bounds the input number. 0 means unbounded.
	// Default: 40
	MaxDigits int

	// MaxBatch is the longest accepted batch.
	// Default: 64
	MaxBatch int

	// Concurrency bounds parallel generation within a batch.
	// Default: 4
	Concurrency int

	// Verify re-evaluates both renderings of every tree.
	// Default: true
	Verify bool

	// FactorCacheSize is the number of factorizations kept. 0 disables caching.
	// Default: 1024
	FactorCacheSize int

	MaxAttempts int
	Selection   generator.Selection

	// Weights overrides the embedded variant weights when non-empty.
	Weights map[string]int

	Primes primes.Config
	Render render.Config
}

// DefaultServiceConfig returns the defaults of the file configuration.
func DefaultServiceConfig() ServiceConfig {
	cfg, _ := ServiceConfigFrom(config.DefaultConfig())
	return cfg
}

// ServiceConfigFrom maps a loaded configuration onto a ServiceConfig.
func ServiceConfigFrom(cfg config.Config) (ServiceConfig, error) {
	sel, err := generator.ParseSelection(cfg.Generator.Selection)
	if err != nil {
		return ServiceConfig{}, err
	}
	return ServiceConfig{
		MaxDepth:        cfg.Limits.MaxDepth,
		MaxDigits:       cfg.Limits.MaxDigits,
		MaxBatch:        cfg.Limits.MaxBatch,
		Concurrency:     cfg.Limits.Concurrency,
		Verify:          cfg.Limits.Verify,
		FactorCacheSize: cfg.Limits.FactorCacheSize,
		MaxAttempts:     cfg.Generator.MaxAttempts,
		Selection:       sel,
		Weights:         cfg.Generator.Weights,
		Primes:          cfg.Primes,
		Render: render.Config{
			Texi2DVI: cfg.Render.Texi2DVI,
			DVIPNG:   cfg.Render.DVIPNG,
			DPI:      cfg.Render.DPI,
			Timeout:  cfg.Render.Timeout,
			WorkDir:  cfg.Render.WorkDir,
		},
	}, nil
}

// PNGRenderer typesets a TeX fragment. *render.Renderer satisfies it.
type PNGRenderer interface {
	PNG(ctx context.Context, fragment string) ([]byte, error)
}

// Obfuscation is one generated expression for a number.
type Obfuscation struct {
	// ID is set when the obfuscation was archived.
	ID        string
	Number    *big.Int
	Depth     int
	Tree      *expression.Node
	Text      string
	TeX       string
	Nodes     int
	Height    int
	// Kinds counts the tree's nodes by kind name.
	Kinds     map[string]int
	CreatedAt time.Time
}

// VariantReport describes the variant registry and, for a given number,
// which variants can represent it.
type VariantReport struct {
	Weights  map[string]int
	PoolSize int
	// Eligible is nil when no number was given.
	Eligible []string
}

// BatchItem is one entry of ObfuscateBatch.
type BatchItem struct {
	Number *big.Int
	Depth  int
}

// PrimeSummary describes the prime table.
type PrimeSummary struct {
	Bound     uint64
	Count     int
	Largest   uint64
	MaxDigits int
}

// Service is the obfuscator service.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	config    ServiceConfig
	table     *primes.Table
	generator *generator.Generator
	archive   *archive.Store
	renderer  PNGRenderer
	logger    *slog.Logger

	src     generator.Source
	flight  singleflight.Group
	factors *factorCache
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSource replaces the shared random source.
func WithSource(src generator.Source) ServiceOption {
	return func(s *Service) { s.src = src }
}

// WithTable uses an already built prime table.
func WithTable(t *primes.Table) ServiceOption {
	return func(s *Service) { s.table = t }
}

// WithArchive enables archiving into store. The service does not close it.
func WithArchive(store *archive.Store) ServiceOption {
	return func(s *Service) { s.archive = store }
}

// WithRenderer replaces the TeX toolchain renderer.
func WithRenderer(r PNGRenderer) ServiceOption {
	return func(s *Service) { s.renderer = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService builds the prime table (unless one is supplied), the variant
// registry and the generator.
func NewService(cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	s := &Service{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.src == nil {
		s.src = generator.SharedSource()
	}
	if s.table == nil {
		if cfg.Primes == primes.DefaultConfig() || cfg.Primes == (primes.Config{}) {
			s.table = primes.Default()
		} else {
			s.table = primes.New(cfg.Primes)
		}
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer(cfg.Render, s.logger)
	}

	registry := generator.DefaultRegistry()
	if len(cfg.Weights) > 0 {
		r, err := generator.RegistryFromWeights(cfg.Weights)
		if err != nil {
			return nil, fmt.Errorf("variant weights: %w", err)
		}
		registry = r
	}

	s.generator = generator.New(registry, s.table, s.src,
		generator.WithMaxAttempts(cfg.MaxAttempts),
		generator.WithSelection(cfg.Selection),
		generator.WithLogger(s.logger),
	)
	s.factors = newFactorCache(cfg.FactorCacheSize)
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() ServiceConfig { return s.config }

// Table returns the prime table in use.
func (s *Service) Table() *primes.Table { return s.table }

// ArchiveEnabled reports whether obfuscations are archived.
func (s *Service) ArchiveEnabled() bool { return s.archive != nil }

// Obfuscate generates, verifies and (when enabled) archives an expression
// for n of at most depth levels.
func (s *Service) Obfuscate(ctx context.Context, n *big.Int, depth int) (*Obfuscation, error) {
	if err := s.checkInput(n, depth); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Obfuscate",
		trace.WithAttributes(
			attribute.Int("obfuscator.depth", depth),
			attribute.Int("obfuscator.digits", primes.DecimalDigits(n)),
		),
	)
	defer span.End()

	tree, err := s.generate(ctx, n, depth)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.config.Verify {
		if err := verify.Check(tree, n); err != nil {
			telemetry.RecordError(span, err)
			s.logger.Error("Generated expression failed verification",
				slog.String("number", n.String()),
				slog.Int("depth", depth),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
	}

	obf := &Obfuscation{
		Number:    new(big.Int).Set(n),
		Depth:     depth,
		Tree:      tree,
		Text:      tree.Text(),
		TeX:       tree.TeX(),
		Nodes:     tree.Count(),
		Height:    tree.Depth(),
		Kinds:     kindNames(tree.KindCounts()),
		CreatedAt: time.Now().UTC(),
	}

	if s.archive != nil {
		rec, err := s.archive.Put(ctx, toRecord(obf))
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("archive expression: %w", err)
		}
		obf.ID = rec.ID
		span.SetAttributes(attribute.String("obfuscator.id", rec.ID))
	}

	telemetry.SetSpanOK(span)
	return obf, nil
}

// generate turns a builder's invariant panic into an error so one bad
// tree cannot take down a batch goroutine.
func (s *Service) generate(ctx context.Context, n *big.Int, depth int) (tree *expression.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, expression.ErrInvariantViolation) {
				tree, err = nil, e
				return
			}
			panic(r)
		}
	}()
	return s.generator.Generate(ctx, n, depth), nil
}

// ParseNumber parses untrusted decimal input for Obfuscate. Input with
// more significant digits than MaxDigits is rejected before conversion.
func (s *Service) ParseNumber(raw string) (*big.Int, error) {
	digits := significantDigits(raw)
	if digits < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, excerpt(raw))
	}
	if s.config.MaxDigits > 0 && digits > s.config.MaxDigits {
		return nil, fmt.Errorf("%w: %d digits, limit %d", ErrNumberTooLarge, digits, s.config.MaxDigits)
	}
	n, ok := primes.ParseNatural(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, excerpt(raw))
	}
	return n, nil
}

// significantDigits counts the digits of raw after surrounding space, an
// optional '+' and leading zeros are removed. A zero value counts one
// digit. Returns -1 when raw is not a plain run of decimal digits.
func significantDigits(raw string) int {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "+")
	if raw == "" {
		return -1
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return -1
		}
	}
	if trimmed := strings.TrimLeft(raw, "0"); trimmed != "" {
		return len(trimmed)
	}
	return 1
}

func excerpt(raw string) string {
	const maxExcerpt = 32
	if len(raw) > maxExcerpt {
		return raw[:maxExcerpt] + "..."
	}
	return raw
}

func (s *Service) checkInput(n *big.Int, depth int) error {
	if n == nil || n.Sign() < 0 {
		return ErrInvalidNumber
	}
	if depth < 0 || depth > s.config.MaxDepth {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrDepthOutOfRange, depth, s.config.MaxDepth)
	}
	if s.config.MaxDigits > 0 {
		if d := primes.DecimalDigits(n); d > s.config.MaxDigits {
			return fmt.Errorf("%w: %d digits, limit %d", ErrNumberTooLarge, d, s.config.MaxDigits)
		}
	}
	return nil
}

// ObfuscateBatch obfuscates every item with bounded parallelism. Results
// keep the order of items. The first failure cancels the rest.
func (s *Service) ObfuscateBatch(ctx context.Context, items []BatchItem) ([]*Obfuscation, error) {
	if len(items) > s.config.MaxBatch {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(items), s.config.MaxBatch)
	}
	for i, it := range items {
		if err := s.checkInput(it.Number, it.Depth); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	results := make([]*Obfuscation, len(items))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.config.Concurrency))

	for i, it := range items {
		g.Go(func() error {
			obf, err := s.Obfuscate(gCtx, it.Number, it.Depth)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = obf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Factor returns the decimal prime factors of raw, ascending. Malformed
// input yields an empty slice. Identical concurrent calls share one
// factorization and results are cached.
//
// Input longer than the table's digit ceiling gets the empty answer
// before it is parsed, cached or coalesced.
func (s *Service) Factor(ctx context.Context, raw string, unique bool) []string {
	if significantDigits(raw) > s.table.MaxDigits() {
		return []string{}
	}
	n, ok := primes.ParseNatural(raw)
	if !ok {
		return []string{}
	}

	key := n.String() + "|all"
	if unique {
		key = n.String() + "|unique"
	}
	if cached, ok := s.factors.get(key); ok {
		return cached
	}

	v, _, _ := s.flight.Do(key, func() (interface{}, error) {
		_, span := telemetry.StartSpan(ctx, tracerName, "Service.Factor",
			trace.WithAttributes(
				attribute.Int("obfuscator.digits", primes.DecimalDigits(n)),
				attribute.Bool("obfuscator.unique", unique),
			),
		)
		defer span.End()

		fs := s.table.Factors(n, unique)
		out := make([]string, len(fs))
		for i, f := range fs {
			out[i] = f.String()
		}
		s.factors.put(key, out)
		return out, nil
	})
	return cloneFactors(v.([]string))
}

// IsPrime reports whether raw is prime by the table's approximation.
// Malformed input is not prime.
func (s *Service) IsPrime(ctx context.Context, raw string) bool {
	if significantDigits(raw) > s.table.MaxDigits() {
		return false
	}
	n, ok := primes.ParseNatural(raw)
	if !ok {
		return false
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Service.IsPrime")
	defer span.End()
	return s.table.IsPrime(n)
}

// PrimeSummary describes the prime table.
func (s *Service) PrimeSummary() PrimeSummary {
	return PrimeSummary{
		Bound:     s.table.Bound(),
		Count:     s.table.Len(),
		Largest:   s.table.Largest(),
		MaxDigits: s.table.MaxDigits(),
	}
}

// Primes returns the first limit primes of the table (all when limit <= 0).
func (s *Service) Primes(limit int) []uint64 {
	if limit <= 0 || limit >= s.table.Len() {
		return s.table.All()
	}
	out := make([]uint64, 0, limit)
	s.table.Each(func(p uint64) bool {
		out = append(out, p)
		return len(out) < limit
	})
	return out
}

// Lookup returns an archived obfuscation.
func (s *Service) Lookup(ctx context.Context, id string) (archive.Record, error) {
	if s.archive == nil {
		return archive.Record{}, ErrArchiveDisabled
	}
	return s.archive.Get(ctx, id)
}

// Recent lists archived obfuscations, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]archive.Record, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.List(ctx, limit)
}

// RenderPNG typesets the TeX rendering of obf.
func (s *Service) RenderPNG(ctx context.Context, obf *Obfuscation) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrRenderUnavailable
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.RenderPNG")
	defer span.End()

	img, err := s.renderer.PNG(ctx, obf.TeX)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return img, nil
}

// Variants reports the registry weights. When raw is non-empty it must
// parse like Obfuscate input and the kinds able to represent it are
// listed in canonical order.
func (s *Service) Variants(raw string) (VariantReport, error) {
	reg := s.generator.Registry()
	report := VariantReport{Weights: reg.Weights(), PoolSize: reg.Size()}
	if raw == "" {
		return report, nil
	}
	n, err := s.ParseNumber(raw)
	if err != nil {
		return VariantReport{}, err
	}
	report.Eligible = []string{}
	for _, k := range s.generator.Eligible(n) {
		report.Eligible = append(report.Eligible, k.String())
	}
	return report, nil
}

func kindNames(counts map[expression.Kind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, c := range counts {
		out[k.String()] = c
	}
	return out
}

// ClampLegacy applies the bounds of the legacy image endpoint: a number
// outside [1, 1e9] or a depth outside [1, 8] collapses both to zero.
func ClampLegacy(n, d int64) (int64, int) {
	if n < 1 || n > legacyMaxNumber || d < 1 || d > legacyMaxDepth {
		return 0, 0
	}
	return n, int(d)
}

// ParseLegacyInt reads a query parameter the way the legacy image endpoint
// did: leading space and an optional sign, then the longest run of
// decimal digits. "12abc" is 12; anything without leading digits is 0.
// Values past the int64 range saturate.
func ParseLegacyInt(raw string) int64 {
	raw = strings.TrimLeft(raw, " \t\n\v\f\r")
	neg := false
	if raw != "" && (raw[0] == '+' || raw[0] == '-') {
		neg = raw[0] == '-'
		raw = raw[1:]
	}

	var v int64
	for i := 0; i < len(raw) && raw[i] >= '0' && raw[i] <= '9'; i++ {
		digit := int64(raw[i] - '0')
		if v > (math.MaxInt64-digit)/10 {
			v = math.MaxInt64
			break
		}
		v = v*10 + digit
	}
	if neg {
		return -v
	}
	return v
}

func toRecord(obf *Obfuscation) archive.Record {
	return archive.Record{
		Number:    obf.Number.String(),
		Depth:     obf.Depth,
		Text:      obf.Text,
		TeX:       obf.TeX,
		Nodes:     obf.Nodes,
		Height:    obf.Height,
		CreatedAt: obf.CreatedAt,
	}
}
