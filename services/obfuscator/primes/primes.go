// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package primes maintains a table of precomputed primes and answers
// factorization and primality queries against it.
//
// The table is built once with a Sieve of Eratosthenes and is immutable
// afterwards, so a single *Table can be shared by any number of goroutines
// without locking.
//
// # Accuracy
//
// This is not a cryptographic factorizer. Factorization is trial division by
// the table's primes only; whatever is left once the table is exhausted is
// returned as a final pseudo-factor even if it is composite. Likewise,
// IsPrime reports true for a number at or above the table bound when no
// table prime divides it, so numbers whose factors all exceed the bound are
// misreported as prime.
//
// # Input Bounds
//
// Inputs with more decimal digits than Config.MaxDigits are not examined at
// all: Factors returns an empty slice and IsPrime returns false. Malformed
// input never produces an error, only those sentinels.
package primes

import (
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBound is the largest candidate examined by the default sieve.
	DefaultBound uint64 = 1_000_000

	// DefaultMaxDigits is the digit-count ceiling for factorization and
	// primality work.
	DefaultMaxDigits = 40
)

var big2 = big.NewInt(2)

// Config configures a prime table.
type Config struct {
	// Bound is the sieve limit; every prime <= Bound is stored.
	// Default: 1,000,000
	Bound uint64 `yaml:"bound" validate:"gte=2,lte=1000000000"`

	// MaxDigits is the largest input, in decimal digits, that Factors and
	// IsPrime will look at.
	// Default: 40
	MaxDigits int `yaml:"max_digits" validate:"gte=1,lte=10000"`
}

// DefaultConfig returns the configuration used by Default.
func DefaultConfig() Config {
	return Config{
		Bound:     DefaultBound,
		MaxDigits: DefaultMaxDigits,
	}
}

// Table is an ascending, duplicate-free list of every prime up to a bound.
//
// Thread Safety: Table is never mutated after New returns and is safe for
// concurrent use.
type Table struct {
	primes    []uint64
	bound     uint64
	maxDigits int
	maxBits   int
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the process-wide table, building it on first use.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = New(DefaultConfig())
	})
	return defaultTable
}

// New sieves all primes up to cfg.Bound and returns the resulting table.
//
// Zero fields in cfg fall back to DefaultConfig values. The sieve is the
// expensive part of this package; build a table once and share it.
func New(cfg Config) *Table {
	def := DefaultConfig()
	if cfg.Bound == 0 {
		cfg.Bound = def.Bound
	}
	if cfg.MaxDigits <= 0 {
		cfg.MaxDigits = def.MaxDigits
	}

	start := time.Now()
	ps := Build(cfg.Bound)
	elapsed := time.Since(start)
	recordSieveBuild(elapsed, len(ps))

	slog.Debug("prime table built",
		slog.Uint64("bound", cfg.Bound),
		slog.Int("primes", len(ps)),
		slog.Duration("duration", elapsed),
	)

	return &Table{
		primes:    ps,
		bound:     cfg.Bound,
		maxDigits: cfg.MaxDigits,
		// log2(10) bits per digit, plus one so the cheap bit-length check
		// never rejects a number that is actually within the ceiling.
		maxBits: int(math.Ceil(float64(cfg.MaxDigits)*math.Log2(10))) + 1,
	}
}

// Build returns every prime <= bound in ascending order.
//
// Only odd candidates are sieved; 2 is emitted directly. Multiples are
// struck only for primes <= sqrt(bound) since every composite <= bound has
// a factor no larger than that.
func Build(bound uint64) []uint64 {
	if bound < 2 {
		return []uint64{}
	}

	out := make([]uint64, 0, estimateCount(bound))
	out = append(out, 2)

	// composite[i] marks the odd number 2i+1.
	size := (bound-1)/2 + 1
	composite := make([]bool, size)
	limit := isqrt(bound)

	for i := uint64(1); i < size; i++ {
		if composite[i] {
			continue
		}
		p := 2*i + 1
		out = append(out, p)
		if p > limit {
			continue
		}
		for j := p * p / 2; j < size; j += p {
			composite[j] = true
		}
	}
	return out
}

// Bound returns the sieve limit the table was built with.
func (t *Table) Bound() uint64 { return t.bound }

// MaxDigits returns the digit-count ceiling.
func (t *Table) MaxDigits() int { return t.maxDigits }

// Len returns the number of primes in the table.
func (t *Table) Len() int { return len(t.primes) }

// Largest returns the largest prime in the table, or 0 if it is empty.
func (t *Table) Largest() uint64 {
	if len(t.primes) == 0 {
		return 0
	}
	return t.primes[len(t.primes)-1]
}

// All returns a copy of the table.
func (t *Table) All() []uint64 {
	out := make([]uint64, len(t.primes))
	copy(out, t.primes)
	return out
}

// Each calls fn for every prime in ascending order until fn returns false.
func (t *Table) Each(fn func(p uint64) bool) {
	for _, p := range t.primes {
		if !fn(p) {
			return
		}
	}
}

// Contains reports whether p is in the table, by binary search.
func (t *Table) Contains(p uint64) bool {
	i := sort.Search(len(t.primes), func(i int) bool { return t.primes[i] >= p })
	return i < len(t.primes) && t.primes[i] == p
}

// IsPrime reports whether n is prime as far as the table can tell.
//
// Below the bound the answer is exact (table membership). At or above the
// bound n is trial-divided by every table prime up to sqrt(n); if none
// divides, n is reported prime even though it may be a product of primes
// larger than the bound.
//
// Returns false for nil, n < 2 and n beyond the digit ceiling.
func (t *Table) IsPrime(n *big.Int) bool {
	if !t.admissible(n) {
		recordPrimality(pathRejected)
		return false
	}
	if n.IsUint64() {
		v := n.Uint64()
		if v < t.bound {
			recordPrimality(pathTable)
			return t.Contains(v)
		}
		recordPrimality(pathTrial)
		return t.trialUint64(v)
	}
	recordPrimality(pathTrial)
	return t.trialBig(n)
}

// Factors returns the prime factors of n in ascending order.
//
// With uniqueOnly each prime appears once; otherwise it appears with its
// multiplicity, so the product of the result equals n. If something greater
// than 1 remains after every usable table prime has been tried, that
// remainder is appended as the last element even if it is composite.
//
// Returns an empty, non-nil slice for nil, n < 2 and n beyond the digit
// ceiling.
func (t *Table) Factors(n *big.Int, uniqueOnly bool) []*big.Int {
	if !t.admissible(n) {
		recordFactorization(outcomeRejected)
		return []*big.Int{}
	}

	if n.IsUint64() {
		fs, gaveUp := t.factorUint64(n.Uint64(), uniqueOnly)
		out := make([]*big.Int, len(fs))
		for i, f := range fs {
			out[i] = new(big.Int).SetUint64(f)
		}
		recordFactorization(outcomeFor(gaveUp))
		return out
	}

	out, gaveUp := t.factorBig(n, uniqueOnly)
	recordFactorization(outcomeFor(gaveUp))
	return out
}

// factorUint64 reports gaveUp when the trailing remainder exceeds the
// table bound, i.e. it was never proven prime.
func (t *Table) factorUint64(rem uint64, uniqueOnly bool) (fs []uint64, gaveUp bool) {
	fs = make([]uint64, 0, 8)
	for _, p := range t.primes {
		if p > rem/p {
			break
		}
		if rem%p != 0 {
			continue
		}
		fs = append(fs, p)
		rem /= p
		for rem%p == 0 {
			if !uniqueOnly {
				fs = append(fs, p)
			}
			rem /= p
		}
	}
	if rem > 1 {
		fs = append(fs, rem)
		gaveUp = rem > t.Largest() && !t.sqrtCovered(rem)
	}
	return fs, gaveUp
}

func (t *Table) factorBig(n *big.Int, uniqueOnly bool) ([]*big.Int, bool) {
	rem := new(big.Int).Set(n)
	out := make([]*big.Int, 0, 8)
	pb := new(big.Int)
	sq := new(big.Int)
	q := new(big.Int)
	r := new(big.Int)

	for _, p := range t.primes {
		pb.SetUint64(p)
		if sq.Mul(pb, pb).Cmp(rem) > 0 {
			break
		}
		if q.QuoRem(rem, pb, r); r.Sign() != 0 {
			continue
		}
		out = append(out, new(big.Int).Set(pb))
		rem.Set(q)
		for {
			q.QuoRem(rem, pb, r)
			if r.Sign() != 0 {
				break
			}
			if !uniqueOnly {
				out = append(out, new(big.Int).Set(pb))
			}
			rem.Set(q)
		}
		// The remainder may have dropped into machine range.
		if rem.IsUint64() {
			tail, gaveUp := t.factorUint64Above(rem.Uint64(), p, uniqueOnly)
			for _, f := range tail {
				out = append(out, new(big.Int).SetUint64(f))
			}
			return out, gaveUp
		}
	}

	gaveUp := false
	if rem.Cmp(big.NewInt(1)) > 0 {
		out = append(out, rem)
		gaveUp = true
	}
	return out, gaveUp
}

// factorUint64Above continues a factorization with the primes strictly
// greater than after.
func (t *Table) factorUint64Above(rem, after uint64, uniqueOnly bool) ([]uint64, bool) {
	start := sort.Search(len(t.primes), func(i int) bool { return t.primes[i] > after })
	sub := &Table{primes: t.primes[start:], bound: t.bound}
	fs, _ := sub.factorUint64(rem, uniqueOnly)
	gaveUp := false
	if len(fs) > 0 {
		last := fs[len(fs)-1]
		gaveUp = last > t.Largest() && !t.sqrtCovered(last)
	}
	return fs, gaveUp
}

// sqrtCovered reports whether the table reaches sqrt(v), in which case a
// remainder v that survived trial division is a proven prime.
func (t *Table) sqrtCovered(v uint64) bool {
	l := t.Largest()
	return l != 0 && l >= isqrt(v)
}

func (t *Table) trialUint64(v uint64) bool {
	for _, p := range t.primes {
		if p > v/p {
			break
		}
		if v%p == 0 {
			return false
		}
	}
	return true
}

func (t *Table) trialBig(n *big.Int) bool {
	pb := new(big.Int)
	sq := new(big.Int)
	r := new(big.Int)
	for _, p := range t.primes {
		pb.SetUint64(p)
		if sq.Mul(pb, pb).Cmp(n) > 0 {
			break
		}
		if r.Mod(n, pb).Sign() == 0 {
			return false
		}
	}
	return true
}

// admissible filters out nil, values below 2 and values over the digit
// ceiling.
func (t *Table) admissible(n *big.Int) bool {
	if n == nil || n.Cmp(big2) < 0 {
		return false
	}
	if n.BitLen() > t.maxBits {
		return false
	}
	return DecimalDigits(n) <= t.maxDigits
}

// DecimalDigits returns the number of decimal digits in |n|. Zero has one
// digit.
func DecimalDigits(n *big.Int) int {
	if n == nil {
		return 0
	}
	s := n.Text(10)
	if strings.HasPrefix(s, "-") {
		return len(s) - 1
	}
	return len(s)
}

// ParseNatural parses a decimal, non-negative integer.
//
// It is the boundary for untrusted textual input: anything that is not a
// plain run of decimal digits (an optional leading '+' is allowed), such as
// "33.2", "-3", "1e9" or "", yields ok == false rather than an error.
func ParseNatural(s string) (n *big.Int, ok bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return nil, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	n, ok = new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return n, true
}

func isqrt(v uint64) uint64 {
	r := uint64(math.Sqrt(float64(v)))
	if r > math.MaxUint32 {
		r = math.MaxUint32
	}
	for r*r > v {
		r--
	}
	for r < math.MaxUint32 && (r+1)*(r+1) <= v {
		r++
	}
	return r
}

// estimateCount over-approximates pi(bound) so Build rarely reallocates.
func estimateCount(bound uint64) int {
	if bound < 17 {
		return 8
	}
	f := float64(bound)
	return int(1.26*f/math.Log(f)) + 1
}
