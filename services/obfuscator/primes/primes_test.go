// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package primes

import (
	"math/big"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const euler3Input = 600851475143

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad literal %q", s)
	return n
}

func texts(ns []*big.Int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.String()
	}
	return out
}

func naivePrime(v uint64) bool {
	if v < 2 {
		return false
	}
	for d := uint64(2); d*d <= v; d++ {
		if v%d == 0 {
			return false
		}
	}
	return true
}

// =============================================================================
// Sieve
// =============================================================================

func TestBuild_OneMillion(t *testing.T) {
	ps := Build(1_000_000)

	require.Len(t, ps, 78498)
	assert.Equal(t, uint64(2), ps[0])
	assert.Equal(t, uint64(3), ps[1])
	assert.Equal(t, uint64(999983), ps[len(ps)-1])
}

func TestBuild_SmallBounds(t *testing.T) {
	tests := []struct {
		bound uint64
		want  []uint64
	}{
		{0, []uint64{}},
		{1, []uint64{}},
		{2, []uint64{2}},
		{3, []uint64{2, 3}},
		{4, []uint64{2, 3}},
		{9, []uint64{2, 3, 5, 7}},
		{30, []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}},
	}

	for _, tt := range tests {
		got := Build(tt.bound)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Build(%d) mismatch (-want +got):\n%s", tt.bound, diff)
		}
	}
}

func TestBuild_MatchesNaive(t *testing.T) {
	const bound = 5000
	var want []uint64
	for v := uint64(0); v <= bound; v++ {
		if naivePrime(v) {
			want = append(want, v)
		}
	}
	assert.Equal(t, want, Build(bound))
}

func TestBuild_StrictlyIncreasing(t *testing.T) {
	ps := Build(200_000)
	for i := 1; i < len(ps); i++ {
		require.Less(t, ps[i-1], ps[i], "index %d", i)
	}
}

func TestDefault_LargestKnownPrime(t *testing.T) {
	tab := Default()
	assert.Equal(t, uint64(999983), tab.Largest())
	assert.Equal(t, 78498, tab.Len())
	assert.Equal(t, DefaultBound, tab.Bound())
	assert.Same(t, tab, Default())
}

func TestTable_AllReturnsCopy(t *testing.T) {
	tab := New(Config{Bound: 100})
	all := tab.All()
	require.Len(t, all, 25)
	all[0] = 4
	assert.Equal(t, uint64(2), tab.All()[0])
}

func TestTable_Each(t *testing.T) {
	tab := New(Config{Bound: 100})

	var seen []uint64
	tab.Each(func(p uint64) bool {
		seen = append(seen, p)
		return p < 11
	})
	assert.Equal(t, []uint64{2, 3, 5, 7, 11}, seen)
}

// =============================================================================
// Membership
// =============================================================================

func TestTable_ContainsAgreesWithLinearScan(t *testing.T) {
	tab := New(Config{Bound: 50_000})
	all := tab.All()

	linear := func(v uint64) bool {
		for _, p := range all {
			if p == v {
				return true
			}
		}
		return false
	}

	for _, p := range all {
		require.True(t, tab.Contains(p), "prime %d", p)
	}
	for v := uint64(0); v <= 2_000; v++ {
		require.Equal(t, linear(v), tab.Contains(v), "value %d", v)
	}
	assert.False(t, tab.Contains(50_001))
}

// =============================================================================
// Factorization
// =============================================================================

func TestFactors_Known(t *testing.T) {
	tab := Default()

	tests := []struct {
		name   string
		n      *big.Int
		unique bool
		want   []string
	}{
		{"1000 unique", big.NewInt(1000), true, []string{"2", "5"}},
		{"1000 with multiplicity", big.NewInt(1000), false, []string{"2", "2", "2", "5", "5", "5"}},
		{"euler 3", big.NewInt(euler3Input), true, []string{"71", "839", "1471", "6857"}},
		{"prime unique", big.NewInt(839), true, []string{"839"}},
		{"prime with multiplicity", big.NewInt(839), false, []string{"839"}},
		{"7000 unique", big.NewInt(7000), true, []string{"2", "5", "7"}},
		{"7000 with multiplicity", big.NewInt(7000), false, []string{"2", "2", "2", "5", "5", "5", "7"}},
		{"two", big.NewInt(2), false, []string{"2"}},
		{"large prime power", new(big.Int).Exp(big.NewInt(999983), big.NewInt(4), nil), false,
			[]string{"999983", "999983", "999983", "999983"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(tab.Factors(tt.n, tt.unique))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Factors(%s, %v) mismatch (-want +got):\n%s", tt.n, tt.unique, diff)
			}
		})
	}
}

func TestFactors_EdgeCases(t *testing.T) {
	tab := Default()

	for _, unique := range []bool{true, false} {
		for _, n := range []*big.Int{nil, big.NewInt(0), big.NewInt(1), big.NewInt(-3)} {
			got := tab.Factors(n, unique)
			require.NotNil(t, got)
			assert.Empty(t, got, "Factors(%v, %v)", n, unique)
		}
	}

	_, ok := ParseNatural("33.2")
	assert.False(t, ok, "non-integer input must not parse")
}

func TestFactors_GivesUpAboveBound(t *testing.T) {
	// The real factorization ends in 216273151 * 2929595521; both exceed
	// the table so their product is returned as a single pseudo-factor.
	n := mustBig(t, "133333333333333333333333333333333")

	got := texts(Default().Factors(n, true))
	want := []string{"7", "47", "179", "12713", "281081", "633592854482156671"}
	assert.Equal(t, want, got)
}

func TestFactors_DigitCeiling(t *testing.T) {
	tab := New(Config{Bound: 1000, MaxDigits: 10})

	assert.NotEmpty(t, tab.Factors(big.NewInt(9_999_999_999), true))
	assert.Empty(t, tab.Factors(big.NewInt(10_000_000_000), true))

	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(500), nil)
	assert.Empty(t, Default().Factors(huge, false))
	assert.False(t, Default().IsPrime(huge))
}

func TestFactors_ProductProperty(t *testing.T) {
	tab := Default()
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		v := rng.Int64N(1_000_000_000_000) + 2
		n := big.NewInt(v)

		all := tab.Factors(n, false)
		product := big.NewInt(1)
		for _, f := range all {
			product.Mul(product, f)
		}
		require.Zero(t, product.Cmp(n), "product of factors of %d is %s", v, product)

		var distinct []string
		for _, f := range all {
			s := f.String()
			if len(distinct) == 0 || distinct[len(distinct)-1] != s {
				distinct = append(distinct, s)
			}
		}
		require.Equal(t, distinct, texts(tab.Factors(n, true)), "unique factors of %d", v)
	}
}

func TestFactors_BigPath(t *testing.T) {
	// 2^70 * 3 * 5 does not fit in a uint64.
	n := new(big.Int).Lsh(big.NewInt(15), 70)

	unique := texts(Default().Factors(n, true))
	assert.Equal(t, []string{"2", "3", "5"}, unique)

	all := Default().Factors(n, false)
	assert.Len(t, all, 72)
}

// =============================================================================
// Primality
// =============================================================================

func TestIsPrime(t *testing.T) {
	tab := Default()

	primes := []int64{2, 3, 5, 7, 11, 13, 839, 999983, 8492569, 1_000_003}
	for _, p := range primes {
		assert.True(t, tab.IsPrime(big.NewInt(p)), "%d is supposed to be prime", p)
	}

	nonPrimes := []*big.Int{
		nil,
		big.NewInt(-5), big.NewInt(-1), big.NewInt(0), big.NewInt(1),
		big.NewInt(4), big.NewInt(6), big.NewInt(8), big.NewInt(100),
		big.NewInt(1_000_000), big.NewInt(1_000_005), big.NewInt(euler3Input),
		big.NewInt(1_000_000_000_000_000),
		new(big.Int).Exp(big.NewInt(999983), big.NewInt(3), nil),
		new(big.Int).Lsh(big.NewInt(3), 80),
	}
	for _, n := range nonPrimes {
		assert.False(t, tab.IsPrime(n), "%v is not supposed to be prime", n)
	}
}

func TestIsPrime_AgreesWithNaiveBelowBound(t *testing.T) {
	tab := New(Config{Bound: 10_000})
	for v := int64(0); v < 10_000; v++ {
		require.Equal(t, naivePrime(uint64(v)), tab.IsPrime(big.NewInt(v)), "value %d", v)
	}
}

func TestIsPrime_ApproximationAboveBound(t *testing.T) {
	// 1009 * 1013 has no factor inside a table bounded at 1000.
	tab := New(Config{Bound: 1000})
	assert.True(t, tab.IsPrime(big.NewInt(1009*1013)))
	assert.False(t, Default().IsPrime(big.NewInt(1009*1013)))
}

func TestTable_ConcurrentReaders(t *testing.T) {
	tab := Default()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for i := 0; i < 200; i++ {
				n := big.NewInt(rng.Int64N(10_000_000) + 2)
				_ = tab.IsPrime(n)
				_ = tab.Factors(n, i%2 == 0)
			}
		}(uint64(g))
	}
	wg.Wait()
}

// =============================================================================
// Parsing
// =============================================================================

func TestParseNatural(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0", "0", true},
		{"42", "42", true},
		{" +17 ", "17", true},
		{"600851475143", "600851475143", true},
		{"133333333333333333333333333333333", "133333333333333333333333333333333", true},
		{"", "", false},
		{"-3", "", false},
		{"33.2", "", false},
		{"1e9", "", false},
		{"0x10", "", false},
		{"abc", "", false},
	}

	for _, tt := range tests {
		n, ok := ParseNatural(tt.in)
		require.Equal(t, tt.ok, ok, "ParseNatural(%q)", tt.in)
		if ok {
			assert.Equal(t, tt.want, n.String())
		} else {
			assert.Nil(t, n)
		}
	}
}

func TestDecimalDigits(t *testing.T) {
	assert.Equal(t, 0, DecimalDigits(nil))
	assert.Equal(t, 1, DecimalDigits(big.NewInt(0)))
	assert.Equal(t, 3, DecimalDigits(big.NewInt(-123)))
	assert.Equal(t, 12, DecimalDigits(big.NewInt(euler3Input)))
}

func BenchmarkBuild_TenMillion(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Build(10_000_000)
	}
}
