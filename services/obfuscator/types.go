// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obfuscator

import (
	"github.com/AleutianAI/obfuscator/services/obfuscator/archive"
	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
)

// DefaultDepth is used when a request omits the depth.
const DefaultDepth = 4

// Output formats of the expression field.
const (
	FormatText     = "text"
	FormatTeX      = "tex"
	FormatDocument = "document"
)

// GenerateRequest is the request for POST /v1/obfuscator/generate.
type GenerateRequest struct {
	// Number is the non-negative integer to obfuscate, in decimal.
	Number string `json:"number" binding:"required,numeric"`

	// Depth is the maximum tree height. Default: 4.
	Depth *int `json:"depth,omitempty" binding:"omitempty,gte=0,lte=64"`

	// Format selects the expression field: "text" (default), "tex" or
	// "document".
	Format string `json:"format,omitempty" binding:"omitempty,oneof=text tex document"`
}

// GenerateResponse is the response for POST /v1/obfuscator/generate.
type GenerateResponse struct {
	// ID is set when the expression was archived.
	ID string `json:"id,omitempty"`

	Number string `json:"number"`
	Depth  int    `json:"depth"`
	Format string `json:"format"`

	// Expression is the rendering selected by Format.
	Expression string `json:"expression"`

	Text   string           `json:"text"`
	TeX    string           `json:"tex"`
	Nodes  int              `json:"nodes"`
	Height int              `json:"height"`
	Kinds  map[string]int   `json:"kinds"`
	Tree   *expression.Node `json:"tree"`
}

// BatchRequest is the request for POST /v1/obfuscator/batch.
type BatchRequest struct {
	Items  []GenerateRequest `json:"items" binding:"required,min=1,dive"`
	Format string            `json:"format,omitempty" binding:"omitempty,oneof=text tex document"`
}

// BatchResponse is the response for POST /v1/obfuscator/batch.
type BatchResponse struct {
	Results []GenerateResponse `json:"results"`
}

// FactorRequest holds the query of GET /v1/obfuscator/factor.
type FactorRequest struct {
	N   string `form:"n" binding:"required"`
	All bool   `form:"all"`
}

// FactorResponse is the response for GET /v1/obfuscator/factor.
//
// Factors is empty for malformed input, 0, 1 and numbers above the digit
// ceiling.
type FactorResponse struct {
	Number  string   `json:"number"`
	Unique  bool     `json:"unique"`
	Factors []string `json:"factors"`
}

// PrimeRequest holds the query of GET /v1/obfuscator/prime.
type PrimeRequest struct {
	N string `form:"n" binding:"required"`
}

// PrimeResponse is the response for GET /v1/obfuscator/prime.
type PrimeResponse struct {
	Number string `json:"number"`
	Prime  bool   `json:"prime"`
}

// PrimesRequest holds the query of GET /v1/obfuscator/primes.
type PrimesRequest struct {
	// Limit returns the first Limit primes. 0 returns none.
	Limit int `form:"limit" binding:"omitempty,gte=0,lte=100000"`
}

// PrimesResponse is the response for GET /v1/obfuscator/primes.
type PrimesResponse struct {
	Bound     uint64   `json:"bound"`
	Count     int      `json:"count"`
	Largest   uint64   `json:"largest"`
	MaxDigits int      `json:"max_digits"`
	Primes    []uint64 `json:"primes,omitempty"`
}

// VariantsRequest holds the query of GET /v1/obfuscator/variants.
type VariantsRequest struct {
	// N optionally selects a number to test eligibility against.
	N string `form:"n"`
}

// VariantsResponse is the response for GET /v1/obfuscator/variants.
type VariantsResponse struct {
	Weights  map[string]int `json:"weights"`
	PoolSize int            `json:"pool_size"`
	Number   string         `json:"number,omitempty"`
	Eligible []string       `json:"eligible,omitempty"`
}

// ExpressionsRequest holds the query of GET /v1/obfuscator/expressions.
type ExpressionsRequest struct {
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=1000"`
}

// ExpressionsResponse is the response for GET /v1/obfuscator/expressions.
type ExpressionsResponse struct {
	Expressions []archive.Record `json:"expressions"`
}

// HealthResponse is the response for GET /v1/obfuscator/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/obfuscator/ready.
type ReadyResponse struct {
	Ready   bool `json:"ready"`
	Primes  int  `json:"primes"`
	Archive bool `json:"archive"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
