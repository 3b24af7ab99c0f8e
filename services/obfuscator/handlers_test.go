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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/obfuscator/services/obfuscator/generator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/render"
	"github.com/AleutianAI/obfuscator/services/obfuscator/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service) *gin.Engine {
	return NewRouter(svc, RouterConfig{})
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func intPtr(v int) *int { return &v }

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandlers_HandleReady(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ReadyResponse](t, w)
	assert.True(t, resp.Ready)
	assert.Equal(t, 78498, resp.Primes)
	assert.False(t, resp.Archive)
}

func TestHandlers_HandleGenerate(t *testing.T) {
	svc := newTestService(t, WithSource(generator.NewScriptedSource(6)))
	router := setupTestRouter(svc)

	tests := []struct {
		format string
		want   string
	}{
		{"", "sqrt(100)"},
		{"text", "sqrt(100)"},
		{"tex", `\sqrt{100}`},
		{"document", render.Document(`\sqrt{100}`)},
	}
	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate",
				GenerateRequest{Number: "10", Depth: intPtr(1), Format: tt.format})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			resp := decode[GenerateResponse](t, w)
			assert.Equal(t, tt.want, resp.Expression)
			assert.Equal(t, "10", resp.Number)
			assert.Equal(t, 1, resp.Depth)
			assert.Equal(t, "sqrt(100)", resp.Text)
			assert.Equal(t, `\sqrt{100}`, resp.TeX)
			require.NotNil(t, resp.Tree)
			assert.Equal(t, "sqrt(100)", resp.Tree.Text())
		})
	}
}

func TestHandlers_HandleGenerate_DefaultDepth(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate",
		map[string]any{"number": "600851475143"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[GenerateResponse](t, w)
	assert.Equal(t, DefaultDepth, resp.Depth)
	assert.LessOrEqual(t, resp.Height, DefaultDepth)
	v, err := verify.Evaluate(resp.Text)
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.InDelta(t, 600851475143.0, f, 1e-3)
}

func TestHandlers_HandleGenerate_BadRequests(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	tests := []struct {
		name string
		body any
		code string
	}{
		{"missing number", map[string]any{"depth": 2}, "INVALID_REQUEST"},
		{"non numeric", map[string]any{"number": "abc"}, "INVALID_REQUEST"},
		{"bad format", map[string]any{"number": "5", "format": "png"}, "INVALID_REQUEST"},
		{"negative number", map[string]any{"number": "-5"}, "INVALID_NUMBER"},
		{"decimal number", map[string]any{"number": "33.2"}, "INVALID_NUMBER"},
		{"depth too large", map[string]any{"number": "5", "depth": 9}, "DEPTH_OUT_OF_RANGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/obfuscator/generate", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_RequestID(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/obfuscator/factor?n=12", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor?n=12", nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestHandlers_HandleBatch(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	body := BatchRequest{
		Format: "tex",
		Items: []GenerateRequest{
			{Number: "34", Depth: intPtr(3)},
			{Number: "0", Depth: intPtr(2)},
			{Number: "1000", Depth: intPtr(0), Format: "text"},
		},
	}
	w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "34", resp.Results[0].Number)
	assert.Equal(t, resp.Results[0].TeX, resp.Results[0].Expression)
	assert.Equal(t, "0", resp.Results[1].Number)
	assert.Equal(t, "1000", resp.Results[2].Expression)

	w = doRequest(t, router, http.MethodPost, "/v1/obfuscator/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	oversized := BatchRequest{}
	for i := 0; i < 65; i++ {
		oversized.Items = append(oversized.Items, GenerateRequest{Number: fmt.Sprint(i)})
	}
	w = doRequest(t, router, http.MethodPost, "/v1/obfuscator/batch", oversized)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BATCH_TOO_LARGE", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_Expressions(t *testing.T) {
	svc := newTestService(t, WithArchive(memoryArchive(t)))
	router := setupTestRouter(svc)

	w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate",
		GenerateRequest{Number: "34", Depth: intPtr(2)})
	require.Equal(t, http.StatusOK, w.Code)
	gen := decode[GenerateResponse](t, w)
	require.NotEmpty(t, gen.ID)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/expressions/"+gen.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, gen.Text, rec["text"])
	assert.Equal(t, "34", rec["number"])

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/expressions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ExpressionsResponse](t, w)
	require.Len(t, list.Expressions, 1)
	assert.Equal(t, gen.ID, list.Expressions[0].ID)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/expressions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Expressions_ArchiveDisabled(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/expressions/abc", nil)
	require.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "ARCHIVE_DISABLED", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleFactor(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor?n=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[FactorResponse](t, w)
	assert.True(t, resp.Unique)
	assert.Equal(t, []string{"2", "5"}, resp.Factors)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor?n=1000&all=true", nil)
	resp = decode[FactorResponse](t, w)
	assert.False(t, resp.Unique)
	assert.Equal(t, []string{"2", "2", "2", "5", "5", "5"}, resp.Factors)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor?n=33.2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[FactorResponse](t, w).Factors)
	assert.Contains(t, w.Body.String(), `"factors":[]`)

	for _, n := range []string{"0", "1", strings.Repeat("7", 100)} {
		w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor?n="+n, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"factors":[]`, "n=%s", n)
	}

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/factor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_HandleGenerate_NumberTooLarge(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	for _, digits := range []int{41, 100_000} {
		w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate",
			GenerateRequest{Number: strings.Repeat("9", digits), Depth: intPtr(8)})
		require.Equal(t, http.StatusBadRequest, w.Code, "%d digits", digits)
		assert.Equal(t, "NUMBER_TOO_LARGE", decode[ErrorResponse](t, w).Code)
	}

	w := doRequest(t, router, http.MethodPost, "/v1/obfuscator/generate",
		GenerateRequest{Number: strings.Repeat("9", 40), Depth: intPtr(3)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	batch := BatchRequest{Items: []GenerateRequest{{Number: "5"}, {Number: strings.Repeat("1", 41)}}}
	w = doRequest(t, router, http.MethodPost, "/v1/obfuscator/batch", batch)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NUMBER_TOO_LARGE", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleVariants(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/variants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[VariantsResponse](t, w)
	assert.Equal(t, generator.DefaultWeights(), resp.Weights)
	assert.Equal(t, 7, resp.PoolSize)
	assert.Nil(t, resp.Eligible)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/variants?n=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[VariantsResponse](t, w)
	assert.Equal(t, "2", resp.Number)
	assert.Equal(t, []string{"subtraction", "division", "square_root"}, resp.Eligible)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/variants?n=x1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_NUMBER", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandlePrime(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/prime?n=8492569", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[PrimeResponse](t, w).Prime)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/prime?n=1000000000000000", nil)
	assert.False(t, decode[PrimeResponse](t, w).Prime)
}

func TestHandlers_HandlePrimes(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/primes?limit=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[PrimesResponse](t, w)
	assert.Equal(t, 78498, resp.Count)
	assert.Equal(t, uint64(999983), resp.Largest)
	assert.Equal(t, []uint64{2, 3, 5, 7}, resp.Primes)

	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/primes", nil)
	assert.Empty(t, decode[PrimesResponse](t, w).Primes)
}

func TestHandlers_HandlePNG(t *testing.T) {
	fr := &fakeRenderer{}
	svc := newTestService(t, WithRenderer(fr))
	router := setupTestRouter(svc)

	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/png?n=34&d=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "inline; filename=obfuscated.png", w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	for _, q := range []string{"n=0&d=3", "n=34&d=9", "n=2000000000&d=2", "n=abc&d=x", ""} {
		fr.fragments = nil
		w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/png?"+q, nil)
		require.Equal(t, http.StatusOK, w.Code, q)
		assert.Equal(t, []string{"0"}, fr.fragments, "query %q must render zero", q)
	}

	fr.fragments = nil
	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/png?n=7xyz&d=1z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fr.fragments, 1)
	v, err := verify.EvaluateTeX(fr.fragments[0])
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.InDelta(t, 7.0, f, verify.Tolerance, "leading digits select n=7")

	fr.err = render.ErrToolMissing
	w = doRequest(t, router, http.MethodGet, "/v1/obfuscator/png?n=5&d=1", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "RENDER_UNAVAILABLE", decode[ErrorResponse](t, w).Code)
}

func TestRouter_RateLimit(t *testing.T) {
	router := NewRouter(newTestService(t), RouterConfig{RateLimit: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(t, router, http.MethodGet, "/v1/obfuscator/health", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	router := NewRouter(newTestService(t), RouterConfig{ServiceName: "obfuscator-test", Metrics: metrics})

	w := doRequest(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestErrorStatus_Default(t *testing.T) {
	status, code := errorStatus(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)
}
