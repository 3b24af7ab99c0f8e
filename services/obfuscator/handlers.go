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
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/obfuscator/services/obfuscator/archive"
	"github.com/AleutianAI/obfuscator/services/obfuscator/expression"
	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
	"github.com/AleutianAI/obfuscator/services/obfuscator/render"
)

// Handlers contains the HTTP handlers for the obfuscator service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleGenerate handles POST /v1/obfuscator/generate.
//
// Response:
//
//	200 OK: GenerateResponse
//	400 Bad Request: malformed body, bad number, depth out of range
//	500 Internal Server Error: generated tree failed verification
func (h *Handlers) HandleGenerate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGenerate")

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	n, depth, err := h.parseItem(req)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	obf, err := h.svc.Obfuscate(c.Request.Context(), n, depth)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	logger.Info("Expression generated",
		"digits", primes.DecimalDigits(n),
		"depth", depth,
		"nodes", obf.Nodes,
		"id", obf.ID)

	c.JSON(http.StatusOK, toResponse(obf, req.Format))
}

// HandleBatch handles POST /v1/obfuscator/batch.
//
// Response:
//
//	200 OK: BatchResponse, results in request order
//	400 Bad Request: malformed body, any bad item, batch too large
func (h *Handlers) HandleBatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBatch")

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	items := make([]BatchItem, len(req.Items))
	for i, it := range req.Items {
		n, depth, err := h.parseItem(it)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		items[i] = BatchItem{Number: n, Depth: depth}
	}

	results, err := h.svc.ObfuscateBatch(c.Request.Context(), items)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	resp := BatchResponse{Results: make([]GenerateResponse, len(results))}
	for i, obf := range results {
		format := req.Items[i].Format
		if format == "" {
			format = req.Format
		}
		resp.Results[i] = toResponse(obf, format)
	}

	logger.Info("Batch generated", "items", len(results))
	c.JSON(http.StatusOK, resp)
}

// HandleGetExpression handles GET /v1/obfuscator/expressions/:id.
func (h *Handlers) HandleGetExpression(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetExpression")

	rec, err := h.svc.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleListExpressions handles GET /v1/obfuscator/expressions.
func (h *Handlers) HandleListExpressions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListExpressions")

	req := ExpressionsRequest{Limit: 50}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	recs, err := h.svc.Recent(c.Request.Context(), req.Limit)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ExpressionsResponse{Expressions: recs})
}

// HandleFactor handles GET /v1/obfuscator/factor?n=...&all=true.
//
// Malformed n is not an error: the response carries no factors.
func (h *Handlers) HandleFactor(c *gin.Context) {
	getOrCreateRequestID(c)

	var req FactorRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Query parameter 'n' is required",
			Code:  "MISSING_N",
		})
		return
	}

	unique := !req.All
	c.JSON(http.StatusOK, FactorResponse{
		Number:  req.N,
		Unique:  unique,
		Factors: h.svc.Factor(c.Request.Context(), req.N, unique),
	})
}

// HandlePrime handles GET /v1/obfuscator/prime?n=....
func (h *Handlers) HandlePrime(c *gin.Context) {
	getOrCreateRequestID(c)

	var req PrimeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Query parameter 'n' is required",
			Code:  "MISSING_N",
		})
		return
	}

	c.JSON(http.StatusOK, PrimeResponse{
		Number: req.N,
		Prime:  h.svc.IsPrime(c.Request.Context(), req.N),
	})
}

// HandlePrimes handles GET /v1/obfuscator/primes?limit=....
func (h *Handlers) HandlePrimes(c *gin.Context) {
	getOrCreateRequestID(c)

	var req PrimesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sum := h.svc.PrimeSummary()
	resp := PrimesResponse{
		Bound:     sum.Bound,
		Count:     sum.Count,
		Largest:   sum.Largest,
		MaxDigits: sum.MaxDigits,
	}
	if req.Limit > 0 {
		resp.Primes = h.svc.Primes(req.Limit)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleVariants handles GET /v1/obfuscator/variants?n=....
//
// Response:
//
//	200 OK: VariantsResponse
//	400 Bad Request: n is malformed or too large
func (h *Handlers) HandleVariants(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleVariants")

	var req VariantsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report, err := h.svc.Variants(req.N)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, VariantsResponse{
		Weights:  report.Weights,
		PoolSize: report.PoolSize,
		Number:   req.N,
		Eligible: report.Eligible,
	})
}

// HandlePNG handles GET /v1/obfuscator/png?n=...&d=....
//
// Parameters are read by their leading digits ("12abc" is 12).
// Out-of-range or unparsable input renders the number 0 instead of
// failing, like the legacy image endpoint.
//
// Response:
//
//	200 OK: image/png
//	503 Service Unavailable: TeX toolchain not installed
func (h *Handlers) HandlePNG(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePNG")

	n, d := ClampLegacy(ParseLegacyInt(c.Query("n")), ParseLegacyInt(c.Query("d")))

	obf, err := h.svc.Obfuscate(c.Request.Context(), big.NewInt(n), d)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	img, err := h.svc.RenderPNG(c.Request.Context(), obf)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Disposition", "inline; filename=obfuscated.png")
	c.Data(http.StatusOK, "image/png", img)
}

// HandleHealth handles GET /v1/obfuscator/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/obfuscator/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:   h.svc.Table().Len() > 0,
		Primes:  h.svc.Table().Len(),
		Archive: h.svc.ArchiveEnabled(),
	})
}

// getOrCreateRequestID echoes X-Request-ID, generating one when absent.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func (h *Handlers) parseItem(req GenerateRequest) (*big.Int, int, error) {
	n, err := h.svc.ParseNumber(req.Number)
	if err != nil {
		return nil, 0, err
	}
	depth := DefaultDepth
	if req.Depth != nil {
		depth = *req.Depth
	}
	return n, depth, nil
}

func toResponse(obf *Obfuscation, format string) GenerateResponse {
	if format == "" {
		format = FormatText
	}
	resp := GenerateResponse{
		ID:     obf.ID,
		Number: obf.Number.String(),
		Depth:  obf.Depth,
		Format: format,
		Text:   obf.Text,
		TeX:    obf.TeX,
		Nodes:  obf.Nodes,
		Height: obf.Height,
		Kinds:  obf.Kinds,
		Tree:   obf.Tree,
	}
	switch format {
	case FormatTeX:
		resp.Expression = obf.TeX
	case FormatDocument:
		resp.Expression = render.Document(obf.TeX)
	default:
		resp.Expression = obf.Text
	}
	return resp
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidNumber):
		return http.StatusBadRequest, "INVALID_NUMBER"
	case errors.Is(err, ErrDepthOutOfRange):
		return http.StatusBadRequest, "DEPTH_OUT_OF_RANGE"
	case errors.Is(err, ErrNumberTooLarge):
		return http.StatusBadRequest, "NUMBER_TOO_LARGE"
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest, "BATCH_TOO_LARGE"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrArchiveDisabled):
		return http.StatusNotImplemented, "ARCHIVE_DISABLED"
	case errors.Is(err, render.ErrToolMissing), errors.Is(err, ErrRenderUnavailable):
		return http.StatusServiceUnavailable, "RENDER_UNAVAILABLE"
	case errors.Is(err, render.ErrRenderFailed):
		return http.StatusInternalServerError, "RENDER_FAILED"
	case errors.Is(err, expression.ErrInvariantViolation):
		return http.StatusInternalServerError, "INVARIANT_VIOLATION"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
