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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the otelgin server spans. Empty disables tracing
	// middleware.
	ServiceName string

	RateLimit      float64
	Burst          int
	RequestTimeout time.Duration

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter assembles the gin engine: recovery, tracing, rate limiting,
// per-request timeout, the /v1/obfuscator routes and /metrics.
func NewRouter(svc *Service, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.AccessLog {
		router.Use(gin.Logger())
	}
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(RateLimit(cfg.RateLimit, cfg.Burst), Timeout(cfg.RequestTimeout))
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}
