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
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond a shared token bucket with 429.
// Generation and factorization are CPU bound, so the bucket is global
// rather than per client. perSecond <= 0 disables limiting.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), max(1, burst))

	return func(c *gin.Context) {
		res := limiter.Reserve()
		if !res.OK() {
			abortRateLimited(c, time.Second)
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			abortRateLimited(c, delay)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	c.Header("Retry-After", strconv.Itoa(max(1, secs)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
		Error: "Too many requests",
		Code:  "RATE_LIMITED",
	})
}

// Timeout bounds every request's context. d <= 0 disables it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
