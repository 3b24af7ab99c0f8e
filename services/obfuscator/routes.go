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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all /v1/obfuscator/* endpoints with the given
// router group (typically /v1).
//
//	POST /v1/obfuscator/generate         - Obfuscate one number
//	POST /v1/obfuscator/batch            - Obfuscate many numbers
//	GET  /v1/obfuscator/expressions      - List archived expressions
//	GET  /v1/obfuscator/expressions/:id  - Fetch an archived expression
//	GET  /v1/obfuscator/factor           - Prime factors of n
//	GET  /v1/obfuscator/prime            - Primality of n
//	GET  /v1/obfuscator/primes           - Prime table summary
//	GET  /v1/obfuscator/variants         - Variant weights and eligibility
//	GET  /v1/obfuscator/png              - Legacy PNG image endpoint
//	GET  /v1/obfuscator/health           - Liveness
//	GET  /v1/obfuscator/ready            - Readiness
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	obf := rg.Group("/obfuscator")
	{
		obf.POST("/generate", handlers.HandleGenerate)
		obf.POST("/batch", handlers.HandleBatch)

		obf.GET("/expressions", handlers.HandleListExpressions)
		obf.GET("/expressions/:id", handlers.HandleGetExpression)

		obf.GET("/factor", handlers.HandleFactor)
		obf.GET("/prime", handlers.HandlePrime)
		obf.GET("/primes", handlers.HandlePrimes)
		obf.GET("/variants", handlers.HandleVariants)

		obf.GET("/png", handlers.HandlePNG)

		obf.GET("/health", handlers.HandleHealth)
		obf.GET("/ready", handlers.HandleReady)
	}
}
