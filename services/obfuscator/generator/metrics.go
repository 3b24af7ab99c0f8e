// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

const (
	drawAccepted = "accepted"
	drawRejected = "rejected"
)

var (
	variantDraws = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obfuscator_variant_draws_total",
		Help: "Variant draws by kind and whether the kind could represent the value",
	}, []string{"kind", "outcome"})

	generationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obfuscator_generation_fallbacks_total",
		Help: "Subtrees emitted as a plain number because no variant was eligible",
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obfuscator_generation_duration_seconds",
		Help:    "Duration of a top-level Generate call",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	generationNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obfuscator_generation_nodes",
		Help:    "Node count of generated trees",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

var tracer = otel.Tracer("obfuscator.generator")
