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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("obfuscator.primes")

const (
	pathTable    = "table"
	pathTrial    = "trial_division"
	pathRejected = "rejected"

	outcomeComplete = "complete"
	outcomeGaveUp   = "gave_up"
	outcomeRejected = "rejected"
)

var (
	sieveBuildDuration  metric.Float64Histogram
	sievePrimes         metric.Int64Gauge
	primalityChecks     metric.Int64Counter
	factorizationsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sieveBuildDuration, err = meter.Float64Histogram(
			"primes_sieve_build_duration_seconds",
			metric.WithDescription("Time spent sieving a prime table"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sievePrimes, err = meter.Int64Gauge(
			"primes_sieve_size",
			metric.WithDescription("Number of primes in the most recently built table"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		primalityChecks, err = meter.Int64Counter(
			"primes_primality_checks_total",
			metric.WithDescription("Primality checks by resolution path"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		factorizationsTotal, err = meter.Int64Counter(
			"primes_factorizations_total",
			metric.WithDescription("Factorizations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSieveBuild(d time.Duration, count int) {
	if err := initMetrics(); err != nil {
		return
	}
	ctx := context.Background()
	sieveBuildDuration.Record(ctx, d.Seconds())
	sievePrimes.Record(ctx, int64(count))
}

func recordPrimality(path string) {
	if err := initMetrics(); err != nil {
		return
	}
	primalityChecks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("path", path)),
	)
}

func recordFactorization(outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	factorizationsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

func outcomeFor(gaveUp bool) string {
	if gaveUp {
		return outcomeGaveUp
	}
	return outcomeComplete
}
