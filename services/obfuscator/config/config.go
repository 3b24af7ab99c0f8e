// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the obfuscator configuration.
//
// Configuration comes from three layers, later ones winning:
//
//  1. DefaultConfig
//  2. an optional YAML file
//  3. OBFUSCATOR_* environment variables
//
// The result is validated with go-playground/validator before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OBFUSCATOR_"

// MaxFileSize bounds the configuration file.
const MaxFileSize = 1 << 20

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Primes    primes.Config   `yaml:"primes"`
	Generator GeneratorConfig `yaml:"generator"`
	Limits    LimitsConfig    `yaml:"limits"`
	Render    RenderConfig    `yaml:"render"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`

	// RateLimit is the sustained request rate per second across all
	// clients. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// Burst is the token bucket size.
	Burst int `yaml:"burst" validate:"gte=1"`

	// RequestTimeout bounds a single request, PNG rendering included.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// GeneratorConfig configures expression generation.
type GeneratorConfig struct {
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1,lte=1000"`

	// Selection is "rejection" (redraw on ineligible kinds) or "filter"
	// (draw among eligible kinds only).
	Selection string `yaml:"selection" validate:"oneof=rejection filter"`

	// Weights overrides the embedded variant weights when non-empty.
	Weights map[string]int `yaml:"weights,omitempty" validate:"omitempty,dive,gte=1"`
}

// LimitsConfig bounds what callers may request.
type LimitsConfig struct {
	// MaxDepth is the largest accepted depth.
	MaxDepth int `yaml:"max_depth" validate:"gte=0,lte=16"`

	// MaxDigits bounds the number to obfuscate. 0 means unbounded.
	// Default: the prime table's digit ceiling (40)
	MaxDigits int `yaml:"max_digits" validate:"gte=0"`

	// MaxBatch is the largest batch accepted in one request.
	MaxBatch int `yaml:"max_batch" validate:"gte=1,lte=1000"`

	// Concurrency bounds parallel generation inside a batch.
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=256"`

	// Verify re-evaluates every generated tree before returning it.
	Verify bool `yaml:"verify"`

	// FactorCacheSize is the number of factorizations kept in memory.
	FactorCacheSize int `yaml:"factor_cache_size" validate:"gte=0"`
}

// RenderConfig configures PNG rendering through TeX.
type RenderConfig struct {
	Texi2DVI string        `yaml:"texi2dvi" validate:"required"`
	DVIPNG   string        `yaml:"dvipng" validate:"required"`
	DPI      int           `yaml:"dpi" validate:"gte=50,lte=2400"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	WorkDir  string        `yaml:"work_dir,omitempty"`
}

// ArchiveConfig configures the badger-backed expression archive.
type ArchiveConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory   bool          `yaml:"in_memory"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" validate:"required"`

	// Traces is "none", "stdout" or "otlp".
	Traces string `yaml:"traces" validate:"oneof=none stdout otlp"`

	// Metrics is "prometheus", "stdout" or "none".
	Metrics string `yaml:"metrics" validate:"oneof=none stdout prometheus"`

	// OTLPEndpoint is the collector address for Traces == "otlp".
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			RateLimit:      20,
			Burst:          40,
			RequestTimeout: 30 * time.Second,
		},
		Primes: primes.DefaultConfig(),
		Generator: GeneratorConfig{
			MaxAttempts: 10,
			Selection:   "rejection",
		},
		Limits: LimitsConfig{
			MaxDepth:        8,
			MaxDigits:       primes.DefaultMaxDigits,
			MaxBatch:        64,
			Concurrency:     4,
			Verify:          true,
			FactorCacheSize: 1024,
		},
		Render: RenderConfig{
			Texi2DVI: "texi2dvi",
			DVIPNG:   "dvipng",
			DPI:      300,
			Timeout:  20 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled:    false,
			Path:       "~/.obfuscator/archive",
			GCInterval: 10 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "obfuscator",
			Traces:      "none",
			Metrics:     "prometheus",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks every struct tag constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
//
// Inputs:
//   - path: YAML file; "" skips the file layer. A leading ~ expands to the
//     home directory.
//
// Outputs:
//   - Config: the validated configuration
//   - error: unreadable or oversized file, bad YAML, bad environment value
//     or ErrInvalidConfig
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := readFile(ExpandHome(path))
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes DefaultConfig as YAML to path, creating parent
// directories. An existing file is left alone and reported with
// os.ErrExist.
func WriteDefault(path string) error {
	path = ExpandHome(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, os.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// applyEnv overlays OBFUSCATOR_* variables onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_DIR", &cfg.Logging.Dir)
	str("SELECTION", &cfg.Generator.Selection)
	str("ARCHIVE_PATH", &cfg.Archive.Path)
	str("TRACES", &cfg.Telemetry.Traces)
	str("METRICS", &cfg.Telemetry.Metrics)
	str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("TEXI2DVI", &cfg.Render.Texi2DVI)
	str("DVIPNG", &cfg.Render.DVIPNG)

	for _, f := range []func() error{
		func() error { return integer("PORT", &cfg.Server.Port) },
		func() error { return integer("MAX_DEPTH", &cfg.Limits.MaxDepth) },
		func() error { return integer("MAX_DIGITS", &cfg.Limits.MaxDigits) },
		func() error { return integer("CONCURRENCY", &cfg.Limits.Concurrency) },
		func() error { return boolean("LOG_JSON", &cfg.Logging.JSON) },
		func() error { return boolean("ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return boolean("VERIFY", &cfg.Limits.Verify) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}
