// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obfuscator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(1_000_000), cfg.Primes.Bound)
	assert.Equal(t, 40, cfg.Primes.MaxDigits)
	assert.Equal(t, 10, cfg.Generator.MaxAttempts)
	assert.Equal(t, "rejection", cfg.Generator.Selection)
	assert.Equal(t, 8, cfg.Limits.MaxDepth)
	assert.Equal(t, cfg.Primes.MaxDigits, cfg.Limits.MaxDigits, "inputs are bounded by default")
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 9090
  request_timeout: 5s
primes:
  bound: 2000000
generator:
  selection: filter
  weights:
    division: 5
    summation: 2
limits:
  max_depth: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, uint64(2_000_000), cfg.Primes.Bound)
	assert.Equal(t, 40, cfg.Primes.MaxDigits, "unset fields keep their default")
	assert.Equal(t, "filter", cfg.Generator.Selection)
	assert.Equal(t, map[string]int{"division": 5, "summation": 2}, cfg.Generator.Weights)
	assert.Equal(t, 6, cfg.Limits.MaxDepth)
	assert.Equal(t, 20*time.Second, cfg.Render.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"port out of range":   "server:\n  port: 70000\n",
		"unknown selection":   "generator:\n  selection: roulette\n",
		"zero weight":         "generator:\n  weights:\n    division: 0\n",
		"tiny sieve":          "primes:\n  bound: 1\n",
		"otlp needs endpoint": "telemetry:\n  traces: otlp\n",
		"archive needs path":  "archive:\n  enabled: true\n  path: \"\"\n",
		"bad log level":       "logging:\n  level: chatty\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_InMemoryArchiveNeedsNoPath(t *testing.T) {
	_, err := Load(writeYAML(t, "archive:\n  enabled: true\n  in_memory: true\n  path: \"\"\n"))
	assert.NoError(t, err)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, envMap(map[string]string{
		"OBFUSCATOR_PORT":            "7000",
		"OBFUSCATOR_LOG_LEVEL":       "debug",
		"OBFUSCATOR_LOG_JSON":        "true",
		"OBFUSCATOR_SELECTION":       "filter",
		"OBFUSCATOR_ARCHIVE_ENABLED": "1",
		"OBFUSCATOR_MAX_DEPTH":       " 5 ",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "filter", cfg.Generator.Selection)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 5, cfg.Limits.MaxDepth)
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, applyEnv(&cfg, envMap(map[string]string{"OBFUSCATOR_PORT": "eighty"})))
	assert.Error(t, applyEnv(&cfg, envMap(map[string]string{"OBFUSCATOR_VERIFY": "maybe"})))
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	t.Setenv("OBFUSCATOR_PORT", "6060")
	cfg, err := Load(writeYAML(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "obfuscator.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Equal(t, DefaultConfig().Render, cfg.Render)

	assert.ErrorIs(t, WriteDefault(path), os.ErrExist)
}
