// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logJSON    bool

	outputFormat string
	outputPath   string
	factorAll    bool
	primesLimit  int
	servePort    int
	sampleNumber string
	sampleMin    int
	sampleMax    int

	rootCmd = &cobra.Command{
		Use:           "obfuscator",
		Short:         "Rewrite numbers as needlessly complicated expressions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// --- Expressions ---
	generateCmd = &cobra.Command{
		Use:   "generate <number> [depth]",
		Short: "Print an obfuscated expression for a number",
		Long: `Prints an expression that evaluates to <number>. Depth 3 is reasonably
readable, 4 to 6 nicely complex, 8 ridiculous. A missing or non-positive
depth means 4.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGenerate, // Defined in cmd_generate.go
	}
	samplesCmd = &cobra.Command{
		Use:   "samples",
		Short: "Print sample obfuscations across a range of depths",
		Args:  cobra.NoArgs,
		RunE:  runSamples, // Defined in cmd_generate.go
	}

	// --- Primes ---
	factorCmd = &cobra.Command{
		Use:   "factor <number>",
		Short: "Print the prime factors of a number",
		Args:  cobra.ExactArgs(1),
		RunE:  runFactor, // Defined in cmd_primes.go
	}
	isPrimeCmd = &cobra.Command{
		Use:   "isprime <number>",
		Short: "Report whether a number is prime",
		Args:  cobra.ExactArgs(1),
		RunE:  runIsPrime, // Defined in cmd_primes.go
	}
	primesCmd = &cobra.Command{
		Use:   "primes",
		Short: "Summarize the prime table",
		Args:  cobra.NoArgs,
		RunE:  runPrimes, // Defined in cmd_primes.go
	}

	// --- Servers ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP, // Defined in cmd_serve.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file populated with defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit, // Defined in cmd_config.go
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow, // Defined in cmd_config.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "configuration file (YAML)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON")

	generateCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, tex, document, png, json")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to this file instead of stdout (png defaults to obfuscated.png)")

	samplesCmd.Flags().StringVar(&sampleNumber, "number", "34", "number to obfuscate")
	samplesCmd.Flags().IntVar(&sampleMin, "min-depth", 2, "smallest depth")
	samplesCmd.Flags().IntVar(&sampleMax, "max-depth", 6, "largest depth")

	factorCmd.Flags().BoolVar(&factorAll, "all", false, "repeat factors by multiplicity")
	primesCmd.Flags().IntVar(&primesLimit, "limit", 0, "also print the first N primes")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides configuration)")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(
		generateCmd, samplesCmd,
		factorCmd, isPrimeCmd, primesCmd,
		serveCmd, mcpCmd,
		configCmd,
	)
}
