// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command obfuscator rewrites natural numbers as random arithmetic
// expressions, answers prime-table queries, and serves both over HTTP and
// MCP.
//
// Usage:
//
//	obfuscator generate 34 4
//	obfuscator generate 34 6 --format tex
//	obfuscator generate 34 --format png --output 34.png
//	obfuscator samples
//	obfuscator factor 600851475143
//	obfuscator isprime 8492569
//	obfuscator serve --port 8080
//	obfuscator mcp
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
