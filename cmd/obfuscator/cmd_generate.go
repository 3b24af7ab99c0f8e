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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/obfuscator/services/obfuscator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
	"github.com/AleutianAI/obfuscator/services/obfuscator/render"
)

const defaultPNGFile = "obfuscated.png"

// parseDepth treats a missing, unparsable or
// non-positive depth as the default.
func parseDepth(args []string) int {
	if len(args) < 2 {
		return obfuscator.DefaultDepth
	}
	d, err := strconv.Atoi(args[1])
	if err != nil || d < 1 {
		return obfuscator.DefaultDepth
	}
	return d
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.ParseNumber(args[0])
	if err != nil {
		return err
	}
	depth := parseDepth(args)

	ctx := cmd.Context()
	obf, err := a.svc.Obfuscate(ctx, n, depth)
	if err != nil {
		return err
	}

	path := outputPath
	var out []byte
	switch outputFormat {
	case obfuscator.FormatText:
		out = []byte(obf.Text + "\n")
	case obfuscator.FormatTeX:
		out = []byte(obf.TeX + "\n")
	case obfuscator.FormatDocument:
		out = []byte(render.Document(obf.TeX))
	case "json":
		out, err = json.MarshalIndent(struct {
			ID     string         `json:"id,omitempty"`
			Number string         `json:"number"`
			Depth  int            `json:"depth"`
			Text   string         `json:"text"`
			TeX    string         `json:"tex"`
			Kinds  map[string]int `json:"kinds"`
			Tree   any            `json:"tree"`
		}{obf.ID, obf.Number.String(), obf.Depth, obf.Text, obf.TeX, obf.Kinds, obf.Tree}, "", "  ")
		if err != nil {
			return err
		}
		out = append(out, '\n')
	case "png":
		out, err = a.svc.RenderPNG(ctx, obf)
		if err != nil {
			return err
		}
		if path == "" {
			path = defaultPNGFile
		}
	default:
		return fmt.Errorf("unknown format %q (want text, tex, document, png or json)", outputFormat)
	}

	return writeOutput(cmd.OutOrStdout(), path, out)
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func runSamples(cmd *cobra.Command, _ []string) error {
	n, ok := primes.ParseNatural(sampleNumber)
	if !ok {
		return fmt.Errorf("%w: %q", obfuscator.ErrInvalidNumber, sampleNumber)
	}
	if sampleMin < 0 || sampleMax < sampleMin {
		return fmt.Errorf("invalid depth range %d..%d", sampleMin, sampleMax)
	}

	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Here are some sample obfuscations for the number %s:\n", n)
	for d := sampleMin; d <= sampleMax; d++ {
		obf, err := a.svc.Obfuscate(cmd.Context(), n, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n\n", obf.Text)
	}

	obf, err := a.svc.Obfuscate(cmd.Context(), n, min(obfuscator.DefaultDepth, a.cfg.Limits.MaxDepth))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "And here is one in TeX format:\n%s\n", obf.TeX)
	return nil
}
