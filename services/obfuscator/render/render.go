// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns TeX fragments into standalone documents and PNG
// images using an installed TeX toolchain (texi2dvi and dvipng).
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrToolMissing is returned when texi2dvi or dvipng cannot be found.
	ErrToolMissing = errors.New("render: TeX tool not installed")

	// ErrRenderFailed is returned when a tool exits unsuccessfully or
	// times out. The tool's stderr is included in the message.
	ErrRenderFailed = errors.New("render: rendering failed")
)

// maxStderr bounds the captured diagnostic output of each tool.
const maxStderr = 8 << 10

// Config locates the TeX tools.
type Config struct {
	Texi2DVI string
	DVIPNG   string
	DPI      int
	Timeout  time.Duration

	// WorkDir is the parent of the per-render scratch directory. Empty
	// means the system temp dir.
	WorkDir string
}

// DefaultConfig resolves the tools from PATH at 300 DPI.
func DefaultConfig() Config {
	return Config{
		Texi2DVI: "texi2dvi",
		DVIPNG:   "dvipng",
		DPI:      300,
		Timeout:  20 * time.Second,
	}
}

// Document wraps a TeX math fragment in a minimal standalone document
// with an oversized page so long expressions never wrap.
func Document(fragment string) string {
	var b strings.Builder
	b.WriteString("\\documentclass{minimal}\n")
	b.WriteString("\\usepackage[paperwidth=100cm,paperheight=100cm]{geometry}")
	b.WriteString("\\pagestyle{empty}\n")
	b.WriteString("\\begin{document}\n")
	b.WriteString("$$ ")
	b.WriteString(fragment)
	b.WriteString(" $$\n")
	b.WriteString("\\end{document}\n")
	return b.String()
}

// Renderer produces PNG images. Safe for concurrent use; every call
// works in its own scratch directory.
type Renderer struct {
	cfg    Config
	logger *slog.Logger
}

// NewRenderer fills zero fields of cfg from DefaultConfig.
func NewRenderer(cfg Config, logger *slog.Logger) *Renderer {
	def := DefaultConfig()
	if cfg.Texi2DVI == "" {
		cfg.Texi2DVI = def.Texi2DVI
	}
	if cfg.DVIPNG == "" {
		cfg.DVIPNG = def.DVIPNG
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Available reports whether both tools resolve.
func (r *Renderer) Available() error {
	for _, tool := range []string{r.cfg.Texi2DVI, r.cfg.DVIPNG} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s", ErrToolMissing, tool)
		}
	}
	return nil
}

// PNG typesets fragment and returns the image bytes.
func (r *Renderer) PNG(ctx context.Context, fragment string) ([]byte, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(r.cfg.WorkDir, "obfuscator-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	texPath := filepath.Join(dir, "expr.tex")
	dviPath := filepath.Join(dir, "expr.dvi")
	pngPath := filepath.Join(dir, "expr.png")

	if err := os.WriteFile(texPath, []byte(Document(fragment)), 0o600); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	start := time.Now()
	if err := r.run(ctx, dir, r.cfg.Texi2DVI,
		"--batch", "--build=clean", "--build-dir="+filepath.Join(dir, "t2d"),
		texPath, "-o", dviPath); err != nil {
		return nil, err
	}
	if err := r.run(ctx, dir, r.cfg.DVIPNG,
		"-D", strconv.Itoa(r.cfg.DPI), "-T", "tight", "-o", pngPath, dviPath); err != nil {
		return nil, err
	}

	img, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrRenderFailed, err)
	}

	r.logger.Debug("Rendered PNG",
		slog.Int("bytes", len(img)),
		slog.Duration("duration", time.Since(start)),
	)
	return img, nil
}

func (r *Renderer) run(ctx context.Context, dir, command string, args ...string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	limited := &limitedWriter{w: &stderr, limit: maxStderr}
	cmd.Stderr = limited

	r.logger.Debug("Executing command",
		slog.String("command", command),
		slog.Any("args", args),
	)

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", ErrRenderFailed, filepath.Base(command), ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited %d: %s", ErrRenderFailed,
				filepath.Base(command), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %s: %v", ErrRenderFailed, filepath.Base(command), err)
	}
	return nil
}

// limitedWriter drops everything past limit bytes.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if room := lw.limit - lw.written; room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		lw.w.Write(p)
		lw.written += len(p)
	}
	return n, nil
}
