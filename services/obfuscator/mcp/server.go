// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcp exposes the obfuscator as Model Context Protocol tools:
// obfuscate, factor and is_prime.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AleutianAI/obfuscator/services/obfuscator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/primes"
	"github.com/AleutianAI/obfuscator/services/obfuscator/render"
)

// Server wraps the MCP SDK server with the obfuscator tools registered.
type Server struct {
	MCPServer *sdkmcp.Server

	svc *obfuscator.Service
	log *slog.Logger
}

// NewServer creates an MCP server backed by svc.
func NewServer(svc *obfuscator.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(
			&sdkmcp.Implementation{Name: "obfuscator", Version: version},
			nil,
		),
		svc: svc,
		log: logger.With("component", "obfuscator-mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdin/stdout until ctx is done or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting obfuscator MCP server over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "obfuscate",
		Description: "Rewrite a non-negative integer as a random arithmetic expression that evaluates to it. Returns text and TeX renderings.",
	}, s.handleObfuscate)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "factor",
		Description: "Prime factors of a natural number by trial division against the prime table. Empty for malformed input.",
	}, s.handleFactor)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "is_prime",
		Description: "Whether a natural number is prime, judged against the prime table.",
	}, s.handleIsPrime)
}

// --- Tool input/output types ---

type obfuscateInput struct {
	Number string `json:"number" jsonschema:"non-negative integer in decimal"`
	Depth  *int   `json:"depth,omitempty" jsonschema:"maximum expression depth (default 4)"`
	Format string `json:"format,omitempty" jsonschema:"text, tex or document (default text)"`
}

type obfuscateOutput struct {
	ID         string `json:"id,omitempty"`
	Number     string `json:"number"`
	Depth      int    `json:"depth"`
	Expression string `json:"expression"`
	Text       string `json:"text"`
	TeX        string `json:"tex"`
	Nodes      int    `json:"nodes"`
	Height     int    `json:"height"`
}

type factorInput struct {
	Number string `json:"number" jsonschema:"natural number in decimal"`
	All    bool   `json:"all,omitempty" jsonschema:"repeat factors by multiplicity"`
}

type factorOutput struct {
	Number  string   `json:"number"`
	Factors []string `json:"factors"`
}

type isPrimeInput struct {
	Number string `json:"number" jsonschema:"natural number in decimal"`
}

type isPrimeOutput struct {
	Number string `json:"number"`
	Prime  bool   `json:"prime"`
}

// --- Tool handlers ---

func (s *Server) handleObfuscate(ctx context.Context, _ *sdkmcp.CallToolRequest, input obfuscateInput) (*sdkmcp.CallToolResult, obfuscateOutput, error) {
	n, err := s.svc.ParseNumber(input.Number)
	if err != nil {
		return nil, obfuscateOutput{}, err
	}
	depth := obfuscator.DefaultDepth
	if input.Depth != nil {
		depth = *input.Depth
	}

	obf, err := s.svc.Obfuscate(ctx, n, depth)
	if err != nil {
		return nil, obfuscateOutput{}, err
	}

	out := obfuscateOutput{
		ID:     obf.ID,
		Number: obf.Number.String(),
		Depth:  obf.Depth,
		Text:   obf.Text,
		TeX:    obf.TeX,
		Nodes:  obf.Nodes,
		Height: obf.Height,
	}
	switch input.Format {
	case "", obfuscator.FormatText:
		out.Expression = obf.Text
	case obfuscator.FormatTeX:
		out.Expression = obf.TeX
	case obfuscator.FormatDocument:
		out.Expression = render.Document(obf.TeX)
	default:
		return nil, obfuscateOutput{}, fmt.Errorf("unknown format %q", input.Format)
	}

	s.log.Debug("obfuscate tool", "digits", primes.DecimalDigits(n), "depth", depth, "nodes", obf.Nodes)
	return nil, out, nil
}

func (s *Server) handleFactor(ctx context.Context, _ *sdkmcp.CallToolRequest, input factorInput) (*sdkmcp.CallToolResult, factorOutput, error) {
	return nil, factorOutput{
		Number:  input.Number,
		Factors: s.svc.Factor(ctx, input.Number, !input.All),
	}, nil
}

func (s *Server) handleIsPrime(ctx context.Context, _ *sdkmcp.CallToolRequest, input isPrimeInput) (*sdkmcp.CallToolResult, isPrimeOutput, error) {
	return nil, isPrimeOutput{
		Number: input.Number,
		Prime:  s.svc.IsPrime(ctx, input.Number),
	}, nil
}
