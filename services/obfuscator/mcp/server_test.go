// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/obfuscator/services/obfuscator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/generator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/mcp"
)

func newTestServer(t *testing.T, opts ...obfuscator.ServiceOption) *mcp.Server {
	t.Helper()
	svc, err := obfuscator.NewService(obfuscator.DefaultServiceConfig(), opts...)
	require.NoError(t, err)
	return mcp.NewServer(svc, "test", nil)
}

func connectInMemory(t *testing.T, ctx context.Context, srv *mcp.Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	_, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err, "server.Connect")

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err, "client.Connect")
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool(%s)", name)
	require.False(t, res.IsError, "CallTool(%s) returned error: %v", name, textOf(res))

	result := make(map[string]any)
	require.NoError(t, json.Unmarshal([]byte(textOf(res)), &result))
	return result
}

func textOf(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t))

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"obfuscate", "factor", "is_prime"}, names)
}

func TestObfuscateTool(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, obfuscator.WithSource(generator.NewScriptedSource(6)))
	session := connectInMemory(t, ctx, srv)

	out := callTool(t, ctx, session, "obfuscate", map[string]any{"number": "10", "depth": 1})
	assert.Equal(t, "sqrt(100)", out["expression"])
	assert.Equal(t, `\sqrt{100}`, out["tex"])
	assert.Equal(t, "10", out["number"])

	out = callTool(t, ctx, session, "obfuscate", map[string]any{"number": "10", "depth": 1, "format": "tex"})
	assert.Equal(t, `\sqrt{100}`, out["expression"])
}

func TestObfuscateTool_Errors(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t))

	for _, args := range []map[string]any{
		{"number": "-3"},
		{"number": "12", "depth": 99},
		{"number": "12", "format": "png"},
		{"number": "12345678901234567890123456789012345678901"},
	} {
		res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "obfuscate", Arguments: args})
		require.NoError(t, err)
		assert.True(t, res.IsError, "args %v", args)
	}
}

func TestFactorTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t))

	out := callTool(t, ctx, session, "factor", map[string]any{"number": "600851475143"})
	assert.Equal(t, []any{"71", "839", "1471", "6857"}, out["factors"])

	out = callTool(t, ctx, session, "factor", map[string]any{"number": "12", "all": true})
	assert.Equal(t, []any{"2", "2", "3"}, out["factors"])

	out = callTool(t, ctx, session, "factor", map[string]any{"number": "33.2"})
	assert.Empty(t, out["factors"])
}

func TestIsPrimeTool(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t))

	out := callTool(t, ctx, session, "is_prime", map[string]any{"number": "8492569"})
	assert.Equal(t, true, out["prime"])

	out = callTool(t, ctx, session, "is_prime", map[string]any{"number": "1000000000000000"})
	assert.Equal(t, false, out["prime"])
}
