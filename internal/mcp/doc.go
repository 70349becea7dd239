// Package mcp exposes the dispatch server over HTTP as a JSON-RPC 2.0
// endpoint compatible with MCP-style tool callers.
//
// A single POST endpoint accepts initialize, tools/list, and tools/call.
// Callers authenticate with a Bearer realm token; the verified identity
// becomes the dispatch caller context, so realm and tenant checks apply to
// every tools/call. GET /healthz and GET /metrics expose the dispatcher's
// health view and the access gateway's counters for operators.
package mcp
