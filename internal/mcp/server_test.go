// ABOUTME: Tests for the JSON-RPC HTTP bridge: initialize, tools/list,
// ABOUTME: tools/call with Bearer tokens, and the health and metrics endpoints.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/civic-gateway/internal/auth"
	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/registry"
)

type echoProvider struct{}

func (echoProvider) Handler(toolName string) (dispatch.Handler, bool) {
	switch toolName {
	case "echo":
		return func(ctx context.Context, params map[string]any) (any, error) {
			return map[string]any{"echoed": params["message"]}, nil
		}, true
	case "fail":
		return func(ctx context.Context, params map[string]any) (any, error) {
			return nil, fmt.Errorf("downstream unavailable")
		}, true
	}
	return nil, false
}

func newTestDispatcher(t *testing.T) *dispatch.Server {
	t.Helper()

	reg := registry.New(nil)
	for _, tool := range []string{"echo", "fail"} {
		err := reg.Register(registry.CapabilityDefinition{
			ServiceName:    "EchoService",
			CapabilityName: tool,
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					ToolName:    tool,
					InputSchema: json.RawMessage(`{"type":"object"}`),
					Description: "test tool",
				},
			},
		})
		require.NoError(t, err)
	}

	srv, err := dispatch.NewServer(dispatch.Config{
		Registry: reg,
		Services: []dispatch.BackingService{
			{ServiceName: "EchoService", Prefix: "echo_svc", Provider: echoProvider{}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Bootstrap(context.Background()))
	return srv
}

func newTestServer(t *testing.T, requireAuth bool, verifier auth.TokenVerifier) *httptest.Server {
	t.Helper()

	srv, err := NewServer(Config{
		Dispatcher:  newTestDispatcher(t),
		Verifier:    verifier,
		RequireAuth: requireAuth,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postRPC(t *testing.T, ts *httptest.Server, token string, req JSONRPCRequest) JSONRPCResponse {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var resp JSONRPCResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return resp
}

func TestInitialize(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp := postRPC(t, ts, "", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	info, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "civic-gateway", info["name"])
	assert.Equal(t, dispatch.Version, info["version"])
}

func TestToolsList(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp := postRPC(t, ts, "", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))

	require.Len(t, result.Tools, 2)
	assert.Equal(t, "echo_svc_echo", result.Tools[0].Name)
	assert.Equal(t, "echo_svc_fail", result.Tools[1].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(result.Tools[0].InputSchema))
}

func callTool(t *testing.T, ts *httptest.Server, token, name string, args map[string]any) (CallToolResult, *JSONRPCError) {
	t.Helper()

	params, err := json.Marshal(CallToolParams{Name: name, Arguments: mustJSON(t, args)})
	require.NoError(t, err)

	resp := postRPC(t, ts, token, JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		return CallToolResult{}, resp.Error
	}

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return result, nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestToolsCall(t *testing.T) {
	ts := newTestServer(t, false, nil)

	result, rpcErr := callTool(t, ts, "", "echo_svc_echo", map[string]any{"message": "hi"})
	require.Nil(t, rpcErr)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.JSONEq(t, `{"echoed":"hi"}`, result.Content[0].Text)
}

func TestToolsCallFailure(t *testing.T) {
	ts := newTestServer(t, false, nil)

	result, rpcErr := callTool(t, ts, "", "echo_svc_fail", nil)
	require.Nil(t, rpcErr)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "downstream unavailable")
}

func TestToolsCallUnknownTool(t *testing.T) {
	ts := newTestServer(t, false, nil)

	result, rpcErr := callTool(t, ts, "", "nope", nil)
	require.Nil(t, rpcErr)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "nope")
}

func TestToolsCallMissingName(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp := postRPC(t, ts, "", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`4`),
		Method:  "tools/call",
		Params:  json.RawMessage(`{}`),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCInvalidParams, resp.Error.Code)
}

func TestAuthRequired(t *testing.T) {
	manager := auth.NewJWTManager([]byte("test-secret"))
	ts := newTestServer(t, true, manager)

	// No token at all.
	resp := postRPC(t, ts, "", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`5`),
		Method:  "tools/list",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)

	// Garbage token.
	resp = postRPC(t, ts, "garbage", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`6`),
		Method:  "tools/list",
	})
	require.NotNil(t, resp.Error)

	// Valid token.
	token, err := manager.Issue(auth.Identity{Realm: "journey"}, time.Minute)
	require.NoError(t, err)
	resp = postRPC(t, ts, token, JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/list",
	})
	assert.Nil(t, resp.Error)
}

func TestMethodNotFound(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp := postRPC(t, ts, "", JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`8`),
		Method:  "resources/list",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCMethodNotFound, resp.Error.Code)
}

func TestNotificationAccepted(t *testing.T) {
	ts := newTestServer(t, false, nil)

	body := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestInvalidJSON(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{not json`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, JSONRPCParseError, rpcResp.Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp, err := http.Get(ts.URL + "/mcp")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "healthy", payload["status"])
	assert.EqualValues(t, 2, payload["tools_registered"])
}

func TestMetricsWithoutGateway(t *testing.T) {
	ts := newTestServer(t, false, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
