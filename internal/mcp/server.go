// ABOUTME: JSON-RPC 2.0 HTTP endpoint bridging external tool callers to the
// ABOUTME: dispatch server, with Bearer realm-token authentication.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/civic-gateway/internal/auth"
	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/realm"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// serverName is advertised in initialize responses.
const serverName = "civic-gateway"

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// ToolInfo represents one tool in a tools/list result.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config holds configuration for the HTTP server.
type Config struct {
	Dispatcher  *dispatch.Server
	Gateway     *realm.Gateway
	Verifier    auth.TokenVerifier
	RequireAuth bool // reject requests without a valid realm token
	Logger      *slog.Logger
}

// Server bridges HTTP callers to the dispatch server.
type Server struct {
	dispatcher  *dispatch.Server
	gateway     *realm.Gateway
	verifier    auth.TokenVerifier
	requireAuth bool
	logger      *slog.Logger
}

// NewServer creates the HTTP bridge.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.RequireAuth && cfg.Verifier == nil {
		return nil, errors.New("token verifier required when auth is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		dispatcher:  cfg.Dispatcher,
		gateway:     cfg.Gateway,
		verifier:    cfg.Verifier,
		requireAuth: cfg.RequireAuth,
		logger:      logger.With("component", "mcp"),
	}, nil
}

// RegisterRoutes registers the endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	// Notifications are accepted and dropped.
	if len(req.ID) == 0 || string(req.ID) == "null" {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	identity, authErr := s.extractIdentity(r)
	if authErr != nil && s.requireAuth {
		s.sendError(w, req.ID, JSONRPCInvalidRequest, "authentication required", authErr.Error())
		return
	}

	s.logger.Debug("rpc request",
		"method", req.Method,
		"realm", identity.Realm,
	)

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req, identity)
	default:
		s.sendError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// extractIdentity verifies the Bearer token, if any.
func (s *Server) extractIdentity(r *http.Request) (auth.Identity, error) {
	if s.verifier == nil {
		return auth.Identity{}, errors.New("no authentication configured")
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return auth.Identity{}, errors.New("missing authorization")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return auth.Identity{}, errors.New("invalid authorization header format")
	}

	return s.verifier.Verify(token)
}

func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	result := map[string]any{
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": dispatch.Version,
		},
	}
	s.sendResult(w, req.ID, result)
}

func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	names := s.dispatcher.ListTools()
	result := ListToolsResult{Tools: make([]ToolInfo, 0, len(names))}
	for _, name := range names {
		schema, err := s.dispatcher.ToolSchema(name)
		if err != nil {
			continue
		}
		result.Tools = append(result.Tools, ToolInfo{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: schema.InputSchema,
		})
	}
	s.sendResult(w, req.ID, result)
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, identity auth.Identity) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.sendError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	args := map[string]any{}
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.sendError(w, req.ID, JSONRPCInvalidParams, "arguments must be an object", nil)
			return
		}
	}

	caller := dispatch.CallerContext{
		Realm:    identity.Realm,
		TenantID: identity.TenantID,
		UserID:   identity.UserID,
	}
	ctx := auth.WithIdentity(r.Context(), identity)

	res := s.dispatcher.ExecuteTool(ctx, params.Name, args, caller)

	var result CallToolResult
	if !res.Success {
		result = CallToolResult{
			Content: []Content{{Type: "text", Text: res.Error}},
			IsError: true,
		}
	} else {
		text, err := json.Marshal(res.Result)
		if err != nil {
			s.sendError(w, req.ID, JSONRPCInternalError, "unencodable tool result", nil)
			return
		}
		result = CallToolResult{
			Content: []Content{{Type: "text", Text: string(text)}},
		}
	}
	s.sendResult(w, req.ID, result)
}

// handleHealth exposes the dispatcher's health view.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.dispatcher.GetHealthStatus()
	payload := map[string]any{
		"status":             health.Status,
		"per_service_status": health.PerService,
		"tools_registered":   health.ToolsRegistered,
		"version":            s.dispatcher.GetVersionInfo(),
	}
	if s.gateway != nil {
		payload["gateway"] = s.gateway.HealthCheck()
	}

	code := http.StatusOK
	if health.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, payload)
}

// handleMetrics exposes the access gateway counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.gateway == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.gateway.Metrics())
}

func (s *Server) sendResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.writeJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *Server) sendError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	s.writeJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
