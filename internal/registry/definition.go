// ABOUTME: Capability definition and contract types stored in the registry.
// ABOUTME: Contracts describe how a capability is invoked (SOA API, MCP tool).

package registry

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

// SOAAPIContract describes a capability reachable as a direct API call.
// HandlerRef is an opaque reference resolved against a live service instance;
// it is not guaranteed valid until first invocation (late binding).
type SOAAPIContract struct {
	APIName    string            `json:"api_name" yaml:"api_name"`
	Endpoint   string            `json:"endpoint" yaml:"endpoint"`
	HTTPMethod string            `json:"http_method" yaml:"http_method"`
	HandlerRef string            `json:"handler_ref" yaml:"handler_ref"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MCPToolContract describes a capability reachable as a dispatch-table tool.
// ToolName may already be namespaced by the owning service
// ("librarian_get_file") or bare ("get_file"); the dispatch server
// normalizes to a namespaced form.
type MCPToolContract struct {
	ToolName         string          `json:"tool_name" yaml:"tool_name"`
	OwningDispatcher string          `json:"owning_dispatcher" yaml:"owning_dispatcher"`
	InputSchema      json.RawMessage `json:"input_schema,omitempty" yaml:"-"`
	Description      string          `json:"description" yaml:"description"`
}

// Contracts is the fixed set of contract kinds a capability may carry.
// Nil fields mean the kind is absent.
type Contracts struct {
	SOAAPI  *SOAAPIContract  `json:"soa_api,omitempty"`
	MCPTool *MCPToolContract `json:"mcp_tool,omitempty"`
}

// Equal reports whether two contract sets have identical content.
// Used for idempotence detection during registration.
func (c Contracts) Equal(other Contracts) bool {
	if (c.SOAAPI == nil) != (other.SOAAPI == nil) {
		return false
	}
	if c.SOAAPI != nil {
		a, b := c.SOAAPI, other.SOAAPI
		if a.APIName != b.APIName || a.Endpoint != b.Endpoint ||
			a.HTTPMethod != b.HTTPMethod || a.HandlerRef != b.HandlerRef {
			return false
		}
		if !maps.Equal(a.Metadata, b.Metadata) {
			return false
		}
	}
	if (c.MCPTool == nil) != (other.MCPTool == nil) {
		return false
	}
	if c.MCPTool != nil {
		a, b := c.MCPTool, other.MCPTool
		if a.ToolName != b.ToolName || a.OwningDispatcher != b.OwningDispatcher ||
			a.Description != b.Description {
			return false
		}
		if !bytes.Equal(a.InputSchema, b.InputSchema) {
			return false
		}
	}
	return true
}

// CapabilityDefinition is the unit of registration: one named capability of
// one service, with its contracts.
type CapabilityDefinition struct {
	ServiceName    string    `json:"service_name"`
	CapabilityName string    `json:"capability_name"`
	ProtocolName   string    `json:"protocol_name"`
	Contracts      Contracts `json:"contracts"`
	Version        int       `json:"version"`
	RegisteredAt   time.Time `json:"registered_at"`
}
