// ABOUTME: Tool table entry, handler contract, and backing-service state machine.
// ABOUTME: Providers supply handlers by name; no reflection-by-string anywhere.

package dispatch

import (
	"context"
	"encoding/json"
)

// Handler executes one tool call. Handler errors are caught at the dispatch
// boundary and converted to a Result envelope; they never crash the process.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// CapabilityProvider is implemented by each backing service. The dispatcher
// resolves handlers through it by tool name, both at registration time (to
// verify the contract is honest) and on every call (so a service that was
// re-initialized after the table was built still serves the current handler).
type CapabilityProvider interface {
	Handler(toolName string) (Handler, bool)
}

// BackingService names one service the dispatcher builds tools for.
type BackingService struct {
	ServiceName string             // registry service name, e.g. "PostOfficeService"
	Prefix      string             // namespacing shorthand, e.g. "post_office"
	Provider    CapabilityProvider // live instance; nil fails registration
}

// RegisteredTool is one invocable entry in the dispatch table, derived from
// a capability's MCP tool contract.
type RegisteredTool struct {
	NamespacedName string
	BaseName       string // contract tool name without the service prefix
	CapabilityName string // capability the tool came from; used for realm checks
	OwningService  string // prefix of the owning service
	InputSchema    json.RawMessage
	Description    string

	provider CapabilityProvider
}

// ServiceState tracks a backing service through bootstrap.
type ServiceState string

const (
	StateUnregistered       ServiceState = "unregistered"
	StateDiscovering        ServiceState = "discovering"
	StateRegistering        ServiceState = "registering"
	StateRegistered         ServiceState = "registered"
	StateRegistrationFailed ServiceState = "registration_failed"
)

// ServiceStatus is the bootstrap outcome for one backing service.
type ServiceStatus struct {
	ServiceName string       `json:"service_name"`
	Prefix      string       `json:"prefix"`
	State       ServiceState `json:"state"`
	Tools       int          `json:"tools"`
	Error       string       `json:"error,omitempty"`
}

// CallerContext identifies who is invoking a tool. All fields are optional;
// an empty context skips realm and tenant checks.
type CallerContext struct {
	Realm    string `json:"realm,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Result is the uniform envelope every ExecuteTool call returns. Error is
// populated only when Success is false and preserves the distinguishing
// message text of the underlying failure.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolSchema is the introspection view of one registered tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	InputSchema json.RawMessage `json:"input_schema"`
	Description string          `json:"description"`
	Owner       string          `json:"owning_service"`
}
