// ABOUTME: Typed error kinds for dispatch failures, flattened only at the
// ABOUTME: ExecuteTool boundary into the uniform result envelope.

package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrToolCollision indicates a namespaced tool name is already taken by a
// different owning service. The original entry is kept.
var ErrToolCollision = errors.New("tool name collision")

// ToolNotFoundError is a dispatch-table miss. It lists the known tool names
// so callers can discover what actually exists.
type ToolNotFoundError struct {
	Name  string
	Known []string
}

func (e *ToolNotFoundError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	return fmt.Sprintf("tool '%s' not found (known tools: [%s])",
		e.Name, strings.Join(known, ", "))
}

// TenantAccessDeniedError indicates the caller carried an identity whose
// tenant failed validation.
type TenantAccessDeniedError struct {
	TenantID string
	Realm    string
}

func (e *TenantAccessDeniedError) Error() string {
	return fmt.Sprintf("tenant '%s' denied access (realm '%s')", e.TenantID, e.Realm)
}

// HandlerResolutionError indicates a registered tool's provider could not
// supply a handler at call time.
type HandlerResolutionError struct {
	Tool    string
	Service string
}

func (e *HandlerResolutionError) Error() string {
	return fmt.Sprintf("tool '%s': handler not resolvable on service '%s'", e.Tool, e.Service)
}

// ExecutionError wraps a failure raised by the handler itself.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
