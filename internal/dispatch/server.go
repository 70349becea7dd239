// ABOUTME: Dynamic dispatch server: builds the namespaced tool table from the
// ABOUTME: capability registry and executes calls with authz, telemetry, and health.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/civic-gateway/internal/registry"
)

// Version is the dispatch surface version advertised by VersionInfo.
const Version = "2.0.0"

// compatibleWith lists surface versions callers built against still work.
var compatibleWith = []string{"1.0", "1.1"}

// Authorizer answers realm allow-list checks. Denials come back as typed
// errors carrying the realm's actual allowed set.
type Authorizer interface {
	Authorize(realmName, name string) error
}

// TenantValidator checks whether a tenant may use the dispatch surface.
type TenantValidator interface {
	ValidateTenant(ctx context.Context, tenantID string) (bool, error)
}

// Recorder receives one event per dispatch, regardless of outcome.
type Recorder interface {
	RecordDispatch(ctx context.Context, ev DispatchEvent)
}

// DispatchEvent is the telemetry record for one tool call.
type DispatchEvent struct {
	RequestID string
	Tool      string
	Realm     string
	TenantID  string
	UserID    string
	Success   bool
	Error     string
	Duration  time.Duration
	StartedAt time.Time
}

// toolStats tracks per-tool call outcomes. Entries are created during
// bootstrap only; steady-state dispatch does atomic increments.
type toolStats struct {
	calls    atomic.Int64
	failures atomic.Int64
}

// Config holds construction options for the Server.
type Config struct {
	Registry   *registry.Registry
	Authorizer Authorizer      // optional; nil skips realm checks
	Tenants    TenantValidator // optional; nil skips tenant checks
	Recorder   Recorder        // optional; nil skips audit recording
	Services   []BackingService
	Logger     *slog.Logger
}

// Server is the dynamic dispatch server. The tool table is write-once during
// Bootstrap and read-only afterward; no lock is taken around handler
// invocation, so concurrent calls to the same tool run independently.
type Server struct {
	registry   *registry.Registry
	authorizer Authorizer
	tenants    TenantValidator
	recorder   Recorder
	services   []BackingService
	logger     *slog.Logger

	mu       sync.RWMutex
	tools    map[string]*RegisteredTool
	statuses map[string]*ServiceStatus
	stats    map[string]*toolStats

	bootstrapped atomic.Bool
}

// NewServer creates a dispatch server. Call Bootstrap before serving.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:   cfg.Registry,
		authorizer: cfg.Authorizer,
		tenants:    cfg.Tenants,
		recorder:   cfg.Recorder,
		services:   cfg.Services,
		logger:     logger.With("component", "dispatch"),
		tools:      make(map[string]*RegisteredTool),
		statuses:   make(map[string]*ServiceStatus),
		stats:      make(map[string]*toolStats),
	}, nil
}

// Bootstrap discovers capabilities for every configured backing service and
// builds the tool table. A service that fails discovery or registration is
// recorded as registration_failed and skipped; the remaining services'
// tools stay callable. Bootstrap itself only fails on being called twice.
func (s *Server) Bootstrap(ctx context.Context) error {
	if !s.bootstrapped.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatch server already bootstrapped")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, svc := range s.services {
		status := &ServiceStatus{
			ServiceName: svc.ServiceName,
			Prefix:      svc.Prefix,
			State:       StateUnregistered,
		}
		s.statuses[svc.ServiceName] = status

		if err := ctx.Err(); err != nil {
			status.State = StateRegistrationFailed
			status.Error = err.Error()
			continue
		}

		s.registerService(svc, status)
	}

	registered := 0
	for _, st := range s.statuses {
		if st.State == StateRegistered {
			registered++
		}
	}
	s.logger.Info("=== DISPATCH TABLE BUILT ===",
		"services_registered", registered,
		"services_failed", len(s.statuses)-registered,
		"tools_registered", len(s.tools),
	)
	return nil
}

// registerService runs one service through the bootstrap state machine.
// Caller holds the write lock.
func (s *Server) registerService(svc BackingService, status *ServiceStatus) {
	status.State = StateDiscovering
	caps := s.registry.GetByService(svc.ServiceName)

	status.State = StateRegistering
	if svc.Provider == nil {
		status.State = StateRegistrationFailed
		status.Error = "no capability provider"
		s.logger.Error("service registration failed",
			"service", svc.ServiceName,
			"error", status.Error,
		)
		return
	}

	toolContracts := 0
	var firstErr error
	for _, cap := range caps {
		contract := cap.Contracts.MCPTool
		if contract == nil || contract.ToolName == "" {
			continue
		}
		toolContracts++

		namespaced, base := namespaceTool(svc.Prefix, contract.ToolName)

		// Registration-time verification: the provider must actually have
		// a handler for the contract's tool.
		if _, ok := svc.Provider.Handler(base); !ok {
			err := fmt.Errorf("contract tool '%s' has no handler on service '%s'", base, svc.ServiceName)
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("tool registration failed",
				"service", svc.ServiceName,
				"tool", namespaced,
				"error", err,
			)
			continue
		}

		if existing, taken := s.tools[namespaced]; taken {
			err := fmt.Errorf("%w: tool '%s' already registered by service '%s'",
				ErrToolCollision, namespaced, existing.OwningService)
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("tool registration rejected, keeping original",
				"service", svc.ServiceName,
				"tool", namespaced,
				"owner", existing.OwningService,
			)
			continue
		}

		s.tools[namespaced] = &RegisteredTool{
			NamespacedName: namespaced,
			BaseName:       base,
			CapabilityName: cap.CapabilityName,
			OwningService:  svc.Prefix,
			InputSchema:    contract.InputSchema,
			Description:    contract.Description,
			provider:       svc.Provider,
		}
		s.stats[namespaced] = &toolStats{}
		status.Tools++
	}

	if toolContracts > 0 && status.Tools == 0 {
		// Every contract failed verification or collided: the service has
		// nothing callable, which is a registration failure.
		status.State = StateRegistrationFailed
		status.Error = firstErr.Error()
		return
	}

	status.State = StateRegistered
	if firstErr != nil {
		status.Error = firstErr.Error()
	}
	s.logger.Info("service registered",
		"service", svc.ServiceName,
		"prefix", svc.Prefix,
		"tools", status.Tools,
	)
}

// namespaceTool derives the table-wide unique name and the base name used
// for provider lookup. A contract name already carrying the prefix is kept
// as-is.
func namespaceTool(prefix, toolName string) (namespaced, base string) {
	if strings.HasPrefix(toolName, prefix+"_") {
		return toolName, strings.TrimPrefix(toolName, prefix+"_")
	}
	return prefix + "_" + toolName, toolName
}

// ExecuteTool looks up and runs a tool. It is the single outermost boundary:
// every failure, including a handler panic, comes back as a Result envelope
// with Success=false and the underlying error's message text preserved.
func (s *Server) ExecuteTool(ctx context.Context, toolName string, params map[string]any, caller CallerContext) Result {
	requestID := uuid.New().String()
	start := time.Now()

	result := s.executeTool(ctx, toolName, params, caller)

	duration := time.Since(start)
	if st := s.lookupStats(toolName); st != nil {
		st.calls.Add(1)
		if !result.Success {
			st.failures.Add(1)
		}
	}
	if s.recorder != nil {
		s.recorder.RecordDispatch(ctx, DispatchEvent{
			RequestID: requestID,
			Tool:      toolName,
			Realm:     caller.Realm,
			TenantID:  caller.TenantID,
			UserID:    caller.UserID,
			Success:   result.Success,
			Error:     result.Error,
			Duration:  duration,
			StartedAt: start,
		})
	}

	s.logger.Debug("tool call complete",
		"tool", toolName,
		"request_id", requestID,
		"realm", caller.Realm,
		"success", result.Success,
		"duration", duration,
	)
	return result
}

func (s *Server) executeTool(ctx context.Context, toolName string, params map[string]any, caller CallerContext) Result {
	s.mu.RLock()
	tool, ok := s.tools[toolName]
	s.mu.RUnlock()

	if !ok {
		err := &ToolNotFoundError{Name: toolName, Known: s.ListTools()}
		return Result{Success: false, Error: err.Error()}
	}

	// Authorization happens before the handler runs, never after.
	if caller.Realm != "" && s.authorizer != nil {
		if err := s.authorizer.Authorize(caller.Realm, tool.CapabilityName); err != nil {
			return Result{Success: false, Error: err.Error()}
		}
	}
	if caller.TenantID != "" && s.tenants != nil {
		allowed, err := s.tenants.ValidateTenant(ctx, caller.TenantID)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("tenant validation: %v", err)}
		}
		if !allowed {
			denied := &TenantAccessDeniedError{TenantID: caller.TenantID, Realm: caller.Realm}
			return Result{Success: false, Error: denied.Error()}
		}
	}

	// Late binding: resolve through the provider on every call rather than
	// caching the handler at registration, so a service re-initialized after
	// bootstrap serves its current handler.
	handler, ok := tool.provider.Handler(tool.BaseName)
	if !ok {
		err := &HandlerResolutionError{Tool: toolName, Service: tool.OwningService}
		return Result{Success: false, Error: err.Error()}
	}

	out, err := s.invoke(ctx, toolName, handler, params)
	if err != nil {
		execErr := &ExecutionError{Tool: toolName, Err: err}
		return Result{Success: false, Error: execErr.Error()}
	}
	return Result{Success: true, Result: out}
}

// invoke runs the handler with panic recovery. A panicking handler becomes
// an error like any other; it never escapes the dispatch boundary.
func (s *Server) invoke(ctx context.Context, toolName string, handler Handler, params map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				"tool", toolName,
				"panic", r,
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, params)
}

func (s *Server) lookupStats(toolName string) *toolStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats[toolName]
}

// ListTools returns the sorted namespaced names of every registered tool.
func (s *Server) ListTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolSchema returns the input schema and description for one tool.
func (s *Server) ToolSchema(toolName string) (ToolSchema, error) {
	s.mu.RLock()
	tool, ok := s.tools[toolName]
	s.mu.RUnlock()

	if !ok {
		return ToolSchema{}, &ToolNotFoundError{Name: toolName, Known: s.ListTools()}
	}
	return ToolSchema{
		Name:        tool.NamespacedName,
		InputSchema: tool.InputSchema,
		Description: tool.Description,
		Owner:       tool.OwningService,
	}, nil
}

// ToolFailures returns the failure count for one tool. For health surfaces
// and tests.
func (s *Server) ToolFailures(toolName string) int64 {
	if st := s.lookupStats(toolName); st != nil {
		return st.failures.Load()
	}
	return 0
}

// HealthStatus is the dispatcher's health view: overall status, per-service
// bootstrap outcome, and the registered tool count.
type HealthStatus struct {
	Status          string                   `json:"status"` // healthy | degraded | error
	PerService      map[string]ServiceStatus `json:"per_service_status"`
	ToolsRegistered int                      `json:"tools_registered"`
}

// GetHealthStatus reports healthy when every service registered, degraded on
// partial failure, and error when nothing is callable.
func (s *Server) GetHealthStatus() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perService := make(map[string]ServiceStatus, len(s.statuses))
	failed := 0
	for name, st := range s.statuses {
		perService[name] = *st
		if st.State == StateRegistrationFailed {
			failed++
		}
	}

	status := "healthy"
	switch {
	case len(s.tools) == 0:
		status = "error"
	case failed > 0:
		status = "degraded"
	}

	return HealthStatus{
		Status:          status,
		PerService:      perService,
		ToolsRegistered: len(s.tools),
	}
}

// VersionInfo describes the dispatch surface version.
type VersionInfo struct {
	Version        string   `json:"version"`
	CompatibleWith []string `json:"compatible_with"`
}

// GetVersionInfo returns the surface version and the versions it remains
// compatible with.
func (s *Server) GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:        Version,
		CompatibleWith: append([]string(nil), compatibleWith...),
	}
}
