// ABOUTME: Thread-safe in-memory catalog of service capabilities.
// ABOUTME: Handles registration with conflict detection and lookup by service.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrCapabilityConflict indicates a capability with the same identity already
// exists with different contract content.
var ErrCapabilityConflict = errors.New("capability conflict")

// ErrCapabilityNotFound indicates the requested capability is not registered.
var ErrCapabilityNotFound = errors.New("capability not found")

// Registry is the single source of truth for what each service can do and
// how to reach it. It has no side effects beyond the in-memory table and no
// knowledge of realms or authorization.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]*CapabilityDefinition // service -> capability -> def
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]map[string]*CapabilityDefinition),
		logger:   logger.With("component", "registry"),
	}
}

// Register stores a capability definition.
// Registering identical content again is a no-op that bumps the version.
// Returns ErrCapabilityConflict if the (service, capability) pair already
// exists with different contract content; use Replace for wholesale updates.
func (r *Registry) Register(def CapabilityDefinition) error {
	if def.ServiceName == "" || def.CapabilityName == "" {
		return fmt.Errorf("service and capability names are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	caps := r.services[def.ServiceName]
	if existing, ok := caps[def.CapabilityName]; ok {
		if !existing.Contracts.Equal(def.Contracts) {
			return fmt.Errorf("%w: capability '%s' already registered by '%s' with different contracts",
				ErrCapabilityConflict, def.CapabilityName, def.ServiceName)
		}
		existing.Version++
		r.logger.Debug("capability re-registered",
			"service", def.ServiceName,
			"capability", def.CapabilityName,
			"version", existing.Version,
		)
		return nil
	}

	if caps == nil {
		caps = make(map[string]*CapabilityDefinition)
		r.services[def.ServiceName] = caps
	}

	stored := def
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.RegisteredAt.IsZero() {
		stored.RegisteredAt = time.Now().UTC()
	}
	caps[def.CapabilityName] = &stored

	r.logger.Info("capability registered",
		"service", def.ServiceName,
		"capability", def.CapabilityName,
		"protocol", def.ProtocolName,
		"has_soa_api", def.Contracts.SOAAPI != nil,
		"has_mcp_tool", def.Contracts.MCPTool != nil,
	)
	return nil
}

// Replace stores a capability definition, overwriting any existing entry
// wholesale. Contracts are never merged field-by-field. Intended for
// bootstrap-time updates only.
func (r *Registry) Replace(def CapabilityDefinition) error {
	if def.ServiceName == "" || def.CapabilityName == "" {
		return fmt.Errorf("service and capability names are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := def
	stored.RegisteredAt = time.Now().UTC()
	stored.Version = 1

	caps := r.services[def.ServiceName]
	if caps == nil {
		caps = make(map[string]*CapabilityDefinition)
		r.services[def.ServiceName] = caps
	} else if existing, ok := caps[def.CapabilityName]; ok {
		stored.Version = existing.Version + 1
	}
	caps[def.CapabilityName] = &stored

	r.logger.Info("capability replaced",
		"service", def.ServiceName,
		"capability", def.CapabilityName,
		"version", stored.Version,
	)
	return nil
}

// GetByService returns all capability definitions for a service.
// Returns an empty slice, never an error, for an unknown service: absence is
// a valid state, not a fault.
func (r *Registry) GetByService(serviceName string) []CapabilityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := r.services[serviceName]
	result := make([]CapabilityDefinition, 0, len(caps))
	for _, def := range caps {
		result = append(result, *def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CapabilityName < result[j].CapabilityName
	})
	return result
}

// Get returns the capability definition for (service, capability), if present.
func (r *Registry) Get(serviceName, capabilityName string) (CapabilityDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.services[serviceName][capabilityName]
	if !ok {
		return CapabilityDefinition{}, false
	}
	return *def, true
}

// ListAll returns every registered capability definition, primarily for
// introspection and health endpoints.
func (r *Registry) ListAll() []CapabilityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []CapabilityDefinition
	for _, caps := range r.services {
		for _, def := range caps {
			result = append(result, *def)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ServiceName != result[j].ServiceName {
			return result[i].ServiceName < result[j].ServiceName
		}
		return result[i].CapabilityName < result[j].CapabilityName
	})
	return result
}

// ServiceCount returns the number of services with at least one capability.
func (r *Registry) ServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
