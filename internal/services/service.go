// ABOUTME: Service interface and the Directory aggregating built-in services.
// ABOUTME: Adapts the set to the registry, dispatcher, and access gateway.

package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/realm"
	"github.com/2389/civic-gateway/internal/registry"
)

// Service is one in-process backing service. Name is the registry service
// name; Prefix is the dispatch namespacing shorthand. Handler satisfies
// dispatch.CapabilityProvider and API satisfies realm.SOAService.
type Service interface {
	Name() string
	Prefix() string
	Definitions() []registry.CapabilityDefinition
	Abstractions() []string
	Handler(toolName string) (dispatch.Handler, bool)
	API(method string) (realm.Callable, bool)
}

// Directory holds the live service set. Built once at startup; reads during
// dispatch need no lock, but the lock keeps AddService safe for tests that
// assemble directories incrementally.
type Directory struct {
	mu           sync.RWMutex
	byName       map[string]Service
	byPrefix     map[string]Service
	abstractions map[string]Service
}

// NewDirectory assembles a directory from the given services. Duplicate
// service names, prefixes, or abstraction names are a startup failure.
func NewDirectory(svcs ...Service) (*Directory, error) {
	d := &Directory{
		byName:       make(map[string]Service, len(svcs)),
		byPrefix:     make(map[string]Service, len(svcs)),
		abstractions: make(map[string]Service),
	}
	for _, svc := range svcs {
		if err := d.AddService(svc); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddService adds one service to the directory.
func (d *Directory) AddService(svc Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service with empty name")
	}
	if _, exists := d.byName[name]; exists {
		return fmt.Errorf("duplicate service name '%s'", name)
	}
	prefix := svc.Prefix()
	if other, exists := d.byPrefix[prefix]; exists {
		return fmt.Errorf("prefix '%s' already used by '%s'", prefix, other.Name())
	}
	for _, a := range svc.Abstractions() {
		if other, exists := d.abstractions[a]; exists {
			return fmt.Errorf("abstraction '%s' already provided by '%s'", a, other.Name())
		}
	}

	d.byName[name] = svc
	d.byPrefix[prefix] = svc
	for _, a := range svc.Abstractions() {
		d.abstractions[a] = svc
	}
	return nil
}

// Service resolves a service by its dispatch prefix, the form cross-realm
// API names use ("post_office.send_event"). Implements realm.ServiceDirectory.
func (d *Directory) Service(name string) (realm.SOAService, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	svc, ok := d.byPrefix[name]
	if !ok {
		return nil, false
	}
	return svc, true
}

// Abstraction resolves an infrastructure abstraction name to the service
// providing it. Implements realm.AbstractionProvider; the gateway calls this
// only after the realm's allow-list check passed.
func (d *Directory) Abstraction(name string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	svc, ok := d.abstractions[name]
	if !ok {
		return nil, fmt.Errorf("no service provides abstraction '%s'", name)
	}
	return svc, nil
}

// RegisterAll registers every service's capability definitions with the
// registry. Called once during bootstrap, before the dispatch table is built.
func (d *Directory) RegisterAll(reg *registry.Registry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, svc := range d.sortedLocked() {
		for _, def := range svc.Definitions() {
			if err := reg.Register(def); err != nil {
				return fmt.Errorf("registering %s/%s: %w", def.ServiceName, def.CapabilityName, err)
			}
		}
	}
	return nil
}

// Backing returns the dispatcher's backing-service list, sorted by service
// name so bootstrap order is deterministic.
func (d *Directory) Backing() []dispatch.BackingService {
	d.mu.RLock()
	defer d.mu.RUnlock()

	svcs := d.sortedLocked()
	backing := make([]dispatch.BackingService, 0, len(svcs))
	for _, svc := range svcs {
		backing = append(backing, dispatch.BackingService{
			ServiceName: svc.Name(),
			Prefix:      svc.Prefix(),
			Provider:    svc,
		})
	}
	return backing
}

func (d *Directory) sortedLocked() []Service {
	svcs := make([]Service, 0, len(d.byName))
	for _, svc := range d.byName {
		svcs = append(svcs, svc)
	}
	sort.Slice(svcs, func(i, j int) bool { return svcs[i].Name() < svcs[j].Name() })
	return svcs
}

// stringParam extracts a required string parameter from a tool call.
func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// intParam extracts an optional integer parameter, returning fallback when
// absent. JSON numbers arrive as float64.
func intParam(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
