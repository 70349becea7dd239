// ABOUTME: Access gateway answering "may realm R reach capability X" from mapping data.
// ABOUTME: Resolves cross-realm SOA API calls through a service directory with overrides.

package realm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrRealmExists indicates AddMapping was called for an already-mapped realm.
var ErrRealmExists = errors.New("realm mapping already exists")

// ErrRealmNotFound indicates UpdateMapping was called for an unmapped realm.
var ErrRealmNotFound = errors.New("realm mapping not found")

// Callable is a resolved cross-realm API handler.
type Callable func(ctx context.Context, params map[string]any) (any, error)

// AbstractionProvider resolves infrastructure abstraction names to live
// handles. The gateway forwards to it only after an allow-list check passes.
type AbstractionProvider interface {
	Abstraction(name string) (any, error)
}

// SOAService exposes a service's remote-callable API methods by name.
// Services implement this instead of being probed by reflection, so
// resolution failures surface at lookup time with a typed error.
type SOAService interface {
	API(method string) (Callable, bool)
}

// ServiceDirectory resolves a service name to its live instance.
type ServiceDirectory interface {
	Service(name string) (SOAService, bool)
}

// Mapping declares what one realm may reach. This is pure data: no code path
// grants access outside what it lists. Multiple realms may share an
// abstraction; a realm without a mapping can reach nothing.
type Mapping struct {
	RealmName           string   `yaml:"realm" json:"realm_name"`
	AllowedAbstractions []string `yaml:"allowed_abstractions" json:"allowed_abstractions"`
	AllowedSOAAPIs      []string `yaml:"allowed_soa_apis" json:"allowed_soa_apis"`
	Description         string   `yaml:"description" json:"description"`
	BYOISupport         bool     `yaml:"byoi_support" json:"byoi_support"`
}

// realmEntry is the indexed form of a Mapping.
type realmEntry struct {
	mapping      Mapping
	abstractions map[string]struct{}
	soaAPIs      map[string]struct{}
}

func newRealmEntry(m Mapping) *realmEntry {
	e := &realmEntry{
		mapping:      m,
		abstractions: make(map[string]struct{}, len(m.AllowedAbstractions)),
		soaAPIs:      make(map[string]struct{}, len(m.AllowedSOAAPIs)),
	}
	for _, name := range m.AllowedAbstractions {
		e.abstractions[name] = struct{}{}
	}
	for _, name := range m.AllowedSOAAPIs {
		e.soaAPIs[name] = struct{}{}
	}
	return e
}

// Config contains construction options for the Gateway.
type Config struct {
	Mappings  []Mapping
	Overrides map[string]string // api name -> actual method name
	Infra     AbstractionProvider
	Directory ServiceDirectory
	Logger    *slog.Logger
}

// Gateway enforces realm access control over abstractions and cross-realm
// SOA APIs. The mapping table is written during bootstrap/reload only; reads
// during dispatch take the read lock.
type Gateway struct {
	mu        sync.RWMutex
	realms    map[string]*realmEntry
	overrides map[string]string
	infra     AbstractionProvider
	directory ServiceDirectory
	metrics   *metrics
	logger    *slog.Logger
}

// New creates a Gateway from declarative mapping data.
// Duplicate realm names in the initial mappings are a bootstrap failure.
func New(cfg Config) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		realms:    make(map[string]*realmEntry, len(cfg.Mappings)),
		overrides: make(map[string]string, len(cfg.Overrides)),
		infra:     cfg.Infra,
		directory: cfg.Directory,
		metrics:   newMetrics(),
		logger:    logger.With("component", "realm-gateway"),
	}
	for name, method := range cfg.Overrides {
		g.overrides[name] = method
	}
	for _, m := range cfg.Mappings {
		if m.RealmName == "" {
			return nil, fmt.Errorf("realm mapping with empty realm name")
		}
		if _, exists := g.realms[m.RealmName]; exists {
			return nil, fmt.Errorf("%w: '%s'", ErrRealmExists, m.RealmName)
		}
		g.realms[m.RealmName] = newRealmEntry(m)
		g.metrics.ensureRealm(m.RealmName)
	}

	g.logger.Info("access gateway initialized",
		"realms", len(g.realms),
		"method_overrides", len(g.overrides),
	)
	return g, nil
}

// ValidateAccess reports whether the realm may reach the named abstraction.
// Unknown realm means false; this never returns an error.
func (g *Gateway) ValidateAccess(realmName, abstraction string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.realms[realmName]
	if !ok {
		return false
	}
	_, allowed := entry.abstractions[abstraction]
	return allowed
}

// Abstraction returns the named infrastructure abstraction if the realm's
// allow-list permits it. Denials return *AccessDeniedError carrying the
// realm's full allowed set.
func (g *Gateway) Abstraction(realmName, abstraction string) (any, error) {
	g.mu.RLock()
	entry, ok := g.realms[realmName]
	g.mu.RUnlock()

	if !ok || !containsKey(entry.abstractions, abstraction) {
		g.metrics.recordDenial()
		denied := &AccessDeniedError{Realm: realmName, Requested: abstraction}
		if ok {
			denied.Allowed = entry.mapping.AllowedAbstractions
		}
		g.logger.Warn("abstraction access denied",
			"realm", realmName,
			"abstraction", abstraction,
		)
		return nil, denied
	}

	g.metrics.recordSuccess(realmName)

	if g.infra == nil {
		return nil, fmt.Errorf("abstraction '%s': no infrastructure provider configured", abstraction)
	}
	handle, err := g.infra.Abstraction(abstraction)
	if err != nil {
		return nil, fmt.Errorf("abstraction '%s': %w", abstraction, err)
	}
	return handle, nil
}

// Authorize checks the realm's abstraction allow-list and records metrics
// without resolving the abstraction. Used by the dispatch server, which only
// needs the yes/no answer plus the auditable denial payload.
func (g *Gateway) Authorize(realmName, name string) error {
	g.mu.RLock()
	entry, ok := g.realms[realmName]
	g.mu.RUnlock()

	if !ok || !containsKey(entry.abstractions, name) {
		g.metrics.recordDenial()
		denied := &AccessDeniedError{Realm: realmName, Requested: name}
		if ok {
			denied.Allowed = entry.mapping.AllowedAbstractions
		}
		g.logger.Warn("dispatch access denied",
			"realm", realmName,
			"capability", name,
		)
		return denied
	}

	g.metrics.recordSuccess(realmName)
	return nil
}

// ValidateSOAAPIAccess reports whether the realm may call the named API.
func (g *Gateway) ValidateSOAAPIAccess(realmName, apiName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.realms[realmName]
	if !ok {
		return false
	}
	_, allowed := entry.soaAPIs[apiName]
	return allowed
}

// SOAAPI resolves an allow-listed cross-realm API name ("service.method") to
// a callable on the live service instance. The method override table handles
// historical naming mismatches; an allow-listed name with no direct match
// and no override entry is a *HandlerResolutionError, never a silent no-op.
func (g *Gateway) SOAAPI(realmName, apiName string) (Callable, error) {
	g.mu.RLock()
	entry, ok := g.realms[realmName]
	g.mu.RUnlock()

	if !ok || !containsKey(entry.soaAPIs, apiName) {
		g.metrics.recordDenial()
		denied := &AccessDeniedError{Realm: realmName, Requested: apiName}
		if ok {
			denied.Allowed = entry.mapping.AllowedSOAAPIs
		}
		g.logger.Warn("soa api access denied",
			"realm", realmName,
			"api", apiName,
		)
		return nil, denied
	}

	serviceName, methodName, found := strings.Cut(apiName, ".")
	if !found || serviceName == "" || methodName == "" {
		return nil, fmt.Errorf("api '%s': expected '<service>.<method>' form", apiName)
	}

	if g.directory == nil {
		return nil, &ServiceNotFoundError{APIName: apiName, Service: serviceName}
	}
	svc, ok := g.directory.Service(serviceName)
	if !ok {
		return nil, &ServiceNotFoundError{APIName: apiName, Service: serviceName}
	}

	// Direct match first, then the override table.
	if fn, ok := svc.API(methodName); ok {
		g.metrics.recordSuccess(realmName)
		return fn, nil
	}
	if override, ok := g.overrides[apiName]; ok {
		if fn, ok := svc.API(override); ok {
			g.metrics.recordSuccess(realmName)
			return fn, nil
		}
		return nil, &HandlerResolutionError{APIName: apiName, Service: serviceName, Method: override}
	}
	return nil, &HandlerResolutionError{APIName: apiName, Service: serviceName, Method: methodName}
}

// AddMapping adds a realm to the allow-list table. Administrative: bootstrap
// or config reload only, never interleaved with dispatch in the same table
// generation.
func (g *Gateway) AddMapping(m Mapping) error {
	if m.RealmName == "" {
		return fmt.Errorf("realm name is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.realms[m.RealmName]; exists {
		return fmt.Errorf("%w: '%s'", ErrRealmExists, m.RealmName)
	}
	g.realms[m.RealmName] = newRealmEntry(m)
	g.metrics.ensureRealm(m.RealmName)

	g.logger.Info("realm mapping added",
		"realm", m.RealmName,
		"abstractions", len(m.AllowedAbstractions),
		"soa_apis", len(m.AllowedSOAAPIs),
	)
	return nil
}

// UpdateMapping replaces an existing realm's allow-list wholesale.
func (g *Gateway) UpdateMapping(m Mapping) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.realms[m.RealmName]; !exists {
		return fmt.Errorf("%w: '%s'", ErrRealmNotFound, m.RealmName)
	}
	g.realms[m.RealmName] = newRealmEntry(m)

	g.logger.Info("realm mapping updated",
		"realm", m.RealmName,
		"abstractions", len(m.AllowedAbstractions),
		"soa_apis", len(m.AllowedSOAAPIs),
	)
	return nil
}

// Mappings returns a copy of the current realm mapping table, sorted by
// realm name. For introspection and health endpoints.
func (g *Gateway) Mappings() []Mapping {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Mapping, 0, len(g.realms))
	for _, entry := range g.realms {
		result = append(result, entry.mapping)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RealmName < result[j].RealmName
	})
	return result
}

// Metrics returns a snapshot of the access counters.
func (g *Gateway) Metrics() MetricsSnapshot {
	return g.metrics.snapshot()
}

// HealthStatus describes the gateway's current state.
type HealthStatus struct {
	Status  string         `json:"status"`
	Realms  int            `json:"realms"`
	Metrics MetricsSnapshot `json:"metrics"`
}

// HealthCheck reports the gateway's health. A gateway with no realm mappings
// is degraded: it would deny every request.
func (g *Gateway) HealthCheck() HealthStatus {
	g.mu.RLock()
	realmCount := len(g.realms)
	g.mu.RUnlock()

	status := "healthy"
	if realmCount == 0 {
		status = "degraded"
	}
	return HealthStatus{
		Status:  status,
		Realms:  realmCount,
		Metrics: g.metrics.snapshot(),
	}
}

func containsKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
