// ABOUTME: Gateway orchestrator that assembles and runs the server.
// ABOUTME: Manages registry, access gateway, dispatch, store, and HTTP lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/civic-gateway/internal/auth"
	"github.com/2389/civic-gateway/internal/config"
	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/mcp"
	"github.com/2389/civic-gateway/internal/realm"
	"github.com/2389/civic-gateway/internal/registry"
	"github.com/2389/civic-gateway/internal/services"
	"github.com/2389/civic-gateway/internal/store"
)

// Gateway orchestrates the server components. Build with New, run with Run.
type Gateway struct {
	config     *config.Config
	registry   *registry.Registry
	realms     *realm.Gateway
	dispatcher *dispatch.Server
	store      *store.SQLiteStore
	httpServer *http.Server
	logger     *slog.Logger
}

// New assembles a gateway from configuration. The dispatch table is not
// built yet; Run bootstraps it before serving.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	directory, err := buildDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("building service directory: %w", err)
	}

	reg := registry.New(logger)
	if err := directory.RegisterAll(reg); err != nil {
		return nil, fmt.Errorf("registering capabilities: %w", err)
	}

	realms, err := realm.New(realm.Config{
		Mappings:  cfg.Realms,
		Overrides: cfg.MethodOverrides,
		Infra:     directory,
		Directory: directory,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating access gateway: %w", err)
	}

	auditStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var tenants dispatch.TenantValidator
	if len(cfg.Tenants.Allowed) > 0 {
		tenants = allowedTenants(cfg.Tenants.Allowed)
	}

	dispatcher, err := dispatch.NewServer(dispatch.Config{
		Registry:   reg,
		Authorizer: realms,
		Tenants:    tenants,
		Recorder:   &auditRecorder{store: auditStore, logger: logger},
		Services:   directory.Backing(),
		Logger:     logger,
	})
	if err != nil {
		auditStore.Close()
		return nil, fmt.Errorf("creating dispatch server: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTManager([]byte(cfg.Auth.JWTSecret))
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Dispatcher:  dispatcher,
		Gateway:     realms,
		Verifier:    verifier,
		RequireAuth: cfg.Auth.RequireAuth,
		Logger:      logger,
	})
	if err != nil {
		auditStore.Close()
		return nil, fmt.Errorf("creating http bridge: %w", err)
	}

	mux := http.NewServeMux()
	mcpServer.RegisterRoutes(mux)

	return &Gateway{
		config:     cfg,
		registry:   reg,
		realms:     realms,
		dispatcher: dispatcher,
		store:      auditStore,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// buildDirectory constructs the built-in service set. An empty services
// section enables every built-in; a non-empty one selects by service name.
func buildDirectory(cfg *config.Config) (*services.Directory, error) {
	builtins := []services.Service{
		services.NewPostOffice(),
		services.NewLibrarian(),
	}
	if len(cfg.Services) == 0 {
		return services.NewDirectory(builtins...)
	}

	byName := make(map[string]services.Service, len(builtins))
	for _, svc := range builtins {
		byName[svc.Name()] = svc
	}

	enabled := make([]services.Service, 0, len(cfg.Services))
	for _, sc := range cfg.Services {
		svc, ok := byName[sc.ServiceName]
		if !ok {
			return nil, fmt.Errorf("unknown service '%s' in config", sc.ServiceName)
		}
		if sc.Prefix != "" && sc.Prefix != svc.Prefix() {
			return nil, fmt.Errorf("service '%s' prefix is '%s', config says '%s'",
				sc.ServiceName, svc.Prefix(), sc.Prefix)
		}
		enabled = append(enabled, svc)
	}
	return services.NewDirectory(enabled...)
}

// Run bootstraps the dispatch table and serves HTTP until the context is
// canceled or the listener fails.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.dispatcher.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping dispatch server: %w", err)
	}

	health := g.dispatcher.GetHealthStatus()
	g.logger.Info("gateway ready",
		"http_addr", g.config.Server.HTTPAddr,
		"status", health.Status,
		"tools", health.ToolsRegistered,
		"realms", len(g.realms.Mappings()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		g.logger.Error("server error", "error", serveErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown drains in-flight requests with a fresh context; the
// original context is already canceled by the time we get here.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the audit store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	g.logger.Info("shutdown complete")
	return firstErr
}

// Dispatcher exposes the dispatch server for health and tooling commands.
func (g *Gateway) Dispatcher() *dispatch.Server { return g.dispatcher }

// allowedTenants validates tenants against a fixed allow-list.
type allowedTenants []string

func (a allowedTenants) ValidateTenant(ctx context.Context, tenantID string) (bool, error) {
	for _, id := range a {
		if id == tenantID {
			return true, nil
		}
	}
	return false, nil
}

// auditRecorder bridges dispatch telemetry into the sqlite audit log.
// Recording failures are logged, never surfaced to the caller.
type auditRecorder struct {
	store  *store.SQLiteStore
	logger *slog.Logger
}

func (r *auditRecorder) RecordDispatch(ctx context.Context, ev dispatch.DispatchEvent) {
	rec := store.DispatchRecord{
		RequestID: ev.RequestID,
		Tool:      ev.Tool,
		Realm:     ev.Realm,
		TenantID:  ev.TenantID,
		UserID:    ev.UserID,
		Success:   ev.Success,
		Error:     ev.Error,
		Duration:  ev.Duration,
		StartedAt: ev.StartedAt,
	}
	if err := r.store.AppendDispatch(ctx, rec); err != nil {
		r.logger.Warn("failed to record dispatch", "tool", ev.Tool, "error", err)
	}
}
