// ABOUTME: Entry point for the civic-gateway server.
// ABOUTME: Serves the dispatch endpoint and offers health, tools, and token commands.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/civic-gateway/internal/auth"
	"github.com/2389/civic-gateway/internal/config"
	"github.com/2389/civic-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _       _                        _
   ___(_)_   _(_) ___       __ _  __ _| |_ _____      ____ _ _   _
  / __| \ \ / / |/ __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (__| |\ V /| | (_|_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \___|_| \_/ |_|\___|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CIVIC_CONFIG env var > XDG_CONFIG_HOME/civic/gateway.yaml > ~/.config/civic/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CIVIC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "civic", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: civic-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  health                     Check gateway health")
		fmt.Println("  tools                      List registered tools")
		fmt.Println("  token --realm REALM        Issue a realm access token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	case "token":
		err = runToken()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Realms:   %d\n", len(cfg.Realms))
	if !cfg.Auth.RequireAuth {
		yellow.Print("    ▶ ")
		fmt.Println("Auth:     disabled (anonymous dispatch allowed)")
	}

	fmt.Println()

	logger.Info("starting civic-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"realms", len(cfg.Realms),
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(string(body))
	return nil
}

// runTools lists the registered tools via the JSON-RPC endpoint. Uses the
// token saved next to the config file when the server requires auth.
func runTools(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	url := fmt.Sprintf("http://%s/mcp", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	tokenPath := filepath.Join(filepath.Dir(getConfigPath()), "token")
	if token, err := os.ReadFile(tokenPath); err == nil {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("server error: %s", rpcResp.Error.Message)
	}

	cyan := color.New(color.FgCyan)
	for _, tool := range rpcResp.Result.Tools {
		cyan.Printf("%-32s", tool.Name)
		fmt.Println(tool.Description)
	}
	fmt.Printf("\n%d tools\n", len(rpcResp.Result.Tools))
	return nil
}

// runToken issues a realm access token signed with the configured secret
// and saves it next to the config file for the other commands to use.
func runToken() error {
	var realmName, tenantID, userID string
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--realm":
			realmName, err = next()
		case strings.HasPrefix(arg, "--realm="):
			realmName = strings.TrimPrefix(arg, "--realm=")
		case arg == "--tenant":
			tenantID, err = next()
		case strings.HasPrefix(arg, "--tenant="):
			tenantID = strings.TrimPrefix(arg, "--tenant=")
		case arg == "--user":
			userID, err = next()
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case arg == "--ttl":
			var raw string
			if raw, err = next(); err == nil {
				ttl, err = time.ParseDuration(raw)
			}
		case strings.HasPrefix(arg, "--ttl="):
			ttl, err = time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return err
		}
	}

	if realmName == "" {
		return fmt.Errorf("--realm flag is required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	manager := auth.NewJWTManager([]byte(cfg.Auth.JWTSecret))
	token, err := manager.Issue(auth.Identity{
		Realm:    realmName,
		TenantID: tenantID,
		UserID:   userID,
	}, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Saved token: %s\n", tokenPath)
	fmt.Printf("  Realm:   %s\n", realmName)
	if tenantID != "" {
		fmt.Printf("  Tenant:  %s\n", tenantID)
	}
	if userID != "" {
		fmt.Printf("  User:    %s\n", userID)
	}
	fmt.Printf("  Expires: %s\n", time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println(token)
	return nil
}
