// ABOUTME: Configuration loading and parsing for civic-gateway.
// ABOUTME: YAML with environment variable expansion and fail-fast validation.

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/2389/civic-gateway/internal/realm"
)

// Config represents the complete civic-gateway configuration.
type Config struct {
	Server          ServerConfig      `yaml:"server"`
	Database        DatabaseConfig    `yaml:"database"`
	Auth            AuthConfig        `yaml:"auth"`
	Logging         LoggingConfig     `yaml:"logging"`
	Realms          []realm.Mapping   `yaml:"realms"`
	MethodOverrides map[string]string `yaml:"method_overrides"`
	Services        []ServiceConfig   `yaml:"services"`
	Tenants         TenantsConfig     `yaml:"tenants"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the audit database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds realm token configuration.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	RequireAuth bool   `yaml:"require_auth"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServiceConfig names one backing service the dispatcher builds tools for.
type ServiceConfig struct {
	ServiceName string `yaml:"service_name"`
	Prefix      string `yaml:"prefix"`
}

// TenantsConfig holds the allowed tenant set for multi-tenant callers.
// An empty list disables tenant validation.
type TenantsConfig struct {
	Allowed []string `yaml:"allowed"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
// Realm and service data is validated strictly: a malformed allow-list must
// stop the process before it serves anything.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.RequireAuth && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.require_auth is set")
	}

	seenRealms := make(map[string]bool, len(c.Realms))
	for i, m := range c.Realms {
		if m.RealmName == "" {
			return fmt.Errorf("realms[%d]: realm name is required", i)
		}
		if seenRealms[m.RealmName] {
			return fmt.Errorf("realms[%d]: duplicate realm '%s'", i, m.RealmName)
		}
		seenRealms[m.RealmName] = true
	}

	seenServices := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.ServiceName == "" || svc.Prefix == "" {
			return fmt.Errorf("services[%d]: service_name and prefix are required", i)
		}
		if seenServices[svc.ServiceName] {
			return fmt.Errorf("services[%d]: duplicate service '%s'", i, svc.ServiceName)
		}
		seenServices[svc.ServiceName] = true
	}

	return nil
}
