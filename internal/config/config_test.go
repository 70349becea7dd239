// ABOUTME: Tests for config loading, env expansion, and fail-fast validation.
// ABOUTME: Covers malformed realm and service data rejection.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
server:
  http_addr: ":8080"
database:
  path: "data/audit.db"
auth:
  jwt_secret: "${CIVIC_TEST_SECRET}"
  require_auth: true
logging:
  level: debug
  format: json
realms:
  - realm: journey
    allowed_abstractions: [messaging, session]
    allowed_soa_apis: [post_office.publish_event]
    description: workflow orchestration realm
  - realm: content
    allowed_abstractions: [file_management]
    byoi_support: true
method_overrides:
  post_office.publish_event: send_event
services:
  - service_name: PostOfficeService
    prefix: post_office
  - service_name: LibrarianService
    prefix: librarian
tenants:
  allowed: [tenant-a, tenant-b]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	t.Setenv("CIVIC_TEST_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "data/audit.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Auth.RequireAuth)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Realms, 2)
	assert.Equal(t, "journey", cfg.Realms[0].RealmName)
	assert.Equal(t, []string{"messaging", "session"}, cfg.Realms[0].AllowedAbstractions)
	assert.True(t, cfg.Realms[1].BYOISupport)

	assert.Equal(t, "send_event", cfg.MethodOverrides["post_office.publish_event"])
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "post_office", cfg.Services[0].Prefix)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, cfg.Tenants.Allowed)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not: valid"))
	assert.Error(t, err)
}

func TestValidate_FailsFast(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "auth required without secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "jwt_secret",
		},
		{
			name:    "empty realm name",
			mutate:  func(c *Config) { c.Realms[0].RealmName = "" },
			wantErr: "realm name",
		},
		{
			name:    "duplicate realm",
			mutate:  func(c *Config) { c.Realms[1].RealmName = "journey" },
			wantErr: "duplicate realm",
		},
		{
			name:    "service without prefix",
			mutate:  func(c *Config) { c.Services[0].Prefix = "" },
			wantErr: "prefix",
		},
		{
			name:    "duplicate service",
			mutate:  func(c *Config) { c.Services[1].ServiceName = "PostOfficeService" },
			wantErr: "duplicate service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CIVIC_TEST_SECRET", "s3cret")
			cfg, err := Load(writeConfig(t, validConfig))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars_UnsetIsEmpty(t *testing.T) {
	assert.Equal(t, "value: ", expandEnvVars("value: ${DEFINITELY_NOT_SET_VAR}"))
}
