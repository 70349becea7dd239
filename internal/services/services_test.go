// ABOUTME: Tests for the built-in services and the directory: tool handlers,
// ABOUTME: SOA API resolution, and registry bootstrap.

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/civic-gateway/internal/registry"
)

func TestPostOfficeSendAndGet(t *testing.T) {
	p := NewPostOffice()
	ctx := context.Background()

	send, ok := p.Handler("send_event")
	require.True(t, ok)

	for _, topic := range []string{"permits", "permits", "transit"} {
		res, err := send(ctx, map[string]any{"topic": topic, "payload": map[string]any{"n": 1}})
		require.NoError(t, err)
		assert.Equal(t, "sent", res.(map[string]any)["status"])
	}

	get, ok := p.Handler("get_events")
	require.True(t, ok)

	res, err := get(ctx, map[string]any{"topic": "permits"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.(map[string]any)["count"])

	res, err = get(ctx, map[string]any{"limit": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.(map[string]any)["count"])
}

func TestPostOfficeSendRequiresTopic(t *testing.T) {
	p := NewPostOffice()
	send, _ := p.Handler("send_event")

	_, err := send(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestPostOfficeEventCapBounded(t *testing.T) {
	p := NewPostOffice()
	p.cap = 3
	send, _ := p.Handler("send_event")
	get, _ := p.Handler("get_events")

	for i := 0; i < 5; i++ {
		_, err := send(context.Background(), map[string]any{"topic": "x"})
		require.NoError(t, err)
	}

	res, err := get(context.Background(), map[string]any{"limit": float64(100)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.(map[string]any)["count"])
}

func TestLibrarianStoreGetList(t *testing.T) {
	l := NewLibrarian()
	ctx := context.Background()

	store, ok := l.Handler("store_file")
	require.True(t, ok)
	_, err := store(ctx, map[string]any{"path": "plans/2026.md", "content": "draft"})
	require.NoError(t, err)
	_, err = store(ctx, map[string]any{"path": "notes.md", "content": "misc"})
	require.NoError(t, err)

	get, ok := l.Handler("get_file")
	require.True(t, ok)
	res, err := get(ctx, map[string]any{"path": "plans/2026.md"})
	require.NoError(t, err)
	assert.Equal(t, "draft", res.(Document).Content)

	_, err = get(ctx, map[string]any{"path": "missing.md"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.md")

	list, ok := l.Handler("list_files")
	require.True(t, ok)
	res, err = list(ctx, map[string]any{"prefix": "plans/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"plans/2026.md"}, res.(map[string]any)["paths"])
}

func TestDirectoryResolvesByPrefix(t *testing.T) {
	d, err := NewDirectory(NewPostOffice(), NewLibrarian())
	require.NoError(t, err)

	svc, ok := d.Service("post_office")
	require.True(t, ok)
	fn, ok := svc.API("send_event")
	require.True(t, ok)
	require.NotNil(t, fn)

	_, ok = d.Service("PostOfficeService")
	assert.False(t, ok, "directory resolves by prefix, not registry name")

	_, ok = d.Service("unknown")
	assert.False(t, ok)
}

func TestDirectoryAbstractions(t *testing.T) {
	d, err := NewDirectory(NewPostOffice(), NewLibrarian())
	require.NoError(t, err)

	handle, err := d.Abstraction("messaging")
	require.NoError(t, err)
	assert.IsType(t, &PostOffice{}, handle)

	_, err = d.Abstraction("payments")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments")
}

func TestDirectoryRejectsDuplicates(t *testing.T) {
	_, err := NewDirectory(NewPostOffice(), NewPostOffice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegisterAll(t *testing.T) {
	d, err := NewDirectory(NewPostOffice(), NewLibrarian())
	require.NoError(t, err)

	reg := registry.New(nil)
	require.NoError(t, d.RegisterAll(reg))

	caps := reg.GetByService("LibrarianService")
	assert.Len(t, caps, 3)
	caps = reg.GetByService("PostOfficeService")
	assert.Len(t, caps, 2)

	// Re-running bootstrap registration is idempotent.
	require.NoError(t, d.RegisterAll(reg))
}

func TestBackingSortedAndComplete(t *testing.T) {
	d, err := NewDirectory(NewPostOffice(), NewLibrarian())
	require.NoError(t, err)

	backing := d.Backing()
	require.Len(t, backing, 2)
	assert.Equal(t, "LibrarianService", backing[0].ServiceName)
	assert.Equal(t, "librarian", backing[0].Prefix)
	assert.Equal(t, "PostOfficeService", backing[1].ServiceName)
	require.NotNil(t, backing[1].Provider)
}

func TestEveryContractHasHandler(t *testing.T) {
	for _, svc := range []Service{NewPostOffice(), NewLibrarian()} {
		for _, def := range svc.Definitions() {
			contract := def.Contracts.MCPTool
			if contract == nil {
				continue
			}
			base := contract.ToolName
			if prefixed := svc.Prefix() + "_"; len(base) > len(prefixed) && base[:len(prefixed)] == prefixed {
				base = base[len(prefixed):]
			}
			_, ok := svc.Handler(base)
			assert.True(t, ok, "%s contract %s has no handler", svc.Name(), contract.ToolName)
		}
	}
}
