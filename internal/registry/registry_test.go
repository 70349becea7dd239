// ABOUTME: Tests for capability registration, conflict detection, and lookup.
// ABOUTME: Covers idempotent re-registration, replacement, and structural round-trips.

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

// createTestDefinition builds a CapabilityDefinition with an MCP tool contract.
func createTestDefinition(service, capability, toolName string) CapabilityDefinition {
	return CapabilityDefinition{
		ServiceName:    service,
		CapabilityName: capability,
		ProtocolName:   service + "Protocol",
		Contracts: Contracts{
			MCPTool: &MCPToolContract{
				ToolName:         toolName,
				OwningDispatcher: "unified",
				InputSchema:      json.RawMessage(`{"type":"object"}`),
				Description:      "test tool",
			},
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("registers capability successfully", func(t *testing.T) {
		r := New(slog.Default())
		def := createTestDefinition("post_office", "messaging", "message_sender")

		if err := r.Register(def); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, ok := r.Get("post_office", "messaging")
		if !ok {
			t.Fatal("expected capability to be registered")
		}
		if got.ServiceName != "post_office" {
			t.Errorf("expected service 'post_office', got '%s'", got.ServiceName)
		}
		if got.Version != 1 {
			t.Errorf("expected version 1, got %d", got.Version)
		}
		if got.RegisteredAt.IsZero() {
			t.Error("expected registered_at to be set")
		}
	})

	t.Run("round-trips contract content without field loss", func(t *testing.T) {
		r := New(slog.Default())
		def := createTestDefinition("librarian", "knowledge", "get_file")
		def.Contracts.SOAAPI = &SOAAPIContract{
			APIName:    "librarian.get_file",
			Endpoint:   "/api/librarian/files",
			HTTPMethod: "GET",
			HandlerRef: "get_file",
			Metadata:   map[string]string{"stability": "stable"},
		}

		if err := r.Register(def); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, ok := r.Get("librarian", "knowledge")
		if !ok {
			t.Fatal("expected capability to be registered")
		}
		if !got.Contracts.Equal(def.Contracts) {
			t.Errorf("contracts not structurally equal after round-trip: %+v vs %+v",
				got.Contracts, def.Contracts)
		}
		if got.Contracts.SOAAPI.Metadata["stability"] != "stable" {
			t.Error("metadata lost in round-trip")
		}
	})

	t.Run("identical re-registration is idempotent and bumps version", func(t *testing.T) {
		r := New(slog.Default())
		def := createTestDefinition("nurse", "telemetry", "collect_telemetry")

		if err := r.Register(def); err != nil {
			t.Fatalf("unexpected error on first register: %v", err)
		}
		if err := r.Register(def); err != nil {
			t.Fatalf("unexpected error on identical re-register: %v", err)
		}

		got, _ := r.Get("nurse", "telemetry")
		if got.Version != 2 {
			t.Errorf("expected version 2 after re-registration, got %d", got.Version)
		}
		if len(r.GetByService("nurse")) != 1 {
			t.Errorf("expected exactly one entry, got %d", len(r.GetByService("nurse")))
		}
	})

	t.Run("conflicting content is rejected", func(t *testing.T) {
		r := New(slog.Default())
		if err := r.Register(createTestDefinition("conductor", "workflow", "start_workflow")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		changed := createTestDefinition("conductor", "workflow", "start_workflow_v2")
		err := r.Register(changed)
		if err == nil {
			t.Fatal("expected conflict error for changed contract content")
		}
		if !errors.Is(err, ErrCapabilityConflict) {
			t.Errorf("expected ErrCapabilityConflict, got %v", err)
		}

		// Original entry kept
		got, _ := r.Get("conductor", "workflow")
		if got.Contracts.MCPTool.ToolName != "start_workflow" {
			t.Errorf("original entry not preserved, got tool '%s'", got.Contracts.MCPTool.ToolName)
		}
	})

	t.Run("rejects empty identity", func(t *testing.T) {
		r := New(slog.Default())
		if err := r.Register(CapabilityDefinition{}); err == nil {
			t.Error("expected error for empty service/capability names")
		}
	})
}

func TestRegistryReplace(t *testing.T) {
	t.Run("replaces wholesale and increments version", func(t *testing.T) {
		r := New(slog.Default())
		orig := createTestDefinition("post_office", "messaging", "message_sender")
		orig.Contracts.SOAAPI = &SOAAPIContract{APIName: "post_office.publish_event"}
		if err := r.Register(orig); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Replacement drops the SOA API contract entirely: no merging.
		repl := createTestDefinition("post_office", "messaging", "message_sender_v2")
		if err := r.Replace(repl); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := r.Get("post_office", "messaging")
		if got.Contracts.SOAAPI != nil {
			t.Error("expected SOA API contract to be dropped by wholesale replace")
		}
		if got.Contracts.MCPTool.ToolName != "message_sender_v2" {
			t.Errorf("expected replaced tool name, got '%s'", got.Contracts.MCPTool.ToolName)
		}
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("replace on unknown entry registers it", func(t *testing.T) {
		r := New(slog.Default())
		if err := r.Replace(createTestDefinition("nurse", "telemetry", "collect")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := r.Get("nurse", "telemetry"); !ok {
			t.Error("expected entry after replace on empty registry")
		}
	})
}

func TestRegistryLookups(t *testing.T) {
	t.Run("unknown service returns empty slice", func(t *testing.T) {
		r := New(slog.Default())
		caps := r.GetByService("ghost")
		if caps == nil {
			t.Error("expected non-nil empty slice")
		}
		if len(caps) != 0 {
			t.Errorf("expected empty result, got %d entries", len(caps))
		}
	})

	t.Run("get returns false for unknown capability", func(t *testing.T) {
		r := New(slog.Default())
		if _, ok := r.Get("ghost", "nothing"); ok {
			t.Error("expected ok=false for unknown capability")
		}
	})

	t.Run("list all is sorted by service then capability", func(t *testing.T) {
		r := New(slog.Default())
		for _, pair := range [][2]string{
			{"post_office", "messaging"},
			{"librarian", "knowledge"},
			{"librarian", "archive"},
		} {
			if err := r.Register(createTestDefinition(pair[0], pair[1], pair[1]+"_tool")); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		all := r.ListAll()
		if len(all) != 3 {
			t.Fatalf("expected 3 capabilities, got %d", len(all))
		}
		if all[0].ServiceName != "librarian" || all[0].CapabilityName != "archive" {
			t.Errorf("unexpected first entry: %s/%s", all[0].ServiceName, all[0].CapabilityName)
		}
		if all[2].ServiceName != "post_office" {
			t.Errorf("unexpected last entry: %s", all[2].ServiceName)
		}
	})

	t.Run("returned definitions are copies", func(t *testing.T) {
		r := New(slog.Default())
		if err := r.Register(createTestDefinition("librarian", "knowledge", "get_file")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := r.Get("librarian", "knowledge")
		got.CapabilityName = "mutated"

		again, _ := r.Get("librarian", "knowledge")
		if again.CapabilityName != "knowledge" {
			t.Error("registry state mutated through returned copy")
		}
	})
}

func TestRegistryConcurrentReads(t *testing.T) {
	r := New(slog.Default())
	for i := 0; i < 10; i++ {
		def := createTestDefinition(fmt.Sprintf("service-%d", i), "cap", fmt.Sprintf("tool_%d", i))
		if err := r.Register(def); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				r.GetByService(fmt.Sprintf("service-%d", i))
				r.ListAll()
			}
		}()
	}
	wg.Wait()

	if r.ServiceCount() != 10 {
		t.Errorf("expected 10 services, got %d", r.ServiceCount())
	}
}
