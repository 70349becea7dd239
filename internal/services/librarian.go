// ABOUTME: Librarian service: document storage and retrieval.
// ABOUTME: Exposes store_file, get_file, and list_files as tools and SOA APIs.

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/realm"
	"github.com/2389/civic-gateway/internal/registry"
)

const (
	librarianName   = "LibrarianService"
	librarianPrefix = "librarian"
)

// Document is one stored file.
type Document struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Librarian is the built-in document service, keyed by path.
type Librarian struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewLibrarian creates the document service.
func NewLibrarian() *Librarian {
	return &Librarian{docs: make(map[string]Document)}
}

func (l *Librarian) Name() string   { return librarianName }
func (l *Librarian) Prefix() string { return librarianPrefix }

func (l *Librarian) Abstractions() []string { return []string{"content"} }

func (l *Librarian) Definitions() []registry.CapabilityDefinition {
	return []registry.CapabilityDefinition{
		{
			ServiceName:    librarianName,
			CapabilityName: "store_file",
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					ToolName:    "store_file",
					Description: "Store a document at a path, replacing any existing content",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
				},
				SOAAPI: &registry.SOAAPIContract{
					APIName:    "librarian.store_file",
					Endpoint:   "/api/librarian/store_file",
					HTTPMethod: "POST",
					HandlerRef: "store_file",
				},
			},
		},
		{
			ServiceName:    librarianName,
			CapabilityName: "get_file",
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					// Already carries the service prefix; the dispatcher
					// must not double-namespace it.
					ToolName:    "librarian_get_file",
					Description: "Retrieve a stored document by path",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
				},
				SOAAPI: &registry.SOAAPIContract{
					APIName:    "librarian.get_file",
					Endpoint:   "/api/librarian/get_file",
					HTTPMethod: "GET",
					HandlerRef: "get_file",
				},
			},
		},
		{
			ServiceName:    librarianName,
			CapabilityName: "list_files",
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					ToolName:    "list_files",
					Description: "List stored document paths",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"prefix":{"type":"string"}}}`),
				},
				SOAAPI: &registry.SOAAPIContract{
					APIName:    "librarian.list_files",
					Endpoint:   "/api/librarian/list_files",
					HTTPMethod: "GET",
					HandlerRef: "list_files",
				},
			},
		},
	}
}

func (l *Librarian) Handler(toolName string) (dispatch.Handler, bool) {
	switch toolName {
	case "store_file":
		return l.storeFile, true
	case "get_file":
		return l.getFile, true
	case "list_files":
		return l.listFiles, true
	}
	return nil, false
}

func (l *Librarian) API(method string) (realm.Callable, bool) {
	switch method {
	case "store_file":
		return l.storeFile, true
	case "get_file":
		return l.getFile, true
	case "list_files":
		return l.listFiles, true
	}
	return nil, false
}

func (l *Librarian) storeFile(ctx context.Context, params map[string]any) (any, error) {
	path, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	content, ok := params["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required")
	}

	doc := Document{Path: path, Content: content, UpdatedAt: time.Now().UTC()}

	l.mu.Lock()
	l.docs[path] = doc
	l.mu.Unlock()

	return map[string]any{"path": path, "status": "stored"}, nil
}

func (l *Librarian) getFile(ctx context.Context, params map[string]any) (any, error) {
	path, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	doc, ok := l.docs[path]
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no document at '%s'", path)
	}
	return doc, nil
}

func (l *Librarian) listFiles(ctx context.Context, params map[string]any) (any, error) {
	prefix, _ := params["prefix"].(string)

	l.mu.RLock()
	paths := make([]string, 0, len(l.docs))
	for path := range l.docs {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	l.mu.RUnlock()

	sort.Strings(paths)
	return map[string]any{"paths": paths, "count": len(paths)}, nil
}
