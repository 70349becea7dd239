// ABOUTME: Post office service: city-wide event messaging.
// ABOUTME: Exposes send_event and get_events as tools and SOA APIs.

package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/civic-gateway/internal/dispatch"
	"github.com/2389/civic-gateway/internal/realm"
	"github.com/2389/civic-gateway/internal/registry"
)

const (
	postOfficeName   = "PostOfficeService"
	postOfficePrefix = "post_office"
)

// Event is one delivered message.
type Event struct {
	ID      string         `json:"id"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// PostOffice is the built-in messaging service. Events are held in memory,
// newest first, capped at maxEvents.
type PostOffice struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

const defaultEventCap = 1000

// NewPostOffice creates the messaging service.
func NewPostOffice() *PostOffice {
	return &PostOffice{cap: defaultEventCap}
}

func (p *PostOffice) Name() string   { return postOfficeName }
func (p *PostOffice) Prefix() string { return postOfficePrefix }

func (p *PostOffice) Abstractions() []string { return []string{"messaging"} }

// Definitions declares the service's capabilities: each tool is registered
// with both its dispatch tool contract and its SOA API contract, so cross-
// realm callers can reach the same operation either way.
func (p *PostOffice) Definitions() []registry.CapabilityDefinition {
	return []registry.CapabilityDefinition{
		{
			ServiceName:    postOfficeName,
			CapabilityName: "send_event",
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					ToolName:    "send_event",
					Description: "Publish an event to a city-wide topic",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"topic":{"type":"string"},"payload":{"type":"object"}},"required":["topic"]}`),
				},
				SOAAPI: &registry.SOAAPIContract{
					APIName:    "post_office.send_event",
					Endpoint:   "/api/post_office/send_event",
					HTTPMethod: "POST",
					HandlerRef: "send_event",
				},
			},
		},
		{
			ServiceName:    postOfficeName,
			CapabilityName: "get_events",
			ProtocolName:   "mcp",
			Contracts: registry.Contracts{
				MCPTool: &registry.MCPToolContract{
					ToolName:    "get_events",
					Description: "List recent events, optionally filtered by topic",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"topic":{"type":"string"},"limit":{"type":"integer"}}}`),
				},
				SOAAPI: &registry.SOAAPIContract{
					APIName:    "post_office.get_events",
					Endpoint:   "/api/post_office/get_events",
					HTTPMethod: "GET",
					HandlerRef: "get_events",
				},
			},
		},
	}
}

func (p *PostOffice) Handler(toolName string) (dispatch.Handler, bool) {
	switch toolName {
	case "send_event":
		return p.sendEvent, true
	case "get_events":
		return p.getEvents, true
	}
	return nil, false
}

func (p *PostOffice) API(method string) (realm.Callable, bool) {
	switch method {
	case "send_event":
		return realm.Callable(p.sendEvent), true
	case "get_events":
		return realm.Callable(p.getEvents), true
	}
	return nil, false
}

func (p *PostOffice) sendEvent(ctx context.Context, params map[string]any) (any, error) {
	topic, err := stringParam(params, "topic")
	if err != nil {
		return nil, err
	}

	payload, _ := params["payload"].(map[string]any)
	ev := Event{
		ID:      uuid.New().String(),
		Topic:   topic,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}

	p.mu.Lock()
	p.events = append([]Event{ev}, p.events...)
	if len(p.events) > p.cap {
		p.events = p.events[:p.cap]
	}
	p.mu.Unlock()

	return map[string]any{"id": ev.ID, "status": "sent"}, nil
}

func (p *PostOffice) getEvents(ctx context.Context, params map[string]any) (any, error) {
	topic, _ := params["topic"].(string)
	limit := intParam(params, "limit", 20)
	if limit <= 0 {
		limit = 20
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	matched := make([]Event, 0, limit)
	for _, ev := range p.events {
		if topic != "" && ev.Topic != topic {
			continue
		}
		matched = append(matched, ev)
		if len(matched) >= limit {
			break
		}
	}

	return map[string]any{"events": matched, "count": len(matched)}, nil
}
