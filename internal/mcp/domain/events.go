package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/storage"
)

const defaultEventLogLimit = 100

// EventEntry is one journaled event rendered for the explorer.
type EventEntry struct {
	ID        string            `json:"event_id"`
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventLogPayload represents the MCP resource payload for the event explorer.
type EventLogPayload struct {
	Events []EventEntry `json:"events"`
	Count  int          `json:"count"`
}

// EventLogResource defines the MCP resource for the event explorer.
func EventLogResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "event_log",
		Title:       "Event journal",
		Description: "Readable slice of the append-only journal, filterable by ?type= and ?since=, newest last",
		MIMEType:    "application/json",
		URI:         "events://log",
	}
}

// EventLogResourceHandler returns a readable journal slice.
func EventLogResourceHandler(events storage.EventStore) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if events == nil {
			return nil, fmt.Errorf("event log store is not configured")
		}

		uri := EventLogResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		filter, limit, err := parseEventLogURI(uri)
		if err != nil {
			return nil, err
		}

		recorded, err := events.StreamEvents(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("event log read failed: %w", err)
		}
		if limit > 0 && len(recorded) > limit {
			recorded = recorded[len(recorded)-limit:]
		}

		payload := EventLogPayload{Count: len(recorded)}
		for _, evt := range recorded {
			payload.Events = append(payload.Events, eventEntry(evt))
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal event log: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func eventEntry(evt event.Event) EventEntry {
	payload := json.RawMessage(evt.PayloadJSON)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return EventEntry{
		ID:        evt.ID,
		Seq:       evt.Seq,
		Type:      string(evt.Type),
		Timestamp: evt.Timestamp,
		Payload:   payload,
		Metadata:  evt.Metadata,
	}
}
