package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/ingestion"
)

// MessageIngestInput represents one raw message to ingest.
type MessageIngestInput struct {
	Content        string            `json:"content" jsonschema:"raw message text"`
	Source         string            `json:"source" jsonschema:"origin (chat_dump, messenger, cli, api)"`
	SourceID       string            `json:"source_id,omitempty" jsonschema:"message id in the source system"`
	Author         string            `json:"author,omitempty" jsonschema:"message author"`
	ConversationID string            `json:"conversation_id,omitempty" jsonschema:"conversation the message belongs to"`
	Extra          map[string]string `json:"extra,omitempty" jsonschema:"extraction context such as conversation_history"`
}

// ExtractedView is one structured object pulled out of a message.
type ExtractedView struct {
	EventID    string         `json:"event_id"`
	ObjectType string         `json:"object_type"`
	ObjectData map[string]any `json:"object_data"`
}

// MessageIngestResult reports what one ingested message produced.
type MessageIngestResult struct {
	MessageEventID     string          `json:"message_event_id"`
	Extracted          []ExtractedView `json:"extracted,omitempty"`
	TaskIDs            []string        `json:"task_ids,omitempty"`
	ExtractionDegraded bool            `json:"extraction_degraded"`
}

// MessageIngestTool defines the MCP tool schema for message ingestion.
func MessageIngestTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "message_ingest",
		Description: "Records a raw message, extracts structured objects, and canonicalizes todos into tasks",
	}
}

// MessageIngestHandler executes a message ingest request.
func MessageIngestHandler(service *ingestion.Service) mcp.ToolHandlerFor[MessageIngestInput, MessageIngestResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MessageIngestInput) (*mcp.CallToolResult, MessageIngestResult, error) {
		result, err := service.IngestMessage(ctx, ingestion.IngestMessageInput{
			Content:        input.Content,
			Source:         event.SourceType(input.Source),
			SourceID:       input.SourceID,
			Author:         input.Author,
			ConversationID: input.ConversationID,
			Extra:          input.Extra,
		})
		if err != nil {
			return nil, MessageIngestResult{}, fmt.Errorf("message ingest failed: %w", err)
		}

		out := MessageIngestResult{
			MessageEventID:     result.MessageEventID,
			TaskIDs:            result.TaskIDs,
			ExtractionDegraded: result.ExtractionDegraded,
		}
		for _, item := range result.Extracted {
			out.Extracted = append(out.Extracted, ExtractedView{
				EventID:    item.EventID,
				ObjectType: item.ObjectType,
				ObjectData: item.ObjectData,
			})
		}
		return nil, out, nil
	}
}
