// Package ingestion records raw inputs and drives extraction. The message
// event always lands first: extraction is a collaborator that may fail, and
// its failure degrades the result instead of losing the input.
package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/apperr"
	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/extraction"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage"
)

const serviceActor = "ingestion_service"

// IngestMessageInput is one raw message from any source.
type IngestMessageInput struct {
	Content        string
	Source         event.SourceType
	SourceID       string
	Author         string
	ConversationID string
	// Extra is passed to the extraction collaborator as context.
	Extra map[string]string
}

// IngestResult reports what one ingested message produced.
type IngestResult struct {
	MessageEventID string
	Extracted      []extraction.Extracted
	// TaskIDs are the tasks canonicalized from extracted todo objects.
	TaskIDs []string
	// ExtractionDegraded is set when extraction failed; the message event
	// was still recorded.
	ExtractionDegraded bool
}

// Service ingests messages and canonicalizes extracted todos into tasks.
type Service struct {
	events    storage.EventStore
	extractor *extraction.Service
	applier   projection.Applier
	clock     func() time.Time
	logger    *log.Logger
}

// NewService constructs the ingestion service.
func NewService(events storage.EventStore, extractor *extraction.Service, applier projection.Applier, clock func() time.Time, logger *log.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		events:    events,
		extractor: extractor,
		applier:   applier,
		clock:     clock,
		logger:    logger,
	}
}

// IngestMessage records the message event, runs extraction, and applies the
// resulting object events to the task projection. Todos become tasks; notes
// and tracks stay in the journal.
func (s *Service) IngestMessage(ctx context.Context, input IngestMessageInput) (IngestResult, error) {
	if strings.TrimSpace(input.Content) == "" {
		return IngestResult{}, apperr.New(apperr.CodeValidationFailed, "message content is required")
	}
	if !input.Source.IsValid() {
		return IngestResult{}, apperr.Newf(apperr.CodeValidationFailed, "unknown source %q", input.Source)
	}

	payload, err := event.MarshalPayload(event.MessageIngestedPayload{
		Source:         input.Source,
		SourceID:       input.SourceID,
		Content:        input.Content,
		Author:         input.Author,
		ConversationID: input.ConversationID,
	})
	if err != nil {
		return IngestResult{}, err
	}
	message, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeMessageIngested,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	if err != nil {
		return IngestResult{}, apperr.Wrap(apperr.CodeStorageContention, "append message", err)
	}

	result := IngestResult{MessageEventID: message.ID}

	extracted, err := s.extractor.ExtractFromMessage(ctx, message.ID, input.Extra)
	if err != nil {
		// The message is already journaled; extraction can be retried later.
		s.logger.Printf("ingestion: extraction degraded for message %s: %v", message.ID, err)
		result.ExtractionDegraded = true
		return result, nil
	}
	result.Extracted = extracted

	for ordinal, item := range extracted {
		objectEvent, err := s.events.GetEventByID(ctx, item.EventID)
		if err != nil {
			return result, fmt.Errorf("load extracted object %s: %w", item.EventID, err)
		}
		if err := s.applier.Apply(ctx, objectEvent); err != nil {
			return result, err
		}
		if item.ObjectType == extraction.ObjectTypeTodo {
			sourceRef := fmt.Sprintf("message:%s:%d", message.ID, ordinal)
			result.TaskIDs = append(result.TaskIDs, task.IDFromSourceRef(input.Source, sourceRef))
		}
	}
	return result, nil
}
