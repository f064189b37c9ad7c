package extraction

import (
	"context"
	"time"

	"github.com/louisbranch/attend/internal/apperr"
	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/storage"
)

const serviceActor = "extraction_service"

// Extracted is one validated object recorded from a message.
type Extracted struct {
	EventID    string
	ObjectType string
	ObjectData map[string]any
}

// Service runs extraction against an ingested message and records the
// validated results. Invalid candidates are dropped silently; a failing
// collaborator surfaces as CollaboratorFailure so callers can degrade.
type Service struct {
	events storage.EventStore
	client Client
	clock  func() time.Time
}

// NewService constructs the extraction service. A nil client uses the
// deterministic mock so the core never needs network access.
func NewService(events storage.EventStore, client Client, clock func() time.Time) *Service {
	if client == nil {
		client = &MockClient{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{events: events, client: client, clock: clock}
}

// ExtractFromMessage extracts objects from a previously ingested message
// event, records prompt and response artifacts, and appends one
// object.extracted event per validated object. The ordinal of each event is
// its position in the validated sequence, which keeps replay deterministic.
func (s *Service) ExtractFromMessage(ctx context.Context, messageEventID string, extra map[string]string) ([]Extracted, error) {
	evt, err := s.events.GetEventByID(ctx, messageEventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, "message event not found", err)
	}
	if evt.Type != event.TypeMessageIngested {
		return nil, apperr.Newf(apperr.CodeValidationFailed, "event %s is %s, not %s", messageEventID, evt.Type, event.TypeMessageIngested)
	}
	var message event.MessageIngestedPayload
	if err := event.UnmarshalPayload(evt.PayloadJSON, &message); err != nil {
		return nil, err
	}

	result, err := s.client.Extract(ctx, message.Content, extra)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeCollaboratorFailure, "extraction failed", err)
	}

	if err := s.recordArtifact(ctx, ArtifactTypeLLMPrompt, result.Prompt, messageEventID, result.ModelUsed); err != nil {
		return nil, err
	}
	if err := s.recordArtifact(ctx, ArtifactTypeLLMResponse, result.RawResponse, messageEventID, result.ModelUsed); err != nil {
		return nil, err
	}

	var extracted []Extracted
	for _, raw := range result.Objects {
		objectType, objectData, ok := validateObject(raw)
		if !ok {
			continue
		}
		payload, err := event.MarshalPayload(event.ObjectExtractedPayload{
			ObjectType:    objectType,
			ObjectData:    objectData,
			SourceEventID: messageEventID,
			Ordinal:       len(extracted),
			Confidence:    result.Confidence,
		})
		if err != nil {
			return nil, err
		}
		recorded, err := s.events.AppendEvent(ctx, event.Event{
			Type:        event.TypeObjectExtracted,
			Timestamp:   s.clock().UTC(),
			PayloadJSON: payload,
			Metadata: map[string]string{
				"service": serviceActor,
				"source":  string(message.Source),
				"model":   result.ModelUsed,
			},
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeStorageContention, "append extracted object", err)
		}
		extracted = append(extracted, Extracted{
			EventID:    recorded.ID,
			ObjectType: objectType,
			ObjectData: objectData,
		})
	}
	return extracted, nil
}

func (s *Service) recordArtifact(ctx context.Context, artifactType, content, relatedEventID, model string) error {
	payload, err := event.MarshalPayload(event.ArtifactRecordedPayload{
		ArtifactType:   artifactType,
		Content:        content,
		RelatedEventID: relatedEventID,
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeArtifactRecorded,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata: map[string]string{
			"service": serviceActor,
			"model":   model,
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageContention, "append artifact", err)
	}
	return nil
}
