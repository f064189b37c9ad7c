package ingestion

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/attend/internal/apperr"
	"github.com/louisbranch/attend/internal/domain/event"
	domain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/extraction"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage"
	"github.com/louisbranch/attend/internal/storage/sqlite"
)

type failingClient struct{}

func (failingClient) Extract(context.Context, string, map[string]string) (extraction.Result, error) {
	return extraction.Result{}, errors.New("model offline")
}

func newTestService(t *testing.T, client extraction.Client) (*Service, *sqlite.Store, *sqlite.Store) {
	t.Helper()
	dir := t.TempDir()
	events, err := sqlite.Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	projections, err := sqlite.Open(filepath.Join(dir, "projections.db"))
	if err != nil {
		t.Fatalf("open projection store: %v", err)
	}
	t.Cleanup(func() {
		_ = events.Close()
		_ = projections.Close()
	})

	clock := func() time.Time { return time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC) }
	extractor := extraction.NewService(events, client, clock)
	applier := projection.Applier{Tasks: projections}
	logger := log.New(io.Discard, "", 0)
	return NewService(events, extractor, applier, clock, logger), events, projections
}

func TestIngestMessageCanonicalizesTodos(t *testing.T) {
	t.Parallel()
	service, events, projections := newTestService(t, nil)
	ctx := context.Background()

	result, err := service.IngestMessage(ctx, IngestMessageInput{
		Content:  "todo: book flights to Lisbon urgent. remember hotel is already paid",
		Source:   event.SourceMessenger,
		SourceID: "tg-42",
		Author:   "user",
	})
	if err != nil {
		t.Fatalf("ingest message: %v", err)
	}
	if result.MessageEventID == "" {
		t.Fatal("expected message event id")
	}
	if result.ExtractionDegraded {
		t.Fatal("extraction must not degrade with the mock client")
	}
	if len(result.Extracted) != 2 {
		t.Fatalf("expected todo and note, got %d objects", len(result.Extracted))
	}
	if len(result.TaskIDs) != 1 {
		t.Fatalf("expected one task from the todo, got %v", result.TaskIDs)
	}

	row, err := projections.GetTask(ctx, result.TaskIDs[0])
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if row.Title != "todo: book flights to Lisbon urgent" {
		t.Fatalf("title = %q", row.Title)
	}
	if row.Priority != domain.PriorityP0 {
		t.Fatalf("priority = %s", row.Priority)
	}
	if row.Source != event.SourceMessenger {
		t.Fatalf("source = %s", row.Source)
	}

	messages, err := events.StreamEvents(ctx, storage.EventFilter{Types: []event.Type{event.TypeMessageIngested}})
	if err != nil {
		t.Fatalf("stream messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message event, got %d", len(messages))
	}
}

func TestIngestMessageNotesDoNotBecomeTasks(t *testing.T) {
	t.Parallel()
	service, _, projections := newTestService(t, nil)
	ctx := context.Background()

	result, err := service.IngestMessage(ctx, IngestMessageInput{
		Content: "fyi the wifi password changed",
		Source:  event.SourceCLI,
	})
	if err != nil {
		t.Fatalf("ingest message: %v", err)
	}
	if len(result.Extracted) != 1 || result.Extracted[0].ObjectType != extraction.ObjectTypeNote {
		t.Fatalf("extracted = %+v", result.Extracted)
	}
	if len(result.TaskIDs) != 0 {
		t.Fatalf("notes must not create tasks, got %v", result.TaskIDs)
	}

	rows, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty projection, got %d rows", len(rows))
	}
}

func TestIngestMessageSurvivesExtractionFailure(t *testing.T) {
	t.Parallel()
	service, events, _ := newTestService(t, failingClient{})
	ctx := context.Background()

	result, err := service.IngestMessage(ctx, IngestMessageInput{
		Content: "todo: this will not extract",
		Source:  event.SourceCLI,
	})
	if err != nil {
		t.Fatalf("ingest must not fail when extraction fails: %v", err)
	}
	if !result.ExtractionDegraded {
		t.Fatal("expected degraded extraction")
	}
	if len(result.Extracted) != 0 || len(result.TaskIDs) != 0 {
		t.Fatalf("degraded result must be empty: %+v", result)
	}

	messages, err := events.StreamEvents(ctx, storage.EventFilter{Types: []event.Type{event.TypeMessageIngested}})
	if err != nil {
		t.Fatalf("stream messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("the message event must still land, got %d", len(messages))
	}
}

func TestIngestMessageValidation(t *testing.T) {
	t.Parallel()
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := service.IngestMessage(ctx, IngestMessageInput{Content: "  ", Source: event.SourceCLI})
	if !apperr.IsCode(err, apperr.CodeValidationFailed) {
		t.Fatalf("expected ValidationFailed for empty content, got %v", err)
	}

	_, err = service.IngestMessage(ctx, IngestMessageInput{Content: "hello", Source: "carrier_pigeon"})
	if !apperr.IsCode(err, apperr.CodeValidationFailed) {
		t.Fatalf("expected ValidationFailed for unknown source, got %v", err)
	}
}

func TestIngestMessageReplayMatchesIncrementalState(t *testing.T) {
	t.Parallel()
	service, events, projections := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.IngestMessage(ctx, IngestMessageInput{
		Content: "need to water the plants",
		Source:  event.SourceMessenger,
	}); err != nil {
		t.Fatalf("ingest message: %v", err)
	}

	before, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}

	if _, err := projection.Rebuild(ctx, events, projections); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	after, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("task counts = %d before, %d after", len(before), len(after))
	}
	if before[0].ID != after[0].ID || before[0].Title != after[0].Title {
		t.Fatalf("replay diverged: %+v vs %+v", before[0], after[0])
	}
}
