package projection

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
	"github.com/louisbranch/attend/internal/storage/sqlite"
)

func openStores(t *testing.T) (*sqlite.Store, *sqlite.Store) {
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
	return events, projections
}

func appendEvent(t *testing.T, store storage.EventStore, evt event.Event) event.Event {
	t.Helper()
	stored, err := store.AppendEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("append %s: %v", evt.Type, err)
	}
	return stored
}

func extractedTodoEvent(t *testing.T, sourceEventID string, ordinal int, data map[string]any, ts time.Time) event.Event {
	t.Helper()
	payload, err := event.MarshalPayload(event.ObjectExtractedPayload{
		ObjectType:    "todo",
		ObjectData:    data,
		SourceEventID: sourceEventID,
		Ordinal:       ordinal,
		Confidence:    0.9,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		Type:        event.TypeObjectExtracted,
		Timestamp:   ts,
		PayloadJSON: payload,
		Metadata:    map[string]string{"source": string(event.SourceMessenger)},
	}
}

func TestApplyObjectExtractedCanonicalizesTodo(t *testing.T) {
	t.Parallel()
	events, projections := openStores(t)
	ctx := context.Background()
	applier := Applier{Tasks: projections}

	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	evt := appendEvent(t, events, extractedTodoEvent(t, "evt-msg-1", 0, map[string]any{
		"title":    "Book dentist appointment",
		"body":     "before the trip",
		"priority": "high",
		"due_date": "2026-04-10",
		"tags":     []any{"health", "health", "errand"},
		"project":  "personal",
	}, ts))
	if err := applier.Apply(ctx, evt); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := projections.GetTaskBySourceRef(ctx, event.SourceMessenger, "message:evt-msg-1:0")
	if err != nil {
		t.Fatalf("get canonicalized task: %v", err)
	}
	if got.ID != task.IDFromSourceRef(event.SourceMessenger, "message:evt-msg-1:0") {
		t.Fatalf("unexpected id %s", got.ID)
	}
	if got.Status != task.StatusOpen || got.Priority != task.PriorityP1 {
		t.Fatalf("unexpected status/priority: %s/%s", got.Status, got.Priority)
	}
	if got.DueAt == nil || !got.DueAt.Equal(time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due_at: %v", got.DueAt)
	}
	if !reflect.DeepEqual(got.Labels, []string{"health", "errand"}) {
		t.Fatalf("unexpected labels: %v", got.Labels)
	}
	if got.DedupGroupID != task.DedupGroupID("Book dentist appointment", "before the trip", "personal") {
		t.Fatalf("unexpected dedup group: %s", got.DedupGroupID)
	}
	if len(got.Explanations) != 1 || got.Explanations[0].Action != "created" {
		t.Fatalf("unexpected explanations: %+v", got.Explanations)
	}
}

func TestApplyObjectExtractedIsIdempotent(t *testing.T) {
	t.Parallel()
	events, projections := openStores(t)
	ctx := context.Background()
	applier := Applier{Tasks: projections}

	ts := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	evt := appendEvent(t, events, extractedTodoEvent(t, "evt-msg-2", 0, map[string]any{
		"title": "Pay water bill",
	}, ts))

	for i := 0; i < 3; i++ {
		if err := applier.Apply(ctx, evt); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	tasks, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task after repeated application, got %d", len(tasks))
	}
}

func TestApplySkipsNotesAndTracks(t *testing.T) {
	t.Parallel()
	_, projections := openStores(t)
	ctx := context.Background()
	applier := Applier{Tasks: projections}

	payload, err := event.MarshalPayload(event.ObjectExtractedPayload{
		ObjectType:    "note",
		ObjectData:    map[string]any{"title": "Flight was delayed"},
		SourceEventID: "evt-msg-3",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	err = applier.Apply(ctx, event.Event{
		ID:          "evt-note",
		Type:        event.TypeObjectExtracted,
		Timestamp:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		PayloadJSON: payload,
	})
	if err != nil {
		t.Fatalf("apply note: %v", err)
	}

	tasks, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks from note objects, got %d", len(tasks))
	}
}

func TestApplyDecisionRecordedUpsertsSnapshot(t *testing.T) {
	t.Parallel()
	_, projections := openStores(t)
	ctx := context.Background()
	applier := Applier{Tasks: projections}

	ts := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	snapshot, err := event.MarshalPayload(task.Task{
		ID:        "task-snap",
		Title:     "Submit expense report",
		Status:    task.StatusDone,
		Priority:  task.PriorityP2,
		CreatedAt: ts,
		UpdatedAt: ts,
		Source:    event.SourceAPI,
	})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	payload, err := event.MarshalPayload(event.DecisionRecordedPayload{
		Domain:       "task",
		Action:       "complete",
		Source:       "api",
		TaskSnapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	err = applier.Apply(ctx, event.Event{
		ID:          "evt-decision",
		Type:        event.TypeDecisionRecorded,
		Timestamp:   ts,
		PayloadJSON: payload,
	})
	if err != nil {
		t.Fatalf("apply decision: %v", err)
	}

	got, err := projections.GetTask(ctx, "task-snap")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusDone || got.Title != "Submit expense report" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	t.Parallel()
	events, projections := openStores(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 3, 8, 0, 0, 0, time.UTC)
	appendEvent(t, events, extractedTodoEvent(t, "evt-msg-4", 0, map[string]any{
		"title":    "Replace bike tire",
		"priority": "urgent",
	}, base))
	appendEvent(t, events, extractedTodoEvent(t, "evt-msg-4", 1, map[string]any{
		"title": "Order new helmet",
	}, base.Add(time.Second)))

	snapshot, err := event.MarshalPayload(task.Task{
		ID:        task.IDFromSourceRef(event.SourceMessenger, "message:evt-msg-4:0"),
		Title:     "Replace bike tire",
		Status:    task.StatusDone,
		Priority:  task.PriorityP0,
		CreatedAt: base,
		UpdatedAt: base.Add(time.Hour),
		Source:    event.SourceMessenger,
		SourceRef: "message:evt-msg-4:0",
	})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	payload, err := event.MarshalPayload(event.DecisionRecordedPayload{
		Domain: "task", Action: "complete", Source: "api", TaskSnapshot: snapshot,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	appendEvent(t, events, event.Event{
		Type:        event.TypeDecisionRecorded,
		Timestamp:   base.Add(time.Hour),
		PayloadJSON: payload,
	})

	applied, err := Rebuild(ctx, events, projections)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if applied != 3 {
		t.Fatalf("expected 3 applied events, got %d", applied)
	}
	first, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after first rebuild: %v", err)
	}

	if _, err := Rebuild(ctx, events, projections); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after second rebuild: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(first))
	}
	done := first[0]
	if done.SourceRef != "message:evt-msg-4:0" {
		done = first[1]
	}
	if done.Status != task.StatusDone {
		t.Fatalf("expected decision snapshot to win over extraction, got %s", done.Status)
	}
}

func TestRebuildFailureLeavesProjectionIntact(t *testing.T) {
	t.Parallel()
	events, projections := openStores(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)
	appendEvent(t, events, extractedTodoEvent(t, "evt-msg-5", 0, map[string]any{
		"title": "Renew passport",
	}, base))

	if _, err := Rebuild(ctx, events, projections); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}
	before, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 task before failed rebuild, got %d", len(before))
	}

	payload, err := event.MarshalPayload(event.DecisionRecordedPayload{
		Domain: "task", Action: "complete", Source: "api",
		TaskSnapshot: json.RawMessage(`{"task_id": 123}`),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	appendEvent(t, events, event.Event{
		Type:        event.TypeDecisionRecorded,
		Timestamp:   base.Add(time.Hour),
		PayloadJSON: payload,
	})

	if _, err := Rebuild(ctx, events, projections); err == nil {
		t.Fatal("expected rebuild to fail on undecodable snapshot")
	}

	after, err := projections.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed rebuild mutated projection:\nbefore: %+v\nafter:  %+v", before, after)
	}
}
