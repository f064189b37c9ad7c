package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestAppendEventAssignsIdentityAndSequence(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, event.Event{
		Type:        event.TypeMessageIngested,
		Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"text":"first"}`),
	})
	if err != nil {
		t.Fatalf("append first event: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected assigned event id")
	}
	if first.Seq == 0 {
		t.Fatal("expected assigned sequence")
	}

	second, err := store.AppendEvent(ctx, event.Event{
		Type:        event.TypeMessageIngested,
		Timestamp:   time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"text":"second"}`),
	})
	if err != nil {
		t.Fatalf("append second event: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing sequence, got %d then %d", first.Seq, second.Seq)
	}
}

func TestAppendEventDuplicateIDReturnsStoredEvent(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	original, err := store.AppendEvent(ctx, event.Event{
		ID:          "evt-duplicate",
		Type:        event.TypeDecisionRecorded,
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"decision":"first"}`),
	})
	if err != nil {
		t.Fatalf("append original: %v", err)
	}

	replayed, err := store.AppendEvent(ctx, event.Event{
		ID:          "evt-duplicate",
		Type:        event.TypeDecisionRecorded,
		Timestamp:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"decision":"retry"}`),
	})
	if err != nil {
		t.Fatalf("re-append duplicate: %v", err)
	}
	if replayed.Seq != original.Seq {
		t.Fatalf("expected stored sequence %d, got %d", original.Seq, replayed.Seq)
	}
	if string(replayed.PayloadJSON) != `{"decision":"first"}` {
		t.Fatalf("expected stored payload, got %s", replayed.PayloadJSON)
	}

	all, err := store.StreamEvents(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("stream events: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(all))
	}
}

func TestAppendEventRejectsUnknownType(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)

	_, err := store.AppendEvent(context.Background(), event.Event{Type: "task.teleported"})
	if err == nil {
		t.Fatal("expected error for unregistered event type")
	}
}

func TestStreamEventsFiltersAndOrders(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seed := []event.Event{
		{ID: "evt-a", Type: event.TypeMessageIngested, Timestamp: base},
		{ID: "evt-b", Type: event.TypeDecisionRecorded, Timestamp: base.Add(time.Minute)},
		{ID: "evt-c", Type: event.TypeMessageIngested, Timestamp: base.Add(2 * time.Minute)},
		{ID: "evt-d", Type: event.TypeReminderSent, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, evt := range seed {
		if _, err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %s: %v", evt.ID, err)
		}
	}

	since := base.Add(30 * time.Second)
	events, err := store.StreamEvents(ctx, storage.EventFilter{
		Since: &since,
		Types: []event.Type{event.TypeMessageIngested, event.TypeDecisionRecorded},
	})
	if err != nil {
		t.Fatalf("stream events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "evt-b" || events[1].ID != "evt-c" {
		t.Fatalf("unexpected order: %s, %s", events[0].ID, events[1].ID)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("expected ascending seq, got %d then %d", events[i-1].Seq, events[i].Seq)
		}
	}
}

func TestGetEventByIDNotFound(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)

	_, err := store.GetEventByID(context.Background(), "evt-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertTaskRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	row := task.Task{
		ID:           "task-1",
		Title:        "File quarterly report",
		Body:         "Numbers from finance first",
		Status:       task.StatusOpen,
		Priority:     task.PriorityP1,
		DueAt:        &due,
		CreatedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:       event.SourceChatDump,
		SourceRef:    "message:evt-1:0",
		DedupGroupID: "abc123",
		Labels:       []string{"finance"},
		Project:      "ops",
		BlockedBy:    []string{"task-0"},
		Explanations: []task.Explanation{{
			TS:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Actor:     "system",
			Action:    "created",
			Rationale: "extracted from message",
		}},
	}
	if err := store.UpsertTask(ctx, row); err != nil {
		t.Fatalf("upsert task: %v", err)
	}

	got, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != row.Title || got.Status != row.Status || got.Priority != row.Priority {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Fatalf("unexpected due_at: %v", got.DueAt)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "finance" {
		t.Fatalf("unexpected labels: %v", got.Labels)
	}
	if len(got.BlockedBy) != 1 || got.BlockedBy[0] != "task-0" {
		t.Fatalf("unexpected blocked_by: %v", got.BlockedBy)
	}
	if len(got.Explanations) != 1 || got.Explanations[0].Action != "created" {
		t.Fatalf("unexpected explanations: %+v", got.Explanations)
	}

	row.Status = task.StatusDone
	completed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	row.CompletedAt = &completed
	if err := store.UpsertTask(ctx, row); err != nil {
		t.Fatalf("upsert updated task: %v", err)
	}
	got, err = store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get updated task: %v", err)
	}
	if got.Status != task.StatusDone || got.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", got)
	}
}

func TestGetTaskBySourceRef(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	row := task.Task{
		ID:        "task-src",
		Title:     "Renew passport",
		Status:    task.StatusOpen,
		Priority:  task.PriorityP2,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:    event.SourceMessenger,
		SourceRef: "message:evt-9:1",
	}
	if err := store.UpsertTask(ctx, row); err != nil {
		t.Fatalf("upsert task: %v", err)
	}

	got, err := store.GetTaskBySourceRef(ctx, event.SourceMessenger, "message:evt-9:1")
	if err != nil {
		t.Fatalf("get by source ref: %v", err)
	}
	if got.ID != "task-src" {
		t.Fatalf("expected task-src, got %s", got.ID)
	}

	_, err = store.GetTaskBySourceRef(ctx, event.SourceCLI, "message:evt-9:1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other source, got %v", err)
	}
}

func TestTasksWithEmptySourceRefDoNotCollide(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	for _, taskID := range []string{"task-m1", "task-m2"} {
		err := store.UpsertTask(ctx, task.Task{
			ID:        taskID,
			Title:     "Manual entry " + taskID,
			Status:    task.StatusOpen,
			Priority:  task.PriorityP2,
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Source:    event.SourceCLI,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", taskID, err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestListTasksOrder(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []task.Task{
		{ID: "task-late", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
		{ID: "task-b", CreatedAt: base, UpdatedAt: base},
		{ID: "task-a", CreatedAt: base, UpdatedAt: base},
	}
	for _, row := range seed {
		row.Title = row.ID
		row.Status = task.StatusOpen
		row.Priority = task.PriorityP2
		row.Source = event.SourceAPI
		if err := store.UpsertTask(ctx, row); err != nil {
			t.Fatalf("upsert %s: %v", row.ID, err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	want := []string{"task-a", "task-b", "task-late"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, tasks[i].ID)
		}
	}
}

func TestCountActiveInDedupGroupExcludesTerminal(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []struct {
		id     string
		status task.Status
	}{
		{"task-1", task.StatusOpen},
		{"task-2", task.StatusSnoozed},
		{"task-3", task.StatusDone},
		{"task-4", task.StatusCancelled},
	}
	for _, row := range seed {
		err := store.UpsertTask(ctx, task.Task{
			ID:           row.id,
			Title:        "Pay rent",
			Status:       row.status,
			Priority:     task.PriorityP1,
			CreatedAt:    base,
			UpdatedAt:    base,
			Source:       event.SourceAPI,
			DedupGroupID: "group-rent",
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", row.id, err)
		}
	}

	count, err := store.CountActiveInDedupGroup(ctx, "group-rent")
	if err != nil {
		t.Fatalf("count dedup group: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active tasks, got %d", count)
	}

	count, err = store.CountActiveInDedupGroup(ctx, "")
	if err != nil {
		t.Fatalf("count empty group: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for empty group id, got %d", count)
	}
}

func TestTruncateTasks(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := store.UpsertTask(ctx, task.Task{
		ID: "task-1", Title: "t", Status: task.StatusOpen, Priority: task.PriorityP2,
		CreatedAt: base, UpdatedAt: base, Source: event.SourceAPI,
	})
	if err != nil {
		t.Fatalf("upsert task: %v", err)
	}

	if err := store.TruncateTasks(ctx); err != nil {
		t.Fatalf("truncate tasks: %v", err)
	}
	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty projection, got %d rows", len(tasks))
	}
}

func TestRebuildTasksCommitsOnlyOnSuccess(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err := store.UpsertTask(ctx, task.Task{
		ID: "task-old", Title: "old", Status: task.StatusOpen, Priority: task.PriorityP2,
		CreatedAt: base, UpdatedAt: base, Source: event.SourceAPI,
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}

	replayFailed := fmt.Errorf("replay failed")
	err = store.RebuildTasks(ctx, func(tx storage.TaskStore) error {
		if err := tx.TruncateTasks(ctx); err != nil {
			return err
		}
		return replayFailed
	})
	if !errors.Is(err, replayFailed) {
		t.Fatalf("expected replay error, got %v", err)
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after rollback: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-old" {
		t.Fatalf("failed rebuild must leave projection untouched, got %+v", tasks)
	}

	err = store.RebuildTasks(ctx, func(tx storage.TaskStore) error {
		if err := tx.TruncateTasks(ctx); err != nil {
			return err
		}
		return tx.UpsertTask(ctx, task.Task{
			ID: "task-new", Title: "new", Status: task.StatusOpen, Priority: task.PriorityP2,
			CreatedAt: base, UpdatedAt: base, Source: event.SourceAPI,
		})
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	tasks, err = store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after commit: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-new" {
		t.Fatalf("committed rebuild must replace projection, got %+v", tasks)
	}
}

func TestNotificationLogWindow(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	err := store.LogNotification(ctx, storage.NotificationRecord{
		NotificationType: "urgent_reminder",
		ObjectID:         "task-1",
		Fingerprint:      "urgent:task-1:75",
		SentAt:           now.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("log notification: %v", err)
	}

	sent, err := store.WasSentRecently(ctx, "urgent_reminder", "task-1", "urgent:task-1:75", 12*time.Hour, now)
	if err != nil {
		t.Fatalf("check recent: %v", err)
	}
	if !sent {
		t.Fatal("expected notification within window")
	}

	sent, err = store.WasSentRecently(ctx, "urgent_reminder", "task-1", "urgent:task-1:90", 12*time.Hour, now)
	if err != nil {
		t.Fatalf("check other fingerprint: %v", err)
	}
	if sent {
		t.Fatal("expected no match for different fingerprint")
	}

	sent, err = store.WasSentRecently(ctx, "urgent_reminder", "task-1", "urgent:task-1:75", time.Hour, now)
	if err != nil {
		t.Fatalf("check expired window: %v", err)
	}
	if sent {
		t.Fatal("expected no match outside window")
	}

	sent, err = store.WasSentRecently(ctx, "daily_digest", "", "", 24*time.Hour, now)
	if err != nil {
		t.Fatalf("check missing type: %v", err)
	}
	if sent {
		t.Fatal("expected no match for unlogged type")
	}
}
