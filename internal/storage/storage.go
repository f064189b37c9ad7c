// Package storage defines the persistence boundaries for the event log,
// the projection store, and the notification send log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventFilter narrows StreamEvents results. Zero value streams everything.
type EventFilter struct {
	// Since excludes events with timestamps before this instant.
	Since *time.Time
	// Types restricts results to the given event types when non-empty.
	Types []event.Type
}

// EventStore is the append-only event journal. Events are immutable once
// appended; reads always return (timestamp, seq) order.
type EventStore interface {
	// AppendEvent appends one event, assigning ID (when empty), Seq, and a
	// normalized UTC timestamp. It fails only on I/O failure.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// GetEventByID loads one event, or ErrNotFound.
	GetEventByID(ctx context.Context, id string) (event.Event, error)
	// StreamEvents returns all matching events as one logical ordered sequence.
	StreamEvents(ctx context.Context, filter EventFilter) ([]event.Event, error)
}

// TaskStore is the derived task projection. Rows are only written by the
// projection applier during replay or incremental apply.
type TaskStore interface {
	// UpsertTask writes one task row keyed by id.
	UpsertTask(ctx context.Context, row task.Task) error
	// GetTask loads one task, or ErrNotFound.
	GetTask(ctx context.Context, id string) (task.Task, error)
	// GetTaskBySourceRef resolves the idempotency key, or ErrNotFound.
	GetTaskBySourceRef(ctx context.Context, source event.SourceType, sourceRef string) (task.Task, error)
	// ListTasks returns all task rows ordered by created_at, id.
	ListTasks(ctx context.Context) ([]task.Task, error)
	// CountActiveInDedupGroup counts non-terminal tasks sharing a dedup group.
	CountActiveInDedupGroup(ctx context.Context, dedupGroupID string) (int, error)
	// TruncateTasks clears the projection ahead of a full rebuild. It must be
	// called inside the same exclusive transaction scope as the replay.
	TruncateTasks(ctx context.Context) error
}

// TaskRebuilder swaps the task projection atomically. The TaskStore passed
// to fn writes inside one exclusive transaction that commits only when fn
// returns nil; readers never observe a partially rebuilt projection.
type TaskRebuilder interface {
	RebuildTasks(ctx context.Context, fn func(TaskStore) error) error
}

// NotificationRecord is one logged outbound notification.
type NotificationRecord struct {
	NotificationType string
	ObjectID         string
	Fingerprint      string
	SentAt           time.Time
}

// NotificationLog tracks sent notifications for time-windowed dedup.
type NotificationLog interface {
	// LogNotification records one sent notification.
	LogNotification(ctx context.Context, record NotificationRecord) error
	// WasSentRecently reports whether a matching notification was logged
	// within the window ending at now. Empty objectID and fingerprint match
	// any record of the type.
	WasSentRecently(ctx context.Context, notificationType, objectID, fingerprint string, within time.Duration, now time.Time) (bool, error)
}
