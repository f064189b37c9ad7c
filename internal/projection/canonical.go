package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
)

// applyObjectExtracted canonicalizes extracted todo objects into task rows.
// note and track objects stay in the journal only. The synthetic source ref
// "message:<event>:<ordinal>" makes re-application a no-op, and the task id
// is derived from it so replay reproduces identical rows.
func (a Applier) applyObjectExtracted(ctx context.Context, evt event.Event) error {
	var payload event.ObjectExtractedPayload
	if err := event.UnmarshalPayload(evt.PayloadJSON, &payload); err != nil {
		return err
	}
	if payload.ObjectType != "todo" {
		return nil
	}
	title := strings.TrimSpace(stringField(payload.ObjectData, "title"))
	if title == "" {
		return nil
	}

	sourceRef := fmt.Sprintf("message:%s:%d", payload.SourceEventID, payload.Ordinal)
	source := event.SourceType(evt.Metadata["source"])
	if !source.IsValid() {
		source = event.SourceChatDump
	}

	_, err := a.Tasks.GetTaskBySourceRef(ctx, source, sourceRef)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	body := strings.TrimSpace(stringField(payload.ObjectData, "description"))
	if body == "" {
		body = strings.TrimSpace(stringField(payload.ObjectData, "body"))
	}
	project := strings.TrimSpace(stringField(payload.ObjectData, "project"))
	now := evt.Timestamp

	row := task.Task{
		ID:               task.IDFromSourceRef(source, sourceRef),
		Title:            title,
		Body:             body,
		Status:           task.StatusOpen,
		Priority:         priorityFromLevel(stringField(payload.ObjectData, "priority")),
		DueAt:            parseTimeField(payload.ObjectData, "due_date"),
		DoNotStartBefore: parseTimeField(payload.ObjectData, "do_not_start_before"),
		CreatedAt:        now,
		UpdatedAt:        now,
		Source:           source,
		SourceRef:        sourceRef,
		DedupGroupID:     task.DedupGroupID(title, body, project),
		Labels:           task.DedupeLabels(stringSliceField(payload.ObjectData, "tags")),
		Project:          project,
		Explanations: []task.Explanation{{
			TS:        now,
			Actor:     "system",
			Action:    "created",
			Rationale: "extracted from message " + payload.SourceEventID,
		}},
	}
	return a.Tasks.UpsertTask(ctx, row)
}

// applyDecisionRecorded upserts the full task snapshot carried by the
// decision. The snapshot is the write-ahead record for the row: the
// projection never recomputes the decision, it replays its outcome.
func (a Applier) applyDecisionRecorded(ctx context.Context, evt event.Event) error {
	var payload event.DecisionRecordedPayload
	if err := event.UnmarshalPayload(evt.PayloadJSON, &payload); err != nil {
		return err
	}
	if len(payload.TaskSnapshot) == 0 {
		return nil
	}
	var row task.Task
	if err := event.UnmarshalPayload(payload.TaskSnapshot, &row); err != nil {
		return fmt.Errorf("decode task snapshot: %w", err)
	}
	if strings.TrimSpace(row.ID) == "" {
		return nil
	}
	return a.Tasks.UpsertTask(ctx, row)
}

// priorityFromLevel maps extraction priority levels onto priority bands.
func priorityFromLevel(level string) task.Priority {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "urgent", "p0":
		return task.PriorityP0
	case "high", "p1":
		return task.PriorityP1
	case "low", "p3":
		return task.PriorityP3
	default:
		return task.PriorityP2
	}
}

func stringField(data map[string]any, key string) string {
	value, ok := data[key].(string)
	if !ok {
		return ""
	}
	return value
}

func stringSliceField(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseTimeField(data map[string]any, key string) *time.Time {
	raw := strings.TrimSpace(stringField(data, key))
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
