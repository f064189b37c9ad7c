// Package task orchestrates task lifecycle mutations. Every mutation is
// recorded as a decision event carrying the full task snapshot before the
// projection row is touched; the row itself is only written by replaying
// that event through the projection applier.
package task

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/attend/internal/apperr"
	"github.com/louisbranch/attend/internal/domain/event"
	domain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/platform/id"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage"
)

const serviceActor = "task_service"

// Service orchestrates task ingest and lifecycle mutations. Mutations are
// serialized by a service-level mutex: reads snapshot current state, the
// decision is derived from the snapshot, and no other mutation interleaves.
type Service struct {
	mu      sync.Mutex
	events  storage.EventStore
	tasks   storage.TaskStore
	applier projection.Applier
	clock   func() time.Time
	newID   func() (string, error)
}

// NewService constructs task domain use-cases.
func NewService(events storage.EventStore, tasks storage.TaskStore, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		events:  events,
		tasks:   tasks,
		applier: projection.Applier{Tasks: tasks},
		clock:   clock,
		newID:   newID,
	}
}

// IngestInput describes one task ingest request.
type IngestInput struct {
	Title            string
	Body             string
	Source           event.SourceType
	SourceRef        string
	Priority         domain.Priority
	DueAt            *time.Time
	DoNotStartBefore *time.Time
	Labels           []string
	Project          string
}

// IngestResult reports the outcome of one ingest.
type IngestResult struct {
	TaskID            string
	Created           bool
	DecisionRationale string
}

// Ingest creates a task, idempotent on (source, source_ref). Re-ingesting an
// existing pair returns the stored task without mutating it. A non-terminal
// dedup-group hit still creates the task but flags it needs_review; dedup
// never merges or drops.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestLocked(ctx, input)
}

func (s *Service) ingestLocked(ctx context.Context, input IngestInput) (IngestResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return IngestResult{}, apperr.New(apperr.CodeValidationFailed, "task title is required")
	}
	source := input.Source
	if !source.IsValid() {
		return IngestResult{}, apperr.Newf(apperr.CodeValidationFailed, "unknown source %q", source)
	}
	sourceRef := strings.TrimSpace(input.SourceRef)

	if sourceRef != "" {
		existing, err := s.tasks.GetTaskBySourceRef(ctx, source, sourceRef)
		if err == nil {
			rationale := "Idempotent ingest hit existing task for source/source_ref"
			if err := s.recordDecision(ctx, "ingest_existing", rationale, existing, source, sourceRef); err != nil {
				return IngestResult{}, err
			}
			return IngestResult{TaskID: existing.ID, Created: false, DecisionRationale: rationale}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return IngestResult{}, err
		}
	}

	dedupGroupID := domain.DedupGroupID(title, input.Body, input.Project)
	duplicateCount, err := s.tasks.CountActiveInDedupGroup(ctx, dedupGroupID)
	if err != nil {
		return IngestResult{}, err
	}

	labels := domain.DedupeLabels(input.Labels)
	rationale := "New task created"
	if duplicateCount > 0 && !containsLabel(labels, domain.LabelNeedsReview) {
		labels = append(labels, domain.LabelNeedsReview)
		rationale = "Potential duplicate detected (dedup group " + dedupGroupID + "); created and flagged for review"
	}

	taskID := ""
	if sourceRef != "" {
		taskID = domain.IDFromSourceRef(source, sourceRef)
	} else {
		taskID, err = s.newID()
		if err != nil {
			return IngestResult{}, err
		}
	}

	priority := input.Priority
	if !priority.IsValid() {
		priority = domain.PriorityP2
	}

	now := s.nowUTC()
	row := domain.Task{
		ID:               taskID,
		Title:            title,
		Body:             input.Body,
		Status:           domain.StatusOpen,
		Priority:         priority,
		DueAt:            input.DueAt,
		DoNotStartBefore: input.DoNotStartBefore,
		CreatedAt:        now,
		UpdatedAt:        now,
		Source:           source,
		SourceRef:        sourceRef,
		DedupGroupID:     dedupGroupID,
		Labels:           labels,
		Project:          input.Project,
		Explanations: []domain.Explanation{{
			TS:        now,
			Actor:     serviceActor,
			Action:    "ingest",
			Rationale: rationale,
		}},
	}

	if err := s.recordDecision(ctx, "ingest_created", rationale, row, source, sourceRef); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{TaskID: row.ID, Created: true, DecisionRationale: rationale}, nil
}

// Get loads one task by id.
func (s *Service) Get(ctx context.Context, taskID string) (domain.Task, error) {
	row, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Task{}, apperr.Newf(apperr.CodeNotFound, "task %s not found", taskID)
		}
		return domain.Task{}, err
	}
	return row, nil
}

// List returns tasks, optionally filtered by status.
func (s *Service) List(ctx context.Context, status domain.Status) ([]domain.Task, error) {
	rows, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return rows, nil
	}
	var filtered []domain.Task
	for _, row := range rows {
		if row.Status == status {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// PatchInput carries partial task updates; nil fields are left untouched.
type PatchInput struct {
	Title            *string
	Body             *string
	Status           *domain.Status
	Priority         *domain.Priority
	DueAt            *time.Time
	DoNotStartBefore *time.Time
	Labels           []string
	Project          *string
	Rationale        string
}

// Patch applies a partial update to one task.
func (s *Service) Patch(ctx context.Context, taskID string, input PatchInput) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchLocked(ctx, taskID, input)
}

func (s *Service) patchLocked(ctx context.Context, taskID string, input PatchInput) (domain.Task, error) {
	row, err := s.Get(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return domain.Task{}, apperr.New(apperr.CodeValidationFailed, "task title cannot be empty")
		}
		row.Title = strings.TrimSpace(*input.Title)
	}
	if input.Body != nil {
		row.Body = *input.Body
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return domain.Task{}, apperr.Newf(apperr.CodeValidationFailed, "unknown status %q", *input.Status)
		}
		row.Status = *input.Status
	}
	if input.Priority != nil {
		if !input.Priority.IsValid() {
			return domain.Task{}, apperr.Newf(apperr.CodeValidationFailed, "unknown priority %q", *input.Priority)
		}
		row.Priority = *input.Priority
	}
	if input.DueAt != nil {
		row.DueAt = input.DueAt
	}
	if input.DoNotStartBefore != nil {
		row.DoNotStartBefore = input.DoNotStartBefore
	}
	if input.Labels != nil {
		row.Labels = domain.DedupeLabels(input.Labels)
	}
	if input.Project != nil {
		row.Project = *input.Project
	}

	rationale := input.Rationale
	if rationale == "" {
		rationale = "Task updated via patch"
	}
	now := s.nowUTC()
	row.UpdatedAt = now
	row.Explanations = append(row.Explanations, domain.Explanation{
		TS: now, Actor: serviceActor, Action: "patch", Rationale: rationale,
	})

	sourceRef := "task:" + taskID + ":patch:" + now.Format(time.RFC3339Nano)
	if err := s.recordDecision(ctx, "patch", rationale, row, event.SourceAPI, sourceRef); err != nil {
		return domain.Task{}, err
	}
	return row, nil
}

// Complete marks one task done.
func (s *Service) Complete(ctx context.Context, taskID, rationale string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.Get(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if rationale == "" {
		rationale = "Task marked done"
	}

	now := s.nowUTC()
	row.Status = domain.StatusDone
	row.CompletedAt = &now
	row.UpdatedAt = now
	row.Explanations = append(row.Explanations, domain.Explanation{
		TS: now, Actor: serviceActor, Action: "complete", Rationale: rationale,
	})

	sourceRef := "task:" + taskID + ":complete:" + now.Format(time.RFC3339Nano)
	if err := s.recordDecision(ctx, "complete", rationale, row, event.SourceAPI, sourceRef); err != nil {
		return domain.Task{}, err
	}
	return row, nil
}

// Snooze defers one task until the given instant.
func (s *Service) Snooze(ctx context.Context, taskID string, until time.Time, rationale string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.Get(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if rationale == "" {
		rationale = "Task snoozed"
	}

	now := s.nowUTC()
	untilUTC := until.UTC()
	row.Status = domain.StatusSnoozed
	row.DoNotStartBefore = &untilUTC
	row.UpdatedAt = now
	row.Explanations = append(row.Explanations, domain.Explanation{
		TS: now, Actor: serviceActor, Action: "snooze", Rationale: rationale,
	})

	sourceRef := "task:" + taskID + ":snooze:" + now.Format(time.RFC3339Nano)
	if err := s.recordDecision(ctx, "snooze", rationale, row, event.SourceAPI, sourceRef); err != nil {
		return domain.Task{}, err
	}
	return row, nil
}

// Link adds dependencies to a task. The whole request is validated against
// the dependency graph first; if any edge would close a cycle the link is
// rejected atomically and no edge is written.
func (s *Service) Link(ctx context.Context, taskID string, blockedBy []string, rationale string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkLocked(ctx, taskID, blockedBy, rationale)
}

func (s *Service) linkLocked(ctx context.Context, taskID string, blockedBy []string, rationale string) (domain.Task, error) {
	row, err := s.Get(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if rationale == "" {
		rationale = "Task dependencies updated"
	}

	merged := make(map[string]bool, len(row.BlockedBy)+len(blockedBy))
	for _, dep := range row.BlockedBy {
		merged[dep] = true
	}
	for _, dep := range blockedBy {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			continue
		}
		if dep == taskID {
			return domain.Task{}, apperr.New(apperr.CodeCycleDetected, "task cannot depend on itself")
		}
		if _, err := s.tasks.GetTask(ctx, dep); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.Task{}, apperr.Newf(apperr.CodeNotFound, "dependency %s not found", dep)
			}
			return domain.Task{}, err
		}
		merged[dep] = true
	}

	links := make([]string, 0, len(merged))
	for dep := range merged {
		links = append(links, dep)
	}
	sort.Strings(links)

	graph, err := s.dependencyGraph(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	graph[taskID] = links
	if cycle := findCycle(graph, taskID); cycle != nil {
		return domain.Task{}, apperr.New(apperr.CodeCycleDetected, "dependency would create cycle: "+strings.Join(cycle, " -> ")).
			WithMetadata(map[string]string{"task_id": taskID})
	}

	now := s.nowUTC()
	row.BlockedBy = links
	if len(links) > 0 && !row.Status.IsTerminal() {
		row.Status = domain.StatusBlocked
	}
	row.UpdatedAt = now
	row.Explanations = append(row.Explanations, domain.Explanation{
		TS: now, Actor: serviceActor, Action: "link", Rationale: rationale,
	})

	sourceRef := "task:" + taskID + ":link:" + now.Format(time.RFC3339Nano)
	if err := s.recordDecision(ctx, "link", rationale, row, event.SourceAPI, sourceRef); err != nil {
		return domain.Task{}, err
	}
	return row, nil
}

// ReviewQueue returns tasks needing attention: needs_review-flagged and stale
// non-terminal tasks, flagged first, then stale, then priority and staleness.
func (s *Service) ReviewQueue(ctx context.Context, now time.Time, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var queue []domain.Task
	for _, row := range rows {
		if row.Status.IsTerminal() {
			continue
		}
		if row.HasLabel(domain.LabelNeedsReview) || row.IsStale(now) {
			queue = append(queue, row)
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		aReview, bReview := a.HasLabel(domain.LabelNeedsReview), b.HasLabel(domain.LabelNeedsReview)
		if aReview != bReview {
			return aReview
		}
		aStale, bStale := a.IsStale(now), b.IsStale(now)
		if aStale != bStale {
			return aStale
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})

	if len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

// recordDecision appends a decision event carrying the task snapshot and
// replays it into the projection. The journal write happens first: the event
// is the record, the row is derived.
func (s *Service) recordDecision(ctx context.Context, action, rationale string, snapshot domain.Task, source event.SourceType, sourceRef string) error {
	snapshotJSON, err := event.MarshalPayload(snapshot)
	if err != nil {
		return err
	}
	payload, err := event.MarshalPayload(event.DecisionRecordedPayload{
		Domain:       "task",
		Action:       action,
		Source:       string(source),
		SourceRef:    sourceRef,
		Rationale:    rationale,
		TaskSnapshot: snapshotJSON,
	})
	if err != nil {
		return err
	}

	stored, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeDecisionRecorded,
		Timestamp:   s.nowUTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageContention, "record decision", err)
	}
	return s.applier.Apply(ctx, stored)
}

func (s *Service) dependencyGraph(ctx context.Context) (map[string][]string, error) {
	rows, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	graph := make(map[string][]string, len(rows))
	for _, row := range rows {
		graph[row.ID] = row.BlockedBy
	}
	return graph, nil
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func containsLabel(labels []string, label string) bool {
	for _, candidate := range labels {
		if candidate == label {
			return true
		}
	}
	return false
}
