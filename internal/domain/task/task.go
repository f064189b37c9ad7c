// Package task defines the canonical Task entity and its derived identity rules.
//
// Task rows are projections: every mutation is expressed as a decision event
// first, and the row is upserted to match. Nothing outside the replay path
// mutates stored task state directly.
package task

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusOpen marks a task ready to be picked up.
	StatusOpen Status = "open"
	// StatusBlocked marks a task waiting on non-terminal dependencies.
	StatusBlocked Status = "blocked"
	// StatusInProgress marks a task being actively worked.
	StatusInProgress Status = "in_progress"
	// StatusSnoozed marks a task deferred until do_not_start_before.
	StatusSnoozed Status = "snoozed"
	// StatusDone is terminal.
	StatusDone Status = "done"
	// StatusCancelled is terminal.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is one of the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusBlocked, StatusInProgress, StatusSnoozed, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Priority is the task priority band, p0 highest.
type Priority string

const (
	// PriorityP0 is the highest priority band.
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
	PriorityP3 Priority = "p3"
)

// IsValid reports whether the priority is one of the closed set.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// Rank returns the sort rank of the priority, 0 for p0 through 3 for p3.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	}
	return 2
}

// LabelNeedsReview is the reserved label attached to likely duplicates.
const LabelNeedsReview = "needs_review"

// LabelSplitParent is attached to tasks whose split suggestion was applied.
const LabelSplitParent = "split_parent"

// LabelGeneratedSplit is attached to subtasks created by a split apply.
const LabelGeneratedSplit = "generated_split"

// StaleAfter is how long a task may go without updates before it counts as stale.
const StaleAfter = 7 * 24 * time.Hour

// Explanation is one append-only audit entry on a task.
type Explanation struct {
	TS        time.Time `json:"ts"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Rationale string    `json:"rationale"`
}

// Task is the canonical read model for one actionable item.
type Task struct {
	ID    string `json:"task_id"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	DueAt            *time.Time `json:"due_at,omitempty"`
	DoNotStartBefore *time.Time `json:"do_not_start_before,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Source and SourceRef form the idempotency key: re-ingesting the same
	// pair returns the existing task.
	Source    event.SourceType `json:"source"`
	SourceRef string           `json:"source_ref"`

	// DedupGroupID groups tasks with near-identical normalized content.
	DedupGroupID string `json:"dedup_group_id,omitempty"`

	Labels  []string `json:"labels,omitempty"`
	Project string   `json:"project,omitempty"`

	// BlockedBy is the set of task ids this task depends on. The dependency
	// graph must never contain a cycle.
	BlockedBy []string `json:"blocked_by,omitempty"`

	Explanations []Explanation `json:"explanations,omitempty"`
}

// HasLabel reports whether the task carries the given label.
func (t Task) HasLabel(label string) bool {
	for _, candidate := range t.Labels {
		if candidate == label {
			return true
		}
	}
	return false
}

// IsStale reports whether the task is overdue or has gone StaleAfter without
// an update, and is not terminal.
func (t Task) IsStale(now time.Time) bool {
	if t.Status.IsTerminal() {
		return false
	}
	if t.DueAt != nil && t.DueAt.Before(now) {
		return true
	}
	return now.Sub(t.UpdatedAt) >= StaleAfter
}

// IsActionable reports whether the task can be worked right now.
func (t Task) IsActionable(now time.Time) bool {
	if t.Status != StatusOpen && t.Status != StatusInProgress {
		return false
	}
	if t.DoNotStartBefore != nil && t.DoNotStartBefore.After(now) {
		return false
	}
	return true
}

// Normalize lowercases a free-text field and collapses runs of whitespace.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// DedupGroupID derives the duplicate-detection group for a task's content.
// It is the first 16 hex characters of the SHA-1 of the normalized
// title, body, and project joined with "|".
func DedupGroupID(title, body, project string) string {
	key := Normalize(title) + "|" + Normalize(body) + "|" + Normalize(project)
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// IDFromSourceRef derives a stable task id from the idempotency key. Tasks
// canonicalized from extracted objects use it so that replaying the journal
// reproduces identical ids.
func IDFromSourceRef(source event.SourceType, sourceRef string) string {
	sum := sha1.Sum([]byte(string(source) + "|" + sourceRef))
	return hex.EncodeToString(sum[:])[:16]
}

// DedupeLabels returns labels with duplicates removed, preserving first-seen order.
func DedupeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}
