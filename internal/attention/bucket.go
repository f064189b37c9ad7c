package attention

import (
	"time"

	domain "github.com/louisbranch/attend/internal/domain/task"
)

// Bucket is the deterministic attention bucket for one task. Bucket
// membership is never changed by personalization; only in-bucket order is.
type Bucket string

const (
	BucketUrgentDueSoon        Bucket = "urgent_due_soon"
	BucketReadyHighPriority    Bucket = "ready_high_priority"
	BucketReadyNormal          Bucket = "ready_normal"
	BucketBlocked              Bucket = "blocked"
	BucketDeferredOrGated      Bucket = "deferred_or_gated"
	BucketCompletedOrCancelled Bucket = "completed_or_cancelled"
)

// Rank returns the bucket's display rank, 0 first.
func (b Bucket) Rank() int {
	switch b {
	case BucketUrgentDueSoon:
		return 0
	case BucketReadyHighPriority:
		return 1
	case BucketReadyNormal:
		return 2
	case BucketBlocked:
		return 3
	case BucketDeferredOrGated:
		return 4
	case BucketCompletedOrCancelled:
		return 5
	}
	return 2
}

// determineBucket assigns a task to its deterministic bucket. Status rules
// win over due-date rules: a blocked task with an imminent due date is still
// blocked.
func determineBucket(row domain.Task, now time.Time) Bucket {
	if row.Status.IsTerminal() {
		return BucketCompletedOrCancelled
	}
	if row.Status == domain.StatusBlocked {
		return BucketBlocked
	}
	if row.Status == domain.StatusSnoozed || (row.DoNotStartBefore != nil && row.DoNotStartBefore.After(now)) {
		return BucketDeferredOrGated
	}
	if row.DueAt != nil && row.DueAt.Sub(now).Hours() <= 72 {
		return BucketUrgentDueSoon
	}
	if row.Priority == domain.PriorityP0 || row.Priority == domain.PriorityP1 {
		return BucketReadyHighPriority
	}
	return BucketReadyNormal
}
