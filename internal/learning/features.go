// Package learning holds the stateless scoring collaborators: deterministic
// feature extraction, the interpretable shadow ranker, and weak-label
// feedback semantics. Everything here is pure; callers persist the outputs
// as events so training data stays replayable.
package learning

import (
	"time"

	"github.com/louisbranch/attend/internal/domain/task"
)

// hoursToDueUnset is the sentinel for tasks without a due date.
const hoursToDueUnset = 9999.0

// PriorityValue maps a priority band to its numeric feature value.
func PriorityValue(p task.Priority) float64 {
	switch p {
	case task.PriorityP0:
		return 1.0
	case task.PriorityP1:
		return 0.75
	case task.PriorityP3:
		return 0.25
	default:
		return 0.5
	}
}

// BuildTaskFeatures builds the deterministic feature vector for one task.
// Only projection-visible state feeds in, so a feature snapshot recorded at
// decision time can be reproduced from the journal.
func BuildTaskFeatures(t task.Task, now time.Time) map[string]float64 {
	hoursToDue := hoursToDueUnset
	hasDue := 0.0
	dueOverdue := 0.0
	dueIn24h := 0.0
	dueIn72h := 0.0
	dueInWeek := 0.0
	if t.DueAt != nil {
		hasDue = 1.0
		deltaHours := t.DueAt.Sub(now).Hours()
		hoursToDue = deltaHours
		if deltaHours < 0 {
			dueOverdue = 1.0
		}
		if deltaHours >= 0 && deltaHours <= 24 {
			dueIn24h = 1.0
		}
		if deltaHours >= 0 && deltaHours <= 72 {
			dueIn72h = 1.0
		}
		if deltaHours >= 0 && deltaHours <= 168 {
			dueInWeek = 1.0
		}
	}

	ageHours := 0.0
	if !t.UpdatedAt.IsZero() {
		ageHours = now.Sub(t.UpdatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
	}

	isBlocked := 0.0
	if t.Status == task.StatusBlocked {
		isBlocked = 1.0
	}
	isSnoozed := 0.0
	if t.Status == task.StatusSnoozed {
		isSnoozed = 1.0
	}
	hasFutureStartGate := 0.0
	if t.DoNotStartBefore != nil && t.DoNotStartBefore.After(now) {
		hasFutureStartGate = 1.0
	}
	needsReview := 0.0
	if t.HasLabel(task.LabelNeedsReview) {
		needsReview = 1.0
	}

	return map[string]float64{
		"priority_value":        PriorityValue(t.Priority),
		"has_due":               hasDue,
		"hours_to_due":          hoursToDue,
		"due_overdue":           dueOverdue,
		"due_in_24h":            dueIn24h,
		"due_in_72h":            dueIn72h,
		"due_in_week":           dueInWeek,
		"age_hours":             ageHours,
		"is_blocked":            isBlocked,
		"is_snoozed":            isSnoozed,
		"has_future_start_gate": hasFutureStartGate,
		"blocked_count":         float64(len(t.BlockedBy)),
		"needs_review":          needsReview,
	}
}

// BuildFeedbackFeatures builds deterministic feedback features plus
// weak-label targets. Inference stays explicit and replayable from
// event-visible fields.
func BuildFeedbackFeatures(action string, followupWithinMinutes, snoozeMinutes *int) map[string]float64 {
	semantics := InferReminderFeedbackSemantics(action, followupWithinMinutes, snoozeMinutes)

	actionDismissed := 0.0
	if action == "dismissed" {
		actionDismissed = 1.0
	}
	actionSnoozed := 0.0
	if action == "snoozed" {
		actionSnoozed = 1.0
	}

	return map[string]float64{
		"action_dismissed":               actionDismissed,
		"action_snoozed":                 actionSnoozed,
		"followup_action_within_minutes": optionalMinutes(followupWithinMinutes),
		"snooze_minutes":                 optionalMinutes(snoozeMinutes),
		"target_usefulness":              semantics.Usefulness,
		"target_timing_fit":              semantics.TimingFit,
		"target_interrupt_cost":          semantics.InterruptCost,
	}
}

func optionalMinutes(value *int) float64 {
	if value == nil {
		return -1
	}
	return float64(*value)
}
