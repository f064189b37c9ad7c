package learning

import (
	"math"
	"testing"
	"time"

	"github.com/louisbranch/attend/internal/domain/task"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func intPtr(v int) *int { return &v }

func TestBuildTaskFeaturesDueWindows(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	due := now.Add(10 * time.Hour)
	features := BuildTaskFeatures(task.Task{
		Priority:  task.PriorityP1,
		DueAt:     &due,
		UpdatedAt: now.Add(-48 * time.Hour),
	}, now)

	if !almostEqual(features["priority_value"], 0.75) {
		t.Fatalf("priority_value = %v", features["priority_value"])
	}
	if features["has_due"] != 1.0 {
		t.Fatal("expected has_due")
	}
	if !almostEqual(features["hours_to_due"], 10) {
		t.Fatalf("hours_to_due = %v", features["hours_to_due"])
	}
	if features["due_overdue"] != 0 || features["due_in_24h"] != 1 || features["due_in_72h"] != 1 || features["due_in_week"] != 1 {
		t.Fatalf("unexpected due windows: %v", features)
	}
	if !almostEqual(features["age_hours"], 48) {
		t.Fatalf("age_hours = %v", features["age_hours"])
	}
}

func TestBuildTaskFeaturesOverdueAndNoDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	overdue := now.Add(-2 * time.Hour)
	features := BuildTaskFeatures(task.Task{DueAt: &overdue, UpdatedAt: now}, now)
	if features["due_overdue"] != 1 || features["due_in_24h"] != 0 {
		t.Fatalf("unexpected overdue features: %v", features)
	}

	features = BuildTaskFeatures(task.Task{UpdatedAt: now}, now)
	if features["has_due"] != 0 {
		t.Fatal("expected no due date")
	}
	if !almostEqual(features["hours_to_due"], 9999) {
		t.Fatalf("hours_to_due sentinel = %v", features["hours_to_due"])
	}
}

func TestBuildTaskFeaturesStatusAndGates(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	gate := now.Add(24 * time.Hour)

	features := BuildTaskFeatures(task.Task{
		Status:           task.StatusBlocked,
		UpdatedAt:        now,
		DoNotStartBefore: &gate,
		BlockedBy:        []string{"task-1", "task-2"},
		Labels:           []string{task.LabelNeedsReview},
	}, now)

	if features["is_blocked"] != 1 || features["is_snoozed"] != 0 {
		t.Fatalf("unexpected status features: %v", features)
	}
	if features["has_future_start_gate"] != 1 {
		t.Fatal("expected future start gate")
	}
	if features["blocked_count"] != 2 {
		t.Fatalf("blocked_count = %v", features["blocked_count"])
	}
	if features["needs_review"] != 1 {
		t.Fatal("expected needs_review flag")
	}

	pastGate := now.Add(-time.Hour)
	features = BuildTaskFeatures(task.Task{UpdatedAt: now, DoNotStartBefore: &pastGate}, now)
	if features["has_future_start_gate"] != 0 {
		t.Fatal("past gate should not count")
	}
}

func TestShadowRankerScoreIsDeterministic(t *testing.T) {
	t.Parallel()
	ranker := ShadowRanker{}
	features := map[string]float64{
		"priority_value": 1.0,
		"has_due":        1.0,
		"due_overdue":    1.0,
		"due_in_24h":     0.0,
		"due_in_72h":     0.0,
		"age_hours":      96.0,
		"is_blocked":     0.0,
	}

	first := ranker.Score(features)
	second := ranker.Score(features)
	if first != second {
		t.Fatalf("expected deterministic result, got %+v then %+v", first, second)
	}

	// 18*1 + 14*1 + 4*min(96/24, 14) = 48
	if !almostEqual(first.Score, 48) {
		t.Fatalf("score = %v", first.Score)
	}
	// 0.55 + 0.15 has_due + 0.10 priority + 0.10 age>72h
	if !almostEqual(first.Confidence, 0.9) {
		t.Fatalf("confidence = %v", first.Confidence)
	}
	if first.Explanation == "" {
		t.Fatal("expected explanation")
	}
}

func TestShadowRankerPenaltiesAndClamp(t *testing.T) {
	t.Parallel()
	ranker := ShadowRanker{}

	result := ranker.Score(map[string]float64{
		"priority_value":        0.25,
		"is_blocked":            1.0,
		"has_future_start_gate": 1.0,
	})
	// 18*0.25 - 8 - 6 = -9.5
	if !almostEqual(result.Score, -9.5) {
		t.Fatalf("score = %v", result.Score)
	}
	if !almostEqual(result.Confidence, 0.55) {
		t.Fatalf("confidence = %v", result.Confidence)
	}

	// Age contribution caps at 14 days even for very old tasks.
	old := ranker.Score(map[string]float64{"priority_value": 0.5, "age_hours": 24 * 365})
	capped := ranker.Score(map[string]float64{"priority_value": 0.5, "age_hours": 24 * 14})
	if !almostEqual(old.Score, capped.Score) {
		t.Fatalf("expected capped age contribution, got %v vs %v", old.Score, capped.Score)
	}
}

func TestInferReminderFeedbackSemantics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		action     string
		followup   *int
		snooze     *int
		usefulness float64
		timingFit  float64
		interrupt  float64
	}{
		{name: "snoozed", action: "snoozed", usefulness: 0.7, timingFit: 0.3, interrupt: 0.7},
		{name: "short snooze", action: "snoozed", snooze: intPtr(10), usefulness: 0.8, timingFit: 0.35, interrupt: 0.8},
		{name: "long snooze", action: "snoozed", snooze: intPtr(120), usefulness: 0.7, timingFit: 0.3, interrupt: 0.7},
		{name: "dismissed with quick follow-up", action: "dismissed", followup: intPtr(30), usefulness: 0.85, timingFit: 0.65, interrupt: 0.55},
		{name: "dismissed without follow-up", action: "dismissed", usefulness: 0.25, timingFit: 0.45, interrupt: 0.35},
		{name: "dismissed with slow follow-up", action: "dismissed", followup: intPtr(90), usefulness: 0.25, timingFit: 0.45, interrupt: 0.35},
		{name: "unknown action", action: "starred", usefulness: 0.5, timingFit: 0.5, interrupt: 0.5},
		{name: "case insensitive", action: " Snoozed ", usefulness: 0.7, timingFit: 0.3, interrupt: 0.7},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result := InferReminderFeedbackSemantics(tc.action, tc.followup, tc.snooze)
			if !almostEqual(result.Usefulness, tc.usefulness) ||
				!almostEqual(result.TimingFit, tc.timingFit) ||
				!almostEqual(result.InterruptCost, tc.interrupt) {
				t.Fatalf("unexpected semantics: %+v", result)
			}
			if result.Rationale == "" {
				t.Fatal("expected rationale")
			}
		})
	}
}

func TestBuildFeedbackFeaturesCarriesTargets(t *testing.T) {
	t.Parallel()

	features := BuildFeedbackFeatures("dismissed", intPtr(20), nil)
	if features["action_dismissed"] != 1 || features["action_snoozed"] != 0 {
		t.Fatalf("unexpected action flags: %v", features)
	}
	if features["followup_action_within_minutes"] != 20 {
		t.Fatalf("followup = %v", features["followup_action_within_minutes"])
	}
	if features["snooze_minutes"] != -1 {
		t.Fatalf("snooze sentinel = %v", features["snooze_minutes"])
	}
	if !almostEqual(features["target_usefulness"], 0.85) {
		t.Fatalf("target_usefulness = %v", features["target_usefulness"])
	}
}
