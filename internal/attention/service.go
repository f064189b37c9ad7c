// Package attention builds reproducible attention queues from task state.
// Ordering is deterministic by construction: buckets and urgency scores come
// from explainable rules, and the optional learned ranker may only reorder
// tasks inside one bucket when its confidence clears the configured gate.
package attention

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	domain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/learning"
	"github.com/louisbranch/attend/internal/storage"
)

// Personalization modes.
const (
	ModeDeterministic = "deterministic"
	ModeShadow        = "shadow"
	ModeBounded       = "bounded"
)

// Personalization policies recorded on every candidate.
const (
	PolicyDeterministicOnly = "deterministic_only"
	PolicyBoundedInBucket   = "bounded_in_bucket"
)

const serviceActor = "attention_service"

const shadowFallbackExplanation = "shadow model unavailable; deterministic fallback active"

// ControlSource resolves the effective personalization controls at call time.
type ControlSource interface {
	EffectiveControls(ctx context.Context) (event.ControlState, error)
}

// Scorer scores a feature vector. A failing scorer degrades the candidate to
// deterministic-only; it never fails the queue.
type Scorer interface {
	Score(features map[string]float64) (learning.ShadowResult, error)
}

type shadowScorer struct {
	ranker learning.ShadowRanker
}

func (s shadowScorer) Score(features map[string]float64) (learning.ShadowResult, error) {
	return s.ranker.Score(features), nil
}

// Candidate is one scored task.
type Candidate struct {
	Task                     domain.Task
	UrgencyScore             float64
	UrgencyExplanation       string
	Bucket                   Bucket
	BucketRank               int
	DeterministicExplanation string
	ModelScore               *float64
	ModelConfidence          *float64
	LearnedExplanation       string
	PersonalizationApplied   bool
	PersonalizationPolicy    string
	IsActionable             bool
	IsStale                  bool
}

// TodayView is the daily attention queue.
type TodayView struct {
	GeneratedAt           time.Time
	TopActionable         []Candidate
	DueNext72h            []Candidate
	StaleCleanupCandidate *Candidate
}

// WeekView is the weekly attention queue.
type WeekView struct {
	GeneratedAt            time.Time
	DueThisWeek            []Candidate
	HighPriorityWithoutDue []Candidate
	BlockedSummary         []Candidate
}

// Service builds attention queues.
type Service struct {
	events   storage.EventStore
	tasks    storage.TaskStore
	controls ControlSource
	scorer   Scorer
	clock    func() time.Time
}

// NewService constructs the attention service. A nil scorer uses the shadow
// ranker; a nil controls source pins the deterministic baseline.
func NewService(events storage.EventStore, tasks storage.TaskStore, controls ControlSource, scorer Scorer, clock func() time.Time) *Service {
	if scorer == nil {
		scorer = shadowScorer{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		events:   events,
		tasks:    tasks,
		controls: controls,
		scorer:   scorer,
		clock:    clock,
	}
}

// Today builds the daily queue: top actionable tasks, everything due within
// 72 hours, and at most one stale cleanup candidate.
func (s *Service) Today(ctx context.Context, limit int) (TodayView, error) {
	if limit <= 0 {
		limit = 5
	}
	now := s.clock().UTC()
	controls, err := s.effectiveControls(ctx)
	if err != nil {
		return TodayView{}, err
	}

	scored, err := s.scoreAll(ctx, now, controls)
	if err != nil {
		return TodayView{}, err
	}

	var actionable []Candidate
	for _, candidate := range scored {
		if candidate.IsActionable {
			actionable = append(actionable, candidate)
		}
	}
	actionable = s.sortWithOptionalPersonalization(actionable, controls)
	if len(actionable) > limit {
		actionable = actionable[:limit]
	}

	var due72h []Candidate
	for _, candidate := range scored {
		if candidate.Task.Status.IsTerminal() || candidate.Task.DueAt == nil {
			continue
		}
		untilDue := candidate.Task.DueAt.Sub(now)
		if untilDue >= 0 && untilDue <= 72*time.Hour {
			due72h = append(due72h, candidate)
		}
	}
	sort.SliceStable(due72h, func(i, j int) bool {
		return due72h[i].Task.DueAt.Before(*due72h[j].Task.DueAt)
	})

	var stale []Candidate
	for _, candidate := range scored {
		if candidate.IsStale {
			stale = append(stale, candidate)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].Task.UpdatedAt.Before(stale[j].Task.UpdatedAt)
	})
	var staleCandidate *Candidate
	if len(stale) > 0 {
		staleCandidate = &stale[0]
	}

	if err := s.recordQueue(ctx, "today", actionable); err != nil {
		return TodayView{}, err
	}

	return TodayView{
		GeneratedAt:           now,
		TopActionable:         actionable,
		DueNext72h:            due72h,
		StaleCleanupCandidate: staleCandidate,
	}, nil
}

// Week builds the weekly queue: due this week, high priority without due
// date, and a blocked summary.
func (s *Service) Week(ctx context.Context) (WeekView, error) {
	now := s.clock().UTC()
	controls, err := s.effectiveControls(ctx)
	if err != nil {
		return WeekView{}, err
	}

	scored, err := s.scoreAll(ctx, now, controls)
	if err != nil {
		return WeekView{}, err
	}

	horizon := now.Add(7 * 24 * time.Hour)
	var dueThisWeek []Candidate
	var highPriorityNoDue []Candidate
	var blocked []Candidate
	for _, candidate := range scored {
		row := candidate.Task
		if row.Status == domain.StatusBlocked {
			blocked = append(blocked, candidate)
		}
		if row.Status.IsTerminal() {
			continue
		}
		if row.DueAt != nil {
			if !row.DueAt.Before(now) && !row.DueAt.After(horizon) {
				dueThisWeek = append(dueThisWeek, candidate)
			}
			continue
		}
		if row.Priority == domain.PriorityP0 || row.Priority == domain.PriorityP1 {
			highPriorityNoDue = append(highPriorityNoDue, candidate)
		}
	}
	sort.SliceStable(dueThisWeek, func(i, j int) bool {
		return dueThisWeek[i].Task.DueAt.Before(*dueThisWeek[j].Task.DueAt)
	})
	highPriorityNoDue = s.sortWithOptionalPersonalization(highPriorityNoDue, controls)
	blocked = s.sortWithOptionalPersonalization(blocked, controls)

	recorded := make([]Candidate, 0, len(dueThisWeek)+len(highPriorityNoDue)+len(blocked))
	recorded = append(recorded, dueThisWeek...)
	recorded = append(recorded, highPriorityNoDue...)
	recorded = append(recorded, blocked...)
	if err := s.recordQueue(ctx, "week", recorded); err != nil {
		return WeekView{}, err
	}

	return WeekView{
		GeneratedAt:            now,
		DueThisWeek:            dueThisWeek,
		HighPriorityWithoutDue: highPriorityNoDue,
		BlockedSummary:         blocked,
	}, nil
}

func (s *Service) effectiveControls(ctx context.Context) (event.ControlState, error) {
	if s.controls == nil {
		return event.ControlState{Mode: ModeDeterministic, ShadowConfidenceThreshold: 0.6}, nil
	}
	return s.controls.EffectiveControls(ctx)
}

func (s *Service) scoreAll(ctx context.Context, now time.Time, controls event.ControlState) ([]Candidate, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(tasks))
	for _, row := range tasks {
		candidate, err := s.scoreTask(ctx, row, now, controls)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// scoreTask computes the deterministic urgency score with an explanation of
// every term, assigns the bucket, records a feature snapshot, and, when the
// shadow ranker is enabled, a model score. A shadow failure degrades this
// candidate to deterministic-only and is not an error.
func (s *Service) scoreTask(ctx context.Context, row domain.Task, now time.Time, controls event.ControlState) (Candidate, error) {
	score := 0.0
	var components []string

	if row.DueAt != nil {
		hoursToDue := row.DueAt.Sub(now).Hours()
		switch {
		case hoursToDue < 0:
			score += 60
			components = append(components, "overdue +60")
		case hoursToDue <= 24:
			score += 45
			components = append(components, "due<24h +45")
		case hoursToDue <= 72:
			score += 35
			components = append(components, "due<72h +35")
		case hoursToDue <= 7*24:
			score += 20
			components = append(components, "due<7d +20")
		default:
			score += 5
			components = append(components, "due>7d +5")
		}
	}

	priorityDelta := map[domain.Priority]float64{
		domain.PriorityP0: 30,
		domain.PriorityP1: 20,
		domain.PriorityP2: 10,
		domain.PriorityP3: 0,
	}[row.Priority]
	score += priorityDelta
	components = append(components, fmt.Sprintf("priority %s +%d", row.Priority, int(priorityDelta)))

	if !row.UpdatedAt.IsZero() {
		ageDays := now.Sub(row.UpdatedAt).Hours() / 24
		switch {
		case ageDays >= 14:
			score += 18
			components = append(components, "age>=14d +18")
		case ageDays >= 7:
			score += 12
			components = append(components, "age>=7d +12")
		case ageDays >= 3:
			score += 6
			components = append(components, "age>=3d +6")
		}
	}

	if row.Status == domain.StatusBlocked {
		score -= 15
		components = append(components, "blocked -15")
	}
	if row.Status == domain.StatusSnoozed {
		score -= 25
		components = append(components, "snoozed -25")
	}
	if row.DoNotStartBefore != nil && row.DoNotStartBefore.After(now) {
		score -= 30
		components = append(components, "start-gated -30")
	}

	explanation := joinComponents(components)
	bucket := determineBucket(row, now)
	candidate := Candidate{
		Task:                     row,
		UrgencyScore:             math.Round(score*100) / 100,
		UrgencyExplanation:       explanation,
		Bucket:                   bucket,
		BucketRank:               bucket.Rank(),
		DeterministicExplanation: explanation,
		PersonalizationPolicy:    PolicyDeterministicOnly,
		IsActionable:             row.IsActionable(now),
		IsStale:                  row.IsStale(now),
	}

	features := learning.BuildTaskFeatures(row, now)
	if err := s.recordFeatureSnapshot(ctx, row.ID, features, bucket); err != nil {
		return Candidate{}, err
	}

	if controls.Mode == ModeShadow || controls.Mode == ModeBounded {
		result, err := s.scorer.Score(features)
		if err != nil {
			candidate.LearnedExplanation = shadowFallbackExplanation
			return candidate, nil
		}
		candidate.ModelScore = &result.Score
		candidate.ModelConfidence = &result.Confidence
		candidate.LearnedExplanation = result.Explanation
		if err := s.recordModelScore(ctx, row.ID, result, bucket); err != nil {
			return Candidate{}, err
		}
	}
	return candidate, nil
}

func joinComponents(components []string) string {
	if len(components) == 0 {
		return "baseline"
	}
	out := components[0]
	for _, component := range components[1:] {
		out += "; " + component
	}
	return out
}

func deterministicLess(a, b Candidate) bool {
	if a.BucketRank != b.BucketRank {
		return a.BucketRank < b.BucketRank
	}
	if a.UrgencyScore != b.UrgencyScore {
		return a.UrgencyScore > b.UrgencyScore
	}
	return a.Task.UpdatedAt.Before(b.Task.UpdatedAt)
}

// sortWithOptionalPersonalization orders candidates deterministically, then,
// in bounded mode only, lets the model reorder confident candidates within
// each bucket. Candidates below the confidence gate keep their deterministic
// positions.
func (s *Service) sortWithOptionalPersonalization(candidates []Candidate, controls event.ControlState) []Candidate {
	ordered := append([]Candidate{}, candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return deterministicLess(ordered[i], ordered[j])
	})
	policy := PolicyDeterministicOnly
	if controls.Mode == ModeBounded {
		policy = PolicyBoundedInBucket
	}
	for i := range ordered {
		ordered[i].PersonalizationApplied = false
		ordered[i].PersonalizationPolicy = policy
	}
	if controls.Mode != ModeBounded {
		return ordered
	}

	var merged []Candidate
	start := 0
	for start < len(ordered) {
		end := start
		for end < len(ordered) && ordered[end].BucketRank == ordered[start].BucketRank {
			end++
		}
		merged = append(merged, reorderBucketWithModel(ordered[start:end], controls.ShadowConfidenceThreshold)...)
		start = end
	}
	return merged
}

// reorderBucketWithModel re-sorts model-confident candidates by model score
// and splices them back into the positions they previously occupied, leaving
// every ineligible candidate exactly where deterministic ordering put it.
func reorderBucketWithModel(bucket []Candidate, threshold float64) []Candidate {
	var eligible []Candidate
	for _, candidate := range bucket {
		if candidate.ModelScore != nil && candidate.ModelConfidence != nil && *candidate.ModelConfidence >= threshold {
			eligible = append(eligible, candidate)
		}
	}
	if len(eligible) < 2 {
		return bucket
	}

	reordered := append([]Candidate{}, eligible...)
	sort.SliceStable(reordered, func(i, j int) bool {
		a, b := reordered[i], reordered[j]
		if *a.ModelScore != *b.ModelScore {
			return *a.ModelScore > *b.ModelScore
		}
		if a.UrgencyScore != b.UrgencyScore {
			return a.UrgencyScore > b.UrgencyScore
		}
		return a.Task.UpdatedAt.Before(b.Task.UpdatedAt)
	})

	changed := false
	for i := range eligible {
		if eligible[i].Task.ID != reordered[i].Task.ID {
			changed = true
			break
		}
	}
	if !changed {
		return bucket
	}

	eligibleIDs := make(map[string]bool, len(eligible))
	for _, candidate := range eligible {
		eligibleIDs[candidate.Task.ID] = true
	}

	out := make([]Candidate, 0, len(bucket))
	next := 0
	for _, candidate := range bucket {
		if eligibleIDs[candidate.Task.ID] {
			chosen := reordered[next]
			next++
			chosen.PersonalizationApplied = true
			out = append(out, chosen)
		} else {
			out = append(out, candidate)
		}
	}
	return out
}

func (s *Service) recordQueue(ctx context.Context, queueName string, candidates []Candidate) error {
	records := make([]event.AttentionCandidateRecord, 0, len(candidates))
	for _, candidate := range candidates {
		record := event.AttentionCandidateRecord{
			TaskID:                   candidate.Task.ID,
			UrgencyScore:             candidate.UrgencyScore,
			UrgencyExplanation:       candidate.UrgencyExplanation,
			Bucket:                   string(candidate.Bucket),
			BucketRank:               candidate.BucketRank,
			DeterministicExplanation: candidate.DeterministicExplanation,
			ModelScore:               candidate.ModelScore,
			ModelConfidence:          candidate.ModelConfidence,
			LearnedExplanation:       candidate.LearnedExplanation,
			PersonalizationApplied:   candidate.PersonalizationApplied,
			PersonalizationPolicy:    candidate.PersonalizationPolicy,
		}
		records = append(records, record)
	}

	payload, err := event.MarshalPayload(event.AttentionScoringComputedPayload{
		QueueName:  queueName,
		Candidates: records,
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeAttentionScoringComputed,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	return err
}

func (s *Service) recordFeatureSnapshot(ctx context.Context, taskID string, features map[string]float64, bucket Bucket) error {
	payload, err := event.MarshalPayload(event.FeatureSnapshotRecordedPayload{
		CandidateID:   taskID,
		CandidateType: "attention_task",
		Features:      features,
		Context: map[string]string{
			"bucket":      string(bucket),
			"bucket_rank": strconv.Itoa(bucket.Rank()),
		},
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeFeatureSnapshotRecorded,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	return err
}

func (s *Service) recordModelScore(ctx context.Context, taskID string, result learning.ShadowResult, bucket Bucket) error {
	payload, err := event.MarshalPayload(event.ModelScoreRecordedPayload{
		CandidateID:   taskID,
		CandidateType: "attention_task",
		ModelName:     learning.ShadowRankerModelName,
		ModelVersion:  learning.ShadowRankerModelVersion,
		Score:         result.Score,
		Confidence:    result.Confidence,
		Explanation:   result.Explanation,
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeModelScoreRecorded,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata: map[string]string{
			"service": serviceActor,
			"mode":    "shadow",
			"bucket":  string(bucket),
		},
	})
	return err
}
