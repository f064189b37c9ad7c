// Package lab is the control plane for ranking personalization. All
// configuration changes, experiment runs, and apply decisions are recorded as
// events; the effective configuration is the env baseline merged with the
// latest lab.control_changed event.
package lab

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/louisbranch/attend/internal/apperr"
	"github.com/louisbranch/attend/internal/domain/event"
	domain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/platform/id"
	"github.com/louisbranch/attend/internal/storage"
)

// Personalization modes. Kept in sync with the attention service by the
// shared event.ControlState wire format.
const (
	ModeDeterministic = "deterministic"
	ModeShadow        = "shadow"
	ModeBounded       = "bounded"
)

// Experiment apply actions.
const (
	ActionApply    = "apply"
	ActionRollback = "rollback"
	ActionNoOp     = "no_op"
)

const serviceActor = "lab_service"

// safetyFloor is the minimum candidate confidence threshold an experiment may
// carry and still be applied.
const safetyFloor = 0.4

const applyBlockReason = "candidate_shadow_confidence_threshold below safety floor"

// Rollout gate thresholds surfaced in Overview diagnostics.
const (
	// DuplicateRateCap is the tolerated share of open tasks flagged for
	// duplicate review before ingest quality counts as degraded.
	DuplicateRateCap = 0.05
	// ConfidenceShareTarget is the share of recent model scores that must be
	// high-confidence before personalization rollout is considered healthy.
	ConfidenceShareTarget = 0.60
)

// rollbackBaseline is the always-safe configuration every control change can
// be undone to.
var rollbackBaseline = event.ControlState{
	Mode:                      ModeDeterministic,
	ShadowConfidenceThreshold: 0.6,
}

// ConfigSnapshot is the resolved ranking configuration with its derived
// feature switches.
type ConfigSnapshot struct {
	Mode                          string  `json:"mode"`
	ShadowRankerEnabled           bool    `json:"shadow_ranker_enabled"`
	BoundedPersonalizationEnabled bool    `json:"bounded_personalization_enabled"`
	ShadowConfidenceThreshold     float64 `json:"shadow_confidence_threshold"`
}

// DiagnosticMetric is one labelled health indicator.
type DiagnosticMetric struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Value       float64 `json:"value"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
}

// Diagnostics is a point-in-time health snapshot.
type Diagnostics struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Metrics     []DiagnosticMetric `json:"metrics"`
}

// FallbackState describes the always-available deterministic baseline.
type FallbackState struct {
	DeterministicFallbackActive bool   `json:"deterministic_fallback_active"`
	SafetyReason                string `json:"safety_reason"`
}

// Overview is the control-plane summary.
type Overview struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Config      ConfigSnapshot `json:"config"`
	Diagnostics Diagnostics    `json:"diagnostics"`
	Fallback    FallbackState  `json:"fallback_state"`
}

// Audit identifies the event a control change produced.
type Audit struct {
	EventID   string `json:"event_id"`
	Actor     string `json:"actor"`
	Action    string `json:"action,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// ControlUpdate is the result of a configuration change.
type ControlUpdate struct {
	Status          string         `json:"status"`
	EffectiveConfig ConfigSnapshot `json:"effective_config"`
	Audit           Audit          `json:"audit"`
}

// UpdateControlsInput names the requested configuration.
type UpdateControlsInput struct {
	Actor                     string
	Mode                      string
	ShadowConfidenceThreshold float64
	Rationale                 string
}

// RunExperimentInput describes a candidate configuration to compare against
// the effective baseline.
type RunExperimentInput struct {
	Actor                              string
	ExperimentType                     string
	CandidateMode                      string
	CandidateShadowConfidenceThreshold float64
	Rationale                          string
}

// ExperimentRunResult is the outcome of one comparison run.
type ExperimentRunResult struct {
	RunID            string             `json:"run_id"`
	Status           string             `json:"status"`
	GeneratedAt      time.Time          `json:"generated_at"`
	Baseline         event.ControlState `json:"baseline"`
	Candidate        event.ControlState `json:"candidate"`
	QualityDelta     float64            `json:"estimated_attention_quality_delta"`
	SafetyGate       string             `json:"safety_gate"`
	ApplyAllowed     bool               `json:"apply_allowed"`
	ApplyBlockReason string             `json:"apply_block_reason,omitempty"`
}

// ApplyExperimentInput names the decision taken on a finished run.
type ApplyExperimentInput struct {
	Actor     string
	Action    string
	Rationale string
}

// HistoryItem is one past experiment run.
type HistoryItem struct {
	RunID          string             `json:"run_id"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Actor          string             `json:"actor"`
	ExperimentType string             `json:"experiment_type"`
	Candidate      event.ControlState `json:"candidate"`
	ApplyAllowed   bool               `json:"apply_allowed"`
	Status         string             `json:"status"`
}

// Service is the lab control plane.
type Service struct {
	events   storage.EventStore
	tasks    storage.TaskStore
	baseline event.ControlState
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs the lab service. A zero baseline falls back to the
// deterministic default; nil clock and newID use the real implementations.
func NewService(events storage.EventStore, tasks storage.TaskStore, baseline event.ControlState, clock func() time.Time, newID func() (string, error)) *Service {
	if baseline.Mode == "" {
		baseline = rollbackBaseline
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		events:   events,
		tasks:    tasks,
		baseline: baseline,
		clock:    clock,
		newID:    newID,
	}
}

// EffectiveControls resolves the configuration the attention service must use
// right now: the env baseline overridden by the latest control change.
func (s *Service) EffectiveControls(ctx context.Context) (event.ControlState, error) {
	changes, err := s.events.StreamEvents(ctx, storage.EventFilter{Types: []event.Type{event.TypeLabControlChanged}})
	if err != nil {
		return event.ControlState{}, fmt.Errorf("stream control changes: %w", err)
	}
	if len(changes) == 0 {
		return s.baseline, nil
	}
	latest := changes[len(changes)-1]
	var payload event.LabControlChangedPayload
	if err := event.UnmarshalPayload(latest.PayloadJSON, &payload); err != nil {
		return event.ControlState{}, err
	}
	state := s.baseline
	if payload.After.Mode != "" {
		state.Mode = payload.After.Mode
	}
	state.ShadowConfidenceThreshold = payload.After.ShadowConfidenceThreshold
	return state, nil
}

// EffectiveConfig resolves the effective controls into a full snapshot.
func (s *Service) EffectiveConfig(ctx context.Context) (ConfigSnapshot, error) {
	state, err := s.EffectiveControls(ctx)
	if err != nil {
		return ConfigSnapshot{}, err
	}
	return snapshotFrom(state), nil
}

// UpdateControls records a configuration change and returns the new effective
// snapshot.
func (s *Service) UpdateControls(ctx context.Context, input UpdateControlsInput) (ControlUpdate, error) {
	if err := validateState(input.Mode, input.ShadowConfidenceThreshold); err != nil {
		return ControlUpdate{}, err
	}
	before, err := s.EffectiveControls(ctx)
	if err != nil {
		return ControlUpdate{}, err
	}
	after := event.ControlState{
		Mode:                      input.Mode,
		ShadowConfidenceThreshold: input.ShadowConfidenceThreshold,
	}
	recorded, err := s.recordControlChange(ctx, input.Actor, input.Rationale, before, after, nil)
	if err != nil {
		return ControlUpdate{}, err
	}
	return ControlUpdate{
		Status:          "updated",
		EffectiveConfig: snapshotFrom(after),
		Audit:           Audit{EventID: recorded.ID, Actor: input.Actor, Rationale: input.Rationale},
	}, nil
}

// Rollback restores the deterministic baseline regardless of the current
// configuration.
func (s *Service) Rollback(ctx context.Context, actor, rationale string) (ControlUpdate, error) {
	before, err := s.EffectiveControls(ctx)
	if err != nil {
		return ControlUpdate{}, err
	}
	recorded, err := s.recordControlChange(ctx, actor, rationale, before, rollbackBaseline, map[string]string{"action": ActionRollback})
	if err != nil {
		return ControlUpdate{}, err
	}
	return ControlUpdate{
		Status:          "rolled_back",
		EffectiveConfig: snapshotFrom(rollbackBaseline),
		Audit:           Audit{EventID: recorded.ID, Actor: actor, Action: ActionRollback, Rationale: rationale},
	}, nil
}

// RunExperiment compares a candidate configuration against the effective
// baseline and records the run. Apply permission is decided by the safety
// floor at run time and re-validated at apply time.
func (s *Service) RunExperiment(ctx context.Context, input RunExperimentInput) (ExperimentRunResult, error) {
	if err := validateState(input.CandidateMode, input.CandidateShadowConfidenceThreshold); err != nil {
		return ExperimentRunResult{}, err
	}
	baseline, err := s.EffectiveControls(ctx)
	if err != nil {
		return ExperimentRunResult{}, err
	}
	candidate := event.ControlState{
		Mode:                      input.CandidateMode,
		ShadowConfidenceThreshold: input.CandidateShadowConfidenceThreshold,
	}

	delta := 0.0
	switch input.CandidateMode {
	case ModeBounded:
		delta += 0.15
	case ModeShadow:
		delta += 0.07
	}
	delta += math.Max(0, 0.75-input.CandidateShadowConfidenceThreshold) * 0.1
	delta = math.Round(delta*10000) / 10000

	applyAllowed := input.CandidateShadowConfidenceThreshold >= safetyFloor
	blockReason := ""
	gate := "pass"
	if !applyAllowed {
		blockReason = applyBlockReason
		gate = "blocked"
	}

	runID, err := s.newID()
	if err != nil {
		return ExperimentRunResult{}, fmt.Errorf("generate run id: %w", err)
	}
	payload, err := event.MarshalPayload(event.LabExperimentRunPayload{
		RunID:            runID,
		Actor:            input.Actor,
		ExperimentType:   input.ExperimentType,
		Baseline:         baseline,
		Candidate:        candidate,
		QualityDelta:     delta,
		ApplyAllowed:     applyAllowed,
		ApplyBlockReason: blockReason,
		Rationale:        input.Rationale,
	})
	if err != nil {
		return ExperimentRunResult{}, err
	}
	if _, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeLabExperimentRun,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	}); err != nil {
		return ExperimentRunResult{}, fmt.Errorf("append experiment run: %w", err)
	}

	return ExperimentRunResult{
		RunID:            runID,
		Status:           "completed",
		GeneratedAt:      s.clock().UTC(),
		Baseline:         baseline,
		Candidate:        candidate,
		QualityDelta:     delta,
		SafetyGate:       gate,
		ApplyAllowed:     applyAllowed,
		ApplyBlockReason: blockReason,
	}, nil
}

// ApplyExperiment records the apply/rollback/no_op decision for a finished
// run. An apply that failed the safety gate is itself recorded as a
// not-applied decision before the call fails.
func (s *Service) ApplyExperiment(ctx context.Context, runID string, input ApplyExperimentInput) (ControlUpdate, error) {
	switch input.Action {
	case ActionApply, ActionRollback, ActionNoOp:
	default:
		return ControlUpdate{}, apperr.Newf(apperr.CodeValidationFailed, "unknown experiment action %q", input.Action)
	}

	run, err := s.findRun(ctx, runID)
	if err != nil {
		return ControlUpdate{}, err
	}

	if input.Action == ActionApply && !run.ApplyAllowed {
		reason := run.ApplyBlockReason
		if reason == "" {
			reason = "safety gate blocked apply"
		}
		if err := s.recordExperimentApplied(ctx, runID, input, false, reason); err != nil {
			return ControlUpdate{}, err
		}
		return ControlUpdate{}, apperr.New(apperr.CodeSafetyGateBlocked, reason).
			WithMetadata(map[string]string{"run_id": runID})
	}

	before, err := s.EffectiveControls(ctx)
	if err != nil {
		return ControlUpdate{}, err
	}
	var after event.ControlState
	var status string
	switch input.Action {
	case ActionApply:
		after = run.Candidate
		status = "updated"
	case ActionRollback:
		after = rollbackBaseline
		status = "rolled_back"
	default:
		after = before
		status = "no_op"
	}

	if err := s.recordExperimentApplied(ctx, runID, input, input.Action != ActionNoOp, ""); err != nil {
		return ControlUpdate{}, err
	}
	recorded, err := s.recordControlChange(ctx, input.Actor,
		fmt.Sprintf("experiment:%s:%s", runID, input.Rationale),
		before, after, map[string]string{"source": "experiment_apply"})
	if err != nil {
		return ControlUpdate{}, err
	}

	return ControlUpdate{
		Status:          status,
		EffectiveConfig: snapshotFrom(after),
		Audit: Audit{
			EventID:   recorded.ID,
			Actor:     input.Actor,
			Action:    input.Action,
			RunID:     runID,
			Rationale: input.Rationale,
		},
	}, nil
}

// ExperimentHistory returns past runs, newest first.
func (s *Service) ExperimentHistory(ctx context.Context, limit int) ([]HistoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.events.StreamEvents(ctx, storage.EventFilter{Types: []event.Type{event.TypeLabExperimentRun}})
	if err != nil {
		return nil, fmt.Errorf("stream experiment runs: %w", err)
	}
	items := make([]HistoryItem, 0, len(runs))
	for _, evt := range runs {
		var payload event.LabExperimentRunPayload
		if err := event.UnmarshalPayload(evt.PayloadJSON, &payload); err != nil {
			return nil, err
		}
		items = append(items, HistoryItem{
			RunID:          payload.RunID,
			GeneratedAt:    evt.Timestamp,
			Actor:          payload.Actor,
			ExperimentType: payload.ExperimentType,
			Candidate:      payload.Candidate,
			ApplyAllowed:   payload.ApplyAllowed,
			Status:         "completed",
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].GeneratedAt.After(items[j].GeneratedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Overview returns the effective configuration, health diagnostics, and the
// fallback state.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	state, err := s.EffectiveControls(ctx)
	if err != nil {
		return Overview{}, err
	}
	diagnostics, err := s.diagnostics(ctx)
	if err != nil {
		return Overview{}, err
	}
	config := snapshotFrom(state)
	return Overview{
		GeneratedAt: s.clock().UTC(),
		Config:      config,
		Diagnostics: diagnostics,
		Fallback: FallbackState{
			DeterministicFallbackActive: config.Mode == ModeDeterministic,
			SafetyReason:                "deterministic baseline is always available",
		},
	}, nil
}

func (s *Service) diagnostics(ctx context.Context) (Diagnostics, error) {
	now := s.clock().UTC()
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return Diagnostics{}, fmt.Errorf("list tasks: %w", err)
	}
	openCount := 0
	flaggedCount := 0
	for _, row := range tasks {
		if row.Status.IsTerminal() {
			continue
		}
		openCount++
		if row.HasLabel(domain.LabelNeedsReview) {
			flaggedCount++
		}
	}

	since := now.Add(-7 * 24 * time.Hour)
	modelEvents, err := s.events.StreamEvents(ctx, storage.EventFilter{
		Since: &since,
		Types: []event.Type{event.TypeModelScoreRecorded},
	})
	if err != nil {
		return Diagnostics{}, fmt.Errorf("stream model scores: %w", err)
	}
	feedbackEvents, err := s.events.StreamEvents(ctx, storage.EventFilter{
		Since: &since,
		Types: []event.Type{event.TypeFeedbackEvidenceRecorded},
	})
	if err != nil {
		return Diagnostics{}, fmt.Errorf("stream feedback evidence: %w", err)
	}

	highConf := 0
	lowConf := 0
	for _, evt := range modelEvents {
		var payload event.ModelScoreRecordedPayload
		if err := event.UnmarshalPayload(evt.PayloadJSON, &payload); err != nil {
			return Diagnostics{}, err
		}
		if payload.Confidence >= 0.7 {
			highConf++
		}
		if payload.Confidence < 0.5 {
			lowConf++
		}
	}

	duplicateRate := 0.0
	if openCount > 0 {
		duplicateRate = float64(flaggedCount) / float64(openCount)
	}
	confidenceShare := 0.0
	if len(modelEvents) > 0 {
		confidenceShare = float64(highConf) / float64(len(modelEvents))
	}

	metrics := []DiagnosticMetric{
		{
			Key:         "open_tasks",
			Label:       "Open Tasks",
			Value:       float64(openCount),
			Status:      statusIf(openCount < 30, "normal", "elevated"),
			Description: "Tasks not in done/cancelled state",
		},
		{
			Key:         "model_scores_7d",
			Label:       "Model Scores (7d)",
			Value:       float64(len(modelEvents)),
			Status:      statusIf(len(modelEvents) > 0, "normal", "low"),
			Description: "Recorded model score events",
		},
		{
			Key:         "high_confidence_7d",
			Label:       "High Confidence Scores",
			Value:       float64(highConf),
			Status:      "normal",
			Description: "Model scores with confidence >= 0.70",
		},
		{
			Key:         "low_confidence_7d",
			Label:       "Low Confidence Scores",
			Value:       float64(lowConf),
			Status:      statusIf(lowConf == 0, "normal", "risk"),
			Description: "Model scores with confidence < 0.50",
		},
		{
			Key:         "feedback_events_7d",
			Label:       "Feedback Evidence (7d)",
			Value:       float64(len(feedbackEvents)),
			Status:      statusIf(len(feedbackEvents) > 0, "normal", "low"),
			Description: "Weak-label feedback evidence events",
		},
		{
			Key:         "duplicate_rate",
			Label:       "Duplicate Review Rate",
			Value:       math.Round(duplicateRate*10000) / 10000,
			Status:      statusIf(duplicateRate <= DuplicateRateCap, "normal", "elevated"),
			Description: "Share of open tasks flagged needs_review against the 5% cap",
		},
		{
			Key:         "high_confidence_share_7d",
			Label:       "High Confidence Share",
			Value:       math.Round(confidenceShare*10000) / 10000,
			Status:      statusIf(len(modelEvents) == 0 || confidenceShare >= ConfidenceShareTarget, "normal", "low"),
			Description: "Share of model scores at confidence >= 0.70 against the 60% target",
		},
	}
	return Diagnostics{GeneratedAt: now, Metrics: metrics}, nil
}

func (s *Service) findRun(ctx context.Context, runID string) (event.LabExperimentRunPayload, error) {
	runs, err := s.events.StreamEvents(ctx, storage.EventFilter{Types: []event.Type{event.TypeLabExperimentRun}})
	if err != nil {
		return event.LabExperimentRunPayload{}, fmt.Errorf("stream experiment runs: %w", err)
	}
	for _, evt := range runs {
		var payload event.LabExperimentRunPayload
		if err := event.UnmarshalPayload(evt.PayloadJSON, &payload); err != nil {
			return event.LabExperimentRunPayload{}, err
		}
		if payload.RunID == runID {
			return payload, nil
		}
	}
	return event.LabExperimentRunPayload{}, apperr.Newf(apperr.CodeNotFound, "experiment run %s not found", runID)
}

func (s *Service) recordControlChange(ctx context.Context, actor, rationale string, before, after event.ControlState, extra map[string]string) (event.Event, error) {
	payload, err := event.MarshalPayload(event.LabControlChangedPayload{
		Actor:      actor,
		Rationale:  rationale,
		Before:     before,
		After:      after,
		RollbackTo: rollbackBaseline,
	})
	if err != nil {
		return event.Event{}, err
	}
	metadata := map[string]string{"service": serviceActor}
	for key, value := range extra {
		metadata[key] = value
	}
	recorded, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeLabControlChanged,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    metadata,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append control change: %w", err)
	}
	return recorded, nil
}

func (s *Service) recordExperimentApplied(ctx context.Context, runID string, input ApplyExperimentInput, applied bool, reason string) error {
	payload, err := event.MarshalPayload(event.LabExperimentAppliedPayload{
		RunID:     runID,
		Actor:     input.Actor,
		Action:    input.Action,
		Applied:   applied,
		Reason:    reason,
		Rationale: input.Rationale,
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeLabExperimentApplied,
		Timestamp:   s.clock().UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	if err != nil {
		return fmt.Errorf("append experiment applied: %w", err)
	}
	return nil
}

func snapshotFrom(state event.ControlState) ConfigSnapshot {
	return ConfigSnapshot{
		Mode:                          state.Mode,
		ShadowRankerEnabled:           state.Mode == ModeShadow || state.Mode == ModeBounded,
		BoundedPersonalizationEnabled: state.Mode == ModeBounded,
		ShadowConfidenceThreshold:     state.ShadowConfidenceThreshold,
	}
}

func validateState(mode string, threshold float64) error {
	switch mode {
	case ModeDeterministic, ModeShadow, ModeBounded:
	default:
		return apperr.Newf(apperr.CodeValidationFailed, "unknown personalization mode %q", mode)
	}
	if threshold < 0 || threshold > 1 {
		return apperr.Newf(apperr.CodeValidationFailed, "shadow confidence threshold %v outside [0, 1]", threshold)
	}
	return nil
}

func statusIf(ok bool, okStatus, badStatus string) string {
	if ok {
		return okStatus
	}
	return badStatus
}
