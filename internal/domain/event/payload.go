package event

import (
	"encoding/json"
	"fmt"
)

// MessageIngestedPayload captures the payload for message.ingested events.
type MessageIngestedPayload struct {
	Source         SourceType `json:"source"`
	SourceID       string     `json:"source_id"`
	Content        string     `json:"content"`
	Author         string     `json:"author,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// ArtifactRecordedPayload captures the payload for artifact.recorded events.
type ArtifactRecordedPayload struct {
	// ArtifactType is one of raw_message, llm_prompt, llm_response, summary.
	ArtifactType   string `json:"artifact_type"`
	Content        string `json:"content"`
	RelatedEventID string `json:"related_event_id,omitempty"`
}

// ObjectExtractedPayload captures the payload for object.extracted events.
type ObjectExtractedPayload struct {
	// ObjectType is one of todo, note, track.
	ObjectType string `json:"object_type"`
	// ObjectData holds the validated object fields.
	ObjectData map[string]any `json:"object_data"`
	// SourceEventID is the message.ingested event that triggered extraction.
	SourceEventID string `json:"source_event_id"`
	// Ordinal is the object's position within one extraction run; together
	// with SourceEventID it forms the synthetic idempotency key for task
	// canonicalization.
	Ordinal int `json:"ordinal"`
	// Confidence is the extraction confidence reported by the collaborator.
	Confidence float64 `json:"confidence,omitempty"`
}

// DecisionRecordedPayload captures the payload for decision.recorded events.
type DecisionRecordedPayload struct {
	Domain    string `json:"domain"`
	Action    string `json:"action"`
	Source    string `json:"source"`
	SourceRef string `json:"source_ref"`
	Rationale string `json:"rationale,omitempty"`
	// TaskSnapshot is the full task row after the decision; the projection
	// upserts it by id during replay.
	TaskSnapshot json.RawMessage `json:"task_snapshot,omitempty"`
}

// SuggestionShownPayload captures the payload for suggestion.shown events.
type SuggestionShownPayload struct {
	TaskID         string          `json:"task_id"`
	SuggestionID   string          `json:"suggestion_id"`
	SuggestionType string          `json:"suggestion_type"`
	Payload        json.RawMessage `json:"payload"`
	Rationale      string          `json:"rationale"`
}

// SuggestionAppliedPayload captures the payload for suggestion.applied events.
type SuggestionAppliedPayload struct {
	TaskID         string          `json:"task_id"`
	SuggestionID   string          `json:"suggestion_id"`
	SuggestionType string          `json:"suggestion_type"`
	AppliedPayload json.RawMessage `json:"applied_payload"`
	Rationale      string          `json:"rationale,omitempty"`
}

// SuggestionEditedPayload captures the payload for suggestion.edited events.
type SuggestionEditedPayload struct {
	TaskID          string          `json:"task_id"`
	SuggestionID    string          `json:"suggestion_id"`
	SuggestionType  string          `json:"suggestion_type"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	EditedPayload   json.RawMessage `json:"edited_payload"`
	Rationale       string          `json:"rationale,omitempty"`
}

// SuggestionRejectedPayload captures the payload for suggestion.rejected events.
type SuggestionRejectedPayload struct {
	TaskID         string `json:"task_id"`
	SuggestionID   string `json:"suggestion_id"`
	SuggestionType string `json:"suggestion_type"`
	Rationale      string `json:"rationale,omitempty"`
}

// AttentionCandidateRecord is one scored entry inside a scoring snapshot.
type AttentionCandidateRecord struct {
	TaskID                   string   `json:"task_id"`
	UrgencyScore             float64  `json:"urgency_score"`
	UrgencyExplanation       string   `json:"urgency_explanation"`
	Bucket                   string   `json:"bucket"`
	BucketRank               int      `json:"bucket_rank"`
	DeterministicExplanation string   `json:"deterministic_explanation"`
	ModelScore               *float64 `json:"model_score,omitempty"`
	ModelConfidence          *float64 `json:"model_confidence,omitempty"`
	LearnedExplanation       string   `json:"learned_explanation,omitempty"`
	PersonalizationApplied   bool     `json:"personalization_applied"`
	PersonalizationPolicy    string   `json:"personalization_policy"`
}

// AttentionScoringComputedPayload captures the payload for
// attention.scoring_computed events.
type AttentionScoringComputedPayload struct {
	QueueName  string                     `json:"queue_name"`
	Candidates []AttentionCandidateRecord `json:"candidates"`
}

// FeatureSnapshotRecordedPayload captures the payload for
// feature_snapshot.recorded events.
type FeatureSnapshotRecordedPayload struct {
	CandidateID   string             `json:"candidate_id"`
	CandidateType string             `json:"candidate_type"`
	Features      map[string]float64 `json:"features"`
	Context       map[string]string  `json:"context,omitempty"`
}

// ModelScoreRecordedPayload captures the payload for model_score.recorded events.
type ModelScoreRecordedPayload struct {
	CandidateID   string  `json:"candidate_id"`
	CandidateType string  `json:"candidate_type"`
	ModelName     string  `json:"model_name"`
	ModelVersion  string  `json:"model_version"`
	Score         float64 `json:"score"`
	Confidence    float64 `json:"confidence"`
	Explanation   string  `json:"explanation"`
}

// FeedbackEvidenceRecordedPayload captures the payload for
// feedback.evidence_recorded events.
type FeedbackEvidenceRecordedPayload struct {
	TaskID                string             `json:"task_id"`
	Action                string             `json:"action"`
	Features              map[string]float64 `json:"features"`
	TargetUsefulness      float64            `json:"target_usefulness"`
	TargetTimingFit       float64            `json:"target_timing_fit"`
	TargetInterruptCost   float64            `json:"target_interrupt_cost"`
	SemanticsRationale    string             `json:"semantics_rationale"`
	FollowupWithinMinutes *int               `json:"followup_within_minutes,omitempty"`
	SnoozeDurationMinutes *int               `json:"snooze_duration_minutes,omitempty"`
}

// ControlState is the mode/threshold pair carried by lab events.
type ControlState struct {
	Mode                      string  `json:"mode"`
	ShadowConfidenceThreshold float64 `json:"shadow_confidence_threshold"`
}

// LabControlChangedPayload captures the payload for lab.control_changed events.
type LabControlChangedPayload struct {
	Actor     string       `json:"actor"`
	Rationale string       `json:"rationale"`
	Before    ControlState `json:"before"`
	After     ControlState `json:"after"`
	// RollbackTo is always the deterministic baseline so any change can be
	// undone without consulting earlier events.
	RollbackTo ControlState `json:"rollback_to"`
}

// LabExperimentRunPayload captures the payload for lab.experiment_run events.
type LabExperimentRunPayload struct {
	RunID            string       `json:"run_id"`
	Actor            string       `json:"actor"`
	ExperimentType   string       `json:"experiment_type"`
	Baseline         ControlState `json:"baseline"`
	Candidate        ControlState `json:"candidate"`
	QualityDelta     float64      `json:"estimated_attention_quality_delta"`
	ApplyAllowed     bool         `json:"apply_allowed"`
	ApplyBlockReason string       `json:"apply_block_reason,omitempty"`
	Rationale        string       `json:"rationale,omitempty"`
}

// LabExperimentAppliedPayload captures the payload for lab.experiment_applied events.
type LabExperimentAppliedPayload struct {
	RunID     string `json:"run_id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// ReminderSentPayload captures the payload for reminder.sent events.
type ReminderSentPayload struct {
	ReminderType string `json:"reminder_type"`
	ObjectID     string `json:"object_id,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}

// MarshalPayload encodes a typed payload for storage in an event.
func MarshalPayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes an event payload into the given target.
func UnmarshalPayload(data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("event payload is empty")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	return nil
}
