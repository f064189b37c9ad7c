// Package event defines the immutable event journal records that are the
// single source of truth for all derived state.
package event

import "time"

// Type identifies the type of an event. The set of types is closed; new
// types may be added but existing ones are never repurposed.
type Type string

// Ingestion events.
const (
	// TypeMessageIngested records a raw message input from any source.
	TypeMessageIngested Type = "message.ingested"
	// TypeArtifactRecorded records an artifact (prompt, response, summary).
	TypeArtifactRecorded Type = "artifact.recorded"
)

// Extraction events.
const (
	// TypeObjectExtracted records extraction of a structured object.
	TypeObjectExtracted Type = "object.extracted"
)

// Decision events.
const (
	// TypeDecisionRecorded records a task lifecycle decision with a full
	// task snapshot; the event is the write-ahead record for the row.
	TypeDecisionRecorded Type = "decision.recorded"
)

// Suggestion lifecycle events.
const (
	// TypeSuggestionShown records a suggestion surfaced to the operator.
	TypeSuggestionShown Type = "suggestion.shown"
	// TypeSuggestionApplied records a suggestion whose effect was applied.
	TypeSuggestionApplied Type = "suggestion.applied"
	// TypeSuggestionEdited records an operator edit before apply.
	TypeSuggestionEdited Type = "suggestion.edited"
	// TypeSuggestionRejected records operator rejection feedback.
	TypeSuggestionRejected Type = "suggestion.rejected"
)

// Attention and learning events.
const (
	// TypeAttentionScoringComputed records one scored queue run.
	TypeAttentionScoringComputed Type = "attention.scoring_computed"
	// TypeFeatureSnapshotRecorded records the feature vector of a candidate.
	TypeFeatureSnapshotRecorded Type = "feature_snapshot.recorded"
	// TypeModelScoreRecorded records one shadow ranker score.
	TypeModelScoreRecorded Type = "model_score.recorded"
	// TypeFeedbackEvidenceRecorded records weak-label feedback evidence.
	TypeFeedbackEvidenceRecorded Type = "feedback.evidence_recorded"
)

// Lab control-plane events.
const (
	// TypeLabControlChanged records a ranking configuration change; the
	// latest such event is the persisted configuration.
	TypeLabControlChanged Type = "lab.control_changed"
	// TypeLabExperimentRun records an experiment comparison run.
	TypeLabExperimentRun Type = "lab.experiment_run"
	// TypeLabExperimentApplied records an apply/rollback/no_op decision on a run.
	TypeLabExperimentApplied Type = "lab.experiment_applied"
)

// Notification events.
const (
	// TypeReminderSent records an outbound reminder with its dedup fingerprint.
	TypeReminderSent Type = "reminder.sent"
)

// All lists every known event type in a stable order.
func All() []Type {
	return []Type{
		TypeMessageIngested,
		TypeArtifactRecorded,
		TypeObjectExtracted,
		TypeDecisionRecorded,
		TypeSuggestionShown,
		TypeSuggestionApplied,
		TypeSuggestionEdited,
		TypeSuggestionRejected,
		TypeAttentionScoringComputed,
		TypeFeatureSnapshotRecorded,
		TypeModelScoreRecorded,
		TypeFeedbackEvidenceRecorded,
		TypeLabControlChanged,
		TypeLabExperimentRun,
		TypeLabExperimentApplied,
		TypeReminderSent,
	}
}

// IsValid reports whether the event type is one of the closed set.
func (t Type) IsValid() bool {
	for _, known := range All() {
		if t == known {
			return true
		}
	}
	return false
}

// Domain returns the domain prefix of the event type (e.g. "suggestion", "lab").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Event represents an immutable record in the unified event journal.
type Event struct {
	// ID uniquely identifies the event. Assigned by storage on append when empty.
	ID string
	// Seq is the global append order (starts at 1). Assigned by storage on
	// append; it breaks ordering ties between events with equal timestamps.
	Seq uint64
	// Type identifies the kind of event.
	Type Type
	// Timestamp is when the event occurred, UTC, millisecond precision.
	Timestamp time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
	// Metadata carries free-form annotations (originating service, mode).
	Metadata map[string]string
}

// SourceType identifies where an input came from.
type SourceType string

const (
	// SourceChatDump marks messages imported from a conversation export.
	SourceChatDump SourceType = "chat_dump"
	// SourceMessenger marks messages arriving from the live chat adapter.
	SourceMessenger SourceType = "messenger"
	// SourceCLI marks messages entered via the command line.
	SourceCLI SourceType = "cli"
	// SourceAPI marks operations issued through the control surface.
	SourceAPI SourceType = "api"
)

// IsValid reports whether the source type is known.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceChatDump, SourceMessenger, SourceCLI, SourceAPI:
		return true
	}
	return false
}
