package task

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/louisbranch/attend/internal/domain/event"
	domain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/learning"
	"github.com/louisbranch/attend/internal/storage"
)

// Suggestion types. Suggestions are proposals only: nothing changes task
// state until the suggestion is explicitly applied.
const (
	SuggestionTypeDependency = "dependency"
	SuggestionTypeSplit      = "split"
)

const defaultSuggestionLimit = 5

// SplitStep is one proposed subtask in a split suggestion.
type SplitStep struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SuggestionPayload carries the structured content of a suggestion.
type SuggestionPayload struct {
	BlockedBy []string    `json:"blocked_by,omitempty"`
	Subtasks  []SplitStep `json:"subtasks,omitempty"`
	Project   string      `json:"project,omitempty"`
}

// Suggestion is one proposal shown to the user.
type Suggestion struct {
	SuggestionID string
	TaskID       string
	Type         string
	Rationale    string
	Payload      SuggestionPayload
}

// SuggestDependencies proposes prerequisite candidates for a task. Candidates
// that would close a dependency cycle are excluded up front so applying any
// suggestion cannot fail the cycle check. Each shown suggestion is journaled
// together with a feature snapshot of the target task.
func (s *Service) SuggestDependencies(ctx context.Context, taskID string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	target, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	all, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	graph := make(map[string][]string, len(all))
	for _, row := range all {
		graph[row.ID] = row.BlockedBy
	}

	targetLabels := make(map[string]bool, len(target.Labels))
	for _, label := range target.Labels {
		targetLabels[label] = true
	}

	type scored struct {
		score      int
		suggestion Suggestion
	}
	var candidates []scored

	for _, other := range all {
		if other.ID == taskID || other.Status.IsTerminal() {
			continue
		}
		graph[taskID] = append(append([]string{}, target.BlockedBy...), other.ID)
		cycle := findCycle(graph, taskID)
		graph[taskID] = target.BlockedBy
		if cycle != nil {
			continue
		}

		score := 0
		var rationaleBits []string
		if target.Project != "" && target.Project == other.Project {
			score += 3
			rationaleBits = append(rationaleBits, "same project")
		}
		var overlap []string
		for _, label := range other.Labels {
			if targetLabels[label] {
				overlap = append(overlap, label)
			}
		}
		if len(overlap) > 0 {
			sort.Strings(overlap)
			score += 2
			rationaleBits = append(rationaleBits, "shared labels: "+strings.Join(overlap, ", "))
		}
		if other.Priority == domain.PriorityP0 || other.Priority == domain.PriorityP1 {
			score++
			rationaleBits = append(rationaleBits, "high-priority dependency")
		}
		if score <= 0 {
			continue
		}

		payload := SuggestionPayload{BlockedBy: []string{other.ID}}
		suggestionID, err := makeSuggestionID(taskID, SuggestionTypeDependency, payload)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{
			score: score,
			suggestion: Suggestion{
				SuggestionID: suggestionID,
				TaskID:       taskID,
				Type:         SuggestionTypeDependency,
				Rationale:    strings.Join(rationaleBits, "; "),
				Payload:      payload,
			},
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, candidate := range candidates {
		if err := s.recordSuggestionShown(ctx, target, candidate.suggestion); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, candidate.suggestion)
	}
	return suggestions, nil
}

// SuggestSplit proposes breaking a task into clarify/execute/verify steps.
func (s *Service) SuggestSplit(ctx context.Context, taskID string) ([]Suggestion, error) {
	target, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	executeBody := target.Body
	if executeBody == "" {
		executeBody = "Implement the main execution step."
	}
	payload := SuggestionPayload{
		Subtasks: []SplitStep{
			{Title: "Clarify scope: " + target.Title, Body: "Define success criteria and constraints."},
			{Title: "Execute core work: " + target.Title, Body: executeBody},
			{Title: "Verify and close: " + target.Title, Body: "Validate outcome, document, and mark done."},
		},
		Project: target.Project,
	}
	suggestionID, err := makeSuggestionID(taskID, SuggestionTypeSplit, payload)
	if err != nil {
		return nil, err
	}
	suggestion := Suggestion{
		SuggestionID: suggestionID,
		TaskID:       taskID,
		Type:         SuggestionTypeSplit,
		Rationale:    "Task appears broad; split into clarify/execute/verify steps",
		Payload:      payload,
	}
	if err := s.recordSuggestionShown(ctx, target, suggestion); err != nil {
		return nil, err
	}
	return []Suggestion{suggestion}, nil
}

// ApplySuggestionInput identifies one suggestion to apply, optionally with a
// user-edited payload.
type ApplySuggestionInput struct {
	SuggestionID  string
	Type          string
	Payload       SuggestionPayload
	EditedPayload *SuggestionPayload
	Rationale     string
}

// ApplyResult reports the outcome of an apply or reject.
type ApplyResult struct {
	Applied        bool
	Reason         string
	Task           *domain.Task
	CreatedTaskIDs []string
}

// ApplySuggestion applies one suggestion to its task. An edited payload is
// journaled as suggestion.edited before the apply, so the delta between what
// was proposed and what was accepted survives as training evidence.
func (s *Service) ApplySuggestion(ctx context.Context, taskID string, input ApplySuggestionInput) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ApplyResult{Applied: false, Reason: "task_not_found"}, nil
		}
		return ApplyResult{}, err
	}

	payload := input.Payload
	if input.EditedPayload != nil {
		if err := s.recordSuggestionEdited(ctx, taskID, input); err != nil {
			return ApplyResult{}, err
		}
		payload = *input.EditedPayload
	}

	result := ApplyResult{Applied: true}
	switch input.Type {
	case SuggestionTypeDependency:
		updated, err := s.linkLocked(ctx, taskID, payload.BlockedBy, input.Rationale)
		if err != nil {
			return ApplyResult{}, err
		}
		result.Task = &updated

	case SuggestionTypeSplit:
		for index, subtask := range payload.Subtasks {
			title := subtask.Title
			if strings.TrimSpace(title) == "" {
				title = "Subtask " + strconv.Itoa(index+1)
			}
			project := payload.Project
			if project == "" {
				project = target.Project
			}
			ingest, err := s.ingestLocked(ctx, IngestInput{
				Title:     title,
				Body:      subtask.Body,
				Source:    event.SourceAPI,
				SourceRef: "suggestion:" + input.SuggestionID + ":split:" + strconv.Itoa(index),
				Priority:  target.Priority,
				Labels:    append(append([]string{}, target.Labels...), domain.LabelGeneratedSplit),
				Project:   project,
			})
			if err != nil {
				return ApplyResult{}, err
			}
			result.CreatedTaskIDs = append(result.CreatedTaskIDs, ingest.TaskID)
		}
		parentLabels := append(append([]string{}, target.Labels...), domain.LabelSplitParent)
		updated, err := s.patchLocked(ctx, taskID, PatchInput{
			Labels:    parentLabels,
			Rationale: "Split suggestion applied",
		})
		if err != nil {
			return ApplyResult{}, err
		}
		result.Task = &updated

	default:
		return ApplyResult{Applied: false, Reason: "unsupported_suggestion_type"}, nil
	}

	appliedJSON, err := marshalSuggestionPayload(payload)
	if err != nil {
		return ApplyResult{}, err
	}
	eventPayload, err := event.MarshalPayload(event.SuggestionAppliedPayload{
		TaskID:         taskID,
		SuggestionID:   input.SuggestionID,
		SuggestionType: input.Type,
		AppliedPayload: appliedJSON,
		Rationale:      input.Rationale,
	})
	if err != nil {
		return ApplyResult{}, err
	}
	if _, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeSuggestionApplied,
		Timestamp:   s.nowUTC(),
		PayloadJSON: eventPayload,
		Metadata:    map[string]string{"service": serviceActor},
	}); err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// RejectResult reports the outcome of a reject.
type RejectResult struct {
	Rejected bool
	Reason   string
}

// RejectSuggestion journals a rejection. No task state changes.
func (s *Service) RejectSuggestion(ctx context.Context, taskID, suggestionID, suggestionType, rationale string) (RejectResult, error) {
	if _, err := s.tasks.GetTask(ctx, taskID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return RejectResult{Rejected: false, Reason: "task_not_found"}, nil
		}
		return RejectResult{}, err
	}

	payload, err := event.MarshalPayload(event.SuggestionRejectedPayload{
		TaskID:         taskID,
		SuggestionID:   suggestionID,
		SuggestionType: suggestionType,
		Rationale:      rationale,
	})
	if err != nil {
		return RejectResult{}, err
	}
	if _, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeSuggestionRejected,
		Timestamp:   s.nowUTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	}); err != nil {
		return RejectResult{}, err
	}
	return RejectResult{Rejected: true}, nil
}

func (s *Service) recordSuggestionShown(ctx context.Context, target domain.Task, suggestion Suggestion) error {
	payloadJSON, err := marshalSuggestionPayload(suggestion.Payload)
	if err != nil {
		return err
	}
	shown, err := event.MarshalPayload(event.SuggestionShownPayload{
		TaskID:         suggestion.TaskID,
		SuggestionID:   suggestion.SuggestionID,
		SuggestionType: suggestion.Type,
		Payload:        payloadJSON,
		Rationale:      suggestion.Rationale,
	})
	if err != nil {
		return err
	}
	if _, err := s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeSuggestionShown,
		Timestamp:   s.nowUTC(),
		PayloadJSON: shown,
		Metadata:    map[string]string{"service": serviceActor},
	}); err != nil {
		return err
	}

	snapshot, err := event.MarshalPayload(event.FeatureSnapshotRecordedPayload{
		CandidateID:   suggestion.SuggestionID,
		CandidateType: "suggestion_" + suggestion.Type,
		Features:      learning.BuildTaskFeatures(target, s.nowUTC()),
		Context:       map[string]string{"task_id": suggestion.TaskID},
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeFeatureSnapshotRecorded,
		Timestamp:   s.nowUTC(),
		PayloadJSON: snapshot,
		Metadata:    map[string]string{"service": serviceActor},
	})
	return err
}

func (s *Service) recordSuggestionEdited(ctx context.Context, taskID string, input ApplySuggestionInput) error {
	originalJSON, err := marshalSuggestionPayload(input.Payload)
	if err != nil {
		return err
	}
	editedJSON, err := marshalSuggestionPayload(*input.EditedPayload)
	if err != nil {
		return err
	}
	if bytes.Equal(originalJSON, editedJSON) {
		return nil
	}
	payload, err := event.MarshalPayload(event.SuggestionEditedPayload{
		TaskID:          taskID,
		SuggestionID:    input.SuggestionID,
		SuggestionType:  input.Type,
		OriginalPayload: originalJSON,
		EditedPayload:   editedJSON,
		Rationale:       input.Rationale,
	})
	if err != nil {
		return err
	}
	_, err = s.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeSuggestionEdited,
		Timestamp:   s.nowUTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	return err
}

// makeSuggestionID derives a stable id from the suggestion content so the
// same proposal always carries the same identity across shows and applies.
func makeSuggestionID(taskID, suggestionType string, payload SuggestionPayload) (string, error) {
	payloadJSON, err := marshalSuggestionPayload(payload)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(taskID + "|" + suggestionType + "|" + string(payloadJSON)))
	return hex.EncodeToString(sum[:])[:16], nil
}

func marshalSuggestionPayload(payload SuggestionPayload) ([]byte, error) {
	return event.MarshalPayload(payload)
}

