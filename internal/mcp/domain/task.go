// Package domain defines the MCP tool and resource surface. Handlers are
// thin translators over the services; no business rules live here.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/domain/event"
	taskdomain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/task"
)

// TaskIngestInput represents the MCP tool input for task ingestion.
type TaskIngestInput struct {
	Title            string   `json:"title" jsonschema:"task title"`
	Body             string   `json:"body,omitempty" jsonschema:"optional task body"`
	Source           string   `json:"source" jsonschema:"origin (chat_dump, messenger, cli, api)"`
	SourceRef        string   `json:"source_ref,omitempty" jsonschema:"stable reference in the source system"`
	Priority         string   `json:"priority,omitempty" jsonschema:"priority (p0..p3), defaults to p2"`
	DueAt            string   `json:"due_at,omitempty" jsonschema:"optional RFC3339 due timestamp"`
	DoNotStartBefore string   `json:"do_not_start_before,omitempty" jsonschema:"optional RFC3339 start gate"`
	Labels           []string `json:"labels,omitempty" jsonschema:"optional labels"`
	Project          string   `json:"project,omitempty" jsonschema:"optional project name"`
}

// TaskIngestResult represents the MCP tool output for task ingestion.
type TaskIngestResult struct {
	TaskID            string `json:"task_id" jsonschema:"task identifier"`
	Created           bool   `json:"created" jsonschema:"false when the ingest hit an existing task"`
	DecisionRationale string `json:"decision_rationale" jsonschema:"recorded decision rationale"`
}

// TaskResult wraps one task snapshot.
type TaskResult struct {
	Task taskdomain.Task `json:"task"`
}

// TaskIngestTool defines the MCP tool schema for task ingestion.
func TaskIngestTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_ingest",
		Description: "Creates a task, idempotent on (source, source_ref)",
	}
}

// TaskIngestHandler executes a task ingest request.
func TaskIngestHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskIngestInput, TaskIngestResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskIngestInput) (*mcp.CallToolResult, TaskIngestResult, error) {
		dueAt, err := parseOptionalTime(input.DueAt)
		if err != nil {
			return nil, TaskIngestResult{}, fmt.Errorf("due_at: %w", err)
		}
		startGate, err := parseOptionalTime(input.DoNotStartBefore)
		if err != nil {
			return nil, TaskIngestResult{}, fmt.Errorf("do_not_start_before: %w", err)
		}

		result, err := tasks.Ingest(ctx, task.IngestInput{
			Title:            input.Title,
			Body:             input.Body,
			Source:           event.SourceType(input.Source),
			SourceRef:        input.SourceRef,
			Priority:         taskdomain.Priority(input.Priority),
			DueAt:            dueAt,
			DoNotStartBefore: startGate,
			Labels:           input.Labels,
			Project:          input.Project,
		})
		if err != nil {
			return nil, TaskIngestResult{}, fmt.Errorf("task ingest failed: %w", err)
		}
		return nil, TaskIngestResult{
			TaskID:            result.TaskID,
			Created:           result.Created,
			DecisionRationale: result.DecisionRationale,
		}, nil
	}
}

// TaskPatchInput represents a partial task update. Omitted fields are left
// untouched.
type TaskPatchInput struct {
	TaskID           string   `json:"task_id" jsonschema:"task identifier"`
	Title            *string  `json:"title,omitempty" jsonschema:"new title"`
	Body             *string  `json:"body,omitempty" jsonschema:"new body"`
	Status           *string  `json:"status,omitempty" jsonschema:"new status (open, in_progress, blocked, done, cancelled, snoozed)"`
	Priority         *string  `json:"priority,omitempty" jsonschema:"new priority (p0..p3)"`
	DueAt            *string  `json:"due_at,omitempty" jsonschema:"new RFC3339 due timestamp"`
	DoNotStartBefore *string  `json:"do_not_start_before,omitempty" jsonschema:"new RFC3339 start gate"`
	Labels           []string `json:"labels,omitempty" jsonschema:"replacement label set"`
	Project          *string  `json:"project,omitempty" jsonschema:"new project"`
	Rationale        string   `json:"rationale,omitempty" jsonschema:"why the change is made"`
}

// TaskPatchTool defines the MCP tool schema for task patching.
func TaskPatchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_patch",
		Description: "Applies a partial update to one task",
	}
}

// TaskPatchHandler executes a task patch request.
func TaskPatchHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskPatchInput, TaskResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskPatchInput) (*mcp.CallToolResult, TaskResult, error) {
		patch := task.PatchInput{
			Title:     input.Title,
			Body:      input.Body,
			Labels:    input.Labels,
			Project:   input.Project,
			Rationale: input.Rationale,
		}
		if input.Status != nil {
			status := taskdomain.Status(*input.Status)
			patch.Status = &status
		}
		if input.Priority != nil {
			priority := taskdomain.Priority(*input.Priority)
			patch.Priority = &priority
		}
		if input.DueAt != nil {
			dueAt, err := parseOptionalTime(*input.DueAt)
			if err != nil {
				return nil, TaskResult{}, fmt.Errorf("due_at: %w", err)
			}
			patch.DueAt = dueAt
		}
		if input.DoNotStartBefore != nil {
			startGate, err := parseOptionalTime(*input.DoNotStartBefore)
			if err != nil {
				return nil, TaskResult{}, fmt.Errorf("do_not_start_before: %w", err)
			}
			patch.DoNotStartBefore = startGate
		}

		updated, err := tasks.Patch(ctx, input.TaskID, patch)
		if err != nil {
			return nil, TaskResult{}, fmt.Errorf("task patch failed: %w", err)
		}
		return nil, TaskResult{Task: updated}, nil
	}
}

// TaskCompleteInput identifies one task to complete.
type TaskCompleteInput struct {
	TaskID    string `json:"task_id" jsonschema:"task identifier"`
	Rationale string `json:"rationale,omitempty" jsonschema:"why the task is done"`
}

// TaskCompleteTool defines the MCP tool schema for task completion.
func TaskCompleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_complete",
		Description: "Marks one task done",
	}
}

// TaskCompleteHandler executes a task completion request.
func TaskCompleteHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskCompleteInput, TaskResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskCompleteInput) (*mcp.CallToolResult, TaskResult, error) {
		updated, err := tasks.Complete(ctx, input.TaskID, input.Rationale)
		if err != nil {
			return nil, TaskResult{}, fmt.Errorf("task complete failed: %w", err)
		}
		return nil, TaskResult{Task: updated}, nil
	}
}

// TaskSnoozeInput identifies one task to snooze until a timestamp.
type TaskSnoozeInput struct {
	TaskID    string `json:"task_id" jsonschema:"task identifier"`
	Until     string `json:"until" jsonschema:"RFC3339 timestamp to snooze until"`
	Rationale string `json:"rationale,omitempty" jsonschema:"why the task is snoozed"`
}

// TaskSnoozeTool defines the MCP tool schema for task snoozing.
func TaskSnoozeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_snooze",
		Description: "Snoozes one task until a timestamp",
	}
}

// TaskSnoozeHandler executes a task snooze request.
func TaskSnoozeHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskSnoozeInput, TaskResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskSnoozeInput) (*mcp.CallToolResult, TaskResult, error) {
		until, err := time.Parse(time.RFC3339, input.Until)
		if err != nil {
			return nil, TaskResult{}, fmt.Errorf("until: %w", err)
		}
		updated, err := tasks.Snooze(ctx, input.TaskID, until, input.Rationale)
		if err != nil {
			return nil, TaskResult{}, fmt.Errorf("task snooze failed: %w", err)
		}
		return nil, TaskResult{Task: updated}, nil
	}
}

// TaskLinkInput replaces the blocked_by set of one task.
type TaskLinkInput struct {
	TaskID    string   `json:"task_id" jsonschema:"task identifier"`
	BlockedBy []string `json:"blocked_by" jsonschema:"task ids this task is blocked by"`
	Rationale string   `json:"rationale,omitempty" jsonschema:"why the dependencies change"`
}

// TaskLinkTool defines the MCP tool schema for dependency linking.
func TaskLinkTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_link",
		Description: "Replaces the blocked_by dependencies of one task; cycles are rejected",
	}
}

// TaskLinkHandler executes a dependency link request.
func TaskLinkHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskLinkInput, TaskResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskLinkInput) (*mcp.CallToolResult, TaskResult, error) {
		updated, err := tasks.Link(ctx, input.TaskID, input.BlockedBy, input.Rationale)
		if err != nil {
			return nil, TaskResult{}, fmt.Errorf("task link failed: %w", err)
		}
		return nil, TaskResult{Task: updated}, nil
	}
}

// SuggestionView is one proposal returned by a suggest tool.
type SuggestionView struct {
	SuggestionID string                 `json:"suggestion_id"`
	TaskID       string                 `json:"task_id"`
	Type         string                 `json:"type"`
	Rationale    string                 `json:"rationale"`
	Payload      task.SuggestionPayload `json:"payload"`
}

// SuggestionListResult wraps the proposals of one suggest call.
type SuggestionListResult struct {
	Suggestions []SuggestionView `json:"suggestions"`
}

// TaskSuggestDependenciesInput identifies the task to propose prerequisites for.
type TaskSuggestDependenciesInput struct {
	TaskID string `json:"task_id" jsonschema:"task identifier"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum proposals, defaults to 5"`
}

// TaskSuggestDependenciesTool defines the MCP tool schema for dependency suggestions.
func TaskSuggestDependenciesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_suggest_dependencies",
		Description: "Proposes prerequisite candidates for one task",
	}
}

// TaskSuggestDependenciesHandler executes a dependency suggestion request.
func TaskSuggestDependenciesHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskSuggestDependenciesInput, SuggestionListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskSuggestDependenciesInput) (*mcp.CallToolResult, SuggestionListResult, error) {
		suggestions, err := tasks.SuggestDependencies(ctx, input.TaskID, input.Limit)
		if err != nil {
			return nil, SuggestionListResult{}, fmt.Errorf("task suggest dependencies failed: %w", err)
		}
		return nil, suggestionListResult(suggestions), nil
	}
}

// TaskSuggestSplitInput identifies the task to propose a split for.
type TaskSuggestSplitInput struct {
	TaskID string `json:"task_id" jsonschema:"task identifier"`
}

// TaskSuggestSplitTool defines the MCP tool schema for split suggestions.
func TaskSuggestSplitTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_suggest_split",
		Description: "Proposes a split of one oversized task into subtasks",
	}
}

// TaskSuggestSplitHandler executes a split suggestion request.
func TaskSuggestSplitHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskSuggestSplitInput, SuggestionListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskSuggestSplitInput) (*mcp.CallToolResult, SuggestionListResult, error) {
		suggestions, err := tasks.SuggestSplit(ctx, input.TaskID)
		if err != nil {
			return nil, SuggestionListResult{}, fmt.Errorf("task suggest split failed: %w", err)
		}
		return nil, suggestionListResult(suggestions), nil
	}
}

// TaskApplySuggestionInput identifies one suggestion to apply, optionally with
// an edited payload.
type TaskApplySuggestionInput struct {
	TaskID        string                  `json:"task_id" jsonschema:"task identifier"`
	SuggestionID  string                  `json:"suggestion_id" jsonschema:"suggestion identifier"`
	Type          string                  `json:"type" jsonschema:"suggestion type (dependency, split)"`
	Payload       task.SuggestionPayload  `json:"payload" jsonschema:"payload as proposed"`
	EditedPayload *task.SuggestionPayload `json:"edited_payload,omitempty" jsonschema:"user-edited payload, journaled before apply"`
	Rationale     string                  `json:"rationale,omitempty" jsonschema:"why the suggestion is applied"`
}

// TaskApplySuggestionResult reports the outcome of one apply.
type TaskApplySuggestionResult struct {
	Applied        bool             `json:"applied"`
	Reason         string           `json:"reason,omitempty"`
	Task           *taskdomain.Task `json:"task,omitempty"`
	CreatedTaskIDs []string         `json:"created_task_ids,omitempty"`
}

// TaskApplySuggestionTool defines the MCP tool schema for applying suggestions.
func TaskApplySuggestionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_apply_suggestion",
		Description: "Applies one dependency or split suggestion to its task",
	}
}

// TaskApplySuggestionHandler executes a suggestion apply request.
func TaskApplySuggestionHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskApplySuggestionInput, TaskApplySuggestionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskApplySuggestionInput) (*mcp.CallToolResult, TaskApplySuggestionResult, error) {
		result, err := tasks.ApplySuggestion(ctx, input.TaskID, task.ApplySuggestionInput{
			SuggestionID:  input.SuggestionID,
			Type:          input.Type,
			Payload:       input.Payload,
			EditedPayload: input.EditedPayload,
			Rationale:     input.Rationale,
		})
		if err != nil {
			return nil, TaskApplySuggestionResult{}, fmt.Errorf("task apply suggestion failed: %w", err)
		}
		return nil, TaskApplySuggestionResult{
			Applied:        result.Applied,
			Reason:         result.Reason,
			Task:           result.Task,
			CreatedTaskIDs: result.CreatedTaskIDs,
		}, nil
	}
}

// TaskRejectSuggestionInput identifies one suggestion to reject.
type TaskRejectSuggestionInput struct {
	TaskID       string `json:"task_id" jsonschema:"task identifier"`
	SuggestionID string `json:"suggestion_id" jsonschema:"suggestion identifier"`
	Type         string `json:"type" jsonschema:"suggestion type (dependency, split)"`
	Rationale    string `json:"rationale,omitempty" jsonschema:"why the suggestion is rejected"`
}

// TaskRejectSuggestionResult reports the outcome of one reject.
type TaskRejectSuggestionResult struct {
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

// TaskRejectSuggestionTool defines the MCP tool schema for rejecting suggestions.
func TaskRejectSuggestionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_reject_suggestion",
		Description: "Journals rejection feedback for one suggestion; task state is untouched",
	}
}

// TaskRejectSuggestionHandler executes a suggestion reject request.
func TaskRejectSuggestionHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskRejectSuggestionInput, TaskRejectSuggestionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskRejectSuggestionInput) (*mcp.CallToolResult, TaskRejectSuggestionResult, error) {
		result, err := tasks.RejectSuggestion(ctx, input.TaskID, input.SuggestionID, input.Type, input.Rationale)
		if err != nil {
			return nil, TaskRejectSuggestionResult{}, fmt.Errorf("task reject suggestion failed: %w", err)
		}
		return nil, TaskRejectSuggestionResult{Rejected: result.Rejected, Reason: result.Reason}, nil
	}
}

// TaskReviewQueueInput bounds the review queue size.
type TaskReviewQueueInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum tasks, defaults to 20"`
}

// TaskReviewQueueResult lists tasks flagged for review.
type TaskReviewQueueResult struct {
	Tasks []taskdomain.Task `json:"tasks"`
	Count int               `json:"count"`
}

// TaskReviewQueueTool defines the MCP tool schema for the review queue.
func TaskReviewQueueTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "task_review_queue",
		Description: "Lists tasks flagged needs_review or stale, oldest first",
	}
}

// TaskReviewQueueHandler executes a review queue request.
func TaskReviewQueueHandler(tasks *task.Service) mcp.ToolHandlerFor[TaskReviewQueueInput, TaskReviewQueueResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TaskReviewQueueInput) (*mcp.CallToolResult, TaskReviewQueueResult, error) {
		rows, err := tasks.ReviewQueue(ctx, time.Now().UTC(), input.Limit)
		if err != nil {
			return nil, TaskReviewQueueResult{}, fmt.Errorf("task review queue failed: %w", err)
		}
		return nil, TaskReviewQueueResult{Tasks: rows, Count: len(rows)}, nil
	}
}

// TaskListPayload represents the MCP resource payload for task listings.
type TaskListPayload struct {
	Tasks []taskdomain.Task `json:"tasks"`
}

// TaskListResource defines the MCP resource for task listings.
func TaskListResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "task_list",
		Title:       "Tasks",
		Description: "Readable listing of task projection rows, optionally filtered by ?status=",
		MIMEType:    "application/json",
		URI:         "tasks://list",
	}
}

// TaskListResourceHandler returns a readable task listing resource.
func TaskListResourceHandler(tasks *task.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if tasks == nil {
			return nil, fmt.Errorf("task list service is not configured")
		}

		uri := TaskListResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		status, err := parseTaskListURI(uri)
		if err != nil {
			return nil, err
		}

		rows, err := tasks.List(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("task list failed: %w", err)
		}
		data, err := json.MarshalIndent(TaskListPayload{Tasks: rows}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal task list: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func suggestionListResult(suggestions []task.Suggestion) SuggestionListResult {
	result := SuggestionListResult{}
	for _, suggestion := range suggestions {
		result.Suggestions = append(result.Suggestions, SuggestionView{
			SuggestionID: suggestion.SuggestionID,
			TaskID:       suggestion.TaskID,
			Type:         suggestion.Type,
			Rationale:    suggestion.Rationale,
			Payload:      suggestion.Payload,
		})
	}
	return result
}

// parseOptionalTime parses an RFC3339 timestamp, mapping "" to nil.
func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid RFC3339 timestamp %q", value)
	}
	return &parsed, nil
}
