package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/attention"
	taskdomain "github.com/louisbranch/attend/internal/domain/task"
)

// CandidateView is one scored task in an attention queue.
type CandidateView struct {
	Task                     taskdomain.Task `json:"task"`
	UrgencyScore             float64         `json:"urgency_score"`
	UrgencyExplanation       string          `json:"urgency_explanation"`
	Bucket                   string          `json:"bucket"`
	BucketRank               int             `json:"bucket_rank"`
	DeterministicExplanation string          `json:"deterministic_explanation"`
	ModelScore               *float64        `json:"model_score,omitempty"`
	ModelConfidence          *float64        `json:"model_confidence,omitempty"`
	LearnedExplanation       string          `json:"learned_explanation,omitempty"`
	PersonalizationApplied   bool            `json:"personalization_applied"`
	PersonalizationPolicy    string          `json:"personalization_policy"`
	IsActionable             bool            `json:"is_actionable"`
	IsStale                  bool            `json:"is_stale"`
}

// AttentionTodayInput bounds the daily queue size.
type AttentionTodayInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum actionable tasks, defaults to 5"`
}

// AttentionTodayResult represents the MCP tool output for the daily queue.
type AttentionTodayResult struct {
	GeneratedAt           time.Time       `json:"generated_at"`
	TopActionable         []CandidateView `json:"top_actionable"`
	DueNext72h            []CandidateView `json:"due_next_72h"`
	StaleCleanupCandidate *CandidateView  `json:"stale_cleanup_candidate,omitempty"`
}

// AttentionWeekResult represents the MCP tool output for the weekly queue.
type AttentionWeekResult struct {
	GeneratedAt            time.Time       `json:"generated_at"`
	DueThisWeek            []CandidateView `json:"due_this_week"`
	HighPriorityWithoutDue []CandidateView `json:"high_priority_without_due"`
	BlockedSummary         []CandidateView `json:"blocked_summary"`
}

// AttentionTodayTool defines the MCP tool schema for the daily queue.
func AttentionTodayTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "attention_today",
		Description: "Builds the daily attention queue with per-task explanations",
	}
}

// AttentionTodayHandler executes a daily queue request.
func AttentionTodayHandler(service *attention.Service) mcp.ToolHandlerFor[AttentionTodayInput, AttentionTodayResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AttentionTodayInput) (*mcp.CallToolResult, AttentionTodayResult, error) {
		view, err := service.Today(ctx, input.Limit)
		if err != nil {
			return nil, AttentionTodayResult{}, fmt.Errorf("attention today failed: %w", err)
		}
		result := AttentionTodayResult{
			GeneratedAt:   view.GeneratedAt,
			TopActionable: candidateViews(view.TopActionable),
			DueNext72h:    candidateViews(view.DueNext72h),
		}
		if view.StaleCleanupCandidate != nil {
			stale := candidateView(*view.StaleCleanupCandidate)
			result.StaleCleanupCandidate = &stale
		}
		return nil, result, nil
	}
}

// AttentionWeekInput is empty; the weekly queue has no parameters.
type AttentionWeekInput struct{}

// AttentionWeekTool defines the MCP tool schema for the weekly queue.
func AttentionWeekTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "attention_week",
		Description: "Builds the weekly attention queue partitioned by due, priority, and blocked",
	}
}

// AttentionWeekHandler executes a weekly queue request.
func AttentionWeekHandler(service *attention.Service) mcp.ToolHandlerFor[AttentionWeekInput, AttentionWeekResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ AttentionWeekInput) (*mcp.CallToolResult, AttentionWeekResult, error) {
		view, err := service.Week(ctx)
		if err != nil {
			return nil, AttentionWeekResult{}, fmt.Errorf("attention week failed: %w", err)
		}
		return nil, AttentionWeekResult{
			GeneratedAt:            view.GeneratedAt,
			DueThisWeek:            candidateViews(view.DueThisWeek),
			HighPriorityWithoutDue: candidateViews(view.HighPriorityWithoutDue),
			BlockedSummary:         candidateViews(view.BlockedSummary),
		}, nil
	}
}

func candidateViews(candidates []attention.Candidate) []CandidateView {
	var views []CandidateView
	for _, candidate := range candidates {
		views = append(views, candidateView(candidate))
	}
	return views
}

func candidateView(candidate attention.Candidate) CandidateView {
	return CandidateView{
		Task:                     candidate.Task,
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
		IsActionable:             candidate.IsActionable,
		IsStale:                  candidate.IsStale,
	}
}
