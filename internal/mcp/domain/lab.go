package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/lab"
)

// LabOverviewInput is empty; the overview has no parameters.
type LabOverviewInput struct{}

// LabOverviewTool defines the MCP tool schema for the control-plane overview.
func LabOverviewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_overview",
		Description: "Shows the effective ranking configuration, diagnostics, and fallback state",
	}
}

// LabOverviewHandler executes a control-plane overview request.
func LabOverviewHandler(service *lab.Service) mcp.ToolHandlerFor[LabOverviewInput, lab.Overview] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ LabOverviewInput) (*mcp.CallToolResult, lab.Overview, error) {
		overview, err := service.Overview(ctx)
		if err != nil {
			return nil, lab.Overview{}, fmt.Errorf("lab overview failed: %w", err)
		}
		return nil, overview, nil
	}
}

// LabUpdateControlsInput names the requested ranking configuration.
type LabUpdateControlsInput struct {
	Actor                     string  `json:"actor,omitempty" jsonschema:"who requests the change"`
	Mode                      string  `json:"mode" jsonschema:"personalization mode (deterministic, shadow, bounded)"`
	ShadowConfidenceThreshold float64 `json:"shadow_confidence_threshold" jsonschema:"minimum model confidence in [0,1]"`
	Rationale                 string  `json:"rationale,omitempty" jsonschema:"why the configuration changes"`
}

// LabUpdateControlsTool defines the MCP tool schema for control updates.
func LabUpdateControlsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_update_controls",
		Description: "Changes the ranking configuration; the change is journaled with before and after",
	}
}

// LabUpdateControlsHandler executes a control update request.
func LabUpdateControlsHandler(service *lab.Service) mcp.ToolHandlerFor[LabUpdateControlsInput, lab.ControlUpdate] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LabUpdateControlsInput) (*mcp.CallToolResult, lab.ControlUpdate, error) {
		update, err := service.UpdateControls(ctx, lab.UpdateControlsInput{
			Actor:                     input.Actor,
			Mode:                      input.Mode,
			ShadowConfidenceThreshold: input.ShadowConfidenceThreshold,
			Rationale:                 input.Rationale,
		})
		if err != nil {
			return nil, lab.ControlUpdate{}, fmt.Errorf("lab update controls failed: %w", err)
		}
		return nil, update, nil
	}
}

// LabRollbackInput names who rolls back and why.
type LabRollbackInput struct {
	Actor     string `json:"actor,omitempty" jsonschema:"who requests the rollback"`
	Rationale string `json:"rationale,omitempty" jsonschema:"why the rollback happens"`
}

// LabRollbackTool defines the MCP tool schema for the one-step rollback.
func LabRollbackTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_rollback",
		Description: "Restores the deterministic baseline configuration in one step",
	}
}

// LabRollbackHandler executes a rollback request.
func LabRollbackHandler(service *lab.Service) mcp.ToolHandlerFor[LabRollbackInput, lab.ControlUpdate] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LabRollbackInput) (*mcp.CallToolResult, lab.ControlUpdate, error) {
		update, err := service.Rollback(ctx, input.Actor, input.Rationale)
		if err != nil {
			return nil, lab.ControlUpdate{}, fmt.Errorf("lab rollback failed: %w", err)
		}
		return nil, update, nil
	}
}

// LabRunExperimentInput describes a candidate configuration to compare
// against the effective baseline.
type LabRunExperimentInput struct {
	Actor                              string  `json:"actor,omitempty" jsonschema:"who runs the experiment"`
	ExperimentType                     string  `json:"experiment_type,omitempty" jsonschema:"free-form experiment label"`
	CandidateMode                      string  `json:"candidate_mode" jsonschema:"candidate personalization mode (deterministic, shadow, bounded)"`
	CandidateShadowConfidenceThreshold float64 `json:"candidate_shadow_confidence_threshold" jsonschema:"candidate confidence threshold in [0,1]"`
	Rationale                          string  `json:"rationale,omitempty" jsonschema:"why the experiment runs"`
}

// LabRunExperimentTool defines the MCP tool schema for experiment runs.
func LabRunExperimentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_run_experiment",
		Description: "Compares a candidate configuration against the baseline and gates it for safety",
	}
}

// LabRunExperimentHandler executes an experiment run request.
func LabRunExperimentHandler(service *lab.Service) mcp.ToolHandlerFor[LabRunExperimentInput, lab.ExperimentRunResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LabRunExperimentInput) (*mcp.CallToolResult, lab.ExperimentRunResult, error) {
		run, err := service.RunExperiment(ctx, lab.RunExperimentInput{
			Actor:                              input.Actor,
			ExperimentType:                     input.ExperimentType,
			CandidateMode:                      input.CandidateMode,
			CandidateShadowConfidenceThreshold: input.CandidateShadowConfidenceThreshold,
			Rationale:                          input.Rationale,
		})
		if err != nil {
			return nil, lab.ExperimentRunResult{}, fmt.Errorf("lab run experiment failed: %w", err)
		}
		return nil, run, nil
	}
}

// LabApplyExperimentInput names the decision taken on a finished run.
type LabApplyExperimentInput struct {
	RunID     string `json:"run_id" jsonschema:"experiment run identifier"`
	Actor     string `json:"actor,omitempty" jsonschema:"who decides"`
	Action    string `json:"action" jsonschema:"decision (apply, rollback, no_op)"`
	Rationale string `json:"rationale,omitempty" jsonschema:"why the decision is taken"`
}

// LabApplyExperimentTool defines the MCP tool schema for experiment decisions.
func LabApplyExperimentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_apply_experiment",
		Description: "Applies, rolls back, or dismisses one experiment run; blocked applies are journaled and rejected",
	}
}

// LabApplyExperimentHandler executes an experiment decision request.
func LabApplyExperimentHandler(service *lab.Service) mcp.ToolHandlerFor[LabApplyExperimentInput, lab.ControlUpdate] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LabApplyExperimentInput) (*mcp.CallToolResult, lab.ControlUpdate, error) {
		update, err := service.ApplyExperiment(ctx, input.RunID, lab.ApplyExperimentInput{
			Actor:     input.Actor,
			Action:    input.Action,
			Rationale: input.Rationale,
		})
		if err != nil {
			return nil, lab.ControlUpdate{}, fmt.Errorf("lab apply experiment failed: %w", err)
		}
		return nil, update, nil
	}
}

// LabExperimentHistoryInput bounds the history size.
type LabExperimentHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum runs, defaults to 20"`
}

// LabExperimentHistoryResult lists past experiment runs, newest first.
type LabExperimentHistoryResult struct {
	Runs []lab.HistoryItem `json:"runs"`
}

// LabExperimentHistoryTool defines the MCP tool schema for experiment history.
func LabExperimentHistoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lab_experiment_history",
		Description: "Lists past experiment runs, newest first",
	}
}

// LabExperimentHistoryHandler executes an experiment history request.
func LabExperimentHistoryHandler(service *lab.Service) mcp.ToolHandlerFor[LabExperimentHistoryInput, LabExperimentHistoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LabExperimentHistoryInput) (*mcp.CallToolResult, LabExperimentHistoryResult, error) {
		runs, err := service.ExperimentHistory(ctx, input.Limit)
		if err != nil {
			return nil, LabExperimentHistoryResult{}, fmt.Errorf("lab experiment history failed: %w", err)
		}
		return nil, LabExperimentHistoryResult{Runs: runs}, nil
	}
}
