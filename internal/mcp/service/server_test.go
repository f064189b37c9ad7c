// Package service tests the MCP server wiring and tool handlers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/attention"
	"github.com/louisbranch/attend/internal/domain/event"
	taskdomain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/extraction"
	"github.com/louisbranch/attend/internal/ingestion"
	"github.com/louisbranch/attend/internal/lab"
	"github.com/louisbranch/attend/internal/mcp/domain"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage/sqlite"
	"github.com/louisbranch/attend/internal/task"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	events, err := sqlite.Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	projections, err := sqlite.Open(filepath.Join(dir, "projections.db"))
	if err != nil {
		t.Fatalf("open projection store: %v", err)
	}
	t.Cleanup(func() {
		_ = events.Close()
		_ = projections.Close()
	})

	clock := func() time.Time { return time.Date(2026, 7, 3, 10, 0, 0, 0, time.UTC) }
	sequence := 0
	newID := func() (string, error) {
		sequence++
		return fmt.Sprintf("id-%04d", sequence), nil
	}

	tasks := task.NewService(events, projections, clock, newID)
	labService := lab.NewService(events, projections, event.ControlState{}, clock, newID)
	attentionService := attention.NewService(events, projections, labService, nil, clock)
	extractor := extraction.NewService(events, nil, clock)
	ingestionService := ingestion.NewService(events, extractor, projection.Applier{Tasks: projections},
		clock, log.New(io.Discard, "", 0))

	return Deps{
		Tasks:     tasks,
		Attention: attentionService,
		Lab:       labService,
		Ingestion: ingestionService,
		Events:    events,
	}
}

func TestNewConfiguresServer(t *testing.T) {
	t.Parallel()
	server := New(newTestDeps(t))
	if server == nil || server.mcpServer == nil {
		t.Fatal("expected configured server")
	}
}

func TestServeRequiresConfiguredServer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		server *Server
	}{
		{name: "nil server", server: nil},
		{name: "missing mcp server", server: &Server{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.server.Serve(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestServeStopsOnContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := New(newTestDeps(t))

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	clientCtx, clientCancel := context.WithTimeout(context.Background(), time.Second)
	defer clientCancel()
	clientSession, err := client.Connect(clientCtx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer clientSession.Close()

	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestTaskIngestHandlerMapsRequestAndResponse(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	_, output, err := domain.TaskIngestHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title:     "Renew passport",
		Source:    "api",
		SourceRef: "mail-7",
		Priority:  "p1",
		DueAt:     "2026-07-10T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("task ingest: %v", err)
	}
	if !output.Created {
		t.Fatal("expected created task")
	}
	if want := taskdomain.IDFromSourceRef(event.SourceAPI, "mail-7"); output.TaskID != want {
		t.Fatalf("task id = %q, want %q", output.TaskID, want)
	}

	_, completed, err := domain.TaskCompleteHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskCompleteInput{
		TaskID:    output.TaskID,
		Rationale: "done over the weekend",
	})
	if err != nil {
		t.Fatalf("task complete: %v", err)
	}
	if completed.Task.Status != taskdomain.StatusDone {
		t.Fatalf("status = %s", completed.Task.Status)
	}
}

func TestTaskIngestHandlerRejectsBadTimestamp(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)

	result, _, err := domain.TaskIngestHandler(deps.Tasks)(context.Background(), &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title:  "Renew passport",
		Source: "api",
		DueAt:  "tomorrow",
	})
	if err == nil {
		t.Fatal("expected error for non-RFC3339 due_at")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

func TestTaskSnoozeHandlerRequiresTimestamp(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)

	_, _, err := domain.TaskSnoozeHandler(deps.Tasks)(context.Background(), &mcp.CallToolRequest{}, domain.TaskSnoozeInput{
		TaskID: "task-1",
		Until:  "next week",
	})
	if err == nil {
		t.Fatal("expected error for non-RFC3339 until")
	}
}

func TestMessageIngestHandlerCanonicalizesTodos(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	_, output, err := domain.MessageIngestHandler(deps.Ingestion)(ctx, &mcp.CallToolRequest{}, domain.MessageIngestInput{
		Content: "todo: pay rent urgent",
		Source:  "messenger",
	})
	if err != nil {
		t.Fatalf("message ingest: %v", err)
	}
	if output.MessageEventID == "" {
		t.Fatal("expected message event id")
	}
	if output.ExtractionDegraded {
		t.Fatal("extraction must not degrade with the mock client")
	}
	if len(output.Extracted) != 1 || output.Extracted[0].ObjectType != extraction.ObjectTypeTodo {
		t.Fatalf("extracted = %+v", output.Extracted)
	}
	if len(output.TaskIDs) != 1 {
		t.Fatalf("task ids = %v", output.TaskIDs)
	}

	row, err := deps.Tasks.Get(ctx, output.TaskIDs[0])
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if row.Priority != taskdomain.PriorityP0 {
		t.Fatalf("priority = %s", row.Priority)
	}
}

func TestLabControlHandlersRoundTrip(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	_, update, err := domain.LabUpdateControlsHandler(deps.Lab)(ctx, &mcp.CallToolRequest{}, domain.LabUpdateControlsInput{
		Actor:                     "operator",
		Mode:                      "shadow",
		ShadowConfidenceThreshold: 0.7,
		Rationale:                 "observe model scores",
	})
	if err != nil {
		t.Fatalf("update controls: %v", err)
	}
	if update.Status != "updated" || update.EffectiveConfig.Mode != "shadow" {
		t.Fatalf("update = %+v", update)
	}

	_, rollback, err := domain.LabRollbackHandler(deps.Lab)(ctx, &mcp.CallToolRequest{}, domain.LabRollbackInput{
		Actor: "operator",
	})
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rollback.EffectiveConfig.Mode != "deterministic" {
		t.Fatalf("mode after rollback = %s", rollback.EffectiveConfig.Mode)
	}

	_, overview, err := domain.LabOverviewHandler(deps.Lab)(ctx, &mcp.CallToolRequest{}, domain.LabOverviewInput{})
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.Config.Mode != "deterministic" {
		t.Fatalf("overview mode = %s", overview.Config.Mode)
	}
}

func TestAttentionTodayHandlerReturnsQueue(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	if _, _, err := domain.TaskIngestHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title:  "Submit expense report",
		Source: "api",
		DueAt:  "2026-07-03T18:00:00Z",
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	_, output, err := domain.AttentionTodayHandler(deps.Attention)(ctx, &mcp.CallToolRequest{}, domain.AttentionTodayInput{Limit: 5})
	if err != nil {
		t.Fatalf("attention today: %v", err)
	}
	if len(output.TopActionable) != 1 {
		t.Fatalf("top actionable = %d", len(output.TopActionable))
	}
	if output.TopActionable[0].UrgencyExplanation == "" {
		t.Fatal("expected urgency explanation")
	}
}

func TestEventLogResourceFiltersByType(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	if _, _, err := domain.TaskIngestHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title:  "Water plants",
		Source: "cli",
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	handler := domain.EventLogResourceHandler(deps.Events)
	result, err := handler(ctx, &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "events://log?type=decision.recorded"},
	})
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("contents = %d", len(result.Contents))
	}

	var payload domain.EventLogPayload
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 1 {
		t.Fatalf("count = %d", payload.Count)
	}
	for _, entry := range payload.Events {
		if entry.Type != string(event.TypeDecisionRecorded) {
			t.Fatalf("unexpected event type %s", entry.Type)
		}
	}
}

func TestTaskListResourceFiltersByStatus(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	_, first, err := domain.TaskIngestHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title: "Keep open", Source: "cli",
	})
	if err != nil {
		t.Fatalf("seed first: %v", err)
	}
	_, second, err := domain.TaskIngestHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskIngestInput{
		Title: "Finish me", Source: "cli",
	})
	if err != nil {
		t.Fatalf("seed second: %v", err)
	}
	if _, _, err := domain.TaskCompleteHandler(deps.Tasks)(ctx, &mcp.CallToolRequest{}, domain.TaskCompleteInput{
		TaskID: second.TaskID,
	}); err != nil {
		t.Fatalf("complete second: %v", err)
	}

	handler := domain.TaskListResourceHandler(deps.Tasks)
	result, err := handler(ctx, &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "tasks://list?status=open"},
	})
	if err != nil {
		t.Fatalf("read task list: %v", err)
	}

	var payload domain.TaskListPayload
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Tasks) != 1 || payload.Tasks[0].ID != first.TaskID {
		t.Fatalf("tasks = %+v", payload.Tasks)
	}
}
