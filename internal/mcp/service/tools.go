package service

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/attend/internal/attention"
	"github.com/louisbranch/attend/internal/ingestion"
	"github.com/louisbranch/attend/internal/lab"
	"github.com/louisbranch/attend/internal/mcp/domain"
	"github.com/louisbranch/attend/internal/storage"
	"github.com/louisbranch/attend/internal/task"
)

func registerTaskTools(mcpServer *mcp.Server, tasks *task.Service) {
	mcp.AddTool(mcpServer, domain.TaskIngestTool(), domain.TaskIngestHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskPatchTool(), domain.TaskPatchHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskCompleteTool(), domain.TaskCompleteHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskSnoozeTool(), domain.TaskSnoozeHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskLinkTool(), domain.TaskLinkHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskSuggestDependenciesTool(), domain.TaskSuggestDependenciesHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskSuggestSplitTool(), domain.TaskSuggestSplitHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskApplySuggestionTool(), domain.TaskApplySuggestionHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskRejectSuggestionTool(), domain.TaskRejectSuggestionHandler(tasks))
	mcp.AddTool(mcpServer, domain.TaskReviewQueueTool(), domain.TaskReviewQueueHandler(tasks))
}

func registerAttentionTools(mcpServer *mcp.Server, service *attention.Service) {
	mcp.AddTool(mcpServer, domain.AttentionTodayTool(), domain.AttentionTodayHandler(service))
	mcp.AddTool(mcpServer, domain.AttentionWeekTool(), domain.AttentionWeekHandler(service))
}

func registerLabTools(mcpServer *mcp.Server, service *lab.Service) {
	mcp.AddTool(mcpServer, domain.LabOverviewTool(), domain.LabOverviewHandler(service))
	mcp.AddTool(mcpServer, domain.LabUpdateControlsTool(), domain.LabUpdateControlsHandler(service))
	mcp.AddTool(mcpServer, domain.LabRollbackTool(), domain.LabRollbackHandler(service))
	mcp.AddTool(mcpServer, domain.LabRunExperimentTool(), domain.LabRunExperimentHandler(service))
	mcp.AddTool(mcpServer, domain.LabApplyExperimentTool(), domain.LabApplyExperimentHandler(service))
	mcp.AddTool(mcpServer, domain.LabExperimentHistoryTool(), domain.LabExperimentHistoryHandler(service))
}

func registerIngestionTools(mcpServer *mcp.Server, service *ingestion.Service) {
	mcp.AddTool(mcpServer, domain.MessageIngestTool(), domain.MessageIngestHandler(service))
}

// registerResources registers the readable projections of the journal and
// task store.
func registerResources(mcpServer *mcp.Server, tasks *task.Service, events storage.EventStore) {
	mcpServer.AddResource(domain.TaskListResource(), domain.TaskListResourceHandler(tasks))
	mcpServer.AddResource(domain.EventLogResource(), domain.EventLogResourceHandler(events))
}
