// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/tikk/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the time tracking tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("time tracking service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerProjectTools(mcpSrv, service)
	registerTaskTools(mcpSrv, service)
	registerTimerTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "tikk"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerProjectTools registers project listing, creation, archival, and summary tools.
func registerProjectTools(srv *mcpserver.MCPServer, projects common.ProjectService) {
	srv.AddTool(
		mcp.NewTool(
			"tikk.list_projects",
			mcp.WithDescription("List projects, optionally filtered by a literal name prefix."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived projects")),
			mcp.WithString("prefix", mcp.Description("Case-sensitive name prefix")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := projects.ListProjects(ctx, common.ListProjectsRequest{
				IncludeArchived: req.GetBool("include_archived", false),
				Prefix:          req.GetString("prefix", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_projects", map[string]any{"projects": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.create_project",
			mcp.WithDescription("Create one project. Names are unique across active and archived projects."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			project, err := projects.CreateProject(ctx, common.CreateProjectRequest{Name: name})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_project", project)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.archive_project",
			mcp.WithDescription("Archive one project. With force, its active tasks are archived too and their timers stopped."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
			mcp.WithBoolean("force", mcp.Description("Cascade to active tasks")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("project_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			project, err := projects.ArchiveProject(ctx, common.ArchiveProjectRequest{
				ID:    int64(id),
				Force: req.GetBool("force", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("archive_project", project)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.project_summary",
			mcp.WithDescription("Total closed time and task counts for one project."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("project_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			summary, err := projects.ProjectSummary(ctx, int64(id))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("project_summary", summary)
		},
	)
}

// registerTaskTools registers task listing and creation tools.
func registerTaskTools(srv *mcpserver.MCPServer, tasks common.TaskService) {
	srv.AddTool(
		mcp.NewTool(
			"tikk.list_tasks",
			mcp.WithDescription("List the tasks of one project."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived tasks")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("project_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			rows, err := tasks.ListTasks(ctx, common.ListTasksRequest{
				ProjectID:       int64(id),
				IncludeArchived: req.GetBool("include_archived", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_tasks", map[string]any{"tasks": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.create_task",
			mcp.WithDescription("Create one task under an active project."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireInt("project_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			task, err := tasks.CreateTask(ctx, common.CreateTaskRequest{ProjectID: int64(projectID), Name: name})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_task", task)
		},
	)
}

// registerTimerTools registers the running-timer and time entry tools.
func registerTimerTools(srv *mcpserver.MCPServer, timer common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			"tikk.start_timer",
			mcp.WithDescription("Start the timer of one task. Any other running timer is stopped first."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("task_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			entry, err := timer.StartTimer(ctx, int64(id))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("start_timer", entry)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.stop_timer",
			mcp.WithDescription("Stop the timer of one task. Stopping an idle task is a no-op."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireInt("task_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			result, err := timer.StopTimer(ctx, int64(id))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("stop_timer", result)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.stop_all_timers",
			mcp.WithDescription("Stop every running timer."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stopped, err := timer.StopAllTimers(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("stop_all_timers", map[string]any{"stopped": stopped})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.current_timer",
			mcp.WithDescription("Report the running timer and its elapsed time."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			status, err := timer.CurrentTimer(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("current_timer", status)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.add_manual_entry",
			mcp.WithDescription("Record a closed interval after the fact. Overlapping intervals of the same task are rejected."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("start", mcp.Required(), mcp.Description("Interval start, RFC3339")),
			mcp.WithString("end", mcp.Required(), mcp.Description("Interval end, RFC3339")),
			mcp.WithString("note", mcp.Description("Optional note")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				TaskID int64  `json:"task_id"`
				Start  string `json:"start"`
				End    string `json:"end"`
				Note   string `json:"note"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			entry, err := timer.AddManualEntry(ctx, common.AddManualEntryRequest{
				TaskID: args.TaskID,
				Start:  args.Start,
				End:    args.End,
				Note:   args.Note,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_manual_entry", entry)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tikk.recent_entries",
			mcp.WithDescription("List the newest time entries across tasks, or of one task."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
			mcp.WithNumber("task_id", mcp.Description("Restrict to one task")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			limit := req.GetInt("limit", 0)
			var (
				rows []common.TimeEntry
				err  error
			)
			if taskID := req.GetInt("task_id", 0); taskID != 0 {
				if limit <= 0 {
					limit = 10
				}
				rows, err = timer.TaskEntries(ctx, common.TaskEntriesRequest{TaskID: int64(taskID), Limit: limit})
			} else {
				rows, err = timer.RecentEntries(ctx, limit)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("recent_entries", map[string]any{"entries": rows})
		},
	)
}

// jsonResult encodes one successful tool payload.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// invalidRequestToolResult reports malformed tool arguments.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("validation: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors prefixed with the stable code.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("internal: unknown error")
	}
	return mcp.NewToolResultError(common.ErrorCode(err) + ": " + err.Error())
}
