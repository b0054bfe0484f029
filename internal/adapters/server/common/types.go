// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// TimeLayout is the boundary timestamp format for every transport.
const TimeLayout = time.RFC3339

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = fmt.Errorf("%w: invalid request", domain.ErrValidation)

// ErrServiceUnavailable reports a transport built without a backing service.
var ErrServiceUnavailable = errors.New("service unavailable")

// Project is the transport view of the current (or as-of) project version.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	EffectiveAt string `json:"effective_at"`
	Version     int64  `json:"version"`
}

// Task is the transport view of one task version.
type Task struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	EffectiveAt string `json:"effective_at"`
	Version     int64  `json:"version"`
}

// TimeEntry is one derived interval. Duration fields are omitted while running.
type TimeEntry struct {
	TaskID          int64    `json:"task_id"`
	StartEventID    int64    `json:"start_event_id"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time,omitempty"`
	DurationSeconds *int64   `json:"duration_seconds,omitempty"`
	Duration        string   `json:"duration,omitempty"`
	Running         bool     `json:"running"`
	Notes           []string `json:"notes,omitempty"`
}

// TimeEntryEvent is one raw log event, used by audit views.
type TimeEntryEvent struct {
	ID           int64  `json:"id"`
	TaskID       int64  `json:"task_id"`
	Type         string `json:"type"`
	At           string `json:"at"`
	StartEventID int64  `json:"start_event_id,omitempty"`
	Payload      string `json:"payload,omitempty"`
}

// TimerStatus reports the running interval with elapsed time computed at request time.
type TimerStatus struct {
	Running        bool       `json:"running"`
	Entry          *TimeEntry `json:"entry,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	Elapsed        string     `json:"elapsed"`
}

// StopResult reports the outcome of one idempotent stop.
type StopResult struct {
	Stopped bool       `json:"stopped"`
	Entry   *TimeEntry `json:"entry,omitempty"`
}

// ProjectSummary aggregates closed time per project.
type ProjectSummary struct {
	ProjectID       int64  `json:"project_id"`
	TotalSeconds    int64  `json:"total_seconds"`
	Total           string `json:"total"`
	TaskCount       int    `json:"task_count"`
	ActiveTaskCount int    `json:"active_task_count"`
}

// TaskSummary aggregates closed time per task.
type TaskSummary struct {
	TaskID       int64  `json:"task_id"`
	TotalSeconds int64  `json:"total_seconds"`
	Total        string `json:"total"`
	EntryCount   int    `json:"entry_count"`
	Running      bool   `json:"running"`
}

// ListProjectsRequest filters project listings. Prefix is a literal, case-sensitive name prefix.
type ListProjectsRequest struct {
	IncludeArchived bool
	Prefix          string
}

// CreateProjectRequest captures input for new projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// GetProjectRequest reads one project, optionally as of an instant (RFC3339).
type GetProjectRequest struct {
	ID int64
	At string
}

// RenameProjectRequest renames one project.
type RenameProjectRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ArchiveProjectRequest archives one project; Force cascades to active tasks.
type ArchiveProjectRequest struct {
	ID    int64 `json:"id"`
	Force bool  `json:"force,omitempty"`
}

// ListTasksRequest lists one project's tasks.
type ListTasksRequest struct {
	ProjectID       int64
	IncludeArchived bool
}

// CreateTaskRequest captures input for new tasks.
type CreateTaskRequest struct {
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}

// GetTaskRequest reads one task, optionally as of an instant (RFC3339).
type GetTaskRequest struct {
	ID int64
	At string
}

// RenameTaskRequest renames one task.
type RenameTaskRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MoveTaskRequest reassigns one task to another project.
type MoveTaskRequest struct {
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`
}

// TaskEntriesRequest lists a task's intervals. Limit <= 0 returns all of them.
type TaskEntriesRequest struct {
	TaskID int64
	Limit  int
}

// AddManualEntryRequest records one closed interval after the fact.
type AddManualEntryRequest struct {
	TaskID int64  `json:"task_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Note   string `json:"note,omitempty"`
}

// ProjectService covers project reads and lifecycle writes.
type ProjectService interface {
	ListProjects(context.Context, ListProjectsRequest) ([]Project, error)
	CreateProject(context.Context, CreateProjectRequest) (Project, error)
	GetProject(context.Context, GetProjectRequest) (Project, error)
	RenameProject(context.Context, RenameProjectRequest) (Project, error)
	ArchiveProject(context.Context, ArchiveProjectRequest) (Project, error)
	RestoreProject(context.Context, int64) (Project, error)
	ProjectHistory(context.Context, int64) ([]Project, error)
	ProjectSummary(context.Context, int64) (ProjectSummary, error)
}

// TaskService covers task reads and lifecycle writes.
type TaskService interface {
	ListTasks(context.Context, ListTasksRequest) ([]Task, error)
	CreateTask(context.Context, CreateTaskRequest) (Task, error)
	GetTask(context.Context, GetTaskRequest) (Task, error)
	RenameTask(context.Context, RenameTaskRequest) (Task, error)
	MoveTask(context.Context, MoveTaskRequest) (Task, error)
	ArchiveTask(context.Context, int64) (Task, error)
	RestoreTask(context.Context, int64) (Task, error)
	TaskHistory(context.Context, int64) ([]Task, error)
	TaskSummary(context.Context, int64) (TaskSummary, error)
}

// TimerService covers the running timer and the time entry log.
type TimerService interface {
	CurrentTimer(context.Context) (TimerStatus, error)
	StartTimer(context.Context, int64) (TimeEntry, error)
	StopTimer(context.Context, int64) (StopResult, error)
	StopAllTimers(context.Context) (int, error)
	AddManualEntry(context.Context, AddManualEntryRequest) (TimeEntry, error)
	TaskEntries(context.Context, TaskEntriesRequest) ([]TimeEntry, error)
	RecentEntries(context.Context, int) ([]TimeEntry, error)
	EntryAudit(context.Context, int64) ([]TimeEntryEvent, error)
}

// Service is everything the transports expose.
type Service interface {
	ProjectService
	TaskService
	TimerService
}

// ErrorCode returns the stable transport code for err.
func ErrorCode(err error) string {
	if errors.Is(err, ErrServiceUnavailable) {
		return "service_unavailable"
	}
	return string(domain.Kind(err))
}

// ParseTime parses one boundary timestamp. Empty input yields the zero time.
func ParseTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", field, errors.Join(ErrInvalidRequest, err))
	}
	return ts.UTC(), nil
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}
