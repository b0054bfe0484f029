package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

var _ Service = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	return nil
}

// ListProjects lists current projects, optionally filtered by a literal name prefix.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, in ListProjectsRequest) ([]Project, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var (
		projects []domain.Project
		err      error
	)
	if in.Prefix != "" {
		projects, err = a.service.SearchProjects(ctx, in.Prefix)
		if err == nil && !in.IncludeArchived {
			projects = filterActive(projects, domain.Project.IsActive)
		}
	} else {
		projects, err = a.service.ListProjects(ctx, in.IncludeArchived)
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return mapSlice(projects, mapProject), nil
}

// CreateProject creates one project.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	project, err := a.service.CreateProject(ctx, in.Name)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return mapProject(project), nil
}

// GetProject reads the current project version, or the version in effect at In.At.
func (a *AppServiceAdapter) GetProject(ctx context.Context, in GetProjectRequest) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	id, err := domain.NewProjectID(in.ID)
	if err != nil {
		return Project{}, err
	}
	at, err := ParseTime("at", strings.TrimSpace(in.At))
	if err != nil {
		return Project{}, err
	}
	var project domain.Project
	if at.IsZero() {
		project, err = a.service.GetProject(ctx, id)
	} else {
		project, err = a.service.GetProjectAt(ctx, id, at)
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return mapProject(project), nil
}

// RenameProject renames one project.
func (a *AppServiceAdapter) RenameProject(ctx context.Context, in RenameProjectRequest) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	id, err := domain.NewProjectID(in.ID)
	if err != nil {
		return Project{}, err
	}
	project, err := a.service.RenameProject(ctx, id, in.Name)
	if err != nil {
		return Project{}, fmt.Errorf("rename project: %w", err)
	}
	return mapProject(project), nil
}

// ArchiveProject archives one project.
func (a *AppServiceAdapter) ArchiveProject(ctx context.Context, in ArchiveProjectRequest) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	id, err := domain.NewProjectID(in.ID)
	if err != nil {
		return Project{}, err
	}
	project, err := a.service.ArchiveProject(ctx, id, in.Force)
	if err != nil {
		return Project{}, fmt.Errorf("archive project: %w", err)
	}
	return mapProject(project), nil
}

// RestoreProject restores one archived project.
func (a *AppServiceAdapter) RestoreProject(ctx context.Context, rawID int64) (Project, error) {
	if err := a.ready(); err != nil {
		return Project{}, err
	}
	id, err := domain.NewProjectID(rawID)
	if err != nil {
		return Project{}, err
	}
	project, err := a.service.RestoreProject(ctx, id)
	if err != nil {
		return Project{}, fmt.Errorf("restore project: %w", err)
	}
	return mapProject(project), nil
}

// ProjectHistory lists every version of one project.
func (a *AppServiceAdapter) ProjectHistory(ctx context.Context, rawID int64) ([]Project, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := domain.NewProjectID(rawID)
	if err != nil {
		return nil, err
	}
	history, err := a.service.ProjectHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project history: %w", err)
	}
	return mapSlice(history, mapProject), nil
}

// ProjectSummary aggregates one project.
func (a *AppServiceAdapter) ProjectSummary(ctx context.Context, rawID int64) (ProjectSummary, error) {
	if err := a.ready(); err != nil {
		return ProjectSummary{}, err
	}
	id, err := domain.NewProjectID(rawID)
	if err != nil {
		return ProjectSummary{}, err
	}
	summary, err := a.service.ProjectSummary(ctx, id)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("project summary: %w", err)
	}
	return ProjectSummary{
		ProjectID:       summary.ProjectID.Int64(),
		TotalSeconds:    summary.TotalSeconds,
		Total:           domain.FormatDuration(summary.TotalSeconds),
		TaskCount:       summary.TaskCount,
		ActiveTaskCount: summary.ActiveTaskCount,
	}, nil
}

// ListTasks lists one project's tasks.
func (a *AppServiceAdapter) ListTasks(ctx context.Context, in ListTasksRequest) ([]Task, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	projectID, err := domain.NewProjectID(in.ProjectID)
	if err != nil {
		return nil, err
	}
	tasks, err := a.service.ListTasks(ctx, projectID, in.IncludeArchived)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return mapSlice(tasks, mapTask), nil
}

// CreateTask creates one task under an active project.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	projectID, err := domain.NewProjectID(in.ProjectID)
	if err != nil {
		return Task{}, err
	}
	task, err := a.service.CreateTask(ctx, projectID, in.Name)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return mapTask(task), nil
}

// GetTask reads the current task version, or the version in effect at In.At.
func (a *AppServiceAdapter) GetTask(ctx context.Context, in GetTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	id, err := domain.NewTaskID(in.ID)
	if err != nil {
		return Task{}, err
	}
	at, err := ParseTime("at", strings.TrimSpace(in.At))
	if err != nil {
		return Task{}, err
	}
	var task domain.Task
	if at.IsZero() {
		task, err = a.service.GetTask(ctx, id)
	} else {
		task, err = a.service.GetTaskAt(ctx, id, at)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return mapTask(task), nil
}

// RenameTask renames one task.
func (a *AppServiceAdapter) RenameTask(ctx context.Context, in RenameTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	id, err := domain.NewTaskID(in.ID)
	if err != nil {
		return Task{}, err
	}
	task, err := a.service.RenameTask(ctx, id, in.Name)
	if err != nil {
		return Task{}, fmt.Errorf("rename task: %w", err)
	}
	return mapTask(task), nil
}

// MoveTask moves one task to another active project.
func (a *AppServiceAdapter) MoveTask(ctx context.Context, in MoveTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	id, err := domain.NewTaskID(in.ID)
	if err != nil {
		return Task{}, err
	}
	projectID, err := domain.NewProjectID(in.ProjectID)
	if err != nil {
		return Task{}, err
	}
	task, err := a.service.MoveTask(ctx, id, projectID)
	if err != nil {
		return Task{}, fmt.Errorf("move task: %w", err)
	}
	return mapTask(task), nil
}

// ArchiveTask archives one task, stopping its timer.
func (a *AppServiceAdapter) ArchiveTask(ctx context.Context, rawID int64) (Task, error) {
	return a.taskWrite(ctx, rawID, "archive task", a.service.ArchiveTask)
}

// RestoreTask restores one archived task.
func (a *AppServiceAdapter) RestoreTask(ctx context.Context, rawID int64) (Task, error) {
	return a.taskWrite(ctx, rawID, "restore task", a.service.RestoreTask)
}

func (a *AppServiceAdapter) taskWrite(ctx context.Context, rawID int64, operation string, write func(context.Context, domain.TaskID) (domain.Task, error)) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	id, err := domain.NewTaskID(rawID)
	if err != nil {
		return Task{}, err
	}
	task, err := write(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("%s: %w", operation, err)
	}
	return mapTask(task), nil
}

// TaskHistory lists every version of one task.
func (a *AppServiceAdapter) TaskHistory(ctx context.Context, rawID int64) ([]Task, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := domain.NewTaskID(rawID)
	if err != nil {
		return nil, err
	}
	history, err := a.service.TaskHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("task history: %w", err)
	}
	return mapSlice(history, mapTask), nil
}

// TaskSummary aggregates one task.
func (a *AppServiceAdapter) TaskSummary(ctx context.Context, rawID int64) (TaskSummary, error) {
	if err := a.ready(); err != nil {
		return TaskSummary{}, err
	}
	id, err := domain.NewTaskID(rawID)
	if err != nil {
		return TaskSummary{}, err
	}
	summary, err := a.service.TaskSummary(ctx, id)
	if err != nil {
		return TaskSummary{}, fmt.Errorf("task summary: %w", err)
	}
	return TaskSummary{
		TaskID:       summary.TaskID.Int64(),
		TotalSeconds: summary.TotalSeconds,
		Total:        domain.FormatDuration(summary.TotalSeconds),
		EntryCount:   summary.EntryCount,
		Running:      summary.Running,
	}, nil
}

// CurrentTimer reports the running timer, if any.
func (a *AppServiceAdapter) CurrentTimer(ctx context.Context) (TimerStatus, error) {
	if err := a.ready(); err != nil {
		return TimerStatus{}, err
	}
	status, err := a.service.CurrentTimer(ctx)
	if err != nil {
		return TimerStatus{}, fmt.Errorf("current timer: %w", err)
	}
	out := TimerStatus{
		Running:        status.Running,
		ElapsedSeconds: status.ElapsedSeconds,
		Elapsed:        domain.FormatDuration(status.ElapsedSeconds),
	}
	if status.Entry != nil {
		entry := mapEntry(*status.Entry)
		out.Entry = &entry
	}
	return out, nil
}

// StartTimer starts one task's timer, stopping any other.
func (a *AppServiceAdapter) StartTimer(ctx context.Context, rawID int64) (TimeEntry, error) {
	if err := a.ready(); err != nil {
		return TimeEntry{}, err
	}
	id, err := domain.NewTaskID(rawID)
	if err != nil {
		return TimeEntry{}, err
	}
	entry, err := a.service.StartTimer(ctx, id)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("start timer: %w", err)
	}
	return mapEntry(entry), nil
}

// StopTimer stops one task's timer; stopping an idle task is not an error.
func (a *AppServiceAdapter) StopTimer(ctx context.Context, rawID int64) (StopResult, error) {
	if err := a.ready(); err != nil {
		return StopResult{}, err
	}
	id, err := domain.NewTaskID(rawID)
	if err != nil {
		return StopResult{}, err
	}
	entry, err := a.service.StopTimer(ctx, id)
	if err != nil {
		return StopResult{}, fmt.Errorf("stop timer: %w", err)
	}
	if entry == nil {
		return StopResult{}, nil
	}
	out := mapEntry(*entry)
	return StopResult{Stopped: true, Entry: &out}, nil
}

// StopAllTimers stops every running timer.
func (a *AppServiceAdapter) StopAllTimers(ctx context.Context) (int, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	stopped, err := a.service.StopAllTimers(ctx)
	if err != nil {
		return stopped, fmt.Errorf("stop all timers: %w", err)
	}
	return stopped, nil
}

// AddManualEntry records one closed interval.
func (a *AppServiceAdapter) AddManualEntry(ctx context.Context, in AddManualEntryRequest) (TimeEntry, error) {
	if err := a.ready(); err != nil {
		return TimeEntry{}, err
	}
	id, err := domain.NewTaskID(in.TaskID)
	if err != nil {
		return TimeEntry{}, err
	}
	start, err := ParseTime("start", strings.TrimSpace(in.Start))
	if err != nil {
		return TimeEntry{}, err
	}
	end, err := ParseTime("end", strings.TrimSpace(in.End))
	if err != nil {
		return TimeEntry{}, err
	}
	if start.IsZero() || end.IsZero() {
		return TimeEntry{}, fmt.Errorf("start and end are required: %w", ErrInvalidRequest)
	}
	entry, err := a.service.AddManualEntry(ctx, id, start, end, in.Note)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("add manual entry: %w", err)
	}
	out := mapEntry(entry)
	if note := strings.TrimSpace(in.Note); note != "" {
		out.Notes = []string{note}
	}
	return out, nil
}

// TaskEntries lists one task's intervals, newest first.
func (a *AppServiceAdapter) TaskEntries(ctx context.Context, in TaskEntriesRequest) ([]TimeEntry, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := domain.NewTaskID(in.TaskID)
	if err != nil {
		return nil, err
	}
	var entries []domain.TimeEntry
	if in.Limit > 0 {
		entries, err = a.service.RecentTaskEntries(ctx, id, in.Limit)
	} else {
		entries, err = a.service.TaskEntries(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("task entries: %w", err)
	}
	return a.entriesWithNotes(ctx, entries)
}

// RecentEntries lists the newest intervals across every task.
func (a *AppServiceAdapter) RecentEntries(ctx context.Context, limit int) ([]TimeEntry, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	entries, err := a.service.RecentEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent entries: %w", err)
	}
	return a.entriesWithNotes(ctx, entries)
}

func (a *AppServiceAdapter) entriesWithNotes(ctx context.Context, entries []domain.TimeEntry) ([]TimeEntry, error) {
	notes, err := a.service.EntryNotes(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("entry notes: %w", err)
	}
	out := mapSlice(entries, mapEntry)
	for i := range out {
		out[i].Notes = notes[out[i].StartEventID]
	}
	return out, nil
}

// EntryAudit returns the raw events behind one interval.
func (a *AppServiceAdapter) EntryAudit(ctx context.Context, startEventID int64) ([]TimeEntryEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if startEventID <= 0 {
		return nil, fmt.Errorf("start_event_id must be positive: %w", ErrInvalidRequest)
	}
	events, err := a.service.EntryAudit(ctx, startEventID)
	if err != nil {
		return nil, fmt.Errorf("entry audit: %w", err)
	}
	return mapSlice(events, mapEvent), nil
}

func mapProject(p domain.Project) Project {
	return Project{
		ID:          p.ID.Int64(),
		Name:        p.Name,
		Status:      p.Status.String(),
		EffectiveAt: formatTime(p.EffectiveAt),
		Version:     p.Version,
	}
}

func mapTask(t domain.Task) Task {
	return Task{
		ID:          t.ID.Int64(),
		ProjectID:   t.ProjectID.Int64(),
		Name:        t.Name,
		Status:      t.Status.String(),
		EffectiveAt: formatTime(t.EffectiveAt),
		Version:     t.Version,
	}
}

func mapEntry(e domain.TimeEntry) TimeEntry {
	out := TimeEntry{
		TaskID:       e.TaskID.Int64(),
		StartEventID: e.StartEventID,
		StartTime:    formatTime(e.StartTime),
		Running:      e.IsRunning(),
	}
	if e.EndTime != nil {
		out.EndTime = formatTime(*e.EndTime)
	}
	if e.DurationSeconds != nil {
		seconds := *e.DurationSeconds
		out.DurationSeconds = &seconds
		out.Duration = domain.FormatDuration(seconds)
	}
	return out
}

func mapEvent(e domain.TimeEntryEvent) TimeEntryEvent {
	return TimeEntryEvent{
		ID:           e.ID,
		TaskID:       e.TaskID.Int64(),
		Type:         string(e.Type),
		At:           formatTime(e.At),
		StartEventID: e.StartEventID,
		Payload:      e.Payload,
	}
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func filterActive[T any](in []T, active func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if active(v) {
			out = append(out, v)
		}
	}
	return out
}
