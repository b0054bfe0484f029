// Package report aggregates time entries over a period and renders them for terminals, markdown, and spreadsheets.
package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// Source is the read surface a report needs. *app.Service satisfies it.
type Source interface {
	EntriesInPeriod(context.Context, time.Time, time.Time) ([]domain.TimeEntry, error)
	GetTask(context.Context, domain.TaskID) (domain.Task, error)
	GetProject(context.Context, domain.ProjectID) (domain.Project, error)
}

// Report is the aggregated view of one period.
type Report struct {
	From           time.Time
	To             time.Time
	GeneratedAt    time.Time
	Projects       []ProjectRow
	Entries        []EntryRow
	TotalSeconds   int64
	RunningSeconds int64
}

// ProjectRow totals one project's tasks.
type ProjectRow struct {
	ProjectID    domain.ProjectID
	Name         string
	Archived     bool
	Tasks        []TaskRow
	TotalSeconds int64
}

// TaskRow totals one task's closed entries. A running entry contributes only RunningSeconds.
type TaskRow struct {
	TaskID         domain.TaskID
	Name           string
	Archived       bool
	EntryCount     int
	TotalSeconds   int64
	Running        bool
	RunningSeconds int64
}

// EntryRow is one interval annotated with its owners' names.
type EntryRow struct {
	ProjectName  string
	TaskName     string
	TaskID       domain.TaskID
	StartEventID int64
	Start        time.Time
	End          *time.Time
	Seconds      int64
	Running      bool
}

// Build aggregates entries whose start lies in [from, to] by their task's current project.
func Build(ctx context.Context, src Source, from, to, now time.Time) (Report, error) {
	if to.Before(from) {
		return Report{}, fmt.Errorf("report period: %w", domain.ErrInvalidRange)
	}
	entries, err := src.EntriesInPeriod(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("load entries: %w", err)
	}

	out := Report{From: from.UTC(), To: to.UTC(), GeneratedAt: now.UTC()}
	tasks := map[domain.TaskID]domain.Task{}
	projects := map[domain.ProjectID]*ProjectRow{}
	taskRows := map[domain.TaskID]*TaskRow{}

	for _, entry := range entries {
		task, ok := tasks[entry.TaskID]
		if !ok {
			task, err = src.GetTask(ctx, entry.TaskID)
			if err != nil {
				return Report{}, fmt.Errorf("load task %d: %w", entry.TaskID, err)
			}
			tasks[entry.TaskID] = task
		}
		projectRow, ok := projects[task.ProjectID]
		if !ok {
			project, err := src.GetProject(ctx, task.ProjectID)
			if err != nil {
				return Report{}, fmt.Errorf("load project %d: %w", task.ProjectID, err)
			}
			projectRow = &ProjectRow{ProjectID: project.ID, Name: project.Name, Archived: !project.IsActive()}
			projects[task.ProjectID] = projectRow
		}
		taskRow, ok := taskRows[task.ID]
		if !ok {
			taskRow = &TaskRow{TaskID: task.ID, Name: task.Name, Archived: !task.IsActive()}
			taskRows[task.ID] = taskRow
		}

		row := EntryRow{
			ProjectName:  projectRow.Name,
			TaskName:     task.Name,
			TaskID:       task.ID,
			StartEventID: entry.StartEventID,
			Start:        entry.StartTime,
			End:          entry.EndTime,
			Running:      entry.IsRunning(),
		}
		taskRow.EntryCount++
		if row.Running {
			row.Seconds = entry.ElapsedSeconds(now)
			taskRow.Running = true
			taskRow.RunningSeconds += row.Seconds
			out.RunningSeconds += row.Seconds
		} else if entry.DurationSeconds != nil {
			row.Seconds = *entry.DurationSeconds
			taskRow.TotalSeconds += row.Seconds
			projectRow.TotalSeconds += row.Seconds
			out.TotalSeconds += row.Seconds
		}
		out.Entries = append(out.Entries, row)
	}

	for _, taskRow := range taskRows {
		projectRow := projects[tasks[taskRow.TaskID].ProjectID]
		projectRow.Tasks = append(projectRow.Tasks, *taskRow)
	}
	for _, projectRow := range projects {
		slices.SortFunc(projectRow.Tasks, func(a, b TaskRow) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.TaskID, b.TaskID))
		})
		out.Projects = append(out.Projects, *projectRow)
	}
	slices.SortFunc(out.Projects, func(a, b ProjectRow) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ProjectID, b.ProjectID))
	})
	slices.SortFunc(out.Entries, func(a, b EntryRow) int {
		return cmp.Or(a.Start.Compare(b.Start), cmp.Compare(a.StartEventID, b.StartEventID))
	})
	return out, nil
}

// HasRunning reports whether any entry in the period is still open.
func (r Report) HasRunning() bool {
	return r.RunningSeconds > 0 || slices.ContainsFunc(r.Entries, func(e EntryRow) bool { return e.Running })
}

func formatDay(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04")
}
