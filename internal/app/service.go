package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// DefaultRecentLimit bounds recent-entry listings when callers pass no limit.
const DefaultRecentLimit = 10

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	RecentLimit int
}

// Service is the use-case layer consumed by the CLI, TUI and server adapters.
type Service struct {
	store       Store
	clock       Clock
	tracker     *TimeTrackingService
	projects    *ProjectManagementService
	recentLimit int
}

// NewService constructs a new value for this package.
func NewService(store Store, clock Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	return &Service{
		store:       store,
		clock:       clock,
		tracker:     NewTimeTrackingService(store, clock, WithTaskGuard(requireActiveTask)),
		projects:    NewProjectManagementService(store, clock),
		recentLimit: cfg.RecentLimit,
	}
}

// Tracker returns the timer service.
func (s *Service) Tracker() *TimeTrackingService { return s.tracker }

// ProjectPolicies returns the project management service.
func (s *Service) ProjectPolicies() *ProjectManagementService { return s.projects }

// TimerStatus describes the timer state of one task or of the whole system.
type TimerStatus struct {
	Running        bool
	Entry          *domain.TimeEntry
	ElapsedSeconds int64
}

// TaskSummary aggregates tracked time for one task.
type TaskSummary struct {
	TaskID       domain.TaskID
	TotalSeconds int64
	EntryCount   int
	Running      bool
}

// ProjectSummary aggregates tracked time and task counts for one project.
type ProjectSummary struct {
	ProjectID       domain.ProjectID
	TotalSeconds    int64
	TaskCount       int
	ActiveTaskCount int
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	now := s.clock()
	var out domain.Project
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		unique, err := isProjectNameUnique(ctx, repos.Projects, name, nil)
		if err != nil {
			return err
		}
		if !unique {
			return fmt.Errorf("%w: project %q", domain.ErrDuplicateName, name)
		}
		id, err := repos.Projects.NextID(ctx)
		if err != nil {
			return err
		}
		project, err := domain.NewProject(id, name, now)
		if err != nil {
			return err
		}
		out, err = repos.Projects.Save(ctx, project)
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// RenameProject appends a version with a new name.
func (s *Service) RenameProject(ctx context.Context, id domain.ProjectID, name string) (domain.Project, error) {
	now := s.clock()
	var out domain.Project
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		project, err := requireProject(ctx, repos.Projects, id)
		if err != nil {
			return err
		}
		next, err := project.Rename(name, now)
		if err != nil {
			return err
		}
		if next.Name == project.Name {
			out = project
			return nil
		}
		unique, err := isProjectNameUnique(ctx, repos.Projects, next.Name, &id)
		if err != nil {
			return err
		}
		if !unique {
			return fmt.Errorf("%w: project %q", domain.ErrDuplicateName, next.Name)
		}
		out, err = repos.Projects.Save(ctx, next)
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// ArchiveProject archives a project. Without force, a project with active tasks is refused.
func (s *Service) ArchiveProject(ctx context.Context, id domain.ProjectID, force bool) (domain.Project, error) {
	now := s.clock()
	var out domain.Project
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		if !force {
			project, err := requireProject(ctx, repos.Projects, id)
			if err != nil {
				return err
			}
			if !project.IsActive() {
				return fmt.Errorf("project %d: %w", id, domain.ErrAlreadyArchived)
			}
			active, err := repos.Tasks.FindActiveByProjectID(ctx, id)
			if err != nil {
				return err
			}
			if len(active) > 0 {
				return fmt.Errorf("%w: %d active tasks, archive them first or force", domain.ErrProjectHasActiveTasks, len(active))
			}
		}
		if err := archiveProjectWithTasks(ctx, repos, id, now); err != nil {
			return err
		}
		var err error
		out, err = requireProject(ctx, repos.Projects, id)
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// RestoreProject makes an archived project active again. Its tasks stay archived.
func (s *Service) RestoreProject(ctx context.Context, id domain.ProjectID) (domain.Project, error) {
	now := s.clock()
	var out domain.Project
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		project, err := requireProject(ctx, repos.Projects, id)
		if err != nil {
			return err
		}
		next, err := project.Restore(now)
		if err != nil {
			return err
		}
		out, err = repos.Projects.Save(ctx, next)
		if err != nil {
			return err
		}
		return validateProjectHierarchy(ctx, repos, out)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// GetProject returns the current version of a project.
func (s *Service) GetProject(ctx context.Context, id domain.ProjectID) (domain.Project, error) {
	return requireProject(ctx, s.store.Repositories().Projects, id)
}

// GetProjectAt returns the version of a project that was current at at.
func (s *Service) GetProjectAt(ctx context.Context, id domain.ProjectID, at time.Time) (domain.Project, error) {
	project, ok, err := s.store.Repositories().Projects.FindAtTime(ctx, id, at.UTC())
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: id %d at %s", domain.ErrProjectNotFound, id, at.UTC().Format(time.RFC3339))
	}
	return project, nil
}

// ListProjects lists current projects, optionally including archived ones.
func (s *Service) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	if includeArchived {
		return s.store.Repositories().Projects.FindAll(ctx)
	}
	return s.store.Repositories().Projects.FindAllActive(ctx)
}

// SearchProjects lists current projects whose name starts with prefix.
func (s *Service) SearchProjects(ctx context.Context, prefix string) ([]domain.Project, error) {
	return s.store.Repositories().Projects.FindByNamePrefix(ctx, prefix)
}

// ProjectHistory returns every version of a project, oldest first.
func (s *Service) ProjectHistory(ctx context.Context, id domain.ProjectID) ([]domain.Project, error) {
	history, err := s.store.Repositories().Projects.FindHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: id %d", domain.ErrProjectNotFound, id)
	}
	return history, nil
}

// CreateTask creates a task in an active project.
func (s *Service) CreateTask(ctx context.Context, projectID domain.ProjectID, name string) (domain.Task, error) {
	now := s.clock()
	var out domain.Task
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := requireActiveProject(ctx, repos.Projects, projectID); err != nil {
			return err
		}
		id, err := repos.Tasks.NextID(ctx)
		if err != nil {
			return err
		}
		task, err := domain.NewTask(id, projectID, name, now)
		if err != nil {
			return err
		}
		out, err = repos.Tasks.Save(ctx, task)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// RenameTask appends a version with a new name.
func (s *Service) RenameTask(ctx context.Context, id domain.TaskID, name string) (domain.Task, error) {
	return s.updateTask(ctx, id, func(_ context.Context, task domain.Task, _ Repositories, now time.Time) (domain.Task, error) {
		return task.Rename(name, now)
	})
}

// MoveTask appends a version owned by another active project.
func (s *Service) MoveTask(ctx context.Context, id domain.TaskID, projectID domain.ProjectID) (domain.Task, error) {
	return s.updateTask(ctx, id, func(ctx context.Context, task domain.Task, repos Repositories, now time.Time) (domain.Task, error) {
		if _, err := requireActiveProject(ctx, repos.Projects, projectID); err != nil {
			return domain.Task{}, err
		}
		return task.MoveToProject(projectID, now)
	})
}

// ArchiveTask stops the task's timer, if running, and archives it.
func (s *Service) ArchiveTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return s.updateTask(ctx, id, func(ctx context.Context, task domain.Task, repos Repositories, now time.Time) (domain.Task, error) {
		next, err := task.Archive(now)
		if err != nil {
			return domain.Task{}, err
		}
		if _, _, err := stopTaskTimer(ctx, repos.Entries, id, now); err != nil {
			return domain.Task{}, err
		}
		return next, nil
	})
}

// RestoreTask restores an archived task whose project is active.
func (s *Service) RestoreTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return s.updateTask(ctx, id, func(ctx context.Context, task domain.Task, repos Repositories, now time.Time) (domain.Task, error) {
		if _, err := requireActiveProject(ctx, repos.Projects, task.ProjectID); err != nil {
			return domain.Task{}, err
		}
		return task.Restore(now)
	})
}

// updateTask loads the current task, derives its next version and saves it in one transaction.
func (s *Service) updateTask(ctx context.Context, id domain.TaskID, next func(context.Context, domain.Task, Repositories, time.Time) (domain.Task, error)) (domain.Task, error) {
	now := s.clock().UTC()
	var out domain.Task
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		task, err := requireTask(ctx, repos.Tasks, id)
		if err != nil {
			return err
		}
		updated, err := next(ctx, task, repos, now)
		if err != nil {
			return err
		}
		out, err = repos.Tasks.Save(ctx, updated)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// GetTask returns the current version of a task.
func (s *Service) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return requireTask(ctx, s.store.Repositories().Tasks, id)
}

// GetTaskAt returns the version of a task that was current at at.
func (s *Service) GetTaskAt(ctx context.Context, id domain.TaskID, at time.Time) (domain.Task, error) {
	task, ok, err := s.store.Repositories().Tasks.FindAtTime(ctx, id, at.UTC())
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: id %d at %s", domain.ErrTaskNotFound, id, at.UTC().Format(time.RFC3339))
	}
	return task, nil
}

// ListTasks lists a project's tasks by name.
func (s *Service) ListTasks(ctx context.Context, projectID domain.ProjectID, includeArchived bool) ([]domain.Task, error) {
	if _, err := requireProject(ctx, s.store.Repositories().Projects, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.Repositories().Tasks.FindByProjectIDOrdered(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if includeArchived {
		return tasks, nil
	}
	return slices.DeleteFunc(tasks, func(t domain.Task) bool { return !t.IsActive() }), nil
}

// ListActiveTasks lists active tasks across all projects.
func (s *Service) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	return s.store.Repositories().Tasks.FindAllActive(ctx)
}

// TaskHistory returns every version of a task, oldest first.
func (s *Service) TaskHistory(ctx context.Context, id domain.TaskID) ([]domain.Task, error) {
	history, err := s.store.Repositories().Tasks.FindHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: id %d", domain.ErrTaskNotFound, id)
	}
	return history, nil
}

// StartTimer starts the timer of an active task, stopping any other.
// The task is checked in the same transaction that appends the start.
func (s *Service) StartTimer(ctx context.Context, taskID domain.TaskID) (domain.TimeEntry, error) {
	started, err := s.tracker.StartTimer(ctx, taskID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return domain.NewTimeEntry(started, nil)
}

// StopTimer stops the task's timer. The returned entry is nil when nothing was running.
func (s *Service) StopTimer(ctx context.Context, taskID domain.TaskID) (*domain.TimeEntry, error) {
	if _, err := requireTask(ctx, s.store.Repositories().Tasks, taskID); err != nil {
		return nil, err
	}
	stop, ok, err := s.tracker.StopTimer(ctx, taskID)
	if err != nil || !ok {
		return nil, err
	}
	entry, ok, err := s.store.Repositories().Entries.FindEntryByStartEventID(ctx, stop.StartEventID)
	if err != nil || !ok {
		return nil, err
	}
	return &entry, nil
}

// StopAllTimers stops every running timer and reports how many were stopped.
func (s *Service) StopAllTimers(ctx context.Context) (int, error) {
	stops, err := s.tracker.StopAllTimers(ctx)
	return len(stops), err
}

// CurrentTimer reports the system-wide running timer.
func (s *Service) CurrentTimer(ctx context.Context) (TimerStatus, error) {
	entry, ok, err := s.tracker.RunningEntry(ctx)
	if err != nil || !ok {
		return TimerStatus{}, err
	}
	return s.statusOf(entry), nil
}

// TaskTimerStatus reports the timer state of one task.
func (s *Service) TaskTimerStatus(ctx context.Context, taskID domain.TaskID) (TimerStatus, error) {
	if _, err := requireTask(ctx, s.store.Repositories().Tasks, taskID); err != nil {
		return TimerStatus{}, err
	}
	entry, ok, err := s.store.Repositories().Entries.FindRunningEntryByTask(ctx, taskID)
	if err != nil || !ok {
		return TimerStatus{}, err
	}
	return s.statusOf(entry), nil
}

func (s *Service) statusOf(entry domain.TimeEntry) TimerStatus {
	return TimerStatus{
		Running:        true,
		Entry:          &entry,
		ElapsedSeconds: entry.ElapsedSeconds(s.clock()),
	}
}

// AddManualEntry records a closed interval for an active task.
func (s *Service) AddManualEntry(ctx context.Context, taskID domain.TaskID, start, end time.Time, note string) (domain.TimeEntry, error) {
	return s.tracker.AddManualEntry(ctx, taskID, start, end, note)
}

// TaskEntries lists every interval of a task.
func (s *Service) TaskEntries(ctx context.Context, taskID domain.TaskID) ([]domain.TimeEntry, error) {
	if _, err := requireTask(ctx, s.store.Repositories().Tasks, taskID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Entries.FindEntriesByTask(ctx, taskID)
}

// RecentTaskEntries lists the newest intervals of a task.
func (s *Service) RecentTaskEntries(ctx context.Context, taskID domain.TaskID, limit int) ([]domain.TimeEntry, error) {
	if _, err := requireTask(ctx, s.store.Repositories().Tasks, taskID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Entries.FindRecentEntriesByTask(ctx, taskID, s.limit(limit))
}

// RecentEntries lists the newest intervals across all tasks.
func (s *Service) RecentEntries(ctx context.Context, limit int) ([]domain.TimeEntry, error) {
	return s.store.Repositories().Entries.FindRecentEntries(ctx, s.limit(limit))
}

// ProjectEntries lists intervals of tasks currently owned by the project.
func (s *Service) ProjectEntries(ctx context.Context, projectID domain.ProjectID) ([]domain.TimeEntry, error) {
	if _, err := requireProject(ctx, s.store.Repositories().Projects, projectID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Entries.FindEntriesByProject(ctx, projectID)
}

// EntriesInPeriod lists intervals starting within [start, end].
func (s *Service) EntriesInPeriod(ctx context.Context, start, end time.Time) ([]domain.TimeEntry, error) {
	if end.Before(start) {
		return nil, domain.ErrInvalidRange
	}
	return s.store.Repositories().Entries.FindEntriesByPeriod(ctx, start.UTC(), end.UTC())
}

// EntryAudit returns the start event of an interval and every event referencing it.
func (s *Service) EntryAudit(ctx context.Context, startEventID int64) ([]domain.TimeEntryEvent, error) {
	events, err := s.store.Repositories().Entries.FindEventsByStart(ctx, startEventID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: time entry %d", domain.ErrNotFound, startEventID)
	}
	return events, nil
}

// EntryNotes returns the annotations of each interval keyed by start event id, oldest first.
// Intervals without notes are absent from the map.
func (s *Service) EntryNotes(ctx context.Context, entries []domain.TimeEntry) (map[int64][]string, error) {
	repo := s.store.Repositories().Entries
	var events []domain.TimeEntryEvent
	for _, entry := range entries {
		refs, err := repo.FindEventsByStart(ctx, entry.StartEventID)
		if err != nil {
			return nil, err
		}
		events = append(events, refs...)
	}
	return domain.AnnotationsByStart(events), nil
}

// TaskSummary aggregates closed time for one task.
func (s *Service) TaskSummary(ctx context.Context, taskID domain.TaskID) (TaskSummary, error) {
	if _, err := requireTask(ctx, s.store.Repositories().Tasks, taskID); err != nil {
		return TaskSummary{}, err
	}
	entries := s.store.Repositories().Entries
	total, err := entries.SumDurationByTask(ctx, taskID)
	if err != nil {
		return TaskSummary{}, err
	}
	count, err := entries.CountEntriesByTask(ctx, taskID)
	if err != nil {
		return TaskSummary{}, err
	}
	running, err := s.tracker.IsTaskRunning(ctx, taskID)
	if err != nil {
		return TaskSummary{}, err
	}
	return TaskSummary{TaskID: taskID, TotalSeconds: total, EntryCount: count, Running: running}, nil
}

// ProjectSummary aggregates closed time and task counts for one project.
func (s *Service) ProjectSummary(ctx context.Context, projectID domain.ProjectID) (ProjectSummary, error) {
	repos := s.store.Repositories()
	if _, err := requireProject(ctx, repos.Projects, projectID); err != nil {
		return ProjectSummary{}, err
	}
	total, err := repos.Entries.SumDurationByProject(ctx, projectID)
	if err != nil {
		return ProjectSummary{}, err
	}
	count, err := repos.Tasks.CountByProjectID(ctx, projectID)
	if err != nil {
		return ProjectSummary{}, err
	}
	active, err := repos.Tasks.FindActiveByProjectID(ctx, projectID)
	if err != nil {
		return ProjectSummary{}, err
	}
	return ProjectSummary{
		ProjectID:       projectID,
		TotalSeconds:    total,
		TaskCount:       count,
		ActiveTaskCount: len(active),
	}, nil
}

func (s *Service) limit(limit int) int {
	if limit <= 0 {
		return s.recentLimit
	}
	return limit
}

func requireProject(ctx context.Context, projects ProjectRepository, id domain.ProjectID) (domain.Project, error) {
	if id <= 0 {
		return domain.Project{}, domain.ErrInvalidID
	}
	project, ok, err := projects.FindByID(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: id %d", domain.ErrProjectNotFound, id)
	}
	return project, nil
}

func requireActiveProject(ctx context.Context, projects ProjectRepository, id domain.ProjectID) (domain.Project, error) {
	project, err := requireProject(ctx, projects, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !project.IsActive() {
		return domain.Project{}, fmt.Errorf("project %d: %w", id, domain.ErrArchivedProject)
	}
	return project, nil
}

// requireActiveTask is the tracker's TaskGuard: archived tasks never run.
func requireActiveTask(ctx context.Context, repos Repositories, id domain.TaskID) error {
	task, err := requireTask(ctx, repos.Tasks, id)
	if err != nil {
		return err
	}
	if !task.IsActive() {
		return fmt.Errorf("task %d: %w", id, domain.ErrArchivedRecord)
	}
	return nil
}

func requireTask(ctx context.Context, tasks TaskRepository, id domain.TaskID) (domain.Task, error) {
	if id <= 0 {
		return domain.Task{}, domain.ErrInvalidID
	}
	task, ok, err := tasks.FindByID(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: id %d", domain.ErrTaskNotFound, id)
	}
	return task, nil
}
