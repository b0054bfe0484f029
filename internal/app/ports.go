package app

import (
	"context"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// ProjectRepository stores projects as append-only version chains.
// Find* methods return the current version of each id unless stated otherwise.
type ProjectRepository interface {
	Save(context.Context, domain.Project) (domain.Project, error)
	FindByID(context.Context, domain.ProjectID) (domain.Project, bool, error)
	FindAll(context.Context) ([]domain.Project, error)
	FindAllActive(context.Context) ([]domain.Project, error)
	FindByStatus(context.Context, domain.Status) ([]domain.Project, error)
	FindByNamePrefix(context.Context, string) ([]domain.Project, error)
	FindHistory(context.Context, domain.ProjectID) ([]domain.Project, error)
	FindAtTime(context.Context, domain.ProjectID, time.Time) (domain.Project, bool, error)
	NextID(context.Context) (domain.ProjectID, error)
	Exists(context.Context, domain.ProjectID) (bool, error)
}

// TaskRepository stores tasks as append-only version chains.
type TaskRepository interface {
	Save(context.Context, domain.Task) (domain.Task, error)
	FindByID(context.Context, domain.TaskID) (domain.Task, bool, error)
	FindAll(context.Context) ([]domain.Task, error)
	FindAllActive(context.Context) ([]domain.Task, error)
	FindByStatus(context.Context, domain.Status) ([]domain.Task, error)
	FindByNamePrefix(context.Context, string) ([]domain.Task, error)
	FindHistory(context.Context, domain.TaskID) ([]domain.Task, error)
	FindAtTime(context.Context, domain.TaskID, time.Time) (domain.Task, bool, error)
	NextID(context.Context) (domain.TaskID, error)
	Exists(context.Context, domain.TaskID) (bool, error)

	FindByProjectID(context.Context, domain.ProjectID) ([]domain.Task, error)
	// FindByProjectIDOrdered orders by name, then id.
	FindByProjectIDOrdered(context.Context, domain.ProjectID) ([]domain.Task, error)
	FindActiveByProjectID(context.Context, domain.ProjectID) ([]domain.Task, error)
	CountByProjectID(context.Context, domain.ProjectID) (int, error)
}

// TimeEntryRepository appends time entry events and answers interval queries.
// Interval lists are ordered newest start first.
type TimeEntryRepository interface {
	SaveEvent(context.Context, domain.TimeEntryEvent) (domain.TimeEntryEvent, error)
	FindRunningEntries(context.Context) ([]domain.TimeEntry, error)
	FindRunningEntryByTask(context.Context, domain.TaskID) (domain.TimeEntry, bool, error)
	FindEntriesByTask(context.Context, domain.TaskID) ([]domain.TimeEntry, error)
	FindEntriesByTaskAndPeriod(ctx context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error)
	FindOverlappingEntries(ctx context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error)
	FindEntriesByProject(context.Context, domain.ProjectID) ([]domain.TimeEntry, error)
	FindEntriesByPeriod(ctx context.Context, start, end time.Time) ([]domain.TimeEntry, error)
	CountEntriesByTask(context.Context, domain.TaskID) (int, error)
	SumDurationByTask(context.Context, domain.TaskID) (int64, error)
	SumDurationByProject(context.Context, domain.ProjectID) (int64, error)
	FindEntryByStartEventID(context.Context, int64) (domain.TimeEntry, bool, error)
	FindRecentEntries(context.Context, int) ([]domain.TimeEntry, error)
	FindRecentEntriesByTask(context.Context, domain.TaskID, int) ([]domain.TimeEntry, error)
	// FindEventsByStart returns the start event and every event that references it, by id.
	FindEventsByStart(context.Context, int64) ([]domain.TimeEntryEvent, error)
}

// Repositories groups the repositories that share one storage backend.
type Repositories struct {
	Projects ProjectRepository
	Tasks    TaskRepository
	Entries  TimeEntryRepository
}

// Transactor runs fn as one atomic, mutually exclusive unit of work.
// The Repositories passed to fn are bound to the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(context.Context, Repositories) error) error
}

// Store is a storage backend: plain repositories plus transactions.
type Store interface {
	Transactor
	Repositories() Repositories
}

// Clock returns the current time.
type Clock func() time.Time
