// Package memory provides process-local repositories for tests and ephemeral sessions.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

// Store holds projects, tasks and time entry events in memory.
// Every repository call holds one mutex; InTx holds it for the whole callback.
type Store struct {
	mu sync.Mutex

	projects *chainLog[domain.ProjectID, domain.Project]
	tasks    *chainLog[domain.TaskID, domain.Task]
	events   *eventLog

	nextProjectID int64
	nextTaskID    int64
}

var _ app.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		projects: newChainLog(
			func(p domain.Project) domain.ProjectID { return p.ID },
			func(p domain.Project, v int64) domain.Project {
				p.Version = v
				return p
			},
		),
		tasks: newChainLog(
			func(t domain.Task) domain.TaskID { return t.ID },
			func(t domain.Task, v int64) domain.Task {
				t.Version = v
				return t
			},
		),
		events: newEventLog(),
	}
}

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() app.Repositories {
	return s.repos(false)
}

// InTx runs fn with repositories bound to one critical section.
// When fn fails, every record appended during the call is discarded.
func (s *Store) InTx(ctx context.Context, fn func(context.Context, app.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	marks := [3]int{len(s.projects.rows), len(s.tasks.rows), len(s.events.rows)}
	defer func() {
		if r := recover(); r != nil {
			s.rollback(marks)
			panic(r)
		}
		if err != nil {
			s.rollback(marks)
		}
	}()
	return fn(ctx, s.repos(true))
}

func (s *Store) rollback(marks [3]int) {
	s.projects.truncate(marks[0])
	s.tasks.truncate(marks[1])
	s.events.truncate(marks[2])
}

func (s *Store) repos(inTx bool) app.Repositories {
	return app.Repositories{
		Projects: projectRepo{store: s, inTx: inTx},
		Tasks:    taskRepo{store: s, inTx: inTx},
		Entries:  entryRepo{store: s, inTx: inTx},
	}
}

// lock acquires the store mutex unless the caller already runs inside InTx.
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

var errMissingID = errors.New("record id is required")

func requireID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("save version: %w", errMissingID)
	}
	return nil
}
