package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hylla/tikk/internal/adapters/storage/memory"
	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

// fakeClock returns a settable instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T) (*app.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	return app.NewService(memory.New(), clock.Now, app.ServiceConfig{}), clock
}

func mustProject(t *testing.T, svc *app.Service, name string) domain.Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p
}

func mustTask(t *testing.T, svc *app.Service, projectID domain.ProjectID, name string) domain.Task {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), projectID, name)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return task
}

func TestStartStopScenarioDurations(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	a := mustTask(t, svc, p.ID, "A")
	b := mustTask(t, svc, p.ID, "B")

	clock.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	if _, err := svc.StartTimer(ctx, a.ID); err != nil {
		t.Fatalf("StartTimer(A) error = %v", err)
	}
	clock.Set(time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC))
	if _, err := svc.StartTimer(ctx, b.ID); err != nil {
		t.Fatalf("StartTimer(B) error = %v", err)
	}
	clock.Set(time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC))
	stopped, err := svc.StopTimer(ctx, b.ID)
	if err != nil {
		t.Fatalf("StopTimer(B) error = %v", err)
	}
	if stopped == nil || *stopped.DurationSeconds != 3300 {
		t.Fatalf("unexpected stopped entry %#v", stopped)
	}

	aEntries, err := svc.TaskEntries(ctx, a.ID)
	if err != nil {
		t.Fatalf("TaskEntries(A) error = %v", err)
	}
	if len(aEntries) != 1 || *aEntries[0].DurationSeconds != 300 {
		t.Fatalf("unexpected A entries %#v", aEntries)
	}
	status, err := svc.CurrentTimer(ctx)
	if err != nil {
		t.Fatalf("CurrentTimer() error = %v", err)
	}
	if status.Running {
		t.Fatalf("expected no running timer, got %#v", status)
	}
	summary, err := svc.ProjectSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("ProjectSummary() error = %v", err)
	}
	if summary.TotalSeconds != 3600 || summary.TaskCount != 2 || summary.ActiveTaskCount != 2 {
		t.Fatalf("unexpected project summary %#v", summary)
	}
}

func TestStartTimerKeepsSingleRunningInterval(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	tasks := []domain.Task{
		mustTask(t, svc, p.ID, "one"),
		mustTask(t, svc, p.ID, "two"),
		mustTask(t, svc, p.ID, "three"),
	}
	for i, id := range []int{0, 1, 1, 2, 0} {
		clock.Set(clock.Now().Add(time.Minute))
		if _, err := svc.StartTimer(ctx, tasks[id].ID); err != nil {
			t.Fatalf("StartTimer() step %d error = %v", i, err)
		}
		running, err := svc.RecentEntries(ctx, 100)
		if err != nil {
			t.Fatalf("RecentEntries() error = %v", err)
		}
		open := 0
		for _, e := range running {
			if e.IsRunning() {
				open++
			}
		}
		if open != 1 {
			t.Fatalf("step %d: expected exactly one running interval, got %d", i, open)
		}
	}
	taskID, ok, err := svc.Tracker().GetRunningTask(ctx)
	if err != nil || !ok || taskID != tasks[0].ID {
		t.Fatalf("GetRunningTask() = %d, %v, %v", taskID, ok, err)
	}
}

func TestStartTimerRestartsOwnInterval(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	task := mustTask(t, svc, p.ID, "one")

	first, err := svc.StartTimer(ctx, task.ID)
	if err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	clock.Set(clock.Now().Add(10 * time.Minute))
	second, err := svc.StartTimer(ctx, task.ID)
	if err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	if second.StartEventID == first.StartEventID {
		t.Fatal("expected a new interval on restart")
	}
	entries, _ := svc.TaskEntries(ctx, task.ID)
	if len(entries) != 2 || entries[1].IsRunning() || *entries[1].DurationSeconds != 600 {
		t.Fatalf("unexpected entries after restart %#v", entries)
	}
}

func TestStopTimerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	task := mustTask(t, svc, p.ID, "one")

	stopped, err := svc.StopTimer(ctx, task.ID)
	if err != nil || stopped != nil {
		t.Fatalf("StopTimer() on idle task = %#v, %v", stopped, err)
	}
	if _, err := svc.StartTimer(ctx, task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	clock.Set(clock.Now().Add(time.Minute))
	if _, err := svc.StopTimer(ctx, task.ID); err != nil {
		t.Fatalf("StopTimer() error = %v", err)
	}
	before, _ := svc.EntryAudit(ctx, 1)
	again, err := svc.StopTimer(ctx, task.ID)
	if err != nil || again != nil {
		t.Fatalf("second StopTimer() = %#v, %v", again, err)
	}
	after, _ := svc.EntryAudit(ctx, 1)
	if len(before) != len(after) {
		t.Fatalf("expected no new events, before=%d after=%d", len(before), len(after))
	}
	if _, err := svc.StopTimer(ctx, 999); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestAddManualEntryValidatesRangeAndOverlap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	p := mustProject(t, svc, "client")
	task := mustTask(t, svc, p.ID, "one")
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entry, err := svc.AddManualEntry(ctx, task.ID, base, base.Add(time.Hour), "workshop")
	if err != nil {
		t.Fatalf("AddManualEntry() error = %v", err)
	}
	if *entry.DurationSeconds != 3600 {
		t.Fatalf("unexpected duration %d", *entry.DurationSeconds)
	}
	if _, err := svc.AddManualEntry(ctx, task.ID, base.Add(time.Hour), base.Add(time.Hour), ""); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := svc.AddManualEntry(ctx, task.ID, base.Add(30*time.Minute), base.Add(90*time.Minute), ""); !errors.Is(err, domain.ErrEntryOverlap) {
		t.Fatalf("expected ErrEntryOverlap, got %v", err)
	}
	if _, err := svc.AddManualEntry(ctx, task.ID, base.Add(time.Hour), base.Add(2*time.Hour), ""); err != nil {
		t.Fatalf("adjacent AddManualEntry() error = %v", err)
	}

	audit, err := svc.EntryAudit(ctx, entry.StartEventID)
	if err != nil {
		t.Fatalf("EntryAudit() error = %v", err)
	}
	if len(audit) != 3 || audit[2].Type != domain.EventAnnotate || audit[2].Payload != "workshop" {
		t.Fatalf("unexpected audit %#v", audit)
	}
	summary, err := svc.TaskSummary(ctx, task.ID)
	if err != nil {
		t.Fatalf("TaskSummary() error = %v", err)
	}
	if summary.TotalSeconds != 7200 || summary.EntryCount != 2 || summary.Running {
		t.Fatalf("unexpected task summary %#v", summary)
	}
}

func TestAddManualEntryRejectsOverlapWithRunningTimer(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	task := mustTask(t, svc, p.ID, "one")
	if _, err := svc.StartTimer(ctx, task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	now := clock.Now()
	if _, err := svc.AddManualEntry(ctx, task.ID, now.Add(time.Hour), now.Add(2*time.Hour), ""); !errors.Is(err, domain.ErrEntryOverlap) {
		t.Fatalf("expected ErrEntryOverlap against running interval, got %v", err)
	}
	if _, err := svc.AddManualEntry(ctx, task.ID, now.Add(-2*time.Hour), now.Add(-time.Hour), ""); err != nil {
		t.Fatalf("AddManualEntry() before running interval error = %v", err)
	}
}

func TestArchiveProjectCascade(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	a := mustTask(t, svc, p.ID, "A")
	b := mustTask(t, svc, p.ID, "B")
	if _, err := svc.ArchiveTask(ctx, b.ID); err != nil {
		t.Fatalf("ArchiveTask() error = %v", err)
	}
	if _, err := svc.StartTimer(ctx, a.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}

	if _, err := svc.ArchiveProject(ctx, p.ID, false); !errors.Is(err, domain.ErrProjectHasActiveTasks) {
		t.Fatalf("expected ErrProjectHasActiveTasks, got %v", err)
	}
	can, err := svc.ProjectPolicies().CanArchiveProject(ctx, p.ID)
	if err != nil || can {
		t.Fatalf("CanArchiveProject() = %v, %v", can, err)
	}

	clock.Set(clock.Now().Add(time.Hour))
	if err := svc.ProjectPolicies().ArchiveProjectWithTasks(ctx, p.ID); err != nil {
		t.Fatalf("ArchiveProjectWithTasks() error = %v", err)
	}
	tasks, err := svc.ListTasks(ctx, p.ID, true)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	for _, task := range tasks {
		if task.IsActive() {
			t.Fatalf("expected task %d archived", task.ID)
		}
	}
	project, _ := svc.GetProject(ctx, p.ID)
	if project.IsActive() {
		t.Fatal("expected project archived")
	}
	status, err := svc.CurrentTimer(ctx)
	if err != nil || status.Running {
		t.Fatalf("expected archived task timer stopped, got %#v, %v", status, err)
	}
	bHistory, _ := svc.TaskHistory(ctx, b.ID)
	if len(bHistory) != 2 {
		t.Fatalf("expected already-archived task untouched, history=%d", len(bHistory))
	}

	err = svc.ProjectPolicies().ArchiveProjectWithTasks(ctx, p.ID)
	if !errors.Is(err, domain.ErrAlreadyArchived) {
		t.Fatalf("expected ErrAlreadyArchived, got %v", err)
	}
	if err := svc.ProjectPolicies().ArchiveProjectWithTasks(ctx, 404); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestProjectAsOfAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	created := clock.Now()
	p := mustProject(t, svc, "alpha")
	clock.Set(created.Add(time.Hour))
	if _, err := svc.RenameProject(ctx, p.ID, "beta"); err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	clock.Set(created.Add(2 * time.Hour))
	if _, err := svc.ArchiveProject(ctx, p.ID, false); err != nil {
		t.Fatalf("ArchiveProject() error = %v", err)
	}

	at, err := svc.GetProjectAt(ctx, p.ID, created.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("GetProjectAt() error = %v", err)
	}
	if at.Name != "beta" || !at.IsActive() {
		t.Fatalf("unexpected as-of version %#v", at)
	}
	if _, err := svc.GetProjectAt(ctx, p.ID, created.Add(-time.Second)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found before creation, got %v", err)
	}
	history, err := svc.ProjectHistory(ctx, p.ID)
	if err != nil {
		t.Fatalf("ProjectHistory() error = %v", err)
	}
	for i, v := range history {
		if v.Version != int64(i+1) {
			t.Fatalf("expected version %d at position %d, got %d", i+1, i, v.Version)
		}
	}
	if _, err := svc.RenameProject(ctx, p.ID, "gamma"); !errors.Is(err, domain.ErrArchivedRecord) {
		t.Fatalf("expected ErrArchivedRecord, got %v", err)
	}
	active, _ := svc.ListProjects(ctx, false)
	all, _ := svc.ListProjects(ctx, true)
	if len(active) != 0 || len(all) != 1 {
		t.Fatalf("unexpected project lists active=%d all=%d", len(active), len(all))
	}
}

func TestProjectNameUniqueness(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	alpha := mustProject(t, svc, "alpha")
	mustProject(t, svc, "beta")

	if _, err := svc.CreateProject(ctx, " alpha "); !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := svc.RenameProject(ctx, alpha.ID, "beta"); !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName on rename, got %v", err)
	}
	unique, err := svc.ProjectPolicies().IsProjectNameUnique(ctx, "alpha", &alpha.ID)
	if err != nil || !unique {
		t.Fatalf("IsProjectNameUnique(exclude self) = %v, %v", unique, err)
	}
	found, _ := svc.SearchProjects(ctx, "al")
	if len(found) != 1 || found[0].ID != alpha.ID {
		t.Fatalf("unexpected search result %#v", found)
	}
}

func TestTaskLifecycleRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	home := mustProject(t, svc, "home")
	work := mustProject(t, svc, "work")
	task := mustTask(t, svc, home.ID, "taxes")

	if _, err := svc.CreateTask(ctx, 999, "orphan"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	moved, err := svc.MoveTask(ctx, task.ID, work.ID)
	if err != nil {
		t.Fatalf("MoveTask() error = %v", err)
	}
	if moved.ProjectID != work.ID || moved.Version != 2 {
		t.Fatalf("unexpected moved task %#v", moved)
	}
	if _, err := svc.ArchiveProject(ctx, home.ID, false); err != nil {
		t.Fatalf("ArchiveProject(home) error = %v", err)
	}
	if _, err := svc.CreateTask(ctx, home.ID, "late"); !errors.Is(err, domain.ErrArchivedProject) {
		t.Fatalf("expected ErrArchivedProject, got %v", err)
	}
	if _, err := svc.MoveTask(ctx, task.ID, home.ID); !errors.Is(err, domain.ErrArchivedProject) {
		t.Fatalf("expected ErrArchivedProject on move, got %v", err)
	}

	if _, err := svc.ArchiveTask(ctx, task.ID); err != nil {
		t.Fatalf("ArchiveTask() error = %v", err)
	}
	if _, err := svc.ArchiveTask(ctx, task.ID); !errors.Is(err, domain.ErrAlreadyArchived) {
		t.Fatalf("expected ErrAlreadyArchived, got %v", err)
	}
	if _, err := svc.StartTimer(ctx, task.ID); !errors.Is(err, domain.ErrArchivedRecord) {
		t.Fatalf("expected ErrArchivedRecord on start, got %v", err)
	}
	if _, err := svc.RenameTask(ctx, task.ID, "new"); !errors.Is(err, domain.ErrArchivedRecord) {
		t.Fatalf("expected ErrArchivedRecord on rename, got %v", err)
	}
	restored, err := svc.RestoreTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("RestoreTask() error = %v", err)
	}
	if !restored.IsActive() {
		t.Fatal("expected restored task active")
	}

	if _, err := svc.ArchiveProject(ctx, work.ID, true); err != nil {
		t.Fatalf("ArchiveProject(force) error = %v", err)
	}
	if _, err := svc.RestoreTask(ctx, task.ID); !errors.Is(err, domain.ErrArchivedProject) {
		t.Fatalf("expected ErrArchivedProject on restore, got %v", err)
	}
	if _, err := svc.RestoreProject(ctx, work.ID); err != nil {
		t.Fatalf("RestoreProject() error = %v", err)
	}
	if _, err := svc.RestoreProject(ctx, work.ID); !errors.Is(err, domain.ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
}

func TestConcurrentStartTimerKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	p := mustProject(t, svc, "client")
	var tasks []domain.Task
	for _, name := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, mustTask(t, svc, p.ID, name))
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(task domain.Task) {
			defer wg.Done()
			if _, err := svc.StartTimer(ctx, task.ID); err != nil {
				t.Errorf("StartTimer() error = %v", err)
			}
		}(tasks[i%len(tasks)])
	}
	wg.Wait()

	if _, _, err := svc.Tracker().GetRunningTask(ctx); err != nil {
		t.Fatalf("GetRunningTask() error = %v", err)
	}
	stopped, err := svc.StopAllTimers(ctx)
	if err != nil || stopped != 1 {
		t.Fatalf("StopAllTimers() = %d, %v", stopped, err)
	}
}

func TestGetRunningTaskReportsCorruption(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	entries := store.Repositories().Entries
	now := time.Now()
	_, _ = entries.SaveEvent(ctx, domain.NewStartEvent(1, now))
	_, _ = entries.SaveEvent(ctx, domain.NewStartEvent(2, now))

	tracker := app.NewTimeTrackingService(store, nil)
	if _, _, err := tracker.GetRunningTask(ctx); !errors.Is(err, domain.ErrMultipleRunning) {
		t.Fatalf("expected ErrMultipleRunning, got %v", err)
	}
	stops, err := tracker.StopAllTimers(ctx)
	if err != nil || len(stops) != 2 {
		t.Fatalf("StopAllTimers() = %d, %v", len(stops), err)
	}
	if _, ok, err := tracker.GetRunningTask(ctx); err != nil || ok {
		t.Fatalf("GetRunningTask() after repair = %v, %v", ok, err)
	}
}

// interleavingStore runs before once, ahead of the next transaction it is asked to open.
type interleavingStore struct {
	*memory.Store
	before func()
}

func (s *interleavingStore) InTx(ctx context.Context, fn func(context.Context, app.Repositories) error) error {
	if before := s.before; before != nil {
		s.before = nil
		before()
	}
	return s.Store.InTx(ctx, fn)
}

func TestArchiveBetweenCheckAndWriteNeverLeavesArchivedTaskRunning(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	inner := memory.New()
	store := &interleavingStore{Store: inner}
	svc := app.NewService(store, clock.Now, app.ServiceConfig{})
	other := app.NewService(inner, clock.Now, app.ServiceConfig{})

	p := mustProject(t, svc, "client")
	started := mustTask(t, svc, p.ID, "started")
	manual := mustTask(t, svc, p.ID, "manual")
	archiveFirst := func(id domain.TaskID) func() {
		return func() {
			if _, err := other.ArchiveTask(ctx, id); err != nil {
				t.Errorf("ArchiveTask() error = %v", err)
			}
		}
	}

	store.before = archiveFirst(started.ID)
	if _, err := svc.StartTimer(ctx, started.ID); !errors.Is(err, domain.ErrArchivedRecord) {
		t.Fatalf("expected ErrArchivedRecord, got %v", err)
	}
	running, err := inner.Repositories().Entries.FindRunningEntries(ctx)
	if err != nil || len(running) != 0 {
		t.Fatalf("FindRunningEntries() = %#v, %v", running, err)
	}

	store.before = archiveFirst(manual.ID)
	start := clock.Now().Add(-2 * time.Hour)
	if _, err := svc.AddManualEntry(ctx, manual.ID, start, start.Add(time.Hour), "late"); !errors.Is(err, domain.ErrArchivedRecord) {
		t.Fatalf("expected ErrArchivedRecord, got %v", err)
	}
	if count, _ := inner.Repositories().Entries.CountEntriesByTask(ctx, manual.ID); count != 0 {
		t.Fatalf("expected no entries on archived task, got %d", count)
	}
}

func TestIsTaskRunningBacksTaskSummary(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	p := mustProject(t, svc, "client")
	task := mustTask(t, svc, p.ID, "design")

	if running, err := svc.Tracker().IsTaskRunning(ctx, task.ID); err != nil || running {
		t.Fatalf("IsTaskRunning() before start = %v, %v", running, err)
	}
	if _, err := svc.StartTimer(ctx, task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	clock.Set(clock.Now().Add(time.Minute))
	if running, err := svc.Tracker().IsTaskRunning(ctx, task.ID); err != nil || !running {
		t.Fatalf("IsTaskRunning() after start = %v, %v", running, err)
	}
	summary, err := svc.TaskSummary(ctx, task.ID)
	if err != nil || !summary.Running || summary.TotalSeconds != 0 {
		t.Fatalf("TaskSummary() = %#v, %v", summary, err)
	}
}

func TestTrackerValidatesEventsBeforeAppending(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	entries := store.Repositories().Entries
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// A start without a task can only come from a raw append.
	orphan, _ := entries.SaveEvent(ctx, domain.TimeEntryEvent{Type: domain.EventStart, At: base})

	tracker := app.NewTimeTrackingService(store, func() time.Time { return base.Add(time.Hour) })
	if _, err := tracker.StopAllTimers(ctx); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	events, err := entries.FindEventsByStart(ctx, orphan.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected no stop appended for the orphan start, got %#v, %v", events, err)
	}
}

func TestValidateProjectHierarchy(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := memory.New()
	svc := app.NewService(store, clock.Now, app.ServiceConfig{})
	p := mustProject(t, svc, "client")
	mustTask(t, svc, p.ID, "design")
	policies := svc.ProjectPolicies()

	if err := policies.ValidateProjectHierarchy(ctx, p); err != nil {
		t.Fatalf("ValidateProjectHierarchy() active project error = %v", err)
	}
	if err := policies.ValidateProjectHierarchy(ctx, domain.Project{ID: 404}); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}

	clock.Set(clock.Now().Add(time.Hour))
	archived, err := p.Archive(clock.Now())
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	// Written around the service, so the task stays active.
	saved, err := store.Repositories().Projects.Save(ctx, archived)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := policies.ValidateProjectHierarchy(ctx, saved); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}

	restored, err := svc.RestoreProject(ctx, p.ID)
	if err != nil || !restored.IsActive() {
		t.Fatalf("RestoreProject() = %#v, %v", restored, err)
	}
	clock.Set(clock.Now().Add(time.Hour))
	if err := policies.ArchiveProjectWithTasks(ctx, p.ID); err != nil {
		t.Fatalf("ArchiveProjectWithTasks() error = %v", err)
	}
	current, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if err := policies.ValidateProjectHierarchy(ctx, current); err != nil {
		t.Fatalf("ValidateProjectHierarchy() after cascade error = %v", err)
	}
}
