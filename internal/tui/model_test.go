package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/tikk/internal/adapters/storage/memory"
	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

type fixture struct {
	svc    *app.Service
	now    time.Time
	design domain.Task
	review domain.Task
	email  domain.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	f.svc = app.NewService(memory.New(), f.clock, app.ServiceConfig{})

	client, err := f.svc.CreateProject(ctx, "Client")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	admin, err := f.svc.CreateProject(ctx, "Admin")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if f.review, err = f.svc.CreateTask(ctx, client.ID, "Review"); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if f.design, err = f.svc.CreateTask(ctx, client.ID, "Design"); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if f.email, err = f.svc.CreateTask(ctx, admin.ID, "Email"); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) model(t *testing.T, opts ...Option) Model {
	t.Helper()
	m := NewModel(f.svc, append([]Option{WithClock(f.clock)}, opts...)...)
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return applyCmd(t, m, m.loadData)
}

// TestModelLoadsTasksGroupedByProject verifies ordering and rendering of the task list.
func TestModelLoadsTasksGroupedByProject(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	if len(m.items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(m.items))
	}
	got := []string{m.items[0].task.Name, m.items[1].task.Name, m.items[2].task.Name}
	if got[0] != "Email" || got[1] != "Design" || got[2] != "Review" {
		t.Fatalf("unexpected order %#v", got)
	}
	if v := m.View(); !v.AltScreen || v.Content == nil {
		t.Fatal("expected alt-screen view with content")
	}
	view := m.render()
	for _, want := range []string{"tikk", "no timer running", "Admin", "Client", "Design"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Index(view, "Admin") > strings.Index(view, "Client") {
		t.Fatalf("expected Admin group before Client:\n%s", view)
	}
}

// TestModelStartAndStopTimer verifies the start, elapsed display, and stop flow.
func TestModelStartAndStopTimer(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !m.timer.Running || m.timer.Entry.TaskID != f.design.ID {
		t.Fatalf("expected Design to be running, got %#v", m.timer)
	}
	if m.status != "started Design" {
		t.Fatalf("unexpected status %q", m.status)
	}

	f.now = f.now.Add(5*time.Minute + 7*time.Second)
	view := m.render()
	if !strings.Contains(view, "Client / Design") || !strings.Contains(view, "00:05:07") {
		t.Fatalf("expected running banner, got:\n%s", view)
	}

	m = applyMsg(t, m, keyRune('x'))
	if m.timer.Running {
		t.Fatalf("expected timer to stop, got %#v", m.timer)
	}
	if m.status != "stopped after 00:05:07" {
		t.Fatalf("unexpected status %q", m.status)
	}

	m = applyMsg(t, m, keyRune('x'))
	if m.status != "no timer running" {
		t.Fatalf("unexpected status after second stop %q", m.status)
	}
}

// TestModelStartingAnotherTaskSwitchesTimer verifies only one timer runs at a time.
func TestModelStartingAnotherTaskSwitchesTimer(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = applyMsg(t, m, keyRune('s'))
	f.now = f.now.Add(time.Minute)
	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, keyRune('s'))
	if m.timer.Entry == nil || m.timer.Entry.TaskID != f.design.ID {
		t.Fatalf("expected Design running, got %#v", m.timer)
	}
	summary, err := f.svc.TaskSummary(context.Background(), f.email.ID)
	if err != nil {
		t.Fatalf("TaskSummary() error = %v", err)
	}
	if summary.Running || summary.TotalSeconds != 60 {
		t.Fatalf("expected Email stopped at 60s, got %#v", summary)
	}

	m = applyMsg(t, m, keyRune('X'))
	if m.timer.Running || m.status != "stopped 1 timer(s)" {
		t.Fatalf("unexpected stop-all result status=%q timer=%#v", m.status, m.timer)
	}
}

// TestModelCopyAndInfo verifies summary copying and the summary pane.
func TestModelCopyAndInfo(t *testing.T) {
	f := newFixture(t)
	var copied string
	m := f.model(t, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, keyRune('s'))
	f.now = f.now.Add(90 * time.Second)
	m = applyMsg(t, m, keyRune('x'))

	m = applyMsg(t, m, keyRune('y'))
	if copied != "Client / Design: 00:01:30 (1 entries)" {
		t.Fatalf("unexpected clipboard text %q", copied)
	}
	if m.status != "copied summary" {
		t.Fatalf("unexpected status %q", m.status)
	}

	m = applyMsg(t, m, keyRune('i'))
	if !strings.Contains(m.info, "00:01:30") {
		t.Fatalf("expected summary markdown, got %q", m.info)
	}
	if !strings.Contains(m.render(), "Design") {
		t.Fatalf("expected summary pane in view")
	}
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	if m.width != 160 || !strings.Contains(m.infoPane, "Design") {
		t.Fatalf("expected summary pane kept across resize, got %q", m.infoPane)
	}
	m = applyMsg(t, m, keyRune('i'))
	if m.info != "" {
		t.Fatalf("expected second i to close the pane, got %q", m.info)
	}

	m.copyText = func(string) error { return errors.New("no display") }
	m = applyMsg(t, m, keyRune('y'))
	if m.status != "copy failed: no display" {
		t.Fatalf("unexpected copy failure status %q", m.status)
	}
}

// TestModelQuitStopsTimersWhenConfigured verifies stop-on-exit behavior.
func TestModelQuitStopsTimersWhenConfigured(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, WithStopOnExit(true))
	m = applyMsg(t, m, keyRune('s'))

	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
	status, err := f.svc.CurrentTimer(context.Background())
	if err != nil {
		t.Fatalf("CurrentTimer() error = %v", err)
	}
	if status.Running {
		t.Fatalf("expected timers stopped on quit, got %#v", status)
	}
}

// TestModelQuitLeavesTimerRunningByDefault verifies quit without stop-on-exit.
func TestModelQuitLeavesTimerRunningByDefault(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)
	m = applyMsg(t, m, keyRune('s'))

	_, cmd := m.Update(keyRune('q'))
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
	status, err := f.svc.CurrentTimer(context.Background())
	if err != nil {
		t.Fatalf("CurrentTimer() error = %v", err)
	}
	if !status.Running {
		t.Fatal("expected timer to keep running")
	}
}

type failingService struct {
	Service
}

func (failingService) ListProjects(context.Context, bool) ([]domain.Project, error) {
	return nil, errors.New("database is locked")
}

// TestModelShowsLoadErrors verifies load failures render an error view.
func TestModelShowsLoadErrors(t *testing.T) {
	m := NewModel(failingService{})
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m = applyCmd(t, m, m.loadData)
	if m.err == nil {
		t.Fatal("expected load error")
	}
	if view := m.render(); !strings.Contains(view, "database is locked") {
		t.Fatalf("expected error view, got %q", view)
	}
	m = applyMsg(t, m, keyRune('s'))
	if m.status != "ready" && m.status != "loading..." {
		t.Fatalf("expected keys to be ignored while in error, got status %q", m.status)
	}
}

// TestTickKeepsTicking verifies the refresh tick reschedules itself.
func TestTickKeepsTicking(t *testing.T) {
	m := NewModel(failingService{})
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("expected tick to reschedule")
	}
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}
