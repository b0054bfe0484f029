package tui

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"

	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

// Service is the slice of the application service the terminal UI drives.
type Service interface {
	ListProjects(context.Context, bool) ([]domain.Project, error)
	ListActiveTasks(context.Context) ([]domain.Task, error)
	CurrentTimer(context.Context) (app.TimerStatus, error)
	StartTimer(context.Context, domain.TaskID) (domain.TimeEntry, error)
	StopTimer(context.Context, domain.TaskID) (*domain.TimeEntry, error)
	StopAllTimers(context.Context) (int, error)
	TaskSummary(context.Context, domain.TaskID) (app.TaskSummary, error)
}

// taskItem is one selectable row, a task annotated with its project's name.
type taskItem struct {
	task        domain.Task
	projectName string
}

// Model is the bubbletea model for the timer screen.
type Model struct {
	svc  Service
	keys keyMap
	help help.Model

	items    []taskItem
	selected int
	timer    app.TimerStatus

	ready  bool
	width  int
	height int
	status string
	err    error

	// info is the summary markdown; infoPane is info styled for the current width.
	info     string
	infoPane string

	stopOnExit bool
	clock      func() time.Time
	copyText   func(string) error
}

// loadedMsg carries the task list and timer state.
type loadedMsg struct {
	items []taskItem
	timer app.TimerStatus
	err   error
}

// actionMsg reports the outcome of a timer mutation.
type actionMsg struct {
	status string
	err    error
}

// summaryMsg carries one task summary for display or copying.
type summaryMsg struct {
	markdown string
	plain    string
	copy     bool
	err      error
}

// tickMsg re-renders the running timer.
type tickMsg time.Time

// NewModel constructs a new value for this package.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:      svc,
		keys:     newKeyMap(),
		help:     h,
		status:   "loading...",
		clock:    time.Now,
		copyText: clipboard.WriteAll,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadData, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		if m.info != "" {
			m.infoPane = renderSummaryPane(m.info, m.width)
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.items = msg.items
		m.timer = msg.timer
		m.selected = clamp(m.selected, 0, len(m.items)-1)
		if m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		return m, m.loadData

	case summaryMsg:
		if msg.err != nil {
			m.status = "summary failed: " + msg.err.Error()
			return m, nil
		}
		if !msg.copy {
			m.info = msg.markdown
			m.infoPane = renderSummaryPane(m.info, m.width)
			return m, nil
		}
		if err := m.copyText(msg.plain); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied summary"
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	default:
		return m, nil
	}
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quitCmd()
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case m.err != nil:
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.selected = clamp(m.selected-1, 0, len(m.items)-1)
		m.info = ""
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selected = clamp(m.selected+1, 0, len(m.items)-1)
		m.info = ""
		return m, nil
	case key.Matches(msg, m.keys.stopAll):
		return m, m.stopAll
	case key.Matches(msg, m.keys.stop):
		if !m.timer.Running || m.timer.Entry == nil {
			m.status = "no timer running"
			return m, nil
		}
		return m, m.stopTask(m.timer.Entry.TaskID)
	}

	item, ok := m.selectedItem()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.start):
		return m, m.startTask(item)
	case key.Matches(msg, m.keys.info):
		if m.info != "" {
			m.info = ""
			return m, nil
		}
		return m, m.loadSummary(item, false)
	case key.Matches(msg, m.keys.copy):
		return m, m.loadSummary(item, true)
	}
	return m, nil
}

func (m Model) selectedItem() (taskItem, bool) {
	if len(m.items) == 0 {
		return taskItem{}, false
	}
	return m.items[clamp(m.selected, 0, len(m.items)-1)], true
}

// loadData loads required data for the current operation.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	projects, err := m.svc.ListProjects(ctx, false)
	if err != nil {
		return loadedMsg{err: err}
	}
	names := make(map[domain.ProjectID]string, len(projects))
	for _, project := range projects {
		names[project.ID] = project.Name
	}
	tasks, err := m.svc.ListActiveTasks(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	items := make([]taskItem, 0, len(tasks))
	for _, task := range tasks {
		name, ok := names[task.ProjectID]
		if !ok {
			continue
		}
		items = append(items, taskItem{task: task, projectName: name})
	}
	slices.SortFunc(items, func(a, b taskItem) int {
		return cmp.Or(
			cmp.Compare(a.projectName, b.projectName),
			cmp.Compare(a.task.Name, b.task.Name),
			cmp.Compare(a.task.ID, b.task.ID),
		)
	})
	timer, err := m.svc.CurrentTimer(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{items: items, timer: timer}
}

func (m Model) startTask(item taskItem) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.svc.StartTimer(context.Background(), item.task.ID); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "started " + item.task.Name}
	}
}

func (m Model) stopTask(taskID domain.TaskID) tea.Cmd {
	return func() tea.Msg {
		entry, err := m.svc.StopTimer(context.Background(), taskID)
		if err != nil {
			return actionMsg{err: err}
		}
		if entry == nil || entry.DurationSeconds == nil {
			return actionMsg{status: "no timer running"}
		}
		return actionMsg{status: "stopped after " + domain.FormatDuration(*entry.DurationSeconds)}
	}
}

func (m Model) stopAll() tea.Msg {
	n, err := m.svc.StopAllTimers(context.Background())
	if err != nil {
		return actionMsg{err: err}
	}
	return actionMsg{status: fmt.Sprintf("stopped %d timer(s)", n)}
}

func (m Model) quitCmd() tea.Cmd {
	if !m.stopOnExit {
		return tea.Quit
	}
	svc := m.svc
	return func() tea.Msg {
		// Quit regardless; a failed stop leaves the timer running for the next session.
		_, _ = svc.StopAllTimers(context.Background())
		return tea.QuitMsg{}
	}
}

func (m Model) loadSummary(item taskItem, toClipboard bool) tea.Cmd {
	return func() tea.Msg {
		summary, err := m.svc.TaskSummary(context.Background(), item.task.ID)
		if err != nil {
			return summaryMsg{err: err}
		}
		total := domain.FormatDuration(summary.TotalSeconds)
		plain := fmt.Sprintf("%s / %s: %s (%d entries)", item.projectName, item.task.Name, total, summary.EntryCount)
		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n\n", item.task.Name)
		fmt.Fprintf(&b, "- Project: %s\n", item.projectName)
		fmt.Fprintf(&b, "- Tracked: **%s** over %d entries\n", total, summary.EntryCount)
		if summary.Running {
			b.WriteString("- Timer is running\n")
		}
		return summaryMsg{markdown: b.String(), plain: plain, copy: toClipboard}
	}
}

// runningItem finds the list row of the running timer, if it is listed.
func (m Model) runningItem() (taskItem, bool) {
	if !m.timer.Running || m.timer.Entry == nil {
		return taskItem{}, false
	}
	for _, item := range m.items {
		if item.task.ID == m.timer.Entry.TaskID {
			return item, true
		}
	}
	return taskItem{}, false
}

// View handles view.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render builds the screen text.
func (m Model) render() string {
	accent := lipgloss.Color("62")
	running := lipgloss.Color("214")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	projectStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(accent)
	runningStyle := lipgloss.NewStyle().Bold(true).Foreground(running)
	mutedStyle := lipgloss.NewStyle().Foreground(muted)
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	sections := []string{titleStyle.Render("tikk"), ""}
	if m.timer.Running && m.timer.Entry != nil {
		name := fmt.Sprintf("task %d", m.timer.Entry.TaskID)
		if item, ok := m.runningItem(); ok {
			name = item.projectName + " / " + item.task.Name
		}
		elapsed := domain.FormatDuration(m.timer.Entry.ElapsedSeconds(m.clock()))
		sections = append(sections, runningStyle.Render("● "+name+"  "+elapsed))
	} else {
		sections = append(sections, mutedStyle.Render("○ no timer running"))
	}
	sections = append(sections, "")

	if len(m.items) == 0 {
		sections = append(sections, "No active tasks.", "Create one with: tikk task create <project-id> <name>")
	}
	lastProject := ""
	for i, item := range m.items {
		if i == 0 || item.projectName != lastProject {
			if i > 0 {
				sections = append(sections, "")
			}
			sections = append(sections, projectStyle.Render(item.projectName))
			lastProject = item.projectName
		}
		marker := "  "
		if m.timer.Running && m.timer.Entry != nil && m.timer.Entry.TaskID == item.task.ID {
			marker = "● "
		}
		line := marker + item.task.Name
		if i == m.selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		sections = append(sections, line)
	}

	if m.info != "" {
		sections = append(sections, "", m.infoPane)
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	return content + "\n" + helpLine
}

// fitLines pads or truncates content to exactly height lines.
func fitLines(content string, height int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// renderSummaryPane styles summary markdown for a terminal of the given width.
// Narrow terminals wrap at 32 columns. The raw markdown is shown if glamour fails.
func renderSummaryPane(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 32)),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(out, "\n")
}
