package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hylla/tikk/internal/domain"
)

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	runningStyle = cellStyle.Foreground(lipgloss.Color("214"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
)

// Table renders the per-task summary as a bordered terminal table.
func Table(r Report) string {
	rows := make([][]string, 0, len(r.Entries)+1)
	running := map[int]bool{}
	for _, project := range r.Projects {
		for _, task := range project.Tasks {
			total := domain.FormatDuration(task.TotalSeconds)
			if task.Running {
				total += " (+" + domain.FormatDuration(task.RunningSeconds) + " running)"
				running[len(rows)] = true
			}
			rows = append(rows, []string{
				label(project.Name, project.Archived),
				label(task.Name, task.Archived),
				strconv.Itoa(task.EntryCount),
				total,
			})
		}
	}
	rows = append(rows, []string{"Total", "", "", domain.FormatDuration(r.TotalSeconds)})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Project", "Task", "Entries", "Total").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case running[row] && col == 3:
				return runningStyle
			case col >= 2:
				return numberStyle
			default:
				return cellStyle
			}
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Time report %s to %s", formatDay(r.From), formatDay(r.To))))
	b.WriteString("\n")
	b.WriteString(t.Render())
	return b.String()
}

// Markdown renders the report as a markdown document.
func Markdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Time report\n\n")
	fmt.Fprintf(&b, "Period: %s to %s (UTC)\n\n", formatDay(r.From), formatDay(r.To))

	if len(r.Projects) == 0 {
		b.WriteString("_No time recorded in this period._\n")
		return b.String()
	}

	for _, project := range r.Projects {
		fmt.Fprintf(&b, "## %s\n\n", escapeMarkdown(label(project.Name, project.Archived)))
		b.WriteString("| Task | Entries | Total |\n|---|---:|---:|\n")
		for _, task := range project.Tasks {
			total := domain.FormatDuration(task.TotalSeconds)
			if task.Running {
				total += " + " + domain.FormatDuration(task.RunningSeconds) + " running"
			}
			fmt.Fprintf(&b, "| %s | %d | %s |\n", escapeMarkdown(label(task.Name, task.Archived)), task.EntryCount, total)
		}
		fmt.Fprintf(&b, "\nProject total: **%s**\n\n", domain.FormatDuration(project.TotalSeconds))
	}
	fmt.Fprintf(&b, "**Total: %s**\n", domain.FormatDuration(r.TotalSeconds))
	if r.HasRunning() {
		fmt.Fprintf(&b, "\n_Running timers add %s not included in the totals._\n", domain.FormatDuration(r.RunningSeconds))
	}
	return b.String()
}

// RenderMarkdown styles markdown for a terminal of the given width.
func RenderMarkdown(markdown string, width int) (string, error) {
	if width < 40 {
		width = 40
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(rendered, "\n"), nil
}

func label(name string, archived bool) string {
	if archived {
		return name + " (archived)"
	}
	return name
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "#", `\#`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
