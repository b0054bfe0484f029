package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printer writes command results either as JSON or as a human rendering.
type printer struct {
	w    io.Writer
	json bool
}

// emit writes v as indented JSON in --json mode, otherwise the text from human.
func (p printer) emit(v any, human func() string) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(p.w, human())
	return err
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Render()
}

func projectRows(projects []servercommon.Project) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{id(p.ID), p.Name, p.Status, strconv.FormatInt(p.Version, 10), p.EffectiveAt})
	}
	return rows
}

func projectTable(projects ...servercommon.Project) string {
	if len(projects) == 0 {
		return "no projects"
	}
	return renderTable([]string{"ID", "Name", "Status", "Version", "Effective"}, projectRows(projects))
}

func taskTable(tasks ...servercommon.Task) string {
	if len(tasks) == 0 {
		return "no tasks"
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{id(t.ID), id(t.ProjectID), t.Name, t.Status, strconv.FormatInt(t.Version, 10), t.EffectiveAt})
	}
	return renderTable([]string{"ID", "Project", "Name", "Status", "Version", "Effective"}, rows)
}

func entryTable(entries ...servercommon.TimeEntry) string {
	if len(entries) == 0 {
		return "no time entries"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		end, duration := e.EndTime, e.Duration
		if e.Running {
			end, duration = "running", "-"
		}
		note := ""
		if len(e.Notes) > 0 {
			note = e.Notes[len(e.Notes)-1]
		}
		rows = append(rows, []string{id(e.StartEventID), id(e.TaskID), e.StartTime, end, duration, note})
	}
	return renderTable([]string{"Entry", "Task", "Start", "End", "Duration", "Note"}, rows)
}

func eventTable(events []servercommon.TimeEntryEvent) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		ref := ""
		if e.StartEventID > 0 {
			ref = id(e.StartEventID)
		}
		rows = append(rows, []string{id(e.ID), e.Type, e.At, ref, e.Payload})
	}
	return renderTable([]string{"Event", "Type", "At", "Start", "Payload"}, rows)
}

func timerText(status servercommon.TimerStatus) string {
	if !status.Running || status.Entry == nil {
		return "no timer running"
	}
	return fmt.Sprintf("task %d running since %s (%s)", status.Entry.TaskID, status.Entry.StartTime, status.Elapsed)
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
