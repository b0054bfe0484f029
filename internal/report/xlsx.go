package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hylla/tikk/internal/domain"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Entries"
)

// WriteXLSX writes a workbook with a Summary sheet (one row per task) and an Entries sheet.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return fmt.Errorf("create entries sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]any{{"Project", "Task", "Entries", "Total seconds", "Total", "Running seconds"}}
	for _, project := range r.Projects {
		for _, task := range project.Tasks {
			summary = append(summary, []any{
				label(project.Name, project.Archived),
				label(task.Name, task.Archived),
				task.EntryCount,
				task.TotalSeconds,
				domain.FormatDuration(task.TotalSeconds),
				task.RunningSeconds,
			})
		}
	}
	summary = append(summary, []any{"Total", "", "", r.TotalSeconds, domain.FormatDuration(r.TotalSeconds), r.RunningSeconds})
	if err := writeRows(f, summarySheet, summary, bold); err != nil {
		return err
	}

	entries := [][]any{{"Project", "Task", "Start (UTC)", "End (UTC)", "Seconds", "Duration", "Running"}}
	for _, entry := range r.Entries {
		end := ""
		if entry.End != nil {
			end = formatDay(*entry.End)
		}
		entries = append(entries, []any{
			entry.ProjectName,
			entry.TaskName,
			formatDay(entry.Start),
			end,
			entry.Seconds,
			domain.FormatDuration(entry.Seconds),
			entry.Running,
		})
	}
	if err := writeRows(f, entriesSheet, entries, bold); err != nil {
		return err
	}

	if err := f.SetColWidth(summarySheet, "A", "B", 28); err != nil {
		return fmt.Errorf("size summary columns: %w", err)
	}
	if err := f.SetColWidth(entriesSheet, "A", "D", 22); err != nil {
		return fmt.Errorf("size entries columns: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeRows writes rows starting at A1 and bolds the first one.
func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
