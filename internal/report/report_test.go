package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hylla/tikk/internal/adapters/storage/memory"
	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/domain"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// fixture records 10:00-10:05 on "Design", 10:05-11:00 on "Review", and leaves "Review" running from 12:00.
func fixture(t *testing.T) (*app.Service, time.Time) {
	t.Helper()
	ctx := context.Background()
	now := day.Add(10 * time.Hour)
	svc := app.NewService(memory.New(), func() time.Time { return now }, app.ServiceConfig{})

	client, err := svc.CreateProject(ctx, "Client")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	internal, err := svc.CreateProject(ctx, "Admin")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	design, err := svc.CreateTask(ctx, client.ID, "Design")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	review, err := svc.CreateTask(ctx, client.ID, "Review")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	email, err := svc.CreateTask(ctx, internal.ID, "Email")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if _, err := svc.StartTimer(ctx, design.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	now = now.Add(5 * time.Minute)
	if _, err := svc.StartTimer(ctx, review.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	now = now.Add(55 * time.Minute)
	if _, err := svc.StopTimer(ctx, review.ID); err != nil {
		t.Fatalf("StopTimer() error = %v", err)
	}
	if _, err := svc.AddManualEntry(ctx, email.ID, day.Add(8*time.Hour), day.Add(8*time.Hour+30*time.Minute), "inbox"); err != nil {
		t.Fatalf("AddManualEntry() error = %v", err)
	}
	if _, err := svc.AddManualEntry(ctx, email.ID, day.Add(-24*time.Hour), day.Add(-23*time.Hour), ""); err != nil {
		t.Fatalf("AddManualEntry(outside period) error = %v", err)
	}
	now = day.Add(12 * time.Hour)
	if _, err := svc.StartTimer(ctx, review.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	now = now.Add(10 * time.Minute)
	return svc, now
}

func TestBuildAggregatesByProjectAndTask(t *testing.T) {
	svc, now := fixture(t)
	r, err := Build(context.Background(), svc, day, day.Add(24*time.Hour-time.Second), now)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if r.TotalSeconds != 300+3300+1800 {
		t.Fatalf("TotalSeconds = %d", r.TotalSeconds)
	}
	if r.RunningSeconds != 600 || !r.HasRunning() {
		t.Fatalf("RunningSeconds = %d", r.RunningSeconds)
	}
	if len(r.Projects) != 2 || r.Projects[0].Name != "Admin" || r.Projects[1].Name != "Client" {
		t.Fatalf("unexpected project order %#v", r.Projects)
	}
	client := r.Projects[1]
	if client.TotalSeconds != 3600 || len(client.Tasks) != 2 {
		t.Fatalf("unexpected client row %#v", client)
	}
	review := client.Tasks[1]
	if review.Name != "Review" || review.TotalSeconds != 3300 || review.EntryCount != 2 || !review.Running || review.RunningSeconds != 600 {
		t.Fatalf("unexpected review row %#v", review)
	}
	if len(r.Entries) != 4 || r.Entries[0].TaskName != "Email" || !r.Entries[3].Running {
		t.Fatalf("unexpected entries %#v", r.Entries)
	}
}

func TestBuildRejectsInvertedPeriod(t *testing.T) {
	svc, now := fixture(t)
	_, err := Build(context.Background(), svc, day, day.Add(-time.Hour), now)
	if !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestTableAndMarkdownRenderTotals(t *testing.T) {
	svc, now := fixture(t)
	r, err := Build(context.Background(), svc, day, day.Add(24*time.Hour-time.Second), now)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tbl := Table(r)
	for _, want := range []string{"Project", "Client", "Review", "00:55:00", "01:30:00", "running"} {
		if !strings.Contains(tbl, want) {
			t.Fatalf("table missing %q:\n%s", want, tbl)
		}
	}

	md := Markdown(r)
	for _, want := range []string{"# Time report", "## Client", "| Design | 1 | 00:05:00 |", "**Total: 01:30:00**", "00:10:00"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	rendered, err := RenderMarkdown(md, 80)
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if !strings.Contains(rendered, "Client") {
		t.Fatalf("rendered markdown missing project name:\n%s", rendered)
	}
}

func TestMarkdownEmptyPeriod(t *testing.T) {
	md := Markdown(Report{From: day, To: day})
	if !strings.Contains(md, "No time recorded") {
		t.Fatalf("unexpected empty markdown %q", md)
	}
}

func TestWriteXLSX(t *testing.T) {
	svc, now := fixture(t)
	r, err := Build(context.Background(), svc, day, day.Add(24*time.Hour-time.Second), now)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, r); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[0] != summarySheet || sheets[1] != entriesSheet {
		t.Fatalf("unexpected sheets %#v", sheets)
	}
	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if len(summary) != 5 || summary[0][0] != "Project" {
		t.Fatalf("unexpected summary rows %#v", summary)
	}
	last := summary[len(summary)-1]
	if last[0] != "Total" || last[3] != "5400" || last[4] != "01:30:00" {
		t.Fatalf("unexpected total row %#v", last)
	}
	entries, err := f.GetRows(entriesSheet)
	if err != nil {
		t.Fatalf("GetRows(entries) error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected header plus four entries, got %d", len(entries))
	}
}
