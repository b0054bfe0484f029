package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

const entryColumns = `e.start_event_id, e.task_id, e.start_time, e.end_time`

const entryOrder = ` ORDER BY e.start_time DESC, e.start_event_id DESC`

type entryRepo struct {
	c conn
}

// SaveEvent appends an event to the log and returns it with its id.
func (r entryRepo) SaveEvent(ctx context.Context, ev domain.TimeEntryEvent) (domain.TimeEntryEvent, error) {
	ev.At = ev.At.UTC()
	var startRef, payload any
	if ev.StartEventID > 0 {
		startRef = ev.StartEventID
	}
	if ev.Payload != "" {
		payload = ev.Payload
	}
	res, err := r.c.q().ExecContext(ctx, `
		INSERT INTO time_entry_events(task_id, event_type, at, start_event_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`, int64(ev.TaskID), string(ev.Type), ts(ev.At), startRef, payload)
	if err != nil {
		return domain.TimeEntryEvent{}, fmt.Errorf("append %s event: %w", ev.Type, err)
	}
	if ev.ID, err = res.LastInsertId(); err != nil {
		return domain.TimeEntryEvent{}, fmt.Errorf("append %s event id: %w", ev.Type, err)
	}
	return ev, nil
}

func (r entryRepo) FindRunningEntries(ctx context.Context) ([]domain.TimeEntry, error) {
	return r.list(ctx, `WHERE e.end_time IS NULL`)
}

func (r entryRepo) FindRunningEntryByTask(ctx context.Context, taskID domain.TaskID) (domain.TimeEntry, bool, error) {
	entries, err := r.list(ctx, `WHERE e.task_id = ? AND e.end_time IS NULL`, int64(taskID))
	if err != nil || len(entries) == 0 {
		return domain.TimeEntry{}, false, err
	}
	return entries[0], true, nil
}

func (r entryRepo) FindEntriesByTask(ctx context.Context, taskID domain.TaskID) ([]domain.TimeEntry, error) {
	return r.list(ctx, `WHERE e.task_id = ?`, int64(taskID))
}

func (r entryRepo) FindEntriesByTaskAndPeriod(ctx context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error) {
	return r.list(ctx, `WHERE e.task_id = ? AND e.start_time >= ? AND e.start_time <= ?`, int64(taskID), ts(start), ts(end))
}

// FindOverlappingEntries matches intervals intersecting [start, end); running intervals never end.
func (r entryRepo) FindOverlappingEntries(ctx context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error) {
	return r.list(ctx, `
		WHERE e.task_id = ? AND e.start_time < ? AND (e.end_time IS NULL OR e.end_time > ?)
	`, int64(taskID), ts(end), ts(start))
}

// FindEntriesByProject follows each task's current project.
func (r entryRepo) FindEntriesByProject(ctx context.Context, projectID domain.ProjectID) ([]domain.TimeEntry, error) {
	return r.list(ctx, `
		JOIN task_current_view tc ON tc.task_id = e.task_id
		WHERE tc.project_id = ?
	`, int64(projectID))
}

func (r entryRepo) FindEntriesByPeriod(ctx context.Context, start, end time.Time) ([]domain.TimeEntry, error) {
	return r.list(ctx, `WHERE e.start_time >= ? AND e.start_time <= ?`, ts(start), ts(end))
}

func (r entryRepo) CountEntriesByTask(ctx context.Context, taskID domain.TaskID) (int, error) {
	var n int
	err := r.c.q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM time_entry_events WHERE task_id = ? AND event_type = 'start'
	`, int64(taskID)).Scan(&n)
	return n, err
}

// SumDurationByTask sums closed intervals; durations are derived in Go so integrity checks apply.
func (r entryRepo) SumDurationByTask(ctx context.Context, taskID domain.TaskID) (int64, error) {
	entries, err := r.FindEntriesByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return domain.TotalDuration(entries), nil
}

func (r entryRepo) SumDurationByProject(ctx context.Context, projectID domain.ProjectID) (int64, error) {
	entries, err := r.FindEntriesByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return domain.TotalDuration(entries), nil
}

func (r entryRepo) FindEntryByStartEventID(ctx context.Context, startEventID int64) (domain.TimeEntry, bool, error) {
	entries, err := r.list(ctx, `WHERE e.start_event_id = ?`, startEventID)
	if err != nil || len(entries) == 0 {
		return domain.TimeEntry{}, false, err
	}
	return entries[0], true, nil
}

func (r entryRepo) FindRecentEntries(ctx context.Context, limit int) ([]domain.TimeEntry, error) {
	return r.listLimit(ctx, ``, limit)
}

func (r entryRepo) FindRecentEntriesByTask(ctx context.Context, taskID domain.TaskID, limit int) ([]domain.TimeEntry, error) {
	return r.listLimit(ctx, `WHERE e.task_id = ?`, limit, int64(taskID))
}

// FindEventsByStart returns the start event followed by every event referencing it, by id.
func (r entryRepo) FindEventsByStart(ctx context.Context, startEventID int64) ([]domain.TimeEntryEvent, error) {
	rows, err := r.c.q().QueryContext(ctx, `
		SELECT id, task_id, event_type, at, start_event_id, payload
		FROM time_entry_events
		WHERE (id = ? AND event_type = 'start') OR start_event_id = ?
		ORDER BY id ASC
	`, startEventID, startEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimeEntryEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0].ID != startEventID {
		return nil, nil
	}
	return out, nil
}

func (r entryRepo) listLimit(ctx context.Context, where string, limit int, args ...any) ([]domain.TimeEntry, error) {
	if limit <= 0 {
		return r.list(ctx, where, args...)
	}
	return r.query(ctx, `SELECT `+entryColumns+` FROM time_entries_view e `+where+entryOrder+` LIMIT ?`, append(args, limit)...)
}

func (r entryRepo) list(ctx context.Context, where string, args ...any) ([]domain.TimeEntry, error) {
	return r.query(ctx, `SELECT `+entryColumns+` FROM time_entries_view e `+where+entryOrder, args...)
}

func (r entryRepo) query(ctx context.Context, query string, args ...any) ([]domain.TimeEntry, error) {
	rows, err := r.c.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TimeEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// scanEntry rebuilds an interval from its start and optional stop timestamps.
func scanEntry(s scanner) (domain.TimeEntry, error) {
	var (
		startID  int64
		taskID   int64
		startRaw string
		endRaw   sql.NullString
	)
	if err := s.Scan(&startID, &taskID, &startRaw, &endRaw); err != nil {
		return domain.TimeEntry{}, err
	}
	startAt, err := parseTS(startRaw)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	start := domain.TimeEntryEvent{ID: startID, TaskID: domain.TaskID(taskID), Type: domain.EventStart, At: startAt}
	if !endRaw.Valid {
		return domain.NewTimeEntry(start, nil)
	}
	endAt, err := parseTS(endRaw.String)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	stop := domain.TimeEntryEvent{TaskID: start.TaskID, Type: domain.EventStop, At: endAt, StartEventID: startID}
	return domain.NewTimeEntry(start, &stop)
}

func scanEvent(s scanner) (domain.TimeEntryEvent, error) {
	var (
		ev       domain.TimeEntryEvent
		taskID   int64
		typeRaw  string
		atRaw    string
		startRef sql.NullInt64
		payload  sql.NullString
	)
	if err := s.Scan(&ev.ID, &taskID, &typeRaw, &atRaw, &startRef, &payload); err != nil {
		return domain.TimeEntryEvent{}, err
	}
	typ, err := domain.ParseEventType(typeRaw)
	if err != nil {
		return domain.TimeEntryEvent{}, fmt.Errorf("decode event %d type: %w", ev.ID, err)
	}
	at, err := parseTS(atRaw)
	if err != nil {
		return domain.TimeEntryEvent{}, err
	}
	ev.TaskID = domain.TaskID(taskID)
	ev.Type = typ
	ev.At = at
	ev.StartEventID = startRef.Int64
	ev.Payload = payload.String
	return ev, nil
}
