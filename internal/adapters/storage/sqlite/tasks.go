package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

const taskColumns = `task_id, project_id, version, name, status, effective_at`

type taskRepo struct {
	c conn
}

// Save appends the next version of a task.
func (r taskRepo) Save(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID <= 0 || t.ProjectID <= 0 {
		return domain.Task{}, domain.ErrInvalidID
	}
	t.Status = domain.NormalizeStatus(t.Status)
	t.EffectiveAt = t.EffectiveAt.UTC()
	err := r.c.atomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO tasks(id) VALUES (?)`, int64(t.ID)); err != nil {
			return err
		}
		if err := bumpSequence(ctx, q, "task", int64(t.ID)); err != nil {
			return err
		}
		if err := q.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM task_versions WHERE task_id = ?
		`, int64(t.ID)).Scan(&t.Version); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO task_versions(task_id, project_id, version, name, status, effective_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, int64(t.ID), int64(t.ProjectID), t.Version, t.Name, string(t.Status), ts(t.EffectiveAt))
		return err
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("save task version: %w", err)
	}
	return t, nil
}

func (r taskRepo) FindByID(ctx context.Context, id domain.TaskID) (domain.Task, bool, error) {
	row := r.c.q().QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM task_current_view WHERE task_id = ?
	`, int64(id))
	return scanTaskRow(row)
}

func (r taskRepo) FindAll(ctx context.Context) ([]domain.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM task_current_view ORDER BY task_id ASC`)
}

func (r taskRepo) FindAllActive(ctx context.Context) ([]domain.Task, error) {
	return r.FindByStatus(ctx, domain.StatusActive)
}

func (r taskRepo) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_current_view WHERE status = ? ORDER BY task_id ASC
	`, string(domain.NormalizeStatus(status)))
}

func (r taskRepo) FindByNamePrefix(ctx context.Context, prefix string) ([]domain.Task, error) {
	prefix = strings.TrimSpace(prefix)
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_current_view WHERE `+namePrefixMatch+` ORDER BY task_id ASC
	`, prefix, prefix)
}

func (r taskRepo) FindHistory(ctx context.Context, id domain.TaskID) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_versions
		WHERE task_id = ?
		ORDER BY effective_at ASC, version ASC
	`, int64(id))
}

func (r taskRepo) FindAtTime(ctx context.Context, id domain.TaskID, at time.Time) (domain.Task, bool, error) {
	row := r.c.q().QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM task_versions
		WHERE task_id = ? AND effective_at <= ?
		ORDER BY effective_at DESC, version DESC
		LIMIT 1
	`, int64(id), ts(at))
	return scanTaskRow(row)
}

func (r taskRepo) NextID(ctx context.Context) (domain.TaskID, error) {
	id, err := nextSequence(ctx, r.c.q(), "task")
	return domain.TaskID(id), err
}

func (r taskRepo) Exists(ctx context.Context, id domain.TaskID) (bool, error) {
	var ok bool
	err := r.c.q().QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM task_versions WHERE task_id = ?)
	`, int64(id)).Scan(&ok)
	return ok, err
}

func (r taskRepo) FindByProjectID(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_current_view WHERE project_id = ? ORDER BY task_id ASC
	`, int64(projectID))
}

func (r taskRepo) FindByProjectIDOrdered(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_current_view WHERE project_id = ? ORDER BY name ASC, task_id ASC
	`, int64(projectID))
}

func (r taskRepo) FindActiveByProjectID(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM task_current_view
		WHERE project_id = ? AND status = 'active'
		ORDER BY task_id ASC
	`, int64(projectID))
}

func (r taskRepo) CountByProjectID(ctx context.Context, projectID domain.ProjectID) (int, error) {
	var n int
	err := r.c.q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_current_view WHERE project_id = ?
	`, int64(projectID)).Scan(&n)
	return n, err
}

func (r taskRepo) list(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.c.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTaskRow(row *sql.Row) (domain.Task, bool, error) {
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, err
	}
	return t, true, nil
}

// scanTask handles scan task.
func scanTask(s scanner) (domain.Task, error) {
	var (
		t           domain.Task
		id          int64
		projectID   int64
		statusRaw   string
		effectiveAt string
	)
	if err := s.Scan(&id, &projectID, &t.Version, &t.Name, &statusRaw, &effectiveAt); err != nil {
		return domain.Task{}, err
	}
	status, err := domain.ParseStatus(statusRaw)
	if err != nil {
		return domain.Task{}, fmt.Errorf("decode task status %q: %w", statusRaw, err)
	}
	at, err := parseTS(effectiveAt)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = domain.TaskID(id)
	t.ProjectID = domain.ProjectID(projectID)
	t.Status = status
	t.EffectiveAt = at
	return t, nil
}
