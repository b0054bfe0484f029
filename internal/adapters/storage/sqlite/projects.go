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

const projectColumns = `project_id, version, name, status, effective_at`

type projectRepo struct {
	c conn
}

// Save appends the next version of a project.
func (r projectRepo) Save(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.ID <= 0 {
		return domain.Project{}, domain.ErrInvalidID
	}
	p.Status = domain.NormalizeStatus(p.Status)
	p.EffectiveAt = p.EffectiveAt.UTC()
	err := r.c.atomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO projects(id) VALUES (?)`, int64(p.ID)); err != nil {
			return err
		}
		if err := bumpSequence(ctx, q, "project", int64(p.ID)); err != nil {
			return err
		}
		if err := q.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM project_versions WHERE project_id = ?
		`, int64(p.ID)).Scan(&p.Version); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO project_versions(project_id, version, name, status, effective_at)
			VALUES (?, ?, ?, ?, ?)
		`, int64(p.ID), p.Version, p.Name, string(p.Status), ts(p.EffectiveAt))
		return err
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("save project version: %w", err)
	}
	return p, nil
}

// FindByID returns the current version of a project.
func (r projectRepo) FindByID(ctx context.Context, id domain.ProjectID) (domain.Project, bool, error) {
	row := r.c.q().QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM project_current_view WHERE project_id = ?
	`, int64(id))
	return scanProjectRow(row)
}

func (r projectRepo) FindAll(ctx context.Context) ([]domain.Project, error) {
	return r.list(ctx, `SELECT `+projectColumns+` FROM project_current_view ORDER BY project_id ASC`)
}

func (r projectRepo) FindAllActive(ctx context.Context) ([]domain.Project, error) {
	return r.FindByStatus(ctx, domain.StatusActive)
}

func (r projectRepo) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Project, error) {
	return r.list(ctx, `
		SELECT `+projectColumns+` FROM project_current_view WHERE status = ? ORDER BY project_id ASC
	`, string(domain.NormalizeStatus(status)))
}

func (r projectRepo) FindByNamePrefix(ctx context.Context, prefix string) ([]domain.Project, error) {
	prefix = strings.TrimSpace(prefix)
	return r.list(ctx, `
		SELECT `+projectColumns+` FROM project_current_view WHERE `+namePrefixMatch+` ORDER BY project_id ASC
	`, prefix, prefix)
}

// FindHistory returns every version, oldest effective time first.
func (r projectRepo) FindHistory(ctx context.Context, id domain.ProjectID) ([]domain.Project, error) {
	return r.list(ctx, `
		SELECT `+projectColumns+` FROM project_versions
		WHERE project_id = ?
		ORDER BY effective_at ASC, version ASC
	`, int64(id))
}

// FindAtTime returns the version that was current at at.
func (r projectRepo) FindAtTime(ctx context.Context, id domain.ProjectID, at time.Time) (domain.Project, bool, error) {
	row := r.c.q().QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM project_versions
		WHERE project_id = ? AND effective_at <= ?
		ORDER BY effective_at DESC, version DESC
		LIMIT 1
	`, int64(id), ts(at))
	return scanProjectRow(row)
}

// NextID reserves a project id from the sequence table.
func (r projectRepo) NextID(ctx context.Context) (domain.ProjectID, error) {
	id, err := nextSequence(ctx, r.c.q(), "project")
	return domain.ProjectID(id), err
}

func (r projectRepo) Exists(ctx context.Context, id domain.ProjectID) (bool, error) {
	var ok bool
	err := r.c.q().QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_versions WHERE project_id = ?)
	`, int64(id)).Scan(&ok)
	return ok, err
}

func (r projectRepo) list(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.c.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProjectRow(row *sql.Row) (domain.Project, bool, error) {
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, false, nil
	}
	if err != nil {
		return domain.Project{}, false, err
	}
	return p, true, nil
}

// scanProject handles scan project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p           domain.Project
		id          int64
		statusRaw   string
		effectiveAt string
	)
	if err := s.Scan(&id, &p.Version, &p.Name, &statusRaw, &effectiveAt); err != nil {
		return domain.Project{}, err
	}
	status, err := domain.ParseStatus(statusRaw)
	if err != nil {
		return domain.Project{}, fmt.Errorf("decode project status %q: %w", statusRaw, err)
	}
	at, err := parseTS(effectiveAt)
	if err != nil {
		return domain.Project{}, err
	}
	p.ID = domain.ProjectID(id)
	p.Status = status
	p.EffectiveAt = at
	return p, nil
}
