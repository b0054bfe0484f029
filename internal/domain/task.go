package domain

import (
	"time"
)

// Task is one version of a task record. Tasks belong to exactly one project per version.
type Task struct {
	ID          TaskID
	ProjectID   ProjectID
	Name        string
	Status      Status
	EffectiveAt time.Time
	Version     int64
}

// NewTask constructs the first version of a task.
func NewTask(id TaskID, projectID ProjectID, name string, now time.Time) (Task, error) {
	if id <= 0 || projectID <= 0 {
		return Task{}, ErrInvalidID
	}
	name, err := normalizeName(name)
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:          id,
		ProjectID:   projectID,
		Name:        name,
		Status:      StatusActive,
		EffectiveAt: now.UTC(),
	}, nil
}

// IsActive reports whether the task can be worked on.
func (t Task) IsActive() bool {
	return NormalizeStatus(t.Status) == StatusActive
}

// Rename returns the next version with a new name.
func (t Task) Rename(name string, now time.Time) (Task, error) {
	if !t.IsActive() {
		return Task{}, ErrArchivedRecord
	}
	name, err := normalizeName(name)
	if err != nil {
		return Task{}, err
	}
	next := t.successor(now)
	next.Name = name
	return next, nil
}

// MoveToProject returns the next version owned by projectID.
func (t Task) MoveToProject(projectID ProjectID, now time.Time) (Task, error) {
	if !t.IsActive() {
		return Task{}, ErrArchivedRecord
	}
	if projectID <= 0 {
		return Task{}, ErrInvalidID
	}
	next := t.successor(now)
	next.ProjectID = projectID
	return next, nil
}

// Archive returns the next version in archived status.
func (t Task) Archive(now time.Time) (Task, error) {
	if !t.IsActive() {
		return Task{}, ErrAlreadyArchived
	}
	next := t.successor(now)
	next.Status = StatusArchived
	return next, nil
}

// Restore returns the next version in active status.
func (t Task) Restore(now time.Time) (Task, error) {
	if t.IsActive() {
		return Task{}, ErrNotArchived
	}
	next := t.successor(now)
	next.Status = StatusActive
	return next, nil
}

// WithEffectiveAt returns a copy valid from at.
func (t Task) WithEffectiveAt(at time.Time) Task {
	t.EffectiveAt = at.UTC()
	return t
}

// EffectiveTime implements Versioned.
func (t Task) EffectiveTime() time.Time { return t.EffectiveAt }

// VersionNumber implements Versioned.
func (t Task) VersionNumber() int64 { return t.Version }

func (t Task) successor(now time.Time) Task {
	t.Status = NormalizeStatus(t.Status)
	t.Version = 0
	return t.WithEffectiveAt(now)
}
