package domain

import (
	"time"
)

// Project is one version of a project record.
type Project struct {
	ID          ProjectID
	Name        string
	Status      Status
	EffectiveAt time.Time
	Version     int64
}

// NewProject constructs the first version of a project.
func NewProject(id ProjectID, name string, now time.Time) (Project, error) {
	if id <= 0 {
		return Project{}, ErrInvalidID
	}
	name, err := normalizeName(name)
	if err != nil {
		return Project{}, err
	}
	return Project{
		ID:          id,
		Name:        name,
		Status:      StatusActive,
		EffectiveAt: now.UTC(),
	}, nil
}

// IsActive reports whether the project accepts new work.
func (p Project) IsActive() bool {
	return NormalizeStatus(p.Status) == StatusActive
}

// Rename returns the next version with a new name.
func (p Project) Rename(name string, now time.Time) (Project, error) {
	if !p.IsActive() {
		return Project{}, ErrArchivedRecord
	}
	name, err := normalizeName(name)
	if err != nil {
		return Project{}, err
	}
	next := p.successor(now)
	next.Name = name
	return next, nil
}

// Archive returns the next version in archived status.
func (p Project) Archive(now time.Time) (Project, error) {
	if !p.IsActive() {
		return Project{}, ErrAlreadyArchived
	}
	next := p.successor(now)
	next.Status = StatusArchived
	return next, nil
}

// Restore returns the next version in active status.
func (p Project) Restore(now time.Time) (Project, error) {
	if p.IsActive() {
		return Project{}, ErrNotArchived
	}
	next := p.successor(now)
	next.Status = StatusActive
	return next, nil
}

// WithEffectiveAt returns a copy valid from at.
func (p Project) WithEffectiveAt(at time.Time) Project {
	p.EffectiveAt = at.UTC()
	return p
}

// EffectiveTime implements Versioned.
func (p Project) EffectiveTime() time.Time { return p.EffectiveAt }

// VersionNumber implements Versioned.
func (p Project) VersionNumber() int64 { return p.Version }

// successor copies p as an unsaved version effective at now.
func (p Project) successor(now time.Time) Project {
	p.Status = NormalizeStatus(p.Status)
	p.Version = 0
	return p.WithEffectiveAt(now)
}
