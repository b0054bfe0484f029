package domain

import (
	"strconv"
	"strings"
)

// ProjectID identifies a project across all of its versions.
type ProjectID int64

// TaskID identifies a task across all of its versions.
type TaskID int64

// NewProjectID validates a raw project id.
func NewProjectID(v int64) (ProjectID, error) {
	if v <= 0 {
		return 0, ErrInvalidID
	}
	return ProjectID(v), nil
}

// NewTaskID validates a raw task id.
func NewTaskID(v int64) (TaskID, error) {
	if v <= 0 {
		return 0, ErrInvalidID
	}
	return TaskID(v), nil
}

// ParseProjectID parses a decimal project id.
func ParseProjectID(raw string) (ProjectID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return NewProjectID(v)
}

// ParseTaskID parses a decimal task id.
func ParseTaskID(raw string) (TaskID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return NewTaskID(v)
}

// Int64 returns the raw id value.
func (id ProjectID) Int64() int64 { return int64(id) }

// String returns the decimal form.
func (id ProjectID) String() string { return strconv.FormatInt(int64(id), 10) }

// Int64 returns the raw id value.
func (id TaskID) Int64() int64 { return int64(id) }

// String returns the decimal form.
func (id TaskID) String() string { return strconv.FormatInt(int64(id), 10) }

// Status is the lifecycle status shared by projects and tasks.
type Status string

// Status values.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// NormalizeStatus maps the zero value to StatusActive and lowercases the rest.
func NormalizeStatus(s Status) Status {
	s = Status(strings.ToLower(strings.TrimSpace(string(s))))
	if s == "" {
		return StatusActive
	}
	return s
}

// ParseStatus parses a status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusArchived:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// String returns the wire form.
func (s Status) String() string { return string(s) }

// maxNameLength bounds project and task names, in characters.
const maxNameLength = 255

// normalizeName trims and validates an entity name.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
