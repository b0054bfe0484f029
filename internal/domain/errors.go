package domain

import (
	"errors"
	"fmt"
)

// Root error categories. Every concrete error below wraps exactly one of them.
var (
	ErrValidation    = errors.New("validation")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrState         = errors.New("invalid state")
	ErrDataIntegrity = errors.New("data integrity")
)

var (
	ErrInvalidID        = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrInvalidName      = fmt.Errorf("%w: invalid name", ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidEventType = fmt.Errorf("%w: invalid event type", ErrValidation)
	ErrInvalidEvent     = fmt.Errorf("%w: invalid time entry event", ErrValidation)
	ErrInvalidRange     = fmt.Errorf("%w: start time must be before end time", ErrValidation)

	ErrProjectNotFound = fmt.Errorf("%w: project", ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("%w: task", ErrNotFound)

	ErrDuplicateName         = fmt.Errorf("%w: name already in use", ErrConflict)
	ErrEntryOverlap          = fmt.Errorf("%w: time entry overlaps an existing entry", ErrConflict)
	ErrProjectHasActiveTasks = fmt.Errorf("%w: project has active tasks", ErrConflict)
	ErrAlreadyArchived       = fmt.Errorf("%w: already archived", ErrConflict)
	ErrNotArchived           = fmt.Errorf("%w: not archived", ErrConflict)

	ErrArchivedRecord  = fmt.Errorf("%w: record is archived", ErrState)
	ErrArchivedProject = fmt.Errorf("%w: project is archived", ErrState)

	ErrMultipleRunning = fmt.Errorf("%w: more than one running timer", ErrDataIntegrity)
	ErrStopBeforeStart = fmt.Errorf("%w: stop event precedes its start", ErrDataIntegrity)
)

// ErrorKind names the category an error belongs to.
type ErrorKind string

// ErrorKind values.
const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindState         ErrorKind = "state"
	KindDataIntegrity ErrorKind = "data_integrity"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err into one of the root categories.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrDataIntegrity):
		return KindDataIntegrity
	default:
		return KindInternal
	}
}
