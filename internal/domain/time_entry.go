package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EventType identifies what a time entry event records.
type EventType string

// EventType values.
const (
	EventStart    EventType = "start"
	EventStop     EventType = "stop"
	EventAnnotate EventType = "annotate"
)

// ParseEventType parses an event type string.
func ParseEventType(raw string) (EventType, error) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(raw))); t {
	case EventStart, EventStop, EventAnnotate:
		return t, nil
	default:
		return "", ErrInvalidEventType
	}
}

// TimeEntryEvent is one immutable entry in the time tracking log.
// ID is zero until the store assigns it.
type TimeEntryEvent struct {
	ID           int64
	TaskID       TaskID
	Type         EventType
	At           time.Time
	StartEventID int64
	Payload      string
}

// NewStartEvent opens an interval for taskID.
func NewStartEvent(taskID TaskID, at time.Time) TimeEntryEvent {
	return TimeEntryEvent{TaskID: taskID, Type: EventStart, At: at.UTC()}
}

// NewStopEvent closes the interval opened by startEventID.
func NewStopEvent(taskID TaskID, startEventID int64, at time.Time) TimeEntryEvent {
	return TimeEntryEvent{TaskID: taskID, Type: EventStop, At: at.UTC(), StartEventID: startEventID}
}

// NewAnnotateEvent attaches a note to the interval opened by startEventID.
func NewAnnotateEvent(taskID TaskID, startEventID int64, note string, at time.Time) TimeEntryEvent {
	return TimeEntryEvent{
		TaskID:       taskID,
		Type:         EventAnnotate,
		At:           at.UTC(),
		StartEventID: startEventID,
		Payload:      strings.TrimSpace(note),
	}
}

// Validate checks the structural rules of a single event.
func (e TimeEntryEvent) Validate() error {
	if e.TaskID <= 0 {
		return ErrInvalidID
	}
	switch e.Type {
	case EventStart:
		if e.StartEventID != 0 {
			return fmt.Errorf("%w: start event must not reference a start", ErrInvalidEvent)
		}
	case EventStop, EventAnnotate:
		if e.StartEventID <= 0 {
			return fmt.Errorf("%w: %s event requires a start event id", ErrInvalidEvent, e.Type)
		}
	default:
		return ErrInvalidEventType
	}
	if e.Payload != "" && e.Type != EventAnnotate {
		return fmt.Errorf("%w: payload is only allowed on annotate events", ErrInvalidEvent)
	}
	return nil
}

// TimeEntry is an interval derived from a Start event and its closing Stop, if any.
type TimeEntry struct {
	TaskID          TaskID
	StartEventID    int64
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int64
}

// IsRunning reports whether the interval is still open.
func (e TimeEntry) IsRunning() bool {
	return e.EndTime == nil
}

// ElapsedSeconds returns the closed duration, or the time since start for a running interval.
func (e TimeEntry) ElapsedSeconds(now time.Time) int64 {
	if e.DurationSeconds != nil {
		return *e.DurationSeconds
	}
	if e.EndTime != nil {
		return wholeSeconds(e.EndTime.Sub(e.StartTime))
	}
	elapsed := wholeSeconds(now.Sub(e.StartTime))
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Overlaps reports whether the interval intersects the half-open range [start, end).
// A running interval extends indefinitely.
func (e TimeEntry) Overlaps(start, end time.Time) bool {
	if !e.StartTime.Before(end) {
		return false
	}
	return e.EndTime == nil || e.EndTime.After(start)
}

// NewTimeEntry builds an interval from a start event and an optional stop event.
func NewTimeEntry(start TimeEntryEvent, stop *TimeEntryEvent) (TimeEntry, error) {
	entry := TimeEntry{
		TaskID:       start.TaskID,
		StartEventID: start.ID,
		StartTime:    start.At.UTC(),
	}
	if stop == nil {
		return entry, nil
	}
	if stop.At.Before(start.At) {
		return TimeEntry{}, fmt.Errorf("%w: start event %d", ErrStopBeforeStart, start.ID)
	}
	end := stop.At.UTC()
	duration := wholeSeconds(end.Sub(entry.StartTime))
	entry.EndTime = &end
	entry.DurationSeconds = &duration
	return entry, nil
}

// StartRef identifies a start event within its task. A Stop closes a Start only
// when both carry the same task.
type StartRef struct {
	TaskID       TaskID
	StartEventID int64
}

// DeriveTimeEntries reconstructs intervals from a set of events.
// Events are grouped by task; the closing Stop of a Start is the Stop of the same task
// with the smallest id that references it. Later Stops for the same Start are ignored.
// Annotate events never affect intervals. Entries are returned newest start first.
func DeriveTimeEntries(events []TimeEntryEvent) ([]TimeEntry, error) {
	starts := make([]TimeEntryEvent, 0, len(events))
	closing := map[StartRef]TimeEntryEvent{}
	for _, ev := range events {
		switch ev.Type {
		case EventStart:
			starts = append(starts, ev)
		case EventStop:
			ref := StartRef{TaskID: ev.TaskID, StartEventID: ev.StartEventID}
			if cur, ok := closing[ref]; !ok || ev.ID < cur.ID {
				closing[ref] = ev
			}
		}
	}

	out := make([]TimeEntry, 0, len(starts))
	for _, start := range starts {
		var stop *TimeEntryEvent
		if ev, ok := closing[StartRef{TaskID: start.TaskID, StartEventID: start.ID}]; ok {
			stop = &ev
		}
		entry, err := NewTimeEntry(start, stop)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	SortEntries(out)
	return out, nil
}

// SortEntries orders entries by start time descending, then start event id descending.
func SortEntries(entries []TimeEntry) {
	slices.SortStableFunc(entries, func(a, b TimeEntry) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		switch {
		case a.StartEventID > b.StartEventID:
			return -1
		case a.StartEventID < b.StartEventID:
			return 1
		default:
			return 0
		}
	})
}

// AnnotationsByStart groups annotate payloads by the start event they reference, oldest first.
func AnnotationsByStart(events []TimeEntryEvent) map[int64][]string {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b TimeEntryEvent) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	out := map[int64][]string{}
	for _, ev := range sorted {
		if ev.Type != EventAnnotate || ev.Payload == "" {
			continue
		}
		out[ev.StartEventID] = append(out[ev.StartEventID], ev.Payload)
	}
	return out
}

// TotalDuration sums closed intervals only.
func TotalDuration(entries []TimeEntry) int64 {
	var total int64
	for _, e := range entries {
		if e.DurationSeconds != nil {
			total += *e.DurationSeconds
		}
	}
	return total
}

// FormatDuration renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

func wholeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
