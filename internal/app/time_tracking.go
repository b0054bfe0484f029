package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// TaskGuard vets a task inside the transaction that is about to write its events.
type TaskGuard func(ctx context.Context, repos Repositories, taskID domain.TaskID) error

// TrackerOption configures a TimeTrackingService.
type TrackerOption func(*TimeTrackingService)

// WithTaskGuard runs guard before StartTimer and AddManualEntry append anything.
func WithTaskGuard(guard TaskGuard) TrackerOption {
	return func(s *TimeTrackingService) {
		s.guard = guard
	}
}

// TimeTrackingService enforces the single running timer rule over the event log.
// Every read-then-append sequence runs inside one Store.InTx; that transaction is the
// only critical section, shared with every other writer of stop events.
type TimeTrackingService struct {
	store Store
	clock Clock
	guard TaskGuard
}

// NewTimeTrackingService constructs a TimeTrackingService.
func NewTimeTrackingService(store Store, clock Clock, opts ...TrackerOption) *TimeTrackingService {
	if clock == nil {
		clock = time.Now
	}
	s := &TimeTrackingService{store: store, clock: clock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TimeTrackingService) checkTask(ctx context.Context, repos Repositories, taskID domain.TaskID) error {
	if s.guard == nil {
		return nil
	}
	return s.guard(ctx, repos, taskID)
}

// StartTimer stops every running interval, including one on taskID itself, then opens a new one.
func (s *TimeTrackingService) StartTimer(ctx context.Context, taskID domain.TaskID) (domain.TimeEntryEvent, error) {
	if taskID <= 0 {
		return domain.TimeEntryEvent{}, domain.ErrInvalidID
	}
	now := s.clock().UTC()
	var started domain.TimeEntryEvent
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		if err := s.checkTask(ctx, repos, taskID); err != nil {
			return err
		}
		running, err := repos.Entries.FindRunningEntries(ctx)
		if err != nil {
			return err
		}
		// Other tasks first, then the task's own interval.
		for _, own := range []bool{false, true} {
			for _, entry := range running {
				if (entry.TaskID == taskID) != own {
					continue
				}
				if _, err := stopEntry(ctx, repos.Entries, entry, now); err != nil {
					return err
				}
			}
		}
		started, err = saveEvent(ctx, repos.Entries, domain.NewStartEvent(taskID, now))
		return err
	})
	if err != nil {
		return domain.TimeEntryEvent{}, err
	}
	return started, nil
}

// StopTimer closes the running interval of taskID. It reports false when nothing was running.
func (s *TimeTrackingService) StopTimer(ctx context.Context, taskID domain.TaskID) (domain.TimeEntryEvent, bool, error) {
	if taskID <= 0 {
		return domain.TimeEntryEvent{}, false, domain.ErrInvalidID
	}
	var (
		stopped domain.TimeEntryEvent
		ok      bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		stopped, ok, err = stopTaskTimer(ctx, repos.Entries, taskID, s.clock().UTC())
		return err
	})
	if err != nil {
		return domain.TimeEntryEvent{}, false, err
	}
	return stopped, ok, nil
}

// GetRunningTask returns the task whose timer is running.
func (s *TimeTrackingService) GetRunningTask(ctx context.Context) (domain.TaskID, bool, error) {
	entry, ok, err := s.runningEntry(ctx)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.TaskID, true, nil
}

// RunningEntry returns the single running interval, if any.
func (s *TimeTrackingService) RunningEntry(ctx context.Context) (domain.TimeEntry, bool, error) {
	return s.runningEntry(ctx)
}

func (s *TimeTrackingService) runningEntry(ctx context.Context) (domain.TimeEntry, bool, error) {
	running, err := s.store.Repositories().Entries.FindRunningEntries(ctx)
	if err != nil {
		return domain.TimeEntry{}, false, err
	}
	switch len(running) {
	case 0:
		return domain.TimeEntry{}, false, nil
	case 1:
		return running[0], true, nil
	default:
		return domain.TimeEntry{}, false, fmt.Errorf("%w: %d intervals open", domain.ErrMultipleRunning, len(running))
	}
}

// IsTaskRunning reports whether taskID has an open interval.
func (s *TimeTrackingService) IsTaskRunning(ctx context.Context, taskID domain.TaskID) (bool, error) {
	_, ok, err := s.store.Repositories().Entries.FindRunningEntryByTask(ctx, taskID)
	return ok, err
}

// AddManualEntry records a closed interval for taskID, with an optional note.
func (s *TimeTrackingService) AddManualEntry(ctx context.Context, taskID domain.TaskID, start, end time.Time, note string) (domain.TimeEntry, error) {
	if taskID <= 0 {
		return domain.TimeEntry{}, domain.ErrInvalidID
	}
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return domain.TimeEntry{}, domain.ErrInvalidRange
	}
	var entry domain.TimeEntry
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		if err := s.checkTask(ctx, repos, taskID); err != nil {
			return err
		}
		overlapping, err := repos.Entries.FindOverlappingEntries(ctx, taskID, start, end)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return fmt.Errorf("%w: start event %d", domain.ErrEntryOverlap, overlapping[0].StartEventID)
		}
		startEv, err := saveEvent(ctx, repos.Entries, domain.NewStartEvent(taskID, start))
		if err != nil {
			return err
		}
		stopEv, err := saveEvent(ctx, repos.Entries, domain.NewStopEvent(taskID, startEv.ID, end))
		if err != nil {
			return err
		}
		if note := domain.NewAnnotateEvent(taskID, startEv.ID, note, end); note.Payload != "" {
			if _, err := saveEvent(ctx, repos.Entries, note); err != nil {
				return err
			}
		}
		entry, err = domain.NewTimeEntry(startEv, &stopEv)
		return err
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// StopAllTimers closes every running interval and returns the stop events written.
func (s *TimeTrackingService) StopAllTimers(ctx context.Context) ([]domain.TimeEntryEvent, error) {
	now := s.clock().UTC()
	var stops []domain.TimeEntryEvent
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		running, err := repos.Entries.FindRunningEntries(ctx)
		if err != nil {
			return err
		}
		for _, entry := range running {
			ev, err := stopEntry(ctx, repos.Entries, entry, now)
			if err != nil {
				return err
			}
			stops = append(stops, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stops, nil
}

// stopTaskTimer closes the running interval of taskID inside an open transaction.
func stopTaskTimer(ctx context.Context, entries TimeEntryRepository, taskID domain.TaskID, now time.Time) (domain.TimeEntryEvent, bool, error) {
	running, ok, err := entries.FindRunningEntryByTask(ctx, taskID)
	if err != nil || !ok {
		return domain.TimeEntryEvent{}, false, err
	}
	ev, err := stopEntry(ctx, entries, running, now)
	if err != nil {
		return domain.TimeEntryEvent{}, false, err
	}
	return ev, true, nil
}

// stopEntry appends the stop event for a running interval.
// A stop never precedes its start, even when the clock stepped backwards.
func stopEntry(ctx context.Context, entries TimeEntryRepository, entry domain.TimeEntry, now time.Time) (domain.TimeEntryEvent, error) {
	at := now
	if at.Before(entry.StartTime) {
		at = entry.StartTime
	}
	return saveEvent(ctx, entries, domain.NewStopEvent(entry.TaskID, entry.StartEventID, at))
}

// saveEvent validates ev before appending it. Repositories store whatever they are given.
func saveEvent(ctx context.Context, entries TimeEntryRepository, ev domain.TimeEntryEvent) (domain.TimeEntryEvent, error) {
	if err := ev.Validate(); err != nil {
		return domain.TimeEntryEvent{}, err
	}
	return entries.SaveEvent(ctx, ev)
}
