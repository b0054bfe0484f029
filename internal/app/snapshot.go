package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// SnapshotVersion identifies the export document format.
const SnapshotVersion = "tikk.snapshot.v1"

// Snapshot is a full export: every version of every project and task, plus the raw event log.
type Snapshot struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Projects   []SnapshotProject  `json:"projects"`
	Tasks      []SnapshotTask     `json:"tasks"`
	Events     []SnapshotEvent    `json:"events"`
	Entries    []SnapshotInterval `json:"entries"`
}

// SnapshotProject is one project version.
type SnapshotProject struct {
	ID          domain.ProjectID `json:"id"`
	Version     int64            `json:"version"`
	Name        string           `json:"name"`
	Status      domain.Status    `json:"status"`
	EffectiveAt time.Time        `json:"effective_at"`
}

// SnapshotTask is one task version.
type SnapshotTask struct {
	ID          domain.TaskID    `json:"id"`
	Version     int64            `json:"version"`
	ProjectID   domain.ProjectID `json:"project_id"`
	Name        string           `json:"name"`
	Status      domain.Status    `json:"status"`
	EffectiveAt time.Time        `json:"effective_at"`
}

// SnapshotEvent is one time entry event.
type SnapshotEvent struct {
	ID           int64            `json:"id"`
	TaskID       domain.TaskID    `json:"task_id"`
	Type         domain.EventType `json:"type"`
	At           time.Time        `json:"at"`
	StartEventID int64            `json:"start_event_id,omitempty"`
	Payload      string           `json:"payload,omitempty"`
}

// SnapshotInterval is one derived interval, included so exports are readable without replaying events.
type SnapshotInterval struct {
	TaskID          domain.TaskID `json:"task_id"`
	StartEventID    int64         `json:"start_event_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	DurationSeconds *int64        `json:"duration_seconds,omitempty"`
}

// ExportSnapshot reads the whole store inside one transaction.
func (s *Service) ExportSnapshot(ctx context.Context, includeArchived bool) (Snapshot, error) {
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Projects:   []SnapshotProject{},
		Tasks:      []SnapshotTask{},
		Events:     []SnapshotEvent{},
		Entries:    []SnapshotInterval{},
	}
	err := s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		projects, err := repos.Projects.FindAll(ctx)
		if err != nil {
			return err
		}
		for _, project := range projects {
			if !includeArchived && !project.IsActive() {
				continue
			}
			history, err := repos.Projects.FindHistory(ctx, project.ID)
			if err != nil {
				return err
			}
			for _, version := range history {
				snap.Projects = append(snap.Projects, snapshotProjectFromDomain(version))
			}

			tasks, err := repos.Tasks.FindByProjectID(ctx, project.ID)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				if !includeArchived && !task.IsActive() {
					continue
				}
				if err := appendTaskSnapshot(ctx, repos, task.ID, &snap); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("export snapshot: %w", err)
	}
	snap.sort()
	return snap, nil
}

func appendTaskSnapshot(ctx context.Context, repos Repositories, taskID domain.TaskID, snap *Snapshot) error {
	history, err := repos.Tasks.FindHistory(ctx, taskID)
	if err != nil {
		return err
	}
	for _, version := range history {
		snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(version))
	}
	entries, err := repos.Entries.FindEntriesByTask(ctx, taskID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		snap.Entries = append(snap.Entries, SnapshotInterval{
			TaskID:          entry.TaskID,
			StartEventID:    entry.StartEventID,
			StartTime:       entry.StartTime,
			EndTime:         entry.EndTime,
			DurationSeconds: entry.DurationSeconds,
		})
		events, err := repos.Entries.FindEventsByStart(ctx, entry.StartEventID)
		if err != nil {
			return err
		}
		for _, event := range events {
			snap.Events = append(snap.Events, snapshotEventFromDomain(event))
		}
	}
	return nil
}

// Validate checks that ids are unique and every event references an exported task and start.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %q", domain.ErrValidation, s.Version)
	}
	projectVersions := map[domain.ProjectID]map[int64]struct{}{}
	for _, p := range s.Projects {
		if p.ID <= 0 || p.Version <= 0 {
			return fmt.Errorf("%w: project %d version %d", domain.ErrInvalidID, p.ID, p.Version)
		}
		if projectVersions[p.ID] == nil {
			projectVersions[p.ID] = map[int64]struct{}{}
		}
		if _, dup := projectVersions[p.ID][p.Version]; dup {
			return fmt.Errorf("%w: duplicate project %d version %d", domain.ErrValidation, p.ID, p.Version)
		}
		projectVersions[p.ID][p.Version] = struct{}{}
	}
	tasks := map[domain.TaskID]struct{}{}
	for _, t := range s.Tasks {
		if t.ID <= 0 || t.Version <= 0 {
			return fmt.Errorf("%w: task %d version %d", domain.ErrInvalidID, t.ID, t.Version)
		}
		tasks[t.ID] = struct{}{}
	}
	starts := map[int64]struct{}{}
	for _, e := range s.Events {
		if e.Type == domain.EventStart {
			starts[e.ID] = struct{}{}
		}
	}
	for _, e := range s.Events {
		if _, ok := tasks[e.TaskID]; !ok {
			return fmt.Errorf("%w: event %d references unknown task %d", domain.ErrValidation, e.ID, e.TaskID)
		}
		if e.Type == domain.EventStart {
			continue
		}
		if _, ok := starts[e.StartEventID]; !ok {
			return errors.Join(domain.ErrDataIntegrity, fmt.Errorf("event %d references missing start %d", e.ID, e.StartEventID))
		}
	}
	return s.validateIntervals()
}

// validateIntervals replays the events and requires Entries to match the derived intervals.
func (s *Snapshot) validateIntervals() error {
	events := make([]domain.TimeEntryEvent, 0, len(s.Events))
	for _, e := range s.Events {
		events = append(events, domain.TimeEntryEvent{ID: e.ID, TaskID: e.TaskID, Type: e.Type, At: e.At, StartEventID: e.StartEventID, Payload: e.Payload})
	}
	derived, err := domain.DeriveTimeEntries(events)
	if err != nil {
		return err
	}
	if len(derived) != len(s.Entries) {
		return fmt.Errorf("%w: %d entries exported, %d derived from events", domain.ErrDataIntegrity, len(s.Entries), len(derived))
	}
	byStart := make(map[int64]domain.TimeEntry, len(derived))
	for _, entry := range derived {
		byStart[entry.StartEventID] = entry
	}
	for _, exported := range s.Entries {
		entry, ok := byStart[exported.StartEventID]
		if !ok || entry.TaskID != exported.TaskID || !entry.StartTime.Equal(exported.StartTime) ||
			!sameTime(entry.EndTime, exported.EndTime) || !sameSeconds(entry.DurationSeconds, exported.DurationSeconds) {
			return fmt.Errorf("%w: entry %d does not match its events", domain.ErrDataIntegrity, exported.StartEventID)
		}
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameSeconds(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Snapshot) sort() {
	slices.SortFunc(s.Projects, func(a, b SnapshotProject) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Version, b.Version))
	})
	slices.SortFunc(s.Tasks, func(a, b SnapshotTask) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Version, b.Version))
	})
	slices.SortFunc(s.Events, func(a, b SnapshotEvent) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Entries, func(a, b SnapshotInterval) int { return cmp.Compare(a.StartEventID, b.StartEventID) })
}

func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{ID: p.ID, Version: p.Version, Name: p.Name, Status: p.Status, EffectiveAt: p.EffectiveAt.UTC()}
}

func snapshotTaskFromDomain(t domain.Task) SnapshotTask {
	return SnapshotTask{ID: t.ID, Version: t.Version, ProjectID: t.ProjectID, Name: t.Name, Status: t.Status, EffectiveAt: t.EffectiveAt.UTC()}
}

func snapshotEventFromDomain(e domain.TimeEntryEvent) SnapshotEvent {
	return SnapshotEvent{ID: e.ID, TaskID: e.TaskID, Type: e.Type, At: e.At.UTC(), StartEventID: e.StartEventID, Payload: e.Payload}
}
