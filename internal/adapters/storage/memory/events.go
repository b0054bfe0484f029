package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// eventLog is the append-only time entry log plus the indexes derived from it.
type eventLog struct {
	rows   []domain.TimeEntryEvent
	nextID int64

	pos     map[int64]int             // event id -> row
	starts  map[domain.TaskID][]int64 // task -> start event ids
	closing map[domain.StartRef]int64 // task + start id -> smallest stop id of that task
	refs    map[int64][]int64         // start id -> ids of events referencing it
	running map[int64]struct{}        // start ids without a closing stop
}

func newEventLog() *eventLog {
	l := &eventLog{}
	l.reset()
	return l
}

func (l *eventLog) reset() {
	l.pos = map[int64]int{}
	l.starts = map[domain.TaskID][]int64{}
	l.closing = map[domain.StartRef]int64{}
	l.refs = map[int64][]int64{}
	l.running = map[int64]struct{}{}
}

func (l *eventLog) append(ev domain.TimeEntryEvent) domain.TimeEntryEvent {
	l.nextID++
	ev.ID = l.nextID
	ev.At = ev.At.UTC()
	l.rows = append(l.rows, ev)
	l.index(ev, len(l.rows)-1)
	return ev
}

func (l *eventLog) index(ev domain.TimeEntryEvent, pos int) {
	l.pos[ev.ID] = pos
	switch ev.Type {
	case domain.EventStart:
		l.starts[ev.TaskID] = append(l.starts[ev.TaskID], ev.ID)
		if _, closed := l.closing[domain.StartRef{TaskID: ev.TaskID, StartEventID: ev.ID}]; !closed {
			l.running[ev.ID] = struct{}{}
		}
	case domain.EventStop:
		ref := domain.StartRef{TaskID: ev.TaskID, StartEventID: ev.StartEventID}
		if cur, ok := l.closing[ref]; !ok || ev.ID < cur {
			l.closing[ref] = ev.ID
		}
		if start, ok := l.event(ev.StartEventID); ok && start.Type == domain.EventStart && start.TaskID == ev.TaskID {
			delete(l.running, ev.StartEventID)
		}
		l.refs[ev.StartEventID] = append(l.refs[ev.StartEventID], ev.ID)
	case domain.EventAnnotate:
		l.refs[ev.StartEventID] = append(l.refs[ev.StartEventID], ev.ID)
	}
}

// truncate discards rows beyond n. Event ids are not reused.
func (l *eventLog) truncate(n int) {
	if n >= len(l.rows) {
		return
	}
	l.rows = l.rows[:n]
	l.reset()
	for i, ev := range l.rows {
		l.index(ev, i)
	}
}

func (l *eventLog) event(id int64) (domain.TimeEntryEvent, bool) {
	pos, ok := l.pos[id]
	if !ok {
		return domain.TimeEntryEvent{}, false
	}
	return l.rows[pos], true
}

// entry derives the interval opened by startID.
func (l *eventLog) entry(startID int64) (domain.TimeEntry, bool, error) {
	start, ok := l.event(startID)
	if !ok || start.Type != domain.EventStart {
		return domain.TimeEntry{}, false, nil
	}
	var stop *domain.TimeEntryEvent
	if stopID, closed := l.closing[domain.StartRef{TaskID: start.TaskID, StartEventID: startID}]; closed {
		ev, _ := l.event(stopID)
		stop = &ev
	}
	entry, err := domain.NewTimeEntry(start, stop)
	if err != nil {
		return domain.TimeEntry{}, false, err
	}
	return entry, true, nil
}

func (l *eventLog) collect(startIDs []int64, keep func(domain.TimeEntry) bool) ([]domain.TimeEntry, error) {
	out := make([]domain.TimeEntry, 0, len(startIDs))
	for _, id := range startIDs {
		entry, ok, err := l.entry(id)
		if err != nil {
			return nil, err
		}
		if ok && (keep == nil || keep(entry)) {
			out = append(out, entry)
		}
	}
	domain.SortEntries(out)
	return out, nil
}

func (l *eventLog) allStarts() []int64 {
	var ids []int64
	for _, starts := range l.starts {
		ids = append(ids, starts...)
	}
	return ids
}

type entryRepo struct {
	store *Store
	inTx  bool
}

// SaveEvent appends an event and assigns its id.
func (r entryRepo) SaveEvent(_ context.Context, ev domain.TimeEntryEvent) (domain.TimeEntryEvent, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.append(ev), nil
}

func (r entryRepo) FindRunningEntries(_ context.Context) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	ids := make([]int64, 0, len(r.store.events.running))
	for id := range r.store.events.running {
		ids = append(ids, id)
	}
	return r.store.events.collect(ids, nil)
}

func (r entryRepo) FindRunningEntryByTask(_ context.Context, taskID domain.TaskID) (domain.TimeEntry, bool, error) {
	defer r.store.lock(r.inTx)()
	var ids []int64
	for _, id := range r.store.events.starts[taskID] {
		if _, ok := r.store.events.running[id]; ok {
			ids = append(ids, id)
		}
	}
	entries, err := r.store.events.collect(ids, nil)
	if err != nil || len(entries) == 0 {
		return domain.TimeEntry{}, false, err
	}
	return entries[0], true, nil
}

func (r entryRepo) FindEntriesByTask(_ context.Context, taskID domain.TaskID) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.collect(r.store.events.starts[taskID], nil)
}

func (r entryRepo) FindEntriesByTaskAndPeriod(_ context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.collect(r.store.events.starts[taskID], startsWithin(start, end))
}

func (r entryRepo) FindOverlappingEntries(_ context.Context, taskID domain.TaskID, start, end time.Time) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.collect(r.store.events.starts[taskID], func(e domain.TimeEntry) bool {
		return e.Overlaps(start, end)
	})
}

func (r entryRepo) FindEntriesByProject(_ context.Context, projectID domain.ProjectID) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	var ids []int64
	for _, task := range r.store.tasks.currentAll(func(t domain.Task) bool { return t.ProjectID == projectID }) {
		ids = append(ids, r.store.events.starts[task.ID]...)
	}
	return r.store.events.collect(ids, nil)
}

func (r entryRepo) FindEntriesByPeriod(_ context.Context, start, end time.Time) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.collect(r.store.events.allStarts(), startsWithin(start, end))
}

func (r entryRepo) CountEntriesByTask(_ context.Context, taskID domain.TaskID) (int, error) {
	defer r.store.lock(r.inTx)()
	return len(r.store.events.starts[taskID]), nil
}

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

func (r entryRepo) FindEntryByStartEventID(_ context.Context, startID int64) (domain.TimeEntry, bool, error) {
	defer r.store.lock(r.inTx)()
	return r.store.events.entry(startID)
}

func (r entryRepo) FindRecentEntries(_ context.Context, limit int) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	entries, err := r.store.events.collect(r.store.events.allStarts(), nil)
	return firstN(entries, limit), err
}

func (r entryRepo) FindRecentEntriesByTask(_ context.Context, taskID domain.TaskID, limit int) ([]domain.TimeEntry, error) {
	defer r.store.lock(r.inTx)()
	entries, err := r.store.events.collect(r.store.events.starts[taskID], nil)
	return firstN(entries, limit), err
}

func (r entryRepo) FindEventsByStart(_ context.Context, startID int64) ([]domain.TimeEntryEvent, error) {
	defer r.store.lock(r.inTx)()
	start, ok := r.store.events.event(startID)
	if !ok || start.Type != domain.EventStart {
		return nil, nil
	}
	out := []domain.TimeEntryEvent{start}
	for _, id := range r.store.events.refs[startID] {
		ev, _ := r.store.events.event(id)
		out = append(out, ev)
	}
	slices.SortFunc(out, func(a, b domain.TimeEntryEvent) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func startsWithin(start, end time.Time) func(domain.TimeEntry) bool {
	return func(e domain.TimeEntry) bool {
		return !e.StartTime.Before(start) && !e.StartTime.After(end)
	}
}

func firstN(entries []domain.TimeEntry, limit int) []domain.TimeEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
