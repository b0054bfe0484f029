package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

type projectRepo struct {
	store *Store
	inTx  bool
}

// Save appends a new version of the project.
func (r projectRepo) Save(_ context.Context, p domain.Project) (domain.Project, error) {
	if err := requireID(int64(p.ID)); err != nil {
		return domain.Project{}, err
	}
	defer r.store.lock(r.inTx)()
	p.Status = domain.NormalizeStatus(p.Status)
	p.EffectiveAt = p.EffectiveAt.UTC()
	r.store.nextProjectID = max(r.store.nextProjectID, int64(p.ID))
	return r.store.projects.append(p), nil
}

func (r projectRepo) FindByID(_ context.Context, id domain.ProjectID) (domain.Project, bool, error) {
	defer r.store.lock(r.inTx)()
	p, ok := r.store.projects.current(id)
	return p, ok, nil
}

func (r projectRepo) FindAll(_ context.Context) ([]domain.Project, error) {
	defer r.store.lock(r.inTx)()
	return r.store.projects.currentAll(nil), nil
}

func (r projectRepo) FindAllActive(ctx context.Context) ([]domain.Project, error) {
	return r.FindByStatus(ctx, domain.StatusActive)
}

func (r projectRepo) FindByStatus(_ context.Context, status domain.Status) ([]domain.Project, error) {
	defer r.store.lock(r.inTx)()
	status = domain.NormalizeStatus(status)
	return r.store.projects.currentAll(func(p domain.Project) bool { return p.Status == status }), nil
}

func (r projectRepo) FindByNamePrefix(_ context.Context, prefix string) ([]domain.Project, error) {
	defer r.store.lock(r.inTx)()
	prefix = strings.TrimSpace(prefix)
	return r.store.projects.currentAll(func(p domain.Project) bool { return hasPrefix(p.Name, prefix) }), nil
}

func (r projectRepo) FindHistory(_ context.Context, id domain.ProjectID) ([]domain.Project, error) {
	defer r.store.lock(r.inTx)()
	return r.store.projects.history(id), nil
}

func (r projectRepo) FindAtTime(_ context.Context, id domain.ProjectID, at time.Time) (domain.Project, bool, error) {
	defer r.store.lock(r.inTx)()
	p, ok := r.store.projects.at(id, at)
	return p, ok, nil
}

// NextID reserves a project id. Reserved ids are never handed out twice.
func (r projectRepo) NextID(_ context.Context) (domain.ProjectID, error) {
	defer r.store.lock(r.inTx)()
	r.store.nextProjectID++
	return domain.ProjectID(r.store.nextProjectID), nil
}

func (r projectRepo) Exists(_ context.Context, id domain.ProjectID) (bool, error) {
	defer r.store.lock(r.inTx)()
	return r.store.projects.exists(id), nil
}

type taskRepo struct {
	store *Store
	inTx  bool
}

// Save appends a new version of the task.
func (r taskRepo) Save(_ context.Context, t domain.Task) (domain.Task, error) {
	if err := requireID(int64(t.ID)); err != nil {
		return domain.Task{}, err
	}
	defer r.store.lock(r.inTx)()
	t.Status = domain.NormalizeStatus(t.Status)
	t.EffectiveAt = t.EffectiveAt.UTC()
	r.store.nextTaskID = max(r.store.nextTaskID, int64(t.ID))
	return r.store.tasks.append(t), nil
}

func (r taskRepo) FindByID(_ context.Context, id domain.TaskID) (domain.Task, bool, error) {
	defer r.store.lock(r.inTx)()
	t, ok := r.store.tasks.current(id)
	return t, ok, nil
}

func (r taskRepo) FindAll(_ context.Context) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	return r.store.tasks.currentAll(nil), nil
}

func (r taskRepo) FindAllActive(ctx context.Context) ([]domain.Task, error) {
	return r.FindByStatus(ctx, domain.StatusActive)
}

func (r taskRepo) FindByStatus(_ context.Context, status domain.Status) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	status = domain.NormalizeStatus(status)
	return r.store.tasks.currentAll(func(t domain.Task) bool { return t.Status == status }), nil
}

func (r taskRepo) FindByNamePrefix(_ context.Context, prefix string) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	prefix = strings.TrimSpace(prefix)
	return r.store.tasks.currentAll(func(t domain.Task) bool { return hasPrefix(t.Name, prefix) }), nil
}

func (r taskRepo) FindHistory(_ context.Context, id domain.TaskID) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	return r.store.tasks.history(id), nil
}

func (r taskRepo) FindAtTime(_ context.Context, id domain.TaskID, at time.Time) (domain.Task, bool, error) {
	defer r.store.lock(r.inTx)()
	t, ok := r.store.tasks.at(id, at)
	return t, ok, nil
}

// NextID reserves a task id.
func (r taskRepo) NextID(_ context.Context) (domain.TaskID, error) {
	defer r.store.lock(r.inTx)()
	r.store.nextTaskID++
	return domain.TaskID(r.store.nextTaskID), nil
}

func (r taskRepo) Exists(_ context.Context, id domain.TaskID) (bool, error) {
	defer r.store.lock(r.inTx)()
	return r.store.tasks.exists(id), nil
}

func (r taskRepo) FindByProjectID(_ context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	return r.store.tasks.currentAll(func(t domain.Task) bool { return t.ProjectID == projectID }), nil
}

func (r taskRepo) FindByProjectIDOrdered(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	tasks, err := r.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return tasks, nil
}

func (r taskRepo) FindActiveByProjectID(_ context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	defer r.store.lock(r.inTx)()
	return r.store.tasks.currentAll(func(t domain.Task) bool {
		return t.ProjectID == projectID && t.IsActive()
	}), nil
}

func (r taskRepo) CountByProjectID(ctx context.Context, projectID domain.ProjectID) (int, error) {
	tasks, err := r.FindByProjectID(ctx, projectID)
	return len(tasks), err
}
