package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// ProjectManagementService holds cross-entity project policies.
type ProjectManagementService struct {
	store Store
	clock Clock
}

// NewProjectManagementService constructs a ProjectManagementService.
func NewProjectManagementService(store Store, clock Clock) *ProjectManagementService {
	if clock == nil {
		clock = time.Now
	}
	return &ProjectManagementService{store: store, clock: clock}
}

// CanArchiveProject reports whether the project has no active tasks.
func (s *ProjectManagementService) CanArchiveProject(ctx context.Context, id domain.ProjectID) (bool, error) {
	active, err := s.store.Repositories().Tasks.FindActiveByProjectID(ctx, id)
	if err != nil {
		return false, err
	}
	return len(active) == 0, nil
}

// ArchiveProjectWithTasks archives every active task of the project, then the project, atomically.
// Timers running on the archived tasks are stopped first.
func (s *ProjectManagementService) ArchiveProjectWithTasks(ctx context.Context, id domain.ProjectID) error {
	now := s.clock().UTC()
	return s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		return archiveProjectWithTasks(ctx, repos, id, now)
	})
}

func archiveProjectWithTasks(ctx context.Context, repos Repositories, id domain.ProjectID, now time.Time) error {
	project, ok, err := repos.Projects.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrProjectNotFound, id)
	}
	if !project.IsActive() {
		return fmt.Errorf("project %d: %w", id, domain.ErrAlreadyArchived)
	}
	tasks, err := repos.Tasks.FindActiveByProjectID(ctx, id)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if _, _, err := stopTaskTimer(ctx, repos.Entries, task.ID, now); err != nil {
			return err
		}
		archived, err := task.Archive(now)
		if err != nil {
			return err
		}
		if _, err := repos.Tasks.Save(ctx, archived); err != nil {
			return fmt.Errorf("archive task %d: %w", task.ID, err)
		}
	}
	archived, err := project.Archive(now)
	if err != nil {
		return err
	}
	saved, err := repos.Projects.Save(ctx, archived)
	if err != nil {
		return fmt.Errorf("archive project %d: %w", id, err)
	}
	return validateProjectHierarchy(ctx, repos, saved)
}

// IsProjectNameUnique reports whether no current project other than exclude carries name.
func (s *ProjectManagementService) IsProjectNameUnique(ctx context.Context, name string, exclude *domain.ProjectID) (bool, error) {
	return isProjectNameUnique(ctx, s.store.Repositories().Projects, name, exclude)
}

func isProjectNameUnique(ctx context.Context, projects ProjectRepository, name string, exclude *domain.ProjectID) (bool, error) {
	name = strings.TrimSpace(name)
	all, err := projects.FindAll(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range all {
		if exclude != nil && p.ID == *exclude {
			continue
		}
		if p.Name == name {
			return false, nil
		}
	}
	return true, nil
}

// ValidateProjectHierarchy checks that the project exists and that an archived project owns no active tasks.
func (s *ProjectManagementService) ValidateProjectHierarchy(ctx context.Context, project domain.Project) error {
	return validateProjectHierarchy(ctx, s.store.Repositories(), project)
}

func validateProjectHierarchy(ctx context.Context, repos Repositories, project domain.Project) error {
	ok, err := repos.Projects.Exists(ctx, project.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrProjectNotFound, project.ID)
	}
	if project.IsActive() {
		return nil
	}
	active, err := repos.Tasks.FindActiveByProjectID(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: archived project %d has %d active tasks", domain.ErrDataIntegrity, project.ID, len(active))
	}
	return nil
}
