package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/basket/taskvault/internal/coordinator"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// TaskService adds task-specific bulk and soft-delete operations on top of
// the generic scoped facade.
type TaskService struct {
	*ScopedService[domain.Task]

	crdtTasks *crdtrepo.ScopedRepo[domain.Task]
}

func newTaskService(store *sqliterepo.Store, mgr *docstore.Manager, coord *coordinator.Coordinator, order BackendOrder, logger *slog.Logger) *TaskService {
	crdtTasks := crdtrepo.NewTaskRepo(mgr)
	scoped := &ScopedService[domain.Task]{
		kind:   "task",
		repo:   buildScoped[domain.Task](order, sqliterepo.NewTaskRepo(store), crdtTasks),
		logger: logger,
		meta: entityMeta[domain.Task]{
			id:    func(t *domain.Task) string { return t.ID },
			setID: func(t *domain.Task, id string) { t.ID = id },
			place: func(t *domain.Task, projectID string) { t.ProjectID = projectID },
			stamp: func(t *domain.Task, by domain.UserID, at time.Time, created bool) {
				if created {
					t.CreatedAt = at
					if t.Status == "" {
						t.Status = domain.TaskStatusTodo
					}
				}
				t.UpdatedBy = by
				t.UpdatedAt = at
			},
			validate: validateTask,
		},
		deleteOp:  coord.DeleteTask,
		restoreOp: coord.RestoreTask,
	}
	return &TaskService{ScopedService: scoped, crdtTasks: crdtTasks}
}

func validateTask(t *domain.Task) error {
	if t.Title == "" {
		return domain.Ef(domain.KindValidation, "service.task", "task title is required")
	}
	if t.ListID == "" {
		return domain.Ef(domain.KindValidation, "service.task", "task must belong to a list")
	}
	switch t.Status {
	case "", domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusDone:
	default:
		return domain.Ef(domain.KindValidation, "service.task", "unknown status %q", t.Status)
	}
	return nil
}

// ActiveTasks lists tasks visible to normal reads.
func (s *TaskService) ActiveTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	return s.List(ctx, projectID)
}

// DeletedTasks lists soft-deleted tasks still held in the project document.
func (s *TaskService) DeletedTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	tasks, err := s.crdtTasks.FindDeleted(ctx, projectID)
	if err != nil {
		return nil, flatten(err)
	}
	return tasks, nil
}

// MarkAllTasksDeleted soft-deletes every active task through the save
// fan-out, so both backends record the flag identically. Returns the number
// of tasks affected.
func (s *TaskService) MarkAllTasksDeleted(ctx context.Context, projectID string, by domain.UserID) (int, error) {
	active, err := s.repo.FindAll(ctx, projectID)
	if err != nil {
		return 0, flatten(err)
	}
	now := time.Now().UTC()
	for _, t := range active {
		t.Deleted = true
		t.UpdatedBy = by
		t.UpdatedAt = now
		if err := s.repo.Save(ctx, projectID, t); err != nil {
			return 0, flatten(err)
		}
	}
	s.logger.Info("all tasks marked deleted", "project_id", projectID, "count", len(active))
	return len(active), nil
}

// RestoreAllTasks reverses MarkAllTasksDeleted for every soft-deleted task.
func (s *TaskService) RestoreAllTasks(ctx context.Context, projectID string, by domain.UserID) (int, error) {
	deleted, err := s.crdtTasks.FindDeleted(ctx, projectID)
	if err != nil {
		return 0, flatten(err)
	}
	now := time.Now().UTC()
	for _, t := range deleted {
		t.Deleted = false
		t.UpdatedBy = by
		t.UpdatedAt = now
		if err := s.repo.Save(ctx, projectID, t); err != nil {
			return 0, flatten(err)
		}
	}
	s.logger.Info("all tasks restored", "project_id", projectID, "count", len(deleted))
	return len(deleted), nil
}

// TasksByList lists active tasks of one list, served from the document
// aggregate's search order.
func (s *TaskService) TasksByList(ctx context.Context, projectID, listID string) ([]*domain.Task, error) {
	all, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Task
	for _, t := range all {
		if t.ListID == listID {
			out = append(out, t)
		}
	}
	return out, nil
}
