package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/basket/taskvault/internal/coordinator"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/repo"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// entityMeta gives the generic service access to one entity type's identity
// and audit fields.
type entityMeta[T any] struct {
	id       func(e *T) string
	setID    func(e *T, id string)
	place    func(e *T, projectID string)
	stamp    func(e *T, by domain.UserID, at time.Time, created bool)
	validate func(e *T) error
}

// ScopedService is the facade for one project-scoped entity type. Writes fan
// out through the unified repository; delete and restore go through the
// coordinator when the entity participates in cascades.
type ScopedService[T any] struct {
	kind   string
	repo   *repo.UnifiedScoped[T]
	meta   entityMeta[T]
	logger *slog.Logger

	deleteOp  func(ctx context.Context, projectID, id string, by domain.UserID, at time.Time) error
	restoreOp func(ctx context.Context, projectID, id string, by domain.UserID, at time.Time) error
}

// Create stamps audit fields, assigns an id when absent, and writes through
// every configured save backend.
func (s *ScopedService[T]) Create(ctx context.Context, projectID string, e *T, by domain.UserID) (*T, error) {
	if projectID == "" {
		return nil, domain.Ef(domain.KindValidation, "service."+s.kind+".create", "project id is required")
	}
	if err := s.meta.validate(e); err != nil {
		return nil, flatten(err)
	}
	if s.meta.id(e) == "" {
		s.meta.setID(e, uuid.NewString())
	}
	s.meta.place(e, projectID)
	s.meta.stamp(e, by, time.Now().UTC(), true)
	if err := s.repo.Save(ctx, projectID, e); err != nil {
		return nil, flatten(err)
	}
	s.logger.Info("entity created", "kind", s.kind, "id", s.meta.id(e), "project_id", projectID)
	return e, nil
}

func (s *ScopedService[T]) Get(ctx context.Context, projectID, id string) (*T, error) {
	e, err := s.repo.FindByID(ctx, projectID, id)
	if err != nil {
		return nil, flatten(err)
	}
	if e == nil {
		return nil, flatten(domain.Ef(domain.KindNotFound, "service."+s.kind+".get", "%s %s not found", s.kind, id))
	}
	return e, nil
}

func (s *ScopedService[T]) List(ctx context.Context, projectID string) ([]*T, error) {
	all, err := s.repo.FindAll(ctx, projectID)
	if err != nil {
		return nil, flatten(err)
	}
	return all, nil
}

// Update re-stamps the update audit fields and writes through the fan-out.
// The entity must already carry its id.
func (s *ScopedService[T]) Update(ctx context.Context, projectID string, e *T, by domain.UserID) (*T, error) {
	if s.meta.id(e) == "" {
		return nil, domain.Ef(domain.KindValidation, "service."+s.kind+".update", "%s id is required", s.kind)
	}
	if err := s.meta.validate(e); err != nil {
		return nil, flatten(err)
	}
	s.meta.place(e, projectID)
	s.meta.stamp(e, by, time.Now().UTC(), false)
	if err := s.repo.Save(ctx, projectID, e); err != nil {
		return nil, flatten(err)
	}
	return e, nil
}

// Delete routes through the coordinator when this entity cascades, otherwise
// through the repository fan-out.
func (s *ScopedService[T]) Delete(ctx context.Context, projectID, id string, by domain.UserID) error {
	if s.deleteOp != nil {
		return flatten(s.deleteOp(ctx, projectID, id, by, time.Now().UTC()))
	}
	return flatten(s.repo.Delete(ctx, projectID, id))
}

// Restore reverses a coordinated delete. Entities without a coordinator path
// reject restore.
func (s *ScopedService[T]) Restore(ctx context.Context, projectID, id string, by domain.UserID) error {
	if s.restoreOp == nil {
		return domain.Ef(domain.KindValidation, "service."+s.kind+".restore", "%s does not support restore", s.kind)
	}
	return flatten(s.restoreOp(ctx, projectID, id, by, time.Now().UTC()))
}

func (s *ScopedService[T]) Exists(ctx context.Context, projectID, id string) (bool, error) {
	ok, err := s.repo.Exists(ctx, projectID, id)
	if err != nil {
		return false, flatten(err)
	}
	return ok, nil
}

func (s *ScopedService[T]) Count(ctx context.Context, projectID string) (int64, error) {
	n, err := s.repo.Count(ctx, projectID)
	if err != nil {
		return 0, flatten(err)
	}
	return n, nil
}

func newTaskListService(store *sqliterepo.Store, mgr *docstore.Manager, coord *coordinator.Coordinator, order BackendOrder, logger *slog.Logger) *ScopedService[domain.TaskList] {
	return &ScopedService[domain.TaskList]{
		kind:   "task_list",
		repo:   buildScoped[domain.TaskList](order, sqliterepo.NewTaskListRepo(store), crdtrepo.NewTaskListRepo(mgr)),
		logger: logger,
		meta: entityMeta[domain.TaskList]{
			id:    func(l *domain.TaskList) string { return l.ID },
			setID: func(l *domain.TaskList, id string) { l.ID = id },
			place: func(l *domain.TaskList, projectID string) { l.ProjectID = projectID },
			stamp: func(l *domain.TaskList, by domain.UserID, at time.Time, created bool) {
				if created {
					l.CreatedAt = at
				}
				l.UpdatedBy = by
				l.UpdatedAt = at
			},
			validate: func(l *domain.TaskList) error {
				if l.Name == "" {
					return domain.Ef(domain.KindValidation, "service.task_list", "task list name is required")
				}
				return nil
			},
		},
		deleteOp:  coord.DeleteTaskList,
		restoreOp: coord.RestoreTaskList,
	}
}

func newSubTaskService(store *sqliterepo.Store, mgr *docstore.Manager, coord *coordinator.Coordinator, order BackendOrder, logger *slog.Logger) *ScopedService[domain.SubTask] {
	return &ScopedService[domain.SubTask]{
		kind:   "subtask",
		repo:   buildScoped[domain.SubTask](order, sqliterepo.NewSubTaskRepo(store), crdtrepo.NewSubTaskRepo(mgr)),
		logger: logger,
		meta: entityMeta[domain.SubTask]{
			id:    func(st *domain.SubTask) string { return st.ID },
			setID: func(st *domain.SubTask, id string) { st.ID = id },
			place: func(st *domain.SubTask, projectID string) { st.ProjectID = projectID },
			stamp: func(st *domain.SubTask, by domain.UserID, at time.Time, created bool) {
				if created {
					st.CreatedAt = at
				}
				st.UpdatedBy = by
				st.UpdatedAt = at
			},
			validate: func(st *domain.SubTask) error {
				if st.Title == "" {
					return domain.Ef(domain.KindValidation, "service.subtask", "subtask title is required")
				}
				if st.TaskID == "" {
					return domain.Ef(domain.KindValidation, "service.subtask", "subtask must reference a task")
				}
				return nil
			},
		},
		deleteOp:  coord.DeleteSubTask,
		restoreOp: coord.RestoreSubTask,
	}
}

func newTagService(store *sqliterepo.Store, mgr *docstore.Manager, order BackendOrder, logger *slog.Logger) *ScopedService[domain.Tag] {
	return &ScopedService[domain.Tag]{
		kind:   "tag",
		repo:   buildScoped[domain.Tag](order, sqliterepo.NewTagRepo(store), crdtrepo.NewTagRepo(mgr)),
		logger: logger,
		meta: entityMeta[domain.Tag]{
			id:    func(t *domain.Tag) string { return t.ID },
			setID: func(t *domain.Tag, id string) { t.ID = id },
			place: func(t *domain.Tag, projectID string) { t.ProjectID = projectID },
			stamp: func(t *domain.Tag, by domain.UserID, at time.Time, created bool) {
				if created {
					t.CreatedAt = at
				}
				t.UpdatedBy = by
				t.UpdatedAt = at
			},
			validate: func(t *domain.Tag) error {
				if t.Name == "" {
					return domain.Ef(domain.KindValidation, "service.tag", "tag name is required")
				}
				return nil
			},
		},
	}
}

func newMemberService(store *sqliterepo.Store, mgr *docstore.Manager, order BackendOrder, logger *slog.Logger) *ScopedService[domain.Member] {
	return &ScopedService[domain.Member]{
		kind:   "member",
		repo:   buildScoped[domain.Member](order, sqliterepo.NewMemberRepo(store), crdtrepo.NewMemberRepo(mgr)),
		logger: logger,
		meta: entityMeta[domain.Member]{
			id:    func(m *domain.Member) string { return m.ID },
			setID: func(m *domain.Member, id string) { m.ID = id },
			place: func(m *domain.Member, projectID string) { m.ProjectID = projectID },
			stamp: func(m *domain.Member, by domain.UserID, at time.Time, created bool) {
				if created {
					m.CreatedAt = at
				}
				m.UpdatedBy = by
				m.UpdatedAt = at
			},
			validate: func(m *domain.Member) error {
				if m.UserID == "" {
					return domain.Ef(domain.KindValidation, "service.member", "member user id is required")
				}
				switch m.Role {
				case domain.RoleOwner, domain.RoleEditor, domain.RoleViewer:
					return nil
				}
				return domain.Ef(domain.KindValidation, "service.member", "unknown role %q", m.Role)
			},
		},
	}
}
