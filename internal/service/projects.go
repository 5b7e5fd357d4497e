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

// ProjectService is the facade for the aggregate root. Delete and restore
// always go through the coordinator; a project delete takes the whole
// aggregate with it.
type ProjectService struct {
	repo      *repo.Unified[domain.Project]
	crdt      *crdtrepo.ProjectRepo
	mgr       *docstore.Manager
	coord     *coordinator.Coordinator
	logger    *slog.Logger
}

func newProjectService(store *sqliterepo.Store, mgr *docstore.Manager, coord *coordinator.Coordinator, order BackendOrder, logger *slog.Logger) *ProjectService {
	crdt := crdtrepo.NewProjectRepo(mgr)
	u := repo.NewUnified[domain.Project]()
	for _, kind := range order.Save {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSave(sqliterepo.NewProjectRepo(store))
		case repo.BackendAutomerge:
			u.AddAutomergeForSave(crdt)
		}
	}
	for _, kind := range order.Search {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSearch(sqliterepo.NewProjectRepo(store))
		case repo.BackendAutomerge:
			u.AddAutomergeForSearch(crdt)
		}
	}
	return &ProjectService{repo: u, crdt: crdt, mgr: mgr, coord: coord, logger: logger}
}

func (s *ProjectService) Create(ctx context.Context, p *domain.Project, by domain.UserID) (*domain.Project, error) {
	if p.Name == "" {
		return nil, domain.Ef(domain.KindValidation, "service.project.create", "project name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.UpdatedBy = by
	if p.OwnerID == "" {
		p.OwnerID = by
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, flatten(err)
	}
	s.logger.Info("project created", "id", p.ID, "name", p.Name)
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, flatten(err)
	}
	if p == nil {
		return nil, flatten(domain.Ef(domain.KindNotFound, "service.project.get", "project %s not found", id))
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context) ([]*domain.Project, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, flatten(err)
	}
	return all, nil
}

func (s *ProjectService) Update(ctx context.Context, p *domain.Project, by domain.UserID) (*domain.Project, error) {
	if p.ID == "" {
		return nil, domain.Ef(domain.KindValidation, "service.project.update", "project id is required")
	}
	if p.Name == "" {
		return nil, domain.Ef(domain.KindValidation, "service.project.update", "project name is required")
	}
	p.UpdatedBy = by
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, flatten(err)
	}
	return p, nil
}

// Delete removes the whole aggregate from the relational store and marks the
// document deleted, via the coordinator.
func (s *ProjectService) Delete(ctx context.Context, id string, by domain.UserID) error {
	return flatten(s.coord.DeleteProject(ctx, id, by, time.Now().UTC()))
}

// Restore rebuilds the relational aggregate from the document.
func (s *ProjectService) Restore(ctx context.Context, id string, by domain.UserID) error {
	return flatten(s.coord.RestoreProject(ctx, id, by, time.Now().UTC()))
}

// DeletedProject returns the project while it sits in the deleted state, or
// nil while it is active.
func (s *ProjectService) DeletedProject(ctx context.Context, id string) (*domain.Project, error) {
	p, err := s.crdt.FindDeletedByID(ctx, id)
	if err != nil {
		return nil, flatten(err)
	}
	return p, nil
}

// SnapshotProject decodes the full aggregate document.
func (s *ProjectService) SnapshotProject(ctx context.Context, id string) (*crdtrepo.ProjectDocument, error) {
	snap, err := crdtrepo.Snapshot(ctx, s.mgr, id)
	if err != nil {
		return nil, flatten(err)
	}
	return snap, nil
}

// RestoreProjectSnapshot writes a previously-taken snapshot back over the
// aggregate document.
func (s *ProjectService) RestoreProjectSnapshot(ctx context.Context, id string, snap *crdtrepo.ProjectDocument) error {
	if snap == nil {
		return domain.Ef(domain.KindValidation, "service.project.restore_snapshot", "snapshot is required")
	}
	return flatten(crdtrepo.RestoreSnapshot(ctx, s.mgr, id, snap))
}
