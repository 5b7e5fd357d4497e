package crdtrepo

import (
	"context"
	"strings"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
)

// ProjectRepo implements the plain repository contract for project roots.
// Project fields live directly under the document root, next to the
// collection keys.
type ProjectRepo struct {
	mgr *docstore.Manager
}

func NewProjectRepo(mgr *docstore.Manager) *ProjectRepo { return &ProjectRepo{mgr: mgr} }

func (r *ProjectRepo) Save(ctx context.Context, p *domain.Project) error {
	return r.mgr.Update(ctx, DocID(p.ID), "save project", func(doc *automerge.Doc) error {
		return crdtval.WriteRoot(doc, p)
	})
}

func (r *ProjectRepo) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	p, err := r.load(ctx, id)
	if err != nil || p == nil || p.Deleted {
		return nil, err
	}
	return p, nil
}

// FindDeletedByID returns the project only while it is soft-deleted; nil
// otherwise.
func (r *ProjectRepo) FindDeletedByID(ctx context.Context, id string) (*domain.Project, error) {
	p, err := r.load(ctx, id)
	if err != nil || p == nil || !p.Deleted {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepo) FindAll(ctx context.Context) ([]*domain.Project, error) {
	ids, err := r.mgr.ListDocumentIDs()
	if err != nil {
		return nil, err
	}
	var out []*domain.Project
	for _, docID := range ids {
		pid, ok := strings.CutPrefix(docID, "project_")
		if !ok {
			continue
		}
		p, err := r.FindByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Delete soft-deletes the project root; the document and its history stay on
// disk.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	return r.MarkDeleted(ctx, id, "", time.Time{})
}

func (r *ProjectRepo) MarkDeleted(ctx context.Context, id string, by domain.UserID, at time.Time) error {
	return r.setDeleted(ctx, id, true, by, at)
}

// Restore reactivates a soft-deleted project. Restoring an active project is
// an error and changes nothing.
func (r *ProjectRepo) Restore(ctx context.Context, id string, by domain.UserID, at time.Time) error {
	p, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.Ef(domain.KindNotFound, "crdtrepo.project.restore", "project %s not found", id)
	}
	if !p.Deleted {
		return domain.Ef(domain.KindValidation, "crdtrepo.project.restore", "project %s is not deleted", id)
	}
	return r.setDeleted(ctx, id, false, by, at)
}

func (r *ProjectRepo) Exists(ctx context.Context, id string) (bool, error) {
	if !r.mgr.Exists(DocID(id)) {
		return false, nil
	}
	p, err := r.FindByID(ctx, id)
	return p != nil, err
}

func (r *ProjectRepo) Count(ctx context.Context) (int64, error) {
	all, err := r.FindAll(ctx)
	return int64(len(all)), err
}

func (r *ProjectRepo) load(ctx context.Context, id string) (*domain.Project, error) {
	if !r.mgr.Exists(DocID(id)) {
		return nil, nil
	}
	var p domain.Project
	err := r.mgr.View(ctx, DocID(id), func(doc *automerge.Doc) error {
		return crdtval.ReadRoot(doc, &p)
	})
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		// Document exists but was never populated.
		return nil, nil
	}
	return &p, nil
}

func (r *ProjectRepo) setDeleted(ctx context.Context, id string, deleted bool, by domain.UserID, at time.Time) error {
	return r.mgr.Update(ctx, DocID(id), "mark project", func(doc *automerge.Doc) error {
		var p domain.Project
		if err := crdtval.ReadRoot(doc, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return domain.Ef(domain.KindNotFound, "crdtrepo.project.mark", "project %s not found", id)
		}
		p.Deleted = deleted
		p.UpdatedBy = by
		p.UpdatedAt = stampNow(at)
		return crdtval.WriteRoot(doc, &p)
	})
}
