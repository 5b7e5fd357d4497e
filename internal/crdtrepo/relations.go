package crdtrepo

import (
	"context"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
)

// RelationRepo backs one relation collection (task tags, assignments or
// recurrence links) inside the project document.
type RelationRepo struct {
	mgr *docstore.Manager
	key string
}

func NewTaskTagRepo(mgr *docstore.Manager) *RelationRepo {
	return &RelationRepo{mgr: mgr, key: KeyTaskTags}
}

func NewTaskAssignmentRepo(mgr *docstore.Manager) *RelationRepo {
	return &RelationRepo{mgr: mgr, key: KeyTaskAssignments}
}

func NewTaskRecurrenceRepo(mgr *docstore.Manager) *RelationRepo {
	return &RelationRepo{mgr: mgr, key: KeyTaskRecurrences}
}

// Add inserts the relation unless an active one already exists; a
// soft-deleted relation with the same key is revived in place.
func (r *RelationRepo) Add(ctx context.Context, projectID, parentID, childID string, by domain.UserID) error {
	now := time.Now().UTC()
	return r.mutate(ctx, projectID, "add "+r.key, func(rels []domain.Relation) ([]domain.Relation, error) {
		for i := range rels {
			if rels[i].ParentID == parentID && rels[i].ChildID == childID {
				if rels[i].Deleted {
					rels[i].Deleted = false
					rels[i].UpdatedBy = by
					rels[i].UpdatedAt = now
				}
				return rels, nil
			}
		}
		rels = append(rels, domain.Relation{
			ProjectID: projectID,
			ParentID:  parentID,
			ChildID:   childID,
			UpdatedBy: by,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return rels, nil
	})
}

// Remove soft-deletes the relation. Removing an absent relation is a no-op.
func (r *RelationRepo) Remove(ctx context.Context, projectID, parentID, childID string) error {
	now := time.Now().UTC()
	return r.mutate(ctx, projectID, "remove "+r.key, func(rels []domain.Relation) ([]domain.Relation, error) {
		for i := range rels {
			if rels[i].ParentID == parentID && rels[i].ChildID == childID && !rels[i].Deleted {
				rels[i].Deleted = true
				rels[i].UpdatedAt = now
			}
		}
		return rels, nil
	})
}

// RemoveAll soft-deletes every relation of the parent. Safe with zero
// matches.
func (r *RelationRepo) RemoveAll(ctx context.Context, projectID, parentID string) error {
	now := time.Now().UTC()
	return r.mutate(ctx, projectID, "remove all "+r.key, func(rels []domain.Relation) ([]domain.Relation, error) {
		for i := range rels {
			if rels[i].ParentID == parentID && !rels[i].Deleted {
				rels[i].Deleted = true
				rels[i].UpdatedAt = now
			}
		}
		return rels, nil
	})
}

func (r *RelationRepo) FindRelations(ctx context.Context, projectID, parentID string) ([]domain.Relation, error) {
	var out []domain.Relation
	err := r.view(ctx, projectID, func(rels []domain.Relation) {
		for _, rel := range rels {
			if rel.ParentID == parentID && !rel.Deleted {
				out = append(out, rel)
			}
		}
	})
	return out, err
}

func (r *RelationRepo) FindRelation(ctx context.Context, projectID, parentID, childID string) (*domain.Relation, error) {
	var out *domain.Relation
	err := r.view(ctx, projectID, func(rels []domain.Relation) {
		for i := range rels {
			if rels[i].ParentID == parentID && rels[i].ChildID == childID && !rels[i].Deleted {
				rel := rels[i]
				out = &rel
				return
			}
		}
	})
	return out, err
}

func (r *RelationRepo) Exists(ctx context.Context, projectID, parentID, childID string) (bool, error) {
	rel, err := r.FindRelation(ctx, projectID, parentID, childID)
	return rel != nil, err
}

func (r *RelationRepo) Count(ctx context.Context, projectID, parentID string) (int64, error) {
	var n int64
	err := r.view(ctx, projectID, func(rels []domain.Relation) {
		for _, rel := range rels {
			if rel.ParentID == parentID && !rel.Deleted {
				n++
			}
		}
	})
	return n, err
}

func (r *RelationRepo) view(ctx context.Context, projectID string, fn func(rels []domain.Relation)) error {
	// Reads must not mint a document for an unknown project.
	if !r.mgr.Exists(DocID(projectID)) {
		fn(nil)
		return nil
	}
	return r.mgr.View(ctx, DocID(projectID), func(doc *automerge.Doc) error {
		rels, err := readCollection[domain.Relation](doc, r.key)
		if err != nil {
			return err
		}
		fn(rels)
		return nil
	})
}

func (r *RelationRepo) mutate(ctx context.Context, projectID, message string, fn func(rels []domain.Relation) ([]domain.Relation, error)) error {
	return r.mgr.Update(ctx, DocID(projectID), message, func(doc *automerge.Doc) error {
		rels, err := readCollection[domain.Relation](doc, r.key)
		if err != nil {
			return err
		}
		updated, err := fn(rels)
		if err != nil {
			return err
		}
		return writeCollection(doc, r.key, updated)
	})
}

// PurgeDeletedBefore physically removes relations soft-deleted before cutoff.
func (r *RelationRepo) PurgeDeletedBefore(ctx context.Context, projectID string, cutoff time.Time) (int, error) {
	purged := 0
	err := r.mutate(ctx, projectID, "purge "+r.key, func(rels []domain.Relation) ([]domain.Relation, error) {
		kept := rels[:0]
		for i := range rels {
			if rels[i].Deleted && rels[i].UpdatedAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, rels[i])
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
