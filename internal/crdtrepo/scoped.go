package crdtrepo

import (
	"context"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
)

// entityAccess describes how a scoped repo reads and stamps one entity type.
// Keeping it as data lets the five project-scoped repos share one
// implementation without reflection.
type entityAccess[T any] struct {
	id        func(*T) string
	deleted   func(*T) bool
	updatedAt func(*T) time.Time
	stamp     func(e *T, deleted bool, by domain.UserID, at time.Time)
}

// ScopedRepo implements repo.ScopedRepository against one collection list in
// the project document.
type ScopedRepo[T any] struct {
	mgr    *docstore.Manager
	key    string
	access entityAccess[T]
}

func NewTaskRepo(mgr *docstore.Manager) *ScopedRepo[domain.Task] {
	return &ScopedRepo[domain.Task]{mgr: mgr, key: KeyTasks, access: entityAccess[domain.Task]{
		id:        func(t *domain.Task) string { return t.ID },
		deleted:   func(t *domain.Task) bool { return t.Deleted },
		updatedAt: func(t *domain.Task) time.Time { return t.UpdatedAt },
		stamp: func(t *domain.Task, deleted bool, by domain.UserID, at time.Time) {
			t.Deleted, t.UpdatedBy, t.UpdatedAt = deleted, by, at
		},
	}}
}

func NewTaskListRepo(mgr *docstore.Manager) *ScopedRepo[domain.TaskList] {
	return &ScopedRepo[domain.TaskList]{mgr: mgr, key: KeyTaskLists, access: entityAccess[domain.TaskList]{
		id:        func(l *domain.TaskList) string { return l.ID },
		deleted:   func(l *domain.TaskList) bool { return l.Deleted },
		updatedAt: func(l *domain.TaskList) time.Time { return l.UpdatedAt },
		stamp: func(l *domain.TaskList, deleted bool, by domain.UserID, at time.Time) {
			l.Deleted, l.UpdatedBy, l.UpdatedAt = deleted, by, at
		},
	}}
}

func NewSubTaskRepo(mgr *docstore.Manager) *ScopedRepo[domain.SubTask] {
	return &ScopedRepo[domain.SubTask]{mgr: mgr, key: KeySubTasks, access: entityAccess[domain.SubTask]{
		id:        func(st *domain.SubTask) string { return st.ID },
		deleted:   func(st *domain.SubTask) bool { return st.Deleted },
		updatedAt: func(st *domain.SubTask) time.Time { return st.UpdatedAt },
		stamp: func(st *domain.SubTask, deleted bool, by domain.UserID, at time.Time) {
			st.Deleted, st.UpdatedBy, st.UpdatedAt = deleted, by, at
		},
	}}
}

func NewTagRepo(mgr *docstore.Manager) *ScopedRepo[domain.Tag] {
	return &ScopedRepo[domain.Tag]{mgr: mgr, key: KeyTags, access: entityAccess[domain.Tag]{
		id:        func(t *domain.Tag) string { return t.ID },
		deleted:   func(t *domain.Tag) bool { return t.Deleted },
		updatedAt: func(t *domain.Tag) time.Time { return t.UpdatedAt },
		stamp: func(t *domain.Tag, deleted bool, by domain.UserID, at time.Time) {
			t.Deleted, t.UpdatedBy, t.UpdatedAt = deleted, by, at
		},
	}}
}

func NewMemberRepo(mgr *docstore.Manager) *ScopedRepo[domain.Member] {
	return &ScopedRepo[domain.Member]{mgr: mgr, key: KeyMembers, access: entityAccess[domain.Member]{
		id:        func(m *domain.Member) string { return m.ID },
		deleted:   func(m *domain.Member) bool { return m.Deleted },
		updatedAt: func(m *domain.Member) time.Time { return m.UpdatedAt },
		stamp: func(m *domain.Member, deleted bool, by domain.UserID, at time.Time) {
			m.Deleted, m.UpdatedBy, m.UpdatedAt = deleted, by, at
		},
	}}
}

func (r *ScopedRepo[T]) Save(ctx context.Context, projectID string, e *T) error {
	return r.mgr.Update(ctx, DocID(projectID), "save "+r.key, func(doc *automerge.Doc) error {
		items, err := readCollection[T](doc, r.key)
		if err != nil {
			return err
		}
		replaced := false
		for i := range items {
			if r.access.id(&items[i]) == r.access.id(e) {
				items[i] = *e
				replaced = true
				break
			}
		}
		if !replaced {
			items = append(items, *e)
		}
		return writeCollection(doc, r.key, items)
	})
}

func (r *ScopedRepo[T]) FindByID(ctx context.Context, projectID, id string) (*T, error) {
	var out *T
	err := r.view(ctx, projectID, func(items []T) {
		for i := range items {
			if r.access.id(&items[i]) == id && !r.access.deleted(&items[i]) {
				e := items[i]
				out = &e
				return
			}
		}
	})
	return out, err
}

func (r *ScopedRepo[T]) FindAll(ctx context.Context, projectID string) ([]*T, error) {
	var out []*T
	err := r.view(ctx, projectID, func(items []T) {
		for i := range items {
			if !r.access.deleted(&items[i]) {
				e := items[i]
				out = append(out, &e)
			}
		}
	})
	return out, err
}

// FindDeleted lists the soft-deleted entries, newest last.
func (r *ScopedRepo[T]) FindDeleted(ctx context.Context, projectID string) ([]*T, error) {
	var out []*T
	err := r.view(ctx, projectID, func(items []T) {
		for i := range items {
			if r.access.deleted(&items[i]) {
				e := items[i]
				out = append(out, &e)
			}
		}
	})
	return out, err
}

// Delete is a soft delete: the entry stays in the document with deleted=true.
func (r *ScopedRepo[T]) Delete(ctx context.Context, projectID, id string) error {
	return r.MarkDeleted(ctx, projectID, id, "", time.Time{})
}

// MarkDeleted flips the entry's deleted flag on and stamps the audit fields.
func (r *ScopedRepo[T]) MarkDeleted(ctx context.Context, projectID, id string, by domain.UserID, at time.Time) error {
	return r.mutate(ctx, projectID, "delete "+r.key, func(items []T) ([]T, error) {
		for i := range items {
			if r.access.id(&items[i]) == id {
				r.access.stamp(&items[i], true, by, stampNow(at))
				return items, nil
			}
		}
		return nil, domain.Ef(domain.KindNotFound, "crdtrepo."+r.key+".delete", "%s not found in project %s", id, projectID)
	})
}

// Restore flips the entry's deleted flag off. Restoring an entry that is not
// currently deleted is an error and leaves the document unchanged.
func (r *ScopedRepo[T]) Restore(ctx context.Context, projectID, id string, by domain.UserID, at time.Time) error {
	return r.mutate(ctx, projectID, "restore "+r.key, func(items []T) ([]T, error) {
		for i := range items {
			if r.access.id(&items[i]) != id {
				continue
			}
			if !r.access.deleted(&items[i]) {
				return nil, domain.Ef(domain.KindValidation, "crdtrepo."+r.key+".restore", "%s is not deleted", id)
			}
			r.access.stamp(&items[i], false, by, stampNow(at))
			return items, nil
		}
		return nil, domain.Ef(domain.KindNotFound, "crdtrepo."+r.key+".restore", "%s not found in project %s", id, projectID)
	})
}

// MarkAllDeleted soft-deletes every active entry, returning how many changed.
func (r *ScopedRepo[T]) MarkAllDeleted(ctx context.Context, projectID string, by domain.UserID, at time.Time) (int, error) {
	changed := 0
	err := r.mutate(ctx, projectID, "delete all "+r.key, func(items []T) ([]T, error) {
		for i := range items {
			if !r.access.deleted(&items[i]) {
				r.access.stamp(&items[i], true, by, stampNow(at))
				changed++
			}
		}
		return items, nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// RestoreAll reactivates every soft-deleted entry.
func (r *ScopedRepo[T]) RestoreAll(ctx context.Context, projectID string, by domain.UserID, at time.Time) (int, error) {
	changed := 0
	err := r.mutate(ctx, projectID, "restore all "+r.key, func(items []T) ([]T, error) {
		for i := range items {
			if r.access.deleted(&items[i]) {
				r.access.stamp(&items[i], false, by, stampNow(at))
				changed++
			}
		}
		return items, nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// PurgeDeletedBefore physically removes entries soft-deleted before cutoff.
func (r *ScopedRepo[T]) PurgeDeletedBefore(ctx context.Context, projectID string, cutoff time.Time) (int, error) {
	purged := 0
	err := r.mutate(ctx, projectID, "purge "+r.key, func(items []T) ([]T, error) {
		kept := items[:0]
		for i := range items {
			if r.access.deleted(&items[i]) && r.access.updatedAt(&items[i]).Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, items[i])
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func (r *ScopedRepo[T]) Exists(ctx context.Context, projectID, id string) (bool, error) {
	e, err := r.FindByID(ctx, projectID, id)
	return e != nil, err
}

func (r *ScopedRepo[T]) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := r.view(ctx, projectID, func(items []T) {
		for i := range items {
			if !r.access.deleted(&items[i]) {
				n++
			}
		}
	})
	return n, err
}

func (r *ScopedRepo[T]) view(ctx context.Context, projectID string, fn func(items []T)) error {
	// Reads must not mint a document for an unknown project.
	if !r.mgr.Exists(DocID(projectID)) {
		fn(nil)
		return nil
	}
	return r.mgr.View(ctx, DocID(projectID), func(doc *automerge.Doc) error {
		items, err := readCollection[T](doc, r.key)
		if err != nil {
			return err
		}
		fn(items)
		return nil
	})
}

func (r *ScopedRepo[T]) mutate(ctx context.Context, projectID, message string, fn func(items []T) ([]T, error)) error {
	return r.mgr.Update(ctx, DocID(projectID), message, func(doc *automerge.Doc) error {
		items, err := readCollection[T](doc, r.key)
		if err != nil {
			return err
		}
		updated, err := fn(items)
		if err != nil {
			return err
		}
		return writeCollection(doc, r.key, updated)
	})
}
