package repo

import (
	"context"

	"github.com/basket/taskvault/internal/domain"
)

// BackendKind names a concrete backend implementation. The set is closed:
// the unified repository only ever dispatches to one of these.
type BackendKind string

const (
	BackendSQLite    BackendKind = "sqlite"
	BackendAutomerge BackendKind = "automerge"
)

// KnownKind reports whether kind names a registered backend implementation.
func KnownKind(kind BackendKind) bool {
	switch kind {
	case BackendSQLite, BackendAutomerge:
		return true
	}
	return false
}

type taggedRepo[T any] struct {
	kind BackendKind
	impl Repository[T]
}

type taggedScoped[T any] struct {
	kind BackendKind
	impl ScopedRepository[T]
}

type taggedRelation struct {
	kind BackendKind
	impl RelationRepository
}

// Unified fans writes out to every registered save backend and serves reads
// from the first registered search backend that answers. Registration order
// is significant: it is both the fan-out order for writes and the priority
// order for reads. The first save-backend error aborts the fan-out and is
// returned as-is; earlier backends are not rolled back here.
type Unified[T any] struct {
	save   []taggedRepo[T]
	search []taggedRepo[T]
}

func NewUnified[T any]() *Unified[T] { return &Unified[T]{} }

func (u *Unified[T]) AddSQLiteForSave(r Repository[T]) {
	u.save = append(u.save, taggedRepo[T]{BackendSQLite, r})
}

func (u *Unified[T]) AddAutomergeForSave(r Repository[T]) {
	u.save = append(u.save, taggedRepo[T]{BackendAutomerge, r})
}

func (u *Unified[T]) AddSQLiteForSearch(r Repository[T]) {
	u.search = append(u.search, taggedRepo[T]{BackendSQLite, r})
}

func (u *Unified[T]) AddAutomergeForSearch(r Repository[T]) {
	u.search = append(u.search, taggedRepo[T]{BackendAutomerge, r})
}

func (u *Unified[T]) Save(ctx context.Context, e *T) error {
	for _, b := range u.save {
		if err := b.impl.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (u *Unified[T]) FindByID(ctx context.Context, id string) (*T, error) {
	for _, b := range u.search {
		e, err := b.impl.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (u *Unified[T]) FindAll(ctx context.Context) ([]*T, error) {
	for _, b := range u.search {
		all, err := b.impl.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(all) > 0 {
			return all, nil
		}
	}
	return nil, nil
}

func (u *Unified[T]) Delete(ctx context.Context, id string) error {
	for _, b := range u.save {
		if err := b.impl.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Exists short-circuits on the first backend that reports the record.
func (u *Unified[T]) Exists(ctx context.Context, id string) (bool, error) {
	for _, b := range u.search {
		ok, err := b.impl.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (u *Unified[T]) Count(ctx context.Context) (int64, error) {
	for _, b := range u.search {
		return b.impl.Count(ctx)
	}
	return 0, nil
}

// SaveBackends returns the registered fan-out order, for logging.
func (u *Unified[T]) SaveBackends() []BackendKind {
	kinds := make([]BackendKind, len(u.save))
	for i, b := range u.save {
		kinds[i] = b.kind
	}
	return kinds
}

// SearchBackends returns the registered read priority order, for logging.
func (u *Unified[T]) SearchBackends() []BackendKind {
	kinds := make([]BackendKind, len(u.search))
	for i, b := range u.search {
		kinds[i] = b.kind
	}
	return kinds
}

// UnifiedScoped is the project-scoped variant of Unified.
type UnifiedScoped[T any] struct {
	save   []taggedScoped[T]
	search []taggedScoped[T]
}

func NewUnifiedScoped[T any]() *UnifiedScoped[T] { return &UnifiedScoped[T]{} }

func (u *UnifiedScoped[T]) AddSQLiteForSave(r ScopedRepository[T]) {
	u.save = append(u.save, taggedScoped[T]{BackendSQLite, r})
}

func (u *UnifiedScoped[T]) AddAutomergeForSave(r ScopedRepository[T]) {
	u.save = append(u.save, taggedScoped[T]{BackendAutomerge, r})
}

func (u *UnifiedScoped[T]) AddSQLiteForSearch(r ScopedRepository[T]) {
	u.search = append(u.search, taggedScoped[T]{BackendSQLite, r})
}

func (u *UnifiedScoped[T]) AddAutomergeForSearch(r ScopedRepository[T]) {
	u.search = append(u.search, taggedScoped[T]{BackendAutomerge, r})
}

func (u *UnifiedScoped[T]) Save(ctx context.Context, projectID string, e *T) error {
	for _, b := range u.save {
		if err := b.impl.Save(ctx, projectID, e); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnifiedScoped[T]) FindByID(ctx context.Context, projectID, id string) (*T, error) {
	for _, b := range u.search {
		e, err := b.impl.FindByID(ctx, projectID, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (u *UnifiedScoped[T]) FindAll(ctx context.Context, projectID string) ([]*T, error) {
	for _, b := range u.search {
		all, err := b.impl.FindAll(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if len(all) > 0 {
			return all, nil
		}
	}
	return nil, nil
}

func (u *UnifiedScoped[T]) Delete(ctx context.Context, projectID, id string) error {
	for _, b := range u.save {
		if err := b.impl.Delete(ctx, projectID, id); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnifiedScoped[T]) Exists(ctx context.Context, projectID, id string) (bool, error) {
	for _, b := range u.search {
		ok, err := b.impl.Exists(ctx, projectID, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (u *UnifiedScoped[T]) Count(ctx context.Context, projectID string) (int64, error) {
	for _, b := range u.search {
		return b.impl.Count(ctx, projectID)
	}
	return 0, nil
}

// UnifiedRelation is the relation variant of Unified.
type UnifiedRelation struct {
	save   []taggedRelation
	search []taggedRelation
}

func NewUnifiedRelation() *UnifiedRelation { return &UnifiedRelation{} }

func (u *UnifiedRelation) AddSQLiteForSave(r RelationRepository) {
	u.save = append(u.save, taggedRelation{BackendSQLite, r})
}

func (u *UnifiedRelation) AddAutomergeForSave(r RelationRepository) {
	u.save = append(u.save, taggedRelation{BackendAutomerge, r})
}

func (u *UnifiedRelation) AddSQLiteForSearch(r RelationRepository) {
	u.search = append(u.search, taggedRelation{BackendSQLite, r})
}

func (u *UnifiedRelation) AddAutomergeForSearch(r RelationRepository) {
	u.search = append(u.search, taggedRelation{BackendAutomerge, r})
}

func (u *UnifiedRelation) Add(ctx context.Context, projectID, parentID, childID string, by domain.UserID) error {
	for _, b := range u.save {
		if err := b.impl.Add(ctx, projectID, parentID, childID, by); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnifiedRelation) Remove(ctx context.Context, projectID, parentID, childID string) error {
	for _, b := range u.save {
		if err := b.impl.Remove(ctx, projectID, parentID, childID); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnifiedRelation) RemoveAll(ctx context.Context, projectID, parentID string) error {
	for _, b := range u.save {
		if err := b.impl.RemoveAll(ctx, projectID, parentID); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnifiedRelation) FindRelations(ctx context.Context, projectID, parentID string) ([]domain.Relation, error) {
	for _, b := range u.search {
		rels, err := b.impl.FindRelations(ctx, projectID, parentID)
		if err != nil {
			return nil, err
		}
		if len(rels) > 0 {
			return rels, nil
		}
	}
	return nil, nil
}

func (u *UnifiedRelation) FindRelation(ctx context.Context, projectID, parentID, childID string) (*domain.Relation, error) {
	for _, b := range u.search {
		rel, err := b.impl.FindRelation(ctx, projectID, parentID, childID)
		if err != nil {
			return nil, err
		}
		if rel != nil {
			return rel, nil
		}
	}
	return nil, nil
}

func (u *UnifiedRelation) Exists(ctx context.Context, projectID, parentID, childID string) (bool, error) {
	for _, b := range u.search {
		ok, err := b.impl.Exists(ctx, projectID, parentID, childID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (u *UnifiedRelation) Count(ctx context.Context, projectID, parentID string) (int64, error) {
	for _, b := range u.search {
		return b.impl.Count(ctx, projectID, parentID)
	}
	return 0, nil
}
