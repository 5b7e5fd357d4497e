// Package repo defines the capability contracts storage backends satisfy and
// a unified repository that fans writes out across backends while serving
// reads from a prioritized backend order. Backends must behave identically
// for success cases: absent records are (nil, nil) or empty slices, never
// errors. Transactional guarantees differ per backend; cross-store atomicity
// is the coordinator's job, not this layer's.
package repo

import (
	"context"

	"github.com/basket/taskvault/internal/domain"
)

// Repository is plain CRUD keyed by entity id only.
type Repository[T any] interface {
	Save(ctx context.Context, e *T) error
	FindByID(ctx context.Context, id string) (*T, error)
	FindAll(ctx context.Context) ([]*T, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// ScopedRepository is CRUD additionally keyed by the owning project.
type ScopedRepository[T any] interface {
	Save(ctx context.Context, projectID string, e *T) error
	FindByID(ctx context.Context, projectID, id string) (*T, error)
	FindAll(ctx context.Context, projectID string) ([]*T, error)
	Delete(ctx context.Context, projectID, id string) error
	Exists(ctx context.Context, projectID, id string) (bool, error)
	Count(ctx context.Context, projectID string) (int64, error)
}

// RelationRepository manages a many-to-many association keyed by
// (project, parent, child). Add is idempotent when the relation already
// exists; Remove and RemoveAll are no-ops when nothing matches.
type RelationRepository interface {
	Add(ctx context.Context, projectID, parentID, childID string, by domain.UserID) error
	Remove(ctx context.Context, projectID, parentID, childID string) error
	RemoveAll(ctx context.Context, projectID, parentID string) error
	FindRelations(ctx context.Context, projectID, parentID string) ([]domain.Relation, error)
	FindRelation(ctx context.Context, projectID, parentID, childID string) (*domain.Relation, error)
	Exists(ctx context.Context, projectID, parentID, childID string) (bool, error)
	Count(ctx context.Context, projectID, parentID string) (int64, error)
}
