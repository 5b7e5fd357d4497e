package service

import (
	"context"
	"log/slog"

	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/repo"
)

// RelationService is the facade for one many-to-many link table. Attach is
// idempotent; Detach of an absent link is a no-op, matching the repository
// contract.
type RelationService struct {
	name   string
	repo   *repo.UnifiedRelation
	logger *slog.Logger
}

func (s *RelationService) Attach(ctx context.Context, projectID, parentID, childID string, by domain.UserID) error {
	if parentID == "" || childID == "" {
		return domain.Ef(domain.KindValidation, "service."+s.name+".attach", "parent and child ids are required")
	}
	return flatten(s.repo.Add(ctx, projectID, parentID, childID, by))
}

func (s *RelationService) Detach(ctx context.Context, projectID, parentID, childID string) error {
	return flatten(s.repo.Remove(ctx, projectID, parentID, childID))
}

func (s *RelationService) DetachAll(ctx context.Context, projectID, parentID string) error {
	return flatten(s.repo.RemoveAll(ctx, projectID, parentID))
}

func (s *RelationService) Relations(ctx context.Context, projectID, parentID string) ([]domain.Relation, error) {
	rels, err := s.repo.FindRelations(ctx, projectID, parentID)
	if err != nil {
		return nil, flatten(err)
	}
	return rels, nil
}

func (s *RelationService) Has(ctx context.Context, projectID, parentID, childID string) (bool, error) {
	ok, err := s.repo.Exists(ctx, projectID, parentID, childID)
	if err != nil {
		return false, flatten(err)
	}
	return ok, nil
}

func (s *RelationService) Count(ctx context.Context, projectID, parentID string) (int64, error) {
	n, err := s.repo.Count(ctx, projectID, parentID)
	if err != nil {
		return 0, flatten(err)
	}
	return n, nil
}
