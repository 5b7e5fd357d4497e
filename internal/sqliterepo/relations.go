package sqliterepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/basket/taskvault/internal/domain"
)

// Relation table names form a closed set; the constructor rejects anything
// else so table names never reach SQL from untrusted input.
const (
	TableTaskTags        = "task_tags"
	TableTaskAssignments = "task_assignments"
	TableTaskRecurrences = "task_recurrences"
)

var relationTables = map[string]bool{
	TableTaskTags:        true,
	TableTaskAssignments: true,
	TableTaskRecurrences: true,
}

// RelationRepo backs one many-to-many relation table.
type RelationRepo struct {
	store *Store
	table string
}

func NewRelationRepo(store *Store, table string) (*RelationRepo, error) {
	if !relationTables[table] {
		return nil, domain.Ef(domain.KindValidation, "sqliterepo.relation", "unknown relation table %q", table)
	}
	return &RelationRepo{store: store, table: table}, nil
}

// Add inserts the relation if it does not already exist. Re-adding an
// existing relation is a no-op.
func (r *RelationRepo) Add(ctx context.Context, projectID, parentID, childID string, by domain.UserID) error {
	now := time.Now().UTC()
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (project_id, parent_id, child_id, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(project_id, parent_id, child_id) DO NOTHING;
		`, r.table), projectID, parentID, childID, string(by), now, now)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.relation.add", err)
		}
		return nil
	})
}

// Remove deletes the relation row. Removing an absent relation succeeds.
func (r *RelationRepo) Remove(ctx context.Context, projectID, parentID, childID string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE project_id = ? AND parent_id = ? AND child_id = ?;`, r.table),
			projectID, parentID, childID)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.relation.remove", err)
		}
		return nil
	})
}

// RemoveAll deletes every relation of the parent. Safe when zero rows exist.
func (r *RelationRepo) RemoveAll(ctx context.Context, projectID, parentID string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE project_id = ? AND parent_id = ?;`, r.table),
			projectID, parentID)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.relation.remove_all", err)
		}
		return nil
	})
}

func (r *RelationRepo) FindRelations(ctx context.Context, projectID, parentID string) ([]domain.Relation, error) {
	rows, err := r.store.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT project_id, parent_id, child_id, deleted, updated_by, created_at, updated_at
		FROM %s WHERE project_id = ? AND parent_id = ? AND deleted = 0 ORDER BY created_at;
	`, r.table), projectID, parentID)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.relation.find_all", err)
	}
	defer rows.Close()

	var out []domain.Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.relation.find_all", err)
		}
		out = append(out, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.relation.find_all", err)
	}
	return out, nil
}

func (r *RelationRepo) FindRelation(ctx context.Context, projectID, parentID, childID string) (*domain.Relation, error) {
	row := r.store.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT project_id, parent_id, child_id, deleted, updated_by, created_at, updated_at
		FROM %s WHERE project_id = ? AND parent_id = ? AND child_id = ? AND deleted = 0;
	`, r.table), projectID, parentID, childID)
	rel, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.relation.find", err)
	}
	return rel, nil
}

func (r *RelationRepo) Exists(ctx context.Context, projectID, parentID, childID string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %s WHERE project_id = ? AND parent_id = ? AND child_id = ? AND deleted = 0;`, r.table),
		projectID, parentID, childID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.relation.exists", err)
	}
	return true, nil
}

func (r *RelationRepo) Count(ctx context.Context, projectID, parentID string) (int64, error) {
	var n int64
	err := r.store.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(1) FROM %s WHERE project_id = ? AND parent_id = ? AND deleted = 0;`, r.table),
		projectID, parentID).Scan(&n)
	if err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.relation.count", err)
	}
	return n, nil
}

func scanRelation(row rowScanner) (*domain.Relation, error) {
	var rel domain.Relation
	var updatedBy string
	if err := row.Scan(&rel.ProjectID, &rel.ParentID, &rel.ChildID, &rel.Deleted, &updatedBy, &rel.CreatedAt, &rel.UpdatedAt); err != nil {
		return nil, err
	}
	rel.UpdatedBy = domain.UserID(updatedBy)
	return &rel, nil
}
