package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// TagRepo is the project-scoped backend for tags.
type TagRepo struct {
	store *Store
}

func NewTagRepo(store *Store) *TagRepo { return &TagRepo{store: store} }

func (r *TagRepo) Save(ctx context.Context, projectID string, t *domain.Tag) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO tags (project_id, id, name, color, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, projectID, t.ID, t.Name, t.Color, t.Deleted, string(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.tag.save", err)
		}
		return nil
	})
}

func (r *TagRepo) FindByID(ctx context.Context, projectID, id string) (*domain.Tag, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT project_id, id, name, color, deleted, updated_by, created_at, updated_at
		FROM tags WHERE project_id = ? AND id = ? AND deleted = 0;
	`, projectID, id)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.tag.find", err)
	}
	return t, nil
}

func (r *TagRepo) FindAll(ctx context.Context, projectID string) ([]*domain.Tag, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT project_id, id, name, color, deleted, updated_by, created_at, updated_at
		FROM tags WHERE project_id = ? AND deleted = 0 ORDER BY name;
	`, projectID)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.tag.find_all", err)
	}
	defer rows.Close()

	var out []*domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.tag.find_all", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.tag.find_all", err)
	}
	return out, nil
}

func (r *TagRepo) Delete(ctx context.Context, projectID, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM tags WHERE project_id = ? AND id = ?;`, projectID, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.tag.delete", err)
		}
		return nil
	})
}

func (r *TagRepo) Exists(ctx context.Context, projectID, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.tag.exists", err)
	}
	return true, nil
}

func (r *TagRepo) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tags WHERE project_id = ? AND deleted = 0;`, projectID).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.tag.count", err)
	}
	return n, nil
}

func scanTag(row rowScanner) (*domain.Tag, error) {
	var t domain.Tag
	var updatedBy string
	if err := row.Scan(&t.ProjectID, &t.ID, &t.Name, &t.Color, &t.Deleted, &updatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.UpdatedBy = domain.UserID(updatedBy)
	return &t, nil
}
