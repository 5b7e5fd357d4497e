package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// ProjectRepo is the plain CRUD backend for projects.
type ProjectRepo struct {
	store *Store
}

func NewProjectRepo(store *Store) *ProjectRepo { return &ProjectRepo{store: store} }

func (r *ProjectRepo) Save(ctx context.Context, p *domain.Project) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, owner_id, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				owner_id = excluded.owner_id,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, p.ID, p.Name, p.Description, string(p.OwnerID), p.Deleted, string(p.UpdatedBy), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.project.save", err)
		}
		return nil
	})
}

func (r *ProjectRepo) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, deleted, updated_by, created_at, updated_at
		FROM projects WHERE id = ? AND deleted = 0;
	`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.project.find", err)
	}
	return p, nil
}

func (r *ProjectRepo) FindAll(ctx context.Context) ([]*domain.Project, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, name, description, owner_id, deleted, updated_by, created_at, updated_at
		FROM projects WHERE deleted = 0 ORDER BY created_at;
	`)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.project.find_all", err)
	}
	defer rows.Close()

	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.project.find_all", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.project.find_all", err)
	}
	return out, nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?;`, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.project.delete", err)
		}
		return nil
	})
}

func (r *ProjectRepo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ? AND deleted = 0;`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.project.exists", err)
	}
	return true, nil
}

func (r *ProjectRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE deleted = 0;`).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.project.count", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var owner, updatedBy string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &owner, &p.Deleted, &updatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.OwnerID = domain.UserID(owner)
	p.UpdatedBy = domain.UserID(updatedBy)
	return &p, nil
}
