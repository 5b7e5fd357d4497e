package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// MemberRepo is the project-scoped backend for project members.
type MemberRepo struct {
	store *Store
}

func NewMemberRepo(store *Store) *MemberRepo { return &MemberRepo{store: store} }

func (r *MemberRepo) Save(ctx context.Context, projectID string, m *domain.Member) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO members (project_id, id, user_id, role, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				user_id = excluded.user_id,
				role = excluded.role,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, projectID, m.ID, string(m.UserID), m.Role, m.Deleted, string(m.UpdatedBy), m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.member.save", err)
		}
		return nil
	})
}

func (r *MemberRepo) FindByID(ctx context.Context, projectID, id string) (*domain.Member, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT project_id, id, user_id, role, deleted, updated_by, created_at, updated_at
		FROM members WHERE project_id = ? AND id = ? AND deleted = 0;
	`, projectID, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.member.find", err)
	}
	return m, nil
}

func (r *MemberRepo) FindAll(ctx context.Context, projectID string) ([]*domain.Member, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT project_id, id, user_id, role, deleted, updated_by, created_at, updated_at
		FROM members WHERE project_id = ? AND deleted = 0 ORDER BY created_at;
	`, projectID)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.member.find_all", err)
	}
	defer rows.Close()

	var out []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.member.find_all", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.member.find_all", err)
	}
	return out, nil
}

func (r *MemberRepo) Delete(ctx context.Context, projectID, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM members WHERE project_id = ? AND id = ?;`, projectID, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.member.delete", err)
		}
		return nil
	})
}

func (r *MemberRepo) Exists(ctx context.Context, projectID, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM members WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.member.exists", err)
	}
	return true, nil
}

func (r *MemberRepo) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM members WHERE project_id = ? AND deleted = 0;`, projectID).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.member.count", err)
	}
	return n, nil
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var m domain.Member
	var userID, updatedBy string
	if err := row.Scan(&m.ProjectID, &m.ID, &userID, &m.Role, &m.Deleted, &updatedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.UserID = domain.UserID(userID)
	m.UpdatedBy = domain.UserID(updatedBy)
	return &m, nil
}
