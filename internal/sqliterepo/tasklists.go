package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// TaskListRepo is the project-scoped backend for task lists.
type TaskListRepo struct {
	store *Store
}

func NewTaskListRepo(store *Store) *TaskListRepo { return &TaskListRepo{store: store} }

func (r *TaskListRepo) Save(ctx context.Context, projectID string, l *domain.TaskList) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO task_lists (project_id, id, name, position, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				name = excluded.name,
				position = excluded.position,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, projectID, l.ID, l.Name, l.Position, l.Deleted, string(l.UpdatedBy), l.CreatedAt, l.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.task_list.save", err)
		}
		return nil
	})
}

func (r *TaskListRepo) FindByID(ctx context.Context, projectID, id string) (*domain.TaskList, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT project_id, id, name, position, deleted, updated_by, created_at, updated_at
		FROM task_lists WHERE project_id = ? AND id = ? AND deleted = 0;
	`, projectID, id)
	l, err := scanTaskList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task_list.find", err)
	}
	return l, nil
}

func (r *TaskListRepo) FindAll(ctx context.Context, projectID string) ([]*domain.TaskList, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT project_id, id, name, position, deleted, updated_by, created_at, updated_at
		FROM task_lists WHERE project_id = ? AND deleted = 0 ORDER BY position, created_at;
	`, projectID)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task_list.find_all", err)
	}
	defer rows.Close()

	var out []*domain.TaskList
	for rows.Next() {
		l, err := scanTaskList(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.task_list.find_all", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task_list.find_all", err)
	}
	return out, nil
}

func (r *TaskListRepo) Delete(ctx context.Context, projectID, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM task_lists WHERE project_id = ? AND id = ?;`, projectID, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.task_list.delete", err)
		}
		return nil
	})
}

func (r *TaskListRepo) Exists(ctx context.Context, projectID, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM task_lists WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.task_list.exists", err)
	}
	return true, nil
}

func (r *TaskListRepo) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM task_lists WHERE project_id = ? AND deleted = 0;`, projectID).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.task_list.count", err)
	}
	return n, nil
}

func scanTaskList(row rowScanner) (*domain.TaskList, error) {
	var l domain.TaskList
	var updatedBy string
	if err := row.Scan(&l.ProjectID, &l.ID, &l.Name, &l.Position, &l.Deleted, &updatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.UpdatedBy = domain.UserID(updatedBy)
	return &l, nil
}
