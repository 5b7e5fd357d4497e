package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// SubTaskRepo is the project-scoped backend for subtasks.
type SubTaskRepo struct {
	store *Store
}

func NewSubTaskRepo(store *Store) *SubTaskRepo { return &SubTaskRepo{store: store} }

func (r *SubTaskRepo) Save(ctx context.Context, projectID string, st *domain.SubTask) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO subtasks (project_id, id, task_id, title, done, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				task_id = excluded.task_id,
				title = excluded.title,
				done = excluded.done,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, projectID, st.ID, st.TaskID, st.Title, st.Done, st.Deleted, string(st.UpdatedBy), st.CreatedAt, st.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.subtask.save", err)
		}
		return nil
	})
}

func (r *SubTaskRepo) FindByID(ctx context.Context, projectID, id string) (*domain.SubTask, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT project_id, id, task_id, title, done, deleted, updated_by, created_at, updated_at
		FROM subtasks WHERE project_id = ? AND id = ? AND deleted = 0;
	`, projectID, id)
	st, err := scanSubTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.subtask.find", err)
	}
	return st, nil
}

func (r *SubTaskRepo) FindAll(ctx context.Context, projectID string) ([]*domain.SubTask, error) {
	return r.query(ctx, `
		SELECT project_id, id, task_id, title, done, deleted, updated_by, created_at, updated_at
		FROM subtasks WHERE project_id = ? AND deleted = 0 ORDER BY created_at;
	`, projectID)
}

// FindByTask returns the active subtasks of one task.
func (r *SubTaskRepo) FindByTask(ctx context.Context, projectID, taskID string) ([]*domain.SubTask, error) {
	return r.query(ctx, `
		SELECT project_id, id, task_id, title, done, deleted, updated_by, created_at, updated_at
		FROM subtasks WHERE project_id = ? AND task_id = ? AND deleted = 0 ORDER BY created_at;
	`, projectID, taskID)
}

func (r *SubTaskRepo) Delete(ctx context.Context, projectID, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM subtasks WHERE project_id = ? AND id = ?;`, projectID, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.subtask.delete", err)
		}
		return nil
	})
}

func (r *SubTaskRepo) Exists(ctx context.Context, projectID, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM subtasks WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.subtask.exists", err)
	}
	return true, nil
}

func (r *SubTaskRepo) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM subtasks WHERE project_id = ? AND deleted = 0;`, projectID).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.subtask.count", err)
	}
	return n, nil
}

func (r *SubTaskRepo) query(ctx context.Context, query string, args ...any) ([]*domain.SubTask, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.subtask.query", err)
	}
	defer rows.Close()

	var out []*domain.SubTask
	for rows.Next() {
		st, err := scanSubTask(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.subtask.query", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.subtask.query", err)
	}
	return out, nil
}

func scanSubTask(row rowScanner) (*domain.SubTask, error) {
	var st domain.SubTask
	var updatedBy string
	if err := row.Scan(&st.ProjectID, &st.ID, &st.TaskID, &st.Title, &st.Done, &st.Deleted, &updatedBy, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.UpdatedBy = domain.UserID(updatedBy)
	return &st, nil
}
