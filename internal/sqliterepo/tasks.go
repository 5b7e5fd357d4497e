package sqliterepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/basket/taskvault/internal/domain"
)

// TaskRepo is the project-scoped backend for tasks.
type TaskRepo struct {
	store *Store
}

func NewTaskRepo(store *Store) *TaskRepo { return &TaskRepo{store: store} }

func (r *TaskRepo) Save(ctx context.Context, projectID string, t *domain.Task) error {
	var due sql.NullTime
	if t.DueAt != nil {
		due = sql.NullTime{Time: *t.DueAt, Valid: true}
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO tasks (project_id, id, list_id, title, description, status, priority, due_at, deleted, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				list_id = excluded.list_id,
				title = excluded.title,
				description = excluded.description,
				status = excluded.status,
				priority = excluded.priority,
				due_at = excluded.due_at,
				deleted = excluded.deleted,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at;
		`, projectID, t.ID, t.ListID, t.Title, t.Description, t.Status, t.Priority, due, t.Deleted, string(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.task.save", err)
		}
		return nil
	})
}

func (r *TaskRepo) FindByID(ctx context.Context, projectID, id string) (*domain.Task, error) {
	row := r.store.db.QueryRowContext(ctx, taskSelect+` WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task.find", err)
	}
	return t, nil
}

func (r *TaskRepo) FindAll(ctx context.Context, projectID string) ([]*domain.Task, error) {
	return r.queryTasks(ctx, taskSelect+` WHERE project_id = ? AND deleted = 0 ORDER BY created_at;`, projectID)
}

// FindDeleted surfaces soft-deleted tasks for restore flows.
func (r *TaskRepo) FindDeleted(ctx context.Context, projectID string) ([]*domain.Task, error) {
	return r.queryTasks(ctx, taskSelect+` WHERE project_id = ? AND deleted = 1 ORDER BY created_at;`, projectID)
}

// FindByList returns the active tasks of one task list.
func (r *TaskRepo) FindByList(ctx context.Context, projectID, listID string) ([]*domain.Task, error) {
	return r.queryTasks(ctx, taskSelect+` WHERE project_id = ? AND list_id = ? AND deleted = 0 ORDER BY created_at;`, projectID, listID)
}

func (r *TaskRepo) Delete(ctx context.Context, projectID, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := r.store.db.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ? AND id = ?;`, projectID, id); err != nil {
			return domain.E(domain.KindDatabase, "sqliterepo.task.delete", err)
		}
		return nil
	})
}

func (r *TaskRepo) Exists(ctx context.Context, projectID, id string) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE project_id = ? AND id = ? AND deleted = 0;`, projectID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindDatabase, "sqliterepo.task.exists", err)
	}
	return true, nil
}

func (r *TaskRepo) Count(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE project_id = ? AND deleted = 0;`, projectID).Scan(&n); err != nil {
		return 0, domain.E(domain.KindDatabase, "sqliterepo.task.count", err)
	}
	return n, nil
}

func (r *TaskRepo) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task.query", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.task.query", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.task.query", err)
	}
	return out, nil
}

const taskSelect = `
	SELECT project_id, id, list_id, title, description, status, priority, due_at, deleted, updated_by, created_at, updated_at
	FROM tasks`

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var due sql.NullTime
	var updatedBy string
	if err := row.Scan(&t.ProjectID, &t.ID, &t.ListID, &t.Title, &t.Description, &t.Status, &t.Priority, &due, &t.Deleted, &updatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time
		t.DueAt = &d
	}
	t.UpdatedBy = domain.UserID(updatedBy)
	return &t, nil
}
