package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/basket/taskvault/internal/domain"
)

// Transaction-scoped helpers for the delete/restore coordinator. The
// coordinator owns the *sql.Tx across its whole step sequence; these helpers
// never begin, commit or roll back.

func execTx(ctx context.Context, tx *sql.Tx, op, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.E(domain.KindDatabase, op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteRelationsByParentTx removes every row of one relation table that
// references parentID. Idempotent: zero matching rows is success.
func DeleteRelationsByParentTx(ctx context.Context, tx *sql.Tx, table, projectID, parentID string) (int64, error) {
	if !relationTables[table] {
		return 0, domain.Ef(domain.KindValidation, "sqliterepo.tx.relations", "unknown relation table %q", table)
	}
	return execTx(ctx, tx, "sqliterepo.tx.relations",
		fmt.Sprintf(`DELETE FROM %s WHERE project_id = ? AND parent_id = ?;`, table), projectID, parentID)
}

// DeleteRelationsByProjectTx clears one relation table for a whole project.
func DeleteRelationsByProjectTx(ctx context.Context, tx *sql.Tx, table, projectID string) (int64, error) {
	if !relationTables[table] {
		return 0, domain.Ef(domain.KindValidation, "sqliterepo.tx.relations", "unknown relation table %q", table)
	}
	return execTx(ctx, tx, "sqliterepo.tx.relations",
		fmt.Sprintf(`DELETE FROM %s WHERE project_id = ?;`, table), projectID)
}

func DeleteSubTasksByTaskTx(ctx context.Context, tx *sql.Tx, projectID, taskID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.subtasks",
		`DELETE FROM subtasks WHERE project_id = ? AND task_id = ?;`, projectID, taskID)
}

func DeleteSubTaskRowTx(ctx context.Context, tx *sql.Tx, projectID, subTaskID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.subtask",
		`DELETE FROM subtasks WHERE project_id = ? AND id = ?;`, projectID, subTaskID)
}

func DeleteSubTasksByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.subtasks",
		`DELETE FROM subtasks WHERE project_id = ?;`, projectID)
}

func DeleteTaskRowTx(ctx context.Context, tx *sql.Tx, projectID, taskID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.task",
		`DELETE FROM tasks WHERE project_id = ? AND id = ?;`, projectID, taskID)
}

// TaskIDsByListTx lists the ids of active and soft-deleted tasks of a list,
// for cascading a list deletion through each task's own children.
func TaskIDsByListTx(ctx context.Context, tx *sql.Tx, projectID, listID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id = ? AND list_id = ?;`, projectID, listID)
	if err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.tx.task_ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.E(domain.KindDatabase, "sqliterepo.tx.task_ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindDatabase, "sqliterepo.tx.task_ids", err)
	}
	return ids, nil
}

func DeleteTaskListRowTx(ctx context.Context, tx *sql.Tx, projectID, listID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.task_list",
		`DELETE FROM task_lists WHERE project_id = ? AND id = ?;`, projectID, listID)
}

func DeleteTasksByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.tasks",
		`DELETE FROM tasks WHERE project_id = ?;`, projectID)
}

func DeleteTaskListsByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.task_lists",
		`DELETE FROM task_lists WHERE project_id = ?;`, projectID)
}

func DeleteTagsByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.tags",
		`DELETE FROM tags WHERE project_id = ?;`, projectID)
}

func DeleteMembersByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.members",
		`DELETE FROM members WHERE project_id = ?;`, projectID)
}

func DeleteProjectRowTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	return execTx(ctx, tx, "sqliterepo.tx.project",
		`DELETE FROM projects WHERE id = ?;`, projectID)
}

// Restore-side inserts. Each upserts so a retried restore does not trip the
// primary key.

func InsertProjectTx(ctx context.Context, tx *sql.Tx, p *domain.Project) error {
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_project", `
		INSERT INTO projects (id, name, description, owner_id, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, owner_id = excluded.owner_id,
			deleted = excluded.deleted, updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, p.ID, p.Name, p.Description, string(p.OwnerID), p.Deleted, string(p.UpdatedBy), p.CreatedAt, p.UpdatedAt)
	return err
}

func InsertTaskTx(ctx context.Context, tx *sql.Tx, t *domain.Task) error {
	var due sql.NullTime
	if t.DueAt != nil {
		due = sql.NullTime{Time: *t.DueAt, Valid: true}
	}
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_task", `
		INSERT INTO tasks (project_id, id, list_id, title, description, status, priority, due_at, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			list_id = excluded.list_id, title = excluded.title, description = excluded.description,
			status = excluded.status, priority = excluded.priority, due_at = excluded.due_at,
			deleted = excluded.deleted, updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, t.ProjectID, t.ID, t.ListID, t.Title, t.Description, t.Status, t.Priority, due, t.Deleted, string(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

func InsertTaskListTx(ctx context.Context, tx *sql.Tx, l *domain.TaskList) error {
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_task_list", `
		INSERT INTO task_lists (project_id, id, name, position, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			name = excluded.name, position = excluded.position, deleted = excluded.deleted,
			updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, l.ProjectID, l.ID, l.Name, l.Position, l.Deleted, string(l.UpdatedBy), l.CreatedAt, l.UpdatedAt)
	return err
}

func InsertSubTaskTx(ctx context.Context, tx *sql.Tx, st *domain.SubTask) error {
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_subtask", `
		INSERT INTO subtasks (project_id, id, task_id, title, done, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			task_id = excluded.task_id, title = excluded.title, done = excluded.done,
			deleted = excluded.deleted, updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, st.ProjectID, st.ID, st.TaskID, st.Title, st.Done, st.Deleted, string(st.UpdatedBy), st.CreatedAt, st.UpdatedAt)
	return err
}

func InsertTagTx(ctx context.Context, tx *sql.Tx, t *domain.Tag) error {
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_tag", `
		INSERT INTO tags (project_id, id, name, color, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			name = excluded.name, color = excluded.color, deleted = excluded.deleted,
			updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, t.ProjectID, t.ID, t.Name, t.Color, t.Deleted, string(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

func InsertMemberTx(ctx context.Context, tx *sql.Tx, m *domain.Member) error {
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_member", `
		INSERT INTO members (project_id, id, user_id, role, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			user_id = excluded.user_id, role = excluded.role, deleted = excluded.deleted,
			updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, m.ProjectID, m.ID, string(m.UserID), m.Role, m.Deleted, string(m.UpdatedBy), m.CreatedAt, m.UpdatedAt)
	return err
}

func InsertRelationTx(ctx context.Context, tx *sql.Tx, table string, rel *domain.Relation) error {
	if !relationTables[table] {
		return domain.Ef(domain.KindValidation, "sqliterepo.tx.insert_relation", "unknown relation table %q", table)
	}
	_, err := execTx(ctx, tx, "sqliterepo.tx.insert_relation", fmt.Sprintf(`
		INSERT INTO %s (project_id, parent_id, child_id, deleted, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, parent_id, child_id) DO UPDATE SET
			deleted = excluded.deleted, updated_by = excluded.updated_by, updated_at = excluded.updated_at;
	`, table), rel.ProjectID, rel.ParentID, rel.ChildID, rel.Deleted, string(rel.UpdatedBy), rel.CreatedAt, rel.UpdatedAt)
	return err
}
