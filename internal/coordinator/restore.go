package coordinator

import (
	"context"
	"database/sql"
	"time"

	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// Restores read the deleted aggregate out of the project document, re-create
// the relational rows first, then flip the document's delete flags off. If
// the flip fails after commit, the rows are removed again as compensation.

// RestoreTask brings a deleted task and its children back into both stores.
func (c *Coordinator) RestoreTask(ctx context.Context, projectID, taskID string, by domain.UserID, at time.Time) error {
	pd, err := c.aggregate(ctx, projectID)
	if err != nil {
		return err
	}
	task, err := findTask(pd, taskID)
	if err != nil {
		return err
	}
	if !task.Deleted {
		return domain.Ef(domain.KindValidation, "coordinator.restore_task", "task %s is not deleted", taskID)
	}
	at = defaultNow(at)

	insert := func(tx *sql.Tx) error {
		restored := *task
		reviveStamp(&restored.Deleted, &restored.UpdatedBy, &restored.UpdatedAt, by, at)
		if err := sqliterepo.InsertTaskTx(ctx, tx, &restored); err != nil {
			return err
		}
		return insertTaskChildren(ctx, tx, pd, taskID, by, at)
	}
	flip := func(ctx context.Context) error {
		return crdtrepo.MarkTaskCascade(ctx, c.mgr, projectID, taskID, false, by, at)
	}
	undo := func(tx *sql.Tx) error {
		for _, table := range relationTableNames {
			if _, err := sqliterepo.DeleteRelationsByParentTx(ctx, tx, table, projectID, taskID); err != nil {
				return err
			}
		}
		if _, err := sqliterepo.DeleteSubTasksByTaskTx(ctx, tx, projectID, taskID); err != nil {
			return err
		}
		_, err := sqliterepo.DeleteTaskRowTx(ctx, tx, projectID, taskID)
		return err
	}
	return c.runRestore(ctx, KindTask, taskID, projectID, by, insert, flip, undo)
}

// RestoreSubTask brings back a single subtask.
func (c *Coordinator) RestoreSubTask(ctx context.Context, projectID, subTaskID string, by domain.UserID, at time.Time) error {
	pd, err := c.aggregate(ctx, projectID)
	if err != nil {
		return err
	}
	var sub *domain.SubTask
	for i := range pd.SubTasks {
		if pd.SubTasks[i].ID == subTaskID {
			sub = &pd.SubTasks[i]
			break
		}
	}
	if sub == nil {
		return domain.Ef(domain.KindNotFound, "coordinator.restore_subtask", "subtask %s not found", subTaskID)
	}
	if !sub.Deleted {
		return domain.Ef(domain.KindValidation, "coordinator.restore_subtask", "subtask %s is not deleted", subTaskID)
	}
	at = defaultNow(at)

	insert := func(tx *sql.Tx) error {
		restored := *sub
		reviveStamp(&restored.Deleted, &restored.UpdatedBy, &restored.UpdatedAt, by, at)
		return sqliterepo.InsertSubTaskTx(ctx, tx, &restored)
	}
	flip := func(ctx context.Context) error {
		return crdtrepo.MarkSubTaskDeleted(ctx, c.mgr, projectID, subTaskID, false, by, at)
	}
	undo := func(tx *sql.Tx) error {
		_, err := sqliterepo.DeleteSubTaskRowTx(ctx, tx, projectID, subTaskID)
		return err
	}
	return c.runRestore(ctx, KindSubTask, subTaskID, projectID, by, insert, flip, undo)
}

// RestoreTaskList brings back a deleted list, its tasks and their children.
func (c *Coordinator) RestoreTaskList(ctx context.Context, projectID, listID string, by domain.UserID, at time.Time) error {
	pd, err := c.aggregate(ctx, projectID)
	if err != nil {
		return err
	}
	var list *domain.TaskList
	for i := range pd.TaskLists {
		if pd.TaskLists[i].ID == listID {
			list = &pd.TaskLists[i]
			break
		}
	}
	if list == nil {
		return domain.Ef(domain.KindNotFound, "coordinator.restore_task_list", "task list %s not found", listID)
	}
	if !list.Deleted {
		return domain.Ef(domain.KindValidation, "coordinator.restore_task_list", "task list %s is not deleted", listID)
	}
	at = defaultNow(at)

	insert := func(tx *sql.Tx) error {
		restored := *list
		reviveStamp(&restored.Deleted, &restored.UpdatedBy, &restored.UpdatedAt, by, at)
		if err := sqliterepo.InsertTaskListTx(ctx, tx, &restored); err != nil {
			return err
		}
		for i := range pd.Tasks {
			if pd.Tasks[i].ListID != listID {
				continue
			}
			task := pd.Tasks[i]
			reviveStamp(&task.Deleted, &task.UpdatedBy, &task.UpdatedAt, by, at)
			if err := sqliterepo.InsertTaskTx(ctx, tx, &task); err != nil {
				return err
			}
			if err := insertTaskChildren(ctx, tx, pd, task.ID, by, at); err != nil {
				return err
			}
		}
		return nil
	}
	flip := func(ctx context.Context) error {
		return crdtrepo.MarkTaskListCascade(ctx, c.mgr, projectID, listID, false, by, at)
	}
	undo := func(tx *sql.Tx) error {
		taskIDs, err := sqliterepo.TaskIDsByListTx(ctx, tx, projectID, listID)
		if err != nil {
			return err
		}
		for _, taskID := range taskIDs {
			for _, table := range relationTableNames {
				if _, err := sqliterepo.DeleteRelationsByParentTx(ctx, tx, table, projectID, taskID); err != nil {
					return err
				}
			}
			if _, err := sqliterepo.DeleteSubTasksByTaskTx(ctx, tx, projectID, taskID); err != nil {
				return err
			}
			if _, err := sqliterepo.DeleteTaskRowTx(ctx, tx, projectID, taskID); err != nil {
				return err
			}
		}
		_, err = sqliterepo.DeleteTaskListRowTx(ctx, tx, projectID, listID)
		return err
	}
	return c.runRestore(ctx, KindTaskList, listID, projectID, by, insert, flip, undo)
}

// RestoreProject rebuilds the project's whole relational aggregate from the
// document and flips every delete flag off.
func (c *Coordinator) RestoreProject(ctx context.Context, projectID string, by domain.UserID, at time.Time) error {
	pd, err := c.aggregate(ctx, projectID)
	if err != nil {
		return err
	}
	if !pd.Deleted {
		return domain.Ef(domain.KindValidation, "coordinator.restore_project", "project %s is not deleted", projectID)
	}
	at = defaultNow(at)

	insert := func(tx *sql.Tx) error {
		project := pd.Project
		reviveStamp(&project.Deleted, &project.UpdatedBy, &project.UpdatedAt, by, at)
		if err := sqliterepo.InsertProjectTx(ctx, tx, &project); err != nil {
			return err
		}
		for i := range pd.TaskLists {
			list := pd.TaskLists[i]
			reviveStamp(&list.Deleted, &list.UpdatedBy, &list.UpdatedAt, by, at)
			if err := sqliterepo.InsertTaskListTx(ctx, tx, &list); err != nil {
				return err
			}
		}
		for i := range pd.Tasks {
			task := pd.Tasks[i]
			reviveStamp(&task.Deleted, &task.UpdatedBy, &task.UpdatedAt, by, at)
			if err := sqliterepo.InsertTaskTx(ctx, tx, &task); err != nil {
				return err
			}
		}
		for i := range pd.SubTasks {
			sub := pd.SubTasks[i]
			reviveStamp(&sub.Deleted, &sub.UpdatedBy, &sub.UpdatedAt, by, at)
			if err := sqliterepo.InsertSubTaskTx(ctx, tx, &sub); err != nil {
				return err
			}
		}
		for i := range pd.Tags {
			tag := pd.Tags[i]
			reviveStamp(&tag.Deleted, &tag.UpdatedBy, &tag.UpdatedAt, by, at)
			if err := sqliterepo.InsertTagTx(ctx, tx, &tag); err != nil {
				return err
			}
		}
		for i := range pd.Members {
			member := pd.Members[i]
			reviveStamp(&member.Deleted, &member.UpdatedBy, &member.UpdatedAt, by, at)
			if err := sqliterepo.InsertMemberTx(ctx, tx, &member); err != nil {
				return err
			}
		}
		for table, rels := range map[string][]domain.Relation{
			sqliterepo.TableTaskTags:        pd.TaskTags,
			sqliterepo.TableTaskAssignments: pd.TaskAssignments,
			sqliterepo.TableTaskRecurrences: pd.TaskRecurrences,
		} {
			for i := range rels {
				rel := rels[i]
				reviveStamp(&rel.Deleted, &rel.UpdatedBy, &rel.UpdatedAt, by, at)
				if err := sqliterepo.InsertRelationTx(ctx, tx, table, &rel); err != nil {
					return err
				}
			}
		}
		return nil
	}
	flip := func(ctx context.Context) error {
		return crdtrepo.MarkProjectCascade(ctx, c.mgr, projectID, false, by, at)
	}
	undo := func(tx *sql.Tx) error {
		for _, table := range relationTableNames {
			if _, err := sqliterepo.DeleteRelationsByProjectTx(ctx, tx, table, projectID); err != nil {
				return err
			}
		}
		if _, err := sqliterepo.DeleteSubTasksByProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := sqliterepo.DeleteTasksByProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := sqliterepo.DeleteTaskListsByProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := sqliterepo.DeleteTagsByProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := sqliterepo.DeleteMembersByProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		_, err := sqliterepo.DeleteProjectRowTx(ctx, tx, projectID)
		return err
	}
	return c.runRestore(ctx, KindProject, projectID, projectID, by, insert, flip, undo)
}

func insertTaskChildren(ctx context.Context, tx *sql.Tx, pd *crdtrepo.ProjectDocument, taskID string, by domain.UserID, at time.Time) error {
	for i := range pd.SubTasks {
		if pd.SubTasks[i].TaskID != taskID {
			continue
		}
		sub := pd.SubTasks[i]
		reviveStamp(&sub.Deleted, &sub.UpdatedBy, &sub.UpdatedAt, by, at)
		if err := sqliterepo.InsertSubTaskTx(ctx, tx, &sub); err != nil {
			return err
		}
	}
	for table, rels := range map[string][]domain.Relation{
		sqliterepo.TableTaskTags:        pd.TaskTags,
		sqliterepo.TableTaskAssignments: pd.TaskAssignments,
		sqliterepo.TableTaskRecurrences: pd.TaskRecurrences,
	} {
		for i := range rels {
			if rels[i].ParentID != taskID {
				continue
			}
			rel := rels[i]
			reviveStamp(&rel.Deleted, &rel.UpdatedBy, &rel.UpdatedAt, by, at)
			if err := sqliterepo.InsertRelationTx(ctx, tx, table, &rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func findTask(pd *crdtrepo.ProjectDocument, taskID string) (*domain.Task, error) {
	for i := range pd.Tasks {
		if pd.Tasks[i].ID == taskID {
			return &pd.Tasks[i], nil
		}
	}
	return nil, domain.Ef(domain.KindNotFound, "coordinator.restore_task", "task %s not found", taskID)
}

func reviveStamp(deleted *bool, updatedBy *domain.UserID, updatedAt *time.Time, by domain.UserID, at time.Time) {
	*deleted = false
	*updatedBy = by
	*updatedAt = at
}

func defaultNow(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}
