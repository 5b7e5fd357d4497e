package coordinator

import (
	"context"
	"database/sql"
	"time"

	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/sqliterepo"
)

var relationTableNames = []string{
	sqliterepo.TableTaskTags,
	sqliterepo.TableTaskAssignments,
	sqliterepo.TableTaskRecurrences,
}

// DeleteTask removes a task's relational rows and everything the task owns,
// and marks the task cascade deleted in the project document. Children go
// first so foreign keys never dangle mid-transaction.
func (c *Coordinator) DeleteTask(ctx context.Context, projectID, taskID string, by domain.UserID, at time.Time) error {
	steps := func(tx *sql.Tx) []txStep {
		return []txStep{
			{name: "delete_relations", run: func(ctx context.Context) error {
				for _, table := range relationTableNames {
					if _, err := sqliterepo.DeleteRelationsByParentTx(ctx, tx, table, projectID, taskID); err != nil {
						return err
					}
				}
				return nil
			}},
			{name: "delete_subtasks", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteSubTasksByTaskTx(ctx, tx, projectID, taskID)
				return err
			}},
			{name: "delete_task_row", run: func(ctx context.Context) error {
				n, err := sqliterepo.DeleteTaskRowTx(ctx, tx, projectID, taskID)
				if err != nil {
					return err
				}
				return requireRows(n, "coordinator.delete_task", KindTask, taskID)
			}},
		}
	}
	mark := func(ctx context.Context) error {
		return crdtrepo.MarkTaskCascade(ctx, c.mgr, projectID, taskID, true, by, at)
	}
	return c.runDelete(ctx, KindTask, taskID, projectID, by, steps, mark)
}

// DeleteSubTask removes one subtask row and marks it deleted in the
// document. Subtasks own nothing, so there is no cascade.
func (c *Coordinator) DeleteSubTask(ctx context.Context, projectID, subTaskID string, by domain.UserID, at time.Time) error {
	steps := func(tx *sql.Tx) []txStep {
		return []txStep{
			{name: "delete_subtask_row", run: func(ctx context.Context) error {
				n, err := sqliterepo.DeleteSubTaskRowTx(ctx, tx, projectID, subTaskID)
				if err != nil {
					return err
				}
				return requireRows(n, "coordinator.delete_subtask", KindSubTask, subTaskID)
			}},
		}
	}
	mark := func(ctx context.Context) error {
		return crdtrepo.MarkSubTaskDeleted(ctx, c.mgr, projectID, subTaskID, true, by, at)
	}
	return c.runDelete(ctx, KindSubTask, subTaskID, projectID, by, steps, mark)
}

// DeleteTaskList cascades through every task in the list before removing the
// list row itself.
func (c *Coordinator) DeleteTaskList(ctx context.Context, projectID, listID string, by domain.UserID, at time.Time) error {
	steps := func(tx *sql.Tx) []txStep {
		return []txStep{
			{name: "delete_list_tasks", run: func(ctx context.Context) error {
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
				return nil
			}},
			{name: "delete_list_row", run: func(ctx context.Context) error {
				n, err := sqliterepo.DeleteTaskListRowTx(ctx, tx, projectID, listID)
				if err != nil {
					return err
				}
				return requireRows(n, "coordinator.delete_task_list", KindTaskList, listID)
			}},
		}
	}
	mark := func(ctx context.Context) error {
		return crdtrepo.MarkTaskListCascade(ctx, c.mgr, projectID, listID, true, by, at)
	}
	return c.runDelete(ctx, KindTaskList, listID, projectID, by, steps, mark)
}

// DeleteProject removes the whole relational aggregate bottom-up and marks
// every entry of the project document deleted.
func (c *Coordinator) DeleteProject(ctx context.Context, projectID string, by domain.UserID, at time.Time) error {
	steps := func(tx *sql.Tx) []txStep {
		return []txStep{
			{name: "delete_relations", run: func(ctx context.Context) error {
				for _, table := range relationTableNames {
					if _, err := sqliterepo.DeleteRelationsByProjectTx(ctx, tx, table, projectID); err != nil {
						return err
					}
				}
				return nil
			}},
			{name: "delete_subtasks", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteSubTasksByProjectTx(ctx, tx, projectID)
				return err
			}},
			{name: "delete_tasks", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteTasksByProjectTx(ctx, tx, projectID)
				return err
			}},
			{name: "delete_task_lists", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteTaskListsByProjectTx(ctx, tx, projectID)
				return err
			}},
			{name: "delete_tags", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteTagsByProjectTx(ctx, tx, projectID)
				return err
			}},
			{name: "delete_members", run: func(ctx context.Context) error {
				_, err := sqliterepo.DeleteMembersByProjectTx(ctx, tx, projectID)
				return err
			}},
			{name: "delete_project_row", run: func(ctx context.Context) error {
				n, err := sqliterepo.DeleteProjectRowTx(ctx, tx, projectID)
				if err != nil {
					return err
				}
				return requireRows(n, "coordinator.delete_project", KindProject, projectID)
			}},
		}
	}
	mark := func(ctx context.Context) error {
		return crdtrepo.MarkProjectCascade(ctx, c.mgr, projectID, true, by, at)
	}
	return c.runDelete(ctx, KindProject, projectID, projectID, by, steps, mark)
}
