package crdtrepo

import (
	"context"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
)

// Cascade marks flip the deleted flag of an entity and everything it owns in
// one automerge transaction, mirroring the relational cascade the
// coordinator performs so the two stores change in lock-step.

// MarkTaskCascade marks a task, its subtasks and its relation entries
// deleted (or active) in a single document update.
func MarkTaskCascade(ctx context.Context, mgr *docstore.Manager, projectID, taskID string, deleted bool, by domain.UserID, at time.Time) error {
	at = stampNow(at)
	return mgr.Update(ctx, DocID(projectID), "mark task cascade", func(doc *automerge.Doc) error {
		pd, err := readAggregate(doc)
		if err != nil {
			return err
		}
		found := false
		for i := range pd.Tasks {
			if pd.Tasks[i].ID == taskID {
				pd.Tasks[i].Deleted = deleted
				pd.Tasks[i].UpdatedBy = by
				pd.Tasks[i].UpdatedAt = at
				found = true
			}
		}
		if !found {
			return domain.Ef(domain.KindNotFound, "crdtrepo.mark_task", "task %s not found in project %s", taskID, projectID)
		}
		markSubTasksOf(pd, taskID, deleted, by, at)
		markRelationsOf(pd, taskID, deleted, by, at)
		return writeAggregate(doc, pd)
	})
}

// MarkTaskListCascade marks a task list, every task in it, and each of those
// tasks' children.
func MarkTaskListCascade(ctx context.Context, mgr *docstore.Manager, projectID, listID string, deleted bool, by domain.UserID, at time.Time) error {
	at = stampNow(at)
	return mgr.Update(ctx, DocID(projectID), "mark task list cascade", func(doc *automerge.Doc) error {
		pd, err := readAggregate(doc)
		if err != nil {
			return err
		}
		found := false
		for i := range pd.TaskLists {
			if pd.TaskLists[i].ID == listID {
				pd.TaskLists[i].Deleted = deleted
				pd.TaskLists[i].UpdatedBy = by
				pd.TaskLists[i].UpdatedAt = at
				found = true
			}
		}
		if !found {
			return domain.Ef(domain.KindNotFound, "crdtrepo.mark_task_list", "task list %s not found in project %s", listID, projectID)
		}
		for i := range pd.Tasks {
			if pd.Tasks[i].ListID != listID {
				continue
			}
			pd.Tasks[i].Deleted = deleted
			pd.Tasks[i].UpdatedBy = by
			pd.Tasks[i].UpdatedAt = at
			markSubTasksOf(pd, pd.Tasks[i].ID, deleted, by, at)
			markRelationsOf(pd, pd.Tasks[i].ID, deleted, by, at)
		}
		return writeAggregate(doc, pd)
	})
}

// MarkSubTaskDeleted flips one subtask; subtasks own nothing, so there is no
// cascade below them.
func MarkSubTaskDeleted(ctx context.Context, mgr *docstore.Manager, projectID, subTaskID string, deleted bool, by domain.UserID, at time.Time) error {
	at = stampNow(at)
	return mgr.Update(ctx, DocID(projectID), "mark subtask", func(doc *automerge.Doc) error {
		pd, err := readAggregate(doc)
		if err != nil {
			return err
		}
		for i := range pd.SubTasks {
			if pd.SubTasks[i].ID == subTaskID {
				pd.SubTasks[i].Deleted = deleted
				pd.SubTasks[i].UpdatedBy = by
				pd.SubTasks[i].UpdatedAt = at
				return writeAggregate(doc, pd)
			}
		}
		return domain.Ef(domain.KindNotFound, "crdtrepo.mark_subtask", "subtask %s not found in project %s", subTaskID, projectID)
	})
}

// MarkProjectCascade marks the project root and every collection entry.
func MarkProjectCascade(ctx context.Context, mgr *docstore.Manager, projectID string, deleted bool, by domain.UserID, at time.Time) error {
	at = stampNow(at)
	return mgr.Update(ctx, DocID(projectID), "mark project cascade", func(doc *automerge.Doc) error {
		pd, err := readAggregate(doc)
		if err != nil {
			return err
		}
		if pd.ID == "" {
			return domain.Ef(domain.KindNotFound, "crdtrepo.mark_project", "project %s not found", projectID)
		}
		pd.Deleted = deleted
		pd.UpdatedBy = by
		pd.UpdatedAt = at
		for i := range pd.TaskLists {
			pd.TaskLists[i].Deleted = deleted
			pd.TaskLists[i].UpdatedBy = by
			pd.TaskLists[i].UpdatedAt = at
		}
		for i := range pd.Tasks {
			pd.Tasks[i].Deleted = deleted
			pd.Tasks[i].UpdatedBy = by
			pd.Tasks[i].UpdatedAt = at
		}
		for i := range pd.SubTasks {
			pd.SubTasks[i].Deleted = deleted
			pd.SubTasks[i].UpdatedBy = by
			pd.SubTasks[i].UpdatedAt = at
		}
		for i := range pd.Tags {
			pd.Tags[i].Deleted = deleted
			pd.Tags[i].UpdatedBy = by
			pd.Tags[i].UpdatedAt = at
		}
		for i := range pd.Members {
			pd.Members[i].Deleted = deleted
			pd.Members[i].UpdatedBy = by
			pd.Members[i].UpdatedAt = at
		}
		markAllRelations(pd.TaskTags, deleted, by, at)
		markAllRelations(pd.TaskAssignments, deleted, by, at)
		markAllRelations(pd.TaskRecurrences, deleted, by, at)
		return writeAggregate(doc, pd)
	})
}

func markSubTasksOf(pd *ProjectDocument, taskID string, deleted bool, by domain.UserID, at time.Time) {
	for i := range pd.SubTasks {
		if pd.SubTasks[i].TaskID == taskID {
			pd.SubTasks[i].Deleted = deleted
			pd.SubTasks[i].UpdatedBy = by
			pd.SubTasks[i].UpdatedAt = at
		}
	}
}

func markRelationsOf(pd *ProjectDocument, parentID string, deleted bool, by domain.UserID, at time.Time) {
	for _, rels := range [][]domain.Relation{pd.TaskTags, pd.TaskAssignments, pd.TaskRecurrences} {
		for i := range rels {
			if rels[i].ParentID == parentID {
				rels[i].Deleted = deleted
				rels[i].UpdatedBy = by
				rels[i].UpdatedAt = at
			}
		}
	}
}

func markAllRelations(rels []domain.Relation, deleted bool, by domain.UserID, at time.Time) {
	for i := range rels {
		rels[i].Deleted = deleted
		rels[i].UpdatedBy = by
		rels[i].UpdatedAt = at
	}
}

func readAggregate(doc *automerge.Doc) (*ProjectDocument, error) {
	var pd ProjectDocument
	if err := crdtval.ReadRoot(doc, &pd); err != nil {
		return nil, err
	}
	return &pd, nil
}

func writeAggregate(doc *automerge.Doc, pd *ProjectDocument) error {
	return crdtval.WriteRoot(doc, pd)
}
