// Package crdtrepo implements the repository contracts against automerge
// aggregate documents. One document exists per project; its root keys are the
// project's own fields plus one list per owned collection. Soft deletion is
// the default delete semantic on this side: entries stay in the document with
// deleted=true so they remain restorable and merge-capable.
package crdtrepo

import (
	"context"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
)

// Collection keys inside a project document.
const (
	KeyTaskLists       = "task_lists"
	KeyTasks           = "tasks"
	KeySubTasks        = "subtasks"
	KeyTags            = "tags"
	KeyMembers         = "members"
	KeyTaskTags        = "task_tags"
	KeyTaskAssignments = "task_assignments"
	KeyTaskRecurrences = "task_recurrences"
)

// DocID names the document holding a project aggregate.
func DocID(projectID string) string { return "project_" + projectID }

// ProjectDocument is the decoded form of a whole project aggregate. A
// Snapshot of it is an independently-owned deep clone used only for
// compensation when a multi-step delete fails partway.
type ProjectDocument struct {
	domain.Project
	TaskLists       []domain.TaskList `json:"task_lists"`
	Tasks           []domain.Task     `json:"tasks"`
	SubTasks        []domain.SubTask  `json:"subtasks"`
	Tags            []domain.Tag      `json:"tags"`
	Members         []domain.Member   `json:"members"`
	TaskTags        []domain.Relation `json:"task_tags"`
	TaskAssignments []domain.Relation `json:"task_assignments"`
	TaskRecurrences []domain.Relation `json:"task_recurrences"`
}

// Snapshot decodes the current aggregate state into an independent copy.
func Snapshot(ctx context.Context, mgr *docstore.Manager, projectID string) (*ProjectDocument, error) {
	var pd ProjectDocument
	err := mgr.View(ctx, DocID(projectID), func(doc *automerge.Doc) error {
		return crdtval.ReadRoot(doc, &pd)
	})
	if err != nil {
		return nil, err
	}
	return &pd, nil
}

// RestoreSnapshot writes the snapshot back over the aggregate wholesale,
// replacing every root key it covers. Restoration is a fresh change on top of
// the document history, so CRDT merge behavior is preserved.
func RestoreSnapshot(ctx context.Context, mgr *docstore.Manager, projectID string, snap *ProjectDocument) error {
	return mgr.Update(ctx, DocID(projectID), "restore snapshot", func(doc *automerge.Doc) error {
		return crdtval.WriteRoot(doc, snap)
	})
}

func readCollection[T any](doc *automerge.Doc, key string) ([]T, error) {
	var items []T
	found, err := crdtval.ReadAt(doc, []string{key}, &items)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return items, nil
}

func writeCollection[T any](doc *automerge.Doc, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return crdtval.WriteAt(doc, []string{key}, items)
}

func stampNow(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}
