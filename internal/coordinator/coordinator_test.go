package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/sqliterepo"
)

const testUser = domain.UserID("alice")

type fixture struct {
	coord *Coordinator
	store *sqliterepo.Store
	mgr   *docstore.Manager
}

// newFixture seeds both stores with one project holding a list, two tasks,
// a subtask and a tag link under the first task.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqliterepo.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.DiscardHandler)
	mgr := docstore.NewManager(filepath.Join(dir, "docs"), logger)

	now := time.Now().UTC().Truncate(time.Second)
	project := domain.Project{ID: "p1", Name: "Launch", OwnerID: testUser, UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}
	list := domain.TaskList{ID: "l1", ProjectID: "p1", Name: "Backlog", UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}
	task1 := domain.Task{ID: "t1", ProjectID: "p1", ListID: "l1", Title: "Write docs", Status: domain.TaskStatusTodo, UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}
	task2 := domain.Task{ID: "t2", ProjectID: "p1", ListID: "l1", Title: "Ship it", Status: domain.TaskStatusTodo, UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}
	sub := domain.SubTask{ID: "s1", ProjectID: "p1", TaskID: "t1", Title: "Outline", UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}
	tag := domain.Tag{ID: "tag1", ProjectID: "p1", Name: "docs", UpdatedBy: testUser, CreatedAt: now, UpdatedAt: now}

	if err := sqliterepo.NewProjectRepo(store).Save(ctx, &project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if err := sqliterepo.NewTaskListRepo(store).Save(ctx, "p1", &list); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	taskRepo := sqliterepo.NewTaskRepo(store)
	if err := taskRepo.Save(ctx, "p1", &task1); err != nil {
		t.Fatalf("seed task1: %v", err)
	}
	if err := taskRepo.Save(ctx, "p1", &task2); err != nil {
		t.Fatalf("seed task2: %v", err)
	}
	if err := sqliterepo.NewSubTaskRepo(store).Save(ctx, "p1", &sub); err != nil {
		t.Fatalf("seed subtask: %v", err)
	}
	if err := sqliterepo.NewTagRepo(store).Save(ctx, "p1", &tag); err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	tagRel, err := sqliterepo.NewRelationRepo(store, sqliterepo.TableTaskTags)
	if err != nil {
		t.Fatalf("relation repo: %v", err)
	}
	if err := tagRel.Add(ctx, "p1", "t1", "tag1", testUser); err != nil {
		t.Fatalf("seed relation: %v", err)
	}

	if err := crdtrepo.NewProjectRepo(mgr).Save(ctx, &project); err != nil {
		t.Fatalf("seed crdt project: %v", err)
	}
	if err := crdtrepo.NewTaskListRepo(mgr).Save(ctx, "p1", &list); err != nil {
		t.Fatalf("seed crdt list: %v", err)
	}
	crdtTasks := crdtrepo.NewTaskRepo(mgr)
	if err := crdtTasks.Save(ctx, "p1", &task1); err != nil {
		t.Fatalf("seed crdt task1: %v", err)
	}
	if err := crdtTasks.Save(ctx, "p1", &task2); err != nil {
		t.Fatalf("seed crdt task2: %v", err)
	}
	if err := crdtrepo.NewSubTaskRepo(mgr).Save(ctx, "p1", &sub); err != nil {
		t.Fatalf("seed crdt subtask: %v", err)
	}
	if err := crdtrepo.NewTagRepo(mgr).Save(ctx, "p1", &tag); err != nil {
		t.Fatalf("seed crdt tag: %v", err)
	}
	if err := crdtrepo.NewTaskTagRepo(mgr).Add(ctx, "p1", "t1", "tag1", testUser); err != nil {
		t.Fatalf("seed crdt relation: %v", err)
	}

	return &fixture{
		coord: New(store, mgr, logger),
		store: store,
		mgr:   mgr,
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteTask(ctx, "p1", "t1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	// Relational rows are hard-deleted.
	tasks := sqliterepo.NewTaskRepo(f.store)
	got, err := tasks.FindByID(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if got != nil {
		t.Fatal("expected task row gone after delete")
	}
	subs, err := sqliterepo.NewSubTaskRepo(f.store).FindByTask(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("find subtasks: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected subtask rows gone, got %d", len(subs))
	}
	tagRel, _ := sqliterepo.NewRelationRepo(f.store, sqliterepo.TableTaskTags)
	n, err := tagRel.Count(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("count relations: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected relation rows gone, got %d", n)
	}

	// Sibling task is untouched.
	sibling, err := tasks.FindByID(ctx, "p1", "t2")
	if err != nil || sibling == nil {
		t.Fatalf("expected sibling task to survive, got %v err %v", sibling, err)
	}

	// Document side keeps the task but marked deleted.
	crdtTasks := crdtrepo.NewTaskRepo(f.mgr)
	active, err := crdtTasks.FindByID(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("crdt find: %v", err)
	}
	if active != nil {
		t.Fatal("expected task hidden from active reads on document side")
	}
	deleted, err := crdtTasks.FindDeleted(ctx, "p1")
	if err != nil {
		t.Fatalf("crdt find deleted: %v", err)
	}
	found := false
	for _, d := range deleted {
		if d.ID == "t1" {
			found = true
			if d.UpdatedBy != testUser {
				t.Fatalf("expected updated_by %q, got %q", testUser, d.UpdatedBy)
			}
		}
	}
	if !found {
		t.Fatal("expected task in document's deleted set")
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.coord.DeleteTask(ctx, "p1", "missing", testUser, time.Time{})
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}

	// Nothing was deleted.
	got, err := sqliterepo.NewTaskRepo(f.store).FindByID(ctx, "p1", "t1")
	if err != nil || got == nil {
		t.Fatalf("expected existing task untouched, got %v err %v", got, err)
	}
}

func TestDeleteTaskCommitFailureCompensates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	injected := errors.New("disk full")
	f.coord.commitTx = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return injected
	}

	err := f.coord.DeleteTask(ctx, "p1", "t1", testUser, time.Time{})
	if err == nil {
		t.Fatal("expected delete to fail")
	}
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected commit error in chain, got %v", err)
	}

	// Relational side rolled back.
	got, ferr := sqliterepo.NewTaskRepo(f.store).FindByID(ctx, "p1", "t1")
	if ferr != nil || got == nil {
		t.Fatalf("expected task row back after rollback, got %v err %v", got, ferr)
	}
	subs, ferr := sqliterepo.NewSubTaskRepo(f.store).FindByTask(ctx, "p1", "t1")
	if ferr != nil || len(subs) != 1 {
		t.Fatalf("expected subtask row back after rollback, got %d err %v", len(subs), ferr)
	}

	// Document side compensated from the snapshot: task active again.
	active, ferr := crdtrepo.NewTaskRepo(f.mgr).FindByID(ctx, "p1", "t1")
	if ferr != nil {
		t.Fatalf("crdt find: %v", ferr)
	}
	if active == nil {
		t.Fatal("expected snapshot restore to revive the task on document side")
	}
}

func TestRestoreTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteTask(ctx, "p1", "t1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	restorer := domain.UserID("bob")
	if err := f.coord.RestoreTask(ctx, "p1", "t1", restorer, time.Time{}); err != nil {
		t.Fatalf("restore task: %v", err)
	}

	// Relational rows are back, including children.
	got, err := sqliterepo.NewTaskRepo(f.store).FindByID(ctx, "p1", "t1")
	if err != nil || got == nil {
		t.Fatalf("expected task row restored, got %v err %v", got, err)
	}
	if got.UpdatedBy != restorer {
		t.Fatalf("expected updated_by %q after restore, got %q", restorer, got.UpdatedBy)
	}
	subs, err := sqliterepo.NewSubTaskRepo(f.store).FindByTask(ctx, "p1", "t1")
	if err != nil || len(subs) != 1 {
		t.Fatalf("expected subtask restored, got %d err %v", len(subs), err)
	}
	tagRel, _ := sqliterepo.NewRelationRepo(f.store, sqliterepo.TableTaskTags)
	exists, err := tagRel.Exists(ctx, "p1", "t1", "tag1")
	if err != nil || !exists {
		t.Fatalf("expected tag relation restored, exists=%v err %v", exists, err)
	}

	// Document side active again.
	active, err := crdtrepo.NewTaskRepo(f.mgr).FindByID(ctx, "p1", "t1")
	if err != nil || active == nil {
		t.Fatalf("expected task active on document side, got %v err %v", active, err)
	}
}

func TestRestoreTaskNotDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.coord.RestoreTask(ctx, "p1", "t1", testUser, time.Time{})
	if err == nil {
		t.Fatal("expected error restoring an active task")
	}
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteTaskListCascadesTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteTaskList(ctx, "p1", "l1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	lists := sqliterepo.NewTaskListRepo(f.store)
	gotList, err := lists.FindByID(ctx, "p1", "l1")
	if err != nil || gotList != nil {
		t.Fatalf("expected list row gone, got %v err %v", gotList, err)
	}
	n, err := sqliterepo.NewTaskRepo(f.store).Count(ctx, "p1")
	if err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected both tasks cascaded away, got %d", n)
	}

	deletedTasks, err := crdtrepo.NewTaskRepo(f.mgr).FindDeleted(ctx, "p1")
	if err != nil {
		t.Fatalf("crdt find deleted: %v", err)
	}
	if len(deletedTasks) != 2 {
		t.Fatalf("expected both tasks marked deleted in document, got %d", len(deletedTasks))
	}
}

func TestRestoreTaskListRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteTaskList(ctx, "p1", "l1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	if err := f.coord.RestoreTaskList(ctx, "p1", "l1", testUser, time.Time{}); err != nil {
		t.Fatalf("restore list: %v", err)
	}

	gotList, err := sqliterepo.NewTaskListRepo(f.store).FindByID(ctx, "p1", "l1")
	if err != nil || gotList == nil {
		t.Fatalf("expected list restored, got %v err %v", gotList, err)
	}
	n, err := sqliterepo.NewTaskRepo(f.store).Count(ctx, "p1")
	if err != nil || n != 2 {
		t.Fatalf("expected both tasks restored, got %d err %v", n, err)
	}
}

func TestDeleteAndRestoreProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteProject(ctx, "p1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	gotProject, err := sqliterepo.NewProjectRepo(f.store).FindByID(ctx, "p1")
	if err != nil || gotProject != nil {
		t.Fatalf("expected project row gone, got %v err %v", gotProject, err)
	}
	deletedProject, err := crdtrepo.NewProjectRepo(f.mgr).FindDeletedByID(ctx, "p1")
	if err != nil || deletedProject == nil {
		t.Fatalf("expected project in document's deleted set, got %v err %v", deletedProject, err)
	}

	if err := f.coord.RestoreProject(ctx, "p1", testUser, time.Time{}); err != nil {
		t.Fatalf("restore project: %v", err)
	}
	gotProject, err = sqliterepo.NewProjectRepo(f.store).FindByID(ctx, "p1")
	if err != nil || gotProject == nil {
		t.Fatalf("expected project restored, got %v err %v", gotProject, err)
	}
	n, err := sqliterepo.NewTaskRepo(f.store).Count(ctx, "p1")
	if err != nil || n != 2 {
		t.Fatalf("expected tasks restored with project, got %d err %v", n, err)
	}
	tagRel, _ := sqliterepo.NewRelationRepo(f.store, sqliterepo.TableTaskTags)
	exists, err := tagRel.Exists(ctx, "p1", "t1", "tag1")
	if err != nil || !exists {
		t.Fatalf("expected relation restored with project, exists=%v err %v", exists, err)
	}
}

func TestDeleteSubTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.coord.DeleteSubTask(ctx, "p1", "s1", testUser, time.Time{}); err != nil {
		t.Fatalf("delete subtask: %v", err)
	}
	subs, err := sqliterepo.NewSubTaskRepo(f.store).FindByTask(ctx, "p1", "t1")
	if err != nil || len(subs) != 0 {
		t.Fatalf("expected subtask row gone, got %d err %v", len(subs), err)
	}
	if err := f.coord.RestoreSubTask(ctx, "p1", "s1", testUser, time.Time{}); err != nil {
		t.Fatalf("restore subtask: %v", err)
	}
	subs, err = sqliterepo.NewSubTaskRepo(f.store).FindByTask(ctx, "p1", "t1")
	if err != nil || len(subs) != 1 {
		t.Fatalf("expected subtask restored, got %d err %v", len(subs), err)
	}
}
