package service_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/basket/taskvault/internal/coordinator"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/repo"
	"github.com/basket/taskvault/internal/service"
	"github.com/basket/taskvault/internal/sqliterepo"
)

const actor = domain.UserID("alice")

type env struct {
	svc   *service.Services
	store *sqliterepo.Store
	mgr   *docstore.Manager
}

func newEnv(t *testing.T, order service.BackendOrder) *env {
	t.Helper()
	dir := t.TempDir()

	store, err := sqliterepo.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.DiscardHandler)
	mgr := docstore.NewManager(filepath.Join(dir, "docs"), logger)
	coord := coordinator.New(store, mgr, logger)

	svc, err := service.New(store, mgr, coord, order, logger)
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	return &env{svc: svc, store: store, mgr: mgr}
}

func (e *env) project(t *testing.T) *domain.Project {
	t.Helper()
	p, err := e.svc.Projects.Create(context.Background(), &domain.Project{Name: "Launch"}, actor)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (e *env) list(t *testing.T, projectID string) *domain.TaskList {
	t.Helper()
	l, err := e.svc.TaskLists.Create(context.Background(), projectID, &domain.TaskList{Name: "Backlog"}, actor)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	return l
}

func TestCreateFansOutToBothBackends(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.BackendOrder{
		Save:   []repo.BackendKind{repo.BackendSQLite, repo.BackendAutomerge},
		Search: []repo.BackendKind{repo.BackendSQLite},
	})
	p := e.project(t)
	l := e.list(t, p.ID)

	task, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: l.ID, Title: "Write docs"}, actor)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated task id")
	}
	if task.UpdatedBy != actor || task.CreatedAt.IsZero() {
		t.Fatalf("expected audit fields stamped, got %+v", task)
	}

	// Both backends hold the record even though only one serves reads.
	fromSQL, err := sqliterepo.NewTaskRepo(e.store).FindByID(ctx, p.ID, task.ID)
	if err != nil || fromSQL == nil {
		t.Fatalf("expected task in sqlite backend, got %v err %v", fromSQL, err)
	}
	fromDoc, err := crdtrepo.NewTaskRepo(e.mgr).FindByID(ctx, p.ID, task.ID)
	if err != nil || fromDoc == nil {
		t.Fatalf("expected task in document backend, got %v err %v", fromDoc, err)
	}
	if fromSQL.Title != fromDoc.Title {
		t.Fatalf("backends disagree: %q vs %q", fromSQL.Title, fromDoc.Title)
	}
}

func TestSearchFallsThroughToSecondBackend(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.BackendOrder{
		Save:   []repo.BackendKind{repo.BackendSQLite, repo.BackendAutomerge},
		Search: []repo.BackendKind{repo.BackendSQLite, repo.BackendAutomerge},
	})
	p := e.project(t)

	// Record present only on the document side.
	only := &domain.Task{ID: "t-doc", ProjectID: p.ID, ListID: "l1", Title: "Doc only", Status: domain.TaskStatusTodo}
	if err := crdtrepo.NewTaskRepo(e.mgr).Save(ctx, p.ID, only); err != nil {
		t.Fatalf("seed document task: %v", err)
	}

	got, err := e.svc.Tasks.Get(ctx, p.ID, "t-doc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Doc only" {
		t.Fatalf("expected document-side record, got %+v", got)
	}
}

func TestValidationErrorsPassThroughTyped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)

	_, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: "l1"}, actor)
	if err == nil {
		t.Fatal("expected validation error for missing title")
	}
	if !domain.IsValidation(err) {
		t.Fatalf("expected typed validation error, got %T: %v", err, err)
	}

	_, err = e.svc.Tasks.Create(ctx, "", &domain.Task{ListID: "l1", Title: "x"}, actor)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing project id, got %v", err)
	}
}

func TestNotFoundFlattensToMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)

	_, err := e.svc.Tasks.Get(ctx, p.ID, "nope")
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
	var msg service.ErrorMessage
	if !errors.As(err, &msg) {
		t.Fatalf("expected flattened ErrorMessage, got %T: %v", err, err)
	}
	if domain.IsValidation(err) {
		t.Fatal("not-found must not surface as validation")
	}
}

func TestMarkAllAndRestoreAllTasks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)
	l := e.list(t, p.ID)

	for _, title := range []string{"one", "two"} {
		if _, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: l.ID, Title: title}, actor); err != nil {
			t.Fatalf("create task %q: %v", title, err)
		}
	}

	sweeper := domain.UserID("bob")
	n, err := e.svc.Tasks.MarkAllTasksDeleted(ctx, p.ID, sweeper)
	if err != nil {
		t.Fatalf("mark all deleted: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tasks marked, got %d", n)
	}

	active, err := e.svc.Tasks.ActiveTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("active tasks: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active tasks, got %d", len(active))
	}

	deleted, err := e.svc.Tasks.DeletedTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("deleted tasks: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 deleted tasks, got %d", len(deleted))
	}
	for _, d := range deleted {
		if d.UpdatedBy != sweeper {
			t.Fatalf("expected updated_by %q on deleted task, got %q", sweeper, d.UpdatedBy)
		}
	}

	n, err = e.svc.Tasks.RestoreAllTasks(ctx, p.ID, actor)
	if err != nil {
		t.Fatalf("restore all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tasks restored, got %d", n)
	}
	active, err = e.svc.Tasks.ActiveTasks(ctx, p.ID)
	if err != nil || len(active) != 2 {
		t.Fatalf("expected 2 active tasks after restore, got %d err %v", len(active), err)
	}
	for _, a := range active {
		if a.UpdatedBy != actor {
			t.Fatalf("expected updated_by %q after restore, got %q", actor, a.UpdatedBy)
		}
	}
}

func TestSnapshotRestoreScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)
	l := e.list(t, p.ID)

	if _, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: l.ID, Title: "first"}, actor); err != nil {
		t.Fatalf("create first task: %v", err)
	}

	snap, err := e.svc.Projects.SnapshotProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Tasks) != 1 {
		t.Fatalf("expected 1 task in snapshot, got %d", len(snap.Tasks))
	}

	if _, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: l.ID, Title: "second"}, actor); err != nil {
		t.Fatalf("create second task: %v", err)
	}
	n, err := crdtrepo.NewTaskRepo(e.mgr).Count(ctx, p.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 tasks in document before restore, got %d err %v", n, err)
	}

	if err := e.svc.Projects.RestoreProjectSnapshot(ctx, p.ID, snap); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	n, err = crdtrepo.NewTaskRepo(e.mgr).Count(ctx, p.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected document back to 1 task after restore, got %d err %v", n, err)
	}
}

func TestRelationAttachIdempotentDetachNoop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)

	rels := e.svc.TaskTags
	if err := rels.Attach(ctx, p.ID, "t1", "tag1", actor); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := rels.Attach(ctx, p.ID, "t1", "tag1", actor); err != nil {
		t.Fatalf("second attach must be idempotent: %v", err)
	}
	n, err := rels.Count(ctx, p.ID, "t1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 relation after double attach, got %d err %v", n, err)
	}

	if err := rels.Detach(ctx, p.ID, "t1", "tag1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := rels.Detach(ctx, p.ID, "t1", "tag1"); err != nil {
		t.Fatalf("detach of absent relation must be a no-op: %v", err)
	}
	n, err = rels.Count(ctx, p.ID, "t1")
	if err != nil || n != 0 {
		t.Fatalf("expected 0 relations after detach, got %d err %v", n, err)
	}

	if err := rels.DetachAll(ctx, p.ID, "t1"); err != nil {
		t.Fatalf("detach all on empty set must be a no-op: %v", err)
	}
}

func TestProjectDeleteAndRestoreLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, service.DefaultOrder())
	p := e.project(t)
	l := e.list(t, p.ID)
	if _, err := e.svc.Tasks.Create(ctx, p.ID, &domain.Task{ListID: l.ID, Title: "keep me"}, actor); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := e.svc.Projects.Delete(ctx, p.ID, actor); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := e.svc.Projects.Get(ctx, p.ID); err == nil {
		t.Fatal("expected get to fail after delete")
	}
	gone, err := e.svc.Projects.DeletedProject(ctx, p.ID)
	if err != nil || gone == nil {
		t.Fatalf("expected deleted project visible via DeletedProject, got %v err %v", gone, err)
	}

	if err := e.svc.Projects.Restore(ctx, p.ID, actor); err != nil {
		t.Fatalf("restore project: %v", err)
	}
	back, err := e.svc.Projects.Get(ctx, p.ID)
	if err != nil || back == nil {
		t.Fatalf("expected project back after restore, got %v err %v", back, err)
	}
	tasks, err := e.svc.Tasks.ActiveTasks(ctx, p.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected task back with project, got %d err %v", len(tasks), err)
	}
}
