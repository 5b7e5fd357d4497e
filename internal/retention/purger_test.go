package retention_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/retention"
	"github.com/basket/taskvault/internal/sqliterepo"
)

func openStores(t *testing.T) (*sqliterepo.Store, *docstore.Manager) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqliterepo.Open(filepath.Join(dir, "taskvault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	mgr := docstore.NewManager(filepath.Join(dir, "docs"), slog.New(slog.DiscardHandler))
	return store, mgr
}

func TestNewPurgerRejectsBadSchedule(t *testing.T) {
	store, mgr := openStores(t)
	_, err := retention.NewPurger(retention.Config{
		Store:    store,
		Manager:  mgr,
		Schedule: "not a cron expression",
	})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	next, err := retention.NextRunTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("next run time: %v", err)
	}
	want := time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next run %v, got %v", want, next)
	}
}

func TestRunOncePurgesExpiredSoftDeletes(t *testing.T) {
	ctx := context.Background()
	store, mgr := openStores(t)

	old := time.Now().UTC().AddDate(0, 0, -60)
	fresh := time.Now().UTC()

	// Document side: one task soft-deleted long ago, one recently.
	project := domain.Project{ID: "p1", Name: "Launch", UpdatedAt: fresh, CreatedAt: fresh}
	if err := crdtrepo.NewProjectRepo(mgr).Save(ctx, &project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	tasks := crdtrepo.NewTaskRepo(mgr)
	stale := domain.Task{ID: "t-old", ProjectID: "p1", ListID: "l1", Title: "stale", Deleted: true, UpdatedAt: old, CreatedAt: old}
	recent := domain.Task{ID: "t-new", ProjectID: "p1", ListID: "l1", Title: "recent", Deleted: true, UpdatedAt: fresh, CreatedAt: fresh}
	if err := tasks.Save(ctx, "p1", &stale); err != nil {
		t.Fatalf("seed stale task: %v", err)
	}
	if err := tasks.Save(ctx, "p1", &recent); err != nil {
		t.Fatalf("seed recent task: %v", err)
	}

	// Relational side: one soft-deleted row past the window. The project row
	// must exist first for the foreign key.
	if err := sqliterepo.NewProjectRepo(store).Save(ctx, &project); err != nil {
		t.Fatalf("seed sqlite project: %v", err)
	}
	if err := sqliterepo.NewTaskRepo(store).Save(ctx, "p1", &stale); err != nil {
		t.Fatalf("seed sqlite task: %v", err)
	}

	p, err := retention.NewPurger(retention.Config{
		Store:           store,
		Manager:         mgr,
		Logger:          slog.New(slog.DiscardHandler),
		SoftDeletedDays: 30,
	})
	if err != nil {
		t.Fatalf("new purger: %v", err)
	}

	res, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.DocumentEntries != 1 {
		t.Fatalf("expected 1 purged document entry, got %d", res.DocumentEntries)
	}
	if res.RelationalRows != 1 {
		t.Fatalf("expected 1 purged relational row, got %d", res.RelationalRows)
	}

	// The recently deleted task survives the sweep.
	deleted, err := tasks.FindDeleted(ctx, "p1")
	if err != nil {
		t.Fatalf("find deleted: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != "t-new" {
		t.Fatalf("expected only the recent soft-delete to survive, got %+v", deleted)
	}

	// Idempotent: a second sweep removes nothing more.
	res, err = p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run once: %v", err)
	}
	if res.DocumentEntries != 0 || res.RelationalRows != 0 {
		t.Fatalf("expected idempotent second sweep, got %+v", res)
	}
}
