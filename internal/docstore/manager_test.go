package docstore_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/docstore"
)

func newManager(t *testing.T) (*docstore.Manager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "docs")
	return docstore.NewManager(dir, slog.New(slog.DiscardHandler)), dir
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	if err := mgr.Save(ctx, "project_p1", []string{"name"}, "Launch"); err != nil {
		t.Fatalf("save: %v", err)
	}

	var name string
	found, err := mgr.Load(ctx, "project_p1", []string{"name"}, &name)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found || name != "Launch" {
		t.Fatalf("expected Launch, got found=%t %q", found, name)
	}

	found, err = mgr.Load(ctx, "project_p1", []string{"missing"}, &name)
	if err != nil {
		t.Fatalf("load absent: %v", err)
	}
	if found {
		t.Fatal("absent path reported found")
	}
}

func TestDocumentSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	mgr, dir := newManager(t)

	if err := mgr.Save(ctx, "project_p1", []string{"name"}, "Launch"); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh manager over the same directory loads the persisted state.
	reopened := docstore.NewManager(dir, slog.New(slog.DiscardHandler))
	var name string
	found, err := reopened.Load(ctx, "project_p1", []string{"name"}, &name)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if !found || name != "Launch" {
		t.Fatalf("state lost across reopen: found=%t %q", found, name)
	}
}

func TestOneIdentityOneDocument(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	// Concurrent first access to the same id must converge on one handle:
	// every write lands in the same document.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.GetOrCreate(ctx, "project_p1")
		}()
	}
	wg.Wait()

	if got := mgr.OpenDocIDs(); len(got) != 1 || got[0] != "project_p1" {
		t.Fatalf("expected one cached handle, got %v", got)
	}
}

func TestUpdateIsOneTransaction(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	err := mgr.Update(ctx, "project_p1", "seed", func(doc *automerge.Doc) error {
		if err := crdtval.WriteAt(doc, []string{"a"}, 1); err != nil {
			return err
		}
		return crdtval.WriteAt(doc, []string{"b"}, 2)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = mgr.View(ctx, "project_p1", func(doc *automerge.Doc) error {
		changes, err := doc.Changes()
		if err != nil {
			return err
		}
		if len(changes) != 1 {
			t.Fatalf("expected one committed change, got %d", len(changes))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdateFailureDiscardsPartialMutation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	if err := mgr.Save(ctx, "project_p1", []string{"name"}, "Launch"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// fn mutates the document and then fails: the uncommitted ops must not
	// ride along with the next successful commit.
	boom := errors.New("boom")
	err := mgr.Update(ctx, "project_p1", "partial", func(doc *automerge.Doc) error {
		if err := crdtval.WriteAt(doc, []string{"stray"}, "leak"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	if err := mgr.Save(ctx, "project_p1", []string{"name"}, "Launch v2"); err != nil {
		t.Fatalf("follow-up save: %v", err)
	}

	var s string
	found, err := mgr.Load(ctx, "project_p1", []string{"stray"}, &s)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatal("partial mutation committed by the next update")
	}
	var name string
	if _, err := mgr.Load(ctx, "project_p1", []string{"name"}, &name); err != nil || name != "Launch v2" {
		t.Fatalf("follow-up state lost: %q %v", name, err)
	}
}

func TestExistsAndList(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	if mgr.Exists("project_p1") {
		t.Fatal("exists before creation")
	}
	if err := mgr.GetOrCreate(ctx, "project_p1"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := mgr.GetOrCreate(ctx, "project_p2"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !mgr.Exists("project_p1") {
		t.Fatal("exists missing after creation")
	}

	ids, err := mgr.ListDocumentIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 documents, got %v", ids)
	}
}

func TestListOnMissingDirIsEmpty(t *testing.T) {
	mgr := docstore.NewManager(filepath.Join(t.TempDir(), "never-created"), slog.New(slog.DiscardHandler))
	ids, err := mgr.ListDocumentIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no documents, got %v", ids)
	}
}

func TestPersistLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	mgr, dir := newManager(t)

	if err := mgr.Save(ctx, "project_p1", []string{"name"}, "Launch"); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
