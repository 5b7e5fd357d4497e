// Package docstore owns the set of open automerge documents. Each logical
// document identity (one per project aggregate) maps to one file on disk and
// at most one live in-memory handle. All mutation goes through the manager's
// locked accessors; two concurrent mutations of the same document serialize
// while reads of different documents proceed in parallel.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/domain"
)

type handle struct {
	mu   sync.RWMutex
	doc  *automerge.Doc
	path string
}

// Manager caches document handles keyed by document id and loads or creates
// the backing files lazily.
type Manager struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger
	docs   map[string]*handle
}

func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dir:    dir,
		logger: logger.With("component", "docstore"),
		docs:   make(map[string]*handle),
	}
}

// DocumentPath returns the on-disk location for a document id.
func (m *Manager) DocumentPath(docID string) string {
	return filepath.Join(m.dir, docID+".automerge")
}

// GetOrCreate ensures a document exists for docID, loading it from disk or
// allocating a fresh one when absent.
func (m *Manager) GetOrCreate(ctx context.Context, docID string) error {
	_, err := m.getOrCreate(ctx, docID)
	return err
}

// getOrCreate returns the cached handle for docID. Safe under concurrent
// callers for the same id: the cache is double-checked under the write lock
// so one identity never yields two documents.
func (m *Manager) getOrCreate(ctx context.Context, docID string) (*handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	h, ok := m.docs[docID]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.docs[docID]; ok {
		return h, nil
	}

	path := m.DocumentPath(docID)
	var doc *automerge.Doc
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		doc, err = automerge.Load(raw)
		if err != nil {
			return nil, domain.E(domain.KindAutomerge, "docstore.load", err)
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(m.dir, 0o755); mkErr != nil {
			return nil, domain.E(domain.KindIO, "docstore.create", mkErr)
		}
		doc = automerge.New()
		if wErr := persist(doc, path); wErr != nil {
			return nil, wErr
		}
		m.logger.Info("document created", "doc_id", docID, "path", path)
	default:
		return nil, domain.E(domain.KindIO, "docstore.load", err)
	}

	h = &handle{doc: doc, path: path}
	m.docs[docID] = h
	return h, nil
}

// Save writes value at path inside the document and persists the committed
// state to disk. The document's write lock is held for the whole transaction
// so a reader never observes a half-written tree.
func (m *Manager) Save(ctx context.Context, docID string, path []string, value any) error {
	h, err := m.getOrCreate(ctx, docID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := crdtval.WriteAt(h.doc, path, value); err != nil {
		m.revert(docID, h)
		return err
	}
	if err := commit(h.doc, "save "+strings.Join(path, ".")); err != nil {
		m.revert(docID, h)
		return err
	}
	return persist(h.doc, h.path)
}

// Load reads the value at path into out. It reports false when the path is
// absent; absence is never an error.
func (m *Manager) Load(ctx context.Context, docID string, path []string, out any) (bool, error) {
	h, err := m.getOrCreate(ctx, docID)
	if err != nil {
		return false, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return crdtval.ReadAt(h.doc, path, out)
}

// Update runs fn against the document under its write lock, then commits and
// persists. Multi-step mutations (read-modify-write of a collection) use this
// so the whole sequence is one automerge transaction.
func (m *Manager) Update(ctx context.Context, docID, message string, fn func(doc *automerge.Doc) error) error {
	h, err := m.getOrCreate(ctx, docID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := fn(h.doc); err != nil {
		m.revert(docID, h)
		return err
	}
	if err := commit(h.doc, message); err != nil {
		m.revert(docID, h)
		return err
	}
	return persist(h.doc, h.path)
}

// View runs fn against the document under its read lock.
func (m *Manager) View(ctx context.Context, docID string, fn func(doc *automerge.Doc) error) error {
	h, err := m.getOrCreate(ctx, docID)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.doc)
}

// Exists reports whether a document file is already present, without
// creating one.
func (m *Manager) Exists(docID string) bool {
	m.mu.RLock()
	_, cached := m.docs[docID]
	m.mu.RUnlock()
	if cached {
		return true
	}
	_, err := os.Stat(m.DocumentPath(docID))
	return err == nil
}

// Delete evicts the handle from the cache. Handles already held by other
// callers stay valid; callers must not retain handles past this call.
func (m *Manager) Delete(docID string) {
	m.mu.Lock()
	delete(m.docs, docID)
	m.mu.Unlock()
}

// ListDocumentIDs scans the documents directory and returns every stored
// document id, cached or not.
func (m *Manager) ListDocumentIDs() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.E(domain.KindIO, "docstore.list", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".automerge") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".automerge"))
	}
	return ids, nil
}

// OpenDocIDs lists the ids currently held in the cache, for diagnostics.
func (m *Manager) OpenDocIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return ids
}

// revert discards uncommitted ops left behind by a failed mutation by
// reloading the last persisted state. Without this the stray ops would ride
// along with the next successful commit. Called under h's write lock.
func (m *Manager) revert(docID string, h *handle) {
	raw, err := os.ReadFile(h.path)
	if err == nil {
		if doc, lerr := automerge.Load(raw); lerr == nil {
			h.doc = doc
			return
		}
	}
	// Cannot rebuild in place; evict so the next access reloads from disk.
	m.logger.Error("document revert failed, evicting handle", "doc_id", docID)
	m.Delete(docID)
}

func commit(doc *automerge.Doc, message string) error {
	if _, err := doc.Commit(message); err != nil {
		return domain.E(domain.KindAutomerge, "docstore.commit", err)
	}
	return nil
}

// persist writes the document bytes through a temp file and rename so a
// crash never leaves a truncated document behind.
func persist(doc *automerge.Doc, path string) error {
	tmp := fmt.Sprintf("%s.tmp", path)
	if err := os.WriteFile(tmp, doc.Save(), 0o644); err != nil {
		return domain.E(domain.KindIO, "docstore.persist", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return domain.E(domain.KindIO, "docstore.persist", err)
	}
	return nil
}
