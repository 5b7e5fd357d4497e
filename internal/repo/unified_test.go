package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/repo"
)

// memRepo is an in-memory Repository used to observe fan-out behavior.
type memRepo struct {
	records map[string]*domain.Project
	saveErr error
	calls   []string
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*domain.Project)}
}

func (m *memRepo) Save(_ context.Context, e *domain.Project) error {
	m.calls = append(m.calls, "save")
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *e
	m.records[e.ID] = &cp
	return nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*domain.Project, error) {
	m.calls = append(m.calls, "find")
	if e, ok := m.records[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) FindAll(_ context.Context) ([]*domain.Project, error) {
	var out []*domain.Project
	for _, e := range m.records {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.calls = append(m.calls, "delete")
	delete(m.records, id)
	return nil
}

func (m *memRepo) Exists(_ context.Context, id string) (bool, error) {
	m.calls = append(m.calls, "exists")
	_, ok := m.records[id]
	return ok, nil
}

func (m *memRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func TestSaveFansOutInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	first, second := newMemRepo(), newMemRepo()

	u := repo.NewUnified[domain.Project]()
	u.AddSQLiteForSave(first)
	u.AddAutomergeForSave(second)

	if err := u.Save(ctx, &domain.Project{ID: "p1", Name: "Launch"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.records["p1"] == nil || second.records["p1"] == nil {
		t.Fatal("expected the record in every save backend")
	}

	kinds := u.SaveBackends()
	if len(kinds) != 2 || kinds[0] != repo.BackendSQLite || kinds[1] != repo.BackendAutomerge {
		t.Fatalf("unexpected fan-out order %v", kinds)
	}
}

func TestSaveAbortsOnFirstBackendError(t *testing.T) {
	ctx := context.Background()
	first, second := newMemRepo(), newMemRepo()
	boom := errors.New("disk full")
	first.saveErr = boom

	u := repo.NewUnified[domain.Project]()
	u.AddSQLiteForSave(first)
	u.AddAutomergeForSave(second)

	err := u.Save(ctx, &domain.Project{ID: "p1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error surfaced as-is, got %v", err)
	}
	if len(second.calls) != 0 {
		t.Fatal("later backend reached after earlier backend failed")
	}
}

func TestFindFallsThroughToNextBackend(t *testing.T) {
	ctx := context.Background()
	first, second := newMemRepo(), newMemRepo()
	second.records["p1"] = &domain.Project{ID: "p1", Name: "Launch"}

	u := repo.NewUnified[domain.Project]()
	u.AddSQLiteForSearch(first)
	u.AddAutomergeForSearch(second)

	got, err := u.FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.Name != "Launch" {
		t.Fatalf("expected fall-through hit, got %+v", got)
	}
	if len(first.calls) != 1 || len(second.calls) != 1 {
		t.Fatalf("expected both backends consulted once, got %v / %v", first.calls, second.calls)
	}
}

func TestFindAllReturnsFirstNonEmptyAnswer(t *testing.T) {
	ctx := context.Background()
	first, second := newMemRepo(), newMemRepo()
	first.records["p1"] = &domain.Project{ID: "p1"}
	second.records["p1"] = &domain.Project{ID: "p1"}
	second.records["p2"] = &domain.Project{ID: "p2"}

	u := repo.NewUnified[domain.Project]()
	u.AddSQLiteForSearch(first)
	u.AddAutomergeForSearch(second)

	all, err := u.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	// The first backend answered, so the second is never merged in.
	if len(all) != 1 {
		t.Fatalf("expected first backend's answer only, got %d records", len(all))
	}
}

func TestExistsShortCircuits(t *testing.T) {
	ctx := context.Background()
	first, second := newMemRepo(), newMemRepo()
	first.records["p1"] = &domain.Project{ID: "p1"}

	u := repo.NewUnified[domain.Project]()
	u.AddSQLiteForSearch(first)
	u.AddAutomergeForSearch(second)

	ok, err := u.Exists(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("exists: ok=%t err=%v", ok, err)
	}
	if len(second.calls) != 0 {
		t.Fatal("second backend consulted despite short-circuit")
	}

	ok, err = u.Exists(ctx, "p2")
	if err != nil || ok {
		t.Fatalf("exists absent: ok=%t err=%v", ok, err)
	}
	if len(second.calls) != 1 {
		t.Fatal("second backend not consulted for a miss")
	}
}

func TestUnconfiguredUnifiedIsEmptyShape(t *testing.T) {
	ctx := context.Background()
	u := repo.NewUnified[domain.Project]()

	if err := u.Save(ctx, &domain.Project{ID: "p1"}); err != nil {
		t.Fatalf("save on empty unified: %v", err)
	}
	got, err := u.FindByID(ctx, "p1")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got %v %v", got, err)
	}
	all, err := u.FindAll(ctx)
	if err != nil || all != nil {
		t.Fatalf("expected empty find all, got %v %v", all, err)
	}
	n, err := u.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected zero count, got %d %v", n, err)
	}
}

func TestKnownKind(t *testing.T) {
	if !repo.KnownKind(repo.BackendSQLite) || !repo.KnownKind(repo.BackendAutomerge) {
		t.Fatal("built-in kinds not recognized")
	}
	if repo.KnownKind("redis") {
		t.Fatal("unknown kind accepted")
	}
}
