// Package service is the application-facing facade over the unified
// repositories and the cross-store coordinator. Callers outside the
// persistence core talk to these types only: errors arrive flattened, audit
// fields are stamped here, and backend fan-out order comes from
// configuration.
package service

import (
	"log/slog"

	"github.com/basket/taskvault/internal/coordinator"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	"github.com/basket/taskvault/internal/repo"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// BackendOrder is the configured registration order for unified
// repositories: fan-out order for writes, priority order for reads.
type BackendOrder struct {
	Save   []repo.BackendKind
	Search []repo.BackendKind
}

// DefaultOrder writes to SQLite first and serves reads from SQLite first.
func DefaultOrder() BackendOrder {
	return BackendOrder{
		Save:   []repo.BackendKind{repo.BackendSQLite, repo.BackendAutomerge},
		Search: []repo.BackendKind{repo.BackendSQLite, repo.BackendAutomerge},
	}
}

// Services bundles every facade service over one store pair.
type Services struct {
	Projects  *ProjectService
	TaskLists *ScopedService[domain.TaskList]
	Tasks     *TaskService
	SubTasks  *ScopedService[domain.SubTask]
	Tags      *ScopedService[domain.Tag]
	Members   *ScopedService[domain.Member]

	TaskTags        *RelationService
	TaskAssignments *RelationService
	TaskRecurrences *RelationService
}

// New wires all facade services. Relation repos over a closed table set
// cannot fail here; the table names are compile-time constants.
func New(store *sqliterepo.Store, mgr *docstore.Manager, coord *coordinator.Coordinator, order BackendOrder, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "service")

	taskTags, err := buildRelation(store, mgr, order, sqliterepo.TableTaskTags, crdtrepo.NewTaskTagRepo(mgr))
	if err != nil {
		return nil, err
	}
	taskAssignments, err := buildRelation(store, mgr, order, sqliterepo.TableTaskAssignments, crdtrepo.NewTaskAssignmentRepo(mgr))
	if err != nil {
		return nil, err
	}
	taskRecurrences, err := buildRelation(store, mgr, order, sqliterepo.TableTaskRecurrences, crdtrepo.NewTaskRecurrenceRepo(mgr))
	if err != nil {
		return nil, err
	}

	tasks := newTaskService(store, mgr, coord, order, logger)

	return &Services{
		Projects:        newProjectService(store, mgr, coord, order, logger),
		TaskLists:       newTaskListService(store, mgr, coord, order, logger),
		Tasks:           tasks,
		SubTasks:        newSubTaskService(store, mgr, coord, order, logger),
		Tags:            newTagService(store, mgr, order, logger),
		Members:         newMemberService(store, mgr, order, logger),
		TaskTags:        &RelationService{name: "task_tag", repo: taskTags, logger: logger},
		TaskAssignments: &RelationService{name: "task_assignment", repo: taskAssignments, logger: logger},
		TaskRecurrences: &RelationService{name: "task_recurrence", repo: taskRecurrences, logger: logger},
	}, nil
}

// buildScoped registers the two concrete backends in configured order.
// Unknown kind names are skipped; configuration validation rejects them
// before this point.
func buildScoped[T any](order BackendOrder, sqlite, automerge repo.ScopedRepository[T]) *repo.UnifiedScoped[T] {
	u := repo.NewUnifiedScoped[T]()
	for _, kind := range order.Save {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSave(sqlite)
		case repo.BackendAutomerge:
			u.AddAutomergeForSave(automerge)
		}
	}
	for _, kind := range order.Search {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSearch(sqlite)
		case repo.BackendAutomerge:
			u.AddAutomergeForSearch(automerge)
		}
	}
	return u
}

func buildRelation(store *sqliterepo.Store, mgr *docstore.Manager, order BackendOrder, table string, automerge repo.RelationRepository) (*repo.UnifiedRelation, error) {
	sqlite, err := sqliterepo.NewRelationRepo(store, table)
	if err != nil {
		return nil, err
	}
	u := repo.NewUnifiedRelation()
	for _, kind := range order.Save {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSave(sqlite)
		case repo.BackendAutomerge:
			u.AddAutomergeForSave(automerge)
		}
	}
	for _, kind := range order.Search {
		switch kind {
		case repo.BackendSQLite:
			u.AddSQLiteForSearch(sqlite)
		case repo.BackendAutomerge:
			u.AddAutomergeForSearch(automerge)
		}
	}
	return u, nil
}
