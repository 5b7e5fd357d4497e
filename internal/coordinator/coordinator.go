// Package coordinator performs deletes and restores that must land in both
// stores. SQLite gets a real transaction; the automerge document cannot join
// it, so the coordinator runs a fixed step sequence and compensates with a
// pre-taken document snapshot when a late step fails. This is deliberate
// snapshot-and-compensate, not two-phase commit.
package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/taskvault/internal/audit"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/domain"
	taskotel "github.com/basket/taskvault/internal/otel"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// Entity kind labels used in spans, logs and audit records.
const (
	KindProject  = "project"
	KindTaskList = "task_list"
	KindTask     = "task"
	KindSubTask  = "subtask"
)

// Coordinator drives multi-step cross-store deletes and restores.
type Coordinator struct {
	store   *sqliterepo.Store
	mgr     *docstore.Manager
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *taskotel.Metrics

	// commitTx is the commit step, held as a field so failure paths can be
	// exercised in tests.
	commitTx func(*sql.Tx) error
}

// New wires a coordinator over both stores. Telemetry is optional and
// defaults to no-ops.
func New(store *sqliterepo.Store, mgr *docstore.Manager, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		mgr:      mgr,
		logger:   logger.With("component", "coordinator"),
		tracer:   nooptrace.NewTracerProvider().Tracer(taskotel.TracerName),
		commitTx: func(tx *sql.Tx) error { return tx.Commit() },
	}
}

// SetTelemetry installs a real tracer and instrument set.
func (c *Coordinator) SetTelemetry(tracer trace.Tracer, metrics *taskotel.Metrics) {
	if tracer != nil {
		c.tracer = tracer
	}
	c.metrics = metrics
}

// A txStep is one relational action inside the delete sequence. Steps run in
// order; the first failure aborts the sequence.
type txStep struct {
	name string
	run  func(ctx context.Context) error
}

// runDelete is the shared delete driver: best-effort snapshot, relational
// steps under one transaction, document cascade mark, then commit. A failure
// before commit only needs a rollback; a commit failure after the document
// was marked also restores the snapshot.
func (c *Coordinator) runDelete(ctx context.Context, kind, entityID, projectID string, by domain.UserID, steps func(tx *sql.Tx) []txStep, mark func(ctx context.Context) error) error {
	ctx, span := taskotel.StartSpan(ctx, c.tracer, "coordinator.delete."+kind,
		taskotel.AttrProjectID.String(projectID),
		taskotel.AttrEntityKind.String(kind),
		taskotel.AttrEntityID.String(entityID),
	)
	defer span.End()
	start := time.Now()

	snap, err := crdtrepo.Snapshot(ctx, c.mgr, projectID)
	if err != nil {
		c.logger.Warn("snapshot unavailable, continuing without compensation",
			"project_id", projectID, "error", err)
		snap = nil
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range steps(tx) {
		if err := st.run(ctx); err != nil {
			return c.abortDelete(ctx, tx, kind, entityID, projectID, by, st.name, err, false, snap)
		}
	}

	if err := mark(ctx); err != nil {
		// The mark is a single document update, so nothing to compensate.
		return c.abortDelete(ctx, tx, kind, entityID, projectID, by, "mark_document", err, false, snap)
	}

	if err := c.commitTx(tx); err != nil {
		cerr := domain.E(domain.KindDatabase, "coordinator.commit", err)
		return c.abortDelete(ctx, tx, kind, entityID, projectID, by, "commit", cerr, true, snap)
	}

	audit.Record(audit.ActionDelete, kind, entityID, projectID, string(by), "")
	if c.metrics != nil {
		c.metrics.DeleteDuration.Record(ctx, time.Since(start).Seconds(), metricAttrs(kind))
	}
	c.logger.Info("coordinated delete committed",
		"kind", kind, "entity_id", entityID, "project_id", projectID)
	return nil
}

// abortDelete rolls the transaction back and, when the document was already
// marked, writes the snapshot back over it. All failures along the way are
// joined into the returned error.
func (c *Coordinator) abortDelete(ctx context.Context, tx *sql.Tx, kind, entityID, projectID string, by domain.UserID, stepName string, cause error, restoreDoc bool, snap *crdtrepo.ProjectDocument) error {
	errs := []error{cause}

	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		errs = append(errs, domain.E(domain.KindDatabase, "coordinator.rollback", rbErr))
	}

	if restoreDoc {
		switch {
		case snap == nil:
			c.logger.Error("no snapshot to compensate with, document may be inconsistent",
				"kind", kind, "entity_id", entityID, "project_id", projectID, "step", stepName)
		default:
			if rerr := crdtrepo.RestoreSnapshot(ctx, c.mgr, projectID, snap); rerr != nil {
				errs = append(errs, rerr)
			} else {
				audit.Record(audit.ActionCompensate, kind, entityID, projectID, string(by),
					"document snapshot restored after "+stepName+" failure")
				if c.metrics != nil {
					c.metrics.Compensations.Add(ctx, 1, metricAttrs(kind))
				}
			}
		}
	}

	c.logger.Error("coordinated delete failed",
		"kind", kind, "entity_id", entityID, "project_id", projectID,
		"step", stepName, "error", cause)
	return errors.Join(errs...)
}

// runRestore is the shared restore driver: re-create the relational rows
// from the document's deleted aggregate, commit, then flip the document's
// delete flags off. A flip failure after commit deletes the rows again.
func (c *Coordinator) runRestore(ctx context.Context, kind, entityID, projectID string, by domain.UserID, insert func(tx *sql.Tx) error, flip func(ctx context.Context) error, undo func(tx *sql.Tx) error) error {
	ctx, span := taskotel.StartSpan(ctx, c.tracer, "coordinator.restore."+kind,
		taskotel.AttrProjectID.String(projectID),
		taskotel.AttrEntityKind.String(kind),
		taskotel.AttrEntityID.String(entityID),
	)
	defer span.End()
	start := time.Now()

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insert(tx); err != nil {
		_ = tx.Rollback()
		c.logger.Error("restore insert failed",
			"kind", kind, "entity_id", entityID, "project_id", projectID, "error", err)
		return err
	}
	if err := c.commitTx(tx); err != nil {
		cerr := domain.E(domain.KindDatabase, "coordinator.commit", err)
		c.logger.Error("restore commit failed",
			"kind", kind, "entity_id", entityID, "project_id", projectID, "error", cerr)
		return cerr
	}

	if err := flip(ctx); err != nil {
		errs := []error{err}
		if uerr := c.undoRestore(ctx, undo); uerr != nil {
			errs = append(errs, uerr)
		} else {
			audit.Record(audit.ActionCompensate, kind, entityID, projectID, string(by),
				"relational rows removed after document restore failure")
			if c.metrics != nil {
				c.metrics.Compensations.Add(ctx, 1, metricAttrs(kind))
			}
		}
		c.logger.Error("coordinated restore failed",
			"kind", kind, "entity_id", entityID, "project_id", projectID, "error", err)
		return errors.Join(errs...)
	}

	audit.Record(audit.ActionRestore, kind, entityID, projectID, string(by), "")
	if c.metrics != nil {
		c.metrics.RestoreDuration.Record(ctx, time.Since(start).Seconds(), metricAttrs(kind))
	}
	c.logger.Info("coordinated restore committed",
		"kind", kind, "entity_id", entityID, "project_id", projectID)
	return nil
}

func (c *Coordinator) undoRestore(ctx context.Context, undo func(tx *sql.Tx) error) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := undo(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.E(domain.KindDatabase, "coordinator.undo_commit", err)
	}
	return nil
}

// aggregate fetches the decoded project document and requires it to exist.
func (c *Coordinator) aggregate(ctx context.Context, projectID string) (*crdtrepo.ProjectDocument, error) {
	snap, err := crdtrepo.Snapshot(ctx, c.mgr, projectID)
	if err != nil {
		return nil, err
	}
	if snap.ID == "" {
		return nil, domain.Ef(domain.KindNotFound, "coordinator.aggregate", "project %s has no document", projectID)
	}
	return snap, nil
}

func requireRows(n int64, op, kind, id string) error {
	if n == 0 {
		return domain.Ef(domain.KindNotFound, op, "%s %s not found", kind, id)
	}
	return nil
}

func metricAttrs(kind string) metric.MeasurementOption {
	return metric.WithAttributes(taskotel.AttrEntityKind.String(kind))
}
