// Package retention sweeps soft-deleted data past its keep window out of
// both stores on a cron schedule.
package retention

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/taskvault/internal/audit"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
	taskotel "github.com/basket/taskvault/internal/otel"
	"github.com/basket/taskvault/internal/sqliterepo"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the retention purger.
type Config struct {
	Store   *sqliterepo.Store
	Manager *docstore.Manager
	Logger  *slog.Logger
	Metrics *taskotel.Metrics

	// Schedule is a 5-field cron expression; defaults to daily at 03:00.
	Schedule string
	// Interval is the tick interval; defaults to 1 minute if zero.
	Interval time.Duration
	// SoftDeletedDays is the keep window for soft-deleted entries.
	SoftDeletedDays int
	// AuditDays is the keep window for audit_log rows.
	AuditDays int
}

// Result sums what one sweep removed across both stores.
type Result struct {
	RelationalRows  int64
	DocumentEntries int
	AuditRows       int64
}

// Purger periodically removes soft-deleted entries whose keep window has
// passed. Sweeps are idempotent: a second run over the same data removes
// nothing.
type Purger struct {
	store    *sqliterepo.Store
	mgr      *docstore.Manager
	logger   *slog.Logger
	metrics  *taskotel.Metrics
	schedule cronlib.Schedule
	interval time.Duration
	softDays int
	auditDays int

	nextRun time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPurger creates a Purger from the given config. The cron expression is
// validated here so a bad schedule fails at startup, not at 03:00.
func NewPurger(cfg Config) (*Purger, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = "0 3 * * *"
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	softDays := cfg.SoftDeletedDays
	if softDays <= 0 {
		softDays = 30
	}
	auditDays := cfg.AuditDays
	if auditDays <= 0 {
		auditDays = 90
	}
	return &Purger{
		store:     cfg.Store,
		mgr:       cfg.Manager,
		logger:    logger.With("component", "retention"),
		metrics:   cfg.Metrics,
		schedule:  schedule,
		interval:  interval,
		softDays:  softDays,
		auditDays: auditDays,
		nextRun:   schedule.Next(time.Now()),
	}, nil
}

// Start begins the purger loop. It runs in a background goroutine and
// respects the provided context for shutdown.
func (p *Purger) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("retention purger started", "next_run", p.nextRun, "interval", p.interval)
}

// Stop cancels the purger loop and waits for it to exit.
func (p *Purger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("retention purger stopped")
}

func (p *Purger) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(p.nextRun) {
				continue
			}
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("retention sweep failed", "error", err)
			}
			p.nextRun = p.schedule.Next(now)
		}
	}
}

// RunOnce performs one full sweep of both stores and returns what it
// removed.
func (p *Purger) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	cutoff := start.UTC().AddDate(0, 0, -p.softDays)
	var res Result

	rr, err := p.store.RunRetention(ctx, p.softDays, p.auditDays)
	if err != nil {
		return res, err
	}
	res.RelationalRows = rr.PurgedEntities + rr.PurgedRelations
	res.AuditRows = rr.PurgedAuditLogs

	n, err := p.purgeDocuments(ctx, cutoff)
	if err != nil {
		return res, err
	}
	res.DocumentEntries = n

	audit.Record(audit.ActionPurge, "retention", "", "", "",
		"sweep removed soft-deleted data past keep window")
	if p.metrics != nil {
		p.metrics.RetentionPurged.Add(ctx, res.RelationalRows+int64(res.DocumentEntries))
		p.metrics.RetentionDuration.Record(ctx, time.Since(start).Seconds())
	}
	p.logger.Info("retention sweep complete",
		"relational_rows", res.RelationalRows,
		"document_entries", res.DocumentEntries,
		"audit_rows", res.AuditRows,
		"cutoff", cutoff)
	return res, nil
}

// purgeDocuments walks every project document and drops soft-deleted entries
// older than cutoff from each collection.
func (p *Purger) purgeDocuments(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := p.mgr.ListDocumentIDs()
	if err != nil {
		return 0, err
	}

	taskLists := crdtrepo.NewTaskListRepo(p.mgr)
	tasks := crdtrepo.NewTaskRepo(p.mgr)
	subTasks := crdtrepo.NewSubTaskRepo(p.mgr)
	tags := crdtrepo.NewTagRepo(p.mgr)
	members := crdtrepo.NewMemberRepo(p.mgr)
	relations := []*crdtrepo.RelationRepo{
		crdtrepo.NewTaskTagRepo(p.mgr),
		crdtrepo.NewTaskAssignmentRepo(p.mgr),
		crdtrepo.NewTaskRecurrenceRepo(p.mgr),
	}

	total := 0
	for _, docID := range ids {
		projectID, ok := strings.CutPrefix(docID, "project_")
		if !ok {
			continue
		}
		purges := []func() (int, error){
			func() (int, error) { return taskLists.PurgeDeletedBefore(ctx, projectID, cutoff) },
			func() (int, error) { return tasks.PurgeDeletedBefore(ctx, projectID, cutoff) },
			func() (int, error) { return subTasks.PurgeDeletedBefore(ctx, projectID, cutoff) },
			func() (int, error) { return tags.PurgeDeletedBefore(ctx, projectID, cutoff) },
			func() (int, error) { return members.PurgeDeletedBefore(ctx, projectID, cutoff) },
		}
		for _, rel := range relations {
			rel := rel
			purges = append(purges, func() (int, error) { return rel.PurgeDeletedBefore(ctx, projectID, cutoff) })
		}
		for _, purge := range purges {
			n, err := purge()
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
