package sqliterepo

import (
	"context"
	"fmt"
	"time"
)

// RetentionResult holds counts of purged rows from a retention run.
type RetentionResult struct {
	PurgedEntities  int64 `json:"purged_entities"`
	PurgedRelations int64 `json:"purged_relations"`
	PurgedAuditLogs int64 `json:"purged_audit_logs"`
}

var retentionEntityTables = []string{"task_lists", "tasks", "subtasks", "tags", "members", "projects"}

var retentionRelationTables = []string{TableTaskTags, TableTaskAssignments, TableTaskRecurrences}

// RunRetention hard-deletes rows that have been soft-deleted for longer than
// the retention window, plus audit rows past auditDays. Idempotent: a second
// run over the same cutoff purges nothing.
func (s *Store) RunRetention(ctx context.Context, softDeletedDays, auditDays int) (RetentionResult, error) {
	var result RetentionResult

	if softDeletedDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -softDeletedDays)
		for _, table := range retentionRelationTables {
			res, err := s.db.ExecContext(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE deleted = 1 AND updated_at < ?;`, table), cutoff)
			if err != nil {
				return result, fmt.Errorf("purge %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			result.PurgedRelations += n
		}
		for _, table := range retentionEntityTables {
			res, err := s.db.ExecContext(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE deleted = 1 AND updated_at < ?;`, table), cutoff)
			if err != nil {
				return result, fmt.Errorf("purge %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			result.PurgedEntities += n
		}
	}

	if auditDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -auditDays)
		res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?;`, cutoff)
		if err != nil {
			return result, fmt.Errorf("purge audit_log: %w", err)
		}
		result.PurgedAuditLogs, _ = res.RowsAffected()
	}

	return result, nil
}
