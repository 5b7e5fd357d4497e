// Package audit records delete, restore, and compensation events to an
// append-only JSONL file and, when configured, to the audit_log table.
// Recording never fails the operation being audited.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Actions recorded by the coordinator and service layers.
const (
	ActionDelete     = "delete"
	ActionRestore    = "restore"
	ActionCompensate = "compensate"
	ActionPurge      = "purge"
)

type entry struct {
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ProjectID  string `json:"project_id,omitempty"`
	ActingUser string `json:"acting_user,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

var (
	mu              sync.Mutex
	file            *os.File
	db              *sql.DB
	compensateCount atomic.Int64
)

func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// SetDB configures the database for audit_log table writes.
func SetDB(d *sql.DB) {
	mu.Lock()
	defer mu.Unlock()
	db = d
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// CompensateCount returns the total number of compensating rollbacks
// recorded since startup.
func CompensateCount() int64 {
	return compensateCount.Load()
}

func Record(action, entityKind, entityID, projectID, actingUser, detail string) {
	if action == ActionCompensate {
		compensateCount.Add(1)
	}

	mu.Lock()
	defer mu.Unlock()

	// Write to JSONL file.
	if file != nil {
		ev := entry{
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
			Action:     action,
			EntityKind: entityKind,
			EntityID:   entityID,
			ProjectID:  projectID,
			ActingUser: actingUser,
			Detail:     detail,
		}
		b, err := json.Marshal(ev)
		if err == nil {
			_, _ = file.Write(append(b, '\n'))
		}
	}

	// Write to audit_log table.
	if db != nil {
		_, _ = db.ExecContext(context.Background(), `
			INSERT INTO audit_log (decision, entity_kind, entity_id, project_id, acting_user, detail)
			VALUES (?, ?, ?, ?, ?, ?);
		`, action, entityKind, entityID, projectID, actingUser, detail)
	}
}
