// Package doctor runs environment diagnostics for an installation: config,
// store reachability, document directory health and retention schedule
// sanity. Each check degrades to WARN or FAIL on its own so one broken piece
// does not hide the rest.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/taskvault/internal/config"
	"github.com/basket/taskvault/internal/retention"
	"github.com/basket/taskvault/internal/sqliterepo"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check ended in FAIL.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkPermissions,
		checkDatabase,
		checkDocuments,
		checkRetention,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if cfg.NeedsInit {
		return CheckResult{Name: "Config", Status: "WARN", Message: "Configuration missing (run `taskvault init`)"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkPermissions(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}

	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.NeedsInit {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "Config missing"}
	}

	store, err := sqliterepo.Open(cfg.DBPath)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()

	n, err := sqliterepo.NewProjectRepo(store).Count(ctx)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}

	return CheckResult{
		Name:    "Database",
		Status:  "PASS",
		Message: "Connection and schema valid",
		Detail:  fmt.Sprintf("path=%s, projects=%d", cfg.DBPath, n),
	}
}

func checkDocuments(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.NeedsInit {
		return CheckResult{Name: "Documents", Status: "SKIP", Message: "Config missing"}
	}

	info, err := os.Stat(cfg.DocumentsDir)
	if os.IsNotExist(err) {
		return CheckResult{Name: "Documents", Status: "WARN", Message: "Documents directory not created yet (first save creates it)"}
	}
	if err != nil {
		return CheckResult{Name: "Documents", Status: "FAIL", Message: fmt.Sprintf("Stat failed: %v", err)}
	}
	if !info.IsDir() {
		return CheckResult{Name: "Documents", Status: "FAIL", Message: fmt.Sprintf("%s is not a directory", cfg.DocumentsDir)}
	}

	entries, err := os.ReadDir(cfg.DocumentsDir)
	if err != nil {
		return CheckResult{Name: "Documents", Status: "FAIL", Message: fmt.Sprintf("Read failed: %v", err)}
	}
	docs, stale := 0, 0
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".automerge":
			docs++
		case ".tmp":
			stale++
		}
	}

	result := CheckResult{
		Name:    "Documents",
		Status:  "PASS",
		Message: fmt.Sprintf("%d documents", docs),
		Detail:  fmt.Sprintf("dir=%s", cfg.DocumentsDir),
	}
	if stale > 0 {
		// .tmp files mean an interrupted persist; harmless but worth flagging.
		result.Status = "WARN"
		result.Message = fmt.Sprintf("%d documents, %d stale temp files", docs, stale)
	}
	return result
}

func checkRetention(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.NeedsInit {
		return CheckResult{Name: "Retention", Status: "SKIP", Message: "Config missing"}
	}
	if !cfg.Retention.Enabled {
		return CheckResult{Name: "Retention", Status: "PASS", Message: "Disabled"}
	}

	next, err := retention.NextRunTime(cfg.Retention.Schedule, time.Now())
	if err != nil {
		return CheckResult{
			Name:    "Retention",
			Status:  "FAIL",
			Message: fmt.Sprintf("Invalid schedule %q: %v", cfg.Retention.Schedule, err),
		}
	}
	if cfg.Retention.SoftDeletedDays <= 0 && cfg.Retention.AuditDays <= 0 {
		return CheckResult{
			Name:    "Retention",
			Status:  "WARN",
			Message: "Enabled but both windows are zero; runs will purge nothing",
		}
	}

	return CheckResult{
		Name:    "Retention",
		Status:  "PASS",
		Message: fmt.Sprintf("Schedule %q valid, next run %s", cfg.Retention.Schedule, next.Format(time.RFC3339)),
		Detail:  fmt.Sprintf("soft_deleted_days=%d, audit_days=%d", cfg.Retention.SoftDeletedDays, cfg.Retention.AuditDays),
	}
}
