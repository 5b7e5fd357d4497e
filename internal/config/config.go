package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/taskvault/internal/otel"
	"github.com/basket/taskvault/internal/repo"
)

// BackendsConfig orders the persistence backends. Save lists every backend a
// write fans out to; Search lists the read fall-through order. Names must be
// known backend kinds ("sqlite", "automerge").
type BackendsConfig struct {
	Save   []string `yaml:"save"`
	Search []string `yaml:"search"`
}

// RetentionConfig controls the background purge of soft-deleted entries.
type RetentionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Schedule        string `yaml:"schedule"`
	SoftDeletedDays int    `yaml:"soft_deleted_days"`
	AuditDays       int    `yaml:"audit_days"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	DBPath       string `yaml:"db_path"`
	DocumentsDir string `yaml:"documents_dir"`
	LogLevel     string `yaml:"log_level"`
	Quiet        bool   `yaml:"quiet"`

	Backends  BackendsConfig  `yaml:"backends"`
	Retention RetentionConfig `yaml:"retention"`
	OTel      otel.Config     `yaml:"otel"`

	// NeedsInit is set when no config.yaml existed at load time.
	NeedsInit bool `yaml:"-"`
}

// SaveOrder returns the configured save fan-out as backend kinds.
func (c Config) SaveOrder() []repo.BackendKind {
	return backendKinds(c.Backends.Save)
}

// SearchOrder returns the configured read fall-through as backend kinds.
func (c Config) SearchOrder() []repo.BackendKind {
	return backendKinds(c.Backends.Search)
}

func backendKinds(names []string) []repo.BackendKind {
	kinds := make([]repo.BackendKind, 0, len(names))
	for _, name := range names {
		kinds = append(kinds, repo.BackendKind(name))
	}
	return kinds
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// loadRawConfig reads config.yaml into a generic map, returning an empty map if the file doesn't exist.
func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

// saveRawConfig marshals and writes a generic map back to config.yaml via a
// temp file so a crash mid-write never leaves a truncated config behind.
func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetLogLevel updates the log level in config.yaml, preserving other settings.
func SetLogLevel(homeDir, level string) error {
	if !validLogLevel(level) {
		return fmt.Errorf("unknown log level %q", level)
	}
	configPath := ConfigPath(homeDir)
	raw, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	raw["log_level"] = level
	return saveRawConfig(configPath, raw)
}

// Fingerprint returns a stable hash of the settings that matter for reload
// decisions, so a watcher event can tell a real change from a rewrite.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "db=%s|docs=%s|log=%s|quiet=%t|save=%v|search=%v|ret=%+v",
		c.DBPath, c.DocumentsDir, c.LogLevel, c.Quiet, c.Backends.Save, c.Backends.Search, c.Retention)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Backends: BackendsConfig{
			Save:   []string{string(repo.BackendSQLite), string(repo.BackendAutomerge)},
			Search: []string{string(repo.BackendSQLite), string(repo.BackendAutomerge)},
		},
		Retention: RetentionConfig{
			Enabled:         true,
			Schedule:        "0 3 * * *",
			SoftDeletedDays: 30,
			AuditDays:       90,
		},
	}
}

func HomeDir() string {
	if override := os.Getenv("TASKVAULT_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskvault")
}

func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads config.yaml under homeDir, applying defaults, env overrides
// and validation. A missing file is not an error; NeedsInit is set instead.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create taskvault home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsInit = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "taskvault.db")
	}
	if strings.TrimSpace(cfg.DocumentsDir) == "" {
		cfg.DocumentsDir = filepath.Join(cfg.HomeDir, "documents")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Backends.Save) == 0 {
		cfg.Backends.Save = []string{string(repo.BackendSQLite), string(repo.BackendAutomerge)}
	}
	if len(cfg.Backends.Search) == 0 {
		cfg.Backends.Search = []string{string(repo.BackendSQLite), string(repo.BackendAutomerge)}
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 3 * * *"
	}
	if cfg.Retention.SoftDeletedDays <= 0 {
		cfg.Retention.SoftDeletedDays = 30
	}
	if cfg.Retention.AuditDays <= 0 {
		cfg.Retention.AuditDays = 90
	}
}

func validate(cfg *Config) error {
	if !validLogLevel(cfg.LogLevel) {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	for _, name := range cfg.Backends.Save {
		if !repo.KnownKind(repo.BackendKind(name)) {
			return fmt.Errorf("unknown save backend %q", name)
		}
	}
	for _, name := range cfg.Backends.Search {
		if !repo.KnownKind(repo.BackendKind(name)) {
			return fmt.Errorf("unknown search backend %q", name)
		}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TASKVAULT_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("TASKVAULT_DOCUMENTS_DIR"); raw != "" {
		cfg.DocumentsDir = raw
	}
	if raw := os.Getenv("TASKVAULT_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("TASKVAULT_QUIET"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Quiet = v
		}
	}
	if raw := os.Getenv("TASKVAULT_RETENTION_DAYS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Retention.SoftDeletedDays = v
		}
	}
}
