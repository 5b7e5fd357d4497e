package config

import (
	"fmt"
	"os"
)

const starterConfig = `# taskvault configuration
log_level: info
quiet: false

# Persistence backends. Writes fan out to every backend under "save" in
# order; reads try each backend under "search" until one answers.
backends:
  save: [sqlite, automerge]
  search: [sqlite, automerge]

retention:
  enabled: true
  schedule: "0 3 * * *"
  soft_deleted_days: 30
  audit_days: 90

otel:
  enabled: false
  exporter: stdout
`

// SaveStarter writes the commented starter config.yaml into homeDir. It
// refuses to overwrite an existing config and writes through a temp file so
// the result appears atomically.
func SaveStarter(homeDir string) error {
	path := ConfigPath(homeDir)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config.yaml already exists at %s", path)
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(starterConfig), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
