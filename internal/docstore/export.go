package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/taskvault/internal/crdtval"
	"github.com/basket/taskvault/internal/domain"
)

// ExportMetadata heads every diagnostic export file.
type ExportMetadata struct {
	DocumentType string `json:"document_type"`
	Filename     string `json:"filename"`
	ExportedAt   string `json:"exported_at"`
	Description  string `json:"description"`
}

type documentExport struct {
	Metadata     ExportMetadata `json:"metadata"`
	DocumentData map[string]any `json:"document_data"`
}

type changeExport struct {
	Metadata   ExportMetadata `json:"metadata"`
	ChangeData map[string]any `json:"change_data"`
}

type changeSummary struct {
	Hash      string `json:"hash"`
	Actor     string `json:"actor"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	File      string `json:"file"`
}

// exportSchema validates the envelope shape before anything reaches disk, so
// a malformed export is caught at the source rather than by a downstream
// consumer.
const exportSchema = `{
	"type": "object",
	"required": ["metadata"],
	"properties": {
		"metadata": {
			"type": "object",
			"required": ["document_type", "filename", "exported_at", "description"],
			"properties": {
				"document_type": {"type": "string", "minLength": 1},
				"filename": {"type": "string", "minLength": 1},
				"exported_at": {"type": "string", "minLength": 1},
				"description": {"type": "string"}
			}
		},
		"document_data": {"type": "object"},
		"change_data": {"type": "object"}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func envelopeSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(exportSchema))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal export schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("export.json", doc); err != nil {
			schemaErr = fmt.Errorf("add export schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("export.json")
	})
	return compiledSchema, schemaErr
}

// ExportAsJSON walks the whole document and writes a JSON snapshot with a
// metadata envelope to outPath. Diagnostics only; never on the
// consistency-critical path.
func (m *Manager) ExportAsJSON(ctx context.Context, docID, outPath string) error {
	var data map[string]any
	err := m.View(ctx, docID, func(doc *automerge.Doc) error {
		var err error
		data, err = crdtval.ReadTree(doc)
		return err
	})
	if err != nil {
		return domain.E(domain.KindExport, "docstore.export", err)
	}

	out := documentExport{
		Metadata: ExportMetadata{
			DocumentType: "aggregate",
			Filename:     filepath.Base(outPath),
			ExportedAt:   time.Now().UTC().Format(time.RFC3339),
			Description:  fmt.Sprintf("full JSON snapshot of document %s", docID),
		},
		DocumentData: data,
	}
	return writeExportFile(outPath, out)
}

// ExportChangesHistory materializes the document at every historical change
// and writes one JSON file per step plus a changes_summary.json index into
// dir.
func (m *Manager) ExportChangesHistory(ctx context.Context, docID, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.E(domain.KindIO, "docstore.export_history", err)
	}

	var changes []*automerge.Change
	var forks []map[string]any
	err := m.View(ctx, docID, func(doc *automerge.Doc) error {
		var err error
		changes, err = doc.Changes()
		if err != nil {
			return domain.E(domain.KindAutomerge, "docstore.export_history", err)
		}
		for _, ch := range changes {
			fork, err := doc.Fork(ch.Hash())
			if err != nil {
				return domain.E(domain.KindAutomerge, "docstore.export_history", err)
			}
			tree, err := crdtval.ReadTree(fork)
			if err != nil {
				return err
			}
			forks = append(forks, tree)
		}
		return nil
	})
	if err != nil {
		return err
	}

	summaries := make([]changeSummary, 0, len(changes))
	for i, ch := range changes {
		name := fmt.Sprintf("change_%04d_%s.json", i, ch.Hash().String())
		out := changeExport{
			Metadata: ExportMetadata{
				DocumentType: "aggregate_change",
				Filename:     name,
				ExportedAt:   time.Now().UTC().Format(time.RFC3339),
				Description:  fmt.Sprintf("document %s as of change %d of %d", docID, i+1, len(changes)),
			},
			ChangeData: forks[i],
		}
		if err := writeExportFile(filepath.Join(dir, name), out); err != nil {
			return err
		}
		summaries = append(summaries, changeSummary{
			Hash:      ch.Hash().String(),
			Actor:     ch.ActorID(),
			Message:   ch.Message(),
			Timestamp: ch.Timestamp().UTC().Format(time.RFC3339),
			File:      name,
		})
	}

	raw, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return domain.E(domain.KindExport, "docstore.export_history", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "changes_summary.json"), raw, 0o644); err != nil {
		return domain.E(domain.KindIO, "docstore.export_history", err)
	}
	return nil
}

func writeExportFile(path string, envelope any) error {
	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return domain.E(domain.KindExport, "docstore.export", err)
	}

	schema, err := envelopeSchema()
	if err != nil {
		return domain.E(domain.KindExport, "docstore.export", err)
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return domain.E(domain.KindExport, "docstore.export", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return domain.E(domain.KindExport, "docstore.export", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return domain.E(domain.KindIO, "docstore.export", err)
	}
	return nil
}
