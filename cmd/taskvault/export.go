package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/basket/taskvault/internal/config"
	"github.com/basket/taskvault/internal/crdtrepo"
	"github.com/basket/taskvault/internal/docstore"
)

// exportOutPath resolves the output file for an export, defaulting to
// <project>.json in the working directory.
func exportOutPath(projectID, out string) string {
	if out != "" {
		return out
	}
	return projectID + ".json"
}

func exportManager() (*docstore.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return docstore.NewManager(cfg.DocumentsDir, logger), nil
}

func runExportCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	project := fs.String("project", "", "project id to export")
	out := fs.String("out", "", "output file (default <project>.json)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *project == "" {
		fmt.Fprintln(os.Stderr, "usage: taskvault export -project <id> [-out <file>]")
		return 2
	}

	mgr, err := exportManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}

	path := exportOutPath(*project, *out)
	if err := mgr.ExportAsJSON(ctx, crdtrepo.DocID(*project), path); err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	fmt.Println("exported", path)
	return 0
}

func runExportHistoryCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export-history", flag.ContinueOnError)
	project := fs.String("project", "", "project id to export")
	dir := fs.String("dir", "", "output directory (default history_<project>)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *project == "" {
		fmt.Fprintln(os.Stderr, "usage: taskvault export-history -project <id> [-dir <dir>]")
		return 2
	}

	mgr, err := exportManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export-history: %v\n", err)
		return 1
	}

	outDir := *dir
	if outDir == "" {
		outDir = "history_" + *project
	}
	if err := mgr.ExportChangesHistory(ctx, crdtrepo.DocID(*project), outDir); err != nil {
		fmt.Fprintf(os.Stderr, "export-history: %v\n", err)
		return 1
	}
	fmt.Println("exported history to", outDir)
	return 0
}
