package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/basket/taskvault/internal/audit"
	"github.com/basket/taskvault/internal/config"
	"github.com/basket/taskvault/internal/docstore"
	"github.com/basket/taskvault/internal/sqliterepo"
)

func runPurgeCommand(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: taskvault purge")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 1
	}
	if err := audit.Init(cfg.HomeDir); err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 1
	}
	defer func() { _ = audit.Close() }()

	store, err := sqliterepo.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 1
	}
	defer store.Close()
	audit.SetDB(store.DB())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr := docstore.NewManager(cfg.DocumentsDir, logger)

	p, err := newPurger(cfg, store, mgr, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 1
	}
	res, err := p.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		return 1
	}
	fmt.Printf("purged %d relational rows, %d document entries, %d audit rows\n",
		res.RelationalRows, res.DocumentEntries, res.AuditRows)
	return 0
}
