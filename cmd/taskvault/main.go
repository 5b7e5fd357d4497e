package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basket/taskvault/internal/audit"
	"github.com/basket/taskvault/internal/config"
	"github.com/basket/taskvault/internal/coordinator"
	"github.com/basket/taskvault/internal/docstore"
	otelPkg "github.com/basket/taskvault/internal/otel"
	"github.com/basket/taskvault/internal/retention"
	"github.com/basket/taskvault/internal/service"
	"github.com/basket/taskvault/internal/sqliterepo"
	"github.com/basket/taskvault/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Open the stores and run until interrupted

SUBCOMMANDS:
  %s init                     Write a starter config.yaml
  %s export [options]         Export a project document as JSON
                              Options: -project <id>, -out <file>
  %s export-history [options] Export a project document at every change
                              Options: -project <id>, -dir <dir>
  %s purge                    Run one retention sweep and exit
  %s doctor                   Run environment diagnostics and exit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  TASKVAULT_HOME          Data directory (default: ~/.taskvault)
  TASKVAULT_DB_PATH       SQLite database path override
  TASKVAULT_LOG_LEVEL     Log level override (debug, info, warn, error)
`)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			return
		case "init":
			os.Exit(runInitCommand(args[1:]))
		case "export":
			os.Exit(runExportCommand(ctx, args[1:]))
		case "export-history":
			os.Exit(runExportHistoryCommand(ctx, args[1:]))
		case "purge":
			os.Exit(runPurgeCommand(ctx, args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	os.Exit(runDaemon(ctx))
}

func runDaemon(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, cfg.Quiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version)

	if cfg.NeedsInit {
		if err := config.SaveStarter(cfg.HomeDir); err != nil {
			fatalStartup(logger, "E_CONFIG_WRITE", err)
		}
		logger.Info("starter config.yaml written", "home", cfg.HomeDir)
		cfg, err = config.LoadFrom(cfg.HomeDir)
		if err != nil {
			fatalStartup(logger, "E_CONFIG_RELOAD", err)
		}
	}

	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	store, err := sqliterepo.Open(cfg.DBPath)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	audit.SetDB(store.DB())
	logger.Info("startup phase", "phase", "schema_migrated", "db_path", cfg.DBPath)

	mgr := docstore.NewManager(cfg.DocumentsDir, logger)

	coord := coordinator.New(store, mgr, logger)
	coord.SetTelemetry(otelProvider.Tracer, metrics)

	svcs, err := service.New(store, mgr, coord, service.BackendOrder{
		Save:   cfg.SaveOrder(),
		Search: cfg.SearchOrder(),
	}, logger)
	if err != nil {
		fatalStartup(logger, "E_SERVICE_WIRE", err)
	}
	if projects, err := svcs.Projects.List(ctx); err == nil {
		logger.Info("startup phase", "phase", "stores_opened", "projects", len(projects))
	}

	var purger *retention.Purger
	if cfg.Retention.Enabled {
		purger, err = newPurger(cfg, store, mgr, logger, metrics)
		if err != nil {
			fatalStartup(logger, "E_RETENTION_INIT", err)
		}
		purger.Start(ctx)
	}
	defer func() {
		if purger != nil {
			purger.Stop()
		}
	}()

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		fatalStartup(logger, "E_CONFIG_WATCHER_START", err)
	}

	logger.Info("startup complete", "home", cfg.HomeDir)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return 0
		case ev, ok := <-watcher.Events():
			if !ok {
				<-ctx.Done()
				logger.Info("shutting down")
				return 0
			}
			newCfg, err := config.LoadFrom(cfg.HomeDir)
			if err != nil {
				logger.Error("config.yaml reload failed", "error", err)
				continue
			}
			if newCfg.Fingerprint() == cfg.Fingerprint() {
				continue
			}
			telemetry.SetLevel(newCfg.LogLevel)
			if newCfg.Retention != cfg.Retention {
				if purger != nil {
					purger.Stop()
					purger = nil
				}
				if newCfg.Retention.Enabled {
					p, err := newPurger(newCfg, store, mgr, logger, metrics)
					if err != nil {
						logger.Error("retention reload rejected; purger stays off", "error", err)
					} else {
						p.Start(ctx)
						purger = p
					}
				}
			}
			cfg = newCfg
			logger.Info("config.yaml hot-reloaded", "path", ev.Path)
		}
	}
}

func newPurger(cfg config.Config, store *sqliterepo.Store, mgr *docstore.Manager, logger *slog.Logger, metrics *otelPkg.Metrics) (*retention.Purger, error) {
	return retention.NewPurger(retention.Config{
		Store:           store,
		Manager:         mgr,
		Logger:          logger,
		Metrics:         metrics,
		Schedule:        cfg.Retention.Schedule,
		SoftDeletedDays: cfg.Retention.SoftDeletedDays,
		AuditDays:       cfg.Retention.AuditDays,
	})
}

func runInitCommand(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: taskvault init")
		return 2
	}
	home := config.HomeDir()
	if err := config.SaveStarter(home); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	fmt.Println("wrote", config.ConfigPath(home))
	return 0
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record("fatal", "runtime", reasonCode, "", "", message)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}
