package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"synctree/internal/config"
	"synctree/internal/imagecache"
	"synctree/internal/logging"
	"synctree/internal/service"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

const defaultAppName = "synctree"

var version = "dev"

// errUsage marks failures that were already reported to the user.
var errUsage = errors.New("usage error")

const usageText = `SyncTree - Sync supplier part information to InvenTree

Usage:
  synctree <command> [flags] [args]

Commands:
  add <part-number>        Add a part to InvenTree by manufacturer or supplier part number
  bom <assembly> <file>    Import a BOM file (CSV, TSV or s3://bucket/key) into an assembly
  sync                     Re-check every supplier part and update drifted pricing/active state
  config                   Show configuration status
  history [run-id]         List recent batch runs, or the items of one run
  serve                    Run the HTTP and gRPC servers
  version                  Show version and exit

Run 'synctree <command> -h' for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		err = runAdd(ctx, rest, stdout, stderr)
	case "bom":
		err = runBom(ctx, rest, stdout, stderr)
	case "sync":
		err = runSync(ctx, rest, stdout, stderr)
	case "config":
		err = runConfig(rest, stdout, stderr)
	case "history":
		err = runHistory(ctx, rest, stdout, stderr)
	case "serve":
		err = runServe(ctx, rest, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "%s, version %s\n", defaultAppName, version)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usageText)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n%s", cmd, usageText)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "Operation cancelled by user")
		return 130
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// commonFlags are accepted by every command that talks to InvenTree.
type commonFlags struct {
	verbose bool
	dryRun  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "verbose", false, "show detailed output")
	fs.BoolVar(&c.verbose, "v", false, "shorthand for --verbose")
	fs.BoolVar(&c.dryRun, "dry-run", false, "run against an in-memory inventory; nothing is written to InvenTree")
}

// app is the wired object graph shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	svc     *service.SyncService
	images  *imagecache.Cache
	history *store.PostgresStore
}

// newApp loads and validates configuration, then wires stores, supplier clients and the
// sync service.
func newApp(ctx context.Context, flags commonFlags, stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		printConfigHelp(stderr, err)
		return nil, errUsage
	}

	logger, err := newLogger(cfg, flags.verbose)
	if err != nil {
		return nil, err
	}

	var inv store.Inventory
	if flags.dryRun {
		logger.Info("dry run: using in-memory inventory")
		inv = store.NewMemoryStore()
	} else {
		inv = store.NewInvenTreeStore(cfg.InvenTree, logger)
	}

	images := imagecache.New(cfg.ImageDir, nil, logger)
	resolver := service.NewResolver(inv, images, cfg.PartKey, logger)
	svc := service.NewSyncService(inv, resolver, supplierClients(cfg, logger), logger)

	a := &app{cfg: cfg, logger: logger, svc: svc, images: images}
	if cfg.Postgres.Enabled() {
		history, err := openHistory(ctx, cfg.Postgres)
		if err != nil {
			logger.Warn("sync history disabled", zap.Error(err))
		} else {
			a.history = history
			svc.WithHistory(history)
		}
	}
	return a, nil
}

// Close releases the history database and clears downloaded images.
func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("error closing history database", zap.Error(err))
		}
	}
	if err := a.images.Clean(); err != nil {
		a.logger.Warn("error cleaning image cache", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:       level,
		Format:      cfg.LogFormat,
		OutputPath:  cfg.LogOutput,
		Development: cfg.AppEnv == "development",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Named(defaultAppName), nil
}

// supplierClients builds one adapter per configured supplier, in registration order.
func supplierClients(cfg *config.Config, logger *zap.Logger) []suppliers.Client {
	var clients []suppliers.Client
	for _, name := range cfg.Suppliers() {
		switch name {
		case config.SupplierDigikey:
			clients = append(clients, suppliers.NewDigikeyClient(cfg.Digikey, logger))
		case config.SupplierMouser:
			clients = append(clients, suppliers.NewMouserClient(cfg.Mouser, logger))
		}
	}
	return clients
}

func openHistory(ctx context.Context, cfg config.PostgresConfig) (*store.PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	history := store.NewPostgresStore(db)
	if err := history.EnsureSchema(ctx); err != nil {
		history.Close()
		return nil, err
	}
	return history, nil
}

func printConfigHelp(w io.Writer, err error) {
	fmt.Fprintf(w, "Configuration error: %v\n", err)
	fmt.Fprintln(w, "\nPlease set the required environment variables:")
	fmt.Fprintln(w, "  - INVENTREE_SERVER_URL: Your InvenTree server URL")
	fmt.Fprintln(w, "  - INVENTREE_TOKEN: Your InvenTree API token")
	fmt.Fprintln(w, "\nFor suppliers, set at least one:")
	fmt.Fprintln(w, "  Digikey:")
	fmt.Fprintln(w, "    - DIGIKEY_CLIENT_ID")
	fmt.Fprintln(w, "    - DIGIKEY_CLIENT_SECRET")
	fmt.Fprintln(w, "  Mouser:")
	fmt.Fprintln(w, "    - MOUSER_PART_API_KEY")
}
