package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/arzwatch/arzwatch/internal/application"
	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/browser"
	"github.com/arzwatch/arzwatch/internal/infrastructure/config"
	"github.com/arzwatch/arzwatch/internal/infrastructure/persistence/sqldb"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/sources"
	httpHandler "github.com/arzwatch/arzwatch/internal/interfaces/http"
)

const usage = `Usage: arzwatch <command> [flags]

Commands:
  scrape   run one scrape pass (see --source / --instrument)
  serve    run the HTTP API with periodic scraping
  seed     load the source/instrument catalogue from the seed file

Scrape flags:
  --source[=NAME]       scrape one source, or every source when bare
  --instrument[=SYMBOL] scrape one instrument, or every instrument when bare
  --auto-driver         ignore CHROME_PATH and auto-discover the browser
`

func setupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
}

// scopeFlag is a tri-state flag: absent, bare (= all) or named. IsBoolFlag
// lets it appear without a value, so the named form is --flag=NAME.
type scopeFlag struct {
	value application.ScopeValue
}

func (f *scopeFlag) String() string {
	switch {
	case !f.value.Present:
		return ""
	case f.value.All:
		return "all"
	default:
		return f.value.Name
	}
}

func (f *scopeFlag) Set(s string) error {
	if s == "true" || s == "" {
		f.value = application.ScopeAll()
		return nil
	}
	f.value = application.ScopeNamed(s)
	return nil
}

func (f *scopeFlag) IsBoolFlag() bool { return true }

func initializeDatabase(cfg *config.Config) (*sqldb.Repository, func(), error) {
	var db *sql.DB
	var dialect sqldb.Dialect
	var err error

	switch cfg.DBDriver {
	case config.DBDriverPostgres:
		db, err = sql.Open("pgx", cfg.DBDSN)
		dialect = &sqldb.PostgresDialect{}
	case config.DBDriverSQLite:
		db, err = sql.Open("sqlite", cfg.DBDSN)
		dialect = &sqldb.SQLiteDialect{}
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wrapper := sqldb.New(db, dialect)
	if err := wrapper.Dialect.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return sqldb.NewRepository(wrapper), func() { _ = db.Close() }, nil
}

func buildOrchestrator(cfg *config.Config, repo *sqldb.Repository, autoDriver bool) *application.Orchestrator {
	execPath := cfg.ChromePath
	if autoDriver {
		execPath = ""
	}
	chrome := browser.New(browser.Options{
		ExecPath: execPath,
		Timeout:  cfg.SelectorTimeout,
	})
	deps := scrape.Deps{
		Fetcher: chrome,
		Settle:  cfg.SettleDelay,
		Retry:   scrape.DefaultRetryPolicy(),
	}
	return application.NewOrchestrator(repo, repo, sources.DefaultRegistry(), deps)
}

func runScrape(cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("scrape", flag.ContinueOnError)
	var sourceScope, instrumentScope scopeFlag
	autoDriver := flags.Bool("auto-driver", false, "ignore CHROME_PATH and auto-discover the browser")
	flags.Var(&sourceScope, "source", "source to scrape (bare flag means all)")
	flags.Var(&instrumentScope, "instrument", "instrument to scrape (bare flag means all)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if !sourceScope.value.Present && !instrumentScope.value.Present {
		flags.Usage()
		return domain.NewConfigurationError("provide --source and/or --instrument (bare flag selects all)")
	}

	repo, closeDB, err := initializeDatabase(cfg)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer closeDB()

	orchestrator := buildOrchestrator(cfg, repo, *autoDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx, application.Scope{
		Source:     sourceScope.value,
		Instrument: instrumentScope.value,
	})
	if err != nil {
		return err
	}

	for _, failure := range summary.Failures {
		slog.Warn("Unit failed", "source", failure.Source, "symbol", failure.Symbol, "error", failure.Err)
	}
	slog.Info("Scrape complete", "attempted", summary.Attempted, "succeeded", len(summary.Successes))
	return nil
}

func runSeed(cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := flags.String("file", cfg.SeedFile, "seed file path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	repo, closeDB, err := initializeDatabase(cfg)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repo.SeedFromFile(ctx, *file); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	return nil
}

func runServe(cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	autoDriver := flags.Bool("auto-driver", false, "ignore CHROME_PATH and auto-discover the browser")
	if err := flags.Parse(args); err != nil {
		return err
	}

	repo, closeDB, err := initializeDatabase(cfg)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer closeDB()

	priceService := application.NewPriceService(repo, repo, cfg.CacheTTL)
	orchestrator := buildOrchestrator(cfg, repo, *autoDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := application.NewScheduler(orchestrator, priceService, cfg.ScrapeInterval)
	go scheduler.Start(ctx)

	router := gin.Default()
	httpHandler.SetupRoutes(router, httpHandler.NewHandler(priceService))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "host", cfg.ServerHost, "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		slog.Info("Received shutdown signal")
	}

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("Server exited gracefully")
	return nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.LogLevel)

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "scrape":
		return runScrape(cfg, args[1:])
	case "serve":
		return runServe(cfg, args[1:])
	case "seed":
		return runSeed(cfg, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
