package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"janus/config"
	"janus/db"
	"janus/internal/digestcache"
	"janus/internal/drivewatch"
	"janus/internal/errors"
	"janus/internal/eventbus"
	"janus/internal/handlers"
	"janus/internal/layout"
	"janus/internal/middleware"
	"janus/internal/safety"
	"janus/internal/scheduler"
	"janus/routes"
)

// App wires together every long-lived collaborator: the job scheduler, the
// SSE event bus, the drive-topology watcher, and the HTTP server that fronts
// them all.
type App struct {
	Config     *config.Config
	DB         *db.BoltDB
	Logger     *slog.Logger
	HTTPServer *http.Server
	Router     *mux.Router
	Handlers   *handlers.Handlers
	Scheduler  *scheduler.Scheduler
	Bus        *eventbus.Bus
	DriveWatch *drivewatch.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates a new application instance with all dependencies injected.
func NewApp() (*App, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, errors.Wrap(err, "load_config")
	}
	logger.Info("configuration loaded")

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create_data_dir")
	}
	if err := os.MkdirAll(cfg.Images.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create_images_dir")
	}

	database, err := db.NewBoltDB(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init_database")
	}
	logger.Info("digest cache database opened", slog.String("path", cfg.DB.DBPath))

	ctx, cancel := context.WithCancel(context.Background())

	cache := digestcache.New(database, cfg.DB.Bucket)
	bus := eventbus.New()
	gate := safety.NewGate()
	sched := scheduler.New(cfg, bus, gate, cache, logger)
	layoutStore := layout.NewStore(cfg.Data.Dir)
	watcher := drivewatch.New(bus, logger)

	app := &App{
		Config:     cfg,
		DB:         database,
		Logger:     logger,
		Scheduler:  sched,
		Bus:        bus,
		DriveWatch: watcher,
		ctx:        ctx,
		cancel:     cancel,
	}

	app.Handlers = handlers.NewHandlers(sched, layoutStore, bus, cfg, logger)

	if err := app.setupHTTPServer(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "setup_http_server")
	}

	return app, nil
}

// Start runs the drive watcher and blocks serving HTTP until Stop is called.
func (a *App) Start() error {
	a.Logger.Info("starting janus")

	if err := a.DriveWatch.Start(a.ctx); err != nil {
		return errors.Wrap(err, "start_drive_watch")
	}
	a.Logger.Info("drive watcher started")

	a.Logger.Info("starting http server", slog.String("port", a.Config.HTTP.Port))
	if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewInternalError("start_http", err)
	}

	return nil
}

// Stop gracefully shuts down every collaborator.
func (a *App) Stop() error {
	a.Logger.Info("shutting down janus")
	a.cancel()

	a.DriveWatch.Stop()
	a.Scheduler.Shutdown()
	a.Bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("error shutting down http server", slog.String("error", err.Error()))
		return err
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Error("error closing database", slog.String("error", err.Error()))
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// setupHTTPServer configures the HTTP server with middleware and routes.
func (a *App) setupHTTPServer() error {
	router := routes.Setup(a.Handlers)

	middlewares := middleware.DefaultMiddleware(a.Logger)
	handler := middleware.ChainMiddleware(middlewares...)(router)

	a.HTTPServer = &http.Server{
		Addr:           ":" + a.Config.HTTP.Port,
		Handler:        handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   0, // the event stream is long-lived; per-handler timeouts apply elsewhere
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	a.Router = router
	return nil
}

// GetLogger returns the application logger.
func (a *App) GetLogger() *slog.Logger { return a.Logger }

// GetConfig returns the application configuration.
func (a *App) GetConfig() *config.Config { return a.Config }
