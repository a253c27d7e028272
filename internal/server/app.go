// Package server initializes and runs the asset storage backend. It wires
// the database pool, the object store, the tenant registry and the services,
// runs the global migrations, and owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dkravets/assetvault/internal/logging"
	"github.com/dkravets/assetvault/internal/server/blob"
	"github.com/dkravets/assetvault/internal/server/config"
	"github.com/dkravets/assetvault/internal/server/repositories/repomanager"
	"github.com/dkravets/assetvault/internal/server/services"
	"github.com/dkravets/assetvault/internal/server/tenants"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	registry      *tenants.Registry
	assetService  *services.AssetService
	uploadService *services.UploadService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	l := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(l)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	registry := tenants.NewRegistry(db, rm, blobs, logger)
	us := services.NewUploadService(db, rm, registry, logger, cfg)
	as := services.NewAssetService(db, rm, blobs, logger)

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		registry:      registry,
		assetService:  as,
		uploadService: us,
	}, nil
}

// Tenants exposes the tenant registry to embedding consumers.
func (app *App) Tenants() *tenants.Registry { return app.registry }

// Assets exposes the asset lifecycle coordinator.
func (app *App) Assets() *services.AssetService { return app.assetService }

// Uploads exposes the resumable upload session manager.
func (app *App) Uploads() *services.UploadService { return app.uploadService }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.uploadService.RunSweeper(ctx)
	}()

	wg.Wait()

	app.registry.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}
